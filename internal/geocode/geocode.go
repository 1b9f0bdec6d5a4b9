// Package geocode resolves coordinates to postal addresses.
package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/flicky/spice-storefront/internal/config"
)

const defaultCountry = "India"

// ErrNoResult means the lookup service has no address for the coordinates.
var ErrNoResult = errors.New("no address found for coordinates")

type Address struct {
	Street      string `json:"street"`
	City        string `json:"city"`
	State       string `json:"state"`
	Pincode     string `json:"pincode"`
	Country     string `json:"country"`
	DisplayName string `json:"displayName"`
}

type Reverser interface {
	Reverse(ctx context.Context, lat, lon float64) (*Address, error)
}

// Nominatim talks to an OpenStreetMap Nominatim instance. Requests are paced
// by a token bucket to honour the public instance's usage policy.
type Nominatim struct {
	baseURL   string
	userAgent string
	client    *http.Client
	limiter   *rate.Limiter
}

func NewNominatim(cfg config.GeocoderConfig) *Nominatim {
	rps := cfg.RPS
	if rps <= 0 {
		rps = 1
	}
	return &Nominatim{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		userAgent: cfg.UserAgent,
		client:    &http.Client{Timeout: cfg.Timeout},
		limiter:   rate.NewLimiter(rate.Limit(rps), 1),
	}
}

type nominatimResponse struct {
	Error       string `json:"error"`
	DisplayName string `json:"display_name"`
	Address     struct {
		Road          string `json:"road"`
		Suburb        string `json:"suburb"`
		Neighbourhood string `json:"neighbourhood"`
		City          string `json:"city"`
		Town          string `json:"town"`
		Village       string `json:"village"`
		State         string `json:"state"`
		Postcode      string `json:"postcode"`
		Country       string `json:"country"`
	} `json:"address"`
}

func (n *Nominatim) Reverse(ctx context.Context, lat, lon float64) (*Address, error) {
	if err := n.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("reverse geocode: %w", err)
	}

	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(lon, 'f', -1, 64))
	q.Set("format", "json")
	q.Set("addressdetails", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.baseURL+"/reverse?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", n.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("reverse geocode: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("reverse geocode: unexpected status %d", resp.StatusCode)
	}

	var body nominatimResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode reverse geocode response: %w", err)
	}
	if body.Error != "" {
		return nil, ErrNoResult
	}
	return body.toAddress(), nil
}

func (r *nominatimResponse) toAddress() *Address {
	a := r.Address
	var parts []string
	if a.Road != "" {
		parts = append(parts, a.Road)
	}
	if area := firstNonEmpty(a.Suburb, a.Neighbourhood); area != "" {
		parts = append(parts, area)
	}
	country := a.Country
	if country == "" {
		country = defaultCountry
	}
	return &Address{
		Street:      strings.Join(parts, ", "),
		City:        firstNonEmpty(a.City, a.Town, a.Village),
		State:       a.State,
		Pincode:     a.Postcode,
		Country:     country,
		DisplayName: r.DisplayName,
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// Cached stores lookups in Redis. Coordinates are rounded to five decimals
// (about a metre) for the key. Cache failures fall through to the wrapped
// Reverser.
type Cached struct {
	next Reverser
	rdb  redis.Cmdable
	ttl  time.Duration
	log  *zap.Logger
}

func NewCached(next Reverser, rdb redis.Cmdable, ttl time.Duration, log *zap.Logger) *Cached {
	return &Cached{next: next, rdb: rdb, ttl: ttl, log: log}
}

func cacheKey(lat, lon float64) string {
	return fmt.Sprintf("geocode:%.5f:%.5f", lat, lon)
}

func (c *Cached) Reverse(ctx context.Context, lat, lon float64) (*Address, error) {
	key := cacheKey(lat, lon)

	raw, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var addr Address
		if err := json.Unmarshal(raw, &addr); err == nil {
			return &addr, nil
		}
		c.log.Warn("discarding corrupt geocode cache entry", zap.String("key", key))
	case !errors.Is(err, redis.Nil):
		c.log.Warn("geocode cache read failed", zap.String("key", key), zap.Error(err))
	}

	addr, err := c.next.Reverse(ctx, lat, lon)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(addr); err == nil {
		if err := c.rdb.Set(ctx, key, data, c.ttl).Err(); err != nil {
			c.log.Warn("geocode cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return addr, nil
}
