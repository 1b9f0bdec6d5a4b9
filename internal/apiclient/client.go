// Package apiclient is a small JSON client for the storefront API, used by
// command-line tools.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/flicky/spice-storefront/internal/dto"
	"github.com/flicky/spice-storefront/internal/geocode"
)

// Error is a non-2xx response from the API.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

// IsStatus reports whether err is an *Error with the given HTTP status.
func IsStatus(err error, status int) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Status == status
}

type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

func New(baseURL, token string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		r = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var e dto.ErrorResponse
		_ = json.NewDecoder(resp.Body).Decode(&e)
		if e.Error == "" {
			e.Error = http.StatusText(resp.StatusCode)
		}
		return &Error{Status: resp.StatusCode, Message: e.Error}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) ListAddresses(ctx context.Context) ([]dto.AddressResponse, error) {
	var resp dto.AddressListResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/addresses", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Addresses, nil
}

func (c *Client) CreateAddress(ctx context.Context, req dto.CreateAddressRequest) (*dto.AddressResponse, error) {
	var resp dto.AddressResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/addresses", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) ReverseGeocode(ctx context.Context, lat, lon float64) (*dto.ReverseGeocodeResponse, error) {
	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(lon, 'f', -1, 64))

	var resp dto.ReverseGeocodeResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/geocode/reverse?"+q.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// AddressBook adapts the client to the location flow's address book.
type AddressBook struct{ c *Client }

func (c *Client) AddressBook() AddressBook { return AddressBook{c: c} }

func (b AddressBook) List(ctx context.Context) ([]dto.AddressResponse, error) {
	return b.c.ListAddresses(ctx)
}

func (b AddressBook) Create(ctx context.Context, req dto.CreateAddressRequest) (*dto.AddressResponse, error) {
	return b.c.CreateAddress(ctx, req)
}

// Geocoder resolves coordinates through the API's geocoding proxy.
type Geocoder struct{ c *Client }

func (c *Client) Geocoder() Geocoder { return Geocoder{c: c} }

func (g Geocoder) Reverse(ctx context.Context, lat, lon float64) (*geocode.Address, error) {
	r, err := g.c.ReverseGeocode(ctx, lat, lon)
	if err != nil {
		return nil, err
	}
	return &geocode.Address{
		Street:      r.Street,
		City:        r.City,
		State:       r.State,
		Pincode:     r.Pincode,
		Country:     r.Country,
		DisplayName: r.DisplayName,
	}, nil
}
