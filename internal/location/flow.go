// Package location runs the delivery-location picker: quick selection from
// saved addresses and recent entries, GPS detection with progressive
// refinement, and manual entry.
package location

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/flicky/spice-storefront/internal/dto"
	"github.com/flicky/spice-storefront/internal/geocode"
	"github.com/flicky/spice-storefront/internal/model"
	"github.com/flicky/spice-storefront/internal/validation"
)

const (
	DefaultTimeout           = 15 * time.Second
	DefaultAccuracyThreshold = 30.0
	DefaultRecentLimit       = 5

	fallbackDisplayName = "Detected Location"
	defaultCountry      = "India"
)

var (
	// ErrPermissionDenied is reported by a Watcher when the user refused
	// location access.
	ErrPermissionDenied = errors.New("location permission denied")
	// ErrUnsupported is reported by a Watcher when the device has no position source.
	ErrUnsupported = errors.New("geolocation not supported")

	ErrNoCandidate     = errors.New("no detected location to confirm")
	ErrDuplicate       = errors.New("address already saved")
	ErrBusy            = errors.New("another submission is in progress")
	ErrAlreadyDetected = errors.New("location detection already running")
	ErrClosed          = errors.New("location flow closed")
	ErrUnknownAddress  = errors.New("saved address not found")
)

type State int

const (
	Idle State = iota
	Detecting
	Confirming
	Confirmed
	Rejected
	TimedOut
	PermissionDenied
	Unavailable
)

var stateNames = [...]string{
	Idle:             "idle",
	Detecting:        "detecting",
	Confirming:       "confirming",
	Confirmed:        "confirmed",
	Rejected:         "rejected",
	TimedOut:         "timed_out",
	PermissionDenied: "permission_denied",
	Unavailable:      "unavailable",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

type Tab string

const (
	TabQuick  Tab = "quick"
	TabManual Tab = "manual"
)

type Fix struct {
	Latitude  float64
	Longitude float64
	// Accuracy is the reported radius in metres.
	Accuracy float64
}

// Position is one watch callback: a fix, or a failure in Err.
type Position struct {
	Fix
	Err error
}

// Watcher is a continuous device position source. Updates stop and the
// channel may be closed once ctx is cancelled.
type Watcher interface {
	Watch(ctx context.Context) (<-chan Position, error)
}

type AddressBook interface {
	List(ctx context.Context) ([]dto.AddressResponse, error)
	Create(ctx context.Context, req dto.CreateAddressRequest) (*dto.AddressResponse, error)
}

// Candidate is the address resolved from the latest fix.
type Candidate struct {
	geocode.Address
	Fix Fix
}

type Snapshot struct {
	State     State
	Tab       Tab
	Candidate *Candidate
	Watching  bool
	// Message is the user-facing explanation of the last failure.
	Message string
	// Result is the last finalized location string.
	Result string
}

// ManualAddress is the structured manual-entry form.
type ManualAddress struct {
	HouseNumber  string `json:"houseNumber" validate:"required"`
	BuildingName string `json:"buildingName"`
	Street       string `json:"street" validate:"required"`
	Area         string `json:"area" validate:"required"`
	City         string `json:"city" validate:"required"`
	State        string `json:"state" validate:"required,indianstate"`
	Pincode      string `json:"pincode" validate:"required,pincode"`
	Landmark     string `json:"landmark"`
}

// StreetLine joins house number, optional building name, street and area.
func (m ManualAddress) StreetLine() string {
	parts := []string{strings.TrimSpace(m.HouseNumber)}
	if b := strings.TrimSpace(m.BuildingName); b != "" {
		parts = append(parts, b)
	}
	parts = append(parts, strings.TrimSpace(m.Street), strings.TrimSpace(m.Area))
	return strings.Join(parts, ", ")
}

type Options struct {
	Timeout           time.Duration
	AccuracyThreshold float64
	History           *History
	// OnChange is called after every state change, outside the flow's lock.
	OnChange func(Snapshot)
	Logger   *zap.Logger
}

type Flow struct {
	watcher  Watcher
	geocoder geocode.Reverser
	book     AddressBook
	validate *validator.Validate
	history  *History
	onChange func(Snapshot)
	log      *zap.Logger

	timeout   time.Duration
	threshold float64

	mu         sync.Mutex
	state      State
	tab        Tab
	candidate  *Candidate
	message    string
	result     string
	saved      []dto.AddressResponse
	submitting bool
	closed     bool

	// gen identifies the current detection so stale callbacks are dropped.
	gen         int
	cancelWatch context.CancelFunc
	timer       *time.Timer
}

func New(w Watcher, g geocode.Reverser, book AddressBook, opts Options) *Flow {
	f := &Flow{
		watcher:   w,
		geocoder:  g,
		book:      book,
		validate:  validation.New(),
		history:   opts.History,
		onChange:  opts.OnChange,
		log:       opts.Logger,
		timeout:   opts.Timeout,
		threshold: opts.AccuracyThreshold,
		state:     Idle,
		tab:       TabQuick,
	}
	if f.timeout <= 0 {
		f.timeout = DefaultTimeout
	}
	if f.threshold <= 0 {
		f.threshold = DefaultAccuracyThreshold
	}
	if f.history == nil {
		f.history = NewHistory(DefaultRecentLimit)
	}
	if f.log == nil {
		f.log = zap.NewNop()
	}
	return f
}

// Open loads the saved addresses shown on the quick-select tab.
func (f *Flow) Open(ctx context.Context) error {
	addrs, err := f.book.List(ctx)
	if err != nil {
		f.update(func() { f.message = "Could not fetch saved addresses." })
		return fmt.Errorf("list saved addresses: %w", err)
	}
	f.mu.Lock()
	f.saved = addrs
	f.mu.Unlock()
	return nil
}

func (f *Flow) Snapshot() Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshotLocked()
}

func (f *Flow) snapshotLocked() Snapshot {
	s := Snapshot{
		State:    f.state,
		Tab:      f.tab,
		Watching: f.cancelWatch != nil,
		Message:  f.message,
		Result:   f.result,
	}
	if f.candidate != nil {
		c := *f.candidate
		s.Candidate = &c
	}
	return s
}

func (f *Flow) Saved() []dto.AddressResponse {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]dto.AddressResponse(nil), f.saved...)
}

func (f *Flow) Recent() []string {
	return f.history.List()
}

func (f *Flow) SetTab(t Tab) {
	f.update(func() { f.tab = t })
}

// update applies fn under the lock and then reports the new snapshot.
func (f *Flow) update(fn func()) {
	f.mu.Lock()
	fn()
	s := f.snapshotLocked()
	f.mu.Unlock()
	f.emit(s)
}

func (f *Flow) emit(s Snapshot) {
	if f.onChange != nil {
		f.onChange(s)
	}
}

// release stops the position watch and the master timeout. It is safe to
// call any number of times. Callers hold f.mu.
func (f *Flow) release() {
	if f.cancelWatch != nil {
		f.cancelWatch()
		f.cancelWatch = nil
	}
	if f.timer != nil {
		f.timer.Stop()
		f.timer = nil
	}
}

// Detect starts GPS detection. Position updates are reverse-geocoded and
// refine the candidate until one is accurate enough, the master timeout
// fires, or the flow reaches a terminal state.
func (f *Flow) Detect(ctx context.Context) error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return ErrClosed
	}
	if f.state == Detecting {
		f.mu.Unlock()
		return ErrAlreadyDetected
	}
	f.release()
	f.gen++
	gen := f.gen
	f.state = Detecting
	f.candidate = nil
	f.message = ""

	watchCtx, cancel := context.WithCancel(ctx)
	updates, err := f.watcher.Watch(watchCtx)
	if err != nil {
		cancel()
		if errors.Is(err, ErrPermissionDenied) {
			f.fail(PermissionDenied, "Location access denied. Please allow access in your device settings.")
		} else {
			f.fail(Unavailable, "Geolocation is not available. Please enter your address manually.")
		}
		s := f.snapshotLocked()
		f.mu.Unlock()
		f.emit(s)
		return fmt.Errorf("start position watch: %w", err)
	}

	f.cancelWatch = cancel
	f.timer = time.AfterFunc(f.timeout, func() { f.onTimeout(gen) })
	s := f.snapshotLocked()
	f.mu.Unlock()
	f.emit(s)

	go f.consume(watchCtx, gen, updates)
	return nil
}

// fail moves to a terminal failure state and switches to manual entry.
// Callers hold f.mu.
func (f *Flow) fail(state State, msg string) {
	f.release()
	f.state = state
	f.candidate = nil
	f.message = msg
	f.tab = TabManual
}

func (f *Flow) consume(ctx context.Context, gen int, updates <-chan Position) {
	for {
		select {
		case <-ctx.Done():
			return
		case pos, ok := <-updates:
			if !ok {
				return
			}
			if pos.Err != nil {
				f.onWatchError(gen, pos.Err)
				return
			}
			addr := f.resolve(ctx, pos.Fix)
			f.onFix(gen, pos.Fix, addr)
		}
	}
}

func (f *Flow) resolve(ctx context.Context, fix Fix) geocode.Address {
	addr, err := f.geocoder.Reverse(ctx, fix.Latitude, fix.Longitude)
	if err != nil || addr == nil {
		f.log.Warn("reverse geocode failed",
			zap.Float64("lat", fix.Latitude),
			zap.Float64("lon", fix.Longitude),
			zap.Error(err),
		)
		return geocode.Address{Country: defaultCountry, DisplayName: fallbackDisplayName}
	}
	return *addr
}

func (f *Flow) onFix(gen int, fix Fix, addr geocode.Address) {
	f.mu.Lock()
	if gen != f.gen || f.cancelWatch == nil {
		f.mu.Unlock()
		return
	}
	if f.state == Detecting {
		f.state = Confirming
	}
	f.candidate = &Candidate{Address: addr, Fix: fix}
	if fix.Accuracy <= f.threshold {
		f.release()
	}
	s := f.snapshotLocked()
	f.mu.Unlock()
	f.emit(s)
}

func (f *Flow) onWatchError(gen int, err error) {
	f.mu.Lock()
	if gen != f.gen || (f.state != Detecting && f.state != Confirming) {
		f.mu.Unlock()
		return
	}
	switch {
	case errors.Is(err, ErrPermissionDenied):
		f.fail(PermissionDenied, "Location access denied. Please allow access in your device settings.")
	case f.state == Detecting:
		f.fail(Unavailable, "Could not detect your location.")
	default:
		// A candidate is already showing; keep it and stop refining.
		f.release()
	}
	s := f.snapshotLocked()
	f.mu.Unlock()
	f.log.Info("position watch failed", zap.Error(err))
	f.emit(s)
}

func (f *Flow) onTimeout(gen int) {
	f.mu.Lock()
	if gen != f.gen {
		f.mu.Unlock()
		return
	}
	switch f.state {
	case Detecting:
		f.fail(TimedOut, "Could not find your location. Please check your signal or enter manually.")
	case Confirming:
		f.release()
	default:
		f.mu.Unlock()
		return
	}
	s := f.snapshotLocked()
	f.mu.Unlock()
	f.emit(s)
}

// Accept saves the current candidate as the default address and returns
// the location string "street, pincode".
func (f *Flow) Accept(ctx context.Context) (string, error) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return "", ErrClosed
	}
	if f.state != Confirming || f.candidate == nil {
		f.mu.Unlock()
		return "", ErrNoCandidate
	}
	if f.submitting {
		f.mu.Unlock()
		return "", ErrBusy
	}
	f.release()
	c := *f.candidate
	f.submitting = true
	f.mu.Unlock()

	street := c.Street
	if street == "" {
		street = c.DisplayName
	}
	lat, lon := c.Fix.Latitude, c.Fix.Longitude
	req := dto.CreateAddressRequest{
		Label:     "current",
		Street:    street,
		City:      c.City,
		State:     c.State,
		Pincode:   c.Pincode,
		Country:   c.Country,
		Latitude:  &lat,
		Longitude: &lon,
		IsDefault: true,
	}
	result := street + ", " + c.Pincode

	if err := f.save(ctx, req); err != nil {
		f.update(func() {
			f.submitting = false
			f.message = messageFor(err)
		})
		return "", err
	}

	f.finalize(result, func() { f.state = Confirmed })
	return result, nil
}

// Reject discards the candidate and switches to manual entry.
func (f *Flow) Reject() error {
	f.mu.Lock()
	if f.state != Confirming {
		f.mu.Unlock()
		return ErrNoCandidate
	}
	f.release()
	f.state = Rejected
	f.candidate = nil
	f.tab = TabManual
	s := f.snapshotLocked()
	f.mu.Unlock()
	f.emit(s)
	return nil
}

// SubmitManual validates and saves a manually entered address as the
// default, returning "street, city, state - pincode".
func (f *Flow) SubmitManual(ctx context.Context, m ManualAddress) (string, error) {
	if err := f.validate.Struct(m); err != nil {
		msg := validation.FirstMessage(err)
		f.update(func() { f.message = msg })
		return "", fmt.Errorf("invalid address: %s", msg)
	}

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return "", ErrClosed
	}
	if f.submitting {
		f.mu.Unlock()
		return "", ErrBusy
	}
	f.submitting = true
	f.mu.Unlock()

	street := m.StreetLine()
	req := dto.CreateAddressRequest{
		Label:     "home",
		Street:    street,
		City:      strings.TrimSpace(m.City),
		State:     m.State,
		Pincode:   m.Pincode,
		Country:   defaultCountry,
		IsDefault: true,
	}
	addr := model.Address{Street: req.Street, City: req.City, State: req.State, Pincode: req.Pincode}
	result := addr.Display()

	if err := f.save(ctx, req); err != nil {
		f.update(func() {
			f.submitting = false
			f.message = messageFor(err)
		})
		return "", err
	}

	f.finalize(result, func() {
		f.tab = TabManual
		if f.state == Detecting || f.state == Confirming {
			f.state = Idle
		}
	})
	return result, nil
}

// save rejects duplicates of a saved address, persists req and reloads the
// saved list.
func (f *Flow) save(ctx context.Context, req dto.CreateAddressRequest) error {
	for _, s := range f.Saved() {
		existing := model.Address{Street: s.Street, Pincode: s.Pincode}
		if existing.SameLocation(req.Street, req.Pincode) {
			return ErrDuplicate
		}
	}
	if _, err := f.book.Create(ctx, req); err != nil {
		return fmt.Errorf("save address: %w", err)
	}
	if err := f.Open(ctx); err != nil {
		f.log.Warn("refresh saved addresses", zap.Error(err))
	}
	return nil
}

func messageFor(err error) string {
	if errors.Is(err, ErrDuplicate) {
		return "You already have this address saved."
	}
	return "Could not save address. Try again."
}

// SelectSaved finalizes a saved address as "street, pincode" and closes the flow.
func (f *Flow) SelectSaved(id uuid.UUID) (string, error) {
	for _, a := range f.Saved() {
		if a.ID == id {
			result := a.Street + ", " + a.Pincode
			f.finalize(result, func() { f.closed = true })
			return result, nil
		}
	}
	return "", ErrUnknownAddress
}

// SelectRecent finalizes a recent entry and closes the flow.
func (f *Flow) SelectRecent(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", ErrUnknownAddress
	}
	f.finalize(s, func() { f.closed = true })
	return s, nil
}

func (f *Flow) finalize(result string, fn func()) {
	if err := f.history.Add(result); err != nil {
		f.log.Warn("save recent locations", zap.Error(err))
	}
	f.update(func() {
		f.release()
		f.submitting = false
		f.result = result
		f.message = ""
		f.candidate = nil
		fn()
	})
}

// Close tears the flow down, stopping any active watch.
func (f *Flow) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.release()
	f.closed = true
}
