// Package coordinator drives the periodic device-state sync. It owns the
// last-good device cache and fans successful snapshots out to listeners.
package coordinator

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/joshp123/godaikin/internal/auth"
	"github.com/joshp123/godaikin/internal/cloud"
	"github.com/joshp123/godaikin/internal/energy"
)

// DefaultInterval matches the vendor app's own refresh cadence so polling
// stays indistinguishable from normal traffic.
const DefaultInterval = 7 * time.Second

// Fetcher is the gateway read path.
type Fetcher interface {
	Devices(ctx context.Context) ([]cloud.Device, error)
}

// UpdateFailedError reports a failed sync cycle. The previous cache is
// retained unchanged; the next tick retries independently.
type UpdateFailedError struct {
	Err error
}

func (e *UpdateFailedError) Error() string {
	return "device refresh failed: " + e.Err.Error()
}

func (e *UpdateFailedError) Unwrap() error {
	return e.Err
}

// Coordinator fetches the device snapshot on a fixed interval and on demand.
// The cache is single-writer, multi-reader: readers only ever observe the
// initial empty cache or a fully built snapshot.
type Coordinator struct {
	fetcher  Fetcher
	meter    *energy.Meter
	interval time.Duration
	log      zerolog.Logger
	now      func() time.Time

	mu        sync.RWMutex
	devices   map[cloud.DeviceID]cloud.Device
	updatedAt time.Time
	lastErr   error

	listenerMu sync.Mutex
	onUpdate   []func([]cloud.Device)
	onFailure  []func(error)

	refreshCh chan struct{}
}

func New(fetcher Fetcher, meter *energy.Meter, interval time.Duration, log zerolog.Logger) *Coordinator {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Coordinator{
		fetcher:   fetcher,
		meter:     meter,
		interval:  interval,
		log:       log.With().Str("component", "coordinator").Logger(),
		now:       time.Now,
		devices:   make(map[cloud.DeviceID]cloud.Device),
		refreshCh: make(chan struct{}, 1),
	}
}

// OnUpdate registers a listener called after every successful cycle with the
// freshly published snapshot.
func (c *Coordinator) OnUpdate(fn func([]cloud.Device)) {
	c.listenerMu.Lock()
	defer c.listenerMu.Unlock()
	c.onUpdate = append(c.onUpdate, fn)
}

// OnUpdateFailed registers a listener called after every failed cycle.
func (c *Coordinator) OnUpdateFailed(fn func(error)) {
	c.listenerMu.Lock()
	defer c.listenerMu.Unlock()
	c.onFailure = append(c.onFailure, fn)
}

// RequestRefresh asks for an immediate cycle without blocking. Requests
// coalesce while one is pending.
func (c *Coordinator) RequestRefresh() {
	select {
	case c.refreshCh <- struct{}{}:
	default:
	}
}

// Refresh runs one sync cycle. On failure the cache is left untouched and the
// returned error wraps the cause as an UpdateFailedError.
func (c *Coordinator) Refresh(ctx context.Context) error {
	devices, err := c.fetcher.Devices(ctx)
	if err != nil {
		cycles.WithLabelValues("failure").Inc()
		c.mu.Lock()
		c.lastErr = err
		c.mu.Unlock()

		failed := &UpdateFailedError{Err: err}
		c.notifyFailure(failed)
		return failed
	}

	now := c.now()
	next := make(map[cloud.DeviceID]cloud.Device, len(devices))
	for _, dev := range devices {
		next[dev.UniqueID] = dev
		c.meter.Accumulate(dev.UniqueID, dev.Shadow.PowerW, now)
	}

	c.mu.Lock()
	c.devices = next
	c.updatedAt = now
	c.lastErr = nil
	c.mu.Unlock()

	cycles.WithLabelValues("success").Inc()
	c.notifyUpdate(devices)
	return nil
}

// Run drives the periodic sync until the context ends or authentication
// fails terminally. Transient failures are logged and absorbed; the ticker
// keeps going.
func (c *Coordinator) Run(ctx context.Context) error {
	if err := c.cycle(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		case <-c.refreshCh:
		}
		if err := c.cycle(ctx); err != nil {
			return err
		}
	}
}

func (c *Coordinator) cycle(ctx context.Context) error {
	err := c.Refresh(ctx)
	if err == nil {
		return nil
	}
	var authErr *auth.AuthError
	if errors.As(err, &authErr) {
		c.log.Error().Err(err).Msg("authentication rejected, stopping sync")
		return err
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	c.log.Warn().Err(err).Msg("device refresh failed")
	return nil
}

// Devices returns the last-good snapshot ordered by device id.
func (c *Coordinator) Devices() []cloud.Device {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]cloud.Device, 0, len(c.devices))
	for _, dev := range c.devices {
		out = append(out, dev)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UniqueID < out[j].UniqueID })
	return out
}

// Device returns one device from the last-good snapshot.
func (c *Coordinator) Device(id cloud.DeviceID) (cloud.Device, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	dev, ok := c.devices[id]
	return dev, ok
}

// LastUpdate returns when the cache was last replaced, zero before the first
// successful cycle.
func (c *Coordinator) LastUpdate() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.updatedAt
}

// Healthy reports whether the most recent cycle succeeded.
func (c *Coordinator) Healthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastErr == nil && !c.updatedAt.IsZero()
}

func (c *Coordinator) notifyUpdate(devices []cloud.Device) {
	c.listenerMu.Lock()
	fns := make([]func([]cloud.Device), len(c.onUpdate))
	copy(fns, c.onUpdate)
	c.listenerMu.Unlock()
	for _, fn := range fns {
		fn(devices)
	}
}

func (c *Coordinator) notifyFailure(err error) {
	c.listenerMu.Lock()
	fns := make([]func(error), len(c.onFailure))
	copy(fns, c.onFailure)
	c.listenerMu.Unlock()
	for _, fn := range fns {
		fn(err)
	}
}
