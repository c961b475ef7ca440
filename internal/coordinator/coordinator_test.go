package coordinator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/joshp123/godaikin/internal/auth"
	"github.com/joshp123/godaikin/internal/cloud"
	"github.com/joshp123/godaikin/internal/energy"
)

type fetchResult struct {
	devices []cloud.Device
	err     error
}

// fakeFetcher replays scripted results; the last one repeats forever.
type fakeFetcher struct {
	mu      sync.Mutex
	results []fetchResult
	calls   int
}

func (f *fakeFetcher) Devices(ctx context.Context) ([]cloud.Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.results) == 0 {
		return nil, nil
	}
	r := f.results[0]
	if len(f.results) > 1 {
		f.results = f.results[1:]
	}
	return r.devices, r.err
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func testDevice(id cloud.DeviceID, powerW float64) cloud.Device {
	return cloud.Device{
		UniqueID:  id,
		Name:      "AC " + string(id),
		ThingName: "thing-" + string(id),
		Connected: 1,
		Shadow:    cloud.ShadowState{Key: "key-" + string(id), PowerW: powerW},
	}
}

func newTestCoordinator(f Fetcher, interval time.Duration) *Coordinator {
	return New(f, energy.NewMeter(), interval, zerolog.Nop())
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestRefreshPublishesSnapshot(t *testing.T) {
	fetcher := &fakeFetcher{results: []fetchResult{
		{devices: []cloud.Device{testDevice("b", 0), testDevice("a", 0)}},
	}}
	c := newTestCoordinator(fetcher, time.Minute)

	var notified []cloud.Device
	c.OnUpdate(func(devices []cloud.Device) { notified = devices })

	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	devices := c.Devices()
	if len(devices) != 2 {
		t.Fatalf("got %d devices, want 2", len(devices))
	}
	if devices[0].UniqueID != "a" || devices[1].UniqueID != "b" {
		t.Errorf("devices not ordered by id: %v, %v", devices[0].UniqueID, devices[1].UniqueID)
	}
	if len(notified) != 2 {
		t.Errorf("update listener got %d devices, want 2", len(notified))
	}
	if c.LastUpdate().IsZero() {
		t.Error("LastUpdate still zero after successful refresh")
	}
	if !c.Healthy() {
		t.Error("Healthy() = false after successful refresh")
	}
	if _, ok := c.Device("a"); !ok {
		t.Error("Device(a) not found in snapshot")
	}
}

func TestFailedRefreshKeepsLastGoodSnapshot(t *testing.T) {
	cause := errors.New("cloud unreachable")
	fetcher := &fakeFetcher{results: []fetchResult{
		{devices: []cloud.Device{testDevice("a", 0)}},
		{err: cause},
	}}
	c := newTestCoordinator(fetcher, time.Minute)

	var failure error
	c.OnUpdateFailed(func(err error) { failure = err })

	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("first Refresh: %v", err)
	}
	err := c.Refresh(context.Background())
	if err == nil {
		t.Fatal("second Refresh succeeded, want failure")
	}

	var failed *UpdateFailedError
	if !errors.As(err, &failed) {
		t.Fatalf("error %v is not an UpdateFailedError", err)
	}
	if !errors.Is(err, cause) {
		t.Errorf("error %v does not wrap the fetch cause", err)
	}
	if failure == nil {
		t.Error("failure listener not called")
	}
	if got := c.Devices(); len(got) != 1 || got[0].UniqueID != "a" {
		t.Errorf("snapshot changed after failed cycle: %+v", got)
	}
	if c.Healthy() {
		t.Error("Healthy() = true after failed refresh")
	}
}

func TestSnapshotMatchesLatestFetch(t *testing.T) {
	fetcher := &fakeFetcher{results: []fetchResult{
		{devices: []cloud.Device{testDevice("a", 0), testDevice("b", 0)}},
		{devices: []cloud.Device{testDevice("b", 0), testDevice("c", 0)}},
	}}
	c := newTestCoordinator(fetcher, time.Minute)

	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("first Refresh: %v", err)
	}
	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("second Refresh: %v", err)
	}

	devices := c.Devices()
	if len(devices) != 2 || devices[0].UniqueID != "b" || devices[1].UniqueID != "c" {
		t.Errorf("snapshot does not match latest fetch: %+v", devices)
	}
	if _, ok := c.Device("a"); ok {
		t.Error("device removed upstream still present in snapshot")
	}
}

func TestRunStopsOnAuthError(t *testing.T) {
	fetcher := &fakeFetcher{results: []fetchResult{
		{err: &auth.AuthError{Code: "NotAuthorizedException", Message: "bad password"}},
	}}
	c := newTestCoordinator(fetcher, time.Minute)

	err := c.Run(context.Background())
	if err == nil {
		t.Fatal("Run returned nil, want terminal auth error")
	}
	var authErr *auth.AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("Run error %v does not wrap an AuthError", err)
	}
}

func TestRunAbsorbsTransientFailures(t *testing.T) {
	fetcher := &fakeFetcher{results: []fetchResult{
		{err: errors.New("timeout")},
		{devices: []cloud.Device{testDevice("a", 0)}},
	}}
	c := newTestCoordinator(fetcher, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	waitFor(t, "recovery after transient failure", c.Healthy)
	cancel()

	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Run returned %v, want context.Canceled", err)
	}
}

func TestRunServesOnDemandRefresh(t *testing.T) {
	fetcher := &fakeFetcher{results: []fetchResult{
		{devices: []cloud.Device{testDevice("a", 0)}},
	}}
	c := newTestCoordinator(fetcher, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	waitFor(t, "initial cycle", func() bool { return fetcher.callCount() >= 1 })
	c.RequestRefresh()
	waitFor(t, "on-demand cycle", func() bool { return fetcher.callCount() >= 2 })

	cancel()
	<-done
}

func TestRequestRefreshCoalesces(t *testing.T) {
	c := newTestCoordinator(&fakeFetcher{}, time.Minute)
	c.RequestRefresh()
	c.RequestRefresh()
	c.RequestRefresh()
	if pending := len(c.refreshCh); pending != 1 {
		t.Errorf("got %d pending refresh requests, want 1", pending)
	}
}

func TestRefreshFeedsEnergyMeter(t *testing.T) {
	fetcher := &fakeFetcher{results: []fetchResult{
		{devices: []cloud.Device{testDevice("a", 1000)}},
	}}
	meter := energy.NewMeter()
	c := New(fetcher, meter, time.Minute, zerolog.Nop())

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return base }
	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("first Refresh: %v", err)
	}
	if got := meter.Total("a"); got != 0 {
		t.Fatalf("baseline total = %v, want 0", got)
	}

	c.now = func() time.Time { return base.Add(time.Hour) }
	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("second Refresh: %v", err)
	}
	if got := meter.Total("a"); got < 0.999 || got > 1.001 {
		t.Errorf("total after 1h at 1kW = %v, want 1.0", got)
	}
}
