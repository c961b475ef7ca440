// Package moldproof runs the timed coil-drying override: the device is
// switched to fan-only at the lowest speed, and when the timer expires the
// captured fan speed is restored and the unit powered off.
package moldproof

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/joshp123/godaikin/internal/cloud"
	"github.com/joshp123/godaikin/internal/store"
)

const (
	DefaultDuration = 60 * time.Minute
	MinDuration     = 1 * time.Minute
	MaxDuration     = 180 * time.Minute
)

const settingsSchemaVersion = 1

// Commander is the device command surface the scheduler drives.
type Commander interface {
	SetMode(ctx context.Context, target cloud.Target, mode cloud.Mode) error
	SetFanSpeed(ctx context.Context, target cloud.Target, fan cloud.FanSpeed) error
	TurnOff(ctx context.Context, target cloud.Target) error
}

// Refresher requests a state sync after the scheduler changes a device.
type Refresher interface {
	RequestRefresh()
}

// Timer is a stoppable pending callback. Stop is idempotent and reports
// whether it prevented the callback from running.
type Timer interface {
	Stop() bool
}

// TimerService arms single-shot timers. The callback must run on its own
// goroutine, never synchronously from AfterFunc.
type TimerService interface {
	AfterFunc(d time.Duration, fn func()) Timer
}

type wallClock struct{}

func (wallClock) AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}

// WallClock returns the TimerService backed by real timers.
func WallClock() TimerService {
	return wallClock{}
}

// override is the state held while a run is active. It is created only after
// both start commands succeeded and removed exactly once; whichever path
// removes it (expiry, cancel, interrupt, disable) owns the teardown.
type override struct {
	target       cloud.Target
	previousMode cloud.Mode
	previousFan  cloud.FanSpeed
	startedAt    time.Time
	expiresAt    time.Time
	timer        Timer
}

type settings struct {
	SchemaVersion  int              `json:"schema_version"`
	EnabledDevices []cloud.DeviceID `json:"enabled_devices"`
}

// Scheduler manages the per-device enabled flags and active runs. The
// enabled set is durable; active runs live only in memory.
type Scheduler struct {
	commander Commander
	refresher Refresher
	store     store.Store
	timers    TimerService
	duration  time.Duration
	log       zerolog.Logger
	now       func() time.Time

	mu      sync.Mutex
	enabled map[cloud.DeviceID]bool
	active  map[cloud.DeviceID]*override

	persistMu sync.Mutex
}

func New(commander Commander, refresher Refresher, st store.Store, timers TimerService, duration time.Duration, log zerolog.Logger) *Scheduler {
	if duration <= 0 {
		duration = DefaultDuration
	}
	return &Scheduler{
		commander: commander,
		refresher: refresher,
		store:     st,
		timers:    timers,
		duration:  duration,
		log:       log.With().Str("component", "moldproof").Logger(),
		now:       time.Now,
		enabled:   make(map[cloud.DeviceID]bool),
		active:    make(map[cloud.DeviceID]*override),
	}
}

// Load reads the durable enabled set. A missing blob means nothing was ever
// enabled. Any other failure is returned so the caller can refuse to start:
// proceeding with an empty set would overwrite the stored one on the next
// toggle.
func (s *Scheduler) Load(ctx context.Context) error {
	raw, err := s.store.Load(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("loading mold-proof settings: %w", err)
	}
	var st settings
	if err := json.Unmarshal(raw, &st); err != nil {
		return fmt.Errorf("decoding mold-proof settings: %w", err)
	}
	if st.SchemaVersion != settingsSchemaVersion {
		return fmt.Errorf("mold-proof settings schema version %d, want %d", st.SchemaVersion, settingsSchemaVersion)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range st.EnabledDevices {
		s.enabled[id] = true
	}
	s.log.Info().Int("devices", len(st.EnabledDevices)).Msg("loaded mold-proof settings")
	return nil
}

// SetEnabled toggles the durable flag. Disabling a device with an active run
// cancels it. The updated set is persisted after every change.
func (s *Scheduler) SetEnabled(ctx context.Context, id cloud.DeviceID, enabled bool) error {
	s.mu.Lock()
	if s.enabled[id] == enabled {
		s.mu.Unlock()
		return nil
	}
	var cancelled *override
	if enabled {
		s.enabled[id] = true
	} else {
		delete(s.enabled, id)
		cancelled = s.removeLocked(id)
	}
	s.mu.Unlock()

	if cancelled != nil {
		outcomes.WithLabelValues("cancelled").Inc()
		s.log.Info().Str("device", string(id)).Msg("mold-proof run cancelled by disable")
	}
	s.log.Info().Str("device", string(id)).Bool("enabled", enabled).Msg("mold-proof setting changed")
	return s.persist(ctx)
}

// Start begins a run using the mode and fan speed the caller captured before
// commanding the device. It is a no-op for devices without the feature
// enabled. An already-active run is torn down first; the new capture wins.
// Both device commands must succeed before the run is recorded; on failure
// nothing is armed and the error is returned.
func (s *Scheduler) Start(ctx context.Context, target cloud.Target, previousMode cloud.Mode, previousFan cloud.FanSpeed) error {
	id := target.ID

	s.mu.Lock()
	if !s.enabled[id] {
		s.mu.Unlock()
		return nil
	}
	if old := s.removeLocked(id); old != nil {
		outcomes.WithLabelValues("cancelled").Inc()
		s.log.Info().Str("device", string(id)).Msg("restarting mold-proof run")
	}
	s.mu.Unlock()

	if err := s.commander.SetMode(ctx, target, cloud.ModeFanOnly); err != nil {
		return fmt.Errorf("switching %s to fan-only: %w", id, err)
	}
	if err := s.commander.SetFanSpeed(ctx, target, cloud.FanLow); err != nil {
		return fmt.Errorf("setting %s fan to low: %w", id, err)
	}

	now := s.now()
	o := &override{
		target:       target,
		previousMode: previousMode,
		previousFan:  previousFan,
		startedAt:    now,
		expiresAt:    now.Add(s.duration),
	}

	s.mu.Lock()
	if !s.enabled[id] {
		// Disabled while the start commands were in flight.
		s.mu.Unlock()
		s.log.Warn().Str("device", string(id)).Msg("mold-proof disabled mid-start, leaving device in fan-only")
		return nil
	}
	if old := s.removeLocked(id); old != nil {
		outcomes.WithLabelValues("cancelled").Inc()
	}
	o.timer = s.timers.AfterFunc(s.duration, func() { s.expire(id, o) })
	s.active[id] = o
	s.mu.Unlock()

	starts.Inc()
	s.log.Info().
		Str("device", string(id)).
		Str("previous_mode", previousMode.String()).
		Str("previous_fan", previousFan.String()).
		Dur("duration", s.duration).
		Msg("mold-proof run started")
	return nil
}

// expire is the timer callback. Removing the record first makes the removal
// the race arbiter: if cancel or interrupt got there first, expiry does
// nothing. The identity check guards against a stale timer that fired while
// its run was being replaced; it must not tear down the replacement.
// Restore failures are logged and the run still ends.
func (s *Scheduler) expire(id cloud.DeviceID, o *override) {
	s.mu.Lock()
	if s.active[id] != o {
		s.mu.Unlock()
		return
	}
	delete(s.active, id)
	s.mu.Unlock()

	ctx := context.Background()
	log := s.log.With().Str("device", string(id)).Logger()
	if err := s.commander.SetFanSpeed(ctx, o.target, o.previousFan); err != nil {
		log.Warn().Err(err).Msg("restoring fan speed failed")
	}
	if err := s.commander.TurnOff(ctx, o.target); err != nil {
		log.Warn().Err(err).Msg("power-off after mold-proof failed")
	}
	s.refresher.RequestRefresh()

	outcomes.WithLabelValues("finished").Inc()
	log.Info().Str("restored_fan", o.previousFan.String()).Msg("mold-proof run finished")
}

// Cancel stops an active run without touching the device. It reports whether
// a run was in flight.
func (s *Scheduler) Cancel(id cloud.DeviceID) bool {
	s.mu.Lock()
	o := s.removeLocked(id)
	s.mu.Unlock()
	if o == nil {
		return false
	}
	outcomes.WithLabelValues("cancelled").Inc()
	s.log.Info().Str("device", string(id)).Msg("mold-proof run cancelled")
	return true
}

// Interrupt tears down like Cancel but hands back the captured fan speed so
// the caller reacting to a manual command can decide what to do with it.
// Idle devices report (false, FanAuto).
func (s *Scheduler) Interrupt(id cloud.DeviceID) (bool, cloud.FanSpeed) {
	s.mu.Lock()
	o := s.removeLocked(id)
	s.mu.Unlock()
	if o == nil {
		return false, cloud.FanAuto
	}
	outcomes.WithLabelValues("interrupted").Inc()
	s.log.Info().Str("device", string(id)).Msg("mold-proof run interrupted")
	return true, o.previousFan
}

// Remaining returns how long until the active run expires, 0 when idle.
func (s *Scheduler) Remaining(id cloud.DeviceID) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.active[id]
	if !ok {
		return 0
	}
	left := o.expiresAt.Sub(s.now())
	if left < 0 {
		return 0
	}
	return left
}

func (s *Scheduler) Enabled(id cloud.DeviceID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled[id]
}

func (s *Scheduler) Active(id cloud.DeviceID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.active[id]
	return ok
}

// EnabledDevices returns the enabled set sorted by id.
func (s *Scheduler) EnabledDevices() []cloud.DeviceID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabledIDsLocked()
}

// Status is a point-in-time view of one device's scheduler state.
type Status struct {
	Enabled   bool          `json:"enabled"`
	Active    bool          `json:"active"`
	StartedAt time.Time     `json:"started_at,omitempty"`
	ExpiresAt time.Time     `json:"expires_at,omitempty"`
	Remaining time.Duration `json:"remaining"`
}

func (s *Scheduler) Status(id cloud.DeviceID) Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{Enabled: s.enabled[id]}
	o, ok := s.active[id]
	if !ok {
		return st
	}
	st.Active = true
	st.StartedAt = o.startedAt
	st.ExpiresAt = o.expiresAt
	if left := o.expiresAt.Sub(s.now()); left > 0 {
		st.Remaining = left
	}
	return st
}

// removeLocked drops the active record and stops its timer. Callers hold
// s.mu. Returns nil when no run was active.
func (s *Scheduler) removeLocked(id cloud.DeviceID) *override {
	o, ok := s.active[id]
	if !ok {
		return nil
	}
	delete(s.active, id)
	o.timer.Stop()
	return o
}

func (s *Scheduler) enabledIDsLocked() []cloud.DeviceID {
	ids := make([]cloud.DeviceID, 0, len(s.enabled))
	for id := range s.enabled {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// persist rewrites the durable enabled set. The persist mutex serializes
// writers; each snapshot is taken after acquiring it, so the last write
// always carries the latest state.
func (s *Scheduler) persist(ctx context.Context) error {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	s.mu.Lock()
	blob := settings{
		SchemaVersion:  settingsSchemaVersion,
		EnabledDevices: s.enabledIDsLocked(),
	}
	s.mu.Unlock()

	raw, err := json.MarshalIndent(blob, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding mold-proof settings: %w", err)
	}
	if err := s.store.Save(ctx, raw); err != nil {
		return fmt.Errorf("persisting mold-proof settings: %w", err)
	}
	return nil
}
