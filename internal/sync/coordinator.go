package sync

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/eotlabs/eot-cloud-core/internal/auth"
	"github.com/eotlabs/eot-cloud-core/internal/cloud"
	"github.com/eotlabs/eot-cloud-core/internal/convert"
	"github.com/eotlabs/eot-cloud-core/internal/device"
	"github.com/eotlabs/eot-cloud-core/internal/infrastructure/config"
	"github.com/eotlabs/eot-cloud-core/internal/infrastructure/influxdb"
	"github.com/eotlabs/eot-cloud-core/internal/push"
)

// Pusher is the MQTT surface the coordinator consumes. Satisfied by
// *push.Client; tests substitute a fake.
type Pusher interface {
	Publish(topic string, payload []byte) bool
	Events() <-chan push.Event
}

// TokenInvalidator discards cached credentials after the API rejects
// them. Satisfied by *auth.Manager.
type TokenInvalidator interface {
	Invalidate()
}

// Logger defines the logging interface used by the Coordinator.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Coordinator owns the device-state lifecycle: periodic full polls over
// REST, live deltas over MQTT, and outbound commands.
//
// Everything that mutates the store runs on the coordinator's single
// run-loop goroutine. Push events arrive through the Pusher's channel
// and are applied here, never on the transport callback, so poll merges
// and push patches can never interleave mid-update.
type Coordinator struct {
	api    cloud.API
	pusher Pusher
	store  *device.Store
	user   string

	interval time.Duration

	tokens    TokenInvalidator
	history   device.StateHistoryRepository
	telemetry *influxdb.Client
	logger    Logger

	subMu       sync.RWMutex
	subscribers []func()

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewCoordinator creates a coordinator.
//
// Parameters:
//   - cfg: Poll interval settings
//   - user: Account identity segment, first part of every device id
//   - api: REST client for SYNC and QUERY intents
//   - pusher: MQTT client for inbound deltas and outbound commands
//   - store: Shared device-state cache to maintain
//
// Returns:
//   - *Coordinator: Coordinator ready to Start
func NewCoordinator(cfg config.SyncConfig, user string, api cloud.API, pusher Pusher, store *device.Store) *Coordinator {
	return &Coordinator{
		api:      api,
		pusher:   pusher,
		store:    store,
		user:     user,
		interval: cfg.Interval,
		logger:   noopLogger{},
	}
}

// SetLogger sets the logger for the coordinator.
func (c *Coordinator) SetLogger(logger Logger) {
	c.logger = logger
}

// SetTokenInvalidator wires the credential cache to invalidate when the
// API rejects a token mid-cycle.
func (c *Coordinator) SetTokenInvalidator(t TokenInvalidator) {
	c.tokens = t
}

// SetHistory wires the state-history repository. Nil disables recording.
func (c *Coordinator) SetHistory(h device.StateHistoryRepository) {
	c.history = h
}

// SetTelemetry wires the telemetry sink. A nil client is a no-op sink.
func (c *Coordinator) SetTelemetry(t *influxdb.Client) {
	c.telemetry = t
}

// Subscribe registers a callback invoked after every store change (poll
// merge, push patch, or optimistic command patch). Callbacks run on the
// coordinator goroutine and must not block.
func (c *Coordinator) Subscribe(fn func()) {
	c.subMu.Lock()
	c.subscribers = append(c.subscribers, fn)
	c.subMu.Unlock()
}

func (c *Coordinator) notify() {
	c.subMu.RLock()
	subs := make([]func(), len(c.subscribers))
	copy(subs, c.subscribers)
	c.subMu.RUnlock()

	for _, fn := range subs {
		fn()
	}
}

// Start launches the run loop: an immediate full refresh, then periodic
// polls interleaved with push events until the context ends or Stop is
// called.
func (c *Coordinator) Start(ctx context.Context) {
	c.runMu.Lock()
	defer c.runMu.Unlock()

	if c.done != nil {
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})

	go c.run(runCtx, c.done)
}

// Stop ends the run loop and waits for it to drain.
func (c *Coordinator) Stop() {
	c.runMu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.runMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (c *Coordinator) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	if err := c.Refresh(ctx); err != nil {
		c.logger.Error("initial refresh failed", "error", err)
	}

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.Refresh(ctx); err != nil {
				c.logger.Warn("poll failed, serving last known state", "error", err)
			}
		case ev := <-c.pusher.Events():
			c.applyPushEvent(ctx, ev)
		}
	}
}

// Refresh performs one full poll cycle: SYNC the inventory, batch-QUERY
// live states, overlay any fresher cached fragments, and atomically
// replace the store.
//
// On failure the store is left untouched: stale state beats no state.
// Auth failures additionally invalidate the cached token so the retry
// path re-authenticates from scratch.
func (c *Coordinator) Refresh(ctx context.Context) error {
	started := time.Now()

	polled, count, err := c.poll(ctx)
	if err != nil {
		if errors.Is(err, auth.ErrAuthentication) && c.tokens != nil {
			c.logger.Error("poll rejected for authentication, invalidating token", "error", err)
			c.tokens.Invalidate()
		}
		c.telemetry.WritePollCycle(time.Since(started), 0, false)
		return err
	}

	c.store.ReplaceAll(polled)
	c.recordPollHistory(ctx, polled)
	c.telemetry.WritePollCycle(time.Since(started), count, true)
	c.logger.Info("poll completed", "devices", count, "duration", time.Since(started))

	c.notify()
	return nil
}

func (c *Coordinator) poll(ctx context.Context) (map[device.Category]map[string]*device.Device, int, error) {
	vendorDevices, err := c.api.SyncDevices(ctx)
	if err != nil {
		return nil, 0, err
	}

	devices := make(map[string]*device.Device, len(vendorDevices))
	var reporting []string
	for _, vd := range vendorDevices {
		d := convert.DeviceFromVendor(vd)
		devices[d.ID] = d
		if d.WillReportState {
			reporting = append(reporting, d.ID)
		}
	}

	states, err := c.api.QueryStates(ctx, reporting)
	if err != nil {
		return nil, 0, err
	}

	for id, vs := range states {
		d, ok := devices[id]
		if !ok {
			continue
		}
		d.State.Merge(convert.StateFromVendor(vs))
	}

	// A command can land between QUERY and this merge; the client caches
	// the command-response fragment, which is fresher than the query.
	for id, d := range devices {
		vs, ok := c.api.CachedState(id)
		if !ok {
			continue
		}
		d.State.Merge(convert.StateFromVendor(vs))
	}

	polled := make(map[device.Category]map[string]*device.Device)
	for id, d := range devices {
		bucket, ok := polled[d.Type]
		if !ok {
			bucket = make(map[string]*device.Device)
			polled[d.Type] = bucket
		}
		bucket[id] = d
	}

	return polled, len(devices), nil
}

func (c *Coordinator) recordPollHistory(ctx context.Context, polled map[device.Category]map[string]*device.Device) {
	if c.history == nil {
		return
	}
	for _, bucket := range polled {
		for id, d := range bucket {
			if err := c.history.RecordStateChange(ctx, id, d.State, device.StateHistorySourcePoll); err != nil {
				c.logger.Warn("history record failed", "device", id, "error", err)
				return
			}
		}
	}
}

// DevicesByCategory returns a deep copy of the current device buckets.
func (c *Coordinator) DevicesByCategory() map[device.Category]map[string]*device.Device {
	return c.store.AllByCategory()
}

// Device returns one device by id.
func (c *Coordinator) Device(id string) (*device.Device, error) {
	return c.store.Get(id)
}
