package sync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/eotlabs/eot-cloud-core/internal/auth"
	"github.com/eotlabs/eot-cloud-core/internal/cloud"
	"github.com/eotlabs/eot-cloud-core/internal/convert"
	"github.com/eotlabs/eot-cloud-core/internal/device"
	"github.com/eotlabs/eot-cloud-core/internal/infrastructure/config"
	"github.com/eotlabs/eot-cloud-core/internal/push"
)

type fakeAPI struct {
	mu         sync.Mutex
	devices    []convert.VendorDevice
	states     map[string]convert.VendorState
	cached     map[string]convert.VendorState
	syncErr    error
	queryErr   error
	queriedIDs []string
	syncCalls  int
}

var _ cloud.API = (*fakeAPI)(nil)

func (f *fakeAPI) SyncDevices(context.Context) ([]convert.VendorDevice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.syncCalls++
	if f.syncErr != nil {
		return nil, f.syncErr
	}
	return f.devices, nil
}

func (f *fakeAPI) QueryStates(_ context.Context, ids []string) (map[string]convert.VendorState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queriedIDs = ids
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	out := make(map[string]convert.VendorState)
	for _, id := range ids {
		if st, ok := f.states[id]; ok {
			out[id] = st
		}
	}
	return out, nil
}

func (f *fakeAPI) Execute(context.Context, []string, []cloud.Execution) ([]cloud.CommandResult, error) {
	return nil, nil
}

func (f *fakeAPI) CachedState(id string) (convert.VendorState, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.cached[id]
	return st, ok
}

func (f *fakeAPI) InvalidateCached(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.cached, id)
}

type publishRecord struct {
	topic   string
	payload string
}

type fakePusher struct {
	mu        sync.Mutex
	events    chan push.Event
	published []publishRecord
	confirm   bool
}

var _ Pusher = (*fakePusher)(nil)

func newFakePusher() *fakePusher {
	return &fakePusher{events: make(chan push.Event, 256), confirm: true}
}

func (f *fakePusher) Publish(topic string, payload []byte) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.confirm {
		return false
	}
	f.published = append(f.published, publishRecord{topic: topic, payload: string(payload)})
	return true
}

func (f *fakePusher) Events() <-chan push.Event {
	return f.events
}

func (f *fakePusher) records() []publishRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]publishRecord, len(f.published))
	copy(out, f.published)
	return out
}

type fakeInvalidator struct{ calls int }

func (f *fakeInvalidator) Invalidate() { f.calls++ }

func vendorFixtures() []convert.VendorDevice {
	return []convert.VendorDevice{
		{
			ID: "alice-hw01-r1", Type: convert.VendorTypeSwitch,
			Name:   convert.VendorName{Name: "Desk"},
			Traits: []string{convert.TraitOnOff}, WillReportState: true,
		},
		{
			ID: "alice-hw02-dimmer", Type: convert.VendorTypeLight,
			Name:   convert.VendorName{Name: "Lamp"},
			Traits: []string{convert.TraitOnOff, convert.TraitBrightness, convert.TraitColor},
			WillReportState: true,
		},
		{
			ID: "alice-hw03-c0", Type: convert.VendorTypeCurtain,
			Name:   convert.VendorName{Name: "Curtain"},
			Traits: []string{convert.TraitOpenClose}, WillReportState: true,
		},
		{
			ID: "alice-hw04-fan", Type: convert.VendorTypeFan,
			Name:   convert.VendorName{Name: "Fan"},
			Traits: []string{convert.TraitOnOff, convert.TraitFanSpeed}, WillReportState: true,
		},
		{
			ID: "alice-hw05-s9", Type: convert.VendorTypeScene,
			Name:   convert.VendorName{Name: "Movie Night"},
			Traits: []string{convert.TraitScene},
		},
		{
			ID: "alice-hw06-motionSensor", Type: convert.VendorTypeSensor,
			Name:   convert.VendorName{Name: "Hall Motion"},
			Traits: []string{convert.TraitOccupancy},
		},
	}
}

func newTestCoordinator(api *fakeAPI, pusher *fakePusher) (*Coordinator, *device.Store) {
	store := device.NewStore()
	c := NewCoordinator(
		config.SyncConfig{Interval: time.Hour, EventBuffer: 256},
		"alice", api, pusher, store,
	)
	return c, store
}

func mustRefresh(t *testing.T, c *Coordinator) {
	t.Helper()
	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error: %v", err)
	}
}

func TestRefreshPopulatesStore(t *testing.T) {
	api := &fakeAPI{
		devices: vendorFixtures(),
		states: map[string]convert.VendorState{
			"alice-hw01-r1":     {"on": true, "online": true},
			"alice-hw02-dimmer": {"on": true, "brightness": float64(60)},
		},
	}
	c, store := newTestCoordinator(api, newFakePusher())

	mustRefresh(t, c)

	if store.Len() != 6 {
		t.Fatalf("store holds %d devices, want 6", store.Len())
	}
	if store.CategoryLen(device.CategorySwitch) != 1 ||
		store.CategoryLen(device.CategoryScene) != 1 ||
		store.CategoryLen(device.CategoryMotionSensor) != 1 {
		t.Errorf("bucketing wrong: %+v", c.DevicesByCategory())
	}

	// Only reporting devices are batch-queried
	if len(api.queriedIDs) != 4 {
		t.Errorf("queried %v, want the 4 reporting devices", api.queriedIDs)
	}

	d, err := store.Get("alice-hw01-r1")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if d.State[device.StateKeyState] != device.StateOn {
		t.Errorf("queried state not merged: %v", d.State)
	}

	// Non-reporting devices keep converter defaults
	scene, _ := store.Get("alice-hw05-s9")
	if scene.State[device.StateKeyState] != device.StateOff {
		t.Errorf("scene default = %v, want off", scene.State)
	}
}

func TestRefreshIsIdempotent(t *testing.T) {
	api := &fakeAPI{devices: vendorFixtures()}
	c, store := newTestCoordinator(api, newFakePusher())

	mustRefresh(t, c)
	mustRefresh(t, c)

	if store.Len() != 6 {
		t.Errorf("double refresh changed store size: %d", store.Len())
	}
}

func TestRefreshFailureKeepsStaleState(t *testing.T) {
	api := &fakeAPI{devices: vendorFixtures()}
	c, store := newTestCoordinator(api, newFakePusher())
	mustRefresh(t, c)

	api.mu.Lock()
	api.syncErr = cloud.ErrCommunication
	api.mu.Unlock()

	if err := c.Refresh(context.Background()); !errors.Is(err, cloud.ErrCommunication) {
		t.Fatalf("Refresh() error = %v, want ErrCommunication", err)
	}
	if store.Len() != 6 {
		t.Errorf("failed refresh dropped state: %d devices", store.Len())
	}
}

func TestRefreshQueryFailureKeepsStaleState(t *testing.T) {
	api := &fakeAPI{devices: vendorFixtures()}
	c, store := newTestCoordinator(api, newFakePusher())
	mustRefresh(t, c)

	api.mu.Lock()
	api.queryErr = cloud.ErrAPI
	api.mu.Unlock()

	if err := c.Refresh(context.Background()); !errors.Is(err, cloud.ErrAPI) {
		t.Fatalf("Refresh() error = %v, want ErrAPI", err)
	}
	if store.Len() != 6 {
		t.Errorf("failed query dropped state: %d devices", store.Len())
	}
}

func TestRefreshAuthFailureInvalidatesToken(t *testing.T) {
	api := &fakeAPI{syncErr: fmt.Errorf("%w: rejected", auth.ErrAuthentication)}
	c, _ := newTestCoordinator(api, newFakePusher())

	inv := &fakeInvalidator{}
	c.SetTokenInvalidator(inv)

	if err := c.Refresh(context.Background()); !errors.Is(err, auth.ErrAuthentication) {
		t.Fatalf("Refresh() error = %v, want auth error", err)
	}
	if inv.calls != 1 {
		t.Errorf("Invalidate() called %d times, want 1", inv.calls)
	}
}

func TestRefreshOverlaysCachedCommandFragment(t *testing.T) {
	// QUERY reports off, but a command fragment cached after the query
	// says on; the fresher fragment wins.
	api := &fakeAPI{
		devices: vendorFixtures(),
		states: map[string]convert.VendorState{
			"alice-hw01-r1": {"on": false},
		},
		cached: map[string]convert.VendorState{
			"alice-hw01-r1": {"on": true},
		},
	}
	c, store := newTestCoordinator(api, newFakePusher())

	mustRefresh(t, c)

	d, _ := store.Get("alice-hw01-r1")
	if d.State[device.StateKeyState] != device.StateOn {
		t.Errorf("cached fragment not overlaid: %v", d.State)
	}
}

func TestRefreshSkipsMalformedQueryFragment(t *testing.T) {
	api := &fakeAPI{
		devices: vendorFixtures(),
		states: map[string]convert.VendorState{
			"alice-hw01-r1":     {"on": "definitely", "online": true},
			"alice-hw02-dimmer": {"on": true},
		},
	}
	c, store := newTestCoordinator(api, newFakePusher())

	mustRefresh(t, c)

	// Only the wrong-shaped field is dropped; its siblings still apply.
	sw, _ := store.Get("alice-hw01-r1")
	if sw.State[device.StateKeyAvailable] != true {
		t.Errorf("good field lost beside bad one: %v", sw.State)
	}
	if _, ok := sw.State[device.StateKeyState]; ok {
		t.Errorf("wrong-shaped on field applied: %v", sw.State)
	}

	lamp, _ := store.Get("alice-hw02-dimmer")
	if lamp.State[device.StateKeyState] != device.StateOn {
		t.Errorf("good fragment lost alongside bad one: %v", lamp.State)
	}
}

func TestSubscribeNotifiedOnRefresh(t *testing.T) {
	api := &fakeAPI{devices: vendorFixtures()}
	c, _ := newTestCoordinator(api, newFakePusher())

	var notified int
	c.Subscribe(func() { notified++ })

	mustRefresh(t, c)
	mustRefresh(t, c)

	if notified != 2 {
		t.Errorf("notified %d times, want 2", notified)
	}
}

func pushFrame(t *testing.T, data string) push.Event {
	t.Helper()
	return push.Event{
		Topic:   push.UpdateResponseTopic("alice"),
		Payload: []byte(`{"body":{"data":` + data + `}}`),
	}
}

func TestApplyPushEventRelay(t *testing.T) {
	api := &fakeAPI{devices: vendorFixtures()}
	c, store := newTestCoordinator(api, newFakePusher())
	mustRefresh(t, c)

	c.applyPushEvent(context.Background(), pushFrame(t, `{"d_id":"hw01","r1":"1"}`))

	d, _ := store.Get("alice-hw01-r1")
	if d.State[device.StateKeyState] != device.StateOn {
		t.Errorf("relay push not applied: %v", d.State)
	}

	c.applyPushEvent(context.Background(), pushFrame(t, `{"d_id":"hw01","r1":"0"}`))
	d, _ = store.Get("alice-hw01-r1")
	if d.State[device.StateKeyState] != device.StateOff {
		t.Errorf("relay off push not applied: %v", d.State)
	}
}

func TestApplyPushEventCurtain(t *testing.T) {
	api := &fakeAPI{devices: vendorFixtures()}
	c, store := newTestCoordinator(api, newFakePusher())
	mustRefresh(t, c)

	c.applyPushEvent(context.Background(), pushFrame(t, `{"d_id":"hw03","c0":"1"}`))

	d, _ := store.Get("alice-hw03-c0")
	if d.State[device.StateKeyPosition] != 100 {
		t.Errorf("position = %v, want 100", d.State[device.StateKeyPosition])
	}
	if d.State[device.StateKeyClosed] != false {
		t.Errorf("is_closed = %v, want false", d.State[device.StateKeyClosed])
	}

	c.applyPushEvent(context.Background(), pushFrame(t, `{"d_id":"hw03","c0":"0"}`))
	d, _ = store.Get("alice-hw03-c0")
	if d.State[device.StateKeyPosition] != 0 || d.State[device.StateKeyClosed] != true {
		t.Errorf("close push not applied: %v", d.State)
	}
}

func TestApplyPushEventDimmer(t *testing.T) {
	api := &fakeAPI{devices: vendorFixtures()}
	c, store := newTestCoordinator(api, newFakePusher())
	mustRefresh(t, c)

	// The dimmer key carries on/off; brightNess (0-255) and lightType
	// ride alongside it in the same frame.
	c.applyPushEvent(context.Background(), pushFrame(t, `{"d_id":"hw02","dimmer":"1","brightNess":"200","lightType":"4"}`))

	d, _ := store.Get("alice-hw02-dimmer")
	if d.State[device.StateKeyState] != device.StateOn {
		t.Errorf("state = %v, want on", d.State[device.StateKeyState])
	}
	if d.State[device.StateKeyBrightness] != 78 {
		t.Errorf("brightness = %v, want rounded 78", d.State[device.StateKeyBrightness])
	}
	if d.State[device.StateKeyColorTemp] != 4400 {
		t.Errorf("color_temp = %v, want bucket 4's 4400", d.State[device.StateKeyColorTemp])
	}

	// Off frame without companion keys leaves the levels untouched
	c.applyPushEvent(context.Background(), pushFrame(t, `{"d_id":"hw02","dimmer":"0"}`))
	d, _ = store.Get("alice-hw02-dimmer")
	if d.State[device.StateKeyState] != device.StateOff {
		t.Errorf("state = %v, want off", d.State[device.StateKeyState])
	}
	if d.State[device.StateKeyBrightness] != 78 {
		t.Errorf("brightness dropped by an off frame: %v", d.State[device.StateKeyBrightness])
	}

	// Out-of-range brightNess collapses to 0
	c.applyPushEvent(context.Background(), pushFrame(t, `{"d_id":"hw02","dimmer":"1","brightNess":"999"}`))
	d, _ = store.Get("alice-hw02-dimmer")
	if d.State[device.StateKeyBrightness] != 0 {
		t.Errorf("out-of-range brightNess = %v, want 0", d.State[device.StateKeyBrightness])
	}
}

func TestApplyPushEventFanAndMotion(t *testing.T) {
	api := &fakeAPI{devices: vendorFixtures()}
	c, store := newTestCoordinator(api, newFakePusher())
	mustRefresh(t, c)

	// The fan key carries on/off; fanspeed carries the step
	c.applyPushEvent(context.Background(), pushFrame(t, `{"d_id":"hw04","fan":"1","fanspeed":"3"}`))
	fan, _ := store.Get("alice-hw04-fan")
	if fan.State[device.StateKeyState] != device.StateOn {
		t.Errorf("fan state = %v, want on", fan.State[device.StateKeyState])
	}
	if fan.State[device.StateKeyFanPercent] != 75 {
		t.Errorf("fan percentage = %v, want 75", fan.State[device.StateKeyFanPercent])
	}

	// Off frame without fanspeed keeps the last known speed
	c.applyPushEvent(context.Background(), pushFrame(t, `{"d_id":"hw04","fan":"0"}`))
	fan, _ = store.Get("alice-hw04-fan")
	if fan.State[device.StateKeyState] != device.StateOff {
		t.Errorf("fan state = %v, want off", fan.State[device.StateKeyState])
	}
	if fan.State[device.StateKeyFanPercent] != 75 {
		t.Errorf("fan speed dropped by an off frame: %v", fan.State[device.StateKeyFanPercent])
	}

	c.applyPushEvent(context.Background(), pushFrame(t, `{"d_id":"hw06","motionSensor":"1"}`))
	motion, _ := store.Get("alice-hw06-motionSensor")
	if motion.State[device.StateKeyState] != device.StateDetected {
		t.Errorf("motion state = %v, want detected", motion.State)
	}
}

func TestApplyPushEventClassPriority(t *testing.T) {
	api := &fakeAPI{devices: vendorFixtures()}
	c, store := newTestCoordinator(api, newFakePusher())
	mustRefresh(t, c)

	// Relay keys outrank the dimmer key when both are present
	c.applyPushEvent(context.Background(), pushFrame(t, `{"d_id":"hw02","rall":"1","dimmer":"1","brightNess":"200"}`))

	d, _ := store.Get("alice-hw02-dimmer")
	if _, ok := d.State[device.StateKeyBrightness]; ok {
		t.Errorf("dimmer key applied despite relay class present: %v", d.State)
	}
}

func TestApplyPushEventUnknownDeviceIsNoOp(t *testing.T) {
	api := &fakeAPI{devices: vendorFixtures()}
	c, store := newTestCoordinator(api, newFakePusher())
	mustRefresh(t, c)

	before := store.Len()
	c.applyPushEvent(context.Background(), pushFrame(t, `{"d_id":"ghost","r1":"1"}`))

	if store.Len() != before {
		t.Errorf("unknown-device push changed store size")
	}
	if _, err := store.Get("alice-ghost-r1"); !errors.Is(err, device.ErrDeviceNotFound) {
		t.Errorf("push materialized a device ahead of the poll")
	}
}

func TestApplyPushEventMalformedFrames(t *testing.T) {
	api := &fakeAPI{devices: vendorFixtures()}
	c, store := newTestCoordinator(api, newFakePusher())
	mustRefresh(t, c)

	frames := [][]byte{
		[]byte(`not json`),
		[]byte(`{"body":{}}`),
		[]byte(`{"body":{"data":{"r1":"1"}}}`),
		[]byte(`{"body":{"data":{"d_id":"hw01","mystery":"1"}}}`),
	}
	for _, payload := range frames {
		c.applyPushEvent(context.Background(), push.Event{Topic: "t", Payload: payload})
	}

	d, _ := store.Get("alice-hw01-r1")
	if d.State[device.StateKeyState] != device.StateUnknown {
		t.Errorf("malformed frame mutated state: %v", d.State)
	}
}

func TestApplyPushEventBareFrame(t *testing.T) {
	// Frames without the body envelope are accepted as the data object
	api := &fakeAPI{devices: vendorFixtures()}
	c, store := newTestCoordinator(api, newFakePusher())
	mustRefresh(t, c)

	c.applyPushEvent(context.Background(), push.Event{
		Topic:   "t",
		Payload: []byte(`{"d_id":"hw01","r1":"1"}`),
	})

	d, _ := store.Get("alice-hw01-r1")
	if d.State[device.StateKeyState] != device.StateOn {
		t.Errorf("bare frame not applied: %v", d.State)
	}
}

func TestRunLoopAppliesPushEvents(t *testing.T) {
	api := &fakeAPI{devices: vendorFixtures()}
	pusher := newFakePusher()
	c, store := newTestCoordinator(api, pusher)

	refreshed := make(chan struct{}, 16)
	c.Subscribe(func() {
		select {
		case refreshed <- struct{}{}:
		default:
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Start(ctx)
	defer c.Stop()

	select {
	case <-refreshed:
	case <-time.After(5 * time.Second):
		t.Fatalf("initial refresh never completed")
	}

	// Flood the channel while readers hammer the store
	var wg sync.WaitGroup
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				_, _ = store.Get("alice-hw01-r1")
				_ = store.AllByCategory()
			}
		}()
	}
	for i := 0; i < 100; i++ {
		pusher.events <- pushFrame(t, `{"d_id":"hw01","r1":"1"}`)
	}
	wg.Wait()

	deadline := time.After(5 * time.Second)
	for {
		d, err := store.Get("alice-hw01-r1")
		if err == nil && d.State[device.StateKeyState] == device.StateOn {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("push events never applied")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestStartTwiceAndStopIdempotent(t *testing.T) {
	api := &fakeAPI{devices: vendorFixtures()}
	c, _ := newTestCoordinator(api, newFakePusher())

	ctx := context.Background()
	c.Start(ctx)
	c.Start(ctx) // second start is a no-op
	c.Stop()
	c.Stop() // second stop is a no-op
}
