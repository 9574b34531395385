package internal

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sweeney/power-monitor/internal/command"
	"github.com/sweeney/power-monitor/internal/monitor"
	"github.com/sweeney/power-monitor/internal/mqtt"
	"github.com/sweeney/power-monitor/internal/notify"
	"github.com/sweeney/power-monitor/internal/platform"
	"github.com/sweeney/power-monitor/internal/power"
	"github.com/sweeney/power-monitor/internal/probe"
	"github.com/sweeney/power-monitor/internal/registry"
	"github.com/sweeney/power-monitor/internal/status"
	"github.com/sweeney/power-monitor/internal/web"
)

var startTime = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

type harness struct {
	adapter   *probe.FakeAdapter
	probe     *probe.Probe
	registry  *registry.Registry
	sender    *notify.FakeSender
	publisher *mqtt.FakePublisher
	tracker   *status.Tracker
	sampler   *monitor.Sampler
	now       time.Time
}

func newHarness(t *testing.T, subscribers []int64, results ...probe.Result) *harness {
	t.Helper()
	h := &harness{now: startTime}

	token := "123456:ABC"
	st := registry.DefaultState(string(platform.Linux))
	st.BotToken = &token
	st.AdminIDs = []int64{100}
	st.RegisteredIDs = subscribers
	h.registry = registry.New(filepath.Join(t.TempDir(), "data.json"), st)
	if err := h.registry.Save(); err != nil {
		t.Fatalf("save: %v", err)
	}

	h.adapter = probe.NewFakeAdapter(results...)
	h.probe = probe.New(platform.Linux, h.adapter)
	h.sender = notify.NewFakeSender()
	h.publisher = mqtt.NewFakePublisher()
	h.tracker = status.NewTracker(startTime, status.Config{Platform: "linux", PollSeconds: 5})
	h.sampler = monitor.New(h.probe, h.registry, notify.New(h.sender, time.Second), monitor.Options{
		Interval:  5 * time.Second,
		Publisher: h.publisher,
		Tracker:   h.tracker,
		Now:       func() time.Time { return h.now },
	})
	return h
}

// tick runs one sampler tick and advances the fake clock.
func (h *harness) tick() *power.Event {
	ev := h.sampler.Tick(context.Background())
	h.now = h.now.Add(5 * time.Second)
	return ev
}

// TestIntegrationOutageRoundTrip drives an outage through the whole chain:
// baseline ON, mains lost, a tick with no data, mains restored.
func TestIntegrationOutageRoundTrip(t *testing.T) {
	h := newHarness(t, []int64{1, 2, 3},
		probe.Plugged(true),
		probe.Plugged(true),
		probe.Plugged(false),
		probe.Unavailable(),
		probe.Plugged(false),
		probe.Plugged(true),
	)

	var events []*power.Event
	for i := 0; i < 6; i++ {
		if ev := h.tick(); ev != nil {
			events = append(events, ev)
		}
	}

	if len(events) != 2 {
		t.Fatalf("expected 2 transitions, got %d", len(events))
	}
	if events[0].Type != power.EventPowerOff || events[1].Type != power.EventPowerOn {
		t.Errorf("transitions: got %s, %s", events[0].Type, events[1].Type)
	}

	want := []notify.Message{
		{Recipient: 1, Text: monitor.MessageOff},
		{Recipient: 2, Text: monitor.MessageOff},
		{Recipient: 3, Text: monitor.MessageOff},
		{Recipient: 1, Text: monitor.MessageOn},
		{Recipient: 2, Text: monitor.MessageOn},
		{Recipient: 3, Text: monitor.MessageOn},
	}
	if got := h.sender.Messages(); !reflect.DeepEqual(got, want) {
		t.Errorf("deliveries:\n got %v\nwant %v", got, want)
	}

	if got := h.publisher.EventTypes(); !reflect.DeepEqual(got, []power.EventType{power.EventPowerOff, power.EventPowerOn}) {
		t.Errorf("mqtt events: got %v", got)
	}

	snap := h.tracker.Snapshot()
	if snap.State != power.StateOn {
		t.Errorf("tracker state: got %s, want ON", snap.State)
	}
	if snap.Counts.On != 1 || snap.Counts.Off != 1 {
		t.Errorf("tracker counts: got %+v", snap.Counts)
	}
}

func TestIntegrationNoNotificationAtStartup(t *testing.T) {
	h := newHarness(t, []int64{1}, probe.Plugged(false))

	for i := 0; i < 3; i++ {
		if ev := h.tick(); ev != nil {
			t.Fatalf("tick %d: unexpected event %s", i, ev.Type)
		}
	}
	if n := h.sender.AttemptCount(); n != 0 {
		t.Errorf("expected no sends, got %d", n)
	}
	if !h.tracker.Snapshot().Baselined {
		t.Error("tracker should report baselined")
	}
}

func TestIntegrationFailedRecipientDoesNotBlockOthers(t *testing.T) {
	h := newHarness(t, []int64{1, 2, 3}, probe.Plugged(true), probe.Plugged(false))
	h.sender.Fail[2] = errors.New("chat not found")
	h.sender.Block[3] = true

	h.tick()
	done := make(chan struct{})
	go func() {
		h.tick()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("tick did not complete with a blocking recipient")
	}

	if got := h.sender.Messages(); !reflect.DeepEqual(got, []notify.Message{{Recipient: 1, Text: monitor.MessageOff}}) {
		t.Errorf("deliveries: got %v", got)
	}
	if n := h.sender.AttemptCount(); n != 3 {
		t.Errorf("attempts: got %d, want 3", n)
	}
}

func TestIntegrationAdminModeNotifiesAdminsOnly(t *testing.T) {
	h := newHarness(t, []int64{1, 2}, probe.Plugged(true), probe.Plugged(false))
	if err := h.registry.SetMode(registry.ModeAdmin); err != nil {
		t.Fatal(err)
	}

	h.tick()
	h.tick()

	if got := h.sender.Messages(); !reflect.DeepEqual(got, []notify.Message{{Recipient: 100, Text: monitor.MessageOff}}) {
		t.Errorf("deliveries: got %v", got)
	}
}

// TestIntegrationRegisterDuringSampling races command handling against a
// running sampler. Every registration must be in memory and on disk.
func TestIntegrationRegisterDuringSampling(t *testing.T) {
	h := newHarness(t, nil, probe.Plugged(true))
	d := command.New(h.registry, h.probe, nil)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for ctx.Err() == nil {
			h.sampler.Tick(ctx)
		}
	}()

	var cmds sync.WaitGroup
	for id := int64(1); id <= 20; id++ {
		cmds.Add(1)
		go func(id int64) {
			defer cmds.Done()
			reply := d.Handle(ctx, command.Request{ChatID: id, Command: command.Register})
			if !strings.HasPrefix(reply.Text, command.TextRegistered) {
				t.Errorf("chat %d: got %q", id, reply.Text)
			}
		}(id)
	}
	cmds.Wait()
	cancel()
	wg.Wait()

	if n := len(h.registry.Subscribers()); n != 20 {
		t.Errorf("subscribers: got %d, want 20", n)
	}
	reopened, err := registry.Open(h.registry.Path())
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(reopened.Subscribers(), h.registry.Subscribers()) {
		t.Errorf("file does not match memory: %v vs %v", reopened.Subscribers(), h.registry.Subscribers())
	}
}

func TestIntegrationStatusCommandAndPage(t *testing.T) {
	pct := 87.0
	h := newHarness(t, []int64{1}, probe.Result{Snapshot: power.Snapshot{Plugged: power.StateOn, Percent: &pct}})
	h.tick()

	d := command.New(h.registry, h.probe, nil)
	reply := d.Handle(context.Background(), command.Request{ChatID: 1, Command: command.Status})
	if want := "🔋 Current status: Power ON - Battery: 87%"; reply.Text != want {
		t.Errorf("status reply: got %q, want %q", reply.Text, want)
	}

	srv := httptest.NewServer(web.New("", h.tracker).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/index.json")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var body status.StatusJSON
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status.Power.State != "ON" {
		t.Errorf("page state: got %q, want ON", body.Status.Power.State)
	}
}
