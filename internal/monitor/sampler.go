// Package monitor runs the polling loop: it samples the probe on every tick,
// feeds the result to a power.Detector, and announces confirmed transitions
// to the current recipients.
package monitor

import (
	"context"
	"time"

	"github.com/op/go-logging"

	"github.com/sweeney/power-monitor/internal/mqtt"
	"github.com/sweeney/power-monitor/internal/notify"
	"github.com/sweeney/power-monitor/internal/power"
	"github.com/sweeney/power-monitor/internal/registry"
	"github.com/sweeney/power-monitor/internal/status"
)

var log = logging.MustGetLogger("monitor")

// Notification texts, one per transition direction.
const (
	MessageOn  = "🔌 Power is ON now"
	MessageOff = "⚡ Power is OFF now"
)

// Message returns the notification text for an event type.
func Message(t power.EventType) string {
	if t == power.EventPowerOn {
		return MessageOn
	}
	return MessageOff
}

// Prober produces one snapshot per call; ok is false when no source had data.
type Prober interface {
	Sample(ctx context.Context) (snap power.Snapshot, ok bool)
}

// Recipients is the read side of the registry the sampler needs.
type Recipients interface {
	Recipients() []int64
	Mode() registry.Mode
}

// Notifier delivers a message to a recipient list.
type Notifier interface {
	Notify(ctx context.Context, recipients []int64, text string) []notify.Result
}

// Options holds the optional collaborators and tuning of a Sampler.
type Options struct {
	Interval   time.Duration
	Heartbeat  time.Duration
	Publisher  mqtt.Publisher
	MQTTStatus mqtt.ConnectionStatus
	Tracker    *status.Tracker
	Now        func() time.Time
}

// Sampler owns the previous plugged state. Only the goroutine running Run
// (or a test calling Tick directly) touches the detector.
type Sampler struct {
	probe      Prober
	recipients Recipients
	notifier   Notifier
	opts       Options

	detector *power.Detector
	interval chan time.Duration
}

// New creates a Sampler. A zero Interval selects the registry default.
func New(probe Prober, recipients Recipients, notifier Notifier, opts Options) *Sampler {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Interval <= 0 {
		opts.Interval = registry.DefaultPollInterval * time.Second
	}
	return &Sampler{
		probe:      probe,
		recipients: recipients,
		notifier:   notifier,
		opts:       opts,
		detector:   power.NewDetector(opts.Now()),
		interval:   make(chan time.Duration, 1),
	}
}

// SetInterval changes the poll interval. It takes effect after the tick in
// progress, if any. Non-positive values are ignored.
func (s *Sampler) SetInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	for {
		select {
		case s.interval <- d:
			return
		default:
		}
		// Replace a pending change nobody has picked up yet.
		select {
		case <-s.interval:
		default:
		}
	}
}

// Run samples immediately and then on every interval until ctx is done.
// Cancellation is observed between ticks only.
func (s *Sampler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	log.Infof("sampling every %v", s.opts.Interval)
	s.Tick(ctx)
	return s.loop(ctx, ticker.C, ticker.Reset)
}

func (s *Sampler) loop(ctx context.Context, tick <-chan time.Time, reset func(time.Duration)) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case d := <-s.interval:
			reset(d)
			log.Infof("poll interval now %v", d)
		case <-tick:
			if ctx.Err() != nil {
				return nil
			}
			s.Tick(ctx)
		}
	}
}

// Tick performs one sample and returns the transition it confirmed, if any.
// A tick runs to completion even if ctx is cancelled meanwhile. Panics are
// recovered and logged.
func (s *Sampler) Tick(ctx context.Context) (event *power.Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("tick failed: %v", r)
		}
	}()
	ctx = context.WithoutCancel(ctx)
	now := s.opts.Now()

	in := power.Input{Time: now}
	if snap, ok := s.probe.Sample(ctx); ok {
		in.Snapshot = &snap
	}

	event = s.detector.Process(in)
	if in.Snapshot != nil && !in.Snapshot.Plugged.Known() {
		log.Debugf("sample from %s has unknown plugged state", in.Snapshot.Source)
	}

	recipients := s.recipients.Recipients()
	s.updateTracker(in, len(recipients))

	if event != nil {
		s.announce(ctx, *event, recipients)
	}
	s.heartbeat(now)
	return event
}

func (s *Sampler) announce(ctx context.Context, event power.Event, recipients []int64) {
	log.Infof("power %s (source %s, battery %s)", event.State, event.Snapshot.Source, FormatPercent(event.Snapshot.Percent))

	results := s.notifier.Notify(ctx, recipients, Message(event.Type))
	if failed := notify.Failed(results); len(failed) > 0 {
		log.Warningf("%d of %d notifications failed", len(failed), len(results))
	}

	if s.opts.Publisher != nil {
		if err := s.opts.Publisher.Publish(event); err != nil {
			log.Warningf("mqtt publish: %v", err)
		}
	}
}

func (s *Sampler) heartbeat(now time.Time) {
	if s.opts.Publisher == nil {
		return
	}
	hb := s.detector.CheckHeartbeat(now, s.opts.Heartbeat)
	if hb == nil {
		return
	}
	log.Debugf("heartbeat: uptime=%v on=%d off=%d", hb.Uptime.Truncate(time.Second), hb.Counts.On, hb.Counts.Off)

	ev := mqtt.SystemEvent{Timestamp: hb.Timestamp, Event: "HEARTBEAT"}
	if s.opts.Tracker != nil {
		ev.RawPayload = status.FormatStatusEvent(s.opts.Tracker.Snapshot(), "HEARTBEAT", "")
	}
	if err := s.opts.Publisher.PublishSystem(ev); err != nil {
		log.Warningf("heartbeat publish: %v", err)
	}
}

func (s *Sampler) updateTracker(in power.Input, recipients int) {
	t := s.opts.Tracker
	if t == nil {
		return
	}
	t.Update(in.Snapshot, s.detector.CurrentState(), s.detector.IsBaselined(), s.detector.EventCountsSnapshot(), in.Time)
	t.SetRecipients(string(s.recipients.Mode()), recipients)
	if s.opts.MQTTStatus != nil {
		t.SetMQTTConnected(s.opts.MQTTStatus.IsConnected())
	}
}
