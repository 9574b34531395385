// Command power-monitor watches the host's power supply and tells Telegram
// subscribers when external power is lost or restored.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/op/go-logging"
	"golang.org/x/sync/errgroup"

	"github.com/sweeney/power-monitor/internal/command"
	"github.com/sweeney/power-monitor/internal/config"
	"github.com/sweeney/power-monitor/internal/gpio"
	"github.com/sweeney/power-monitor/internal/monitor"
	"github.com/sweeney/power-monitor/internal/mqtt"
	"github.com/sweeney/power-monitor/internal/notify"
	"github.com/sweeney/power-monitor/internal/platform"
	"github.com/sweeney/power-monitor/internal/probe"
	"github.com/sweeney/power-monitor/internal/reconfig"
	"github.com/sweeney/power-monitor/internal/registry"
	"github.com/sweeney/power-monitor/internal/status"
	"github.com/sweeney/power-monitor/internal/telegram"
	"github.com/sweeney/power-monitor/internal/web"
)

var log = logging.MustGetLogger("main")

// InitLogger routes every package logger to stdout at logLevel.
func InitLogger(logLevel string) error {
	return initLogger(os.Stdout, logLevel)
}

func initLogger(w io.Writer, logLevel string) error {
	baseBackend := logging.NewLogBackend(w, "", 0)
	format := logging.MustStringFormatter(
		`%{time:2006-01-02 15:04:05} %{level:.5s} %{module} %{message}`,
	)
	backendFormatter := logging.NewBackendFormatter(baseBackend, format)

	backendLeveled := logging.AddModuleLevel(backendFormatter)
	logLevelCode, err := logging.LogLevel(logLevel)
	if err != nil {
		return err
	}
	backendLeveled.SetLevel(logLevelCode, "")

	logging.SetBackend(backendLeveled)
	return nil
}

func main() {
	configPath := flag.String("config", "", "Config file (yaml, json or toml)")
	dataFile := flag.String("data", "", "State file (overrides data_file)")
	logLevel := flag.String("log-level", "", "Log level (overrides log_level)")
	printState := flag.Bool("print-state", false, "Print current power state and exit")

	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
	if *dataFile != "" {
		cfg.DataFile = *dataFile
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if err := InitLogger(cfg.LogLevel); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: log level: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg, *printState); err != nil {
		if errors.Is(err, config.ErrConfigMissing) {
			fmt.Fprintln(os.Stderr, config.EnvHelp)
		}
		log.Fatalf("fatal: %v", err)
	}
}

func run(cfg config.Config, printState bool) error {
	plat := platform.Detect()

	chain, closers, err := buildProbe(plat, cfg)
	if err != nil {
		return err
	}
	defer func() {
		for _, c := range closers {
			c.Close()
		}
	}()

	if printState {
		snap, ok := chain.Sample(context.Background())
		fmt.Println(monitor.FormatStatus(snap, ok))
		return nil
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	ctx, cancel := context.WithCancelCause(context.Background())
	defer cancel(nil)
	go watchSignals(ctx, cancel, sigCh)

	prompter := config.NewConsolePrompter()
	reg, err := loadRegistry(ctx, cfg.DataFile, plat, prompter)
	if errors.Is(err, context.Canceled) {
		log.Infof("setup interrupted (%s)", shutdownReason(ctx))
		return nil
	}
	if err != nil {
		return err
	}

	bot, err := telegram.New(reg.State().Token(), cfg.DeliveryTimeout)
	if err != nil {
		return fmt.Errorf("init telegram: %w", err)
	}
	if ctx.Err() != nil {
		log.Infof("interrupted during startup (%s)", shutdownReason(ctx))
		return nil
	}
	notifier := notify.New(bot, cfg.DeliveryTimeout)

	tracker := status.NewTracker(time.Now(), status.Config{
		Platform:    string(plat),
		Adapters:    chain.Adapters(),
		PollSeconds: reg.PollInterval(),
		HeartbeatMs: cfg.Heartbeat.Milliseconds(),
		Broker:      cfg.MQTT.Broker,
		HTTPAddr:    cfg.HTTP.Addr,
	})
	tracker.SetRecipients(string(reg.Mode()), len(reg.Recipients()))

	var (
		publisher  mqtt.Publisher
		mqttStatus mqtt.ConnectionStatus
	)
	if cfg.MQTT.Broker != "" {
		p, err := mqtt.NewRealPublisher(mqtt.Options{
			Broker:     cfg.MQTT.Broker,
			ClientID:   cfg.MQTT.ClientID,
			Username:   cfg.MQTT.Username,
			Password:   cfg.MQTT.Password,
			BufferSize: cfg.MQTT.BufferSize,
		})
		if err != nil {
			log.Warningf("mqtt disabled: %v", err)
		} else {
			publisher, mqttStatus = p, p
			defer p.Close()
		}
	}

	publishLifecycle(publisher, mqttStatus, tracker, "STARTUP", "")

	sampler := monitor.New(chain, reg, notifier, monitor.Options{
		Interval:   pollInterval(reg.PollInterval()),
		Heartbeat:  cfg.Heartbeat,
		Publisher:  publisher,
		MQTTStatus: mqttStatus,
		Tracker:    tracker,
	})

	runner := reconfig.NewRunner(func(ctx context.Context) (registry.Update, error) {
		return prompter.Reconfigure(ctx, reg.State())
	})
	apply := func(u registry.Update) error {
		err := reg.Reconfigure(u)
		sampler.SetInterval(pollInterval(reg.PollInterval()))
		tracker.SetPollInterval(reg.PollInterval())
		tracker.SetRecipients(string(reg.Mode()), len(reg.Recipients()))
		return err
	}

	dispatcher := command.New(reg, chain, runner)

	log.Infof("started: platform=%s sources=%v mode=%s poll=%ds subscribers=%d",
		plat, chain.Adapters(), reg.Mode(), reg.PollInterval(), len(reg.Subscribers()))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sampler.Run(gctx) })
	g.Go(func() error { return runner.Run(gctx, apply) })
	g.Go(func() error { return bot.Run(gctx, dispatcher) })
	if cfg.HTTP.Addr != "" {
		srv := web.New(cfg.HTTP.Addr, tracker)
		g.Go(func() error { return srv.Run(gctx) })
		log.Infof("http status server listening on %s", cfg.HTTP.Addr)
	}

	err = g.Wait()
	publishLifecycle(publisher, mqttStatus, tracker, "SHUTDOWN", shutdownReason(ctx))
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// setupPrompter runs the first-run console questions.
type setupPrompter interface {
	Setup(ctx context.Context, platform string) (registry.State, error)
}

// loadRegistry opens the state file. When it does not exist the initial
// state comes from the bootstrap environment, or from the console if that
// is not set, and is written before returning.
func loadRegistry(ctx context.Context, path string, plat platform.Platform, prompter setupPrompter) (*registry.Registry, error) {
	reg, err := registry.Open(path)
	switch {
	case err == nil:
		if old := reg.State().Platform; old != string(plat) {
			log.Infof("platform changed from %q to %s", old, plat)
			correctPlatform(reg, plat)
		}

	case registry.IsNotExist(err):
		st, ok := config.FromEnv(string(plat))
		if ok {
			log.Infof("initial settings taken from environment")
		} else {
			st, err = prompter.Setup(ctx, string(plat))
			if errors.Is(err, config.ErrNoInput) {
				return nil, config.ErrConfigMissing
			}
			if err != nil {
				return nil, fmt.Errorf("setup: %w", err)
			}
		}
		reg = registry.New(path, st)
		if err := reg.Save(); err != nil {
			return nil, err
		}
		log.Infof("state written to %s", path)

	default:
		return nil, fmt.Errorf("load state: %w", err)
	}

	if reg.State().Token() == "" {
		return nil, config.ErrConfigMissing
	}
	return reg, nil
}

// platformSetter records the detected platform in the state file.
type platformSetter interface {
	SetPlatform(p string) error
}

// correctPlatform stores plat. A failed write only warns: the daemon can run
// with the stale value and the next mutation writes it again.
func correctPlatform(reg platformSetter, plat platform.Platform) {
	if err := reg.SetPlatform(string(plat)); err != nil {
		log.Warningf("could not record platform %s: %v", plat, err)
	}
}

// closer is implemented by adapters holding a device or connection.
type closer interface {
	Close() error
}

// buildProbe assembles the source chain in priority order. Optional
// hardware sources are appended only when configured.
func buildProbe(plat platform.Platform, cfg config.Config) (*probe.Probe, []closer, error) {
	adapters := []probe.Adapter{
		probe.NewBatteryAdapter(),
		probe.NewSysfsAdapter(cfg.SysfsRoot),
		probe.NewTermuxAdapter(),
	}
	var closers []closer

	if cfg.GPIO.Pin != gpio.DisabledPin {
		r, err := gpio.NewRealReader(cfg.GPIO.Chip, cfg.GPIO.Pin, cfg.GPIO.ActiveLow)
		if err != nil {
			log.Warningf("gpio source disabled: %v", err)
		} else {
			a := probe.NewGPIOAdapter(r)
			adapters = append(adapters, a)
			closers = append(closers, a)
		}
	}

	if cfg.SNMP.Host != "" {
		a, err := probe.NewSNMPAdapter(probe.SNMPConfig{
			Host:      cfg.SNMP.Host,
			Port:      int(cfg.SNMP.Port),
			Community: cfg.SNMP.Community,
			Version:   cfg.SNMP.Version,
			Timeout:   cfg.SNMP.Timeout,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("init snmp: %w", err)
		}
		adapters = append(adapters, a)
	}

	if cfg.Modbus.Endpoint != "" {
		a, err := probe.NewModbusAdapter(probe.ModbusConfig{
			Endpoint:     cfg.Modbus.Endpoint,
			SlaveID:      cfg.Modbus.SlaveID,
			SOCRegister:  cfg.Modbus.SOCRegister,
			SOCScale:     cfg.Modbus.SOCScale,
			GridRegister: cfg.Modbus.GridRegister,
			Timeout:      cfg.Modbus.Timeout,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("init modbus: %w", err)
		}
		adapters = append(adapters, a)
		closers = append(closers, a)
	}

	p := probe.New(plat, adapters...)
	p.SetReadTimeout(cfg.ReadTimeout)
	return p, closers, nil
}

// publishLifecycle sends a retained STARTUP or SHUTDOWN event carrying the
// full status snapshot. It is a no-op without a publisher.
func publishLifecycle(publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus, tracker *status.Tracker, event, reason string) {
	if publisher == nil {
		return
	}
	if mqttStatus != nil {
		tracker.SetMQTTConnected(mqttStatus.IsConnected())
	}
	snap := tracker.Snapshot()
	err := publisher.PublishSystem(mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      event,
		Reason:     reason,
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, event, reason),
	})
	if err != nil {
		log.Warningf("failed to publish %s event: %v", event, err)
		return
	}
	log.Infof("published %s event", event)
}

// signalCause is the cancel cause recorded when a signal stops the daemon.
type signalCause struct {
	sig os.Signal
}

func (c signalCause) Error() string {
	return "received " + signalName(c.sig)
}

// watchSignals cancels ctx with the first signal received on sigCh.
func watchSignals(ctx context.Context, cancel context.CancelCauseFunc, sigCh <-chan os.Signal) {
	select {
	case s := <-sigCh:
		log.Infof("received %v, shutting down", s)
		cancel(signalCause{sig: s})
	case <-ctx.Done():
	}
}

// shutdownReason names the signal that cancelled ctx, or UNKNOWN.
func shutdownReason(ctx context.Context) string {
	var c signalCause
	if errors.As(context.Cause(ctx), &c) {
		return signalName(c.sig)
	}
	return "UNKNOWN"
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	}
	return "UNKNOWN"
}

func pollInterval(seconds int) time.Duration {
	if seconds <= 0 {
		seconds = registry.DefaultPollInterval
	}
	return time.Duration(seconds) * time.Second
}
