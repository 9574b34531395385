// Package command maps chat commands to replies. Each command has one
// handler in a dispatch table; access checks wrap the handlers that need them.
package command

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/op/go-logging"

	"github.com/sweeney/power-monitor/internal/monitor"
	"github.com/sweeney/power-monitor/internal/power"
	"github.com/sweeney/power-monitor/internal/reconfig"
)

var log = logging.MustGetLogger("command")

// Command names.
const (
	Start       = "start"
	Status      = "status"
	Register    = "register"
	Unregister  = "unregister"
	Help        = "help"
	Reconfigure = "reconfigure"
)

// Reply texts that tests and the transport may match on.
const (
	TextWelcome       = "🔋 Welcome to Power Monitor!\n\nChoose an option below:"
	TextDenied        = "🚫 You are not allowed to use this bot."
	TextAdminOnly     = "🚫 Only admins can reconfigure the bot."
	TextRegistered    = "✅ You are now registered for power alerts."
	TextAlreadyReg    = "ℹ️ You are already registered for power alerts."
	TextUnregistered  = "✅ You will no longer receive power alerts."
	TextNotRegistered = "ℹ️ You are not registered."
	TextReconfigure   = "⚙️ Reconfiguration started.\n\nAnswer the prompts on the console where the monitor runs."
	TextBusy          = "⏳ A reconfiguration is already in progress."
	TextSaveFailed    = "⚠️ The change could not be saved to disk and will be retried."
	TextUnknown       = "Unknown command. Send /help for the list of commands."
	statusPrefix      = "🔋 Current status: "
)

// Request is one incoming command.
type Request struct {
	ChatID  int64
	Command string
}

// Button is one menu entry; pressing it sends Command.
type Button struct {
	Label   string
	Command string
}

// Reply is the response to a command. Menu rows are rendered by the transport.
type Reply struct {
	Text string
	Menu [][]Button
}

// Handler answers one command.
type Handler func(ctx context.Context, req Request) Reply

// Registry is the subset of the recipient registry commands use.
type Registry interface {
	Add(id int64) (bool, error)
	Remove(id int64) (bool, error)
	IsAllowed(id int64) bool
	IsAdmin(id int64) bool
}

// Prober takes one power reading.
type Prober interface {
	Sample(ctx context.Context) (power.Snapshot, bool)
}

// Reconfigurer starts the reconfiguration task.
type Reconfigurer interface {
	Submit() error
}

// Dispatcher routes requests through the dispatch table.
type Dispatcher struct {
	reg      Registry
	probe    Prober
	reconf   Reconfigurer
	handlers map[string]Handler
}

// New builds the dispatch table. reconf may be nil, in which case the
// reconfigure command reports that it is unavailable.
func New(reg Registry, probe Prober, reconf Reconfigurer) *Dispatcher {
	d := &Dispatcher{reg: reg, probe: probe, reconf: reconf}
	d.handlers = map[string]Handler{
		Start:       d.allowed(d.start),
		Status:      d.allowed(d.status),
		Register:    d.allowed(d.register),
		Unregister:  d.unregister,
		Help:        d.help,
		Reconfigure: d.adminOnly(d.reconfigure),
	}
	return d
}

// Commands returns the registered command names, sorted.
func (d *Dispatcher) Commands() []string {
	names := make([]string, 0, len(d.handlers))
	for name := range d.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Handle answers req. Command names are accepted with or without a leading
// slash and a trailing "@botname".
func (d *Dispatcher) Handle(ctx context.Context, req Request) Reply {
	req.Command = Normalize(req.Command)
	h, ok := d.handlers[req.Command]
	if !ok {
		return Reply{Text: TextUnknown, Menu: d.Menu(req.ChatID)}
	}
	log.Debugf("%s from %d", req.Command, req.ChatID)
	return h(ctx, req)
}

// Normalize turns "/Status@my_bot args" into "status".
func Normalize(cmd string) string {
	cmd = strings.TrimSpace(cmd)
	if i := strings.IndexAny(cmd, " \n"); i >= 0 {
		cmd = cmd[:i]
	}
	cmd = strings.TrimPrefix(cmd, "/")
	if i := strings.IndexByte(cmd, '@'); i >= 0 {
		cmd = cmd[:i]
	}
	return strings.ToLower(cmd)
}

// Menu returns the button layout for a chat. Admins get the reconfigure row.
func (d *Dispatcher) Menu(chatID int64) [][]Button {
	menu := [][]Button{
		{{Label: "🔋 Battery Status", Command: Status}, {Label: "❓ Help", Command: Help}},
		{{Label: "📝 Register", Command: Register}, {Label: "🚫 Unregister", Command: Unregister}},
	}
	if d.reg.IsAdmin(chatID) {
		menu = append(menu, []Button{{Label: "⚙️ Reconfigure", Command: Reconfigure}})
	}
	return menu
}

func (d *Dispatcher) allowed(h Handler) Handler {
	return func(ctx context.Context, req Request) Reply {
		if !d.reg.IsAllowed(req.ChatID) {
			log.Infof("denied %s for %d", req.Command, req.ChatID)
			return Reply{Text: TextDenied}
		}
		return h(ctx, req)
	}
}

func (d *Dispatcher) adminOnly(h Handler) Handler {
	return func(ctx context.Context, req Request) Reply {
		if !d.reg.IsAdmin(req.ChatID) {
			log.Infof("denied %s for non-admin %d", req.Command, req.ChatID)
			return Reply{Text: TextAdminOnly}
		}
		return h(ctx, req)
	}
}

func (d *Dispatcher) start(_ context.Context, req Request) Reply {
	return Reply{Text: TextWelcome, Menu: d.Menu(req.ChatID)}
}

func (d *Dispatcher) status(ctx context.Context, req Request) Reply {
	return Reply{Text: d.statusLine(ctx), Menu: d.Menu(req.ChatID)}
}

func (d *Dispatcher) statusLine(ctx context.Context) string {
	snap, ok := d.probe.Sample(ctx)
	return statusPrefix + monitor.FormatStatus(snap, ok)
}

func (d *Dispatcher) register(ctx context.Context, req Request) Reply {
	added, err := d.reg.Add(req.ChatID)
	text := TextAlreadyReg
	if added {
		text = TextRegistered + "\n\n" + d.statusLine(ctx)
	}
	return Reply{Text: withSaveWarning(text, err), Menu: d.Menu(req.ChatID)}
}

func (d *Dispatcher) unregister(_ context.Context, req Request) Reply {
	removed, err := d.reg.Remove(req.ChatID)
	text := TextNotRegistered
	if removed {
		text = TextUnregistered
	}
	return Reply{Text: withSaveWarning(text, err), Menu: d.Menu(req.ChatID)}
}

func (d *Dispatcher) help(_ context.Context, req Request) Reply {
	var b strings.Builder
	b.WriteString("❓ Power Monitor help\n\n")
	b.WriteString("/status - current power and battery reading\n")
	b.WriteString("/register - receive power alerts\n")
	b.WriteString("/unregister - stop receiving alerts\n")
	b.WriteString("/help - this message\n")
	if d.reg.IsAdmin(req.ChatID) {
		b.WriteString("/reconfigure - change mode, admins and poll interval (admin)\n")
	}
	return Reply{Text: b.String(), Menu: d.Menu(req.ChatID)}
}

func (d *Dispatcher) reconfigure(_ context.Context, req Request) Reply {
	if d.reconf == nil {
		return Reply{Text: "Reconfiguration is not available.", Menu: d.Menu(req.ChatID)}
	}
	if err := d.reconf.Submit(); err != nil {
		if errors.Is(err, reconfig.ErrBusy) {
			return Reply{Text: TextBusy, Menu: d.Menu(req.ChatID)}
		}
		log.Errorf("reconfigure: %v", err)
		return Reply{Text: "Reconfiguration could not be started.", Menu: d.Menu(req.ChatID)}
	}
	log.Infof("reconfiguration requested by %d", req.ChatID)
	return Reply{Text: TextReconfigure, Menu: d.Menu(req.ChatID)}
}

func withSaveWarning(text string, err error) string {
	if err == nil {
		return text
	}
	log.Warningf("registry: %v", err)
	return text + "\n\n" + TextSaveFailed
}
