package config

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/term"

	"github.com/sweeney/power-monitor/internal/registry"
)

// ErrNoInput is returned when the console closes before a prompt is answered.
var ErrNoInput = errors.New("config: no console input")

type line struct {
	text string
	err  error
}

// Prompter asks setup questions on a console.
type Prompter struct {
	out        io.Writer
	in         *bufio.Reader
	readSecret func() (string, error)
	restore    func()

	once  sync.Once
	lines chan line
}

// NewPrompter creates a Prompter over arbitrary streams.
func NewPrompter(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{in: bufio.NewReader(in), out: out}
}

// NewConsolePrompter prompts on stdin/stdout. When stdin is a terminal the
// bot token is read without echo.
func NewConsolePrompter() *Prompter {
	p := NewPrompter(os.Stdin, os.Stdout)
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		p.readSecret = func() (string, error) {
			b, err := term.ReadPassword(fd)
			fmt.Fprintln(p.out)
			return string(b), err
		}
		if st, err := term.GetState(fd); err == nil {
			p.restore = func() { term.Restore(fd, st) }
		}
	}
	return p
}

// Setup runs the first-run questions: token, mode, admins, poll interval.
func (p *Prompter) Setup(ctx context.Context, platform string) (registry.State, error) {
	fmt.Fprintln(p.out, "=== Power Monitor setup ===")
	fmt.Fprintf(p.out, "Detected platform: %s\n", platform)

	st := registry.DefaultState(platform)
	for {
		token, err := p.askSecret(ctx, "Bot token (from @BotFather): ")
		if err != nil {
			return registry.State{}, err
		}
		if ValidToken(token) {
			token = strings.TrimSpace(token)
			st.BotToken = &token
			break
		}
		fmt.Fprintln(p.out, "That does not look like a token (expected 123456:ABC-...).")
	}

	u, err := p.ask(ctx, st)
	if err != nil {
		return registry.State{}, err
	}
	st.Mode, st.AdminIDs, st.PollInterval = u.Mode, u.AdminIDs, u.PollInterval
	return st, nil
}

// Reconfigure asks for mode, admins and poll interval. Empty answers keep
// the current values.
func (p *Prompter) Reconfigure(ctx context.Context, current registry.State) (registry.Update, error) {
	fmt.Fprintln(p.out, "=== Power Monitor reconfiguration ===")
	return p.ask(ctx, current)
}

func (p *Prompter) ask(ctx context.Context, current registry.State) (registry.Update, error) {
	u := registry.Update{
		Mode:         current.Mode,
		AdminIDs:     current.AdminIDs,
		PollInterval: current.PollInterval,
	}
	if u.AdminIDs == nil {
		u.AdminIDs = []int64{}
	}

	for {
		ans, err := p.prompt(ctx, fmt.Sprintf("Mode: (1) admin-only (2) multi-user [%s]: ", u.Mode))
		if err != nil {
			return registry.Update{}, err
		}
		switch ans {
		case "":
		case "1":
			u.Mode = registry.ModeAdmin
		case "2":
			u.Mode = registry.ModeMulti
		default:
			fmt.Fprintln(p.out, "Please type 1 or 2.")
			continue
		}
		break
	}

	ans, err := p.prompt(ctx, fmt.Sprintf("Admin chat ids, comma-separated %v: ", u.AdminIDs))
	if err != nil {
		return registry.Update{}, err
	}
	if ans != "" {
		u.AdminIDs = ParseIDs(ans)
	}
	if u.Mode == registry.ModeAdmin && len(u.AdminIDs) == 0 {
		fmt.Fprintln(p.out, "Warning: admin-only mode with no admins; nobody will be able to use the bot.")
	}

	for {
		ans, err := p.prompt(ctx, fmt.Sprintf("Poll interval in seconds [%d]: ", u.PollInterval))
		if err != nil {
			return registry.Update{}, err
		}
		if ans == "" {
			break
		}
		n, err := strconv.Atoi(ans)
		if err != nil || n < 1 {
			fmt.Fprintln(p.out, "Enter a positive integer.")
			continue
		}
		u.PollInterval = n
		break
	}
	return u, nil
}

func (p *Prompter) askSecret(ctx context.Context, question string) (string, error) {
	if p.readSecret == nil {
		return p.prompt(ctx, question)
	}
	fmt.Fprint(p.out, question)

	done := make(chan line, 1)
	go func() {
		s, err := p.readSecret()
		done <- line{text: s, err: err}
	}()

	select {
	case <-ctx.Done():
		// The abandoned read leaves echo off.
		if p.restore != nil {
			p.restore()
		}
		fmt.Fprintln(p.out)
		return "", ctx.Err()
	case l := <-done:
		if l.err != nil {
			return "", fmt.Errorf("%w: %v", ErrNoInput, l.err)
		}
		return strings.TrimSpace(l.text), nil
	}
}

// prompt prints question and waits for one line or ctx.
func (p *Prompter) prompt(ctx context.Context, question string) (string, error) {
	p.once.Do(p.startReader)
	fmt.Fprint(p.out, question)
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case l, ok := <-p.lines:
		if !ok {
			return "", ErrNoInput
		}
		return strings.TrimSpace(l.text), l.err
	}
}

// startReader pumps input lines into p.lines. A blocked console read cannot
// be interrupted, so the pump outlives a cancelled prompt and hands its line
// to the next one.
func (p *Prompter) startReader() {
	p.lines = make(chan line)
	go func() {
		defer close(p.lines)
		for {
			s, err := p.in.ReadString('\n')
			if s != "" || err == nil {
				p.lines <- line{text: s}
			}
			if err != nil {
				if !errors.Is(err, io.EOF) {
					p.lines <- line{err: fmt.Errorf("%w: %v", ErrNoInput, err)}
				}
				return
			}
		}
	}()
}
