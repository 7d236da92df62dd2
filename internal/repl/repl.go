// Package repl implements the interactive chat loop: multi-line queries
// submitted with "end", and a small set of conversation commands.
package repl

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/flemzord/parley/internal/provider"
	"github.com/flemzord/parley/internal/session"
)

// ErrUnrecognizedCommand is returned when a line starts with a command
// keyword but does not match any command. It ends the loop.
var ErrUnrecognizedCommand = errors.New("unrecognized command")

// Welcome is printed at start and after every reset.
const Welcome = `
Starting conversation...
Type 'end' to submit your query.
Type 'reset' to start a new conversation.
Type 'exit' to terminate the conversation.
`

const submitWord = "end"

// commands are the words that start a command when no query lines are
// pending. Anything else starts a query.
var commands = map[string]bool{
	"exit":    true,
	"reset":   true,
	"context": true,
	"prune":   true,
	"model":   true,
}

// Session is the part of *session.Session the loop drives.
type Session interface {
	Reset()
	SetModel(model string) error
	Model() string
	Context() []provider.LLMMessage
	EstimateTokens() int
	Prune() session.PruneResult
	PruneRecent() session.PruneResult
	PromptAndPrint(ctx context.Context, w io.Writer, query string, opts ...session.AskOption) (string, error)
	PromptStreamAndPrint(ctx context.Context, w io.Writer, query string, opts ...session.AskOption) (string, error)
}

// InterruptFunc derives the context one answer runs under. Cancelling it
// stops that answer only.
type InterruptFunc func(ctx context.Context) (context.Context, context.CancelFunc)

// NotifyInterrupt cancels the answer context on SIGINT.
func NotifyInterrupt(ctx context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(ctx, os.Interrupt)
}

// Option configures a Loop.
type Option func(*Loop)

// WithModels sets the aliases accepted by "model <alias>".
func WithModels(aliases map[string]string) Option {
	return func(l *Loop) { l.models = aliases }
}

// WithInterrupt replaces the per-answer interrupt source.
func WithInterrupt(fn InterruptFunc) Option {
	return func(l *Loop) { l.interrupt = fn }
}

// WithAskOptions applies opts to every query.
func WithAskOptions(opts ...session.AskOption) Option {
	return func(l *Loop) { l.askOpts = opts }
}

// WithoutStreaming prints each answer once it is complete.
func WithoutStreaming() Option {
	return func(l *Loop) { l.stream = false }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loop) { l.logger = logger }
}

// WithColor forces styled output on or off. By default styling follows
// whether out is a terminal.
func WithColor(enabled bool) Option {
	return func(l *Loop) { l.color = &enabled }
}

// Loop reads queries and commands from in and writes answers to out.
type Loop struct {
	session   Session
	in        io.Reader
	out       io.Writer
	models    map[string]string
	interrupt InterruptFunc
	askOpts   []session.AskOption
	stream    bool
	logger    *slog.Logger
	color     *bool
	styles    styles
}

// New returns a Loop driving s.
func New(s Session, in io.Reader, out io.Writer, opts ...Option) *Loop {
	l := &Loop{
		session:   s,
		in:        in,
		out:       out,
		interrupt: NotifyInterrupt,
		stream:    true,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.logger == nil {
		l.logger = slog.New(slog.DiscardHandler)
	}
	l.styles = newStyles(out, l.color)
	return l
}

// Run prints the welcome message and processes input until "exit", end
// of input, a failed answer or an unrecognized command.
func (l *Loop) Run(ctx context.Context) error {
	scanner := bufio.NewScanner(l.in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	l.println(Welcome)

	for {
		query, cmd, err := l.read(scanner)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		if cmd != "" {
			done, err := l.command(cmd)
			if err != nil || done {
				return err
			}
			continue
		}

		if err := l.answer(ctx, query); err != nil {
			return err
		}
	}
}

// read prompts for input and returns either a submitted query or a
// command line. io.EOF is returned when input ends.
func (l *Loop) read(scanner *bufio.Scanner) (query, cmd string, err error) {
	l.println(l.styles.user.Render("*** User ***") + "\n")

	var lines []string
	for {
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return "", "", fmt.Errorf("read input: %w", err)
			}
			return "", "", io.EOF
		}
		line := scanner.Text()
		normalized := strings.ToLower(strings.TrimSpace(line))

		if len(lines) == 0 {
			if normalized == "" || normalized == submitWord {
				continue
			}
			if fields := strings.Fields(normalized); commands[fields[0]] {
				return "", normalized, nil
			}
		} else if normalized == submitWord {
			return strings.Join(lines, "\n"), "", nil
		}
		lines = append(lines, line)
	}
}

// command runs one command line. done reports that the loop should stop.
func (l *Loop) command(cmd string) (done bool, err error) {
	fields := strings.Fields(cmd)
	l.logger.Debug("command", "name", fields[0])

	switch {
	case cmd == "exit":
		l.println(l.styles.info.Render("Exiting..."))
		return true, nil

	case cmd == "reset":
		l.println(l.styles.info.Render("Resetting conversation..."))
		l.session.Reset()
		l.println(Welcome)

	case fields[0] == "model" && len(fields) == 2:
		model, ok := l.models[fields[1]]
		if !ok {
			return true, fmt.Errorf("%w: %q", ErrUnrecognizedCommand, cmd)
		}
		l.println(l.styles.info.Render(fmt.Sprintf("Resetting conversation, switching to %s...", model)))
		if err := l.session.SetModel(model); err != nil {
			return true, err
		}
		l.println(Welcome)

	case cmd == "context":
		l.printContext()

	case cmd == "prune recent":
		r := l.session.PruneRecent()
		l.println(l.styles.info.Render("Pruning conversation: " + r.String() + "..."))

	case cmd == "prune":
		r := l.session.Prune()
		l.println(l.styles.info.Render("Pruning conversation: " + r.String() + "..."))

	default:
		return true, fmt.Errorf("%w: %q", ErrUnrecognizedCommand, cmd)
	}
	return false, nil
}

func (l *Loop) printContext() {
	msgs := l.session.Context()
	l.println(l.styles.info.Render(fmt.Sprintf("Printing context (%d messages)...", len(msgs))))
	for i, m := range msgs {
		l.println(fmt.Sprintf("%s %s", l.styles.role.Render(fmt.Sprintf("[%d %s]", i, m.Role)), m.Content))
	}
	l.println(l.styles.faint.Render(fmt.Sprintf("model %s, ~%d tokens", l.session.Model(), l.session.EstimateTokens())))
}

// answer sends query and prints the reply under a per-answer interrupt
// context.
func (l *Loop) answer(ctx context.Context, query string) error {
	l.println("\n" + l.styles.assistant.Render("*** Assistant ***") + "\n")

	ctx, cancel := l.interrupt(ctx)
	defer cancel()

	var err error
	if l.stream {
		_, err = l.session.PromptStreamAndPrint(ctx, l.out, query, l.askOpts...)
	} else {
		_, err = l.session.PromptAndPrint(ctx, l.out, query, l.askOpts...)
	}
	if err != nil {
		return err
	}
	l.println("")
	return nil
}

func (l *Loop) println(s string) {
	_, _ = fmt.Fprintln(l.out, s)
}
