package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/chzyer/readline"

	"github.com/nugget/aide/internal/commands"
	"github.com/nugget/aide/internal/config"
)

// consoleUser is the user ID of the terminal session. It has its own
// history, memos and persona, separate from any Discord user.
const consoleUser = "console"

// chatRouter is the part of *commands.Router the console uses.
type chatRouter interface {
	Handle(ctx context.Context, userID, text string) commands.Reply
	HandleAttachment(ctx context.Context, userID, filename string, data []byte, instruction string) commands.Reply
	AfterReply(ctx context.Context, userID string)
}

type lineInput interface {
	ReadLine(prompt string) (string, error)
	Close() error
}

type basicLineInput struct {
	reader *bufio.Reader
	out    io.Writer
}

func newBasicLineInput(in io.Reader, out io.Writer) *basicLineInput {
	return &basicLineInput{reader: bufio.NewReader(in), out: out}
}

func (b *basicLineInput) ReadLine(prompt string) (string, error) {
	if b.out != nil {
		fmt.Fprint(b.out, prompt)
	}
	line, err := b.reader.ReadString('\n')
	if err != nil {
		if err == io.EOF && line != "" {
			return strings.TrimRight(line, "\r\n"), nil
		}
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (b *basicLineInput) Close() error { return nil }

type readlineInput struct {
	instance *readline.Instance
}

func newReadlineInput(historyPath string) (*readlineInput, error) {
	instance, err := readline.NewEx(&readline.Config{
		Prompt:            "> ",
		HistoryFile:       historyPath,
		HistorySearchFold: true,
	})
	if err != nil {
		return nil, err
	}
	return &readlineInput{instance: instance}, nil
}

func (r *readlineInput) ReadLine(prompt string) (string, error) {
	r.instance.SetPrompt(prompt)
	return r.instance.Readline()
}

func (r *readlineInput) Close() error {
	return r.instance.Close()
}

// runChat starts a terminal conversation with the same commands and
// tools as Discord. Background jobs do not run.
func runChat(ctx context.Context, stdout, stderr io.Writer, configPath string) error {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	// Logs would interleave with the conversation; keep them to
	// warnings on stderr unless debugging was asked for.
	level := slog.LevelWarn
	if l, err := config.ParseLogLevel(cfg.LogLevel); err == nil && cfg.LogLevel != "" && l < slog.LevelInfo {
		level = l
	}
	logger := config.NewLogger(stderr, level, cfg.LogFormat)

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	var in lineInput
	rl, err := newReadlineInput(filepath.Join(cfg.DataDir, "chat_history"))
	if err != nil {
		logger.Warn("readline unavailable, using plain input", "error", err)
		in = newBasicLineInput(os.Stdin, stdout)
	} else {
		in = rl
	}
	defer in.Close()

	fmt.Fprintln(stdout, "aide console. Type /help for commands, /attach <file> [request] to send a file, /quit to leave.")
	return chatLoop(ctx, in, stdout, a.router, renderMarkdown)
}

// chatLoop reads lines until EOF, interrupt or /quit and prints each
// rendered reply.
func chatLoop(ctx context.Context, in lineInput, out io.Writer, router chatRouter, render func(string) string) error {
	for {
		line, err := in.ReadLine("> ")
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, readline.ErrInterrupt) {
				return nil
			}
			return fmt.Errorf("read input: %w", err)
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		var reply commands.Reply
		switch {
		case line == "/quit" || line == "/exit":
			return nil
		case line == "/attach" || strings.HasPrefix(line, "/attach "):
			reply = attachFile(ctx, router, strings.TrimSpace(strings.TrimPrefix(line, "/attach")))
		default:
			reply = router.Handle(ctx, consoleUser, line)
		}

		if reply.Text != "" {
			fmt.Fprintln(out, render(reply.Text))
		}
		if reply.Conversational {
			router.AfterReply(ctx, consoleUser)
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

// maxConsoleAttachment matches the Discord download cap.
const maxConsoleAttachment = 1 << 20

func attachFile(ctx context.Context, router chatRouter, args string) commands.Reply {
	path, instruction, _ := strings.Cut(args, " ")
	if path == "" {
		return commands.Reply{Text: "Usage: /attach <file> [request]"}
	}
	name := filepath.Base(path)
	if !commands.IsTextFile(name) {
		return router.HandleAttachment(ctx, consoleUser, name, nil, instruction)
	}

	info, err := os.Stat(path)
	if err != nil {
		return commands.Reply{Text: "📎 Could not open " + path + ": " + err.Error()}
	}
	if info.Size() > maxConsoleAttachment {
		return commands.Reply{Text: "📎 That file is too large. The limit is 1 MB."}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return commands.Reply{Text: "📎 Could not read " + path + ": " + err.Error()}
	}
	return router.HandleAttachment(ctx, consoleUser, name, data, strings.TrimSpace(instruction))
}

// renderMarkdown formats a reply for the terminal, falling back to the
// raw text when rendering fails.
func renderMarkdown(content string) string {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return content
	}
	rendered, err := r.Render(content)
	if err != nil {
		return content
	}
	return strings.TrimRight(rendered, "\n")
}
