// Aide is a personal assistant that lives in Discord direct messages.
//
// It answers through a local or hosted language model, keeps memos and
// reminders, sends a daily briefing and watches the user's mailboxes.
// Configuration is loaded from a single YAML file discovered
// automatically (see [config.DefaultSearchPaths]).
//
// Usage:
//
//	aide serve                 Connect to Discord and run the scheduler
//	aide chat                  Talk to the assistant in the terminal
//	aide init [dir]            Write an example config
//	aide version [-check]      Print build information
//	aide invite [-qr file]     Print the bot invite link
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/nugget/aide/internal/config"
)

func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run is the real entry point. OS-level dependencies are parameters so
// tests can drive it. Arguments are parsed by hand; the flag package's
// global state gets in the way of parallel tests.
func run(ctx context.Context, stdout io.Writer, stderr io.Writer, args []string) error {
	var configPath string
	var outputFmt string // "text" (default) or "json"
	var command string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-config" && i+1 < len(args) && command == "":
			configPath = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-config=") && command == "":
			configPath = strings.TrimPrefix(args[i], "-config=")
		case (args[i] == "-o" || args[i] == "--output") && i+1 < len(args) && command == "":
			outputFmt = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-o=") && command == "":
			outputFmt = strings.TrimPrefix(args[i], "-o=")
		case (args[i] == "-h" || args[i] == "-help" || args[i] == "--help") && command == "":
			return printUsage(stdout)
		case !strings.HasPrefix(args[i], "-") && command == "":
			command = args[i]
		default:
			if command == "" {
				return fmt.Errorf("unknown flag: %s", args[i])
			}
			cmdArgs = append(cmdArgs, args[i])
		}
	}

	if outputFmt == "" {
		outputFmt = "text"
	}
	if outputFmt != "text" && outputFmt != "json" {
		return fmt.Errorf("unknown output format: %q (expected text or json)", outputFmt)
	}

	switch command {
	case "serve", "":
		return runServe(ctx, stdout, configPath)
	case "chat":
		return runChat(ctx, stdout, stderr, configPath)
	case "init":
		dir := "."
		if len(cmdArgs) > 0 {
			dir = cmdArgs[0]
		}
		return runInit(stdout, dir)
	case "version":
		check := false
		for _, a := range cmdArgs {
			switch a {
			case "-check", "--check":
				check = true
			default:
				return fmt.Errorf("usage: aide version [-check]")
			}
		}
		return runVersion(ctx, stdout, outputFmt, check, nil)
	case "invite":
		qrPath, err := parseInviteArgs(cmdArgs)
		if err != nil {
			return err
		}
		return runInvite(stdout, configPath, qrPath)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

// printUsage writes the top-level help text to w.
func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "Aide - personal assistant for Discord")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: aide [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve              Connect to Discord and run background jobs (default)")
	fmt.Fprintln(w, "  chat               Talk to the assistant in this terminal")
	fmt.Fprintln(w, "  init [dir]         Create a data directory and example config (default: .)")
	fmt.Fprintln(w, "  version [-check]   Show version information, optionally checking for a newer release")
	fmt.Fprintln(w, "  invite [-qr file]  Print the bot invite link, optionally as a QR code PNG")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>    Path to config file (default: auto-discover)")
	fmt.Fprintln(w, "  -o, --output fmt  Output format for version: text (default) or json")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Config search order:")
	fmt.Fprintf(w, "  %s\n", strings.Join(config.DefaultSearchPaths(), ", "))
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// loadConfig locates and parses the YAML configuration file.
func loadConfig(explicit string) (*config.Config, string, error) {
	cfgPath, err := config.FindConfig(explicit)
	if err != nil {
		return nil, "", err
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, cfgPath, fmt.Errorf("load config %s: %w", cfgPath, err)
	}

	return cfg, cfgPath, nil
}

// configuredLogger rebuilds the logger with the configured level and
// format. The initial Info-level logger only covers startup.
func configuredLogger(w io.Writer, cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	if cfg.LogLevel != "" {
		// Validated by config.Load.
		level, _ = config.ParseLogLevel(cfg.LogLevel)
	}
	return config.NewLogger(w, level, cfg.LogFormat)
}
