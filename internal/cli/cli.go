package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/vk/flowsync/internal/app"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

func usageError(format string, args ...any) *ExitError {
	return &ExitError{Code: 2, Message: fmt.Sprintf(format, args...)}
}

// Invocation is a parsed command line.
type Invocation struct {
	Config  *app.Config
	Command string
	Args    []string

	Output   string
	Format   string
	Results  bool
	Only     []string
	Run      bool
	Root     string
	Debounce time.Duration
}

const usage = `
flowsync - keeps a JSON configuration document and a process simulation
engine's attribute tree in sync.

Usage:
  flowsync [options] <command> [command options] [arguments]

Commands:
  extract                    Read every section into a document.
  write <doc>                Write a document into the store.
  diff <doc>                 Extract and compare with a document.
  retry <report-id> <doc>    Write only what a stored write run did not complete.
  capture <snapshot-dir>     Copy the store into a snapshot database.
  doc get <doc> <path>       Print the value at a path of a document.
  doc set <doc> <path> <json>
                             Replace the value at a path of a document in place.
  schema                     List sections in dependency order.
  units                      List the unit table.
  serve                      Run the HTTP service.
  watch <doc>                Write a document every time it changes.

Options:
`

// commandArgs is the number of positional arguments each command takes.
var commandArgs = map[string]int{
	"extract": 0,
	"write":   1,
	"diff":    1,
	"retry":   2,
	"capture": 1,
	"doc":     -1,
	"schema":  0,
	"units":   0,
	"serve":   0,
	"watch":   1,
}

// Parse processes command-line arguments. Defaults come from the FLOWSYNC_*
// environment. It returns the invocation, a boolean indicating if the program
// should exit cleanly, or an ExitError.
func Parse(args []string, output io.Writer) (*Invocation, bool, error) {
	slog.Debug("CLI parser started.")
	env, err := app.LoadConfig()
	if err != nil {
		return nil, false, usageError("%v", err)
	}

	flagSet := flag.NewFlagSet("flowsync", flag.ContinueOnError)
	flagSet.SetOutput(output)
	flagSet.Usage = func() {
		fmt.Fprint(output, usage)
		flagSet.PrintDefaults()
	}

	logFormat := flagSet.String("log-format", env.LogFormat, "Log output format. Options: 'text' or 'json'.")
	logLevel := flagSet.String("log-level", env.LogLevel, "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	schemaPath := flagSet.String("schema", env.SchemaPath, "Optional .hcl file or directory overriding built-in sections.")
	unitsPath := flagSet.String("units", env.UnitsPath, "Optional unit table replacing the built-in one.")
	store := flagSet.String("store", env.Store, "Attribute store. Options: 'memory', 'snapshot', 'bridge'.")
	fixture := flagSet.String("fixture", env.FixturePath, "YAML tree seeding the memory store.")
	snapshot := flagSet.String("snapshot", env.SnapshotPath, "Snapshot database directory.")
	bridgeURL := flagSet.String("bridge-url", env.BridgeURL, "Socket.IO URL of the engine bridge.")
	bridgeNS := flagSet.String("bridge-namespace", env.BridgeNamespace, "Socket.IO namespace of the engine bridge.")
	bridgeTimeout := flagSet.Duration("bridge-timeout", env.BridgeTimeout, "Timeout for each bridge request.")
	insecure := flagSet.Bool("insecure-skip-verify", env.InsecureSkipVerify, "Skip TLS verification of the bridge.")
	history := flagSet.String("history", env.HistoryPath, "SQLite file keeping run reports. Empty disables history.")
	listen := flagSet.String("listen", env.ListenAddr, "Address of the HTTP service.")
	healthPort := flagSet.Int("healthcheck-port", env.HealthcheckPort, "Port for the standalone health check server. 0 is disabled.")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, true, nil
		}
		return nil, false, usageError("%v", err)
	}
	slog.Debug("Arguments parsed successfully.")

	if flagSet.NArg() == 0 {
		slog.Debug("No command provided, printing usage and exiting.")
		flagSet.Usage()
		return nil, true, nil
	}

	cfg, err := app.NewConfig(app.Config{
		LogFormat:          *logFormat,
		LogLevel:           *logLevel,
		SchemaPath:         *schemaPath,
		UnitsPath:          *unitsPath,
		Store:              *store,
		FixturePath:        *fixture,
		SnapshotPath:       *snapshot,
		BridgeURL:          *bridgeURL,
		BridgeNamespace:    *bridgeNS,
		BridgeTimeout:      *bridgeTimeout,
		InsecureSkipVerify: *insecure,
		HistoryPath:        *history,
		ListenAddr:         *listen,
		HealthcheckPort:    *healthPort,
	})
	if err != nil {
		return nil, false, usageError("%v", err)
	}

	inv := &Invocation{Config: cfg, Command: flagSet.Arg(0)}
	exit, err := inv.parseCommand(flagSet.Args()[1:], output)
	if err != nil || exit {
		return nil, exit, err
	}
	slog.Debug("CLI parser finished successfully.", "command", inv.Command)
	return inv, false, nil
}

func (inv *Invocation) parseCommand(args []string, output io.Writer) (bool, error) {
	want, ok := commandArgs[inv.Command]
	if !ok {
		return false, usageError("unknown command %q", inv.Command)
	}

	fs := flag.NewFlagSet("flowsync "+inv.Command, flag.ContinueOnError)
	fs.SetOutput(output)
	var only string
	switch inv.Command {
	case "extract":
		fs.StringVar(&inv.Output, "o", "", "Write the document to this file instead of stdout.")
		fs.StringVar(&inv.Format, "format", app.FormatJSON, "Document format. Options: 'json', 'yaml'.")
		fs.BoolVar(&inv.Results, "results", false, "Include results sections.")
		fs.StringVar(&only, "only", "", "Comma separated sections to extract.")
	case "diff":
		fs.BoolVar(&inv.Results, "results", false, "Include results sections.")
		fs.StringVar(&only, "only", "", "Comma separated sections to compare.")
	case "write", "retry", "watch":
		fs.BoolVar(&inv.Run, "run", false, "Run the simulation after writing.")
		if inv.Command != "retry" {
			fs.StringVar(&only, "only", "", "Comma separated sections to write.")
		}
		if inv.Command == "watch" {
			fs.DurationVar(&inv.Debounce, "debounce", app.DefaultDebounce, "Quiet period before a change is written.")
		}
	case "capture":
		fs.StringVar(&inv.Root, "root", app.CaptureRoot, "Subtree of the store to copy.")
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return true, nil
		}
		return false, usageError("%v", err)
	}
	if only != "" {
		inv.Only = strings.Split(only, ",")
	}
	if inv.Format != "" && inv.Format != app.FormatJSON && inv.Format != app.FormatYAML {
		return false, usageError("invalid format: must be 'json' or 'yaml'")
	}

	inv.Args = fs.Args()
	if inv.Command == "doc" {
		return false, checkDocArgs(inv.Args)
	}
	if len(inv.Args) != want {
		return false, usageError("%s expects %d argument(s), got %d", inv.Command, want, len(inv.Args))
	}
	return false, nil
}

func checkDocArgs(args []string) error {
	if len(args) == 0 {
		return usageError("doc expects 'get' or 'set'")
	}
	switch args[0] {
	case "get":
		if len(args) != 3 {
			return usageError("doc get expects <doc> <path>")
		}
	case "set":
		if len(args) != 4 {
			return usageError("doc set expects <doc> <path> <json-value>")
		}
	default:
		return usageError("unknown doc subcommand %q", args[0])
	}
	return nil
}
