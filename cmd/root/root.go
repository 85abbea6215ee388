package root

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/docker/eventreporter/pkg/analytics"
	"github.com/docker/eventreporter/pkg/cli"
	"github.com/docker/eventreporter/pkg/logging"
	"github.com/docker/eventreporter/pkg/paramconfig"
	"github.com/docker/eventreporter/pkg/paths"
)

type rootFlags struct {
	enableOtel  bool
	debugMode   bool
	logFilePath string
	logFile     io.Closer
}

func NewRootCmd() *cobra.Command {
	var flags rootFlags

	cmd := &cobra.Command{
		Use:   "eventreporter",
		Short: "eventreporter - analytics event reporting demo",
		Long:  "eventreporter records analytics events and flushes them to a collector in jittered, capped batches",
		Example: `  eventreporter demo
  eventreporter demo --endpoint http://localhost:8080/collect
  eventreporter collector --listen :8080`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Initialize logging before anything else so logs don't break the prompt
			if err := flags.setupLogging(); err != nil {
				// If logging setup fails, fall back to stderr so we still get logs
				slog.SetDefault(slog.New(logging.NewHandler(cmd.ErrOrStderr(), flags.debugMode)))
			}

			if flags.enableOtel {
				if err := initOTelSDK(cmd.Context()); err != nil {
					slog.Warn("Failed to initialize OpenTelemetry SDK", "error", err)
				} else {
					slog.Debug("OpenTelemetry SDK initialized successfully")
				}
			}

			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if flags.logFile != nil {
				if err := flags.logFile.Close(); err != nil {
					slog.Error("Failed to close log file", "error", err)
				}
			}
			return nil
		},
		// If no subcommand is specified, show help
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	// Add persistent debug flag available to all commands
	cmd.PersistentFlags().BoolVarP(&flags.debugMode, "debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flags.enableOtel, "otel", "o", false, "Enable OpenTelemetry tracing")
	cmd.PersistentFlags().StringVar(&flags.logFilePath, "log-file", "", "Path to debug log file (default: ~/.eventreporter/eventreporter.debug.log; only used with --debug)")

	cmd.AddGroup(&cobra.Group{ID: "core", Title: "Core Commands:"})
	cmd.AddGroup(&cobra.Group{ID: "advanced", Title: "Advanced Commands:"})

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newDemoCmd())
	cmd.AddCommand(newParamsCmd())
	cmd.AddCommand(newHistoryCmd())
	cmd.AddCommand(newCollectorCmd())

	return cmd
}

func Execute(ctx context.Context, stdin io.Reader, stdout, stderr io.Writer, args ...string) error {
	rootCmd := NewRootCmd()
	rootCmd.SetIn(stdin)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	rootCmd.SetArgs(defaultToDemo(rootCmd, args))

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		return processErr(ctx, err, stderr, rootCmd)
	}
	return nil
}

// defaultToDemo prepends "demo" to the argument list when no subcommand is
// specified so that bare "eventreporter" (or "eventreporter --debug", etc.)
// starts the demo. Help flags (--help / -h) are left alone.
func defaultToDemo(rootCmd *cobra.Command, args []string) []string {
	for _, arg := range args {
		switch {
		case arg == "--":
			return append([]string{"demo"}, args...)
		case arg == "--help" || arg == "-h":
			return args
		case strings.HasPrefix(arg, "-"):
			continue
		case isSubcommand(rootCmd, arg):
			return args
		default:
			return append([]string{"demo"}, args...)
		}
	}

	return append([]string{"demo"}, args...)
}

// isSubcommand reports whether name matches a registered subcommand or alias.
func isSubcommand(cmd *cobra.Command, name string) bool {
	switch name {
	case "help", "completion", "__complete", "__completeNoDesc":
		return true
	}
	for _, sub := range cmd.Commands() {
		if sub.Name() == name || sub.HasAlias(name) {
			return true
		}
	}
	return false
}

func processErr(ctx context.Context, err error, stderr io.Writer, rootCmd *cobra.Command) error {
	if ctx.Err() != nil {
		return ctx.Err()
	} else if paramErr, ok := errors.AsType[*paramconfig.ParamError](err); ok {
		fmt.Fprintf(stderr, "Invalid parameter %q: %s\n", paramErr.Name, paramErr.Reason)
		fmt.Fprintln(stderr, "\nRun 'eventreporter params show' to list parameters and their current values.")
	} else if cfgErr, ok := errors.AsType[*analytics.ConfigError](err); ok {
		fmt.Fprintf(stderr, "Invalid analytics configuration: %s %s\n", cfgErr.Field, cfgErr.Reason)
	} else if _, ok := errors.AsType[cli.RuntimeError](err); ok {
		// Runtime errors have already been printed by the command itself
		// Don't print them again or show usage
	} else {
		// Command line usage errors - show the error and usage
		fmt.Fprintln(stderr, err)
		fmt.Fprintln(stderr)
		if strings.HasPrefix(err.Error(), "unknown command ") || strings.HasPrefix(err.Error(), "accepts ") {
			_ = rootCmd.Usage()
		}
	}

	return err
}

// setupLogging configures slog logging behavior.
// When --debug is enabled, logs are written to a rotating file <dataDir>/eventreporter.debug.log,
// or to the file specified by --log-file. Log files are rotated when they exceed 10MB,
// keeping up to 3 backup files.
func (f *rootFlags) setupLogging() error {
	if !f.debugMode {
		slog.SetDefault(slog.New(slog.DiscardHandler))
		return nil
	}

	path := cmp.Or(strings.TrimSpace(f.logFilePath), filepath.Join(paths.GetDataDir(), "eventreporter.debug.log"))

	logFile, err := logging.NewRotatingFile(path)
	if err != nil {
		return err
	}
	f.logFile = logFile

	slog.SetDefault(slog.New(logging.NewHandler(logFile, true)))

	return nil
}
