// Package cmd implements the strudelprobe command line interface.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/mstoykov/envconfig"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/arismoko/strudelprobe/errext"
	"github.com/arismoko/strudelprobe/errext/exitcodes"
	"github.com/arismoko/strudelprobe/log"
	"github.com/arismoko/strudelprobe/probe"
)

const (
	defaultHost = "127.0.0.1"
	defaultPort = 9222
)

// globalFlags holds the persistent flags shared by all subcommands.
type globalFlags struct {
	host        string
	port        int
	tab         string
	verbose     bool
	logCategory string
}

// envOverrides are applied for flags the user did not set explicitly.
type envOverrides struct {
	Host string `envconfig:"STRUDELPROBE_HOST"`
	Port int    `envconfig:"STRUDELPROBE_PORT"`
	Tab  string `envconfig:"STRUDELPROBE_TAB"`
}

// consoleWriter interleaves writes from concurrent goroutines cleanly.
type consoleWriter struct {
	Writer io.Writer
	IsTTY  bool
	Mutex  *sync.Mutex
}

func (w *consoleWriter) Write(p []byte) (n int, err error) {
	origLen := len(p)
	w.Mutex.Lock()
	n, err = w.Writer.Write(p)
	w.Mutex.Unlock()
	if err == nil {
		n = origLen
	}
	return
}

// globalState groups everything a subcommand needs, so tests can substitute
// writers, environment lookup and the exit function.
type globalState struct {
	ctx context.Context

	flags  globalFlags
	stdOut io.Writer
	stdErr io.Writer
	logger *log.Logger
	osExit func(int)
}

func newGlobalState(ctx context.Context) *globalState {
	outMutex := &sync.Mutex{}
	stdoutTTY := isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
	stderrTTY := isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())
	stdOut := &consoleWriter{colorable.NewColorableStdout(), stdoutTTY, outMutex}
	stdErr := &consoleWriter{colorable.NewColorableStderr(), stderrTTY, outMutex}

	logrusLogger := &logrus.Logger{
		Out:   stdErr,
		Level: logrus.WarnLevel,
		Formatter: &logrus.TextFormatter{
			ForceColors:   stdErr.IsTTY,
			DisableColors: !stdErr.IsTTY,
		},
		Hooks: make(logrus.LevelHooks),
	}

	return &globalState{
		ctx:    ctx,
		stdOut: stdOut,
		stdErr: stdErr,
		logger: log.New(logrusLogger, nil),
		osExit: os.Exit,
	}
}

func newRootCommand(gs *globalState) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "strudelprobe",
		Short: "Inspect a running Strudel session over the DevTools protocol",
		Long: `strudelprobe attaches to an already-running Chromium instance (ideally the
one Strudel is running in) and evaluates small JavaScript snippets to inspect
runtime globals like soundMap, without manual devtools clicking.

Start Chromium with:
  chromium --remote-debugging-port=9222`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return gs.setup(cmd.Flags())
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&gs.flags.host, "host", defaultHost, "remote debugging host")
	flags.IntVar(&gs.flags.port, "port", defaultPort, "remote debugging port")
	flags.StringVar(&gs.flags.tab, "tab", "", "tab match substring (URL/title); first tab if omitted")
	flags.BoolVarP(&gs.flags.verbose, "verbose", "v", false, "enable debug logging")
	flags.StringVar(&gs.flags.logCategory, "log-category", "", "regexp filter on debug log categories")

	rootCmd.AddCommand(
		getCmdList(gs),
		getCmdGlobals(gs),
		getCmdSoundmap(gs),
		getCmdEval(gs),
	)

	return rootCmd
}

// setup applies environment overrides for unset flags and configures the
// logger from the parsed flags.
func (gs *globalState) setup(flags *pflag.FlagSet) error {
	var env envOverrides
	if err := envconfig.Process("", &env); err != nil {
		return err
	}
	if !flags.Changed("host") && env.Host != "" {
		gs.flags.host = env.Host
	}
	if !flags.Changed("port") && env.Port != 0 {
		gs.flags.port = env.Port
	}
	if !flags.Changed("tab") && env.Tab != "" {
		gs.flags.tab = env.Tab
	}

	if gs.flags.verbose {
		if err := gs.logger.SetLevel("debug"); err != nil {
			return err
		}
	}
	return gs.logger.SetCategoryFilter(gs.flags.logCategory)
}

// Execute runs the root command and exits the process with the code carried
// by the error, if any. Connection, selection and attach failures print a
// one-line diagnostic; an evaluation exception prints its message and the
// truncated payload of the thrown object.
func Execute() {
	gs := newGlobalState(context.Background())
	gs.osExit(int(runRootCommand(gs, os.Args[1:]...)))
}

func runRootCommand(gs *globalState, args ...string) exitcodes.ExitCode {
	c := newRootCommand(gs)
	c.SetArgs(args)
	err := c.Execute()
	if err == nil {
		return 0
	}

	var excErr *probe.ExceptionError
	if errors.As(err, &excErr) {
		fmt.Fprintln(gs.stdErr, excErr.Exception.Text)
		if excErr.Exception.Detail != "" {
			fmt.Fprintln(gs.stdErr, excErr.Exception.Detail)
		}
	} else {
		fmt.Fprintln(gs.stdErr, err)
	}

	err = errext.WithExitCodeIfNone(err, exitcodes.SetupFailed)
	var ecerr errext.HasExitCode
	errors.As(err, &ecerr)
	return ecerr.ExitCode()
}
