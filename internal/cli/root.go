// Package cli implements the narwhal command line.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"bytemomo/narwhal/internal/adapter/logger"
)

type BuildInfo struct {
	Version string
	Commit  string
}

type app struct {
	build  BuildInfo
	out    io.Writer
	errOut io.Writer
	logger *logrus.Logger

	logLevel  string
	logFormat string
	logFile   string
	logCloser io.Closer
}

func (a *app) log() *logrus.Entry { return logrus.NewEntry(a.logger) }

// NewRootCmd builds the command tree. Output goes to the writers configured
// on the returned command (stdout/stderr by default).
func NewRootCmd(build BuildInfo) *cobra.Command {
	a := &app{build: build, logger: logrus.New()}

	root := &cobra.Command{
		Use:   "narwhal",
		Short: "narwhal - MITRE ATT&CK aligned security assessment",
		Long: `narwhal runs assessment workflows against a client's declared assets,
maps every executed step to MITRE ATT&CK tactics and techniques and
produces a weighted risk score with a plain-text report.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			a.out = cmd.OutOrStdout()
			a.errOut = cmd.ErrOrStderr()
			closer, err := logger.Configure(a.logger, logger.Options{
				Level:    a.logLevel,
				Format:   logger.Format(a.logFormat),
				FilePath: a.logFile,
				Color:    isTerminal(a.errOut),
			}, a.errOut)
			if err != nil {
				return err
			}
			a.logCloser = closer
			return nil
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			if a.logCloser != nil {
				return a.logCloser.Close()
			}
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.logLevel, "log-level", "info", "Log level (trace, debug, info, warn, error)")
	pf.StringVar(&a.logFormat, "log-format", "text", "Log format: text or json")
	pf.StringVar(&a.logFile, "log-file", "", "Also write logs to this file")

	root.AddCommand(
		newRunCmd(a),
		newStepsCmd(a),
		newCatalogCmd(a),
		newWorkflowsCmd(a),
		newBaselineCmd(a),
		newTrendCmd(a),
		newVersionCmd(a),
	)
	root.SetGlobalNormalizationFunc(underscoreFlags)
	return root
}

// underscoreFlags accepts --network_range style spellings.
func underscoreFlags(_ *pflag.FlagSet, name string) pflag.NormalizedName {
	return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Execute runs the CLI and returns the process exit code.
func Execute(build BuildInfo) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := NewRootCmd(build)
	err := root.ExecuteContext(ctx)
	code := ExitCode(err)
	if err != nil && code != ExitGate {
		fmt.Fprintf(root.ErrOrStderr(), "Error: %v\n", err)
	}
	return code
}
