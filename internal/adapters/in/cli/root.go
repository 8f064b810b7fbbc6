// Package cli implements the CLI adapter for hearth.
// This package provides Cobra commands that delegate to the app layer.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/bnema/hearth/internal/adapters/in/cli/ui/styles"
	"github.com/bnema/hearth/internal/app"
	"github.com/bnema/hearth/internal/domain"
)

var (
	// Version information (set at build time)
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

// kernel is the slice of the app kernel the commands drive.
type kernel interface {
	Run(ctx context.Context) (domain.Report, error)
	Down(ctx context.Context) (domain.StepResult, error)
	Status(ctx context.Context) ([]domain.UnitState, error)
	Render(ctx context.Context) (app.Preview, error)
	Close() error
}

// openKernel is replaced in tests.
var openKernel = func(ctx context.Context, opts app.Options) (kernel, error) {
	k, err := app.NewKernel(ctx, opts)
	if err != nil {
		return nil, err
	}
	return k, nil
}

// rootOptions holds the persistent flags.
type rootOptions struct {
	configPath string
	inputsPath string
}

func (o *rootOptions) app() app.Options {
	return app.Options{ConfigPath: o.configPath, InputsPath: o.inputsPath}
}

// NewRootCmd creates the root command for the hearth CLI.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "hearth",
		Short: "hearth - single-VM bootstrap for a self-hosted app",
		Long: `hearth converges a freshly booted VM to a running self-hosted stack.

On every boot it prepares the data disk, writes the reverse-proxy
configuration, creates the container network, pulls images and registers
the application, reverse proxy and dynamic-DNS services with systemd.
Every step is idempotent, so running it again is always safe.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if !isatty.IsTerminal(os.Stdout.Fd()) && !isatty.IsCygwinTerminal(os.Stdout.Fd()) {
				styles.UseASCII()
			}
		},
	}

	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Path to config file")
	rootCmd.PersistentFlags().StringVarP(&opts.inputsPath, "inputs", "i", "",
		fmt.Sprintf("Path to the provisioning inputs file (default %s)", app.DefaultInputsPath))

	rootCmd.AddCommand(newRunCmd(opts))
	rootCmd.AddCommand(newRenderCmd(opts))
	rootCmd.AddCommand(newStatusCmd(opts))
	rootCmd.AddCommand(newDownCmd(opts))
	rootCmd.AddCommand(newWatchCmd(opts))
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

// newVersionCmd creates the version command.
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("hearth %s\n", Version)
			cmd.Printf("Commit: %s\n", Commit)
			cmd.Printf("Build Date: %s\n", BuildDate)
		},
	}
}

// SetVersionInfo sets the version information for the CLI.
func SetVersionInfo(version, commit, date string) {
	if version != "" {
		Version = version
	}
	if commit != "" {
		Commit = commit
	}
	if date != "" {
		BuildDate = date
	}
}

// Execute runs the CLI and returns the process exit code. Any error maps to 1.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		_ = cliWriteLine(os.Stderr, cliRenderError(err.Error()))
		return 1
	}
	return 0
}
