package cli

import (
	"errors"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/bnema/hearth/internal/adapters/in/cli/ui/components"
	"github.com/bnema/hearth/internal/app"
	"github.com/bnema/hearth/internal/domain"
)

// stdinIsTerminal is replaced in tests.
var stdinIsTerminal = func() bool {
	return isatty.IsTerminal(os.Stdin.Fd())
}

// confirm is replaced in tests.
var confirm = components.RunConfirm

func addOutputFlag(cmd *cobra.Command, format *string) {
	cmd.Flags().StringVarP(format, "output", "o", outputText, "Output format: text, json or yaml")
}

// newRunCmd creates the run command.
func newRunCmd(opts *rootOptions) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Converge the host once",
		Long: `Run every bootstrap step in order: data disk, reverse-proxy configuration,
container network, registry login, image prefetch, unit synthesis and
service activation. Safe to repeat; this is what the boot unit executes.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateOutput(format); err != nil {
				return err
			}

			k, err := openKernel(cmd.Context(), opts.app())
			if err != nil {
				return err
			}
			defer func() { _ = k.Close() }()

			report, runErr := k.Run(cmd.Context())
			if err := writeReport(cmd, format, report, runErr); err != nil {
				return err
			}
			return runErr
		},
	}
	addOutputFlag(cmd, &format)
	return cmd
}

func writeReport(cmd *cobra.Command, format string, report domain.Report, runErr error) error {
	if format == outputText {
		if len(report.Steps) == 0 {
			return nil
		}
		return renderReport(cmd.OutOrStdout(), report)
	}
	return writeStructured(cmd.OutOrStdout(), format, toReportDTO(report, runErr))
}

// newRenderCmd creates the render command.
func newRenderCmd(opts *rootOptions) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "render",
		Short: "Print the generated proxy configuration and units",
		Long: `Render computes everything a run would write without touching the host.
Environment values are never printed, only their keys.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateOutput(format); err != nil {
				return err
			}

			k, err := openKernel(cmd.Context(), opts.app())
			if err != nil {
				return err
			}
			defer func() { _ = k.Close() }()

			preview, err := k.Render(cmd.Context())
			if err != nil {
				return err
			}
			dto := toPreviewDTO(preview)
			if format == outputText {
				return renderPreview(cmd.OutOrStdout(), dto)
			}
			return writeStructured(cmd.OutOrStdout(), format, dto)
		},
	}
	addOutputFlag(cmd, &format)
	return cmd
}

// newStatusCmd creates the status command.
func newStatusCmd(opts *rootOptions) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the state of the managed services",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateOutput(format); err != nil {
				return err
			}

			k, err := openKernel(cmd.Context(), opts.app())
			if err != nil {
				return err
			}
			defer func() { _ = k.Close() }()

			states, err := k.Status(cmd.Context())
			if err != nil {
				return err
			}
			if format == outputText {
				return renderUnits(cmd.OutOrStdout(), states)
			}
			return writeStructured(cmd.OutOrStdout(), format, toUnitDTOs(states))
		},
	}
	addOutputFlag(cmd, &format)
	return cmd
}

// newDownCmd creates the down command.
func newDownCmd(opts *rootOptions) *cobra.Command {
	var (
		format string
		yes    bool
	)

	cmd := &cobra.Command{
		Use:   "down",
		Short: "Stop and unregister the managed services",
		Long: `Down stops the three managed services and removes their unit and
environment files. The data disk, its mount record and the container
network are left in place.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateOutput(format); err != nil {
				return err
			}

			if !yes {
				if !stdinIsTerminal() {
					return errors.New("refusing to remove services without --yes on a non-interactive terminal")
				}
				confirmed, err := confirm("Stop and remove the managed services?",
					components.WithDescription("Data on the mounted volume is kept."))
				if err != nil {
					return err
				}
				if !confirmed {
					return cliWriteLine(cmd.OutOrStdout(), cliRenderMuted("Cancelled"))
				}
			}

			k, err := openKernel(cmd.Context(), opts.app())
			if err != nil {
				return err
			}
			defer func() { _ = k.Close() }()

			result, err := k.Down(cmd.Context())
			if err != nil {
				return err
			}
			if format == outputText {
				return renderStep(cmd.OutOrStdout(), "hearth down", result)
			}
			return writeStructured(cmd.OutOrStdout(), format, toStepDTO(result))
		},
	}
	addOutputFlag(cmd, &format)
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation")
	return cmd
}

// runWatch is replaced in tests.
var runWatch = app.Watch

// newWatchCmd creates the watch command.
func newWatchCmd(opts *rootOptions) *cobra.Command {
	var (
		format   string
		debounce time.Duration
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Converge now and again whenever the configuration changes",
		Long: `Watch runs the bootstrap, then re-runs it each time the config file or
the provisioning inputs file is modified. Failed runs are reported and
the watch continues. Stops on SIGINT or SIGTERM.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateOutput(format); err != nil {
				return err
			}

			return runWatch(cmd.Context(), opts.app(), debounce, func(report domain.Report, err error) {
				if werr := writeReport(cmd, format, report, err); werr != nil {
					_ = cliWriteLine(cmd.ErrOrStderr(), cliRenderError(werr.Error()))
				}
				if err != nil && format == outputText {
					_ = cliWriteLine(cmd.ErrOrStderr(), cliRenderError(err.Error()))
				}
			})
		},
	}
	addOutputFlag(cmd, &format)
	cmd.Flags().DurationVar(&debounce, "debounce", app.DefaultDebounce, "Quiet period before a change triggers a run")
	return cmd
}
