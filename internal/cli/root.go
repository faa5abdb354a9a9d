// Package cli implements the standalone crew runner.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"dental-recall/internal/app"
	"dental-recall/internal/config"
	"dental-recall/internal/crew"
	"dental-recall/internal/logging"
)

const Banner = "DENTAL RECALL CREW EXECUTION COMPLETE"

type runtime struct {
	configPath string
	load       func(path string) (*config.Config, error)
	now        func() time.Time
}

func NewRoot() *cobra.Command {
	path := os.Getenv("CONFIG_FILE")
	if path == "" {
		path = config.DefaultConfigFile
	}
	return newRoot(&runtime{configPath: path, load: config.Load, now: time.Now})
}

func newRoot(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "crew",
		Short:         "Run the dental reminder crew",
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE:          func(c *cobra.Command, _ []string) error { return c.Help() },
	}
	cmd.PersistentFlags().StringVar(&rt.configPath, "config", rt.configPath, "path to the YAML config file")
	cmd.AddCommand(newRunCmd(rt))
	cmd.AddCommand(newTriggerCmd(rt))
	cmd.AddCommand(newReplayCmd(rt))
	return cmd
}

// open builds the application with logs going to the command's stderr.
func (rt *runtime) open(cmd *cobra.Command) (*app.App, error) {
	cfg, err := rt.load(rt.configPath)
	if err != nil {
		return nil, err
	}
	log := logging.New(cfg.Log.Level, cfg.Log.Format, cmd.ErrOrStderr())
	return app.Build(cmd.Context(), cfg, log)
}

// fail prints the runner's error line and hands err back to cobra.
func fail(cmd *cobra.Command, action string, err error) error {
	fmt.Fprintf(cmd.ErrOrStderr(), "An error occurred while %s: %v\n", action, err)
	return err
}

func printResult(cmd *cobra.Command, res *crew.Result, banner bool) {
	out := cmd.OutOrStdout()
	if banner {
		rule := strings.Repeat("=", 50)
		fmt.Fprintf(out, "\n%s\n%s\n%s\n", rule, Banner, rule)
	}
	fmt.Fprint(out, res.String())
}

func newRunCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the crew with the sample appointment",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			const action = "running the crew"
			a, err := rt.open(cmd)
			if err != nil {
				return fail(cmd, action, err)
			}
			defer a.Close()

			now := rt.now().In(a.Location)
			res, err := a.Reminders.Trigger(cmd.Context(), crew.SampleInputs(now))
			if err != nil {
				return fail(cmd, action, err)
			}
			printResult(cmd, res, true)
			return nil
		},
	}
}

func newTriggerCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "trigger <json>",
		Short: "Run the crew with a JSON trigger payload",
		Long: `Trigger runs the crew with the inputs in a JSON object. Missing keys
are empty and current_datetime is always the current time.

Example:
  crew trigger '{"appointment_id":"APT-1","reminder_type":"24h","appointment_datetime":"2025-11-20 10:00:00"}'`,
		RunE: func(cmd *cobra.Command, args []string) error {
			const action = "running the crew with trigger"
			if len(args) < 1 {
				return fail(cmd, action, errors.New("no trigger payload provided"))
			}
			a, err := rt.open(cmd)
			if err != nil {
				return fail(cmd, action, err)
			}
			defer a.Close()

			in, err := crew.InputsFromJSON([]byte(args[0]), rt.now().In(a.Location))
			if err != nil {
				return fail(cmd, action, fmt.Errorf("invalid JSON payload: %w", err))
			}
			res, err := a.Reminders.Trigger(cmd.Context(), in)
			if err != nil {
				return fail(cmd, action, err)
			}
			printResult(cmd, res, false)
			return nil
		},
	}
}

func newReplayCmd(rt *runtime) *cobra.Command {
	var from string
	cmd := &cobra.Command{
		Use:   "replay <run-id>",
		Short: "Replay a stored run",
		Long: `Replay runs a stored run again. With --from, outputs recorded for the
tasks before it are reused. Runs are only kept across invocations with a
sqlite or postgres storage driver.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			const action = "replaying the crew"
			a, err := rt.open(cmd)
			if err != nil {
				return fail(cmd, action, err)
			}
			defer a.Close()

			res, err := a.Reminders.Replay(cmd.Context(), args[0], from)
			if err != nil {
				return fail(cmd, action, err)
			}
			printResult(cmd, res, false)
			return nil
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "task to replay from ("+strings.Join(crew.TaskNames(), ", ")+")")
	return cmd
}

// Execute runs the root command with ctx.
func Execute(ctx context.Context) error {
	return NewRoot().ExecuteContext(ctx)
}
