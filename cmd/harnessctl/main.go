// Command harnessctl drives the agent harness from a terminal: it creates
// and runs tasks, follows their progress log and builds PPT outlines.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"
)

const (
	apiFlag      = "api"
	logLevelFlag = "log-level"
	timeoutFlag  = "timeout"
)

func newRootCmd() *cli.Command {
	return &cli.Command{
		Name:      "harnessctl",
		Usage:     "harnessctl task watch TASK_ID",
		Writer:    os.Stdout,
		ErrWriter: os.Stderr,
		Description: `harnessctl talks to the agent harness backend directly. It creates tasks,
runs the initializer, coding and evaluation steps, follows a task's progress
log and generates slide outlines.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    apiFlag,
				Usage:   "harness base URL",
				Value:   "http://localhost:8000",
				Sources: cli.EnvVars("NANOBEE_HARNESS_BASE_URL"),
			},
			&cli.StringFlag{
				Name:    logLevelFlag,
				Usage:   "debug, info, warn or error",
				Value:   "warn",
				Sources: cli.EnvVars("NANOBEE_LOGGER_LEVEL"),
			},
			&cli.DurationFlag{
				Name:  timeoutFlag,
				Usage: "timeout for short harness calls; runs and streams are bounded by Ctrl-C only",
				Value: 30 * time.Second,
			},
		},
		Commands: []*cli.Command{
			newTaskCmd(),
			newPPTCmd(),
			newSecretCmd(),
		},
		EnableShellCompletion: true,
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "harnessctl:", err)
		os.Exit(1)
	}
}
