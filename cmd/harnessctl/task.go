package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/cklxx/NanoBee/internal/core/ports"
	"github.com/cklxx/NanoBee/internal/core/services"
	"github.com/cklxx/NanoBee/internal/domain"
	"github.com/cklxx/NanoBee/internal/progress"
	"github.com/urfave/cli/v3"
)

const (
	goalFlag        = "goal"
	taskIDFlag      = "id"
	userFlag        = "user"
	maxSessionsFlag = "max-sessions"
	pollFlag        = "poll-interval"
	retryFlag       = "retry-delay"
)

// newTaskCmd returns the command that groups the harness task operations.
func newTaskCmd() *cli.Command {
	return &cli.Command{
		Name:  "task",
		Usage: "create, run and follow harness tasks",
		Commands: []*cli.Command{
			{
				Name:  "create",
				Usage: "create a task from a goal",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: goalFlag, Usage: "what the agents should build", Required: true},
					&cli.StringFlag{Name: taskIDFlag, Usage: "explicit task id"},
					&cli.StringFlag{Name: userFlag, Usage: "user id recorded on the task"},
				},
				Action: taskCreate,
			},
			{
				Name:   "list",
				Usage:  "list tasks",
				Action: taskList,
			},
			{
				Name:      "show",
				Usage:     "show a task with its events, features and progress",
				ArgsUsage: "TASK_ID",
				Action:    taskShow,
			},
			{
				Name:      "init",
				Usage:     "run the initializer session",
				ArgsUsage: "TASK_ID",
				Action:    taskAction(domain.TaskActionInit),
			},
			{
				Name:      "code",
				Usage:     "run coding sessions until the features pass",
				ArgsUsage: "TASK_ID",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: maxSessionsFlag, Usage: "stop after this many sessions (0: backend default)"},
				},
				Action: taskAction(domain.TaskActionCoding),
			},
			{
				Name:      "eval",
				Usage:     "evaluate the task workspace",
				ArgsUsage: "TASK_ID",
				Action:    taskAction(domain.TaskActionEval),
			},
			{
				Name:      "watch",
				Usage:     "print the task's progress log whenever it changes",
				ArgsUsage: "TASK_ID",
				Flags: []cli.Flag{
					&cli.DurationFlag{Name: pollFlag, Value: progress.DefaultPollInterval, Usage: "poll cadence while the stream is down"},
					&cli.DurationFlag{Name: retryFlag, Value: progress.DefaultRetryDelay, Usage: "wait before reopening a failed stream"},
				},
				Action: taskWatch,
			},
		},
	}
}

func taskService(e *env) *services.TaskService {
	return services.NewTaskService(services.TaskServiceConfig{Harness: e.client, Logger: e.log})
}

func taskCreate(ctx context.Context, cmd *cli.Command) error {
	e, err := newEnv(cmd)
	if err != nil {
		return err
	}
	task, err := taskService(e).CreateTask(ctx, ports.CreateTaskInput{
		Goal:   cmd.String(goalFlag),
		TaskID: cmd.String(taskIDFlag),
		UserID: cmd.String(userFlag),
	})
	if err != nil {
		return err
	}
	return e.printJSON(task)
}

func taskList(ctx context.Context, cmd *cli.Command) error {
	e, err := newEnv(cmd)
	if err != nil {
		return err
	}
	tasks, err := taskService(e).ListTasks(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(e.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tCREATED\tGOAL")
	for _, t := range tasks {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", t.ID, t.Status, t.CreatedAt, t.Goal)
	}
	return tw.Flush()
}

func taskShow(ctx context.Context, cmd *cli.Command) error {
	id, err := requireArg(cmd, "TASK_ID")
	if err != nil {
		return err
	}
	e, err := newEnv(cmd)
	if err != nil {
		return err
	}
	detail, err := taskService(e).Detail(ctx, id)
	if err != nil {
		return err
	}
	return e.printJSON(detail)
}

func taskAction(action domain.TaskAction) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		id, err := requireArg(cmd, "TASK_ID")
		if err != nil {
			return err
		}
		e, err := newEnv(cmd)
		if err != nil {
			return err
		}
		res, err := taskService(e).RunAction(ctx, id, action, int(cmd.Int(maxSessionsFlag)))
		if err != nil {
			return err
		}
		fmt.Fprintln(e.out, res.Message)
		return nil
	}
}

// taskWatch follows the progress log until interrupted. Each new value is
// printed in full, separated by a rule.
func taskWatch(ctx context.Context, cmd *cli.Command) error {
	id, err := requireArg(cmd, "TASK_ID")
	if err != nil {
		return err
	}
	e, err := newEnv(cmd)
	if err != nil {
		return err
	}

	updates := make(chan string, 1)
	client := progress.NewClient(progress.Config{
		Transport:    e.client,
		Logger:       e.log.Named("progress"),
		PollInterval: cmd.Duration(pollFlag),
		RetryDelay:   cmd.Duration(retryFlag),
		OnUpdate: func(p string) {
			select {
			case <-updates:
			default:
			}
			updates <- p
		},
	})
	if err := client.Start(ctx, id); err != nil {
		return err
	}
	defer client.Stop()

	last := ""
	for {
		select {
		case <-ctx.Done():
			return nil
		case p := <-updates:
			if p == last {
				continue
			}
			last = p
			fmt.Fprintf(e.out, "---- %s [%s]\n%s\n", id, client.State(), p)
		}
	}
}
