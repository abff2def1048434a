package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"tasksync/app"
	"tasksync/domain"
)

var (
	addPriority string
	addAlarm    string
	alarmNotif  string
	toggleDone  bool
)

var addCmd = &cobra.Command{
	Use:   "add <text>",
	Short: "Add a task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		in := domain.TaskInput{Text: args[0], Priority: domain.Priority(addPriority)}
		if addAlarm != "" {
			at, err := time.Parse(time.RFC3339, addAlarm)
			if err != nil {
				return fmt.Errorf("invalid --alarm: %w", err)
			}
			in.AlarmTime = &at
		}
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			res, err := a.Orchestrator.AddTask(ctx, in)
			if err != nil {
				return err
			}
			return printResult(cmd, "added", res)
		})
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			tasks, err := a.Orchestrator.ListTasks(ctx)
			if err != nil {
				return err
			}
			return printTasks(cmd, tasks, a.Orchestrator.Online())
		})
	},
}

var toggleCmd = &cobra.Command{
	Use:   "toggle <id>",
	Short: "Flip the completion of a task",
	Long: `Flip the completion of a task. Pass --completed with the state you
currently see; the task ends up in the opposite state.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			res, err := a.Orchestrator.ToggleTask(ctx, args[0], toggleDone)
			if err != nil {
				return err
			}
			return printResult(cmd, "toggled", res)
		})
	},
}

var priorityCmd = &cobra.Command{
	Use:   "priority <id> <high|medium|low>",
	Short: "Change the priority of a task",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := domain.ParsePriority(args[1])
		if err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			res, err := a.Orchestrator.SetPriority(ctx, args[0], p)
			if err != nil {
				return err
			}
			return printResult(cmd, "priority set", res)
		})
	},
}

var alarmCmd = &cobra.Command{
	Use:   "alarm <id> <RFC3339 time>",
	Short: "Set the alarm of a task",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		at, err := time.Parse(time.RFC3339, args[1])
		if err != nil {
			return fmt.Errorf("invalid alarm time: %w", err)
		}
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			res, err := a.Orchestrator.SetAlarm(ctx, args[0], at, alarmNotif)
			if err != nil {
				return err
			}
			return printResult(cmd, "alarm set", res)
		})
	},
}

var clearAlarmCmd = &cobra.Command{
	Use:   "clear-alarm <id>",
	Short: "Remove the alarm of a task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			res, err := a.Orchestrator.ClearAlarm(ctx, args[0])
			if err != nil {
				return err
			}
			return printResult(cmd, "alarm cleared", res)
		})
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			res, err := a.Orchestrator.DeleteTask(ctx, args[0])
			if err != nil {
				return err
			}
			return printResult(cmd, "deleted", res)
		})
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print the task list every time it changes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			updates := make(chan []domain.Task, 1)
			unsubscribe := a.Orchestrator.Subscribe(ctx, func(tasks []domain.Task) {
				select {
				case updates <- tasks:
				case <-ctx.Done():
				}
			})
			defer unsubscribe()
			for {
				select {
				case <-ctx.Done():
					return nil
				case tasks := <-updates:
					if err := printTasks(cmd, tasks, a.Orchestrator.Online()); err != nil {
						return err
					}
				}
			}
		})
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the sync state after listing once",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			_, err := a.Orchestrator.ListTasks(ctx)
			st := a.Orchestrator.Status()
			if jsonOutput {
				return printJSON(cmd, st)
			}
			scope := "unresolved"
			if st.Scope != nil {
				scope = st.Scope.Key()
			}
			fmt.Fprintf(cmd.OutOrStdout(), "online: %v\nscope:  %s\n", st.Online, scope)
			return err
		})
	},
}

var diagnoseCmd = &cobra.Command{
	Use:   "diagnose",
	Short: "Check the remote store end to end",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			rep := a.Orchestrator.Diagnose(ctx)
			if jsonOutput {
				if err := printJSON(cmd, rep); err != nil {
					return err
				}
			} else {
				printReport(cmd, rep)
			}
			if !rep.OK() {
				return fmt.Errorf("diagnostics failed")
			}
			return nil
		})
	},
}

func init() {
	addCmd.Flags().StringVarP(&addPriority, "priority", "p", "", "high, medium or low")
	addCmd.Flags().StringVar(&addAlarm, "alarm", "", "alarm time (RFC3339)")
	alarmCmd.Flags().StringVar(&alarmNotif, "notification", "", "id of the scheduled notification")
	toggleCmd.Flags().BoolVar(&toggleDone, "completed", false, "current completion state of the task")
}
