package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"

	"tasksync/domain"
	"tasksync/syncer"
)

func printJSON(cmd *cobra.Command, v any) error {
	data, err := sonic.ConfigStd.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return err
}

func printResult(cmd *cobra.Command, verb string, res syncer.WriteResult) error {
	if jsonOutput {
		return printJSON(cmd, res)
	}
	suffix := ""
	if res.Offline {
		suffix = " (offline, stored locally)"
	}
	_, err := fmt.Fprintf(cmd.OutOrStdout(), "%s %s%s\n", verb, res.ID, suffix)
	return err
}

func printTasks(cmd *cobra.Command, tasks []domain.Task, online bool) error {
	if jsonOutput {
		return printJSON(cmd, tasks)
	}
	out := cmd.OutOrStdout()
	if !online {
		fmt.Fprintln(out, "offline: showing the local copy")
	}
	if len(tasks) == 0 {
		_, err := fmt.Fprintln(out, "no tasks")
		return err
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tDONE\tPRIORITY\tALARM\tTEXT")
	for _, t := range tasks {
		done := " "
		if t.Completed {
			done = "x"
		}
		alarm := "-"
		if t.AlarmTime != nil {
			alarm = t.AlarmTime.Local().Format("2006-01-02 15:04")
		}
		fmt.Fprintf(w, "%s\t[%s]\t%s\t%s\t%s\n", t.ID, done, t.Priority, alarm, t.Text)
	}
	return w.Flush()
}

func printReport(cmd *cobra.Command, rep syncer.Report) {
	out := cmd.OutOrStdout()
	step := func(name string, ok bool) {
		mark := "FAIL"
		if ok {
			mark = "ok"
		}
		fmt.Fprintf(out, "%-10s %s\n", name, mark)
	}
	fmt.Fprintf(out, "scope      %s\n", rep.Scope)
	step("identity", rep.IdentityOK)
	step("list", rep.ListOK)
	step("write", rep.WriteOK)
	step("cleanup", rep.CleanupOK)
	fmt.Fprintf(out, "tasks      %d\nelapsed    %s\n", rep.TaskCount, rep.Elapsed)
	for _, e := range rep.Errors {
		fmt.Fprintf(out, "error      %s\n", e)
	}
}
