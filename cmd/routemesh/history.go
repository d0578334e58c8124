package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/hupe1980/routemesh"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List the checkpoints of a thread",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := loadApp(cmd.Context())
		if err != nil {
			return err
		}

		return errors.Join(printHistory(cmd.Context(), a.svc.Mesh, cmd.OutOrStdout(), threadID), a.close(cmd))
	},
}

var branchCmd = &cobra.Command{
	Use:   "branch <checkpoint-id> <new-thread>",
	Short: "Start a new thread from a checkpoint",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp(cmd.Context())
		if err != nil {
			return err
		}

		cp, err := a.svc.Store().Branch(cmd.Context(), args[0], args[1])
		if err == nil {
			fmt.Fprintf(cmd.OutOrStdout(), "thread %s starts at checkpoint %s\n", cp.ThreadID, cp.ID)
		}

		return errors.Join(err, a.close(cmd))
	},
}

func init() {
	rootCmd.AddCommand(historyCmd, branchCmd)
}

func printHistory(ctx context.Context, mesh *routemesh.Mesh, out io.Writer, thread string) error {
	history, err := mesh.Store().History(ctx, thread)
	if err != nil {
		return err
	}

	for _, cp := range history {
		route := cp.State.Route
		if route == "" {
			route = "-"
		}

		pending := ""
		if cp.State.Pending != nil {
			pending = " (awaiting approval)"
		}

		fmt.Fprintf(out, "%s  %s  %-13s %3d messages%s\n",
			cp.ID, cp.CreatedAt.Format("2006-01-02 15:04:05"), route, len(cp.State.Messages), pending)
	}

	return nil
}
