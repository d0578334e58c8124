package main

import (
	"errors"
	"strings"

	"github.com/spf13/cobra"
)

var turnCmd = &cobra.Command{
	Use:   "turn <message>",
	Short: "Send a single message and print the result",
	Example: `  routemesh turn "What's AAPL's price?"
  routemesh -t trip turn "Plan a trip to Paris from 2025-03-01 to 2025-03-10"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp(cmd.Context())
		if err != nil {
			return err
		}

		res, turnErr := step(cmd.Context(), a.svc.Mesh, threadID, strings.Join(args, " "))
		render(cmd.OutOrStdout(), res)

		return errors.Join(turnErr, a.close(cmd))
	},
}

func init() {
	rootCmd.AddCommand(turnCmd)
}
