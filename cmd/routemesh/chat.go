package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hupe1980/routemesh"
	"github.com/hupe1980/routemesh/engine"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat loop",
	Long: `Start an interactive chat on the selected thread.

While a code change waits for approval, answer with:

  y                 accept the change
  n <feedback>      reject it, optionally explaining why
  stop              stop the open-code workflow

Any other text starts a new turn. Slash commands:

  /auto on|off      toggle automatic approval
  /thread <id>      switch thread
  /history          list checkpoints of the thread
  /quit             exit`,
	RunE: runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, _ []string) error {
	a, err := loadApp(cmd.Context())
	if err != nil {
		return err
	}

	loopErr := chatLoop(cmd.Context(), a.svc.Mesh, cmd.InOrStdin(), cmd.OutOrStdout(), threadID)

	return errors.Join(loopErr, a.close(cmd))
}

// chatLoop reads lines from in until EOF, /quit or cancellation.
func chatLoop(ctx context.Context, mesh *routemesh.Mesh, in io.Reader, out io.Writer, thread string) error {
	scanner := bufio.NewScanner(in)

	fmt.Fprintf(out, "thread %s, /quit to exit\n", thread)

	for {
		fmt.Fprint(out, "> ")

		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}

		if ctx.Err() != nil {
			return nil
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			quit, next, err := slash(ctx, mesh, out, thread, line)
			if err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
			}
			if quit {
				return nil
			}
			thread = next
			continue
		}

		res, err := step(ctx, mesh, thread, line)
		render(out, res)
		if err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
		}
	}
}

// step resumes a pending approval when line is a decision, otherwise it runs
// a new turn.
func step(ctx context.Context, mesh *routemesh.Mesh, thread, line string) (*engine.TurnResult, error) {
	state, err := mesh.State(ctx, thread)
	if err != nil {
		return nil, err
	}

	if state.Pending != nil {
		if value, ok := parseDecision(line); ok {
			return mesh.Resume(ctx, thread, value)
		}
	}

	return mesh.Turn(ctx, thread, line)
}

func slash(ctx context.Context, mesh *routemesh.Mesh, out io.Writer, thread, line string) (quit bool, next string, err error) {
	fields := strings.Fields(line)
	next = thread

	switch fields[0] {
	case "/quit", "/exit":
		return true, thread, nil
	case "/auto":
		on := len(fields) > 1 && fields[1] == "on"
		if err := mesh.SetAutoAccept(ctx, thread, on); err != nil {
			return false, thread, err
		}
		fmt.Fprintf(out, "auto-accept %v\n", on)
	case "/thread":
		if len(fields) < 2 {
			return false, thread, errors.New("usage: /thread <id>")
		}
		next = fields[1]
		fmt.Fprintf(out, "thread %s\n", next)
	case "/history":
		return false, thread, printHistory(ctx, mesh, out, thread)
	default:
		return false, thread, fmt.Errorf("unknown command %s", fields[0])
	}

	return false, next, nil
}
