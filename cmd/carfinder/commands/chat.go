package commands

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/WessleyAI/carfinder/engine/domain"
)

func chatCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Talk through what you need and get recommendations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := e.open(ctx)
			if err != nil {
				return err
			}
			defer a.Close()
			a.LoadIndex(ctx)

			out := cmd.OutOrStdout()
			st := domain.NewConversation()
			sc := bufio.NewScanner(cmd.InOrStdin())
			fmt.Fprintln(out, `Hi! Tell me what kind of car you're after. Type "quit" to leave.`)
			for ctx.Err() == nil {
				fmt.Fprint(out, "> ")
				if !sc.Scan() {
					break
				}
				line := strings.TrimSpace(sc.Text())
				switch strings.ToLower(line) {
				case "":
					continue
				case "quit", "exit", "bye":
					return nil
				}
				res := a.Finder.Chat(ctx, st, line)
				fmt.Fprintln(out, res.Reply)
				if res.Search != nil {
					printResults(out, *res.Search)
				}
			}
			fmt.Fprintln(out)
			return sc.Err()
		},
	}
}
