package cmd

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newChatCmd() *cobra.Command {
	var (
		from   string
		memory bool
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Talk to the booking bot from the terminal",
		Long:  "chat feeds each line from stdin to the booking conversation as if it came from --from and prints the reply. Nothing is sent over WhatsApp.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := wireApp(wireOptions{memory: memory, offline: true})
			if err != nil {
				return err
			}
			defer a.Close()

			if memory {
				if _, _, err := seedDirectory(cmd.Context(), a.store); err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "Chatting as %s (Ctrl+D to quit)\n", from)

			scanner := bufio.NewScanner(cmd.InOrStdin())
			for {
				_, _ = fmt.Fprint(out, "> ")
				if !scanner.Scan() {
					break
				}
				line := strings.TrimSpace(scanner.Text())
				if line == "" {
					continue
				}

				reply, err := a.conversation.ReceiveMessage(cmd.Context(), from, line)
				if err != nil {
					_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "error: %v\n", err)
					continue
				}
				_, _ = fmt.Fprintf(out, "%s\n\n", reply)
			}
			_, _ = fmt.Fprintln(out)
			return scanner.Err()
		},
	}

	cmd.Flags().StringVar(&from, "from", "", "customer WhatsApp number")
	cmd.Flags().BoolVar(&memory, "memory", false, "use a seeded in-memory store")
	_ = cmd.MarkFlagRequired("from")
	return cmd
}
