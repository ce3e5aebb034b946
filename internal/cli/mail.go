package cli

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/lu-zhengda/termcix/internal/app"
	"github.com/lu-zhengda/termcix/internal/domain"
)

func newMailCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mail",
		Short: "Read and send private mail",
	}
	cmd.AddCommand(newMailListCmd())
	cmd.AddCommand(newMailReadCmd())
	cmd.AddCommand(newMailSendCmd())
	cmd.AddCommand(newMailReplyCmd())
	cmd.AddCommand(newMailDeleteCmd())
	return cmd
}

func newMailListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List conversations, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCache(cmd, func(ctx context.Context, svc *app.Service) error {
				convs := svc.Mail.All()
				if jsonFlag {
					out := make([]jsonConversation, 0, len(convs))
					for _, c := range convs {
						out = append(out, toJSONConversation(c, nil))
					}
					return printJSON(out)
				}
				if len(convs) == 0 {
					fmt.Println("No mail.")
					return nil
				}
				w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tUNREAD\tWITH\tSUBJECT\tDATE")
				for _, c := range convs {
					state := " "
					switch {
					case c.LastError:
						state = "E"
					case c.Unread:
						state = "*"
					}
					fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", c.ID, state, c.Author, truncate(c.Subject, 50), c.Date.Local().Format("2006-01-02 15:04"))
				}
				return w.Flush()
			})
		},
	}
}

func newMailReadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "read <conversation-id>",
		Short: "Show a conversation and mark it read",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			return withService(cmd, func(ctx context.Context, svc *app.Service) error {
				conv, ok := svc.Mail.Conversation(ids[0])
				if !ok {
					return fmt.Errorf("conversation %d: %w", ids[0], domain.ErrNotFound)
				}
				msgs := svc.Mail.Messages(conv.ID)
				if conv.Unread {
					if err := svc.Mail.MarkRead(ctx, conv.ID); err != nil {
						return err
					}
				}
				if jsonFlag {
					return printJSON(toJSONConversation(conv, msgs))
				}
				fmt.Printf("%s (with %s)\n", conv.Subject, conv.Author)
				for _, m := range msgs {
					fmt.Printf("\n--- %s, %s", m.Author, m.Date.Local().Format(time.DateTime))
					if m.SendPending {
						fmt.Print(" [not sent]")
					}
					fmt.Printf("\n%s\n", m.Body)
				}
				return nil
			})
		},
	}
}

func newMailSendCmd() *cobra.Command {
	var toFlag, subjectFlag, bodyFlag string

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Start a new conversation",
		RunE: func(cmd *cobra.Command, args []string) error {
			if toFlag == "" {
				return fmt.Errorf("--to is required")
			}
			if subjectFlag == "" {
				return fmt.Errorf("--subject is required")
			}
			body, err := readBody(bodyFlag)
			if err != nil {
				return err
			}
			return withService(cmd, func(ctx context.Context, svc *app.Service) error {
				conv, err := svc.Mail.Compose(ctx, toFlag, subjectFlag, body)
				if err != nil {
					return err
				}
				return report("mail-send", conv.ID, fmt.Sprintf("Conversation %d queued.", conv.ID))
			})
		},
	}
	cmd.Flags().StringVar(&toFlag, "to", "", "recipient user name")
	cmd.Flags().StringVar(&subjectFlag, "subject", "", "subject")
	cmd.Flags().StringVar(&bodyFlag, "body", "", "message body (use '-' to read from stdin)")
	return cmd
}

func newMailReplyCmd() *cobra.Command {
	var bodyFlag string

	cmd := &cobra.Command{
		Use:   "reply <conversation-id>",
		Short: "Reply in a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			body, err := readBody(bodyFlag)
			if err != nil {
				return err
			}
			return withService(cmd, func(ctx context.Context, svc *app.Service) error {
				m, err := svc.Mail.Reply(ctx, ids[0], body)
				if err != nil {
					return err
				}
				return report("mail-reply", m.ID, "Reply queued.")
			})
		},
	}
	cmd.Flags().StringVar(&bodyFlag, "body", "", "reply body (use '-' to read from stdin)")
	return cmd
}

func newMailDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <conversation-id>...",
		Short: "Delete conversations",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			return withService(cmd, func(ctx context.Context, svc *app.Service) error {
				for _, id := range ids {
					if err := svc.Mail.Delete(ctx, id); err != nil {
						return fmt.Errorf("conversation %d: %w", id, err)
					}
				}
				return report("mail-delete", 0, fmt.Sprintf("Deleted %d conversation(s).", len(ids)))
			})
		},
	}
}
