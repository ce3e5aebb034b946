package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lu-zhengda/termcix/internal/app"
)

func newSyncCmd() *cobra.Command {
	var fast, directory bool

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Push local changes and fetch new messages",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			svc, err := openService(ctx, cfg, true)
			if err != nil {
				return err
			}
			defer svc.Close(ctx)

			svc.SetOnline(true)
			if err := svc.Sync(ctx, fast || cfg.Sync.Fast); err != nil {
				return fmt.Errorf("failed to sync: %w", err)
			}
			if directory {
				if err := svc.Directory.Refresh(ctx); err != nil {
					return err
				}
			}

			st, err := svc.Status(ctx)
			if err != nil {
				return err
			}
			if jsonFlag {
				return printJSON(toJSONStatus(st))
			}
			fmt.Printf("Sync complete: %d unread (%d priority), %d unread mail.\n", st.Unread, st.UnreadPriority, st.MailUnread)
			return nil
		},
	}
	cmd.Flags().BoolVar(&fast, "fast", false, "skip the forum listing unless a folder needs it")
	cmd.Flags().BoolVar(&directory, "directory", false, "also refresh the forum directory")
	return cmd
}

// readBody returns the flag value, or stdin when it is "-".
func readBody(body string) (string, error) {
	if body != "-" {
		return body, nil
	}
	b, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("failed to read body from stdin: %w", err)
	}
	return string(b), nil
}

func newPostCmd() *cobra.Command {
	var bodyFlag string
	var replyTo int64

	cmd := &cobra.Command{
		Use:   "post <forum/topic>",
		Short: "Post a new message or a reply",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := readBody(bodyFlag)
			if err != nil {
				return err
			}
			if strings.TrimSpace(body) == "" {
				return fmt.Errorf("--body is required")
			}
			return withService(cmd, func(ctx context.Context, svc *app.Service) error {
				topic, err := lookupTopic(svc, args[0])
				if err != nil {
					return err
				}
				m, err := svc.Folders.Post(ctx, topic.ID, replyTo, body)
				if err != nil {
					return err
				}
				if jsonFlag {
					return printJSON(jsonAction{OK: true, Action: "post", ID: m.ID})
				}
				fmt.Printf("Message %d queued.\n", m.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&bodyFlag, "body", "", "message body (use '-' to read from stdin)")
	cmd.Flags().Int64Var(&replyTo, "reply-to", 0, "local ID of the message to reply to")
	return cmd
}

func newMarkCmd() *cobra.Command {
	var unread, thread, all, lock, unlock bool

	cmd := &cobra.Command{
		Use:   "mark <message-id>... | --all <forum/topic>",
		Short: "Mark messages read or unread",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, func(ctx context.Context, svc *app.Service) error {
				if all {
					f, ok := svc.Folders.FolderByName(args[0])
					if !ok {
						return fmt.Errorf("folder %s not found", args[0])
					}
					if err := svc.Folders.MarkAllRead(ctx, f.ID); err != nil {
						return err
					}
					return report("mark-all-read", f.ID, fmt.Sprintf("Marked %s read.", args[0]))
				}

				ids, err := parseIDs(args)
				if err != nil {
					return err
				}
				for _, id := range ids {
					switch {
					case lock || unlock:
						err = svc.Folders.SetReadLock(ctx, id, lock)
					case thread:
						err = svc.Folders.MarkThreadRead(ctx, id)
					case unread:
						err = svc.Folders.MarkUnread(ctx, id)
					default:
						err = svc.Folders.MarkRead(ctx, id)
					}
					if err != nil {
						return fmt.Errorf("message %d: %w", id, err)
					}
				}
				return report("mark", 0, fmt.Sprintf("Updated %d message(s).", len(ids)))
			})
		},
	}
	cmd.Flags().BoolVar(&unread, "unread", false, "mark unread instead of read")
	cmd.Flags().BoolVar(&thread, "thread", false, "mark the whole thread under each message read")
	cmd.Flags().BoolVar(&all, "all", false, "mark every message in a forum or topic read")
	cmd.Flags().BoolVar(&lock, "lock", false, "keep the messages unread")
	cmd.Flags().BoolVar(&unlock, "unlock", false, "release a read lock")
	cmd.MarkFlagsMutuallyExclusive("unread", "thread", "all", "lock", "unlock")
	return cmd
}

func newStarCmd() *cobra.Command {
	var remove, priority, ignore bool

	cmd := &cobra.Command{
		Use:   "star <message-id>...",
		Short: "Star, prioritize or ignore messages",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			return withService(cmd, func(ctx context.Context, svc *app.Service) error {
				for _, id := range ids {
					switch {
					case priority:
						err = svc.Folders.SetPriority(ctx, id, !remove)
					case ignore:
						err = svc.Folders.SetIgnored(ctx, id, !remove)
					default:
						err = svc.Folders.SetStar(ctx, id, !remove)
					}
					if err != nil {
						return fmt.Errorf("message %d: %w", id, err)
					}
				}
				return report("star", 0, fmt.Sprintf("Updated %d message(s).", len(ids)))
			})
		},
	}
	cmd.Flags().BoolVar(&remove, "remove", false, "clear instead of set")
	cmd.Flags().BoolVar(&priority, "priority", false, "set the local priority flag instead of the star")
	cmd.Flags().BoolVar(&ignore, "ignore", false, "set the local ignore flag instead of the star")
	cmd.MarkFlagsMutuallyExclusive("priority", "ignore")
	return cmd
}

func newWithdrawCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "withdraw <message-id>",
		Short: "Withdraw one of your messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			return withService(cmd, func(ctx context.Context, svc *app.Service) error {
				if err := svc.Folders.Withdraw(ctx, ids[0]); err != nil {
					return err
				}
				return report("withdraw", ids[0], fmt.Sprintf("Message %d withdrawn.", ids[0]))
			})
		},
	}
}

func newJoinCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "join <forum>",
		Short: "Join a forum",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, func(ctx context.Context, svc *app.Service) error {
				f, err := svc.Folders.Join(ctx, args[0])
				if err != nil {
					return err
				}
				return report("join", f.ID, fmt.Sprintf("Joining %s.", f.Name))
			})
		},
	}
}

func newResignCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resign <forum | forum/topic>",
		Short: "Resign from a forum or topic",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, func(ctx context.Context, svc *app.Service) error {
				f, ok := svc.Folders.FolderByName(args[0])
				if !ok {
					return fmt.Errorf("folder %s not found", args[0])
				}
				if err := svc.Folders.Resign(ctx, f.ID); err != nil {
					return err
				}
				return report("resign", f.ID, fmt.Sprintf("Resigning from %s.", args[0]))
			})
		},
	}
}

// report prints the outcome of an action as JSON or text.
func report(action string, id int64, text string) error {
	if jsonFlag {
		return printJSON(jsonAction{OK: true, Action: action, ID: id})
	}
	fmt.Println(text)
	return nil
}
