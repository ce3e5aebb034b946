package cli

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/lu-zhengda/termcix/internal/app"
	"github.com/lu-zhengda/termcix/internal/domain"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show unread counts and the last sync time",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCache(cmd, func(ctx context.Context, svc *app.Service) error {
				st, err := svc.Status(ctx)
				if err != nil {
					return err
				}
				if jsonFlag {
					return printJSON(toJSONStatus(st))
				}
				last := "never"
				if !st.LastSync.IsZero() {
					last = st.LastSync.Local().Format(time.DateTime)
				}
				fmt.Printf("Forums: %d unread (%d priority)\n", st.Unread, st.UnreadPriority)
				fmt.Printf("Mail:   %d unread (%d priority)\n", st.MailUnread, st.MailUnreadPriority)
				fmt.Printf("Last sync: %s\n", last)
				return nil
			})
		},
	}
}

func newFoldersCmd() *cobra.Command {
	var unreadOnly bool

	cmd := &cobra.Command{
		Use:   "folders",
		Short: "List joined forums and topics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCache(cmd, func(ctx context.Context, svc *app.Service) error {
				var out []jsonFolder
				for _, f := range svc.Folders.All() {
					if unreadOnly && f.Unread == 0 {
						continue
					}
					out = append(out, toJSONFolder(f, svc.Folders.Path(f.ID)))
				}
				if jsonFlag {
					return printJSON(out)
				}
				if len(out) == 0 {
					fmt.Println("No folders. Run 'termcix sync' or 'termcix join <forum>'.")
					return nil
				}

				w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "FOLDER\tUNREAD\tPRIORITY\tFLAGS")
				for _, f := range out {
					name := f.Path
					if strings.Contains(f.Path, "/") {
						name = "  " + f.Path[strings.Index(f.Path, "/")+1:]
					}
					fmt.Fprintf(w, "%s\t%d\t%d\t%s\n", name, f.Unread, f.UnreadPriority, strings.Join(f.Flags, ","))
				}
				return w.Flush()
			})
		},
	}
	cmd.Flags().BoolVar(&unreadOnly, "unread", false, "only folders with unread messages")
	cmd.AddCommand(newFoldersRemoveCmd())
	cmd.AddCommand(newFoldersMoveCmd())
	return cmd
}

func newFoldersRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <forum | forum/topic>",
		Short: "Drop a folder and its messages from the local cache",
		Long: "Drop a folder and its messages from the local cache. Membership is not\n" +
			"changed; use 'resign' for that. A full sync fetches the folder again.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCache(cmd, func(ctx context.Context, svc *app.Service) error {
				f, ok := svc.Folders.FolderByName(args[0])
				if !ok {
					return fmt.Errorf("folder %s: %w", args[0], domain.ErrNotFound)
				}
				if err := svc.Folders.Remove(ctx, f.ID); err != nil {
					return err
				}
				return report("remove", f.ID, fmt.Sprintf("Removed %s from the cache.", args[0]))
			})
		},
	}
}

func newFoldersMoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "move <forum | forum/topic> <position>",
		Short: "Change where a folder is listed among its siblings",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			pos, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid position %q", args[1])
			}
			return withCache(cmd, func(ctx context.Context, svc *app.Service) error {
				f, ok := svc.Folders.FolderByName(args[0])
				if !ok {
					return fmt.Errorf("folder %s: %w", args[0], domain.ErrNotFound)
				}
				if err := svc.Folders.Move(ctx, f.ID, pos); err != nil {
					return err
				}
				return report("move", f.ID, fmt.Sprintf("Moved %s to position %d.", args[0], pos))
			})
		},
	}
}

func newReadCmd() *cobra.Command {
	var unreadOnly, markRead bool

	cmd := &cobra.Command{
		Use:   "read <forum/topic | message-id>",
		Short: "Show a topic as threads, or one message in full",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if id, err := strconv.ParseInt(args[0], 10, 64); err == nil {
				run := withCache
				if markRead {
					run = withService
				}
				return run(cmd, func(ctx context.Context, svc *app.Service) error {
					return readMessage(ctx, svc, id, markRead)
				})
			}

			return withCache(cmd, func(ctx context.Context, svc *app.Service) error {
				topic, err := lookupTopic(svc, args[0])
				if err != nil {
					return err
				}
				lines := svc.Folders.Thread(topic.ID)
				if unreadOnly {
					kept := lines[:0]
					for _, l := range lines {
						if l.Message.Unread {
							kept = append(kept, l)
						}
					}
					lines = kept
				}
				if jsonFlag {
					return printJSON(toJSONThread(lines, false))
				}
				if len(lines) == 0 {
					fmt.Println("No messages.")
					return nil
				}
				w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tFLAGS\tAUTHOR\tDATE\tSUBJECT")
				for _, l := range lines {
					m := l.Message
					fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s%s\n", m.ID, messageFlags(m), m.Author,
						m.Date.Local().Format("2006-01-02 15:04"), strings.Repeat("  ", l.Level), truncate(m.Subject(), 60))
				}
				return w.Flush()
			})
		},
	}
	cmd.Flags().BoolVar(&unreadOnly, "unread", false, "only unread messages")
	cmd.Flags().BoolVar(&markRead, "mark-read", false, "mark the message read after showing it")
	return cmd
}

func readMessage(ctx context.Context, svc *app.Service, id int64, markRead bool) error {
	m, ok := svc.Folders.Message(id)
	if !ok {
		return fmt.Errorf("message %d: %w", id, domain.ErrNotFound)
	}
	if markRead && m.Unread {
		if err := svc.Folders.MarkRead(ctx, id); err != nil {
			return err
		}
	}
	if jsonFlag {
		return printJSON(toJSONMessage(m, 0, true))
	}
	fmt.Printf("%s  #%d  %s  %s\n", svc.Folders.Path(m.TopicID), m.RemoteID, m.Author, m.Date.Local().Format(time.DateTime))
	if m.CommentID != 0 {
		fmt.Printf("In reply to #%d\n", m.CommentID)
	}
	fmt.Println()
	if m.Withdrawn {
		fmt.Println("[withdrawn]")
		return nil
	}
	fmt.Println(m.Body)
	return nil
}

func newSearchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "search <text>",
		Short: "Search cached messages by author or body",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCache(cmd, func(ctx context.Context, svc *app.Service) error {
				found := svc.Folders.Search(strings.Join(args, " "))
				if jsonFlag {
					out := make([]jsonMessage, 0, len(found))
					for _, m := range found {
						out = append(out, toJSONMessage(m, 0, false))
					}
					return printJSON(out)
				}
				if len(found) == 0 {
					fmt.Println("No messages found.")
					return nil
				}
				w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tTOPIC\tAUTHOR\tSUBJECT")
				for _, m := range found {
					fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", m.ID, svc.Folders.Path(m.TopicID), m.Author, truncate(m.Subject(), 60))
				}
				return w.Flush()
			})
		},
	}
}

// lookupTopic resolves "forum/topic" to a topic folder.
func lookupTopic(svc *app.Service, name string) (domain.Folder, error) {
	f, ok := svc.Folders.FolderByName(name)
	if !ok || f.IsTopLevel() {
		return domain.Folder{}, fmt.Errorf("topic %s: %w", name, domain.ErrNotFound)
	}
	return f, nil
}

// parseIDs parses message or conversation IDs given as arguments.
func parseIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, a := range args {
		id, err := strconv.ParseInt(a, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid id %q", a)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// messageFlags renders a compact state column: unread, priority, starred,
// pending.
func messageFlags(m domain.Message) string {
	var b strings.Builder
	mark := func(on bool, c byte) {
		if on {
			b.WriteByte(c)
		} else {
			b.WriteByte(' ')
		}
	}
	mark(m.Unread, '*')
	mark(m.Priority, '!')
	mark(m.Starred, '+')
	mark(m.HasPending(), '~')
	return b.String()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
