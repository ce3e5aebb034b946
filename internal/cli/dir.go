package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/lu-zhengda/termcix/internal/app"
	"github.com/lu-zhengda/termcix/internal/domain"
)

func newDirCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dir",
		Short: "Browse the forum directory",
	}
	cmd.AddCommand(newDirCategoriesCmd())
	cmd.AddCommand(newDirListCmd())
	cmd.AddCommand(newDirSearchCmd())
	cmd.AddCommand(newDirShowCmd())
	cmd.AddCommand(newDirMembersCmd())
	return cmd
}

func printDirForums(forums []domain.DirForum) error {
	if jsonFlag {
		return printJSON(toJSONDirForums(forums))
	}
	if len(forums) == 0 {
		fmt.Println("No forums found.")
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "FORUM\tTYPE\tRECENT\tTITLE")
	for _, f := range forums {
		kind := "open"
		if f.IsClosed() {
			kind = "closed"
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", f.Name, kind, f.Recent, truncate(f.Title, 60))
	}
	return w.Flush()
}

func newDirCategoriesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "categories [category]",
		Short: "List categories, or the subcategories of one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCache(cmd, func(ctx context.Context, svc *app.Service) error {
				var names []string
				if len(args) == 0 {
					names = svc.Directory.Categories()
				} else {
					names = svc.Directory.SubCategories(args[0])
				}
				if jsonFlag {
					return printJSON(names)
				}
				if len(names) == 0 {
					fmt.Println("Nothing listed. Run 'termcix sync --directory' first.")
					return nil
				}
				fmt.Println(strings.Join(names, "\n"))
				return nil
			})
		},
	}
}

func newDirListCmd() *cobra.Command {
	var sub string

	cmd := &cobra.Command{
		Use:   "list <category>",
		Short: "List the forums in a category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCache(cmd, func(ctx context.Context, svc *app.Service) error {
				return printDirForums(svc.Directory.ForumsByCategory(args[0], sub))
			})
		},
	}
	cmd.Flags().StringVar(&sub, "sub", "", "subcategory")
	return cmd
}

func newDirSearchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "search <words>",
		Short: "Find forums whose name, title or description contain every word",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCache(cmd, func(ctx context.Context, svc *app.Service) error {
				return printDirForums(svc.Directory.Search(strings.Join(args, " ")))
			})
		},
	}
}

func newDirShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <forum>",
		Short: "Show a forum with its moderators and participants",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			svc, err := openService(ctx, cfg, !offlineFlag)
			if err != nil {
				return err
			}
			defer svc.Close(ctx)

			var f domain.DirForum
			if offlineFlag {
				var ok bool
				if f, ok = svc.Directory.ForumByName(args[0]); !ok {
					return fmt.Errorf("forum %s: %w", args[0], domain.ErrNotFound)
				}
			} else if f, err = svc.Directory.RefreshForum(ctx, args[0]); err != nil {
				return err
			}

			if jsonFlag {
				return printJSON(toJSONDirForums([]domain.DirForum{f})[0])
			}
			fmt.Printf("%s: %s\n", f.Name, f.Title)
			if f.Desc != "" {
				fmt.Println(f.Desc)
			}
			fmt.Printf("Category: %s / %s\n", f.Cat, f.Sub)
			fmt.Printf("Moderators: %s\n", strings.Join(f.Moderators, ", "))
			fmt.Printf("Participants: %d\n", len(f.Participants))
			return nil
		},
	}
}

func newDirMembersCmd() *cobra.Command {
	var moderators, remove bool

	cmd := &cobra.Command{
		Use:   "members <forum> <user>...",
		Short: "Add or remove participants or moderators of a forum you moderate",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			forum, users := args[0], args[1:]
			return withService(cmd, func(ctx context.Context, svc *app.Service) error {
				var err error
				switch {
				case moderators && remove:
					err = svc.Directory.RemoveModerators(ctx, forum, users...)
				case moderators:
					err = svc.Directory.AddModerators(ctx, forum, users...)
				case remove:
					err = svc.Directory.RemoveParticipants(ctx, forum, users...)
				default:
					err = svc.Directory.AddParticipants(ctx, forum, users...)
				}
				if err != nil {
					return err
				}
				return report("members", 0, fmt.Sprintf("Updated members of %s.", forum))
			})
		},
	}
	cmd.Flags().BoolVar(&moderators, "moderators", false, "edit moderators instead of participants")
	cmd.Flags().BoolVar(&remove, "remove", false, "remove instead of add")
	return cmd
}
