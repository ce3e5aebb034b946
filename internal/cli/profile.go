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
	"github.com/lu-zhengda/termcix/internal/profiles"
)

func newProfileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile [user]",
		Short: "Show a user's profile, your own by default",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			username := cfg.Account.Username
			if len(args) == 1 {
				username = args[0]
			}
			if username == "" {
				return errNotLoggedIn
			}

			ctx := cmd.Context()
			svc, err := openService(ctx, cfg, !offlineFlag)
			if err != nil {
				return err
			}
			defer svc.Close(ctx)

			var p domain.Profile
			if offlineFlag {
				var ok bool
				if p, ok = svc.Profiles.Get(username); !ok {
					return fmt.Errorf("profile of %s: %w", username, domain.ErrNotFound)
				}
			} else if p, err = svc.Profiles.Lookup(ctx, username); err != nil {
				return err
			}
			return printProfile(p)
		},
	}
	cmd.AddCommand(newProfileSetCmd())
	return cmd
}

func printProfile(p domain.Profile) error {
	if jsonFlag {
		return printJSON(toJSONProfile(p))
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "User:\t%s\n", p.FriendlyName())
	for _, row := range []struct{ label, value string }{
		{"Email", p.Email},
		{"Location", p.Location},
		{"Sex", p.Sex},
		{"First on", formatDate(p.FirstOn)},
		{"Last on", formatDate(p.LastOn)},
		{"Last post", formatDate(p.LastPost)},
	} {
		if row.value != "" {
			fmt.Fprintf(w, "%s:\t%s\n", row.label, row.value)
		}
	}
	if p.Pending {
		fmt.Fprintln(w, "Changes:\tpending")
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if p.About != "" {
		fmt.Printf("\n%s\n", p.About)
	}
	return nil
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Local().Format("2006-01-02 15:04")
}

func newProfileSetCmd() *cobra.Command {
	var name, email, location, sex string

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Change your own profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var e profiles.Edit
			for _, f := range []struct {
				flag string
				val  *string
				dst  **string
			}{
				{"name", &name, &e.FullName},
				{"email", &email, &e.Email},
				{"location", &location, &e.Location},
				{"sex", &sex, &e.Sex},
			} {
				if cmd.Flags().Changed(f.flag) {
					*f.dst = f.val
				}
			}
			if e.FullName == nil && e.Email == nil && e.Location == nil && e.Sex == nil {
				return fmt.Errorf("nothing to change; pass --name, --email, --location or --sex")
			}
			return withService(cmd, func(ctx context.Context, svc *app.Service) error {
				p, err := svc.Profiles.Update(ctx, e)
				if err != nil {
					return err
				}
				return report("profile", p.ID, "Profile updated.")
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "full name")
	cmd.Flags().StringVar(&email, "email", "", "email address")
	cmd.Flags().StringVar(&location, "location", "", "location")
	cmd.Flags().StringVar(&sex, "sex", "", "sex")
	return cmd
}

// withOnline runs fn against a service that is online but skips the sync
// pass; fn talks to the service directly.
func withOnline(cmd *cobra.Command, fn func(ctx context.Context, svc *app.Service) error) error {
	if offlineFlag {
		return fmt.Errorf("%s needs the service; drop --offline", cmd.Name())
	}
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
	return fn(ctx, svc)
}

func newWhoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "who",
		Short: "List users seen online recently",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withOnline(cmd, func(ctx context.Context, svc *app.Service) error {
				who, err := svc.Profiles.Who(ctx)
				if err != nil {
					return err
				}
				if jsonFlag {
					return printJSON(toJSONWho(who))
				}
				if len(who) == 0 {
					fmt.Println("Nobody online.")
					return nil
				}
				w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "USER\tLAST ON")
				for _, e := range who {
					fmt.Fprintf(w, "%s\t%s\n", e.Username, formatDate(e.LastOn))
				}
				return w.Flush()
			})
		},
	}
}

func newInterestingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "interesting",
		Short: "List the threads most active on the service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withOnline(cmd, func(ctx context.Context, svc *app.Service) error {
				threads, err := svc.Folders.ActiveThreads(ctx)
				if err != nil {
					return err
				}
				if jsonFlag {
					return printJSON(toJSONActiveThreads(threads))
				}
				if len(threads) == 0 {
					fmt.Println("No active threads.")
					return nil
				}
				w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tTOPIC\tAUTHOR\tDATE\tSUBJECT")
				for _, t := range threads {
					id := "-"
					if t.MessageID != 0 {
						id = fmt.Sprint(t.MessageID)
					}
					m := domain.Message{Body: t.Body}
					fmt.Fprintf(w, "%s\t%s/%s:%d\t%s\t%s\t%s\n", id, t.Forum, t.Topic, t.RemoteID, t.Author, formatDate(t.Date), truncate(m.Subject(), 50))
				}
				return w.Flush()
			})
		},
	}
}
