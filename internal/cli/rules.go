package cli

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/lu-zhengda/termcix/internal/app"
	"github.com/lu-zhengda/termcix/internal/domain"
	"github.com/lu-zhengda/termcix/internal/rules"
)

var actionByName = []struct {
	name   string
	action domain.Action
}{
	{"clear", domain.ActionClear},
	{"unread", domain.ActionUnread},
	{"priority", domain.ActionPriority},
	{"ignore", domain.ActionIgnored},
	{"flag", domain.ActionFlag},
}

func actionNames(a domain.Action) []string {
	var out []string
	for _, n := range actionByName {
		if a.Has(n.action) {
			out = append(out, n.name)
		}
	}
	return out
}

func parseActions(names []string) (domain.Action, error) {
	var a domain.Action
	for _, name := range names {
		found := false
		for _, n := range actionByName {
			if strings.EqualFold(name, n.name) {
				a |= n.action
				found = true
			}
		}
		if !found {
			return 0, fmt.Errorf("unknown action %q", name)
		}
	}
	if a == 0 {
		return 0, fmt.Errorf("at least one --action is required")
	}
	return a, nil
}

// parseTerm parses "field op value", for example "author eq bob" or
// "body contains release notes".
func parseTerm(s string) (domain.Expr, error) {
	parts := strings.SplitN(strings.TrimSpace(s), " ", 3)
	if len(parts) != 3 {
		return domain.Expr{}, fmt.Errorf("condition %q must have the form 'field op value'", s)
	}
	return domain.Term(domain.Field(parts[0]), domain.Operator(parts[1]), strings.TrimSpace(parts[2])), nil
}

func buildPredicate(conditions []string, matchAny bool) (domain.Expr, error) {
	if len(conditions) == 0 {
		return domain.MatchAll(), nil
	}
	terms := make([]domain.Expr, 0, len(conditions))
	for _, c := range conditions {
		t, err := parseTerm(c)
		if err != nil {
			return domain.Expr{}, err
		}
		terms = append(terms, t)
	}
	if len(terms) == 1 {
		return terms[0], nil
	}
	if matchAny {
		return domain.Or(terms...), nil
	}
	return domain.And(terms...), nil
}

func newRulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Manage rules applied to incoming messages",
	}
	cmd.AddCommand(newRulesListCmd())
	cmd.AddCommand(newRulesAddCmd())
	cmd.AddCommand(newRulesDeleteCmd())
	cmd.AddCommand(newRulesBlockCmd())
	cmd.AddCommand(newRulesResetCmd())
	cmd.AddCommand(newRulesExportCmd())
	cmd.AddCommand(newRulesImportCmd())
	return cmd
}

func newRulesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List rules in evaluation order",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCache(cmd, func(ctx context.Context, svc *app.Service) error {
				all := svc.Rules.All()
				if jsonFlag {
					return printJSON(toJSONRules(all))
				}
				if len(all) == 0 {
					fmt.Println("No rules.")
					return nil
				}
				w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "#\tACTIVE\tTITLE\tACTIONS")
				for i, r := range all {
					fmt.Fprintf(w, "%d\t%v\t%s\t%s\n", i, r.Active, r.Title, strings.Join(actionNames(r.Action), ","))
				}
				return w.Flush()
			})
		},
	}
}

func newRulesAddCmd() *cobra.Command {
	var (
		title      string
		conditions []string
		actions    []string
		matchAny   bool
		inactive   bool
		index      int
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a rule",
		Example: `  termcix rules add --title "Boss" --when "author eq boss" --action priority
  termcix rules add --title "Noise" --when "forum eq chatter" --when "body contains +1" --any --action ignore`,
		RunE: func(cmd *cobra.Command, args []string) error {
			action, err := parseActions(actions)
			if err != nil {
				return err
			}
			pred, err := buildPredicate(conditions, matchAny)
			if err != nil {
				return err
			}
			rule := domain.Rule{Active: !inactive, Title: title, Predicate: pred, Action: action}
			if err := rules.Validate(rule.Predicate); err != nil {
				return err
			}
			return withCache(cmd, func(ctx context.Context, svc *app.Service) error {
				if index >= 0 {
					err = svc.Rules.Insert(ctx, index, rule)
				} else {
					err = svc.Rules.Add(ctx, rule)
				}
				if err != nil {
					return err
				}
				return report("rule-add", 0, fmt.Sprintf("Rule %q added.", title))
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "rule title")
	cmd.Flags().StringArrayVar(&conditions, "when", nil, "condition 'field op value' (repeatable)")
	cmd.Flags().StringSliceVar(&actions, "action", nil, "actions: clear, unread, priority, ignore, flag")
	cmd.Flags().BoolVar(&matchAny, "any", false, "match when any condition holds instead of all")
	cmd.Flags().BoolVar(&inactive, "inactive", false, "add the rule disabled")
	cmd.Flags().IntVar(&index, "index", -1, "insert at this position instead of appending")
	return cmd
}

func newRulesDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <index>",
		Short: "Delete a rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid index %q", args[0])
			}
			return withCache(cmd, func(ctx context.Context, svc *app.Service) error {
				if err := svc.Rules.Delete(ctx, index); err != nil {
					return err
				}
				return report("rule-delete", int64(index), fmt.Sprintf("Rule %d deleted.", index))
			})
		},
	}
}

func newRulesBlockCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "block <user>",
		Short: "Ignore every message from a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCache(cmd, func(ctx context.Context, svc *app.Service) error {
				if err := svc.Rules.Block(ctx, args[0]); err != nil {
					return err
				}
				return report("block", 0, fmt.Sprintf("Blocked %s.", args[0]))
			})
		},
	}
}

func newRulesResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Remove every rule",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCache(cmd, func(ctx context.Context, svc *app.Service) error {
				if err := svc.Rules.Reset(ctx); err != nil {
					return err
				}
				return report("rule-reset", 0, "Rules reset.")
			})
		},
	}
}

func newRulesExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export [file]",
		Short: "Write the rules as YAML to a file or stdout",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCache(cmd, func(ctx context.Context, svc *app.Service) error {
				if len(args) == 0 {
					return svc.Rules.Export(os.Stdout)
				}
				f, err := os.Create(args[0])
				if err != nil {
					return fmt.Errorf("failed to create %s: %w", args[0], err)
				}
				if err := svc.Rules.Export(f); err != nil {
					f.Close()
					return err
				}
				return f.Close()
			})
		},
	}
}

func newRulesImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Replace the rules with a YAML export",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("failed to open %s: %w", args[0], err)
			}
			defer f.Close()
			return withCache(cmd, func(ctx context.Context, svc *app.Service) error {
				if err := svc.Rules.Import(ctx, f); err != nil {
					return err
				}
				return report("rule-import", 0, fmt.Sprintf("Imported %d rule(s).", svc.Rules.Len()))
			})
		},
	}
}
