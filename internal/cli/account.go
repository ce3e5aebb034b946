package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/oauth2"

	"github.com/lu-zhengda/termcix/internal/provider/cix"
	"github.com/lu-zhengda/termcix/internal/store"
)

func newLoginCmd() *cobra.Command {
	var username string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Save account credentials in the OS keyring",
		Long: "Checks the credentials against the service and saves them in the OS keyring.\n" +
			"The password is read from CIX_PASSWORD or, when unset, from the first line of stdin.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if username == "" {
				username = cfg.Account.Username
			}
			if username == "" {
				return fmt.Errorf("--username is required")
			}

			password := cfg.Account.Password
			if password == "" {
				fmt.Fprint(os.Stderr, "Password: ")
				line, err := bufio.NewReader(os.Stdin).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("failed to read password: %w", err)
				}
				password = strings.TrimRight(line, "\r\n")
			}

			token := store.BasicToken(username, password)
			gw, err := cix.NewGateway(cfg.Server.BaseURL, oauth2.StaticTokenSource(token))
			if err != nil {
				return err
			}
			if _, err := cix.New(gw).ListForums(cmd.Context()); err != nil {
				return fmt.Errorf("failed to verify credentials: %w", err)
			}
			if err := store.NewKeyringTokenStore().SaveToken(username, token); err != nil {
				return err
			}

			if jsonFlag {
				return printJSON(jsonAction{OK: true, Action: "login", Name: username})
			}
			fmt.Printf("Logged in as %s.\n", username)
			if cfg.Account.Username == "" {
				fmt.Printf("Set username = %q under [account] in the config file to make it the default.\n", username)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&username, "username", "", "account name (defaults to the configured account)")
	return cmd
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove saved credentials from the OS keyring",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Account.Username == "" {
				return errNotLoggedIn
			}
			if err := store.NewKeyringTokenStore().DeleteToken(cfg.Account.Username); err != nil {
				return err
			}
			if jsonFlag {
				return printJSON(jsonAction{OK: true, Action: "logout", Name: cfg.Account.Username})
			}
			fmt.Printf("Logged out %s.\n", cfg.Account.Username)
			return nil
		},
	}
}
