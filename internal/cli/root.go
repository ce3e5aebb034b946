package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/oauth2"

	"github.com/lu-zhengda/termcix/internal/app"
	"github.com/lu-zhengda/termcix/internal/config"
	"github.com/lu-zhengda/termcix/internal/provider/cix"
	"github.com/lu-zhengda/termcix/internal/store"
	"github.com/lu-zhengda/termcix/internal/store/sqlite"
	"github.com/lu-zhengda/termcix/internal/tui"
)

var (
	// version is set via ldflags at build time.
	version = "dev"
	cfgFile string

	// jsonFlag enables JSON output for all commands.
	jsonFlag bool
	// offlineFlag keeps commands from contacting the service.
	offlineFlag bool
)

// errNotLoggedIn is returned when a command needs the service and no
// credentials are available.
var errNotLoggedIn = errors.New("not logged in; run 'termcix login' first")

func NewRootCmd() *cobra.Command {
	var logFile *os.File

	root := &cobra.Command{
		Use:     "termcix",
		Short:   "Terminal forum reader",
		Long:    "An offline-first terminal reader for CIX forums and mail.",
		Version: version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.LoadEnvFile(".env"); err != nil {
				return err
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logFile, err = setupLogging(cfg)
			return err
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logFile != nil {
				logFile.Close()
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if shell, _ := cmd.Flags().GetString("generate-completion"); shell != "" {
				switch shell {
				case "bash":
					return cmd.Root().GenBashCompletion(os.Stdout)
				case "zsh":
					return cmd.Root().GenZshCompletion(os.Stdout)
				case "fish":
					return cmd.Root().GenFishCompletion(os.Stdout, true)
				default:
					return fmt.Errorf("unsupported shell: %s (use bash, zsh, or fish)", shell)
				}
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			svc, err := openService(cmd.Context(), cfg, !offlineFlag)
			if err != nil {
				return err
			}
			interval, _ := cfg.SyncInterval()
			return tui.Run(svc, tui.Options{
				Interval:    interval,
				Online:      !offlineFlag,
				DefaultView: cfg.UI.DefaultView,
			})
		},
	}
	root.SetVersionTemplate(fmt.Sprintf("termcix %s\n", version))
	root.CompletionOptions.DisableDefaultCmd = true
	root.Flags().String("generate-completion", "", "Generate shell completion (bash, zsh, fish)")
	root.Flags().MarkHidden("generate-completion")
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")
	root.PersistentFlags().BoolVar(&jsonFlag, "json", false, "output in JSON format")
	root.PersistentFlags().BoolVar(&offlineFlag, "offline", false, "work on the local cache only")
	root.AddCommand(newLoginCmd())
	root.AddCommand(newLogoutCmd())
	root.AddCommand(newSyncCmd())
	root.AddCommand(newStatusCmd())
	root.AddCommand(newFoldersCmd())
	root.AddCommand(newReadCmd())
	root.AddCommand(newSearchCmd())
	root.AddCommand(newPostCmd())
	root.AddCommand(newMarkCmd())
	root.AddCommand(newStarCmd())
	root.AddCommand(newWithdrawCmd())
	root.AddCommand(newJoinCmd())
	root.AddCommand(newResignCmd())
	root.AddCommand(newRulesCmd())
	root.AddCommand(newMailCmd())
	root.AddCommand(newDirCmd())
	root.AddCommand(newProfileCmd())
	root.AddCommand(newWhoCmd())
	root.AddCommand(newInterestingCmd())
	return root
}

func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// setupLogging sends log output to a file in the data directory so the
// TUI keeps the terminal.
func setupLogging(cfg *config.Config) (*os.File, error) {
	lvl, err := cfg.LogLevel()
	if err != nil {
		return nil, err
	}
	logrus.SetLevel(lvl)

	dataDir := config.DataDir()
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(dataDir, "termcix.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	logrus.SetOutput(f)
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, DisableColors: true})
	return f, nil
}

// openDB creates the data directory and opens the SQLite database.
func openDB() (*sqlite.DB, error) {
	dataDir := config.DataDir()
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "termcix.db")
	db, err := sqlite.New(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

// loadConfig loads the application configuration from the config file.
func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		path = filepath.Join(config.ConfigDir(), "config.toml")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// tokenSource returns the session credentials: CIX_PASSWORD when set,
// otherwise the token saved by login.
func tokenSource(cfg *config.Config) (oauth2.TokenSource, error) {
	if cfg.Account.Username == "" {
		return nil, errNotLoggedIn
	}
	if cfg.Account.Password != "" {
		return oauth2.StaticTokenSource(store.BasicToken(cfg.Account.Username, cfg.Account.Password)), nil
	}
	ts, err := store.NewKeyringTokenStore().TokenSource(cfg.Account.Username)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errNotLoggedIn, err)
	}
	return ts, nil
}

// openService opens the cache. With network set it also builds an
// authenticated gateway; without it the service stays offline.
func openService(ctx context.Context, cfg *config.Config, network bool) (*app.Service, error) {
	var ts oauth2.TokenSource
	if network {
		var err error
		if ts, err = tokenSource(cfg); err != nil {
			return nil, err
		}
	}
	gw, err := cix.NewGateway(cfg.Server.BaseURL, ts)
	if err != nil {
		return nil, err
	}

	db, err := openDB()
	if err != nil {
		return nil, err
	}
	svc := app.New(db, cix.New(gw), app.Options{Username: cfg.Account.Username})
	if err := svc.Open(ctx); err != nil {
		svc.Close(ctx)
		return nil, err
	}
	return svc, nil
}

// withService runs fn against an open service. Unless --offline is set,
// the service then goes online so local changes are pushed and the cache
// refreshed before the command exits.
func withService(cmd *cobra.Command, fn func(ctx context.Context, svc *app.Service) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	svc, err := openService(ctx, cfg, !offlineFlag)
	if err != nil {
		return err
	}
	if err := fn(ctx, svc); err != nil {
		svc.Close(ctx)
		return err
	}
	if !offlineFlag {
		svc.SetOnline(true)
		if err := svc.Sync(ctx, cfg.Sync.Fast); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: sync failed, changes stay pending: %v\n", err)
		}
	}
	return svc.Close(ctx)
}

// withCache runs fn against the local cache without contacting the
// service.
func withCache(cmd *cobra.Command, fn func(ctx context.Context, svc *app.Service) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	svc, err := openService(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer svc.Close(ctx)
	return fn(ctx, svc)
}
