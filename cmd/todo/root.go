package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vyrodovalexey/todo-sync/internal/client"
	"github.com/vyrodovalexey/todo-sync/internal/config"
	"github.com/vyrodovalexey/todo-sync/internal/controller"
	"github.com/vyrodovalexey/todo-sync/internal/locale"
)

// app holds flag values and what is derived from them before a command runs.
type app struct {
	server string
	local  bool
	lang   string

	cfg    *config.ClientConfig
	msgs   *locale.Messages
	logger *zap.Logger
}

// storeClient is an item store client the command owns and must close.
type storeClient interface {
	controller.StoreClient
	Close() error
}

func newRootCmd() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:          "todo",
		Short:        "Shared todo list client",
		SilenceUsage: true,
		Example: strings.TrimSpace(`
  # Open the interactive list against the item store
  todo --server http://localhost:8080

  # Try it without a server; nothing is kept after exit
  todo --local

  # Scriptable commands
  todo add "Buy milk"
  todo list
  todo rm 01J9ZK6V3M2Q8R7T5W4X1Y0ZAB
`),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTUI(cmd, a)
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&a.server, "server", "", "Item store URL (default $APP_STORE_URL or "+config.DefaultStoreURL+")")
	cmd.PersistentFlags().BoolVar(&a.local, "local", false, "Keep items in memory instead of using an item store")
	cmd.PersistentFlags().StringVar(&a.lang, "locale", "", "Message language: en or es (default $APP_LOCALE or "+config.DefaultLocale+")")

	cmd.AddCommand(newTUICmd(a))
	cmd.AddCommand(newListCmd(a))
	cmd.AddCommand(newAddCmd(a))
	cmd.AddCommand(newEditCmd(a))
	cmd.AddCommand(newRmCmd(a))

	return cmd
}

// setup loads the client configuration; flags set on the command line take
// priority over the environment.
func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.LoadClient()
	if err != nil {
		return err
	}

	if cmd.Flags().Changed("server") {
		cfg.StoreURL = a.server
	}
	if cmd.Flags().Changed("locale") {
		cfg.Locale = a.lang
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validating flags: %w", err)
	}

	msgs, err := locale.Parse(cfg.Locale)
	if err != nil {
		return err
	}

	logger, err := initLogger(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return err
	}

	a.cfg = cfg
	a.msgs = msgs
	a.logger = logger
	return nil
}

func (a *app) openClient() (storeClient, error) {
	if a.local {
		a.logger.Info("using in-process item store")
		return client.NewLocal(a.logger.Named("local")), nil
	}

	c, err := client.NewHTTP(a.cfg.StoreURL, a.cfg.RequestTimeout, a.logger.Named("client"))
	if err != nil {
		return nil, err
	}
	a.logger.Info("using item store", zap.String("url", a.cfg.StoreURL))
	return c, nil
}
