// Command ipampactl runs refreshes and exports against the configured store
// without the HTTP server.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/ipampa/internal/application"
	"github.com/JonMunkholm/ipampa/internal/config"
	"github.com/JonMunkholm/ipampa/internal/logging"
)

func main() {
	_ = godotenv.Load() // .env is optional

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCmd(openApp)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

// openApp loads the configuration and assembles the application.
// Logs go to stderr so exports can be piped from stdout.
func openApp(ctx context.Context) (*application.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logging.SetupWriter(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)
	return application.New(ctx, cfg)
}

// opener builds the application for a command. Tests substitute their own.
type opener func(ctx context.Context) (*application.App, error)

func newRootCmd(open opener) *cobra.Command {
	root := &cobra.Command{
		Use:   "ipampactl",
		Short: "Mirror and export the IPAMPA agricultural input price indices",
		Long: `ipampactl downloads the IPAMPA indices published by INSEE into the
configured store and exports them as a wide CSV or XLSX table.

Configuration is read from the environment (and a .env file when present),
the same way as the server: STORE_DRIVER, DATABASE_URL, SQLITE_PATH, SOURCE_URL...`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newRefreshCmd(open),
		newExportCmd(open),
		newListCmd(open),
		newResetCmd(open),
	)
	return root
}
