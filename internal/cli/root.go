package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ksyq12/nascert/internal/config"
	"github.com/ksyq12/nascert/internal/logger"
)

var (
	configPath string
	jsonOutput bool
	verbose    bool
	version    = "dev"
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "nascert",
	Short: "Let's Encrypt certificate renewal for Synology NAS",
	Long: `nascert renews a wildcard Let's Encrypt certificate through a DNS-01
challenge and installs it as the DSM default certificate.

Every update takes a snapshot of the certificate stores first. When a step
fails the snapshot is restored and services are reloaded; snapshots can also
be restored by hand with the revert command.`,
	SilenceUsage: true,
}

// Execute runs the root command and exits with status 1 on any error
func Execute() {
	// Initialize logger based on verbose flag (parsed by cobra)
	cobra.OnInitialize(func() {
		logger.Init(verbose)
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

// SetVersion sets the version string for the CLI
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultFile, "Path to the config file")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging for debugging")
}
