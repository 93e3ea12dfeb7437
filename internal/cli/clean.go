package cli

import (
	"github.com/spf13/cobra"

	"github.com/ksyq12/nascert/internal/errors"
	"github.com/ksyq12/nascert/internal/output"
)

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove the ACME client installation",
	Long: `Remove the acme.sh installation in ACME_HOME, including its account
and issued certificates. Snapshots are kept.

Examples:
  nascert clean`,
	Args: cobra.NoArgs,
	RunE: runClean,
}

func init() {
	rootCmd.AddCommand(cleanCmd)
}

func runClean(cmd *cobra.Command, args []string) error {
	if err := requireRoot(); err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	acquirer, err := deps.AcquirerFactory.Create(cfg, deps.Executor)
	if err != nil {
		return err
	}

	if err := acquirer.Clean(cmd.Context()); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, "failed to clean "+acquirer.Name(), err)
	}

	return outputResult(
		map[string]interface{}{
			"success": true,
			"client":  acquirer.Name(),
			"removed": cfg.AcmeHome,
		},
		"%s installation removed", acquirer.Name(),
	)
}
