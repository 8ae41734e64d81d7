// Command infosync runs one peer of the insurance-information propagation
// system: the HR origin, the employee service or the insurance service.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"infosync/internal/platform/config"
)

var (
	version    = "0.1.0-dev"
	configPath string
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	rootCmd := &cobra.Command{
		Use:           "infosync",
		Short:         "Propagates employee insurance information between HR, employee and insurance services",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a YAML config file")

	rootCmd.AddCommand(
		newServeCmd(),
		newMigrateCmd(),
	)
	return rootCmd.ExecuteContext(ctx)
}

// loadConfig reads configuration, letting explicitly set flags win.
func loadConfig(cmd *cobra.Command, flagKeys map[string]string) (*config.Config, error) {
	overrides := map[string]any{}
	for flag, key := range flagKeys {
		f := cmd.Flags().Lookup(flag)
		if f != nil && f.Changed {
			overrides[key] = f.Value.String()
		}
	}
	return config.Load(configPath, overrides)
}
