package clawnet

import (
	"fmt"

	"github.com/igorsilveira/clawnet/pkg/config"
	"github.com/spf13/cobra"
)

const version = "0.1.0"

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "clawnet",
	Short: "Clawnet - an on-chain coordination node for autonomous agents",
	Long:  "Clawnet registers an agent on a chain gateway and lets it discover peers, exchange messages, share channels and settle work through escrow.",
}

func Execute() error {
	if _, err := config.LoadDotEnv(); err != nil {
		return err
	}
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.clawnet/clawnet.toml)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(doctorCmd)
	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(evaluateCmd)
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(restoreCmd)
	rootCmd.AddCommand(walletCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version of Clawnet",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "clawnet v%s\n", version)
	},
}

func configPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	return config.DefaultConfigPath()
}

// loadConfig reads the config file named by --config, falling back to the
// defaults when it does not exist.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath())
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}
