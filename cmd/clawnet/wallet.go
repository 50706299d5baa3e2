package clawnet

import (
	"bufio"
	"context"
	"fmt"
	"strings"

	"github.com/igorsilveira/clawnet/pkg/config"
	"github.com/igorsilveira/clawnet/pkg/credentials"
	"github.com/igorsilveira/clawnet/pkg/store"
	"github.com/spf13/cobra"
)

var walletCmd = &cobra.Command{
	Use:   "wallet",
	Short: "Manage the wallet key kept in the encrypted credential vault",
	Long:  "The vault is unlocked with CLAWNET_MASTER_KEY. A wallet_key set in the config file or environment takes precedence over the stored one.",
}

var walletSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Read a wallet key from stdin and store it encrypted",
	RunE: func(cmd *cobra.Command, args []string) error {
		line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		key := strings.TrimSpace(line)
		if key == "" {
			if err != nil {
				return fmt.Errorf("reading wallet key: %w", err)
			}
			return fmt.Errorf("wallet key is empty")
		}
		return withVault(func(ctx context.Context, v *credentials.Store) error {
			if err := v.Set(ctx, credentials.WalletKey, key); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "wallet key stored")
			return nil
		})
	},
}

var walletForgetCmd = &cobra.Command{
	Use:   "forget",
	Short: "Delete the stored wallet key",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withVault(func(ctx context.Context, v *credentials.Store) error {
			if err := v.Delete(ctx, credentials.WalletKey); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "wallet key deleted")
			return nil
		})
	},
}

var walletStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report where the wallet key comes from",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if cfg.Protocol.WalletKey != "" {
			fmt.Fprintln(out, "wallet key: set in config or environment")
			return nil
		}
		return withVault(func(ctx context.Context, v *credentials.Store) error {
			if _, err := v.Get(ctx, credentials.WalletKey); err != nil {
				fmt.Fprintf(out, "wallet key: not available (%v)\n", err)
				return nil
			}
			fmt.Fprintln(out, "wallet key: stored in vault")
			return nil
		})
	},
}

func init() {
	walletCmd.AddCommand(walletSetCmd, walletForgetCmd, walletStatusCmd)
}

func withVault(fn func(ctx context.Context, v *credentials.Store) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Protocol.MasterKey == "" {
		return fmt.Errorf("CLAWNET_MASTER_KEY is not set")
	}
	if err := config.EnsureDataDir(); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	st, err := store.New(cfg.Store.DSN)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	vault, err := credentials.New(st.DB(), cfg.Protocol.MasterKey)
	if err != nil {
		return err
	}
	return fn(context.Background(), vault)
}
