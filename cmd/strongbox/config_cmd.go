package main

import (
	"fmt"

	"github.com/alwitt/strongbox/config"
	"github.com/alwitt/strongbox/encryption"
	"github.com/spf13/cobra"
)

var (
	configOutput string
	configForce  bool
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the strongbox configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a configuration file with default values",
	Long: `Write a configuration file with default values. The master secret is not written;
set it with STRONGBOX_CRYPTO_MASTER_SECRET.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.WriteDefault(configOutput, configForce); err != nil {
			return err
		}
		fmt.Printf("Configuration written to: %s\n", configOutput)
		return nil
	},
}

var configViewCmd = &cobra.Command{
	Use:   "view",
	Short: "Show the effective configuration, secrets masked",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		if cfg.Crypto.MasterSecret != "" {
			cfg.Crypto.MasterSecret = "***SET***"
		}
		cfg.External.Hashicorp.Token = encryption.Mask(
			cfg.External.Hashicorp.Token, encryption.DefaultMaskVisibleChars,
		)
		return printJSON(cfg)
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configViewCmd)

	configInitCmd.Flags().StringVarP(&configOutput, "output", "o", "strongbox.yaml", "config file to write")
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "overwrite an existing file")
}
