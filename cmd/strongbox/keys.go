package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize the database, the root key and the first data key",
	RunE: func(cmd *cobra.Command, args []string) error {
		instance, err := openVault(cmd.Context(), true)
		if err != nil {
			return err
		}
		for _, key := range instance.Vault.ListDataKeys() {
			if key.Active {
				fmt.Printf("Vault ready. Active data key: %s\n", key.ID)
			}
		}
		return nil
	},
}

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage data encryption keys",
}

var keysListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the data encryption keys",
	RunE: func(cmd *cobra.Command, args []string) error {
		instance, err := openVault(cmd.Context(), false)
		if err != nil {
			return err
		}
		return printJSON(instance.Vault.ListDataKeys())
	},
}

var keysRotateCmd = &cobra.Command{
	Use:   "rotate",
	Short: "Generate a new active data encryption key",
	Long: `Generate a new active data encryption key. Existing credentials stay readable; run
"maintenance reencrypt" to move them onto the new key.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		instance, err := openVault(cmd.Context(), false)
		if err != nil {
			return err
		}
		key, err := instance.Vault.RotateDataKey(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(key)
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(keysCmd)
	keysCmd.AddCommand(keysListCmd)
	keysCmd.AddCommand(keysRotateCmd)
}
