// Package main - strongbox operator CLI
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/user"

	"github.com/alwitt/strongbox"
	"github.com/alwitt/strongbox/config"
	"github.com/alwitt/strongbox/models"
	"github.com/apex/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

var (
	cfgFile  string
	tenantID string
	registry = prometheus.NewRegistry()
)

var rootCmd = &cobra.Command{
	Use:   "strongbox",
	Short: "Operate an envelope encryption credential vault",
	Long: `Operate an envelope encryption credential vault backed by a sqlite database.

The master secret is read from the config file or from STRONGBOX_CRYPTO_MASTER_SECRET.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (YAML)")
	rootCmd.PersistentFlags().StringVarP(&tenantID, "tenant", "t", "", "tenant identifier")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

/*
openVault load the configuration and assemble the vault

	@param ctx context.Context - execution context
	@param defineTables bool - whether to create the tables
	@returns the vault instance
*/
func openVault(ctx context.Context, defineTables bool) (*strongbox.Strongbox, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	level, err := log.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level '%s' [%w]", cfg.Log.Level, err)
	}
	log.SetLevel(level)

	return strongbox.NewCredentialVault(ctx, cfg.InstanceParams(defineTables, registry))
}

// requireTenant verify the tenant flag is set
func requireTenant() error {
	if tenantID == "" {
		return fmt.Errorf("--tenant is required [%w]", models.ErrBadRequest)
	}
	return nil
}

// currentActor the operating system user running the CLI
func currentActor() models.Actor {
	name := os.Getenv("USER")
	if current, err := user.Current(); err == nil {
		name = current.Username
	}
	if name == "" {
		name = "unknown_user"
	}
	return models.Actor{UserID: &name}
}

func printJSON(value interface{}) error {
	encoded, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output [%w]", err)
	}
	fmt.Println(string(encoded))
	return nil
}
