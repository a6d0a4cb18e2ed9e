package main

import (
	"strings"
	"time"

	"github.com/alwitt/strongbox/db"
	"github.com/alwitt/strongbox/models"
	"github.com/alwitt/strongbox/vault"
	"github.com/spf13/cobra"
)

var maintenanceFlags struct {
	within        time.Duration
	limit         int
	credentialID  string
	credentialKey string
	actions       []string
	since         time.Duration
	parentID      string
	inherit       bool
}

var maintenanceCmd = &cobra.Command{
	Use:   "maintenance",
	Short: "Periodic vault upkeep",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return requireTenant()
	},
}

var maintenanceExpireCmd = &cobra.Command{
	Use:   "expire",
	Short: "Move ACTIVE credentials past their expiration to EXPIRED",
	RunE: func(cmd *cobra.Command, args []string) error {
		instance, err := openVault(cmd.Context(), false)
		if err != nil {
			return err
		}
		report, err := instance.Vault.ExpireOverdue(cmd.Context(), tenantID, currentActor())
		if err != nil {
			return err
		}
		return printJSON(report)
	},
}

var maintenanceReencryptCmd = &cobra.Command{
	Use:   "reencrypt",
	Short: "Move every internal credential onto the active data key",
	RunE: func(cmd *cobra.Command, args []string) error {
		instance, err := openVault(cmd.Context(), false)
		if err != nil {
			return err
		}
		report, err := instance.Vault.ReencryptAll(cmd.Context(), tenantID, currentActor())
		if err != nil {
			return err
		}
		return printJSON(report)
	},
}

var maintenanceRotationDueCmd = &cobra.Command{
	Use:   "rotation-due",
	Short: "List the credentials whose rotation is due",
	RunE: func(cmd *cobra.Command, args []string) error {
		instance, err := openVault(cmd.Context(), false)
		if err != nil {
			return err
		}
		due, err := instance.Vault.ListRotationDue(cmd.Context(), tenantID, maintenanceFlags.within)
		if err != nil {
			return err
		}
		return printJSON(due)
	},
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Read the audit trail",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return requireTenant()
	},
}

var auditAccessCmd = &cobra.Command{
	Use:   "access",
	Short: "List the credential access log",
	RunE: func(cmd *cobra.Command, args []string) error {
		filter := db.AccessLogQueryFilter{
			CommonListEntryQueryFilter: db.CommonListEntryQueryFilter{Limit: &maintenanceFlags.limit},
			TargetCredentialID:         optionalString(maintenanceFlags.credentialID),
			TargetCredentialKey:        optionalString(maintenanceFlags.credentialKey),
		}
		for _, action := range maintenanceFlags.actions {
			filter.TargetActions = append(
				filter.TargetActions, models.AccessActionENUMType(strings.ToUpper(action)),
			)
		}
		if maintenanceFlags.since > 0 {
			after := time.Now().UTC().Add(-maintenanceFlags.since)
			filter.EntriesAfter = &after
		}

		instance, err := openVault(cmd.Context(), false)
		if err != nil {
			return err
		}
		entries, err := instance.Vault.ListAccessLog(cmd.Context(), tenantID, filter)
		if err != nil {
			return err
		}
		return printJSON(entries)
	},
}

var auditRotationsCmd = &cobra.Command{
	Use:   "rotations",
	Short: "List the rotation history",
	RunE: func(cmd *cobra.Command, args []string) error {
		filter := db.RotationHistoryQueryFilter{
			CommonListEntryQueryFilter: db.CommonListEntryQueryFilter{Limit: &maintenanceFlags.limit},
			TargetCredentialID:         optionalString(maintenanceFlags.credentialID),
		}
		instance, err := openVault(cmd.Context(), false)
		if err != nil {
			return err
		}
		entries, err := instance.Vault.ListRotationHistory(cmd.Context(), tenantID, filter)
		if err != nil {
			return err
		}
		return printJSON(entries)
	},
}

var foldersCmd = &cobra.Command{
	Use:   "folders",
	Short: "Organize credentials into folders",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return requireTenant()
	},
}

var foldersCreateCmd = &cobra.Command{
	Use:   "create NAME",
	Short: "Define a new folder",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		instance, err := openVault(cmd.Context(), false)
		if err != nil {
			return err
		}
		folder, err := instance.Vault.CreateFolder(cmd.Context(), vault.CreateFolderRequest{
			TenantID:           tenantID,
			Name:               args[0],
			ParentID:           optionalString(maintenanceFlags.parentID),
			InheritPermissions: maintenanceFlags.inherit,
		})
		if err != nil {
			return err
		}
		return printJSON(folder)
	},
}

var foldersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the folders",
	RunE: func(cmd *cobra.Command, args []string) error {
		instance, err := openVault(cmd.Context(), false)
		if err != nil {
			return err
		}
		folders, err := instance.Vault.ListFolders(
			cmd.Context(), tenantID, db.FolderQueryFilter{
				TargetParentID: optionalString(maintenanceFlags.parentID),
			},
		)
		if err != nil {
			return err
		}
		return printJSON(folders)
	},
}

func init() {
	rootCmd.AddCommand(maintenanceCmd, auditCmd, foldersCmd)

	maintenanceRotationDueCmd.Flags().DurationVar(
		&maintenanceFlags.within, "within", 7*24*time.Hour, "look ahead window",
	)
	maintenanceCmd.AddCommand(maintenanceExpireCmd, maintenanceReencryptCmd, maintenanceRotationDueCmd)

	for _, listing := range []*cobra.Command{auditAccessCmd, auditRotationsCmd} {
		listing.Flags().IntVar(&maintenanceFlags.limit, "limit", 100, "maximum entries")
		listing.Flags().StringVar(&maintenanceFlags.credentialID, "credential", "", "credential ID")
	}
	auditAccessCmd.Flags().StringVar(&maintenanceFlags.credentialKey, "key", "", "credential key")
	auditAccessCmd.Flags().StringSliceVar(&maintenanceFlags.actions, "action", nil, "action filter; repeatable")
	auditAccessCmd.Flags().DurationVar(&maintenanceFlags.since, "since", 0, "only entries newer than this")
	auditCmd.AddCommand(auditAccessCmd, auditRotationsCmd)

	foldersCreateCmd.Flags().StringVar(&maintenanceFlags.parentID, "parent", "", "parent folder ID")
	foldersCreateCmd.Flags().BoolVar(&maintenanceFlags.inherit, "inherit", true, "inherit parent permissions")
	foldersListCmd.Flags().StringVar(&maintenanceFlags.parentID, "parent", "", "only children of this folder")
	foldersCmd.AddCommand(foldersCreateCmd, foldersListCmd)
}
