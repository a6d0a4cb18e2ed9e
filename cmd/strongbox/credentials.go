package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/alwitt/strongbox/db"
	"github.com/alwitt/strongbox/encryption"
	"github.com/alwitt/strongbox/models"
	"github.com/alwitt/strongbox/vault"
	"github.com/spf13/cobra"
)

var credentialFlags struct {
	key          string
	name         string
	description  string
	credType     string
	scope        string
	bots         []string
	environments []string
	users        []string
	valueJSON    string
	provider     string
	reference    string
	rotationDays int
	expiresAt    string
	tags         []string
	folderID     string
	version      int
	status       string
	reason       string
	reveal       bool
	runner       string
	run          string
	bot          string
	environment  string
	statuses     []string
}

var credentialsCmd = &cobra.Command{
	Use:     "credentials",
	Aliases: []string{"cred"},
	Short:   "Manage the credentials of a tenant",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return requireTenant()
	},
}

// parseValue decode a JSON object credential value
func parseValue(raw string) (models.CredentialValue, error) {
	if raw == "" {
		return nil, nil
	}
	value := models.CredentialValue{}
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		return nil, fmt.Errorf("value must be a JSON object [%w]", models.ErrBadRequest)
	}
	return value, nil
}

func optionalString(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

func parseExpiration(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, fmt.Errorf("expiration must be RFC3339 [%w]", models.ErrBadRequest)
	}
	return &parsed, nil
}

func mutationTarget(credentialID string) vault.MutationTarget {
	return vault.MutationTarget{
		TenantID:        tenantID,
		CredentialID:    credentialID,
		ExpectedVersion: credentialFlags.version,
		Actor:           currentActor(),
	}
}

var credentialsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Define a new credential",
	RunE: func(cmd *cobra.Command, args []string) error {
		value, err := parseValue(credentialFlags.valueJSON)
		if err != nil {
			return err
		}
		expiresAt, err := parseExpiration(credentialFlags.expiresAt)
		if err != nil {
			return err
		}
		req := vault.CreateRequest{
			TenantID:            tenantID,
			Key:                 credentialFlags.key,
			Name:                credentialFlags.name,
			Description:         optionalString(credentialFlags.description),
			FolderID:            optionalString(credentialFlags.folderID),
			Type:                models.CredentialTypeENUMType(strings.ToUpper(credentialFlags.credType)),
			Scope:               models.CredentialScopeENUMType(strings.ToUpper(credentialFlags.scope)),
			AllowedBotIDs:       credentialFlags.bots,
			AllowedEnvironments: credentialFlags.environments,
			AllowedUserIDs:      credentialFlags.users,
			Provider:            models.VaultProviderENUMType(strings.ToUpper(credentialFlags.provider)),
			Value:               value,
			ExternalReference:   optionalString(credentialFlags.reference),
			ExpiresAt:           expiresAt,
			Tags:                credentialFlags.tags,
			Actor:               currentActor(),
		}
		if credentialFlags.rotationDays > 0 {
			req.RotationEnabled = true
			req.RotationIntervalDays = &credentialFlags.rotationDays
		}

		instance, err := openVault(cmd.Context(), false)
		if err != nil {
			return err
		}
		created, err := instance.Vault.Create(cmd.Context(), req)
		if err != nil {
			return err
		}
		return printJSON(created)
	},
}

var credentialsFetchCmd = &cobra.Command{
	Use:   "fetch KEY",
	Short: "Fetch a credential value on behalf of a bot run",
	Long: `Fetch a credential value on behalf of a bot run. Values are masked unless --reveal
is given.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		instance, err := openVault(cmd.Context(), false)
		if err != nil {
			return err
		}
		result, err := instance.Vault.Fetch(cmd.Context(), vault.FetchRequest{
			TenantID:      tenantID,
			RunnerID:      credentialFlags.runner,
			RunID:         credentialFlags.run,
			BotID:         credentialFlags.bot,
			CredentialKey: args[0],
			Environment:   optionalString(credentialFlags.environment),
		})
		if err != nil {
			return err
		}
		if !credentialFlags.reveal {
			for field, fieldValue := range result.Value {
				if asString, ok := fieldValue.(string); ok {
					result.Value[field] = encryption.Mask(asString, encryption.DefaultMaskVisibleChars)
				} else {
					result.Value[field] = "****"
				}
			}
		}
		return printJSON(result)
	},
}

var credentialsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the credentials, without their values",
	RunE: func(cmd *cobra.Command, args []string) error {
		filter := db.CredentialQueryFilter{}
		for _, status := range credentialFlags.statuses {
			filter.TargetStatus = append(
				filter.TargetStatus, models.CredentialStatusENUMType(strings.ToUpper(status)),
			)
		}
		filter.TargetFolderID = optionalString(credentialFlags.folderID)

		instance, err := openVault(cmd.Context(), false)
		if err != nil {
			return err
		}
		credentials, err := instance.Vault.List(cmd.Context(), tenantID, filter)
		if err != nil {
			return err
		}
		return printJSON(credentials)
	},
}

var credentialsDescribeCmd = &cobra.Command{
	Use:   "describe ID",
	Short: "Show a credential, without its value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		instance, err := openVault(cmd.Context(), false)
		if err != nil {
			return err
		}
		credential, err := instance.Vault.Describe(cmd.Context(), tenantID, args[0], currentActor())
		if err != nil {
			return err
		}
		return printJSON(credential)
	},
}

var credentialsUpdateValueCmd = &cobra.Command{
	Use:   "update-value ID",
	Short: "Replace the value or external reference of a credential",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		value, err := parseValue(credentialFlags.valueJSON)
		if err != nil {
			return err
		}
		instance, err := openVault(cmd.Context(), false)
		if err != nil {
			return err
		}
		updated, err := instance.Vault.UpdateValue(cmd.Context(), vault.UpdateValueRequest{
			MutationTarget:    mutationTarget(args[0]),
			Value:             value,
			ExternalReference: optionalString(credentialFlags.reference),
		})
		if err != nil {
			return err
		}
		return printJSON(updated)
	},
}

var credentialsSetStatusCmd = &cobra.Command{
	Use:   "set-status ID",
	Short: "Activate or deactivate a credential",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		instance, err := openVault(cmd.Context(), false)
		if err != nil {
			return err
		}
		updated, err := instance.Vault.SetStatus(cmd.Context(), vault.SetStatusRequest{
			MutationTarget: mutationTarget(args[0]),
			Status:         models.CredentialStatusENUMType(strings.ToUpper(credentialFlags.status)),
		})
		if err != nil {
			return err
		}
		return printJSON(updated)
	},
}

var credentialsRotateCmd = &cobra.Command{
	Use:   "rotate ID",
	Short: "Rotate a credential, optionally to a new value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		value, err := parseValue(credentialFlags.valueJSON)
		if err != nil {
			return err
		}
		instance, err := openVault(cmd.Context(), false)
		if err != nil {
			return err
		}
		result, err := instance.Vault.Rotate(cmd.Context(), vault.RotateRequest{
			MutationTarget: mutationTarget(args[0]),
			NewValue:       value,
			Trigger:        models.RotationTriggerManual,
		})
		if err != nil {
			return err
		}
		return printJSON(result)
	},
}

var credentialsRevokeCmd = &cobra.Command{
	Use:   "revoke ID",
	Short: "Revoke a credential permanently",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		instance, err := openVault(cmd.Context(), false)
		if err != nil {
			return err
		}
		revoked, err := instance.Vault.Revoke(cmd.Context(), vault.RevokeRequest{
			MutationTarget: mutationTarget(args[0]),
			Reason:         credentialFlags.reason,
		})
		if err != nil {
			return err
		}
		return printJSON(revoked)
	},
}

var credentialsDeleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Delete a credential; its audit trail is kept",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		instance, err := openVault(cmd.Context(), false)
		if err != nil {
			return err
		}
		if err := instance.Vault.Delete(
			cmd.Context(), vault.DeleteRequest{MutationTarget: mutationTarget(args[0])},
		); err != nil {
			return err
		}
		fmt.Printf("Deleted credential %s\n", args[0])
		return nil
	},
}

var credentialsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize the credentials of the tenant",
	RunE: func(cmd *cobra.Command, args []string) error {
		instance, err := openVault(cmd.Context(), false)
		if err != nil {
			return err
		}
		stats, err := instance.Vault.GetStats(cmd.Context(), tenantID)
		if err != nil {
			return err
		}
		return printJSON(stats)
	},
}

func init() {
	rootCmd.AddCommand(credentialsCmd)

	create := credentialsCreateCmd.Flags()
	create.StringVar(&credentialFlags.key, "key", "", "credential key, unique within the tenant")
	create.StringVar(&credentialFlags.name, "name", "", "display name")
	create.StringVar(&credentialFlags.description, "description", "", "description")
	create.StringVar(&credentialFlags.credType, "type", "GENERIC_SECRET", "credential type")
	create.StringVar(&credentialFlags.scope, "scope", "GLOBAL", "GLOBAL, BOT_SPECIFIC, ENVIRONMENT or USER_SPECIFIC")
	create.StringSliceVar(&credentialFlags.bots, "bot", nil, "allowed bot ID; repeatable")
	create.StringSliceVar(&credentialFlags.environments, "env", nil, "allowed environment; repeatable")
	create.StringSliceVar(&credentialFlags.users, "user", nil, "allowed user ID; repeatable")
	create.StringVar(&credentialFlags.valueJSON, "value-json", "", "secret value as a JSON object")
	create.StringVar(&credentialFlags.provider, "provider", "INTERNAL", "vault provider")
	create.StringVar(&credentialFlags.reference, "reference", "", "external provider reference")
	create.IntVar(&credentialFlags.rotationDays, "rotation-days", 0, "enable rotation with this interval")
	create.StringVar(&credentialFlags.expiresAt, "expires-at", "", "RFC3339 expiration")
	create.StringSliceVar(&credentialFlags.tags, "tag", nil, "tag; repeatable")
	create.StringVar(&credentialFlags.folderID, "folder", "", "folder ID")
	_ = credentialsCreateCmd.MarkFlagRequired("key")
	_ = credentialsCreateCmd.MarkFlagRequired("name")

	fetch := credentialsFetchCmd.Flags()
	fetch.StringVar(&credentialFlags.runner, "runner", "cli", "runner ID")
	fetch.StringVar(&credentialFlags.run, "run", "", "run ID")
	fetch.StringVar(&credentialFlags.bot, "bot", "", "bot ID")
	fetch.StringVar(&credentialFlags.environment, "env", "", "environment of the run")
	fetch.BoolVar(&credentialFlags.reveal, "reveal", false, "print the value unmasked")
	_ = credentialsFetchCmd.MarkFlagRequired("run")
	_ = credentialsFetchCmd.MarkFlagRequired("bot")

	credentialsListCmd.Flags().StringSliceVar(&credentialFlags.statuses, "status", nil, "status filter; repeatable")
	credentialsListCmd.Flags().StringVar(&credentialFlags.folderID, "folder", "", "folder ID")

	for _, mutation := range []*cobra.Command{
		credentialsUpdateValueCmd,
		credentialsSetStatusCmd,
		credentialsRotateCmd,
		credentialsRevokeCmd,
		credentialsDeleteCmd,
	} {
		mutation.Flags().IntVar(&credentialFlags.version, "version", 0, "expected version; 0 for current")
	}
	credentialsUpdateValueCmd.Flags().StringVar(&credentialFlags.valueJSON, "value-json", "", "new value as a JSON object")
	credentialsUpdateValueCmd.Flags().StringVar(&credentialFlags.reference, "reference", "", "new external reference")
	credentialsSetStatusCmd.Flags().StringVar(&credentialFlags.status, "status", "", "ACTIVE, INACTIVE or PENDING_ROTATION")
	_ = credentialsSetStatusCmd.MarkFlagRequired("status")
	credentialsRotateCmd.Flags().StringVar(&credentialFlags.valueJSON, "value-json", "", "new value as a JSON object")
	credentialsRevokeCmd.Flags().StringVar(&credentialFlags.reason, "reason", "", "revocation reason")
	_ = credentialsRevokeCmd.MarkFlagRequired("reason")

	credentialsCmd.AddCommand(
		credentialsCreateCmd,
		credentialsFetchCmd,
		credentialsListCmd,
		credentialsDescribeCmd,
		credentialsUpdateValueCmd,
		credentialsSetStatusCmd,
		credentialsRotateCmd,
		credentialsRevokeCmd,
		credentialsDeleteCmd,
		credentialsStatsCmd,
	)
}
