package vault

import (
	"time"

	"github.com/alwitt/strongbox/models"
)

// CreateRequest parameters for defining a new credential
type CreateRequest struct {
	// TenantID owning tenant
	TenantID string `json:"tenant_id" validate:"required"`
	// Key caller-facing identifier, unique within the tenant
	Key string `json:"key" validate:"required,max=255"`
	// Name display name
	Name string `json:"name" validate:"required"`
	// Description optional description
	Description *string `json:"description,omitempty"`
	// FolderID optional organizational folder
	FolderID *string `json:"folder_id,omitempty" validate:"omitempty,uuid_rfc4122"`
	// Type credential type
	Type models.CredentialTypeENUMType `json:"type" validate:"required,credential_type"`
	// Scope authorization scope
	Scope models.CredentialScopeENUMType `json:"scope" validate:"required,credential_scope"`
	// AllowedBotIDs bots allowed under BOT_SPECIFIC scope
	AllowedBotIDs []string `json:"allowed_bot_ids,omitempty"`
	// AllowedEnvironments environments allowed under ENVIRONMENT scope
	AllowedEnvironments []string `json:"allowed_environments,omitempty"`
	// AllowedUserIDs users allowed under USER_SPECIFIC scope
	AllowedUserIDs []string `json:"allowed_user_ids,omitempty"`
	// Provider where the value is held; INTERNAL if not set
	Provider models.VaultProviderENUMType `json:"provider,omitempty" validate:"omitempty,vault_provider"`
	// Value the secret value; INTERNAL credentials only
	Value models.CredentialValue `json:"-"`
	// ExternalReference reference into the external provider; external credentials only
	ExternalReference *string `json:"external_reference,omitempty"`
	// RotationEnabled whether the scheduler should rotate the credential
	RotationEnabled bool `json:"rotation_enabled"`
	// RotationIntervalDays rotation interval; required with RotationEnabled
	RotationIntervalDays *int `json:"rotation_interval_days,omitempty" validate:"omitempty,gte=1"`
	// RotationMaxFailures failure threshold; DefaultRotationMaxFailures if not set
	RotationMaxFailures *int `json:"rotation_max_failures,omitempty" validate:"omitempty,gte=0"`
	// ExpiresAt optional absolute expiration
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	// Tags free-form labels
	Tags []string `json:"tags,omitempty"`
	// Metadata non-secret metadata returned alongside the value
	Metadata map[string]interface{} `json:"metadata,omitempty"`
	// Actor who is creating the credential
	Actor models.Actor `json:"actor"`
}

// FetchRequest a bot run asking for a credential value
type FetchRequest struct {
	// TenantID tenant of the run
	TenantID string `json:"tenant_id" validate:"required"`
	// RunnerID runner executing the run
	RunnerID string `json:"runner_id" validate:"required"`
	// RunID the run
	RunID string `json:"run_id" validate:"required"`
	// BotID the bot being run
	BotID string `json:"bot_id" validate:"required"`
	// CredentialKey the requested credential
	CredentialKey string `json:"credential_key" validate:"required"`
	// Environment the environment of the run
	Environment *string `json:"environment,omitempty"`
	// NodeName the flow node asking for the credential
	NodeName *string `json:"node_name,omitempty"`
	// NodeID the flow node asking for the credential
	NodeID *string `json:"node_id,omitempty"`
}

// FetchResult a decrypted credential, to be used transiently
type FetchResult struct {
	// ID credential ID
	ID string `json:"id"`
	// Key credential key
	Key string `json:"key"`
	// Type credential type
	Type models.CredentialTypeENUMType `json:"type"`
	// Value the secret value
	Value models.CredentialValue `json:"value"`
	// Metadata non-secret metadata
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// BulkFetchRequest a bot run asking for several credential values
type BulkFetchRequest struct {
	// TenantID tenant of the run
	TenantID string `json:"tenant_id" validate:"required"`
	// RunnerID runner executing the run
	RunnerID string `json:"runner_id" validate:"required"`
	// RunID the run
	RunID string `json:"run_id" validate:"required"`
	// BotID the bot being run
	BotID string `json:"bot_id" validate:"required"`
	// CredentialKeys the requested credentials
	CredentialKeys []string `json:"credential_keys" validate:"required,min=1,dive,required"`
	// Environment the environment of the run
	Environment *string `json:"environment,omitempty"`
}

// BulkFetchResult per key outcome of a bulk fetch
type BulkFetchResult struct {
	// Credentials values of the keys which were fetched
	Credentials map[string]models.CredentialValue `json:"credentials"`
	// Errors failure message of the keys which were not
	Errors map[string]string `json:"errors"`
}

// MutationTarget identify the credential a mutation applies to
type MutationTarget struct {
	// TenantID tenant of the caller
	TenantID string `json:"tenant_id" validate:"required"`
	// CredentialID the credential
	CredentialID string `json:"credential_id" validate:"required"`
	// ExpectedVersion the version the caller last observed; 0 to use the current version
	ExpectedVersion int `json:"expected_version" validate:"gte=0"`
	// Actor who is performing the mutation
	Actor models.Actor `json:"actor"`
}

// UpdateValueRequest replace the value of a credential
type UpdateValueRequest struct {
	MutationTarget
	// Value the new secret value; INTERNAL credentials only
	Value models.CredentialValue `json:"-"`
	// ExternalReference the new reference; external credentials only
	ExternalReference *string `json:"external_reference,omitempty"`
}

// UpdateMetadataRequest change the non-secret attributes of a credential. Nil fields are
// left unchanged.
type UpdateMetadataRequest struct {
	MutationTarget
	// Name display name
	Name *string `json:"name,omitempty" validate:"omitempty,min=1"`
	// Description description
	Description *string `json:"description,omitempty"`
	// FolderID organizational folder; an empty string removes the credential from its folder
	FolderID *string `json:"folder_id,omitempty"`
	// Scope authorization scope
	Scope *models.CredentialScopeENUMType `json:"scope,omitempty" validate:"omitempty,credential_scope"`
	// AllowedBotIDs bots allowed under BOT_SPECIFIC scope
	AllowedBotIDs *[]string `json:"allowed_bot_ids,omitempty"`
	// AllowedEnvironments environments allowed under ENVIRONMENT scope
	AllowedEnvironments *[]string `json:"allowed_environments,omitempty"`
	// AllowedUserIDs users allowed under USER_SPECIFIC scope
	AllowedUserIDs *[]string `json:"allowed_user_ids,omitempty"`
	// ExpiresAt absolute expiration
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	// ClearExpiration remove the expiration
	ClearExpiration bool `json:"clear_expiration,omitempty"`
	// RotationEnabled whether the scheduler should rotate the credential
	RotationEnabled *bool `json:"rotation_enabled,omitempty"`
	// RotationIntervalDays rotation interval
	RotationIntervalDays *int `json:"rotation_interval_days,omitempty" validate:"omitempty,gte=1"`
	// RotationMaxFailures failure threshold
	RotationMaxFailures *int `json:"rotation_max_failures,omitempty" validate:"omitempty,gte=0"`
	// Tags free-form labels
	Tags *[]string `json:"tags,omitempty"`
	// Metadata non-secret metadata
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// SetStatusRequest activate or deactivate a credential
type SetStatusRequest struct {
	MutationTarget
	// Status the new status
	Status models.CredentialStatusENUMType `json:"status" validate:"required,oneof=ACTIVE INACTIVE PENDING_ROTATION"`
}

// RotateRequest rotate a credential
type RotateRequest struct {
	MutationTarget
	// NewValue optional new value; without it the value is re-encrypted with the active DEK
	NewValue models.CredentialValue `json:"-"`
	// Trigger what started the rotation; MANUAL if not set
	Trigger models.RotationTriggerENUMType `json:"trigger,omitempty" validate:"omitempty,rotation_trigger"`
}

// RotateResult outcome of a rotation
type RotateResult struct {
	// Credential the credential after the rotation
	Credential models.Credential `json:"credential"`
	// History the rotation history entry
	History models.RotationHistoryEntry `json:"history"`
}

// RevokeRequest revoke a credential permanently
type RevokeRequest struct {
	MutationTarget
	// Reason why the credential is revoked
	Reason string `json:"reason" validate:"required"`
}

// DeleteRequest delete a credential
type DeleteRequest struct {
	MutationTarget
}

// CreateFolderRequest parameters for defining a new folder
type CreateFolderRequest struct {
	// TenantID owning tenant
	TenantID string `json:"tenant_id" validate:"required"`
	// Name folder name
	Name string `json:"name" validate:"required,excludes=/"`
	// ParentID optional parent folder
	ParentID *string `json:"parent_id,omitempty" validate:"omitempty,uuid_rfc4122"`
	// InheritPermissions whether child folders inherit Permissions
	InheritPermissions bool `json:"inherit_permissions"`
	// Permissions opaque permission document
	Permissions map[string]interface{} `json:"permissions,omitempty"`
}

// ExpireReport outcome of expiring overdue credentials
type ExpireReport struct {
	// Expired keys of the credentials moved to EXPIRED
	Expired []string `json:"expired"`
	// Errors failure message of the keys which could not be updated
	Errors map[string]string `json:"errors"`
}

// ReencryptReport outcome of migrating credentials onto the active DEK
type ReencryptReport struct {
	// Migrated keys of the credentials now encrypted with the active DEK
	Migrated []string `json:"migrated"`
	// Skipped keys of the credentials which can not be rotated in their current state
	Skipped []string `json:"skipped"`
	// Errors failure message of the keys which failed to migrate
	Errors map[string]string `json:"errors"`
}

// DataKeyInfo non-secret description of a data encryption key
type DataKeyInfo struct {
	// ID key ID
	ID string `json:"id"`
	// CreatedAt key creation time
	CreatedAt time.Time `json:"created_at"`
	// Active whether this is the active key
	Active bool `json:"active"`
}
