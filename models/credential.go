package models

import (
	"fmt"
	"time"

	"gorm.io/datatypes"
)

// CredentialTypeENUMType credential type ENUM value type
//
// The type is purely descriptive; it does not change how the value is encrypted.
type CredentialTypeENUMType string

const (
	CredentialTypeUsernamePassword   CredentialTypeENUMType = "USERNAME_PASSWORD"
	CredentialTypeAPIKey             CredentialTypeENUMType = "API_KEY"
	CredentialTypeOAuth2Client       CredentialTypeENUMType = "OAUTH2_CLIENT"
	CredentialTypeOAuth2Token        CredentialTypeENUMType = "OAUTH2_TOKEN"
	CredentialTypeBearerToken        CredentialTypeENUMType = "BEARER_TOKEN"
	CredentialTypeBasicAuth          CredentialTypeENUMType = "BASIC_AUTH"
	CredentialTypeDatabaseConnection CredentialTypeENUMType = "DATABASE_CONNECTION"
	CredentialTypePostgreSQL         CredentialTypeENUMType = "POSTGRESQL"
	CredentialTypeMySQL              CredentialTypeENUMType = "MYSQL"
	CredentialTypeMSSQL              CredentialTypeENUMType = "MSSQL"
	CredentialTypeMongoDB            CredentialTypeENUMType = "MONGODB"
	CredentialTypeRedis              CredentialTypeENUMType = "REDIS"
	CredentialTypeAWSCredentials     CredentialTypeENUMType = "AWS_CREDENTIALS"
	CredentialTypeAzureCredentials   CredentialTypeENUMType = "AZURE_CREDENTIALS"
	CredentialTypeGCPServiceAccount  CredentialTypeENUMType = "GCP_SERVICE_ACCOUNT"
	CredentialTypeCertificate        CredentialTypeENUMType = "CERTIFICATE"
	CredentialTypeSSHKey             CredentialTypeENUMType = "SSH_KEY"
	CredentialTypeSMTP               CredentialTypeENUMType = "SMTP"
	CredentialTypeFTPSFTP            CredentialTypeENUMType = "FTP_SFTP"
	CredentialTypeGenericSecret      CredentialTypeENUMType = "GENERIC_SECRET"
	CredentialTypeKeyValue           CredentialTypeENUMType = "KEY_VALUE"
)

// AllCredentialTypes every supported credential type
var AllCredentialTypes = []CredentialTypeENUMType{
	CredentialTypeUsernamePassword,
	CredentialTypeAPIKey,
	CredentialTypeOAuth2Client,
	CredentialTypeOAuth2Token,
	CredentialTypeBearerToken,
	CredentialTypeBasicAuth,
	CredentialTypeDatabaseConnection,
	CredentialTypePostgreSQL,
	CredentialTypeMySQL,
	CredentialTypeMSSQL,
	CredentialTypeMongoDB,
	CredentialTypeRedis,
	CredentialTypeAWSCredentials,
	CredentialTypeAzureCredentials,
	CredentialTypeGCPServiceAccount,
	CredentialTypeCertificate,
	CredentialTypeSSHKey,
	CredentialTypeSMTP,
	CredentialTypeFTPSFTP,
	CredentialTypeGenericSecret,
	CredentialTypeKeyValue,
}

// CredentialStatusENUMType credential lifecycle status ENUM
type CredentialStatusENUMType string

const (
	// CredentialStatusActive the credential is usable
	CredentialStatusActive CredentialStatusENUMType = "ACTIVE"
	// CredentialStatusInactive the credential is disabled by an operator
	CredentialStatusInactive CredentialStatusENUMType = "INACTIVE"
	// CredentialStatusExpired the credential passed its expiration
	CredentialStatusExpired CredentialStatusENUMType = "EXPIRED"
	// CredentialStatusRevoked the credential is permanently revoked
	CredentialStatusRevoked CredentialStatusENUMType = "REVOKED"
	// CredentialStatusPendingRotation the credential is waiting to be rotated
	CredentialStatusPendingRotation CredentialStatusENUMType = "PENDING_ROTATION"
	// CredentialStatusRotationFailed the last rotation attempt failed
	CredentialStatusRotationFailed CredentialStatusENUMType = "ROTATION_FAILED"
)

// CredentialScopeENUMType credential authorization scope ENUM
type CredentialScopeENUMType string

const (
	// CredentialScopeGlobal any caller within the tenant
	CredentialScopeGlobal CredentialScopeENUMType = "GLOBAL"
	// CredentialScopeBotSpecific only the listed bots
	CredentialScopeBotSpecific CredentialScopeENUMType = "BOT_SPECIFIC"
	// CredentialScopeEnvironment only callers running in the listed environments
	CredentialScopeEnvironment CredentialScopeENUMType = "ENVIRONMENT"
	// CredentialScopeUserSpecific only interactive user sessions
	CredentialScopeUserSpecific CredentialScopeENUMType = "USER_SPECIFIC"
)

// VaultProviderENUMType where the credential value is held
type VaultProviderENUMType string

const (
	// VaultProviderInternal value is encrypted and stored by this system
	VaultProviderInternal VaultProviderENUMType = "INTERNAL"
	// VaultProviderHashicorp value is held in HashiCorp Vault
	VaultProviderHashicorp VaultProviderENUMType = "HASHICORP_VAULT"
	// VaultProviderAWSSecretsManager value is held in AWS Secrets Manager
	VaultProviderAWSSecretsManager VaultProviderENUMType = "AWS_SECRETS_MANAGER"
	// VaultProviderAzureKeyVault value is held in Azure Key Vault
	VaultProviderAzureKeyVault VaultProviderENUMType = "AZURE_KEY_VAULT"
	// VaultProviderGCPSecretManager value is held in GCP Secret Manager
	VaultProviderGCPSecretManager VaultProviderENUMType = "GCP_SECRET_MANAGER"
)

// CredentialValue the structured secret value of a credential
//
// ex. {"username": "svc", "password": "..."} or {"apiKey": "sk-..."}
type CredentialValue map[string]interface{}

// Credential a named secret record
type Credential struct {
	// ID credential ID
	ID string `json:"id" gorm:"column:id;primaryKey;unique" validate:"required,uuid_rfc4122"`
	// TenantID owning tenant
	TenantID string `json:"tenant_id" gorm:"column:tenant_id;not null;uniqueIndex:idx_credential_tenant_key" validate:"required"`
	// Key caller-facing identifier, unique within the tenant
	Key string `json:"key" gorm:"column:key;not null;uniqueIndex:idx_credential_tenant_key" validate:"required,max=255"`
	// Name display name
	Name string `json:"name" gorm:"column:name;not null" validate:"required"`
	// Description optional description
	Description *string `json:"description,omitempty" gorm:"column:description;default:null"`
	// FolderID optional organizational folder
	FolderID *string `json:"folder_id,omitempty" gorm:"column:folder_id;default:null" validate:"omitempty,uuid_rfc4122"`

	// Type credential type
	Type CredentialTypeENUMType `json:"type" gorm:"column:type;not null" validate:"required,credential_type"`
	// Status lifecycle status
	Status CredentialStatusENUMType `json:"status" gorm:"column:status;not null" validate:"required,credential_status"`

	// Scope authorization scope
	Scope CredentialScopeENUMType `json:"scope" gorm:"column:scope;not null" validate:"required,credential_scope"`
	// AllowedBotIDs bots allowed under BOT_SPECIFIC scope
	AllowedBotIDs []string `json:"allowed_bot_ids,omitempty" gorm:"column:allowed_bot_ids;serializer:json"`
	// AllowedEnvironments environments allowed under ENVIRONMENT scope
	AllowedEnvironments []string `json:"allowed_environments,omitempty" gorm:"column:allowed_environments;serializer:json"`
	// AllowedUserIDs users allowed under USER_SPECIFIC scope
	AllowedUserIDs []string `json:"allowed_user_ids,omitempty" gorm:"column:allowed_user_ids;serializer:json"`

	// Provider where the secret value is held
	Provider VaultProviderENUMType `json:"provider" gorm:"column:provider;not null" validate:"required,vault_provider"`
	// EncryptedValue the `keyId:iv:authTag:ciphertext` bundle when the provider is INTERNAL
	EncryptedValue *string `json:"-" gorm:"column:encrypted_value;default:null"`
	// DEKID the data encryption key which produced EncryptedValue
	DEKID *string `json:"dek_id,omitempty" gorm:"column:dek_id;default:null"`
	// ExternalReference opaque reference into the external provider
	ExternalReference *string `json:"external_reference,omitempty" gorm:"column:external_reference;default:null"`

	// Version optimistic concurrency version
	Version int `json:"version" gorm:"column:version;not null" validate:"gte=1"`

	// RotationEnabled whether the external scheduler should rotate this credential
	RotationEnabled bool `json:"rotation_enabled" gorm:"column:rotation_enabled;not null"`
	// RotationIntervalDays rotation interval
	RotationIntervalDays *int `json:"rotation_interval_days,omitempty" gorm:"column:rotation_interval_days;default:null" validate:"omitempty,gte=1"`
	// LastRotatedAt timestamp of the last successful rotation
	LastRotatedAt *time.Time `json:"last_rotated_at,omitempty" gorm:"column:last_rotated_at;default:null"`
	// NextRotationAt when the next rotation is due
	NextRotationAt *time.Time `json:"next_rotation_at,omitempty" gorm:"column:next_rotation_at;default:null"`
	// RotationFailureCount consecutive rotation failures
	RotationFailureCount int `json:"rotation_failure_count" gorm:"column:rotation_failure_count;not null"`
	// RotationMaxFailures failure threshold consulted by the scheduler
	RotationMaxFailures int `json:"rotation_max_failures" gorm:"column:rotation_max_failures;not null" validate:"gte=0"`

	// ExpiresAt optional absolute expiration
	ExpiresAt *time.Time `json:"expires_at,omitempty" gorm:"column:expires_at;default:null"`

	// AccessCount total successful accesses
	AccessCount int64 `json:"access_count" gorm:"column:access_count;not null"`
	// LastAccessedAt last successful access
	LastAccessedAt *time.Time `json:"last_accessed_at,omitempty" gorm:"column:last_accessed_at;default:null"`
	// LastAccessedBy actor of the last successful access
	LastAccessedBy *string `json:"last_accessed_by,omitempty" gorm:"column:last_accessed_by;default:null"`

	// RevokedAt when the credential was revoked
	RevokedAt *time.Time `json:"revoked_at,omitempty" gorm:"column:revoked_at;default:null"`
	// RevokedReason why the credential was revoked
	RevokedReason *string `json:"revoked_reason,omitempty" gorm:"column:revoked_reason;default:null"`

	// Tags free-form labels
	Tags []string `json:"tags,omitempty" gorm:"column:tags;serializer:json"`
	// Metadata non-secret metadata returned alongside the value
	Metadata datatypes.JSON `json:"metadata,omitempty" gorm:"column:metadata;default:null"`

	// CreatedBy creating user
	CreatedBy *string `json:"created_by,omitempty" gorm:"column:created_by;default:null"`
	// UpdatedBy last updating user
	UpdatedBy *string `json:"updated_by,omitempty" gorm:"column:updated_by;default:null"`

	// CreatedAt entry creation timestamp
	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt entry update timestamp
	UpdatedAt time.Time `json:"updated_at"`
}

// IsExpired whether the credential is past its expiration at the given time
func (c *Credential) IsExpired(now time.Time) bool {
	return c.ExpiresAt != nil && !c.ExpiresAt.After(now)
}

// IsInternal whether the value is held by this system
func (c *Credential) IsInternal() bool {
	return c.Provider == VaultProviderInternal
}

// ValidateNextState verify can transition to new state
func (c *Credential) ValidateNextState(newState CredentialStatusENUMType) error {
	statesWithTransitions := map[CredentialStatusENUMType]map[CredentialStatusENUMType]bool{
		CredentialStatusActive: {
			CredentialStatusActive:          true,
			CredentialStatusInactive:        true,
			CredentialStatusExpired:         true,
			CredentialStatusRevoked:         true,
			CredentialStatusPendingRotation: true,
			CredentialStatusRotationFailed:  true,
		},
		CredentialStatusInactive: {
			CredentialStatusInactive: true,
			CredentialStatusActive:   true,
			CredentialStatusRevoked:  true,
		},
		CredentialStatusExpired: {
			CredentialStatusExpired:        true,
			CredentialStatusActive:         true,
			CredentialStatusRotationFailed: true,
			CredentialStatusRevoked:        true,
		},
		CredentialStatusPendingRotation: {
			CredentialStatusPendingRotation: true,
			CredentialStatusActive:          true,
			CredentialStatusRotationFailed:  true,
			CredentialStatusRevoked:         true,
		},
		CredentialStatusRotationFailed: {
			CredentialStatusRotationFailed:  true,
			CredentialStatusActive:          true,
			CredentialStatusPendingRotation: true,
			CredentialStatusRevoked:         true,
		},
		CredentialStatusRevoked: {
			CredentialStatusRevoked: true,
		},
	}

	availableNextStates, ok := statesWithTransitions[c.Status]
	if !ok {
		return fmt.Errorf(
			"credential can't transition out of state '%s' [%w]", c.Status, ErrBadRequest,
		)
	}

	if _, ok := availableNextStates[newState]; !ok {
		return fmt.Errorf(
			"credential can't transition from '%s' to '%s' [%w]", c.Status, newState, ErrBadRequest,
		)
	}

	return nil
}
