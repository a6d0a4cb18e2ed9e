package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"gorm.io/datatypes"
)

// SystemEventTypeENUMType system event type ENUM value type
type SystemEventTypeENUMType string

const (
	// SystemEventTypeInitializing system is being initialized
	SystemEventTypeInitializing SystemEventTypeENUMType = "SYSTEM_INITIALIZING"

	// SystemEventTypeInitialized system is initialized
	SystemEventTypeInitialized SystemEventTypeENUMType = "SYSTEM_INITIALIZED"

	// SystemEventTypeNewDataKey new data encryption key is being added
	SystemEventTypeNewDataKey SystemEventTypeENUMType = "ADD_NEW_DATA_KEY"

	// SystemEventTypeActivateDataKey data encryption key is being activated
	SystemEventTypeActivateDataKey SystemEventTypeENUMType = "ACTIVATE_DATA_KEY"

	// SystemEventTypeDeactivateDataKey data encryption key is being deactivated
	SystemEventTypeDeactivateDataKey SystemEventTypeENUMType = "DEACTIVATE_DATA_KEY"

	// SystemEventTypeAddCredential new credential is being added
	SystemEventTypeAddCredential SystemEventTypeENUMType = "ADD_NEW_CREDENTIAL"

	// SystemEventTypeDeleteCredential credential is deleted
	SystemEventTypeDeleteCredential SystemEventTypeENUMType = "DELETE_CREDENTIAL"
)

// SystemEventAudit recording of events occurring at the system level
type SystemEventAudit struct {
	// ID audit entry ID
	ID string `json:"id" gorm:"column:id;primaryKey;unique" validate:"required"`
	// EventType system event type
	EventType SystemEventTypeENUMType `json:"type" gorm:"column:type;not null" validate:"required,system_event_type"`
	// Metadata a metadata relating to the event
	Metadata datatypes.JSON `json:"metadata,omitempty" gorm:"column:metadata;default:null"`
	// CreatedAt entry creation timestamp
	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt entry update timestamp
	UpdatedAt time.Time `json:"updated_at"`
}

// ParseMetadata parse the metadata based on the event type
func (a SystemEventAudit) ParseMetadata(validator *validator.Validate) (interface{}, error) {
	switch a.EventType {
	// Data key related system audit events
	case SystemEventTypeNewDataKey:
		fallthrough
	case SystemEventTypeActivateDataKey:
		fallthrough
	case SystemEventTypeDeactivateDataKey:
		var parsed SystemEventDataKeyRelated
		if err := json.Unmarshal(a.Metadata, &parsed); err != nil {
			return nil, fmt.Errorf("system event '%s' metadata parse failed [%w]", a.EventType, err)
		}
		return parsed, validator.Struct(&parsed)

	case SystemEventTypeInitialized:
		var parsed SystemEventKeyHierarchyRelated
		if err := json.Unmarshal(a.Metadata, &parsed); err != nil {
			return nil, fmt.Errorf("system event '%s' metadata parse failed [%w]", a.EventType, err)
		}
		return parsed, validator.Struct(&parsed)

	// Credential related system audit events
	case SystemEventTypeAddCredential:
		fallthrough
	case SystemEventTypeDeleteCredential:
		var parsed SystemEventCredentialRelated
		if err := json.Unmarshal(a.Metadata, &parsed); err != nil {
			return nil, fmt.Errorf("system event '%s' metadata parse failed [%w]", a.EventType, err)
		}
		return parsed, validator.Struct(&parsed)
	}
	return nil, nil
}

// SystemEventDataKeyRelated system event metadata related to a data encryption key
type SystemEventDataKeyRelated struct {
	// KeyID the data encryption key
	KeyID string `json:"key_id" validate:"required,uuid_rfc4122"`
}

// SystemEventKeyHierarchyRelated system event metadata of a key hierarchy initialization
type SystemEventKeyHierarchyRelated struct {
	// KDFIterations PBKDF2 iteration count in use
	KDFIterations int `json:"kdf_iterations" validate:"gte=300000"`
}

// SystemEventCredentialRelated system event metadata related to a credential
type SystemEventCredentialRelated struct {
	// TenantID the owning tenant
	TenantID string `json:"tenant_id" validate:"required"`
	// CredentialID the credential ID
	CredentialID string `json:"credential_id" validate:"required,uuid_rfc4122"`
	// CredentialKey the credential key
	CredentialKey string `json:"credential_key" validate:"required"`
}

// ======================================================================================
// Credential access log

// AccessActionENUMType credential access action ENUM
type AccessActionENUMType string

const (
	AccessActionCreate  AccessActionENUMType = "CREATE"
	AccessActionRead    AccessActionENUMType = "READ"
	AccessActionDecrypt AccessActionENUMType = "DECRYPT"
	AccessActionUpdate  AccessActionENUMType = "UPDATE"
	AccessActionDelete  AccessActionENUMType = "DELETE"
	AccessActionRotate  AccessActionENUMType = "ROTATE"
	AccessActionRevoke  AccessActionENUMType = "REVOKE"
)

// DenialReasonENUMType specific reason an access attempt was refused
type DenialReasonENUMType string

const (
	DenialReasonCredentialNotFound   DenialReasonENUMType = "CREDENTIAL_NOT_FOUND"
	DenialReasonCredentialNotActive  DenialReasonENUMType = "CREDENTIAL_NOT_ACTIVE"
	DenialReasonCredentialExpired    DenialReasonENUMType = "CREDENTIAL_EXPIRED"
	DenialReasonScopeBotNotAllowed   DenialReasonENUMType = "SCOPE_BOT_NOT_ALLOWED"
	DenialReasonScopeEnvMissing      DenialReasonENUMType = "SCOPE_ENVIRONMENT_MISSING"
	DenialReasonScopeEnvNotAllowed   DenialReasonENUMType = "SCOPE_ENVIRONMENT_NOT_ALLOWED"
	DenialReasonScopeUserOnly        DenialReasonENUMType = "SCOPE_USER_ONLY"
	DenialReasonScopeUnknown         DenialReasonENUMType = "SCOPE_UNKNOWN"
	DenialReasonCrossTenant          DenialReasonENUMType = "CROSS_TENANT_ACCESS"
	DenialReasonDecryptionFailed     DenialReasonENUMType = "DECRYPTION_FAILED"
	DenialReasonExternalProviderFail DenialReasonENUMType = "EXTERNAL_PROVIDER_ERROR"
	DenialReasonRequestCancelled     DenialReasonENUMType = "REQUEST_CANCELLED"
	DenialReasonVersionConflict      DenialReasonENUMType = "VERSION_CONFLICT"
	DenialReasonInvalidTransition    DenialReasonENUMType = "INVALID_STATE_TRANSITION"
	DenialReasonOperationFailed      DenialReasonENUMType = "OPERATION_FAILED"
)

// Actor identifies who is performing an operation. All fields are optional.
type Actor struct {
	// UserID interactive user
	UserID *string `json:"user_id,omitempty" gorm:"column:user_id;default:null"`
	// RunnerID bot runner host
	RunnerID *string `json:"runner_id,omitempty" gorm:"column:runner_id;default:null"`
	// RunID bot execution run
	RunID *string `json:"run_id,omitempty" gorm:"column:run_id;default:null"`
	// BotID bot definition
	BotID *string `json:"bot_id,omitempty" gorm:"column:bot_id;default:null"`
}

// String a compact label for the actor, used for "last accessed by"
func (a Actor) String() string {
	switch {
	case a.UserID != nil:
		return "user:" + *a.UserID
	case a.BotID != nil && a.RunID != nil:
		return "bot:" + *a.BotID + "/run:" + *a.RunID
	case a.BotID != nil:
		return "bot:" + *a.BotID
	case a.RunnerID != nil:
		return "runner:" + *a.RunnerID
	}
	return "system"
}

// AccessLogEntry immutable record of one credential access attempt
type AccessLogEntry struct {
	// ID log entry ID
	ID string `json:"id" gorm:"column:id;primaryKey;unique" validate:"required"`
	// TenantID the tenant of the request
	TenantID string `json:"tenant_id" gorm:"column:tenant_id;not null;index" validate:"required"`
	// CredentialID the credential; nil if the lookup itself failed
	CredentialID *string `json:"credential_id,omitempty" gorm:"column:credential_id;default:null;index"`
	// CredentialKey the requested key
	CredentialKey string `json:"credential_key" gorm:"column:credential_key;not null"`
	// Actor who attempted the access
	Actor `gorm:"embedded"`
	// Environment the requester's execution environment
	Environment *string `json:"environment,omitempty" gorm:"column:environment;default:null"`
	// NodeID the flow node requesting the credential
	NodeID *string `json:"node_id,omitempty" gorm:"column:node_id;default:null"`
	// NodeName the flow node requesting the credential
	NodeName *string `json:"node_name,omitempty" gorm:"column:node_name;default:null"`
	// Action attempted action
	Action AccessActionENUMType `json:"action" gorm:"column:action;not null" validate:"required,access_action"`
	// Success whether the action was allowed and completed
	Success bool `json:"success" gorm:"column:success;not null"`
	// DenialReason specific reason for refusal
	DenialReason *DenialReasonENUMType `json:"denial_reason,omitempty" gorm:"column:denial_reason;default:null"`
	// Context free-form request context
	Context datatypes.JSON `json:"context,omitempty" gorm:"column:context;default:null"`
	// CreatedAt entry creation timestamp
	CreatedAt time.Time `json:"created_at"`
}

// ======================================================================================
// Rotation history

// RotationTriggerENUMType what caused a rotation attempt
type RotationTriggerENUMType string

const (
	RotationTriggerManual     RotationTriggerENUMType = "MANUAL"
	RotationTriggerScheduled  RotationTriggerENUMType = "SCHEDULED"
	RotationTriggerForced     RotationTriggerENUMType = "FORCED"
	RotationTriggerExpiration RotationTriggerENUMType = "EXPIRATION"
)

// RotationHistoryEntry immutable record of one rotation attempt
type RotationHistoryEntry struct {
	// ID history entry ID
	ID string `json:"id" gorm:"column:id;primaryKey;unique" validate:"required"`
	// TenantID owning tenant
	TenantID string `json:"tenant_id" gorm:"column:tenant_id;not null;index" validate:"required"`
	// CredentialID the rotated credential
	CredentialID string `json:"credential_id" gorm:"column:credential_id;not null;index" validate:"required"`
	// Trigger what caused the attempt
	Trigger RotationTriggerENUMType `json:"trigger" gorm:"column:trigger_type;not null" validate:"required,rotation_trigger"`
	// PreviousVersion credential version before the attempt
	PreviousVersion int `json:"previous_version" gorm:"column:previous_version;not null"`
	// NewVersion credential version after the attempt
	NewVersion int `json:"new_version" gorm:"column:new_version;not null"`
	// PreviousDEKID data key of the bundle before the attempt
	PreviousDEKID *string `json:"previous_dek_id,omitempty" gorm:"column:previous_dek_id;default:null"`
	// NewDEKID data key of the bundle after the attempt
	NewDEKID *string `json:"new_dek_id,omitempty" gorm:"column:new_dek_id;default:null"`
	// ValueChanged whether a new secret value was supplied
	ValueChanged bool `json:"value_changed" gorm:"column:value_changed;not null"`
	// Success whether the rotation succeeded
	Success bool `json:"success" gorm:"column:success;not null"`
	// Error failure description
	Error *string `json:"error,omitempty" gorm:"column:error;default:null"`
	// DurationMs how long the attempt took
	DurationMs int64 `json:"duration_ms" gorm:"column:duration_ms;not null"`
	// Actor who triggered the attempt
	Actor `gorm:"embedded"`
	// CreatedAt entry creation timestamp
	CreatedAt time.Time `json:"created_at"`
}
