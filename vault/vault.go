// Package vault - envelope encryption credential vault
package vault

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/alwitt/goutils"
	"github.com/alwitt/strongbox/db"
	"github.com/alwitt/strongbox/encryption"
	"github.com/alwitt/strongbox/models"
	"github.com/alwitt/strongbox/policy"
	"github.com/alwitt/strongbox/rotation"
	"github.com/apex/log"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/datatypes"
)

const (
	// DefaultRotationMaxFailures rotation failure threshold when none is given
	DefaultRotationMaxFailures = 3
	// ExpiringSoonWindow look ahead window of the "expiring soon" statistic
	ExpiringSoonWindow = 30 * 24 * time.Hour
	// RotationDueSoonWindow look ahead window of the "rotation due soon" statistic
	RotationDueSoonWindow = 7 * 24 * time.Hour
)

// PersistenceStore credential and folder persistence
type PersistenceStore interface {
	CreateCredential(ctx context.Context, credential models.Credential) (models.Credential, error)
	GetCredential(ctx context.Context, credentialID string) (models.Credential, error)
	GetCredentialByKey(ctx context.Context, tenantID, key string) (models.Credential, error)
	ListCredentials(
		ctx context.Context, tenantID string, filters db.CredentialQueryFilter,
	) ([]models.Credential, error)
	// UpdateCredential persist the credential only if the stored version is expectedVersion
	UpdateCredential(ctx context.Context, credential models.Credential, expectedVersion int) error
	RecordCredentialAccess(
		ctx context.Context, credentialID string, accessedBy string, timestamp time.Time,
	) error
	DeleteCredential(ctx context.Context, credentialID string) error

	CreateFolder(ctx context.Context, folder models.Folder) (models.Folder, error)
	GetFolder(ctx context.Context, tenantID, folderID string) (models.Folder, error)
	ListFolders(
		ctx context.Context, tenantID string, filters db.FolderQueryFilter,
	) ([]models.Folder, error)

	ListAccessLog(
		ctx context.Context, tenantID string, filters db.AccessLogQueryFilter,
	) ([]models.AccessLogEntry, error)
	ListRotationHistory(
		ctx context.Context, tenantID string, filters db.RotationHistoryQueryFilter,
	) ([]models.RotationHistoryEntry, error)
}

// AuditSink append-only audit trail
type AuditSink interface {
	RecordAccess(ctx context.Context, entry models.AccessLogEntry) error
	RecordRotation(ctx context.Context, entry models.RotationHistoryEntry) error
}

// ExternalVaultAdapter read secret values held by external vaults
type ExternalVaultAdapter interface {
	FetchSecret(
		ctx context.Context, provider models.VaultProviderENUMType, reference string,
	) (models.CredentialValue, error)
}

// DataKeyManager the data encryption key operations used by the vault
type DataKeyManager interface {
	GenerateDEK(ctx context.Context) (encryption.DataEncryptionKey, error)
	GetActiveDEK() (encryption.DataEncryptionKey, error)
	ListDEKs() []encryption.DataEncryptionKey
}

// CredentialVault create, fetch, rotate, revoke and audit credentials
type CredentialVault interface {
	/*
		Create define a new credential

			@param ctx context.Context - execution context
			@param req CreateRequest - the credential definition
			@returns the new credential
	*/
	Create(ctx context.Context, req CreateRequest) (models.Credential, error)

	/*
		Fetch decrypt a credential for a bot run. Every outcome is audited.

			@param ctx context.Context - execution context
			@param req FetchRequest - the request
			@returns the decrypted credential
	*/
	Fetch(ctx context.Context, req FetchRequest) (FetchResult, error)

	/*
		BulkFetch fetch several credentials independently. A failure on one key does not
		affect the others.

			@param ctx context.Context - execution context
			@param req BulkFetchRequest - the request
			@returns the per key outcomes
	*/
	BulkFetch(ctx context.Context, req BulkFetchRequest) (BulkFetchResult, error)

	/*
		UpdateValue replace the value of a credential

			@param ctx context.Context - execution context
			@param req UpdateValueRequest - the request
			@returns the updated credential
	*/
	UpdateValue(ctx context.Context, req UpdateValueRequest) (models.Credential, error)

	/*
		UpdateMetadata change the non-secret attributes of a credential

			@param ctx context.Context - execution context
			@param req UpdateMetadataRequest - the request
			@returns the updated credential
	*/
	UpdateMetadata(ctx context.Context, req UpdateMetadataRequest) (models.Credential, error)

	/*
		SetStatus activate or deactivate a credential

			@param ctx context.Context - execution context
			@param req SetStatusRequest - the request
			@returns the updated credential
	*/
	SetStatus(ctx context.Context, req SetStatusRequest) (models.Credential, error)

	/*
		Rotate rotate a credential, with a new value or by re-encrypting with the active DEK

			@param ctx context.Context - execution context
			@param req RotateRequest - the request
			@returns the rotation outcome
	*/
	Rotate(ctx context.Context, req RotateRequest) (RotateResult, error)

	/*
		Revoke revoke a credential permanently

			@param ctx context.Context - execution context
			@param req RevokeRequest - the request
			@returns the updated credential
	*/
	Revoke(ctx context.Context, req RevokeRequest) (models.Credential, error)

	/*
		Delete delete a credential. The audit entry is written before the record is removed.

			@param ctx context.Context - execution context
			@param req DeleteRequest - the request
	*/
	Delete(ctx context.Context, req DeleteRequest) error

	/*
		GetStats aggregate view of the credentials of a tenant

			@param ctx context.Context - execution context
			@param tenantID string - the tenant
			@returns the statistics
	*/
	GetStats(ctx context.Context, tenantID string) (models.CredentialStats, error)

	/*
		Describe fetch the metadata of a credential, without its value

			@param ctx context.Context - execution context
			@param tenantID string - tenant of the caller
			@param credentialID string - the credential
			@param actor models.Actor - the caller
			@returns the credential
	*/
	Describe(
		ctx context.Context, tenantID, credentialID string, actor models.Actor,
	) (models.Credential, error)

	/*
		List list the credentials of a tenant, without their values

			@param ctx context.Context - execution context
			@param tenantID string - the tenant
			@param filter db.CredentialQueryFilter - query filter
			@returns the credentials
	*/
	List(
		ctx context.Context, tenantID string, filter db.CredentialQueryFilter,
	) ([]models.Credential, error)

	/*
		ListRotationDue list the credentials whose rotation is due within the window

			@param ctx context.Context - execution context
			@param tenantID string - the tenant
			@param within time.Duration - look ahead window; 0 for overdue only
			@returns the credentials
	*/
	ListRotationDue(
		ctx context.Context, tenantID string, within time.Duration,
	) ([]models.Credential, error)

	/*
		ExpireOverdue move ACTIVE credentials past their expiration to EXPIRED

			@param ctx context.Context - execution context
			@param tenantID string - the tenant
			@param actor models.Actor - the caller
			@returns the outcome
	*/
	ExpireOverdue(ctx context.Context, tenantID string, actor models.Actor) (ExpireReport, error)

	/*
		RotateDataKey generate a new active data encryption key

			@param ctx context.Context - execution context
			@returns the new key
	*/
	RotateDataKey(ctx context.Context) (DataKeyInfo, error)

	/*
		ListDataKeys list the data encryption keys

			@returns the keys
	*/
	ListDataKeys() []DataKeyInfo

	/*
		ReencryptAll migrate the credentials of a tenant onto the active data encryption key

			@param ctx context.Context - execution context
			@param tenantID string - the tenant
			@param actor models.Actor - the caller
			@returns the outcome
	*/
	ReencryptAll(ctx context.Context, tenantID string, actor models.Actor) (ReencryptReport, error)

	/*
		CreateFolder define a new folder

			@param ctx context.Context - execution context
			@param req CreateFolderRequest - the folder definition
			@returns the new folder
	*/
	CreateFolder(ctx context.Context, req CreateFolderRequest) (models.Folder, error)

	/*
		GetFolder fetch a folder

			@param ctx context.Context - execution context
			@param tenantID string - the tenant
			@param folderID string - the folder
			@returns the folder
	*/
	GetFolder(ctx context.Context, tenantID, folderID string) (models.Folder, error)

	/*
		ListFolders list the folders of a tenant

			@param ctx context.Context - execution context
			@param tenantID string - the tenant
			@param filter db.FolderQueryFilter - query filter
			@returns the folders
	*/
	ListFolders(
		ctx context.Context, tenantID string, filter db.FolderQueryFilter,
	) ([]models.Folder, error)

	/*
		ListAccessLog list the access log of a tenant

			@param ctx context.Context - execution context
			@param tenantID string - the tenant
			@param filter db.AccessLogQueryFilter - query filter
			@returns the entries
	*/
	ListAccessLog(
		ctx context.Context, tenantID string, filter db.AccessLogQueryFilter,
	) ([]models.AccessLogEntry, error)

	/*
		ListRotationHistory list the rotation history of a tenant

			@param ctx context.Context - execution context
			@param tenantID string - the tenant
			@param filter db.RotationHistoryQueryFilter - query filter
			@returns the entries
	*/
	ListRotationHistory(
		ctx context.Context, tenantID string, filter db.RotationHistoryQueryFilter,
	) ([]models.RotationHistoryEntry, error)
}

// Params credential vault dependencies
type Params struct {
	// Store credential persistence
	Store PersistenceStore
	// Audit audit trail
	Audit AuditSink
	// External external vault dispatch; external credentials are unavailable without it
	External ExternalVaultAdapter
	// Keys data key manager
	Keys DataKeyManager
	// Engine encryption engine
	Engine encryption.Engine
	// Policy access policy evaluator
	Policy policy.Evaluator
	// Rotation rotation controller
	Rotation rotation.Controller
	// Metrics optional registry for the vault metrics
	Metrics prometheus.Registerer
}

// vaultImpl implements CredentialVault
type vaultImpl struct {
	goutils.Component
	store     PersistenceStore
	auditSink AuditSink
	external  ExternalVaultAdapter
	keys      DataKeyManager
	engine    encryption.Engine
	policy    policy.Evaluator
	rotation  rotation.Controller
	metrics   *Collector
	validate  *validator.Validate
}

/*
NewCredentialVault define a new credential vault

	@param params Params - vault dependencies
	@returns the vault
*/
func NewCredentialVault(params Params) (CredentialVault, error) {
	if params.Store == nil || params.Audit == nil || params.Keys == nil {
		return nil, fmt.Errorf("vault persistence, audit and key manager are required [%w]", models.ErrFatal)
	}
	if params.Engine == nil || params.Policy == nil || params.Rotation == nil {
		return nil, fmt.Errorf("vault engine, policy and rotation are required [%w]", models.ErrFatal)
	}

	validate := validator.New()
	if err := models.RegisterWithValidator(validate); err != nil {
		return nil, fmt.Errorf("failed to register custom validators [%w]", err)
	}

	metrics := NewMetricsCollector()
	if params.Metrics != nil {
		if err := params.Metrics.Register(metrics); err != nil {
			return nil, fmt.Errorf("failed to register vault metrics [%w]", err)
		}
	}

	return &vaultImpl{
		Component: goutils.Component{
			LogTags: log.Fields{"module": "vault", "component": "credential-vault"},
			LogTagModifiers: []goutils.LogMetadataModifier{
				goutils.ModifyLogMetadataByRestRequestParam,
			},
		},
		store:     params.Store,
		auditSink: params.Audit,
		external:  params.External,
		keys:      params.Keys,
		engine:    params.Engine,
		policy:    params.Policy,
		rotation:  params.Rotation,
		metrics:   metrics,
		validate:  validate,
	}, nil
}

// ======================================================================================
// Audit

// newAccessEntry start an access log entry
func newAccessEntry(
	tenantID string, credential *models.Credential, key string,
	actor models.Actor, action models.AccessActionENUMType,
) models.AccessLogEntry {
	entry := models.AccessLogEntry{
		TenantID:      tenantID,
		CredentialKey: key,
		Actor:         actor,
		Action:        action,
	}
	if credential != nil {
		credentialID := credential.ID
		entry.CredentialID = &credentialID
		entry.CredentialKey = credential.Key
	}
	return entry
}

// toJSON encode an audit context or metadata document
func toJSON(doc map[string]interface{}) datatypes.JSON {
	if len(doc) == 0 {
		return nil
	}
	encoded, err := json.Marshal(doc)
	if err != nil {
		return nil
	}
	return datatypes.JSON(encoded)
}

/*
recordAccess write an access log entry. Failures are logged and counted, never returned:
the audit write must not change the outcome of the decision it records.

The entry is written even when the request context is already cancelled.
*/
func (v *vaultImpl) recordAccess(ctx context.Context, entry models.AccessLogEntry) {
	if err := v.auditSink.RecordAccess(context.WithoutCancel(ctx), entry); err != nil {
		v.metrics.auditFailures.Inc()
		log.WithError(err).
			WithFields(v.GetLogTagsForContext(ctx)).
			WithField("credential-key", entry.CredentialKey).
			WithField("action", entry.Action).
			Error("Failed to record access log entry")
	}
}

// recordDenial write a failed access log entry with its reason
func (v *vaultImpl) recordDenial(
	ctx context.Context,
	entry models.AccessLogEntry,
	reason models.DenialReasonENUMType,
	detail map[string]interface{},
) {
	entry.Success = false
	entry.DenialReason = &reason
	entry.Context = toJSON(detail)
	v.recordAccess(ctx, entry)
}

// recordRotation write a rotation history entry
func (v *vaultImpl) recordRotation(ctx context.Context, entry models.RotationHistoryEntry) {
	v.metrics.rotationOutcomes.WithLabelValues(string(entry.Trigger), outcomeLabel(entry.Success)).Inc()
	v.metrics.rotationDuration.Observe(float64(entry.DurationMs) / 1000.0)
	if err := v.auditSink.RecordRotation(context.WithoutCancel(ctx), entry); err != nil {
		v.metrics.auditFailures.Inc()
		log.WithError(err).
			WithFields(v.GetLogTagsForContext(ctx)).
			WithField("credential-id", entry.CredentialID).
			Error("Failed to record rotation history entry")
	}
}

// ======================================================================================
// Helpers

// notFound the caller facing not-found error
func notFound(key string) error {
	return fmt.Errorf("credential '%s' [%w]", key, models.ErrNotFound)
}

// forbidden the caller facing access denied error
func forbidden(key string) error {
	return fmt.Errorf("access to credential '%s' denied [%w]", key, models.ErrForbidden)
}

// sanitize strip the ciphertext from a credential leaving this package
func sanitize(credential models.Credential) models.Credential {
	credential.EncryptedValue = nil
	return credential
}

// denialReasonFor audit reason of a failed mutation
func denialReasonFor(err error) models.DenialReasonENUMType {
	switch {
	case errors.Is(err, models.ErrVersionConflict):
		return models.DenialReasonVersionConflict
	case errors.Is(err, models.ErrNotFound):
		return models.DenialReasonCredentialNotFound
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return models.DenialReasonRequestCancelled
	case errors.Is(err, models.ErrDecryptionFailure):
		return models.DenialReasonDecryptionFailed
	case errors.Is(err, models.ErrBadRequest):
		return models.DenialReasonInvalidTransition
	}
	return models.DenialReasonOperationFailed
}

/*
validateRequest run the request through the validator

	@param req interface{} - the request
*/
func (v *vaultImpl) validateRequest(req interface{}) error {
	if err := v.validate.Struct(req); err != nil {
		return fmt.Errorf("invalid request [%s] [%w]", err.Error(), models.ErrBadRequest)
	}
	return nil
}
