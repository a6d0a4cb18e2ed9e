package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alwitt/goutils"
	"github.com/alwitt/strongbox/models"
	"github.com/apex/log"
	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"
)

// CommonListEntryQueryFilter common query filter when listing data entries
type CommonListEntryQueryFilter struct {
	Limit  *int
	Offset *int
}

// SystemEventQueryFilter audit event query filter conditions
type SystemEventQueryFilter struct {
	CommonListEntryQueryFilter
	// EventTypes the specific event types to query for
	EventTypes []models.SystemEventTypeENUMType
	// EventsAfter filter for events after this timestamp
	EventsAfter *time.Time
	// EventsBefore filter for events before this timestamp
	EventsBefore *time.Time
}

// DataKeyQueryFilter data encryption key query filer conditions
type DataKeyQueryFilter struct {
	CommonListEntryQueryFilter
	// TargetState the specific states to query for
	TargetState []models.EncryptionKeyStateENUMType
}

// CredentialQueryFilter credential query filter conditions
type CredentialQueryFilter struct {
	CommonListEntryQueryFilter
	// TargetStatus only credentials in these states
	TargetStatus []models.CredentialStatusENUMType
	// TargetTypes only credentials of these types
	TargetTypes []models.CredentialTypeENUMType
	// TargetProviders only credentials held by these providers
	TargetProviders []models.VaultProviderENUMType
	// TargetFolderID only credentials in this folder
	TargetFolderID *string
	// TargetDEKID only credentials encrypted with this data key
	TargetDEKID *string
	// RotationEnabled only credentials with rotation enabled
	RotationEnabled *bool
}

// FolderQueryFilter folder query filter conditions
type FolderQueryFilter struct {
	CommonListEntryQueryFilter
	// TargetParentID only direct children of this folder
	TargetParentID *string
}

// AccessLogQueryFilter access log query filter conditions
type AccessLogQueryFilter struct {
	CommonListEntryQueryFilter
	// TargetCredentialID only entries for this credential
	TargetCredentialID *string
	// TargetCredentialKey only entries for this credential key
	TargetCredentialKey *string
	// TargetActions only entries of these actions
	TargetActions []models.AccessActionENUMType
	// SuccessOnly filter on the success flag
	Success *bool
	// EntriesAfter filter for entries after this timestamp
	EntriesAfter *time.Time
}

// RotationHistoryQueryFilter rotation history query filter conditions
type RotationHistoryQueryFilter struct {
	CommonListEntryQueryFilter
	// TargetCredentialID only entries for this credential
	TargetCredentialID *string
}

// Database the database handle to interacting with the data base
type Database interface {
	// ------------------------------------------------------------------------------------
	// System audit events

	/*
		ListSystemEvents list captured system events

			@param ctx context.Context - execution context
			@param filters SystemEventQueryFilter - entry listing filter
			@return list of system events
	*/
	ListSystemEvents(
		ctx context.Context, filters SystemEventQueryFilter,
	) ([]models.SystemEventAudit, error)

	// ------------------------------------------------------------------------------------
	// System parameters

	/*
		GetSystemParamEntry fetch the global singleton system parameter entry

			@param ctx context.Context - execution context
			@returns the entry
	*/
	GetSystemParamEntry(ctx context.Context) (models.SystemParams, error)

	/*
		InitializeKeyHierarchy record the KEK derivation parameters of a new system, moving
		it to RUNNING. Fails with ErrConflict once parameters are recorded.

			@param ctx context.Context - execution context
			@param params models.KeyHierarchyParams - KEK derivation parameters
	*/
	InitializeKeyHierarchy(ctx context.Context, params models.KeyHierarchyParams) error

	// ------------------------------------------------------------------------------------
	// Data encryption keys

	/*
		RecordDataKey record a KEK wrapped data encryption key. The new key is active.

			@param ctx context.Context - execution context
			@param keyID string - the data key ID
			@param wrapped []byte - KEK wrapped key material
			@param nonce []byte - wrapping nonce
			@returns the key entry
	*/
	RecordDataKey(
		ctx context.Context, keyID string, wrapped []byte, nonce []byte,
	) (models.DataEncryptionKeyRecord, error)

	/*
		GetDataKey fetch one data encryption key

			@param ctx context.Context - execution context
			@param keyID string - the data key ID
			@return key entry
	*/
	GetDataKey(ctx context.Context, keyID string) (models.DataEncryptionKeyRecord, error)

	/*
		ListDataKeys list data encryption keys

			@param ctx context.Context - execution context
			@param filters DataKeyQueryFilter - entry listing filter
			@return list of keys
	*/
	ListDataKeys(
		ctx context.Context, filters DataKeyQueryFilter,
	) ([]models.DataEncryptionKeyRecord, error)

	/*
		MarkDataKeyInactive mark data encryption key is inactive

			@param ctx context.Context - execution context
			@param keyID string - the data key ID
	*/
	MarkDataKeyInactive(ctx context.Context, keyID string) error

	// ------------------------------------------------------------------------------------
	// Credentials

	/*
		DefineNewCredential record a new credential

			@param ctx context.Context - execution context
			@param credential models.Credential - the new credential
			@returns the stored credential
	*/
	DefineNewCredential(
		ctx context.Context, credential models.Credential,
	) (models.Credential, error)

	/*
		GetCredential fetch a credential by ID

			@param ctx context.Context - execution context
			@param credentialID string - credential ID
			@returns the credential
	*/
	GetCredential(ctx context.Context, credentialID string) (models.Credential, error)

	/*
		GetCredentialByKey fetch a credential by its tenant scoped key

			@param ctx context.Context - execution context
			@param tenantID string - tenant ID
			@param key string - credential key
			@returns the credential
	*/
	GetCredentialByKey(ctx context.Context, tenantID, key string) (models.Credential, error)

	/*
		ListCredentials list credentials of a tenant

			@param ctx context.Context - execution context
			@param tenantID string - tenant ID
			@param filters CredentialQueryFilter - entry listing filter
			@returns list of credentials
	*/
	ListCredentials(
		ctx context.Context, tenantID string, filters CredentialQueryFilter,
	) ([]models.Credential, error)

	/*
		UpdateCredential write back a modified credential, if the stored version still
		matches the expected version

			@param ctx context.Context - execution context
			@param credential models.Credential - the modified credential
			@param expectedVersion int - the version the writer observed
	*/
	UpdateCredential(
		ctx context.Context, credential models.Credential, expectedVersion int,
	) error

	/*
		RecordCredentialAccess increment the access counters of a credential

			@param ctx context.Context - execution context
			@param credentialID string - credential ID
			@param accessedBy string - label of the accessing actor
			@param timestamp time.Time - access timestamp
	*/
	RecordCredentialAccess(
		ctx context.Context, credentialID string, accessedBy string, timestamp time.Time,
	) error

	/*
		DeleteCredential delete a credential

			@param ctx context.Context - execution context
			@param credentialID string - credential ID
	*/
	DeleteCredential(ctx context.Context, credentialID string) error

	// ------------------------------------------------------------------------------------
	// Folders

	/*
		DefineNewFolder record a new folder

			@param ctx context.Context - execution context
			@param folder models.Folder - the new folder
			@returns the stored folder
	*/
	DefineNewFolder(ctx context.Context, folder models.Folder) (models.Folder, error)

	/*
		GetFolder fetch a folder by ID

			@param ctx context.Context - execution context
			@param tenantID string - tenant ID
			@param folderID string - folder ID
			@returns the folder
	*/
	GetFolder(ctx context.Context, tenantID, folderID string) (models.Folder, error)

	/*
		GetFolderByPath fetch a folder by its materialized path

			@param ctx context.Context - execution context
			@param tenantID string - tenant ID
			@param path string - folder path
			@returns the folder
	*/
	GetFolderByPath(ctx context.Context, tenantID, path string) (models.Folder, error)

	/*
		ListFolders list folders of a tenant

			@param ctx context.Context - execution context
			@param tenantID string - tenant ID
			@param filters FolderQueryFilter - entry listing filter
			@returns list of folders
	*/
	ListFolders(
		ctx context.Context, tenantID string, filters FolderQueryFilter,
	) ([]models.Folder, error)

	// ------------------------------------------------------------------------------------
	// Access log and rotation history

	/*
		RecordAccessLogEntry append a credential access log entry

			@param ctx context.Context - execution context
			@param entry models.AccessLogEntry - the log entry
			@returns the stored entry
	*/
	RecordAccessLogEntry(
		ctx context.Context, entry models.AccessLogEntry,
	) (models.AccessLogEntry, error)

	/*
		ListAccessLogEntries list credential access log entries of a tenant

			@param ctx context.Context - execution context
			@param tenantID string - tenant ID
			@param filters AccessLogQueryFilter - entry listing filter
			@returns list of entries, oldest first
	*/
	ListAccessLogEntries(
		ctx context.Context, tenantID string, filters AccessLogQueryFilter,
	) ([]models.AccessLogEntry, error)

	/*
		RecordRotationHistoryEntry append a rotation history entry

			@param ctx context.Context - execution context
			@param entry models.RotationHistoryEntry - the history entry
			@returns the stored entry
	*/
	RecordRotationHistoryEntry(
		ctx context.Context, entry models.RotationHistoryEntry,
	) (models.RotationHistoryEntry, error)

	/*
		ListRotationHistory list rotation history entries of a tenant

			@param ctx context.Context - execution context
			@param tenantID string - tenant ID
			@param filters RotationHistoryQueryFilter - entry listing filter
			@returns list of entries, oldest first
	*/
	ListRotationHistory(
		ctx context.Context, tenantID string, filters RotationHistoryQueryFilter,
	) ([]models.RotationHistoryEntry, error)
}

// databaseImpl implements Database
type databaseImpl struct {
	goutils.Component
	db        *gorm.DB
	validator *validator.Validate
}

// newDatabase define a new database client
func newDatabase(_ context.Context, sqlClient *gorm.DB) (Database, error) {
	logTags := log.Fields{"package": "strongbox", "module": "db", "component": "db-client"}

	instance := &databaseImpl{
		Component: goutils.Component{
			LogTags: logTags,
			LogTagModifiers: []goutils.LogMetadataModifier{
				goutils.ModifyLogMetadataByRestRequestParam,
			},
		},
		db:        sqlClient,
		validator: validator.New(),
	}

	if err := models.RegisterWithValidator(instance.validator); err != nil {
		return nil, fmt.Errorf("failed to install custom validation macros [%w]", err)
	}

	return instance, nil
}

// classifyError map GORM errors onto the system error taxonomy
func classifyError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("%s [%w]", err.Error(), models.ErrNotFound)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%s [%w]", err.Error(), models.ErrConflict)
	}
	return err
}

// applyPagination apply the common listing limits
func applyPagination(query *gorm.DB, filters CommonListEntryQueryFilter) *gorm.DB {
	if filters.Limit != nil {
		query = query.Limit(*filters.Limit)
	}
	if filters.Offset != nil {
		query = query.Offset(*filters.Offset)
	}
	return query
}
