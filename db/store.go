package db

import (
	"context"
	"fmt"
	"time"

	"github.com/alwitt/goutils"
	"github.com/alwitt/strongbox/models"
	"github.com/apex/log"
)

/*
Store persistence store built on a `Client`. Each call runs against its own `Database`
handle; writes run in their own transaction.

It serves as the credential persistence store, the audit sink, and the data key store
of the system.
*/
type Store struct {
	goutils.Component
	client Client
}

/*
NewStore define a new persistence store

	@param client Client - DB client
	@returns new store
*/
func NewStore(client Client) *Store {
	logTags := log.Fields{"package": "strongbox", "module": "db", "component": "store"}
	return &Store{
		Component: goutils.Component{
			LogTags: logTags,
			LogTagModifiers: []goutils.LogMetadataModifier{
				goutils.ModifyLogMetadataByRestRequestParam,
			},
		},
		client: client,
	}
}

// ======================================================================================
// Credentials

// CreateCredential record a new credential
func (s *Store) CreateCredential(
	ctx context.Context, credential models.Credential,
) (models.Credential, error) {
	var result models.Credential
	err := s.client.UseDatabaseInTransaction(
		ctx, func(ctx context.Context, dbClient Database) error {
			var err error
			result, err = dbClient.DefineNewCredential(ctx, credential)
			return err
		},
	)
	return result, err
}

// GetCredential fetch a credential by ID
func (s *Store) GetCredential(ctx context.Context, credentialID string) (models.Credential, error) {
	var result models.Credential
	err := s.client.UseDatabase(ctx, func(ctx context.Context, dbClient Database) error {
		var err error
		result, err = dbClient.GetCredential(ctx, credentialID)
		return err
	})
	return result, err
}

// GetCredentialByKey fetch a credential by its tenant scoped key
func (s *Store) GetCredentialByKey(
	ctx context.Context, tenantID, key string,
) (models.Credential, error) {
	var result models.Credential
	err := s.client.UseDatabase(ctx, func(ctx context.Context, dbClient Database) error {
		var err error
		result, err = dbClient.GetCredentialByKey(ctx, tenantID, key)
		return err
	})
	return result, err
}

// ListCredentials list credentials of a tenant
func (s *Store) ListCredentials(
	ctx context.Context, tenantID string, filters CredentialQueryFilter,
) ([]models.Credential, error) {
	var result []models.Credential
	err := s.client.UseDatabase(ctx, func(ctx context.Context, dbClient Database) error {
		var err error
		result, err = dbClient.ListCredentials(ctx, tenantID, filters)
		return err
	})
	return result, err
}

// UpdateCredential write back a modified credential under optimistic concurrency
func (s *Store) UpdateCredential(
	ctx context.Context, credential models.Credential, expectedVersion int,
) error {
	return s.client.UseDatabaseInTransaction(
		ctx, func(ctx context.Context, dbClient Database) error {
			return dbClient.UpdateCredential(ctx, credential, expectedVersion)
		},
	)
}

// RecordCredentialAccess increment the access counters of a credential
func (s *Store) RecordCredentialAccess(
	ctx context.Context, credentialID string, accessedBy string, timestamp time.Time,
) error {
	return s.client.UseDatabaseInTransaction(
		ctx, func(ctx context.Context, dbClient Database) error {
			return dbClient.RecordCredentialAccess(ctx, credentialID, accessedBy, timestamp)
		},
	)
}

// DeleteCredential delete a credential
func (s *Store) DeleteCredential(ctx context.Context, credentialID string) error {
	return s.client.UseDatabaseInTransaction(
		ctx, func(ctx context.Context, dbClient Database) error {
			return dbClient.DeleteCredential(ctx, credentialID)
		},
	)
}

// ======================================================================================
// Folders

// CreateFolder record a new folder
func (s *Store) CreateFolder(ctx context.Context, folder models.Folder) (models.Folder, error) {
	var result models.Folder
	err := s.client.UseDatabaseInTransaction(
		ctx, func(ctx context.Context, dbClient Database) error {
			var err error
			result, err = dbClient.DefineNewFolder(ctx, folder)
			return err
		},
	)
	return result, err
}

// GetFolder fetch a folder by ID
func (s *Store) GetFolder(ctx context.Context, tenantID, folderID string) (models.Folder, error) {
	var result models.Folder
	err := s.client.UseDatabase(ctx, func(ctx context.Context, dbClient Database) error {
		var err error
		result, err = dbClient.GetFolder(ctx, tenantID, folderID)
		return err
	})
	return result, err
}

// GetFolderByPath fetch a folder by its path
func (s *Store) GetFolderByPath(ctx context.Context, tenantID, path string) (models.Folder, error) {
	var result models.Folder
	err := s.client.UseDatabase(ctx, func(ctx context.Context, dbClient Database) error {
		var err error
		result, err = dbClient.GetFolderByPath(ctx, tenantID, path)
		return err
	})
	return result, err
}

// ListFolders list folders of a tenant
func (s *Store) ListFolders(
	ctx context.Context, tenantID string, filters FolderQueryFilter,
) ([]models.Folder, error) {
	var result []models.Folder
	err := s.client.UseDatabase(ctx, func(ctx context.Context, dbClient Database) error {
		var err error
		result, err = dbClient.ListFolders(ctx, tenantID, filters)
		return err
	})
	return result, err
}

// ======================================================================================
// Audit

// RecordAccess append a credential access log entry
func (s *Store) RecordAccess(ctx context.Context, entry models.AccessLogEntry) error {
	return s.client.UseDatabaseInTransaction(
		ctx, func(ctx context.Context, dbClient Database) error {
			_, err := dbClient.RecordAccessLogEntry(ctx, entry)
			return err
		},
	)
}

// RecordRotation append a rotation history entry
func (s *Store) RecordRotation(ctx context.Context, entry models.RotationHistoryEntry) error {
	return s.client.UseDatabaseInTransaction(
		ctx, func(ctx context.Context, dbClient Database) error {
			_, err := dbClient.RecordRotationHistoryEntry(ctx, entry)
			return err
		},
	)
}

// ListAccessLog list credential access log entries of a tenant
func (s *Store) ListAccessLog(
	ctx context.Context, tenantID string, filters AccessLogQueryFilter,
) ([]models.AccessLogEntry, error) {
	var result []models.AccessLogEntry
	err := s.client.UseDatabase(ctx, func(ctx context.Context, dbClient Database) error {
		var err error
		result, err = dbClient.ListAccessLogEntries(ctx, tenantID, filters)
		return err
	})
	return result, err
}

// ListRotationHistory list rotation history entries of a tenant
func (s *Store) ListRotationHistory(
	ctx context.Context, tenantID string, filters RotationHistoryQueryFilter,
) ([]models.RotationHistoryEntry, error) {
	var result []models.RotationHistoryEntry
	err := s.client.UseDatabase(ctx, func(ctx context.Context, dbClient Database) error {
		var err error
		result, err = dbClient.ListRotationHistory(ctx, tenantID, filters)
		return err
	})
	return result, err
}

// ======================================================================================
// Data encryption keys

// GetSystemParams fetch the system parameters, initializing the entry on first use
func (s *Store) GetSystemParams(ctx context.Context) (models.SystemParams, error) {
	var result models.SystemParams
	err := s.client.UseDatabaseInTransaction(
		ctx, func(ctx context.Context, dbClient Database) error {
			var err error
			result, err = dbClient.GetSystemParamEntry(ctx)
			return err
		},
	)
	return result, err
}

// InitializeKeyHierarchy record the KEK derivation parameters of a new system
func (s *Store) InitializeKeyHierarchy(
	ctx context.Context, params models.KeyHierarchyParams,
) error {
	return s.client.UseDatabaseInTransaction(
		ctx, func(ctx context.Context, dbClient Database) error {
			return dbClient.InitializeKeyHierarchy(ctx, params)
		},
	)
}

/*
RecordDataKey persist a new active data key, deactivating the key it supersedes in the
same transaction

	@param ctx context.Context - execution context
	@param keyID string - the new data key ID
	@param wrapped []byte - KEK wrapped key material
	@param nonce []byte - wrapping nonce
	@param supersedes *string - the previously active data key, if any
*/
func (s *Store) RecordDataKey(
	ctx context.Context, keyID string, wrapped []byte, nonce []byte, supersedes *string,
) error {
	return s.client.UseDatabaseInTransaction(
		ctx, func(ctx context.Context, dbClient Database) error {
			if supersedes != nil {
				if err := dbClient.MarkDataKeyInactive(ctx, *supersedes); err != nil {
					return fmt.Errorf("failed to deactivate data key %s [%w]", *supersedes, err)
				}
			}
			_, err := dbClient.RecordDataKey(ctx, keyID, wrapped, nonce)
			return err
		},
	)
}

// ListDataKeys list all data keys, oldest first
func (s *Store) ListDataKeys(ctx context.Context) ([]models.DataEncryptionKeyRecord, error) {
	var result []models.DataEncryptionKeyRecord
	err := s.client.UseDatabase(ctx, func(ctx context.Context, dbClient Database) error {
		var err error
		result, err = dbClient.ListDataKeys(ctx, DataKeyQueryFilter{})
		return err
	})
	return result, err
}
