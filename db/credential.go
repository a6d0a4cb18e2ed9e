package db

import (
	"context"
	"fmt"
	"time"

	"github.com/alwitt/strongbox/models"
	"github.com/apex/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

/*
DefineNewCredential record a new credential

	@param ctx context.Context - execution context
	@param credential models.Credential - the new credential
	@returns the stored credential
*/
func (d *databaseImpl) DefineNewCredential(
	ctx context.Context, credential models.Credential,
) (models.Credential, error) {
	logTags := d.GetLogTagsForContext(ctx)

	newEntry := CredentialDBEntry{Credential: credential}
	if err := d.validator.Struct(&newEntry); err != nil {
		return models.Credential{}, fmt.Errorf(
			"new credential entry is invalid [%s] [%w]", err.Error(), models.ErrBadRequest,
		)
	}

	// Duplicate key check
	var existing int64
	if tmp := d.db.Model(&CredentialDBEntry{}).
		Where(map[string]interface{}{"tenant_id": credential.TenantID, "key": credential.Key}).
		Count(&existing); tmp.Error != nil {
		return models.Credential{}, fmt.Errorf("credential key lookup failed [%w]", tmp.Error)
	}
	if existing > 0 {
		return models.Credential{}, fmt.Errorf(
			"credential '%s' already exists [%w]", credential.Key, models.ErrConflict,
		)
	}

	if credential.FolderID != nil {
		if _, err := d.getFolder(credential.TenantID, *credential.FolderID); err != nil {
			return models.Credential{}, fmt.Errorf(
				"credential folder %s unavailable [%w]", *credential.FolderID, err,
			)
		}
	}

	if tmp := d.db.Omit(clause.Associations).Create(&newEntry); tmp.Error != nil {
		return models.Credential{}, fmt.Errorf(
			"new credential entry insert failed [%w]", classifyError(tmp.Error),
		)
	}

	// Record this event
	if _, err := d.defineNewSystemEvent(
		models.SystemEventTypeAddCredential,
		models.SystemEventCredentialRelated{
			TenantID: newEntry.TenantID, CredentialID: newEntry.ID, CredentialKey: newEntry.Key,
		},
	); err != nil {
		return models.Credential{}, fmt.Errorf("failed to log add credential audit event [%w]", err)
	}

	log.WithFields(logTags).
		WithField("tenant", newEntry.TenantID).
		WithField("credential", newEntry.Key).
		Debug("Recorded new credential")

	return newEntry.Credential, nil
}

/*
GetCredential fetch a credential by ID

	@param ctx context.Context - execution context
	@param credentialID string - credential ID
	@returns the credential
*/
func (d *databaseImpl) GetCredential(
	_ context.Context, credentialID string,
) (models.Credential, error) {
	var entry CredentialDBEntry
	if err := d.db.Where("id = ?", credentialID).First(&entry).Error; err != nil {
		return models.Credential{}, fmt.Errorf(
			"failed to fetch credential %s [%w]", credentialID, classifyError(err),
		)
	}
	return entry.Credential, nil
}

/*
GetCredentialByKey fetch a credential by its tenant scoped key

	@param ctx context.Context - execution context
	@param tenantID string - tenant ID
	@param key string - credential key
	@returns the credential
*/
func (d *databaseImpl) GetCredentialByKey(
	_ context.Context, tenantID, key string,
) (models.Credential, error) {
	var entry CredentialDBEntry
	if err := d.db.
		Where(map[string]interface{}{"tenant_id": tenantID, "key": key}).
		First(&entry).Error; err != nil {
		return models.Credential{}, fmt.Errorf(
			"failed to fetch credential '%s' [%w]", key, classifyError(err),
		)
	}
	return entry.Credential, nil
}

/*
ListCredentials list credentials of a tenant

	@param ctx context.Context - execution context
	@param tenantID string - tenant ID
	@param filters CredentialQueryFilter - entry listing filter
	@returns list of credentials
*/
func (d *databaseImpl) ListCredentials(
	_ context.Context, tenantID string, filters CredentialQueryFilter,
) ([]models.Credential, error) {
	query := d.db.Model(&CredentialDBEntry{}).Where("tenant_id = ?", tenantID)

	if len(filters.TargetStatus) > 0 {
		query = query.Where("status in ?", filters.TargetStatus)
	}
	if len(filters.TargetTypes) > 0 {
		query = query.Where("type in ?", filters.TargetTypes)
	}
	if len(filters.TargetProviders) > 0 {
		query = query.Where("provider in ?", filters.TargetProviders)
	}
	if filters.TargetFolderID != nil {
		query = query.Where("folder_id = ?", *filters.TargetFolderID)
	}
	if filters.TargetDEKID != nil {
		query = query.Where("dek_id = ?", *filters.TargetDEKID)
	}
	if filters.RotationEnabled != nil {
		query = query.Where("rotation_enabled = ?", *filters.RotationEnabled)
	}

	query = applyPagination(query, filters.CommonListEntryQueryFilter).Order("created_at")

	var entries []CredentialDBEntry
	if tmp := query.Find(&entries); tmp.Error != nil {
		return nil, fmt.Errorf("failed to list credentials [%w]", tmp.Error)
	}

	result := []models.Credential{}
	for _, entry := range entries {
		result = append(result, entry.Credential)
	}

	return result, nil
}

/*
UpdateCredential write back a modified credential, if the stored version still
matches the expected version

The access counters are never written by this call; see RecordCredentialAccess.

	@param ctx context.Context - execution context
	@param credential models.Credential - the modified credential
	@param expectedVersion int - the version the writer observed
*/
func (d *databaseImpl) UpdateCredential(
	_ context.Context, credential models.Credential, expectedVersion int,
) error {
	entry := CredentialDBEntry{Credential: credential}
	if err := d.validator.Struct(&entry); err != nil {
		return fmt.Errorf(
			"credential entry is invalid [%s] [%w]", err.Error(), models.ErrBadRequest,
		)
	}

	tmp := d.db.Model(&CredentialDBEntry{}).
		Where("id = ? AND version = ?", credential.ID, expectedVersion).
		Select("*").
		Omit(
			clause.Associations,
			"id",
			"tenant_id",
			"created_at",
			"access_count",
			"last_accessed_at",
			"last_accessed_by",
		).
		Updates(&entry)
	if tmp.Error != nil {
		return fmt.Errorf(
			"credential %s update failed [%w]", credential.ID, classifyError(tmp.Error),
		)
	}

	if tmp.RowsAffected == 0 {
		// Either the credential is gone, or another writer won
		var count int64
		if err := d.db.Model(&CredentialDBEntry{}).
			Where("id = ?", credential.ID).
			Count(&count).Error; err != nil {
			return fmt.Errorf("credential %s lookup failed [%w]", credential.ID, err)
		}
		if count == 0 {
			return fmt.Errorf("credential %s not found [%w]", credential.ID, models.ErrNotFound)
		}
		return fmt.Errorf(
			"credential %s is no longer at version %d [%w]",
			credential.ID,
			expectedVersion,
			models.ErrVersionConflict,
		)
	}

	return nil
}

/*
RecordCredentialAccess increment the access counters of a credential

	@param ctx context.Context - execution context
	@param credentialID string - credential ID
	@param accessedBy string - label of the accessing actor
	@param timestamp time.Time - access timestamp
*/
func (d *databaseImpl) RecordCredentialAccess(
	_ context.Context, credentialID string, accessedBy string, timestamp time.Time,
) error {
	tmp := d.db.Model(&CredentialDBEntry{}).
		Where("id = ?", credentialID).
		UpdateColumns(map[string]interface{}{
			"access_count":     gorm.Expr("access_count + ?", 1),
			"last_accessed_at": timestamp,
			"last_accessed_by": accessedBy,
		})
	if tmp.Error != nil {
		return fmt.Errorf("credential %s access counter update failed [%w]", credentialID, tmp.Error)
	}
	if tmp.RowsAffected == 0 {
		return fmt.Errorf("credential %s not found [%w]", credentialID, models.ErrNotFound)
	}
	return nil
}

/*
DeleteCredential delete a credential

	@param ctx context.Context - execution context
	@param credentialID string - credential ID
*/
func (d *databaseImpl) DeleteCredential(_ context.Context, credentialID string) error {
	var entry CredentialDBEntry
	if err := d.db.Where("id = ?", credentialID).First(&entry).Error; err != nil {
		return fmt.Errorf("failed to fetch credential %s [%w]", credentialID, classifyError(err))
	}

	if tmp := d.db.Delete(&entry); tmp.Error != nil {
		return fmt.Errorf("failed to delete credential %s [%w]", credentialID, tmp.Error)
	}

	// Record this event
	if _, err := d.defineNewSystemEvent(
		models.SystemEventTypeDeleteCredential,
		models.SystemEventCredentialRelated{
			TenantID: entry.TenantID, CredentialID: entry.ID, CredentialKey: entry.Key,
		},
	); err != nil {
		return fmt.Errorf("failed to log delete credential audit event [%w]", err)
	}

	return nil
}
