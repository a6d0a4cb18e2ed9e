package db

import (
	"context"
	"fmt"

	"github.com/alwitt/strongbox/models"
)

/*
RecordDataKey record a KEK wrapped data encryption key. The new key is active.

	@param ctx context.Context - execution context
	@param keyID string - the data key ID
	@param wrapped []byte - KEK wrapped key material
	@param nonce []byte - wrapping nonce
	@returns the key entry
*/
func (d *databaseImpl) RecordDataKey(
	_ context.Context, keyID string, wrapped []byte, nonce []byte,
) (models.DataEncryptionKeyRecord, error) {
	newEntry := DataKeyDBEntry{
		DataEncryptionKeyRecord: models.DataEncryptionKeyRecord{
			ID:                 keyID,
			WrappedKeyMaterial: wrapped,
			WrapNonce:          nonce,
			State:              models.EncryptionKeyStateActive,
		},
	}

	if err := d.validator.Struct(&newEntry); err != nil {
		return models.DataEncryptionKeyRecord{}, fmt.Errorf("new data key entry is invalid [%w]", err)
	}

	if tmp := d.db.Create(&newEntry); tmp.Error != nil {
		return models.DataEncryptionKeyRecord{}, fmt.Errorf(
			"new data key entry insert failed [%w]", classifyError(tmp.Error),
		)
	}

	// Record this event
	if _, err := d.defineNewSystemEvent(
		models.SystemEventTypeNewDataKey, models.SystemEventDataKeyRelated{KeyID: newEntry.ID},
	); err != nil {
		return models.DataEncryptionKeyRecord{}, fmt.Errorf(
			"failed to log add new data key audit event [%w]", err,
		)
	}
	if _, err := d.defineNewSystemEvent(
		models.SystemEventTypeActivateDataKey, models.SystemEventDataKeyRelated{KeyID: newEntry.ID},
	); err != nil {
		return models.DataEncryptionKeyRecord{}, fmt.Errorf(
			"failed to log data key activation audit event [%w]", err,
		)
	}

	return newEntry.DataEncryptionKeyRecord, nil
}

// getDataKey fetch one data key
func (d *databaseImpl) getDataKey(keyID string) (DataKeyDBEntry, error) {
	var entry DataKeyDBEntry
	err := d.db.Where("id = ?", keyID).First(&entry).Error
	return entry, classifyError(err)
}

/*
GetDataKey fetch one data encryption key

	@param ctx context.Context - execution context
	@param keyID string - the data key ID
	@return key entry
*/
func (d *databaseImpl) GetDataKey(
	_ context.Context, keyID string,
) (models.DataEncryptionKeyRecord, error) {
	entry, err := d.getDataKey(keyID)
	if err != nil {
		return models.DataEncryptionKeyRecord{}, fmt.Errorf(
			"failed to fetch data key %s [%w]", keyID, err,
		)
	}
	return entry.DataEncryptionKeyRecord, nil
}

/*
ListDataKeys list data encryption keys

	@param ctx context.Context - execution context
	@param filters DataKeyQueryFilter - entry listing filter
	@return list of keys, oldest first
*/
func (d *databaseImpl) ListDataKeys(
	_ context.Context, filters DataKeyQueryFilter,
) ([]models.DataEncryptionKeyRecord, error) {
	query := d.db.Model(&DataKeyDBEntry{})

	if len(filters.TargetState) > 0 {
		query = query.Where("state in ?", filters.TargetState)
	}

	query = applyPagination(query, filters.CommonListEntryQueryFilter).Order("created_at")

	var entries []DataKeyDBEntry
	if tmp := query.Find(&entries); tmp.Error != nil {
		return nil, fmt.Errorf("failed to list data keys [%w]", tmp.Error)
	}

	result := []models.DataEncryptionKeyRecord{}
	for _, entry := range entries {
		result = append(result, entry.DataEncryptionKeyRecord)
	}

	return result, nil
}

/*
MarkDataKeyInactive mark data encryption key is inactive

	@param ctx context.Context - execution context
	@param keyID string - the data key ID
*/
func (d *databaseImpl) MarkDataKeyInactive(_ context.Context, keyID string) error {
	entry, err := d.getDataKey(keyID)
	if err != nil {
		return fmt.Errorf("failed to fetch data key %s [%w]", keyID, err)
	}

	if entry.State == models.EncryptionKeyStateInactive {
		// NOOP
		return nil
	}

	if err := entry.ValidateNextState(models.EncryptionKeyStateInactive); err != nil {
		return fmt.Errorf("data key state change not allowed [%w]", err)
	}

	entry.State = models.EncryptionKeyStateInactive
	if tmp := d.db.Updates(&entry); tmp.Error != nil {
		return fmt.Errorf("data key state change update failed [%w]", tmp.Error)
	}

	// Record this event
	if _, err := d.defineNewSystemEvent(
		models.SystemEventTypeDeactivateDataKey, models.SystemEventDataKeyRelated{KeyID: keyID},
	); err != nil {
		return fmt.Errorf("failed to log data key state change audit event [%w]", err)
	}

	return nil
}
