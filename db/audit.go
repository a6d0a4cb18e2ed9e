// Package db - persistence layer
package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alwitt/strongbox/models"
	"github.com/oklog/ulid/v2"
	"gorm.io/datatypes"
)

// defineNewSystemEvent record a new system event
func (d *databaseImpl) defineNewSystemEvent(
	eventType models.SystemEventTypeENUMType, metadata interface{},
) (models.SystemEventAudit, error) {

	newEntry := SystemEventAuditDBEntry{
		SystemEventAudit: models.SystemEventAudit{ID: ulid.Make().String(), EventType: eventType},
	}

	if metadata != nil {
		if err := d.validator.Struct(metadata); err != nil {
			return models.SystemEventAudit{}, fmt.Errorf(
				"new system event '%s' metadata entry is not valid [%w]", eventType, err,
			)
		}

		metadataStr, _ := json.Marshal(&metadata)
		newEntry.Metadata = datatypes.JSON(metadataStr)
	}

	if err := d.validator.Struct(&newEntry); err != nil {
		return models.SystemEventAudit{}, fmt.Errorf(
			"new system event '%s' entry is not valid [%w]", eventType, err,
		)
	}

	if tmp := d.db.Create(&newEntry); tmp.Error != nil {
		return models.SystemEventAudit{}, fmt.Errorf(
			"new system event '%s' insert failed [%w]", eventType, tmp.Error,
		)
	}

	return newEntry.SystemEventAudit, nil
}

/*
ListSystemEvents list captured system events

	@param ctx context.Context - execution context
	@param filters SystemEventQueryFilter - entry listing filter
	@return list of system events
*/
func (d *databaseImpl) ListSystemEvents(
	_ context.Context, filters SystemEventQueryFilter,
) ([]models.SystemEventAudit, error) {
	query := d.db.Model(&SystemEventAuditDBEntry{})

	if len(filters.EventTypes) > 0 {
		query = query.Where("type in ?", filters.EventTypes)
	}

	if filters.EventsAfter != nil {
		query = query.Where("created_at >= ?", *filters.EventsAfter)
	}
	if filters.EventsBefore != nil {
		query = query.Where("created_at <= ?", *filters.EventsBefore)
	}

	query = applyPagination(query, filters.CommonListEntryQueryFilter).Order("id")

	var entries []SystemEventAuditDBEntry
	if tmp := query.Find(&entries); tmp.Error != nil {
		return nil, fmt.Errorf("failed to list captured system events [%w]", tmp.Error)
	}

	result := []models.SystemEventAudit{}
	for _, entry := range entries {
		result = append(result, entry.SystemEventAudit)
	}

	return result, nil
}

// ======================================================================================
// Credential access log

/*
RecordAccessLogEntry append a credential access log entry

	@param ctx context.Context - execution context
	@param entry models.AccessLogEntry - the log entry
	@returns the stored entry
*/
func (d *databaseImpl) RecordAccessLogEntry(
	_ context.Context, entry models.AccessLogEntry,
) (models.AccessLogEntry, error) {
	if entry.ID == "" {
		entry.ID = ulid.Make().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	newEntry := AccessLogDBEntry{AccessLogEntry: entry}
	if err := d.validator.Struct(&newEntry); err != nil {
		return models.AccessLogEntry{}, fmt.Errorf("access log entry is not valid [%w]", err)
	}

	if tmp := d.db.Create(&newEntry); tmp.Error != nil {
		return models.AccessLogEntry{}, fmt.Errorf("access log entry insert failed [%w]", tmp.Error)
	}

	return newEntry.AccessLogEntry, nil
}

/*
ListAccessLogEntries list credential access log entries of a tenant

	@param ctx context.Context - execution context
	@param tenantID string - tenant ID
	@param filters AccessLogQueryFilter - entry listing filter
	@returns list of entries, oldest first
*/
func (d *databaseImpl) ListAccessLogEntries(
	_ context.Context, tenantID string, filters AccessLogQueryFilter,
) ([]models.AccessLogEntry, error) {
	query := d.db.Model(&AccessLogDBEntry{}).Where("tenant_id = ?", tenantID)

	if filters.TargetCredentialID != nil {
		query = query.Where("credential_id = ?", *filters.TargetCredentialID)
	}
	if filters.TargetCredentialKey != nil {
		query = query.Where("credential_key = ?", *filters.TargetCredentialKey)
	}
	if len(filters.TargetActions) > 0 {
		query = query.Where("action in ?", filters.TargetActions)
	}
	if filters.Success != nil {
		query = query.Where("success = ?", *filters.Success)
	}
	if filters.EntriesAfter != nil {
		query = query.Where("created_at >= ?", *filters.EntriesAfter)
	}

	// ULIDs sort by creation time
	query = applyPagination(query, filters.CommonListEntryQueryFilter).Order("id")

	var entries []AccessLogDBEntry
	if tmp := query.Find(&entries); tmp.Error != nil {
		return nil, fmt.Errorf("failed to list access log entries [%w]", tmp.Error)
	}

	result := []models.AccessLogEntry{}
	for _, entry := range entries {
		result = append(result, entry.AccessLogEntry)
	}

	return result, nil
}

// ======================================================================================
// Rotation history

/*
RecordRotationHistoryEntry append a rotation history entry

	@param ctx context.Context - execution context
	@param entry models.RotationHistoryEntry - the history entry
	@returns the stored entry
*/
func (d *databaseImpl) RecordRotationHistoryEntry(
	_ context.Context, entry models.RotationHistoryEntry,
) (models.RotationHistoryEntry, error) {
	if entry.ID == "" {
		entry.ID = ulid.Make().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	newEntry := RotationHistoryDBEntry{RotationHistoryEntry: entry}
	if err := d.validator.Struct(&newEntry); err != nil {
		return models.RotationHistoryEntry{}, fmt.Errorf(
			"rotation history entry is not valid [%w]", err,
		)
	}

	if tmp := d.db.Create(&newEntry); tmp.Error != nil {
		return models.RotationHistoryEntry{}, fmt.Errorf(
			"rotation history entry insert failed [%w]", tmp.Error,
		)
	}

	return newEntry.RotationHistoryEntry, nil
}

/*
ListRotationHistory list rotation history entries of a tenant

	@param ctx context.Context - execution context
	@param tenantID string - tenant ID
	@param filters RotationHistoryQueryFilter - entry listing filter
	@returns list of entries, oldest first
*/
func (d *databaseImpl) ListRotationHistory(
	_ context.Context, tenantID string, filters RotationHistoryQueryFilter,
) ([]models.RotationHistoryEntry, error) {
	query := d.db.Model(&RotationHistoryDBEntry{}).Where("tenant_id = ?", tenantID)

	if filters.TargetCredentialID != nil {
		query = query.Where("credential_id = ?", *filters.TargetCredentialID)
	}

	query = applyPagination(query, filters.CommonListEntryQueryFilter).Order("id")

	var entries []RotationHistoryDBEntry
	if tmp := query.Find(&entries); tmp.Error != nil {
		return nil, fmt.Errorf("failed to list rotation history [%w]", tmp.Error)
	}

	result := []models.RotationHistoryEntry{}
	for _, entry := range entries {
		result = append(result, entry.RotationHistoryEntry)
	}

	return result, nil
}
