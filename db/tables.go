package db

import "github.com/alwitt/strongbox/models"

// --------------------------------------------------------------------------------------
// System audit events

// SystemEventAuditDBEntry system event DB entry
type SystemEventAuditDBEntry struct {
	models.SystemEventAudit
}

// TableName hard code table name
func (SystemEventAuditDBEntry) TableName() string {
	return "system_audit_events"
}

// --------------------------------------------------------------------------------------
// System parameters

// SystemParamsDBEntry system parameter DB entry
type SystemParamsDBEntry struct {
	models.SystemParams
}

// TableName hard code table name
func (SystemParamsDBEntry) TableName() string {
	return "system_params"
}

// --------------------------------------------------------------------------------------
// Data encryption keys

// DataKeyDBEntry data encryption key DB entry
type DataKeyDBEntry struct {
	models.DataEncryptionKeyRecord
}

// TableName hard code table name
func (DataKeyDBEntry) TableName() string {
	return "data_encryption_keys"
}

// --------------------------------------------------------------------------------------
// Folders and credentials

// FolderDBEntry folder DB entry
type FolderDBEntry struct {
	models.Folder
	Parent *FolderDBEntry `gorm:"constraint:OnDelete:RESTRICT;foreignKey:ParentID" validate:"-"`
}

// TableName hard code table name
func (FolderDBEntry) TableName() string {
	return "folders"
}

// CredentialDBEntry credential DB entry
type CredentialDBEntry struct {
	models.Credential
	Folder *FolderDBEntry `gorm:"constraint:OnDelete:SET NULL;foreignKey:FolderID" validate:"-"`
}

// TableName hard code table name
func (CredentialDBEntry) TableName() string {
	return "credentials"
}

// --------------------------------------------------------------------------------------
// Access log and rotation history
//
// Neither table references the credential table, so entries outlive a deleted credential.

// AccessLogDBEntry credential access log DB entry
type AccessLogDBEntry struct {
	models.AccessLogEntry
}

// TableName hard code table name
func (AccessLogDBEntry) TableName() string {
	return "credential_access_log"
}

// RotationHistoryDBEntry credential rotation history DB entry
type RotationHistoryDBEntry struct {
	models.RotationHistoryEntry
}

// TableName hard code table name
func (RotationHistoryDBEntry) TableName() string {
	return "credential_rotation_history"
}
