package db

import (
	"context"

	"gorm.io/gorm"
)

// VaultTables the GORM models of every vault table, in dependency order
func VaultTables() []interface{} {
	return []interface{}{
		&SystemEventAuditDBEntry{},
		&SystemParamsDBEntry{},
		&DataKeyDBEntry{},
		&FolderDBEntry{},
		&CredentialDBEntry{},
		&AccessLogDBEntry{},
		&RotationHistoryDBEntry{},
	}
}

// DefineTables helper function to prepare a database with tables
//
// Used by unit tests, and by the CLI against a fresh sqlite file.
func DefineTables(_ context.Context, db *gorm.DB) error {
	return db.AutoMigrate(VaultTables()...)
}
