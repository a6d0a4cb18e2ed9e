package models

import (
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
)

// Folder hierarchical organizational grouping of credentials
//
// The folder carries no security semantics; Permissions is stored for callers which
// implement inheritable permissions on top of the vault.
type Folder struct {
	// ID folder ID
	ID string `json:"id" gorm:"column:id;primaryKey;unique" validate:"required,uuid_rfc4122"`
	// TenantID owning tenant
	TenantID string `json:"tenant_id" gorm:"column:tenant_id;not null;uniqueIndex:idx_folder_tenant_path" validate:"required"`
	// Name folder name
	Name string `json:"name" gorm:"column:name;not null" validate:"required,excludes=/"`
	// ParentID parent folder, nil for a root folder
	ParentID *string `json:"parent_id,omitempty" gorm:"column:parent_id;default:null" validate:"omitempty,uuid_rfc4122"`
	// Path materialized path, ex. /infra/databases
	Path string `json:"path" gorm:"column:path;not null;uniqueIndex:idx_folder_tenant_path" validate:"required,startswith=/"`
	// InheritPermissions whether child folders inherit Permissions
	InheritPermissions bool `json:"inherit_permissions" gorm:"column:inherit_permissions;not null"`
	// Permissions opaque permission document
	Permissions datatypes.JSON `json:"permissions,omitempty" gorm:"column:permissions;default:null"`
	// CreatedAt entry creation timestamp
	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt entry update timestamp
	UpdatedAt time.Time `json:"updated_at"`
}

/*
BuildFolderPath compute the materialized path of a folder

	@param parentPath string - the parent folder path; empty for a root folder
	@param name string - folder name
	@returns the folder path
*/
func BuildFolderPath(parentPath, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || strings.Contains(name, "/") {
		return "", fmt.Errorf("invalid folder name '%s' [%w]", name, ErrBadRequest)
	}
	if parentPath == "" || parentPath == "/" {
		return "/" + name, nil
	}
	return strings.TrimSuffix(parentPath, "/") + "/" + name, nil
}
