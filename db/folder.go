package db

import (
	"context"
	"fmt"

	"github.com/alwitt/strongbox/models"
	"gorm.io/gorm/clause"
)

/*
DefineNewFolder record a new folder

The parent folder, if any, must exist within the same tenant.

	@param ctx context.Context - execution context
	@param folder models.Folder - the new folder
	@returns the stored folder
*/
func (d *databaseImpl) DefineNewFolder(
	_ context.Context, folder models.Folder,
) (models.Folder, error) {
	newEntry := FolderDBEntry{Folder: folder}
	if err := d.validator.Struct(&newEntry); err != nil {
		return models.Folder{}, fmt.Errorf(
			"new folder entry is invalid [%s] [%w]", err.Error(), models.ErrBadRequest,
		)
	}

	if folder.ParentID != nil {
		if _, err := d.getFolder(folder.TenantID, *folder.ParentID); err != nil {
			return models.Folder{}, fmt.Errorf(
				"parent folder %s unavailable [%w]", *folder.ParentID, err,
			)
		}
	}

	var existing int64
	if tmp := d.db.Model(&FolderDBEntry{}).
		Where("tenant_id = ? AND path = ?", folder.TenantID, folder.Path).
		Count(&existing); tmp.Error != nil {
		return models.Folder{}, fmt.Errorf("folder path lookup failed [%w]", tmp.Error)
	}
	if existing > 0 {
		return models.Folder{}, fmt.Errorf(
			"folder '%s' already exists [%w]", folder.Path, models.ErrConflict,
		)
	}

	if tmp := d.db.Omit(clause.Associations).Create(&newEntry); tmp.Error != nil {
		return models.Folder{}, fmt.Errorf(
			"new folder entry insert failed [%w]", classifyError(tmp.Error),
		)
	}

	return newEntry.Folder, nil
}

// getFolder fetch one folder of a tenant
func (d *databaseImpl) getFolder(tenantID, folderID string) (FolderDBEntry, error) {
	var entry FolderDBEntry
	err := d.db.Where("tenant_id = ? AND id = ?", tenantID, folderID).First(&entry).Error
	return entry, classifyError(err)
}

/*
GetFolder fetch a folder by ID

	@param ctx context.Context - execution context
	@param tenantID string - tenant ID
	@param folderID string - folder ID
	@returns the folder
*/
func (d *databaseImpl) GetFolder(
	_ context.Context, tenantID, folderID string,
) (models.Folder, error) {
	entry, err := d.getFolder(tenantID, folderID)
	if err != nil {
		return models.Folder{}, fmt.Errorf("failed to fetch folder %s [%w]", folderID, err)
	}
	return entry.Folder, nil
}

/*
GetFolderByPath fetch a folder by its materialized path

	@param ctx context.Context - execution context
	@param tenantID string - tenant ID
	@param path string - folder path
	@returns the folder
*/
func (d *databaseImpl) GetFolderByPath(
	_ context.Context, tenantID, path string,
) (models.Folder, error) {
	var entry FolderDBEntry
	if err := d.db.
		Where("tenant_id = ? AND path = ?", tenantID, path).
		First(&entry).Error; err != nil {
		return models.Folder{}, fmt.Errorf(
			"failed to fetch folder '%s' [%w]", path, classifyError(err),
		)
	}
	return entry.Folder, nil
}

/*
ListFolders list folders of a tenant

	@param ctx context.Context - execution context
	@param tenantID string - tenant ID
	@param filters FolderQueryFilter - entry listing filter
	@returns list of folders, ordered by path
*/
func (d *databaseImpl) ListFolders(
	_ context.Context, tenantID string, filters FolderQueryFilter,
) ([]models.Folder, error) {
	query := d.db.Model(&FolderDBEntry{}).Where("tenant_id = ?", tenantID)

	if filters.TargetParentID != nil {
		query = query.Where("parent_id = ?", *filters.TargetParentID)
	}

	query = applyPagination(query, filters.CommonListEntryQueryFilter).Order("path")

	var entries []FolderDBEntry
	if tmp := query.Find(&entries); tmp.Error != nil {
		return nil, fmt.Errorf("failed to list folders [%w]", tmp.Error)
	}

	result := []models.Folder{}
	for _, entry := range entries {
		result = append(result, entry.Folder)
	}

	return result, nil
}
