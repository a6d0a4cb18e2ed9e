package vault

import (
	"context"
	"fmt"
	"time"

	"github.com/alwitt/strongbox/db"
	"github.com/alwitt/strongbox/models"
	"github.com/alwitt/strongbox/rotation"
	"github.com/apex/log"
	"github.com/google/uuid"
)

// listAll page through every credential of a tenant matching the filter
func (v *vaultImpl) listAll(
	ctx context.Context, tenantID string, filter db.CredentialQueryFilter,
) ([]models.Credential, error) {
	const pageSize = 500
	result := []models.Credential{}
	offset := 0
	for {
		limit := pageSize
		pageOffset := offset
		filter.Limit = &limit
		filter.Offset = &pageOffset
		page, err := v.store.ListCredentials(ctx, tenantID, filter)
		if err != nil {
			return nil, err
		}
		result = append(result, page...)
		if len(page) < pageSize {
			return result, nil
		}
		offset += pageSize
	}
}

func (v *vaultImpl) GetStats(ctx context.Context, tenantID string) (models.CredentialStats, error) {
	if tenantID == "" {
		return models.CredentialStats{}, fmt.Errorf("tenant ID missing [%w]", models.ErrBadRequest)
	}
	credentials, err := v.listAll(ctx, tenantID, db.CredentialQueryFilter{})
	if err != nil {
		return models.CredentialStats{}, err
	}

	now := time.Now().UTC()
	stats := models.NewCredentialStats()
	for idx := range credentials {
		credential := &credentials[idx]
		stats.Total++
		stats.ByType[credential.Type]++
		stats.ByStatus[credential.Status]++
		stats.ByScope[credential.Scope]++
		stats.ByProvider[credential.Provider]++
		if credential.IsExpired(now) {
			stats.Expired++
		} else if credential.ExpiresAt != nil && !credential.ExpiresAt.After(now.Add(ExpiringSoonWindow)) {
			stats.ExpiringSoon++
		}
		if rotation.DueWithin(credential, now, RotationDueSoonWindow) {
			stats.RotationDueSoon++
		}
	}
	return stats, nil
}

func (v *vaultImpl) Describe(
	ctx context.Context, tenantID, credentialID string, actor models.Actor,
) (models.Credential, error) {
	current, entry, err := v.loadForMutation(ctx, MutationTarget{
		TenantID: tenantID, CredentialID: credentialID, Actor: actor,
	}, models.AccessActionRead)
	if err != nil {
		return models.Credential{}, err
	}
	entry.Success = true
	v.recordAccess(ctx, entry)
	return sanitize(current), nil
}

func (v *vaultImpl) List(
	ctx context.Context, tenantID string, filter db.CredentialQueryFilter,
) ([]models.Credential, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenant ID missing [%w]", models.ErrBadRequest)
	}
	credentials, err := v.store.ListCredentials(ctx, tenantID, filter)
	if err != nil {
		return nil, err
	}
	for idx, credential := range credentials {
		credentials[idx] = sanitize(credential)
	}
	return credentials, nil
}

func (v *vaultImpl) ListRotationDue(
	ctx context.Context, tenantID string, within time.Duration,
) ([]models.Credential, error) {
	enabled := true
	credentials, err := v.listAll(ctx, tenantID, db.CredentialQueryFilter{
		RotationEnabled: &enabled,
		TargetProviders: []models.VaultProviderENUMType{models.VaultProviderInternal},
	})
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	result := []models.Credential{}
	for idx := range credentials {
		if rotation.DueWithin(&credentials[idx], now, within) {
			result = append(result, sanitize(credentials[idx]))
		}
	}
	return result, nil
}

func (v *vaultImpl) ExpireOverdue(
	ctx context.Context, tenantID string, actor models.Actor,
) (ExpireReport, error) {
	credentials, err := v.listAll(ctx, tenantID, db.CredentialQueryFilter{
		TargetStatus: []models.CredentialStatusENUMType{models.CredentialStatusActive},
	})
	if err != nil {
		return ExpireReport{}, err
	}

	report := ExpireReport{Expired: []string{}, Errors: map[string]string{}}
	now := time.Now().UTC()
	for _, credential := range credentials {
		if !credential.IsExpired(now) {
			continue
		}
		entry := newAccessEntry(tenantID, &credential, credential.Key, actor, models.AccessActionUpdate)
		updated := credential
		updated.Status = models.CredentialStatusExpired
		stampUpdate(&updated, actor)
		if _, err := v.persistMutation(ctx, updated, credential.Version, entry, map[string]interface{}{
			"from": credential.Status, "to": models.CredentialStatusExpired,
		}); err != nil {
			report.Errors[credential.Key] = err.Error()
			continue
		}
		report.Expired = append(report.Expired, credential.Key)
	}

	log.WithFields(v.GetLogTagsForContext(ctx)).
		WithField("tenant", tenantID).
		WithField("expired", len(report.Expired)).
		WithField("failed", len(report.Errors)).
		Info("Expired overdue credentials")
	return report, nil
}

func (v *vaultImpl) RotateDataKey(ctx context.Context) (DataKeyInfo, error) {
	key, err := v.keys.GenerateDEK(ctx)
	if err != nil {
		log.WithError(err).WithFields(v.GetLogTagsForContext(ctx)).Error("Data key rotation failed")
		return DataKeyInfo{}, err
	}
	return DataKeyInfo{ID: key.ID, CreatedAt: key.CreatedAt, Active: true}, nil
}

func (v *vaultImpl) ListDataKeys() []DataKeyInfo {
	keys := v.keys.ListDEKs()
	result := make([]DataKeyInfo, 0, len(keys))
	for _, key := range keys {
		result = append(result, DataKeyInfo{ID: key.ID, CreatedAt: key.CreatedAt, Active: key.Active})
	}
	return result
}

func (v *vaultImpl) ReencryptAll(
	ctx context.Context, tenantID string, actor models.Actor,
) (ReencryptReport, error) {
	logTags := v.GetLogTagsForContext(ctx)

	active, err := v.keys.GetActiveDEK()
	if err != nil {
		return ReencryptReport{}, err
	}
	credentials, err := v.listAll(ctx, tenantID, db.CredentialQueryFilter{
		TargetProviders: []models.VaultProviderENUMType{models.VaultProviderInternal},
	})
	if err != nil {
		return ReencryptReport{}, err
	}

	report := ReencryptReport{
		Migrated: []string{}, Skipped: []string{}, Errors: map[string]string{},
	}
	for _, credential := range credentials {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if credential.DEKID != nil && *credential.DEKID == active.ID {
			continue
		}
		switch credential.Status {
		case models.CredentialStatusActive,
			models.CredentialStatusPendingRotation,
			models.CredentialStatusRotationFailed:
		default:
			report.Skipped = append(report.Skipped, credential.Key)
			continue
		}
		entry := newAccessEntry(tenantID, &credential, credential.Key, actor, models.AccessActionRotate)
		if _, err := v.rotate(
			ctx, credential, entry, nil, models.RotationTriggerForced, actor,
		); err != nil {
			report.Errors[credential.Key] = err.Error()
			continue
		}
		report.Migrated = append(report.Migrated, credential.Key)
	}

	log.WithFields(logTags).
		WithField("tenant", tenantID).
		WithField("dek-id", active.ID).
		WithField("migrated", len(report.Migrated)).
		WithField("skipped", len(report.Skipped)).
		WithField("failed", len(report.Errors)).
		Info("Re-encrypted credentials onto active data key")
	return report, nil
}

func (v *vaultImpl) CreateFolder(ctx context.Context, req CreateFolderRequest) (models.Folder, error) {
	if err := v.validateRequest(&req); err != nil {
		return models.Folder{}, err
	}

	parentPath := ""
	if req.ParentID != nil {
		parent, err := v.store.GetFolder(ctx, req.TenantID, *req.ParentID)
		if err != nil {
			return models.Folder{}, fmt.Errorf("parent folder %s [%w]", *req.ParentID, err)
		}
		parentPath = parent.Path
	}
	path, err := models.BuildFolderPath(parentPath, req.Name)
	if err != nil {
		return models.Folder{}, err
	}

	folder, err := v.store.CreateFolder(ctx, models.Folder{
		ID:                 uuid.NewString(),
		TenantID:           req.TenantID,
		Name:               req.Name,
		ParentID:           req.ParentID,
		Path:               path,
		InheritPermissions: req.InheritPermissions,
		Permissions:        toJSON(req.Permissions),
	})
	if err != nil {
		return models.Folder{}, err
	}

	log.WithFields(v.GetLogTagsForContext(ctx)).
		WithField("tenant", folder.TenantID).
		WithField("path", folder.Path).
		Info("Defined new folder")
	return folder, nil
}

func (v *vaultImpl) GetFolder(ctx context.Context, tenantID, folderID string) (models.Folder, error) {
	return v.store.GetFolder(ctx, tenantID, folderID)
}

func (v *vaultImpl) ListFolders(
	ctx context.Context, tenantID string, filter db.FolderQueryFilter,
) ([]models.Folder, error) {
	return v.store.ListFolders(ctx, tenantID, filter)
}

func (v *vaultImpl) ListAccessLog(
	ctx context.Context, tenantID string, filter db.AccessLogQueryFilter,
) ([]models.AccessLogEntry, error) {
	return v.store.ListAccessLog(ctx, tenantID, filter)
}

func (v *vaultImpl) ListRotationHistory(
	ctx context.Context, tenantID string, filter db.RotationHistoryQueryFilter,
) ([]models.RotationHistoryEntry, error) {
	return v.store.ListRotationHistory(ctx, tenantID, filter)
}
