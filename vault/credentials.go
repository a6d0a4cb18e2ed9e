package vault

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alwitt/strongbox/encryption"
	"github.com/alwitt/strongbox/models"
	"github.com/alwitt/strongbox/policy"
	"github.com/apex/log"
	"github.com/google/uuid"
)

func (v *vaultImpl) Create(ctx context.Context, req CreateRequest) (models.Credential, error) {
	logTags := v.GetLogTagsForContext(ctx)

	if err := v.validateRequest(&req); err != nil {
		return models.Credential{}, err
	}
	if req.Provider == "" {
		req.Provider = models.VaultProviderInternal
	}
	if err := policy.ValidateScopeShape(
		req.Scope, req.AllowedBotIDs, req.AllowedEnvironments, req.AllowedUserIDs,
	); err != nil {
		return models.Credential{}, err
	}
	if req.RotationEnabled && req.RotationIntervalDays == nil {
		return models.Credential{}, fmt.Errorf(
			"rotation enabled without an interval [%w]", models.ErrBadRequest,
		)
	}
	now := time.Now().UTC()
	if req.ExpiresAt != nil && !req.ExpiresAt.After(now) {
		return models.Credential{}, fmt.Errorf("expiration is in the past [%w]", models.ErrBadRequest)
	}
	if req.Provider == models.VaultProviderInternal {
		if len(req.Value) == 0 {
			return models.Credential{}, fmt.Errorf(
				"INTERNAL credential needs a value [%w]", models.ErrBadRequest,
			)
		}
		if req.ExternalReference != nil {
			return models.Credential{}, fmt.Errorf(
				"INTERNAL credential takes no external reference [%w]", models.ErrBadRequest,
			)
		}
	} else {
		if req.ExternalReference == nil || *req.ExternalReference == "" {
			return models.Credential{}, fmt.Errorf(
				"%s credential needs an external reference [%w]", req.Provider, models.ErrBadRequest,
			)
		}
		if len(req.Value) > 0 {
			return models.Credential{}, fmt.Errorf(
				"%s credential value is held externally [%w]", req.Provider, models.ErrBadRequest,
			)
		}
	}

	entry := newAccessEntry(req.TenantID, nil, req.Key, req.Actor, models.AccessActionCreate)

	// Existence checks come before any encryption
	if _, err := v.store.GetCredentialByKey(ctx, req.TenantID, req.Key); err == nil {
		v.recordDenial(ctx, entry, models.DenialReasonOperationFailed,
			map[string]interface{}{"error": "duplicate key"})
		return models.Credential{}, fmt.Errorf(
			"credential '%s' already exists [%w]", req.Key, models.ErrConflict,
		)
	} else if !errors.Is(err, models.ErrNotFound) {
		return models.Credential{}, fmt.Errorf("credential lookup failed [%w]", err)
	}
	if req.FolderID != nil {
		if _, err := v.store.GetFolder(ctx, req.TenantID, *req.FolderID); err != nil {
			v.recordDenial(ctx, entry, models.DenialReasonOperationFailed,
				map[string]interface{}{"error": "folder not found"})
			return models.Credential{}, fmt.Errorf("folder %s [%w]", *req.FolderID, err)
		}
	}

	credential := models.Credential{
		ID:                   uuid.NewString(),
		TenantID:             req.TenantID,
		Key:                  req.Key,
		Name:                 req.Name,
		Description:          req.Description,
		FolderID:             req.FolderID,
		Type:                 req.Type,
		Status:               models.CredentialStatusActive,
		Scope:                req.Scope,
		AllowedBotIDs:        req.AllowedBotIDs,
		AllowedEnvironments:  req.AllowedEnvironments,
		AllowedUserIDs:       req.AllowedUserIDs,
		Provider:             req.Provider,
		ExternalReference:    req.ExternalReference,
		Version:              1,
		RotationEnabled:      req.RotationEnabled,
		RotationIntervalDays: req.RotationIntervalDays,
		RotationMaxFailures:  DefaultRotationMaxFailures,
		ExpiresAt:            req.ExpiresAt,
		Tags:                 req.Tags,
		Metadata:             toJSON(req.Metadata),
		CreatedBy:            req.Actor.UserID,
		UpdatedBy:            req.Actor.UserID,
	}
	if req.RotationMaxFailures != nil {
		credential.RotationMaxFailures = *req.RotationMaxFailures
	}
	if credential.RotationEnabled {
		next := now.AddDate(0, 0, *credential.RotationIntervalDays)
		credential.NextRotationAt = &next
	}

	if credential.IsInternal() {
		if err := v.encryptInto(&credential, req.Value); err != nil {
			v.recordDenial(ctx, entry, models.DenialReasonOperationFailed,
				map[string]interface{}{"error": "encryption failed"})
			return models.Credential{}, err
		}
	}

	stored, err := v.store.CreateCredential(ctx, credential)
	if err != nil {
		v.recordDenial(ctx, entry, denialReasonFor(err), nil)
		return models.Credential{}, err
	}

	entry.CredentialID = &stored.ID
	entry.Success = true
	entry.Context = toJSON(map[string]interface{}{
		"type": stored.Type, "scope": stored.Scope, "provider": stored.Provider,
	})
	v.recordAccess(ctx, entry)

	log.WithFields(logTags).
		WithField("tenant", stored.TenantID).
		WithField("credential-key", stored.Key).
		WithField("provider", stored.Provider).
		Info("Defined new credential")

	return sanitize(stored), nil
}

// encryptInto encrypt a value onto the credential
func (v *vaultImpl) encryptInto(credential *models.Credential, value models.CredentialValue) error {
	encoded, err := v.engine.EncryptValue(value)
	if err != nil {
		return fmt.Errorf("credential '%s' encryption failed [%w]", credential.Key, err)
	}
	keyID, err := encryption.KeyIDOf(encoded)
	if err != nil {
		return err
	}
	credential.EncryptedValue = &encoded
	credential.DEKID = &keyID
	return nil
}

/*
loadForMutation read the credential targeted by a mutation, verifying the tenant and the
expected version. Failures are audited under the given action.

	@param ctx context.Context - execution context
	@param target MutationTarget - the mutation target
	@param action models.AccessActionENUMType - the mutation
	@returns the current credential and the started audit entry
*/
func (v *vaultImpl) loadForMutation(
	ctx context.Context, target MutationTarget, action models.AccessActionENUMType,
) (models.Credential, models.AccessLogEntry, error) {
	entry := newAccessEntry(target.TenantID, nil, "", target.Actor, action)
	entry.CredentialID = &target.CredentialID

	current, err := v.store.GetCredential(ctx, target.CredentialID)
	if err != nil {
		v.recordDenial(ctx, entry, denialReasonFor(err), nil)
		if errors.Is(err, models.ErrNotFound) {
			return models.Credential{}, entry, fmt.Errorf(
				"credential %s [%w]", target.CredentialID, models.ErrNotFound,
			)
		}
		return models.Credential{}, entry, err
	}
	if current.TenantID != target.TenantID {
		v.recordDenial(ctx, entry, models.DenialReasonCrossTenant, nil)
		return models.Credential{}, entry, fmt.Errorf(
			"access to credential %s denied [%w]", target.CredentialID, models.ErrForbidden,
		)
	}

	entry = newAccessEntry(target.TenantID, &current, current.Key, target.Actor, action)

	if target.ExpectedVersion != 0 && target.ExpectedVersion != current.Version {
		v.recordDenial(ctx, entry, models.DenialReasonVersionConflict, map[string]interface{}{
			"expected_version": target.ExpectedVersion, "current_version": current.Version,
		})
		return models.Credential{}, entry, fmt.Errorf(
			"credential '%s' is at version %d, not %d [%w]",
			current.Key, current.Version, target.ExpectedVersion, models.ErrVersionConflict,
		)
	}
	return current, entry, nil
}

/*
persistMutation write the mutated credential, conditional on the version it was read at,
then audit the outcome

	@param ctx context.Context - execution context
	@param updated models.Credential - the mutated credential
	@param readVersion int - version of the credential when it was read
	@param entry models.AccessLogEntry - the started audit entry
	@param detail map[string]interface{} - audit context
	@returns the persisted credential
*/
func (v *vaultImpl) persistMutation(
	ctx context.Context,
	updated models.Credential,
	readVersion int,
	entry models.AccessLogEntry,
	detail map[string]interface{},
) (models.Credential, error) {
	if detail == nil {
		detail = map[string]interface{}{}
	}
	detail["previous_version"] = readVersion
	detail["new_version"] = updated.Version

	if err := v.store.UpdateCredential(ctx, updated, readVersion); err != nil {
		v.recordDenial(ctx, entry, denialReasonFor(err), detail)
		return models.Credential{}, err
	}

	entry.Success = true
	entry.Context = toJSON(detail)
	v.recordAccess(ctx, entry)

	log.WithFields(v.GetLogTagsForContext(ctx)).
		WithField("credential-key", updated.Key).
		WithField("action", entry.Action).
		WithField("version", updated.Version).
		Info("Credential updated")

	return sanitize(updated), nil
}

// stampUpdate advance the version and record who made the change
func stampUpdate(credential *models.Credential, actor models.Actor) {
	credential.Version++
	if actor.UserID != nil {
		credential.UpdatedBy = actor.UserID
	}
}

func (v *vaultImpl) UpdateValue(
	ctx context.Context, req UpdateValueRequest,
) (models.Credential, error) {
	if err := v.validateRequest(&req); err != nil {
		return models.Credential{}, err
	}
	current, entry, err := v.loadForMutation(ctx, req.MutationTarget, models.AccessActionUpdate)
	if err != nil {
		return models.Credential{}, err
	}
	if current.Status == models.CredentialStatusRevoked {
		v.recordDenial(ctx, entry, models.DenialReasonInvalidTransition, nil)
		return models.Credential{}, fmt.Errorf(
			"credential '%s' is revoked [%w]", current.Key, models.ErrBadRequest,
		)
	}

	updated := current
	if current.IsInternal() {
		if len(req.Value) == 0 || req.ExternalReference != nil {
			return models.Credential{}, fmt.Errorf(
				"INTERNAL credential update needs a value only [%w]", models.ErrBadRequest,
			)
		}
		if err := v.encryptInto(&updated, req.Value); err != nil {
			v.recordDenial(ctx, entry, models.DenialReasonOperationFailed, nil)
			return models.Credential{}, err
		}
	} else {
		if len(req.Value) > 0 || req.ExternalReference == nil || *req.ExternalReference == "" {
			return models.Credential{}, fmt.Errorf(
				"%s credential update needs an external reference only [%w]",
				current.Provider, models.ErrBadRequest,
			)
		}
		updated.ExternalReference = req.ExternalReference
	}
	stampUpdate(&updated, req.Actor)

	return v.persistMutation(
		ctx, updated, current.Version, entry, map[string]interface{}{"value_changed": true},
	)
}

func (v *vaultImpl) UpdateMetadata(
	ctx context.Context, req UpdateMetadataRequest,
) (models.Credential, error) {
	if err := v.validateRequest(&req); err != nil {
		return models.Credential{}, err
	}
	current, entry, err := v.loadForMutation(ctx, req.MutationTarget, models.AccessActionUpdate)
	if err != nil {
		return models.Credential{}, err
	}
	if current.Status == models.CredentialStatusRevoked {
		v.recordDenial(ctx, entry, models.DenialReasonInvalidTransition, nil)
		return models.Credential{}, fmt.Errorf(
			"credential '%s' is revoked [%w]", current.Key, models.ErrBadRequest,
		)
	}

	updated := current
	changed := []string{}
	if req.Name != nil {
		updated.Name = *req.Name
		changed = append(changed, "name")
	}
	if req.Description != nil {
		updated.Description = req.Description
		changed = append(changed, "description")
	}
	if req.FolderID != nil {
		if *req.FolderID == "" {
			updated.FolderID = nil
		} else {
			if _, err := v.store.GetFolder(ctx, current.TenantID, *req.FolderID); err != nil {
				v.recordDenial(ctx, entry, denialReasonFor(err),
					map[string]interface{}{"error": "folder not found"})
				return models.Credential{}, fmt.Errorf("folder %s [%w]", *req.FolderID, err)
			}
			folderID := *req.FolderID
			updated.FolderID = &folderID
		}
		changed = append(changed, "folder")
	}
	if req.Scope != nil {
		updated.Scope = *req.Scope
		changed = append(changed, "scope")
	}
	if req.AllowedBotIDs != nil {
		updated.AllowedBotIDs = *req.AllowedBotIDs
		changed = append(changed, "allowed_bot_ids")
	}
	if req.AllowedEnvironments != nil {
		updated.AllowedEnvironments = *req.AllowedEnvironments
		changed = append(changed, "allowed_environments")
	}
	if req.AllowedUserIDs != nil {
		updated.AllowedUserIDs = *req.AllowedUserIDs
		changed = append(changed, "allowed_user_ids")
	}
	if err := policy.ValidateScopeShape(
		updated.Scope, updated.AllowedBotIDs, updated.AllowedEnvironments, updated.AllowedUserIDs,
	); err != nil {
		return models.Credential{}, err
	}

	now := time.Now().UTC()
	if req.ClearExpiration {
		updated.ExpiresAt = nil
		changed = append(changed, "expires_at")
	} else if req.ExpiresAt != nil {
		if !req.ExpiresAt.After(now) {
			return models.Credential{}, fmt.Errorf(
				"expiration is in the past [%w]", models.ErrBadRequest,
			)
		}
		updated.ExpiresAt = req.ExpiresAt
		changed = append(changed, "expires_at")
	}

	if req.RotationEnabled != nil {
		updated.RotationEnabled = *req.RotationEnabled
		changed = append(changed, "rotation_enabled")
	}
	if req.RotationIntervalDays != nil {
		updated.RotationIntervalDays = req.RotationIntervalDays
		changed = append(changed, "rotation_interval_days")
	}
	if req.RotationMaxFailures != nil {
		updated.RotationMaxFailures = *req.RotationMaxFailures
		changed = append(changed, "rotation_max_failures")
	}
	if updated.RotationEnabled {
		if updated.RotationIntervalDays == nil {
			return models.Credential{}, fmt.Errorf(
				"rotation enabled without an interval [%w]", models.ErrBadRequest,
			)
		}
		if req.RotationEnabled != nil || req.RotationIntervalDays != nil {
			// Schedule from the last rotation, or from now if never rotated
			base := now
			if updated.LastRotatedAt != nil {
				base = *updated.LastRotatedAt
			}
			next := base.AddDate(0, 0, *updated.RotationIntervalDays)
			updated.NextRotationAt = &next
		}
	} else {
		updated.NextRotationAt = nil
	}

	if req.Tags != nil {
		updated.Tags = *req.Tags
		changed = append(changed, "tags")
	}
	if req.Metadata != nil {
		updated.Metadata = toJSON(req.Metadata)
		changed = append(changed, "metadata")
	}

	if len(changed) == 0 {
		return sanitize(current), nil
	}
	stampUpdate(&updated, req.Actor)

	return v.persistMutation(
		ctx, updated, current.Version, entry, map[string]interface{}{"changed": changed},
	)
}

func (v *vaultImpl) SetStatus(ctx context.Context, req SetStatusRequest) (models.Credential, error) {
	if err := v.validateRequest(&req); err != nil {
		return models.Credential{}, err
	}
	current, entry, err := v.loadForMutation(ctx, req.MutationTarget, models.AccessActionUpdate)
	if err != nil {
		return models.Credential{}, err
	}
	if err := current.ValidateNextState(req.Status); err != nil {
		v.recordDenial(ctx, entry, models.DenialReasonInvalidTransition, map[string]interface{}{
			"from": current.Status, "to": req.Status,
		})
		return models.Credential{}, err
	}
	if req.Status == models.CredentialStatusActive && current.IsExpired(time.Now().UTC()) {
		v.recordDenial(ctx, entry, models.DenialReasonCredentialExpired, nil)
		return models.Credential{}, fmt.Errorf(
			"credential '%s' is past its expiration [%w]", current.Key, models.ErrBadRequest,
		)
	}

	updated := current
	updated.Status = req.Status
	stampUpdate(&updated, req.Actor)

	return v.persistMutation(ctx, updated, current.Version, entry, map[string]interface{}{
		"from": current.Status, "to": req.Status,
	})
}

func (v *vaultImpl) Rotate(ctx context.Context, req RotateRequest) (RotateResult, error) {
	if err := v.validateRequest(&req); err != nil {
		return RotateResult{}, err
	}
	if req.Trigger == "" {
		req.Trigger = models.RotationTriggerManual
	}
	current, entry, err := v.loadForMutation(ctx, req.MutationTarget, models.AccessActionRotate)
	if err != nil {
		return RotateResult{}, err
	}
	var newValue *models.CredentialValue
	if len(req.NewValue) > 0 {
		newValue = &req.NewValue
	}
	return v.rotate(ctx, current, entry, newValue, req.Trigger, req.Actor)
}

/*
rotate run the rotation controller on a credential, then persist and audit the outcome.
A failed rotation is persisted too, recording the failure state.
*/
func (v *vaultImpl) rotate(
	ctx context.Context,
	current models.Credential,
	entry models.AccessLogEntry,
	newValue *models.CredentialValue,
	trigger models.RotationTriggerENUMType,
	actor models.Actor,
) (RotateResult, error) {
	updated := current
	history, rotateErr := v.rotation.Rotate(ctx, &updated, newValue, trigger, actor)
	if history.ID == "" {
		// Preconditions not met, nothing was attempted
		v.recordDenial(ctx, entry, denialReasonFor(rotateErr), map[string]interface{}{
			"status": current.Status, "trigger": trigger,
		})
		return RotateResult{}, rotateErr
	}

	detail := map[string]interface{}{
		"trigger": trigger, "value_changed": history.ValueChanged,
	}
	if err := v.store.UpdateCredential(ctx, updated, current.Version); err != nil {
		// The rotation never took effect
		errMsg := fmt.Sprintf("rotation result not persisted: %s", err.Error())
		history.Success = false
		history.Error = &errMsg
		history.NewDEKID = current.DEKID
		v.recordRotation(ctx, history)
		detail["previous_version"] = current.Version
		v.recordDenial(ctx, entry, denialReasonFor(err), detail)
		return RotateResult{History: history}, err
	}

	v.recordRotation(ctx, history)
	detail["previous_version"] = history.PreviousVersion
	detail["new_version"] = history.NewVersion
	if rotateErr != nil {
		v.recordDenial(ctx, entry, denialReasonFor(rotateErr), detail)
		return RotateResult{Credential: sanitize(updated), History: history}, rotateErr
	}

	entry.Success = true
	entry.Context = toJSON(detail)
	v.recordAccess(ctx, entry)

	return RotateResult{Credential: sanitize(updated), History: history}, nil
}

func (v *vaultImpl) Revoke(ctx context.Context, req RevokeRequest) (models.Credential, error) {
	if err := v.validateRequest(&req); err != nil {
		return models.Credential{}, err
	}
	current, entry, err := v.loadForMutation(ctx, req.MutationTarget, models.AccessActionRevoke)
	if err != nil {
		return models.Credential{}, err
	}
	if current.Status == models.CredentialStatusRevoked {
		v.recordDenial(ctx, entry, models.DenialReasonInvalidTransition, nil)
		return models.Credential{}, fmt.Errorf(
			"credential '%s' already revoked [%w]", current.Key, models.ErrBadRequest,
		)
	}
	if err := current.ValidateNextState(models.CredentialStatusRevoked); err != nil {
		v.recordDenial(ctx, entry, models.DenialReasonInvalidTransition, nil)
		return models.Credential{}, err
	}

	now := time.Now().UTC()
	reason := req.Reason
	updated := current
	updated.Status = models.CredentialStatusRevoked
	updated.RevokedAt = &now
	updated.RevokedReason = &reason
	updated.RotationEnabled = false
	updated.NextRotationAt = nil
	stampUpdate(&updated, req.Actor)

	return v.persistMutation(ctx, updated, current.Version, entry, map[string]interface{}{
		"reason": reason,
	})
}

func (v *vaultImpl) Delete(ctx context.Context, req DeleteRequest) error {
	if err := v.validateRequest(&req); err != nil {
		return err
	}
	current, entry, err := v.loadForMutation(ctx, req.MutationTarget, models.AccessActionDelete)
	if err != nil {
		return err
	}

	// The audit trail must outlive the record
	entry.Success = true
	entry.Context = toJSON(map[string]interface{}{
		"version": current.Version, "type": current.Type, "provider": current.Provider,
	})
	v.recordAccess(ctx, entry)

	if err := v.store.DeleteCredential(ctx, current.ID); err != nil {
		v.recordDenial(ctx, entry, denialReasonFor(err), map[string]interface{}{
			"error": "removal failed",
		})
		return err
	}

	log.WithFields(v.GetLogTagsForContext(ctx)).
		WithField("tenant", current.TenantID).
		WithField("credential-key", current.Key).
		Info("Deleted credential")
	return nil
}
