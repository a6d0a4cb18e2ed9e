package vault

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/alwitt/strongbox/models"
	"github.com/alwitt/strongbox/policy"
	"github.com/apex/log"
)

func (v *vaultImpl) Fetch(ctx context.Context, req FetchRequest) (FetchResult, error) {
	if err := v.validateRequest(&req); err != nil {
		return FetchResult{}, err
	}
	return v.fetch(ctx, req)
}

// fetch resolve, authorize, then decrypt one credential
func (v *vaultImpl) fetch(ctx context.Context, req FetchRequest) (FetchResult, error) {
	logTags := v.GetLogTagsForContext(ctx)

	actor := models.Actor{RunnerID: &req.RunnerID, RunID: &req.RunID, BotID: &req.BotID}
	entry := newAccessEntry(req.TenantID, nil, req.CredentialKey, actor, models.AccessActionDecrypt)
	entry.Environment = req.Environment
	entry.NodeID = req.NodeID
	entry.NodeName = req.NodeName

	deny := func(
		reason models.DenialReasonENUMType, detail map[string]interface{}, err error,
	) (FetchResult, error) {
		v.recordDenial(ctx, entry, reason, detail)
		v.metrics.fetchOutcomes.WithLabelValues(outcomeLabel(false), string(reason)).Inc()
		log.WithFields(logTags).
			WithField("credential-key", req.CredentialKey).
			WithField("actor", actor.String()).
			WithField("reason", reason).
			Info("Credential fetch denied")
		return FetchResult{}, err
	}

	if err := ctx.Err(); err != nil {
		return deny(models.DenialReasonRequestCancelled, nil, err)
	}

	credential, err := v.store.GetCredentialByKey(ctx, req.TenantID, req.CredentialKey)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrNotFound):
			return deny(models.DenialReasonCredentialNotFound, nil, notFound(req.CredentialKey))
		case ctx.Err() != nil:
			return deny(models.DenialReasonRequestCancelled, nil, ctx.Err())
		}
		log.WithError(err).WithFields(logTags).Error("Credential lookup failed")
		return deny(
			models.DenialReasonOperationFailed,
			nil,
			fmt.Errorf("credential '%s' lookup failed", req.CredentialKey),
		)
	}
	credentialID := credential.ID
	entry.CredentialID = &credentialID

	// Status, expiration, then scope; each has its own reason
	if decision := v.policy.CheckStatus(&credential); !decision.Allowed {
		return deny(
			decision.Reason,
			map[string]interface{}{"status": credential.Status},
			forbidden(req.CredentialKey),
		)
	}
	if decision := v.policy.CheckExpiration(&credential, time.Now().UTC()); !decision.Allowed {
		return deny(
			decision.Reason,
			map[string]interface{}{"expires_at": credential.ExpiresAt},
			fmt.Errorf("credential '%s' [%w]", req.CredentialKey, models.ErrCredentialExpired),
		)
	}
	requester := policy.Requester{BotID: &req.BotID, Environment: req.Environment}
	if decision := v.policy.Evaluate(&credential, requester); !decision.Allowed {
		return deny(
			decision.Reason,
			map[string]interface{}{"scope": credential.Scope},
			forbidden(req.CredentialKey),
		)
	}

	if err := ctx.Err(); err != nil {
		return deny(models.DenialReasonRequestCancelled, nil, err)
	}

	var value models.CredentialValue
	if credential.IsInternal() {
		if credential.EncryptedValue == nil {
			return deny(models.DenialReasonDecryptionFailed, nil, models.ErrDecryptionFailure)
		}
		value, err = v.engine.DecryptValue(*credential.EncryptedValue)
		if err != nil {
			log.WithFields(logTags).
				WithField("credential-key", req.CredentialKey).
				WithField("dek-id", credential.DEKID).
				Error("Stored credential failed to decrypt")
			return deny(models.DenialReasonDecryptionFailed, nil, models.ErrDecryptionFailure)
		}
	} else {
		value, err = v.fetchExternal(ctx, &credential)
		if err != nil {
			return deny(
				models.DenialReasonExternalProviderFail,
				map[string]interface{}{"provider": credential.Provider},
				err,
			)
		}
	}

	accessTime := time.Now().UTC()
	if err := v.store.RecordCredentialAccess(
		context.WithoutCancel(ctx), credential.ID, actor.String(), accessTime,
	); err != nil {
		log.WithError(err).
			WithFields(logTags).
			WithField("credential-key", req.CredentialKey).
			Error("Failed to update access counters")
	}

	entry.Success = true
	entry.Context = toJSON(map[string]interface{}{"version": credential.Version})
	v.recordAccess(ctx, entry)
	v.metrics.fetchOutcomes.WithLabelValues(outcomeLabel(true), "none").Inc()

	result := FetchResult{
		ID:    credential.ID,
		Key:   credential.Key,
		Type:  credential.Type,
		Value: value,
	}
	if len(credential.Metadata) > 0 {
		if err := json.Unmarshal(credential.Metadata, &result.Metadata); err != nil {
			log.WithError(err).
				WithFields(logTags).
				WithField("credential-key", req.CredentialKey).
				Warn("Credential metadata is not a JSON object")
		}
	}
	return result, nil
}

// fetchExternal read an externally held value, keeping provider detail out of the error
func (v *vaultImpl) fetchExternal(
	ctx context.Context, credential *models.Credential,
) (models.CredentialValue, error) {
	if v.external == nil {
		return nil, fmt.Errorf("%s [%w]", credential.Provider, models.ErrProviderNotSupported)
	}
	if credential.ExternalReference == nil {
		return nil, fmt.Errorf("credential '%s' has no external reference", credential.Key)
	}
	value, err := v.external.FetchSecret(ctx, credential.Provider, *credential.ExternalReference)
	if err == nil {
		return value, nil
	}
	switch {
	case errors.Is(err, models.ErrProviderNotSupported):
		return nil, fmt.Errorf("%s [%w]", credential.Provider, models.ErrProviderNotSupported)
	case errors.Is(err, models.ErrNotFound):
		return nil, notFound(credential.Key)
	case errors.Is(err, models.ErrForbidden):
		return nil, forbidden(credential.Key)
	}
	return nil, fmt.Errorf("credential '%s' is unavailable from %s", credential.Key, credential.Provider)
}

func (v *vaultImpl) BulkFetch(ctx context.Context, req BulkFetchRequest) (BulkFetchResult, error) {
	if err := v.validateRequest(&req); err != nil {
		return BulkFetchResult{}, err
	}

	result := BulkFetchResult{
		Credentials: make(map[string]models.CredentialValue),
		Errors:      make(map[string]string),
	}
	for _, key := range req.CredentialKeys {
		if _, done := result.Credentials[key]; done {
			continue
		}
		if _, done := result.Errors[key]; done {
			continue
		}
		fetched, err := v.fetch(ctx, FetchRequest{
			TenantID:      req.TenantID,
			RunnerID:      req.RunnerID,
			RunID:         req.RunID,
			BotID:         req.BotID,
			CredentialKey: key,
			Environment:   req.Environment,
		})
		if err != nil {
			result.Errors[key] = err.Error()
			continue
		}
		result.Credentials[key] = fetched.Value
	}

	log.WithFields(v.GetLogTagsForContext(ctx)).
		WithField("fetched", len(result.Credentials)).
		WithField("failed", len(result.Errors)).
		Debug("Bulk fetch complete")

	return result, nil
}
