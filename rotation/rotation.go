// Package rotation - credential rotation state machine
package rotation

import (
	"context"
	"fmt"
	"time"

	"github.com/alwitt/goutils"
	"github.com/alwitt/strongbox/encryption"
	"github.com/alwitt/strongbox/models"
	"github.com/apex/log"
	"github.com/oklog/ulid/v2"
)

// rotatableStates statuses a credential may be rotated from
var rotatableStates = map[models.CredentialStatusENUMType]bool{
	models.CredentialStatusActive:          true,
	models.CredentialStatusPendingRotation: true,
	models.CredentialStatusRotationFailed:  true,
	models.CredentialStatusExpired:         true,
}

// Controller drive the credential rotation state machine. Transitions happen only through
// explicit Rotate calls; scheduling and retries belong to the caller.
type Controller interface {
	/*
		Rotate rotate a credential in place. With a new value, the value is encrypted fresh;
		otherwise the existing bundle is re-encrypted with the active DEK.

		The version is incremented whether the rotation succeeds or fails. Once the
		preconditions pass, a history entry is returned in both cases; a failed rotation
		also returns the failure.

			@param ctx context.Context - execution context
			@param credential *models.Credential - the credential, updated in place
			@param newValue *models.CredentialValue - optional new value
			@param trigger models.RotationTriggerENUMType - what started the rotation
			@param actor models.Actor - who started the rotation
			@returns the rotation history entry
	*/
	Rotate(
		ctx context.Context,
		credential *models.Credential,
		newValue *models.CredentialValue,
		trigger models.RotationTriggerENUMType,
		actor models.Actor,
	) (models.RotationHistoryEntry, error)
}

// controllerImpl implements Controller
type controllerImpl struct {
	goutils.Component
	engine encryption.Engine
}

/*
NewController define a new rotation controller

	@param engine encryption.Engine - the encryption engine
	@returns controller
*/
func NewController(engine encryption.Engine) (Controller, error) {
	if engine == nil {
		return nil, fmt.Errorf("encryption engine not provided [%w]", models.ErrFatal)
	}
	return &controllerImpl{
		Component: goutils.Component{
			LogTags: log.Fields{"module": "rotation", "component": "controller"},
			LogTagModifiers: []goutils.LogMetadataModifier{
				goutils.ModifyLogMetadataByRestRequestParam,
			},
		},
		engine: engine,
	}, nil
}

// checkPreconditions verify the credential can be rotated at all
func checkPreconditions(credential *models.Credential, newValue *models.CredentialValue) error {
	if !credential.IsInternal() {
		return fmt.Errorf(
			"credential %s is held by %s, rotate it there [%w]",
			credential.Key, credential.Provider, models.ErrBadRequest,
		)
	}
	if !rotatableStates[credential.Status] {
		return fmt.Errorf(
			"credential %s can not be rotated while %s [%w]",
			credential.Key, credential.Status, models.ErrBadRequest,
		)
	}
	if newValue == nil {
		if credential.Status == models.CredentialStatusExpired {
			return fmt.Errorf(
				"expired credential %s needs a new value to rotate [%w]",
				credential.Key, models.ErrBadRequest,
			)
		}
		if credential.EncryptedValue == nil {
			return fmt.Errorf(
				"credential %s has no value to re-encrypt [%w]", credential.Key, models.ErrBadRequest,
			)
		}
	} else if len(*newValue) == 0 {
		return fmt.Errorf("new value for %s is empty [%w]", credential.Key, models.ErrBadRequest)
	}
	return nil
}

func (c *controllerImpl) Rotate(
	ctx context.Context,
	credential *models.Credential,
	newValue *models.CredentialValue,
	trigger models.RotationTriggerENUMType,
	actor models.Actor,
) (models.RotationHistoryEntry, error) {
	logTags := c.GetLogTagsForContext(ctx)

	if err := checkPreconditions(credential, newValue); err != nil {
		return models.RotationHistoryEntry{}, err
	}

	startTime := time.Now().UTC()

	var encoded string
	var rotateErr error
	if newValue != nil {
		encoded, rotateErr = c.engine.EncryptValue(*newValue)
	} else {
		encoded, rotateErr = c.engine.Reencrypt(*credential.EncryptedValue)
	}
	var newKeyID string
	if rotateErr == nil {
		newKeyID, rotateErr = encryption.KeyIDOf(encoded)
	}

	entry := models.RotationHistoryEntry{
		ID:              ulid.Make().String(),
		TenantID:        credential.TenantID,
		CredentialID:    credential.ID,
		Trigger:         trigger,
		PreviousVersion: credential.Version,
		NewVersion:      credential.Version + 1,
		PreviousDEKID:   credential.DEKID,
		ValueChanged:    newValue != nil,
		Actor:           actor,
		CreatedAt:       startTime,
	}

	credential.Version = entry.NewVersion
	if actor.UserID != nil {
		credential.UpdatedBy = actor.UserID
	}

	if rotateErr != nil {
		credential.Status = models.CredentialStatusRotationFailed
		credential.RotationFailureCount++

		errMsg := rotateErr.Error()
		entry.Success = false
		entry.Error = &errMsg
		entry.NewDEKID = credential.DEKID
		entry.DurationMs = time.Since(startTime).Milliseconds()

		log.WithError(rotateErr).
			WithFields(logTags).
			WithField("credential-key", credential.Key).
			WithField("trigger", trigger).
			WithField("failures", credential.RotationFailureCount).
			Error("Credential rotation failed")
		return entry, fmt.Errorf("credential %s rotation failed [%w]", credential.Key, rotateErr)
	}

	now := time.Now().UTC()
	credential.EncryptedValue = &encoded
	credential.DEKID = &newKeyID
	credential.Status = models.CredentialStatusActive
	credential.RotationFailureCount = 0
	credential.LastRotatedAt = &now
	credential.NextRotationAt = nil
	if credential.RotationEnabled && credential.RotationIntervalDays != nil {
		next := now.AddDate(0, 0, *credential.RotationIntervalDays)
		credential.NextRotationAt = &next
	}

	entry.Success = true
	entry.NewDEKID = &newKeyID
	entry.DurationMs = time.Since(startTime).Milliseconds()

	log.WithFields(logTags).
		WithField("credential-key", credential.Key).
		WithField("trigger", trigger).
		WithField("version", credential.Version).
		WithField("dek-id", newKeyID).
		Info("Credential rotated")

	return entry, nil
}

/*
IsDue whether the scheduler should rotate the credential now

	@param credential *models.Credential - the credential
	@param now time.Time - the reference time
	@returns whether rotation is due
*/
func IsDue(credential *models.Credential, now time.Time) bool {
	return DueWithin(credential, now, 0)
}

/*
DueWithin whether the credential needs rotating within the window

	@param credential *models.Credential - the credential
	@param now time.Time - the reference time
	@param window time.Duration - look ahead window
	@returns whether rotation is due within the window
*/
func DueWithin(credential *models.Credential, now time.Time, window time.Duration) bool {
	if !credential.RotationEnabled || credential.NextRotationAt == nil {
		return false
	}
	if !rotatableStates[credential.Status] || !credential.IsInternal() {
		return false
	}
	return !credential.NextRotationAt.After(now.Add(window))
}

// FailureThresholdReached whether consecutive failures reached the credential's threshold
func FailureThresholdReached(credential *models.Credential) bool {
	return credential.RotationMaxFailures > 0 &&
		credential.RotationFailureCount >= credential.RotationMaxFailures
}
