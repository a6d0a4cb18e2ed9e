package rotation_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alwitt/strongbox/encryption"
	"github.com/alwitt/strongbox/mocks"
	"github.com/alwitt/strongbox/models"
	"github.com/alwitt/strongbox/rotation"
	"github.com/apex/log"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

const testMasterSecret = "correct-horse-battery-staple-0123456789"

func newTestCredential(engine encryption.Engine, t *testing.T) models.Credential {
	assert := assert.New(t)
	encoded, err := engine.EncryptValue(models.CredentialValue{"apiKey": "sk-live-0001"})
	assert.Nil(err)
	keyID, err := encryption.KeyIDOf(encoded)
	assert.Nil(err)
	interval := 30
	return models.Credential{
		ID:                   uuid.NewString(),
		TenantID:             "tenant-1",
		Key:                  "stripe",
		Status:               models.CredentialStatusActive,
		Provider:             models.VaultProviderInternal,
		EncryptedValue:       &encoded,
		DEKID:                &keyID,
		Version:              1,
		RotationEnabled:      true,
		RotationIntervalDays: &interval,
		RotationMaxFailures:  2,
	}
}

func TestRotateSuccess(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	utCtx := context.Background()

	keys, err := encryption.NewKeyManager(
		utCtx, encryption.KeyManagerParams{MasterSecret: testMasterSecret},
	)
	assert.Nil(err)
	oldKey, err := keys.GenerateDEK(utCtx)
	assert.Nil(err)
	engine, err := encryption.NewEngine(keys)
	assert.Nil(err)

	uut, err := rotation.NewController(engine)
	assert.Nil(err)

	cred := newTestCredential(engine, t)
	newKey, err := keys.GenerateDEK(utCtx)
	assert.Nil(err)

	userID := "admin"
	actor := models.Actor{UserID: &userID}

	// Pure key rotation
	entry, err := uut.Rotate(utCtx, &cred, nil, models.RotationTriggerScheduled, actor)
	assert.Nil(err)
	assert.True(entry.Success)
	assert.False(entry.ValueChanged)
	assert.Equal(1, entry.PreviousVersion)
	assert.Equal(2, entry.NewVersion)
	assert.Equal(oldKey.ID, *entry.PreviousDEKID)
	assert.Equal(newKey.ID, *entry.NewDEKID)
	assert.Equal(models.RotationTriggerScheduled, entry.Trigger)
	assert.Equal(userID, *entry.UserID)
	assert.NotEmpty(entry.ID)

	assert.Equal(2, cred.Version)
	assert.Equal(newKey.ID, *cred.DEKID)
	assert.Equal(userID, *cred.UpdatedBy)
	assert.NotNil(cred.LastRotatedAt)
	assert.NotNil(cred.NextRotationAt)
	assert.WithinDuration(cred.LastRotatedAt.AddDate(0, 0, 30), *cred.NextRotationAt, time.Second)

	value, err := engine.DecryptValue(*cred.EncryptedValue)
	assert.Nil(err)
	assert.Equal("sk-live-0001", value["apiKey"])

	// New value
	newValue := models.CredentialValue{"apiKey": "sk-live-0002"}
	entry, err = uut.Rotate(utCtx, &cred, &newValue, models.RotationTriggerManual, actor)
	assert.Nil(err)
	assert.True(entry.ValueChanged)
	assert.Equal(3, cred.Version)
	value, err = engine.DecryptValue(*cred.EncryptedValue)
	assert.Nil(err)
	assert.Equal("sk-live-0002", value["apiKey"])

	// Rotation disabled clears the schedule
	cred.RotationEnabled = false
	_, err = uut.Rotate(utCtx, &cred, nil, models.RotationTriggerManual, actor)
	assert.Nil(err)
	assert.Nil(cred.NextRotationAt)
	assert.Equal(4, cred.Version)
}

func TestRotateFailureAndRecovery(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	utCtx := context.Background()

	engine := mocks.NewEngine(t)
	uut, err := rotation.NewController(engine)
	assert.Nil(err)

	stored := "a2V5:aXY=:dGFn:Y3Q="
	dekID := "key"
	cred := models.Credential{
		ID:                  uuid.NewString(),
		TenantID:            "tenant-1",
		Key:                 "db",
		Status:              models.CredentialStatusActive,
		Provider:            models.VaultProviderInternal,
		EncryptedValue:      &stored,
		DEKID:               &dekID,
		Version:             5,
		RotationMaxFailures: 2,
	}

	// Two consecutive failures
	engine.On("Reencrypt", stored).Return("", models.ErrDecryptionFailure).Twice()
	for attempt := 1; attempt <= 2; attempt++ {
		entry, err := uut.Rotate(utCtx, &cred, nil, models.RotationTriggerScheduled, models.Actor{})
		assert.ErrorIs(err, models.ErrDecryptionFailure)
		assert.False(entry.Success)
		assert.NotNil(entry.Error)
		assert.Equal(4+attempt, entry.PreviousVersion)
		assert.Equal(5+attempt, entry.NewVersion)
		assert.Equal(models.CredentialStatusRotationFailed, cred.Status)
		assert.Equal(attempt, cred.RotationFailureCount)
		assert.Equal(stored, *cred.EncryptedValue)
	}
	assert.True(rotation.FailureThresholdReached(&cred))

	// Recovery resets the failure counter
	fresh := "a2V5Mg==:aXY=:dGFn:Y3Q="
	engine.On("Reencrypt", stored).Return(fresh, nil).Once()
	entry, err := uut.Rotate(utCtx, &cred, nil, models.RotationTriggerManual, models.Actor{})
	assert.Nil(err)
	assert.True(entry.Success)
	assert.Equal(8, cred.Version)
	assert.Equal(models.CredentialStatusActive, cred.Status)
	assert.Equal(0, cred.RotationFailureCount)
	assert.Equal("key2", *cred.DEKID)
	assert.False(rotation.FailureThresholdReached(&cred))

	engine.AssertNotCalled(t, "EncryptValue", mock.Anything)
}

func TestRotatePreconditions(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	utCtx := context.Background()

	engine := mocks.NewEngine(t)
	uut, err := rotation.NewController(engine)
	assert.Nil(err)

	stored := "a2V5:aXY=:dGFn:Y3Q="
	base := models.Credential{
		ID:             uuid.NewString(),
		Key:            "db",
		Status:         models.CredentialStatusActive,
		Provider:       models.VaultProviderInternal,
		EncryptedValue: &stored,
		Version:        1,
	}

	// Not rotatable states
	for _, status := range []models.CredentialStatusENUMType{
		models.CredentialStatusRevoked, models.CredentialStatusInactive,
	} {
		cred := base
		cred.Status = status
		entry, err := uut.Rotate(utCtx, &cred, nil, models.RotationTriggerManual, models.Actor{})
		assert.ErrorIs(err, models.ErrBadRequest)
		assert.Empty(entry.ID)
		assert.Equal(1, cred.Version)
	}

	// Expired needs a new value
	{
		cred := base
		cred.Status = models.CredentialStatusExpired
		_, err := uut.Rotate(utCtx, &cred, nil, models.RotationTriggerExpiration, models.Actor{})
		assert.ErrorIs(err, models.ErrBadRequest)

		newValue := models.CredentialValue{"password": "n3w"}
		engine.On("EncryptValue", newValue).Return("a2V5Mw==:aXY=:dGFn:Y3Q=", nil).Once()
		entry, err := uut.Rotate(
			utCtx, &cred, &newValue, models.RotationTriggerExpiration, models.Actor{},
		)
		assert.Nil(err)
		assert.True(entry.Success)
		assert.Equal(models.CredentialStatusActive, cred.Status)
		assert.Equal("key3", *cred.DEKID)
	}

	// External credentials rotate at their provider
	{
		cred := base
		cred.Provider = models.VaultProviderHashicorp
		_, err := uut.Rotate(utCtx, &cred, nil, models.RotationTriggerManual, models.Actor{})
		assert.ErrorIs(err, models.ErrBadRequest)
	}

	// Empty new value
	{
		cred := base
		empty := models.CredentialValue{}
		_, err := uut.Rotate(utCtx, &cred, &empty, models.RotationTriggerManual, models.Actor{})
		assert.ErrorIs(err, models.ErrBadRequest)
	}

	_, err = rotation.NewController(nil)
	assert.True(errors.Is(err, models.ErrFatal))
}

func TestRotationDue(t *testing.T) {
	assert := assert.New(t)

	now := time.Now().UTC()
	soon := now.Add(3 * 24 * time.Hour)
	past := now.Add(-time.Hour)

	cred := models.Credential{
		Status:          models.CredentialStatusActive,
		Provider:        models.VaultProviderInternal,
		RotationEnabled: true,
		NextRotationAt:  &soon,
	}
	assert.False(rotation.IsDue(&cred, now))
	assert.True(rotation.DueWithin(&cred, now, 7*24*time.Hour))

	cred.NextRotationAt = &past
	assert.True(rotation.IsDue(&cred, now))

	cred.RotationEnabled = false
	assert.False(rotation.IsDue(&cred, now))

	cred.RotationEnabled = true
	cred.Status = models.CredentialStatusRevoked
	assert.False(rotation.IsDue(&cred, now))
}
