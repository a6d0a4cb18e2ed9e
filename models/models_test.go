package models_test

import (
	"errors"
	"testing"
	"time"

	"github.com/alwitt/strongbox/models"
	"github.com/apex/log"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
)

func TestCredentialStateTransitions(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	type testCase struct {
		from    models.CredentialStatusENUMType
		to      models.CredentialStatusENUMType
		allowed bool
	}

	testCases := []testCase{
		{models.CredentialStatusActive, models.CredentialStatusInactive, true},
		{models.CredentialStatusActive, models.CredentialStatusExpired, true},
		{models.CredentialStatusInactive, models.CredentialStatusActive, true},
		{models.CredentialStatusInactive, models.CredentialStatusExpired, false},
		{models.CredentialStatusExpired, models.CredentialStatusActive, true},
		{models.CredentialStatusExpired, models.CredentialStatusInactive, false},
		{models.CredentialStatusPendingRotation, models.CredentialStatusActive, true},
		{models.CredentialStatusRotationFailed, models.CredentialStatusPendingRotation, true},
		{models.CredentialStatusRevoked, models.CredentialStatusActive, false},
		{models.CredentialStatusRevoked, models.CredentialStatusRevoked, true},
	}

	for idx, oneCase := range testCases {
		credential := models.Credential{Status: oneCase.from}
		err := credential.ValidateNextState(oneCase.to)
		if oneCase.allowed {
			assert.Nilf(err, "case %d", idx)
		} else {
			assert.Truef(errors.Is(err, models.ErrBadRequest), "case %d", idx)
		}
	}

	// Unknown states have no transitions
	credential := models.Credential{Status: "SHREDDED"}
	assert.NotNil(credential.ValidateNextState(models.CredentialStatusActive))
}

func TestCredentialHelpers(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	now := time.Now().UTC()
	credential := models.Credential{Provider: models.VaultProviderInternal}
	assert.False(credential.IsExpired(now))
	assert.True(credential.IsInternal())

	past := now.Add(-time.Minute)
	credential.ExpiresAt = &past
	assert.True(credential.IsExpired(now))
	// Expiration is inclusive of the boundary
	assert.True(credential.IsExpired(past))

	future := now.Add(time.Hour)
	credential.ExpiresAt = &future
	assert.False(credential.IsExpired(now))

	credential.Provider = models.VaultProviderHashicorp
	assert.False(credential.IsInternal())
}

func TestActorLabel(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	userID := "alice"
	botID := "bot-1"
	runID := "run-1"
	runnerID := "runner-1"

	assert.Equal("system", models.Actor{}.String())
	assert.Equal("user:alice", models.Actor{UserID: &userID, BotID: &botID}.String())
	assert.Equal("bot:bot-1/run:run-1", models.Actor{BotID: &botID, RunID: &runID}.String())
	assert.Equal("bot:bot-1", models.Actor{BotID: &botID}.String())
	assert.Equal("runner:runner-1", models.Actor{RunnerID: &runnerID}.String())
}

func TestBuildFolderPath(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	path, err := models.BuildFolderPath("", "infra")
	assert.Nil(err)
	assert.Equal("/infra", path)

	path, err = models.BuildFolderPath("/infra/", " databases ")
	assert.Nil(err)
	assert.Equal("/infra/databases", path)

	_, err = models.BuildFolderPath("/infra", "a/b")
	assert.True(errors.Is(err, models.ErrBadRequest))

	_, err = models.BuildFolderPath("/infra", "  ")
	assert.True(errors.Is(err, models.ErrBadRequest))
}

func TestEnumValidation(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	validate := validator.New()
	assert.Nil(models.RegisterWithValidator(validate))

	type probe struct {
		Type     models.CredentialTypeENUMType   `validate:"credential_type"`
		Scope    models.CredentialScopeENUMType  `validate:"credential_scope"`
		Provider models.VaultProviderENUMType    `validate:"vault_provider"`
		Status   models.CredentialStatusENUMType `validate:"credential_status"`
	}

	valid := probe{
		Type:     models.CredentialTypeSMTP,
		Scope:    models.CredentialScopeEnvironment,
		Provider: models.VaultProviderAWSSecretsManager,
		Status:   models.CredentialStatusPendingRotation,
	}
	assert.Nil(validate.Struct(&valid))

	invalidType := valid
	invalidType.Type = "TELEGRAM"
	assert.NotNil(validate.Struct(&invalidType))

	invalidScope := valid
	invalidScope.Scope = "EVERYONE"
	assert.NotNil(validate.Struct(&invalidScope))

	invalidProvider := valid
	invalidProvider.Provider = "DROPBOX"
	assert.NotNil(validate.Struct(&invalidProvider))
}

func TestDataKeyStateTransitions(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	key := models.DataEncryptionKeyRecord{State: models.EncryptionKeyStateActive}
	assert.True(key.IsActive())
	assert.Nil(key.ValidateNextState(models.EncryptionKeyStateInactive))

	// A retired key never becomes active again
	key.State = models.EncryptionKeyStateInactive
	assert.False(key.IsActive())
	assert.Nil(key.ValidateNextState(models.EncryptionKeyStateInactive))
	assert.True(errors.Is(key.ValidateNextState(models.EncryptionKeyStateActive), models.ErrConflict))
}
