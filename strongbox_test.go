package strongbox_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/alwitt/strongbox"
	"github.com/alwitt/strongbox/db"
	"github.com/alwitt/strongbox/models"
	"github.com/alwitt/strongbox/vault"
	"github.com/apex/log"
	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm/logger"
)

// TestCredentialVaultEndToEnd builds a vault on a fresh sqlite file, stores a credential,
// restarts against the same file, then fetches the credential back.
func TestCredentialVaultEndToEnd(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	ctx := context.Background()

	testDB := fmt.Sprintf("/tmp/strongbox_ut_%s.db", ulid.Make().String())
	masterSecret := "an-operator-supplied-master-secret-0001"

	params := strongbox.Params{
		DBDialector:  db.GetSqliteDialector(testDB),
		DBLogLevel:   logger.Error,
		DefineTables: true,
		MasterSecret: masterSecret,
	}

	instance, err := strongbox.NewCredentialVault(ctx, params)
	assert.Nil(err)

	tenant := ulid.Make().String()
	admin := "admin"
	created, err := instance.Vault.Create(ctx, vault.CreateRequest{
		TenantID: tenant,
		Key:      "smtp-relay",
		Name:     "SMTP relay",
		Type:     models.CredentialTypeSMTP,
		Scope:    models.CredentialScopeGlobal,
		Value:    models.CredentialValue{"username": "relay", "password": "hunter2"},
		Actor:    models.Actor{UserID: &admin},
	})
	assert.Nil(err)
	assert.Len(instance.Vault.ListDataKeys(), 1)

	// Access codes
	digest, err := instance.Engine.Hash([]byte("123456"))
	assert.Nil(err)
	assert.True(instance.Engine.VerifyHash([]byte("123456"), digest))
	assert.False(instance.Engine.VerifyHash([]byte("654321"), digest))

	// Restart against the same database
	assert.Nil(instance.Close())
	params.DefineTables = false
	restarted, err := strongbox.NewCredentialVault(ctx, params)
	assert.Nil(err)
	assert.Len(restarted.Vault.ListDataKeys(), 1)

	result, err := restarted.Vault.Fetch(ctx, vault.FetchRequest{
		TenantID:      tenant,
		RunnerID:      "runner-1",
		RunID:         "run-1",
		BotID:         "bot-1",
		CredentialKey: "smtp-relay",
	})
	assert.Nil(err)
	assert.Equal(created.ID, result.ID)
	assert.Equal("hunter2", result.Value["password"])

	// The access code digest survives the restart, as the KEK is the same
	assert.True(restarted.Engine.VerifyHash([]byte("123456"), digest))

	// Wrong master secret
	params.MasterSecret = "not-the-operator-supplied-master-secret"
	_, err = strongbox.NewCredentialVault(ctx, params)
	assert.ErrorIs(err, models.ErrFatal)

	// Short master secret
	params.MasterSecret = "short"
	_, err = strongbox.NewCredentialVault(ctx, params)
	assert.ErrorIs(err, models.ErrFatal)
}
