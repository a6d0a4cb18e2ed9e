package db_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/alwitt/strongbox/db"
	"github.com/alwitt/strongbox/models"
	"github.com/apex/log"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm/logger"
)

// TestDBDataKeyRecord verifies the behaviour of the data key API:
//   - RecordDataKey
//   - GetDataKey
//   - ListDataKeys
//   - MarkDataKeyInactive
//
// The test performs the following steps:
//
//  1. Record data key 1, and read it back.
//  2. Record data key 2 while deactivating data key 1 through the store.
//  3. Verify only data key 2 is active.
//  4. Verify an inactive key can not be reactivated.
//  5. List audit events, there should be five:
//     • NewDataKey + ActivateDataKey for key 1
//     • DeactivateDataKey for key 1
//     • NewDataKey + ActivateDataKey for key 2
func TestDBDataKeyRecord(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	utCtx := context.Background()

	// Create a unique temporary DB file for this test
	testDB := fmt.Sprintf("/tmp/strongbox_ut_%s.db", ulid.Make().String())
	log.WithField("db", testDB).Debug("Test database")

	uut, err := db.NewConnection(db.GetSqliteDialector(testDB), logger.Error)
	assert.Nil(err)

	// Create database tables
	assert.Nil(uut.PrepareTables(utCtx))

	store := db.NewStore(uut)

	// 1. Record data key 1
	key1 := uuid.NewString()
	wrapped1 := []byte(uuid.NewString())
	nonce1 := []byte(ulid.Make().String())
	assert.Nil(store.RecordDataKey(utCtx, key1, wrapped1, nonce1, nil))

	err = uut.UseDatabase(utCtx, func(ctx context.Context, dbClient db.Database) error {
		entry, err := dbClient.GetDataKey(ctx, key1)
		if err != nil {
			return err
		}
		assert.Equal(wrapped1, entry.WrappedKeyMaterial)
		assert.Equal(nonce1, entry.WrapNonce)
		assert.Equal(models.EncryptionKeyStateActive, entry.State)
		return nil
	})
	assert.Nil(err)

	// 2. Record data key 2, superseding key 1
	key2 := uuid.NewString()
	assert.Nil(store.RecordDataKey(utCtx, key2, []byte("wrapped"), []byte("nonce"), &key1))

	// 3. Only key 2 is active
	err = uut.UseDatabase(utCtx, func(ctx context.Context, dbClient db.Database) error {
		active, err := dbClient.ListDataKeys(ctx, db.DataKeyQueryFilter{
			TargetState: []models.EncryptionKeyStateENUMType{models.EncryptionKeyStateActive},
		})
		if err != nil {
			return err
		}
		assert.Len(active, 1)
		assert.Equal(key2, active[0].ID)
		return nil
	})
	assert.Nil(err)

	allKeys, err := store.ListDataKeys(utCtx)
	assert.Nil(err)
	assert.Len(allKeys, 2)
	assert.Equal(key1, allKeys[0].ID)
	assert.Equal(models.EncryptionKeyStateInactive, allKeys[0].State)

	// Unknown key
	err = uut.UseDatabase(utCtx, func(ctx context.Context, dbClient db.Database) error {
		_, err := dbClient.GetDataKey(ctx, uuid.NewString())
		return err
	})
	assert.ErrorIs(err, models.ErrNotFound)

	// 4. Inactive keys stay inactive
	{
		entry := models.DataEncryptionKeyRecord{State: models.EncryptionKeyStateInactive}
		assert.Error(entry.ValidateNextState(models.EncryptionKeyStateActive))
	}

	// 5. List audit events
	var events []models.SystemEventAudit
	err = uut.UseDatabase(utCtx, func(ctx context.Context, dbClient db.Database) error {
		events, err = dbClient.ListSystemEvents(ctx, db.SystemEventQueryFilter{})
		return err
	})
	assert.Nil(err)
	assert.Len(events, 5)

	validate := validator.New()
	assert.Nil(models.RegisterWithValidator(validate))

	eventCount := map[string]int{}
	for _, e := range events {
		metadata, err := e.ParseMetadata(validate)
		assert.Nil(err)
		keyMetadata, ok := metadata.(models.SystemEventDataKeyRelated)
		assert.True(ok)
		eventCount[fmt.Sprintf("%s/%s", e.EventType, keyMetadata.KeyID)]++
	}
	assert.Equal(1, eventCount[fmt.Sprintf("%s/%s", models.SystemEventTypeNewDataKey, key1)])
	assert.Equal(1, eventCount[fmt.Sprintf("%s/%s", models.SystemEventTypeActivateDataKey, key1)])
	assert.Equal(1, eventCount[fmt.Sprintf("%s/%s", models.SystemEventTypeDeactivateDataKey, key1)])
	assert.Equal(1, eventCount[fmt.Sprintf("%s/%s", models.SystemEventTypeNewDataKey, key2)])
	assert.Equal(1, eventCount[fmt.Sprintf("%s/%s", models.SystemEventTypeActivateDataKey, key2)])
}
