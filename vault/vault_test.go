package vault_test

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/alwitt/strongbox/db"
	"github.com/alwitt/strongbox/encryption"
	"github.com/alwitt/strongbox/external"
	"github.com/alwitt/strongbox/mocks"
	"github.com/alwitt/strongbox/models"
	"github.com/alwitt/strongbox/policy"
	"github.com/alwitt/strongbox/rotation"
	"github.com/alwitt/strongbox/vault"
	"github.com/apex/log"
	"github.com/oklog/ulid/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"gorm.io/gorm/logger"
)

const testMasterSecret = "correct-horse-battery-staple-0123456789"

type testFixture struct {
	store    *db.Store
	keys     encryption.KeyManager
	registry *prometheus.Registry
	uut      vault.CredentialVault
}

type fixtureOptions struct {
	audit    vault.AuditSink
	external vault.ExternalVaultAdapter
}

func newTestFixture(t *testing.T, opts fixtureOptions) testFixture {
	assert := assert.New(t)
	utCtx := context.Background()

	testDB := fmt.Sprintf("/tmp/strongbox_ut_%s.db", ulid.Make().String())
	log.WithField("db", testDB).Debug("Test database")

	client, err := db.NewConnection(db.GetSqliteDialector(testDB), logger.Error)
	assert.Nil(err)
	assert.Nil(client.PrepareTables(utCtx))
	store := db.NewStore(client)

	keys, err := encryption.NewKeyManager(
		utCtx, encryption.KeyManagerParams{MasterSecret: testMasterSecret, Store: store},
	)
	assert.Nil(err)
	_, err = keys.GenerateDEK(utCtx)
	assert.Nil(err)

	engine, err := encryption.NewEngine(keys)
	assert.Nil(err)
	controller, err := rotation.NewController(engine)
	assert.Nil(err)

	var audit vault.AuditSink = store
	if opts.audit != nil {
		audit = opts.audit
	}

	registry := prometheus.NewRegistry()
	uut, err := vault.NewCredentialVault(vault.Params{
		Store:    store,
		Audit:    audit,
		External: opts.external,
		Keys:     keys,
		Engine:   engine,
		Policy:   policy.NewEvaluator(),
		Rotation: controller,
		Metrics:  registry,
	})
	assert.Nil(err)

	return testFixture{store: store, keys: keys, registry: registry, uut: uut}
}

func userActor(userID string) models.Actor {
	return models.Actor{UserID: &userID}
}

func newBotCredentialRequest(tenantID, key string, bots ...string) vault.CreateRequest {
	return vault.CreateRequest{
		TenantID:      tenantID,
		Key:           key,
		Name:          key,
		Type:          models.CredentialTypeAPIKey,
		Scope:         models.CredentialScopeBotSpecific,
		AllowedBotIDs: bots,
		Value:         models.CredentialValue{"apiKey": "sk-" + key},
		Metadata:      map[string]interface{}{"owner": "payments"},
		Actor:         userActor("admin"),
	}
}

func botFetch(tenantID, key, botID string) vault.FetchRequest {
	return vault.FetchRequest{
		TenantID:      tenantID,
		RunnerID:      "runner-1",
		RunID:         "run-1",
		BotID:         botID,
		CredentialKey: key,
	}
}

// forceExpired move the expiration of a stored credential into the past
func forceExpired(t *testing.T, store *db.Store, credentialID string) {
	assert := assert.New(t)
	utCtx := context.Background()
	stored, err := store.GetCredential(utCtx, credentialID)
	assert.Nil(err)
	past := time.Now().UTC().Add(-time.Hour)
	stored.ExpiresAt = &past
	assert.Nil(store.UpdateCredential(utCtx, stored, stored.Version))
}

func accessLogFor(
	t *testing.T, uut vault.CredentialVault, tenantID, key string,
) []models.AccessLogEntry {
	entries, err := uut.ListAccessLog(
		context.Background(), tenantID, db.AccessLogQueryFilter{TargetCredentialKey: &key},
	)
	assert.Nil(t, err)
	return entries
}

func denialReasons(entries []models.AccessLogEntry) []models.DenialReasonENUMType {
	reasons := []models.DenialReasonENUMType{}
	for _, entry := range entries {
		if !entry.Success && entry.DenialReason != nil {
			reasons = append(reasons, *entry.DenialReason)
		}
	}
	return reasons
}

func TestVaultFetchScopeEnforcement(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	utCtx := context.Background()

	fixture := newTestFixture(t, fixtureOptions{})
	uut := fixture.uut

	tenant := ulid.Make().String()

	created, err := uut.Create(utCtx, newBotCredentialRequest(tenant, "stripe-key", "b1"))
	assert.Nil(err)
	assert.Equal(1, created.Version)
	assert.Equal(models.CredentialStatusActive, created.Status)
	assert.Nil(created.EncryptedValue)
	assert.NotNil(created.DEKID)

	// Case 0: allowed bot
	{
		result, err := uut.Fetch(utCtx, botFetch(tenant, "stripe-key", "b1"))
		assert.Nil(err)
		assert.Equal(created.ID, result.ID)
		assert.Equal("sk-stripe-key", result.Value["apiKey"])
		assert.Equal("payments", result.Metadata["owner"])
	}

	// Case 1: other bot
	{
		_, err := uut.Fetch(utCtx, botFetch(tenant, "stripe-key", "b2"))
		assert.ErrorIs(err, models.ErrForbidden)
	}

	// Case 2: other tenant sees nothing
	{
		_, err := uut.Fetch(utCtx, botFetch(ulid.Make().String(), "stripe-key", "b1"))
		assert.ErrorIs(err, models.ErrNotFound)
	}

	// Case 3: malformed request
	{
		req := botFetch(tenant, "stripe-key", "b1")
		req.RunID = ""
		_, err := uut.Fetch(utCtx, req)
		assert.ErrorIs(err, models.ErrBadRequest)
	}

	// Only the successful fetch moves the counters
	described, err := uut.Describe(utCtx, tenant, created.ID, userActor("admin"))
	assert.Nil(err)
	assert.Equal(int64(1), described.AccessCount)
	assert.NotNil(described.LastAccessedBy)
	assert.Equal("bot:b1/run:run-1", *described.LastAccessedBy)
	assert.Nil(described.EncryptedValue)

	entries := accessLogFor(t, uut, tenant, "stripe-key")
	actions := map[models.AccessActionENUMType]int{}
	for _, entry := range entries {
		actions[entry.Action]++
	}
	assert.Equal(1, actions[models.AccessActionCreate])
	assert.Equal(2, actions[models.AccessActionDecrypt])
	assert.Equal(1, actions[models.AccessActionRead])
	assert.Equal(
		[]models.DenialReasonENUMType{models.DenialReasonScopeBotNotAllowed},
		denialReasons(entries),
	)
	for _, entry := range entries {
		if entry.Action == models.AccessActionDecrypt && !entry.Success {
			assert.NotNil(entry.BotID)
			assert.Equal("b2", *entry.BotID)
		}
	}

	assert.Nil(testutil.GatherAndCompare(fixture.registry, strings.NewReader(`
# HELP strongbox_vault_fetch_total Credential fetches by outcome. Denied fetches carry the denial reason.
# TYPE strongbox_vault_fetch_total counter
strongbox_vault_fetch_total{outcome="failure",reason="CREDENTIAL_NOT_FOUND"} 1
strongbox_vault_fetch_total{outcome="failure",reason="SCOPE_BOT_NOT_ALLOWED"} 1
strongbox_vault_fetch_total{outcome="success",reason="none"} 1
`), "strongbox_vault_fetch_total"))
}

func TestVaultEnvironmentScope(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	utCtx := context.Background()

	uut := newTestFixture(t, fixtureOptions{}).uut

	tenant := ulid.Make().String()

	req := newBotCredentialRequest(tenant, "db-password")
	req.Scope = models.CredentialScopeEnvironment
	req.AllowedEnvironments = []string{"prod"}
	_, err := uut.Create(utCtx, req)
	assert.Nil(err)

	prod := "prod"
	staging := "staging"

	fetch := botFetch(tenant, "db-password", "b1")
	_, err = uut.Fetch(utCtx, fetch)
	assert.ErrorIs(err, models.ErrForbidden)

	fetch.Environment = &staging
	_, err = uut.Fetch(utCtx, fetch)
	assert.ErrorIs(err, models.ErrForbidden)

	fetch.Environment = &prod
	_, err = uut.Fetch(utCtx, fetch)
	assert.Nil(err)

	assert.Equal(
		[]models.DenialReasonENUMType{
			models.DenialReasonScopeEnvMissing, models.DenialReasonScopeEnvNotAllowed,
		},
		denialReasons(accessLogFor(t, uut, tenant, "db-password")),
	)

	// A scope with no allow list is rejected up front
	bad := newBotCredentialRequest(tenant, "other")
	_, err = uut.Create(utCtx, bad)
	assert.ErrorIs(err, models.ErrBadRequest)
}

func TestVaultBulkFetch(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	utCtx := context.Background()

	fixture := newTestFixture(t, fixtureOptions{})
	uut := fixture.uut

	tenant := ulid.Make().String()

	_, err := uut.Create(utCtx, newBotCredentialRequest(tenant, "A", "b1"))
	assert.Nil(err)
	credC, err := uut.Create(utCtx, newBotCredentialRequest(tenant, "C", "b1"))
	assert.Nil(err)
	forceExpired(t, fixture.store, credC.ID)

	result, err := uut.BulkFetch(utCtx, vault.BulkFetchRequest{
		TenantID:       tenant,
		RunnerID:       "runner-1",
		RunID:          "run-1",
		BotID:          "b1",
		CredentialKeys: []string{"A", "B", "C", "A"},
	})
	assert.Nil(err)
	assert.Len(result.Credentials, 1)
	assert.Equal("sk-A", result.Credentials["A"]["apiKey"])
	assert.Len(result.Errors, 2)
	assert.Contains(result.Errors["B"], "not found")
	assert.Contains(result.Errors["C"], "expired")

	// Each key was audited once
	assert.Len(accessLogFor(t, uut, tenant, "B"), 1)
	assert.Equal(
		[]models.DenialReasonENUMType{models.DenialReasonCredentialExpired},
		denialReasons(accessLogFor(t, uut, tenant, "C")),
	)

	// Empty key list is not a request
	_, err = uut.BulkFetch(utCtx, vault.BulkFetchRequest{
		TenantID: tenant, RunnerID: "runner-1", RunID: "run-1", BotID: "b1",
	})
	assert.ErrorIs(err, models.ErrBadRequest)
}

func TestVaultCancelledFetch(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	fixture := newTestFixture(t, fixtureOptions{})
	uut := fixture.uut

	tenant := ulid.Make().String()
	_, err := uut.Create(context.Background(), newBotCredentialRequest(tenant, "A", "b1"))
	assert.Nil(err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = uut.Fetch(ctx, botFetch(tenant, "A", "b1"))
	assert.ErrorIs(err, context.Canceled)

	// The audit entry is written regardless of the cancellation
	assert.Equal(
		[]models.DenialReasonENUMType{models.DenialReasonRequestCancelled},
		denialReasons(accessLogFor(t, uut, tenant, "A")),
	)
}

func TestVaultMutations(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	utCtx := context.Background()

	uut := newTestFixture(t, fixtureOptions{}).uut

	tenant := ulid.Make().String()
	admin := userActor("admin")

	created, err := uut.Create(utCtx, newBotCredentialRequest(tenant, "stripe-key", "b1"))
	assert.Nil(err)

	// Case 0: duplicate key
	{
		_, err := uut.Create(utCtx, newBotCredentialRequest(tenant, "stripe-key", "b1"))
		assert.ErrorIs(err, models.ErrConflict)
	}

	// Case 1: value update at the observed version
	target := vault.MutationTarget{
		TenantID: tenant, CredentialID: created.ID, ExpectedVersion: 1, Actor: admin,
	}
	updated, err := uut.UpdateValue(utCtx, vault.UpdateValueRequest{
		MutationTarget: target, Value: models.CredentialValue{"apiKey": "sk-new"},
	})
	assert.Nil(err)
	assert.Equal(2, updated.Version)

	// Case 2: stale writer
	{
		_, err := uut.UpdateValue(utCtx, vault.UpdateValueRequest{
			MutationTarget: target, Value: models.CredentialValue{"apiKey": "sk-stale"},
		})
		assert.ErrorIs(err, models.ErrVersionConflict)
		assert.ErrorIs(err, models.ErrConflict)
	}
	{
		result, err := uut.Fetch(utCtx, botFetch(tenant, "stripe-key", "b1"))
		assert.Nil(err)
		assert.Equal("sk-new", result.Value["apiKey"])
	}

	// Case 3: metadata update
	target.ExpectedVersion = 2
	newName := "Stripe live key"
	newBots := []string{"b1", "b2"}
	updated, err = uut.UpdateMetadata(utCtx, vault.UpdateMetadataRequest{
		MutationTarget: target, Name: &newName, AllowedBotIDs: &newBots,
	})
	assert.Nil(err)
	assert.Equal(3, updated.Version)
	assert.Equal(newName, updated.Name)
	{
		_, err := uut.Fetch(utCtx, botFetch(tenant, "stripe-key", "b2"))
		assert.Nil(err)
	}

	// Case 4: deactivate, then reactivate
	target.ExpectedVersion = 0
	updated, err = uut.SetStatus(utCtx, vault.SetStatusRequest{
		MutationTarget: target, Status: models.CredentialStatusInactive,
	})
	assert.Nil(err)
	assert.Equal(4, updated.Version)
	{
		_, err := uut.Fetch(utCtx, botFetch(tenant, "stripe-key", "b1"))
		assert.ErrorIs(err, models.ErrForbidden)
	}
	updated, err = uut.SetStatus(utCtx, vault.SetStatusRequest{
		MutationTarget: target, Status: models.CredentialStatusActive,
	})
	assert.Nil(err)
	assert.Equal(5, updated.Version)

	// Case 5: cross tenant mutation
	{
		other := target
		other.TenantID = ulid.Make().String()
		_, err := uut.SetStatus(utCtx, vault.SetStatusRequest{
			MutationTarget: other, Status: models.CredentialStatusInactive,
		})
		assert.ErrorIs(err, models.ErrForbidden)
		entries, err := uut.ListAccessLog(utCtx, other.TenantID, db.AccessLogQueryFilter{})
		assert.Nil(err)
		assert.Equal(
			[]models.DenialReasonENUMType{models.DenialReasonCrossTenant}, denialReasons(entries),
		)
	}

	// Case 6: revoke is terminal
	updated, err = uut.Revoke(utCtx, vault.RevokeRequest{MutationTarget: target, Reason: "leaked"})
	assert.Nil(err)
	assert.Equal(models.CredentialStatusRevoked, updated.Status)
	assert.Equal(6, updated.Version)
	assert.NotNil(updated.RevokedAt)
	{
		_, err := uut.Revoke(utCtx, vault.RevokeRequest{MutationTarget: target, Reason: "again"})
		assert.ErrorIs(err, models.ErrBadRequest)
		_, err = uut.SetStatus(utCtx, vault.SetStatusRequest{
			MutationTarget: target, Status: models.CredentialStatusActive,
		})
		assert.ErrorIs(err, models.ErrBadRequest)
		_, err = uut.Fetch(utCtx, botFetch(tenant, "stripe-key", "b1"))
		assert.ErrorIs(err, models.ErrForbidden)
	}

	// Version never went backwards, and every step was audited
	entries, err := uut.ListAccessLog(utCtx, tenant, db.AccessLogQueryFilter{
		TargetCredentialID: &created.ID,
		TargetActions: []models.AccessActionENUMType{
			models.AccessActionUpdate, models.AccessActionRevoke,
		},
	})
	assert.Nil(err)
	assert.Len(entries, 8)
	assert.Contains(denialReasons(entries), models.DenialReasonVersionConflict)
	assert.Contains(denialReasons(entries), models.DenialReasonInvalidTransition)
}

func TestVaultRotation(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	utCtx := context.Background()

	fixture := newTestFixture(t, fixtureOptions{})
	uut := fixture.uut

	tenant := ulid.Make().String()
	admin := userActor("admin")

	interval := 30
	req := newBotCredentialRequest(tenant, "rotating", "b1")
	req.RotationEnabled = true
	req.RotationIntervalDays = &interval
	created, err := uut.Create(utCtx, req)
	assert.Nil(err)
	assert.NotNil(created.NextRotationAt)

	// Rotation enabled without an interval
	{
		bad := newBotCredentialRequest(tenant, "bad", "b1")
		bad.RotationEnabled = true
		_, err := uut.Create(utCtx, bad)
		assert.ErrorIs(err, models.ErrBadRequest)
	}

	// Not yet due
	due, err := uut.ListRotationDue(utCtx, tenant, 0)
	assert.Nil(err)
	assert.Empty(due)
	due, err = uut.ListRotationDue(utCtx, tenant, 31*24*time.Hour)
	assert.Nil(err)
	assert.Len(due, 1)

	// Case 0: rotate with a new value
	rotated, err := uut.Rotate(utCtx, vault.RotateRequest{
		MutationTarget: vault.MutationTarget{
			TenantID: tenant, CredentialID: created.ID, ExpectedVersion: 1, Actor: admin,
		},
		NewValue: models.CredentialValue{"apiKey": "sk-rotated"},
	})
	assert.Nil(err)
	assert.Equal(2, rotated.Credential.Version)
	assert.True(rotated.History.Success)
	assert.True(rotated.History.ValueChanged)
	assert.Equal(models.RotationTriggerManual, rotated.History.Trigger)
	assert.NotNil(rotated.Credential.LastRotatedAt)
	{
		result, err := uut.Fetch(utCtx, botFetch(tenant, "rotating", "b1"))
		assert.Nil(err)
		assert.Equal("sk-rotated", result.Value["apiKey"])
	}

	// Case 1: rotate a new DEK in, then migrate onto it
	oldKeyID := *rotated.Credential.DEKID
	newKey, err := uut.RotateDataKey(utCtx)
	assert.Nil(err)
	assert.NotEqual(oldKeyID, newKey.ID)
	keys := uut.ListDataKeys()
	assert.Len(keys, 2)
	for _, key := range keys {
		assert.Equal(key.ID == newKey.ID, key.Active)
	}

	report, err := uut.ReencryptAll(utCtx, tenant, admin)
	assert.Nil(err)
	assert.Equal([]string{"rotating"}, report.Migrated)
	assert.Empty(report.Errors)
	{
		described, err := uut.Describe(utCtx, tenant, created.ID, admin)
		assert.Nil(err)
		assert.Equal(newKey.ID, *described.DEKID)
		assert.Equal(3, described.Version)

		result, err := uut.Fetch(utCtx, botFetch(tenant, "rotating", "b1"))
		assert.Nil(err)
		assert.Equal("sk-rotated", result.Value["apiKey"])
	}

	// Case 2: nothing left to migrate
	report, err = uut.ReencryptAll(utCtx, tenant, admin)
	assert.Nil(err)
	assert.Empty(report.Migrated)

	// Case 3: revoked credentials can not be rotated, and nothing is recorded
	_, err = uut.Revoke(utCtx, vault.RevokeRequest{
		MutationTarget: vault.MutationTarget{TenantID: tenant, CredentialID: created.ID, Actor: admin},
		Reason:         "retired",
	})
	assert.Nil(err)
	{
		_, err := uut.Rotate(utCtx, vault.RotateRequest{
			MutationTarget: vault.MutationTarget{
				TenantID: tenant, CredentialID: created.ID, Actor: admin,
			},
		})
		assert.ErrorIs(err, models.ErrBadRequest)
	}

	history, err := uut.ListRotationHistory(utCtx, tenant, db.RotationHistoryQueryFilter{
		TargetCredentialID: &created.ID,
	})
	assert.Nil(err)
	assert.Len(history, 2)
	assert.Equal(models.RotationTriggerForced, history[1].Trigger)
	assert.Equal(oldKeyID, *history[1].PreviousDEKID)
	assert.Equal(newKey.ID, *history[1].NewDEKID)

	assert.Nil(testutil.GatherAndCompare(fixture.registry, strings.NewReader(`
# HELP strongbox_vault_rotation_total Credential rotation attempts by trigger and outcome.
# TYPE strongbox_vault_rotation_total counter
strongbox_vault_rotation_total{outcome="success",trigger="FORCED"} 1
strongbox_vault_rotation_total{outcome="success",trigger="MANUAL"} 1
`), "strongbox_vault_rotation_total"))
}

func TestVaultDelete(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	utCtx := context.Background()

	uut := newTestFixture(t, fixtureOptions{}).uut

	tenant := ulid.Make().String()
	admin := userActor("admin")

	created, err := uut.Create(utCtx, newBotCredentialRequest(tenant, "doomed", "b1"))
	assert.Nil(err)

	// Case 0: stale version
	{
		err := uut.Delete(utCtx, vault.DeleteRequest{MutationTarget: vault.MutationTarget{
			TenantID: tenant, CredentialID: created.ID, ExpectedVersion: 7, Actor: admin,
		}})
		assert.ErrorIs(err, models.ErrVersionConflict)
	}

	assert.Nil(uut.Delete(utCtx, vault.DeleteRequest{MutationTarget: vault.MutationTarget{
		TenantID: tenant, CredentialID: created.ID, ExpectedVersion: 1, Actor: admin,
	}}))

	_, err = uut.Fetch(utCtx, botFetch(tenant, "doomed", "b1"))
	assert.ErrorIs(err, models.ErrNotFound)

	{
		err := uut.Delete(utCtx, vault.DeleteRequest{MutationTarget: vault.MutationTarget{
			TenantID: tenant, CredentialID: created.ID, Actor: admin,
		}})
		assert.ErrorIs(err, models.ErrNotFound)
	}

	// The deletion outlives the record
	entries, err := uut.ListAccessLog(utCtx, tenant, db.AccessLogQueryFilter{
		TargetCredentialID: &created.ID,
		TargetActions:      []models.AccessActionENUMType{models.AccessActionDelete},
		Success:            &[]bool{true}[0],
	})
	assert.Nil(err)
	assert.Len(entries, 1)
	assert.Equal("doomed", entries[0].CredentialKey)
	assert.Equal("admin", *entries[0].UserID)
}

func TestVaultAuditFailureDoesNotChangeOutcome(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	utCtx := context.Background()

	audit := mocks.NewAuditSink(t)
	audit.On("RecordAccess", mock.Anything, mock.Anything).Return(fmt.Errorf("audit store offline"))

	fixture := newTestFixture(t, fixtureOptions{audit: audit})
	uut := fixture.uut

	tenant := ulid.Make().String()

	_, err := uut.Create(utCtx, newBotCredentialRequest(tenant, "stripe-key", "b1"))
	assert.Nil(err)

	result, err := uut.Fetch(utCtx, botFetch(tenant, "stripe-key", "b1"))
	assert.Nil(err)
	assert.Equal("sk-stripe-key", result.Value["apiKey"])

	_, err = uut.Fetch(utCtx, botFetch(tenant, "stripe-key", "b2"))
	assert.ErrorIs(err, models.ErrForbidden)

	assert.Nil(testutil.GatherAndCompare(fixture.registry, strings.NewReader(`
# HELP strongbox_vault_audit_write_failures_total Audit entries which could not be recorded.
# TYPE strongbox_vault_audit_write_failures_total counter
strongbox_vault_audit_write_failures_total 3
`), "strongbox_vault_audit_write_failures_total"))
}

func TestVaultStatsAndExpiry(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	utCtx := context.Background()

	fixture := newTestFixture(t, fixtureOptions{})
	uut := fixture.uut

	tenant := ulid.Make().String()
	admin := userActor("admin")

	// Expiring in 10 days
	soon := time.Now().UTC().Add(10 * 24 * time.Hour)
	req := newBotCredentialRequest(tenant, "expiring", "b1")
	req.ExpiresAt = &soon
	_, err := uut.Create(utCtx, req)
	assert.Nil(err)

	// Already expired
	expired, err := uut.Create(utCtx, newBotCredentialRequest(tenant, "expired", "b1"))
	assert.Nil(err)
	forceExpired(t, fixture.store, expired.ID)

	// Rotation due within the week
	interval := 3
	req = newBotCredentialRequest(tenant, "rotating", "b1")
	req.Type = models.CredentialTypeUsernamePassword
	req.RotationEnabled = true
	req.RotationIntervalDays = &interval
	_, err = uut.Create(utCtx, req)
	assert.Nil(err)

	// Past expiration can not be set
	{
		past := time.Now().UTC().Add(-time.Minute)
		req := newBotCredentialRequest(tenant, "late", "b1")
		req.ExpiresAt = &past
		_, err := uut.Create(utCtx, req)
		assert.ErrorIs(err, models.ErrBadRequest)
	}

	stats, err := uut.GetStats(utCtx, tenant)
	assert.Nil(err)
	assert.Equal(int64(3), stats.Total)
	assert.Equal(int64(2), stats.ByType[models.CredentialTypeAPIKey])
	assert.Equal(int64(1), stats.ByType[models.CredentialTypeUsernamePassword])
	assert.Equal(int64(3), stats.ByStatus[models.CredentialStatusActive])
	assert.Equal(int64(3), stats.ByScope[models.CredentialScopeBotSpecific])
	assert.Equal(int64(3), stats.ByProvider[models.VaultProviderInternal])
	assert.Equal(int64(1), stats.Expired)
	assert.Equal(int64(1), stats.ExpiringSoon)
	assert.Equal(int64(1), stats.RotationDueSoon)

	// Move the overdue one to EXPIRED
	report, err := uut.ExpireOverdue(utCtx, tenant, admin)
	assert.Nil(err)
	assert.Equal([]string{"expired"}, report.Expired)
	assert.Empty(report.Errors)

	stats, err = uut.GetStats(utCtx, tenant)
	assert.Nil(err)
	assert.Equal(int64(2), stats.ByStatus[models.CredentialStatusActive])
	assert.Equal(int64(1), stats.ByStatus[models.CredentialStatusExpired])

	// An expired credential comes back only through rotation with a new value
	{
		_, err := uut.Rotate(utCtx, vault.RotateRequest{MutationTarget: vault.MutationTarget{
			TenantID: tenant, CredentialID: expired.ID, Actor: admin,
		}})
		assert.ErrorIs(err, models.ErrBadRequest)
	}

	// Other tenants are empty
	stats, err = uut.GetStats(utCtx, ulid.Make().String())
	assert.Nil(err)
	assert.Equal(int64(0), stats.Total)
}

type staticProvider struct {
	values map[string]models.CredentialValue
}

func (p *staticProvider) FetchSecret(
	_ context.Context, reference string,
) (models.CredentialValue, error) {
	value, ok := p.values[reference]
	if !ok {
		return nil, fmt.Errorf("secret %s [%w]", reference, models.ErrNotFound)
	}
	return value, nil
}

func TestVaultExternalCredentials(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	utCtx := context.Background()

	dispatcher := external.NewDispatcher()
	assert.Nil(dispatcher.Register(models.VaultProviderHashicorp, &staticProvider{
		values: map[string]models.CredentialValue{
			"secret/data/payments": {"apiKey": "sk-from-vault"},
		},
	}))

	fixture := newTestFixture(t, fixtureOptions{external: dispatcher})
	uut := fixture.uut

	tenant := ulid.Make().String()

	newExternal := func(key string, provider models.VaultProviderENUMType, ref string) error {
		req := newBotCredentialRequest(tenant, key, "b1")
		req.Provider = provider
		req.Value = nil
		req.ExternalReference = &ref
		_, err := uut.Create(utCtx, req)
		return err
	}

	assert.Nil(newExternal("hashi", models.VaultProviderHashicorp, "secret/data/payments"))
	assert.Nil(newExternal("hashi-missing", models.VaultProviderHashicorp, "secret/data/gone"))
	assert.Nil(newExternal("azure", models.VaultProviderAzureKeyVault, "kv/payments"))

	// An external credential can not carry a local value
	{
		req := newBotCredentialRequest(tenant, "both", "b1")
		req.Provider = models.VaultProviderHashicorp
		ref := "secret/data/payments"
		req.ExternalReference = &ref
		_, err := uut.Create(utCtx, req)
		assert.ErrorIs(err, models.ErrBadRequest)
	}

	result, err := uut.Fetch(utCtx, botFetch(tenant, "hashi", "b1"))
	assert.Nil(err)
	assert.Equal("sk-from-vault", result.Value["apiKey"])

	_, err = uut.Fetch(utCtx, botFetch(tenant, "hashi-missing", "b1"))
	assert.ErrorIs(err, models.ErrNotFound)

	_, err = uut.Fetch(utCtx, botFetch(tenant, "azure", "b1"))
	assert.ErrorIs(err, models.ErrProviderNotSupported)
	assert.Equal(
		[]models.DenialReasonENUMType{models.DenialReasonExternalProviderFail},
		denialReasons(accessLogFor(t, uut, tenant, "azure")),
	)

	// External credentials are rotated in their own vault
	described, err := uut.List(utCtx, tenant, db.CredentialQueryFilter{
		TargetProviders: []models.VaultProviderENUMType{models.VaultProviderHashicorp},
	})
	assert.Nil(err)
	assert.Len(described, 2)
	_, err = uut.Rotate(utCtx, vault.RotateRequest{
		MutationTarget: vault.MutationTarget{TenantID: tenant, CredentialID: described[0].ID},
		NewValue:       models.CredentialValue{"apiKey": "sk-x"},
	})
	assert.ErrorIs(err, models.ErrBadRequest)
}

func TestVaultWithoutExternalAdapter(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	utCtx := context.Background()

	uut := newTestFixture(t, fixtureOptions{}).uut

	tenant := ulid.Make().String()
	ref := "prod/payments"
	req := newBotCredentialRequest(tenant, "aws", "b1")
	req.Provider = models.VaultProviderAWSSecretsManager
	req.Value = nil
	req.ExternalReference = &ref
	_, err := uut.Create(utCtx, req)
	assert.Nil(err)

	_, err = uut.Fetch(utCtx, botFetch(tenant, "aws", "b1"))
	assert.ErrorIs(err, models.ErrProviderNotSupported)
}

func TestVaultFolders(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	utCtx := context.Background()

	uut := newTestFixture(t, fixtureOptions{}).uut

	tenant := ulid.Make().String()

	infra, err := uut.CreateFolder(utCtx, vault.CreateFolderRequest{TenantID: tenant, Name: "infra"})
	assert.Nil(err)
	assert.Equal("/infra", infra.Path)

	databases, err := uut.CreateFolder(utCtx, vault.CreateFolderRequest{
		TenantID: tenant, Name: "databases", ParentID: &infra.ID,
	})
	assert.Nil(err)
	assert.Equal("/infra/databases", databases.Path)

	// Same path twice
	{
		_, err := uut.CreateFolder(utCtx, vault.CreateFolderRequest{TenantID: tenant, Name: "infra"})
		assert.ErrorIs(err, models.ErrConflict)
	}

	// Name with a separator
	{
		_, err := uut.CreateFolder(utCtx, vault.CreateFolderRequest{TenantID: tenant, Name: "a/b"})
		assert.ErrorIs(err, models.ErrBadRequest)
	}

	children, err := uut.ListFolders(utCtx, tenant, db.FolderQueryFilter{TargetParentID: &infra.ID})
	assert.Nil(err)
	assert.Len(children, 1)
	assert.Equal(databases.ID, children[0].ID)

	req := newBotCredentialRequest(tenant, "pg", "b1")
	req.FolderID = &databases.ID
	created, err := uut.Create(utCtx, req)
	assert.Nil(err)

	// Unknown folder
	{
		req := newBotCredentialRequest(tenant, "lost", "b1")
		folderID := "5b7a3c4e-6b62-4f7e-9c1e-3a6f0c2d9e11"
		req.FolderID = &folderID
		_, err := uut.Create(utCtx, req)
		assert.ErrorIs(err, models.ErrNotFound)
	}

	inFolder, err := uut.List(utCtx, tenant, db.CredentialQueryFilter{TargetFolderID: &databases.ID})
	assert.Nil(err)
	assert.Len(inFolder, 1)
	assert.Equal(created.ID, inFolder[0].ID)

	// Move out of the folder
	noFolder := ""
	moved, err := uut.UpdateMetadata(utCtx, vault.UpdateMetadataRequest{
		MutationTarget: vault.MutationTarget{TenantID: tenant, CredentialID: created.ID},
		FolderID:       &noFolder,
	})
	assert.Nil(err)
	assert.Nil(moved.FolderID)
}
