package encryption

import (
	"context"
	"crypto/hmac"
	"encoding/hex"
	"fmt"
	"io"
	"sync"
	"time"

	cgoCrypto "github.com/alwitt/cgoutils/crypto"
	"github.com/alwitt/goutils"
	"github.com/alwitt/strongbox/models"
	"github.com/apex/log"
	"github.com/awnumar/memguard"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// KeyStore persistence of the KEK derivation parameters and the wrapped data keys
type KeyStore interface {
	/*
		GetSystemParams fetch the system parameters

			@param ctx context.Context - execution context
			@returns the parameters
	*/
	GetSystemParams(ctx context.Context) (models.SystemParams, error)

	/*
		InitializeKeyHierarchy record the KEK derivation parameters on first startup

			@param ctx context.Context - execution context
			@param params models.KeyHierarchyParams - KEK derivation parameters
	*/
	InitializeKeyHierarchy(ctx context.Context, params models.KeyHierarchyParams) error

	/*
		RecordDataKey persist a new active data key, deactivating the key it supersedes

			@param ctx context.Context - execution context
			@param keyID string - the new data key ID
			@param wrapped []byte - KEK wrapped key material
			@param nonce []byte - wrapping nonce
			@param supersedes *string - the previously active data key, if any
	*/
	RecordDataKey(
		ctx context.Context, keyID string, wrapped []byte, nonce []byte, supersedes *string,
	) error

	/*
		ListDataKeys list all data keys, oldest first

			@param ctx context.Context - execution context
			@returns the wrapped data keys
	*/
	ListDataKeys(ctx context.Context) ([]models.DataEncryptionKeyRecord, error)
}

// DataEncryptionKey a data encryption key (DEK)
//
// The key material is only reachable from within this package.
type DataEncryptionKey struct {
	// ID key ID
	ID string
	// CreatedAt key creation time
	CreatedAt time.Time
	// Active whether this is the active key
	Active bool

	material *memguard.Enclave
}

// KeyManager owns the root KEK and the lifecycle of the data encryption keys
type KeyManager interface {
	/*
		GenerateDEK generate a new data encryption key, and make it the active key. The
		previously active key is retained as inactive.

		This is the only way the active key changes.

			@param ctx context.Context - execution context
			@returns the new key
	*/
	GenerateDEK(ctx context.Context) (DataEncryptionKey, error)

	/*
		GetActiveDEK fetch the active data encryption key

			@returns the active key
	*/
	GetActiveDEK() (DataEncryptionKey, error)

	/*
		GetDEK fetch a data encryption key by ID, active or not

			@param keyID string - the key ID
			@returns the key
	*/
	GetDEK(keyID string) (DataEncryptionKey, error)

	/*
		ListDEKs list all known data encryption keys, oldest first

			@returns the keys
	*/
	ListDEKs() []DataEncryptionKey

	// RootKey the root key-encryption-key
	RootKey() *KEK
}

// keyManagerImpl implements KeyManager
type keyManagerImpl struct {
	goutils.Component

	store KeyStore
	rng   io.Reader
	kek   *KEK

	lock     sync.RWMutex
	keys     map[string]DataEncryptionKey
	keyOrder []string
	activeID *string
}

// KeyManagerParams key manager init parameters
type KeyManagerParams struct {
	// MasterSecret operator supplied master secret
	MasterSecret string `validate:"-"`
	// KDFIterations PBKDF2 iteration count; defaults to DefaultKDFIterations. Once the
	// KDF parameters are recorded in the KeyStore, the recorded values are used.
	KDFIterations int `validate:"omitempty,gte=300000"`
	// KDFSalt KDF salt when no KeyStore is available. A random salt is used if empty.
	KDFSalt []byte `validate:"-"`
	// Store optional persistence for the KDF parameters and wrapped data keys. Without
	// it, data keys exist only in memory.
	Store KeyStore `validate:"-"`
}

/*
NewKeyManager define a new key manager

With a KeyStore, on first startup the KDF salt and the KEK check digest are recorded; on
later startups a master secret producing a different KEK is rejected, then the stored data
keys are unwrapped and loaded.

	@param ctx context.Context - execution context
	@param params KeyManagerParams - manager parameters
	@returns key manager
*/
func NewKeyManager(ctx context.Context, params KeyManagerParams) (KeyManager, error) {
	logTags := log.Fields{"module": "encryption", "component": "key-manager"}

	// DEK material source
	engine, err := cgoCrypto.NewEngine(log.Fields{
		"package": "cgoutils", "module": "crypto", "component": "crypto-engine",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to prepare core cryptography [%w]", err)
	}

	validate := validator.New()
	if err := validate.Struct(&params); err != nil {
		return nil, fmt.Errorf("invalid key manager parameters [%s] [%w]", err.Error(), models.ErrFatal)
	}
	if len(params.MasterSecret) < MinMasterSecretLength {
		return nil, fmt.Errorf(
			"master secret shorter than %d characters [%w]", MinMasterSecretLength, models.ErrFatal,
		)
	}
	if params.KDFIterations == 0 {
		params.KDFIterations = DefaultKDFIterations
	}

	instance := &keyManagerImpl{
		Component: goutils.Component{
			LogTags: logTags,
			LogTagModifiers: []goutils.LogMetadataModifier{
				goutils.ModifyLogMetadataByRestRequestParam,
			},
		},
		store: params.Store,
		rng:   engine.GetRNGReader(),
		keys:  make(map[string]DataEncryptionKey),
	}

	if params.Store == nil {
		salt := params.KDFSalt
		if len(salt) == 0 {
			if salt, err = GenerateKDFSalt(); err != nil {
				return nil, err
			}
		}
		if instance.kek, err = DeriveRootKey(params.MasterSecret, salt, params.KDFIterations); err != nil {
			return nil, err
		}
		return instance, nil
	}

	if err := instance.prepareRootKey(ctx, params); err != nil {
		return nil, err
	}
	if err := instance.loadDataKeys(ctx); err != nil {
		return nil, err
	}

	return instance, nil
}

// prepareRootKey derive the KEK using the stored KDF parameters, or record new ones
func (m *keyManagerImpl) prepareRootKey(ctx context.Context, params KeyManagerParams) error {
	logTags := m.GetLogTagsForContext(ctx)

	sysParams, err := m.store.GetSystemParams(ctx)
	if err != nil {
		return fmt.Errorf("failed to read system parameters [%w]", err)
	}

	if !sysParams.KeyHierarchyReady() {
		// First startup
		salt, err := GenerateKDFSalt()
		if err != nil {
			return err
		}
		if m.kek, err = DeriveRootKey(params.MasterSecret, salt, params.KDFIterations); err != nil {
			return err
		}
		check, err := m.kek.CheckDigest()
		if err != nil {
			return fmt.Errorf("failed to compute KEK check digest [%w]", err)
		}
		if err := m.store.InitializeKeyHierarchy(ctx, models.KeyHierarchyParams{
			KDFSalt:       salt,
			KDFIterations: params.KDFIterations,
			KEKCheck:      hex.EncodeToString(check),
		}); err != nil {
			return fmt.Errorf("failed to record KDF parameters [%w]", err)
		}
		log.WithFields(logTags).
			WithField("iterations", params.KDFIterations).
			Info("Recorded new KEK derivation parameters")
		return nil
	}

	if m.kek, err = DeriveRootKey(
		params.MasterSecret, sysParams.KDFSalt, sysParams.KDFIterations,
	); err != nil {
		return err
	}
	check, err := m.kek.CheckDigest()
	if err != nil {
		return fmt.Errorf("failed to compute KEK check digest [%w]", err)
	}
	expected, err := hex.DecodeString(*sysParams.KEKCheck)
	if err != nil {
		return fmt.Errorf("stored KEK check digest is corrupted [%w]", models.ErrFatal)
	}
	if !hmac.Equal(check, expected) {
		return fmt.Errorf("master secret does not match the stored KEK [%w]", models.ErrFatal)
	}

	return nil
}

// loadDataKeys unwrap and install the stored data keys
func (m *keyManagerImpl) loadDataKeys(ctx context.Context) error {
	logTags := m.GetLogTagsForContext(ctx)

	records, err := m.store.ListDataKeys(ctx)
	if err != nil {
		return fmt.Errorf("failed to list stored data keys [%w]", err)
	}

	m.lock.Lock()
	defer m.lock.Unlock()

	for _, record := range records {
		material, err := m.kek.unwrap(record.ID, record.WrappedKeyMaterial, record.WrapNonce)
		if err != nil {
			return fmt.Errorf("stored data key %s is unreadable [%s] [%w]", record.ID, err, models.ErrFatal)
		}
		active := record.IsActive()
		m.keys[record.ID] = DataEncryptionKey{
			ID:        record.ID,
			CreatedAt: record.CreatedAt,
			Active:    active,
			material:  memguard.NewEnclave(material),
		}
		m.keyOrder = append(m.keyOrder, record.ID)
		if active {
			if m.activeID != nil {
				// Records are oldest first, so the newest active key wins
				log.WithFields(logTags).
					WithField("key-id", *m.activeID).
					Warn("Multiple active data keys stored, using the newest")
				previous := m.keys[*m.activeID]
				previous.Active = false
				m.keys[previous.ID] = previous
			}
			keyID := record.ID
			m.activeID = &keyID
		}
	}

	log.WithFields(logTags).WithField("count", len(records)).Info("Loaded stored data keys")

	return nil
}

/*
GenerateDEK generate a new data encryption key, and make it the active key. The
previously active key is retained as inactive.

	@param ctx context.Context - execution context
	@returns the new key
*/
func (m *keyManagerImpl) GenerateDEK(ctx context.Context) (DataEncryptionKey, error) {
	logTags := m.GetLogTagsForContext(ctx)

	// Concurrent encryption waits until the new key is installed
	m.lock.Lock()
	defer m.lock.Unlock()

	material := make([]byte, KeyLength)
	if n, err := m.rng.Read(material); err != nil {
		return DataEncryptionKey{}, fmt.Errorf("failed to read %d bytes from RNG [%w]", KeyLength, err)
	} else if n != KeyLength {
		return DataEncryptionKey{}, fmt.Errorf("did not get %d bytes from RNG, only %d", KeyLength, n)
	}

	newKey := DataEncryptionKey{ID: uuid.NewString(), CreatedAt: time.Now().UTC(), Active: true}

	if m.store != nil {
		wrapped, nonce, err := m.kek.wrap(newKey.ID, material)
		if err != nil {
			return DataEncryptionKey{}, fmt.Errorf("failed to wrap new data key [%w]", err)
		}
		if err := m.store.RecordDataKey(ctx, newKey.ID, wrapped, nonce, m.activeID); err != nil {
			return DataEncryptionKey{}, fmt.Errorf("failed to record new data key [%w]", err)
		}
	}

	newKey.material = memguard.NewEnclave(material)

	var previousID string
	if m.activeID != nil {
		previous := m.keys[*m.activeID]
		previous.Active = false
		m.keys[previous.ID] = previous
		previousID = previous.ID
	}
	m.keys[newKey.ID] = newKey
	m.keyOrder = append(m.keyOrder, newKey.ID)
	m.activeID = &newKey.ID

	log.WithFields(logTags).
		WithField("key-id", newKey.ID).
		WithField("previous-key-id", previousID).
		Info("Installed new active data key")

	return newKey, nil
}

/*
GetActiveDEK fetch the active data encryption key

	@returns the active key
*/
func (m *keyManagerImpl) GetActiveDEK() (DataEncryptionKey, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()
	if m.activeID == nil {
		return DataEncryptionKey{}, fmt.Errorf("no data key generated yet [%w]", models.ErrFatal)
	}
	return m.keys[*m.activeID], nil
}

/*
GetDEK fetch a data encryption key by ID, active or not

	@param keyID string - the key ID
	@returns the key
*/
func (m *keyManagerImpl) GetDEK(keyID string) (DataEncryptionKey, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()
	key, ok := m.keys[keyID]
	if !ok {
		return DataEncryptionKey{}, fmt.Errorf("data key %s unknown [%w]", keyID, models.ErrNotFound)
	}
	return key, nil
}

/*
ListDEKs list all known data encryption keys, oldest first

	@returns the keys
*/
func (m *keyManagerImpl) ListDEKs() []DataEncryptionKey {
	m.lock.RLock()
	defer m.lock.RUnlock()
	result := make([]DataEncryptionKey, 0, len(m.keyOrder))
	for _, keyID := range m.keyOrder {
		result = append(result, m.keys[keyID])
	}
	return result
}

// RootKey the root key-encryption-key
func (m *keyManagerImpl) RootKey() *KEK {
	return m.kek
}
