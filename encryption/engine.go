package encryption

import (
	"crypto/hmac"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/alwitt/goutils"
	"github.com/alwitt/strongbox/models"
	"github.com/apex/log"
)

// EncryptedBundle the output of one content encryption
type EncryptedBundle struct {
	// KeyID ID of the DEK used
	KeyID string
	// IV the GCM nonce
	IV []byte
	// AuthTag the GCM authentication tag
	AuthTag []byte
	// Ciphertext the encrypted content, without the tag
	Ciphertext []byte
}

// Engine content encryption with the data encryption keys
type Engine interface {
	/*
		Encrypt encrypt content with the active DEK

			@param plaintext []byte - the content
			@returns the encrypted bundle
	*/
	Encrypt(plaintext []byte) (EncryptedBundle, error)

	/*
		Decrypt decrypt a bundle with the DEK it names. Every failure returns
		models.ErrDecryptionFailure.

			@param bundle EncryptedBundle - the encrypted bundle
			@returns the content
	*/
	Decrypt(bundle EncryptedBundle) ([]byte, error)

	/*
		EncryptValue encrypt a credential value into its at-rest encoding

			@param value models.CredentialValue - the credential value
			@returns the encoded bundle
	*/
	EncryptValue(value models.CredentialValue) (string, error)

	/*
		DecryptValue decrypt an at-rest encoded bundle into a credential value

			@param encoded string - the encoded bundle
			@returns the credential value
	*/
	DecryptValue(encoded string) (models.CredentialValue, error)

	/*
		Reencrypt decrypt an encoded bundle, then encrypt the same content with the active DEK

			@param encoded string - the encoded bundle
			@returns the new encoded bundle
	*/
	Reencrypt(encoded string) (string, error)

	/*
		Hash compute the keyed digest of the data, hex encoded

			@param data []byte - the data
			@returns the digest
	*/
	Hash(data []byte) (string, error)

	/*
		VerifyHash check the data against a digest from Hash, in constant time

			@param data []byte - the data
			@param digest string - the expected digest
			@returns whether they match
	*/
	VerifyHash(data []byte, digest string) bool

	/*
		ActiveKeyID ID of the DEK new encryptions use

			@returns the key ID
	*/
	ActiveKeyID() (string, error)
}

// engineImpl implements Engine
type engineImpl struct {
	goutils.Component
	keys KeyManager
}

/*
NewEngine define a new encryption engine

	@param keys KeyManager - the key manager
	@returns engine
*/
func NewEngine(keys KeyManager) (Engine, error) {
	if keys == nil {
		return nil, fmt.Errorf("key manager not provided [%w]", models.ErrFatal)
	}
	return &engineImpl{
		Component: goutils.Component{
			LogTags: log.Fields{"module": "encryption", "component": "engine"},
			LogTagModifiers: []goutils.LogMetadataModifier{
				goutils.ModifyLogMetadataByRestRequestParam,
			},
		},
		keys: keys,
	}, nil
}

// withDEK run the callback with access to the DEK material
func withDEK(key DataEncryptionKey, callback func(material []byte) error) error {
	if key.material == nil {
		return fmt.Errorf("data key %s has no material", key.ID)
	}
	buf, err := key.material.Open()
	if err != nil {
		return fmt.Errorf("failed to open data key %s enclave [%w]", key.ID, err)
	}
	defer buf.Destroy()
	return callback(buf.Bytes())
}

func (e *engineImpl) Encrypt(plaintext []byte) (EncryptedBundle, error) {
	key, err := e.keys.GetActiveDEK()
	if err != nil {
		return EncryptedBundle{}, err
	}

	iv, err := randomIV()
	if err != nil {
		return EncryptedBundle{}, err
	}

	var sealed []byte
	if err := withDEK(key, func(material []byte) error {
		aead, err := newAESGCM(material)
		if err != nil {
			return err
		}
		sealed = aead.Seal(nil, iv, plaintext, []byte(key.ID))
		return nil
	}); err != nil {
		return EncryptedBundle{}, fmt.Errorf("content encryption failed [%w]", err)
	}

	// GCM appends the tag to the ciphertext
	split := len(sealed) - AuthTagLength
	return EncryptedBundle{
		KeyID:      key.ID,
		IV:         iv,
		AuthTag:    sealed[split:],
		Ciphertext: sealed[:split],
	}, nil
}

func (e *engineImpl) Decrypt(bundle EncryptedBundle) ([]byte, error) {
	if len(bundle.IV) != IVLength || len(bundle.AuthTag) != AuthTagLength {
		return nil, models.ErrDecryptionFailure
	}
	key, err := e.keys.GetDEK(bundle.KeyID)
	if err != nil {
		return nil, models.ErrDecryptionFailure
	}

	sealed := make([]byte, 0, len(bundle.Ciphertext)+AuthTagLength)
	sealed = append(sealed, bundle.Ciphertext...)
	sealed = append(sealed, bundle.AuthTag...)

	var plaintext []byte
	if err := withDEK(key, func(material []byte) error {
		aead, err := newAESGCM(material)
		if err != nil {
			return err
		}
		plaintext, err = aead.Open(nil, bundle.IV, sealed, []byte(bundle.KeyID))
		return err
	}); err != nil {
		log.WithFields(e.LogTags).
			WithField("key-id", bundle.KeyID).
			Debug("Content decryption failed")
		return nil, models.ErrDecryptionFailure
	}

	return plaintext, nil
}

func (e *engineImpl) EncryptValue(value models.CredentialValue) (string, error) {
	serialized, err := json.Marshal(value)
	if err != nil {
		return "", fmt.Errorf("credential value not serializable [%w]", models.ErrBadRequest)
	}
	bundle, err := e.Encrypt(serialized)
	if err != nil {
		return "", err
	}
	return Encode(bundle), nil
}

func (e *engineImpl) DecryptValue(encoded string) (models.CredentialValue, error) {
	bundle, err := ParseEncoded(encoded)
	if err != nil {
		return nil, err
	}
	plaintext, err := e.Decrypt(bundle)
	if err != nil {
		return nil, err
	}
	var value models.CredentialValue
	if err := json.Unmarshal(plaintext, &value); err != nil {
		return nil, models.ErrDecryptionFailure
	}
	return value, nil
}

func (e *engineImpl) Reencrypt(encoded string) (string, error) {
	bundle, err := ParseEncoded(encoded)
	if err != nil {
		return "", err
	}
	plaintext, err := e.Decrypt(bundle)
	if err != nil {
		return "", err
	}
	newBundle, err := e.Encrypt(plaintext)
	if err != nil {
		return "", err
	}
	return Encode(newBundle), nil
}

func (e *engineImpl) Hash(data []byte) (string, error) {
	digest, err := e.keys.RootKey().MAC(data)
	if err != nil {
		return "", fmt.Errorf("failed to compute digest [%w]", err)
	}
	return hex.EncodeToString(digest), nil
}

func (e *engineImpl) VerifyHash(data []byte, digest string) bool {
	expected, err := hex.DecodeString(digest)
	if err != nil {
		return false
	}
	actual, err := e.keys.RootKey().MAC(data)
	if err != nil {
		return false
	}
	return hmac.Equal(actual, expected)
}

func (e *engineImpl) ActiveKeyID() (string, error) {
	key, err := e.keys.GetActiveDEK()
	if err != nil {
		return "", err
	}
	return key.ID, nil
}
