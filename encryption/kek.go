// Package encryption - envelope encryption key management and processing engine
package encryption

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"github.com/alwitt/strongbox/models"
	"github.com/awnumar/memguard"
	"golang.org/x/crypto/pbkdf2"
)

const (
	// MinMasterSecretLength the shortest master secret accepted
	MinMasterSecretLength = 32
	// MinKDFIterations the lowest PBKDF2 iteration count accepted
	MinKDFIterations = 300000
	// DefaultKDFIterations PBKDF2 iteration count used when none is configured
	DefaultKDFIterations = 310000
	// KDFSaltLength length of a generated KDF salt
	KDFSaltLength = 16
	// KeyLength AES-256 key length
	KeyLength = 32
	// IVLength AES-GCM nonce length
	IVLength = 12
	// AuthTagLength AES-GCM authentication tag length
	AuthTagLength = 16
)

// kekCheckLabel the fixed input of the KEK check digest
var kekCheckLabel = []byte("strongbox/kek-check/v1")

// KEK the root key-encryption-key. The key material is held in a memguard enclave and
// never leaves this package.
type KEK struct {
	key *memguard.Enclave
}

/*
DeriveRootKey derive the root key-encryption-key from the operator master secret

	@param masterSecret string - the operator master secret
	@param salt []byte - KDF salt
	@param iterations int - PBKDF2 iteration count
	@returns the KEK
*/
func DeriveRootKey(masterSecret string, salt []byte, iterations int) (*KEK, error) {
	if len(masterSecret) < MinMasterSecretLength {
		return nil, fmt.Errorf(
			"master secret shorter than %d characters [%w]", MinMasterSecretLength, models.ErrFatal,
		)
	}
	if iterations < MinKDFIterations {
		return nil, fmt.Errorf(
			"KDF iterations %d below minimum %d [%w]", iterations, MinKDFIterations, models.ErrFatal,
		)
	}
	if len(salt) == 0 {
		return nil, fmt.Errorf("KDF salt missing [%w]", models.ErrFatal)
	}

	derived := pbkdf2.Key([]byte(masterSecret), salt, iterations, KeyLength, sha256.New)
	// NewEnclave wipes the source buffer
	return &KEK{key: memguard.NewEnclave(derived)}, nil
}

// GenerateKDFSalt generate a random KDF salt
func GenerateKDFSalt() ([]byte, error) {
	salt := make([]byte, KDFSaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("failed to read %d bytes from RNG [%w]", KDFSaltLength, err)
	}
	return salt, nil
}

// withKey run the callback with access to the KEK material
func (k *KEK) withKey(callback func(key []byte) error) error {
	buf, err := k.key.Open()
	if err != nil {
		return fmt.Errorf("failed to open KEK enclave [%w]", err)
	}
	defer buf.Destroy()
	return callback(buf.Bytes())
}

// MAC compute HMAC-SHA256 of the data keyed by the KEK
func (k *KEK) MAC(data []byte) ([]byte, error) {
	var digest []byte
	err := k.withKey(func(key []byte) error {
		mac := hmac.New(sha256.New, key)
		_, _ = mac.Write(data)
		digest = mac.Sum(nil)
		return nil
	})
	return digest, err
}

// CheckDigest the digest recorded at first startup, to reject a different master secret
// on later startups
func (k *KEK) CheckDigest() ([]byte, error) {
	return k.MAC(kekCheckLabel)
}

// wrap encrypt data key material with the KEK, binding the data key ID
func (k *KEK) wrap(keyID string, material []byte) (wrapped []byte, nonce []byte, err error) {
	err = k.withKey(func(key []byte) error {
		nonce, err = randomIV()
		if err != nil {
			return err
		}
		aead, err := newAESGCM(key)
		if err != nil {
			return err
		}
		wrapped = aead.Seal(nil, nonce, material, []byte(keyID))
		return nil
	})
	return wrapped, nonce, err
}

// unwrap decrypt data key material with the KEK
func (k *KEK) unwrap(keyID string, wrapped []byte, nonce []byte) ([]byte, error) {
	var material []byte
	err := k.withKey(func(key []byte) error {
		aead, err := newAESGCM(key)
		if err != nil {
			return err
		}
		if len(nonce) != aead.NonceSize() {
			return fmt.Errorf("wrapped data key %s nonce has wrong size", keyID)
		}
		material, err = aead.Open(nil, nonce, wrapped, []byte(keyID))
		if err != nil {
			return fmt.Errorf("failed to unwrap data key %s [%w]", keyID, err)
		}
		return nil
	})
	return material, err
}

// newAESGCM define AES-256-GCM AEAD with 96 bit nonce and 128 bit tag
func newAESGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher [%w]", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM mode [%w]", err)
	}
	return aead, nil
}

// randomIV draw a fresh IV from the system CSPRNG
func randomIV() ([]byte, error) {
	iv := make([]byte, IVLength)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, fmt.Errorf("failed to read %d bytes from RNG [%w]", IVLength, err)
	}
	return iv, nil
}
