// Package models - system data models
package models

import (
	"fmt"
	"time"
)

// EncryptionKeyStateENUMType encryption state enum type
type EncryptionKeyStateENUMType string

const (
	// EncryptionKeyStateActive the encryption key is active
	EncryptionKeyStateActive EncryptionKeyStateENUMType = "ACTIVE"
	// EncryptionKeyStateInactive the encryption key is inactive
	EncryptionKeyStateInactive EncryptionKeyStateENUMType = "INACTIVE"
)

// DataEncryptionKeyRecord the persisted form of a data encryption key (DEK)
//
// The key material is wrapped by the key-encryption-key (KEK) using AES-256-GCM, with the
// key ID as additional authenticated data.
type DataEncryptionKeyRecord struct {
	// ID key ID
	ID string `json:"id" gorm:"column:id;primaryKey;unique" validate:"required,uuid_rfc4122"`

	// WrappedKeyMaterial the KEK wrapped key material
	WrappedKeyMaterial []byte `json:"wrapped_key_material" gorm:"column:wrapped_key_material;not null" validate:"required"`
	// WrapNonce the nonce used when wrapping the key material
	WrapNonce []byte `json:"wrap_nonce" gorm:"column:wrap_nonce;not null" validate:"required"`

	// State the encryption key state
	State EncryptionKeyStateENUMType `json:"state" gorm:"column:state;not null" validate:"required,enc_key_state"`

	// CreatedAt entry creation timestamp
	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt entry update timestamp
	UpdatedAt time.Time `json:"updated_at"`
}

// IsActive whether new bundles are encrypted with this key
func (e *DataEncryptionKeyRecord) IsActive() bool {
	return e.State == EncryptionKeyStateActive
}

// ValidateNextState verify can transition to new state
//
// An inactive DEK is retained to decrypt old bundles, but never becomes active again;
// activation only happens through generating a new DEK.
func (e *DataEncryptionKeyRecord) ValidateNextState(newState EncryptionKeyStateENUMType) error {
	switch e.State {
	case EncryptionKeyStateActive:
		if newState == EncryptionKeyStateActive || newState == EncryptionKeyStateInactive {
			return nil
		}
	case EncryptionKeyStateInactive:
		if newState == EncryptionKeyStateInactive {
			return nil
		}
	default:
		return fmt.Errorf("data key can't leave state '%s' [%w]", e.State, ErrConflict)
	}
	return fmt.Errorf(
		"data key can't move from '%s' to '%s' [%w]", e.State, newState, ErrConflict,
	)
}
