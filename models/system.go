package models

import (
	"fmt"
	"time"
)

// SystemStateENUMType key hierarchy lifecycle state ENUM
type SystemStateENUMType string

const (
	// SystemStatePreInit no KEK derivation parameters recorded yet
	SystemStatePreInit SystemStateENUMType = "PRE_INITIALIZATION"
	// SystemStateInit KEK derivation parameters are being recorded
	SystemStateInit SystemStateENUMType = "INITIALIZING"
	// SystemStateRunning the KEK can be derived and verified from the master secret
	SystemStateRunning SystemStateENUMType = "RUNNING"
)

/*
SystemParams singleton record of the key hierarchy.

The master secret is never stored. Only the KDF salt and iteration count needed to
re-derive the KEK, plus a digest which proves a derived KEK is the right one.
*/
type SystemParams struct {
	// ID param entry ID. It must always be system-parameters
	ID string `json:"id" gorm:"column:id;primaryKey;unique" validate:"required,oneof=system-parameters"`

	// State key hierarchy lifecycle state
	State SystemStateENUMType `json:"state" gorm:"column:state;not null" validate:"required,system_state"`

	// KDFSalt salt used when deriving the KEK from the master secret
	KDFSalt []byte `json:"kdf_salt,omitempty" gorm:"column:kdf_salt;default:null"`
	// KDFIterations PBKDF2 iteration count used with KDFSalt
	KDFIterations int `json:"kdf_iterations,omitempty" gorm:"column:kdf_iterations;default:null"`
	// KEKCheck hex HMAC digest computed with the KEK over a fixed label
	KEKCheck *string `json:"kek_check,omitempty" gorm:"column:kek_check;default:null"`

	// CreatedAt entry creation timestamp
	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt entry update timestamp
	UpdatedAt time.Time `json:"updated_at"`
}

// KeyHierarchyReady whether the KEK derivation parameters are recorded
func (p *SystemParams) KeyHierarchyReady() bool {
	return p.State == SystemStateRunning && p.KEKCheck != nil && len(p.KDFSalt) > 0
}

// KeyHierarchyParams KEK derivation parameters recorded on first startup
type KeyHierarchyParams struct {
	// KDFSalt random PBKDF2 salt
	KDFSalt []byte `validate:"required,min=16"`
	// KDFIterations PBKDF2 iteration count
	KDFIterations int `validate:"required,gte=300000"`
	// KEKCheck hex digest proving possession of the KEK
	KEKCheck string `validate:"required,hexadecimal"`
}

// ValidateNextState verify can transition to new state
func (p *SystemParams) ValidateNextState(newState SystemStateENUMType) error {
	statesWithTransitions := map[SystemStateENUMType][]SystemStateENUMType{
		SystemStatePreInit: {SystemStatePreInit, SystemStateInit},
		SystemStateInit:    {SystemStateInit, SystemStateRunning},
		SystemStateRunning: {SystemStateRunning},
	}

	availableNextStates, ok := statesWithTransitions[p.State]
	if !ok {
		return fmt.Errorf("key hierarchy can't leave state '%s' [%w]", p.State, ErrConflict)
	}
	for _, allowed := range availableNextStates {
		if allowed == newState {
			return nil
		}
	}
	return fmt.Errorf(
		"key hierarchy can't move from '%s' to '%s' [%w]", p.State, newState, ErrConflict,
	)
}
