package models

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound unknown credential, folder, or key. Safe to surface with the identifier.
	ErrNotFound = errors.New("not found")

	// ErrForbidden the caller may not access the resource
	ErrForbidden = errors.New("forbidden")

	// ErrCredentialExpired the credential is past its expiration
	ErrCredentialExpired = fmt.Errorf("credential expired [%w]", ErrForbidden)

	// ErrConflict duplicate key or path
	ErrConflict = errors.New("conflict")

	// ErrVersionConflict the writer observed a stale version
	ErrVersionConflict = fmt.Errorf("stale credential version [%w]", ErrConflict)

	// ErrBadRequest malformed input
	ErrBadRequest = errors.New("bad request")

	// ErrProviderNotSupported the external vault provider is not available
	ErrProviderNotSupported = fmt.Errorf("vault provider not supported [%w]", ErrBadRequest)

	// ErrDecryptionFailure authenticated decryption failed.
	//
	// It intentionally carries no detail on which part of the verification failed.
	ErrDecryptionFailure = errors.New("decryption failure")

	// ErrFatal startup precondition violated; the system must not start
	ErrFatal = errors.New("fatal")
)
