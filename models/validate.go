package models

import (
	"reflect"

	"github.com/go-playground/validator/v10"
)

/*
RegisterWithValidator register with the validator this custom validation support

	@param v *validator.Validate - the validator to register against
	@return whether successful
*/
func RegisterWithValidator(v *validator.Validate) error {
	customValidations := map[string]validator.Func{
		"enc_key_state":     validateEncKeyStateType,
		"system_state":      validateSystemStateType,
		"system_event_type": validateSystemEventType,
		"credential_type":   validateCredentialType,
		"credential_status": validateCredentialStatusType,
		"credential_scope":  validateCredentialScopeType,
		"vault_provider":    validateVaultProviderType,
		"access_action":     validateAccessActionType,
		"rotation_trigger":  validateRotationTriggerType,
	}

	for tag, fn := range customValidations {
		if err := v.RegisterValidation(tag, fn); err != nil {
			return err
		}
	}

	return nil
}

func validateEncKeyStateType(fl validator.FieldLevel) bool {
	if fl.Field().Kind() != reflect.String {
		return false
	}
	switch EncryptionKeyStateENUMType(fl.Field().String()) {
	case EncryptionKeyStateActive:
		fallthrough
	case EncryptionKeyStateInactive:
		return true
	}
	return false
}

func validateSystemStateType(fl validator.FieldLevel) bool {
	if fl.Field().Kind() != reflect.String {
		return false
	}
	switch SystemStateENUMType(fl.Field().String()) {
	case SystemStatePreInit:
		fallthrough
	case SystemStateInit:
		fallthrough
	case SystemStateRunning:
		return true
	}
	return false
}

func validateSystemEventType(fl validator.FieldLevel) bool {
	if fl.Field().Kind() != reflect.String {
		return false
	}
	switch SystemEventTypeENUMType(fl.Field().String()) {
	case SystemEventTypeInitializing:
		fallthrough
	case SystemEventTypeInitialized:
		fallthrough
	case SystemEventTypeNewDataKey:
		fallthrough
	case SystemEventTypeActivateDataKey:
		fallthrough
	case SystemEventTypeDeactivateDataKey:
		fallthrough
	case SystemEventTypeAddCredential:
		fallthrough
	case SystemEventTypeDeleteCredential:
		return true
	}
	return false
}

func validateCredentialType(fl validator.FieldLevel) bool {
	if fl.Field().Kind() != reflect.String {
		return false
	}
	value := CredentialTypeENUMType(fl.Field().String())
	for _, oneType := range AllCredentialTypes {
		if value == oneType {
			return true
		}
	}
	return false
}

func validateCredentialStatusType(fl validator.FieldLevel) bool {
	if fl.Field().Kind() != reflect.String {
		return false
	}
	switch CredentialStatusENUMType(fl.Field().String()) {
	case CredentialStatusActive:
		fallthrough
	case CredentialStatusInactive:
		fallthrough
	case CredentialStatusExpired:
		fallthrough
	case CredentialStatusRevoked:
		fallthrough
	case CredentialStatusPendingRotation:
		fallthrough
	case CredentialStatusRotationFailed:
		return true
	}
	return false
}

func validateCredentialScopeType(fl validator.FieldLevel) bool {
	if fl.Field().Kind() != reflect.String {
		return false
	}
	switch CredentialScopeENUMType(fl.Field().String()) {
	case CredentialScopeGlobal:
		fallthrough
	case CredentialScopeBotSpecific:
		fallthrough
	case CredentialScopeEnvironment:
		fallthrough
	case CredentialScopeUserSpecific:
		return true
	}
	return false
}

func validateVaultProviderType(fl validator.FieldLevel) bool {
	if fl.Field().Kind() != reflect.String {
		return false
	}
	switch VaultProviderENUMType(fl.Field().String()) {
	case VaultProviderInternal:
		fallthrough
	case VaultProviderHashicorp:
		fallthrough
	case VaultProviderAWSSecretsManager:
		fallthrough
	case VaultProviderAzureKeyVault:
		fallthrough
	case VaultProviderGCPSecretManager:
		return true
	}
	return false
}

func validateAccessActionType(fl validator.FieldLevel) bool {
	if fl.Field().Kind() != reflect.String {
		return false
	}
	switch AccessActionENUMType(fl.Field().String()) {
	case AccessActionCreate:
		fallthrough
	case AccessActionRead:
		fallthrough
	case AccessActionDecrypt:
		fallthrough
	case AccessActionUpdate:
		fallthrough
	case AccessActionDelete:
		fallthrough
	case AccessActionRotate:
		fallthrough
	case AccessActionRevoke:
		return true
	}
	return false
}

func validateRotationTriggerType(fl validator.FieldLevel) bool {
	if fl.Field().Kind() != reflect.String {
		return false
	}
	switch RotationTriggerENUMType(fl.Field().String()) {
	case RotationTriggerManual:
		fallthrough
	case RotationTriggerScheduled:
		fallthrough
	case RotationTriggerForced:
		fallthrough
	case RotationTriggerExpiration:
		return true
	}
	return false
}
