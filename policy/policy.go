// Package policy - credential access authorization
package policy

import (
	"fmt"
	"time"

	"github.com/alwitt/goutils"
	"github.com/alwitt/strongbox/models"
	"github.com/apex/log"
)

// Requester the machine caller asking for a credential during a bot run
type Requester struct {
	// BotID the requesting bot
	BotID *string
	// Environment the environment the run executes in
	Environment *string
}

// Decision authorization decision
type Decision struct {
	// Allowed whether access is granted
	Allowed bool
	// Reason denial reason when not allowed
	Reason models.DenialReasonENUMType
}

// allow the allowing decision
var allow = Decision{Allowed: true}

// deny a denying decision
func deny(reason models.DenialReasonENUMType) Decision {
	return Decision{Allowed: false, Reason: reason}
}

// Evaluator decide whether a caller may read a credential
//
// Lifecycle, expiration and scope are three independent checks, each with its own
// denial reason.
type Evaluator interface {
	/*
		CheckStatus verify the credential is ACTIVE

			@param credential *models.Credential - the credential
			@returns the decision
	*/
	CheckStatus(credential *models.Credential) Decision

	/*
		CheckExpiration verify the credential is not past its expiration, regardless of status

			@param credential *models.Credential - the credential
			@param now time.Time - the reference time
			@returns the decision
	*/
	CheckExpiration(credential *models.Credential, now time.Time) Decision

	/*
		Evaluate verify the requester is within the credential scope

			@param credential *models.Credential - the credential
			@param requester Requester - the caller
			@returns the decision
	*/
	Evaluate(credential *models.Credential, requester Requester) Decision
}

// evaluatorImpl implements Evaluator
type evaluatorImpl struct {
	goutils.Component
}

// NewEvaluator define a new access policy evaluator
func NewEvaluator() Evaluator {
	return &evaluatorImpl{
		Component: goutils.Component{
			LogTags: log.Fields{"module": "policy", "component": "evaluator"},
			LogTagModifiers: []goutils.LogMetadataModifier{
				goutils.ModifyLogMetadataByRestRequestParam,
			},
		},
	}
}

func (e *evaluatorImpl) CheckStatus(credential *models.Credential) Decision {
	if credential.Status != models.CredentialStatusActive {
		return deny(models.DenialReasonCredentialNotActive)
	}
	return allow
}

func (e *evaluatorImpl) CheckExpiration(credential *models.Credential, now time.Time) Decision {
	if credential.IsExpired(now) {
		return deny(models.DenialReasonCredentialExpired)
	}
	return allow
}

func (e *evaluatorImpl) Evaluate(credential *models.Credential, requester Requester) Decision {
	var decision Decision
	switch credential.Scope {
	case models.CredentialScopeGlobal:
		decision = allow

	case models.CredentialScopeBotSpecific:
		if requester.BotID != nil && contains(credential.AllowedBotIDs, *requester.BotID) {
			decision = allow
		} else {
			decision = deny(models.DenialReasonScopeBotNotAllowed)
		}

	case models.CredentialScopeEnvironment:
		if requester.Environment == nil || *requester.Environment == "" {
			decision = deny(models.DenialReasonScopeEnvMissing)
		} else if contains(credential.AllowedEnvironments, *requester.Environment) {
			decision = allow
		} else {
			decision = deny(models.DenialReasonScopeEnvNotAllowed)
		}

	case models.CredentialScopeUserSpecific:
		// Only interactive user sessions may read these, never a bot run
		decision = deny(models.DenialReasonScopeUserOnly)

	default:
		decision = deny(models.DenialReasonScopeUnknown)
	}

	if !decision.Allowed {
		log.WithFields(e.LogTags).
			WithField("credential-id", credential.ID).
			WithField("scope", credential.Scope).
			WithField("reason", decision.Reason).
			Debug("Scope check denied")
	}
	return decision
}

func contains(list []string, target string) bool {
	for _, entry := range list {
		if entry == target {
			return true
		}
	}
	return false
}

/*
ValidateScopeShape verify the allow-lists are consistent with the scope

	@param scope models.CredentialScopeENUMType - the scope
	@param botIDs []string - allowed bot IDs
	@param environments []string - allowed environments
	@param userIDs []string - allowed user IDs
*/
func ValidateScopeShape(
	scope models.CredentialScopeENUMType, botIDs, environments, userIDs []string,
) error {
	switch scope {
	case models.CredentialScopeGlobal:
		if len(botIDs) > 0 || len(environments) > 0 || len(userIDs) > 0 {
			return fmt.Errorf("GLOBAL scope does not take allow-lists [%w]", models.ErrBadRequest)
		}
	case models.CredentialScopeBotSpecific:
		if len(botIDs) == 0 {
			return fmt.Errorf("BOT_SPECIFIC scope needs at least one bot ID [%w]", models.ErrBadRequest)
		}
	case models.CredentialScopeEnvironment:
		if len(environments) == 0 {
			return fmt.Errorf(
				"ENVIRONMENT scope needs at least one environment [%w]", models.ErrBadRequest,
			)
		}
	case models.CredentialScopeUserSpecific:
		if len(userIDs) == 0 {
			return fmt.Errorf(
				"USER_SPECIFIC scope needs at least one user ID [%w]", models.ErrBadRequest,
			)
		}
	default:
		return fmt.Errorf("unknown scope '%s' [%w]", scope, models.ErrBadRequest)
	}
	for _, list := range [][]string{botIDs, environments, userIDs} {
		for _, entry := range list {
			if entry == "" {
				return fmt.Errorf("allow-list contains an empty entry [%w]", models.ErrBadRequest)
			}
		}
	}
	return nil
}
