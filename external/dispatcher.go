// Package external - external vault provider adapters
package external

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/alwitt/goutils"
	"github.com/alwitt/strongbox/models"
	"github.com/apex/log"
)

// Provider fetch secret values held by one external vault
type Provider interface {
	/*
		FetchSecret read a secret value

			@param ctx context.Context - execution context
			@param reference string - provider specific secret reference
			@returns the secret value
	*/
	FetchSecret(ctx context.Context, reference string) (models.CredentialValue, error)
}

// Dispatcher route secret reads to the provider registered for the credential's vault
// provider. Providers which are not registered fail with models.ErrProviderNotSupported.
type Dispatcher struct {
	goutils.Component
	lock      sync.RWMutex
	providers map[models.VaultProviderENUMType]Provider
}

// NewDispatcher define a new external vault dispatcher
func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		Component: goutils.Component{
			LogTags: log.Fields{"module": "external", "component": "dispatcher"},
			LogTagModifiers: []goutils.LogMetadataModifier{
				goutils.ModifyLogMetadataByRestRequestParam,
			},
		},
		providers: make(map[models.VaultProviderENUMType]Provider),
	}
}

/*
Register install the adapter for a vault provider, replacing any previous one

	@param providerType models.VaultProviderENUMType - the vault provider
	@param provider Provider - the adapter
*/
func (d *Dispatcher) Register(providerType models.VaultProviderENUMType, provider Provider) error {
	if providerType == models.VaultProviderInternal {
		return fmt.Errorf("INTERNAL credentials are not fetched externally [%w]", models.ErrBadRequest)
	}
	if provider == nil {
		return fmt.Errorf("no adapter given for %s [%w]", providerType, models.ErrBadRequest)
	}
	d.lock.Lock()
	defer d.lock.Unlock()
	d.providers[providerType] = provider
	log.WithFields(d.LogTags).WithField("provider", providerType).Info("Registered vault provider")
	return nil
}

/*
FetchSecret read a secret value from an external vault

	@param ctx context.Context - execution context
	@param providerType models.VaultProviderENUMType - the vault provider
	@param reference string - provider specific secret reference
	@returns the secret value
*/
func (d *Dispatcher) FetchSecret(
	ctx context.Context, providerType models.VaultProviderENUMType, reference string,
) (models.CredentialValue, error) {
	logTags := d.GetLogTagsForContext(ctx)

	d.lock.RLock()
	provider, ok := d.providers[providerType]
	d.lock.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%s [%w]", providerType, models.ErrProviderNotSupported)
	}

	value, err := provider.FetchSecret(ctx, reference)
	if err != nil {
		log.WithError(err).
			WithFields(logTags).
			WithField("provider", providerType).
			Error("External secret fetch failed")
		return nil, err
	}
	return value, nil
}

/*
parseReference split a reference of the form "<location>[#field]"

	@param reference string - the reference
	@returns location and the optional field
*/
func parseReference(reference string) (string, string, error) {
	location, field, _ := strings.Cut(strings.TrimSpace(reference), "#")
	if location == "" {
		return "", "", fmt.Errorf("empty secret reference [%w]", models.ErrBadRequest)
	}
	return location, field, nil
}

// selectField narrow a secret value down to one field when requested
func selectField(
	value models.CredentialValue, field string, reference string,
) (models.CredentialValue, error) {
	if field == "" {
		return value, nil
	}
	selected, ok := value[field]
	if !ok {
		return nil, fmt.Errorf("secret '%s' has no field '%s' [%w]", reference, field, models.ErrNotFound)
	}
	return models.CredentialValue{field: selected}, nil
}
