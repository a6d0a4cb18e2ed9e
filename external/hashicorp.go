package external

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/alwitt/goutils"
	"github.com/alwitt/strongbox/models"
	"github.com/apex/log"
	"github.com/hashicorp/vault/api"
)

// HashicorpParams HashiCorp Vault connection parameters
type HashicorpParams struct {
	// Address vault server address
	Address string `json:"address" validate:"required,url"`
	// Token vault token
	Token string `json:"-" validate:"required"`
	// Namespace optional vault enterprise namespace
	Namespace string `json:"namespace,omitempty"`
}

// hashicorpProvider reads KV version 2 secrets
type hashicorpProvider struct {
	goutils.Component
	client *api.Client
}

/*
NewHashicorpProvider define a HashiCorp Vault KV v2 adapter. References take the form
"<mount>/<path>[#field]".

	@param params HashicorpParams - connection parameters
	@returns the adapter
*/
func NewHashicorpProvider(params HashicorpParams) (Provider, error) {
	cfg := api.DefaultConfig()
	cfg.Address = params.Address
	client, err := api.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to define vault client [%w]", err)
	}
	client.SetToken(params.Token)
	if params.Namespace != "" {
		client.SetNamespace(params.Namespace)
	}
	return NewHashicorpProviderFromClient(client), nil
}

/*
NewHashicorpProviderFromClient define a HashiCorp Vault KV v2 adapter with an existing client

	@param client *api.Client - vault client
	@returns the adapter
*/
func NewHashicorpProviderFromClient(client *api.Client) Provider {
	return &hashicorpProvider{
		Component: goutils.Component{
			LogTags: log.Fields{"module": "external", "component": "hashicorp-vault"},
			LogTagModifiers: []goutils.LogMetadataModifier{
				goutils.ModifyLogMetadataByRestRequestParam,
			},
		},
		client: client,
	}
}

func (p *hashicorpProvider) FetchSecret(
	ctx context.Context, reference string,
) (models.CredentialValue, error) {
	location, field, err := parseReference(reference)
	if err != nil {
		return nil, err
	}
	mount, path, ok := strings.Cut(strings.Trim(location, "/"), "/")
	if !ok || mount == "" || path == "" {
		return nil, fmt.Errorf(
			"vault reference '%s' is not <mount>/<path> [%w]", reference, models.ErrBadRequest,
		)
	}

	secret, err := p.client.KVv2(mount).Get(ctx, path)
	if err != nil {
		return nil, classifyVaultError(reference, err)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("vault secret '%s' [%w]", reference, models.ErrNotFound)
	}

	log.WithFields(p.GetLogTagsForContext(ctx)).
		WithField("mount", mount).
		WithField("path", path).
		Debug("Read vault secret")

	return selectField(models.CredentialValue(secret.Data), field, reference)
}

// classifyVaultError map vault client errors onto the vault error taxonomy
func classifyVaultError(reference string, err error) error {
	if errors.Is(err, api.ErrSecretNotFound) {
		return fmt.Errorf("vault secret '%s' [%w]", reference, models.ErrNotFound)
	}
	var apiErr *api.ResponseError
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusNotFound:
			return fmt.Errorf("vault secret '%s' [%w]", reference, models.ErrNotFound)
		case http.StatusForbidden:
			return fmt.Errorf("vault denied access to '%s' [%w]", reference, models.ErrForbidden)
		}
	}
	return fmt.Errorf("vault read of '%s' failed [%w]", reference, err)
}
