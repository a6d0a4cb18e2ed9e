package external

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/alwitt/goutils"
	"github.com/alwitt/strongbox/models"
	"github.com/apex/log"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	smTypes "github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
)

// SecretsManagerAPI the subset of the Secrets Manager client used here
type SecretsManagerAPI interface {
	GetSecretValue(
		ctx context.Context,
		params *secretsmanager.GetSecretValueInput,
		optFns ...func(*secretsmanager.Options),
	) (*secretsmanager.GetSecretValueOutput, error)
}

// AWSParams AWS Secrets Manager connection parameters
type AWSParams struct {
	// Region AWS region; the SDK default chain applies when empty
	Region string `json:"region,omitempty"`
	// Profile shared config profile; the SDK default chain applies when empty
	Profile string `json:"profile,omitempty"`
}

// awsSecretsProvider reads AWS Secrets Manager secrets
type awsSecretsProvider struct {
	goutils.Component
	client SecretsManagerAPI
}

/*
NewAWSSecretsManagerProvider define an AWS Secrets Manager adapter using the SDK default
credential chain. References take the form "<secret-id>[#field]".

	@param ctx context.Context - execution context
	@param params AWSParams - connection parameters
	@returns the adapter
*/
func NewAWSSecretsManagerProvider(ctx context.Context, params AWSParams) (Provider, error) {
	var configOpts []func(*config.LoadOptions) error
	if params.Profile != "" {
		configOpts = append(configOpts, config.WithSharedConfigProfile(params.Profile))
	}
	if params.Region != "" {
		configOpts = append(configOpts, config.WithRegion(params.Region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, configOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config [%w]", err)
	}
	return NewAWSSecretsManagerProviderFromClient(secretsmanager.NewFromConfig(cfg)), nil
}

/*
NewAWSSecretsManagerProviderFromClient define an AWS Secrets Manager adapter with an
existing client

	@param client SecretsManagerAPI - Secrets Manager client
	@returns the adapter
*/
func NewAWSSecretsManagerProviderFromClient(client SecretsManagerAPI) Provider {
	return &awsSecretsProvider{
		Component: goutils.Component{
			LogTags: log.Fields{"module": "external", "component": "aws-secrets-manager"},
			LogTagModifiers: []goutils.LogMetadataModifier{
				goutils.ModifyLogMetadataByRestRequestParam,
			},
		},
		client: client,
	}
}

func (p *awsSecretsProvider) FetchSecret(
	ctx context.Context, reference string,
) (models.CredentialValue, error) {
	secretID, field, err := parseReference(reference)
	if err != nil {
		return nil, err
	}

	output, err := p.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(secretID),
	})
	if err != nil {
		var notFound *smTypes.ResourceNotFoundException
		if errors.As(err, &notFound) {
			return nil, fmt.Errorf("AWS secret '%s' [%w]", secretID, models.ErrNotFound)
		}
		return nil, fmt.Errorf("AWS read of '%s' failed [%w]", secretID, err)
	}

	var value models.CredentialValue
	switch {
	case output.SecretString != nil:
		// Secrets stored as JSON objects keep their fields
		if err := json.Unmarshal([]byte(*output.SecretString), &value); err != nil || value == nil {
			value = models.CredentialValue{"value": *output.SecretString}
		}
	case output.SecretBinary != nil:
		value = models.CredentialValue{"value": base64.StdEncoding.EncodeToString(output.SecretBinary)}
	default:
		return nil, fmt.Errorf("AWS secret '%s' has no value [%w]", secretID, models.ErrNotFound)
	}

	log.WithFields(p.GetLogTagsForContext(ctx)).
		WithField("secret-id", secretID).
		WithField("version-id", aws.ToString(output.VersionId)).
		Debug("Read AWS secret")

	return selectField(value, field, reference)
}
