// Package strongbox - envelope encryption credential vault
package strongbox

import (
	"context"
	"fmt"

	"github.com/alwitt/strongbox/db"
	"github.com/alwitt/strongbox/encryption"
	"github.com/alwitt/strongbox/external"
	"github.com/alwitt/strongbox/models"
	"github.com/alwitt/strongbox/policy"
	"github.com/alwitt/strongbox/rotation"
	"github.com/alwitt/strongbox/vault"
	"github.com/apex/log"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Params credential vault instance parameters
type Params struct {
	// DBDialector GORM dialector
	DBDialector gorm.Dialector
	// DBLogLevel SQL log level
	DBLogLevel logger.LogLevel
	// DefineTables whether to create the tables on startup
	DefineTables bool
	// MasterSecret operator supplied master secret
	MasterSecret string
	// KDFIterations PBKDF2 iteration count for a new system; 0 for the default
	KDFIterations int
	// Hashicorp optional HashiCorp Vault connection
	Hashicorp *external.HashicorpParams
	// AWS optional AWS Secrets Manager connection
	AWS *external.AWSParams
	// Metrics optional registry for the vault metrics
	Metrics prometheus.Registerer
}

// Strongbox an assembled credential vault
type Strongbox struct {
	// Vault the credential vault
	Vault vault.CredentialVault
	// Engine the encryption engine, for access code hashing
	Engine encryption.Engine
	// Store the persistence store
	Store *db.Store

	client db.Client
}

// Close release the database connection of the instance
func (s *Strongbox) Close() error {
	return s.client.Close()
}

/*
NewCredentialVault initialize a credential vault instance.

Each instance is backed by a SQL database; two instances using the same database and
master secret see the same credentials. On first startup the KDF parameters and the first
data encryption key are recorded.

	@param ctx context.Context - execution context
	@param params Params - instance parameters
	@returns new vault instance
*/
func NewCredentialVault(ctx context.Context, params Params) (*Strongbox, error) {
	logTags := log.Fields{"package": "strongbox", "module": "root"}

	// Prepare persistence
	persistence, err := db.NewConnection(params.DBDialector, params.DBLogLevel)
	if err != nil {
		return nil, fmt.Errorf("failed to initialized persistence client [%w]", err)
	}
	if params.DefineTables {
		if err := persistence.PrepareTables(ctx); err != nil {
			return nil, err
		}
	}
	store := db.NewStore(persistence)

	// Prepare key management
	keys, err := encryption.NewKeyManager(ctx, encryption.KeyManagerParams{
		MasterSecret:  params.MasterSecret,
		KDFIterations: params.KDFIterations,
		Store:         store,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialized key manager [%w]", err)
	}
	if _, err := keys.GetActiveDEK(); err != nil {
		if _, err := keys.GenerateDEK(ctx); err != nil {
			return nil, fmt.Errorf("failed to generate first data key [%w]", err)
		}
		log.WithFields(logTags).Info("Generated first data encryption key")
	}

	engine, err := encryption.NewEngine(keys)
	if err != nil {
		return nil, fmt.Errorf("failed to initialized encryption engine [%w]", err)
	}
	controller, err := rotation.NewController(engine)
	if err != nil {
		return nil, fmt.Errorf("failed to initialized rotation controller [%w]", err)
	}

	// Prepare external vault providers
	dispatcher := external.NewDispatcher()
	if params.Hashicorp != nil {
		provider, err := external.NewHashicorpProvider(*params.Hashicorp)
		if err != nil {
			return nil, fmt.Errorf("failed to initialized HashiCorp Vault adapter [%w]", err)
		}
		if err := dispatcher.Register(models.VaultProviderHashicorp, provider); err != nil {
			return nil, err
		}
	}
	if params.AWS != nil {
		provider, err := external.NewAWSSecretsManagerProvider(ctx, *params.AWS)
		if err != nil {
			return nil, fmt.Errorf("failed to initialized AWS Secrets Manager adapter [%w]", err)
		}
		if err := dispatcher.Register(models.VaultProviderAWSSecretsManager, provider); err != nil {
			return nil, err
		}
	}

	credVault, err := vault.NewCredentialVault(vault.Params{
		Store:    store,
		Audit:    store,
		External: dispatcher,
		Keys:     keys,
		Engine:   engine,
		Policy:   policy.NewEvaluator(),
		Rotation: controller,
		Metrics:  params.Metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialized credential vault [%w]", err)
	}

	return &Strongbox{Vault: credVault, Engine: engine, Store: store, client: persistence}, nil
}
