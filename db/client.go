package db

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/alwitt/goutils"
	"github.com/apex/log"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DefaultSqliteBusyTimeout how long a sqlite writer waits on a locked database
const DefaultSqliteBusyTimeout = 5 * time.Second

/*
GetSqliteDialector define Sqlite GORM dialector

Foreign keys are enforced, and the database runs in WAL mode so credential fetches are
not blocked by a concurrent writer.

	@param dbFile string - Sqlite DB file
	@return GORM sqlite dialector
*/
func GetSqliteDialector(dbFile string) gorm.Dialector {
	options := url.Values{}
	options.Set("_foreign_keys", "on")
	options.Set("_journal_mode", "WAL")
	options.Set("_busy_timeout", fmt.Sprintf("%d", DefaultSqliteBusyTimeout.Milliseconds()))
	return sqlite.Open(fmt.Sprintf("%s?%s", dbFile, options.Encode()))
}

// Client manages connections and transactions with the vault database
type Client interface {
	/*
		RunSQLInTransaction execute SQL calls within a transaction

			@param ctx context.Context - execution context
			@param coreLogic func(ctx context.Context, tx *gorm.DB) error - the callback to execute
	*/
	RunSQLInTransaction(
		ctx context.Context, coreLogic func(ctx context.Context, tx *gorm.DB) error,
	) error

	/*
		UseDatabase run read paths and single statement writes against a `Database`

			@param ctx context.Context - execution context
			@param coreLogic func(ctx context.Context, dbClient Database) error - the callback to execute
	*/
	UseDatabase(
		ctx context.Context, coreLogic func(ctx context.Context, dbClient Database) error,
	) error

	/*
		UseDatabaseInTransaction run multi statement writes against a `Database`, such as a
		credential change plus its system event

			@param ctx context.Context - execution context
			@param coreLogic func(ctx context.Context, dbClient Database) error - the callback to execute
	*/
	UseDatabaseInTransaction(
		ctx context.Context, coreLogic func(ctx context.Context, dbClient Database) error,
	) error

	// PrepareTables create or migrate the vault tables
	PrepareTables(ctx context.Context) error

	// Close release the underlying connection pool
	Close() error
}

// clientImpl implements Client
type clientImpl struct {
	goutils.Component
	db *gorm.DB
}

/*
NewConnection define a new SQL client

	@param dbDialector gorm.Dialector - GORM dialector
	@param dbLogLevel logger.LogLevel - SQL log level
	@return new client
*/
func NewConnection(dbDialector gorm.Dialector, dbLogLevel logger.LogLevel) (Client, error) {
	logTags := log.Fields{"package": "strongbox", "module": "db", "component": "sql-client"}

	// Constraint violations surface as gorm.ErrDuplicatedKey / gorm.ErrForeignKeyViolated
	db, err := gorm.Open(dbDialector, &gorm.Config{
		Logger:                 logger.Default.LogMode(dbLogLevel),
		SkipDefaultTransaction: true,
		TranslateError:         true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect with DB [%w]", err)
	}

	instance := &clientImpl{
		Component: goutils.Component{
			LogTags: logTags,
			LogTagModifiers: []goutils.LogMetadataModifier{
				goutils.ModifyLogMetadataByRestRequestParam,
			},
		},
		db: db,
	}

	log.WithFields(logTags).
		WithField("dialect", dbDialector.Name()).
		Debug("Connected with vault database")

	return instance, nil
}

func (c *clientImpl) RunSQLInTransaction(
	ctx context.Context, coreLogic func(ctx context.Context, tx *gorm.DB) error,
) error {
	return c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return coreLogic(ctx, tx)
	})
}

func (c *clientImpl) UseDatabase(
	ctx context.Context, coreLogic func(ctx context.Context, dbClient Database) error,
) error {
	dbClient, err := newDatabase(ctx, c.db.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to define `Database` instance [%w]", err)
	}
	return coreLogic(ctx, dbClient)
}

func (c *clientImpl) UseDatabaseInTransaction(
	ctx context.Context, coreLogic func(ctx context.Context, dbClient Database) error,
) error {
	return c.RunSQLInTransaction(ctx, func(ctx context.Context, tx *gorm.DB) error {
		dbClient, err := newDatabase(ctx, tx)
		if err != nil {
			return fmt.Errorf("failed to define `Database` instance [%w]", err)
		}
		return coreLogic(ctx, dbClient)
	})
}

func (c *clientImpl) PrepareTables(ctx context.Context) error {
	logTags := c.GetLogTagsForContext(ctx)
	if err := c.RunSQLInTransaction(ctx, DefineTables); err != nil {
		log.WithError(err).WithFields(logTags).Error("Failed to prepare vault tables")
		return fmt.Errorf("failed to define tables [%w]", err)
	}
	log.WithFields(logTags).Info("Vault tables ready")
	return nil
}

func (c *clientImpl) Close() error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return fmt.Errorf("failed to access connection pool [%w]", err)
	}
	return sqlDB.Close()
}
