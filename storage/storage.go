package storage

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/trezcool/masomo-academy/core"
	"github.com/trezcool/masomo-academy/core/course"
	"github.com/trezcool/masomo-academy/core/ledger"
	"github.com/trezcool/masomo-academy/core/roster"
	"github.com/trezcool/masomo-academy/core/user"
	"github.com/trezcool/masomo-academy/storage/database"
	inmemdb "github.com/trezcool/masomo-academy/storage/database/inmem"
	"github.com/trezcool/masomo-academy/storage/database/mongodb"
	sqlxrepos "github.com/trezcool/masomo-academy/storage/database/sqlx"
)

// database engines
const (
	EnginePostgres = "postgres"
	EngineMongoDB  = "mongodb"
	EngineInMemory = "inmem"
)

// Repositories are the stores of one database engine.
type Repositories struct {
	Users   user.Repository
	Items   course.Repository
	Ledger  ledger.Repository
	Rosters roster.Repository

	// the underlying connection of the engine, when there is one
	SQL   *sqlx.DB
	Mongo *mongo.Database

	closeFunc func() error
}

func (r *Repositories) Close() error {
	if r.closeFunc == nil {
		return nil
	}
	return r.closeFunc()
}

// Open connects to the database engine of conf, creating and migrating it when needed.
func Open(ctx context.Context, conf *core.Config, logger core.Logger) (*Repositories, error) {
	switch conf.Database.Engine {
	case "", EnginePostgres:
		if err := database.CreateIfNotExist(conf); err != nil {
			return nil, errors.Wrap(err, "creating database")
		}
		db, err := database.Open(conf)
		if err != nil {
			return nil, err
		}
		if err = database.Migrate(db.DB); err != nil {
			_ = db.Close()
			return nil, err
		}
		logger.Info(fmt.Sprintf("connected to postgres at %s", conf.Database.Address()))
		return &Repositories{
			Users:     sqlxrepos.NewUserRepository(db),
			Items:     sqlxrepos.NewCourseRepository(db),
			Ledger:    sqlxrepos.NewLedgerRepository(db),
			Rosters:   sqlxrepos.NewRosterRepository(db),
			SQL:       db,
			closeFunc: db.Close,
		}, nil

	case EngineMongoDB:
		db, err := mongodb.Connect(ctx, conf)
		if err != nil {
			return nil, err
		}
		closeFunc := func() error { return db.Client().Disconnect(context.Background()) }
		if err = mongodb.Migrate(ctx, db); err != nil {
			_ = closeFunc()
			return nil, err
		}
		logger.Info(fmt.Sprintf("connected to mongodb database %q", conf.Database.Name))
		return &Repositories{
			Users:     mongodb.NewUserRepository(db),
			Items:     mongodb.NewCourseRepository(db),
			Ledger:    mongodb.NewLedgerRepository(db),
			Rosters:   mongodb.NewRosterRepository(db),
			Mongo:     db,
			closeFunc: closeFunc,
		}, nil

	case EngineInMemory:
		logger.Warn("using the in-memory database: nothing will be persisted")
		db := inmemdb.Open()
		return &Repositories{
			Users:   inmemdb.NewUserRepository(db),
			Items:   inmemdb.NewCourseRepository(db),
			Ledger:  inmemdb.NewLedgerRepository(db),
			Rosters: inmemdb.NewRosterRepository(db),
		}, nil
	}
	return nil, errors.Errorf("unknown database engine %q", conf.Database.Engine)
}
