package main

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"
	"github.com/trezcool/goose"

	appfs "github.com/trezcool/masomo-academy/fs"
	"github.com/trezcool/masomo-academy/storage"
	"github.com/trezcool/masomo-academy/storage/database/mongodb"
)

// mockable
var gooseRunFunc = func(command string, db *sql.DB, dir string, args ...string) error {
	return goose.RunFS(command, db, appfs.FS, dir, args...)
}

// migrate runs a goose command against postgres; mongodb only knows "up", which syncs its indexes.
func (cli *commandLine) migrate(args []string) error {
	switch cli.conf.Database.Engine {
	case storage.EngineMongoDB:
		if args[0] != "up" {
			return errors.Errorf("%q: not supported by the mongodb engine", args[0])
		}
		return mongodb.Migrate(context.Background(), cli.mongoDB)
	case storage.EngineInMemory:
		return errors.New("the in-memory engine has nothing to migrate")
	}

	arguments := make([]string, 0)
	if len(args) > 1 {
		arguments = append(arguments, args[1:]...)
	}
	return gooseRunFunc(args[0], cli.sqlDB, "migrations", arguments...)
}
