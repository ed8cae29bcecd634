package main

import (
	"fmt"
	"log"
	"os"

	"github.com/jmoiron/sqlx"

	"github.com/arjuunns/Smart-hostel/apps/shared"
	"github.com/arjuunns/Smart-hostel/core"
	emailsvc "github.com/arjuunns/Smart-hostel/services/email"
	logsvc "github.com/arjuunns/Smart-hostel/services/logger"
	"github.com/arjuunns/Smart-hostel/storage/database"
	inmemdb "github.com/arjuunns/Smart-hostel/storage/database/inmem"
)

func main() {
	conf := core.NewConfig()

	zl, err := logsvc.NewZapLogger(conf)
	if err != nil {
		log.Fatalf("setting up zap: %v", err)
	}
	logger := logsvc.NewRollbarLogger(zl.Named("admin"), conf)

	cli := commandLine{out: os.Stdout}
	var repos shared.Repositories

	// migrations are run explicitly here, so the database is not migrated on open
	switch conf.Database.Engine {
	case shared.EngineInMemory:
		repos = shared.InMemoryRepositories(inmemdb.Open())
	default:
		var db *sqlx.DB
		if err = database.CreateIfNotExist(conf); err == nil {
			db, err = database.Open(conf)
		}
		if err != nil {
			logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
		}
		defer func() { _ = db.Close() }()

		repos = shared.SQLRepositories(db)
		cli.migrate = func(command string, args ...string) error {
			return database.Migrate(db, command, args...)
		}
	}
	cli.app = shared.NewApp(conf, logger, repos, emailsvc.NewConsoleService(conf, logger))

	err = cli.run(os.Args)
	logger.Sync()
	if err != nil {
		if err != errHelp {
			fmt.Fprintf(os.Stderr, "\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}
