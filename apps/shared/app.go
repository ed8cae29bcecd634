// Package shared assembles the repositories and services used by the API server and the admin CLI.
package shared

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/arjuunns/Smart-hostel/core"
	"github.com/arjuunns/Smart-hostel/core/attendance"
	"github.com/arjuunns/Smart-hostel/core/calendar"
	"github.com/arjuunns/Smart-hostel/core/leave"
	"github.com/arjuunns/Smart-hostel/core/risk"
	"github.com/arjuunns/Smart-hostel/core/user"
	emailsvc "github.com/arjuunns/Smart-hostel/services/email"
	"github.com/arjuunns/Smart-hostel/storage/cache"
	"github.com/arjuunns/Smart-hostel/storage/database"
	inmemdb "github.com/arjuunns/Smart-hostel/storage/database/inmem"
	sqlxrepos "github.com/arjuunns/Smart-hostel/storage/database/sqlx"
)

const (
	EnginePostgres = "postgres"
	EngineInMemory = "inmem"
)

type (
	Repositories struct {
		Users      user.Repository
		Attendance attendance.Repository
		Calendar   calendar.Repository
		Leaves     leave.Repository
		Stats      risk.StatsRepository
	}

	// App holds the wired services.
	App struct {
		Conf       *core.Config
		Logger     core.Logger
		Validate   *validator.Validate
		Translator ut.Translator
		Repos      Repositories
		Mail       core.EmailService

		Users      *user.Service
		Attendance *attendance.Service
		Calendar   *calendar.Service
		Analyzer   *calendar.Analyzer
		Predictor  *risk.Predictor
		Leaves     *leave.Service
	}
)

// NewValidator returns a validator with every custom tag and translation registered.
func NewValidator() (*validator.Validate, ut.Translator) {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	attendance.InitValidators(validate, translator)
	calendar.InitValidators(validate, translator)
	leave.InitValidators(validate, translator)
	return validate, translator
}

func InMemoryRepositories(db *inmemdb.DB) Repositories {
	return Repositories{
		Users:      inmemdb.NewUserRepository(db),
		Attendance: inmemdb.NewAttendanceRepository(db),
		Calendar:   inmemdb.NewCalendarRepository(db),
		Leaves:     inmemdb.NewLeaveRepository(db),
		Stats:      inmemdb.NewStatsRepository(db),
	}
}

func SQLRepositories(db core.DBExecutor) Repositories {
	return Repositories{
		Users:      sqlxrepos.NewUserRepository(db),
		Attendance: sqlxrepos.NewAttendanceRepository(db),
		Calendar:   sqlxrepos.NewCalendarRepository(db),
		Leaves:     sqlxrepos.NewLeaveRepository(db),
		Stats:      sqlxrepos.NewStatsRepository(db),
	}
}

// OpenRepositories opens the configured database engine, migrating postgres up,
// and puts the redis stats cache in front of it when configured. closeFn releases every connection.
func OpenRepositories(conf *core.Config, logger core.Logger) (repos Repositories, closeFn func() error, err error) {
	var closers []func() error
	closeFn = func() error {
		var firstErr error
		for i := len(closers) - 1; i >= 0; i-- {
			if cErr := closers[i](); cErr != nil && firstErr == nil {
				firstErr = cErr
			}
		}
		return firstErr
	}

	switch conf.Database.Engine {
	case EngineInMemory:
		repos = InMemoryRepositories(inmemdb.Open())
	case EnginePostgres, "":
		if err = database.CreateIfNotExist(conf); err != nil {
			return repos, closeFn, err
		}
		db, err := database.Open(conf)
		if err != nil {
			return repos, closeFn, err
		}
		closers = append(closers, db.Close)
		if err = database.Migrate(db, "up"); err != nil {
			_ = closeFn()
			return repos, closeFn, err
		}
		repos = SQLRepositories(db)
	default:
		return repos, closeFn, errors.Errorf("unknown database engine %q", conf.Database.Engine)
	}

	if conf.Redis.Address != "" {
		rdb, err := cache.NewClient(conf.Redis)
		if err != nil {
			_ = closeFn()
			return repos, closeFn, errors.Wrap(err, "connecting to redis")
		}
		closers = append(closers, rdb.Close)
		repos.Stats = cache.NewStatsRepository(repos.Stats, rdb, conf.Redis.StatsTTL, logger)
	}
	return repos, closeFn, nil
}

// NewEmailService prints emails to the console in debug and test mode and sends them through SendGrid otherwise.
func NewEmailService(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.Debug || conf.TestMode {
		return emailsvc.NewConsoleService(conf, logger)
	}
	return emailsvc.NewSendgridService(conf, logger)
}

// NewApp wires the services on top of repos.
func NewApp(conf *core.Config, logger core.Logger, repos Repositories, mail core.EmailService) *App {
	validate, translator := NewValidator()

	users := user.NewService(repos.Users, validate)
	att := attendance.NewService(repos.Attendance, validate, logger)
	analyzer := calendar.NewAnalyzer(repos.Calendar)

	cfg := risk.DefaultConfig()
	stats := risk.NewAggregator(cfg, repos.Attendance, repos.Leaves, repos.Stats)
	predictor := risk.NewPredictor(cfg, stats, analyzer, repos.Leaves, users, logger)

	return &App{
		Conf:       conf,
		Logger:     logger,
		Validate:   validate,
		Translator: translator,
		Repos:      repos,
		Mail:       mail,
		Users:      users,
		Attendance: att,
		Calendar:   calendar.NewService(repos.Calendar, validate),
		Analyzer:   analyzer,
		Predictor:  predictor,
		Leaves: leave.NewService(leave.Deps{
			Repo:       repos.Leaves,
			Validate:   validate,
			Assessor:   predictor,
			Stats:      predictor,
			Attendance: att,
			Students:   users,
			Mail:       mail,
			Logger:     logger,
		}),
	}
}
