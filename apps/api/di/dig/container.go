// Package digcontainer wires the API dependencies with dig.
package digcontainer

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/dig"

	"github.com/trezcool/maktaba/apps/api/echo"
	"github.com/trezcool/maktaba/core"
	"github.com/trezcool/maktaba/core/library"
	"github.com/trezcool/maktaba/core/user"
	"github.com/trezcool/maktaba/services/email"
	"github.com/trezcool/maktaba/services/logger"
	"github.com/trezcool/maktaba/storage/database"
	"github.com/trezcool/maktaba/storage/database/sqlx"
)

// ShutdownChan receives the signal that stops the API.
type ShutdownChan chan os.Signal

type DBLoggerParam struct {
	dig.In
	Logger core.Logger `name:"dbLogger"`
}

type serverParams struct {
	dig.In
	Conf       *core.Config
	Logger     core.Logger
	UserSvc    user.Service
	LibrarySvc library.Service
	Sweeper    *library.Sweeper
	Shutdown   ShutdownChan
}

func newLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	return logsvc.NewRollbarLogger(stdLogger, conf)
}

func newDBLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	return logsvc.NewRollbarLogger(stdLogger, conf)
}

func newDB(conf *core.Config, loggerParam DBLoggerParam) *sqlx.DB {
	setUp := func() (*sqlx.DB, error) {
		if err := database.CreateIfNotExist(conf); err != nil {
			return nil, err
		}

		db, err := database.Open(conf)
		if err != nil {
			return nil, err
		}

		if err = database.Migrate(db.DB, conf.Database.Engine, "up"); err != nil {
			_ = db.Close()
			return nil, err
		}
		return db, nil
	}

	db, err := setUp()
	if err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	return db
}

func newEmailService(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.Debug {
		return emailsvc.NewConsoleService(conf)
	}
	return emailsvc.NewSendgridService(conf, logger)
}

func newLibraryConfig(conf *core.Config) core.LibraryConfig {
	return conf.Library
}

func newShutdownChan() ShutdownChan {
	shutdown := make(ShutdownChan, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	return shutdown
}

func newServer(p serverParams) echoapi.Server {
	return echoapi.NewServer(&echoapi.Options{
		Conf:       p.Conf,
		Logger:     p.Logger,
		UserSvc:    p.UserSvc,
		LibrarySvc: p.LibrarySvc,
		Sweeper:    p.Sweeper,
		SignalShutdown: func() {
			select {
			case p.Shutdown <- syscall.SIGTERM:
			default: // already shutting down
			}
		},
	})
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(newLibraryConfig))
	must(c.Provide(core.SystemClock))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newDB))
	must(c.Provide(newEmailService))
	must(c.Provide(sqlxrepos.NewUserRepository))
	must(c.Provide(sqlxrepos.NewLibraryRepository))
	must(c.Provide(user.NewService))
	must(c.Provide(library.NewService))
	must(c.Provide(library.NewSweeper))
	must(c.Provide(newShutdownChan))
	must(c.Provide(newServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
