package main

import (
	"log"
	"os"

	"github.com/trezcool/maktaba/core"
	"github.com/trezcool/maktaba/core/library"
	"github.com/trezcool/maktaba/core/user"
	"github.com/trezcool/maktaba/services/email"
	"github.com/trezcool/maktaba/services/logger"
	"github.com/trezcool/maktaba/storage/database"
	"github.com/trezcool/maktaba/storage/database/sqlx"
)

func main() {
	conf := core.NewConfig()
	logger := logsvc.NewRollbarLogger(log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile), conf)
	defer logger.Close()

	// set up DB
	if err := database.CreateIfNotExist(conf); err != nil {
		logger.Fatal("creating database", err)
	}
	db, err := database.Open(conf)
	if err != nil {
		logger.Fatal("opening database", err)
	}
	defer func() { _ = db.Close() }()

	// set up services
	var mailer core.EmailService
	if conf.Debug {
		mailer = emailsvc.NewConsoleService(conf)
	} else {
		sg := emailsvc.NewSendgridService(conf, logger)
		defer sg.Wait()
		mailer = sg
	}
	libRepo := sqlxrepos.NewLibraryRepository(db)

	// start CLI
	cli := newCommandLine(os.Stdout)
	cli.db = db.DB
	cli.engine = conf.Database.Engine
	cli.usrSvc = user.NewService(sqlxrepos.NewUserRepository(db), nil)
	cli.sweeper = library.NewSweeper(libRepo, conf.Library, nil, logger, mailer)

	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Error("admin: " + err.Error())
		}
		logger.Close()
		os.Exit(1)
	}
}
