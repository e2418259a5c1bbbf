package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof" // registers /debug/pprof on the default mux

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/maktaba/apps/api/di/dig"
	"github.com/trezcool/maktaba/apps/api/echo"
	"github.com/trezcool/maktaba/core"
	"github.com/trezcool/maktaba/core/library"
)

func main() {
	c := digcontainer.New()
	if err := c.Invoke(run); err != nil {
		log.Fatal(errors.Wrap(err, "starting API").Error())
	}
}

func run(
	conf *core.Config,
	logger core.Logger,
	db *sqlx.DB,
	server echoapi.Server,
	sweeper *library.Sweeper,
	shutdown digcontainer.ShutdownChan,
) {
	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error("failed to close database", err)
		}
		logger.Info("Application stopped")
		if c, ok := logger.(interface{ Close() }); ok {
			c.Close()
		}
	}()

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start Overdue Sweeper

	sweepCtx, stopSweeper := context.WithCancel(context.Background())
	defer stopSweeper()
	go sweeper.Run(sweepCtx, conf.Library.SweepInterval)

	// =========================================================================
	// Start API Service

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err := <-serverErrors:
		logger.Error(fmt.Sprintf("server error: %v", err), err)

	case sig := <-shutdown:
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))
		stopSweeper()

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Stop(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)
		}
	}
}
