// Package echoapi serves the staff HTTP API with echo.
package echoapi

import (
	"context"
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/trezcool/maktaba/core"
	"github.com/trezcool/maktaba/core/library"
	"github.com/trezcool/maktaba/core/user"
)

type (
	Options struct {
		Conf           *core.Config
		Logger         core.Logger
		DisableReqLogs bool
		UserSvc        user.Service
		LibrarySvc     library.Service
		Sweeper        *library.Sweeper // optional; enables POST /v1/library/borrows/sweep
		SignalShutdown func()           // optional
	}

	Server interface {
		http.Handler
		Start() error
		Stop(context.Context) error
	}

	server struct {
		opts       *Options
		app        *echo.Echo
		tokens     *TokenIssuer
		validate   *validator.Validate
		translator ut.Translator
	}
)

var _ Server = (*server)(nil)

func NewServer(opts *Options) Server {
	s := &server{
		opts:       opts,
		app:        echo.New(),
		tokens:     NewTokenIssuer(opts.Conf),
		validate:   validator.New(),
		translator: core.NewTranslator(),
	}
	core.InitValidators(s.validate, s.translator)
	user.InitValidators(s.validate, s.translator)
	library.InitValidators(s.validate, s.translator)
	s.setup()
	return s
}

func (s *server) setup() {
	conf := s.opts.Conf

	s.app.HideBanner = true
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !s.opts.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.opts.Logger, s.translator, s.opts.SignalShutdown)
	s.app.Debug = conf.Debug

	s.app.GET("/", s.home)

	v1 := s.app.Group("/v1")
	jwt := s.tokens.Middleware()

	registerUserAPI(v1, jwt, &userApi{
		svc:      s.opts.UserSvc,
		tokens:   s.tokens,
		validate: s.validate,
	})
	registerLibraryAPI(v1, jwt, &libraryApi{
		svc:      s.opts.LibrarySvc,
		sweeper:  s.opts.Sweeper,
		validate: s.validate,
	})
}

func (s *server) Start() error {
	return s.app.Start(s.opts.Conf.Server.Address)
}

func (s *server) Stop(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func (s *server) home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to "+s.opts.Conf.AppName+" API!")
}
