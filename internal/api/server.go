// Package api exposes the progression engine over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/rs/cors"

	"github.com/mahaa2402/e-learning-2ndversion-sub000/internal/engine"
	"github.com/mahaa2402/e-learning-2ndversion-sub000/internal/logging"
	"github.com/mahaa2402/e-learning-2ndversion-sub000/internal/store"
	"github.com/mahaa2402/e-learning-2ndversion-sub000/internal/unlock"
)

// Progression is the engine surface served by the API.
type Progression interface {
	GetProgress(ctx context.Context, learnerID, courseID string) (*engine.Progress, error)
	AccessModule(ctx context.Context, learnerID, courseID, moduleID string) (*unlock.ModuleStatus, error)
	StartQuiz(ctx context.Context, learnerID, courseID, moduleID string) (*engine.QuizView, error)
	SaveAnswers(ctx context.Context, learnerID, sessionID string, answers map[string]int) error
	SubmitQuiz(ctx context.Context, sub engine.Submission) (*engine.SubmitResult, error)
	CompleteModule(ctx context.Context, learnerID, courseID, moduleID string) (*engine.CompletionResult, error)
	Certificate(ctx context.Context, learnerID, courseID string) (*store.Certificate, error)
	Events(ctx context.Context, q store.EventQuery) ([]store.Event, error)
}

var _ Progression = (*engine.Engine)(nil)

type (
	Options struct {
		Engine      Progression
		Logger      logging.Logger
		JWTSecret   string
		CORSOrigins []string

		// Health reports whether the backing store is reachable.
		Health func(context.Context) error

		Debug          bool
		DisableReqLogs bool
	}

	Server struct {
		opts *Options
		app  *echo.Echo
	}
)

func NewServer(opts *Options) *Server {
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	s := &Server{
		opts: opts,
		app:  echo.New(),
	}
	s.setup()
	return s
}

func (s *Server) setup() {
	s.app.HideBanner = true
	s.app.HidePort = true
	if gl, ok := s.opts.Logger.(*logging.GommonLogger); ok {
		s.app.Logger = gl.Std()
	}

	s.app.Pre(middleware.RemoveTrailingSlash())
	if !s.opts.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	if !s.opts.Debug {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}
	if len(s.opts.CORSOrigins) > 0 {
		c := cors.New(cors.Options{
			AllowedOrigins: s.opts.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
			AllowedHeaders: []string{echo.HeaderAuthorization, echo.HeaderContentType},
			MaxAge:         int((12 * time.Hour).Seconds()),
		})
		s.app.Use(echo.WrapMiddleware(c.Handler))
	}

	rv := newRequestValidator()
	s.app.Validator = rv
	s.app.HTTPErrorHandler = newHTTPErrorHandler(s.opts.Logger, rv)
	s.app.Debug = s.opts.Debug

	s.app.GET("/healthz", s.health)

	v1 := s.app.Group("/v1", authMiddleware([]byte(s.opts.JWTSecret)))
	registerProgressAPI(v1, s.opts.Engine)
}

// Start serves on addr until Stop is called.
func (s *Server) Start(addr string) error {
	err := s.app.Start(addr)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Stop(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.app.ServeHTTP(w, r)
}

func (s *Server) health(c echo.Context) error {
	if s.opts.Health != nil {
		if err := s.opts.Health(c.Request().Context()); err != nil {
			return &engine.UnavailableError{Err: err}
		}
	}
	return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
}
