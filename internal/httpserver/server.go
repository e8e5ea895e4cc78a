package httpserver

import (
	"context"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/koksal000/engel/internal/call"
	"github.com/koksal000/engel/internal/storage"
	"github.com/koksal000/engel/internal/store"
)

// Analyzer produces the preliminary assessment from an uploaded photo.
type Analyzer interface {
	Assess(ctx context.Context, photo []byte, mimeType, name, surname string) (store.Assessment, error)
}

// Referrals attaches a referral decision to an application.
type Referrals interface {
	Attach(ctx context.Context, appID, doctor, date, hour string) (*store.Application, error)
}

// Options carries the dependencies the server routes need.
type Options struct {
	Applications store.Applications
	Calls        store.Calls
	Analyzer     Analyzer
	Photos       storage.Photos
	Referrals    Referrals
	Session      *call.Session
	Capture      CaptureConfig
}

// Server is the HTTP and websocket front of the application.
type Server struct {
	echo *echo.Echo
	opts Options
}

// New builds a configured Echo server with all routes registered.
func New(opts Options) *Server {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	s := &Server{echo: e, opts: opts}

	e.GET("/healthz", s.handleHealthz)
	api := e.Group("/api")
	api.POST("/applications", s.handleCreateApplication)
	api.GET("/applications", s.handleListApplications)
	api.GET("/calls", s.handleListCalls)
	api.POST("/applications/:id/referral", s.handleAttachReferral)
	e.GET("/ws/session", s.handleSessionSocket)

	return s
}

// Handler exposes the underlying router, mostly for tests.
func (s *Server) Handler() *echo.Echo { return s.echo }

func (s *Server) Start(address string) error {
	return s.echo.Start(address)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) handleHealthz(c echo.Context) error {
	return c.String(200, "ok")
}
