// Package server exposes the web application: HTML form routes for
// registration and login, and the JSON task API.
package server

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"taskboard/internal/session"
	"taskboard/internal/store"
	"taskboard/internal/task"
)

type Server struct {
	echo     *echo.Echo
	users    store.UserStore
	tasks    *task.Service
	sessions *session.Manager
	log      zerolog.Logger
}

func New(users store.UserStore, tasks *task.Service, sessions *session.Manager, log zerolog.Logger) *Server {
	s := &Server{
		users:    users,
		tasks:    tasks,
		sessions: sessions,
		log:      log,
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Renderer = newRenderer()
	e.Use(echomw.Recover())
	e.Use(s.requestLogger)
	e.Use(sessions.Resolve)

	e.GET("/", s.index)
	e.GET("/login", s.loginPage)
	e.POST("/login", s.login)
	e.GET("/register", s.registerPage)
	e.POST("/register", s.register)
	e.GET("/logout", s.logout)

	api := e.Group("/api", session.RequireAPI)
	api.GET("/tasks", s.listTasks)
	api.POST("/tasks", s.createTask)
	api.PUT("/tasks/:id", s.updateTask)
	api.DELETE("/tasks/clear-completed", s.clearCompleted)
	api.DELETE("/tasks/:id", s.deleteTask)
	api.GET("/user", s.getUser)

	s.echo = e
	return s
}

// Start blocks serving HTTP on addr.
func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

// ServeHTTP lets tests drive the full middleware and routing chain.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

func (s *Server) requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		if err != nil {
			c.Error(err)
		}
		s.log.Info().
			Str("method", c.Request().Method).
			Str("path", c.Request().URL.Path).
			Int("status", c.Response().Status).
			Dur("duration", time.Since(start)).
			Msg("request")
		return nil
	}
}
