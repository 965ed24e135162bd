package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"taskboard/internal/auth"
	"taskboard/internal/session"
	"taskboard/internal/store"
	"taskboard/internal/task"
)

type createTaskRequest struct {
	Text     string `json:"text"`
	Priority string `json:"priority"`
}

type updateTaskRequest struct {
	Text      *string `json:"text"`
	Completed *bool   `json:"completed"`
	Priority  *string `json:"priority"`
}

// decodeJSON rejects unknown fields so malformed clients fail loudly
// instead of being silently ignored.
func decodeJSON(c echo.Context, v any) error {
	dec := json.NewDecoder(c.Request().Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func (s *Server) internalError(c echo.Context, err error) error {
	s.log.Error().Err(err).Str("path", c.Request().URL.Path).Msg("request failed")
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal server error"})
}

// --- pages ---

func (s *Server) index(c echo.Context) error {
	username, ok := session.Username(c)
	if !ok {
		return c.Redirect(http.StatusFound, "/login")
	}
	return c.Render(http.StatusOK, "index.html", pageData{Username: username})
}

func (s *Server) loginPage(c echo.Context) error {
	return c.Render(http.StatusOK, "login.html", pageData{})
}

func (s *Server) login(c echo.Context) error {
	username := c.FormValue("username")
	password := c.FormValue("password")

	u, err := s.users.GetUser(c.Request().Context(), username)
	if errors.Is(err, store.ErrNotFound) || (err == nil && !auth.CheckPassword(u.PasswordHash, password)) {
		return c.Render(http.StatusOK, "login.html", pageData{Error: "invalid username or password"})
	}
	if err != nil {
		return s.internalError(c, err)
	}
	if err := s.sessions.Login(c, username); err != nil {
		return s.internalError(c, err)
	}
	return c.Redirect(http.StatusFound, "/")
}

func (s *Server) registerPage(c echo.Context) error {
	return c.Render(http.StatusOK, "register.html", pageData{})
}

func (s *Server) register(c echo.Context) error {
	username := c.FormValue("username")
	password := c.FormValue("password")
	confirm := c.FormValue("confirm_password")

	if username == "" {
		return c.Render(http.StatusOK, "register.html", pageData{Error: "username is required"})
	}
	if err := auth.ValidateNewPassword(password, confirm); err != nil {
		return c.Render(http.StatusOK, "register.html", pageData{Error: err.Error()})
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return s.internalError(c, err)
	}
	if _, err := s.users.CreateUser(c.Request().Context(), username, hash); err != nil {
		if errors.Is(err, store.ErrDuplicateUser) {
			return c.Render(http.StatusOK, "register.html", pageData{Error: "username already exists"})
		}
		return s.internalError(c, err)
	}
	if err := s.sessions.Login(c, username); err != nil {
		return s.internalError(c, err)
	}
	return c.Redirect(http.StatusFound, "/")
}

func (s *Server) logout(c echo.Context) error {
	s.sessions.Logout(c)
	return c.Redirect(http.StatusFound, "/login")
}

// --- API ---

func (s *Server) listTasks(c echo.Context) error {
	owner, _ := session.Username(c)
	tasks, err := s.tasks.List(c.Request().Context(), owner)
	if err != nil {
		return s.internalError(c, err)
	}
	if tasks == nil {
		tasks = []store.Task{}
	}
	return c.JSON(http.StatusOK, tasks)
}

func (s *Server) createTask(c echo.Context) error {
	owner, _ := session.Username(c)

	var req createTaskRequest
	if err := decodeJSON(c, &req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	priority, err := store.ParsePriority(req.Priority)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}

	t, err := s.tasks.Create(c.Request().Context(), owner, req.Text, priority)
	if errors.Is(err, task.ErrEmptyText) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "text is required"})
	}
	if err != nil {
		return s.internalError(c, err)
	}
	return c.JSON(http.StatusCreated, t)
}

func (s *Server) updateTask(c echo.Context) error {
	owner, _ := session.Username(c)

	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid task id"})
	}

	var req updateTaskRequest
	if err := decodeJSON(c, &req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}

	patch := store.TaskPatch{Text: req.Text, Completed: req.Completed}
	if req.Priority != nil {
		priority, err := store.ParsePriority(*req.Priority)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
		}
		patch.Priority = &priority
	}

	t, err := s.tasks.Update(c.Request().Context(), owner, id, patch)
	if errors.Is(err, store.ErrNotFound) {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "task not found"})
	}
	if err != nil {
		return s.internalError(c, err)
	}
	return c.JSON(http.StatusOK, t)
}

func (s *Server) deleteTask(c echo.Context) error {
	owner, _ := session.Username(c)

	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid task id"})
	}

	t, err := s.tasks.Delete(c.Request().Context(), owner, id)
	if errors.Is(err, store.ErrNotFound) {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "task not found"})
	}
	if err != nil {
		return s.internalError(c, err)
	}
	return c.JSON(http.StatusOK, t)
}

func (s *Server) clearCompleted(c echo.Context) error {
	owner, _ := session.Username(c)

	n, err := s.tasks.ClearCompleted(c.Request().Context(), owner)
	if err != nil {
		return s.internalError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"removed": n})
}

func (s *Server) getUser(c echo.Context) error {
	owner, _ := session.Username(c)

	u, err := s.users.GetUser(c.Request().Context(), owner)
	if errors.Is(err, store.ErrNotFound) {
		// Session outlived the account; treat as unauthenticated.
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}
	if err != nil {
		return s.internalError(c, err)
	}
	return c.JSON(http.StatusOK, u)
}
