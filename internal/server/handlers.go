package server

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"zola/internal/database"
	"zola/internal/middleware"
	"zola/internal/models"
	"zola/internal/service"
)

const (
	statusHealthy   = "healthy"
	statusUnhealthy = "unhealthy"
	statusDisabled  = "disabled"
)

// HealthCheck reports database and redis status.
// @Summary Health check
// @Description Reports database and redis connectivity. Redis reads "disabled" when not configured.
// @Tags system
// @Produce json
// @Success 200 {object} HealthResponse
// @Failure 503 {object} HealthResponse
// @Router /health [get]
func (s *Server) HealthCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	resp := HealthResponse{Status: statusHealthy, Database: statusHealthy, Redis: statusDisabled, Time: time.Now()}
	if err := database.Ping(ctx, s.db); err != nil {
		resp.Database = statusUnhealthy
	}
	if s.redis != nil {
		resp.Redis = statusHealthy
		if err := s.redis.Ping(ctx).Err(); err != nil {
			resp.Redis = statusUnhealthy
		}
	}

	status := fiber.StatusOK
	if resp.Database == statusUnhealthy || resp.Redis == statusUnhealthy {
		status = fiber.StatusServiceUnavailable
		resp.Status = statusUnhealthy
	}
	return c.Status(status).JSON(resp)
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status   string    `json:"status"`
	Database string    `json:"database"`
	Redis    string    `json:"redis"`
	Time     time.Time `json:"time"`
}

// Ping is the liveness probe.
// @Summary Liveness probe
// @Tags system
// @Produce plain
// @Success 200 {string} string "pong"
// @Router /ping [get]
func (s *Server) Ping(c *fiber.Ctx) error {
	return c.SendString("pong")
}

// ConfirmEmail activates the account for activation_key and redirects to the
// frontend, carrying a backendError message on failure.
// @Summary Confirm an email address
// @Description Consumes the activation key sent at registration.
// @Tags accounts
// @Param activation_key query string true "Activation key"
// @Success 302 "Redirect to FRONTEND_BASE_URL/confirm-email"
// @Router /confirm-email [get]
func (s *Server) ConfirmEmail(c *fiber.Ctx) error {
	target := s.config.FrontendBaseURL + "/confirm-email"

	err := s.userService.ConfirmEmail(c.UserContext(), c.Query("activation_key"))
	if err == nil {
		return c.Redirect(target, fiber.StatusFound)
	}

	if !service.IsActivationError(err) {
		return err
	}
	msg := activationMessage(err)
	middleware.Logger.InfoContext(c.UserContext(), "email confirmation rejected", slog.String("reason", msg))
	return c.Redirect(target+"?backendError="+url.QueryEscape(msg), fiber.StatusFound)
}

func activationMessage(err error) string {
	switch {
	case errors.Is(err, models.ErrActivationMissing):
		return "No activation key was provided"
	case errors.Is(err, models.ErrActivationInvalid):
		return "This activation key is invalid"
	case errors.Is(err, models.ErrActivationExpired):
		return "This activation key has expired"
	}
	return ""
}

// RequireUpgrade rejects plain HTTP requests on websocket routes and checks
// the book exists before the handshake.
func (s *Server) RequireUpgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	id, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil || id == 0 {
		return models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError("invalid book id"))
	}
	if _, err := s.bookService.GetByID(c.UserContext(), uint(id)); err != nil {
		if models.IsCode(err, models.CodeNotFound) {
			return models.RespondWithError(c, fiber.StatusNotFound, err)
		}
		return err
	}
	c.Locals("bookID", uint(id))
	return c.Next()
}

// CommentStreamHandler pushes comment_created events for one book.
// @Summary Comment stream
// @Description Websocket stream of comment_created events for a book.
// @Tags realtime
// @Param id path int true "Book id"
// @Success 101 "Switching Protocols"
// @Failure 404 {object} models.ErrorResponse
// @Failure 426 {object} models.ErrorResponse
// @Router /ws/books/{id}/comments [get]
func (s *Server) CommentStreamHandler() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		bookID, _ := conn.Locals("bookID").(uint)

		client, err := s.hub.Register(bookID, conn)
		if err != nil {
			middleware.Logger.Warn("comment stream rejected",
				slog.Uint64("book_id", uint64(bookID)),
				slog.String("error", err.Error()),
			)
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"`+err.Error()+`"}`))
			_ = conn.Close()
			return
		}

		client.Serve()
	})
}
