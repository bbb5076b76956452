package middleware

import (
	"entryready/config"
	"entryready/internal/logger"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
)

const (
	UserIDHeader = "X-User-ID"
	UserIDLocal  = "userID"
)

type Middleware struct {
	config config.Config
	log    logger.Logger
}

func New(config config.Config) Middleware {
	return Middleware{
		config: config,
		log:    logger.New("middleware"),
	}
}

// RequireUser takes the traveler identity set by the upstream gateway. The
// websocket upgrade may pass it as a userId query parameter instead.
func (m Middleware) RequireUser() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := strings.TrimSpace(c.Get(UserIDHeader))
		if userID == "" {
			userID = strings.TrimSpace(c.Query("userId"))
		}
		if userID == "" {
			return c.Status(fiber.StatusUnauthorized).
				JSON(fiber.Map{"message": "error", "error": "missing " + UserIDHeader + " header"})
		}

		c.Locals(UserIDLocal, userID)
		return c.Next()
	}
}

func (m Middleware) RequestLogger() fiber.Handler {
	log := m.log.Function("RequestLogger")
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		kv := []any{
			"method", c.Method(),
			"path", c.Path(),
			"status", status,
			"duration", time.Since(start).String(),
		}
		if status >= fiber.StatusInternalServerError {
			log.Warn("Request failed", kv...)
		} else {
			log.Debug("Request handled", kv...)
		}
		return err
	}
}

// UserID reads the identity stored by RequireUser.
func UserID(c *fiber.Ctx) string {
	userID, _ := c.Locals(UserIDLocal).(string)
	return userID
}
