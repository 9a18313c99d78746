package middleware

import (
	"errors"
	"log/slog"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

// CallerIDKey is the fiber.Locals key holding the authenticated caller id.
const CallerIDKey = "callerID"

// BearerAuth validates an HS256 JWT and stores its subject as the caller id.
// Expects: Authorization: Bearer <token>
func BearerAuth(secret []byte, logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get(fiber.HeaderAuthorization)
		if authHeader == "" {
			return unauthorized(c, "Missing Authorization header")
		}

		if !strings.HasPrefix(authHeader, "Bearer ") {
			return unauthorized(c, "Invalid Authorization header format. Expected: Bearer <token>")
		}

		raw := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
		if raw == "" {
			return unauthorized(c, "Token is empty")
		}

		subject, err := ParseSubject(raw, secret)
		if err != nil {
			logger.Debug("Rejected bearer token", slog.Any("error", err))
			return unauthorized(c, "Invalid token")
		}

		c.Locals(CallerIDKey, subject)
		return c.Next()
	}
}

// ParseSubject verifies token with secret and returns its "sub" claim.
func ParseSubject(token string, secret []byte) (string, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", err
	}

	subject, err := parsed.Claims.GetSubject()
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(subject) == "" {
		return "", errors.New("token has no subject")
	}
	return subject, nil
}

// CallerID returns the caller id set by BearerAuth.
func CallerID(c *fiber.Ctx) string {
	id, _ := c.Locals(CallerIDKey).(string)
	return id
}

func unauthorized(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
		"error": msg,
	})
}
