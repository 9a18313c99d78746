package internal

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"qrlink/internal/http"
	"qrlink/internal/http/middleware"
	"qrlink/internal/metrics"
)

// publicCORSConfig is shared by the public scan endpoint and the API.
var publicCORSConfig = cors.Config{
	AllowOrigins: "*",
	AllowMethods: "GET,POST,PUT,DELETE,HEAD,OPTIONS",
	AllowHeaders: "Origin, Content-Type, Accept, Authorization, User-Agent",
}

// MountAppRoutes mounts all application routes on app.
func MountAppRoutes(app *fiber.App, deps *http.Deps) {
	cfg := deps.Config

	// Rate limiting would interfere with development and tests.
	conditionalRateLimiter := func(handler fiber.Handler) fiber.Handler {
		return func(c *fiber.Ctx) error {
			if cfg.IsProduction() {
				return handler(c)
			}
			return c.Next()
		}
	}

	// 120 scans per minute per client. Behind a proxy the peer address is
	// the proxy, so the key follows the recorder's client address.
	scanRateLimiter := conditionalRateLimiter(limiter.New(limiter.Config{
		Max:        120,
		Expiration: time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return http.ClientIP(c, cfg.TrustForwardedFor)
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "Too many requests"})
		},
	}))

	app.Use(metrics.Middleware())

	// === ROOT ROUTES ===
	app.Get("/_health", http.Handle(deps, http.HealthIndexAction))
	app.Head("/_health", http.Handle(deps, http.HealthIndexAction))
	app.Get("/metrics", metrics.Handler())

	// === PUBLIC SCAN ROUTE ===
	app.Get("/scan/:shortCode", scanRateLimiter, http.Handle(deps, http.ScanRedirectAction))

	// === AUTHENTICATED API ROUTES ===
	api := app.Group("/api", cors.New(publicCORSConfig), middleware.BearerAuth([]byte(cfg.JWTSecret), deps.Logger))

	api.Get("/qr-codes", http.Handle(deps, http.QRCodesIndexAction))
	api.Post("/qr-codes", http.Handle(deps, http.QRCodeCreateAction))
	api.Get("/qr-codes/:id", http.Handle(deps, http.QRCodeShowAction))
	api.Put("/qr-codes/:id", http.Handle(deps, http.QRCodeUpdateAction))
	api.Delete("/qr-codes/:id", http.Handle(deps, http.QRCodeDeleteAction))

	api.Get("/scan-records", http.Handle(deps, http.ScanRecordsIndexAction))
	api.Get("/scan-records/analytics", http.Handle(deps, http.ScanAnalyticsAction))
}
