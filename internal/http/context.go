package http

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"qrlink/internal/analytics"
	"qrlink/internal/config"
	"qrlink/internal/http/middleware"
	"qrlink/internal/qrcodes"
	"qrlink/internal/redirects"
	"qrlink/internal/scans"
)

// Pinger reports database reachability.
type Pinger interface {
	Ping() error
}

// ScanRecorder accepts scans for background recording.
type ScanRecorder interface {
	RecordScan(meta scans.RequestMetadata, qrCodeID string)
}

// Deps are the collaborators shared by every action.
type Deps struct {
	Config    *config.Config
	Logger    *slog.Logger
	DB        Pinger
	QRCodes   *qrcodes.Service
	Scans     *scans.Store
	Recorder  ScanRecorder
	Redirects *redirects.Resolver
	Analytics *analytics.Service
}

// Context is what actions receive: the fiber request plus the shared
// dependencies.
type Context struct {
	*fiber.Ctx
	*Deps
}

// Action is a request handler written against Context.
type Action func(ctx *Context) error

// Handle adapts an Action to fiber.
func Handle(deps *Deps, action Action) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return action(&Context{Ctx: c, Deps: deps})
	}
}

// CallerID is the authenticated caller, empty on public routes.
func (ctx *Context) CallerID() string {
	return middleware.CallerID(ctx.Ctx)
}
