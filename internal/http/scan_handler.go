package http

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"

	"qrlink/internal/scans"
)

// ScanRedirectAction resolves a short code, hands the scan to the
// background recorder and redirects. Recording never delays or fails the
// redirect.
func ScanRedirectAction(ctx *Context) error {
	shortCode := utils.CopyString(ctx.Params("shortCode"))

	target, err := ctx.Redirects.Resolve(ctx.UserContext(), shortCode)
	if err != nil {
		return respondError(ctx, err)
	}

	if ctx.Recorder != nil {
		ctx.Recorder.RecordScan(requestMetadata(ctx.Ctx), target.QRCodeID)
	}

	return ctx.Redirect(target.RedirectURL, fiber.StatusFound)
}

// ClientIP is the scanning client's address as the recorder sees it, or
// fiber's peer address when none can be parsed.
func ClientIP(c *fiber.Ctx, trustForwardedFor bool) string {
	if ip := scans.ClientIP(requestMetadata(c), trustForwardedFor); ip != "" {
		return ip
	}
	return c.IP()
}

// requestMetadata copies what the recorder needs out of the request. fiber
// reuses request buffers once the handler returns, so every value is
// copied.
func requestMetadata(c *fiber.Ctx) scans.RequestMetadata {
	headers := make(map[string]string, 8)
	c.Request().Header.VisitAll(func(key, value []byte) {
		name := strings.ToLower(string(key))
		if name == "user-agent" || name == "x-forwarded-for" || strings.HasPrefix(name, "sec-ch-ua") {
			headers[name] = string(value)
		}
	})

	return scans.RequestMetadata{
		Headers:    headers,
		RemoteAddr: c.Context().RemoteAddr().String(),
	}
}
