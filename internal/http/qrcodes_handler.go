package http

import (
	"github.com/gofiber/fiber/v2"

	"qrlink/internal/apperr"
	"qrlink/internal/models"
	"qrlink/internal/qrcodes"
)

type qrCodeResponse struct {
	*qrcodes.QRCode
	ScanURL string `json:"scanUrl"`
}

func (ctx *Context) presentQRCode(qr *qrcodes.QRCode) qrCodeResponse {
	return qrCodeResponse{QRCode: qr, ScanURL: qrcodes.ScanURL(ctx.Config.PublicBaseURL, qr.ShortCode)}
}

// QRCodesIndexAction lists the caller's QR codes.
func QRCodesIndexAction(ctx *Context) error {
	page, err := ctx.QRCodes.List(ctx.UserContext(), ctx.CallerID(), qrcodes.ListParams{
		Search:     ctx.Query("search"),
		SortBy:     ctx.Query("sortBy"),
		Descending: ctx.QueryBool("descending", false),
		Page:       ctx.QueryInt("page", 1),
		PageSize:   ctx.QueryInt("pageSize", models.DefaultPageSize),
	})
	if err != nil {
		return respondError(ctx, err)
	}

	items := make([]qrCodeResponse, len(page.Items))
	for i := range page.Items {
		items[i] = ctx.presentQRCode(&page.Items[i])
	}
	return ctx.JSON(models.Page[qrCodeResponse]{
		Items:    items,
		Total:    page.Total,
		Page:     page.Page,
		PageSize: page.PageSize,
	})
}

// QRCodeShowAction returns one QR code owned by the caller.
func QRCodeShowAction(ctx *Context) error {
	qr, err := ctx.QRCodes.GetByID(ctx.UserContext(), ctx.Params("id"), ctx.CallerID())
	if err != nil {
		return respondError(ctx, err)
	}
	return ctx.JSON(ctx.presentQRCode(qr))
}

// QRCodeCreateAction creates a QR code for the caller.
func QRCodeCreateAction(ctx *Context) error {
	var input qrcodes.Input
	if err := ctx.BodyParser(&input); err != nil {
		return respondError(ctx, apperr.Validation("body", "is not a valid QR code payload"))
	}

	qr, err := ctx.QRCodes.Create(ctx.UserContext(), ctx.CallerID(), input)
	if err != nil {
		return respondError(ctx, err)
	}
	return ctx.Status(fiber.StatusCreated).JSON(ctx.presentQRCode(qr))
}

// QRCodeUpdateAction replaces the editable fields of a QR code.
func QRCodeUpdateAction(ctx *Context) error {
	var input qrcodes.Input
	if err := ctx.BodyParser(&input); err != nil {
		return respondError(ctx, apperr.Validation("body", "is not a valid QR code payload"))
	}

	qr, err := ctx.QRCodes.Update(ctx.UserContext(), ctx.Params("id"), ctx.CallerID(), input)
	if err != nil {
		return respondError(ctx, err)
	}
	return ctx.JSON(ctx.presentQRCode(qr))
}

// QRCodeDeleteAction deletes a QR code and its scans.
func QRCodeDeleteAction(ctx *Context) error {
	if err := ctx.QRCodes.Delete(ctx.UserContext(), ctx.Params("id"), ctx.CallerID()); err != nil {
		return respondError(ctx, err)
	}
	return ctx.SendStatus(fiber.StatusNoContent)
}
