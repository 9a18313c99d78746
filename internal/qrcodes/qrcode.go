package qrcodes

import (
	"net/url"
	"strings"
	"time"
)

// Default visual styles applied when a style is left blank by older clients.
const (
	DefaultDotStyle          = "square"
	DefaultCornerDotStyle    = "square"
	DefaultCornerSquareStyle = "square"
	DefaultColor             = "#000000"
)

// QRCode is a user-owned short link rendered as a QR image. Scan records
// reference it by ID, so the short code can change without losing history.
type QRCode struct {
	ID                string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	OwnerID           string    `gorm:"not null;index" json:"ownerId"`
	DisplayName       string    `gorm:"not null" json:"displayName"`
	RedirectURL       string    `gorm:"not null" json:"redirectUrl"`
	ShortCode         string    `gorm:"not null;uniqueIndex" json:"shortCode"`
	DotStyle          string    `gorm:"not null;default:square" json:"dotStyle"`
	CornerDotStyle    string    `gorm:"not null;default:square" json:"cornerDotStyle"`
	CornerSquareStyle string    `gorm:"not null;default:square" json:"cornerSquareStyle"`
	Color             string    `gorm:"not null;default:'#000000'" json:"color"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

func (QRCode) TableName() string {
	return "qr_codes"
}

// IsOwner reports whether callerID owns the QR code.
func IsOwner(qr *QRCode, callerID string) bool {
	return qr != nil && callerID != "" && qr.OwnerID == callerID
}

// EnsureHTTPSScheme prefixes https:// to URLs that carry no scheme.
func EnsureHTTPSScheme(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return trimmed
	}
	if strings.Contains(trimmed, "://") {
		return trimmed
	}
	if u, err := url.Parse(trimmed); err == nil && u.Scheme != "" && u.Opaque != "" {
		// mailto:, tel: and similar schemes have no "//"
		if !strings.Contains(u.Scheme, ".") && u.Scheme != "localhost" {
			return trimmed
		}
	}
	return "https://" + trimmed
}

// ScanURL is the public redirect URL encoded into the QR image.
func ScanURL(baseURL, shortCode string) string {
	return strings.TrimRight(baseURL, "/") + "/scan/" + url.PathEscape(shortCode)
}
