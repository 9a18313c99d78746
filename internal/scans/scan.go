package scans

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"qrlink/internal/pkg/user_agent"
	"qrlink/internal/qrcodes"
)

// UnknownLabel replaces blank or unresolvable attributes.
const UnknownLabel = "Unknown"

// DeviceType is the coarse category of the scanning device. It is stored as
// an integer column.
type DeviceType int

const (
	DeviceDesktop DeviceType = iota
	DeviceMobile
	DeviceTablet
	DeviceOther
)

var deviceTypeNames = map[DeviceType]string{
	DeviceDesktop: "Desktop",
	DeviceMobile:  "Mobile",
	DeviceTablet:  "Tablet",
	DeviceOther:   "Other",
}

func (d DeviceType) String() string {
	if name, ok := deviceTypeNames[d]; ok {
		return name
	}
	return UnknownLabel
}

// ParseDeviceType accepts a category name in any letter case.
func ParseDeviceType(s string) (DeviceType, error) {
	for d, name := range deviceTypeNames {
		if strings.EqualFold(strings.TrimSpace(s), name) {
			return d, nil
		}
	}
	return DeviceOther, fmt.Errorf("unknown device type %q", s)
}

func (d DeviceType) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *DeviceType) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	parsed, err := ParseDeviceType(name)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// DeviceTypeFor picks the category of a classified client. Desktop wins over
// tablet, tablet over mobile; anything else is Other.
func DeviceTypeFor(ua user_agent.UserAgent) DeviceType {
	switch {
	case ua.Desktop:
		return DeviceDesktop
	case ua.Tablet:
		return DeviceTablet
	case ua.Mobile:
		return DeviceMobile
	default:
		return DeviceOther
	}
}

// ScanRecord is one resolution of a short code. Rows are append-only.
type ScanRecord struct {
	ID              string          `gorm:"primaryKey;type:varchar(36)" json:"id"`
	QRCodeID        string          `gorm:"column:qr_code_id;not null;index:idx_scan_records_qr_created,priority:1" json:"qrCodeId"`
	QRCode          *qrcodes.QRCode `gorm:"foreignKey:QRCodeID;constraint:OnDelete:CASCADE" json:"-"`
	BrowserInfo     string          `gorm:"not null" json:"browserInfo"`
	OperatingSystem string          `gorm:"not null" json:"operatingSystem"`
	DeviceType      DeviceType      `gorm:"not null" json:"deviceType"`
	Country         string          `gorm:"not null" json:"country"`
	CreatedAt       time.Time       `gorm:"not null;index:idx_scan_records_qr_created,priority:2" json:"createdAt"`
}

func (ScanRecord) TableName() string {
	return "scan_records"
}

// labelOrUnknown returns s, or UnknownLabel when s is blank.
func labelOrUnknown(s string) string {
	if s = strings.TrimSpace(s); s == "" {
		return UnknownLabel
	}
	return s
}
