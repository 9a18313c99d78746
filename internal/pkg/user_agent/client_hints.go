package user_agent

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// ClientHints holds the User-Agent Client Hints sent by Chromium browsers.
type ClientHints struct {
	Platform        string
	PlatformVersion string
	Mobile          *bool
	Brands          []string
	Model           string
}

// ClientHintsFromHeaders extracts hints from request headers. Header names are
// matched case-insensitively.
func ClientHintsFromHeaders(headers map[string]string) ClientHints {
	get := func(name string) string {
		if v, ok := headers[name]; ok {
			return v
		}
		for k, v := range headers {
			if strings.EqualFold(k, name) {
				return v
			}
		}
		return ""
	}

	hints := ClientHints{
		Platform:        unquote(get("Sec-CH-UA-Platform")),
		PlatformVersion: unquote(get("Sec-CH-UA-Platform-Version")),
		Model:           unquote(get("Sec-CH-UA-Model")),
		Brands:          parseBrands(get("Sec-CH-UA")),
	}

	switch strings.TrimSpace(get("Sec-CH-UA-Mobile")) {
	case "?1":
		mobile := true
		hints.Mobile = &mobile
	case "?0":
		mobile := false
		hints.Mobile = &mobile
	}
	return hints
}

var platformNames = map[string]string{
	"windows":   "Windows",
	"macos":     "Mac",
	"mac os x":  "Mac",
	"linux":     "GNU/Linux",
	"chrome os": "Chrome OS",
	"chromeos":  "Chrome OS",
	"android":   "Android",
	"ios":       "iOS",
	"ipados":    "iPadOS",
}

func (h ClientHints) osName() string {
	platform := strings.TrimSpace(h.Platform)
	if platform == "" || strings.EqualFold(platform, "unknown") {
		return ""
	}
	if name, ok := platformNames[cases.Fold().String(platform)]; ok {
		return name
	}
	return cases.Title(language.Und, cases.NoLower).String(platform)
}

var brandNames = map[string]string{
	"google chrome":    "Chrome",
	"microsoft edge":   "Microsoft Edge",
	"opera":            "Opera",
	"brave":            "Brave",
	"yandex":           "Yandex Browser",
	"samsung internet": "Samsung Browser",
}

// browserName picks the first meaningful brand, skipping the generic
// "Chromium" entry and GREASE placeholders such as "Not A(Brand".
func (h ClientHints) browserName() string {
	for _, brand := range h.Brands {
		folded := cases.Fold().String(brand)
		if folded == "chromium" || strings.Contains(folded, "not") && strings.Contains(folded, "brand") {
			continue
		}
		if name, ok := brandNames[folded]; ok {
			return name
		}
		return brand
	}
	return ""
}

// parseBrands reads a structured-header brand list:
// "Chromium";v="118", "Google Chrome";v="118", "Not=A?Brand";v="99"
func parseBrands(header string) []string {
	if strings.TrimSpace(header) == "" {
		return nil
	}
	var brands []string
	for _, item := range strings.Split(header, ",") {
		item = strings.TrimSpace(item)
		var name string
		if strings.HasPrefix(item, `"`) {
			if end := strings.Index(item[1:], `"`); end >= 0 {
				name = item[1 : 1+end]
			}
		} else {
			name, _, _ = strings.Cut(item, ";")
		}
		if name = strings.TrimSpace(name); name != "" {
			brands = append(brands, name)
		}
	}
	return brands
}

func unquote(v string) string {
	return strings.Trim(strings.TrimSpace(v), `"`)
}
