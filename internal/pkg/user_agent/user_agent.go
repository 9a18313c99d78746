package user_agent

import (
	"embed"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"go.elara.ws/pcre"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

const Unknown = "Unknown"

// Device form factors reported in UserAgent.Device.
const (
	DeviceDesktop    = "desktop"
	DeviceSmartphone = "smartphone"
	DeviceTablet     = "tablet"
	DeviceTV         = "tv"
	DeviceConsole    = "console"
)

type UserAgent struct {
	UserAgent      string
	OS             string
	OSFamily       string
	OSVersion      string
	Browser        string
	BrowserVersion string
	Device         string
	Mobile         bool
	Tablet         bool
	Desktop        bool
	Bot            bool
	BotName        string
}

// Options tunes a single Parse call.
type Options struct {
	// SkipBotDetection classifies automated clients like any other client.
	SkipBotDetection bool
	Hints            ClientHints
}

//go:embed database/bots.yml
//go:embed database/oss.yml
//go:embed database/os_families.yml
//go:embed database/client/browsers.yml
//go:embed database/device/types.yml
var databaseFiles embed.FS

// Browser entry structure
type BrowserEntry struct {
	Regex   string `yaml:"regex"`
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

// OS entry structure
type OSEntry struct {
	Regex   string `yaml:"regex"`
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

// Device type entry structure
type DeviceEntry struct {
	Regex  string `yaml:"regex"`
	Device string `yaml:"device"`
}

// Bot entry structure
type BotEntry struct {
	Regex    string `yaml:"regex"`
	Name     string `yaml:"name"`
	Category string `yaml:"category"`
}

// desktopFamilies are OS families whose devices count as desktops unless the
// user agent identifies a TV or console.
var desktopFamilies = map[string]bool{
	"Windows":   true,
	"Mac":       true,
	"GNU/Linux": true,
	"Unix":      true,
	"Chrome OS": true,
}

// Compiled regex cache
type RegexCache struct {
	compiled map[string]*pcre.Regexp
	mutex    sync.RWMutex
}

func newRegexCache() *RegexCache {
	return &RegexCache{
		compiled: make(map[string]*pcre.Regexp),
	}
}

func (rc *RegexCache) get(pattern string) (*pcre.Regexp, error) {
	rc.mutex.RLock()
	if regex, exists := rc.compiled[pattern]; exists {
		rc.mutex.RUnlock()
		return regex, nil
	}
	rc.mutex.RUnlock()

	rc.mutex.Lock()
	defer rc.mutex.Unlock()

	// Double-check pattern
	if regex, exists := rc.compiled[pattern]; exists {
		return regex, nil
	}

	regex, err := pcre.Compile("(?i)" + pattern)
	if err != nil {
		return nil, err
	}
	rc.compiled[pattern] = regex
	return regex, nil
}

// Global parser instance
var (
	parser *DeviceDetectorParser
	once   sync.Once
)

type DeviceDetectorParser struct {
	browsers   []BrowserEntry
	oss        []OSEntry
	devices    []DeviceEntry
	bots       []BotEntry
	families   map[string]string // case-folded OS name => family
	regexCache *RegexCache
}

func loadYAML(path string, out any) {
	data, err := databaseFiles.ReadFile(path)
	if err != nil {
		slog.Default().Error("Failed to read user agent database", slog.String("file", path), slog.Any("error", err))
		return
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		slog.Default().Error("Failed to parse user agent database", slog.String("file", path), slog.Any("error", err))
	}
}

func getParser() *DeviceDetectorParser {
	once.Do(func() {
		parser = &DeviceDetectorParser{
			regexCache: newRegexCache(),
			families:   make(map[string]string),
		}

		loadYAML("database/client/browsers.yml", &parser.browsers)
		loadYAML("database/oss.yml", &parser.oss)
		loadYAML("database/bots.yml", &parser.bots)
		loadYAML("database/device/types.yml", &parser.devices)

		var families map[string][]string
		loadYAML("database/os_families.yml", &families)
		for family, names := range families {
			for _, name := range names {
				parser.families[cases.Fold().String(name)] = family
			}
		}
	})
	return parser
}

func expand(template string, matches []string) string {
	if template == "" || len(matches) < 2 {
		return ""
	}
	result := template
	for i, match := range matches[1:] {
		placeholder := fmt.Sprintf("$%d", i+1)
		result = strings.ReplaceAll(result, placeholder, match)
	}
	return strings.ReplaceAll(result, "_", ".")
}

func (p *DeviceDetectorParser) parseBot(userAgent string) *BotEntry {
	for i := range p.bots {
		if regex, err := p.regexCache.get(p.bots[i].Regex); err == nil {
			if regex.MatchString(userAgent) {
				return &p.bots[i]
			}
		}
	}
	return nil
}

func (p *DeviceDetectorParser) parseBrowser(userAgent string) (string, string) {
	for _, entry := range p.browsers {
		if regex, err := p.regexCache.get(entry.Regex); err == nil {
			if matches := regex.FindStringSubmatch(userAgent); len(matches) > 0 {
				return entry.Name, expand(entry.Version, matches)
			}
		}
	}
	return Unknown, ""
}

func (p *DeviceDetectorParser) parseOS(userAgent string) (string, string) {
	for _, entry := range p.oss {
		if regex, err := p.regexCache.get(entry.Regex); err == nil {
			if matches := regex.FindStringSubmatch(userAgent); len(matches) > 0 {
				return entry.Name, expand(entry.Version, matches)
			}
		}
	}
	return Unknown, ""
}

// parseDevice returns the first matching form factor in file order, or "".
func (p *DeviceDetectorParser) parseDevice(userAgent string) string {
	for _, entry := range p.devices {
		if regex, err := p.regexCache.get(entry.Regex); err == nil {
			if regex.MatchString(userAgent) {
				return entry.Device
			}
		}
	}
	return ""
}

// osFamily maps an OS name to its family. Names outside the database are
// returned title-cased as their own family.
func (p *DeviceDetectorParser) osFamily(osName string) string {
	name := strings.TrimSpace(osName)
	if name == "" || name == Unknown {
		return Unknown
	}
	if family, ok := p.families[cases.Fold().String(name)]; ok {
		return family
	}
	// Casers are stateful; build one per call.
	return cases.Title(language.Und, cases.NoLower).String(name)
}

// Parse classifies a user agent string. It never fails: unrecognized parts
// are reported as Unknown.
func Parse(userAgent string, opts Options) UserAgent {
	return getParser().Parse(userAgent, opts)
}

// ParseUserAgent parses with bot detection enabled and no client hints.
func ParseUserAgent(userAgent string) UserAgent {
	return Parse(userAgent, Options{})
}

func (p *DeviceDetectorParser) Parse(userAgent string, opts Options) UserAgent {
	if !opts.SkipBotDetection {
		if bot := p.parseBot(userAgent); bot != nil {
			return UserAgent{
				UserAgent: userAgent,
				OS:        Unknown,
				OSFamily:  Unknown,
				Browser:   bot.Name,
				Device:    "bot",
				Bot:       true,
				BotName:   bot.Name,
			}
		}
	}

	browser, browserVersion := p.parseBrowser(userAgent)
	osName, osVersion := p.parseOS(userAgent)
	device := p.parseDevice(userAgent)

	if hinted := opts.Hints.osName(); hinted != "" {
		osName, osVersion = hinted, opts.Hints.PlatformVersion
	}
	if browser == Unknown {
		if hinted := opts.Hints.browserName(); hinted != "" {
			browser = hinted
		}
	}
	if device == "" && opts.Hints.Mobile != nil && *opts.Hints.Mobile {
		device = DeviceSmartphone
	}

	family := p.osFamily(osName)
	desktop := desktopFamilies[family] && device != DeviceTV && device != DeviceConsole
	if desktop && device == "" {
		device = DeviceDesktop
	}

	return UserAgent{
		UserAgent:      userAgent,
		OS:             osName,
		OSFamily:       family,
		OSVersion:      osVersion,
		Browser:        browser,
		BrowserVersion: browserVersion,
		Device:         device,
		Mobile:         device == DeviceSmartphone,
		Tablet:         device == DeviceTablet,
		Desktop:        desktop,
	}
}
