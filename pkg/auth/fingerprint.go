package auth

import (
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/tendant/simple-session/pkg/domain"
)

// UnknownIP is returned by ClientIP when no address can be determined.
const UnknownIP = "unknown"

// RequestDevice describes the client that sent a request.
type RequestDevice struct {
	Device    domain.DeviceInfo
	IPAddress string
	UserAgent string
}

// DeviceFromRequest extracts the device descriptor, client IP and user
// agent from r.
func DeviceFromRequest(r *http.Request) RequestDevice {
	return RequestDevice{
		Device:    ExtractDevice(r.Header),
		IPAddress: ClientIP(r.Header, r.RemoteAddr),
		UserAgent: CleanText(r.Header.Get("User-Agent"), MaxUserAgentLen),
	}
}

// WithUserAgent returns d with its device and user agent taken from ua.
func (d RequestDevice) WithUserAgent(ua string) RequestDevice {
	h := http.Header{}
	h.Set("User-Agent", ua)
	d.Device = ExtractDevice(h)
	d.UserAgent = CleanText(ua, MaxUserAgentLen)
	return d
}

// DetectDrift checks for IP or User-Agent changes against the values
// captured when the session was created.
func DetectDrift(s *domain.Session, current RequestDevice) (bool, string) {
	if s.IPAddress != current.IPAddress {
		return true, fmt.Sprintf("IP address changed from %s to %s", s.IPAddress, current.IPAddress)
	}

	if s.UserAgent != current.UserAgent {
		return true, fmt.Sprintf("User-Agent changed from %s to %s", s.UserAgent, current.UserAgent)
	}

	return false, ""
}

// ClientIP extracts the client IP address from request headers.
// Checks X-Forwarded-For (first valid hop) and X-Real-IP before falling
// back to remoteAddr. Never fails; returns UnknownIP if nothing parses.
func ClientIP(h http.Header, remoteAddr string) string {
	// X-Forwarded-For may contain multiple IPs, the client is first
	if forwarded := h.Get("X-Forwarded-For"); forwarded != "" {
		for hop := range strings.SplitSeq(forwarded, ",") {
			if ip := parseIP(hop); ip != "" {
				return ip
			}
		}
	}

	if ip := parseIP(h.Get("X-Real-IP")); ip != "" {
		return ip
	}

	// RemoteAddr format is "IP:port"
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		if ip := parseIP(host); ip != "" {
			return ip
		}
	}
	if ip := parseIP(remoteAddr); ip != "" {
		return ip
	}

	return UnknownIP
}

func parseIP(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	ip := net.ParseIP(s)
	if ip == nil {
		return ""
	}
	return ip.String()
}

// Browser and platform names reported in DeviceInfo.
const (
	BrowserEdge    = "edge"
	BrowserOpera   = "opera"
	BrowserSamsung = "samsung"
	BrowserChrome  = "chrome"
	BrowserFirefox = "firefox"
	BrowserSafari  = "safari"
	BrowserIE      = "ie"
	BrowserBot     = "bot"

	PlatformWindows  = "windows"
	PlatformMacOS    = "macos"
	PlatformIOS      = "ios"
	PlatformAndroid  = "android"
	PlatformChromeOS = "chromeos"
	PlatformLinux    = "linux"

	unknownValue = "unknown"
)

type uaPattern struct {
	name     string
	keywords []string
}

// Checked in order; the first match wins.
var browserPatterns = []uaPattern{
	{name: BrowserBot, keywords: []string{"bot"}},
	{name: BrowserBot, keywords: []string{"spider"}},
	{name: BrowserBot, keywords: []string{"crawler"}},
	{name: BrowserEdge, keywords: []string{"edg/"}},
	{name: BrowserEdge, keywords: []string{"edge/"}},
	{name: BrowserOpera, keywords: []string{"opr/"}},
	{name: BrowserOpera, keywords: []string{"opera"}},
	{name: BrowserSamsung, keywords: []string{"samsungbrowser"}},
	{name: BrowserFirefox, keywords: []string{"firefox/"}},
	{name: BrowserFirefox, keywords: []string{"fxios/"}},
	{name: BrowserChrome, keywords: []string{"chrome/"}},
	{name: BrowserChrome, keywords: []string{"crios/"}},
	{name: BrowserSafari, keywords: []string{"safari/", "version/"}},
	{name: BrowserIE, keywords: []string{"trident/"}},
	{name: BrowserIE, keywords: []string{"msie "}},
}

var platformPatterns = []uaPattern{
	{name: PlatformIOS, keywords: []string{"iphone"}},
	{name: PlatformIOS, keywords: []string{"ipad"}},
	{name: PlatformIOS, keywords: []string{"ipod"}},
	{name: PlatformAndroid, keywords: []string{"android"}},
	{name: PlatformWindows, keywords: []string{"windows"}},
	{name: PlatformChromeOS, keywords: []string{"cros "}},
	{name: PlatformMacOS, keywords: []string{"macintosh"}},
	{name: PlatformMacOS, keywords: []string{"mac os x"}},
	{name: PlatformLinux, keywords: []string{"linux"}},
}

// ExtractDevice makes a best-effort classification of the request's
// User-Agent into coarse browser and platform categories. Unknown input
// yields domain.UnknownDevice; it never fails.
func ExtractDevice(h http.Header) domain.DeviceInfo {
	ua := strings.ToLower(strings.TrimSpace(h.Get("User-Agent")))
	if ua == "" {
		return domain.UnknownDevice
	}
	return domain.DeviceInfo{
		Browser:  match(ua, browserPatterns),
		Platform: match(ua, platformPatterns),
	}
}

func match(ua string, patterns []uaPattern) string {
	for _, p := range patterns {
		if matchPattern(ua, p) {
			return p.name
		}
	}
	return unknownValue
}

func matchPattern(ua string, p uaPattern) bool {
	for _, k := range p.keywords {
		if !strings.Contains(ua, k) {
			return false
		}
	}
	return true
}
