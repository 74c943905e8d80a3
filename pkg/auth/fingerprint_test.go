package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/tendant/simple-session/pkg/domain"
)

func TestDeviceFromRequest(t *testing.T) {
	req := httptest.NewRequest("GET", "/test", nil)
	req.RemoteAddr = "192.168.1.1:12345"
	req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0")

	d := DeviceFromRequest(req)

	if d.IPAddress != "192.168.1.1" {
		t.Errorf("IPAddress = %s, want 192.168.1.1", d.IPAddress)
	}
	if d.UserAgent != req.Header.Get("User-Agent") {
		t.Errorf("UserAgent = %s, want %s", d.UserAgent, req.Header.Get("User-Agent"))
	}
	want := domain.DeviceInfo{Browser: BrowserFirefox, Platform: PlatformLinux}
	if d.Device != want {
		t.Errorf("Device = %+v, want %+v", d.Device, want)
	}
}

func TestDetectDrift(t *testing.T) {
	s := &domain.Session{IPAddress: "192.168.1.1", UserAgent: "Mozilla/5.0"}

	tests := []struct {
		name        string
		current     RequestDevice
		wantDrifted bool
	}{
		{
			name:        "no drift - same fingerprint",
			current:     RequestDevice{IPAddress: "192.168.1.1", UserAgent: "Mozilla/5.0"},
			wantDrifted: false,
		},
		{
			name:        "drift detected - different IP",
			current:     RequestDevice{IPAddress: "10.0.0.1", UserAgent: "Mozilla/5.0"},
			wantDrifted: true,
		},
		{
			name:        "drift detected - different UA",
			current:     RequestDevice{IPAddress: "192.168.1.1", UserAgent: "Chrome/1.0"},
			wantDrifted: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			drifted, reason := DetectDrift(s, tt.current)
			if drifted != tt.wantDrifted {
				t.Errorf("DetectDrift() drifted = %v, want %v", drifted, tt.wantDrifted)
			}
			if drifted && reason == "" {
				t.Error("DetectDrift() should explain the drift")
			}
		})
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		headers    map[string]string
		remoteAddr string
		wantIP     string
	}{
		{
			name:       "X-Forwarded-For header",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.1, 198.51.100.1"},
			remoteAddr: "192.168.1.1:12345",
			wantIP:     "203.0.113.1",
		},
		{
			name:       "X-Forwarded-For skips garbage first hop",
			headers:    map[string]string{"X-Forwarded-For": "not-an-ip, 198.51.100.1"},
			remoteAddr: "192.168.1.1:12345",
			wantIP:     "198.51.100.1",
		},
		{
			name:       "X-Real-IP header",
			headers:    map[string]string{"X-Real-IP": "203.0.113.1"},
			remoteAddr: "192.168.1.1:12345",
			wantIP:     "203.0.113.1",
		},
		{
			name:       "RemoteAddr only",
			remoteAddr: "192.168.1.1:12345",
			wantIP:     "192.168.1.1",
		},
		{
			name:       "IPv6 RemoteAddr",
			remoteAddr: "[2001:db8::1]:443",
			wantIP:     "2001:db8::1",
		},
		{
			name:       "RemoteAddr without port",
			remoteAddr: "10.0.0.7",
			wantIP:     "10.0.0.7",
		},
		{
			name:       "nothing available",
			remoteAddr: "",
			wantIP:     UnknownIP,
		},
		{
			name:       "unparseable everything",
			headers:    map[string]string{"X-Forwarded-For": "garbage", "X-Real-IP": "also-garbage"},
			remoteAddr: "pipe",
			wantIP:     UnknownIP,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			for k, v := range tt.headers {
				h.Set(k, v)
			}
			got := ClientIP(h, tt.remoteAddr)
			if got != tt.wantIP {
				t.Errorf("ClientIP() = %v, want %v", got, tt.wantIP)
			}
		})
	}
}

func TestExtractDevice(t *testing.T) {
	tests := []struct {
		name      string
		userAgent string
		want      domain.DeviceInfo
	}{
		{
			name:      "chrome on windows",
			userAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			want:      domain.DeviceInfo{Browser: BrowserChrome, Platform: PlatformWindows},
		},
		{
			name:      "edge on windows",
			userAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36 Edg/120.0.2210.91",
			want:      domain.DeviceInfo{Browser: BrowserEdge, Platform: PlatformWindows},
		},
		{
			name:      "safari on macos",
			userAgent: "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15",
			want:      domain.DeviceInfo{Browser: BrowserSafari, Platform: PlatformMacOS},
		},
		{
			name:      "safari on iphone",
			userAgent: "Mozilla/5.0 (iPhone; CPU iPhone OS 17_1 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Mobile/15E148 Safari/604.1",
			want:      domain.DeviceInfo{Browser: BrowserSafari, Platform: PlatformIOS},
		},
		{
			name:      "chrome on android",
			userAgent: "Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.6099.144 Mobile Safari/537.36",
			want:      domain.DeviceInfo{Browser: BrowserChrome, Platform: PlatformAndroid},
		},
		{
			name:      "samsung browser",
			userAgent: "Mozilla/5.0 (Linux; Android 13; SM-S911B) AppleWebKit/537.36 (KHTML, like Gecko) SamsungBrowser/23.0 Chrome/115.0.0.0 Mobile Safari/537.36",
			want:      domain.DeviceInfo{Browser: BrowserSamsung, Platform: PlatformAndroid},
		},
		{
			name:      "firefox on linux",
			userAgent: "Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0",
			want:      domain.DeviceInfo{Browser: BrowserFirefox, Platform: PlatformLinux},
		},
		{
			name:      "chrome on chromeos",
			userAgent: "Mozilla/5.0 (X11; CrOS x86_64 14541.0.0) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			want:      domain.DeviceInfo{Browser: BrowserChrome, Platform: PlatformChromeOS},
		},
		{
			name:      "internet explorer",
			userAgent: "Mozilla/5.0 (Windows NT 10.0; Trident/7.0; rv:11.0) like Gecko",
			want:      domain.DeviceInfo{Browser: BrowserIE, Platform: PlatformWindows},
		},
		{
			name:      "googlebot",
			userAgent: "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)",
			want:      domain.DeviceInfo{Browser: BrowserBot, Platform: "unknown"},
		},
		{
			name:      "empty user agent",
			userAgent: "",
			want:      domain.UnknownDevice,
		},
		{
			name:      "curl",
			userAgent: "curl/8.4.0",
			want:      domain.UnknownDevice,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			h.Set("User-Agent", tt.userAgent)
			got := ExtractDevice(h)
			if got != tt.want {
				t.Errorf("ExtractDevice() = %+v, want %+v", got, tt.want)
			}
		})
	}
}
