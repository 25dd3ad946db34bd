// Package device captures the telemetry recorded on every new verification
// request. Extraction never fails; missing sources fall back to "unknown".
package device

import (
	"net/http"
	"strings"

	"github.com/mssola/useragent"

	"kycgate/internal/verification/models"
	"kycgate/pkg/platform/middleware/metadata"
)

const (
	headerMacAddress  = "X-Mac-Address"
	headerFingerprint = "X-Device-Fingerprint"
)

// Hints are device fields the client may send in the request body.
// Body values take precedence over headers.
type Hints struct {
	MacAddress        string
	DeviceFingerprint string
}

// Extract resolves each field from the first source that supplies it.
func Extract(r *http.Request, hints Hints) models.DeviceInfo {
	ua := r.Header.Get("User-Agent")
	return models.DeviceInfo{
		MacAddress:        firstPresent(hints.MacAddress, r.Header.Get(headerMacAddress)),
		IPAddress:         metadata.ClientIPFromRequest(r),
		DeviceFingerprint: firstPresent(hints.DeviceFingerprint, r.Header.Get(headerFingerprint)),
		UserAgent:         ua,
		DeviceLabel:       ParseUserAgent(ua),
	}
}

func firstPresent(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return models.Unknown
}

// ParseUserAgent extracts a human-readable device name from a User-Agent string.
// Returns "Unknown Device" if parsing fails or user agent is empty.
func ParseUserAgent(userAgent string) string {
	if strings.TrimSpace(userAgent) == "" {
		return "Unknown Device"
	}

	ua := useragent.New(userAgent)
	browser, _ := ua.Browser()
	if browser == "" {
		browser = "Unknown Browser"
	}

	os := ua.OS()
	if os == "" {
		os = ua.Platform()
	}
	if os == "" {
		os = "Unknown OS"
	}

	return strings.TrimSpace(browser + " on " + os)
}
