// Package fingerprint derives a stable session key and a device fingerprint
// from an inbound request. It is the only component that looks at raw
// transport details; everything downstream works on the extracted pair.
package fingerprint

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"net"
	"strings"

	"github.com/mileusna/useragent"

	"go.pilab.hu/sentinel/domain"
)

// Request is a transport-neutral snapshot of one inbound request. The HTTP
// middleware builds it from the echo context; other frontends can fill it
// directly.
type Request struct {
	// Principal is nil for anonymous requests.
	Principal *domain.Principal

	Path string

	// SessionID is the transport-level session identifier (cookie), if any.
	SessionID string

	RemoteAddr   string
	ForwardedFor string
	UserAgent    string
}

// Config controls which requests are tracked. Skip lists are injected here
// rather than living as package-level state so deployments can extend them.
type Config struct {
	SkipPathPrefixes []string
	SkipPaths        []string
}

// DefaultConfig skips static assets and well-known noise paths.
func DefaultConfig() Config {
	return Config{
		SkipPathPrefixes: []string{"/static/", "/media/", "/admin/jsi18n/"},
		SkipPaths:        []string{"/favicon.ico", "/robots.txt"},
	}
}

// Extractor turns requests into (session key, fingerprint) pairs.
type Extractor struct {
	cfg Config
}

func NewExtractor(cfg Config) *Extractor {
	return &Extractor{cfg: cfg}
}

// Extract returns the session key and fingerprint for a trackable request.
// ok is false when the request should not be tracked: anonymous principal,
// skip-listed path, or no way to derive a key.
func (e *Extractor) Extract(req Request) (key string, fp domain.Fingerprint, ok bool) {
	if req.Principal == nil || req.Principal.ID == "" {
		return "", domain.Fingerprint{}, false
	}
	if e.shouldSkip(req.Path) {
		return "", domain.Fingerprint{}, false
	}

	ip := ClientIP(req)

	key = req.SessionID
	if key == "" {
		// Token-based API calls carry no transport session. Derive a
		// stable key so repeated calls from the same user+IP map onto a
		// single record.
		key = DeriveKey(req.Principal.ID, ip)
	}

	ua := useragent.Parse(req.UserAgent)
	deviceType := domain.DeviceDesktop
	switch {
	case ua.Mobile:
		deviceType = domain.DeviceMobile
	case ua.Tablet:
		deviceType = domain.DeviceTablet
	}

	fp = domain.Fingerprint{
		IPAddress:  ip,
		UserAgent:  req.UserAgent,
		DeviceType: deviceType,
		Browser:    ua.Name,
		OS:         ua.OS,
		Location:   LocationFromIP(ip),
	}
	return key, fp, true
}

func (e *Extractor) shouldSkip(path string) bool {
	for _, p := range e.cfg.SkipPaths {
		if path == p {
			return true
		}
	}
	for _, prefix := range e.cfg.SkipPathPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// DeriveKey builds the deterministic session key for token-based calls:
// the md5 hex digest of "<userID>_<ip>".
func DeriveKey(userID, ip string) string {
	sum := md5.Sum([]byte(fmt.Sprintf("%s_%s", userID, ip)))
	return hex.EncodeToString(sum[:])
}

// ClientIP resolves the client address: the first hop of the forwarded-for
// chain when present, else the socket remote address with any port stripped.
func ClientIP(req Request) string {
	if req.ForwardedFor != "" {
		first, _, _ := strings.Cut(req.ForwardedFor, ",")
		return strings.TrimSpace(first)
	}
	addr := req.RemoteAddr
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}

// LocationFromIP is a coarse static classification, not real geolocation.
func LocationFromIP(ip string) string {
	switch {
	case ip == "127.0.0.1" || strings.HasPrefix(ip, "192.168.") || strings.HasPrefix(ip, "10."):
		return "Local Network"
	case strings.HasPrefix(ip, "172."):
		return "Private Network"
	default:
		return "External Network"
	}
}
