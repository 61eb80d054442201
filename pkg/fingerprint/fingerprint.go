package fingerprint

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"

	"golang.org/x/text/language"
)

// Probe exposes the environment signals a fingerprint is derived from.
// Server-side callers adapt a request (RequestProbe); tests and
// non-interactive contexts use StaticProbe.
type Probe interface {
	UserAgent() string
	Locale() string
	ScreenMetrics() string
	Timezone() string
}

// SurfaceProber is implemented by probes that can also describe the
// rendering surface (for example a canvas hash or the header layout).
type SurfaceProber interface {
	RenderingSurface() string
}

// Generate creates a deterministic 32-character hex fingerprint from the probe.
// Empty signals are skipped, so a nil probe or a probe with no signals
// returns an empty string.
func Generate(p Probe) string {
	if p == nil {
		return ""
	}

	components := []string{
		"ua=" + strings.TrimSpace(p.UserAgent()),
		"locale=" + CanonicalLocale(p.Locale()),
		"screen=" + strings.TrimSpace(p.ScreenMetrics()),
		"tz=" + strings.TrimSpace(p.Timezone()),
	}
	if sp, ok := p.(SurfaceProber); ok {
		components = append(components, "surface="+strings.TrimSpace(sp.RenderingSurface()))
	}

	var filtered []string
	for _, comp := range components {
		if !strings.HasSuffix(comp, "=") {
			filtered = append(filtered, comp)
		}
	}
	if len(filtered) == 0 {
		return ""
	}

	hash := sha256.Sum256([]byte(strings.Join(filtered, "|")))

	// First 16 bytes are plenty for a non-cryptographic device signature.
	return hex.EncodeToString(hash[:16])
}

// Validate compares a stored fingerprint with the current one in constant time.
// It fails closed: if either side is empty the fingerprints do not match.
func Validate(stored, current string) bool {
	if stored == "" || current == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(current)) == 1
}

// CanonicalLocale reduces a locale or Accept-Language value to the BCP 47
// form of its highest-priority tag, so "en-us" and "en-US,en;q=0.9" agree.
// Unparseable input is returned lower-cased and trimmed.
func CanonicalLocale(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	tags, _, err := language.ParseAcceptLanguage(s)
	if err == nil && len(tags) > 0 {
		return tags[0].String()
	}
	if tag, err := language.Parse(s); err == nil {
		return tag.String()
	}
	return strings.ToLower(s)
}
