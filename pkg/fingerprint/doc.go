// Package fingerprint derives a deterministic device/browser signature from
// environment signals and compares signatures safely.
//
// Signals are read through the Probe interface (user agent, locale, screen
// metrics, timezone and, optionally, a rendering-surface description), so
// the same code serves HTTP handlers, background jobs and tests. The signals
// are joined and hashed with SHA-256; the first 16 bytes are returned as a
// 32-character hex string. Locales are canonicalised to BCP 47 with
// golang.org/x/text/language so cosmetic differences do not change the result.
//
// The fingerprint is stable within one environment and differs across
// materially different ones. Collision resistance is best-effort.
//
// # Usage
//
//	fp := fingerprint.Generate(fingerprint.RequestProbe(r))
//
//	if !fingerprint.Validate(storedFP, fp) {
//	    // treat as a different client
//	}
//
// Middleware stores the fingerprint in the request context; retrieve it with
// FromContext.
package fingerprint
