package fingerprint

import (
	"net/http"
	"sort"
	"strings"
)

// StaticProbe is a Probe with fixed values.
type StaticProbe struct {
	UA      string
	Lang    string
	Screen  string
	TZ      string
	Surface string
}

func (p StaticProbe) UserAgent() string        { return p.UA }
func (p StaticProbe) Locale() string           { return p.Lang }
func (p StaticProbe) ScreenMetrics() string    { return p.Screen }
func (p StaticProbe) Timezone() string         { return p.TZ }
func (p StaticProbe) RenderingSurface() string { return p.Surface }

// Header names consulted by RequestProbe.
const (
	HeaderTimezone       = "X-Timezone"
	HeaderViewportWidth  = "Sec-CH-Viewport-Width"
	HeaderViewportHeight = "Sec-CH-Viewport-Height"
	HeaderDPR            = "Sec-CH-DPR"
)

// RequestProbe adapts an HTTP request to the Probe interface.
// Screen metrics come from client hints; the rendering surface is the
// sorted set of stable headers the client sends, since different browsers
// send different header sets.
func RequestProbe(r *http.Request) Probe {
	return requestProbe{r: r}
}

type requestProbe struct {
	r *http.Request
}

func (p requestProbe) UserAgent() string { return p.r.UserAgent() }
func (p requestProbe) Locale() string    { return p.r.Header.Get("Accept-Language") }
func (p requestProbe) Timezone() string  { return p.r.Header.Get(HeaderTimezone) }

func (p requestProbe) ScreenMetrics() string {
	w := p.r.Header.Get(HeaderViewportWidth)
	h := p.r.Header.Get(HeaderViewportHeight)
	dpr := p.r.Header.Get(HeaderDPR)
	if w == "" && h == "" && dpr == "" {
		return ""
	}
	return w + "x" + h + "@" + dpr
}

func (p requestProbe) RenderingSurface() string {
	var headerNames []string
	for name := range p.r.Header {
		switch strings.ToLower(name) {
		case "user-agent", "accept", "accept-language", "accept-encoding",
			"connection", "upgrade-insecure-requests", "sec-fetch-dest",
			"sec-fetch-mode", "sec-fetch-site", "cache-control":
			headerNames = append(headerNames, strings.ToLower(name))
		}
	}

	sort.Strings(headerNames)
	return strings.Join(headerNames, ",")
}
