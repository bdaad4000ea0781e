package model

import (
	"net/url"
	"strings"
)

// Platform identifies the source system a presentation lives on.
type Platform string

const (
	PlatformUnknown Platform = ""
	PlatformESP     Platform = "esp"
	PlatformSage    Platform = "sage"
)

// espHosts and sageHosts are substring patterns matched against the URL
// host. Routing is pattern based so portal subdomains keep working.
var (
	sageHosts = []string{"viewpresentation.com", "sageconnect.sage.com"}
	espHosts  = []string{"portal.mypromooffice.com", "espplus"}
)

// DetectPlatform classifies a presentation URL by host. Unrecognized hosts
// return PlatformUnknown; the caller treats that as fatal rather than
// guessing a pipeline.
func DetectPlatform(rawURL string) Platform {
	s := strings.ToLower(strings.TrimSpace(rawURL))
	if s == "" {
		return PlatformUnknown
	}
	host := s
	if strings.Contains(s, "://") {
		if u, err := url.Parse(s); err == nil && u.Host != "" {
			host = u.Host
		}
	} else if i := strings.IndexAny(s, "/?#"); i >= 0 {
		host = s[:i]
	}
	for _, p := range sageHosts {
		if strings.Contains(host, p) {
			return PlatformSage
		}
	}
	for _, p := range espHosts {
		if strings.Contains(host, p) {
			return PlatformESP
		}
	}
	return PlatformUnknown
}
