// Package netcfg resolves the optional HTTP_PROXY/HTTPS_PROXY
// environment variables (spec §6) into an *http.Client every Exchange
// Port adapter is constructed with. Grounded on proxy/fixed_provider.go
// and proxy/types.go, trimmed from IP-pool rotation down to the
// static-proxy passthrough the spec actually asks for (see DESIGN.md).
package netcfg

import (
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/rs/zerolog/log"
)

// HTTPClient builds an *http.Client honoring HTTP_PROXY/HTTPS_PROXY if
// set, matching the teacher's use of zerolog in its proxy plumbing.
func HTTPClient(timeout time.Duration) *http.Client {
	proxyURL := os.Getenv("HTTPS_PROXY")
	if proxyURL == "" {
		proxyURL = os.Getenv("HTTP_PROXY")
	}
	if proxyURL == "" {
		return &http.Client{Timeout: timeout}
	}

	parsed, err := url.Parse(proxyURL)
	if err != nil {
		log.Warn().Err(err).Str("proxy", proxyURL).Msg("ignoring unparsable proxy URL")
		return &http.Client{Timeout: timeout}
	}

	log.Info().Str("proxy", parsed.Host).Msg("exchange adapter using configured proxy")
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy: http.ProxyURL(parsed),
		},
	}
}
