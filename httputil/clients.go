package httputil

import (
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/daryl-c-spyglass/client-data-portal-sub000/config"
)

type Clients struct {
	Feed   *http.Client // replication feed
	Search *http.Client // real-time search API
}

// NewClients builds the upstream clients. Both go through the proxy when
// one is configured.
func NewClients(proxyCfg *config.ProxyConfig) *Clients {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if proxyCfg != nil && proxyCfg.URL != "" {
		if proxyURL, err := url.Parse(proxyCfg.URL); err == nil {
			transport.Proxy = http.ProxyURL(proxyURL)
			log.Printf("Upstream requests using proxy: %s", proxyURL.Host)
		} else {
			log.Printf("Warning: ignoring bad proxy URL: %v", err)
		}
	}

	return &Clients{
		Feed:   &http.Client{Timeout: 60 * time.Second, Transport: transport},
		Search: &http.Client{Timeout: 30 * time.Second, Transport: transport},
	}
}
