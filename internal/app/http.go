package app

import (
	"net"
	"net/http"
	"time"
)

// newServiceHTTPClient keeps at least poolSize idle connections per host,
// one per in-flight correction of a batch.
func newServiceHTTPClient(poolSize int, timeout time.Duration) *http.Client {
	if poolSize < 16 {
		poolSize = 16
	}
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          poolSize * 2,
		MaxIdleConnsPerHost:   poolSize,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &http.Client{Transport: transport, Timeout: timeout}
}
