// Package httputil provides shared HTTP plumbing for the MIRAGE gateway:
// pooled clients with per-collaborator timeouts and safe response handling.
package httputil

import (
	"io"
	"net"
	"net/http"
	"sync"
	"time"
)

// MaxResponseSize bounds response body reads from collaborator services.
const MaxResponseSize = 10 * 1024 * 1024 // 10MB

// Shared transport with connection pooling, reused by every client so TCP
// connections to the generation service and ledger survive across requests.
var sharedTransport = &http.Transport{
	Proxy: http.ProxyFromEnvironment,
	DialContext: (&net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}).DialContext,
	ForceAttemptHTTP2:     true,
	MaxIdleConns:          100,
	MaxIdleConnsPerHost:   10,
	IdleConnTimeout:       90 * time.Second,
	TLSHandshakeTimeout:   10 * time.Second,
	ExpectContinueTimeout: 1 * time.Second,
}

// TimeoutTier defines the timeout categories for the gateway's collaborators.
type TimeoutTier int

const (
	// TierLedger for fire-and-forget audit ledger submissions (5s).
	// A slow ledger must never back up the dispatch pool.
	TierLedger TimeoutTier = iota
	// TierMedium for standard API calls such as remote embeddings (30s).
	TierMedium
	// TierGeneration for LLM generation calls that may take longer (60s).
	TierGeneration
)

var timeoutDurations = map[TimeoutTier]time.Duration{
	TierLedger:     5 * time.Second,
	TierMedium:     30 * time.Second,
	TierGeneration: 60 * time.Second,
}

var (
	clientLedger     *http.Client
	clientMedium     *http.Client
	clientGeneration *http.Client
	clientOnce       sync.Once
)

func initClients() {
	clientLedger = &http.Client{
		Timeout:   timeoutDurations[TierLedger],
		Transport: sharedTransport,
	}
	clientMedium = &http.Client{
		Timeout:   timeoutDurations[TierMedium],
		Transport: sharedTransport,
	}
	clientGeneration = &http.Client{
		Timeout:   timeoutDurations[TierGeneration],
		Transport: sharedTransport,
	}
}

// Client returns the shared HTTP client for the given timeout tier. Use these
// instead of constructing http.Client values per request so the pool is shared.
func Client(tier TimeoutTier) *http.Client {
	clientOnce.Do(initClients)
	switch tier {
	case TierLedger:
		return clientLedger
	case TierMedium:
		return clientMedium
	case TierGeneration:
		return clientGeneration
	default:
		return clientMedium
	}
}

// LedgerClient returns the 5s-timeout client for audit ledger calls.
func LedgerClient() *http.Client {
	return Client(TierLedger)
}

// MediumClient returns the 30s-timeout client for standard API calls.
func MediumClient() *http.Client {
	return Client(TierMedium)
}

// GenerationClient returns the 60s-timeout client for LLM calls.
func GenerationClient() *http.Client {
	return Client(TierGeneration)
}

// ReadResponseBody reads an HTTP response body with a size limit.
func ReadResponseBody(r io.Reader, maxSize int64) ([]byte, error) {
	if maxSize <= 0 {
		maxSize = MaxResponseSize
	}
	return io.ReadAll(io.LimitReader(r, maxSize))
}

// ReadErrorBody reads a response body for error reporting with a 1MB cap.
func ReadErrorBody(r io.Reader) ([]byte, error) {
	const maxErrorSize = 1 * 1024 * 1024
	return io.ReadAll(io.LimitReader(r, maxErrorSize))
}

// DrainAndClose drains and closes a response body so the connection returns
// to the pool.
func DrainAndClose(body io.ReadCloser) {
	if body != nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(body, MaxResponseSize))
		_ = body.Close()
	}
}
