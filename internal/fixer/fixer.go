// Package fixer runs the two background fix jobs: downloading and extracting
// a fix archive into an install directory, and deleting what a previous
// apply wrote.
package fixer

import (
	"log/slog"
	"net"
	"net/http"
	"time"

	"game-fix-manager/internal/metrics"

	"github.com/jonboulle/clockwork"
)

const (
	// CancelledMessage is the error text recorded when a user cancels an apply.
	CancelledMessage = "Cancelled by user"

	chunkSize = 32 * 1024
)

// HTTPDoer is satisfied by *http.Client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Options carries the collaborators shared by Applier and Remover. Zero
// values fall back to real implementations.
type Options struct {
	Client    HTTPDoer
	TempDir   string
	UserAgent string
	Clock     clockwork.Clock
	Metrics   metrics.Recorder
	Logger    *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.Client == nil {
		o.Client = http.DefaultClient
	}
	if o.Clock == nil {
		o.Clock = clockwork.NewRealClock()
	}
	if o.Metrics == nil {
		o.Metrics = metrics.Noop{}
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// NewHTTPClient returns a client whose timeout bounds connecting and waiting
// for response headers, but not reading the body, so large archives can
// stream for as long as they need.
func NewHTTPClient(timeout time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{Timeout: timeout, KeepAlive: 30 * time.Second}).DialContext
	transport.TLSHandshakeTimeout = timeout
	transport.ResponseHeaderTimeout = timeout
	return &http.Client{Transport: transport}
}
