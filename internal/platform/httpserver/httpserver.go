// Package httpserver builds the *http.Server the mint API listens on.
package httpserver

import (
	"net/http"
	"time"
)

type Option func(*http.Server)

// WithTimeouts overrides the read and write timeouts. The write timeout must
// cover an admission: the ledger transaction plus the post-commit provider
// submission.
func WithTimeouts(read, write time.Duration) Option {
	return func(s *http.Server) {
		if read > 0 {
			s.ReadTimeout = read
		}
		if write > 0 {
			s.WriteTimeout = write
		}
	}
}

// New builds an HTTP server with the project defaults.
func New(addr string, handler http.Handler, opts ...Option) *http.Server {
	s := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}
