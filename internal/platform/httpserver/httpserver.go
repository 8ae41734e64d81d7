package httpserver

import (
	"net/http"
	"time"

	"infosync/internal/platform/config"
)

// New builds the HTTP server. Write timeout stays unset: in sync dispatch
// mode a write request waits for every downstream call, each bounded by
// dispatch.timeout.
func New(cfg config.Server, handler http.Handler) *http.Server {
	readHeader := cfg.ReadHeaderTimeout
	if readHeader <= 0 {
		readHeader = 5 * time.Second
	}
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: readHeader,
		IdleTimeout:       2 * time.Minute,
	}
}
