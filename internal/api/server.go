package api

import (
	"fmt"
	"net/http"
	"time"
)

// NewServer creates a configured *http.Server for handler. There is no
// WriteTimeout; the websocket hub sets per-message write deadlines.
func NewServer(port uint16, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
