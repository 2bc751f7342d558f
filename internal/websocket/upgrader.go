package websocket

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"
)

// NewUpgrader allows the listed origins plus any localhost origin. Requests
// without an Origin header (non-browser clients) are allowed.
func NewUpgrader(allowedOrigins []string) *websocket.Upgrader {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[strings.TrimRight(o, "/")] = true
	}

	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || allowed[origin] {
				return true
			}

			// For development, allow any localhost variations
			u, err := url.Parse(origin)
			if err != nil {
				return false
			}
			host := u.Hostname()
			return host == "localhost" || host == "127.0.0.1"
		},
	}
}
