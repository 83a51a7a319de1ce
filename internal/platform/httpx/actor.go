package httpx

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/httprate"
)

// ActorHeader carries the authenticated user forwarded by the gateway.
const ActorHeader = "X-Actor"

// Actor returns the acting user of the request, or "" when absent.
func Actor(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(ActorHeader))
}

// ActorOrIPKey keys rate limits by actor, falling back to the remote host.
func ActorOrIPKey(r *http.Request) (string, error) {
	if actor := Actor(r); actor != "" {
		return "user:" + actor, nil
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return "ip:" + r.RemoteAddr, nil
	}
	return "ip:" + host, nil
}

// AdminLimiter throttles administrative endpoints per actor.
func AdminLimiter(requests int, window time.Duration) func(http.Handler) http.Handler {
	if requests <= 0 {
		requests = 10
	}
	if window <= 0 {
		window = time.Minute
	}
	return httprate.Limit(requests, window, httprate.WithKeyFuncs(ActorOrIPKey))
}
