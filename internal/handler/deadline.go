package handler

import (
	"net/http"
	"time"

	"github.com/andresverguilla1987/mixtli-nube/pkg/log"
)

// UploadDeadline widens the connection read deadline for POST /upload and
// POST /api/upload, so large relays are not cut off by the server-wide
// ReadTimeout. Other requests keep the server deadline.
func UploadDeadline(next http.Handler, d time.Duration) http.Handler {
	if d <= 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && (r.URL.Path == "/upload" || r.URL.Path == "/api/upload") {
			if err := http.NewResponseController(w).SetReadDeadline(time.Now().Add(d)); err != nil {
				l := log.Ctx(r.Context())
				l.Debug().Err(err).Msg("upload read deadline not applied")
			}
		}
		next.ServeHTTP(w, r)
	})
}
