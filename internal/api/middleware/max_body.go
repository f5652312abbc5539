package middleware

import (
	"net/http"

	"github.com/cloo-solutions/obsidian/internal/api"
	"github.com/cloo-solutions/obsidian/internal/domain"
)

// BodyLimits caps request bodies in bytes. Document uploads carry the file
// content inline as base64 and get Upload; every other route gets JSON.
// A zero limit disables the check for that class.
type BodyLimits struct {
	JSON   int64
	Upload int64
}

func (l BodyLimits) forRequest(r *http.Request) int64 {
	if r.Method != http.MethodPost {
		return l.JSON
	}
	switch r.URL.Path {
	case "/documents", "/documents/", "/documents/batch":
		return l.Upload
	}
	return l.JSON
}

// LimitBody rejects a declared Content-Length over the route's limit before
// the handler runs. Bodies without a length are cut off by
// http.MaxBytesReader, which api.DecodeJSON reports as PAYLOAD_TOO_LARGE.
func LimitBody(limits BodyLimits) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			limit := limits.forRequest(r)
			if limit <= 0 || r.Body == nil || r.Body == http.NoBody {
				next.ServeHTTP(w, r)
				return
			}

			if r.ContentLength > limit {
				api.HandleError(w, domain.PayloadTooLarge(limit))
				return
			}

			r.Body = http.MaxBytesReader(w, r.Body, limit)
			next.ServeHTTP(w, r)
		})
	}
}
