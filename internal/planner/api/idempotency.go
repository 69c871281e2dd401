package api

import (
	"bytes"
	"net/http"
	"time"

	"github.com/patrickmn/go-cache"
)

// IdempotencyHeader names the client-chosen key of a mutating request.
const IdempotencyHeader = "X-Idempotency-Key"

// ReplayHeader is set on responses served from the idempotency cache.
const ReplayHeader = "Idempotent-Replay"

type cachedResponse struct {
	status      int
	contentType string
	body        []byte
}

// idempotency replays the response to a keyed request for ttl. Server
// errors are not cached so the client can retry them.
type idempotency struct {
	cache *cache.Cache
}

func newIdempotency(ttl time.Duration) *idempotency {
	if ttl <= 0 {
		return &idempotency{}
	}
	return &idempotency{cache: cache.New(ttl, 2*ttl)}
}

func (i *idempotency) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(IdempotencyHeader)
		if i.cache == nil || key == "" {
			next.ServeHTTP(w, r)
			return
		}
		cacheKey := r.Method + " " + r.URL.Path + " " + key

		if v, ok := i.cache.Get(cacheKey); ok {
			resp := v.(cachedResponse)
			w.Header().Set("Content-Type", resp.contentType)
			w.Header().Set(ReplayHeader, "true")
			w.WriteHeader(resp.status)
			_, _ = w.Write(resp.body)
			return
		}

		rec := &recorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		if rec.status < http.StatusInternalServerError {
			i.cache.SetDefault(cacheKey, cachedResponse{
				status:      rec.status,
				contentType: w.Header().Get("Content-Type"),
				body:        rec.body.Bytes(),
			})
		}
	})
}

// recorder copies the response body while writing it through.
type recorder struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (r *recorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *recorder) Write(b []byte) (int, error) {
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}
