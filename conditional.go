package idemgw

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
)

// ETagFor returns the quoted content hash used as the ETag for a response
// body.
func ETagFor(body []byte) string {
	h := sha256.Sum256(body)
	return `"` + hex.EncodeToString(h[:]) + `"`
}

// WriteConditional writes body as a JSON response with ETag and
// Cache-Control headers derived from ttlSeconds. When the request carries
// a matching If-None-Match precondition it writes 304 with the cache
// headers and no body instead. This is a presentation-layer refinement
// only; it never affects the stored record.
func WriteConditional(w http.ResponseWriter, r *http.Request, body []byte, ttlSeconds int) {
	etag := ETagFor(body)

	h := w.Header()
	h.Set("ETag", etag)
	h.Set("Cache-Control", fmt.Sprintf("max-age=%d", ttlSeconds))
	h.Set("Vary", "Accept-Encoding, Accept")

	if match := r.Header.Get("If-None-Match"); match != "" && match == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	h.Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
