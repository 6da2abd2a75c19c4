package httpapi

import (
	"compress/gzip"
	"errors"
	"net/http"

	"glkdc.dev/glkdcd/internal/apierr"
)

// maxBodyBytes caps every request body at 64MiB, the teacher's
// http.MaxBytesReader idiom from internal/adapters/rpc/jsonrpc.go
// generalized from the RPC endpoint's own limit to every REST handler here.
const maxBodyBytes = 64 * 1024 * 1024

// decodeBody caps the wire body at maxBodyBytes first — so the limit bounds
// bytes actually read off the socket, not the decompressed size — then
// transparently gunzips a gzip-encoded body (Content-Encoding: gzip), so
// handlers never deal with compression directly. A body that blows the cap
// surfaces as a 413 whether or not it's gzipped, since bufio/gzip forward
// the underlying reader's *http.MaxBytesError unchanged.
func decodeBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		if r.Header.Get("Content-Encoding") == "gzip" {
			gz, err := gzip.NewReader(r.Body)
			if err != nil {
				writeError(w, wrapBodyReadErr(err))
				return
			}
			defer gz.Close()
			r.Body = gz
		}
		next.ServeHTTP(w, r)
	})
}

var errBadGzip = apierr.Validation("BAD_REQUEST", "malformed gzip request body")

// wrapBodyReadErr maps an error surfaced while reading/decompressing a
// capped request body to PAYLOAD_TOO_LARGE when it's the MaxBytesReader's
// own error, or to the generic bad-gzip error otherwise.
func wrapBodyReadErr(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return apierr.PayloadTooLarge("PAYLOAD_TOO_LARGE", "request body exceeds the maximum allowed size")
	}
	return errBadGzip
}
