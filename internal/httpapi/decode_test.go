package httpapi

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"glkdc.dev/glkdcd/internal/apierr"
)

func TestDecodeJSONMapsOversizedBodyTo413(t *testing.T) {
	body := bytes.Repeat([]byte("a"), 64)
	req := httptest.NewRequest(http.MethodPost, "/whatever", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	req.Body = http.MaxBytesReader(rec, req.Body, 8)

	var dst map[string]any
	err := decodeJSON(req, &dst)
	require.Error(t, err)

	apiErr, ok := err.(*apierr.Error)
	require.True(t, ok)
	require.Equal(t, 413, apiErr.HTTPStatus())
	require.Equal(t, "PAYLOAD_TOO_LARGE", apiErr.Code)
}

func TestWrapBodyReadErrMapsMaxBytesError(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/whatever", bytes.NewReader(bytes.Repeat([]byte("a"), 64)))
	limited := http.MaxBytesReader(rec, req.Body, 8)
	_, readErr := limited.Read(make([]byte, 64))

	err := wrapBodyReadErr(readErr)
	apiErr, ok := err.(*apierr.Error)
	require.True(t, ok)
	require.Equal(t, 413, apiErr.HTTPStatus())
}
