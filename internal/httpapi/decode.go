package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"glkdc.dev/glkdcd/internal/apierr"
	"glkdc.dev/glkdcd/internal/domains/group/model"
)

func tooManyErr(field string, max int) error {
	return apierr.Validation("BAD_REQUEST", fmt.Sprintf("%s exceeds the maximum of %d entries", field, max))
}

func decodeJSON(r *http.Request, dst any) error {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apierr.PayloadTooLarge("PAYLOAD_TOO_LARGE", "request body exceeds the maximum allowed size")
		}
		// A syntax error can surface before the read that crossed the size
		// cap; reading the rest of the body tells the two cases apart.
		if _, readErr := io.Copy(io.Discard, r.Body); errors.As(readErr, &tooLarge) {
			return apierr.PayloadTooLarge("PAYLOAD_TOO_LARGE", "request body exceeds the maximum allowed size")
		}
		return apierr.Validation("BAD_REQUEST", "malformed json body: "+err.Error())
	}
	return nil
}

func keyModeFromWire(s string) (model.KeyMode, error) {
	switch s {
	case "", "ALL_THE_SAME":
		return model.KeyModeAllTheSame, nil
	case "ONE_FOR_EACH":
		return model.KeyModeOneForEach, nil
	default:
		return model.KeyModeUnknown, apierr.Validation("BAD_REQUEST", "unknown groupKeysMode: "+s)
	}
}

func keyModeToWire(m model.KeyMode) string {
	return m.String()
}
