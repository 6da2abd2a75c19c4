// Package extension validates the bounded group-extension map
// (≤256 entries, key ≤256 B, value ≤128 KiB) as a reusable request-time
// check, ahead of the model-level invariant check.
package extension

import (
	"fmt"

	"glkdc.dev/glkdcd/internal/domains/group/model"
)

// FromWire decodes a wire-level string-keyed, base64-decoded-by-the-caller
// extension map into the model's byte-keyed representation, validating
// bounds eagerly so the controller can return a precise field-level
// validation error instead of a generic model error.
func FromWire(raw map[string]string) (map[string][]byte, error) {
	if len(raw) > model.ExtensionMaxEntries {
		return nil, fmt.Errorf("extension: %d entries exceeds max of %d", len(raw), model.ExtensionMaxEntries)
	}
	out := make(map[string][]byte, len(raw))
	for k, v := range raw {
		if len(k) > model.ExtensionMaxKeyBytes {
			return nil, fmt.Errorf("extension: key %q exceeds %d bytes", k, model.ExtensionMaxKeyBytes)
		}
		if len(v) > model.ExtensionMaxValBytes {
			return nil, fmt.Errorf("extension: value for key %q exceeds %d bytes", k, model.ExtensionMaxValBytes)
		}
		out[k] = []byte(v)
	}
	return out, nil
}

func ToWire(ext map[string][]byte) map[string]string {
	out := make(map[string]string, len(ext))
	for k, v := range ext {
		out[k] = string(v)
	}
	return out
}
