// Package httpapi exposes GroupController over the REST surface named in
// spec §6, routed with gorilla/mux (grounded on the
// LiaLopezRosales-Agenda_Distribuida pack repo's path-parameter routing for
// a group/invitation domain — the teacher exposes a single JSON-RPC
// endpoint and has no path router of its own). The response envelope and
// error-code shape are adapted from the teacher's rpc.rpcError{Code,
// Message} pattern (internal/adapters/rpc/jsonrpc_errors.go) into the
// {error_code,error_msg,result} JSON shape spec §6/§7 name.
package httpapi

import (
	"encoding/json"
	"net/http"

	"glkdc.dev/glkdcd/internal/apierr"
)

// envelope is the wire shape of every response: on success, error_code is
// "OK", error_msg is omitted and result carries the payload; on failure,
// result is omitted.
type envelope struct {
	ErrorCode string `json:"error_code"`
	ErrorMsg  string `json:"error_msg,omitempty"`
	Result    any    `json:"result,omitempty"`
}

func writeResult(w http.ResponseWriter, result any) {
	writeJSON(w, http.StatusOK, envelope{ErrorCode: "OK", Result: result})
}

func writeError(w http.ResponseWriter, err error) {
	apiErr := apierr.Wrap(err)
	writeJSON(w, apiErr.HTTPStatus(), envelope{ErrorCode: apiErr.Code, ErrorMsg: apiErr.Message})
}

func writeJSON(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
