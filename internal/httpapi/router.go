package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"glkdc.dev/glkdcd/internal/apierr"
	"glkdc.dev/glkdcd/internal/domains/group/controller"
)

// callerUIDHeader carries the already-authenticated caller's uid, set by
// whatever sits in front of this router (session/token middleware is out of
// scope per spec §1). Parallel to the teacher's X-AIM-RPC-Token /
// X-AIM-Request-ID custom-header convention
// (internal/adapters/rpc/jsonrpc.go) for out-of-band request metadata that
// must never be taken from the JSON body itself.
const callerUIDHeader = "X-GLKDC-Caller-UID"

func callerUID(r *http.Request) (string, error) {
	uid := r.Header.Get(callerUIDHeader)
	if uid == "" {
		return "", apierr.Authorization("UNAUTHENTICATED", callerUIDHeader+" header is required")
	}
	return uid, nil
}

// NewRouter wires every spec §6 endpoint onto c, decoding gzip and capping
// request bodies before any handler runs.
func NewRouter(c *controller.Controller) *mux.Router {
	h := &handlers{c: c}

	r := mux.NewRouter()
	r.Use(decodeBody)

	r.HandleFunc("/v3/group/create", h.createGroup).Methods(http.MethodPut)
	r.HandleFunc("/v3/group/update", h.updateGroup).Methods(http.MethodPut)
	r.HandleFunc("/v3/group/invite", h.invite).Methods(http.MethodPut)
	r.HandleFunc("/v3/group/join_group_by_code", h.joinByQrCode).Methods(http.MethodPut)
	r.HandleFunc("/v3/group/add_me", h.addMe).Methods(http.MethodPut)
	r.HandleFunc("/v3/group/review_join_request", h.reviewJoinRequest).Methods(http.MethodPut)
	r.HandleFunc("/v3/group/kick", h.kick).Methods(http.MethodPut)
	r.HandleFunc("/v3/group/leave", h.leave).Methods(http.MethodPut)
	r.HandleFunc("/v3/group/members", h.members).Methods(http.MethodPost)
	r.HandleFunc("/v3/group/group_keys", h.groupKeys).Methods(http.MethodPost)
	r.HandleFunc("/v3/group/latest_group_keys", h.latestGroupKeys).Methods(http.MethodPost)
	r.HandleFunc("/v3/group/fire_group_keys_update", h.fireGroupKeysUpdate).Methods(http.MethodPost)
	r.HandleFunc("/v3/group/group_keys_update", h.groupKeysUpdate).Methods(http.MethodPut)
	r.HandleFunc("/v3/group/prepare_key_update", h.prepareKeyUpdate).Methods(http.MethodPost)
	r.HandleFunc("/v3/group/dh_keys", h.dhKeys).Methods(http.MethodPost)

	return r
}

type handlers struct {
	c *controller.Controller
}
