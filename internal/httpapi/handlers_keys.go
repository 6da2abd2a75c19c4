package httpapi

import (
	"net/http"

	"glkdc.dev/glkdcd/internal/domains/group/controller"
	"glkdc.dev/glkdcd/internal/domains/group/keyepoch"
)

type groupKeysRequest struct {
	GID      uint64   `json:"gid"`
	Versions []uint64 `json:"versions"`
}

const maxVersionsPerFetch = 10

func (h *handlers) groupKeys(w http.ResponseWriter, r *http.Request) {
	caller, err := callerUID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req groupKeysRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if len(req.Versions) > maxVersionsPerFetch {
		writeError(w, tooManyErr("versions", maxVersionsPerFetch))
		return
	}
	keys, err := h.c.GroupKeys(r.Context(), keyepoch.FetchByVersionsInput{
		GID: req.GID, Caller: caller, Versions: req.Versions,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeResult(w, keys)
}

type latestGroupKeysRequest struct {
	GIDs []uint64 `json:"gids"`
}

const maxGIDsPerLatestFetch = 5

func (h *handlers) latestGroupKeys(w http.ResponseWriter, r *http.Request) {
	caller, err := callerUID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req latestGroupKeysRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if len(req.GIDs) > maxGIDsPerLatestFetch {
		writeError(w, tooManyErr("gids", maxGIDsPerLatestFetch))
		return
	}
	keys := h.c.LatestGroupKeys(r.Context(), keyepoch.FetchLatestInput{Caller: caller, GIDs: req.GIDs})
	writeResult(w, keys)
}

type fireGroupKeysUpdateRequest struct {
	GIDs []uint64 `json:"gids"`
}

const maxGIDsPerFire = 10

func (h *handlers) fireGroupKeysUpdate(w http.ResponseWriter, r *http.Request) {
	actor, err := callerUID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req fireGroupKeysUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if len(req.GIDs) > maxGIDsPerFire {
		writeError(w, tooManyErr("gids", maxGIDsPerFire))
		return
	}
	results, err := h.c.FireGroupKeysUpdate(r.Context(), keyepoch.FireInput{Actor: actor, GIDs: req.GIDs})
	if err != nil {
		writeError(w, err)
		return
	}
	writeResult(w, results)
}

type groupKeysUpdateRequest struct {
	GID           uint64 `json:"gid"`
	Version       uint64 `json:"version"`
	GroupKeysMode string `json:"groupKeysMode"`
	GroupKeys     []byte `json:"groupKeys"`
}

func (h *handlers) groupKeysUpdate(w http.ResponseWriter, r *http.Request) {
	caller, err := callerUID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req groupKeysUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	mode, err := keyModeFromWire(req.GroupKeysMode)
	if err != nil {
		writeError(w, err)
		return
	}
	err = h.c.UpdateGroupKeys(r.Context(), keyepoch.UploadInput{
		GID: req.GID, Caller: caller, Version: req.Version, Mode: mode, Payload: req.GroupKeys,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeResult(w, nil)
}

type prepareKeyUpdateRequest struct {
	GID     uint64 `json:"gid"`
	Version uint64 `json:"version"`
	Mode    string `json:"mode"`
}

func (h *handlers) prepareKeyUpdate(w http.ResponseWriter, r *http.Request) {
	caller, err := callerUID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req prepareKeyUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	mode, err := keyModeFromWire(req.Mode)
	if err != nil {
		writeError(w, err)
		return
	}
	result, err := h.c.PrepareGroupKeysUpdate(r.Context(), keyepoch.PrepareInput{
		GID: req.GID, Caller: caller, NextVersion: req.Version, Mode: mode,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeResult(w, result)
}

type dhKeysRequest struct {
	UIDs []string `json:"uids"`
}

func (h *handlers) dhKeys(w http.ResponseWriter, r *http.Request) {
	caller, err := callerUID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req dhKeysRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	keys, err := h.c.DHKeys(r.Context(), controller.DHKeysInput{Caller: caller, UIDs: req.UIDs})
	if err != nil {
		writeError(w, err)
		return
	}
	writeResult(w, keys)
}
