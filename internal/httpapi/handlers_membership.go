package httpapi

import (
	"net/http"

	"glkdc.dev/glkdcd/internal/domains/group/controller"
	"glkdc.dev/glkdcd/internal/domains/group/fsm"
)

type createGroupRequest struct {
	GID                           uint64            `json:"gid"`
	OwnerPublicKey                []byte            `json:"ownerPublicKey"`
	Members                       []string          `json:"members"`
	MembersGroupInfoSecrets       map[string][]byte `json:"membersGroupInfoSecrets"`
	MemberProofs                  map[string][]byte `json:"memberProofs"`
	Name                          []byte            `json:"name"`
	Icon                          []byte            `json:"icon"`
	Intro                         []byte            `json:"intro"`
	Extension                     map[string][]byte `json:"extension"`
	QrCodeSetting                 []byte            `json:"qrCodeSetting"`
	ShareSignature                []byte            `json:"shareSignature"`
	ShareAndOwnerConfirmSignature []byte            `json:"shareAndOwnerConfirmSignature"`
	OwnerConfirm                  bool              `json:"ownerConfirm"`
	EncryptedGroupInfoSecret      []byte            `json:"encryptedGroupInfoSecret"`
	EncryptedEphemeralKey         []byte            `json:"encryptedEphemeralKey"`
	GroupKeysMode                 string            `json:"groupKeysMode"`
	GroupKeys                     []byte            `json:"groupKeys"`
}

func (h *handlers) createGroup(w http.ResponseWriter, r *http.Request) {
	owner, err := callerUID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req createGroupRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	mode, err := keyModeFromWire(req.GroupKeysMode)
	if err != nil {
		writeError(w, err)
		return
	}
	change, err := h.c.CreateGroup(r.Context(), fsm.CreateGroupInput{
		GID:                           req.GID,
		Owner:                         owner,
		OwnerPublicKey:                req.OwnerPublicKey,
		Members:                       req.Members,
		MemberGroupInfoSecrets:        req.MembersGroupInfoSecrets,
		MemberProofs:                  req.MemberProofs,
		Name:                          req.Name,
		Icon:                          req.Icon,
		Intro:                         req.Intro,
		Extension:                     req.Extension,
		QrCodeSetting:                 req.QrCodeSetting,
		ShareSignature:                req.ShareSignature,
		ShareAndOwnerConfirmSignature: req.ShareAndOwnerConfirmSignature,
		OwnerConfirm:                  req.OwnerConfirm,
		EncryptedGroupInfoSecret:      req.EncryptedGroupInfoSecret,
		EncryptedEphemeralKey:         req.EncryptedEphemeralKey,
		GroupKeysMode:                 mode,
		GroupKeysPayload:              req.GroupKeys,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeResult(w, change)
}

type updateGroupRequest struct {
	GID                           uint64            `json:"gid"`
	Name                          []byte            `json:"name"`
	Icon                          []byte            `json:"icon"`
	Intro                         []byte            `json:"intro"`
	Extension                     map[string][]byte `json:"extension"`
	Broadcast                     *bool             `json:"broadcast"`
	QrCodeSetting                 []byte            `json:"qrCodeSetting"`
	ShareSignature                []byte            `json:"shareSignature"`
	ShareAndOwnerConfirmSignature []byte            `json:"shareAndOwnerConfirmSignature"`
	OwnerConfirm                  *bool             `json:"ownerConfirm"`
	EncryptedGroupInfoSecret      []byte            `json:"encryptedGroupInfoSecret"`
	EncryptedEphemeralKey         []byte            `json:"encryptedEphemeralKey"`
}

func (h *handlers) updateGroup(w http.ResponseWriter, r *http.Request) {
	actor, err := callerUID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req updateGroupRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	change, err := h.c.UpdateGroup(r.Context(), fsm.UpdateGroupInput{
		GID:                           req.GID,
		Actor:                         actor,
		Name:                          req.Name,
		Icon:                          req.Icon,
		Intro:                         req.Intro,
		Extension:                     req.Extension,
		Broadcast:                     req.Broadcast,
		QrCodeSetting:                 req.QrCodeSetting,
		ShareSignature:                req.ShareSignature,
		ShareAndOwnerConfirmSignature: req.ShareAndOwnerConfirmSignature,
		OwnerConfirm:                  req.OwnerConfirm,
		EncryptedGroupInfoSecret:      req.EncryptedGroupInfoSecret,
		EncryptedEphemeralKey:         req.EncryptedEphemeralKey,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeResult(w, change)
}

type inviteRequest struct {
	GID                    uint64            `json:"gid"`
	Members                []string          `json:"members"`
	MemberGroupInfoSecrets map[string][]byte `json:"memberGroupInfoSecrets"`
	MemberProofs           map[string][]byte `json:"memberProofs"`
	SignatureInfos         map[string][]byte `json:"signatureInfos"`
	CallerPublicKeys       map[string][]byte `json:"callerPublicKeys"`
}

func (h *handlers) invite(w http.ResponseWriter, r *http.Request) {
	actor, err := callerUID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req inviteRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	change, err := h.c.Invite(r.Context(), fsm.InviteInput{
		GID:                    req.GID,
		Actor:                  actor,
		Members:                req.Members,
		MemberGroupInfoSecrets: req.MemberGroupInfoSecrets,
		MemberProofs:           req.MemberProofs,
		SignatureInfos:         req.SignatureInfos,
		CallerPublicKeys:       req.CallerPublicKeys,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeResult(w, change)
}

type joinByQrCodeRequest struct {
	GID             uint64 `json:"gid"`
	CallerPublicKey []byte `json:"callerPublicKey"`
	QrToken         []byte `json:"qrToken"`
	Signature       []byte `json:"signature"`
	Comment         string `json:"comment"`
}

func (h *handlers) joinByQrCode(w http.ResponseWriter, r *http.Request) {
	caller, err := callerUID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req joinByQrCodeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	result, err := h.c.JoinByQrCode(r.Context(), fsm.JoinByQrCodeInput{
		GID:             req.GID,
		Caller:          caller,
		CallerPublicKey: req.CallerPublicKey,
		QrToken:         req.QrToken,
		Signature:       req.Signature,
		Comment:         req.Comment,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeResult(w, result)
}

type addMeRequest struct {
	GID             uint64 `json:"gid"`
	GroupInfoSecret []byte `json:"groupInfoSecret"`
	Proof           []byte `json:"proof"`
}

func (h *handlers) addMe(w http.ResponseWriter, r *http.Request) {
	uid, err := callerUID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req addMeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	change, err := h.c.AddMe(r.Context(), fsm.AddMeInput{
		GID:             req.GID,
		UID:             uid,
		GroupInfoSecret: req.GroupInfoSecret,
		Proof:           req.Proof,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeResult(w, change)
}

type reviewItemRequest struct {
	UID             string `json:"uid"`
	Accepted        bool   `json:"accepted"`
	GroupInfoSecret []byte `json:"groupInfoSecret"`
	Inviter         string `json:"inviter"`
	Proof           []byte `json:"proof"`
}

type reviewJoinRequest struct {
	GID   uint64              `json:"gid"`
	Items []reviewItemRequest `json:"items"`
}

func (h *handlers) reviewJoinRequest(w http.ResponseWriter, r *http.Request) {
	actor, err := callerUID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req reviewJoinRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	items := make([]fsm.ReviewItem, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, fsm.ReviewItem{
			UID:             it.UID,
			Accepted:        it.Accepted,
			GroupInfoSecret: it.GroupInfoSecret,
			Inviter:         it.Inviter,
			Proof:           it.Proof,
		})
	}
	change, err := h.c.ReviewJoinRequest(r.Context(), fsm.ReviewInput{GID: req.GID, Actor: actor, Items: items})
	if err != nil {
		writeError(w, err)
		return
	}
	writeResult(w, change)
}

type kickRequest struct {
	GID     uint64   `json:"gid"`
	Members []string `json:"members"`
}

func (h *handlers) kick(w http.ResponseWriter, r *http.Request) {
	actor, err := callerUID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req kickRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	change, err := h.c.Kick(r.Context(), fsm.KickInput{GID: req.GID, Actor: actor, Members: req.Members})
	if err != nil {
		writeError(w, err)
		return
	}
	writeResult(w, change)
}

type leaveRequest struct {
	GID       uint64 `json:"gid"`
	NextOwner string `json:"nextOwner"`
}

func (h *handlers) leave(w http.ResponseWriter, r *http.Request) {
	actor, err := callerUID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req leaveRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	change, err := h.c.Leave(r.Context(), fsm.LeaveInput{GID: req.GID, Actor: actor, NextOwner: req.NextOwner})
	if err != nil {
		writeError(w, err)
		return
	}
	writeResult(w, change)
}

type membersRequest struct {
	GID  uint64   `json:"gid"`
	UIDs []string `json:"uids"`
}

const maxUIDsPerMembersQuery = 500

func (h *handlers) members(w http.ResponseWriter, r *http.Request) {
	if _, err := callerUID(r); err != nil {
		writeError(w, err)
		return
	}
	var req membersRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if len(req.UIDs) > maxUIDsPerMembersQuery {
		writeError(w, tooManyErr("uids", maxUIDsPerMembersQuery))
		return
	}
	result, err := h.c.GetMembers(r.Context(), controller.GetMembersInput{GID: req.GID, UIDs: req.UIDs})
	if err != nil {
		writeError(w, err)
		return
	}
	writeResult(w, result)
}
