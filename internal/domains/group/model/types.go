// Package model holds the value types shared by every group package: the
// group record itself, its membership sub-states, and the versioned key
// record. None of these types carry behavior beyond validation — the state
// machine lives in fsm, the persistence lives in membership/keystore.
package model

import (
	"errors"
	"strings"
	"time"
)

// GroupVersion distinguishes the legacy read-only group representation from
// the key-epoch-aware one. Only V3 groups participate in key rotation.
type GroupVersion int

const (
	GroupVersionUnknown GroupVersion = iota
	GroupVersionV0
	GroupVersionV3
)

func (v GroupVersion) Valid() bool {
	return v == GroupVersionV0 || v == GroupVersionV3
}

// MemberRole orders from least to most privileged so role comparisons
// (">= ADMIN" in the spec's invite-role-retention rule) are plain integer
// comparisons.
type MemberRole int

const (
	MemberRoleUndefined MemberRole = iota
	MemberRoleSubscriber
	MemberRoleMember
	MemberRoleAdmin
	MemberRoleOwner
)

func (r MemberRole) Valid() bool {
	switch r {
	case MemberRoleSubscriber, MemberRoleMember, MemberRoleAdmin, MemberRoleOwner:
		return true
	default:
		return false
	}
}

func (r MemberRole) String() string {
	switch r {
	case MemberRoleOwner:
		return "OWNER"
	case MemberRoleAdmin:
		return "ADMIN"
	case MemberRoleMember:
		return "MEMBER"
	case MemberRoleSubscriber:
		return "SUBSCRIBER"
	default:
		return "UNDEFINED"
	}
}

func ParseMemberRole(s string) (MemberRole, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "OWNER":
		return MemberRoleOwner, nil
	case "ADMIN":
		return MemberRoleAdmin, nil
	case "MEMBER":
		return MemberRoleMember, nil
	case "SUBSCRIBER":
		return MemberRoleSubscriber, nil
	default:
		return MemberRoleUndefined, ErrInvalidRole
	}
}

// KeyMode is the group's current key-packaging strategy.
type KeyMode int

const (
	KeyModeUnknown KeyMode = iota
	KeyModeAllTheSame
	KeyModeOneForEach
)

func (m KeyMode) Valid() bool {
	return m == KeyModeAllTheSame || m == KeyModeOneForEach
}

func (m KeyMode) String() string {
	switch m {
	case KeyModeAllTheSame:
		return "ALL_THE_SAME"
	case KeyModeOneForEach:
		return "ONE_FOR_EACH"
	default:
		return "UNKNOWN"
	}
}

// MemberStatus is a bitfield; only bit 0 (mute) is defined today.
type MemberStatus uint32

const MemberStatusMuted MemberStatus = 1 << 0

func (s MemberStatus) Muted() bool { return s&MemberStatusMuted != 0 }

var (
	ErrInvalidRole          = errors.New("model: invalid member role")
	ErrInvalidGroupID       = errors.New("model: invalid group id")
	ErrInvalidUID           = errors.New("model: invalid uid")
	ErrExtensionTooLarge    = errors.New("model: extension map exceeds bounds")
	ErrOwnerRequired        = errors.New("model: group must retain exactly one owner")
	ErrMissingV3Fields      = errors.New("model: V3 group requires encrypted group info secret and ephemeral key")
	ErrSignatureRequired    = errors.New("model: signature chain required")
	ErrQrCodeSettingEmpty   = errors.New("model: qrCodeSetting must not be empty")
)

const (
	ExtensionMaxEntries  = 256
	ExtensionMaxKeyBytes = 256
	ExtensionMaxValBytes = 128 * 1024
)

// ValidateExtension checks the group-extension map against its entry-count
// and key/value size bounds; it never mutates the caller's map.
func ValidateExtension(ext map[string][]byte) error {
	if len(ext) > ExtensionMaxEntries {
		return ErrExtensionTooLarge
	}
	for k, v := range ext {
		if len(k) > ExtensionMaxKeyBytes || len(v) > ExtensionMaxValBytes {
			return ErrExtensionTooLarge
		}
	}
	return nil
}

// Group mirrors spec §3's Group entity.
type Group struct {
	GID                           uint64
	Name                          []byte
	Icon                          []byte
	Intro                         []byte
	Version                       GroupVersion
	EncryptStatus                 int
	Broadcast                     bool
	OwnerConfirm                  bool
	QrCodeSetting                 []byte
	ShareSignature                []byte
	ShareAndOwnerConfirmSignature []byte
	EncryptedGroupInfoSecret      []byte
	EncryptedEphemeralKey         []byte
	LastMID                       uint64
	Extension                     map[string][]byte
	CreateTime                    time.Time
	UpdateTime                    time.Time
}

func (g Group) Clone() Group {
	clone := g
	clone.Name = cloneBytes(g.Name)
	clone.Icon = cloneBytes(g.Icon)
	clone.Intro = cloneBytes(g.Intro)
	clone.QrCodeSetting = cloneBytes(g.QrCodeSetting)
	clone.ShareSignature = cloneBytes(g.ShareSignature)
	clone.ShareAndOwnerConfirmSignature = cloneBytes(g.ShareAndOwnerConfirmSignature)
	clone.EncryptedGroupInfoSecret = cloneBytes(g.EncryptedGroupInfoSecret)
	clone.EncryptedEphemeralKey = cloneBytes(g.EncryptedEphemeralKey)
	if g.Extension != nil {
		clone.Extension = make(map[string][]byte, len(g.Extension))
		for k, v := range g.Extension {
			clone.Extension[k] = cloneBytes(v)
		}
	}
	return clone
}

func (g Group) ValidateForCreate() error {
	if g.GID == 0 {
		return ErrInvalidGroupID
	}
	if len(g.QrCodeSetting) == 0 {
		return ErrQrCodeSettingEmpty
	}
	if len(g.ShareSignature) == 0 || len(g.ShareAndOwnerConfirmSignature) == 0 {
		return ErrSignatureRequired
	}
	if g.Version == GroupVersionV3 {
		if len(g.EncryptedGroupInfoSecret) == 0 || len(g.EncryptedEphemeralKey) == 0 {
			return ErrMissingV3Fields
		}
	}
	return ValidateExtension(g.Extension)
}

// GroupMember mirrors spec §3's GroupMember entity.
type GroupMember struct {
	GID             uint64
	UID             string
	Role            MemberRole
	EncryptedKey    []byte
	GroupInfoSecret []byte
	Proof           []byte
	Nick            string
	Nickname        string
	GroupNickname   string
	ProfileKeys     []byte
	Status          MemberStatus
	CreateTime      time.Time
	LastAckMID      uint64
}

func (m GroupMember) Clone() GroupMember {
	clone := m
	clone.EncryptedKey = cloneBytes(m.EncryptedKey)
	clone.GroupInfoSecret = cloneBytes(m.GroupInfoSecret)
	clone.Proof = cloneBytes(m.Proof)
	clone.ProfileKeys = cloneBytes(m.ProfileKeys)
	return clone
}

// PendingMember mirrors spec §3's PendingMember entity.
type PendingMember struct {
	GID        uint64
	UID        string
	Inviter    string
	Signature  []byte
	Comment    string
	CreateTime time.Time
}

func (p PendingMember) Clone() PendingMember {
	clone := p
	clone.Signature = cloneBytes(p.Signature)
	return clone
}

// QrCodePendingMember mirrors spec §3's ephemeral TTL=60s entity.
type QrCodePendingMember struct {
	GID                      uint64
	UID                      string
	EncryptedGroupInfoSecret []byte
	Signature                []byte
	Comment                  string
	ExpiresAt                time.Time
}

func (q QrCodePendingMember) Expired(now time.Time) bool {
	return !q.ExpiresAt.IsZero() && now.After(q.ExpiresAt)
}

const QrCodePendingTTL = 60 * time.Second

// KeyRecord mirrors spec §3's KeyRecord entity. Payload is kept opaque: the
// server stores the caller's JSON verbatim and only parses it when
// projecting a ONE_FOR_EACH entry for a specific caller (see keyepoch).
type KeyRecord struct {
	GID            uint64
	Version        uint64
	Mode           KeyMode
	EncryptVersion int
	Creator        string
	CreateTime     time.Time
	Payload        []byte // raw JSON, opaque to every layer except the fetch projector
}

func (k KeyRecord) Clone() KeyRecord {
	clone := k
	clone.Payload = cloneBytes(k.Payload)
	return clone
}

// Equal is byte-equality over the fields that matter for the store's CAS
// idempotence rule (spec §8: "insert(gid, v) is idempotent only if the
// existing record is byte-equal").
func (k KeyRecord) Equal(other KeyRecord) bool {
	if k.GID != other.GID || k.Version != other.Version || k.Mode != other.Mode ||
		k.EncryptVersion != other.EncryptVersion || k.Creator != other.Creator {
		return false
	}
	return string(k.Payload) == string(other.Payload)
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
