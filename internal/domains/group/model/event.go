package model

import "time"

// SystemMessageKind enumerates the group system message kinds published to
// PubSubBus (spec §6's "message kinds are enumerated" list).
type SystemMessageKind string

const (
	MsgUserEnterGroup       SystemMessageKind = "USER_ENTER_GROUP"
	MsgUserQuitGroup        SystemMessageKind = "USER_QUIT_GROUP"
	MsgUserMuteGroup        SystemMessageKind = "USER_MUTE_GROUP"
	MsgUserUnmuteGroup      SystemMessageKind = "USER_UNMUTE_GROUP"
	MsgUserChangeRole       SystemMessageKind = "USER_CHANGE_ROLE"
	MsgGroupInfoUpdate      SystemMessageKind = "GROUP_INFO_UPDATE"
	MsgGroupMemberUpdate    SystemMessageKind = "GROUP_MEMBER_UPDATE"
	MsgGroupSwitchKeys      SystemMessageKind = "GROUP_SWITCH_KEYS"
	MsgGroupUpdateKeysReq   SystemMessageKind = "GROUP_UPDATE_KEYS_REQUEST"
	MsgGroupKeyRefresh      SystemMessageKind = "GROUP_KEY_REFRESH"
	MsgGroupJoinReview      SystemMessageKind = "GROUP_JOIN_REVIEW"
)

// SystemMessageBody is the kind-tagged JSON payload persisted alongside a
// membership transition and relayed to PubSubBus. Fields not relevant to a
// given kind are left zero; marshaling drops them via `omitempty`.
type SystemMessageBody struct {
	Kind           SystemMessageKind `json:"kind"`
	GID            uint64            `json:"gid"`
	AffectedUIDs   []string          `json:"affectedUids,omitempty"`
	Role           string            `json:"role,omitempty"`
	Version        uint64            `json:"version,omitempty"`
	Mode           KeyMode           `json:"mode,omitempty"`
	RequestID      string            `json:"requestId,omitempty"`
	EmittedAt      time.Time         `json:"emittedAt"`
}

// MembershipChangeKind classifies a successful FSM transition for logging,
// metrics, and correlation id derivation.
type MembershipChangeKind string

const (
	ChangeCreateGroup  MembershipChangeKind = "create"
	ChangeInvite       MembershipChangeKind = "invite"
	ChangeJoinByQr     MembershipChangeKind = "join_by_qr"
	ChangeAddMe        MembershipChangeKind = "add_me"
	ChangeReviewAccept MembershipChangeKind = "review_accept"
	ChangeReviewReject MembershipChangeKind = "review_reject"
	ChangeLeave        MembershipChangeKind = "leave"
	ChangeKick         MembershipChangeKind = "kick"
	ChangeRoleChange   MembershipChangeKind = "role_change"
	ChangeUpdateGroup  MembershipChangeKind = "update_group"
)

// MembershipChange is the FSM's uniform result envelope: every write
// transition reports what changed so the controller can notify PubSubBus
// and decide whether to consult KeyEpochCoordinator (spec §4.6 (a)-(c)).
type MembershipChange struct {
	Kind             MembershipChangeKind
	GID              uint64
	Actor            string
	AffectedMembers  []GroupMember
	RemovedUIDs      []string
	MemberCountDelta int
	MemberCountAfter int
	NextOwner        string
	SystemMessage    SystemMessageBody
}
