// Package membership implements MembershipStore (spec §4.1): the exclusive
// owner of Group, GroupMember, PendingMember, and QrCodePendingMember state.
// The copy-on-write map + CAS-by-equality idiom is a direct port of the
// teacher's internal/storage/message_store.go SaveMessage, generalized from
// a single map to the four entity maps this store owns.
package membership

import (
	"sort"
	"sync"
	"time"

	"glkdc.dev/glkdcd/internal/domains/group/model"
)

// SnapshotPersist is called with a point-in-time copy of the store's state
// after every mutation that changes durable state. It mirrors the teacher's
// internal/domains/group/state_store.go SnapshotStore contract: callers
// wire it to securestore-backed encrypted JSON, tests wire it to nil.
type SnapshotPersist func(Snapshot) error

// Snapshot is what gets handed to SnapshotPersist and what Restore expects
// back; field order mirrors the entity ownership list in spec §3.
type Snapshot struct {
	Groups    []model.Group
	Members   []model.GroupMember
	Pending   []model.PendingMember
	QrPending []model.QrCodePendingMember
}

type groupKey struct {
	gid uint64
	uid string
}

// Store is the concurrency-safe, in-process MembershipStore. A real
// deployment backs it with the SnapshotPersist hook. Construct it with New:
// the zero value has nil maps and cannot store anything.
type Store struct {
	mu sync.RWMutex

	groups    map[uint64]model.Group
	members   map[groupKey]model.GroupMember
	pending   map[groupKey]model.PendingMember
	qrPending map[groupKey]model.QrCodePendingMember

	Persist SnapshotPersist
	Now     func() time.Time
}

func New() *Store {
	return &Store{
		groups:    make(map[uint64]model.Group),
		members:   make(map[groupKey]model.GroupMember),
		pending:   make(map[groupKey]model.PendingMember),
		qrPending: make(map[groupKey]model.QrCodePendingMember),
	}
}

func (s *Store) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

func (s *Store) snapshotLocked() Snapshot {
	snap := Snapshot{
		Groups:    make([]model.Group, 0, len(s.groups)),
		Members:   make([]model.GroupMember, 0, len(s.members)),
		Pending:   make([]model.PendingMember, 0, len(s.pending)),
		QrPending: make([]model.QrCodePendingMember, 0, len(s.qrPending)),
	}
	for _, g := range s.groups {
		snap.Groups = append(snap.Groups, g.Clone())
	}
	for _, m := range s.members {
		snap.Members = append(snap.Members, m.Clone())
	}
	for _, p := range s.pending {
		snap.Pending = append(snap.Pending, p.Clone())
	}
	for _, q := range s.qrPending {
		snap.QrPending = append(snap.QrPending, q)
	}
	sort.Slice(snap.Groups, func(i, j int) bool { return snap.Groups[i].GID < snap.Groups[j].GID })
	sort.Slice(snap.Members, func(i, j int) bool {
		if snap.Members[i].GID != snap.Members[j].GID {
			return snap.Members[i].GID < snap.Members[j].GID
		}
		return snap.Members[i].UID < snap.Members[j].UID
	})
	return snap
}

func (s *Store) persistLocked() error {
	if s.Persist == nil {
		return nil
	}
	if err := s.Persist(s.snapshotLocked()); err != nil {
		return ErrInternal
	}
	return nil
}

// Restore replaces the store's state wholesale, used on startup to load a
// decrypted snapshot. Not concurrency-guarded against simultaneous traffic
// by design — callers restore before serving requests.
func (s *Store) Restore(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.groups = make(map[uint64]model.Group, len(snap.Groups))
	for _, g := range snap.Groups {
		s.groups[g.GID] = g
	}
	s.members = make(map[groupKey]model.GroupMember, len(snap.Members))
	for _, m := range snap.Members {
		s.members[groupKey{m.GID, m.UID}] = m
	}
	s.pending = make(map[groupKey]model.PendingMember, len(snap.Pending))
	for _, p := range snap.Pending {
		s.pending[groupKey{p.GID, p.UID}] = p
	}
	s.qrPending = make(map[groupKey]model.QrCodePendingMember, len(snap.QrPending))
	for _, q := range snap.QrPending {
		s.qrPending[groupKey{q.GID, q.UID}] = q
	}
}

// --- Group operations ---

func (s *Store) GetGroup(gid uint64) (model.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.groups[gid]
	if !ok {
		return model.Group{}, ErrNotFound
	}
	return g.Clone(), nil
}

func (s *Store) CreateGroup(g model.Group) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.groups[g.GID]; exists {
		return ErrAlreadyExists
	}
	s.groups[g.GID] = g.Clone()
	return s.persistLocked()
}

// GroupPatch carries only the fields an update may change; nil means
// "leave unchanged". This mirrors the teacher's patch-struct idiom used for
// partial updates throughout internal/domains/group.
type GroupPatch struct {
	Name                          []byte
	Icon                          []byte
	Intro                         []byte
	QrCodeSetting                 []byte
	ShareSignature                []byte
	ShareAndOwnerConfirmSignature []byte
	EncryptedGroupInfoSecret      []byte
	EncryptedEphemeralKey         []byte
	Broadcast                     *bool
	OwnerConfirm                  *bool
	Extension                     map[string][]byte
}

func (s *Store) UpdateGroup(gid uint64, patch GroupPatch) (model.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[gid]
	if !ok {
		return model.Group{}, ErrNotFound
	}
	if patch.Name != nil {
		g.Name = patch.Name
	}
	if patch.Icon != nil {
		g.Icon = patch.Icon
	}
	if patch.Intro != nil {
		g.Intro = patch.Intro
	}
	if patch.QrCodeSetting != nil {
		g.QrCodeSetting = patch.QrCodeSetting
	}
	if patch.ShareSignature != nil {
		g.ShareSignature = patch.ShareSignature
	}
	if patch.ShareAndOwnerConfirmSignature != nil {
		g.ShareAndOwnerConfirmSignature = patch.ShareAndOwnerConfirmSignature
	}
	if patch.EncryptedGroupInfoSecret != nil {
		g.EncryptedGroupInfoSecret = patch.EncryptedGroupInfoSecret
	}
	if patch.EncryptedEphemeralKey != nil {
		g.EncryptedEphemeralKey = patch.EncryptedEphemeralKey
	}
	if patch.Broadcast != nil {
		g.Broadcast = *patch.Broadcast
	}
	if patch.OwnerConfirm != nil {
		g.OwnerConfirm = *patch.OwnerConfirm
	}
	if patch.Extension != nil {
		if err := model.ValidateExtension(patch.Extension); err != nil {
			return model.Group{}, err
		}
		g.Extension = patch.Extension
	}
	g.UpdateTime = s.now()
	s.groups[gid] = g
	if err := s.persistLocked(); err != nil {
		return model.Group{}, err
	}
	return g.Clone(), nil
}

func (s *Store) DeleteGroup(gid uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.groups[gid]; !ok {
		return ErrNotFound
	}
	delete(s.groups, gid)
	for k := range s.members {
		if k.gid == gid {
			delete(s.members, k)
		}
	}
	for k := range s.pending {
		if k.gid == gid {
			delete(s.pending, k)
		}
	}
	for k := range s.qrPending {
		if k.gid == gid {
			delete(s.qrPending, k)
		}
	}
	return s.persistLocked()
}

// --- Member operations ---

func (s *Store) InsertMember(m model.GroupMember) error {
	return s.InsertMembers([]model.GroupMember{m})
}

// InsertMembers is atomic per-gid: either every member is inserted, or
// none are, matching spec §4.1's "insertMembers([m]) (atomic per-gid)".
func (s *Store) InsertMembers(members []model.GroupMember) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range members {
		if _, exists := s.members[groupKey{m.GID, m.UID}]; exists {
			return ErrAlreadyExists
		}
	}
	for _, m := range members {
		s.members[groupKey{m.GID, m.UID}] = m.Clone()
	}
	return s.persistLocked()
}

func (s *Store) GetMember(gid uint64, uid string) (model.GroupMember, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.members[groupKey{gid, uid}]
	if !ok {
		return model.GroupMember{}, ErrNotFound
	}
	return m.Clone(), nil
}

func (s *Store) GetMembers(gid uint64, uids []string) ([]model.GroupMember, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.GroupMember, 0, len(uids))
	for _, uid := range uids {
		if m, ok := s.members[groupKey{gid, uid}]; ok {
			out = append(out, m.Clone())
		}
	}
	return out, nil
}

func (s *Store) GetMembersByRole(gid uint64, roles []model.MemberRole, startUID string, count int) ([]model.GroupMember, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	allowed := make(map[model.MemberRole]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	var matched []model.GroupMember
	for k, m := range s.members {
		if k.gid != gid {
			continue
		}
		if _, ok := allowed[m.Role]; !ok {
			continue
		}
		if startUID != "" && m.UID <= startUID {
			continue
		}
		matched = append(matched, m.Clone())
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].UID < matched[j].UID })
	if count > 0 && len(matched) > count {
		matched = matched[:count]
	}
	return matched, nil
}

// GetMembersOrderedByCreateTime implements the composite-key cursor from
// spec §4.1: "(createTime↑, uid↑): for startUid=='' and createTime==0 the
// cursor is the beginning; otherwise the next tuple strictly greater than
// (createTime,startUid)".
func (s *Store) GetMembersOrderedByCreateTime(gid uint64, roles []model.MemberRole, startUID string, createTime time.Time, count int) ([]model.GroupMember, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var allowed map[model.MemberRole]struct{}
	if len(roles) > 0 {
		allowed = make(map[model.MemberRole]struct{}, len(roles))
		for _, r := range roles {
			allowed[r] = struct{}{}
		}
	}
	var matched []model.GroupMember
	for k, m := range s.members {
		if k.gid != gid {
			continue
		}
		if allowed != nil {
			if _, ok := allowed[m.Role]; !ok {
				continue
			}
		}
		matched = append(matched, m.Clone())
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreateTime.Equal(matched[j].CreateTime) {
			return matched[i].CreateTime.Before(matched[j].CreateTime)
		}
		return matched[i].UID < matched[j].UID
	})
	startAtBeginning := startUID == "" && createTime.IsZero()
	var out []model.GroupMember
	for _, m := range matched {
		if !startAtBeginning {
			if m.CreateTime.Before(createTime) {
				continue
			}
			if m.CreateTime.Equal(createTime) && m.UID <= startUID {
				continue
			}
		}
		out = append(out, m)
		if count > 0 && len(out) >= count {
			break
		}
	}
	return out, nil
}

// MemberPatch carries fields that may change on a member's own profile or
// via an admin role change.
type MemberPatch struct {
	Role            *model.MemberRole
	EncryptedKey    []byte
	GroupInfoSecret []byte
	Proof           []byte
	Nick            *string
	Nickname        *string
	GroupNickname   *string
	ProfileKeys     []byte
	Status          *model.MemberStatus
	LastAckMID      *uint64
}

func (s *Store) UpdateMember(gid uint64, uid string, patch MemberPatch) (model.GroupMember, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.members[groupKey{gid, uid}]
	if !ok {
		return model.GroupMember{}, ErrNotFound
	}
	applyMemberPatch(&m, patch)
	s.members[groupKey{gid, uid}] = m
	if err := s.persistLocked(); err != nil {
		return model.GroupMember{}, err
	}
	return m.Clone(), nil
}

// UpdateMemberIfEmpty is the CAS update from spec §4.1: the patch's
// EncryptedKey/GroupInfoSecret only lands if the existing field is empty;
// otherwise it's ALREADY_EXISTS, the same vocabulary message_store.go uses
// for its own CAS rejection.
func (s *Store) UpdateMemberIfEmpty(gid uint64, uid string, patch MemberPatch) (model.GroupMember, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.members[groupKey{gid, uid}]
	if !ok {
		return model.GroupMember{}, ErrNotFound
	}
	if patch.EncryptedKey != nil && len(m.EncryptedKey) != 0 {
		return model.GroupMember{}, ErrAlreadyExists
	}
	if patch.GroupInfoSecret != nil && len(m.GroupInfoSecret) != 0 {
		return model.GroupMember{}, ErrAlreadyExists
	}
	applyMemberPatch(&m, patch)
	s.members[groupKey{gid, uid}] = m
	if err := s.persistLocked(); err != nil {
		return model.GroupMember{}, err
	}
	return m.Clone(), nil
}

func applyMemberPatch(m *model.GroupMember, patch MemberPatch) {
	if patch.Role != nil {
		m.Role = *patch.Role
	}
	if patch.EncryptedKey != nil {
		m.EncryptedKey = patch.EncryptedKey
	}
	if patch.GroupInfoSecret != nil {
		m.GroupInfoSecret = patch.GroupInfoSecret
	}
	if patch.Proof != nil {
		m.Proof = patch.Proof
	}
	if patch.Nick != nil {
		m.Nick = *patch.Nick
	}
	if patch.Nickname != nil {
		m.Nickname = *patch.Nickname
	}
	if patch.GroupNickname != nil {
		m.GroupNickname = *patch.GroupNickname
	}
	if patch.ProfileKeys != nil {
		m.ProfileKeys = patch.ProfileKeys
	}
	if patch.Status != nil {
		m.Status = *patch.Status
	}
	if patch.LastAckMID != nil {
		m.LastAckMID = *patch.LastAckMID
	}
}

func (s *Store) DeleteMember(gid uint64, uid string) error {
	return s.DeleteMembers(gid, []string{uid})
}

func (s *Store) DeleteMembers(gid uint64, uids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, uid := range uids {
		delete(s.members, groupKey{gid, uid})
	}
	return s.persistLocked()
}

func (s *Store) GetOwner(gid uint64) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for k, m := range s.members {
		if k.gid == gid && m.Role == model.MemberRoleOwner {
			return m.UID, nil
		}
	}
	return "", ErrNotFound
}

// MemberCounts is the result of countMembers (spec §4.1).
type MemberCounts struct {
	MemberCount     int
	SubscriberCount int
	Owner           string
}

func (s *Store) CountMembers(gid uint64) (MemberCounts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var c MemberCounts
	for k, m := range s.members {
		if k.gid != gid {
			continue
		}
		switch m.Role {
		case model.MemberRoleSubscriber:
			c.SubscriberCount++
		case model.MemberRoleOwner:
			c.Owner = m.UID
			c.MemberCount++
		default:
			c.MemberCount++
		}
	}
	return c, nil
}

// --- PendingMember operations ---

func (s *Store) InsertPending(p model.PendingMember) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := groupKey{p.GID, p.UID}
	if _, exists := s.pending[key]; exists {
		return ErrAlreadyExists
	}
	s.pending[key] = p.Clone()
	return s.persistLocked()
}

func (s *Store) GetPending(gid uint64, uid string) (model.PendingMember, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.pending[groupKey{gid, uid}]
	if !ok {
		return model.PendingMember{}, ErrNotFound
	}
	return p.Clone(), nil
}

func (s *Store) DeletePending(gid uint64, uid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, groupKey{gid, uid})
	return s.persistLocked()
}

// ClearPendingForGroup drops every pending row for gid. Spec §4.6: "When
// qrCodeSetting updates, all PendingMember rows for the group are cleared
// (best-effort; failure is logged, not returned)" — callers should log and
// swallow the returned error rather than fail the outer transition.
func (s *Store) ClearPendingForGroup(gid uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k := range s.pending {
		if k.gid == gid {
			delete(s.pending, k)
		}
	}
	return s.persistLocked()
}

// --- QrCodePendingMember operations ---

func (s *Store) InsertQrPending(q model.QrCodePendingMember) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.qrPending[groupKey{q.GID, q.UID}] = q
	return s.persistLocked()
}

func (s *Store) GetQrPending(gid uint64, uid string, now time.Time) (model.QrCodePendingMember, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.qrPending[groupKey{gid, uid}]
	if !ok || q.Expired(now) {
		return model.QrCodePendingMember{}, ErrNotFound
	}
	return q, nil
}

func (s *Store) DeleteQrPending(gid uint64, uid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.qrPending, groupKey{gid, uid})
	return s.persistLocked()
}
