package lobby

import (
	"sort"
	"sync"
	"time"

	"liveserver/models"
)

// roomEntry はアリーナ内の1ルームです。mu を保持している間だけ読み書きできます。
type roomEntry struct {
	mu        sync.Mutex
	room      models.Room
	members   map[uint]*models.RoomMember
	nextSeq   uint64
	quorum    map[uint]struct{} // InProgress中のみ。開始時点の参加者
	version   uint64            // applyのたびに増える
	touchedAt time.Time
}

// Registry はルームIDをキーとするアリーナです。
// mu はマップの出し入れだけを守り、ルームの状態は各エントリのロックで守ります。
type Registry struct {
	mu    sync.RWMutex
	rooms map[uint]*roomEntry
}

func NewRegistry() *Registry {
	return &Registry{rooms: make(map[uint]*roomEntry)}
}

func (r *Registry) put(e *roomEntry) {
	r.mu.Lock()
	r.rooms[e.room.RoomID] = e
	r.mu.Unlock()
}

func (r *Registry) get(roomID uint) (*roomEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.rooms[roomID]
	return e, ok
}

func (r *Registry) remove(roomID uint) {
	r.mu.Lock()
	delete(r.rooms, roomID)
	r.mu.Unlock()
}

// snapshot はルームID昇順のエントリ一覧を返します。
func (r *Registry) snapshot() []*roomEntry {
	r.mu.RLock()
	entries := make([]*roomEntry, 0, len(r.rooms))
	for _, e := range r.rooms {
		entries = append(entries, e)
	}
	r.mu.RUnlock()
	sort.Slice(entries, func(i, j int) bool { return entries[i].room.RoomID < entries[j].room.RoomID })
	return entries
}

// Len はアリーナ内のルーム数 (解散済みを含む)
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

func newRoomEntry(room models.Room, members []models.RoomMember, at time.Time) *roomEntry {
	e := &roomEntry{
		room:      room,
		members:   make(map[uint]*models.RoomMember, len(members)),
		nextSeq:   1,
		version:   1,
		touchedAt: at,
	}
	e.room.Members = nil
	for i := range members {
		m := members[i]
		e.members[m.MemberID] = &m
		if m.JoinSeq >= e.nextSeq {
			e.nextSeq = m.JoinSeq + 1
		}
	}
	return e
}

func (e *roomEntry) disbanded() bool {
	return e.room.Status == models.RoomDisbanded
}

func (e *roomEntry) update(at time.Time) RoomUpdate {
	return RoomUpdate{RoomID: e.room.RoomID, HostID: e.room.HostID, Status: e.room.Status, At: at}
}

// apply は永続化に成功したRoomUpdateをメモリに反映します。
func (e *roomEntry) apply(u RoomUpdate) {
	if u.Status != models.RoomInProgress {
		e.quorum = nil
	}
	e.room.HostID = u.HostID
	e.room.Status = u.Status
	e.room.UpdatedAt = u.At
	if u.Status == models.RoomDisbanded && e.room.DisbandedAt == nil {
		at := u.At
		e.room.DisbandedAt = &at
	}
	e.touchedAt = u.At
	e.version++
}

// earliestMemberExcept は excluded を除いて参加順が最も早いメンバーを返します。
func (e *roomEntry) earliestMemberExcept(excluded uint) (uint, bool) {
	var earliest *models.RoomMember
	for id, m := range e.members {
		if id == excluded {
			continue
		}
		if earliest == nil || m.JoinSeq < earliest.JoinSeq {
			earliest = m
		}
	}
	if earliest == nil {
		return 0, false
	}
	return earliest.MemberID, true
}

// planJoin は入室できるか判定します。拒否する場合は対応するエラーも返します。
func (e *roomEntry) planJoin(userID uint) (models.JoinRoomResult, error) {
	switch {
	case e.disbanded():
		return models.JoinDisbanded, ErrRoomDisbanded
	case e.members[userID] != nil:
		return models.JoinAlreadyJoined, ErrAlreadyJoined
	case len(e.members) >= e.room.Capacity:
		return models.JoinRoomFull, ErrRoomFull
	}
	return models.JoinOK, nil
}

func (e *roomEntry) addMember(m *models.RoomMember) {
	e.members[m.MemberID] = m
	if m.JoinSeq >= e.nextSeq {
		e.nextSeq = m.JoinSeq + 1
	}
}

// planLeave は退室後のルーム状態を計算します。
// ホストが抜ける場合は最も早く参加した残りのメンバーに引き継ぎ、誰も残らなければ解散します。
func (e *roomEntry) planLeave(userID uint, at time.Time) (RoomUpdate, error) {
	if e.disbanded() {
		return RoomUpdate{}, ErrRoomDisbanded
	}
	if e.members[userID] == nil {
		return RoomUpdate{}, ErrNotAMember
	}
	u := e.update(at)
	next, ok := e.earliestMemberExcept(userID)
	if !ok {
		u.Status = models.RoomDisbanded
		return u, nil
	}
	if e.room.HostID == userID {
		u.HostID = next
	}
	return u, nil
}

func (e *roomEntry) removeMember(userID uint) {
	delete(e.members, userID)
	delete(e.quorum, userID)
}

func (e *roomEntry) planDisband(requesterID uint, at time.Time) (RoomUpdate, error) {
	if e.disbanded() {
		return RoomUpdate{}, ErrRoomDisbanded
	}
	if e.room.HostID != requesterID {
		return RoomUpdate{}, ErrNotHost
	}
	u := e.update(at)
	u.Status = models.RoomDisbanded
	return u, nil
}

func (e *roomEntry) clearMembers() {
	e.members = make(map[uint]*models.RoomMember)
	e.quorum = nil
}

func (e *roomEntry) view() RoomView {
	v := RoomView{
		RoomID:    e.room.RoomID,
		LiveID:    e.room.LiveID,
		HostID:    e.room.HostID,
		Capacity:  e.room.Capacity,
		Status:    e.room.Status,
		Version:   e.version,
		UpdatedAt: e.room.UpdatedAt,
		Members:   make([]MemberView, 0, len(e.members)),
	}
	for _, m := range e.members {
		_, inSession := e.quorum[m.MemberID]
		v.Members = append(v.Members, MemberView{
			UserID:    m.MemberID,
			Diff:      m.Diff,
			JoinSeq:   m.JoinSeq,
			IsHost:    m.MemberID == e.room.HostID,
			InSession: inSession,
			Recorded:  m.Recorded,
		})
	}
	sort.Slice(v.Members, func(i, j int) bool { return v.Members[i].JoinSeq < v.Members[j].JoinSeq })
	for id := range e.quorum {
		v.Quorum = append(v.Quorum, id)
	}
	sort.Slice(v.Quorum, func(i, j int) bool { return v.Quorum[i] < v.Quorum[j] })
	return v
}
