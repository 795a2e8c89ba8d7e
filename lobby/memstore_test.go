package lobby

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"liveserver/models"
)

var errStoreDown = errors.New("connection refused")

// memStore はテスト用のStoreです。failを立てると次の書き込みが失敗します。
type memStore struct {
	mu       sync.Mutex
	nextID   uint
	rooms    map[uint]models.Room
	members  map[uint]map[uint]models.RoomMember
	scoreSum map[uint]int64
	fail     bool
}

func newMemStore() *memStore {
	return &memStore{
		nextID:   1,
		rooms:    make(map[uint]models.Room),
		members:  make(map[uint]map[uint]models.RoomMember),
		scoreSum: make(map[uint]int64),
	}
}

func (s *memStore) failNext() {
	s.mu.Lock()
	s.fail = true
	s.mu.Unlock()
}

func (s *memStore) down() bool {
	if s.fail {
		s.fail = false
		return true
	}
	return false
}

func (s *memStore) applyUpdate(u RoomUpdate) {
	r := s.rooms[u.RoomID]
	r.HostID = u.HostID
	r.Status = u.Status
	r.UpdatedAt = u.At
	if u.Status == models.RoomDisbanded {
		at := u.At
		r.DisbandedAt = &at
		s.members[u.RoomID] = map[uint]models.RoomMember{}
	}
	s.rooms[u.RoomID] = r
}

func (s *memStore) CreateRoom(_ context.Context, room *models.Room, host *models.RoomMember) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.down() {
		return errStoreDown
	}
	room.RoomID = s.nextID
	s.nextID++
	host.RoomID = room.RoomID
	s.rooms[room.RoomID] = *room
	s.members[room.RoomID] = map[uint]models.RoomMember{host.MemberID: *host}
	return nil
}

func (s *memStore) AddMember(_ context.Context, m *models.RoomMember, u RoomUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.down() {
		return errStoreDown
	}
	s.members[m.RoomID][m.MemberID] = *m
	s.applyUpdate(u)
	return nil
}

func (s *memStore) RemoveMember(_ context.Context, memberID uint, u RoomUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.down() {
		return errStoreDown
	}
	delete(s.members[u.RoomID], memberID)
	s.applyUpdate(u)
	return nil
}

func (s *memStore) DisbandRoom(_ context.Context, u RoomUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.down() {
		return errStoreDown
	}
	s.applyUpdate(u)
	return nil
}

func (s *memStore) StartSession(_ context.Context, u RoomUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.down() {
		return errStoreDown
	}
	for id, m := range s.members[u.RoomID] {
		m.Score = 0
		m.Judges = models.JudgeCounts{}
		m.InSession = true
		m.Recorded = false
		s.members[u.RoomID][id] = m
	}
	s.applyUpdate(u)
	return nil
}

func (s *memStore) UpdateRoom(_ context.Context, u RoomUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.down() {
		return errStoreDown
	}
	s.applyUpdate(u)
	return nil
}

func (s *memStore) RecordResult(_ context.Context, m *models.RoomMember, u RoomUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.down() {
		return errStoreDown
	}
	if s.members[m.RoomID][m.MemberID].Recorded {
		return ErrAlreadyRecorded
	}
	s.members[m.RoomID][m.MemberID] = *m
	s.scoreSum[m.MemberID] += m.Score
	s.applyUpdate(u)
	return nil
}

func (s *memStore) LoadActiveRooms(_ context.Context) ([]models.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.down() {
		return nil, errStoreDown
	}
	var rooms []models.Room
	for id, r := range s.rooms {
		if r.Status == models.RoomDisbanded {
			continue
		}
		for _, m := range s.members[id] {
			r.Members = append(r.Members, m)
		}
		rooms = append(rooms, r)
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].RoomID < rooms[j].RoomID })
	return rooms, nil
}

func (s *memStore) PurgeDisbanded(_ context.Context, before time.Time) ([]uint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.down() {
		return nil, errStoreDown
	}
	var ids []uint
	for id, r := range s.rooms {
		if r.Status == models.RoomDisbanded && r.DisbandedAt != nil && r.DisbandedAt.Before(before) {
			ids = append(ids, id)
			delete(s.rooms, id)
			delete(s.members, id)
		}
	}
	return ids, nil
}

func (s *memStore) memberCount(roomID uint) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.members[roomID])
}

func (s *memStore) sum(userID uint) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scoreSum[userID]
}

// setHost は永続化済みのホストを直接書き換えます。
func (s *memStore) setHost(roomID, hostID uint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.rooms[roomID]
	r.HostID = hostID
	s.rooms[roomID] = r
}

func (s *memStore) room(roomID uint) models.Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rooms[roomID]
}

// recordingNotifier は通知されたビューを保持します。
type recordingNotifier struct {
	mu    sync.Mutex
	views []RoomView
}

func (n *recordingNotifier) RoomChanged(v RoomView) {
	n.mu.Lock()
	n.views = append(n.views, v)
	n.mu.Unlock()
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.views)
}

// fakeClock は手動で進める時計です。
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}
