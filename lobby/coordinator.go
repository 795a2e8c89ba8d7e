package lobby

import (
	"context"
	"errors"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"liveserver/models"
)

// Coordinator はルームのライフサイクル (入退室・ホスト交代・セッション・解散) と
// 結果の記録をまとめて扱います。全ての変更はルームごとのロック内で
// 「検証 → 永続化 → メモリ反映」の順に行い、永続化に失敗した場合は何も反映しません。
type Coordinator struct {
	registry *Registry
	store    Store
	notifier Notifier
	logger   *zap.Logger
	now      func() time.Time
}

type Option func(*Coordinator)

func WithNotifier(n Notifier) Option {
	return func(c *Coordinator) { c.notifier = n }
}

func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

func NewCoordinator(store Store, logger *zap.Logger, opts ...Option) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Coordinator{
		registry: NewRegistry(),
		store:    store,
		notifier: nopNotifier{},
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Coordinator) Registry() *Registry { return c.registry }

// mutate はルームをロックしてfnを実行し、成功したら変更後の状態を通知します。
// 通知もロック内で行うので、購読者には確定した順に届きます。
func (c *Coordinator) mutate(roomID uint, op string, fn func(e *roomEntry, now time.Time) error) (RoomView, error) {
	e, ok := c.registry.get(roomID)
	if !ok {
		return RoomView{}, withOp(op, ErrRoomNotFound)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := fn(e, c.now()); err != nil {
		return RoomView{}, withOp(op, err)
	}
	view := e.view()
	c.notifier.RoomChanged(view)
	return view, nil
}

// CreateRoom はhostIDを唯一のメンバー兼ホストとするルームを作成します。
func (c *Coordinator) CreateRoom(ctx context.Context, hostID uint, liveID int, diff models.LiveDifficulty, capacity int) (uint, error) {
	const op = "CreateRoom"
	if capacity <= 0 {
		return 0, withOp(op, ErrInvalidCapacity)
	}
	if !diff.Valid() {
		return 0, withOp(op, ErrInvalidDifficulty)
	}

	now := c.now()
	room := models.Room{
		LiveID:    liveID,
		HostID:    hostID,
		Capacity:  capacity,
		Status:    models.RoomWaiting,
		CreatedAt: now,
		UpdatedAt: now,
	}
	host := models.RoomMember{MemberID: hostID, JoinSeq: 1, Diff: diff, CreatedAt: now}
	if err := c.store.CreateRoom(ctx, &room, &host); err != nil {
		c.logger.Error("ルームの保存に失敗しました", zap.Uint("hostID", hostID), zap.Error(err))
		return 0, withOp(op, err)
	}

	e := newRoomEntry(room, []models.RoomMember{host}, now)
	e.mu.Lock()
	c.registry.put(e)
	c.notifier.RoomChanged(e.view())
	e.mu.Unlock()

	c.logger.Info("ルームを作成しました", zap.Uint("roomID", room.RoomID), zap.Uint("hostID", hostID), zap.Int("liveID", liveID), zap.Int("capacity", capacity))
	return room.RoomID, nil
}

// JoinRoom は入室を試みます。満室・解散済み・参加済み・存在しないルームは
// JoinRoomResultで返し、errorは引数の不正か永続化層の障害の場合だけです。
func (c *Coordinator) JoinRoom(ctx context.Context, roomID, userID uint, diff models.LiveDifficulty) (models.JoinRoomResult, error) {
	const op = "JoinRoom"
	if !diff.Valid() {
		return models.JoinOtherError, withOp(op, ErrInvalidDifficulty)
	}

	result := models.JoinOtherError
	_, err := c.mutate(roomID, op, func(e *roomEntry, now time.Time) error {
		var reject error
		result, reject = e.planJoin(userID)
		if reject != nil {
			return reject
		}
		m := &models.RoomMember{
			RoomID:    roomID,
			MemberID:  userID,
			JoinSeq:   e.nextSeq,
			Diff:      diff,
			CreatedAt: now,
		}
		u := e.update(now)
		if err := c.store.AddMember(ctx, m, u); err != nil {
			result = models.JoinOtherError
			return err
		}
		e.addMember(m)
		e.apply(u)
		return nil
	})
	switch {
	case err == nil:
		c.logger.Info("入室しました", zap.Uint("roomID", roomID), zap.Uint("userID", userID))
		return models.JoinOK, nil
	case KindOf(err) == KindStorageUnavailable:
		c.logger.Error("入室の保存に失敗しました", zap.Uint("roomID", roomID), zap.Error(err))
		return models.JoinOtherError, err
	case errors.Is(err, ErrRoomNotFound):
		return models.JoinRoomNotFound, nil
	default:
		return result, nil
	}
}

// LeaveRoom は退室します。ホストが抜けると参加順が最も早いメンバーがホストになり、
// 最後のメンバーが抜けるとルームは解散します。
func (c *Coordinator) LeaveRoom(ctx context.Context, roomID, userID uint) error {
	const op = "LeaveRoom"
	var before models.RoomStatus
	view, err := c.mutate(roomID, op, func(e *roomEntry, now time.Time) error {
		before = e.room.Status
		u, err := e.planLeave(userID, now)
		if err != nil {
			return err
		}
		if u.Status == models.RoomInProgress && e.quorumSatisfied(0, userID) {
			u.Status = models.RoomWaiting
		}
		if err := c.store.RemoveMember(ctx, userID, u); err != nil {
			return err
		}
		e.removeMember(userID)
		e.apply(u)
		return nil
	})
	if err != nil {
		return err
	}

	c.logger.Info("退室しました", zap.Uint("roomID", roomID), zap.Uint("userID", userID), zap.Uint("hostID", view.HostID))
	switch {
	case view.Status == models.RoomDisbanded:
		c.logger.Info("メンバーがいなくなったためルームを解散しました", zap.Uint("roomID", roomID))
	case before == models.RoomInProgress && view.Status == models.RoomWaiting:
		c.logger.Info("セッションが終了しました", zap.Uint("roomID", roomID))
	}
	return nil
}

// DisbandRoom はホストの要求でルームを解散します。
func (c *Coordinator) DisbandRoom(ctx context.Context, roomID, requesterID uint) error {
	const op = "DisbandRoom"
	_, err := c.mutate(roomID, op, func(e *roomEntry, now time.Time) error {
		u, err := e.planDisband(requesterID, now)
		if err != nil {
			return err
		}
		if err := c.store.DisbandRoom(ctx, u); err != nil {
			return err
		}
		e.clearMembers()
		e.apply(u)
		return nil
	})
	if err != nil {
		return err
	}
	c.logger.Info("ルームを解散しました", zap.Uint("roomID", roomID), zap.Uint("hostID", requesterID))
	return nil
}

// StartSession はWaitingのルームでセッションを開始し、現在のメンバーを参加者として確定します。
func (c *Coordinator) StartSession(ctx context.Context, roomID, requesterID uint) error {
	const op = "StartSession"
	view, err := c.mutate(roomID, op, func(e *roomEntry, now time.Time) error {
		switch {
		case e.disbanded():
			return ErrRoomDisbanded
		case e.room.HostID != requesterID:
			return ErrNotHost
		case len(e.members) == 0:
			return ErrEmptyRoom
		case e.room.Status != models.RoomWaiting:
			return ErrInvalidState
		}
		u := e.update(now)
		u.Status = models.RoomInProgress
		if err := c.store.StartSession(ctx, u); err != nil {
			return err
		}
		e.resetResults()
		e.apply(u)
		return nil
	})
	if err != nil {
		return err
	}
	c.logger.Info("セッションを開始しました", zap.Uint("roomID", roomID), zap.Int("quorum", len(view.Quorum)))
	return nil
}

// RecordResult はメンバーのプレイ結果を1度だけ記録し、ユーザーの累計スコアに加算します。
// 参加者全員が記録するとルームはWaitingに戻ります。
func (c *Coordinator) RecordResult(ctx context.Context, roomID, userID uint, diff models.LiveDifficulty, score int64, judges models.JudgeCounts) error {
	const op = "RecordResult"
	finished := false
	_, err := c.mutate(roomID, op, func(e *roomEntry, now time.Time) error {
		m, err := e.planRecord(userID, diff, score, judges)
		if err != nil {
			return err
		}
		u := e.update(now)
		if e.quorumSatisfied(userID, 0) {
			u.Status = models.RoomWaiting
		}
		if err := c.store.RecordResult(ctx, m, u); err != nil {
			return err
		}
		*e.members[userID] = *m
		e.apply(u)
		finished = u.Status == models.RoomWaiting
		return nil
	})
	if err != nil {
		return err
	}
	c.logger.Info("結果を記録しました", zap.Uint("roomID", roomID), zap.Uint("userID", userID), zap.Int64("score", score))
	if finished {
		c.logger.Info("セッションが終了しました", zap.Uint("roomID", roomID))
	}
	return nil
}

// AggregateRoomResults は記録済みの結果をスコア降順 (同点はユーザーID昇順) で返します。
func (c *Coordinator) AggregateRoomResults(roomID uint) ([]MemberResult, error) {
	const op = "AggregateRoomResults"
	e, ok := c.registry.get(roomID)
	if !ok {
		return nil, withOp(op, ErrRoomNotFound)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.disbanded() {
		return nil, withOp(op, ErrRoomDisbanded)
	}
	return e.results(), nil
}

// GetRoomState はルーム状態のスナップショットを返します。解散済みのルームも返します。
func (c *Coordinator) GetRoomState(roomID uint) (RoomView, error) {
	e, ok := c.registry.get(roomID)
	if !ok {
		return RoomView{}, withOp("GetRoomState", ErrRoomNotFound)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.view(), nil
}

// ListRooms は解散していないルームを返します。liveIDが0なら全ライブが対象です。
func (c *Coordinator) ListRooms(liveID int) []models.RoomInfo {
	infos := []models.RoomInfo{}
	for _, e := range c.registry.snapshot() {
		e.mu.Lock()
		if !e.disbanded() && (liveID == 0 || e.room.LiveID == liveID) {
			infos = append(infos, e.view().Info())
		}
		e.mu.Unlock()
	}
	return infos
}

// Restore は起動時に永続化済みのルームをアリーナへ読み込みます。
// InProgressのルームはセッション開始時に在室していたメンバーだけを参加者に戻します。
// ホストがメンバーにいないルームは参加順が最も早いメンバーをホストにして書き戻します。
func (c *Coordinator) Restore(ctx context.Context) (int, error) {
	const op = "Restore"
	rooms, err := c.store.LoadActiveRooms(ctx)
	if err != nil {
		return 0, withOp(op, err)
	}
	now := c.now()
	restored := 0
	for _, room := range rooms {
		e := newRoomEntry(room, room.Members, now)
		if len(e.members) == 0 {
			c.logger.Warn("メンバーのいないルームを読み飛ばします", zap.Uint("roomID", room.RoomID))
			continue
		}
		if e.members[e.room.HostID] == nil {
			host, _ := e.earliestMemberExcept(0)
			c.logger.Warn("ホストがメンバーにいないため交代します", zap.Uint("roomID", room.RoomID), zap.Uint("hostID", host))
			u := e.update(now)
			u.HostID = host
			if err := c.store.UpdateRoom(ctx, u); err != nil {
				return restored, withOp(op, err)
			}
			e.apply(u)
		}
		if e.room.Status == models.RoomInProgress {
			e.restoreQuorum()
		}
		c.registry.put(e)
		restored++
	}
	c.logger.Info("ルームを復元しました", zap.Int("rooms", restored))
	return restored, nil
}

// ExpireIdleRooms はidleFor以上操作のないWaitingのルームを解散します。
func (c *Coordinator) ExpireIdleRooms(ctx context.Context, idleFor time.Duration) (int, error) {
	cutoff := c.now().Add(-idleFor)
	expired := 0
	var errs error
	for _, e := range c.registry.snapshot() {
		e.mu.Lock()
		if e.room.Status != models.RoomWaiting || !e.touchedAt.Before(cutoff) {
			e.mu.Unlock()
			continue
		}
		u := e.update(c.now())
		u.Status = models.RoomDisbanded
		if err := c.store.DisbandRoom(ctx, u); err != nil {
			e.mu.Unlock()
			errs = multierr.Append(errs, withOp("ExpireIdleRooms", err))
			continue
		}
		e.clearMembers()
		e.apply(u)
		c.notifier.RoomChanged(e.view())
		e.mu.Unlock()
		expired++
	}
	if expired > 0 {
		c.logger.Info("放置されたルームを解散しました", zap.Int("rooms", expired))
	}
	return expired, errs
}

// PurgeDisbanded はretentionより前に解散したルームを永続化層とアリーナから取り除きます。
func (c *Coordinator) PurgeDisbanded(ctx context.Context, retention time.Duration) (int, error) {
	cutoff := c.now().Add(-retention)
	ids, err := c.store.PurgeDisbanded(ctx, cutoff)
	if err != nil {
		return 0, withOp("PurgeDisbanded", err)
	}
	evicted := make(map[uint]struct{}, len(ids))
	for _, id := range ids {
		c.registry.remove(id)
		evicted[id] = struct{}{}
	}
	for _, e := range c.registry.snapshot() {
		e.mu.Lock()
		old := e.disbanded() && e.room.DisbandedAt != nil && e.room.DisbandedAt.Before(cutoff)
		id := e.room.RoomID
		e.mu.Unlock()
		if old {
			c.registry.remove(id)
			evicted[id] = struct{}{}
		}
	}
	return len(evicted), nil
}
