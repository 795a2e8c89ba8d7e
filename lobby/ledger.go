package lobby

import (
	"sort"

	"liveserver/models"
)

// MemberResult は1メンバーのプレイ結果
type MemberResult struct {
	UserID uint
	Diff   models.LiveDifficulty
	Score  int64
	Judges models.JudgeCounts
}

// planRecord は結果を検証し、保存すべきメンバー行を返します。
// diff が0のときは入室時に選んだ難易度を使います。
func (e *roomEntry) planRecord(userID uint, diff models.LiveDifficulty, score int64, judges models.JudgeCounts) (*models.RoomMember, error) {
	if score < 0 || score > models.MaxScore || !judges.Valid() {
		return nil, ErrInvalidResult
	}
	if diff != 0 && !diff.Valid() {
		return nil, ErrInvalidDifficulty
	}
	if e.disbanded() {
		return nil, ErrRoomDisbanded
	}
	m := e.members[userID]
	if m == nil {
		return nil, ErrNotAMember
	}
	if m.Recorded {
		return nil, ErrAlreadyRecorded
	}
	if e.room.Status != models.RoomInProgress {
		return nil, ErrInvalidState
	}
	if _, ok := e.quorum[userID]; !ok {
		return nil, ErrNotInSession
	}

	updated := *m
	if diff != 0 {
		updated.Diff = diff
	}
	updated.Score = score
	updated.Judges = judges
	updated.Recorded = true
	return &updated, nil
}

// quorumSatisfied はセッション参加者が全員結果を送ったかを判定します。
// recorded は記録済みとみなすメンバー、leaving は抜けたとみなすメンバー (0なら無し)。
func (e *roomEntry) quorumSatisfied(recorded, leaving uint) bool {
	if e.room.Status != models.RoomInProgress {
		return false
	}
	for id := range e.quorum {
		if id == leaving || id == recorded {
			continue
		}
		m := e.members[id]
		if m == nil {
			continue
		}
		if !m.Recorded {
			return false
		}
	}
	return true
}

// resetResults はセッション開始時に前回の結果を消します。
func (e *roomEntry) resetResults() {
	e.quorum = make(map[uint]struct{}, len(e.members))
	for id, m := range e.members {
		m.Score = 0
		m.Judges = models.JudgeCounts{}
		m.Recorded = false
		m.InSession = true
		e.quorum[id] = struct{}{}
	}
}

// restoreQuorum は永続化された in_session から参加者を組み立て直します。
// 誰も印が付いていなければ (列の追加前に始まったセッション) 全員を参加者とします。
func (e *roomEntry) restoreQuorum() {
	e.quorum = make(map[uint]struct{}, len(e.members))
	for id, m := range e.members {
		if m.InSession {
			e.quorum[id] = struct{}{}
		}
	}
	if len(e.quorum) > 0 {
		return
	}
	for id, m := range e.members {
		m.InSession = true
		e.quorum[id] = struct{}{}
	}
}

func (e *roomEntry) results() []MemberResult {
	results := make([]MemberResult, 0, len(e.members))
	for _, m := range e.members {
		if !m.Recorded {
			continue
		}
		results = append(results, MemberResult{
			UserID: m.MemberID,
			Diff:   m.Diff,
			Score:  m.Score,
			Judges: m.Judges,
		})
	}
	SortResults(results)
	return results
}

// SortResults はスコア降順、同点ならユーザーID昇順に並べます。
func SortResults(results []MemberResult) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].UserID < results[j].UserID
	})
}
