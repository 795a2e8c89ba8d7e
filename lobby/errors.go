package lobby

import (
	"errors"
	"fmt"
)

// Kind は呼び出し元が分岐に使うエラーの分類です。
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindConflict
	KindPermissionDenied
	KindInvalidState
	KindInvalidArgument
	KindStorageUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindPermissionDenied:
		return "permission_denied"
	case KindInvalidState:
		return "invalid_state"
	case KindInvalidArgument:
		return "invalid_argument"
	case KindStorageUnavailable:
		return "storage_unavailable"
	default:
		return "unknown"
	}
}

// Error はlobbyの全操作が返すエラー型です。
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Err: errors.New(msg)}
}

var (
	ErrRoomNotFound       = newError(KindNotFound, "room not found")
	ErrRoomFull           = newError(KindConflict, "room is full")
	ErrAlreadyJoined      = newError(KindConflict, "already a member of the room")
	ErrAlreadyRecorded    = newError(KindConflict, "result already recorded")
	ErrNotHost            = newError(KindPermissionDenied, "only the host can do this")
	ErrRoomDisbanded      = newError(KindInvalidState, "room is disbanded")
	ErrNotAMember         = newError(KindNotFound, "not a member of the room")
	ErrEmptyRoom          = newError(KindInvalidState, "room has no members")
	ErrInvalidState       = newError(KindInvalidState, "operation not allowed in the current room state")
	ErrNotInSession       = newError(KindInvalidState, "member did not take part in the current session")
	ErrInvalidCapacity    = newError(KindInvalidArgument, "capacity must be positive")
	ErrInvalidDifficulty  = newError(KindInvalidArgument, "invalid difficulty")
	ErrInvalidResult      = newError(KindInvalidArgument, "score and judge counts must be non-negative")
	ErrStorageUnavailable = newError(KindStorageUnavailable, "storage unavailable")
)

// KindOf はerrの分類を返します。lobby以外のエラーはKindUnknownです。
func KindOf(err error) Kind {
	var le *Error
	if errors.As(err, &le) {
		return le.Kind
	}
	return KindUnknown
}

// withOp は操作名を付けてエラーを包みます。
// lobbyのエラーでないものは永続化層の障害として扱います。
func withOp(op string, err error) error {
	if err == nil {
		return nil
	}
	kind := KindOf(err)
	if kind == KindUnknown {
		return &Error{Kind: KindStorageUnavailable, Op: op, Err: fmt.Errorf("%w: %w", ErrStorageUnavailable, err)}
	}
	return &Error{Kind: kind, Op: op, Err: err}
}
