package broadcast

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"liveserver/lobby"
	"liveserver/models"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func allowAll(*http.Request) bool { return true }

// newTestServer はユーザー1としてview.RoomIDを購読させるサーバーを立てます。
func newTestServer(t *testing.T, hub *Hub, view lobby.RoomView) string {
	t.Helper()
	return newServerWith(t, hub, view.RoomID, func() (lobby.RoomView, error) { return view, nil })
}

func newServerWith(t *testing.T, hub *Hub, roomID uint, current func() (lobby.RoomView, error)) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.Serve(w, r, roomID, 1, current)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func hostOnly(roomID uint, version uint64) lobby.RoomView {
	return lobby.RoomView{RoomID: roomID, HostID: 1, Capacity: 4, Status: models.RoomWaiting, Version: version,
		Members: []lobby.MemberView{{UserID: 1, IsHost: true, JoinSeq: 1}}}
}

func readClose(t *testing.T, conn *websocket.Conn) error {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, data, err := conn.ReadMessage()
	require.Error(t, err, "unexpected message %s", data)
	return err
}

func readMessage(t *testing.T, conn *websocket.Conn) roomMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg roomMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestHubDeliversRoomState(t *testing.T) {
	hub := NewHub(allowAll, zaptest.NewLogger(t))
	view := hostOnly(7, 1)
	url := newTestServer(t, hub, view)

	a := dial(t, url)
	b := dial(t, url)

	first := readMessage(t, a)
	assert.Equal(t, "roomState", first.Type)
	assert.Equal(t, uint(7), first.Room.RoomID)
	readMessage(t, b)
	require.Eventually(t, func() bool { return hub.Subscribers(7) == 2 }, 2*time.Second, 10*time.Millisecond)

	view.Members = append(view.Members, lobby.MemberView{UserID: 2, JoinSeq: 2})
	view.Version = 2
	hub.RoomChanged(view)
	for _, conn := range []*websocket.Conn{a, b} {
		msg := readMessage(t, conn)
		assert.Equal(t, []uint{1, 2}, msg.Room.MemberIDs())
	}

	// 他のルームの変更は届かない
	hub.RoomChanged(hostOnly(8, 1))
	assert.Equal(t, 0, hub.Subscribers(8))
}

func TestHubClosesOnDisband(t *testing.T) {
	hub := NewHub(allowAll, zaptest.NewLogger(t))
	conn := dial(t, newTestServer(t, hub, hostOnly(3, 1)))
	readMessage(t, conn)
	require.Eventually(t, func() bool { return hub.Subscribers(3) == 1 }, 2*time.Second, 10*time.Millisecond)

	hub.RoomChanged(lobby.RoomView{RoomID: 3, HostID: 1, Capacity: 4, Status: models.RoomDisbanded, Version: 2})
	msg := readMessage(t, conn)
	assert.Equal(t, models.RoomDisbanded, msg.Room.Status)
	assert.Equal(t, 0, hub.Subscribers(3))

	err := readClose(t, conn)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}

func TestHubUnregistersOnClientClose(t *testing.T) {
	hub := NewHub(allowAll, zaptest.NewLogger(t))
	view := hostOnly(5, 1)
	conn := dial(t, newTestServer(t, hub, view))
	readMessage(t, conn)
	require.Eventually(t, func() bool { return hub.Subscribers(5) == 1 }, 2*time.Second, 10*time.Millisecond)

	conn.Close()
	assert.Eventually(t, func() bool { return hub.Subscribers(5) == 0 }, 2*time.Second, 10*time.Millisecond)

	// 切断済みの接続への通知で落ちない
	hub.RoomChanged(view)
	hub.Close()
}

func TestHubDropsStaleViews(t *testing.T) {
	hub := NewHub(allowAll, zaptest.NewLogger(t))
	conn := dial(t, newTestServer(t, hub, hostOnly(4, 2)))
	assert.Equal(t, uint64(2), readMessage(t, conn).Room.Version)
	require.Eventually(t, func() bool { return hub.Subscribers(4) == 1 }, 2*time.Second, 10*time.Millisecond)

	// 遅れて届いた古い状態は送らない
	older := hostOnly(4, 1)
	older.Members = append(older.Members, lobby.MemberView{UserID: 2, JoinSeq: 2})
	hub.RoomChanged(older)
	hub.RoomChanged(hostOnly(4, 2))
	newer := hostOnly(4, 3)
	newer.Members = append(newer.Members, lobby.MemberView{UserID: 3, JoinSeq: 3})
	hub.RoomChanged(newer)

	msg := readMessage(t, conn)
	assert.Equal(t, uint64(3), msg.Room.Version)
	assert.Equal(t, []uint{1, 3}, msg.Room.MemberIDs())
}

func TestHubServeRegistersBeforeSnapshot(t *testing.T) {
	hub := NewHub(allowAll, zaptest.NewLogger(t))
	changed := hostOnly(6, 2)
	changed.Members = append(changed.Members, lobby.MemberView{UserID: 2, JoinSeq: 2})
	url := newServerWith(t, hub, 6, func() (lobby.RoomView, error) {
		// 状態を取る直前に別の変更が確定した
		hub.RoomChanged(changed)
		return hostOnly(6, 1), nil
	})
	conn := dial(t, url)

	msg := readMessage(t, conn)
	assert.Equal(t, uint64(2), msg.Room.Version)
	assert.Equal(t, []uint{1, 2}, msg.Room.MemberIDs())
}

func TestHubClosesDepartedMember(t *testing.T) {
	hub := NewHub(allowAll, zaptest.NewLogger(t))
	conn := dial(t, newTestServer(t, hub, hostOnly(9, 1)))
	readMessage(t, conn)
	require.Eventually(t, func() bool { return hub.Subscribers(9) == 1 }, 2*time.Second, 10*time.Millisecond)

	left := lobby.RoomView{RoomID: 9, HostID: 2, Capacity: 4, Status: models.RoomWaiting, Version: 2,
		Members: []lobby.MemberView{{UserID: 2, IsHost: true, JoinSeq: 2}}}
	hub.RoomChanged(left)
	assert.Equal(t, 0, hub.Subscribers(9))

	err := readClose(t, conn)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}

func TestHubServeRejectsNonMember(t *testing.T) {
	hub := NewHub(allowAll, zaptest.NewLogger(t))
	url := newServerWith(t, hub, 2, func() (lobby.RoomView, error) {
		return lobby.RoomView{RoomID: 2, HostID: 5, Status: models.RoomWaiting, Version: 1,
			Members: []lobby.MemberView{{UserID: 5, IsHost: true, JoinSeq: 1}}}, nil
	})
	conn := dial(t, url)

	err := readClose(t, conn)
	assert.True(t, websocket.IsCloseError(err, websocket.ClosePolicyViolation), "got %v", err)
	assert.Equal(t, 0, hub.Subscribers(2))
}
