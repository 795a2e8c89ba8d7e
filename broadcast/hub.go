package broadcast

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"liveserver/lobby"
	"liveserver/models"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	pingPeriod = 10 * time.Second // 10秒ごとにPingを送信
	pongWait   = 60 * time.Second // 60秒の読み取りデッドライン
	writeWait  = 10 * time.Second
	sendBuffer = 16
)

// Client はルームを購読しているWebSocket接続です。
type Client struct {
	ID     string
	UserID uint
	RoomID uint

	conn    *websocket.Conn
	mu      sync.Mutex
	send    chan []byte
	closed  bool
	version uint64 // 最後に積んだビューのバージョン
}

// trySend は送信キューに積みます。キューが一杯か閉じていればfalseです。
// 既に積んだものより古いバージョンは黙って捨てます。
func (c *Client) trySend(version uint64, message []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	if version <= c.version {
		return true
	}
	select {
	case c.send <- message:
		c.version = version
		return true
	default:
		return false
	}
}

func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// Hub はルームごとの購読者にルーム状態を配信します。lobby.Notifierを実装します。
type Hub struct {
	mu       sync.RWMutex
	rooms    map[uint]map[string]*Client
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

var _ lobby.Notifier = (*Hub)(nil)

func NewHub(checkOrigin func(r *http.Request) bool, logger *zap.Logger) *Hub {
	return &Hub{
		rooms: make(map[uint]map[string]*Client),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
		logger: logger,
	}
}

var errNotMember = errors.New("ルームのメンバーではありません")

type roomMessage struct {
	Type string         `json:"type"`
	Room lobby.RoomView `json:"room"`
}

func encodeView(view lobby.RoomView) ([]byte, error) {
	return json.Marshal(roomMessage{Type: "roomState", Room: view})
}

// Serve はWebSocketへアップグレードして購読を登録し、その後で現在のルーム状態を送ります。
// 登録してから状態を取るので、その間の変更も取りこぼしません。
// 呼び出し元で認証とメンバー確認を済ませておくこと。
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, roomID, userID uint, current func() (lobby.RoomView, error)) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgradeが失敗時のレスポンスを書き込み済み
		h.logger.Error("Error upgrading WebSocket", zap.Error(err))
		return err
	}

	client := &Client{
		ID:     uuid.NewString(),
		UserID: userID,
		RoomID: roomID,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
	}
	h.register(client)

	view, err := current()
	if err == nil && !view.HasMember(userID) {
		err = errNotMember
	}
	var first []byte
	if err == nil {
		first, err = encodeView(view)
	}
	if err != nil {
		h.unregister(client)
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, ""), time.Now().Add(writeWait))
		conn.Close()
		return err
	}
	client.trySend(view.Version, first)
	h.logger.Info("New client added", zap.Uint("userID", userID), zap.Uint("roomID", roomID))

	go h.writePump(client)
	go h.readPump(client)
	return nil
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs, ok := h.rooms[c.RoomID]
	if !ok {
		subs = make(map[string]*Client)
		h.rooms[c.RoomID] = subs
	}
	subs[c.ID] = c
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	if subs, ok := h.rooms[c.RoomID]; ok {
		if _, found := subs[c.ID]; found {
			delete(subs, c.ID)
			if len(subs) == 0 {
				delete(h.rooms, c.RoomID)
			}
		}
	}
	h.mu.Unlock()
	c.closeSend()
}

// Subscribers はルームを購読している接続数を返します。
func (h *Hub) Subscribers(roomID uint) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}

// RoomChanged は購読者全員に新しい状態を送ります。送信が詰まっている接続は切断します。
// 解散したルームは通知後に購読を終了し、退室したメンバーの購読は通知せずに終了します。
func (h *Hub) RoomChanged(view lobby.RoomView) {
	message, err := encodeView(view)
	if err != nil {
		h.logger.Error("Failed to marshal room state", zap.Error(err))
		return
	}

	h.mu.RLock()
	subs := make([]*Client, 0, len(h.rooms[view.RoomID]))
	for _, c := range h.rooms[view.RoomID] {
		subs = append(subs, c)
	}
	h.mu.RUnlock()

	for _, c := range subs {
		if view.Status != models.RoomDisbanded && !view.HasMember(c.UserID) {
			h.unregister(c)
			continue
		}
		if !c.trySend(view.Version, message) {
			h.logger.Warn("送信バッファが一杯のため切断します", zap.Uint("userID", c.UserID), zap.Uint("roomID", c.RoomID))
			h.unregister(c)
			continue
		}
		if view.Status == models.RoomDisbanded {
			h.unregister(c)
		}
	}
}

// Close は全ての購読を終了します。
func (h *Hub) Close() {
	h.mu.Lock()
	var all []*Client
	for _, subs := range h.rooms {
		for _, c := range subs {
			all = append(all, c)
		}
	}
	h.rooms = make(map[uint]map[string]*Client)
	h.mu.Unlock()
	for _, c := range all {
		c.closeSend()
	}
}

// writePump は送信キューの内容とPingを書き込みます。接続への書き込みはこのゴルーチンだけが行います。
func (h *Hub) writePump(c *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				h.logger.Error("Failed to send room state", zap.Error(err))
				h.unregister(c)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.logger.Error("Error sending ping", zap.Error(err))
				h.unregister(c)
				return
			}
		}
	}
}

// readPump はPongで読み取りデッドラインを延長し、切断を検知します。クライアントからのメッセージは読み捨てます。
func (h *Hub) readPump(c *Client) {
	defer func() {
		h.unregister(c)
		h.logger.Info("Client removed", zap.Uint("userID", c.UserID), zap.Uint("roomID", c.RoomID))
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				h.logger.Warn("WebSocket error", zap.Error(err))
			}
			return
		}
	}
}
