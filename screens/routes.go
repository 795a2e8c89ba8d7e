package screens

import (
	"liveserver/auth"
	"liveserver/broadcast"
	"liveserver/lobby"
	"liveserver/middlewares"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Deps はハンドラーが必要とする依存関係です。
type Deps struct {
	Coordinator     *lobby.Coordinator
	Users           UserService
	Tokens          middlewares.TokenResolver
	Hub             *broadcast.Hub
	DefaultCapacity int
	Logger          *zap.Logger
}

var (
	_ UserService               = (*auth.Service)(nil)
	_ middlewares.TokenResolver = (*auth.Service)(nil)
)

// RegisterRoutes は各HTTPリクエストのルーティングを設定します。
func RegisterRoutes(router gin.IRouter, d Deps) {
	coord, logger := d.Coordinator, d.Logger

	router.POST("/user/create", func(c *gin.Context) {
		UserCreate(c, d.Users, logger)
	})

	authed := router.Group("/", middlewares.AuthMiddleware(d.Tokens, logger))
	authed.GET("/user/me", func(c *gin.Context) {
		UserMe(c, d.Users, logger)
	})
	authed.POST("/user/update", func(c *gin.Context) {
		UserUpdate(c, d.Users, logger)
	})

	authed.POST("/room/create", func(c *gin.Context) {
		RoomCreate(c, coord, d.DefaultCapacity, logger)
	})
	authed.POST("/room/list", func(c *gin.Context) {
		RoomList(c, coord, logger)
	})
	authed.POST("/room/join", func(c *gin.Context) {
		RoomJoin(c, coord, logger)
	})
	authed.POST("/room/wait", func(c *gin.Context) {
		RoomWait(c, coord, d.Users, logger)
	})
	authed.POST("/room/start", func(c *gin.Context) {
		RoomStart(c, coord, logger)
	})
	authed.POST("/room/end", func(c *gin.Context) {
		RoomEnd(c, coord, logger)
	})
	authed.POST("/room/result", func(c *gin.Context) {
		RoomResult(c, coord, logger)
	})
	authed.POST("/room/leave", func(c *gin.Context) {
		RoomLeave(c, coord, logger)
	})
	authed.POST("/room/disband", func(c *gin.Context) {
		RoomDisband(c, coord, logger)
	})

	if d.Hub != nil {
		authed.GET("/ws/room/:roomID", func(c *gin.Context) {
			RoomSubscribe(c, coord, d.Hub, logger)
		})
	}
}
