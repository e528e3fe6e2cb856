package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/suPer8Hu/staffchat/internal/common"
	"github.com/suPer8Hu/staffchat/internal/httpapi/handlers"
	"github.com/suPer8Hu/staffchat/internal/httpapi/middleware"
)

func NewRouter(d handlers.Deps) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(gin.Logger())
	r.Use(middleware.RequestID())
	r.Use(middleware.Recovery(d.Log))

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, 40400, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, 40500, "method not allowed")
	})

	h := handlers.NewHandler(d)

	r.GET("/ping", h.Ping)

	authGroup := r.Group("/")
	authGroup.Use(middleware.AuthRequired(d.Cfg.JWTSecret))
	authGroup.GET("/me", h.Me)

	// directory
	authGroup.GET("/users", h.ListUsers)
	authGroup.GET("/users/lookup", h.LookupUsers)

	// chats (peer is :uid, the caller comes from the token)
	authGroup.GET("/chats/recent", h.RecentChats)
	authGroup.GET("/chats/:uid/messages", h.ListMessages)
	authGroup.POST("/chats/:uid/messages", h.SendMessage)
	authGroup.POST("/chats/:uid/read", h.MarkRead)
	authGroup.POST("/chats/:uid/typing", h.InputChanged)
	authGroup.DELETE("/chats/:uid/typing", h.StopTyping)

	// screen session
	authGroup.GET("/ws/chats/:uid", h.ChatSocket)
	return r
}
