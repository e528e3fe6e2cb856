package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/suPer8Hu/staffchat/internal/chat"
	"github.com/suPer8Hu/staffchat/internal/common"
	"github.com/suPer8Hu/staffchat/internal/config"
	"github.com/suPer8Hu/staffchat/internal/directory"
	"github.com/suPer8Hu/staffchat/internal/httpapi/middleware"
	"github.com/suPer8Hu/staffchat/internal/realtime"
	"github.com/suPer8Hu/staffchat/internal/typing"
)

// Deps are the services the handlers call.
type Deps struct {
	Cfg     config.Config
	Log     *zap.Logger
	Users   *directory.Repo
	ChatSvc *chat.Service
	Typing  *typing.Tracker
	Broker  realtime.Broker
}

type Handler struct {
	Deps
}

func NewHandler(d Deps) *Handler {
	d.Log = common.OrNop(d.Log)
	return &Handler{Deps: d}
}

func (h *Handler) Ping(c *gin.Context) {
	common.OK(c, gin.H{"pong": true})
}

func userIDFromContext(c *gin.Context) (string, bool) {
	return middleware.UserID(c)
}

// currentUser aborts with 401 when the request carries no user id.
func currentUser(c *gin.Context) (string, bool) {
	uid, ok := userIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
	}
	return uid, ok
}

// failErr maps domain errors onto the response envelope.
func (h *Handler) failErr(c *gin.Context, op string, err error) {
	switch {
	case errors.Is(err, chat.ErrNotFound), errors.Is(err, directory.ErrNotFound):
		common.Fail(c, http.StatusNotFound, 40401, "user not found")
	case errors.Is(err, chat.ErrEmptyMessage):
		common.Fail(c, http.StatusBadRequest, 10003, "text required")
	case errors.Is(err, chat.ErrSelfConversation):
		common.Fail(c, http.StatusBadRequest, 10004, "cannot chat with yourself")
	case errors.Is(err, chat.ErrEmptyParticipant), errors.Is(err, chat.ErrInvalidParticipant):
		common.Fail(c, http.StatusBadRequest, 10005, "invalid user id")
	default:
		h.Log.Error(op+" failed",
			zap.String("request_id", c.GetString(middleware.RequestIDKey)),
			zap.Error(err),
		)
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
	}
}
