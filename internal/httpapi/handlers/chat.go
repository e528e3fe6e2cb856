package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/suPer8Hu/staffchat/internal/chat"
	"github.com/suPer8Hu/staffchat/internal/common"
	"github.com/suPer8Hu/staffchat/internal/directory"
)

type recentChatItem struct {
	Counterpart *directory.User  `json:"counterpart"`
	Chat        *chat.RecentChat `json:"chat"`
}

// RecentChats lists the caller's conversations, newest first. Rows whose
// counterpart has left the directory are dropped.
func (h *Handler) RecentChats(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))

	rows, err := h.ChatSvc.RecentChats(c.Request.Context(), uid, limit)
	if err != nil {
		h.failErr(c, "recent chats", err)
		return
	}

	ids := make([]string, 0, len(rows))
	for _, rc := range rows {
		ids = append(ids, rc.CounterpartID)
	}
	users, _, err := h.Users.GetMany(c.Request.Context(), ids)
	if err != nil {
		h.failErr(c, "recent chats", err)
		return
	}

	items := make([]recentChatItem, 0, len(rows))
	for i := range rows {
		u, ok := users[rows[i].CounterpartID]
		if !ok {
			continue
		}
		items = append(items, recentChatItem{Counterpart: u, Chat: &rows[i]})
	}
	common.OK(c, gin.H{"chats": items})
}

func (h *Handler) ListMessages(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))

	msgs, err := h.ChatSvc.ListMessages(c.Request.Context(), uid, c.Param("uid"), limit, c.Query("before"))
	if err != nil {
		h.failErr(c, "list messages", err)
		return
	}

	var nextBefore string
	if len(msgs) > 0 {
		nextBefore = msgs[len(msgs)-1].ID
	}
	common.OK(c, gin.H{
		"messages":    msgs,
		"next_before": nextBefore,
	})
}

type sendMessageReq struct {
	Text string `json:"text" binding:"required"`
}

func (h *Handler) SendMessage(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	var req sendMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	msg, err := h.ChatSvc.Send(c.Request.Context(), uid, c.Param("uid"), req.Text)
	if err != nil {
		h.failErr(c, "send message", err)
		return
	}
	common.OK(c, msg)
}

// MarkRead is the conversation-opened signal for clients without a socket.
func (h *Handler) MarkRead(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	marked, err := h.ChatSvc.OpenConversation(c.Request.Context(), uid, c.Param("uid"))
	if err != nil {
		h.failErr(c, "mark read", err)
		return
	}
	common.OK(c, gin.H{"marked": marked})
}

type typingReq struct {
	Text string `json:"text"`
}

func (h *Handler) InputChanged(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	if _, err := chat.SessionID(uid, c.Param("uid")); err != nil {
		h.failErr(c, "typing", err)
		return
	}
	var req typingReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	if err := h.Typing.InputChanged(c.Request.Context(), uid, req.Text); err != nil {
		h.failErr(c, "typing", err)
		return
	}
	common.OK(c, gin.H{"typing": h.Typing.State(uid).String()})
}

func (h *Handler) StopTyping(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	if err := h.Typing.Exit(c.Request.Context(), uid); err != nil {
		h.failErr(c, "stop typing", err)
		return
	}
	common.OK(c, gin.H{"typing": h.Typing.State(uid).String()})
}
