package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/suPer8Hu/staffchat/internal/realtime"
	"github.com/suPer8Hu/staffchat/internal/screen"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
	wsMaxFrame   = 16 << 10
)

var upgrader = &websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// errorFrame is sent when a client frame is rejected; the socket stays open.
type errorFrame struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// ChatSocket upgrades to a WebSocket and runs one screen session for the
// caller and :uid until either side goes away.
func (h *Handler) ChatSocket(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	counterpart := c.Param("uid")
	if _, err := h.Users.Get(c.Request.Context(), counterpart); err != nil {
		h.failErr(c, "open socket", err)
		return
	}

	sess, err := screen.New(screen.Deps{
		Chat:     h.ChatSvc,
		Broker:   h.Broker,
		Typing:   h.Typing,
		Presence: h.Users,
		Log:      h.Log,
	}, uid, counterpart)
	if err != nil {
		h.failErr(c, "open socket", err)
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.Log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer ws.Close()

	log := h.Log.With(zap.String("viewer", uid), zap.String("session", sess.SessionID()))
	// the request context dies with the handler; teardown must still run
	defer func() {
		if err := sess.Close(context.Background()); err != nil {
			log.Warn("screen teardown incomplete", zap.Error(err))
		}
	}()

	if err := sess.Open(c.Request.Context()); err != nil {
		log.Warn("screen open failed", zap.Error(err))
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "open failed"),
			time.Now().Add(wsWriteWait))
		return
	}

	rejects := make(chan errorFrame, 8)
	done := make(chan struct{})
	go func() {
		defer close(done)
		h.wsWriter(ws, sess.Events(), rejects, log)
	}()

	h.wsReader(ws, sess, rejects, log)
	// stop the writer: closing the session closes its event channel
	if err := sess.Close(context.Background()); err != nil {
		log.Warn("screen teardown incomplete", zap.Error(err))
	}
	<-done
}

func (h *Handler) wsReader(ws *websocket.Conn, sess *screen.Session, rejects chan<- errorFrame, log *zap.Logger) {
	ws.SetReadLimit(wsMaxFrame)
	_ = ws.SetReadDeadline(time.Now().Add(wsPongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug("websocket read", zap.Error(err))
			}
			return
		}

		var f screen.Frame
		if err := json.Unmarshal(data, &f); err != nil {
			reject(rejects, "invalid frame")
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), wsWriteWait)
		err = sess.Handle(ctx, f)
		cancel()
		if err != nil {
			log.Debug("frame rejected", zap.String("type", f.Type), zap.Error(err))
			reject(rejects, err.Error())
		}
	}
}

func reject(rejects chan<- errorFrame, msg string) {
	select {
	case rejects <- errorFrame{Kind: "error", Message: msg}:
	default:
	}
}

func (h *Handler) wsWriter(ws *websocket.Conn, events <-chan realtime.Event, rejects <-chan errorFrame, log *zap.Logger) {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	write := func(v any) bool {
		_ = ws.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := ws.WriteJSON(v); err != nil {
			log.Debug("websocket write", zap.Error(err))
			return false
		}
		return true
	}

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				_ = ws.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(wsWriteWait))
				return
			}
			if !write(ev) {
				// unblock the reader
				_ = ws.Close()
				return
			}
		case f := <-rejects:
			if !write(f) {
				_ = ws.Close()
				return
			}
		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = ws.Close()
				return
			}
		}
	}
}
