package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/talentis/proctor/internal/services"
)

// LiveHandler streams an attempt's proctoring events and processing status to
// reviewers over a websocket, forwarding the attempt's redis pub/sub channel
// as-is.
type LiveHandler struct {
	attempts services.AttemptService
	redis    *redis.Client
	upgrader websocket.Upgrader
}

func NewLiveHandler(attempts services.AttemptService, rdb *redis.Client) *LiveHandler {
	return &LiveHandler{
		attempts: attempts,
		redis:    rdb,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true }, // TODO: restrict origin in prod
		},
	}
}

type wsConn struct {
	c  *websocket.Conn
	mu sync.Mutex
}

func (w *wsConn) writeText(b []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.c.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return w.c.WriteMessage(websocket.TextMessage, b)
}

func (h *LiveHandler) AttemptLive(c *gin.Context) {
	if _, ok := requireUserID(c); !ok {
		return
	}
	attemptID, ok := attemptParam(c)
	if !ok {
		return
	}

	if _, err := h.attempts.Get(c.Request.Context(), attemptID); err != nil {
		writeError(c, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// upgrade already wrote response in most cases
		return
	}
	defer conn.Close()

	wc := &wsConn{c: conn}
	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	pubsub := h.redis.Subscribe(ctx, services.LiveChannel(attemptID))
	defer pubsub.Close()

	// reader: only keeps the connection's liveness state; reviewers don't
	// send data.
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		conn.SetPongHandler(func(string) error {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			return nil
		})
		for {
			if _, _, rerr := conn.ReadMessage(); rerr != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-readDone:
			return
		case <-ctx.Done():
			return
		default:
			m, err := pubsub.ReceiveMessage(ctx)
			if err != nil {
				return
			}
			// forward as-is (payload expected JSON string)
			if werr := wc.writeText([]byte(m.Payload)); werr != nil {
				return
			}
		}
	}
}
