package progress

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const writeWait = 10 * time.Second

// NewUpgrader проверяет Origin по тому же списку, что и CORS; "*" пускает всех.
func NewUpgrader(allowed []string) websocket.Upgrader {
	set := make(map[string]bool, len(allowed))
	all := false
	for _, o := range allowed {
		if o == "*" {
			all = true
		}
		set[o] = true
	}
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return all || origin == "" || set[origin]
		},
	}
}

// ServeWS: та же лента событий поверх websocket.
func (r *Registry) ServeWS(w http.ResponseWriter, req *http.Request, id string, up websocket.Upgrader) error {
	events, cancel, err := r.Subscribe(id)
	if err != nil {
		return err
	}
	defer cancel()

	conn, err := up.Upgrade(w, req, nil)
	if err != nil {
		// Upgrade уже ответил клиенту
		r.log.Debug("ws upgrade failed", zap.String("upload_id", id), zap.Error(err))
		return nil
	}
	defer func() { _ = conn.Close() }()

	// читаем только чтобы заметить закрытие со стороны клиента
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-gone:
			return nil
		case <-req.Context().Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "upload gone"), time.Now().Add(writeWait))
				return nil
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(ev); err != nil {
				return nil
			}
			if ev.Terminal() {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, string(ev.Status)), time.Now().Add(writeWait))
				return nil
			}
		}
	}
}
