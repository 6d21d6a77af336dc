package progress

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

var heartbeatEvery = 15 * time.Second

// ServeSSE транслирует события загрузки id как text/event-stream.
// ErrUnknown возвращается до записи заголовков.
func (r *Registry) ServeSSE(w http.ResponseWriter, req *http.Request, id string) error {
	events, cancel, err := r.Subscribe(id)
	if err != nil {
		return err
	}
	defer cancel()

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	_ = rc.Flush()

	ping := time.NewTicker(heartbeatEvery)
	defer ping.Stop()

	for {
		select {
		case <-req.Context().Done():
			return nil
		case <-ping.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return nil
			}
			_ = rc.Flush()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			b, err := json.Marshal(ev)
			if err != nil {
				return nil
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Status, b); err != nil {
				return nil
			}
			_ = rc.Flush()
			if ev.Terminal() {
				return nil
			}
		}
	}
}
