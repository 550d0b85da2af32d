package render

import (
	"context"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/san-kum/trinity/internal/wire"
)

// handleWS answers render requests on a websocket. Each request renders on
// its own goroutine, so replies may overtake one another; clients correlate
// them by id.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("ws upgrade", "error", err)
		return
	}
	ctx, cancel := context.WithCancel(r.Context())
	var (
		writeMu sync.Mutex
		wg      sync.WaitGroup
	)
	defer func() {
		cancel()
		wg.Wait()
		_ = conn.Close()
	}()

	for {
		var req wire.WSRequest
		if err := conn.ReadJSON(&req); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debug("ws read", "error", err)
			}
			return
		}
		wg.Add(1)
		go func(req wire.WSRequest) {
			defer wg.Done()
			resp := wire.WSResponse{ID: req.ID}
			payload, err := s.Render(ctx, req.Preset, req.CustomDamp)
			if err != nil {
				resp.Error = err.Error()
			} else {
				resp.Payload = payload
			}
			if ctx.Err() != nil {
				return
			}
			writeMu.Lock()
			defer writeMu.Unlock()
			if err := conn.WriteJSON(resp); err != nil {
				s.log.Debug("ws write", "id", req.ID, "error", err)
			}
		}(req)
	}
}
