package server

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/igorsilveira/clawnet/pkg/events"
	"github.com/igorsilveira/clawnet/pkg/telemetry"
)

type wsOutgoing struct {
	Type         string        `json:"type"`
	SubscriberID string        `json:"subscriber_id,omitempty"`
	Event        *events.Event `json:"event,omitempty"`
}

// handleEvents streams hub events to a websocket client. ?types=a,b limits
// the stream to the named event types. The client is not expected to send
// anything; the read loop only watches for close.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		s.logger.Error("websocket accept failed", slog.String("err", err.Error()))
		return
	}
	defer conn.CloseNow()

	wanted := make(map[string]bool)
	for _, t := range splitList(r.URL.Query()["types"]) {
		wanted[t] = true
	}

	id := uuid.NewString()
	sub := s.hub.Subscribe(id)
	defer s.hub.Unsubscribe(id)

	telemetry.Metrics.ActiveConnections.Inc()
	defer telemetry.Metrics.ActiveConnections.Dec()

	ctx := conn.CloseRead(r.Context())
	s.logger.Info("event stream connected", slog.String("subscriber_id", id))

	if err := wsjson.Write(ctx, conn, wsOutgoing{Type: "subscribed", SubscriberID: id}); err != nil {
		return
	}

	for {
		select {
		case ev, ok := <-sub.C:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "event hub closed")
				return
			}
			if len(wanted) > 0 && !wanted[ev.Type] {
				continue
			}
			if err := wsjson.Write(ctx, conn, wsOutgoing{Type: "event", Event: &ev}); err != nil {
				s.logDisconnect(id, err)
				return
			}
		case <-ctx.Done():
			s.logDisconnect(id, context.Cause(ctx))
			return
		}
	}
}

func (s *Server) logDisconnect(id string, err error) {
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		s.logger.Info("event stream disconnected", slog.String("subscriber_id", id))
	default:
		s.logger.Debug("event stream closed", slog.String("subscriber_id", id), slog.Any("err", err))
	}
}
