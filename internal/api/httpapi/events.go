package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/vibebox/internal/app/notification"
)

// sseStream bridges a notification subscription onto a server-sent
// events connection. Send runs on the manager's goroutines, so it only
// queues; the handler goroutine owns the ResponseWriter.
type sseStream struct {
	ch chan *notification.Notification
}

func newSSEStream() *sseStream {
	return &sseStream{ch: make(chan *notification.Notification, 16)}
}

func (s *sseStream) Send(n *notification.Notification) error {
	select {
	case s.ch <- n:
		return nil
	default:
		return errors.New("subscriber queue is full")
	}
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, errors.New("streaming is not supported"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	stream := newSSEStream()
	subscriptionID := s.notifier.Subscribe(stream)
	defer s.notifier.Unsubscribe(subscriptionID)
	zlog.Debug().Msgf("event stream opened. subscriptionID=%v", subscriptionID)

	for {
		select {
		case <-r.Context().Done():
			zlog.Debug().Msgf("event stream closed. subscriptionID=%v", subscriptionID)
			return
		case n := <-stream.ch:
			data, err := json.Marshal(n)
			if err != nil {
				zlog.Debug().Msgf("failed to marshal notification. err=%v", err)
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", n.Type, data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
