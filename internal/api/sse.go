package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vyuha/topoview/internal/viewsync"
)

const (
	// heartbeatInterval keeps idle proxies from closing the stream.
	heartbeatInterval = 30 * time.Second
	// replaySize is how many recent frames a reconnecting client can
	// catch up on.
	replaySize = 48
	// clientBuffer holds a full replay plus a resync marker.
	clientBuffer = 64
)

// eventResync tells a client it missed more than the replay buffer holds
// and should refetch /api/view/state.
const eventResync = "resync"

// frame is one encoded SSE message. id 0 frames carry no id line and are
// not replayed.
type frame struct {
	id   uint64
	name string
	data []byte
}

// ---------------------------------------------------------------------------
// EventStream
// ---------------------------------------------------------------------------

// EventStream fans view events out to connected SSE clients. Each event is
// encoded once, numbered, and kept in a short replay buffer so a client
// reconnecting with Last-Event-ID picks up where it left off.
type EventStream struct {
	mu      sync.Mutex
	seq     uint64
	recent  []frame
	clients map[string]chan frame

	// onClients, when set, is called with the client count after every
	// subscribe and unsubscribe.
	onClients func(int)
}

// NewEventStream creates an empty stream.
func NewEventStream() *EventStream {
	return &EventStream{
		clients: make(map[string]chan frame),
	}
}

// Notify implements viewsync.Notifier. A client whose buffer is full loses
// the event.
func (s *EventStream) Notify(e viewsync.Event) {
	data, err := json.Marshal(e)
	if err != nil {
		slog.Error("sse encode view event", "event", e.Type, "error", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	f := frame{id: s.seq, name: string(e.Type), data: data}
	s.recent = append(s.recent, f)
	if len(s.recent) > replaySize {
		s.recent = s.recent[len(s.recent)-replaySize:]
	}
	for id, ch := range s.clients {
		select {
		case ch <- f:
		default:
			slog.Warn("sse dropping event for slow client", "event", f.name, "seq", f.id, "client_id", id)
		}
	}
}

// Subscribe registers a client. With lastID > 0 the frames after lastID
// are queued first; if some of them already left the replay buffer, a
// resync frame is queued instead.
func (s *EventStream) Subscribe(clientID string, lastID uint64) <-chan frame {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan frame, clientBuffer)
	if lastID > 0 {
		s.replayLocked(ch, lastID)
	}
	s.clients[clientID] = ch
	slog.Debug("sse client subscribed", "client_id", clientID, "last_event_id", lastID, "clients", len(s.clients))
	if s.onClients != nil {
		s.onClients(len(s.clients))
	}
	return ch
}

func (s *EventStream) replayLocked(ch chan frame, lastID uint64) {
	oldest := s.seq + 1
	if len(s.recent) > 0 {
		oldest = s.recent[0].id
	}
	if lastID > s.seq || lastID+1 < oldest {
		ch <- frame{name: eventResync, data: []byte(fmt.Sprintf(`{"seq":%d}`, s.seq))}
		return
	}
	for _, f := range s.recent {
		if f.id > lastID {
			ch <- f
		}
	}
}

// Unsubscribe removes a client and closes its channel.
func (s *EventStream) Unsubscribe(clientID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ch, ok := s.clients[clientID]; ok {
		close(ch)
		delete(s.clients, clientID)
		slog.Debug("sse client unsubscribed", "client_id", clientID, "clients", len(s.clients))
		if s.onClients != nil {
			s.onClients(len(s.clients))
		}
	}
}

// ClientCount returns the number of connected clients.
func (s *EventStream) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// ---------------------------------------------------------------------------
// GET /api/events
// ---------------------------------------------------------------------------

func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "SSE_NOT_SUPPORTED",
			"streaming unsupported")
		return
	}
	// Malformed ids count as a fresh connection.
	lastID, _ := strconv.ParseUint(r.Header.Get("Last-Event-ID"), 10, 64)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // disable nginx buffering
	w.WriteHeader(http.StatusOK)

	clientID := uuid.New().String()
	ch := s.sse.Subscribe(clientID, lastID)
	defer s.sse.Unsubscribe(clientID)

	hello, _ := json.Marshal(map[string]string{"client_id": clientID})
	if err := writeFrame(w, flusher, frame{name: "connected", data: hello}); err != nil {
		return
	}

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return

		case f, ok := <-ch:
			if !ok {
				return
			}
			if err := writeFrame(w, flusher, f); err != nil {
				return
			}

		case t := <-heartbeat.C:
			hb := frame{name: "heartbeat", data: []byte(fmt.Sprintf(`{"t":%d}`, t.Unix()))}
			if err := writeFrame(w, flusher, hb); err != nil {
				return
			}
		}
	}
}

func writeFrame(w http.ResponseWriter, flusher http.Flusher, f frame) error {
	if f.id > 0 {
		if _, err := fmt.Fprintf(w, "id: %d\n", f.id); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", f.name, f.data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
