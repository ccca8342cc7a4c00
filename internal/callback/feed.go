package callback

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Ady-cod/POC-HRMS-NextJS-ExpressJS-sub000/internal/connection"
)

const (
	feedWriteWait  = 10 * time.Second
	feedPongWait   = 60 * time.Second
	feedPingPeriod = feedPongWait * 9 / 10
)

// Frame types sent on the status feed.
const (
	FrameSnapshot = "snapshot"
	FrameChange   = "change"
)

// ChangeFrame describes the change that produced a feed frame.
type ChangeFrame struct {
	Service connection.Service `json:"service"`
	From    connection.Status  `json:"from"`
	To      connection.Status  `json:"to"`
	Reason  string             `json:"reason"`
	At      time.Time          `json:"at"`
}

// FeedFrame is one message on /ws. Every frame carries the full status so
// a client that missed frames is correct after the next one.
type FeedFrame struct {
	Type   string         `json:"type"`
	Status StatusResponse `json:"status"`
	Change *ChangeFrame   `json:"change,omitempty"`
}

func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("feed upgrade failed", "error", err)
		return
	}
	if !s.track(conn) {
		conn.Close()
		return
	}
	defer s.untrack(conn)

	changes, stop := s.hub.Subscribe(64)
	defer stop()

	// The read side only handles control frames and notices the close.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		conn.SetReadLimit(512)
		conn.SetReadDeadline(time.Now().Add(feedPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(feedPongWait))
		})
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	if err := s.writeFrame(conn, FeedFrame{Type: FrameSnapshot, Status: s.snapshot()}); err != nil {
		return
	}

	ping := time.NewTicker(feedPingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-gone:
			return
		case ch, ok := <-changes:
			if !ok {
				return
			}
			frame := FeedFrame{
				Type:   FrameChange,
				Status: s.snapshot(),
				Change: &ChangeFrame{Service: ch.Service, From: ch.From, To: ch.To, Reason: ch.Reason, At: ch.At},
			}
			if err := s.writeFrame(conn, frame); err != nil {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(feedWriteWait)); err != nil {
				return
			}
		}
	}
}

func (s *Server) writeFrame(conn *websocket.Conn, frame FeedFrame) error {
	conn.SetWriteDeadline(time.Now().Add(feedWriteWait))
	if err := conn.WriteJSON(frame); err != nil {
		s.logger.Debug("feed write failed", "error", err)
		return err
	}
	return nil
}

func (s *Server) track(conn *websocket.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.feeds[conn] = struct{}{}
	return true
}

func (s *Server) untrack(conn *websocket.Conn) {
	s.mu.Lock()
	delete(s.feeds, conn)
	s.mu.Unlock()
	conn.Close()
}

// FeedCount returns the number of open status feeds.
func (s *Server) FeedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.feeds)
}
