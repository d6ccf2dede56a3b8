package transport

import (
	"context"
	"encoding/json"
	"net/url"
	"sync"
	"time"

	"pharmadeal-chat/internal/domain/chat"
	pharma_errors "pharmadeal-chat/pkg/errors"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512 * 1024

	reconnectMinDelay = time.Second
	reconnectMaxDelay = 30 * time.Second
)

// Socket is the websocket implementation of Transport. It dials the
// messaging server once, keeps the connection alive with pings, and
// redials with backoff when the connection drops. Every successful
// (re)dial fires the registered "connect" handler, which is the chat
// core's resynchronization trigger.
type Socket struct {
	url    string
	userID string
	log    *zap.Logger

	handlerMu sync.RWMutex
	handlers  map[string]Handler

	connMu sync.Mutex
	conn   *websocket.Conn
	closed bool

	send chan []byte
}

// NewSocket creates an unconnected Socket for the given user.
func NewSocket(rawURL, userID string, log *zap.Logger) *Socket {
	return &Socket{
		url:      rawURL,
		userID:   userID,
		log:      log,
		handlers: make(map[string]Handler),
		send:     make(chan []byte, 256),
	}
}

// Connect dials the server and starts the read/write pumps.
func (s *Socket) Connect(ctx context.Context) error {
	dialURL, err := s.dialURL()
	if err != nil {
		return err
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, dialURL, nil)
	if err != nil {
		return err
	}

	s.connMu.Lock()
	if s.closed {
		s.connMu.Unlock()
		conn.Close()
		return pharma_errors.ErrTransportClosed
	}
	s.conn = conn
	s.connMu.Unlock()

	s.startPumps(conn)
	s.dispatch(chat.EventConnect, nil)
	return nil
}

// Emit queues an event for delivery. Fire-and-forget: a full queue or
// a dropped connection loses the frame without error feedback beyond a
// log line.
func (s *Socket) Emit(event string, payload interface{}) error {
	s.connMu.Lock()
	closed := s.closed
	s.connMu.Unlock()
	if closed {
		return pharma_errors.ErrTransportClosed
	}

	env := Envelope{Event: event}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		env.Data = data
	}
	frame, err := json.Marshal(env)
	if err != nil {
		return err
	}

	select {
	case s.send <- frame:
	default:
		s.log.Warn("send queue full, dropping frame", zap.String("event", event))
	}
	return nil
}

// On registers the handler for an event, replacing any previous one.
func (s *Socket) On(event string, handler Handler) {
	s.handlerMu.Lock()
	s.handlers[event] = handler
	s.handlerMu.Unlock()
}

// Off removes the handler for an event.
func (s *Socket) Off(event string) {
	s.handlerMu.Lock()
	delete(s.handlers, event)
	s.handlerMu.Unlock()
}

// Close shuts the connection down for good; no reconnect follows.
func (s *Socket) Close() error {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.conn != nil {
		s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		return s.conn.Close()
	}
	return nil
}

func (s *Socket) dialURL() (string, error) {
	u, err := url.Parse(s.url)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("userId", s.userID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (s *Socket) isClosed() bool {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	return s.closed
}

func (s *Socket) startPumps(conn *websocket.Conn) {
	stop := make(chan struct{})
	go s.writePump(conn, stop)
	go s.readPump(conn, stop)
}

func (s *Socket) readPump(conn *websocket.Conn, stop chan struct{}) {
	defer func() {
		close(stop)
		conn.Close()
		s.dispatch(chat.EventDisconnect, nil)
		if !s.isClosed() {
			go s.reconnect()
		}
	}()

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Warn("read failed", zap.Error(err))
			}
			return
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			s.log.Warn("malformed frame", zap.Error(err))
			continue
		}
		s.dispatch(env.Event, env.Data)
	}
}

func (s *Socket) writePump(conn *websocket.Conn, stop chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case frame := <-s.send:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// reconnect redials with exponential backoff until it succeeds or the
// socket is closed.
func (s *Socket) reconnect() {
	delay := reconnectMinDelay
	for {
		if s.isClosed() {
			return
		}

		dialURL, err := s.dialURL()
		if err != nil {
			s.log.Error("bad socket url", zap.Error(err))
			return
		}

		conn, _, err := websocket.DefaultDialer.Dial(dialURL, nil)
		if err != nil {
			s.dispatch(chat.EventError, nil)
			s.log.Warn("reconnect failed", zap.Error(err), zap.Duration("retry_in", delay))
			time.Sleep(delay)
			delay *= 2
			if delay > reconnectMaxDelay {
				delay = reconnectMaxDelay
			}
			continue
		}

		s.connMu.Lock()
		if s.closed {
			s.connMu.Unlock()
			conn.Close()
			return
		}
		s.conn = conn
		s.connMu.Unlock()

		s.startPumps(conn)
		s.dispatch(chat.EventConnect, nil)
		return
	}
}

func (s *Socket) dispatch(event string, payload json.RawMessage) {
	s.handlerMu.RLock()
	handler := s.handlers[event]
	s.handlerMu.RUnlock()
	if handler == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			s.log.Error("event handler panicked", zap.String("event", event), zap.Any("panic", r))
		}
	}()
	handler(payload)
}
