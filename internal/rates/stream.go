package rates

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

// Stream keeps the oracle current by subscribing to the rate feed over a
// websocket, reconnecting with a fixed delay and replaying subscriptions.
type Stream struct {
	url            string
	reconnectDelay time.Duration
	pingInterval   time.Duration
	log            *zap.Logger

	mu   sync.Mutex
	conn *websocket.Conn
}

func NewStream(url string, reconnectDelay, pingInterval time.Duration, log *zap.Logger) *Stream {
	return &Stream{url: url, reconnectDelay: reconnectDelay, pingInterval: pingInterval, log: log}
}

func (s *Stream) connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		return nil
	}
	conn, _, err := websocket.Dial(ctx, s.url, nil)
	if err != nil {
		return err
	}
	s.conn = conn
	return writeJSON(ctx, conn, subscribeMessage)
}

// Run feeds rate updates into the oracle until the context is cancelled.
func (s *Stream) Run(ctx context.Context, oracle *Oracle) error {
	for {
		if err := s.connect(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if s.log != nil {
				s.log.Warn("rate stream connect failed", zap.Error(err))
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.reconnectDelay):
			}
			continue
		}
		pingCtx, cancel := context.WithCancel(ctx)
		pingDone := make(chan struct{})
		go func() {
			defer close(pingDone)
			s.pingLoop(pingCtx)
		}()
		err := s.readLoop(ctx, oracle)
		cancel()
		<-pingDone
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logReadLoopError(err)
		s.resetConn()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.reconnectDelay):
		}
	}
}

func (s *Stream) readLoop(ctx context.Context, oracle *Oracle) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return errors.New("rate stream not connected")
	}
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		s.handleMessage(data, oracle)
	}
}

type rateUpdate struct {
	Channel string      `json:"channel"`
	Rates   []rateEntry `json:"rates"`
}

func (s *Stream) handleMessage(data []byte, oracle *Oracle) {
	var update rateUpdate
	if err := json.Unmarshal(data, &update); err != nil {
		if s.log != nil {
			s.log.Debug("rate stream decode failed", zap.Error(err))
		}
		return
	}
	if update.Channel != "rates" {
		return
	}
	for _, entry := range update.Rates {
		asset, ray, err := parseRateEntry(entry)
		if err != nil {
			if s.log != nil {
				s.log.Warn("skipping malformed rate update", zap.String("asset", entry.Asset), zap.Error(err))
			}
			continue
		}
		oracle.SetRate(asset, ray)
	}
}

func (s *Stream) pingLoop(ctx context.Context) {
	s.mu.Lock()
	conn := s.conn
	interval := s.pingInterval
	s.mu.Unlock()
	if conn == nil || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := writeJSON(ctx, conn, pingMessage); err != nil {
				return
			}
		}
	}
}

func (s *Stream) logReadLoopError(err error) {
	if s.log == nil {
		return
	}
	status := websocket.CloseStatus(err)
	if status == websocket.StatusNormalClosure {
		s.log.Info("rate stream ended", zap.Error(err))
		return
	}
	s.log.Warn("rate stream ended", zap.Error(err))
}

func (s *Stream) resetConn() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		_ = s.conn.Close(websocket.StatusNormalClosure, "reset")
		s.conn = nil
	}
}

func writeJSON(ctx context.Context, conn *websocket.Conn, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, data)
}

var (
	subscribeMessage = map[string]any{"method": "subscribe", "channel": "rates"}
	pingMessage      = map[string]any{"method": "ping"}
)
