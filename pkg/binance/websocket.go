package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/gregtusar/basisarb/pkg/models"
	"github.com/sirupsen/logrus"
)

const (
	SpotTickerStream  = "!miniTicker@arr"
	FuturesMarkStream = "!markPrice@arr@1s"

	pingInterval   = 30 * time.Second
	readTimeout    = 90 * time.Second
	reconnectDelay = 5 * time.Second
)

type TickHandler func(tick models.PriceTick)

// PriceStream subscribes to one all-market Binance stream and hands every
// price to a TickHandler, reconnecting until its context is cancelled.
type PriceStream struct {
	url            string
	stream         string
	leg            models.Leg
	handler        TickHandler
	logger         *logrus.Logger
	reconnectDelay time.Duration

	mu   sync.Mutex
	conn *websocket.Conn
}

type streamEvent struct {
	Event     string `json:"e"`
	EventTime int64  `json:"E"`
	Symbol    string `json:"s"`
	Close     string `json:"c"`
	MarkPrice string `json:"p"`
}

type subscribeMessage struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
	ID     int      `json:"id"`
}

// NewSpotPriceStream streams spot last prices from the mini-ticker.
func NewSpotPriceStream(url string, handler TickHandler, logger *logrus.Logger) *PriceStream {
	if url == "" {
		url = DefaultSpotWSURL
	}
	return newPriceStream(url, SpotTickerStream, models.LegSpot, handler, logger)
}

// NewFuturesPriceStream streams futures mark prices.
func NewFuturesPriceStream(url string, handler TickHandler, logger *logrus.Logger) *PriceStream {
	if url == "" {
		url = DefaultFuturesWSURL
	}
	return newPriceStream(url, FuturesMarkStream, models.LegFutures, handler, logger)
}

func newPriceStream(url, stream string, leg models.Leg, handler TickHandler, logger *logrus.Logger) *PriceStream {
	return &PriceStream{
		url:            url,
		stream:         stream,
		leg:            leg,
		handler:        handler,
		logger:         logger,
		reconnectDelay: reconnectDelay,
	}
}

// Run blocks until ctx is done.
func (s *PriceStream) Run(ctx context.Context) error {
	for {
		err := s.session(ctx)
		if ctx.Err() != nil {
			return nil
		}
		s.logger.WithError(err).WithField("stream", s.stream).Warn("Price stream disconnected, reconnecting")

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(s.reconnectDelay):
		}
	}
}

func (s *PriceStream) session(ctx context.Context) error {
	if err := s.connect(ctx); err != nil {
		return err
	}
	defer s.close()

	if err := s.subscribe(); err != nil {
		return err
	}

	done := make(chan struct{})
	defer close(done)
	go s.keepAlive(ctx, done)

	return s.readLoop(ctx)
}

func (s *PriceStream) connect(ctx context.Context) error {
	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to websocket: %w", err)
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	s.logger.WithFields(logrus.Fields{"url": s.url, "stream": s.stream}).Info("Price stream connected")
	return nil
}

func (s *PriceStream) subscribe() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(subscribeMessage{
		Method: "SUBSCRIBE",
		Params: []string{s.stream},
		ID:     1,
	})
}

func (s *PriceStream) readLoop(ctx context.Context) error {
	conn := s.conn
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
			return err
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("failed to read websocket message: %w", err)
		}
		s.dispatch(data)
	}
}

// dispatch ignores anything that is not an event array, such as the
// subscription acknowledgement.
func (s *PriceStream) dispatch(data []byte) {
	if len(data) == 0 || data[0] != '[' {
		return
	}

	var events []streamEvent
	if err := json.Unmarshal(data, &events); err != nil {
		s.logger.WithError(err).Debug("Failed to decode stream message")
		return
	}

	for _, ev := range events {
		raw := ev.Close
		if s.leg == models.LegFutures {
			raw = ev.MarkPrice
		}
		price := parseFloat(raw)
		if ev.Symbol == "" || price <= 0 {
			continue
		}
		s.handler(models.PriceTick{
			Symbol:    ev.Symbol,
			Leg:       s.leg,
			Price:     price,
			Timestamp: time.UnixMilli(ev.EventTime).UTC(),
		})
	}
}

func (s *PriceStream) keepAlive(ctx context.Context, done <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.close()
			return
		case <-done:
			return
		case <-ticker.C:
			s.mu.Lock()
			err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second))
			s.mu.Unlock()
			if err != nil {
				s.logger.WithError(err).Warn("Failed to send ping")
				return
			}
		}
	}
}

func (s *PriceStream) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		s.conn.Close()
	}
}
