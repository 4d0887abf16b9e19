package feed

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wqlab/screener/pkg/logger"
)

// Quote is one live tick from the gateway stream.
type Quote struct {
	Code  string    `json:"code"`
	Price float64   `json:"price"`
	Time  time.Time `json:"time"`
}

// subscribeRequest is the gateway subscription message.
type subscribeRequest struct {
	Op    string   `json:"op"`
	Codes []string `json:"codes"`
}

// Stream consumes live quotes from the gateway websocket. It reconnects
// with a fixed delay until the context ends; the quote channel closes
// only when the context does.
type Stream struct {
	url            string
	reconnectDelay time.Duration
	logger         *logger.Logger
}

// NewStream creates a stream client for the gateway websocket URL.
func NewStream(wsURL string, log *logger.Logger) *Stream {
	return &Stream{
		url:            wsURL,
		reconnectDelay: 5 * time.Second,
		logger:         log.WithField("component", "quote_stream"),
	}
}

// Subscribe opens the stream for the given codes and returns the quote
// channel. Malformed messages are dropped; a slow consumer drops ticks
// rather than stalling the read loop.
func (s *Stream) Subscribe(ctx context.Context, codes []string) <-chan Quote {
	quotes := make(chan Quote, 256)

	go func() {
		defer close(quotes)

		for {
			if err := s.connectAndRead(ctx, codes, quotes); err != nil {
				s.logger.WithError(err).Warn("Quote stream disconnected, reconnecting")
			}

			select {
			case <-ctx.Done():
				return
			case <-time.After(s.reconnectDelay):
			}
		}
	}()

	return quotes
}

// connectAndRead runs one websocket session: dial, subscribe, read
// until the connection or the context breaks.
func (s *Stream) connectAndRead(ctx context.Context, codes []string, quotes chan<- Quote) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.WriteJSON(subscribeRequest{Op: "subscribe", Codes: codes}); err != nil {
		return err
	}

	s.logger.WithField("codes", len(codes)).Debug("Quote stream subscribed")

	// ReadMessage blocks without a deadline; closing the connection on
	// ctx.Done unblocks it.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		var quote Quote
		if err := json.Unmarshal(message, &quote); err != nil || quote.Code == "" {
			continue
		}

		select {
		case quotes <- quote:
		default:
			// Consumer is behind; the next tick supersedes this one.
		}
	}
}
