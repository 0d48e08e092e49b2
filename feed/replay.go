package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"volflow/config"
	"volflow/logger"
	"volflow/models"
)

// replaySource streams the session tape over the vendor's websocket replay
// endpoint. The stream is one-shot: subscribe, drain trade frames until the
// end-of-tape marker, disconnect. There is no reconnect; a dropped
// connection mid-session fails the fetch.
type replaySource struct {
	cfg config.FeedConfig
	loc *time.Location
	log *logger.Log
}

func newReplaySource(cfg *config.Config) *replaySource {
	return &replaySource{
		cfg: cfg.Feed,
		loc: cfg.Surface.Location(),
		log: logger.GetLogger(),
	}
}

// replayFrame is one websocket message from the replay endpoint.
type replayFrame struct {
	Type string          `json:"type"` // trade | end | error
	Data json.RawMessage `json:"data"`
	Msg  string          `json:"msg"`
}

func (s *replaySource) Fetch(ctx context.Context) ([]models.Trade, error) {
	log := s.log.WithComponent("replay_feed").WithFields(logger.Fields{
		"url":    s.cfg.Replay.URL,
		"ticker": s.cfg.Ticker,
		"date":   s.cfg.Date,
	})

	dialer := websocket.Dialer{
		HandshakeTimeout: s.cfg.Timeout,
		ReadBufferSize:   s.cfg.Replay.ReadBufferBytes,
	}
	var header http.Header
	if s.cfg.Replay.APIKey != "" {
		header = http.Header{"X-Api-Key": []string{s.cfg.Replay.APIKey}}
	}

	conn, _, err := dialer.DialContext(ctx, s.cfg.Replay.URL, header)
	if err != nil {
		return nil, fmt.Errorf("connect replay endpoint: %w", err)
	}
	defer conn.Close()

	// Close the connection when the context ends so blocked reads unwind.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	sub := map[string]string{
		"op":     "replay",
		"ticker": s.cfg.Ticker,
		"date":   s.cfg.Date,
	}
	if err := conn.WriteJSON(sub); err != nil {
		return nil, fmt.Errorf("subscribe replay: %w", err)
	}
	log.Info("replay stream subscribed")

	var trades []models.Trade
	var skipped int
	for {
		if s.cfg.Timeout > 0 {
			if err := conn.SetReadDeadline(time.Now().Add(s.cfg.Timeout)); err != nil {
				return nil, fmt.Errorf("set read deadline: %w", err)
			}
		}
		var frame replayFrame
		if err := conn.ReadJSON(&frame); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				break
			}
			return nil, fmt.Errorf("read replay frame: %w", err)
		}

		switch frame.Type {
		case "trade":
			var row tapeRow
			if err := json.Unmarshal(frame.Data, &row); err != nil {
				skipped++
				log.WithError(err).Debug("skipping undecodable frame")
				continue
			}
			if row.Ticker != s.cfg.Ticker {
				continue
			}
			trade, err := row.toTrade(s.loc)
			if err != nil {
				skipped++
				log.WithError(err).Debug("skipping malformed frame")
				continue
			}
			trades = append(trades, trade)
		case "end":
			logger.IncrementTradesRead(len(trades))
			log.WithFields(logger.Fields{"trades": len(trades), "skipped": skipped}).Info("replay stream complete")
			return trades, nil
		case "error":
			return nil, fmt.Errorf("replay endpoint error: %s", frame.Msg)
		default:
			log.WithFields(logger.Fields{"type": frame.Type}).Debug("ignoring unknown frame type")
		}
	}

	// The server closed without an end-of-tape marker; treat the session
	// as incomplete.
	return nil, fmt.Errorf("replay stream closed before end of tape")
}
