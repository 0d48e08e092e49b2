package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"volflow/config"
	"volflow/logger"
	"volflow/models"
)

// restSource pages the session tape out of the vendor's historical trades
// endpoint. Requests are rate limited and retried with exponential backoff;
// once the attempts for a page are exhausted the whole fetch fails.
type restSource struct {
	cfg     config.FeedConfig
	loc     *time.Location
	client  *http.Client
	limiter *rate.Limiter
	log     *logger.Log
}

func newRESTSource(cfg *config.Config) *restSource {
	pool := cfg.Feed.REST.ConnectionPool
	transport := &http.Transport{
		MaxIdleConns:       pool.MaxIdleConns,
		MaxConnsPerHost:    pool.MaxConnsPerHost,
		IdleConnTimeout:    pool.IdleConnTimeout,
		DisableCompression: false,
	}

	return &restSource{
		cfg: cfg.Feed,
		loc: cfg.Surface.Location(),
		client: &http.Client{
			Transport: transport,
			Timeout:   cfg.Feed.Timeout,
		},
		limiter: rate.NewLimiter(
			rate.Limit(cfg.Feed.RateLimit.RequestsPerSecond),
			cfg.Feed.RateLimit.BurstSize,
		),
		log: logger.GetLogger(),
	}
}

// tapePage is the shape of one historical trades response.
type tapePage struct {
	Trades  []tapeRow `json:"trades"`
	HasMore bool      `json:"has_more"`
}

func (s *restSource) Fetch(ctx context.Context) ([]models.Trade, error) {
	log := s.log.WithComponent("rest_feed").WithFields(logger.Fields{
		"url":    s.cfg.REST.URL,
		"ticker": s.cfg.Ticker,
		"date":   s.cfg.Date,
	})

	pageSize := s.cfg.REST.PageSize
	if pageSize <= 0 {
		pageSize = 1000
	}

	var trades []models.Trade
	var skipped int
	for offset := 0; ; offset += pageSize {
		page, err := s.fetchPage(ctx, offset, pageSize)
		if err != nil {
			return nil, fmt.Errorf("fetch tape page at offset %d: %w", offset, err)
		}

		for _, row := range page.Trades {
			trade, err := row.toTrade(s.loc)
			if err != nil {
				skipped++
				log.WithError(err).Debug("skipping malformed row")
				continue
			}
			trades = append(trades, trade)
		}

		if !page.HasMore || len(page.Trades) == 0 {
			break
		}
	}

	logger.IncrementTradesRead(len(trades))
	log.WithFields(logger.Fields{"trades": len(trades), "skipped": skipped}).Info("tape fetched")
	return trades, nil
}

func (s *restSource) fetchPage(ctx context.Context, offset, limit int) (tapePage, error) {
	retry := s.cfg.Retry
	delay := retry.BaseDelay
	attempts := retry.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := s.limiter.Wait(ctx); err != nil {
			return tapePage{}, err
		}

		page, err := s.doRequest(ctx, offset, limit)
		if err == nil {
			return page, nil
		}
		lastErr = err

		s.log.WithComponent("rest_feed").WithError(err).WithFields(logger.Fields{
			"attempt": attempt,
			"offset":  offset,
		}).Warn("tape page request failed")

		if attempt == attempts {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return tapePage{}, ctx.Err()
		}
		delay *= time.Duration(retry.BackoffMultiplier)
		if delay > retry.MaxDelay {
			delay = retry.MaxDelay
		}
	}
	return tapePage{}, fmt.Errorf("after %d attempts: %w", attempts, lastErr)
}

func (s *restSource) doRequest(ctx context.Context, offset, limit int) (tapePage, error) {
	u, err := url.Parse(s.cfg.REST.URL)
	if err != nil {
		return tapePage{}, fmt.Errorf("bad feed url: %w", err)
	}
	q := u.Query()
	q.Set("ticker", s.cfg.Ticker)
	q.Set("date", s.cfg.Date)
	q.Set("offset", strconv.Itoa(offset))
	q.Set("limit", strconv.Itoa(limit))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return tapePage{}, err
	}
	if s.cfg.REST.APIKey != "" {
		req.Header.Set("X-Api-Key", s.cfg.REST.APIKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return tapePage{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return tapePage{}, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, body)
	}

	var page tapePage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return tapePage{}, fmt.Errorf("decode tape page: %w", err)
	}
	return page, nil
}
