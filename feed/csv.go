package feed

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"volflow/config"
	"volflow/logger"
	"volflow/models"
)

// csvSource reads a session tape exported to CSV. The header row names the
// vendor columns; column order is not assumed.
type csvSource struct {
	path   string
	ticker string
	loc    *time.Location
	log    *logger.Log
}

func newCSVSource(cfg *config.Config) *csvSource {
	return &csvSource{
		path:   cfg.Feed.CSV.Path,
		ticker: cfg.Feed.Ticker,
		loc:    cfg.Surface.Location(),
		log:    logger.GetLogger(),
	}
}

func (s *csvSource) Fetch(ctx context.Context) ([]models.Trade, error) {
	log := s.log.WithComponent("csv_feed").WithFields(logger.Fields{
		"path":   s.path,
		"ticker": s.ticker,
	})

	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("open tape file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.ReuseRecord = true

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read tape header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[name] = i
	}
	for _, required := range []string{
		"ticker_tk", "prtTimestamp", "okey_yr", "okey_mn", "okey_dy",
		"okey_xx", "okey_cp", "prtPrice", "prtSize", "prtIv", "uPrc",
	} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("tape header missing column %q", required)
		}
	}

	var trades []models.Trade
	var skipped, filtered int
	for line := 2; ; line++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			// A torn line is tape noise, not a failed session.
			skipped++
			log.WithError(err).WithFields(logger.Fields{"line": line}).Debug("skipping unreadable row")
			continue
		}

		row, err := rowFromRecord(record, cols)
		if err != nil {
			skipped++
			log.WithError(err).WithFields(logger.Fields{"line": line}).Debug("skipping malformed row")
			continue
		}
		if row.Ticker != s.ticker {
			filtered++
			continue
		}
		trade, err := row.toTrade(s.loc)
		if err != nil {
			skipped++
			log.WithError(err).WithFields(logger.Fields{"line": line}).Debug("skipping malformed row")
			continue
		}
		trades = append(trades, trade)
	}

	logger.IncrementTradesRead(len(trades))
	log.WithFields(logger.Fields{
		"trades":       len(trades),
		"skipped":      skipped,
		"other_ticker": filtered,
	}).Info("tape file read")
	return trades, nil
}

func rowFromRecord(record []string, cols map[string]int) (tapeRow, error) {
	get := func(name string) string { return record[cols[name]] }

	for name, idx := range cols {
		if idx >= len(record) {
			return tapeRow{}, fmt.Errorf("short record: missing %q", name)
		}
	}

	yr, err := strconv.Atoi(get("okey_yr"))
	if err != nil {
		return tapeRow{}, fmt.Errorf("bad okey_yr: %w", err)
	}
	mn, err := strconv.Atoi(get("okey_mn"))
	if err != nil {
		return tapeRow{}, fmt.Errorf("bad okey_mn: %w", err)
	}
	dy, err := strconv.Atoi(get("okey_dy"))
	if err != nil {
		return tapeRow{}, fmt.Errorf("bad okey_dy: %w", err)
	}
	strike, err := strconv.ParseFloat(get("okey_xx"), 64)
	if err != nil {
		return tapeRow{}, fmt.Errorf("bad okey_xx: %w", err)
	}
	price, err := strconv.ParseFloat(get("prtPrice"), 64)
	if err != nil {
		return tapeRow{}, fmt.Errorf("bad prtPrice: %w", err)
	}
	size, err := strconv.ParseInt(get("prtSize"), 10, 64)
	if err != nil {
		return tapeRow{}, fmt.Errorf("bad prtSize: %w", err)
	}
	iv, err := strconv.ParseFloat(get("prtIv"), 64)
	if err != nil {
		return tapeRow{}, fmt.Errorf("bad prtIv: %w", err)
	}
	uPrc, err := strconv.ParseFloat(get("uPrc"), 64)
	if err != nil {
		return tapeRow{}, fmt.Errorf("bad uPrc: %w", err)
	}

	return tapeRow{
		Ticker:       get("ticker_tk"),
		PrtTimestamp: get("prtTimestamp"),
		OkeyYr:       yr,
		OkeyMn:       mn,
		OkeyDy:       dy,
		OkeyXx:       strike,
		OkeyCp:       get("okey_cp"),
		PrtPrice:     price,
		PrtSize:      size,
		PrtIv:        iv,
		UPrc:         uPrc,
	}, nil
}
