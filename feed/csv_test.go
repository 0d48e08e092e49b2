package feed

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"volflow/config"
)

const tapeHeader = "ticker_tk,prtTimestamp,okey_yr,okey_mn,okey_dy,okey_xx,okey_cp,prtPrice,prtSize,prtIv,uPrc\n"

func writeTape(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tape.csv")
	if err := os.WriteFile(path, []byte(tapeHeader+body), 0o644); err != nil {
		t.Fatalf("write tape: %v", err)
	}
	return path
}

func csvConfig(path string) *config.Config {
	cfg := &config.Config{}
	cfg.Feed.Kind = "csv"
	cfg.Feed.Ticker = "SPY"
	cfg.Feed.Date = "2023-12-01"
	cfg.Feed.CSV.Path = path
	cfg.ApplyDefaults()
	return cfg
}

func TestCSVFetch(t *testing.T) {
	path := writeTape(t,
		"SPY,2023.12.01D10:30:15.123,2023,12,15,455,Call,1.25,10,0.182,450.10\n"+
			"SPY,2023.12.01D10:30:16.500,2023,12,15,445,Put,0.90,5,0.210,450.10\n"+
			"QQQ,2023.12.01D10:30:17.000,2023,12,15,390,Call,2.00,1,0.190,388.00\n")

	src := newCSVSource(csvConfig(path))
	trades, err := src.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(trades) != 2 {
		t.Fatalf("trades = %d, want 2 after ticker filter", len(trades))
	}
	if trades[0].Strike != 455 || trades[1].Strike != 445 {
		t.Fatalf("unexpected trades: %+v", trades)
	}
}

func TestCSVFetchSkipsMalformedRows(t *testing.T) {
	path := writeTape(t,
		"SPY,2023.12.01D10:30:15.123,2023,12,15,455,Call,1.25,10,0.182,450.10\n"+
			"SPY,not-a-timestamp,2023,12,15,455,Call,1.25,10,0.182,450.10\n"+
			"SPY,2023.12.01D10:30:16.000,2023,12,15,abc,Call,1.25,10,0.182,450.10\n"+
			"SPY,2023.12.01D10:30:17.000,2023,12,15,450,Strangle,1.25,10,0.182,450.10\n")

	src := newCSVSource(csvConfig(path))
	trades, err := src.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(trades) != 1 {
		t.Fatalf("trades = %d, want 1 after dropping malformed rows", len(trades))
	}
}

func TestCSVFetchMissingColumn(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tape.csv")
	if err := os.WriteFile(path, []byte("ticker_tk,prtTimestamp\nSPY,2023.12.01D10:30:15\n"), 0o644); err != nil {
		t.Fatalf("write tape: %v", err)
	}

	src := newCSVSource(csvConfig(path))
	if _, err := src.Fetch(context.Background()); err == nil {
		t.Fatal("a tape without the vendor columns must fail the fetch")
	}
}

func TestCSVFetchMissingFile(t *testing.T) {
	src := newCSVSource(csvConfig(filepath.Join(t.TempDir(), "absent.csv")))
	if _, err := src.Fetch(context.Background()); err == nil {
		t.Fatal("a missing tape file must fail the fetch")
	}
}
