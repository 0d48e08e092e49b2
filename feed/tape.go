package feed

import (
	"fmt"
	"strings"
	"time"

	"volflow/models"
)

// tapeRow is one print on the vendor OPRA tape. Field names follow the
// vendor schema so the same struct decodes both the REST payloads and the
// replay frames; the CSV reader maps header names onto it by hand.
type tapeRow struct {
	Ticker       string  `json:"ticker_tk"`
	PrtTimestamp string  `json:"prtTimestamp"`
	OkeyYr       int     `json:"okey_yr"`
	OkeyMn       int     `json:"okey_mn"`
	OkeyDy       int     `json:"okey_dy"`
	OkeyXx       float64 `json:"okey_xx"`
	OkeyCp       string  `json:"okey_cp"`
	PrtPrice     float64 `json:"prtPrice"`
	PrtSize      int64   `json:"prtSize"`
	PrtIv        float64 `json:"prtIv"`
	UPrc         float64 `json:"uPrc"`
}

// tapeTimestampLayout is the vendor's kdb-style instant with a 'D' between
// date and time and a variable-width fraction.
const tapeTimestampLayout = "2006.01.02D15:04:05.999999999"

// toTrade converts a tape row into the internal trade form. Tape instants
// are quoted in the exchange time zone; the result carries UTC.
func (r tapeRow) toTrade(loc *time.Location) (models.Trade, error) {
	ts, err := time.ParseInLocation(tapeTimestampLayout, r.PrtTimestamp, loc)
	if err != nil {
		return models.Trade{}, fmt.Errorf("bad prtTimestamp %q: %w", r.PrtTimestamp, err)
	}

	var typ models.OptionType
	switch strings.ToLower(r.OkeyCp) {
	case "call", "c":
		typ = models.Call
	case "put", "p":
		typ = models.Put
	default:
		return models.Trade{}, fmt.Errorf("bad okey_cp %q", r.OkeyCp)
	}

	if r.OkeyYr < 2000 || r.OkeyMn < 1 || r.OkeyMn > 12 || r.OkeyDy < 1 || r.OkeyDy > 31 {
		return models.Trade{}, fmt.Errorf("bad expiry %04d-%02d-%02d", r.OkeyYr, r.OkeyMn, r.OkeyDy)
	}
	expiry := time.Date(r.OkeyYr, time.Month(r.OkeyMn), r.OkeyDy, 0, 0, 0, 0, loc)

	return models.Trade{
		Timestamp:  ts.UTC(),
		Ticker:     r.Ticker,
		Strike:     r.OkeyXx,
		Type:       typ,
		Price:      r.PrtPrice,
		Size:       r.PrtSize,
		IV:         r.PrtIv,
		Underlying: r.UPrc,
		Expiry:     expiry,
	}, nil
}
