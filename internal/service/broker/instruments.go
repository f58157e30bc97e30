package broker

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"

	"SwingDesk/internal/domain/models"
)

// instrumentTokens lazily loads the exchange instrument dump and maps
// trading symbols to the numeric tokens the historical endpoint expects.
// A failed load is retried on the next lookup.
type instrumentTokens struct {
	rest     *restBase
	exchange string

	mu     sync.Mutex
	tokens map[string]int64
}

func newInstrumentTokens(rest *restBase, exchange string) *instrumentTokens {
	return &instrumentTokens{rest: rest, exchange: exchange}
}

// Lookup returns the instrument token for symbol.
func (t *instrumentTokens) Lookup(ctx context.Context, symbol string) (int64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.tokens == nil {
		var raw []byte
		if err := t.rest.GetJSONWithRetry(ctx, classDefault, "/instruments/"+t.exchange, nil, &raw); err != nil {
			return 0, fmt.Errorf("%w: instruments: %v", models.ErrExternalService, err)
		}
		tokens, err := parseInstruments(raw, t.exchange)
		if err != nil {
			return 0, fmt.Errorf("%w: instruments: %v", models.ErrExternalService, err)
		}
		t.tokens = tokens
	}
	tok, ok := t.tokens[symbol]
	if !ok {
		return 0, fmt.Errorf("%w: unknown instrument %s", models.ErrDataUnavailable, symbol)
	}
	return tok, nil
}

func parseInstruments(raw []byte, exchange string) (map[string]int64, error) {
	r := csv.NewReader(bytes.NewReader(raw))
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	col := map[string]int{}
	for i, h := range header {
		col[h] = i
	}
	tokIdx, ok1 := col["instrument_token"]
	symIdx, ok2 := col["tradingsymbol"]
	if !ok1 || !ok2 {
		return nil, errors.New("missing instrument_token or tradingsymbol column")
	}
	exIdx, hasEx := col["exchange"]

	out := make(map[string]int64)
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		if len(rec) <= tokIdx || len(rec) <= symIdx {
			continue
		}
		if hasEx && len(rec) > exIdx && rec[exIdx] != exchange {
			continue
		}
		tok, err := strconv.ParseInt(rec[tokIdx], 10, 64)
		if err != nil {
			continue
		}
		out[rec[symIdx]] = tok
	}
	return out, nil
}
