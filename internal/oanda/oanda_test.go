package oanda

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jwtly10/tradegate/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const candlesJSON = `{
  "instrument": "NAS100_USD",
  "granularity": "M5",
  "candles": [
    {"time": "2024-01-02T14:30:00Z", "volume": 120, "complete": true,
     "mid": {"o": "16800.5", "h": "16810.0", "l": "16795.2", "c": "16805.1"}},
    {"time": "2024-01-02T14:35:00Z", "volume": 90, "complete": true,
     "mid": {"o": "16805.1", "h": "16820.0", "l": "16801.0", "c": "16818.4"}},
    {"time": "2024-01-02T14:40:00Z", "volume": 10, "complete": false,
     "mid": {"o": "16818.4", "h": "16819.0", "l": "16815.0", "c": "16816.0"}}
  ]
}`

func TestFetchBars_ConvertsCompleteCandles(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, "/v3/accounts/acc-1/instruments/NAS100_USD/candles", r.URL.Path)
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		assert.Equal(t, "M5", r.URL.Query().Get("granularity"))
		assert.Equal(t, "M", r.URL.Query().Get("price"))
		fmt.Fprint(w, candlesJSON)
	}))
	defer srv.Close()

	svc := NewOandaService("acc-1", "key", srv.URL)
	from := time.Date(2024, 1, 2, 14, 30, 0, 0, time.UTC)
	bars, err := svc.FetchBars(context.Background(), CandleRequest{
		Instrument:  NAS100,
		Granularity: M5,
		From:        from,
		To:          from.Add(15 * time.Minute),
	})
	require.NoError(t, err)

	require.Len(t, bars, 2, "the forming candle is dropped")
	assert.Equal(t, from.Add(5*time.Minute).UnixMilli()-1, bars[0].TS, "bars carry their close time")
	assert.Equal(t, 16800.5, bars[0].Open)
	assert.Equal(t, 16818.4, bars[1].Close)
	assert.Equal(t, float64(90), bars[1].Volume)
	assert.True(t, bars[1].Valid())
	assert.Equal(t, 1, calls, "the window fits in one batch")
}

func TestFetchBars_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"errorMessage":"Insufficient authorization"}`)
	}))
	defer srv.Close()

	svc := NewOandaService("acc-1", "bad", srv.URL)
	from := time.Date(2024, 1, 2, 14, 30, 0, 0, time.UTC)
	_, err := svc.FetchBars(context.Background(), CandleRequest{Instrument: NAS100, Granularity: M5, From: from, To: from.Add(time.Hour)})
	assert.ErrorContains(t, err, "status code 401")
}

func TestFetchBars_InvalidGranularity(t *testing.T) {
	svc := NewOandaService("acc-1", "key", "http://unused")
	_, err := svc.FetchBars(context.Background(), CandleRequest{Instrument: NAS100, Granularity: "S5"})
	assert.Error(t, err)
}

func TestGranularityFor(t *testing.T) {
	g, err := GranularityFor(types.M15)
	require.NoError(t, err)
	assert.Equal(t, M15, g)

	_, err = GranularityFor("1h")
	assert.Error(t, err)
}
