// Package oanda fetches historical mid-price candles and converts them to pipeline bars.
package oanda

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/jwtly10/tradegate/internal/types"
)

const (
	DefaultBaseUrl       = "https://api-fxpractice.oanda.com"
	MaxCandlesPerRequest = 4000 // Limit is 5000 but we maintain a buffer

	// Oanda granularities
	M1  CandlestickGranularity = "M1"
	M5  CandlestickGranularity = "M5"
	M15 CandlestickGranularity = "M15"
	M30 CandlestickGranularity = "M30"
	H1  CandlestickGranularity = "H1"

	// Oanda Instruments
	NAS100 InstrumentName = "NAS100_USD"
	SPX500 InstrumentName = "SPX500_USD"
)

var granularityToDuration = map[CandlestickGranularity]time.Duration{
	M1:  1 * time.Minute,
	M5:  5 * time.Minute,
	M15: 15 * time.Minute,
	M30: 30 * time.Minute,
	H1:  1 * time.Hour,
}

var timeframeToGranularity = map[types.Timeframe]CandlestickGranularity{
	types.M1:  M1,
	types.M5:  M5,
	types.M15: M15,
}

func (g CandlestickGranularity) ToDuration() (time.Duration, error) {
	duration, ok := granularityToDuration[g]
	if !ok {
		return 0, fmt.Errorf("invalid granularity: %s", g)
	}
	return duration, nil
}

func (g CandlestickGranularity) String() string {
	return string(g)
}

// GranularityFor maps a pipeline timeframe to the Oanda granularity of the same length.
func GranularityFor(tf types.Timeframe) (CandlestickGranularity, error) {
	g, ok := timeframeToGranularity[tf]
	if !ok {
		return "", fmt.Errorf("no oanda granularity for timeframe %s", tf)
	}
	return g, nil
}

func NewOandaService(accountId, apiKey, apiUrl string) *OandaService {
	if apiUrl == "" {
		apiUrl = DefaultBaseUrl
	}

	return &OandaService{
		AccountId: accountId,
		ApiKey:    apiKey,
		ApiUrl:    apiUrl,
		client:    &http.Client{Timeout: 30 * time.Second},
	}
}

// FetchBars will iteratively fetch all complete bars between 2 dates. Bars are stamped with
// their close time, one millisecond before the next candle opens.
//
// Note: We are not limiting the number of candles returned here,
// so there is scope for memory issues if not used carefully.
func (s *OandaService) FetchBars(ctx context.Context, req CandleRequest) ([]types.Bar, error) {
	slog.Info("Initiating batched Oanda fetch", "instrument", req.Instrument, "from", req.From, "to", req.To, "period", req.Granularity.String())
	period, err := req.Granularity.ToDuration()
	if err != nil {
		return nil, err
	}

	if now := time.Now(); req.To.After(now) {
		req.To = now
		slog.Warn("Adjusted 'To' time to current time as it was in the future", "newTo", req.To)
	}

	var allBars []types.Bar
	currentFrom := req.From

	for currentFrom.Before(req.To) {
		batchTo := currentFrom.Add(period * time.Duration(MaxCandlesPerRequest))
		if batchTo.After(req.To) {
			batchTo = req.To
		}

		newReq := CandleRequest{
			Instrument:  req.Instrument,
			Granularity: req.Granularity,
			From:        currentFrom,
			To:          batchTo,
		}

		batch, err := s.FetchHistoricCandles(ctx, newReq)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch candles between %s and %s: %w", currentFrom, batchTo, err)
		}

		slog.Info("Found bars in latest fetch", "count", len(batch.Candles), "from", currentFrom, "to", batchTo)

		if len(batch.Candles) == 0 {
			break // No more data available
		}

		lastOpen, err := time.Parse(time.RFC3339, batch.Candles[len(batch.Candles)-1].Time)
		if err != nil {
			return nil, fmt.Errorf("failed to parse candle time %s: %w", batch.Candles[len(batch.Candles)-1].Time, err)
		}

		convertedBars, err := candlesToBars(batch.Candles, period)
		if err != nil {
			return nil, fmt.Errorf("failed to convert candles to bars: %w", err)
		}
		allBars = append(allBars, convertedBars...)

		// Move to next batch
		next := lastOpen.Add(period)
		if !next.After(currentFrom) {
			break
		}
		currentFrom = next
	}

	slog.Info("Completed fetching all oanda bars", "totalBars", len(allBars))
	return allBars, nil
}

// candlesToBars skips candles that are still forming.
func candlesToBars(candles []Candlestick, period time.Duration) ([]types.Bar, error) {
	bars := make([]types.Bar, 0, len(candles))
	for _, candle := range candles {
		if !candle.Complete {
			continue
		}
		open, err := time.Parse(time.RFC3339, candle.Time)
		if err != nil {
			return nil, fmt.Errorf("failed to parse candle time %s: %w", candle.Time, err)
		}

		var prices [4]float64
		for i, p := range []PriceValue{candle.Mid.O, candle.Mid.H, candle.Mid.L, candle.Mid.C} {
			v, err := strconv.ParseFloat(string(p), 64)
			if err != nil {
				return nil, fmt.Errorf("failed to parse candle price %q at %s: %w", p, candle.Time, err)
			}
			prices[i] = v
		}

		bars = append(bars, types.Bar{
			TS:     open.Add(period).UnixMilli() - 1,
			Open:   prices[0],
			High:   prices[1],
			Low:    prices[2],
			Close:  prices[3],
			Volume: float64(candle.Volume),
		})
	}
	return bars, nil
}

func (s *OandaService) FetchHistoricCandles(ctx context.Context, req CandleRequest) (*CandlestickResponse, error) {
	endpoint := s.ApiUrl + "/v3/accounts/" + s.AccountId + "/instruments/" + string(req.Instrument) + "/candles"

	params := url.Values{}
	params.Add("price", "M")
	if req.Granularity != "" {
		params.Add("granularity", string(req.Granularity))
	}
	if req.Count != 0 {
		params.Add("count", strconv.Itoa(req.Count))
	}

	params.Add("from", strconv.FormatInt(req.From.Unix(), 10))
	params.Add("to", strconv.FormatInt(req.To.Unix(), 10))
	params.Add("includeFirst", "false")

	fullURL := endpoint + "?" + params.Encode()

	slog.Info("Fetching historic candles", "instrument", req.Instrument, "from", req.From, "to", req.To)
	slog.Debug("Request URL", "url", fullURL)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, err
	}

	httpReq.Header.Set("Authorization", "Bearer "+s.ApiKey)
	httpReq.Header.Set("Accept-Datetime-Format", "RFC3339")

	client := s.client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, err := io.ReadAll(resp.Body)
		if err != nil {
			slog.Error("Failed to read error response body",
				"statusCode", resp.StatusCode,
				"error", err)
			return nil, fmt.Errorf("failed to fetch candles: status code %d, could not read error body: %w", resp.StatusCode, err)
		}

		rawRespBody := string(bodyBytes)
		slog.Error("Failed to fetch candles: API returned an error status",
			"statusCode", resp.StatusCode,
			"rawResponse", rawRespBody)

		return nil, fmt.Errorf("failed to fetch candles: status code %d, API Response: %s", resp.StatusCode, rawRespBody)
	}

	var candleResp CandlestickResponse
	if err := json.NewDecoder(resp.Body).Decode(&candleResp); err != nil {
		return nil, fmt.Errorf("failed to decode candle response: %w", err)
	}

	return &candleResp, nil
}
