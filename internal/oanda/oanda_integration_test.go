//go:build integration
// +build integration

package oanda

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFetchBars_Integration(t *testing.T) {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelDebug},
	)))

	accountID := os.Getenv("OANDA_ACCOUNT_ID")
	if accountID == "" {
		t.Skip("OANDA_ACCOUNT_ID not set, skipping integration test")
	}

	apiKey := os.Getenv("OANDA_API_KEY")
	if apiKey == "" {
		t.Skip("OANDA_API_KEY not set, skipping integration test")
	}

	oanda := NewOandaService(accountID, apiKey, "")

	now := time.Now()
	lastWeek := now.Add(-7 * 24 * time.Hour)

	req := CandleRequest{
		Instrument:  NAS100,
		Granularity: M5,
		From:        lastWeek,
		To:          now,
	}

	bars, err := oanda.FetchBars(context.Background(), req)
	if err != nil {
		t.Fatalf("integration test failed: %v", err)
	}

	// A week always spans trading hours, so this should hold even on a weekend
	assert.True(t, len(bars) > 0, "expected at least one bar")
	for i := 1; i < len(bars); i++ {
		assert.Greater(t, bars[i].TS, bars[i-1].TS, "bars are strictly ordered")
	}

	t.Logf("Fetched %d bars for %s", len(bars), req.Instrument)
}
