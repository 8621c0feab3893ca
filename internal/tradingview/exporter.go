package tradingview

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/jwtly10/tradegate/internal/account"
)

func allowDump() bool {
	// Get OS Env for dump DEBUG_DUMP=1 etc
	debugDump := os.Getenv("DEBUG_DUMP")
	if debugDump == "1" {
		slog.Info("DEBUG_DUMP=1, dumping to stdout")
		return true
	}

	return false
}

func DumpPineScript(trades []account.Trade) {
	if !allowDump() {
		return
	}

	fmt.Println(generateTradePinescript(trades))
}

// WritePineScript writes the trade markers to path.
func WritePineScript(path string, trades []account.Trade) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create pine script: %w", err)
	}
	if _, err := io.WriteString(f, generateTradePinescript(trades)); err != nil {
		f.Close()
		return fmt.Errorf("write pine script: %w", err)
	}
	return f.Close()
}

// generateTradePinescript renders one entry and one exit marker per trade. Entries show the
// play mode, grade, stop and final target; exits are red for a stop and green otherwise.
func generateTradePinescript(trades []account.Trade) string {
	var sb strings.Builder

	sb.WriteString("// ============================================\n")
	sb.WriteString("// PLAY VALIDATION MARKERS\n")
	sb.WriteString("// ============================================\n\n")

	for _, trade := range trades {
		// Entry marker
		entryTimestamp := formatPineTimestamp(trade.EntryTime)
		entryText := fmt.Sprintf("#%d %s %s %s\\nEntry: %.5f\\nT3: %.5f\\nSL: %.5f",
			trade.ID, trade.Direction, trade.Mode, trade.Grade, trade.EntryPrice, trade.TakeProfit, trade.StopLoss)

		sb.WriteString(fmt.Sprintf("t%d_entry = time_close == %s\n", trade.ID, entryTimestamp))
		sb.WriteString(fmt.Sprintf("plotshape(t%d_entry, title=\"#%d %s Entry\", location=location.bottom, color=color.blue, style=shape.labelup, size=size.small, text=\"%s\", textcolor=color.white)\n\n",
			trade.ID, trade.ID, trade.Direction, entryText))

		// Exit marker
		exitTimestamp := formatPineTimestamp(trade.ExitTime)
		exitColor := "color.green"
		if trade.ExitReason == "STOP_HIT" {
			exitColor = "color.red"
		}
		exitText := fmt.Sprintf("#%d EXIT\\nExit: %.5f (%.2fR)\\n%s",
			trade.ID, trade.ExitPrice, trade.RMultiple, trade.ExitReason)

		sb.WriteString(fmt.Sprintf("t%d_exit = time_close == %s\n", trade.ID, exitTimestamp))
		sb.WriteString(fmt.Sprintf("plotshape(t%d_exit, title=\"#%d EXIT\", location=location.top, color=%s, style=shape.labeldown, size=size.small, text=\"%s\", textcolor=color.white)\n\n",
			trade.ID, trade.ID, exitColor, exitText))
	}

	return sb.String()
}

// formatPineTimestamp rounds a bar close time (which ends one millisecond short of the minute)
// up to the minute TradingView reports for time_close.
func formatPineTimestamp(t time.Time) string {
	utc := t.UTC().Add(time.Millisecond).Truncate(time.Minute)
	return fmt.Sprintf("timestamp(\"UTC\", %d, %d, %d, %d, %d)",
		utc.Year(), int(utc.Month()), utc.Day(), utc.Hour(), utc.Minute())
}
