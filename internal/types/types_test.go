package types

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBar_Valid(t *testing.T) {
	good := Bar{TS: 1, Open: 100, High: 101, Low: 99, Close: 100.5, Volume: 10}

	tests := []struct {
		name   string
		mutate func(b *Bar)
		want   bool
	}{
		{"well formed", func(b *Bar) {}, true},
		{"zero volume", func(b *Bar) { b.Volume = 0 }, true},
		{"high below close", func(b *Bar) { b.High = 100.4 }, false},
		{"low above open", func(b *Bar) { b.Low = 100.1 }, false},
		{"high and low swapped", func(b *Bar) { b.High, b.Low = b.Low, b.High }, false},
		{"nan close", func(b *Bar) { b.Close = math.NaN() }, false},
		{"nan high", func(b *Bar) { b.High = math.NaN() }, false},
		{"infinite low", func(b *Bar) { b.Low = math.Inf(-1) }, false},
		{"infinite volume", func(b *Bar) { b.Volume = math.Inf(1) }, false},
		{"negative volume", func(b *Bar) { b.Volume = -1 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := good
			tt.mutate(&b)
			assert.Equal(t, tt.want, b.Valid())
		})
	}
}

func TestTimeframe_Finer(t *testing.T) {
	assert.True(t, M1.Finer(M5))
	assert.False(t, M15.Finer(M5))
	assert.False(t, M5.Finer(M5))
}
