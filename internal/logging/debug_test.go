package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLogger_Creation(t *testing.T) {
	SetTopics([]string{"regime"})

	enabledLog := New("regime")
	disabledLog := New("gate")

	assert.True(t, enabledLog.Enabled(), "Logger for enabled topic should be enabled")
	assert.False(t, disabledLog.Enabled(), "Logger for disabled topic should be disabled")
}

func TestLogger_AllTopics(t *testing.T) {
	SetTopics([]string{"all"})

	log1 := New("anything")
	log2 := New("whatever")

	assert.True(t, log1.Enabled(), "All topics should be enabled with wildcard")
	assert.True(t, log2.Enabled(), "All topics should be enabled with wildcard")
}

func TestLogger_SetTopicsRefreshesExistingLoggers(t *testing.T) {
	SetTopics(nil)
	log := New("engine")
	assert.False(t, log.Enabled())

	SetTopics([]string{" engine ", ""})
	assert.True(t, log.Enabled(), "Existing logger should pick up newly enabled topic")

	SetTopics([]string{"gate"})
	assert.False(t, log.Enabled(), "Existing logger should be disabled when topic removed")
}

func TestLogger_NoTopics(t *testing.T) {
	SetTopics(nil)

	log := New("anything")

	assert.False(t, log.Enabled(), "Logger should be disabled when no topics enabled")
}

func BenchmarkLogger_Disabled(b *testing.B) {
	SetTopics(nil)
	log := New("benchmark")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		log.Debug("test message", "key", "value", "number", 42)
	}
}
