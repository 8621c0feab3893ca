package logging

import (
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Logger is a topic-scoped debug logger. A disabled topic costs a single bool check.
type Logger struct {
	topic string

	mu      sync.RWMutex
	enabled bool
}

var (
	mu            sync.Mutex
	enabledTopics = make(map[string]bool)
	registered    []*Logger
)

func init() {
	// DEBUG_TOPICS=regime,gate,engine or DEBUG_TOPICS=all
	topics := os.Getenv("DEBUG_TOPICS")
	if topics == "" {
		return
	}
	Configure("debug", strings.Split(topics, ","))
}

// Configure installs a text handler at the given level on the default slog logger and
// enables the listed topics. "all" enables every topic.
func Configure(level string, topics []string) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		lvl = slog.LevelInfo
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
	SetTopics(topics)
}

// SetTopics replaces the enabled topic set and refreshes every logger created so far.
func SetTopics(topics []string) {
	mu.Lock()
	defer mu.Unlock()

	enabledTopics = make(map[string]bool)
	for _, topic := range topics {
		topic = strings.TrimSpace(topic)
		if topic == "" {
			continue
		}
		if topic == "all" {
			topic = "*"
		}
		enabledTopics[topic] = true
	}
	for _, l := range registered {
		l.setEnabled(enabledTopics["*"] || enabledTopics[l.topic])
	}
}

// New creates a topic logger.
// Usage: var regimeLog = logging.New("regime")
func New(topic string) *Logger {
	mu.Lock()
	defer mu.Unlock()

	l := &Logger{
		topic:   topic,
		enabled: enabledTopics["*"] || enabledTopics[topic],
	}
	registered = append(registered, l)
	return l
}

func (l *Logger) setEnabled(v bool) {
	l.mu.Lock()
	l.enabled = v
	l.mu.Unlock()
}

// Enabled is useful to guard expensive argument construction.
func (l *Logger) Enabled() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.enabled
}

func (l *Logger) Debug(msg string, args ...any) {
	if !l.Enabled() {
		return
	}
	slog.Debug(msg, l.withTopic(args)...)
}

func (l *Logger) Info(msg string, args ...any) {
	if !l.Enabled() {
		return
	}
	slog.Info(msg, l.withTopic(args)...)
}

func (l *Logger) Warn(msg string, args ...any) {
	if !l.Enabled() {
		return
	}
	slog.Warn(msg, l.withTopic(args)...)
}

func (l *Logger) withTopic(args []any) []any {
	return append([]any{"topic", l.topic}, args...)
}
