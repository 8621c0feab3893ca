package types

const (
	RegimeChanged     EventType = "REGIME_CHANGED"
	OpportunityLatch  EventType = "OPPORTUNITY_LATCHED"
	LatchExpired      EventType = "LATCH_EXPIRED"
	LatchInvalidated  EventType = "LATCH_INVALIDATED"
	BreakoutTriggered EventType = "BREAKOUT_TRIGGERED"
	EntryBlocked      EventType = "ENTRY_BLOCKED"
	GateExpired       EventType = "GATE_EXPIRED"
	GateInvalidated   EventType = "GATE_INVALIDATED"
	DecisionMade      EventType = "DECISION"
	PlayArmed         EventType = "PLAY_ARMED"
	PlayEntered       EventType = "PLAY_ENTERED"
	PlayExpired       EventType = "PLAY_EXPIRED"
	PlayInvalidated   EventType = "PLAY_INVALIDATED"
	StopThreatened    EventType = "STOP_THREATENED"
	StopHit           EventType = "STOP_HIT"
	TargetHit         EventType = "TARGET_HIT"
	PlayClosed        EventType = "PLAY_CLOSED"
)

type EventType string

// Event is a self-contained domain event. Data holds a JSON-serialisable payload.
type Event struct {
	Type      EventType `json:"type"`
	Symbol    string    `json:"symbol"`
	Timestamp int64     `json:"timestamp"`
	Data      any       `json:"data"`
}
