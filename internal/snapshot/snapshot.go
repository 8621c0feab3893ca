// Package snapshot defines the persisted engine checkpoint and the stores that hold it.
//
// Version 2 is the only live schema. Older documents are adapted in Decode; anything else is
// treated as no prior state.
package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jwtly10/tradegate/internal/decision"
	"github.com/jwtly10/tradegate/internal/gate"
	"github.com/jwtly10/tradegate/internal/types"
)

const (
	CurrentVersion = 2
	legacyVersion  = 1
)

var ErrNoSnapshot = errors.New("no snapshot")

// Store persists the latest snapshot. Load returns ErrNoSnapshot when nothing usable is stored.
type Store interface {
	Save(ctx context.Context, s *Snapshot) error
	Load(ctx context.Context) (*Snapshot, error)
}

type Snapshot struct {
	Version    int            `json:"version"`
	InstanceID string         `json:"instanceId"`
	SavedAt    int64          `json:"savedAt"`
	ActivePlay *decision.Play `json:"activePlay,omitempty"`
	// Governor is owned by downstream delivery and carried through untouched.
	Governor json.RawMessage        `json:"governor,omitempty"`
	Symbols  map[string]SymbolState `json:"symbols"`
}

// SymbolState is everything the engine needs to resume one symbol.
type SymbolState struct {
	Phase      string                    `json:"phase"`
	Latch      *gate.Latch               `json:"latch,omitempty"`
	Gate       *gate.ResolutionGate      `json:"gate,omitempty"`
	Play       *decision.Play            `json:"play,omitempty"`
	History    []types.Bar               `json:"history"`
	Macro      []types.Bar               `json:"macro,omitempty"`
	Pending    map[string]types.Bar      `json:"pending,omitempty"`
	LastTS     map[types.Timeframe]int64 `json:"lastTs,omitempty"`
	LastRegime string                    `json:"lastRegime,omitempty"`
}

// legacyV1 is the single-symbol document written before per-symbol state existed.
type legacyV1 struct {
	Version    int             `json:"version"`
	InstanceID string          `json:"instanceId"`
	SavedAt    int64           `json:"savedAt"`
	Symbol     string          `json:"symbol"`
	Phase      string          `json:"phase"`
	ActivePlay *decision.Play  `json:"activePlay"`
	Bars       []types.Bar     `json:"bars"`
	Governor   json.RawMessage `json:"governorState"`
}

func fromLegacy(v legacyV1) *Snapshot {
	s := &Snapshot{
		Version:    CurrentVersion,
		InstanceID: v.InstanceID,
		SavedAt:    v.SavedAt,
		ActivePlay: v.ActivePlay,
		Governor:   v.Governor,
		Symbols:    map[string]SymbolState{},
	}
	if v.Symbol != "" {
		s.Symbols[v.Symbol] = SymbolState{
			Phase:   v.Phase,
			Play:    v.ActivePlay,
			History: v.Bars,
		}
	}
	return s
}

// Decode parses a stored document. Unsupported versions yield (nil, nil).
func Decode(data []byte) (*Snapshot, error) {
	var head struct {
		Version int `json:"version"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("decode snapshot header: %w", err)
	}

	switch head.Version {
	case CurrentVersion:
		var s Snapshot
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, fmt.Errorf("decode snapshot v%d: %w", head.Version, err)
		}
		if s.Symbols == nil {
			s.Symbols = map[string]SymbolState{}
		}
		return &s, nil
	case legacyVersion:
		var v legacyV1
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("decode snapshot v%d: %w", head.Version, err)
		}
		slog.Info("Adapting legacy snapshot", "from", legacyVersion, "to", CurrentVersion, "symbol", v.Symbol)
		return fromLegacy(v), nil
	}

	slog.Warn("Ignoring snapshot with unsupported version", "version", head.Version)
	return nil, nil
}

func Encode(s *Snapshot) ([]byte, error) {
	if s.Version == 0 {
		s.Version = CurrentVersion
	}
	return json.Marshal(s)
}

// load decodes raw bytes for a store, folding "unsupported" into ErrNoSnapshot.
func load(data []byte, source string) (*Snapshot, error) {
	s, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", source, err)
	}
	if s == nil {
		return nil, fmt.Errorf("%s: %w (unsupported version)", source, ErrNoSnapshot)
	}
	return s, nil
}
