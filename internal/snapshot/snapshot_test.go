package snapshot

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jwtly10/tradegate/internal/decision"
	"github.com/jwtly10/tradegate/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sample() *Snapshot {
	return &Snapshot{
		Version:    CurrentVersion,
		InstanceID: "a1",
		SavedAt:    1704205800000,
		Governor:   []byte(`{"lastSent":{"QQQ":1}}`),
		Symbols: map[string]SymbolState{
			"QQQ": {
				Phase:   "WAITING_FOR_THESIS",
				History: []types.Bar{{TS: 1, Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 10}},
				LastTS:  map[types.Timeframe]int64{types.M5: 1},
			},
		},
	}
}

func TestDecode_CurrentVersion(t *testing.T) {
	bs, err := Encode(sample())
	require.NoError(t, err)

	s, err := Decode(bs)
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, "a1", s.InstanceID)
	assert.JSONEq(t, `{"lastSent":{"QQQ":1}}`, string(s.Governor))
	assert.Equal(t, int64(1), s.Symbols["QQQ"].LastTS[types.M5])
}

func TestDecode_AdaptsLegacySingleSymbol(t *testing.T) {
	legacy := `{
		"version": 1,
		"instanceId": "old",
		"savedAt": 42,
		"symbol": "SPY",
		"phase": "IN_TRADE",
		"activePlay": {"id": "p1", "direction": "LONG", "entryPrice": 100, "stop": 99, "status": "ENTERED"},
		"bars": [{"ts": 1, "open": 1, "high": 1, "low": 1, "close": 1, "volume": 1}],
		"governorState": {"cooldown": 3}
	}`

	s, err := Decode([]byte(legacy))
	require.NoError(t, err)
	require.NotNil(t, s)

	assert.Equal(t, CurrentVersion, s.Version)
	assert.Equal(t, "old", s.InstanceID)
	require.Contains(t, s.Symbols, "SPY")
	st := s.Symbols["SPY"]
	assert.Equal(t, "IN_TRADE", st.Phase)
	require.NotNil(t, st.Play)
	assert.Equal(t, decision.PlayEntered, st.Play.Status)
	assert.Len(t, st.History, 1)
	assert.JSONEq(t, `{"cooldown": 3}`, string(s.Governor))
}

func TestDecode_UnsupportedVersionIsNoState(t *testing.T) {
	s, err := Decode([]byte(`{"version": 99, "symbols": {}}`))
	assert.NoError(t, err)
	assert.Nil(t, s)

	s, err = Decode([]byte(`{"instanceId": "x"}`))
	assert.NoError(t, err, "a missing version is version 0")
	assert.Nil(t, s)
}

func TestDecode_InvalidJSON(t *testing.T) {
	_, err := Decode([]byte(`{"version":`))
	assert.Error(t, err)
}

func TestFileStore(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state", "snapshot.json")
	store := NewFileStore(path)

	_, err := store.Load(ctx)
	assert.ErrorIs(t, err, ErrNoSnapshot)

	require.NoError(t, store.Save(ctx, sample()))
	got, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a1", got.InstanceID)

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err), "temp file should be renamed away")

	require.NoError(t, os.WriteFile(path, []byte(`{"version": 7}`), 0o644))
	_, err = store.Load(ctx)
	assert.ErrorIs(t, err, ErrNoSnapshot, "unsupported versions read as no prior state")
}

type fakeRow struct {
	body []byte
	err  error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*dest[0].(*[]byte) = r.body
	return nil
}

type fakeDB struct {
	execs []string
	saved []byte
}

func (f *fakeDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.execs = append(f.execs, sql)
	if len(args) == 4 {
		f.saved = args[3].([]byte)
	}
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (f *fakeDB) QueryRow(_ context.Context, _ string, _ ...any) pgx.Row {
	if f.saved == nil {
		return fakeRow{err: pgx.ErrNoRows}
	}
	return fakeRow{body: f.saved}
}

func TestPostgresStore_WithFakeDB(t *testing.T) {
	ctx := context.Background()
	db := &fakeDB{}
	store := NewPostgresStore(db, "a1")

	require.NoError(t, Migrate(ctx, db))
	assert.Contains(t, db.execs[0], "create table if not exists tradegate_snapshots")

	_, err := store.Load(ctx)
	assert.ErrorIs(t, err, ErrNoSnapshot)

	require.NoError(t, store.Save(ctx, sample()))
	got, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "WAITING_FOR_THESIS", got.Symbols["QQQ"].Phase)
}

func TestKey(t *testing.T) {
	assert.Equal(t, "tradegate:snapshot:a1", Key("", "a1"))
	assert.Equal(t, "paper:snapshot:a1", Key("paper", "a1"))
}
