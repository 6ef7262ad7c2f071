package server_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/bitgreen/bridge-relayers/pkg/db"
	"github.com/bitgreen/bridge-relayers/pkg/db/models"
	"github.com/bitgreen/bridge-relayers/pkg/metrics"
	"github.com/bitgreen/bridge-relayers/pkg/server"
	"github.com/bitgreen/bridge-relayers/pkg/types"
)

type lockdownFlag bool

func (f lockdownFlag) Triggered() bool { return bool(f) }

func setupStore(t *testing.T) *db.DatabaseAdapter {
	gormDB, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	adapter, err := db.NewDatabaseAdapterWithDB(gormDB)
	require.NoError(t, err)
	t.Cleanup(func() { _ = adapter.Close() })
	return adapter
}

func get(t *testing.T, srv *server.Server, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	srv := server.New(":0", "keeper", nil, nil, nil, nil)
	rec := get(t, srv, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestStatusReportsLockdownAndPositions(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	require.NoError(t, store.UpdateCheckpoint(ctx, "keeper", types.ChainPallet, types.ChainPosition{BlockNumber: 120, Index: 3}, "Burned"))

	srv := server.New(":0", "keeper", []types.ChainID{types.ChainPallet, types.ChainEvm}, store, lockdownFlag(true), nil)
	rec := get(t, srv, "/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var status server.StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "keeper", status.Process)
	assert.True(t, status.Lockdown)
	require.Len(t, status.Positions, 1)
	assert.Equal(t, types.ChainPallet, status.Positions[0].Chain)
	assert.Equal(t, uint64(120), status.Positions[0].BlockNumber)
	assert.Equal(t, uint16(3), status.Positions[0].Index)
}

func TestRelays(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	require.NoError(t, store.RecordRelay(ctx, &models.RelayRecord{
		Process:       "keeper",
		SourceChain:   string(types.ChainEvm),
		EventKind:     "BridgeDepositRequest",
		TransactionID: "0xaa",
		Status:        models.RelayStatusSubmitted,
	}))
	srv := server.New(":0", "keeper", nil, store, nil, nil)

	rec := get(t, srv, "/relays?txid=0xaa")
	require.Equal(t, http.StatusOK, rec.Code)
	var records []models.RelayRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &records))
	require.Len(t, records, 1)
	assert.Equal(t, models.RelayStatusSubmitted, records[0].Status)

	assert.Equal(t, http.StatusBadRequest, get(t, srv, "/relays?limit=0").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, srv, "/relays?limit=LOL").Code)
	assert.Equal(t, http.StatusOK, get(t, srv, "/relays?limit=10").Code)
}

func TestRelaysWithoutStore(t *testing.T) {
	srv := server.New(":0", "watchcat", nil, nil, nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, get(t, srv, "/relays").Code)
}

func TestMetricsEndpoint(t *testing.T) {
	m := metrics.New("keeper")
	m.Relay("Burned", "submitted")
	srv := server.New(":0", "keeper", nil, nil, nil, m)

	rec := get(t, srv, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "bridge_relayer_relays_total")
}
