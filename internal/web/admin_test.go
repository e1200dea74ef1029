package web

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"healthwatch/internal/db"
	"healthwatch/internal/logger"
	"healthwatch/internal/models"
	"healthwatch/internal/monitor"
)

func TestDisableRuleOverHTTPClearsServingHistory(t *testing.T) {
	sqldb, err := db.Open(db.DriverSQLite, t.TempDir()+"/web.db")
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqldb.Close() })
	require.NoError(t, db.Migrate(sqldb, db.DriverSQLite))
	repo := db.NewRepository(sqldb, db.DriverSQLite)
	mon := monitor.New(repo, nil, nil, nil, nil, logger.NewNop(), monitor.DefaultOptions())
	h := NewServer(mon, fakeJobs{}, repo, logger.NewNop()).Routes()

	rec := send(t, h, http.MethodPost, "/api/systems", `{"name":"orders","base_url":"http://orders","type":"API","environment":"TEST","collection_interval_seconds":30}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var sys systemResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sys))

	rec = send(t, h, http.MethodPost, "/api/systems/"+sys.ID+"/rules", `{"name":"slow","type":"LATENCY_MS","severity":"WARNING","threshold":100,"consecutive_violations":1}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var rule ruleResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rule))

	ctx := context.Background()
	m, err := models.NewMetric(sys.ID, models.MetricSnapshot{LatencyMs: 400, StatusCode: 200}, sys.CreatedAt)
	require.NoError(t, err)
	require.NoError(t, repo.InsertMetric(ctx, m))
	_, err = mon.EvaluateAlerts(ctx, sys.ID)
	require.NoError(t, err)
	require.Equal(t, 1, mon.Alerts().History().Len(rule.ID))

	require.Equal(t, http.StatusOK, send(t, h, http.MethodPost, "/api/rules/"+rule.ID+"/disable", "").Code)
	assert.Zero(t, mon.Alerts().History().Len(rule.ID))

	stored, err := repo.GetRule(ctx, rule.ID)
	require.NoError(t, err)
	assert.False(t, stored.Enabled)

	assert.Equal(t, http.StatusNoContent, send(t, h, http.MethodDelete, "/api/rules/"+rule.ID, "").Code)
	assert.Equal(t, http.StatusNotFound, get(t, h, "/api/rules/"+rule.ID+"/effectiveness").Code)
}
