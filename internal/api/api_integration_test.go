package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pgrest/pgrest/internal/api"
	"github.com/pgrest/pgrest/internal/catalog"
	"github.com/pgrest/pgrest/internal/config"
	"github.com/pgrest/pgrest/internal/statscache"
	"github.com/pgrest/pgrest/internal/testutil/fixgres"
)

// newTestServer wires a fresh sandbox pool into the Request Adapter the
// same way internal/app.NewServer does, minus the HTTP listener itself.
func newTestServer(t *testing.T) (*httptest.Server, *fixgres.Sandbox) {
	t.Helper()
	fixgres.BootOnce(t)
	sbx := fixgres.NewSandbox(t)

	cfg := &config.Config{
		ScopeName:                   "/api",
		IsCacheTableStats:           false,
		IsCacheResetEndpointEnabled: true,
		MaxFKDepth:                  5,
		DefaultLimit:                10000,
		PoolAcquireTimeoutSeconds:   5,
	}
	cache := statscache.New(catalog.NewClient(sbx.Pool), cfg.IsCacheTableStats)
	handler := api.SetupRoutes(sbx.Pool, cache, cfg, zap.NewNop())
	return httptest.NewServer(handler), sbx
}

func TestGetChildDottedPathProjection(t *testing.T) {
	srv, sbx := newTestServer(t)
	defer srv.Close()
	ctx := context.Background()

	_, err := sbx.Pool.Exec(ctx, `INSERT INTO company (id, name) VALUES (1, 'Stark Corporation')`)
	require.NoError(t, err)
	_, err = sbx.Pool.Exec(ctx, `INSERT INTO adult (id, name, company_id) VALUES (1, 'Ned', 1)`)
	require.NoError(t, err)
	_, err = sbx.Pool.Exec(ctx, `INSERT INTO child (id, name, parent_id) VALUES (1000, 'Robb', 1)`)
	require.NoError(t, err)

	resp, err := http.Get(srv.URL + "/api/child?columns=id,name,parent_id.name,parent_id.company_id.name")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var rows []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rows))
	require.Len(t, rows, 1)
	require.EqualValues(t, 1000, rows[0]["id"])
	require.Equal(t, "Robb", rows[0]["name"])
	require.Equal(t, "Ned", rows[0]["parent_id.name"])
	require.Equal(t, "Stark Corporation", rows[0]["parent_id.company_id.name"])
}

func TestGetChildDottedPathWithExplicitAlias(t *testing.T) {
	srv, sbx := newTestServer(t)
	defer srv.Close()
	ctx := context.Background()

	_, err := sbx.Pool.Exec(ctx, `INSERT INTO company (id, name) VALUES (1, 'Stark Corporation')`)
	require.NoError(t, err)
	_, err = sbx.Pool.Exec(ctx, `INSERT INTO adult (id, name, company_id) VALUES (1, 'Ned', 1)`)
	require.NoError(t, err)
	_, err = sbx.Pool.Exec(ctx, `INSERT INTO child (id, name, parent_id) VALUES (1000, 'Robb', 1)`)
	require.NoError(t, err)

	url := srv.URL + "/api/child?columns=id,name,parent_id.name%20as%20parent_name,parent_id.company_id.name%20as%20parent_company_name"
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var rows []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rows))
	require.Len(t, rows, 1)
	require.Equal(t, "Ned", rows[0]["parent_name"])
	require.Equal(t, "Stark Corporation", rows[0]["parent_company_name"])
	_, hasRaw := rows[0]["parent_id.name"]
	require.False(t, hasRaw, "synthetic/raw path must not leak alongside the explicit alias")
}

func TestPostChildInsertAndConflictHandling(t *testing.T) {
	srv, sbx := newTestServer(t)
	defer srv.Close()
	ctx := context.Background()

	_, err := sbx.Pool.Exec(ctx, `INSERT INTO school (id, name) VALUES (10, 'Winterfell School')`)
	require.NoError(t, err)
	_, err = sbx.Pool.Exec(ctx, `INSERT INTO adult (id, name) VALUES (1, 'Ned')`)
	require.NoError(t, err)

	body := `{"id":1001,"name":"Sansa","parent_id":1,"school_id":10}`
	resp, err := http.Post(srv.URL+"/api/child", "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	var result map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	require.EqualValues(t, 1, result["num_rows"])

	// Idempotent re-insert with ON CONFLICT DO NOTHING.
	resp2, err := http.Post(srv.URL+"/api/child?conflict_action=nothing&conflict_target=id", "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	defer resp2.Body.Close()
	var result2 map[string]any
	require.NoError(t, json.NewDecoder(resp2.Body).Decode(&result2))
	require.EqualValues(t, 0, result2["num_rows"])

	// ON CONFLICT DO UPDATE changes the row.
	updateBody := `{"id":1001,"name":"Arya","parent_id":1,"school_id":10}`
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/child?conflict_action=update&conflict_target=id", bytes.NewBufferString(updateBody))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp3, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp3.Body.Close()
	var result3 map[string]any
	require.NoError(t, json.NewDecoder(resp3.Body).Decode(&result3))
	require.EqualValues(t, 1, result3["num_rows"])

	var name string
	require.NoError(t, sbx.Pool.QueryRow(ctx, `SELECT name FROM child WHERE id = 1001`).Scan(&name))
	require.Equal(t, "Arya", name)
}

func TestPutPlayerTwoHopJoinAssignment(t *testing.T) {
	srv, sbx := newTestServer(t)
	defer srv.Close()
	ctx := context.Background()

	_, err := sbx.Pool.Exec(ctx, `INSERT INTO coach (id, name) VALUES (1, 'Doc Rivers')`)
	require.NoError(t, err)
	_, err = sbx.Pool.Exec(ctx, `INSERT INTO team (id, name, coach_id) VALUES (1, 'LA Clippers', 1)`)
	require.NoError(t, err)
	_, err = sbx.Pool.Exec(ctx, `INSERT INTO player (id, name, team_id) VALUES (1, 'Kawhi Leonard', 1), (2, 'Paul George', 1)`)
	require.NoError(t, err)

	url := srv.URL + "/api/player?where=team_id.name%3D'LA%20Clippers'&returning_columns=id,name,team_id.name,team_id.coach_id.name"
	req, err := http.NewRequest(http.MethodPut, url, bytes.NewBufferString(`{"name":"team_id.coach_id.name"}`))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var rows []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rows))
	require.Len(t, rows, 2)
	for _, row := range rows {
		require.Equal(t, "Doc Rivers", row["name"])
		require.Equal(t, "LA Clippers", row["team_id.name"])
		require.Equal(t, "Doc Rivers", row["team_id.coach_id.name"])
	}
}

func TestDeleteRequiresConfirmDelete(t *testing.T) {
	srv, sbx := newTestServer(t)
	defer srv.Close()
	ctx := context.Background()

	_, err := sbx.Pool.Exec(ctx, `INSERT INTO coach (id, name) VALUES (1, 'Steve Kerr'), (2, 'Erik Spoelstra'), (3, 'Nick Nurse')`)
	require.NoError(t, err)

	resp, err := http.Get(srv.URL + "/api/coach?where=id%3E0")
	require.NoError(t, err)
	resp.Body.Close()

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/api/coach?where=id%3E0", nil)
	require.NoError(t, err)
	resp2, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp2.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp2.StatusCode)
	var errBody map[string]any
	require.NoError(t, json.NewDecoder(resp2.Body).Decode(&errBody))
	require.Equal(t, "ConfirmationRequired", errBody["error"])

	req2, err := http.NewRequest(http.MethodDelete, srv.URL+"/api/coach?where=id%3E0&confirm_delete=true", nil)
	require.NoError(t, err)
	resp3, err := http.DefaultClient.Do(req2)
	require.NoError(t, err)
	defer resp3.Body.Close()
	require.Equal(t, http.StatusOK, resp3.StatusCode)
	var result map[string]any
	require.NoError(t, json.NewDecoder(resp3.Body).Decode(&result))
	require.EqualValues(t, 3, result["num_rows"])
}

func TestCacheResetEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/reset_table_stats_cache", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}
