package server

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/openagora/agora/internal/repository"
	"github.com/openagora/agora/internal/service/authz"
	"github.com/openagora/agora/internal/service/reviewable"
	"github.com/openagora/agora/pkg/json"
)

const testSecret = "test-secret"

func newTestServer(t *testing.T) *Server {
	t.Helper()
	registry := repository.NewTargetRegistry()
	store := reviewable.NewMemoryStore(registry)
	catalog := reviewable.NewCatalog()
	reviewable.RegisterDefaults(catalog)
	svc := reviewable.NewService(store, catalog, authz.NewEvaluator(nil), registry, nil, nil, zap.NewNop())
	return NewServer(svc, testSecret, zap.NewNop())
}

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return token
}

func adminToken(t *testing.T) string {
	return signToken(t, jwt.MapClaims{"sub": "admin-1", "username": "ada", "staff": true, "admin": true})
}

func userToken(t *testing.T) string {
	return signToken(t, jwt.MapClaims{"sub": "user-1", "username": "uma"})
}

func doJSON(t *testing.T, s *Server, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	out := map[string]interface{}{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func flagBody(targetID int64) map[string]interface{} {
	return map[string]interface{}{
		"target_type": "post",
		"target_id":   targetID,
		"variant":     "flagged_post",
		"kind":        "spam",
	}
}

func TestAuthRequired(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodGet, "/api/review", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, s, http.MethodGet, "/api/review", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "x"}).
		SignedString([]byte("wrong-secret"))
	require.NoError(t, err)
	rec = doJSON(t, s, http.MethodGet, "/api/review", forged, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHealthzOpen(t *testing.T) {
	s := newTestServer(t)
	rec := doJSON(t, s, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestFlagAndPerformFlow(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/review/flag", userToken(t), flagBody(42))
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decodeBody(t, rec)
	id := created["id"].(string)
	assert.Equal(t, "pending", created["status"])
	version := int64(created["version"].(float64))

	// Listing as admin shows the item.
	rec = doJSON(t, s, http.MethodGet, "/api/review?status=pending", adminToken(t), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	listed := decodeBody(t, rec)
	assert.EqualValues(t, 1, listed["total"])

	// Lookup by target resolves the same item.
	rec = doJSON(t, s, http.MethodGet, "/api/review/target/post/42", adminToken(t), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, id, decodeBody(t, rec)["id"])

	// Available actions for the admin include the destructive ones.
	rec = doJSON(t, s, http.MethodGet, "/api/review/"+id+"/actions", adminToken(t), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// An edit bumps the version, so a perform carrying the stale one conflicts.
	rec = doJSON(t, s, http.MethodPut, "/api/review/"+id, adminToken(t),
		map[string]interface{}{"version": version, "delta": map[string]interface{}{"note": "looking"}})
	require.Equal(t, http.StatusOK, rec.Code)
	current := int64(decodeBody(t, rec)["version"].(float64))

	rec = doJSON(t, s, http.MethodPost, "/api/review/"+id+"/perform/agree_and_hide", adminToken(t),
		map[string]interface{}{"version": version})
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Perform with the current version.
	rec = doJSON(t, s, http.MethodPost, "/api/review/"+id+"/perform/agree_and_hide", adminToken(t),
		map[string]interface{}{"version": current})
	require.Equal(t, http.StatusOK, rec.Code)
	performed := decodeBody(t, rec)
	item := performed["item"].(map[string]interface{})
	assert.Equal(t, "approved", item["status"])
}

func TestPerformErrorMapping(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/review/flag", userToken(t), flagBody(7))
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decodeBody(t, rec)["id"].(string)

	// Unknown action: forbidden.
	rec = doJSON(t, s, http.MethodPost, "/api/review/"+id+"/perform/nonsense", adminToken(t),
		map[string]interface{}{"version": 0})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Non-staff actor: forbidden.
	rec = doJSON(t, s, http.MethodPost, "/api/review/"+id+"/perform/agree_and_keep", userToken(t),
		map[string]interface{}{"version": 0})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Missing version for a human: validation error.
	rec = doJSON(t, s, http.MethodPost, "/api/review/"+id+"/perform/agree_and_keep", adminToken(t),
		map[string]interface{}{})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	// Unknown item: not found.
	rec = doJSON(t, s, http.MethodPost,
		"/api/review/00000000-0000-0000-0000-000000000001/perform/agree_and_keep", adminToken(t),
		map[string]interface{}{"version": 0})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Malformed id: validation error.
	rec = doJSON(t, s, http.MethodGet, "/api/review/not-a-uuid", adminToken(t), nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestFlagValidation(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/review/flag", userToken(t),
		map[string]interface{}{"target_type": "post"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestBulkPerform(t *testing.T) {
	s := newTestServer(t)

	var ids []string
	for i := int64(1); i <= 3; i++ {
		rec := doJSON(t, s, http.MethodPost, "/api/review/flag", userToken(t), flagBody(i))
		require.Equal(t, http.StatusCreated, rec.Code)
		ids = append(ids, decodeBody(t, rec)["id"].(string))
	}

	rec := doJSON(t, s, http.MethodPost, "/api/review/bulk", adminToken(t), map[string]interface{}{
		"ids":    ids,
		"action": "ignore",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	results := decodeBody(t, rec)["results"].([]interface{})
	require.Len(t, results, 3)
	for _, r := range results {
		entry := r.(map[string]interface{})
		assert.Equal(t, "ignored", entry["status"], fmt.Sprintf("item %v", entry["id"]))
	}
}

func TestPendingCountEndpoint(t *testing.T) {
	s := newTestServer(t)

	doJSON(t, s, http.MethodPost, "/api/review/flag", userToken(t), flagBody(1))
	doJSON(t, s, http.MethodPost, "/api/review/flag", userToken(t), flagBody(2))

	rec := doJSON(t, s, http.MethodGet, "/api/review/pending_count", adminToken(t), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 2, decodeBody(t, rec)["pending"])
}
