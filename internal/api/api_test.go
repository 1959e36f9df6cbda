package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulsetrack/conditioning/internal/cachestore"
	"github.com/pulsetrack/conditioning/internal/conditioning"
	"github.com/pulsetrack/conditioning/pkg/cache/inmemory"
	"github.com/pulsetrack/conditioning/pkg/common/structs"
	"github.com/pulsetrack/conditioning/pkg/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// newTestRouter wires a full service on the in-memory cache driver and seeds
// one user with one log.
func newTestRouter(t *testing.T) (*gin.Engine, string) {
	t.Helper()
	ctx := context.Background()

	backend, err := inmemory.NewCache(nil)
	require.NoError(t, err)
	st := store.New(backend)

	startedAt := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	created, err := st.Logs.Create(ctx, &structs.ConditioningLog{
		ActivityType: "running",
		StartedAt:    &startedAt,
		Duration:     structs.Quantity{Value: 60, Unit: "min"},
	})
	require.NoError(t, err)
	_, err = st.Users.Create(ctx, &structs.User{ID: "alice", LogIDs: []string{created.ID}})
	require.NoError(t, err)

	svc := conditioning.NewService(st.Logs, st.Users, cachestore.New(),
		conditioning.CompensationPolicy{Attempts: 1, Delay: time.Millisecond})
	return NewRouter(svc), created.ID
}

func doRequest(router *gin.Engine, method, target, callerID, roles, body string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if callerID != "" {
		req.Header.Set(headerCallerID, callerID)
	}
	if roles != "" {
		req.Header.Set(headerCallerRoles, roles)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	router, _ := newTestRouter(t)
	rec := doRequest(router, http.MethodGet, "/healthz", "", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestListLogs_OwnerSeesOwnLogs(t *testing.T) {
	router, logID := newTestRouter(t)

	rec := doRequest(router, http.MethodGet, "/api/v1/users/alice/logs", "alice", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Logs []structs.ConditioningLog `json:"logs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Logs, 1)
	assert.Equal(t, logID, body.Logs[0].ID)
}

func TestListLogs_ForeignCallerForbidden(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doRequest(router, http.MethodGet, "/api/v1/users/alice/logs", "mallory", "", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestListLogs_AdminAllowed(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doRequest(router, http.MethodGet, "/api/v1/users/alice/logs", "root", "admin", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestListLogs_InvalidSortRejected(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doRequest(router, http.MethodGet, "/api/v1/users/alice/logs?sort=color", "alice", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFetchLog_PromotesAndReturnsDetail(t *testing.T) {
	router, logID := newTestRouter(t)

	rec := doRequest(router, http.MethodGet, "/api/v1/users/alice/logs/"+logID, "alice", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got structs.ConditioningLog
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, logID, got.ID)
	assert.False(t, got.IsOverview)
}

func TestFetchLog_UnknownIsNotFound(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doRequest(router, http.MethodGet, "/api/v1/users/alice/logs/nope", "alice", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateLog(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doRequest(router, http.MethodPost, "/api/v1/users/alice/logs", "alice", "",
		`{"activity_type":"cycling","duration":{"value":90,"unit":"min"}}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var body struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotEmpty(t, body.ID)
}

func TestCreateLog_MalformedBody(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doRequest(router, http.MethodPost, "/api/v1/users/alice/logs", "alice", "", `{`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteThenUndelete(t *testing.T) {
	router, logID := newTestRouter(t)

	rec := doRequest(router, http.MethodDelete, "/api/v1/users/alice/logs/"+logID, "alice", "", "")
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doRequest(router, http.MethodPost, "/api/v1/users/alice/logs/"+logID+"/undelete", "alice", "", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestAggregate(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doRequest(router, http.MethodGet,
		"/api/v1/users/alice/aggregations?op=sum&sample_rate=day&unit=min", "alice", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Buckets []struct {
			Value float64 `json:"value"`
		} `json:"buckets"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Buckets, 1)
	assert.Equal(t, 60.0, body.Buckets[0].Value)
}

func TestAggregate_UnknownOperation(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doRequest(router, http.MethodGet,
		"/api/v1/users/alice/aggregations?op=median", "alice", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
