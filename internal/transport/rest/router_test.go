package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"screenflow/internal/apierr"
	"screenflow/internal/cache"
	"screenflow/internal/config"
	"screenflow/internal/logger"
	"screenflow/internal/model"
	"screenflow/internal/repository"
	"screenflow/internal/service"
	"screenflow/internal/transport/ws"
)

type testServer struct {
	handler http.Handler
	store   *repository.MemoryAnswerRepo
	hub     *ws.Hub
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	log := logger.Nop()
	questions := repository.NewMemoryQuestionRepo([]model.Question{
		{ID: "Q_BOOL", ScreenKey: "profile", Position: 1, Kind: model.AnswerKindBoolean},
		{ID: "Q_DEP", ScreenKey: "profile", Position: 2, Kind: model.AnswerKindShortString, ParentID: "Q_BOOL", VisibleIfValues: []string{"true"}},
	})
	store := repository.NewMemoryAnswerRepo()
	etags := service.NewETagCalculator(questions, store, log)
	screens := service.NewScreenAssembler(questions, store, etags, log, service.DefaultHydrationAttempts)
	responseSets := service.NewResponseSetService(repository.NewMemoryResponseSetRepo(), log)
	autosave := service.NewAutosaveService(questions, store, screens, cache.NewMemoryReplayCache(time.Hour), responseSets, log)
	hub := ws.NewHub(log)
	autosave.SetBroadcaster(hub)
	responseSets.SetBroadcaster(hub)

	cfg, err := config.Load()
	require.NoError(t, err)
	return &testServer{
		handler: NewRouter(&Container{
			ResponseSetService: responseSets,
			AutosaveService:    autosave,
			WSHub:              hub,
			CORS:               cfg.CORS,
			Log:                log,
		}),
		store: store,
		hub:   hub,
	}
}

func (s *testServer) do(t *testing.T, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) createResponseSet(t *testing.T) string {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/v1/response-sets", `{"name":"onboarding"}`, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	var rs model.ResponseSet
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rs))
	require.NotEmpty(t, rs.ID)
	return rs.ID
}

func (s *testServer) screenETag(t *testing.T, rsID string) string {
	t.Helper()
	rec := s.do(t, http.MethodGet, "/v1/response-sets/"+rsID+"/screens/profile", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	etag := rec.Header().Get("ETag")
	require.NotEmpty(t, etag)
	assert.Equal(t, etag, rec.Header().Get("Screen-ETag"))
	return etag
}

func decodeProblem(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	var p map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	return p
}

func TestPatch_SavesAndReturnsDelta(t *testing.T) {
	s := newTestServer(t)
	rsID := s.createResponseSet(t)
	etag := s.screenETag(t, rsID)

	rec := s.do(t, http.MethodPatch, "/v1/response-sets/"+rsID+"/answers/Q_BOOL", `{"value":true}`, map[string]string{"If-Match": etag})
	require.Equal(t, http.StatusOK, rec.Code)
	newETag := rec.Header().Get("ETag")
	assert.NotEqual(t, etag, newETag)
	assert.Equal(t, newETag, rec.Header().Get("Screen-ETag"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	var resp model.SaveResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, newETag, resp.ETag)
	require.Len(t, resp.VisibilityDelta.NowVisible, 1)
	assert.Equal(t, "Q_DEP", resp.VisibilityDelta.NowVisible[0].QuestionID)
	assert.Equal(t, newETag, s.screenETag(t, rsID))
}

func TestPatch_StaleIfMatchReturnsCurrentETag(t *testing.T) {
	s := newTestServer(t)
	rsID := s.createResponseSet(t)
	stale := s.screenETag(t, rsID)

	rec := s.do(t, http.MethodPatch, "/v1/response-sets/"+rsID+"/answers/Q_BOOL", `{"value":false}`, map[string]string{"If-Match": stale})
	require.Equal(t, http.StatusOK, rec.Code)
	current := rec.Header().Get("ETag")

	rec = s.do(t, http.MethodPatch, "/v1/response-sets/"+rsID+"/answers/Q_BOOL", `{"value":true}`, map[string]string{"If-Match": stale})
	require.Equal(t, http.StatusConflict, rec.Code)
	p := decodeProblem(t, rec)
	assert.Equal(t, apierr.CodeIfMatchMismatch, p["code"])
	assert.Equal(t, float64(http.StatusConflict), p["status"])
	assert.Equal(t, current, rec.Header().Get("ETag"))
	assert.Equal(t, current, rec.Header().Get("Screen-ETag"))

	a, _ := s.store.GetExisting(context.Background(), rsID, "Q_BOOL")
	require.NotNil(t, a)
	assert.False(t, *a.Bool)
}

func TestPatch_MissingIfMatch(t *testing.T) {
	s := newTestServer(t)
	rsID := s.createResponseSet(t)

	rec := s.do(t, http.MethodPatch, "/v1/response-sets/"+rsID+"/answers/Q_BOOL", `{"value":true}`, nil)
	require.Equal(t, http.StatusPreconditionRequired, rec.Code)
	assert.Equal(t, apierr.CodeIfMatchMissing, decodeProblem(t, rec)["code"])
}

func TestPatch_MalformedBody(t *testing.T) {
	s := newTestServer(t)
	rsID := s.createResponseSet(t)

	rec := s.do(t, http.MethodPatch, "/v1/response-sets/"+rsID+"/answers/Q_BOOL", `{"value":`, map[string]string{"If-Match": "*"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, apierr.CodeBadRequest, decodeProblem(t, rec)["code"])

	rec = s.do(t, http.MethodPatch, "/v1/response-sets/"+rsID+"/answers/Q_BOOL", `{"value":"yes"}`, map[string]string{"If-Match": "*"})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, apierr.CodeTypeMismatch, decodeProblem(t, rec)["code"])
}

func TestPatch_ReplayReturnsIdenticalBody(t *testing.T) {
	s := newTestServer(t)
	rsID := s.createResponseSet(t)
	path := "/v1/response-sets/" + rsID + "/answers/Q_BOOL"

	first := s.do(t, http.MethodPatch, path, `{"value":true}`, map[string]string{"If-Match": "*"})
	require.Equal(t, http.StatusOK, first.Code)
	second := s.do(t, http.MethodPatch, path, `{ "value" : true }`, map[string]string{"If-Match": "*"})
	require.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, first.Body.Bytes(), second.Body.Bytes())
	assert.Equal(t, first.Header().Get("ETag"), second.Header().Get("ETag"))
}

func TestDeleteAnswer_NoContentWithHeaders(t *testing.T) {
	s := newTestServer(t)
	rsID := s.createResponseSet(t)
	path := "/v1/response-sets/" + rsID + "/answers/Q_BOOL"

	rec := s.do(t, http.MethodPatch, path, `{"value":true}`, map[string]string{"If-Match": "*"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodDelete, path, "", map[string]string{"If-Match": rec.Header().Get("ETag")})
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.Bytes())
	assert.NotEmpty(t, rec.Header().Get("ETag"))
	assert.Equal(t, rec.Header().Get("ETag"), s.screenETag(t, rsID))
}

func TestBatch_PerItemOutcomes(t *testing.T) {
	s := newTestServer(t)
	rsID := s.createResponseSet(t)
	stale := s.screenETag(t, rsID)
	rec := s.do(t, http.MethodPatch, "/v1/response-sets/"+rsID+"/answers/Q_DEP", `{"value":"x"}`, map[string]string{"If-Match": stale})
	require.Equal(t, http.StatusOK, rec.Code)
	current := rec.Header().Get("ETag")

	body := `{"items":[
		{"question_id":"Q_BOOL","etag":` + jsonString(current) + `,"body":{"value":true}},
		{"question_id":"Q_DEP","etag":` + jsonString(stale) + `,"body":{"value":"y"}}
	]}`
	rec = s.do(t, http.MethodPost, "/v1/response-sets/"+rsID+"/answers:batch", body, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var result model.BatchResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.Len(t, result.Items, 2)
	assert.Equal(t, model.OutcomeSuccess, result.Items[0].Outcome)
	assert.Equal(t, model.OutcomeError, result.Items[1].Outcome)
	assert.Equal(t, apierr.CodeBatchItemMismatch, result.Items[1].Error.Code)
}

func TestResponseSets_LifecycleAndNotFound(t *testing.T) {
	s := newTestServer(t)
	rsID := s.createResponseSet(t)

	rec := s.do(t, http.MethodGet, "/v1/response-sets/"+rsID, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"onboarding"`)

	rec = s.do(t, http.MethodDelete, "/v1/response-sets/"+rsID, "", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(t, http.MethodGet, "/v1/response-sets/"+rsID+"/screens/profile", "", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, apierr.CodeResponseSetNotFound, decodeProblem(t, rec)["code"])

	rec = s.do(t, http.MethodPost, "/v1/response-sets", "", nil)
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestCORS_PreflightExposesETags(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodOptions, "/v1/response-sets/x/answers/Q_BOOL", "", map[string]string{"Origin": "http://localhost"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "If-Match")
	assert.Contains(t, rec.Header().Get("Access-Control-Expose-Headers"), "Screen-ETag")
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = s.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestWebSocket_ReceivesScreenChanged(t *testing.T) {
	s := newTestServer(t)
	rsID := s.createResponseSet(t)
	srv := httptest.NewServer(s.handler)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/ws/response-sets/" + rsID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	// registration is asynchronous
	require.Eventually(t, func() bool { return s.hub.Subscribers(rsID) == 1 }, 2*time.Second, 5*time.Millisecond)

	rec := s.do(t, http.MethodPatch, "/v1/response-sets/"+rsID+"/answers/Q_BOOL", `{"value":true}`, map[string]string{"If-Match": "*"})
	require.Equal(t, http.StatusOK, rec.Code)

	var msg ws.Message
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, ws.MsgScreenChanged, msg.Type)
	var payload service.ScreenChanged
	require.NoError(t, json.Unmarshal(msg.Payload, &payload))
	assert.Equal(t, rsID, payload.ResponseSetID)
	assert.Equal(t, "profile", payload.ScreenKey)
}

func TestWebSocket_UnknownResponseSet(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodGet, "/v1/ws/response-sets/missing", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func jsonString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
