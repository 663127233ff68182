package rest_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zlnvch/letterbox/api/rest"
	memoryblob "github.com/zlnvch/letterbox/blob/memory"
	memorycache "github.com/zlnvch/letterbox/cache/memory"
	"github.com/zlnvch/letterbox/mq/memorymq"
	"github.com/zlnvch/letterbox/service"
	memorystore "github.com/zlnvch/letterbox/store/memory"
)

type testServer struct {
	svc    *service.Service
	server *httptest.Server
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	queue := memorymq.NewMemoryMessageQueue()
	t.Cleanup(queue.Close)

	svc, err := service.NewService(
		memorystore.NewMemoryLetterStore(),
		memorycache.NewMemoryLetterCache(),
		queue,
		memoryblob.NewMemoryBlobStore(),
		nil,
		nil,
		[]byte("secret"),
	)
	require.NoError(t, err)

	router := mux.NewRouter()
	rest.NewHandler(svc).RegisterRoutes(router)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &testServer{svc: svc, server: server}
}

// register creates an identity with a published key and returns its token.
func (ts *testServer) register(t *testing.T, name string, key byte) (string, string) {
	t.Helper()

	identity, err := ts.svc.RegisterIdentity(t.Context(), service.OAuthLogin{
		Provider:   "github",
		ProviderId: name,
		Username:   name,
	}, "", "")
	require.NoError(t, err)

	token, err := ts.svc.CreateJWT(identity.Id)
	require.NoError(t, err)

	resp := ts.do(t, token, http.MethodPut, "/me/public-key", map[string]any{
		"publicKey": bytes.Repeat([]byte{key}, 32),
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	return identity.Id, token
}

func (ts *testServer) do(t *testing.T, token, method, path string, body any) *http.Response {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, ts.server.URL+path, reader)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestRequiresToken(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, "", http.MethodGet, "/me", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "unauthorized", decode[map[string]string](t, resp)["error"])

	resp = ts.do(t, "not-a-token", http.MethodGet, "/letters/inbox", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestPairAndSend(t *testing.T) {
	ts := newTestServer(t)
	aliceId, aliceToken := ts.register(t, "alice", 1)
	bobId, bobToken := ts.register(t, "bob", 2)

	resp := ts.do(t, aliceToken, http.MethodPost, "/invites", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	invite := decode[map[string]any](t, resp)
	inviteId := invite["id"].(string)

	resp = ts.do(t, aliceToken, http.MethodPost, "/invites/"+inviteId+"/consume", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "cannot_add_self", decode[map[string]string](t, resp)["error"])

	resp = ts.do(t, bobToken, http.MethodPost, "/invites/"+inviteId+"/consume", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = ts.do(t, bobToken, http.MethodPost, "/invites/"+inviteId+"/consume", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "request_already_sent", decode[map[string]string](t, resp)["error"])

	resp = ts.do(t, aliceToken, http.MethodGet, "/requests", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	requests := decode[[]map[string]any](t, resp)
	require.Len(t, requests, 1)
	assert.Equal(t, bobId, requests[0]["fromId"])

	resp = ts.do(t, aliceToken, http.MethodPost, "/requests/"+bobId+"/accept", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = ts.do(t, bobToken, http.MethodGet, "/pairings/"+aliceId, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	pairing := decode[map[string]any](t, resp)
	assert.Equal(t, aliceId, pairing["peerId"])

	deliverAt := time.Now().Add(time.Hour).UTC()
	letter := map[string]any{
		"recipientId":   aliceId,
		"sealedContent": "sealed",
		"condition":     map[string]any{"kind": "fixed_date", "at": deliverAt},
	}
	resp = ts.do(t, bobToken, http.MethodPost, "/letters", letter)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decode[map[string]any](t, resp)
	assert.Equal(t, "scheduled", created["status"])
	assert.NotEmpty(t, created["deliverAt"])

	// Not visible to the recipient before delivery
	resp = ts.do(t, aliceToken, http.MethodGet, "/letters/"+created["id"].(string), nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "letter_not_found", decode[map[string]string](t, resp)["error"])

	resp = ts.do(t, aliceToken, http.MethodGet, "/letters/inbox", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, decode[[]map[string]any](t, resp))

	resp = ts.do(t, bobToken, http.MethodGet, "/letters/outbox", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decode[[]map[string]any](t, resp), 1)
}

func TestCreateLetter_InvalidCondition(t *testing.T) {
	ts := newTestServer(t)
	_, token := ts.register(t, "alice", 1)

	resp := ts.do(t, token, http.MethodPost, "/letters", map[string]any{
		"recipientId":   "someone",
		"sealedContent": "sealed",
		"condition":     map[string]any{"kind": "whenever"},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_condition", decode[map[string]string](t, resp)["error"])
}

func TestAttachmentRoundTrip(t *testing.T) {
	ts := newTestServer(t)
	_, aliceToken := ts.register(t, "alice", 1)
	_, bobToken := ts.register(t, "bob", 2)

	path := "/attachments/letters/01890a5d-ac96-774b-bcce-b302099a8057/6f1c1c0e-9a43-4c8e-8b39-4b7e6f0a7b10"

	req, err := http.NewRequest(http.MethodPut, ts.server.URL+path, bytes.NewReader([]byte("sealed-bytes")))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+aliceToken)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = ts.do(t, aliceToken, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "sealed-bytes", buf.String())

	// Nobody else can read it while no delivered letter references it
	resp = ts.do(t, bobToken, http.MethodGet, path, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = ts.do(t, aliceToken, http.MethodDelete, path, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = ts.do(t, aliceToken, http.MethodGet, path, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHeartbeatWritesThrough(t *testing.T) {
	ts := newTestServer(t)
	aliceId, token := ts.register(t, "alice", 1)

	resp := ts.do(t, token, http.MethodPost, "/me/heartbeat", nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	lastActive, err := ts.svc.LastActive(t.Context(), aliceId)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), lastActive, 5*time.Second)
}
