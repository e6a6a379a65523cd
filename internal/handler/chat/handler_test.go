package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/promptdesk/internal/model/catalog"
	"github.com/zhouzirui/promptdesk/internal/model/chat"
	"github.com/zhouzirui/promptdesk/internal/service/ai"
	chatservice "github.com/zhouzirui/promptdesk/internal/service/chat"
	"github.com/zhouzirui/promptdesk/pkg/utils"
)

type fakeBackend struct {
	calls int
	err   error
}

func (f *fakeBackend) factory(_ context.Context, _ string) (ai.Generator, error) {
	return ai.GeneratorFunc(func(_ context.Context, modelID, prompt string) (string, error) {
		f.calls++
		if f.err != nil {
			return "", f.err
		}
		return "ECHO:" + prompt, nil
	}), nil
}

func setupRouter() (*chi.Mux, *chatservice.Service, *fakeBackend) {
	backend := &fakeBackend{}
	chatSvc := chatservice.NewService(backend.factory)
	handler := New(chatSvc, catalog.NewMemoryStore(catalog.Seed(catalog.ProviderGemini)))

	r := chi.NewRouter()
	handler.RegisterRoutes(r)
	return r, chatSvc, backend
}

func doJSON(t *testing.T, r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		require.NoError(t, err)
	}

	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func createSession(t *testing.T, r http.Handler) chat.Session {
	t.Helper()
	resp := doJSON(t, r, http.MethodPost, "/session", nil)
	require.Equal(t, http.StatusCreated, resp.Code)

	var session chat.Session
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &session))
	require.NotEmpty(t, session.ID)
	return session
}

func decodeError(t *testing.T, resp *httptest.ResponseRecorder) utils.ErrorBody {
	t.Helper()
	var body utils.ErrorBody
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	return body
}

func TestCreateSessionUsesDefaultModel(t *testing.T) {
	r, chatSvc, _ := setupRouter()
	session := createSession(t, r)

	settings, err := chatSvc.Settings(context.Background(), session.ID)
	require.NoError(t, err)
	assert.Equal(t, "gemini-2.5-flash", settings.ModelID)
}

func TestSubmitAppendsTurns(t *testing.T) {
	r, _, _ := setupRouter()
	session := createSession(t, r)

	resp := doJSON(t, r, http.MethodPost, "/session/"+session.ID+"/submit", map[string]string{
		"prompt": "hello",
		"apiKey": "key",
	})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	var body struct {
		Turns []chat.Turn `json:"turns"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	require.Len(t, body.Turns, 2)
	assert.Equal(t, chat.RoleUser, body.Turns[0].Role)
	assert.Equal(t, "hello", body.Turns[0].Content)
	assert.Equal(t, chat.RoleBot, body.Turns[1].Role)
	assert.Equal(t, "ECHO:hello", body.Turns[1].Content)
}

func TestSubmitMissingCredential(t *testing.T) {
	r, _, backend := setupRouter()
	session := createSession(t, r)

	resp := doJSON(t, r, http.MethodPost, "/session/"+session.ID+"/submit", map[string]string{"prompt": "hello"})
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, "missing_credential", decodeError(t, resp).Code)
	assert.Equal(t, 0, backend.calls)
}

func TestSubmitEmptyPrompt(t *testing.T) {
	r, _, backend := setupRouter()
	session := createSession(t, r)

	resp := doJSON(t, r, http.MethodPost, "/session/"+session.ID+"/submit", map[string]string{"prompt": "   ", "apiKey": "key"})
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, "empty_prompt", decodeError(t, resp).Code)
	assert.Equal(t, 0, backend.calls)
}

func TestSubmitUnknownModel(t *testing.T) {
	r, _, backend := setupRouter()
	session := createSession(t, r)

	resp := doJSON(t, r, http.MethodPost, "/session/"+session.ID+"/submit", map[string]string{
		"prompt": "hello", "apiKey": "key", "model": "gpt-2",
	})
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, "unknown_model", decodeError(t, resp).Code)
	assert.Equal(t, 0, backend.calls)
}

func TestSubmitExternalFailureKeepsHistory(t *testing.T) {
	r, _, backend := setupRouter()
	session := createSession(t, r)
	backend.err = errors.New("403 permission denied")

	resp := doJSON(t, r, http.MethodPost, "/session/"+session.ID+"/submit", map[string]string{"prompt": "hello", "apiKey": "key"})
	assert.Equal(t, http.StatusBadGateway, resp.Code)
	body := decodeError(t, resp)
	assert.Equal(t, "external_service", body.Code)
	assert.Equal(t, "authentication", body.Kind)
	assert.Equal(t, "403 permission denied", body.Error)

	turns := doJSON(t, r, http.MethodGet, "/session/"+session.ID+"/turns", nil)
	assert.JSONEq(t, `{"turns":[]}`, turns.Body.String())
}

func TestSubmitUnknownSession(t *testing.T) {
	r, _, _ := setupRouter()

	resp := doJSON(t, r, http.MethodPost, "/session/missing/submit", map[string]string{"prompt": "hello", "apiKey": "key"})
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestSubmitInvalidBody(t *testing.T) {
	r, _, _ := setupRouter()
	session := createSession(t, r)

	req := httptest.NewRequest(http.MethodPost, "/session/"+session.ID+"/submit", bytes.NewReader([]byte("{")))
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestUpdateSettingsHidesKey(t *testing.T) {
	r, _, _ := setupRouter()
	session := createSession(t, r)

	resp := doJSON(t, r, http.MethodPut, "/session/"+session.ID+"/settings", map[string]string{
		"apiKey": "secret-key", "model": "gemini-1.5-pro",
	})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.NotContains(t, resp.Body.String(), "secret-key")

	var view map[string]any
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &view))
	assert.Equal(t, "gemini-1.5-pro", view["model"])
	assert.Equal(t, true, view["hasApiKey"])

	// the stored key is used when the submission omits it
	submit := doJSON(t, r, http.MethodPost, "/session/"+session.ID+"/submit", map[string]string{"prompt": "hi"})
	assert.Equal(t, http.StatusOK, submit.Code)
}

func TestDeleteSession(t *testing.T) {
	r, _, _ := setupRouter()
	session := createSession(t, r)

	resp := doJSON(t, r, http.MethodDelete, "/session/"+session.ID, nil)
	assert.Equal(t, http.StatusNoContent, resp.Code)

	resp = doJSON(t, r, http.MethodGet, "/session/"+session.ID, nil)
	assert.Equal(t, http.StatusNotFound, resp.Code)
}
