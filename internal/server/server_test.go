package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/harvey-licitacoes/harvey/internal/analysis"
	"github.com/harvey-licitacoes/harvey/internal/app"
	"github.com/harvey-licitacoes/harvey/internal/llm"
	"github.com/harvey-licitacoes/harvey/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var quiet = log.New(io.Discard, "", 0)

type stubGenerator struct {
	text string
	err  error
	reqs []llm.Request
}

func (g *stubGenerator) Generate(_ context.Context, req llm.Request) (*llm.Response, error) {
	g.reqs = append(g.reqs, req)
	if g.err != nil {
		return nil, g.err
	}
	return &llm.Response{Text: g.text, Model: req.Model, TokensUsed: 42}, nil
}

func newTestServer(t *testing.T, gen llm.Generator, opts Options) (*Server, *app.App) {
	t.Helper()
	st, err := store.NewStoreWithLogger(":memory:", quiet)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	appOpts := app.Options{Store: st, Analysis: &analysis.SimulatedBackend{}, Logger: quiet}
	if gen != nil {
		appOpts.Generator = gen
	}
	a, err := app.New(context.Background(), appOpts)
	require.NoError(t, err)

	opts.Logger = quiet
	s, err := New(a, opts)
	require.NoError(t, err)
	t.Cleanup(func() { s.limiter.Close() })
	return s, a
}

func do(t *testing.T, h http.Handler, method, path string, body interface{}, hdr ...string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestGenerateTextProxy(t *testing.T) {
	gen := &stubGenerator{text: "Peça gerada"}
	s, _ := newTestServer(t, gen, Options{})
	h := s.Handler()

	rec := do(t, h, http.MethodPost, "/api/gerar-documento-ia", map[string]string{"prompt": ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, MsgPromptRequired, decode(t, rec)["message"])

	rec = do(t, h, http.MethodPost, "/api/gerar-documento-ia", map[string]string{"prompt": "Elabore um recurso"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Peça gerada", decode(t, rec)["textoGerado"])
	assert.Equal(t, "Elabore um recurso", gen.reqs[0].Prompt)

	gen.err = errors.New("quota")
	rec = do(t, h, http.MethodPost, "/api/gerar-documento-ia", map[string]string{"prompt": "x"})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, MsgProviderFailure, decode(t, rec)["message"])
}

func TestGenerateTextWithoutProvider(t *testing.T) {
	s, _ := newTestServer(t, nil, Options{})
	rec := do(t, s.Handler(), http.MethodPost, "/api/gerar-documento-ia", map[string]string{"prompt": "x"})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestChatProxy(t *testing.T) {
	s, _ := newTestServer(t, nil, Options{OpenAIBaseURL: "http://openai.test/v1"})
	h := s.Handler()

	rec := do(t, h, http.MethodPost, "/api/chat", map[string]string{"message": " "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, MsgMessageRequired, decode(t, rec)["error"])

	rec = do(t, h, http.MethodPost, "/api/chat", map[string]string{"message": "oi"})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, MsgNoAPIKey, decode(t, rec)["error"])

	gen := &stubGenerator{text: "Olá, como posso ajudar?"}
	var got llm.ProviderConfig
	s.newChatGenerator = func(cfg llm.ProviderConfig) (llm.Generator, error) {
		got = cfg
		return gen, nil
	}
	rec = do(t, h, http.MethodPost, "/api/chat", map[string]string{"message": "oi", "apiKey": "sk-test"})
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "Olá, como posso ajudar?", body["response"])
	assert.Equal(t, app.DefaultChatModel, body["model_used"])
	assert.NotEmpty(t, body["timestamp"])

	assert.Equal(t, "sk-test", got.APIKey)
	assert.Equal(t, "http://openai.test/v1", got.Endpoint)
	require.Len(t, gen.reqs, 1)
	assert.Equal(t, llm.DefaultHarveyPrompt, gen.reqs[0].System)
	assert.Equal(t, llm.ChatMaxTokens, gen.reqs[0].MaxTokens)
}

func TestRemoteChatThroughServer(t *testing.T) {
	var upstreamPaths []string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upstreamPaths = append(upstreamPaths, r.URL.Path)
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"id":      "chatcmpl-test",
			"object":  "chat.completion",
			"created": 1700000000,
			"model":   "gpt-3.5-turbo",
			"choices": []map[string]interface{}{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]string{"role": "assistant", "content": "Prazo de cinco dias úteis."},
			}},
			"usage": map[string]int{"prompt_tokens": 7, "completion_tokens": 3, "total_tokens": 10},
		})
	}))
	defer upstream.Close()

	var h http.Handler
	harvey := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.ServeHTTP(w, r)
	}))
	defer harvey.Close()

	st, err := store.NewStoreWithLogger(":memory:", quiet)
	require.NoError(t, err)
	defer st.Close()
	a, err := app.New(context.Background(), app.Options{
		Store:        st,
		ChatEndpoint: harvey.URL + "/api/chat",
		Logger:       quiet,
	})
	require.NoError(t, err)

	s, err := New(a, Options{OpenAIBaseURL: upstream.URL + "/v1", Logger: quiet})
	require.NoError(t, err)
	h = s.Handler()

	ctx := context.Background()
	require.NoError(t, a.SaveAPIConfig(ctx, app.APIConfig{OpenAIAPIKey: "sk-test"}))
	reply, err := a.SendMessage(ctx, "Qual o prazo para recurso?")
	require.NoError(t, err)
	assert.Equal(t, "Prazo de cinco dias úteis.", reply.Text)
	assert.Equal(t, []string{"/v1/chat/completions"}, upstreamPaths)
}

func TestChatModels(t *testing.T) {
	s, _ := newTestServer(t, nil, Options{})
	rec := do(t, s.Handler(), http.MethodGet, "/api/chat/models", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	models := decode(t, rec)["models"].([]interface{})
	assert.Len(t, models, len(llm.ChatModels))
}

func TestBearerTokenAndRequestID(t *testing.T) {
	s, _ := newTestServer(t, nil, Options{Token: "s3cret"})
	h := s.Handler()

	rec := do(t, h, http.MethodGet, "/api/cases", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = do(t, h, http.MethodGet, "/api/cases", nil, "Authorization", "Bearer s3cret", "X-Request-ID", "req-1")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "req-1", rec.Header().Get("X-Request-ID"))

	rec = do(t, h, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimit(t *testing.T) {
	s, _ := newTestServer(t, nil, Options{RPS: 1, Burst: 1})
	h := s.Handler()
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/api/dashboard", nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, do(t, h, http.MethodGet, "/api/dashboard", nil).Code)
}

func TestCaseLifecycleOverHTTP(t *testing.T) {
	s, a := newTestServer(t, nil, Options{})
	h := s.Handler()

	rec := do(t, h, http.MethodPost, "/api/cases", map[string]string{"numero": "", "objeto": "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/cases", map[string]string{"numero": "999/2024", "objeto": "Teste"})
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode(t, rec)["case"].(map[string]interface{})
	id := created["id"].(string)

	rec = do(t, h, http.MethodGet, "/api/cases?q=teste", nil)
	found := decode(t, rec)["cases"].([]interface{})
	require.Len(t, found, 1)

	rec = do(t, h, http.MethodPost, "/api/cases/"+id+"/analysis", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "analise", decode(t, rec)["section"])

	rec = do(t, h, http.MethodGet, "/api/views", nil)
	views := decode(t, rec)
	form := views["analysis"].(map[string]interface{})["formText"].(string)
	assert.Contains(t, form, "Processo: 999/2024")

	rec = do(t, h, http.MethodGet, "/api/cases/current", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/cases/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/sections/financeiro", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "analise", a.ActiveSection())
}

func TestAnalysisEndpoints(t *testing.T) {
	s, a := newTestServer(t, nil, Options{})
	h := s.Handler()

	rec := do(t, h, http.MethodPost, "/api/analysis", map[string]string{"companyData": ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, analysis.MissingInputMessage, decode(t, rec)["message"])

	require.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/api/cases/1/open", nil).Code)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "edital.pdf")
	require.NoError(t, err)
	_, err = fw.Write([]byte("%PDF-1.4"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/analysis/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	up := httptest.NewRecorder()
	h.ServeHTTP(up, req)
	require.Equal(t, http.StatusAccepted, up.Code, up.Body.String())
	assert.Equal(t, "upload", decode(t, up)["kind"])

	a.WaitIdle()
	rec = do(t, h, http.MethodGet, "/api/analysis/results", nil)
	results := decode(t, rec)["results"].([]interface{})
	require.Len(t, results, 1)
	assert.Equal(t, "1", results[0].(map[string]interface{})["caseId"])

	rec = do(t, h, http.MethodPost, "/api/analysis/results", map[string]string{"caseId": "2", "content": "Recurso", "type": "parecer"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = do(t, h, http.MethodPost, "/api/analysis/results", map[string]string{"caseId": "2", "content": "Recurso", "type": "recurso"})
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/dashboard", nil)
	stats := decode(t, rec)
	assert.EqualValues(t, 1, stats["editaisAnalisados"])
	assert.EqualValues(t, 1, stats["defesasElaboradas"])
}

func TestWorkflowAndSessionEndpoints(t *testing.T) {
	s, _ := newTestServer(t, nil, Options{})
	h := s.Handler()

	assert.Equal(t, http.StatusConflict, do(t, h, http.MethodPost, "/api/workflow/advance", nil).Code)
	rec := do(t, h, http.MethodPost, "/api/workflow", map[string]interface{}{
		"steps": []map[string]string{{"name": "Cadastro"}, {"name": "Relatório", "section": "relatorios"}},
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = do(t, h, http.MethodPost, "/api/workflow/advance", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "relatorios", decode(t, rec)["section"])

	rec = do(t, h, http.MethodPost, "/api/session/register", map[string]string{
		"name": "Ana", "email": "ana@x.com", "password": "1", "confirmPassword": "2",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = do(t, h, http.MethodPost, "/api/session/login", map[string]string{"email": "ana@x.com", "password": "1"})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = do(t, h, http.MethodGet, "/api/session", nil)
	user := decode(t, rec)["user"].(map[string]interface{})
	assert.Equal(t, "ana", user["name"])
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/api/session/logout", nil).Code)
}

func TestConfigMessagesAndDrafts(t *testing.T) {
	gen := &stubGenerator{text: "Esboço"}
	s, _ := newTestServer(t, gen, Options{})
	h := s.Handler()

	rec := do(t, h, http.MethodPut, "/api/config/api", map[string]string{"openaiApiKey": "sk", "model": ""})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, app.DefaultChatModel, decode(t, rec)["model"])

	rec = do(t, h, http.MethodPut, "/api/config/templates/recurso", map[string]string{"body": "Modelo"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/notifications", nil)
	notes := decode(t, rec)["notifications"].([]interface{})
	assert.NotEmpty(t, notes)

	rec = do(t, h, http.MethodPost, "/api/messages", map[string]string{"message": "olá"})
	require.Equal(t, http.StatusOK, rec.Code)
	reply := decode(t, rec)["reply"].(map[string]interface{})
	assert.True(t, strings.HasPrefix(reply["text"].(string), "Olá! Sou o Harvey"))

	rec = do(t, h, http.MethodDelete, "/api/messages", nil)
	assert.Len(t, decode(t, rec)["messages"].([]interface{}), 1)

	rec = do(t, h, http.MethodPost, "/api/drafts", map[string]string{"tipoPeca": "Contrarrazões", "fatos": "", "pontos": "p"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = do(t, h, http.MethodPost, "/api/drafts", map[string]string{"tipoPeca": "Contrarrazões", "fatos": "f", "pontos": "p"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Esboço", decode(t, rec)["textoGerado"])

	rec = do(t, h, http.MethodGet, "/api/activity?limit=5", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, decode(t, rec)["activity"])
}
