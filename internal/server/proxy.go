package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/harvey-licitacoes/harvey/internal/app"
	"github.com/harvey-licitacoes/harvey/internal/chat"
	"github.com/harvey-licitacoes/harvey/internal/llm"
)

// Proxy messages.
const (
	MsgPromptRequired  = "O prompt é obrigatório."
	MsgProviderFailure = "Ocorreu um erro ao se comunicar com a IA."
	MsgMessageRequired = "Mensagem é obrigatória"
	MsgNoAPIKey        = "API key não configurada"
)

type draftTextRequest struct {
	Prompt string `json:"prompt"`
}

type draftTextResponse struct {
	TextoGerado string `json:"textoGerado"`
}

// handleGenerateText forwards a free-form prompt to the configured provider.
func (s *Server) handleGenerateText(w http.ResponseWriter, r *http.Request) {
	var req draftTextRequest
	if err := decodeJSON(r, &req); err != nil || strings.TrimSpace(req.Prompt) == "" {
		writeMessage(w, http.StatusBadRequest, MsgPromptRequired)
		return
	}
	text, err := s.app.GenerateText(r.Context(), req.Prompt)
	if err != nil {
		s.logger.Printf("generative provider: %v", err)
		writeMessage(w, http.StatusInternalServerError, MsgProviderFailure)
		return
	}
	writeJSON(w, http.StatusOK, draftTextResponse{TextoGerado: text})
}

type chatResponse struct {
	Response   string `json:"response"`
	ModelUsed  string `json:"model_used"`
	Timestamp  string `json:"timestamp"`
	TokensUsed int    `json:"tokens_used"`
}

type chatError struct {
	Error            string `json:"error"`
	FallbackResponse string `json:"fallback_response,omitempty"`
}

// handleChat answers a chat message with the Harvey system prompt. A request
// carrying its own API key is served by a one-off OpenAI client.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chat.Request
	if err := decodeJSON(r, &req); err != nil || strings.TrimSpace(req.Message) == "" {
		writeJSON(w, http.StatusBadRequest, chatError{Error: MsgMessageRequired})
		return
	}
	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = app.DefaultChatModel
	}

	var gen llm.Generator
	if key := strings.TrimSpace(req.APIKey); key != "" {
		g, err := s.newChatGenerator(llm.ProviderConfig{
			Provider: "openai",
			Endpoint: s.opts.OpenAIBaseURL,
			Model:    model,
			APIKey:   key,
		})
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, chatError{Error: err.Error(), FallbackResponse: chat.ErrorMessage})
			return
		}
		gen = g
	} else {
		gen = s.app.Generator()
	}
	if gen == nil {
		writeJSON(w, http.StatusInternalServerError, chatError{
			Error:            MsgNoAPIKey,
			FallbackResponse: "Desculpe, não consigo processar sua solicitação no momento. Por favor, configure a API key do OpenAI.",
		})
		return
	}

	resp, err := gen.Generate(r.Context(), llm.ChatRequest(req.Prompt, req.Message, model))
	if err != nil {
		s.logger.Printf("chat provider: %v", err)
		writeJSON(w, http.StatusInternalServerError, chatError{
			Error:            MsgProviderFailure,
			FallbackResponse: "Ocorreu um erro inesperado. Tente novamente mais tarde.",
		})
		return
	}
	used := resp.Model
	if used == "" {
		used = model
	}
	writeJSON(w, http.StatusOK, chatResponse{
		Response:   resp.Text,
		ModelUsed:  used,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		TokensUsed: resp.TokensUsed,
	})
}

type modelInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (s *Server) handleChatModels(w http.ResponseWriter, r *http.Request) {
	descriptions := map[string]modelInfo{
		"gpt-4":         {Name: "GPT-4", Description: "Modelo mais avançado, melhor para análises complexas"},
		"gpt-4-turbo":   {Name: "GPT-4 Turbo", Description: "Versão otimizada do GPT-4, mais rápida"},
		"gpt-3.5-turbo": {Name: "GPT-3.5 Turbo", Description: "Modelo rápido e eficiente para uso geral"},
	}
	models := make([]modelInfo, 0, len(llm.ChatModels))
	for _, id := range llm.ChatModels {
		m := descriptions[id]
		m.ID = id
		if m.Name == "" {
			m.Name = id
		}
		models = append(models, m)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"models": models})
}
