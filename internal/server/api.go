package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/harvey-licitacoes/harvey/internal/analysis"
	"github.com/harvey-licitacoes/harvey/internal/app"
	"github.com/harvey-licitacoes/harvey/internal/cases"
	"github.com/harvey-licitacoes/harvey/internal/llm"
	"github.com/harvey-licitacoes/harvey/internal/nav"
	"github.com/harvey-licitacoes/harvey/internal/session"
	"github.com/harvey-licitacoes/harvey/internal/state"
)

func (s *Server) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", s.handleHealth)

	mux.HandleFunc("POST /api/gerar-documento-ia", s.handleGenerateText)
	mux.HandleFunc("POST /api/chat", s.handleChat)
	mux.HandleFunc("GET /api/chat/models", s.handleChatModels)

	mux.HandleFunc("GET /api/cases", s.handleListCases)
	mux.HandleFunc("POST /api/cases", s.handleCreateCase)
	mux.HandleFunc("GET /api/cases/current", s.handleCurrentCase)
	mux.HandleFunc("GET /api/cases/{ref}", s.handleGetCase)
	mux.HandleFunc("POST /api/cases/{ref}/open", s.handleOpenCase)
	mux.HandleFunc("POST /api/cases/{ref}/analysis", s.handleTransfer(nav.Analise))
	mux.HandleFunc("POST /api/cases/{ref}/reports", s.handleTransfer(nav.Relatorios))

	mux.HandleFunc("GET /api/sections", s.handleSections)
	mux.HandleFunc("POST /api/sections/{name}", s.handleSwitchSection)
	mux.HandleFunc("GET /api/dashboard", s.handleDashboard)
	mux.HandleFunc("GET /api/views", s.handleViews)

	mux.HandleFunc("POST /api/analysis", s.handleAnalyze)
	mux.HandleFunc("POST /api/analysis/upload", s.handleUpload)
	mux.HandleFunc("GET /api/analysis/results", s.handleResults)
	mux.HandleFunc("POST /api/analysis/results", s.handleSaveResult)

	mux.HandleFunc("GET /api/workflow", s.handleWorkflow)
	mux.HandleFunc("POST /api/workflow", s.handleRecordWorkflow)
	mux.HandleFunc("POST /api/workflow/advance", s.handleAdvanceWorkflow)

	mux.HandleFunc("GET /api/session", s.handleSession)
	mux.HandleFunc("POST /api/session/login", s.handleLogin)
	mux.HandleFunc("POST /api/session/register", s.handleRegister)
	mux.HandleFunc("POST /api/session/logout", s.handleLogout)

	mux.HandleFunc("GET /api/config/api", s.handleGetAPIConfig)
	mux.HandleFunc("PUT /api/config/api", s.handleSaveAPIConfig)
	mux.HandleFunc("GET /api/config/prompt", s.handleGetPrompt)
	mux.HandleFunc("PUT /api/config/prompt", s.handleSavePrompt)
	mux.HandleFunc("GET /api/config/templates", s.handleTemplates)
	mux.HandleFunc("PUT /api/config/templates/{name}", s.handleSaveTemplate)

	mux.HandleFunc("GET /api/notifications", s.handleNotifications)
	mux.HandleFunc("GET /api/messages", s.handleMessages)
	mux.HandleFunc("POST /api/messages", s.handleSendMessage)
	mux.HandleFunc("DELETE /api/messages", s.handleClearMessages)
	mux.HandleFunc("POST /api/drafts", s.handleDraft)
	mux.HandleFunc("POST /api/reports", s.handleReport)
	mux.HandleFunc("GET /api/activity", s.handleActivity)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]string{"status": "ok"}
	if err := s.app.Bus().HealthCheck(r.Context()); err != nil {
		status["bus"] = err.Error()
	}
	if g := s.app.Generator(); g != nil {
		if err := llm.TryHealthCheck(r.Context(), g); err != nil {
			status["provider"] = err.Error()
		}
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleListCases(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"cases": s.app.SearchCases(r.URL.Query().Get("q"))})
}

func (s *Server) handleCreateCase(w http.ResponseWriter, r *http.Request) {
	var f cases.Fields
	if err := decodeJSON(r, &f); err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}
	c, err := s.app.CreateCase(r.Context(), f)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"case": c})
}

func (s *Server) handleCurrentCase(w http.ResponseWriter, r *http.Request) {
	c, ok := s.app.CurrentCase()
	if !ok {
		writeMessage(w, http.StatusNotFound, "Nenhum caso selecionado.")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"case": c})
}

func (s *Server) handleGetCase(w http.ResponseWriter, r *http.Request) {
	c, err := s.app.Case(r.PathValue("ref"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"case": c})
}

func (s *Server) handleOpenCase(w http.ResponseWriter, r *http.Request) {
	c, err := s.app.OpenCaseDetails(r.Context(), r.PathValue("ref"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"case": c})
}

func (s *Server) handleTransfer(section string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		transfer := s.app.TransferCaseToAnalysis
		if section == nav.Relatorios {
			transfer = s.app.TransferCaseToReports
		}
		c, err := transfer(r.Context(), r.PathValue("ref"))
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"case": c, "section": s.app.ActiveSection()})
	}
}

func (s *Server) handleSections(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"sections": s.app.Sections(), "active": s.app.ActiveSection()})
}

func (s *Server) handleSwitchSection(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if !s.app.SwitchSection(r.Context(), name) {
		writeMessage(w, http.StatusNotFound, fmt.Sprintf("Seção desconhecida: %s", name))
		return
	}
	writeJSON(w, http.StatusOK, s.app.Views())
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.app.DashboardStats())
}

func (s *Server) handleViews(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.app.Views())
}

type jobResponse struct {
	Job   string         `json:"job"`
	Kind  analysis.Kind  `json:"kind"`
	State analysis.State `json:"state"`
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CompanyData string `json:"companyData"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}
	job, err := s.app.AnalyzeEdital(r.Context(), req.CompanyData)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, jobResponse{Job: job.ID, Kind: job.Kind, State: job.State()})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(s.opts.MaxBodyBytes); err != nil {
		writeMessage(w, http.StatusBadRequest, analysis.MissingInputMessage)
		return
	}
	file, hdr, err := r.FormFile("file")
	if err != nil {
		writeMessage(w, http.StatusBadRequest, analysis.MissingInputMessage)
		return
	}
	defer file.Close()
	content, err := io.ReadAll(file)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "failed to read file")
		return
	}
	job, err := s.app.AnalyzeUpload(r.Context(), hdr.Filename, content)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, jobResponse{Job: job.ID, Kind: job.Kind, State: job.State()})
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"results": s.app.AnalysisResults()})
}

func (s *Server) handleSaveResult(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CaseID  string             `json:"caseId"`
		Content string             `json:"content"`
		Type    state.AnalysisType `json:"type"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := s.app.SaveAnalysisResult(r.Context(), req.CaseID, req.Content, req.Type)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *Server) handleWorkflow(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.app.Workflow())
}

func (s *Server) handleRecordWorkflow(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Steps []state.WorkflowStep `json:"steps"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.app.RecordWorkflow(r.Context(), req.Steps); err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, s.app.Workflow())
}

func (s *Server) handleAdvanceWorkflow(w http.ResponseWriter, r *http.Request) {
	step, advanced, err := s.app.AdvanceWorkflow(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"step":     step,
		"advanced": advanced,
		"workflow": s.app.Workflow(),
		"section":  s.app.ActiveSection(),
	})
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	u, ok := s.app.Sessions().Current()
	if !ok {
		writeJSON(w, http.StatusOK, map[string]interface{}{"user": nil})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"user": u})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}
	u, err := s.app.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"user": u, "message": session.MsgLoginOK})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name            string `json:"name"`
		Email           string `json:"email"`
		Password        string `json:"password"`
		ConfirmPassword string `json:"confirmPassword"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}
	u, err := s.app.Register(r.Context(), req.Name, req.Email, req.Password, req.ConfirmPassword)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"user": u, "message": session.MsgRegisterOK})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.app.Logout(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	writeMessage(w, http.StatusOK, session.MsgLogoutOK)
}

func (s *Server) handleGetAPIConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.app.APIConfig())
}

func (s *Server) handleSaveAPIConfig(w http.ResponseWriter, r *http.Request) {
	var cfg app.APIConfig
	if err := decodeJSON(r, &cfg); err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.app.SaveAPIConfig(r.Context(), cfg); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.app.APIConfig())
}

func (s *Server) handleGetPrompt(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"prompt": s.app.Prompt()})
}

func (s *Server) handleSavePrompt(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Prompt string `json:"prompt"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.app.SavePrompt(r.Context(), req.Prompt); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"prompt": s.app.Prompt(), "message": app.MsgPromptSaved})
}

func (s *Server) handleTemplates(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"templates": s.app.Templates()})
}

func (s *Server) handleSaveTemplate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Body string `json:"body"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.app.SaveTemplate(r.Context(), r.PathValue("name"), req.Body); err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"templates": s.app.Templates()})
}

func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"notifications": s.app.Notifier().Active()})
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"messages": s.app.Messages(), "busy": s.app.ChatBusy()})
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Message string `json:"message"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}
	reply, err := s.app.SendMessage(r.Context(), req.Message)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"reply": reply})
}

func (s *Server) handleClearMessages(w http.ResponseWriter, r *http.Request) {
	s.app.ClearChat(r.Context())
	writeJSON(w, http.StatusOK, map[string]interface{}{"messages": s.app.Messages()})
}

func (s *Server) handleDraft(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TipoPeca string `json:"tipoPeca"`
		Fatos    string `json:"fatos"`
		Pontos   string `json:"pontos"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}
	text, err := s.app.GenerateDraft(r.Context(), req.TipoPeca, req.Fatos, req.Pontos)
	if err != nil {
		if errors.Is(err, llm.ErrDraftFields) {
			writeMessage(w, http.StatusBadRequest, llm.DraftFieldsMessage)
			return
		}
		s.logger.Printf("draft: %v", err)
		writeMessage(w, http.StatusBadGateway, MsgProviderFailure)
		return
	}
	writeJSON(w, http.StatusOK, draftTextResponse{TextoGerado: text})
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	s.app.GenerateReport(r.Context())
	writeMessage(w, http.StatusAccepted, app.MsgReportPending)
}

func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeMessage(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	entries, err := s.app.Activity(r.Context(), limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"activity": entries})
}

// statusFor maps application errors onto HTTP statuses.
func statusFor(err error) int {
	var caseErr *cases.ValidationError
	var analysisErr *analysis.ValidationError
	switch {
	case errors.As(err, &caseErr), errors.As(err, &analysisErr),
		errors.Is(err, app.ErrEmptyMessage), errors.Is(err, session.ErrMissingFields),
		errors.Is(err, session.ErrPasswordMismatch), errors.Is(err, state.ErrUnknownType),
		errors.Is(err, llm.ErrDraftFields):
		return http.StatusBadRequest
	case errors.Is(err, app.ErrNotFound), errors.Is(err, state.ErrUnknownCase):
		return http.StatusNotFound
	case errors.Is(err, state.ErrNoWorkflow), errors.Is(err, app.ErrChatBusy):
		return http.StatusConflict
	case errors.Is(err, app.ErrNoGenerator):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError responds with the mapped status. Client errors carry their own
// message; server errors are logged and reported generically.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		s.logger.Printf("request failed: %v", err)
		writeMessage(w, code, http.StatusText(code))
		return
	}
	writeMessage(w, code, err.Error())
}

func decodeJSON(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}

func writeMessage(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"message": msg})
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
