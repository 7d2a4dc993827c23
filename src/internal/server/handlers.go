package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/admi-n/auditgpt/src/internal"
	"github.com/admi-n/auditgpt/src/internal/handler"
	"github.com/admi-n/auditgpt/src/internal/monitor"
	"github.com/admi-n/auditgpt/src/internal/report"
)

// ErrorResponse 错误响应体
type ErrorResponse struct {
	Error string `json:"error"`
}

type addContractRequest struct {
	Address string `json:"address"`
	Name    string `json:"name"`
}

var contentTypes = map[string]string{
	"md":   "text/markdown; charset=utf-8",
	"json": "application/json",
	"yaml": "application/yaml",
	"txt":  "text/plain; charset=utf-8",
}

type Handler struct {
	jobs    Jobs
	monitor Monitor
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) StartJob(w http.ResponseWriter, r *http.Request) {
	var req handler.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Mode = handler.Mode(strings.ToUpper(string(req.Mode)))

	if _, err := h.jobs.Start(r.Context(), req); err != nil {
		switch {
		case errors.Is(err, handler.ErrJobRunning):
			writeError(w, r, http.StatusConflict, err.Error())
		case errors.Is(err, internal.ErrValidation):
			writeError(w, r, http.StatusBadRequest, err.Error())
		default:
			writeError(w, r, http.StatusInternalServerError, err.Error())
		}
		return
	}
	writeJSON(w, r, http.StatusAccepted, h.jobs.Snapshot())
}

func (h *Handler) CurrentJob(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, h.jobs.Snapshot())
}

func (h *Handler) ResetJob(w http.ResponseWriter, r *http.Request) {
	if err := h.jobs.Reset(); err != nil {
		writeError(w, r, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, r, http.StatusOK, h.jobs.Snapshot())
}

func (h *Handler) JobReport(w http.ResponseWriter, r *http.Request) {
	snap := h.jobs.Snapshot()
	if snap.State != handler.StateResults || snap.Result == nil {
		writeError(w, r, http.StatusNotFound, "no audit report available")
		return
	}

	format := r.URL.Query().Get("format")
	if format == "" {
		format = "json"
	}
	gen, err := report.NewGenerator(format)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	body, err := gen.Generate(snap.Result)
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Str("format", format).Msg("failed to render report")
		writeError(w, r, http.StatusInternalServerError, "failed to render report")
		return
	}

	w.Header().Set("Content-Type", contentTypes[gen.Extension()])
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(body)); err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("failed to write report")
	}
}

func (h *Handler) ListContracts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, h.monitor.Contracts())
}

func (h *Handler) AddContract(w http.ResponseWriter, r *http.Request) {
	var req addContractRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	c, err := h.monitor.Add(req.Address, req.Name)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, internal.ErrValidation) {
			status = http.StatusBadRequest
		}
		writeError(w, r, status, err.Error())
		return
	}
	writeJSON(w, r, http.StatusCreated, c)
}

func (h *Handler) RemoveContract(w http.ResponseWriter, r *http.Request) {
	if !h.monitor.Remove(chi.URLParam(r, "address")) {
		writeError(w, r, http.StatusNotFound, "contract not monitored")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ToggleContract(w http.ResponseWriter, r *http.Request) {
	c, ok := h.monitor.Toggle(chi.URLParam(r, "address"))
	if !ok {
		writeError(w, r, http.StatusNotFound, "contract not monitored")
		return
	}
	writeJSON(w, r, http.StatusOK, c)
}

func (h *Handler) Feed(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, h.monitor.Feed())
}

func (h *Handler) Chart(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, h.monitor.Chart())
}

func (h *Handler) GetAlerts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, h.monitor.AlertConfig())
}

func (h *Handler) PutAlerts(w http.ResponseWriter, r *http.Request) {
	var cfg monitor.AlertConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	h.monitor.SetAlertConfig(cfg)
	writeJSON(w, r, http.StatusOK, h.monitor.AlertConfig())
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, r, status, ErrorResponse{Error: msg})
}
