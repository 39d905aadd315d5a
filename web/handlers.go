package web

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"

	"f0oster/adsweep/approval"
	"f0oster/adsweep/chatbot"
	"f0oster/adsweep/workflow"

	"github.com/slack-go/slack"
	"go.uber.org/zap"
)

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return nil, false
	}
	return body, true
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// rejectionStatus maps a refused webhook onto its HTTP status.
func rejectionStatus(err error) int {
	if errors.Is(err, approval.ErrMalformedPayload) {
		return http.StatusBadRequest
	}
	return http.StatusUnauthorized
}

func (s *Server) handleActions(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}

	resolution, err := s.opts.Webhooks.HandleWebhook(r.Context(), r.Header, body)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, resolution)
	case approval.IsRejection(err):
		writeError(w, rejectionStatus(err), err.Error())
	default:
		s.logger.Error("webhook failed", zap.String("request_id", RequestIDFromContext(r.Context())), zap.Error(err))
		writeError(w, http.StatusBadGateway, "failed to resolve approval")
	}
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	if err := approval.VerifySignature(s.opts.SigningSecret, r.Header, body, s.opts.Now(), s.opts.MaxSkew); err != nil {
		s.logger.Warn("rejected chat event", zap.Error(err))
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/x-www-form-urlencoded" {
		r.Body = io.NopCloser(bytes.NewReader(body))
		cmd, err := slack.SlashCommandParse(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "malformed slash command")
			return
		}
		writeJSON(w, http.StatusOK, s.opts.Bot.HandleSlashCommand(r.Context(), cmd))
		return
	}

	resp, err := s.opts.Bot.HandleEvent(r.Context(), body)
	switch {
	case errors.Is(err, chatbot.ErrMalformedEvent):
		writeError(w, http.StatusBadRequest, err.Error())
	case err != nil:
		s.logger.Error("chat event failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, "failed to reply")
	case resp != nil:
		writeJSON(w, http.StatusOK, resp)
	default:
		w.WriteHeader(http.StatusOK)
	}
}

func (s *Server) handleInvoke(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	trigger, err := workflow.ParseTrigger(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.opts.Dispatcher.Dispatch(r.Context(), trigger)
	switch {
	case errors.Is(err, workflow.ErrUnknownAction), errors.Is(err, workflow.ErrMissingScanResults):
		writeError(w, http.StatusBadRequest, err.Error())
	case err != nil:
		s.logger.Error("invocation failed", zap.Stringer("action", trigger.Action), zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusOK, result)
	}
}
