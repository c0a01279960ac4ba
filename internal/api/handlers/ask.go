package handlers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/docsage-ai/docsage/internal/api"
	"github.com/docsage-ai/docsage/internal/domain"
	"github.com/docsage-ai/docsage/internal/service"
)

// AnswerService runs the question pipeline against a stream emitter.
type AnswerService interface {
	Answer(ctx context.Context, req *service.AskRequest, emit service.StreamEmitter) error
}

// AskHandler serves the streaming question endpoint.
type AskHandler struct {
	svc AnswerService
}

// NewAskHandler creates a new AskHandler instance
func NewAskHandler(svc AnswerService) *AskHandler {
	return &AskHandler{svc: svc}
}

// AskRequestBody is the JSON body of a question request.
type AskRequestBody struct {
	Query          string   `json:"query"`
	RewrittenQuery string   `json:"rewritten_query,omitempty"`
	Intent         string   `json:"intent,omitempty"`
	UserID         string   `json:"user_id"`
	OrgID          string   `json:"org_id,omitempty"`
	ProjectID      string   `json:"project_id,omitempty"`
	AppID          string   `json:"app_id,omitempty"`
	Mode           string   `json:"mode,omitempty"`
	IncludeApp     bool     `json:"include_app,omitempty"`
	IncludeOrg     bool     `json:"include_org,omitempty"`
	IncludeProject bool     `json:"include_project,omitempty"`
	IncludeUser    bool     `json:"include_user,omitempty"`
	SourceTypes    []string `json:"source_types,omitempty"`
	BoostFileIDs   []string `json:"boost_file_ids,omitempty"`
}

// Ask handles POST /ask. The response is a server-sent event stream with
// step, token, sources, error and done events; failures before the stream
// opens surface as plain JSON errors.
func (h *AskHandler) Ask(w http.ResponseWriter, r *http.Request) {
	var body AskRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	mode, err := domain.ParseGenerationMode(body.Mode)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	req := &service.AskRequest{
		Query:          strings.TrimSpace(body.Query),
		RewrittenQuery: body.RewrittenQuery,
		Intent:         body.Intent,
		UserID:         body.UserID,
		OrgID:          orgID(r, body.OrgID),
		ProjectID:      body.ProjectID,
		AppID:          body.AppID,
		Mode:           mode,
		IncludeApp:     body.IncludeApp,
		IncludeOrg:     body.IncludeOrg,
		IncludeProject: body.IncludeProject,
		IncludeUser:    body.IncludeUser,
		SourceTypes:    body.SourceTypes,
		BoostFileIDs:   body.BoostFileIDs,
	}
	if err := req.Validate(); err != nil {
		api.HandleError(w, err)
		return
	}

	stream, err := api.NewEventStream(w)
	if err != nil {
		api.Error(w, http.StatusInternalServerError, err.Error())
		return
	}

	if err := h.svc.Answer(r.Context(), req, &sseEmitter{stream: stream}); err != nil {
		// The error event already went to the client inside the pipeline.
		log.Printf("ask pipeline failed: %v", err)
	}
}

func orgID(r *http.Request, bodyOrgID string) string {
	if bodyOrgID != "" {
		return bodyOrgID
	}
	return r.Header.Get("X-Org-ID")
}

// sseEmitter adapts the pipeline's emitter contract onto an SSE stream.
type sseEmitter struct {
	stream *api.EventStream
}

func (e *sseEmitter) Step(label string) error {
	return e.stream.Send("step", map[string]string{"label": label})
}

func (e *sseEmitter) Token(text string) error {
	return e.stream.Send("token", map[string]string{"text": text})
}

func (e *sseEmitter) Sources(result *service.AnswerResult) error {
	return e.stream.Send("sources", result)
}

func (e *sseEmitter) Error(message string) error {
	return e.stream.Send("error", map[string]string{"message": message})
}

func (e *sseEmitter) Done() error {
	return e.stream.Send("done", map[string]bool{"ok": true})
}
