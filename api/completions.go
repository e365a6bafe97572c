package api

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"

	"github.com/docprompt/docprompt/internal/completions"
	"github.com/docprompt/docprompt/internal/log"
	"github.com/docprompt/docprompt/internal/openai"
)

// Request body bounds.
const (
	MaxSectionsMatchCount = 30
	MaxRequestBodyBytes   = 1 << 20
)

// DataHeader carries the response id and references of a completion as
// base64-encoded JSON, on both the streamed and non-streamed paths.
const DataHeader = "x-docprompt-data"

// CompletionsHandler answers prompt requests.
type CompletionsHandler struct {
	orch   *completions.Orchestrator
	logger log.Logger
}

// NewCompletionsHandler creates a completions handler.
func NewCompletionsHandler(orch *completions.Orchestrator, logger log.Logger) *CompletionsHandler {
	return &CompletionsHandler{orch: orch, logger: logger}
}

// RegisterRoutes registers completion routes on the given mux.
func (h *CompletionsHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/completions/{project}", h.complete)
}

// completionsRequest is the request body. Field names are accepted in both
// snake_case and camelCase, and boolean flags additionally accept the string
// and numeric forms clients tend to send.
type completionsRequest struct {
	Prompt                 string
	Model                  string
	IDontKnowMessage       string
	SystemPrompt           string
	ContextTag             string
	PromptTag              string
	IDontKnowTag           string
	DoNotInjectContext     bool
	DoNotInjectPrompt      bool
	SectionsMatchCount     int
	SectionsMatchThreshold float64
	Temperature            *float64
	TopP                   *float64
	FrequencyPenalty       *float64
	PresencePenalty        *float64
	MaxTokens              *int
	Stream                 bool
	ExcludeFromInsights    bool
	Redact                 bool
	IncludeDebugInfo       bool
}

func (req *completionsRequest) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	req.Prompt = pickString(raw, "prompt")
	req.Model = pickString(raw, "model")
	req.IDontKnowMessage = pickString(raw, "i_dont_know_message", "iDontKnowMessage")
	req.SystemPrompt = pickString(raw, "system_prompt", "systemPrompt")
	req.ContextTag = pickString(raw, "context_tag", "contextTag")
	req.PromptTag = pickString(raw, "prompt_tag", "promptTag")
	req.IDontKnowTag = pickString(raw, "idk_tag", "idkTag")
	req.DoNotInjectContext = pickTruthy(raw, "do_not_inject_context", "doNotInjectContext")
	req.DoNotInjectPrompt = pickTruthy(raw, "do_not_inject_prompt", "doNotInjectPrompt")
	req.SectionsMatchCount = pickInt(raw, "sections_match_count", "sectionsMatchCount")
	req.SectionsMatchThreshold = pickFloat(raw, "sections_match_threshold", "sectionsMatchThreshold")
	req.Temperature = pickFloatPtr(raw, "temperature")
	req.TopP = pickFloatPtr(raw, "top_p", "topP")
	req.FrequencyPenalty = pickFloatPtr(raw, "frequency_penalty", "frequencyPenalty")
	req.PresencePenalty = pickFloatPtr(raw, "presence_penalty", "presencePenalty")
	req.MaxTokens = pickIntPtr(raw, "max_tokens", "maxTokens")
	req.Stream = pickTruthy(raw, "stream")
	req.ExcludeFromInsights = pickTruthy(raw, "exclude_from_insights", "excludeFromInsights")
	req.Redact = pickTruthy(raw, "redact")
	req.IncludeDebugInfo = pickTruthy(raw, "include_debug_info", "includeDebugInfo")
	return nil
}

// Validate checks the request bounds.
func (req completionsRequest) Validate() error {
	return validation.ValidateStruct(&req,
		validation.Field(&req.Prompt, validation.Required),
		validation.Field(&req.SectionsMatchCount, validation.Min(0), validation.Max(MaxSectionsMatchCount)),
		validation.Field(&req.SectionsMatchThreshold, validation.Min(0.0), validation.Max(1.0)),
		validation.Field(&req.Temperature, validation.Min(0.0), validation.Max(2.0)),
		validation.Field(&req.TopP, validation.Min(0.0), validation.Max(1.0)),
		validation.Field(&req.MaxTokens, validation.Min(1)),
	)
}

func (req completionsRequest) params() openai.CompletionParams {
	params := openai.DefaultCompletionParams()
	if req.Temperature != nil {
		params.Temperature = float32(*req.Temperature)
	}
	if req.TopP != nil {
		params.TopP = float32(*req.TopP)
	}
	if req.FrequencyPenalty != nil {
		params.FrequencyPenalty = float32(*req.FrequencyPenalty)
	}
	if req.PresencePenalty != nil {
		params.PresencePenalty = float32(*req.PresencePenalty)
	}
	if req.MaxTokens != nil {
		params.MaxTokens = *req.MaxTokens
	}
	return params
}

func (h *CompletionsHandler) complete(w http.ResponseWriter, r *http.Request) {
	projectID, err := uuid.Parse(r.PathValue("project"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_project", "project id must be a UUID")
		return
	}

	var req completionsRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxRequestBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "request body must be valid JSON")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	creq := completions.Request{
		ProjectID: projectID,
		Prompt:    req.Prompt,
		Template:  req.SystemPrompt,
		TemplateOptions: completions.TemplateOptions{
			ContextTag:         req.ContextTag,
			PromptTag:          req.PromptTag,
			IDontKnowTag:       req.IDontKnowTag,
			DoNotInjectContext: req.DoNotInjectContext,
			DoNotInjectPrompt:  req.DoNotInjectPrompt,
		},
		IDontKnowMessage:    req.IDontKnowMessage,
		Model:               req.Model,
		Params:              req.params(),
		Threshold:           req.SectionsMatchThreshold,
		Count:               req.SectionsMatchCount,
		Credential:          bearerToken(r),
		ExcludeFromInsights: req.ExcludeFromInsights,
		Redact:              req.Redact,
		Debug:               req.IncludeDebugInfo,
	}

	if !req.Stream {
		resp, err := h.orch.Respond(r.Context(), creq)
		if err != nil {
			h.writeCompletionError(w, err)
			return
		}
		h.setDataHeader(w, resp.ResponseID, resp.References)
		writeJSON(w, http.StatusOK, resp)
		return
	}

	stream, err := h.orch.StartStream(r.Context(), creq)
	if err != nil {
		h.writeCompletionError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	h.setDataHeader(w, stream.QueryID, stream.References)
	w.WriteHeader(http.StatusOK)

	if err := stream.Pipe(r.Context(), w); err != nil {
		// Headers are gone; nothing to send the client but the log.
		h.logger.Error("completion stream aborted", "query", stream.QueryID, "error", err)
	}
}

// setDataHeader exposes the query record id and the references on the data
// header so both streamed and non-streamed consumers get them without parsing
// the body.
func (h *CompletionsHandler) setDataHeader(w http.ResponseWriter, responseID uuid.UUID, references []completions.FileSectionReference) {
	data, err := json.Marshal(map[string]any{
		"responseId": responseID,
		"references": references,
	})
	if err != nil {
		h.logger.Error("marshal data header failed", "error", err)
		return
	}
	w.Header().Set(DataHeader, base64.StdEncoding.EncodeToString(data))
}

func (h *CompletionsHandler) writeCompletionError(w http.ResponseWriter, err error) {
	var reqErr *completions.RequestError
	if errors.As(err, &reqErr) {
		writeError(w, reqErr.Status, "completion_failed", reqErr.Message)
		return
	}
	h.logger.Error("completion failed", "error", err)
	writeError(w, http.StatusInternalServerError, "internal_error", "")
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}

func pickRaw(raw map[string]json.RawMessage, names ...string) (json.RawMessage, bool) {
	for _, name := range names {
		if v, ok := raw[name]; ok {
			return v, true
		}
	}
	return nil, false
}

func pickString(raw map[string]json.RawMessage, names ...string) string {
	v, ok := pickRaw(raw, names...)
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return ""
	}
	return s
}

func pickFloat(raw map[string]json.RawMessage, names ...string) float64 {
	if f := pickFloatPtr(raw, names...); f != nil {
		return *f
	}
	return 0
}

func pickFloatPtr(raw map[string]json.RawMessage, names ...string) *float64 {
	v, ok := pickRaw(raw, names...)
	if !ok {
		return nil
	}
	var f float64
	if err := json.Unmarshal(v, &f); err != nil {
		return nil
	}
	return &f
}

func pickInt(raw map[string]json.RawMessage, names ...string) int {
	if i := pickIntPtr(raw, names...); i != nil {
		return *i
	}
	return 0
}

func pickIntPtr(raw map[string]json.RawMessage, names ...string) *int {
	v, ok := pickRaw(raw, names...)
	if !ok {
		return nil
	}
	var i int
	if err := json.Unmarshal(v, &i); err != nil {
		return nil
	}
	return &i
}

// pickTruthy accepts true, "true", "1", and 1.
func pickTruthy(raw map[string]json.RawMessage, names ...string) bool {
	v, ok := pickRaw(raw, names...)
	if !ok {
		return false
	}
	var b bool
	if err := json.Unmarshal(v, &b); err == nil {
		return b
	}
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return s == "true" || s == "1"
	}
	var n float64
	if err := json.Unmarshal(v, &n); err == nil {
		return n == 1
	}
	return false
}
