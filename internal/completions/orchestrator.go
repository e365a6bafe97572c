package completions

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	"github.com/docprompt/docprompt/internal/log"
	"github.com/docprompt/docprompt/internal/openai"
	"github.com/docprompt/docprompt/internal/ratelimit"
	"github.com/docprompt/docprompt/internal/store"
	"github.com/docprompt/docprompt/internal/tokenizer"
)

// usageOperation is the operation recorded against the project's usage for
// answered queries.
const usageOperation = "completions"

// Store is the query persistence surface the orchestrator needs.
type Store interface {
	InsertQuery(ctx context.Context, projectID uuid.UUID, prompt, response string, embedding *pgvector.Vector, status store.QueryStatus, references any) (uuid.UUID, error)
	UpdateQuery(ctx context.Context, id uuid.UUID, response string, status store.QueryStatus) error
	RecordUsage(ctx context.Context, projectID uuid.UUID, model string, tokenCount int, operation string) error
}

// Provider is the model API surface the orchestrator needs.
type Provider interface {
	CreateEmbedding(ctx context.Context, input, credential string) (*openai.EmbeddingResponse, error)
	Complete(ctx context.Context, payload openai.CompletionPayload, credential string) (*http.Response, error)
}

// Request is a single completion request after HTTP decoding.
type Request struct {
	ProjectID uuid.UUID
	Prompt    string

	// Template overrides DefaultTemplate when non-empty.
	Template         string
	TemplateOptions  TemplateOptions
	IDontKnowMessage string
	Model            string
	Params           openai.CompletionParams

	Threshold float64
	Count     int

	// ExcludeFromInsights keeps prompt and response text out of the stored
	// query record; Redact masks emails and phone numbers in it.
	ExcludeFromInsights bool
	Redact              bool

	// Credential is a caller-supplied provider API key; usage is not
	// recorded against the project when set.
	Credential string

	// Debug includes the assembled full prompt in the response.
	Debug bool
}

// DebugInfo is returned when a request asks for debugging output.
type DebugInfo struct {
	FullPrompt string `json:"fullPrompt"`
}

// Response is a non-streamed completion answer.
type Response struct {
	Text       string                 `json:"text"`
	References []FileSectionReference `json:"references"`
	ResponseID uuid.UUID              `json:"responseId"`
	DebugInfo  *DebugInfo             `json:"debugInfo,omitempty"`
}

// Orchestrator runs the retrieval and completion pipeline for a request.
type Orchestrator struct {
	retriever *Retriever
	store     Store
	provider  Provider
	limiter   *ratelimit.Limiter
	codec     *tokenizer.Codec
	logger    log.Logger
}

// NewOrchestrator builds an Orchestrator.
func NewOrchestrator(retriever *Retriever, s Store, provider Provider, limiter *ratelimit.Limiter, logger log.Logger) *Orchestrator {
	return &Orchestrator{
		retriever: retriever,
		store:     s,
		provider:  provider,
		limiter:   limiter,
		codec:     tokenizer.NewCodec(),
		logger:    logger,
	}
}

// prepared is the shared state produced by the retrieval and prompt assembly
// phase, used by both the streamed and non-streamed paths.
type prepared struct {
	storedPrompt   string
	idkMessage     string
	modelInfo      openai.ModelInfo
	embedding      pgvector.Vector
	references     []FileSectionReference
	referencePaths []string
	fullPrompt     string
	payload        openai.CompletionPayload
}

// prepare validates and sanitizes the request, retrieves matching sections,
// and assembles the completion payload.
func (o *Orchestrator) prepare(ctx context.Context, req Request, stream bool) (*prepared, error) {
	prompt := sanitizePrompt(req.Prompt)
	if prompt == "" {
		return nil, &RequestError{Status: http.StatusBadRequest, Message: "no prompt provided"}
	}
	if req.ProjectID == uuid.Nil {
		return nil, &RequestError{Status: http.StatusBadRequest, Message: "no project provided"}
	}
	if o.limiter != nil && !o.limiter.Allow(req.ProjectID.String()) {
		return nil, &RequestError{Status: http.StatusTooManyRequests, Message: "too many requests"}
	}

	idkMessage := req.IDontKnowMessage
	if idkMessage == "" {
		idkMessage = DefaultIDontKnowMessage
	}
	modelInfo := openai.ModelInfoFromString(req.Model)

	storedPrompt := insightsText(prompt, req)

	// Zero matches is not a failure: the request proceeds with an empty
	// context and the model's answer is classified as a refusal.
	matches, embedding, _, err := o.retriever.Retrieve(ctx, req.ProjectID, prompt, req.Credential, req.Threshold, req.Count)
	if err != nil {
		o.logger.Error("section retrieval failed", "project", req.ProjectID, "error", err)
		if _, insertErr := o.store.InsertQuery(ctx, req.ProjectID, storedPrompt, "", nil, store.QueryStatusNoSections, nil); insertErr != nil {
			o.logger.Warn("record unanswerable query failed", "project", req.ProjectID, "error", insertErr)
		}
		return nil, &RequestError{Status: http.StatusNotFound, Message: "could not retrieve matching sections"}
	}

	contextText, references, referencePaths := AssembleContext(matches, contextCutoff(modelInfo))

	template := req.Template
	if template == "" {
		template = DefaultTemplate
	}
	fullPrompt := BuildFullPrompt(template, contextText, prompt, idkMessage, req.TemplateOptions)

	params := req.Params
	if params == (openai.CompletionParams{}) {
		params = openai.DefaultCompletionParams()
	}
	payload := openai.NewCompletionPayload(fullPrompt, modelInfo, params, stream)

	if modelInfo.Type == openai.ModelTypeChatCompletions {
		if err := o.fitTokenWindow(&payload, modelInfo); err != nil {
			return nil, err
		}
	}

	return &prepared{
		storedPrompt:   storedPrompt,
		idkMessage:     idkMessage,
		modelInfo:      modelInfo,
		embedding:      embedding,
		references:     references,
		referencePaths: referencePaths,
		fullPrompt:     fullPrompt,
		payload:        payload,
	}, nil
}

// fitTokenWindow shrinks the completion budget so the request fits the
// model's context window, and rejects prompts that leave no room at all.
func (o *Orchestrator) fitTokenWindow(payload *openai.CompletionPayload, info openai.ModelInfo) error {
	numTokens, err := o.codec.ChatRequestTokenCount(payload.Messages, info.ID)
	if err != nil {
		// The exact counter needs its encoding data; approximate when it is
		// unavailable rather than failing the request.
		o.logger.Warn("exact token count unavailable", "model", info.ID, "error", err)
		numTokens = 0
		for _, msg := range payload.Messages {
			numTokens += tokenizer.Approximate(msg.Content)
		}
	}
	maxTokens, err := tokenizer.MaxTokenCount(info.ID)
	if err != nil {
		return fmt.Errorf("model token window: %w", err)
	}
	if numTokens >= maxTokens {
		return &RequestError{Status: http.StatusBadRequest, Message: "prompt and context exceed the model token window"}
	}
	if remaining := maxTokens - numTokens; payload.MaxTokens > remaining {
		payload.MaxTokens = remaining
	}
	return nil
}

// Respond answers req without streaming.
func (o *Orchestrator) Respond(ctx context.Context, req Request) (*Response, error) {
	prep, err := o.prepare(ctx, req, false)
	if err != nil {
		return nil, err
	}

	resp, err := o.provider.Complete(ctx, prep.payload, req.Credential)
	if err != nil {
		return nil, o.recordAPIError(ctx, req, prep, fmt.Sprintf("completion request: %v", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, o.recordAPIError(ctx, req, prep, fmt.Sprintf("provider status %d: %s", resp.StatusCode, body))
	}

	var completion openai.CompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&completion); err != nil {
		return nil, o.recordAPIError(ctx, req, prep, fmt.Sprintf("decode completion: %v", err))
	}
	text := openai.ResponseText(completion, prep.modelInfo)

	status := store.QueryStatusNone
	if isIDontKnow(text, prep.idkMessage) {
		status = store.QueryStatusIDK
	}

	o.recordUsage(ctx, req, prep.modelInfo.ID, prep.fullPrompt, text)

	queryID, err := o.store.InsertQuery(ctx, req.ProjectID, prep.storedPrompt, insightsText(text, req), &prep.embedding, status, prep.references)
	if err != nil {
		o.logger.Warn("record query failed", "project", req.ProjectID, "error", err)
	}

	response := &Response{
		Text:       text,
		References: prep.references,
		ResponseID: queryID,
	}
	if req.Debug {
		response.DebugInfo = &DebugInfo{FullPrompt: prep.fullPrompt}
	}
	return response, nil
}

// recordAPIError stores a failed query record and shapes the caller-facing
// error.
func (o *Orchestrator) recordAPIError(ctx context.Context, req Request, prep *prepared, detail string) error {
	o.logger.Error("completion failed", "project", req.ProjectID, "detail", detail)
	if _, err := o.store.InsertQuery(ctx, req.ProjectID, prep.storedPrompt, "", &prep.embedding, store.QueryStatusAPIError, prep.references); err != nil {
		o.logger.Warn("record failed query failed", "project", req.ProjectID, "error", err)
	}
	return &RequestError{Status: http.StatusBadGateway, Message: "completion provider error"}
}

// recordUsage attributes approximate token usage to the project, except when
// the caller brought their own provider key.
func (o *Orchestrator) recordUsage(ctx context.Context, req Request, model, fullPrompt, responseText string) {
	if req.Credential != "" {
		return
	}
	tokens := tokenizer.Approximate(fullPrompt + responseText)
	if err := o.store.RecordUsage(ctx, req.ProjectID, model, tokens, usageOperation); err != nil {
		o.logger.Warn("record usage failed", "project", req.ProjectID, "error", err)
	}
}

// insightsText filters text through the request's insights settings before
// it is written to the query log.
func insightsText(text string, req Request) string {
	if req.ExcludeFromInsights {
		return ""
	}
	if req.Redact {
		return redactSensitive(text)
	}
	return text
}

func sanitizePrompt(prompt string) string {
	prompt = strings.ReplaceAll(strings.TrimSpace(prompt), "\n", " ")
	runes := []rune(prompt)
	if len(runes) > MaxPromptLength {
		prompt = string(runes[:MaxPromptLength])
	}
	return prompt
}
