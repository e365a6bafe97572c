// Package openai implements the fixed request/response contract of the
// embedding and completion provider endpoints, including server-sent-event
// stream parsing for streamed completions.
package openai

// ModelType distinguishes the completion API families, which differ in both
// request payload shape and response extraction.
type ModelType string

const (
	// ModelTypeChatCompletions is the chat-style message API.
	ModelTypeChatCompletions ModelType = "chat_completions"
	// ModelTypeCompletions is the legacy flat-prompt API.
	ModelTypeCompletions ModelType = "completions"
	// ModelTypeEmbeddings is the embeddings API.
	ModelTypeEmbeddings ModelType = "embeddings"
)

// ModelInfo names a model together with its API family.
type ModelInfo struct {
	Type ModelType
	ID   string
}

const (
	// DefaultChatModel is used when a request names no model, or names an
	// unknown one.
	DefaultChatModel = "gpt-3.5-turbo"

	// EmbeddingModel is the model used for all section and query embeddings.
	EmbeddingModel = "text-embedding-ada-002"
)

// legacyCompletionModels are the models served by the legacy completions
// endpoint.
var legacyCompletionModels = map[string]bool{
	"text-davinci-003": true,
	"text-davinci-002": true,
	"text-curie-001":   true,
	"text-babbage-001": true,
	"text-ada-001":     true,
	"davinci":          true,
	"curie":            true,
	"babbage":          true,
	"ada":              true,
}

// ModelInfoFromString maps a requested model id to its ModelInfo. Unknown
// ids fall back to the default chat model.
func ModelInfoFromString(model string) ModelInfo {
	switch {
	case model == "gpt-4" || model == "gpt-3.5-turbo":
		return ModelInfo{Type: ModelTypeChatCompletions, ID: model}
	case legacyCompletionModels[model]:
		return ModelInfo{Type: ModelTypeCompletions, ID: model}
	default:
		return ModelInfo{Type: ModelTypeChatCompletions, ID: DefaultChatModel}
	}
}

// completionsPath returns the API path for the model family.
func (m ModelInfo) completionsPath() string {
	if m.Type == ModelTypeChatCompletions {
		return "/chat/completions"
	}
	return "/completions"
}
