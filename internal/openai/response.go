package openai

import (
	"encoding/json"
	"fmt"
)

// choice covers both API families: chat responses populate Message (or Delta
// for stream chunks), legacy responses populate Text.
type choice struct {
	Text    string `json:"text"`
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	Delta struct {
		Content string `json:"content"`
	} `json:"delta"`
}

// CompletionResponse is a non-streamed completion body or a single streamed
// chunk.
type CompletionResponse struct {
	ID      string   `json:"id"`
	Choices []choice `json:"choices"`
	Usage   Usage    `json:"usage"`
}

// ResponseText extracts the generated text from a non-streamed completion
// body for the given model family.
func ResponseText(resp CompletionResponse, info ModelInfo) string {
	if len(resp.Choices) == 0 {
		return ""
	}
	if info.Type == ModelTypeChatCompletions {
		return resp.Choices[0].Message.Content
	}
	return resp.Choices[0].Text
}

// ChunkText extracts the text delta from a single streamed chunk payload.
func ChunkText(raw []byte, info ModelInfo) (string, error) {
	var resp CompletionResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("decode stream chunk: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	if info.Type == ModelTypeChatCompletions {
		return resp.Choices[0].Delta.Content, nil
	}
	return resp.Choices[0].Text, nil
}
