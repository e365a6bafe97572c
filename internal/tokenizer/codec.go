package tokenizer

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// ChatMessage is a single message in a chat-style completion request.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	Name    string `json:"name,omitempty"`
}

// Codec counts tokens exactly using the cl100k_base byte-pair encoding.
//
// The underlying encoder is expensive to build, so it is initialized lazily
// and at most once per Codec. Codec is an injectable handle: construct one at
// startup and pass it to the components that need exact counts. It is safe
// for concurrent use.
type Codec struct {
	once sync.Once
	enc  *tiktoken.Tiktoken
	err  error
}

// NewCodec returns a Codec. The encoder is not built until first use.
func NewCodec() *Codec {
	return &Codec{}
}

func (c *Codec) encoding() (*tiktoken.Tiktoken, error) {
	c.once.Do(func() {
		c.enc, c.err = tiktoken.GetEncoding(tiktoken.MODEL_CL100K_BASE)
	})
	if c.err != nil {
		return nil, fmt.Errorf("init cl100k_base encoding: %w", c.err)
	}
	return c.enc, nil
}

// Count returns the exact token count of text.
func (c *Codec) Count(text string) (int, error) {
	enc, err := c.encoding()
	if err != nil {
		return 0, err
	}
	return len(enc.Encode(text, nil, nil)), nil
}

// Per-request framing overhead: every reply is primed with
// <|im_start|>assistant<|im_sep|>.
const tokensPerRequest = 3

// ChatRequestTokenCount counts the tokens of a multi-message chat completion
// request, including the fixed per-message framing overhead of the model.
func (c *Codec) ChatRequestTokenCount(messages []ChatMessage, model string) (int, error) {
	total := tokensPerRequest
	for _, msg := range messages {
		n, err := c.MessageTokenCount(msg, model)
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}

// MessageTokenCount counts the tokens of a single chat message.
//
// Framing constants follow the OpenAI token accounting reference: every
// message follows <|start|>{role/name}\n{content}<|end|>\n, with a
// per-message overhead and a per-name adjustment that vary by model family.
func (c *Codec) MessageTokenCount(msg ChatMessage, model string) (int, error) {
	var tokensPerMessage, tokensPerName int

	switch model {
	case "gpt-3.5-turbo":
		// Moving target; count as the pinned snapshot.
		return c.MessageTokenCount(msg, "gpt-3.5-turbo-0301")
	case "gpt-4":
		return c.MessageTokenCount(msg, "gpt-4-0314")
	case "gpt-3.5-turbo-0301":
		tokensPerMessage = 4
		tokensPerName = -1 // if there's a name, the role is omitted
	case "gpt-4-0314":
		tokensPerMessage = 3
		tokensPerName = 1
	default:
		return 0, fmt.Errorf("unknown model %q for message token counting", model)
	}

	enc, err := c.encoding()
	if err != nil {
		return 0, err
	}

	count := tokensPerMessage
	count += len(enc.Encode(msg.Role, nil, nil))
	count += len(enc.Encode(msg.Content, nil, nil))
	if msg.Name != "" {
		count += len(enc.Encode(msg.Name, nil, nil))
		count += tokensPerName
	}
	return count, nil
}

// MaxTokenCount returns the maximum context size of a model, covering both
// the request messages and the completion.
func MaxTokenCount(model string) (int, error) {
	switch model {
	case "gpt-3.5-turbo", "gpt-3.5-turbo-0301", "gpt-4", "gpt-4-0314":
		return 4097, nil
	default:
		return 0, fmt.Errorf("unknown model %q", model)
	}
}
