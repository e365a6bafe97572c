package completions

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/docprompt/docprompt/internal/openai"
	"github.com/docprompt/docprompt/internal/store"
)

// leadingNewlineChunks is how many initial stream chunks are inspected for
// newline-only content. The model tends to open chat completions with bare
// newlines, which would render as a blank gap before the answer.
const leadingNewlineChunks = 2

// Stream is an in-flight streamed completion. The query record already
// exists when a Stream is returned, so callers can hand out its ID before
// any response text arrives.
type Stream struct {
	QueryID        uuid.UUID
	References     []FileSectionReference
	ReferencePaths []string

	orch *Orchestrator
	req  Request
	prep *prepared
	resp *http.Response
}

// StartStream prepares req, records a placeholder query, and opens the
// completion stream. The caller must Pipe or Close the returned Stream.
func (o *Orchestrator) StartStream(ctx context.Context, req Request) (*Stream, error) {
	prep, err := o.prepare(ctx, req, true)
	if err != nil {
		return nil, err
	}

	queryID, err := o.store.InsertQuery(ctx, req.ProjectID, prep.storedPrompt, "", &prep.embedding, store.QueryStatusNone, prep.references)
	if err != nil {
		return nil, fmt.Errorf("record query: %w", err)
	}

	resp, err := o.provider.Complete(ctx, prep.payload, req.Credential)
	if err != nil {
		return nil, o.failStream(ctx, req, queryID, fmt.Sprintf("completion request: %v", err))
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, o.failStream(ctx, req, queryID, fmt.Sprintf("provider status %d: %s", resp.StatusCode, body))
	}

	return &Stream{
		QueryID:        queryID,
		References:     prep.references,
		ReferencePaths: prep.referencePaths,
		orch:           o,
		req:            req,
		prep:           prep,
		resp:           resp,
	}, nil
}

func (o *Orchestrator) failStream(ctx context.Context, req Request, queryID uuid.UUID, detail string) error {
	o.logger.Error("completion stream failed", "project", req.ProjectID, "detail", detail)
	if err := o.store.UpdateQuery(ctx, queryID, "", store.QueryStatusAPIError); err != nil {
		o.logger.Warn("record failed query failed", "project", req.ProjectID, "error", err)
	}
	return &RequestError{Status: http.StatusBadGateway, Message: "completion provider error"}
}

// Pipe copies the completion stream to w. It first writes the reference
// paths as JSON followed by the stream separator, unconditionally, so
// clients can always split on the separator. It then relays text chunks as
// they arrive, flushing after each write when w supports it. On completion
// the query record is finalized with the full response text.
func (s *Stream) Pipe(ctx context.Context, w io.Writer) error {
	defer s.resp.Body.Close()

	header, err := json.Marshal(s.ReferencePaths)
	if err != nil {
		return fmt.Errorf("marshal reference paths: %w", err)
	}
	if err := writeChunk(w, string(header)+StreamSeparator); err != nil {
		return err
	}

	var (
		responseText string
		numChunks    int
		scanner      = openai.NewEventScanner(s.resp.Body)
	)

	for {
		event, err := scanner.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("read completion stream: %w", err)
		}
		if event.Data == openai.StreamDone {
			break
		}

		text, err := openai.ChunkText([]byte(event.Data), s.prep.modelInfo)
		if err != nil {
			s.orch.logger.Warn("malformed stream chunk", "query", s.QueryID, "error", err)
			continue
		}
		if text == "" {
			continue
		}

		// Swallowed leading newlines still count toward the persisted
		// response; only their emission is skipped.
		responseText += text
		if numChunks < leadingNewlineChunks && isNewlinesOnly(text) {
			continue
		}
		numChunks++

		if err := writeChunk(w, text); err != nil {
			return err
		}
	}

	s.finalize(ctx, responseText)
	return nil
}

// Close releases the stream without piping it.
func (s *Stream) Close() error {
	return s.resp.Body.Close()
}

func (s *Stream) finalize(ctx context.Context, responseText string) {
	s.orch.recordUsage(ctx, s.req, s.prep.modelInfo.ID, s.prep.fullPrompt, responseText)

	status := store.QueryStatusNone
	if isIDontKnow(responseText, s.prep.idkMessage) {
		status = store.QueryStatusIDK
	}
	if err := s.orch.store.UpdateQuery(ctx, s.QueryID, insightsText(responseText, s.req), status); err != nil {
		s.orch.logger.Warn("finalize query failed", "query", s.QueryID, "error", err)
	}
}

func writeChunk(w io.Writer, text string) error {
	if _, err := io.WriteString(w, text); err != nil {
		return fmt.Errorf("write stream chunk: %w", err)
	}
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	return nil
}

func isNewlinesOnly(text string) bool {
	for _, r := range text {
		if r != '\n' && r != '\r' {
			return false
		}
	}
	return true
}
