package chat

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"koihealth/internal/domain"
)

const doneSentinel = "[DONE]"

// lineReader splits a response body into lines, tolerating a missing final
// newline.
type lineReader struct {
	reader *bufio.Reader
}

func newLineReader(r io.Reader) *lineReader {
	return &lineReader{reader: bufio.NewReader(r)}
}

// Next returns the next raw line without its terminator. The last line of a
// body is returned together with io.EOF.
func (r *lineReader) Next() (string, error) {
	line, err := r.reader.ReadString('\n')
	line = strings.TrimRight(line, "\r\n")
	return line, err
}

// decodeLine turns one line of the response into a stream event. Blank lines
// and frames that carry no content yield ok=false. A malformed JSON frame
// yields an error and must be skipped by the caller.
func decodeLine(raw string) (domain.StreamEvent, bool, error) {
	line := strings.TrimSpace(raw)
	if line == "" {
		return domain.StreamEvent{}, false, nil
	}

	switch {
	case strings.HasPrefix(line, "data:"):
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == doneSentinel {
			return domain.StreamEvent{Kind: domain.StreamEventDone}, true, nil
		}
		if data == "" {
			return domain.StreamEvent{}, false, nil
		}
		var payload any
		if err := json.Unmarshal([]byte(data), &payload); err != nil {
			return domain.StreamEvent{}, false, fmt.Errorf("malformed data frame: %w", err)
		}
		return chunkEvent(extractDataContent(payload))

	case strings.HasPrefix(line, "{"):
		var payload map[string]any
		if err := json.Unmarshal([]byte(line), &payload); err != nil {
			return domain.StreamEvent{}, false, fmt.Errorf("malformed json line: %w", err)
		}
		return chunkEvent(extractLineContent(payload))

	default:
		return domain.StreamEvent{Kind: domain.StreamEventChunk, Text: line}, true, nil
	}
}

func chunkEvent(content string) (domain.StreamEvent, bool, error) {
	if content == "" {
		return domain.StreamEvent{}, false, nil
	}
	return domain.StreamEvent{Kind: domain.StreamEventChunk, Text: content}, true, nil
}

// extractDataContent reads an SSE data payload: choices[0].delta.content,
// then content, then answer, then a bare JSON string.
func extractDataContent(payload any) string {
	if text, ok := payload.(string); ok {
		return text
	}
	object, ok := payload.(map[string]any)
	if !ok {
		return ""
	}
	if choices, ok := object["choices"].([]any); ok && len(choices) > 0 {
		if first, ok := choices[0].(map[string]any); ok {
			if text := deltaContent(first); text != "" {
				return text
			}
		}
	}
	if text := stringField(object, "content"); text != "" {
		return text
	}
	return stringField(object, "answer")
}

// extractLineContent reads a bare JSON line: content, then answer, then
// delta.content.
func extractLineContent(object map[string]any) string {
	if text := stringField(object, "content"); text != "" {
		return text
	}
	if text := stringField(object, "answer"); text != "" {
		return text
	}
	return deltaContent(object)
}

func deltaContent(object map[string]any) string {
	delta, ok := object["delta"].(map[string]any)
	if !ok {
		return ""
	}
	return stringField(delta, "content")
}

func stringField(object map[string]any, key string) string {
	text, _ := object[key].(string)
	return text
}

var errEmptyStream = errors.New("the server returned an empty response stream")
