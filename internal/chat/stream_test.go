package chat

import (
	"io"
	"strings"
	"testing"

	"koihealth/internal/domain"
)

func TestDecodeLine(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		line    string
		want    domain.StreamEvent
		ok      bool
		wantErr bool
	}{
		{name: "blank", line: "   "},
		{name: "done", line: "data: [DONE]", want: domain.StreamEvent{Kind: domain.StreamEventDone}, ok: true},
		{name: "openai delta", line: `data: {"choices":[{"delta":{"content":"안녕"}}]}`, want: chunk("안녕"), ok: true},
		{name: "delta wins over content", line: `data: {"choices":[{"delta":{"content":"a"}}],"content":"b"}`, want: chunk("a"), ok: true},
		{name: "content", line: `data: {"content":"내용"}`, want: chunk("내용"), ok: true},
		{name: "answer", line: `data: {"answer":"답변"}`, want: chunk("답변"), ok: true},
		{name: "bare string", line: `data: "문자열"`, want: chunk("문자열"), ok: true},
		{name: "empty content", line: `data: {"content":""}`},
		{name: "malformed data", line: `data: {oops`, wantErr: true},
		{name: "json line content", line: `{"content":"c","answer":"a"}`, want: chunk("c"), ok: true},
		{name: "json line delta", line: `{"delta":{"content":"d"}}`, want: chunk("d"), ok: true},
		{name: "malformed json line", line: `{"content":`, wantErr: true},
		{name: "plain text trimmed", line: "  그냥 텍스트 \r", want: chunk("그냥 텍스트"), ok: true},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, ok, err := decodeLine(tc.line)
			if (err != nil) != tc.wantErr {
				t.Fatalf("decodeLine(%q) err = %v, wantErr %v", tc.line, err, tc.wantErr)
			}
			if ok != tc.ok {
				t.Fatalf("decodeLine(%q) ok = %v, want %v", tc.line, ok, tc.ok)
			}
			if got != tc.want {
				t.Fatalf("decodeLine(%q) = %+v, want %+v", tc.line, got, tc.want)
			}
		})
	}
}

func chunk(text string) domain.StreamEvent {
	return domain.StreamEvent{Kind: domain.StreamEventChunk, Text: text}
}

func TestLineReaderReturnsUnterminatedLastLine(t *testing.T) {
	t.Parallel()

	reader := newLineReader(strings.NewReader("first\r\nsecond"))

	line, err := reader.Next()
	if err != nil || line != "first" {
		t.Fatalf("first line = %q, %v", line, err)
	}
	line, err = reader.Next()
	if err != io.EOF || line != "second" {
		t.Fatalf("last line = %q, %v", line, err)
	}
}
