package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"koihealth/internal/chat"
	"koihealth/internal/conversation"
	"koihealth/internal/domain"
	"koihealth/internal/logger"
	"koihealth/internal/medication"
	"koihealth/internal/store"
)

func TestAskPrintsStreamedAnswer(t *testing.T) {
	t.Parallel()

	session := newTestSession(t, &scriptedAnswerer{chunks: []string{"물을 ", "충분히 드세요."}})
	var out bytes.Buffer
	if err := ask(context.Background(), session, "감기에 걸렸어요", &out); err != nil {
		t.Fatalf("ask: %v", err)
	}
	if !strings.Contains(out.String(), "물을 충분히 드세요.") {
		t.Fatalf("answer missing from output: %q", out.String())
	}
}

func TestAskPrintsFallbackAnswer(t *testing.T) {
	t.Parallel()

	session := newTestSession(t, &scriptedAnswerer{
		chunks:    []string{"물을"},
		streamErr: errors.New("stream broke"),
		once:      "따뜻한 물을 드세요.",
	})
	var out bytes.Buffer
	if err := ask(context.Background(), session, "목이 아파요", &out); err != nil {
		t.Fatalf("ask: %v", err)
	}
	if !strings.Contains(out.String(), "따뜻한 물을 드세요.") {
		t.Fatalf("fallback answer missing from output: %q", out.String())
	}
}

func TestAskReportsRetryableFailure(t *testing.T) {
	t.Parallel()

	session := newTestSession(t, &scriptedAnswerer{
		streamErr: errors.New("stream broke"),
		onceErr:   errors.New("server down"),
	})
	var out bytes.Buffer
	err := ask(context.Background(), session, "열이 나요", &out)
	var retryable *conversation.RetryableError
	if !errors.As(err, &retryable) || retryable.Question != "열이 나요" {
		t.Fatalf("expected retryable error, got %v", err)
	}
	if !strings.Contains(out.String(), "/retry") {
		t.Fatalf("retry hint missing: %q", out.String())
	}
}

func TestAnalyzePrintsOfflineGuidance(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "tylenol.jpg")
	if err := os.WriteFile(path, []byte{0xff, 0xd8, 0xff}, 0o600); err != nil {
		t.Fatalf("write image: %v", err)
	}
	client := medication.NewClient(medication.Config{Offline: true}, nil, logger.Nop())

	var out bytes.Buffer
	if err := analyze(context.Background(), client, path, "", &out); err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if !strings.Contains(out.String(), "타이레놀") {
		t.Fatalf("expected tylenol guidance, got %q", out.String())
	}
}

func TestAnalyzeMissingFile(t *testing.T) {
	t.Parallel()

	client := medication.NewClient(medication.Config{Offline: true}, nil, logger.Nop())
	err := analyze(context.Background(), client, filepath.Join(t.TempDir(), "missing.jpg"), "", &bytes.Buffer{})
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}

func TestTerminalSinkPrintsErrors(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	sink := &terminalSink{out: &out}
	sink.PartialTranscript("ignored")
	sink.VoiceError(domain.ErrorCode("speech-output"), "no device")
	if !strings.Contains(out.String(), "no device") || strings.Contains(out.String(), "ignored") {
		t.Fatalf("unexpected sink output: %q", out.String())
	}
}

func newTestSession(t *testing.T, answers conversation.Answerer) *conversation.Session {
	t.Helper()

	kv, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = kv.Close() })

	history := conversation.NewHistory(kv, logger.Nop())
	if err := history.Load(context.Background()); err != nil {
		t.Fatalf("load history: %v", err)
	}
	return conversation.NewSession(history, answers, nil, nil, logger.Nop())
}

type scriptedAnswerer struct {
	chunks    []string
	streamErr error
	once      string
	onceErr   error
}

func (s *scriptedAnswerer) SendStreaming(_ context.Context, _ []domain.HistoryItem, _ string, h chat.Handlers) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for _, chunk := range s.chunks {
			h.OnChunk(chunk)
		}
		if s.streamErr != nil {
			h.OnError(s.streamErr)
			return
		}
		if h.OnComplete != nil {
			h.OnComplete()
		}
	}()
	return done
}

func (s *scriptedAnswerer) SendOnce(_ context.Context, _ []domain.HistoryItem, _ string) (string, error) {
	return s.once, s.onceErr
}
