package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"koihealth/internal/domain"
	"koihealth/internal/logger"
)

type streamRecorder struct {
	mu        sync.Mutex
	chunks    []string
	completes int
	errs      []error
	afterEnd  int
}

func (r *streamRecorder) handlers() Handlers {
	return Handlers{
		OnChunk: func(text string) {
			r.mu.Lock()
			defer r.mu.Unlock()
			if r.completes > 0 || len(r.errs) > 0 {
				r.afterEnd++
			}
			r.chunks = append(r.chunks, text)
		},
		OnComplete: func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.completes++
		},
		OnError: func(err error) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.errs = append(r.errs, err)
		},
	}
}

func (r *streamRecorder) text() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return strings.Join(r.chunks, "")
}

func instantPacing() Pacing {
	return Pacing{}
}

func newTestClient(endpoint string, cfg Config) *Client {
	cfg.Endpoint = endpoint
	return NewClient(cfg, logger.Nop(), WithPacing(instantPacing()))
}

func runStream(t *testing.T, client *Client, history []domain.HistoryItem, question string) *streamRecorder {
	t.Helper()
	recorder := &streamRecorder{}
	done := client.SendStreaming(context.Background(), history, question, recorder.handlers())
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not finish")
	}
	return recorder
}

func sseServer(t *testing.T, lines ...string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher, _ := w.(http.Flusher)
		for _, line := range lines {
			fmt.Fprint(w, line+"\n")
			if flusher != nil {
				flusher.Flush()
			}
		}
	}))
	t.Cleanup(server.Close)
	return server
}

// brokenStreamServer sends lines, then drops the connection mid-response.
func brokenStreamServer(t *testing.T, lines ...string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, line := range lines {
			fmt.Fprint(w, line+"\n")
		}
		w.(http.Flusher).Flush()

		conn, _, err := w.(http.Hijacker).Hijack()
		if err != nil {
			t.Errorf("hijack: %v", err)
			return
		}
		_ = conn.Close()
	}))
	t.Cleanup(server.Close)
	return server
}

func TestSendStreamingDeliversChunksInOrderAndCompletesOnce(t *testing.T) {
	t.Parallel()

	server := sseServer(t,
		`data: {"choices":[{"delta":{"content":"두통은 "}}]}`,
		``,
		`data: {"content":"충분한 휴식과 "}`,
		`data: {"answer":"수분 섭취가 "}`,
		`data: "도움이 됩니다."`,
		`data: [DONE]`,
		`data: {"content":"ignored after done"}`,
	)
	recorder := runStream(t, newTestClient(server.URL, Config{}), nil, "두통이 있어요")

	if len(recorder.errs) != 0 {
		t.Fatalf("unexpected errors: %v", recorder.errs)
	}
	if recorder.completes != 1 {
		t.Fatalf("expected exactly one completion, got %d", recorder.completes)
	}
	if got := recorder.text(); got != "두통은 충분한 휴식과 수분 섭취가 도움이 됩니다." {
		t.Fatalf("unexpected answer %q", got)
	}
	if recorder.afterEnd != 0 {
		t.Fatalf("chunks delivered after completion: %d", recorder.afterEnd)
	}
}

func TestSendStreamingSkipsMalformedFrames(t *testing.T) {
	t.Parallel()

	server := sseServer(t,
		`data: {"content":"first "}`,
		`data: {not json`,
		`{"broken":`,
		`data: {"content":"second"}`,
	)
	recorder := runStream(t, newTestClient(server.URL, Config{}), nil, "질문")

	if len(recorder.errs) != 0 {
		t.Fatalf("malformed frame aborted the stream: %v", recorder.errs)
	}
	if got := recorder.text(); got != "first second" {
		t.Fatalf("unexpected answer %q", got)
	}
	if recorder.completes != 1 {
		t.Fatalf("expected completion on natural end, got %d", recorder.completes)
	}
}

func TestSendStreamingHandlesBareLines(t *testing.T) {
	t.Parallel()

	server := sseServer(t,
		`{"content":"json "}`,
		`{"delta":{"content":"delta "}}`,
		`  plain text  `,
	)
	recorder := runStream(t, newTestClient(server.URL, Config{}), nil, "질문")

	if got := recorder.text(); got != "json delta plain text" {
		t.Fatalf("unexpected answer %q", got)
	}
	if recorder.completes != 1 || len(recorder.errs) != 0 {
		t.Fatalf("expected clean completion, got completes=%d errs=%v", recorder.completes, recorder.errs)
	}
}

func TestSendStreamingSendsPayload(t *testing.T) {
	t.Parallel()

	var (
		mu      sync.Mutex
		payload requestPayload
		accept  string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		accept = r.Header.Get("Accept")
		_ = json.NewDecoder(r.Body).Decode(&payload)
		fmt.Fprintln(w, `data: {"content":"ok"}`)
	}))
	defer server.Close()

	history := []domain.HistoryItem{{Inputs: "q1", Outputs: "a1"}}
	runStream(t, newTestClient(server.URL, Config{}), history, "  복통이 심해요  ")

	mu.Lock()
	defer mu.Unlock()
	if accept != "text/event-stream" {
		t.Fatalf("expected event-stream accept header, got %q", accept)
	}
	if payload.Question != "복통이 심해요" || !payload.Streaming || payload.Model != DefaultModel || payload.Category != DefaultCategory {
		t.Fatalf("unexpected payload %+v", payload)
	}
	if len(payload.History) != 1 || payload.History[0].Inputs != "q1" {
		t.Fatalf("history not forwarded: %+v", payload.History)
	}
}

func TestSendStreamingFallsBackWhenEndpointUnreachable(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.NotFoundHandler())
	endpoint := server.URL
	server.Close()

	client := newTestClient(endpoint, Config{})
	recorder := runStream(t, client, nil, "두통이 있어요")

	if len(recorder.errs) != 0 {
		t.Fatalf("transport failure reached OnError: %v", recorder.errs)
	}
	if recorder.completes != 1 {
		t.Fatalf("expected one completion, got %d", recorder.completes)
	}
	want := NewKeywordResponder().Respond("두통이 있어요")
	if got := recorder.text(); got != want {
		t.Fatalf("fallback answer mismatch\nwant %q\ngot  %q", want, got)
	}
}

func TestSendStreamingFallsBackOnTimeoutBeforeFirstChunk(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	client := newTestClient(server.URL, Config{StreamTimeout: 50 * time.Millisecond})
	recorder := runStream(t, client, nil, "잠이 안 와요")

	if len(recorder.errs) != 0 {
		t.Fatalf("timeout reached OnError: %v", recorder.errs)
	}
	if got, want := recorder.text(), NewKeywordResponder().Respond("잠이 안 와요"); got != want {
		t.Fatalf("expected local answer, got %q", got)
	}
}

func TestSendStreamingReportsServerErrors(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	recorder := runStream(t, newTestClient(server.URL, Config{}), nil, "질문")

	if recorder.completes != 0 || len(recorder.errs) != 1 {
		t.Fatalf("expected one error and no completion, got completes=%d errs=%v", recorder.completes, recorder.errs)
	}
	var serverErr *ServerError
	if !errors.As(recorder.errs[0], &serverErr) || serverErr.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected ServerError 503, got %v", recorder.errs[0])
	}
}

func TestSendStreamingEmptyBodyIsAnError(t *testing.T) {
	t.Parallel()

	server := sseServer(t)
	recorder := runStream(t, newTestClient(server.URL, Config{}), nil, "질문")

	if len(recorder.errs) != 1 || !errors.Is(recorder.errs[0], errEmptyStream) {
		t.Fatalf("expected empty stream error, got %v", recorder.errs)
	}
}

func TestSendStreamingDoneWithoutContentIsAnError(t *testing.T) {
	t.Parallel()

	server := sseServer(t, `data: {not json`, `data: [DONE]`)
	recorder := runStream(t, newTestClient(server.URL, Config{}), nil, "질문")

	if recorder.completes != 0 || len(recorder.errs) != 1 {
		t.Fatalf("expected one error and no completion, got completes=%d errs=%v", recorder.completes, recorder.errs)
	}
	var serverErr *ServerError
	if !errors.As(recorder.errs[0], &serverErr) || !errors.Is(serverErr, errEmptyStream) {
		t.Fatalf("expected empty stream ServerError, got %v", recorder.errs[0])
	}
}

func TestSendStreamingFailureAfterContentIsReported(t *testing.T) {
	t.Parallel()

	server := brokenStreamServer(t, `data: {"content":"첫 "}`)
	recorder := runStream(t, newTestClient(server.URL, Config{}), nil, "두통이 있어요")

	recorder.mu.Lock()
	defer recorder.mu.Unlock()
	if len(recorder.chunks) != 1 || recorder.chunks[0] != "첫 " {
		t.Fatalf("expected the delivered chunk only, got %q", recorder.chunks)
	}
	if recorder.completes != 0 {
		t.Fatalf("expected no completion, got %d", recorder.completes)
	}
	if len(recorder.errs) != 1 {
		t.Fatalf("expected exactly one error, got %v", recorder.errs)
	}
	var transportErr *TransportError
	if !errors.As(recorder.errs[0], &transportErr) {
		t.Fatalf("expected TransportError, got %v", recorder.errs[0])
	}
}

func TestSendStreamingRejectsEmptyQuestion(t *testing.T) {
	t.Parallel()

	recorder := runStream(t, newTestClient("http://127.0.0.1:1", Config{}), nil, "   ")
	if len(recorder.errs) != 1 || !errors.Is(recorder.errs[0], domain.ErrEmptyQuestion) {
		t.Fatalf("expected ErrEmptyQuestion, got %v", recorder.errs)
	}
}

func TestSendStreamingOfflineUsesResponder(t *testing.T) {
	t.Parallel()

	client := newTestClient("http://127.0.0.1:1", Config{Offline: true})
	recorder := runStream(t, client, nil, "약 복용 시간이 궁금해요")

	if got := recorder.text(); got != medicationAnswer {
		t.Fatalf("expected medication topic answer, got %q", got)
	}
	if recorder.completes != 1 {
		t.Fatalf("expected one completion, got %d", recorder.completes)
	}
}

func TestSendOnce(t *testing.T) {
	t.Parallel()

	var gotStreaming *bool
	var mu sync.Mutex
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload requestPayload
		_ = json.NewDecoder(r.Body).Decode(&payload)
		mu.Lock()
		gotStreaming = &payload.Streaming
		mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]string{"answer": "물을 충분히 드세요."})
	}))
	defer server.Close()

	answer, err := newTestClient(server.URL, Config{}).SendOnce(context.Background(), nil, "목이 말라요")
	if err != nil {
		t.Fatalf("SendOnce: %v", err)
	}
	if answer != "물을 충분히 드세요." {
		t.Fatalf("unexpected answer %q", answer)
	}
	mu.Lock()
	defer mu.Unlock()
	if gotStreaming == nil || *gotStreaming {
		t.Fatal("expected streaming=false in payload")
	}
}

func TestSendOnceErrors(t *testing.T) {
	t.Parallel()

	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer failing.Close()

	_, err := newTestClient(failing.URL, Config{}).SendOnce(context.Background(), nil, "질문")
	var serverErr *ServerError
	if !errors.As(err, &serverErr) || serverErr.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected ServerError 500, got %v", err)
	}

	missing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"answer":""}`)
	}))
	defer missing.Close()

	_, err = newTestClient(missing.URL, Config{}).SendOnce(context.Background(), nil, "질문")
	if !errors.Is(err, domain.ErrNoAnswer) {
		t.Fatalf("expected ErrNoAnswer, got %v", err)
	}
}

func TestSendOnceFallsBackWhenUnreachable(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.NotFoundHandler())
	endpoint := server.URL
	server.Close()

	answer, err := newTestClient(endpoint, Config{}).SendOnce(context.Background(), nil, "스트레스가 심해요")
	if err != nil {
		t.Fatalf("expected local answer, got error %v", err)
	}
	if answer != mentalAnswer {
		t.Fatalf("unexpected fallback answer %q", answer)
	}
}

func TestAskReturnsLocalAnswerWithServerError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	answer, err := newTestClient(server.URL, Config{}).Ask(context.Background(), "응급실에 가야 하나요")
	var serverErr *ServerError
	if !errors.As(err, &serverErr) {
		t.Fatalf("expected ServerError, got %v", err)
	}
	if answer != emergencyAnswer {
		t.Fatalf("expected local emergency answer, got %q", answer)
	}
}

func TestCheckHealth(t *testing.T) {
	t.Parallel()

	var method string
	var mu sync.Mutex
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		method = r.Method
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	if !newTestClient(server.URL, Config{}).CheckHealth(context.Background()) {
		t.Fatal("expected healthy endpoint")
	}
	mu.Lock()
	if method != http.MethodOptions {
		t.Fatalf("expected OPTIONS, got %s", method)
	}
	mu.Unlock()

	if newTestClient(server.URL, Config{Offline: true}).CheckHealth(context.Background()) {
		t.Fatal("offline client must report unhealthy")
	}

	server.Close()
	if newTestClient(server.URL, Config{}).CheckHealth(context.Background()) {
		t.Fatal("closed endpoint must report unhealthy")
	}
}
