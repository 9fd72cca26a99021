// Package chat talks to the health chat endpoint. It streams answers
// incrementally and falls back to a local responder when the endpoint cannot
// be reached.
package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"koihealth/internal/domain"
	"koihealth/internal/logger"
)

const (
	DefaultEndpoint = "https://ai.koihealth-live.com/text"
	DefaultModel    = "gpt-4o-mini"
	DefaultCategory = "A"
)

// Config controls the chat endpoint and its timeouts.
type Config struct {
	Endpoint      string
	Model         string
	Category      string
	StreamTimeout time.Duration
	OnceTimeout   time.Duration
	HealthTimeout time.Duration
	// Offline skips the endpoint and answers every question locally.
	Offline bool
}

func (c Config) withDefaults() Config {
	if strings.TrimSpace(c.Endpoint) == "" {
		c.Endpoint = DefaultEndpoint
	}
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.Category == "" {
		c.Category = DefaultCategory
	}
	if c.StreamTimeout <= 0 {
		c.StreamTimeout = 60 * time.Second
	}
	if c.OnceTimeout <= 0 {
		c.OnceTimeout = 30 * time.Second
	}
	if c.HealthTimeout <= 0 {
		c.HealthTimeout = 5 * time.Second
	}
	return c
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client used for every request.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.http = client
		}
	}
}

// WithResponder replaces the local fallback responder.
func WithResponder(responder Responder) Option {
	return func(c *Client) {
		if responder != nil {
			c.responder = responder
		}
	}
}

// WithPacing sets how local answers are streamed.
func WithPacing(pacing Pacing) Option {
	return func(c *Client) {
		c.pacing = pacing
	}
}

// Handlers receive the progress of one streaming request. Exactly one of
// OnComplete or OnError is called, after every OnChunk.
type Handlers struct {
	OnChunk    func(text string)
	OnComplete func()
	OnError    func(err error)
}

// Client is the streaming chat client.
type Client struct {
	cfg       Config
	http      *http.Client
	responder Responder
	pacing    Pacing
	log       *logger.Logger
}

func NewClient(cfg Config, log *logger.Logger, opts ...Option) *Client {
	c := &Client{
		cfg:       cfg.withDefaults(),
		http:      newHTTPClient(),
		responder: NewKeywordResponder(),
		pacing:    DefaultPacing(),
		log:       log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// newHTTPClient bounds connection setup only. Body reads are bounded by the
// per-request context.
func newHTTPClient() *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}).DialContext
	transport.TLSHandshakeTimeout = 10 * time.Second
	transport.ResponseHeaderTimeout = 30 * time.Second
	return &http.Client{Transport: transport}
}

// Endpoint returns the configured chat endpoint.
func (c *Client) Endpoint() string { return c.cfg.Endpoint }

// Offline reports whether the client answers locally only.
func (c *Client) Offline() bool { return c.cfg.Offline }

type requestPayload struct {
	History    []domain.HistoryItem `json:"history"`
	Question   string               `json:"question"`
	Category   string               `json:"category"`
	Model      string               `json:"model"`
	Prompt     string               `json:"prompt"`
	MultiQuery bool                 `json:"multiquery"`
	Streaming  bool                 `json:"streaming"`
}

type onceResponse struct {
	Answer string `json:"answer"`
}

func (c *Client) newRequest(ctx context.Context, history []domain.HistoryItem, question string, streaming bool) (*http.Request, error) {
	if history == nil {
		history = []domain.HistoryItem{}
	}
	body, err := json.Marshal(requestPayload{
		History:   history,
		Question:  question,
		Category:  c.cfg.Category,
		Model:     c.cfg.Model,
		Streaming: streaming,
	})
	if err != nil {
		return nil, fmt.Errorf("encode chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if streaming {
		req.Header.Set("Accept", "text/event-stream")
		req.Header.Set("Cache-Control", "no-cache")
	}
	return req, nil
}

// SendStreaming asks question with the given history and reports the answer
// incrementally through h. It returns immediately; the returned channel is
// closed after the terminal callback ran.
//
// Unreachable endpoints and timeouts before the first chunk are answered by
// the local responder through the same callbacks. Non-2xx responses, empty
// streams and failures after content arrived are reported via OnError.
func (c *Client) SendStreaming(ctx context.Context, history []domain.HistoryItem, question string, h Handlers) <-chan struct{} {
	done := make(chan struct{})
	term := newTerminal(h)

	go func() {
		defer close(done)

		question = strings.TrimSpace(question)
		if question == "" {
			term.fail(domain.ErrEmptyQuestion)
			return
		}
		if c.cfg.Offline {
			c.log.Debug("chat: offline mode, answering %q locally", truncate(question, 50))
			c.streamLocal(ctx, question, term)
			return
		}
		c.stream(ctx, history, question, term)
	}()

	return done
}

func (c *Client) stream(ctx context.Context, history []domain.HistoryItem, question string, term *terminal) {
	streamCtx, cancel := context.WithTimeout(ctx, c.cfg.StreamTimeout)
	defer cancel()

	req, err := c.newRequest(streamCtx, history, question, true)
	if err != nil {
		term.fail(err)
		return
	}

	c.log.Debug("chat: streaming request (%d history items)", len(history))
	resp, err := c.http.Do(req)
	if err != nil {
		if isTransportFailure(ctx, err) {
			c.log.Warn("chat: endpoint unreachable, answering locally: %v", err)
			c.streamLocal(ctx, question, term)
			return
		}
		term.fail(&TransportError{Op: "POST", URL: c.cfg.Endpoint, Err: err})
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		term.fail(serverErrorFrom(resp))
		return
	}

	reader := newLineReader(resp.Body)
	delivered := false
	for {
		line, readErr := reader.Next()
		if strings.TrimSpace(line) != "" {
			event, ok, decodeErr := decodeLine(line)
			if decodeErr != nil {
				c.log.Warn("chat: skipping frame: %v", decodeErr)
			} else if ok {
				switch event.Kind {
				case domain.StreamEventDone:
					c.finishStream(resp, delivered, term)
					return
				case domain.StreamEventChunk:
					delivered = true
					term.chunk(event.Text)
				}
			}
		}

		if readErr == nil {
			continue
		}
		if errors.Is(readErr, io.EOF) {
			c.finishStream(resp, delivered, term)
			return
		}
		if !delivered && isTransportFailure(ctx, readErr) {
			c.log.Warn("chat: stream failed before any content, answering locally: %v", readErr)
			c.streamLocal(ctx, question, term)
			return
		}
		term.fail(&TransportError{Op: "read stream", URL: c.cfg.Endpoint, Err: readErr})
		return
	}
}

// finishStream completes a stream that ended cleanly. A stream without any
// answer text is a malformed response.
func (c *Client) finishStream(resp *http.Response, delivered bool, term *terminal) {
	if !delivered {
		term.fail(&ServerError{StatusCode: resp.StatusCode, Err: errEmptyStream})
		return
	}
	term.complete()
}

func (c *Client) streamLocal(ctx context.Context, question string, term *terminal) {
	answer := c.responder.Respond(question)
	if err := c.pacing.streamText(ctx, answer, term.chunk); err != nil {
		term.fail(err)
		return
	}
	term.complete()
}

// SendOnce asks question and returns the whole answer. Unreachable endpoints
// and timeouts are answered by the local responder.
func (c *Client) SendOnce(ctx context.Context, history []domain.HistoryItem, question string) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", domain.ErrEmptyQuestion
	}
	if c.cfg.Offline {
		return c.responder.Respond(question), nil
	}

	onceCtx, cancel := context.WithTimeout(ctx, c.cfg.OnceTimeout)
	defer cancel()

	req, err := c.newRequest(onceCtx, history, question, false)
	if err != nil {
		return "", err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if isTransportFailure(ctx, err) {
			c.log.Warn("chat: endpoint unreachable, answering locally: %v", err)
			return c.responder.Respond(question), nil
		}
		return "", &TransportError{Op: "POST", URL: c.cfg.Endpoint, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", serverErrorFrom(resp)
	}

	var decoded onceResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		if isTransportFailure(ctx, err) {
			c.log.Warn("chat: response interrupted, answering locally: %v", err)
			return c.responder.Respond(question), nil
		}
		return "", &ServerError{StatusCode: resp.StatusCode, Message: "malformed answer payload", Err: err}
	}
	if strings.TrimSpace(decoded.Answer) == "" {
		return "", &ServerError{StatusCode: resp.StatusCode, Message: "answer missing from response", Err: domain.ErrNoAnswer}
	}
	return decoded.Answer, nil
}

// Ask answers a spoken question without conversation context. Server-class
// failures still produce a local answer, returned together with the error.
func (c *Client) Ask(ctx context.Context, question string) (string, error) {
	answer, err := c.SendOnce(ctx, nil, question)
	var serverErr *ServerError
	if errors.As(err, &serverErr) {
		return c.responder.Respond(strings.TrimSpace(question)), err
	}
	return answer, err
}

// CheckHealth reports whether the endpoint answers an OPTIONS request.
func (c *Client) CheckHealth(ctx context.Context) bool {
	if c.cfg.Offline {
		return false
	}
	healthCtx, cancel := context.WithTimeout(ctx, c.cfg.HealthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(healthCtx, http.MethodOptions, c.cfg.Endpoint, nil)
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Debug("chat: health check failed: %v", err)
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode >= 200 && resp.StatusCode <= 299
}

func serverErrorFrom(resp *http.Response) *ServerError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	message := strings.TrimSpace(string(body))
	if message == "" {
		message = http.StatusText(resp.StatusCode)
	}
	return &ServerError{StatusCode: resp.StatusCode, Message: message}
}

// terminal guards the handlers so that exactly one terminal callback runs and
// no chunk follows it.
type terminal struct {
	h        Handlers
	mu       sync.Mutex
	finished bool
}

func newTerminal(h Handlers) *terminal {
	return &terminal{h: h}
}

func (t *terminal) chunk(text string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.finished || t.h.OnChunk == nil {
		return
	}
	t.h.OnChunk(text)
}

func (t *terminal) complete() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.finished {
		return
	}
	t.finished = true
	if t.h.OnComplete != nil {
		t.h.OnComplete()
	}
}

func (t *terminal) fail(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.finished {
		return
	}
	t.finished = true
	if t.h.OnError != nil {
		t.h.OnError(err)
	}
}

func truncate(text string, max int) string {
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max]) + "..."
}
