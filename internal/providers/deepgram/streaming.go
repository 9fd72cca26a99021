// Package deepgram streams microphone audio to Deepgram's live
// transcription websocket.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"koihealth/internal/domain"
	"koihealth/internal/ports"
)

const (
	defaultBaseURL   = "https://api.deepgram.com/v1"
	defaultModel     = "nova-2"
	defaultKeepAlive = 5 * time.Second
)

var (
	ErrMissingAPIKey = errors.New("DEEPGRAM_API_KEY is not configured")
	// ErrUnauthorized means Deepgram rejected the API key.
	ErrUnauthorized = errors.New("deepgram rejected the API key")
	// ErrUnavailable means the websocket could not be opened or broke.
	ErrUnavailable = errors.New("deepgram is unreachable")
)

// Config controls Deepgram websocket settings.
type Config struct {
	APIKey      string
	APIBaseURL  string
	Model       string
	Language    string
	SmartFormat bool
	// KeepAlive is how often a KeepAlive frame is sent while no audio flows.
	KeepAlive time.Duration
}

// Provider implements ports.TranscriptionProvider for Deepgram.
type Provider struct {
	cfg    Config
	dialer *websocket.Dialer
}

func NewProvider(cfg Config) *Provider {
	if strings.TrimSpace(cfg.APIBaseURL) == "" {
		cfg.APIBaseURL = defaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.KeepAlive <= 0 {
		cfg.KeepAlive = defaultKeepAlive
	}
	return &Provider{cfg: cfg, dialer: websocket.DefaultDialer}
}

func (p *Provider) StartStreaming(ctx context.Context, cfg ports.StreamingConfig) (ports.StreamingSession, error) {
	if strings.TrimSpace(p.cfg.APIKey) == "" {
		return nil, ErrMissingAPIKey
	}

	wsURL, err := listenURL(p.cfg, cfg)
	if err != nil {
		return nil, err
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+p.cfg.APIKey)

	conn, resp, err := p.dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, fmt.Errorf("%w (status %d)", ErrUnauthorized, resp.StatusCode)
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	session := newStreamingSession(conn, p.cfg.KeepAlive)
	session.run()

	go func() {
		select {
		case <-ctx.Done():
			_ = session.Close()
		case <-session.done:
		}
	}()

	return session, nil
}

type streamingSession struct {
	conn      *websocket.Conn
	keepAlive time.Duration

	events  chan domain.TranscriptEvent
	audio   chan []byte
	closing chan struct{}
	done    chan struct{}

	wg sync.WaitGroup

	errMu sync.Mutex
	err   error

	closeSendOnce sync.Once
	closeOnce     sync.Once
	sendMu        sync.RWMutex
	sendClosed    bool
}

func newStreamingSession(conn *websocket.Conn, keepAlive time.Duration) *streamingSession {
	return &streamingSession{
		conn:      conn,
		keepAlive: keepAlive,
		events:    make(chan domain.TranscriptEvent, 64),
		audio:     make(chan []byte, 32),
		closing:   make(chan struct{}),
		done:      make(chan struct{}),
	}
}

func (s *streamingSession) run() {
	s.wg.Add(2)
	go s.readLoop()
	go s.writeLoop()
	go func() {
		s.wg.Wait()
		close(s.events)
		close(s.done)
		_ = s.conn.Close()
	}()
}

func (s *streamingSession) SendAudio(chunk []byte) error {
	if len(chunk) == 0 {
		return nil
	}

	s.sendMu.RLock()
	defer s.sendMu.RUnlock()
	if s.sendClosed {
		return errors.New("audio stream is already closed")
	}

	copied := append([]byte(nil), chunk...)
	select {
	case s.audio <- copied:
		return nil
	case <-s.closing:
		return errors.New("session closed")
	case <-s.done:
		if err := s.waitErr(); err != nil {
			return err
		}
		return errors.New("session closed")
	}
}

// CloseSend flushes queued audio and asks Deepgram to finalize. Remaining
// results still arrive on Events.
func (s *streamingSession) CloseSend() error {
	s.closeSendOnce.Do(func() {
		s.sendMu.Lock()
		s.sendClosed = true
		close(s.audio)
		s.sendMu.Unlock()
	})
	return nil
}

func (s *streamingSession) Events() <-chan domain.TranscriptEvent {
	return s.events
}

func (s *streamingSession) Wait() error {
	<-s.done
	return s.waitErr()
}

// Close tears the connection down without waiting for pending results.
func (s *streamingSession) Close() error {
	s.closeOnce.Do(func() {
		close(s.closing)
		_ = s.conn.Close()
		_ = s.CloseSend()
	})
	<-s.done
	return s.waitErr()
}

func (s *streamingSession) waitErr() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

func (s *streamingSession) setErr(err error) {
	if err == nil {
		return
	}
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		switch closeErr.Code {
		case websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived:
			return
		}
	}
	select {
	case <-s.closing:
		return
	default:
	}

	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

func (s *streamingSession) writeLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case chunk, ok := <-s.audio:
			if !ok {
				if err := s.writeControl("CloseStream"); err != nil {
					s.setErr(fmt.Errorf("%w: close stream: %v", ErrUnavailable, err))
				}
				return
			}
			if err := s.conn.WriteMessage(websocket.BinaryMessage, chunk); err != nil {
				s.setErr(fmt.Errorf("%w: send audio: %v", ErrUnavailable, err))
				return
			}
			ticker.Reset(s.keepAlive)
		case <-ticker.C:
			if err := s.writeControl("KeepAlive"); err != nil {
				s.setErr(fmt.Errorf("%w: keepalive: %v", ErrUnavailable, err))
				return
			}
		case <-s.closing:
			return
		}
	}
}

func (s *streamingSession) writeControl(kind string) error {
	return s.conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"`+kind+`"}`))
}

func (s *streamingSession) readLoop() {
	defer s.wg.Done()

	for {
		_, payload, err := s.conn.ReadMessage()
		if err != nil {
			s.setErr(fmt.Errorf("%w: read: %w", ErrUnavailable, err))
			return
		}

		event, ok, err := decodeMessage(payload)
		if err != nil {
			s.setErr(err)
			return
		}
		if ok && !s.emit(event) {
			return
		}
	}
}

// emit blocks until the event is taken or the session is closing.
func (s *streamingSession) emit(event domain.TranscriptEvent) bool {
	select {
	case s.events <- event:
		return true
	case <-s.closing:
		return false
	}
}

type message struct {
	Type        string `json:"type"`
	Message     string `json:"message"`
	Description string `json:"description"`
	IsFinal     bool   `json:"is_final"`
	SpeechFinal bool   `json:"speech_final"`

	Channel struct {
		Alternatives []alternative `json:"alternatives"`
	} `json:"channel"`
}

type alternative struct {
	Transcript string  `json:"transcript"`
	Confidence float64 `json:"confidence"`
}

// decodeMessage turns one provider frame into a transcript event. Frames
// without text (metadata, speech markers, empty results) yield ok=false.
func decodeMessage(payload []byte) (domain.TranscriptEvent, bool, error) {
	var msg message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return domain.TranscriptEvent{}, false, nil
	}

	switch strings.ToLower(msg.Type) {
	case "error":
		text := strings.TrimSpace(firstNonEmpty(msg.Description, msg.Message))
		if text == "" {
			text = "deepgram returned an unknown error"
		}
		return domain.TranscriptEvent{}, false, errors.New(text)
	case "", "results":
	default:
		return domain.TranscriptEvent{}, false, nil
	}

	if len(msg.Channel.Alternatives) == 0 {
		return domain.TranscriptEvent{}, false, nil
	}
	text := strings.TrimSpace(msg.Channel.Alternatives[0].Transcript)
	if text == "" {
		return domain.TranscriptEvent{}, false, nil
	}

	event := domain.TranscriptEvent{Kind: domain.TranscriptKindPartial, Text: text, IsSpeechFinal: msg.SpeechFinal}
	if msg.IsFinal || msg.SpeechFinal {
		event.Kind = domain.TranscriptKindFinal
	}
	return event, true, nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

func listenURL(providerCfg Config, streamCfg ports.StreamingConfig) (string, error) {
	base := strings.TrimSpace(providerCfg.APIBaseURL)
	if base == "" {
		base = defaultBaseURL
	}
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}

	parsed, err := url.Parse(strings.TrimRight(base, "/") + "/listen")
	if err != nil {
		return "", fmt.Errorf("invalid Deepgram API base URL: %w", err)
	}

	if streamCfg.Encoding == "" {
		streamCfg.Encoding = "linear16"
	}
	if streamCfg.SampleRate <= 0 {
		streamCfg.SampleRate = 16000
	}
	if streamCfg.Channels <= 0 {
		streamCfg.Channels = 1
	}
	language := streamCfg.Language
	if language == "" {
		language = providerCfg.Language
	}

	query := parsed.Query()
	query.Set("model", providerCfg.Model)
	query.Set("encoding", streamCfg.Encoding)
	query.Set("sample_rate", strconv.Itoa(streamCfg.SampleRate))
	query.Set("channels", strconv.Itoa(streamCfg.Channels))
	query.Set("interim_results", strconv.FormatBool(streamCfg.InterimResults))
	query.Set("smart_format", strconv.FormatBool(providerCfg.SmartFormat))
	if language != "" {
		query.Set("language", language)
	}
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}
