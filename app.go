package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"

	"github.com/wailsapp/wails/v2/pkg/runtime"

	"koihealth/internal/bootstrap"
	"koihealth/internal/conversation"
	"koihealth/internal/domain"
	"koihealth/internal/medication"
)

const (
	eventVoiceState = "koihealth:voice-state"
	eventPartial    = "koihealth:partial"
	eventQuestion   = "koihealth:question"
	eventAnswer     = "koihealth:answer"
	eventError      = "koihealth:error"
	eventChatChunk  = "koihealth:chat-chunk"
)

// App is the Wails application root.
type App struct {
	ctx context.Context

	services *bootstrap.Services
	bootErr  error

	chatMu     sync.Mutex
	chatCancel context.CancelFunc

	emitEvent func(ctx context.Context, name string, data ...interface{})
}

func NewApp() *App {
	return &App{emitEvent: runtime.EventsEmit}
}

func (a *App) startup(ctx context.Context) {
	a.ctx = ctx

	services, err := bootstrap.Build(ctx, a)
	if err != nil {
		a.bootErr = err
		a.VoiceError(domain.ErrorCodeStartup, err.Error())
		return
	}
	a.services = services
}

func (a *App) shutdown(_ context.Context) {
	a.StopMessage()
	if a.services != nil {
		if err := a.services.Close(); err != nil {
			a.services.Log.Warn("app: shutdown: %v", err)
		}
	}
}

// InitVoice probes the microphone permission and loads the voice catalog.
func (a *App) InitVoice() (domain.VoiceStatus, error) {
	if err := a.requireReady(); err != nil {
		return domain.VoiceStatus{}, err
	}
	return a.services.Voice.Init(a.ctx), nil
}

// RequestMicrophone asks for microphone access.
func (a *App) RequestMicrophone() (domain.PermissionState, error) {
	if err := a.requireReady(); err != nil {
		return domain.PermissionUnknown, err
	}
	return a.services.Voice.RequestPermission(a.ctx)
}

// PressToTalk starts a push-to-talk gesture.
func (a *App) PressToTalk() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.services.Voice.Press(a.ctx)
}

// ReleaseToTalk ends the gesture and answers the captured question.
func (a *App) ReleaseToTalk() (domain.CaptureResult, error) {
	if err := a.requireReady(); err != nil {
		return domain.CaptureResult{}, err
	}
	return a.services.Voice.Release(a.ctx)
}

// CancelCapture discards the current gesture.
func (a *App) CancelCapture() {
	if a.services != nil {
		a.services.Voice.Cancel()
	}
}

// PlayAnswer plays an answer whose autoplay was blocked.
func (a *App) PlayAnswer() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.services.Voice.PlayManually(a.ctx)
}

func (a *App) PauseSpeech() bool {
	return a.services != nil && a.services.Voice.Pause()
}

func (a *App) ResumeSpeech() bool {
	return a.services != nil && a.services.Voice.Resume()
}

func (a *App) StopSpeech() {
	if a.services != nil {
		a.services.Voice.StopSpeech()
	}
}

// SpeakText reads text with the voice preferences.
func (a *App) SpeakText(text string) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.services.Voice.Speak(a.ctx, text)
}

// GetVoiceStatus returns the current voice status.
func (a *App) GetVoiceStatus() domain.VoiceStatus {
	if a.services == nil {
		status := domain.VoiceStatus{}
		if a.bootErr != nil {
			status.Message = a.bootErr.Error()
		}
		return status
	}
	return a.services.Voice.Status()
}

func (a *App) GetVoices() ([]domain.Voice, error) {
	if err := a.requireReady(); err != nil {
		return nil, err
	}
	return a.services.Voice.Voices(a.ctx)
}

func (a *App) GetVoicePreferences() (domain.VoicePreferences, error) {
	if err := a.requireReady(); err != nil {
		return domain.VoicePreferences{}, err
	}
	return a.services.Prefs.LoadVoice(a.ctx)
}

func (a *App) SetVoicePreferences(prefs domain.VoicePreferences) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.services.Prefs.SaveVoice(a.ctx, prefs)
}

func (a *App) GetTTSPreferences() (domain.TTSPreferences, error) {
	if err := a.requireReady(); err != nil {
		return domain.TTSPreferences{}, err
	}
	return a.services.Prefs.LoadTTS(a.ctx)
}

func (a *App) SetTTSPreferences(prefs domain.TTSPreferences) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.services.Prefs.SaveTTS(a.ctx, prefs)
}

// SendMessage asks a chat question. Answer text is streamed through chat
// chunk events while the call is in flight.
func (a *App) SendMessage(question string) (conversation.Reply, error) {
	if err := a.requireReady(); err != nil {
		return conversation.Reply{}, err
	}

	ctx, cancel := context.WithCancel(a.ctx)
	a.chatMu.Lock()
	a.chatCancel = cancel
	a.chatMu.Unlock()
	defer func() {
		a.chatMu.Lock()
		a.chatCancel = nil
		a.chatMu.Unlock()
		cancel()
	}()

	reply, err := a.services.Conversation.Submit(ctx, question, a.chatChunk)
	var retryable *conversation.RetryableError
	switch {
	case errors.As(err, &retryable):
		a.VoiceError(domain.ErrorCodeServer, retryable.Err.Error())
	case errors.Is(err, domain.ErrEmptyQuestion), errors.Is(err, conversation.ErrBusy), errors.Is(err, context.Canceled):
	case err != nil:
		a.VoiceError(domain.ErrorCodeTransport, err.Error())
	}
	return reply, err
}

// RetryLastQuestion submits the most recent user question again.
func (a *App) RetryLastQuestion() (conversation.Reply, error) {
	if err := a.requireReady(); err != nil {
		return conversation.Reply{}, err
	}
	question, ok := a.services.Conversation.Retry()
	if !ok {
		return conversation.Reply{}, domain.ErrEmptyQuestion
	}
	return a.SendMessage(question)
}

// StopMessage cancels the answer being streamed, if any.
func (a *App) StopMessage() {
	a.chatMu.Lock()
	cancel := a.chatCancel
	a.chatMu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (a *App) GetChatHistory() []domain.ConversationTurn {
	if a.services == nil {
		return nil
	}
	return a.services.Conversation.Turns()
}

func (a *App) ClearChatHistory() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.services.Conversation.Clear(a.ctx)
}

// CheckAPIHealth reports whether the chat endpoint is reachable.
func (a *App) CheckAPIHealth() bool {
	return a.services != nil && a.services.Chat.CheckHealth(a.ctx)
}

// MedicationResult is an analysis together with its rendered markdown.
type MedicationResult struct {
	Report   medication.Report `json:"report"`
	Markdown string            `json:"markdown"`
}

// AnalyzeMedication analyzes a base64 encoded medicine photo.
func (a *App) AnalyzeMedication(fileName string, imageBase64 string, question string) (MedicationResult, error) {
	if err := a.requireReady(); err != nil {
		return MedicationResult{}, err
	}
	data, err := base64.StdEncoding.DecodeString(imageBase64)
	if err != nil {
		return MedicationResult{}, fmt.Errorf("decode image: %w", err)
	}

	report, err := a.services.Medication.Analyze(a.ctx, medication.Image{Name: fileName, Data: bytes.NewReader(data)}, question)
	if err != nil {
		return MedicationResult{}, err
	}
	return MedicationResult{Report: report, Markdown: medication.FormatMarkdown(report.Analysis)}, nil
}

// GetRuntimeInfo returns non-sensitive config for the UI.
func (a *App) GetRuntimeInfo() map[string]string {
	if a.bootErr != nil {
		return map[string]string{"error": a.bootErr.Error()}
	}
	if a.services == nil {
		return map[string]string{}
	}

	cfg := a.services.Config
	return map[string]string{
		"chatEndpoint":   cfg.Chat.Endpoint,
		"model":          cfg.Chat.Model,
		"offline":        fmt.Sprint(cfg.Chat.OfflineOnly),
		"platform":       string(a.services.Voice.Status().Platform),
		"speechInput":    fmt.Sprint(cfg.SpeechInputAvailable()),
		"speechOutput":   fmt.Sprint(cfg.SpeechOutputAvailable()),
		"recognizer":     "Deepgram " + cfg.Deepgram.Model,
		"language":       cfg.Deepgram.Language,
		"rulesFile":      cfg.Rules.Path,
		"audioInput":     cfg.Audio.InputDevice,
		"storage":        cfg.Storage.Path,
		"medicationHost": cfg.Medication.Endpoint,
	}
}

func (a *App) requireReady() error {
	if a.bootErr != nil {
		return a.bootErr
	}
	if a.services == nil {
		return fmt.Errorf("application is not initialized")
	}
	return nil
}

func (a *App) chatChunk(text string) {
	a.emit(eventChatChunk, map[string]string{"text": text})
}

// VoiceStateChanged emits voice lifecycle updates to the frontend.
func (a *App) VoiceStateChanged(status domain.VoiceStatus, reason domain.VoiceStateReason) {
	message := status.Message
	if message == "" {
		message = reasonMessage(reason)
	}
	a.emit(eventVoiceState, map[string]any{
		"status":  status,
		"reason":  string(reason),
		"message": message,
	})
}

// PartialTranscript emits live transcript text.
func (a *App) PartialTranscript(text string) {
	a.emit(eventPartial, map[string]string{"text": text})
}

// QuestionRecognized emits the finalized spoken question.
func (a *App) QuestionRecognized(question string) {
	a.emit(eventQuestion, map[string]string{"question": question})
}

// AnswerReady emits the answer of a spoken question.
func (a *App) AnswerReady(answer string, spoken bool) {
	a.emit(eventAnswer, map[string]any{"answer": answer, "spoken": spoken})
}

// VoiceError emits backend errors to the UI.
func (a *App) VoiceError(code domain.ErrorCode, detail string) {
	a.emit(eventError, map[string]string{
		"code":    string(code),
		"message": errorMessage(code, detail),
		"detail":  detail,
	})
}

func (a *App) emit(name string, payload any) {
	if a.ctx == nil || a.emitEvent == nil {
		return
	}
	a.emitEvent(a.ctx, name, payload)
}

func reasonMessage(reason domain.VoiceStateReason) string {
	switch reason {
	case domain.ReasonReady:
		return "음성 질문 준비 완료"
	case domain.ReasonListening:
		return "듣고 있습니다..."
	case domain.ReasonPressCancelled:
		return "녹음이 취소되었습니다"
	case domain.ReasonFinalizing:
		return "음성을 처리하고 있습니다..."
	case domain.ReasonNothingUnderstood:
		return "음성이 인식되지 않았습니다"
	case domain.ReasonCaptureFailed:
		return "음성 인식에 실패했습니다"
	case domain.ReasonRecognizerEnded:
		return "음성 인식이 종료되었습니다"
	case domain.ReasonFetchingAnswer:
		return "답변을 가져오고 있습니다..."
	case domain.ReasonAnswerReady:
		return "답변이 준비되었습니다"
	case domain.ReasonSpeaking:
		return "답변을 읽고 있습니다"
	case domain.ReasonSpeechPaused:
		return "일시 정지됨"
	case domain.ReasonSpeechResumed:
		return "다시 재생 중"
	case domain.ReasonSpeechEnded:
		return "재생 완료"
	case domain.ReasonSpeechStopped:
		return "재생이 중지되었습니다"
	case domain.ReasonManualPlayback:
		return "재생 버튼을 눌러 답변을 들으세요"
	case domain.ReasonPermissionChanged:
		return "마이크 권한이 변경되었습니다"
	case domain.ReasonEngineActivated:
		return "음성 출력이 활성화되었습니다"
	case domain.ReasonActivationFailed:
		return "음성 출력을 활성화하지 못했습니다"
	case domain.ReasonSpeechInputMissing:
		return "음성 인식을 사용할 수 없습니다"
	default:
		return ""
	}
}

func errorMessage(code domain.ErrorCode, detail string) string {
	switch code {
	case domain.ErrorCodeStartup:
		return "시작하지 못했습니다"
	case domain.ErrorCodeTransport:
		return "서버에 연결할 수 없습니다"
	case domain.ErrorCodeServer:
		return "서버 오류가 발생했습니다"
	case domain.ErrorCodePermission:
		return "마이크 권한 문제"
	case domain.ErrorCodeCapture:
		return "음성 인식 문제"
	case domain.ErrorCodeAudioStream:
		return "오디오 스트림 문제"
	case domain.ErrorCodeSynthesis:
		return "음성 재생 문제"
	case domain.ErrorCodeStorage:
		return "저장소 오류"
	case domain.ErrorCodeRules:
		return "교정 규칙 처리 실패"
	default:
		if detail == "" {
			return "알 수 없는 오류"
		}
		return detail
	}
}
