package speech

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/samber/lo"

	"koihealth/internal/domain"
	"koihealth/internal/logger"
)

// AzureOption configures the Azure TTS client.
type AzureOption func(*AzureClient)

// WithVoice sets the voice used when a request names none.
func WithVoice(voice string) AzureOption {
	return func(c *AzureClient) {
		if voice != "" {
			c.voice = voice
		}
	}
}

// WithAudioFormat sets the audio output format.
func WithAudioFormat(format string) AzureOption {
	return func(c *AzureClient) {
		c.format = format
	}
}

// WithHTTPTimeout sets the HTTP client timeout for TTS requests.
func WithHTTPTimeout(d time.Duration) AzureOption {
	return func(c *AzureClient) {
		c.httpClient.Timeout = d
	}
}

// WithBaseURL points the client at another host, e.g. a local proxy.
func WithBaseURL(base string) AzureOption {
	return func(c *AzureClient) {
		c.baseURL = strings.TrimRight(base, "/")
	}
}

// Request is one synthesis call. Rate, Pitch and Volume use the 0..2 / 0..1
// scales of the voice preferences; zero values mean the engine default.
type Request struct {
	Text   string
	Voice  string
	Lang   string
	Rate   float64
	Pitch  float64
	Volume float64
}

// AzureClient handles text-to-speech synthesis via Azure Cognitive Services.
type AzureClient struct {
	subscriptionKey string
	baseURL         string
	voice           string
	format          string
	httpClient      *http.Client
	log             *logger.Logger
}

// NewAzureClient creates an Azure TTS client with the given credentials.
func NewAzureClient(key, region string, log *logger.Logger, opts ...AzureOption) *AzureClient {
	if log == nil {
		log = logger.Nop()
	}
	c := &AzureClient{
		subscriptionKey: key,
		baseURL:         fmt.Sprintf("https://%s.tts.speech.microsoft.com", region),
		voice:           DefaultVoice,
		format:          DefaultAudioFormat,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		log: log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Synthesize converts text to speech audio data (WAV bytes).
func (c *AzureClient) Synthesize(ctx context.Context, r Request) ([]byte, error) {
	if strings.TrimSpace(r.Voice) == "" {
		r.Voice = c.voice
	}
	ssml := buildSSML(r)
	c.log.Debug("azure tts: synthesizing %d chars with voice %s", len(r.Text), r.Voice)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/cognitiveservices/v1", strings.NewReader(ssml))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", c.subscriptionKey)
	req.Header.Set("Content-Type", "application/ssml+xml")
	req.Header.Set("X-Microsoft-OutputFormat", c.format)
	req.Header.Set("User-Agent", "KoiHealth/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tts request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("azure tts error %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading audio data: %w", err)
	}
	c.log.Debug("azure tts: got %d bytes of audio", len(audio))
	return audio, nil
}

type azureVoice struct {
	ShortName string `json:"ShortName"`
	LocalName string `json:"LocalName"`
	Locale    string `json:"Locale"`
}

// Voices lists the neural voices available in the region.
func (c *AzureClient) Voices(ctx context.Context) ([]domain.Voice, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/cognitiveservices/voices/list", nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", c.subscriptionKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("voice list request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("azure voice list error %d", resp.StatusCode)
	}

	var listed []azureVoice
	if err := json.NewDecoder(resp.Body).Decode(&listed); err != nil {
		return nil, fmt.Errorf("decoding voice list: %w", err)
	}

	voices := lo.FilterMap(listed, func(v azureVoice, _ int) (domain.Voice, bool) {
		return domain.Voice{
			Name:    v.ShortName,
			Lang:    v.Locale,
			URI:     v.LocalName,
			Default: v.ShortName == c.voice,
		}, v.ShortName != ""
	})
	return voices, nil
}

func buildSSML(r Request) string {
	lang := r.Lang
	if lang == "" {
		lang = DefaultLang
	}

	var text strings.Builder
	_ = xml.EscapeText(&text, []byte(r.Text))

	return fmt.Sprintf(
		`<speak version='1.0' xmlns='http://www.w3.org/2001/10/synthesis' xml:lang='%s'><voice name='%s'><prosody rate='%s' pitch='%s' volume='%s'>%s</prosody></voice></speak>`,
		lang, voiceOrDefault(r.Voice), relative(r.Rate), relative(r.Pitch), volume(r.Volume), text.String(),
	)
}

func voiceOrDefault(voice string) string {
	if strings.TrimSpace(voice) == "" {
		return DefaultVoice
	}
	return voice
}

// relative turns a 1.0-centred multiplier into an SSML percentage change.
func relative(v float64) string {
	if v <= 0 {
		return "+0%"
	}
	return fmt.Sprintf("%+d%%", int(math.Round((v-1)*100)))
}

func volume(v float64) string {
	if v <= 0 {
		v = 1
	}
	if v > 1 {
		v = 1
	}
	return fmt.Sprintf("%d", int(math.Round(v*100)))
}
