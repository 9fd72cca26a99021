// Package medication uploads medicine photos for analysis and renders the
// structured result.
package medication

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"koihealth/internal/domain"
	"koihealth/internal/logger"
)

const DefaultEndpoint = "https://ai.koihealth-live.com/image"

var errEmptyAnalysis = errors.New("analysis response has no data")

// Config controls the analysis endpoint.
type Config struct {
	Endpoint string
	Timeout  time.Duration
	// Offline answers every upload with the built-in guidance.
	Offline bool
}

// Image is an uploaded photo.
type Image struct {
	Name string
	Data io.Reader
}

// Report is the outcome of an analysis.
type Report struct {
	Analysis    domain.MedicationAnalysis `json:"analysis"`
	FileName    string                    `json:"fileName"`
	Question    string                    `json:"question,omitempty"`
	Fallback    bool                      `json:"fallback"`
	ProcessedAt time.Time                 `json:"processedAt"`
}

type Client struct {
	cfg  Config
	http *http.Client
	log  *logger.Logger
	now  func() time.Time
}

func NewClient(cfg Config, httpClient *http.Client, log *logger.Logger) *Client {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Client{cfg: cfg, http: httpClient, log: log, now: time.Now}
}

// Analyze uploads img. Any failure of the endpoint yields the built-in
// guidance for the file name and question, marked as a fallback.
func (c *Client) Analyze(ctx context.Context, img Image, question string) (Report, error) {
	if img.Data == nil {
		return Report{}, errors.New("medication: image data is required")
	}
	report := Report{FileName: img.Name, Question: strings.TrimSpace(question)}

	if c.cfg.Offline {
		report.Analysis = mockAnalysis(img.Name, question)
		report.Fallback = true
		report.ProcessedAt = c.now()
		return report, nil
	}

	analysis, err := c.upload(ctx, img)
	if err != nil {
		if ctx.Err() != nil {
			return Report{}, ctx.Err()
		}
		c.log.Warn("medication: analysis failed, using built-in guidance: %v", err)
		analysis = mockAnalysis(img.Name, question)
		report.Fallback = true
	}
	report.Analysis = analysis
	report.ProcessedAt = c.now()
	return report, nil
}

func (c *Client) upload(ctx context.Context, img Image) (domain.MedicationAnalysis, error) {
	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	name := img.Name
	if name == "" {
		name = "image"
	}
	part, err := form.CreateFormFile("image_file", name)
	if err != nil {
		return domain.MedicationAnalysis{}, fmt.Errorf("build upload: %w", err)
	}
	if _, err := io.Copy(part, img.Data); err != nil {
		return domain.MedicationAnalysis{}, fmt.Errorf("read image: %w", err)
	}
	if err := form.Close(); err != nil {
		return domain.MedicationAnalysis{}, fmt.Errorf("build upload: %w", err)
	}

	endpoint, err := url.Parse(c.cfg.Endpoint)
	if err != nil {
		return domain.MedicationAnalysis{}, fmt.Errorf("parse endpoint: %w", err)
	}
	query := endpoint.Query()
	query.Set("streaming", "false")
	endpoint.RawQuery = query.Encode()

	uploadCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(uploadCtx, http.MethodPost, endpoint.String(), &body)
	if err != nil {
		return domain.MedicationAnalysis{}, err
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return domain.MedicationAnalysis{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return domain.MedicationAnalysis{}, fmt.Errorf("analysis endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	var analysis domain.MedicationAnalysis
	if err := json.NewDecoder(resp.Body).Decode(&analysis); err != nil {
		return domain.MedicationAnalysis{}, fmt.Errorf("decode analysis: %w", err)
	}
	if len(analysis.Medicines) == 0 && len(analysis.Diseases) == 0 {
		return domain.MedicationAnalysis{}, errEmptyAnalysis
	}
	return analysis, nil
}
