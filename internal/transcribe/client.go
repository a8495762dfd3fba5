package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/text/language"

	"video-transcriber/internal/config"
	"video-transcriber/internal/domain"
	"video-transcriber/internal/logging"
	"video-transcriber/internal/transcript"
)

// ErrMissingAPIKey is returned when a request is attempted without a credential.
var ErrMissingAPIKey = errors.New("transcription API key is not configured")

// ErrMalformedResponse marks a 2xx response whose body could not be used.
var ErrMalformedResponse = errors.New("malformed transcription response")

const defaultRetryDelay = 2 * time.Second

// APIError is a non-success HTTP answer from the transcription service.
type APIError struct {
	StatusCode int
	Type       string
	Code       string
	Message    string
}

// Error formats the status and the service-provided message.
func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	if e.Type != "" || e.Code != "" {
		return fmt.Sprintf("transcription API status %d (%s, %s): %s", e.StatusCode, e.Type, e.Code, e.Message)
	}
	return fmt.Sprintf("transcription API status %d: %s", e.StatusCode, e.Message)
}

// Client uploads one audio file per call to an OpenAI-compatible
// audio/transcriptions endpoint and asks for segment timestamps.
type Client struct {
	endpoint   string
	apiKey     string
	model      string
	language   string
	httpClient *http.Client
	retryDelay time.Duration
	log        *logrus.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithEndpoint overrides the transcription URL.
func WithEndpoint(endpoint string) Option {
	return func(c *Client) { c.endpoint = strings.TrimSpace(endpoint) }
}

// WithModel overrides the model identifier.
func WithModel(model string) Option {
	return func(c *Client) { c.model = strings.TrimSpace(model) }
}

// WithLanguage sets an ISO-639-1 hint sent with every request.
func WithLanguage(language string) Option {
	return func(c *Client) { c.language = strings.TrimSpace(language) }
}

// WithHTTPClient replaces the transport.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithRetryDelay sets the pause before the single network retry.
func WithRetryDelay(d time.Duration) Option {
	return func(c *Client) { c.retryDelay = d }
}

// WithLogger routes retry warnings to log.
func WithLogger(log *logrus.Logger) Option {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

// NewClient builds a client with OpenAI defaults.
func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		endpoint:   config.DefaultEndpoint,
		apiKey:     strings.TrimSpace(apiKey),
		model:      config.DefaultModel,
		httpClient: &http.Client{},
		retryDelay: defaultRetryDelay,
		log:        logging.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewClientFromSettings builds a client for the given settings.
func NewClientFromSettings(settings domain.Settings, apiKey string, log *logrus.Logger) (*Client, error) {
	hint, err := transcript.ParseHint(settings.Language)
	if err != nil {
		return nil, err
	}

	return NewClient(apiKey,
		WithEndpoint(settings.Endpoint),
		WithModel(settings.Model),
		WithLanguage(hint),
		WithHTTPClient(&http.Client{Timeout: settings.RequestTimeout()}),
		WithLogger(log),
	), nil
}

// Transcribe uploads the whole audio file in one request and returns the
// parsed transcript. A transient network failure is retried once; HTTP
// error statuses never are.
func (c *Client) Transcribe(ctx context.Context, audioPath string) (domain.Transcript, error) {
	if c.apiKey == "" {
		return domain.Transcript{}, ErrMissingAPIKey
	}

	body, contentType, err := c.buildForm(audioPath)
	if err != nil {
		return domain.Transcript{}, err
	}

	resp, err := c.post(ctx, body, contentType)
	if err != nil && isTransient(ctx, err) {
		c.log.WithError(err).WithField("endpoint", c.endpoint).Warn("transcription request failed, retrying once")
		select {
		case <-ctx.Done():
			return domain.Transcript{}, ctx.Err()
		case <-time.After(c.retryDelay):
		}
		resp, err = c.post(ctx, body, contentType)
	}
	if err != nil {
		return domain.Transcript{}, err
	}

	return toTranscript(resp), nil
}

// buildForm writes the multipart body with the model, response format and file.
func (c *Client) buildForm(audioPath string) ([]byte, string, error) {
	audio, err := os.ReadFile(audioPath)
	if err != nil {
		return nil, "", fmt.Errorf("read audio file: %w", err)
	}
	if len(audio) == 0 {
		return nil, "", fmt.Errorf("audio file is empty: %s", audioPath)
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	fields := [][2]string{
		{"model", c.model},
		{"response_format", "verbose_json"},
		{"timestamp_granularities[]", "segment"},
	}
	if c.language != "" {
		fields = append(fields, [2]string{"language", c.language})
	}
	for _, field := range fields {
		if err := writer.WriteField(field[0], field[1]); err != nil {
			return nil, "", fmt.Errorf("write %s field: %w", field[0], err)
		}
	}

	filePart, err := writer.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return nil, "", fmt.Errorf("create file form field: %w", err)
	}
	if _, err := filePart.Write(audio); err != nil {
		return nil, "", fmt.Errorf("write audio data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart writer: %w", err)
	}

	return buf.Bytes(), writer.FormDataContentType(), nil
}

type verboseResponse struct {
	Text     *string          `json:"text"`
	Language string           `json:"language,omitempty"`
	Duration float64          `json:"duration,omitempty"`
	Segments []segmentPayload `json:"segments,omitempty"`
}

type segmentPayload struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

func (c *Client) post(ctx context.Context, body []byte, contentType string) (*verboseResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build transcription request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("transcription request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, decodeAPIError(resp)
	}

	var out verboseResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if out.Text == nil {
		return nil, fmt.Errorf("%w: missing text field", ErrMalformedResponse)
	}
	return &out, nil
}

func toTranscript(resp *verboseResponse) domain.Transcript {
	tr := domain.Transcript{
		Text:     *resp.Text,
		Language: resp.Language,
		Duration: resp.Duration,
		Segments: make([]domain.Segment, 0, len(resp.Segments)),
	}
	for _, seg := range resp.Segments {
		tr.Segments = append(tr.Segments, domain.Segment{Start: seg.Start, End: seg.End, Text: seg.Text})
	}
	if tr.Language == "" {
		if tag := transcript.DetectLanguage(tr.Text); tag != language.Und {
			tr.Language = tag.String()
		}
	}
	return tr
}

func decodeAPIError(resp *http.Response) error {
	body, readErr := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if readErr != nil {
		return &APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	}

	var envelope struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
			Code    any    `json:"code"`
		} `json:"error"`
	}

	apiErr := &APIError{StatusCode: resp.StatusCode}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		apiErr.Message = envelope.Error.Message
		apiErr.Type = envelope.Error.Type
		if envelope.Error.Code != nil {
			apiErr.Code = fmt.Sprint(envelope.Error.Code)
		}
		return apiErr
	}

	text := strings.TrimSpace(string(body))
	if text == "" {
		text = http.StatusText(resp.StatusCode)
	}
	apiErr.Message = text
	return apiErr
}

// isTransient reports whether err is a network failure worth one retry.
func isTransient(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) || errors.Is(err, ErrMalformedResponse) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED)
}

// Describe turns a client error into the single message shown to the user.
func Describe(err error) string {
	var apiErr *APIError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrMissingAPIKey):
		return "the API key is not configured"
	case errors.As(err, &apiErr):
		switch {
		case apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden:
			return fmt.Sprintf("authentication rejected by the transcription service (HTTP %d)", apiErr.StatusCode)
		case apiErr.StatusCode == http.StatusTooManyRequests:
			return fmt.Sprintf("quota or rate limit exceeded (HTTP %d)", apiErr.StatusCode)
		case apiErr.StatusCode >= 500:
			return fmt.Sprintf("the transcription service is unavailable (HTTP %d)", apiErr.StatusCode)
		default:
			return fmt.Sprintf("the transcription service rejected the request (HTTP %d): %s", apiErr.StatusCode, apiErr.Message)
		}
	case errors.Is(err, ErrMalformedResponse):
		return "the transcription service returned an unexpected response"
	case errors.Is(err, context.DeadlineExceeded):
		return "the transcription request timed out"
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return "the transcription request timed out"
		}
		return "could not reach the transcription service"
	}
	return err.Error()
}
