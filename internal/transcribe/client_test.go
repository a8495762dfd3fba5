package transcribe

import (
	"context"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"video-transcriber/internal/domain"
)

func writeAudio(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "audio.mp3")
	require.NoError(t, os.WriteFile(path, []byte("fake-audio-bytes"), 0o644))
	return path
}

func TestClientTranscribeSendsVerboseMultipart(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		mediaType, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if !assert.NoError(t, err) {
			return
		}
		assert.Equal(t, "multipart/form-data", mediaType)

		reader := multipart.NewReader(r.Body, params["boundary"])
		fields := map[string]string{}
		var fileName, fileData string
		for {
			part, err := reader.NextPart()
			if err != nil {
				break
			}
			data, _ := io.ReadAll(part)
			if part.FormName() == "file" {
				fileName = part.FileName()
				fileData = string(data)
				continue
			}
			fields[part.FormName()] = string(data)
		}

		assert.Equal(t, "whisper-1", fields["model"])
		assert.Equal(t, "verbose_json", fields["response_format"])
		assert.Equal(t, "segment", fields["timestamp_granularities[]"])
		assert.Equal(t, "en", fields["language"])
		assert.Equal(t, "audio.mp3", fileName)
		assert.Equal(t, "fake-audio-bytes", fileData)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"text": "Hello world",
			"language": "english",
			"duration": 3.0,
			"segments": [
				{"start": 0.0, "end": 1.5, "text": "Hello "},
				{"start": 1.5, "end": 3.0, "text": " world"}
			]
		}`))
	}))
	defer server.Close()

	client := NewClient("test-key",
		WithEndpoint(server.URL),
		WithLanguage("en"),
		WithHTTPClient(server.Client()),
	)

	tr, err := client.Transcribe(context.Background(), writeAudio(t))
	require.NoError(t, err)

	assert.Equal(t, "Hello world", tr.Text)
	assert.Equal(t, "english", tr.Language)
	assert.Equal(t, []domain.Segment{
		{Start: 0.0, End: 1.5, Text: "Hello "},
		{Start: 1.5, End: 3.0, Text: " world"},
	}, tr.Segments)
}

func TestClientTranscribeWithoutSegments(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"text": "just text"}`))
	}))
	defer server.Close()

	client := NewClient("k", WithEndpoint(server.URL), WithHTTPClient(server.Client()))
	tr, err := client.Transcribe(context.Background(), writeAudio(t))
	require.NoError(t, err)

	assert.Equal(t, "just text", tr.Text)
	assert.NotNil(t, tr.Segments)
	assert.Empty(t, tr.Segments)
}

func TestClientTranscribeUnauthorized(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"Incorrect API key provided","type":"invalid_request_error","code":"invalid_api_key"}}`))
	}))
	defer server.Close()

	client := NewClient("bad", WithEndpoint(server.URL), WithHTTPClient(server.Client()), WithRetryDelay(0))
	_, err := client.Transcribe(context.Background(), writeAudio(t))

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, "Incorrect API key provided", apiErr.Message)
	assert.Equal(t, "invalid_api_key", apiErr.Code)
	assert.Equal(t, int32(1), hits.Load(), "HTTP errors are never retried")
	assert.Contains(t, Describe(err), "authentication")
}

func TestClientTranscribePlainTextErrorBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream overloaded", http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewClient("k", WithEndpoint(server.URL), WithHTTPClient(server.Client()))
	_, err := client.Transcribe(context.Background(), writeAudio(t))

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "upstream overloaded", apiErr.Message)
	assert.Contains(t, Describe(err), "unavailable")
}

func TestClientTranscribeMalformedBody(t *testing.T) {
	for _, body := range []string{`{"text": `, `{"segments": []}`} {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(body))
		}))

		client := NewClient("k", WithEndpoint(server.URL), WithHTTPClient(server.Client()))
		_, err := client.Transcribe(context.Background(), writeAudio(t))
		server.Close()

		assert.ErrorIs(t, err, ErrMalformedResponse, "body %q", body)
	}
}

func TestClientTranscribeMissingKey(t *testing.T) {
	client := NewClient("  ")
	_, err := client.Transcribe(context.Background(), writeAudio(t))
	assert.ErrorIs(t, err, ErrMissingAPIKey)
	assert.Equal(t, "the API key is not configured", Describe(err))
}

// flakyTransport fails the first round trip with a connection error.
type flakyTransport struct {
	calls atomic.Int32
	next  http.RoundTripper
	fails int32
}

func (f *flakyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if f.calls.Add(1) <= f.fails {
		return nil, &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED}
	}
	return f.next.RoundTrip(req)
}

func TestClientTranscribeRetriesOnceOnNetworkFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.NotEmpty(t, body, "retried request must resend the full body")
		_, _ = w.Write([]byte(`{"text": "ok"}`))
	}))
	defer server.Close()

	transport := &flakyTransport{next: server.Client().Transport, fails: 1}
	client := NewClient("k",
		WithEndpoint(server.URL),
		WithHTTPClient(&http.Client{Transport: transport}),
		WithRetryDelay(time.Millisecond),
	)

	tr, err := client.Transcribe(context.Background(), writeAudio(t))
	require.NoError(t, err)
	assert.Equal(t, "ok", tr.Text)
	assert.Equal(t, int32(2), transport.calls.Load())
}

func TestClientTranscribeGivesUpAfterOneRetry(t *testing.T) {
	transport := &flakyTransport{next: http.DefaultTransport, fails: 5}
	client := NewClient("k",
		WithEndpoint("http://127.0.0.1:1/v1/audio/transcriptions"),
		WithHTTPClient(&http.Client{Transport: transport}),
		WithRetryDelay(time.Millisecond),
	)

	_, err := client.Transcribe(context.Background(), writeAudio(t))
	require.Error(t, err)
	assert.Equal(t, int32(2), transport.calls.Load())
	assert.Equal(t, "could not reach the transcription service", Describe(err))
}

func TestDescribe(t *testing.T) {
	cases := map[int]string{
		http.StatusForbidden:       "authentication rejected by the transcription service (HTTP 403)",
		http.StatusTooManyRequests: "quota or rate limit exceeded (HTTP 429)",
		http.StatusBadRequest:      "the transcription service rejected the request (HTTP 400): file too large",
	}
	for status, want := range cases {
		err := &APIError{StatusCode: status, Message: "file too large"}
		assert.Equal(t, want, Describe(err))
	}
	assert.Equal(t, "the transcription request timed out", Describe(context.DeadlineExceeded))
	assert.Equal(t, "", Describe(nil))
	assert.Equal(t, "boom", Describe(errors.New("boom")))
}

func TestNewClientFromSettingsRejectsBadLanguage(t *testing.T) {
	_, err := NewClientFromSettings(domain.Settings{Language: "not a language"}, "k", nil)
	assert.Error(t, err)
}
