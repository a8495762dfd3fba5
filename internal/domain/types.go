package domain

import "time"

// JobStatus tracks each pipeline stage for a single transcription job.
type JobStatus string

const (
	JobStatusIdle         JobStatus = "idle"
	JobStatusExtracting   JobStatus = "extracting"
	JobStatusTranscribing JobStatus = "transcribing"
	JobStatusRendering    JobStatus = "rendering"
	JobStatusFailed       JobStatus = "failed"
)

// Settings contains user-selectable runtime configuration.
// The API credential is never stored here; see config.LoadCredential.
type Settings struct {
	Endpoint              string `json:"endpoint"`
	Model                 string `json:"model"`
	Language              string `json:"language"`
	SaveDir               string `json:"saveDir"`
	RequestTimeoutSeconds int    `json:"requestTimeoutSeconds"`
	LogFile               string `json:"logFile"`
}

// RequestTimeout converts the configured timeout into a duration.
func (s Settings) RequestTimeout() time.Duration {
	if s.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(s.RequestTimeoutSeconds) * time.Second
}

// Job stores the current job identity, lifecycle status and coarse progress.
type Job struct {
	ID         string    `json:"id"`
	SourcePath string    `json:"sourcePath,omitempty"`
	Status     JobStatus `json:"status"`
	Progress   int       `json:"progress"`
	StartedAt  time.Time `json:"startedAt,omitempty"`
	EndedAt    time.Time `json:"endedAt,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// Segment is a timed span of speech, offsets in seconds.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Transcript is the structured result returned by the transcription service.
// Segments keep the order the service returned them in.
type Transcript struct {
	Text     string    `json:"text"`
	Language string    `json:"language,omitempty"`
	Duration float64   `json:"duration,omitempty"`
	Segments []Segment `json:"segments"`
}
