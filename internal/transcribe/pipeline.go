package transcribe

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"video-transcriber/internal/domain"
	"video-transcriber/internal/logging"
	"video-transcriber/internal/media"
	"video-transcriber/internal/transcript"
)

// Stage names one step of a transcription job.
type Stage string

const (
	StageExtracting   Stage = "extracting"
	StageTranscribing Stage = "transcribing"
	StageRendering    Stage = "rendering"
)

// Request contains the input video and execution callbacks for one run.
type Request struct {
	InputPath string
	OnStage   func(stage Stage)
	OnLog     func(log media.CommandLog)
}

// Result contains the transcript and both rendered views.
type Result struct {
	Transcript  domain.Transcript
	FullText    string
	DisplayText string
	StartedAt   time.Time
	EndedAt     time.Time
}

// InputError reports a missing or unusable source path. No stage runs.
type InputError struct {
	Path string
	Err  error
}

// Error formats input failures for the user.
func (e *InputError) Error() string {
	if e == nil {
		return ""
	}
	if strings.TrimSpace(e.Path) == "" {
		return "no video file selected"
	}
	return fmt.Sprintf("cannot open video file: %s", e.Path)
}

// Unwrap exposes the stat error.
func (e *InputError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// PipelineError is a stage-aware error with optional command context.
// Message is the single line shown to the user; Err keeps the full cause
// with a stack trace for the diagnostic log.
type PipelineError struct {
	Stage      Stage            `json:"stage"`
	Message    string           `json:"message"`
	CommandLog media.CommandLog `json:"commandLog"`
	Err        error            `json:"-"`
}

// Error formats pipeline failures for logs and UI.
func (e *PipelineError) Error() string {
	if e == nil {
		return ""
	}
	if e.CommandLog.Command == "" {
		return fmt.Sprintf("%s: %s", e.Stage, e.Message)
	}

	return fmt.Sprintf(
		"%s: %s (cmd=%s exit=%d)",
		e.Stage,
		e.Message,
		e.CommandLog.Command,
		e.CommandLog.ExitCode,
	)
}

// Unwrap exposes underlying error for errors.Is / errors.As.
func (e *PipelineError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// audioExtractor produces a temporary audio file from a video.
type audioExtractor interface {
	Extract(ctx context.Context, videoPath string, onLog func(media.CommandLog)) (string, error)
}

// transcriber turns an audio file into a structured transcript.
type transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (domain.Transcript, error)
}

// Pipeline sequences extraction, transcription and rendering for one video.
type Pipeline struct {
	extractor audioExtractor
	client    transcriber
	log       *logrus.Logger
	now       func() time.Time
	stat      func(name string) (os.FileInfo, error)
	remove    func(name string) error
}

// NewPipeline constructs the production pipeline around a configured client.
func NewPipeline(client *Client, log *logrus.Logger) *Pipeline {
	if log == nil {
		log = logging.Discard()
	}
	return &Pipeline{
		extractor: media.NewExtractor(),
		client:    client,
		log:       log,
		now:       time.Now,
		stat:      os.Stat,
		remove:    os.Remove,
	}
}

// NewPipelineForTests constructs a pipeline with injectable dependencies.
func NewPipelineForTests(
	extractor audioExtractor,
	client transcriber,
	now func() time.Time,
	remove func(name string) error,
) *Pipeline {
	return &Pipeline{
		extractor: extractor,
		client:    client,
		log:       logging.Discard(),
		now:       now,
		stat:      os.Stat,
		remove:    remove,
	}
}

// ValidateInput checks that path names an existing regular file.
func ValidateInput(path string) error {
	return validateInput(os.Stat, path)
}

func validateInput(stat func(string) (os.FileInfo, error), path string) error {
	if strings.TrimSpace(path) == "" {
		return &InputError{Path: path}
	}
	info, err := stat(path)
	if err != nil {
		return &InputError{Path: path, Err: err}
	}
	if info.IsDir() {
		return &InputError{Path: path, Err: fmt.Errorf("%s is a directory", path)}
	}
	return nil
}

// Run performs extraction, transcription and rendering. Stages never overlap
// and the extracted audio is removed before Run returns, on every path.
func (p *Pipeline) Run(ctx context.Context, req Request) (Result, error) {
	if err := validateInput(p.stat, req.InputPath); err != nil {
		return Result{}, err
	}

	startedAt := p.now()
	emitStage(req.OnStage, StageExtracting)
	audioPath, err := p.extractor.Extract(ctx, req.InputPath, req.OnLog)
	defer p.cleanup(audioPath)
	if err != nil {
		pErr := &PipelineError{
			Stage:   StageExtracting,
			Message: "audio extraction failed: " + describeExtraction(err),
			Err:     pkgerrors.WithStack(err),
		}
		var extractErr *media.ExtractError
		if errors.As(err, &extractErr) {
			pErr.CommandLog = extractErr.CommandLog
		}
		return Result{}, pErr
	}

	emitStage(req.OnStage, StageTranscribing)
	tr, err := p.client.Transcribe(ctx, audioPath)
	if err != nil {
		return Result{}, &PipelineError{
			Stage:   StageTranscribing,
			Message: "transcription failed: " + Describe(err),
			Err:     pkgerrors.WithStack(err),
		}
	}

	endedAt := p.now()
	emitStage(req.OnStage, StageRendering)
	full, display := transcript.Format(
		tr,
		startedAt.Format(transcript.TimestampLayout),
		endedAt.Format(transcript.TimestampLayout),
	)

	return Result{
		Transcript:  tr,
		FullText:    full,
		DisplayText: display,
		StartedAt:   startedAt,
		EndedAt:     endedAt,
	}, nil
}

// cleanup removes the audio artifact if one was produced.
func (p *Pipeline) cleanup(audioPath string) {
	if audioPath == "" {
		return
	}
	if err := p.remove(audioPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		p.log.WithError(err).WithField("path", audioPath).Warn("remove temporary audio")
	}
}

// emitStage forwards stage updates when callback is configured.
func emitStage(cb func(stage Stage), stage Stage) {
	if cb != nil {
		cb(stage)
	}
}

// describeExtraction gives the user-facing reason for an extraction failure.
func describeExtraction(err error) string {
	var extractErr *media.ExtractError
	switch {
	case errors.Is(err, media.ErrNoAudioTrack) && !errors.As(err, &extractErr):
		return "the video has no audio track"
	case errors.As(err, &extractErr):
		return extractErr.Message
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "interrupted"
	default:
		return err.Error()
	}
}
