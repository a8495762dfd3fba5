package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os/exec"
	"path/filepath"
	goruntime "runtime"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"

	"video-transcriber/internal/config"
	"video-transcriber/internal/diagnostics"
	"video-transcriber/internal/domain"
	"video-transcriber/internal/export"
	"video-transcriber/internal/jobs"
	"video-transcriber/internal/logging"
	"video-transcriber/internal/media"
	"video-transcriber/internal/transcribe"

	wailsruntime "github.com/wailsapp/wails/v2/pkg/runtime"
)

// runtimeEventName is the Wails event carrying every jobs.Event to the window.
const runtimeEventName = "job:event"

var errPipelineUnavailable = errors.New("transcription pipeline is not configured")

var videoDialogFilter = []wailsruntime.FileFilter{
	{
		DisplayName: "Video files",
		Pattern:     "*.mp4;*.mov;*.mkv;*.avi;*.webm;*.m4v;*.wmv;*.flv",
	},
	{
		DisplayName: "All files",
		Pattern:     "*",
	},
}

var transcriptDialogFilter = []wailsruntime.FileFilter{
	{
		DisplayName: "Text files",
		Pattern:     "*.txt",
	},
}

// TranscriptView is the last rendered transcript as shown in the window.
type TranscriptView struct {
	JobID       string `json:"jobId"`
	SourcePath  string `json:"sourcePath"`
	FullText    string `json:"fullText"`
	DisplayText string `json:"displayText"`
	Language    string `json:"language,omitempty"`
}

// App wires configuration, jobs, pipeline, and UI runtime callbacks.
type App struct {
	Settings    domain.Settings
	Store       config.Store
	Jobs        *jobs.Manager
	Pipeline    pipelineRunner
	Diagnostics domain.DiagnosticReport
	Log         *logrus.Logger

	assets     fs.FS
	checker    *diagnostics.Checker
	watcher    *config.Watcher
	newID      func() string
	credential func() (string, error)
	rebuild    func(settings domain.Settings, apiKey string) pipelineRunner

	mu         sync.Mutex
	events     *jobs.EventBus
	runtimeCtx context.Context
	stopWatch  context.CancelFunc
	last       TranscriptView
}

// pipelineRunner isolates the transcription pipeline behind an interface.
type pipelineRunner interface {
	Run(ctx context.Context, req transcribe.Request) (transcribe.Result, error)
}

// New builds the application with persisted settings and startup diagnostics.
func New() (*App, error) {
	return NewWithAssets(nil)
}

// NewWithAssets builds the application and optionally configures embedded frontend assets.
func NewWithAssets(assets fs.FS) (*App, error) {
	if err := ensureLocalBinOnPATH(config.AppDir()); err != nil {
		return nil, fmt.Errorf("prepare local tool path: %w", err)
	}

	store := config.NewJSONStore(config.DefaultSettingsPath())
	settings, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	log, err := logging.New(logging.Options{File: settings.LogFile})
	if err != nil {
		return nil, fmt.Errorf("open diagnostic log: %w", err)
	}

	checker := diagnostics.NewChecker()
	report := checker.Run(settings)
	for _, item := range report.Failed() {
		log.WithField("check", item.ID).Warn(item.Message)
	}

	app := &App{
		Settings:    settings,
		Store:       store,
		Jobs:        jobs.NewManager(),
		Diagnostics: report,
		Log:         log,
		assets:      assets,
		checker:     checker,
		events:      jobs.NewEventBus(1000),
		credential:  config.LoadCredential,
	}
	app.rebuild = func(s domain.Settings, apiKey string) pipelineRunner {
		pipeline, err := buildPipeline(s, apiKey, log)
		if err != nil {
			log.WithError(err).Error("build transcription pipeline")
			return nil
		}
		return pipeline
	}
	app.mu.Lock()
	app.rebuildPipelineLocked(settings)
	app.mu.Unlock()
	app.watcher = config.NewWatcher(store, log, app.applySettings)
	return app, nil
}

// buildPipeline constructs the production pipeline for settings. An unusable
// language hint falls back to automatic detection.
func buildPipeline(settings domain.Settings, apiKey string, log *logrus.Logger) (*transcribe.Pipeline, error) {
	client, err := transcribe.NewClientFromSettings(settings, apiKey, log)
	if err != nil {
		log.WithError(err).Warn("ignoring language hint")
		settings.Language = "auto"
		client, err = transcribe.NewClientFromSettings(settings, apiKey, log)
		if err != nil {
			return nil, fmt.Errorf("build transcription client: %w", err)
		}
	}
	return transcribe.NewPipeline(client, log), nil
}

// rebuildPipelineLocked swaps in a pipeline built from settings and the
// credential as it is configured right now. Caller holds a.mu. The previous
// pipeline stays active when the build fails.
func (a *App) rebuildPipelineLocked(settings domain.Settings) {
	if a.rebuild == nil {
		return
	}
	apiKey := ""
	if a.credential != nil {
		key, err := a.credential()
		if err != nil {
			a.logger().WithError(err).Warn("no API key configured, transcriptions will fail until one is set")
		}
		apiKey = key
	}
	if pipeline := a.rebuild(settings, apiKey); pipeline != nil {
		a.Pipeline = pipeline
	}
}

// Run starts the Wails desktop application and binds backend methods.
func (a *App) Run() error {
	assetOptions := &assetserver.Options{}
	if a.assets != nil {
		assetOptions.Assets = a.assets
	} else {
		assetOptions.Handler = http.FileServer(http.Dir("./frontend"))
	}

	return wails.Run(&options.App{
		Title:       "Video Transcriber",
		Width:       1100,
		Height:      760,
		AssetServer: assetOptions,
		OnStartup:   a.Startup,
		OnShutdown:  a.Shutdown,
		Bind:        []interface{}{a},
	})
}

// Startup stores Wails runtime context for push events and starts the
// settings watcher.
func (a *App) Startup(ctx context.Context) {
	a.mu.Lock()
	a.runtimeCtx = ctx
	watcher := a.watcher
	a.mu.Unlock()

	if watcher == nil {
		return
	}
	watchCtx, cancel := context.WithCancel(context.Background())
	a.mu.Lock()
	a.stopWatch = cancel
	a.mu.Unlock()

	go func() {
		if err := watcher.Run(watchCtx); err != nil {
			a.logger().WithError(err).Warn("settings watcher stopped")
		}
	}()
}

// Shutdown stops background work started in Startup.
func (a *App) Shutdown(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.runtimeCtx = nil
	if a.stopWatch != nil {
		a.stopWatch()
		a.stopWatch = nil
	}
}

// GetDiagnostics returns the latest cached diagnostics report.
func (a *App) GetDiagnostics() domain.DiagnosticReport {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.Diagnostics
}

// GetSettings loads and returns the latest persisted settings.
func (a *App) GetSettings() (domain.Settings, error) {
	settings, err := a.Store.Load()
	if err != nil {
		return domain.Settings{}, fmt.Errorf("load settings: %w", err)
	}

	a.mu.Lock()
	a.Settings = settings
	a.mu.Unlock()

	return settings, nil
}

// SaveSettings normalizes and persists settings, then rebuilds the pipeline
// for the next job and refreshes diagnostics.
func (a *App) SaveSettings(settings domain.Settings) (domain.Settings, error) {
	normalized := config.Normalize(settings)
	if err := a.Store.Save(normalized); err != nil {
		a.logger().WithError(err).Error("save settings")
		return domain.Settings{}, fmt.Errorf("save settings: %w", err)
	}

	a.applySettings(normalized)
	return normalized, nil
}

// applySettings swaps in settings loaded from disk. A job already running
// keeps the pipeline it started with.
func (a *App) applySettings(settings domain.Settings) {
	a.refreshDiagnostics(settings)
}

// PickInputFile opens a native file dialog for video selection.
// The filter is only a hint; any file may be chosen.
func (a *App) PickInputFile() (string, error) {
	ctx, err := a.runtimeContext()
	if err != nil {
		return "", err
	}

	path, err := wailsruntime.OpenFileDialog(ctx, wailsruntime.OpenDialogOptions{
		Title:   "Select video file",
		Filters: videoDialogFilter,
	})
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(path), nil
}

// PickSaveDirectory opens a native directory picker for the default save location.
func (a *App) PickSaveDirectory() (string, error) {
	ctx, err := a.runtimeContext()
	if err != nil {
		return "", err
	}

	path, err := wailsruntime.OpenDirectoryDialog(ctx, wailsruntime.OpenDialogOptions{
		Title: "Select save directory",
	})
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(path), nil
}

// OpenSaveFolder opens the configured save directory in the file manager.
func (a *App) OpenSaveFolder() error {
	a.mu.Lock()
	target := a.Settings.SaveDir
	a.mu.Unlock()
	if strings.TrimSpace(target) == "" {
		return fmt.Errorf("save directory is not configured")
	}
	return openInFileManager(target)
}

// RefreshDiagnostics reloads settings, rereads the credential and reruns
// dependency checks.
func (a *App) RefreshDiagnostics() (domain.DiagnosticReport, error) {
	settings, err := a.Store.Load()
	if err != nil {
		return domain.DiagnosticReport{}, fmt.Errorf("load settings: %w", err)
	}
	return a.refreshDiagnostics(settings), nil
}

func (a *App) refreshDiagnostics(settings domain.Settings) domain.DiagnosticReport {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Settings = settings
	a.rebuildPipelineLocked(settings)
	if a.checker != nil {
		a.Diagnostics = a.checker.Run(settings)
	}
	return a.Diagnostics
}

// StartTranscription validates the path, claims the job manager and runs the
// pipeline on its own goroutine. It fails with *transcribe.InputError or
// jobs.ErrJobAlreadyRunning without touching a running job.
func (a *App) StartTranscription(inputPath string) (domain.Job, error) {
	inputPath = strings.TrimSpace(inputPath)
	if err := transcribe.ValidateInput(inputPath); err != nil {
		a.logger().WithError(err).WithField("path", inputPath).Warn("rejected input")
		return domain.Job{}, err
	}

	a.mu.Lock()
	a.rebuildPipelineLocked(a.Settings)
	pipeline := a.Pipeline
	a.mu.Unlock()
	if pipeline == nil {
		a.logger().WithField("path", inputPath).Error("no transcription pipeline available")
		return domain.Job{}, errPipelineUnavailable
	}

	job, err := a.Jobs.Start(a.nextJobID(), inputPath)
	if err != nil {
		a.logger().WithField("path", inputPath).Warn("transcription already running")
		return domain.Job{}, err
	}

	a.logger().WithFields(logrus.Fields{"job": job.ID, "path": inputPath}).Info("transcription started")
	a.publishStatus(job, "Extracting audio")

	go a.runTranscriptionJob(job, pipeline)
	return job, nil
}

// CurrentJob returns current job metadata and status.
func (a *App) CurrentJob() domain.Job {
	return a.Jobs.Current()
}

// JobEvents returns all events with sequence greater than sinceSeq.
func (a *App) JobEvents(sinceSeq int64) []jobs.Event {
	return a.events.Since(sinceSeq)
}

// LastFailure returns the failure message of the current job, or "" when it
// did not fail.
func (a *App) LastFailure() string {
	event, ok := a.events.Latest(a.Jobs.Current().ID, jobs.EventTypeError)
	if !ok {
		return ""
	}
	return event.Message
}

// LastTranscript returns the most recent successful transcript, if any.
func (a *App) LastTranscript() TranscriptView {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.last
}

// SaveTranscript asks for a destination with a native dialog and writes the
// displayed text there. An empty path means the dialog was cancelled.
func (a *App) SaveTranscript(text string) (string, error) {
	ctx, err := a.runtimeContext()
	if err != nil {
		return "", err
	}

	a.mu.Lock()
	saveDir := a.Settings.SaveDir
	source := a.last.SourcePath
	a.mu.Unlock()

	defaultPath := export.DefaultName(saveDir, source)
	path, err := wailsruntime.SaveFileDialog(ctx, wailsruntime.SaveDialogOptions{
		Title:            "Save transcript",
		DefaultDirectory: saveDir,
		DefaultFilename:  filepath.Base(defaultPath),
		Filters:          transcriptDialogFilter,
	})
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(path) == "" {
		return "", nil
	}

	return a.SaveTranscriptTo(path, text)
}

// SaveTranscriptTo writes text to path without a dialog.
func (a *App) SaveTranscriptTo(path, text string) (string, error) {
	saved, err := export.Save(path, text)
	if err != nil {
		a.logger().WithError(err).WithField("path", path).Error("save transcript")
		return "", err
	}
	a.logger().WithField("path", saved).Info("transcript saved")
	return saved, nil
}

// runTranscriptionJob executes the pipeline and maps outcomes to job events.
func (a *App) runTranscriptionJob(job domain.Job, pipeline pipelineRunner) {
	log := a.logger().WithFields(logrus.Fields{"job": job.ID, "path": job.SourcePath})

	req := transcribe.Request{
		InputPath: job.SourcePath,
		OnStage: func(stage transcribe.Stage) {
			status, message, ok := mapStageToStatus(stage)
			if !ok || status == domain.JobStatusExtracting {
				return
			}
			current, err := a.Jobs.Transition(status)
			if err != nil {
				log.WithError(err).WithField("stage", stage).Warn("job transition rejected")
				return
			}
			a.publishStatus(current, message)
		},
		OnLog: func(cl media.CommandLog) {
			log.WithFields(logrus.Fields{"command": cl.Command, "exit": cl.ExitCode}).Debug("command completed")
			a.publishEvent(commandEvent(job.ID, "Command completed", cl))
		},
	}

	result, err := pipeline.Run(context.Background(), req)
	if err != nil {
		a.failJob(job.ID, log, err)
		return
	}
	a.completeJob(job, log, result)
}

// completeJob stores and publishes the result, then releases the job
// manager so no new job can start before the window has the result.
func (a *App) completeJob(job domain.Job, log *logrus.Entry, result transcribe.Result) {
	if _, err := a.Jobs.Transition(domain.JobStatusRendering); err != nil {
		log.WithError(err).Error("job cannot enter rendering")
		a.failJob(job.ID, log, err)
		return
	}

	view := TranscriptView{
		JobID:       job.ID,
		SourcePath:  job.SourcePath,
		FullText:    result.FullText,
		DisplayText: result.DisplayText,
		Language:    result.Transcript.Language,
	}
	a.mu.Lock()
	a.last = view
	a.mu.Unlock()

	log.WithFields(logrus.Fields{
		"segments": len(result.Transcript.Segments),
		"language": view.Language,
	}).Info("transcription finished")

	a.publishEvent(jobs.Event{
		JobID:       job.ID,
		Type:        jobs.EventTypeResult,
		Status:      domain.JobStatusIdle,
		Progress:    jobs.ProgressComplete,
		Message:     "Transcription complete",
		FullText:    view.FullText,
		DisplayText: view.DisplayText,
		Language:    view.Language,
	})

	if _, err := a.Jobs.Complete(); err != nil {
		log.WithError(err).Error("release completed job")
	}
}

// failJob logs the full cause, publishes the failure and then returns the
// manager to idle.
func (a *App) failJob(jobID string, log *logrus.Entry, err error) {
	message := err.Error()
	var pipelineErr *transcribe.PipelineError
	if errors.As(err, &pipelineErr) {
		message = pipelineErr.Message
		entry := log.WithField("stage", pipelineErr.Stage)
		if cl := pipelineErr.CommandLog; cl.Command != "" {
			entry = entry.WithFields(logrus.Fields{
				"command": cl.Command,
				"exit":    cl.ExitCode,
				"stderr":  strings.TrimSpace(cl.Stderr),
			})
			a.publishEvent(commandEvent(jobID, "Failed command", cl))
		}
		entry.Errorf("transcription failed: %+v", pipelineErr.Err)
	} else {
		log.WithError(err).Error("transcription failed")
	}

	if failed, tErr := a.Jobs.Transition(domain.JobStatusFailed); tErr == nil {
		a.publishStatus(failed, "Job failed")
	}

	a.publishEvent(jobs.Event{
		JobID:    jobID,
		Type:     jobs.EventTypeError,
		Status:   domain.JobStatusIdle,
		Progress: jobs.ProgressFailed,
		Message:  message,
	})

	if _, fErr := a.Jobs.Fail(message); fErr != nil {
		log.WithError(fErr).Error("record job failure")
	}
}

// publishStatus sends a normalized status event.
func (a *App) publishStatus(job domain.Job, message string) {
	a.publishEvent(jobs.Event{
		JobID:      job.ID,
		Type:       jobs.EventTypeStatus,
		Status:     job.Status,
		Progress:   job.Progress,
		Message:    message,
		SourcePath: job.SourcePath,
	})
}

// publishEvent stores event history and emits runtime push notifications.
func (a *App) publishEvent(event jobs.Event) {
	published := a.events.Publish(event)

	a.mu.Lock()
	ctx := a.runtimeCtx
	a.mu.Unlock()
	if ctx != nil {
		wailsruntime.EventsEmit(ctx, runtimeEventName, published)
	}
}

func commandEvent(jobID, message string, cl media.CommandLog) jobs.Event {
	return jobs.Event{
		JobID:    jobID,
		Type:     jobs.EventTypeLog,
		Message:  message,
		Command:  cl.Command,
		Args:     cl.Args,
		ExitCode: cl.ExitCode,
		Stderr:   cl.Stderr,
	}
}

// mapStageToStatus maps pipeline stages to job statuses and UI messages.
func mapStageToStatus(stage transcribe.Stage) (domain.JobStatus, string, bool) {
	switch stage {
	case transcribe.StageExtracting:
		return domain.JobStatusExtracting, "Extracting audio", true
	case transcribe.StageTranscribing:
		return domain.JobStatusTranscribing, "Transcribing", true
	case transcribe.StageRendering:
		return domain.JobStatusRendering, "Formatting transcript", true
	default:
		return "", "", false
	}
}

func (a *App) nextJobID() string {
	if a.newID != nil {
		return a.newID()
	}
	return uuid.NewString()
}

func (a *App) logger() *logrus.Logger {
	if a.Log == nil {
		return logging.Discard()
	}
	return a.Log
}

func (a *App) installer() toolInstaller {
	return toolInstaller{
		runner:   media.ExecRunner{},
		lookPath: exec.LookPath,
		goos:     goruntime.GOOS,
		log:      a.logger(),
	}
}

// runtimeContext returns current Wails runtime context for dialog APIs.
func (a *App) runtimeContext() (context.Context, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.runtimeCtx == nil {
		return nil, fmt.Errorf("runtime context is not initialized")
	}
	return a.runtimeCtx, nil
}

// openInFileManager launches the platform file explorer for the provided path.
func openInFileManager(path string) error {
	var cmd *exec.Cmd
	switch goruntime.GOOS {
	case "darwin":
		cmd = exec.Command("open", path)
	case "windows":
		cmd = exec.Command("explorer", path)
	default:
		cmd = exec.Command("xdg-open", path)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("launch file manager: %w", err)
	}
	return nil
}
