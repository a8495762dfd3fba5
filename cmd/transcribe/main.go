// Command transcribe runs one video through extraction and transcription
// without the desktop window and prints the formatted transcript.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"

	"video-transcriber/internal/config"
	"video-transcriber/internal/diagnostics"
	"video-transcriber/internal/domain"
	"video-transcriber/internal/export"
	"video-transcriber/internal/logging"
	"video-transcriber/internal/transcribe"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

type options struct {
	output       string
	settingsPath string
	language     string
	logLevel     string
	checkOnly    bool
	videoPath    string
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var opts options
	fs := flag.NewFlagSet("transcribe", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.output, "o", "", "save the transcript to this file (.txt added when no extension)")
	fs.StringVar(&opts.settingsPath, "settings", config.DefaultSettingsPath(), "settings file")
	fs.StringVar(&opts.language, "lang", "", "language hint overriding settings (ISO-639-1 or auto)")
	fs.StringVar(&opts.logLevel, "log-level", "warn", "console log level (debug, info, warn, error)")
	fs.BoolVar(&opts.checkOnly, "check", false, "run startup diagnostics and exit")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: transcribe [flags] <video>")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if opts.checkOnly {
		return opts, nil
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return opts, errors.New("exactly one video path is required")
	}
	opts.videoPath = fs.Arg(0)
	return opts, nil
}

func run(args []string, stdout, stderr io.Writer) int {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	settings, err := config.NewJSONStore(opts.settingsPath).Load()
	if err != nil {
		color.New(color.FgRed).Fprintf(stderr, "load settings: %v\n", err)
		return 1
	}
	if opts.language != "" {
		settings.Language = opts.language
	}

	log, err := logging.New(logging.Options{Level: opts.logLevel, File: settings.LogFile, Console: stderr})
	if err != nil {
		color.New(color.FgRed).Fprintf(stderr, "open diagnostic log: %v\n", err)
		return 1
	}

	if opts.checkOnly {
		return printDiagnostics(diagnostics.NewChecker(), settings, stdout)
	}

	apiKey, err := config.LoadCredential()
	if err != nil {
		log.WithError(err).Error("load credential")
		color.New(color.FgRed).Fprintf(stderr, "%v: set %s or %s\n", err, config.EnvAPIKey, config.EnvOpenAIAPIKey)
		return 1
	}

	client, err := transcribe.NewClientFromSettings(settings, apiKey, log)
	if err != nil {
		log.WithError(err).Error("build client")
		color.New(color.FgRed).Fprintln(stderr, err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	status := color.New(color.FgCyan)
	pipeline := transcribe.NewPipeline(client, log)
	result, err := pipeline.Run(ctx, transcribe.Request{
		InputPath: opts.videoPath,
		OnStage: func(stage transcribe.Stage) {
			status.Fprintf(stderr, "%s %s\n", stage, opts.videoPath)
		},
	})
	if err != nil {
		reportFailure(log, err, stderr)
		return 1
	}

	fmt.Fprint(stdout, result.DisplayText)

	if opts.output != "" {
		saved, err := export.Save(opts.output, result.DisplayText)
		if err != nil {
			log.WithError(err).Error("save transcript")
			color.New(color.FgRed).Fprintln(stderr, err)
			return 1
		}
		color.New(color.FgGreen).Fprintf(stderr, "saved %s\n", saved)
	}
	return 0
}

// reportFailure logs the full cause and prints the one-line message.
func reportFailure(log *logrus.Logger, err error, stderr io.Writer) {
	message := err.Error()
	var pipelineErr *transcribe.PipelineError
	if errors.As(err, &pipelineErr) {
		message = pipelineErr.Message
		entry := log.WithField("stage", pipelineErr.Stage)
		if cl := pipelineErr.CommandLog; cl.Command != "" {
			entry = entry.WithFields(logrus.Fields{"command": cl.Command, "exit": cl.ExitCode, "stderr": cl.Stderr})
		}
		entry.Debugf("%+v", pipelineErr.Err)
		entry.Error(message)
	} else {
		log.WithError(err).Error("transcription failed")
	}
	color.New(color.FgRed).Fprintln(stderr, message)
}

// printDiagnostics prints one line per check and fails when any check fails.
func printDiagnostics(checker *diagnostics.Checker, settings domain.Settings, stdout io.Writer) int {
	report := checker.Run(settings)
	for _, item := range report.Items {
		var c *color.Color
		switch item.Status {
		case domain.DiagnosticStatusPass:
			c = color.New(color.FgGreen)
		case domain.DiagnosticStatusWarn:
			c = color.New(color.FgYellow)
		default:
			c = color.New(color.FgRed)
		}
		c.Fprintf(stdout, "%-5s", item.Status)
		fmt.Fprintf(stdout, " %-22s %s\n", item.Name, item.Message)
		if item.Hint != "" && item.Status != domain.DiagnosticStatusPass {
			fmt.Fprintf(stdout, "      %s\n", item.Hint)
		}
	}
	if report.HasFailures {
		return 1
	}
	return 0
}
