// Package media turns a video container into a compressed audio artifact
// ready for upload.
package media

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrNoAudioTrack is returned when the container carries no audio stream.
var ErrNoAudioTrack = errors.New("video has no audio track")

// ExtractError describes a failed probe or conversion with command context.
type ExtractError struct {
	Message    string
	CommandLog CommandLog
	Err        error
}

// Error formats extraction failures for logs.
func (e *ExtractError) Error() string {
	if e == nil {
		return ""
	}
	if e.CommandLog.Command == "" {
		if e.Err != nil {
			return fmt.Sprintf("%s: %v", e.Message, e.Err)
		}
		return e.Message
	}
	return fmt.Sprintf("%s (cmd=%s exit=%d): %v", e.Message, e.CommandLog.Command, e.CommandLog.ExitCode, e.Err)
}

// Unwrap exposes the underlying cause.
func (e *ExtractError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Extractor runs ffprobe and ffmpeg to pull the first audio stream out of a
// video into a temporary MP3 file.
type Extractor struct {
	ffmpegPath  string
	ffprobePath string
	runner      CommandRunner
	createTemp  func(dir, pattern string) (*os.File, error)
	remove      func(name string) error
	stat        func(name string) (os.FileInfo, error)
}

// NewExtractor constructs the production extractor with OS dependencies.
func NewExtractor() *Extractor {
	return &Extractor{
		ffmpegPath:  "ffmpeg",
		ffprobePath: "ffprobe",
		runner:      ExecRunner{},
		createTemp:  os.CreateTemp,
		remove:      os.Remove,
		stat:        os.Stat,
	}
}

// NewExtractorForTests constructs an extractor with injectable dependencies.
func NewExtractorForTests(
	ffmpegPath string,
	ffprobePath string,
	runner CommandRunner,
	createTemp func(dir, pattern string) (*os.File, error),
	remove func(name string) error,
) *Extractor {
	return &Extractor{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		runner:      runner,
		createTemp:  createTemp,
		remove:      remove,
		stat:        os.Stat,
	}
}

// Extract returns the path of a new temporary audio file. The caller owns
// the file. On failure no file is left behind. onLog, when set, receives
// every command run.
func (e *Extractor) Extract(ctx context.Context, videoPath string, onLog func(CommandLog)) (string, error) {
	streams, err := e.probeAudioStreams(ctx, videoPath, onLog)
	if err != nil {
		return "", err
	}
	if streams == 0 {
		return "", ErrNoAudioTrack
	}

	tmp, err := e.createTemp("", "video-transcriber-*.mp3")
	if err != nil {
		return "", &ExtractError{Message: "allocate temporary audio file", Err: err}
	}
	outPath := tmp.Name()
	_ = tmp.Close()

	args := buildFFmpegArgs(videoPath, outPath)
	result, runErr := e.runner.Run(ctx, e.ffmpegPath, args...)
	log := emitLog(onLog, e.ffmpegPath, args, result)
	if runErr != nil {
		_ = e.remove(outPath)
		return "", &ExtractError{Message: "ffmpeg audio conversion failed", CommandLog: log, Err: runErr}
	}

	info, err := e.stat(outPath)
	if err != nil {
		_ = e.remove(outPath)
		return "", &ExtractError{Message: "ffmpeg completed but output file is missing", CommandLog: log, Err: err}
	}
	if info.Size() == 0 {
		_ = e.remove(outPath)
		return "", &ExtractError{Message: "ffmpeg produced an empty audio file", CommandLog: log, Err: ErrNoAudioTrack}
	}

	return outPath, nil
}

// probeAudioStreams counts audio streams reported by ffprobe.
func (e *Extractor) probeAudioStreams(ctx context.Context, videoPath string, onLog func(CommandLog)) (int, error) {
	args := buildProbeArgs(videoPath)
	result, runErr := e.runner.Run(ctx, e.ffprobePath, args...)
	log := emitLog(onLog, e.ffprobePath, args, result)
	if runErr != nil {
		return 0, &ExtractError{Message: "ffprobe could not read the video", CommandLog: log, Err: runErr}
	}

	var probe struct {
		Streams []struct {
			Index     int    `json:"index"`
			CodecName string `json:"codec_name"`
		} `json:"streams"`
	}
	if strings.TrimSpace(result.Stdout) == "" {
		return 0, nil
	}
	if err := json.Unmarshal([]byte(result.Stdout), &probe); err != nil {
		return 0, &ExtractError{Message: "parse ffprobe output", CommandLog: log, Err: err}
	}
	return len(probe.Streams), nil
}

// emitLog builds a command log and forwards it when a callback is configured.
func emitLog(cb func(CommandLog), command string, args []string, result CommandResult) CommandLog {
	log := CommandLog{
		Command:  command,
		Args:     args,
		ExitCode: result.ExitCode,
		Stdout:   result.Stdout,
		Stderr:   result.Stderr,
	}
	if cb != nil {
		cb(log)
	}
	return log
}

// buildProbeArgs lists audio streams as JSON.
func buildProbeArgs(videoPath string) []string {
	return []string{
		"-v", "error",
		"-select_streams", "a",
		"-show_entries", "stream=index,codec_name",
		"-of", "json",
		videoPath,
	}
}

// buildFFmpegArgs re-encodes the first audio stream as mono 16 kHz MP3.
func buildFFmpegArgs(inputPath, outPath string) []string {
	return []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-i", inputPath,
		"-vn",
		"-map", "0:a:0",
		"-ac", "1",
		"-ar", "16000",
		"-c:a", "libmp3lame",
		"-b:a", "64k",
		outPath,
	}
}
