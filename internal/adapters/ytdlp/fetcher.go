package ytdlp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/timsteinerr/transcriptor/internal/adapters/process"
	"github.com/timsteinerr/transcriptor/internal/core/domain"
	"github.com/timsteinerr/transcriptor/internal/core/ports"
)

const binaryName = "yt-dlp"

// Fetcher downloads a media URL with yt-dlp and extracts mono 16 kHz mp3 audio.
type Fetcher struct {
	logger *slog.Logger
	binary string
	runner process.Runner
}

var _ ports.Fetcher = (*Fetcher)(nil)

func NewFetcher(logger *slog.Logger, binary string) *Fetcher {
	return NewFetcherWithRunner(logger, binary, process.ExecRunner{})
}

// NewFetcherWithRunner constructs a fetcher with an injected process runner.
func NewFetcherWithRunner(logger *slog.Logger, binary string, runner process.Runner) *Fetcher {
	if strings.TrimSpace(binary) == "" {
		binary = ResolveBinary()
	}
	return &Fetcher{logger: logger, binary: binary, runner: runner}
}

// Binary returns the executable the fetcher invokes.
func (f *Fetcher) Binary() string {
	return f.binary
}

// Fetch runs yt-dlp for url, writing audio into destDir.
func (f *Fetcher) Fetch(ctx context.Context, url, destDir string) (ports.FetchResult, error) {
	args := BuildArgs(url, destDir)
	f.logger.Debug("running yt-dlp", "binary", f.binary, "args", args)

	res, err := f.runner.Run(ctx, f.binary, args...)
	out := ports.FetchResult{ExitCode: res.ExitCode, Stderr: res.Stderr}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return out, domain.ErrFetchTimeout
		}
		return out, fmt.Errorf("run %s: %w", f.binary, err)
	}
	if res.ExitCode != 0 {
		f.logger.Warn("yt-dlp exited with error", "exit_code", res.ExitCode, "url", url)
	}
	return out, nil
}

// BuildArgs returns the yt-dlp arguments for a single-item audio extraction.
func BuildArgs(url, destDir string) []string {
	return []string{
		"--no-playlist",
		"--extract-audio",
		"--audio-format", "mp3",
		"--audio-quality", "5",
		"--output", filepath.Join(destDir, "%(title)s.%(ext)s"),
		"--postprocessor-args", "-ac 1 -ar 16000",
		url,
	}
}

// ResolveBinary prefers a yt-dlp next to the running executable, then PATH.
func ResolveBinary() string {
	if exe, err := os.Executable(); err == nil {
		candidate := filepath.Join(filepath.Dir(exe), binaryName)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate
		}
	}
	if path, err := exec.LookPath(binaryName); err == nil {
		return path
	}
	return binaryName
}
