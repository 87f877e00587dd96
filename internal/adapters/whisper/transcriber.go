package whisper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/timsteinerr/transcriptor/internal/adapters/process"
	"github.com/timsteinerr/transcriptor/internal/core/domain"
	"github.com/timsteinerr/transcriptor/internal/core/ports"
)

// outputBase is the whisper.cpp -of value, written next to the audio file.
const outputBase = "transcript"

// Config selects the whisper.cpp binary and model.
type Config struct {
	Binary   string
	Model    string
	ModelDir string
}

// Transcriber runs whisper.cpp with JSON output and parses the result.
type Transcriber struct {
	logger   *slog.Logger
	cfg      Config
	runner   process.Runner
	stat     func(name string) (os.FileInfo, error)
	readFile func(name string) ([]byte, error)
}

var _ ports.Transcriber = (*Transcriber)(nil)

func NewTranscriber(logger *slog.Logger, cfg Config) *Transcriber {
	return NewTranscriberWithRunner(logger, cfg, process.ExecRunner{})
}

// NewTranscriberWithRunner constructs a transcriber with an injected process runner.
func NewTranscriberWithRunner(logger *slog.Logger, cfg Config, runner process.Runner) *Transcriber {
	if cfg.Binary == "" {
		cfg.Binary = "whisper-cli"
	}
	if cfg.Model == "" {
		cfg.Model = "base"
	}
	return &Transcriber{
		logger:   logger,
		cfg:      cfg,
		runner:   runner,
		stat:     os.Stat,
		readFile: os.ReadFile,
	}
}

// ModelPath resolves the configured model to a file. A model name maps to
// ggml-<name>.bin inside ModelDir; an existing file path is used as is.
func (t *Transcriber) ModelPath() (string, error) {
	model := strings.TrimSpace(t.cfg.Model)
	if info, err := t.stat(model); err == nil && !info.IsDir() {
		return model, nil
	}

	path := filepath.Join(t.cfg.ModelDir, "ggml-"+model+".bin")
	if _, err := t.stat(path); err != nil {
		return "", fmt.Errorf("whisper model %q not found at %s", model, path)
	}
	return path, nil
}

// Transcribe converts audioPath to text with per-segment timings.
func (t *Transcriber) Transcribe(ctx context.Context, audioPath string) (domain.Transcript, error) {
	modelPath, err := t.ModelPath()
	if err != nil {
		return domain.Transcript{}, err
	}

	base := filepath.Join(filepath.Dir(audioPath), outputBase)
	args := BuildArgs(modelPath, audioPath, base)
	t.logger.Debug("running whisper.cpp", "binary", t.cfg.Binary, "args", args)

	res, err := t.runner.Run(ctx, t.cfg.Binary, args...)
	if err != nil {
		return domain.Transcript{}, fmt.Errorf("whisper.cpp transcription failed: %w", err)
	}
	if res.ExitCode != 0 {
		return domain.Transcript{}, fmt.Errorf("whisper.cpp transcription failed (exit %d): %s",
			res.ExitCode, strings.TrimSpace(res.Stderr))
	}

	data, err := t.readFile(base + ".json")
	if err != nil {
		return domain.Transcript{}, fmt.Errorf("whisper.cpp completed but transcript .json file is missing: %w", err)
	}
	return ParseOutput(data)
}

// BuildArgs builds whisper.cpp args for JSON export with language detection.
func BuildArgs(modelPath, audioPath, outBase string) []string {
	return []string{
		"-m", modelPath,
		"-f", audioPath,
		"-of", outBase,
		"-oj",
		"-l", "auto",
	}
}

type outputJSON struct {
	Result struct {
		Language string `json:"language"`
	} `json:"result"`
	Transcription []struct {
		Offsets struct {
			From int64 `json:"from"`
			To   int64 `json:"to"`
		} `json:"offsets"`
		Text string `json:"text"`
	} `json:"transcription"`
}

// ParseOutput decodes a whisper.cpp -oj document. Offsets are milliseconds.
func ParseOutput(data []byte) (domain.Transcript, error) {
	var out outputJSON
	if err := json.Unmarshal(data, &out); err != nil {
		return domain.Transcript{}, fmt.Errorf("decode whisper.cpp output: %w", err)
	}
	if out.Transcription == nil {
		return domain.Transcript{}, errors.New("whisper.cpp output has no transcription")
	}

	var text strings.Builder
	segments := make([]domain.Segment, 0, len(out.Transcription))
	for _, seg := range out.Transcription {
		text.WriteString(seg.Text)
		segments = append(segments, domain.Segment{
			Start: float64(seg.Offsets.From) / 1000,
			End:   float64(seg.Offsets.To) / 1000,
			Text:  seg.Text,
		})
	}

	return domain.Transcript{
		Text:     text.String(),
		Segments: segments,
		Language: out.Result.Language,
	}.Normalize(), nil
}
