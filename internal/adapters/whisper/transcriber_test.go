package whisper

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timsteinerr/transcriptor/internal/adapters/process"
)

type fakeRunner struct {
	run func(ctx context.Context, name string, args ...string) (process.Result, error)
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) (process.Result, error) {
	return f.run(ctx, name, args...)
}

func argValue(args []string, key string) string {
	for i := 0; i < len(args)-1; i++ {
		if args[i] == key {
			return args[i+1]
		}
	}
	return ""
}

func mustWriteFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

const sampleOutput = `{
  "result": {"language": "en"},
  "transcription": [
    {"offsets": {"from": 0, "to": 1500}, "text": " Hello"},
    {"offsets": {"from": 1500, "to": 3250}, "text": " world. "}
  ]
}`

func TestParseOutput(t *testing.T) {
	tr, err := ParseOutput([]byte(sampleOutput))
	require.NoError(t, err)

	assert.Equal(t, "Hello world.", tr.Text)
	assert.Equal(t, "en", tr.Language)
	require.Len(t, tr.Segments, 2)
	assert.Equal(t, 0.0, tr.Segments[0].Start)
	assert.Equal(t, 1.5, tr.Segments[0].End)
	assert.Equal(t, "Hello", tr.Segments[0].Text)
	assert.Equal(t, 3.25, tr.Segments[1].End)
	assert.Equal(t, "world.", tr.Segments[1].Text)
}

func TestParseOutput_MissingLanguage(t *testing.T) {
	tr, err := ParseOutput([]byte(`{"transcription": []}`))
	require.NoError(t, err)
	assert.Equal(t, "unknown", tr.Language)
	assert.NotNil(t, tr.Segments)
	assert.Empty(t, tr.Text)
}

func TestParseOutput_Invalid(t *testing.T) {
	_, err := ParseOutput([]byte(`not json`))
	assert.Error(t, err)

	_, err = ParseOutput([]byte(`{"result": {}}`))
	assert.Error(t, err)
}

func TestTranscriber_Transcribe(t *testing.T) {
	modelDir := t.TempDir()
	mustWriteFile(t, filepath.Join(modelDir, "ggml-small.bin"), "model")
	audioDir := t.TempDir()
	audio := filepath.Join(audioDir, "clip.mp3")
	mustWriteFile(t, audio, "ID3")

	var gotArgs []string
	runner := &fakeRunner{run: func(ctx context.Context, name string, args ...string) (process.Result, error) {
		gotArgs = args
		mustWriteFile(t, argValue(args, "-of")+".json", sampleOutput)
		return process.Result{}, nil
	}}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	tr := NewTranscriberWithRunner(logger, Config{Model: "small", ModelDir: modelDir}, runner)

	out, err := tr.Transcribe(context.Background(), audio)
	require.NoError(t, err)
	assert.Equal(t, "Hello world.", out.Text)
	assert.Equal(t, filepath.Join(modelDir, "ggml-small.bin"), argValue(gotArgs, "-m"))
	assert.Equal(t, audio, argValue(gotArgs, "-f"))
	assert.Equal(t, "auto", argValue(gotArgs, "-l"))
	assert.Contains(t, gotArgs, "-oj")
}

func TestTranscriber_ModelMissing(t *testing.T) {
	runner := &fakeRunner{run: func(ctx context.Context, name string, args ...string) (process.Result, error) {
		t.Fatal("runner must not be called without a model")
		return process.Result{}, nil
	}}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	tr := NewTranscriberWithRunner(logger, Config{Model: "large", ModelDir: t.TempDir()}, runner)

	_, err := tr.Transcribe(context.Background(), "/tmp/clip.mp3")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `whisper model "large" not found`)
}

func TestTranscriber_ModelAsFilePath(t *testing.T) {
	model := filepath.Join(t.TempDir(), "custom.gguf")
	mustWriteFile(t, model, "model")
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	tr := NewTranscriberWithRunner(logger, Config{Model: model}, &fakeRunner{})

	path, err := tr.ModelPath()
	require.NoError(t, err)
	assert.Equal(t, model, path)
}

func TestTranscriber_NonZeroExit(t *testing.T) {
	modelDir := t.TempDir()
	mustWriteFile(t, filepath.Join(modelDir, "ggml-base.bin"), "model")
	runner := &fakeRunner{run: func(ctx context.Context, name string, args ...string) (process.Result, error) {
		return process.Result{ExitCode: 2, Stderr: "failed to read audio\n"}, nil
	}}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	tr := NewTranscriberWithRunner(logger, Config{ModelDir: modelDir}, runner)

	_, err := tr.Transcribe(context.Background(), filepath.Join(t.TempDir(), "clip.mp3"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exit 2")
	assert.Contains(t, err.Error(), "failed to read audio")
}

func TestTranscriber_MissingOutputFile(t *testing.T) {
	modelDir := t.TempDir()
	mustWriteFile(t, filepath.Join(modelDir, "ggml-base.bin"), "model")
	runner := &fakeRunner{run: func(ctx context.Context, name string, args ...string) (process.Result, error) {
		return process.Result{}, nil
	}}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	tr := NewTranscriberWithRunner(logger, Config{ModelDir: modelDir}, runner)

	_, err := tr.Transcribe(context.Background(), filepath.Join(t.TempDir(), "clip.mp3"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "transcript .json file is missing")
}
