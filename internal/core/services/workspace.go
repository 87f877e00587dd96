package services

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/timsteinerr/transcriptor/internal/core/domain"
)

// AudioExt is the format the fetcher is asked to produce.
const AudioExt = ".mp3"

// WorkspaceManager owns the per-job download directories.
type WorkspaceManager struct {
	baseDir   string
	removeAll func(path string) error
}

func NewWorkspaceManager(baseDir string) *WorkspaceManager {
	if baseDir == "" {
		baseDir = "downloads"
	}
	return &WorkspaceManager{
		baseDir:   baseDir,
		removeAll: os.RemoveAll,
	}
}

// Prepare creates the exclusive directory for a job.
// Path: baseDir/jobs/{id}
func (s *WorkspaceManager) Prepare(id domain.JobID) (string, error) {
	path := s.Path(id)
	if err := os.MkdirAll(path, 0o755); err != nil {
		return "", fmt.Errorf("failed to create workspace: %w", err)
	}
	return path, nil
}

// Cleanup removes the job directory and everything in it.
func (s *WorkspaceManager) Cleanup(id domain.JobID) error {
	return s.removeAll(s.Path(id))
}

// Path returns the directory for a job's files.
func (s *WorkspaceManager) Path(id domain.JobID) string {
	return filepath.Join(s.baseDir, "jobs", string(id))
}

// FindAudio returns the first audio file in dir by lexical order.
func FindAudio(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("read workspace: %w", err)
	}
	// os.ReadDir sorts by filename
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.EqualFold(filepath.Ext(entry.Name()), AudioExt) {
			return filepath.Join(dir, entry.Name()), nil
		}
	}
	return "", domain.ErrNoAudio
}
