// Package artifacts persists named text artifacts (cover letters, cold
// emails, CV sources) under the data dir and hands back stable references.
package artifacts

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tailord/tailord/internal/core"
)

// Ref points at one stored artifact.
type Ref struct {
	Path string `json:"path"`
	URL  string `json:"url"`
}

// Store is the artifact-storage collaborator the pipeline writes through.
type Store interface {
	Save(owner core.OwnerID, sessionID core.SessionID, name, content string) (Ref, error)
	Load(owner core.OwnerID, sessionID core.SessionID, name string) (string, error)
}

// FileStore keeps artifacts as plain files: one directory per owner and
// session, one file per artifact name.
type FileStore struct {
	BaseDir string
	BaseURL string
}

// artifactDir sanitizes every path part; session ids arrive from clients and
// must not be able to steer writes outside the base dir.
func (s *FileStore) artifactDir(owner core.OwnerID, sessionID core.SessionID) string {
	return filepath.Join(s.BaseDir, "artifacts", sanitize(string(owner)), sanitize(string(sessionID)))
}

func (s *FileStore) Save(owner core.OwnerID, sessionID core.SessionID, name, content string) (Ref, error) {
	dir := s.artifactDir(owner, sessionID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Ref{}, fmt.Errorf("create artifact directory: %w", err)
	}

	fileName := sanitize(name) + ".txt"
	path := filepath.Join(dir, fileName)

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return Ref{}, fmt.Errorf("write artifact %s: %w", name, err)
	}

	return Ref{
		Path: path,
		URL:  fmt.Sprintf("%s/artifacts/%s/%s/%s", strings.TrimSuffix(s.BaseURL, "/"), sanitize(string(owner)), sanitize(string(sessionID)), fileName),
	}, nil
}

func (s *FileStore) Load(owner core.OwnerID, sessionID core.SessionID, name string) (string, error) {
	path := filepath.Join(s.artifactDir(owner, sessionID), sanitize(name)+".txt")

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read artifact %s: %w", name, err)
	}

	return string(data), nil
}

// sanitize keeps refs path-safe without losing readability.
func sanitize(part string) string {
	replacer := strings.NewReplacer("/", "_", "\\", "_", "..", "_", " ", "_", ":", "_")
	return replacer.Replace(part)
}

var _ Store = (*FileStore)(nil)
