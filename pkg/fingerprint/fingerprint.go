package fingerprint

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"sync"

	"github.com/contextforge/contextforge/pkg/types"
)

// Store tracks registered file fingerprints for drift detection.
type Store struct {
	mu      sync.RWMutex
	tracked map[string]*types.Fingerprint
}

// NewStore creates an empty fingerprint store.
func NewStore() *Store {
	return &Store{
		tracked: make(map[string]*types.Fingerprint),
	}
}

// Capture reads the file at path and computes its fingerprint. The file is
// not registered; callers decide whether to track it.
func Capture(path string) (*types.Fingerprint, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", types.ErrNotFound, path)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	sum := sha256.Sum256(content)
	return &types.Fingerprint{
		Path:      path,
		SHA256:    hex.EncodeToString(sum[:]),
		ModTime:   info.ModTime(),
		Size:      info.Size(),
		LineCount: countLines(content),
	}, nil
}

// HashContent returns the hex sha256 of content.
func HashContent(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

func countLines(content []byte) int {
	if len(content) == 0 {
		return 0
	}
	n := bytes.Count(content, []byte{'\n'})
	if content[len(content)-1] != '\n' {
		n++
	}
	return n
}

// Register starts tracking a fingerprint. An existing entry for the same
// path is replaced.
func (s *Store) Register(fp *types.Fingerprint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tracked[fp.Path] = fp
}

// Get returns the registered fingerprint for path, if any.
func (s *Store) Get(path string) (*types.Fingerprint, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fp, ok := s.tracked[path]
	return fp, ok
}

// Forget drops a path from tracking.
func (s *Store) Forget(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tracked, path)
}

// CheckDrift recaptures the file and compares against the registered
// fingerprint. A path that was never registered reports not_tracked.
func (s *Store) CheckDrift(path string) (*types.DriftReport, error) {
	s.mu.RLock()
	old, ok := s.tracked[path]
	s.mu.RUnlock()

	if !ok {
		return &types.DriftReport{Status: types.DriftNotTracked}, nil
	}

	current, err := Capture(path)
	if err != nil {
		return nil, err
	}

	if current.SHA256 == old.SHA256 {
		return &types.DriftReport{Status: types.DriftNone, Old: old}, nil
	}
	return &types.DriftReport{Status: types.DriftDetected, Old: old, New: current}, nil
}

// Recapture refreshes the registered fingerprint for path after an accepted
// drift. Fails if the path is not tracked.
func (s *Store) Recapture(path string) (*types.Fingerprint, error) {
	s.mu.RLock()
	_, ok := s.tracked[path]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s is not tracked", types.ErrNotFound, path)
	}

	fp, err := Capture(path)
	if err != nil {
		return nil, err
	}
	s.Register(fp)
	return fp, nil
}

// TrackedPaths returns the paths currently registered.
func (s *Store) TrackedPaths() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	paths := make([]string, 0, len(s.tracked))
	for p := range s.tracked {
		paths = append(paths, p)
	}
	return paths
}
