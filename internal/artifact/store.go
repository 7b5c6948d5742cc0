// Package artifact implements the in-memory, content-addressed handoff of
// named payloads between jobs of a single run. Producers transfer ownership
// of a payload to the store; consumers borrow it read-only, and only after
// the producing job has succeeded. All payloads are discarded when the run
// reaches a terminal aggregate state.
package artifact

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
)

// DuplicateArtifactError reports a second Put for an artifact name already
// stored in the current run.
type DuplicateArtifactError struct {
	Job  string
	Name string
}

func (e *DuplicateArtifactError) Error() string {
	return fmt.Sprintf("artifact %q already stored by job %q", e.Name, e.Job)
}

// ArtifactNotReadyError reports a Get before the producing job succeeded.
type ArtifactNotReadyError struct {
	Name     string
	Producer string
}

func (e *ArtifactNotReadyError) Error() string {
	return fmt.Sprintf("artifact %q is not ready: producer %q has not succeeded", e.Name, e.Producer)
}

// ArtifactNotFoundError reports a Get for a name no job in the run produced.
type ArtifactNotFoundError struct {
	Name string
}

func (e *ArtifactNotFoundError) Error() string {
	return fmt.Sprintf("no job in this run produced artifact %q", e.Name)
}

type entry struct {
	owner   string
	payload []byte
	digest  string
}

// Store holds the artifacts of one run. It is safe for concurrent use.
type Store struct {
	mu        sync.Mutex
	entries   map[string]*entry
	succeeded map[string]bool
	discarded bool
}

// NewStore creates an empty store scoped to a single run.
func NewStore() *Store {
	return &Store{
		entries:   make(map[string]*entry),
		succeeded: make(map[string]bool),
	}
}

// Put transfers ownership of a payload to the store under the given name.
func (s *Store) Put(jobID, name string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.discarded {
		return fmt.Errorf("artifact store already discarded")
	}
	if prev, ok := s.entries[name]; ok {
		return &DuplicateArtifactError{Job: prev.owner, Name: name}
	}

	sum := sha256.Sum256(payload)
	s.entries[name] = &entry{
		owner:   jobID,
		payload: append([]byte(nil), payload...),
		digest:  hex.EncodeToString(sum[:]),
	}
	return nil
}

// Get borrows an artifact read-only. It fails with *ArtifactNotFoundError if
// no job produced the name, and with *ArtifactNotReadyError until the
// producing job has been marked succeeded.
func (s *Store) Get(name string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[name]
	if !ok {
		return nil, &ArtifactNotFoundError{Name: name}
	}
	if !s.succeeded[e.owner] {
		return nil, &ArtifactNotReadyError{Name: name, Producer: e.owner}
	}
	return append([]byte(nil), e.payload...), nil
}

// Digest returns the sha256 digest of a stored artifact. It follows the same
// readiness rules as Get.
func (s *Store) Digest(name string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[name]
	if !ok {
		return "", &ArtifactNotFoundError{Name: name}
	}
	if !s.succeeded[e.owner] {
		return "", &ArtifactNotReadyError{Name: name, Producer: e.owner}
	}
	return e.digest, nil
}

// MarkSucceeded records that a producing job reached succeeded, making its
// artifacts readable.
func (s *Store) MarkSucceeded(jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.succeeded[jobID] = true
}

// Discard drops all payloads. The run is over; later Put or Get calls fail.
func (s *Store) Discard() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]*entry)
	s.succeeded = make(map[string]bool)
	s.discarded = true
}
