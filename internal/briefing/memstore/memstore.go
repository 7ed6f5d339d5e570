// Package memstore provides an in-memory implementation of briefing.Store.
// Suitable for dev/testing; run state does not survive a restart.
package memstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/linnemanlabs/hermes/internal/briefing"
)

// Store holds run state in memory.
type Store struct {
	mu        sync.RWMutex
	runs      map[string]*briefing.Run      // run ID -> run
	byDate    map[string]string             // run date -> last claiming run ID
	published map[string]string             // fingerprint -> run date
	briefings map[string]*briefing.Briefing // run date -> committed briefing
	lastRunAt time.Time
}

// New initializes an empty in-memory Store.
func New() *Store {
	return &Store{
		runs:      make(map[string]*briefing.Run),
		byDate:    make(map[string]string),
		published: make(map[string]string),
		briefings: make(map[string]*briefing.Briefing),
	}
}

// BeginRun claims the run date. A pending, in-progress, or committed run for
// the same date rejects the claim; a failed run releases it.
func (s *Store) BeginRun(_ context.Context, run *briefing.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.byDate[run.RunDate]; ok {
		if existing := s.runs[id]; existing != nil && existing.Status != briefing.StatusFailed {
			return briefing.ErrRunExists
		}
	}

	cp := *run
	s.runs[run.ID] = &cp
	s.byDate[run.RunDate] = run.ID
	return nil
}

// PutRun stores a copy of the run.
func (s *Store) PutRun(_ context.Context, run *briefing.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *run
	s.runs[run.ID] = &cp
	return nil
}

// GetRun retrieves a run by ID. Returns a copy.
func (s *Store) GetRun(_ context.Context, id string) (*briefing.Run, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.runs[id]
	if !ok {
		return nil, false, nil
	}
	cp := *r
	return &cp, true, nil
}

// Ledger returns a copy of the published-fingerprint set.
func (s *Store) Ledger(_ context.Context) (*briefing.Ledger, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	published := make(map[string]bool, len(s.published))
	for fp := range s.published {
		published[fp] = true
	}
	return &briefing.Ledger{Published: published, LastRunAt: s.lastRunAt}, nil
}

// CommitBriefing atomically stores the briefing, marks entries published,
// and records the run's terminal state. A fingerprint already in the ledger
// fails the whole commit.
func (s *Store) CommitBriefing(_ context.Context, run *briefing.Run, b *briefing.Briefing) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range b.Entries {
		if prior, ok := s.published[e.Story.Fingerprint]; ok {
			return fmt.Errorf("%w: %s first published %s",
				briefing.ErrAlreadyPublished, e.Story.Fingerprint, prior)
		}
	}

	for _, e := range b.Entries {
		s.published[e.Story.Fingerprint] = b.RunDate
	}

	bc := *b
	bc.Entries = append([]briefing.Entry(nil), b.Entries...)
	s.briefings[b.RunDate] = &bc

	rc := *run
	s.runs[run.ID] = &rc
	s.lastRunAt = run.CompletedAt
	return nil
}

// GetBriefing retrieves a committed briefing by run date. Returns a copy.
func (s *Store) GetBriefing(_ context.Context, runDate string) (*briefing.Briefing, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.briefings[runDate]
	if !ok {
		return nil, false, nil
	}
	cp := *b
	cp.Entries = append([]briefing.Entry(nil), b.Entries...)
	return &cp, true, nil
}
