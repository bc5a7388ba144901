// Package feed supplies the controller with one consistent traffic pair per tick.
package feed

import (
	"context"
	"io"
	"sync"

	"github.com/anggasct/junction"
)

// Source yields traffic pairs. Next returns io.EOF once a finite source is exhausted.
type Source interface {
	Next(ctx context.Context) (junction.Pair, error)
}

// FallbackSource always yields the camera-unavailable pair
type FallbackSource struct{}

// Next returns junction.FallbackPair
func (FallbackSource) Next(ctx context.Context) (junction.Pair, error) {
	if err := ctx.Err(); err != nil {
		return junction.Pair{}, err
	}
	return junction.FallbackPair(), nil
}

// SequenceSource yields a fixed list of pairs, optionally looping
type SequenceSource struct {
	mutex sync.Mutex
	pairs []junction.Pair
	next  int
	loop  bool
}

// NewSequenceSource creates a source over pairs
func NewSequenceSource(loop bool, pairs ...junction.Pair) *SequenceSource {
	return &SequenceSource{pairs: pairs, loop: loop}
}

// Next returns the next pair in the sequence
func (s *SequenceSource) Next(ctx context.Context) (junction.Pair, error) {
	if err := ctx.Err(); err != nil {
		return junction.Pair{}, err
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.next >= len(s.pairs) {
		if !s.loop || len(s.pairs) == 0 {
			return junction.Pair{}, io.EOF
		}
		s.next = 0
	}
	pair := s.pairs[s.next]
	s.next++
	return pair, nil
}

// OpenFunc opens a fresh finite source
type OpenFunc func() (Source, error)

// ReopenSource restarts a finite source whenever it is exhausted, e.g. to loop a replay file
type ReopenSource struct {
	mutex   sync.Mutex
	open    OpenFunc
	current Source
	rounds  int
}

// NewReopenSource creates a looping source over open
func NewReopenSource(open OpenFunc) *ReopenSource {
	return &ReopenSource{open: open}
}

// Next returns the next pair, reopening at EOF. A source that is empty right after
// opening ends the loop with io.EOF.
func (s *ReopenSource) Next(ctx context.Context) (junction.Pair, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	fresh := false
	for {
		if s.current == nil {
			src, err := s.open()
			if err != nil {
				return junction.Pair{}, err
			}
			s.current = src
			s.rounds++
			fresh = true
		}

		pair, err := s.current.Next(ctx)
		if err != io.EOF {
			return pair, err
		}
		closeSource(s.current)
		s.current = nil
		if fresh {
			return junction.Pair{}, io.EOF
		}
	}
}

// Rounds returns how many times the source has been opened
func (s *ReopenSource) Rounds() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.rounds
}

// Close closes the current source
func (s *ReopenSource) Close() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	err := closeSource(s.current)
	s.current = nil
	return err
}

func closeSource(src Source) error {
	if c, ok := src.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
