package search

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Service is the facade that tries Meilisearch first and falls back to PG FTS.
type Service struct {
	index    Index
	fallback Fallback
	log      *zap.Logger
	pending  sync.WaitGroup
}

// NewService creates a search service. index may be nil if Meilisearch is
// not configured.
func NewService(index Index, fallback Fallback, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{index: index, fallback: fallback, log: logger.Named("search")}
}

func (s *Service) indexReady() bool {
	return s.index != nil && s.index.Healthy()
}

// Search tries the primary index if healthy, otherwise falls back to PG FTS.
func (s *Service) Search(ctx context.Context, q Query) Response {
	q.Limit = normalizeLimit(q.Limit)
	if q.Offset < 0 {
		q.Offset = 0
	}
	if q.UserID == "" {
		return Response{Results: []Result{}, Query: q.Text}
	}

	if s.indexReady() {
		results, total, err := s.index.Search(ctx, q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		s.log.Warn("meilisearch error, falling back to pgfts", zap.Error(err))
	}

	if s.fallback == nil {
		return Response{Results: []Result{}, Query: q.Text}
	}
	results, total, err := s.fallback.Search(ctx, q)
	if err != nil {
		s.log.Error("pgfts error", zap.Error(err))
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

func (s *Service) async(op, id string, fn func() error) {
	if !s.indexReady() {
		return
	}
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		if err := fn(); err != nil {
			s.log.Warn("index update failed", zap.String("op", op), zap.String("id", id), zap.Error(err))
		}
	}()
}

// IndexCard indexes a card (fire-and-forget).
func (s *Service) IndexCard(card CardRecord) {
	s.async("index card", card.ID, func() error { return s.index.IndexCards([]CardRecord{card}) })
}

// IndexNote indexes a user note (fire-and-forget).
func (s *Service) IndexNote(note NoteRecord) {
	s.async("index note", note.ID, func() error { return s.index.IndexNotes([]NoteRecord{note}) })
}

// DeleteCard removes a card from the search index (fire-and-forget).
func (s *Service) DeleteCard(id string) {
	s.async("delete card", id, func() error { return s.index.DeleteCard(id) })
}

// DeleteNote removes a user note from the search index (fire-and-forget).
func (s *Service) DeleteNote(id string) {
	s.async("delete note", id, func() error { return s.index.DeleteNote(id) })
}

// Wait blocks until every in-flight index update has finished.
func (s *Service) Wait() {
	s.pending.Wait()
}

// Healthy reports whether the primary index is reachable.
func (s *Service) Healthy() bool {
	return s.indexReady()
}

// ReindexAll reads every card and note from PostgreSQL and makes them the
// whole content of the primary index, which also drops records deleted
// while the index was unreachable. It returns the number of records sent.
func (s *Service) ReindexAll(ctx context.Context) (int, error) {
	if !s.indexReady() || s.fallback == nil {
		return 0, nil
	}
	cards, notes, err := s.fallback.LoadAllRecords(ctx)
	if err != nil {
		return 0, err
	}
	if err := s.index.ReplaceCards(cards); err != nil {
		return 0, err
	}
	if err := s.index.ReplaceNotes(notes); err != nil {
		return len(cards), err
	}
	s.log.Info("reindex complete", zap.Int("cards", len(cards)), zap.Int("notes", len(notes)))
	return len(cards) + len(notes), nil
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
