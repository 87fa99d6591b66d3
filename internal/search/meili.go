package search

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
	"go.uber.org/zap"
)

const (
	idxCards = "checklist_cards"
	idxNotes = "checklist_notes"
)

// Meili implements Index via Meilisearch.
type Meili struct {
	client  meili.ServiceManager
	log     *zap.Logger
	healthy atomic.Bool
	done    chan struct{}
}

// NewMeili creates a Meilisearch client and configures indexes. An
// unreachable server is not an error: the health loop picks it up later.
func NewMeili(url, apiKey string, logger *zap.Logger) *Meili {
	if logger == nil {
		logger = zap.NewNop()
	}
	client := meili.New(url, meili.WithAPIKey(apiKey))

	m := &Meili{
		client: client,
		log:    logger.Named("meili"),
		done:   make(chan struct{}),
	}

	if _, err := client.Health(); err != nil {
		m.log.Warn("meilisearch unavailable", zap.String("url", url), zap.Error(err))
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndexes()
	}

	go m.healthLoop()
	return m
}

func (m *Meili) configureIndexes() {
	indexes := []struct {
		uid        string
		filterable []string
		searchable []string
	}{
		{
			uid:        idxCards,
			filterable: []string{"userId", "boardId", "tags"},
			searchable: []string{"title", "summary", "tags", "notes"},
		},
		{
			uid:        idxNotes,
			filterable: []string{"userId", "folderId"},
			searchable: []string{"title", "text"},
		},
	}

	for _, idx := range indexes {
		if _, err := m.client.CreateIndex(&meili.IndexConfig{
			Uid:        idx.uid,
			PrimaryKey: "id",
		}); err != nil {
			m.log.Debug("create index (may already exist)", zap.String("index", idx.uid), zap.Error(err))
		}

		index := m.client.Index(idx.uid)
		filterable := make([]interface{}, len(idx.filterable))
		for i, v := range idx.filterable {
			filterable[i] = v
		}
		if _, err := index.UpdateFilterableAttributes(&filterable); err != nil {
			m.log.Warn("update filterable attributes", zap.String("index", idx.uid), zap.Error(err))
		}
		if _, err := index.UpdateSearchableAttributes(&idx.searchable); err != nil {
			m.log.Warn("update searchable attributes", zap.String("index", idx.uid), zap.Error(err))
		}
	}
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			wasHealthy := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !wasHealthy {
				m.log.Info("meilisearch recovered, reconfiguring indexes")
				m.configureIndexes()
			}
		}
	}
}

// Close stops the background health monitor.
func (m *Meili) Close() {
	close(m.done)
}

// Healthy reports whether Meilisearch is reachable.
func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

// Search queries both indexes (or one of them) and merges the hits by
// ranking score. Each index is asked for offset+limit hits from the top so
// that the window is cut once over the merged list, as the PostgreSQL
// fallback does.
func (m *Meili) Search(_ context.Context, q Query) ([]Result, int, error) {
	if !m.healthy.Load() {
		return nil, 0, fmt.Errorf("meilisearch unhealthy")
	}
	limit := normalizeLimit(q.Limit)
	offset := max(q.Offset, 0)

	var queries []*meili.SearchRequest
	for _, ti := range []struct {
		uid  string
		rtyp ResultType
	}{
		{idxCards, ResultCard},
		{idxNotes, ResultNote},
	} {
		if q.FilterType != "" && q.FilterType != ti.rtyp {
			continue
		}
		queries = append(queries, &meili.SearchRequest{
			IndexUID:              ti.uid,
			Query:                 q.Text,
			Limit:                 int64(offset + limit),
			AttributesToHighlight: []string{"*"},
			HighlightPreTag:       "<mark>",
			HighlightPostTag:      "</mark>",
			AttributesToCrop:      []string{"summary", "notes", "text"},
			CropLength:            30,
			ShowRankingScore:      true,
			Filter:                userFilter(q.UserID),
		})
	}
	if len(queries) == 0 {
		return nil, 0, nil
	}

	resp, err := m.client.MultiSearch(&meili.MultiSearchRequest{Queries: queries})
	if err != nil {
		m.healthy.Store(false)
		return nil, 0, fmt.Errorf("meilisearch multi-search: %w", err)
	}
	results, total := mergeHits(resp.Results, offset, limit)
	return results, total, nil
}

type rankedResult struct {
	result Result
	score  float64
}

// mergeHits orders the hits of every index by ranking score, highest first,
// and returns the [offset, offset+limit) window with the summed totals.
// Ties keep index order, so cards come before notes.
func mergeHits(responses []meili.SearchResponse, offset, limit int) ([]Result, int) {
	var ranked []rankedResult
	total := 0
	for _, sr := range responses {
		total += int(max(sr.EstimatedTotalHits, sr.TotalHits))
		rtyp := indexToResultType(sr.IndexUID)
		for _, hit := range sr.Hits {
			ranked = append(ranked, rankedResult{result: hitToResult(hit, rtyp), score: rankingScore(hit)})
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	if offset >= len(ranked) {
		return nil, total
	}
	end := min(offset+limit, len(ranked))
	results := make([]Result, 0, end-offset)
	for _, r := range ranked[offset:end] {
		results = append(results, r.result)
	}
	return results, total
}

func rankingScore(hit meili.Hit) float64 {
	raw, ok := hit["_rankingScore"]
	if !ok {
		return 0
	}
	var score float64
	if err := json.Unmarshal(raw, &score); err != nil {
		return 0
	}
	return score
}

func userFilter(userID string) string {
	return fmt.Sprintf("userId = %q", userID)
}

func indexToResultType(uid string) ResultType {
	switch uid {
	case idxCards:
		return ResultCard
	case idxNotes:
		return ResultNote
	default:
		return ""
	}
}

func hitToResult(hit meili.Hit, rtyp ResultType) Result {
	r := Result{Type: rtyp, ID: decodeString(hit, "id")}
	r.Title = firstNonBlank(decodeFormattedString(hit, "title"), decodeString(hit, "title"))

	switch rtyp {
	case ResultCard:
		r.BoardID = decodeString(hit, "boardId")
		r.Snippet = firstNonBlank(
			decodeFormattedString(hit, "summary"), decodeString(hit, "summary"),
			decodeFormattedString(hit, "notes"), decodeString(hit, "notes"),
		)
	case ResultNote:
		r.FolderID = decodeString(hit, "folderId")
		r.Snippet = firstNonBlank(decodeFormattedString(hit, "text"), decodeString(hit, "text"))
	}
	return r
}

func decodeString(hit meili.Hit, key string) string {
	raw, ok := hit[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}

func decodeFormattedString(hit meili.Hit, key string) string {
	raw, ok := hit["_formatted"]
	if !ok {
		return ""
	}
	var formatted map[string]any
	if err := json.Unmarshal(raw, &formatted); err != nil {
		return ""
	}
	s, _ := formatted[key].(string)
	return strings.TrimSpace(s)
}

func firstNonBlank(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

// IndexCards adds or updates cards in the search index.
func (m *Meili) IndexCards(cards []CardRecord) error {
	if len(cards) == 0 {
		return nil
	}
	_, err := m.client.Index(idxCards).AddDocuments(cards, nil)
	return err
}

// IndexNotes adds or updates user notes in the search index.
func (m *Meili) IndexNotes(notes []NoteRecord) error {
	if len(notes) == 0 {
		return nil
	}
	_, err := m.client.Index(idxNotes).AddDocuments(notes, nil)
	return err
}

// ReplaceCards makes cards the full content of the cards index. The delete
// task is enqueued first and Meilisearch runs an index's tasks in order.
func (m *Meili) ReplaceCards(cards []CardRecord) error {
	if _, err := m.client.Index(idxCards).DeleteAllDocuments(nil); err != nil {
		return fmt.Errorf("clear %s: %w", idxCards, err)
	}
	return m.IndexCards(cards)
}

// ReplaceNotes makes notes the full content of the notes index.
func (m *Meili) ReplaceNotes(notes []NoteRecord) error {
	if _, err := m.client.Index(idxNotes).DeleteAllDocuments(nil); err != nil {
		return fmt.Errorf("clear %s: %w", idxNotes, err)
	}
	return m.IndexNotes(notes)
}

func (m *Meili) DeleteCard(id string) error {
	_, err := m.client.Index(idxCards).DeleteDocument(id, nil)
	return err
}

func (m *Meili) DeleteNote(id string) error {
	_, err := m.client.Index(idxNotes).DeleteDocument(id, nil)
	return err
}
