// Package search implements the historical-item suggestion engine. It
// gathers archived items across every list a user may read, suppresses
// names the home list is actively tracking, deduplicates across lists
// and ranks the survivors.
package search

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/shoplist-api/shoplist/internal/model"
)

// Prometheus metrics.
var (
	searchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "search_duration_seconds",
			Help:    "Duration of archived-item searches in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	searchFanoutLists = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "search_fanout_lists",
			Help:    "Number of lists queried per search",
			Buckets: prometheus.LinearBuckets(1, 1, 10),
		},
	)
)

// ItemSource provides the per-list lookups the engine fans out over.
// Implementations own their timeout and retry policy; the engine only
// cancels them.
type ItemSource interface {
	// ActiveItemNames returns the lower-cased names of non-archived
	// items in the list.
	ActiveItemNames(ctx context.Context, listID string) (map[string]struct{}, error)

	// ArchivedItemsMatchingPrefix returns archived items of the list
	// whose name starts with the prefix, case-insensitively.
	ArchivedItemsMatchingPrefix(ctx context.Context, listID, prefix string) ([]model.Item, error)
}

// AccessResolver yields the set of lists a user may read, own lists
// first. The home list of a search is always part of the set.
type AccessResolver interface {
	AccessibleLists(ctx context.Context, userID string) ([]string, error)
}

// Engine is the archived-item search engine. It is stateless between
// calls and never mutates stored items.
type Engine struct {
	source ItemSource
	access AccessResolver
	logger *zap.Logger
}

// NewEngine creates a new Engine instance.
func NewEngine(source ItemSource, access AccessResolver, logger *zap.Logger) *Engine {
	return &Engine{
		source: source,
		access: access,
		logger: logger,
	}
}

// candidate is an archived item paired with its sourcing, before
// dedup and projection.
type candidate struct {
	item     model.Item
	fromHome bool
}

// Search returns ranked, deduplicated, redacted suggestions for the
// prefix query, scoped to the user's accessible lists. The home list
// wins dedup conflicts, sorts first and keeps its private attributes;
// foreign rows are redacted. An empty query short-circuits to an empty
// result, it is not a match-all.
func (e *Engine) Search(
	ctx context.Context,
	userID, homeListID, query string,
) ([]model.ItemProjection, error) {
	start := time.Now()
	defer func() {
		searchDuration.Observe(time.Since(start).Seconds())
	}()

	if query == "" {
		return []model.ItemProjection{}, nil
	}

	listIDs, err := e.access.AccessibleLists(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("resolving accessible lists: %w", err)
	}

	activeNames, err := e.source.ActiveItemNames(ctx, homeListID)
	if err != nil {
		return nil, fmt.Errorf("loading active names: %w", err)
	}

	perList, err := e.fanOut(ctx, listIDs, query)
	if err != nil {
		return nil, err
	}

	kept := e.merge(perList, listIDs, homeListID, activeNames)

	sort.SliceStable(kept, func(a, b int) bool {
		if kept[a].fromHome != kept[b].fromHome {
			return kept[a].fromHome
		}
		if kept[a].item.Frequency != kept[b].item.Frequency {
			return kept[a].item.Frequency > kept[b].item.Frequency
		}
		return kept[a].item.ID < kept[b].item.ID
	})

	results := make([]model.ItemProjection, 0, len(kept))
	for _, c := range kept {
		results = append(results, c.item.Project(c.fromHome))
	}

	e.logger.Debug("search completed",
		zap.String("home_list_id", homeListID),
		zap.Int("lists_queried", len(listIDs)),
		zap.Int("results", len(results)),
	)

	return results, nil
}

// fanOut queries every accessible list concurrently for archived prefix
// matches. Results are slotted by list index so the merge order does
// not depend on goroutine scheduling. The first error cancels the
// remaining lookups; none of them mutate state, so abandonment is safe.
func (e *Engine) fanOut(
	ctx context.Context,
	listIDs []string,
	query string,
) ([][]model.Item, error) {
	searchFanoutLists.Observe(float64(len(listIDs)))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	perList := make([][]model.Item, len(listIDs))
	errCh := make(chan error, 1)

	var wg sync.WaitGroup
	for i, listID := range listIDs {
		wg.Add(1)
		go func(slot int, id string) {
			defer wg.Done()

			items, err := e.source.ArchivedItemsMatchingPrefix(ctx, id, query)
			if err != nil {
				select {
				case errCh <- fmt.Errorf("searching list %s: %w", id, err):
					cancel()
				default:
				}
				return
			}
			perList[slot] = items
		}(i, listID)
	}
	wg.Wait()

	select {
	case err := <-errCh:
		return nil, err
	default:
	}

	return perList, nil
}

// merge flattens the per-list results into a single deduplicated
// candidate set. Names active on the home list are excluded entirely.
// When a name occurs in several lists the home list's row wins; among
// foreign lists the first encountered in accessible-set order is kept.
func (e *Engine) merge(
	perList [][]model.Item,
	listIDs []string,
	homeListID string,
	activeNames map[string]struct{},
) []candidate {
	var kept []candidate
	byName := make(map[string]int)

	for i, items := range perList {
		fromHome := listIDs[i] == homeListID
		for _, item := range items {
			name := strings.ToLower(item.Name)

			if _, active := activeNames[name]; active {
				continue
			}

			idx, exists := byName[name]
			if !exists {
				byName[name] = len(kept)
				kept = append(kept, candidate{item: item, fromHome: fromHome})
				continue
			}
			if fromHome && !kept[idx].fromHome {
				kept[idx] = candidate{item: item, fromHome: true}
			}
		}
	}

	return kept
}
