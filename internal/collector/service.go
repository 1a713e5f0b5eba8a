package collector

import (
	"context"
	"errors"
	"log/slog"

	"kibalert/internal/alerts"
	"kibalert/internal/compose"
	"kibalert/internal/metrics"
	"kibalert/internal/models"
	"kibalert/internal/normalize"
	"kibalert/internal/search"
)

// Searcher is the search backend the collector polls.
type Searcher interface {
	Search(ctx context.Context, index string, q search.Query) ([]models.RawRecord, error)
}

// Service runs one polling pass: for every category it fetches, normalizes,
// evaluates and publishes each result set.
type Service struct {
	search     Searcher
	engine     *alerts.Engine
	publisher  *compose.Publisher
	params     search.Params
	categories []models.Category
	log        *slog.Logger
	metrics    *metrics.Metrics
}

// NewService checks categories in the given order; nil means every category.
func NewService(s Searcher, engine *alerts.Engine, p *compose.Publisher, params search.Params, categories []models.Category, logger *slog.Logger, m *metrics.Metrics) *Service {
	if len(categories) == 0 {
		categories = models.Categories
	}
	return &Service{search: s, engine: engine, publisher: p, params: params, categories: categories, log: logger, metrics: m}
}

// Tick returns the number of entities published as affected.
func (s *Service) Tick(ctx context.Context) int {
	total := 0
	for _, c := range s.categories {
		if ctx.Err() != nil {
			return total
		}
		total += s.Collect(ctx, c)
	}
	return total
}

// Collect handles one category. Alert categories issue one request per rule
// and each response is evaluated as its own batch.
func (s *Service) Collect(ctx context.Context, c models.Category) int {
	reqs := search.For(c, s.params)
	if len(reqs) == 0 {
		s.log.Debug("category has nothing to query", "category", c)
		return 0
	}
	affected := 0
	for _, req := range reqs {
		raw, err := s.search.Search(ctx, req.Index, req.Query)
		if err != nil {
			s.fetchFailed(c, req, err)
			continue
		}
		s.log.Info("fetched", "category", c, "index", req.Index, "rule", req.RuleID, "hits", len(raw))
		batch := s.engine.Evaluate(c, normalize.Records(raw, c))
		out := s.publisher.Publish(ctx, batch, s.engine.Thresholds())
		if out.Summaries > 0 {
			affected += len(batch.Affected)
		}
	}
	return affected
}

func (s *Service) fetchFailed(c models.Category, req search.Request, err error) {
	var se *search.Error
	if !errors.As(err, &se) {
		s.metrics.FetchError(string(c), "unknown")
		s.log.Error("fetch failed", "category", c, "index", req.Index, "err", err)
		return
	}
	s.metrics.FetchError(string(c), string(se.Kind))
	switch se.Kind {
	case search.KindTransport:
		s.log.Warn("search backend unreachable", "category", c, "index", req.Index, "err", se.Err)
	case search.KindStatus:
		s.log.Error("search rejected", "category", c, "index", req.Index, "status", se.Status, "body", se.Body)
	default:
		s.log.Error("search response unreadable", "category", c, "index", req.Index, "kind", se.Kind, "err", se.Err)
	}
}
