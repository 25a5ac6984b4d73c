package discovery

import (
	"context"
	"strings"

	"github.com/AdamBeresnev/yumcup/internal/apperr"
	"github.com/AdamBeresnev/yumcup/internal/metrics"
	"github.com/AdamBeresnev/yumcup/internal/source"
	"golang.org/x/sync/errgroup"
)

// collect pages through the local search until it has minimum distinct documents or the
// upstream runs out. After page 1, pages are requested in parallel windows and merged in page
// order, so everything after the first end-of-results page is discarded.
func (o *Orchestrator) collect(ctx context.Context, q source.Query, minimum int) ([]source.Document, error) {
	first, err := o.search.SearchPage(ctx, q, 1)
	if err != nil {
		return nil, err
	}
	metrics.DiscoveryPagesFetched.Inc()
	if len(first.Documents) == 0 {
		return nil, apperr.ErrNoNearbyResults
	}

	acc := newAccumulator()
	acc.add(first.Documents)

	ended := first.IsEnd
	next := 2
	for !ended && acc.len() < minimum && next <= o.cfg.MaxPages {
		missing := minimum - acc.len()
		window := min(o.cfg.EagerPages, o.cfg.MaxPages-next+1, (missing+source.PageSize-1)/source.PageSize)

		pages, err := o.fetchWindow(ctx, q, next, window)
		if err != nil {
			return nil, err
		}
		for _, p := range pages {
			acc.add(p.Documents)
			if p.IsEnd || len(p.Documents) == 0 {
				ended = true
				break
			}
		}
		next += window
	}

	docs := acc.docs
	if len(docs) > minimum {
		docs = docs[:minimum]
	}
	return docs, nil
}

func (o *Orchestrator) fetchWindow(ctx context.Context, q source.Query, from, count int) ([]*source.Page, error) {
	pages := make([]*source.Page, count)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.EagerPages)
	for i := 0; i < count; i++ {
		g.Go(func() error {
			p, err := o.search.SearchPage(gctx, q, from+i)
			if err != nil {
				return err
			}
			metrics.DiscoveryPagesFetched.Inc()
			pages[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return pages, nil
}

// accumulator keeps the first occurrence of every external id, in arrival order.
type accumulator struct {
	seen map[string]struct{}
	docs []source.Document
}

func newAccumulator() *accumulator {
	return &accumulator{seen: make(map[string]struct{})}
}

func (a *accumulator) add(docs []source.Document) {
	for _, d := range docs {
		id := strings.TrimSpace(d.ID)
		if id == "" {
			continue
		}
		if _, ok := a.seen[id]; ok {
			continue
		}
		a.seen[id] = struct{}{}
		d.ID = id
		a.docs = append(a.docs, d)
	}
}

func (a *accumulator) len() int {
	return len(a.docs)
}
