package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"invoicer/internal/cache"
	"invoicer/internal/core"
	"invoicer/internal/ports"
)

// DashboardQuery is a listing request from the dashboard.
type DashboardQuery struct {
	Filter core.Filter
	Sort   string
	Desc   bool
	Page   int
	Size   int
}

// Overview is everything the dashboard page needs in one fetch.
type Overview struct {
	KPIs      core.KPIs
	Documents core.Page[core.Document]
}

// DashboardService aggregates and lists documents. KPIs are cached per
// tenant and dropped on every write through Invalidate.
type DashboardService struct {
	store ports.DocumentReader
	cache cache.Cache[core.KPIs]
	now   func() time.Time
}

func NewDashboardService(store ports.DocumentReader, kpiCache cache.Cache[core.KPIs]) *DashboardService {
	return &DashboardService{store: store, cache: kpiCache, now: time.Now}
}

func kpiKey(tenantID string) string { return tenantID + "|kpis" }

// Invalidate implements Invalidator.
func (s *DashboardService) Invalidate(tenantID string) {
	if s.cache != nil {
		s.cache.DeletePrefix(tenantID + "|")
	}
}

// KPIs aggregates every live document of the tenant.
func (s *DashboardService) KPIs(ctx context.Context, tenantID string) (core.KPIs, error) {
	if tenantID == "" {
		return core.KPIs{}, core.ErrMissingTenant
	}
	if s.cache != nil {
		if k, ok := s.cache.Get(kpiKey(tenantID)); ok {
			return k, nil
		}
	}
	docs, err := s.store.List(ctx, core.Filter{TenantID: tenantID})
	if err != nil {
		return core.KPIs{}, fmt.Errorf("list documents for KPIs: %w", err)
	}
	k := core.ComputeKPIs(docs, s.now())
	if s.cache != nil {
		s.cache.Set(kpiKey(tenantID), k)
	}
	return k, nil
}

// Documents returns one sorted page of documents matching the query.
func (s *DashboardService) Documents(ctx context.Context, q DashboardQuery) (core.Page[core.Document], error) {
	if q.Filter.TenantID == "" {
		return core.Page[core.Document]{}, core.ErrMissingTenant
	}
	docs, err := s.store.List(ctx, q.Filter)
	if err != nil {
		return core.Page[core.Document]{}, fmt.Errorf("list documents: %w", err)
	}
	sortField := q.Sort
	desc := q.Desc
	if sortField == "" {
		sortField, desc = core.SortIssueDate, true
	}
	core.Sort(docs, sortField, desc)
	return core.Paginate(docs, q.Page, q.Size), nil
}

// All returns every matching document, sorted, without paging.
func (s *DashboardService) All(ctx context.Context, f core.Filter, sortField string, desc bool) ([]core.Document, error) {
	if f.TenantID == "" {
		return nil, core.ErrMissingTenant
	}
	docs, err := s.store.List(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	core.Sort(docs, sortField, desc)
	return docs, nil
}

// Recent returns the n most recently updated documents.
func (s *DashboardService) Recent(ctx context.Context, tenantID string, n int) ([]core.Document, error) {
	docs, err := s.All(ctx, core.Filter{TenantID: tenantID}, core.SortIssueDate, true)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(docs, func(i, j int) bool { return docs[i].UpdatedAt.After(docs[j].UpdatedAt) })
	if n > 0 && len(docs) > n {
		docs = docs[:n]
	}
	return docs, nil
}

// Overview fetches the KPIs and the requested page concurrently.
func (s *DashboardService) Overview(ctx context.Context, q DashboardQuery) (Overview, error) {
	var out Overview
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		k, err := s.KPIs(gctx, q.Filter.TenantID)
		out.KPIs = k
		return err
	})
	g.Go(func() error {
		p, err := s.Documents(gctx, q)
		out.Documents = p
		return err
	})
	if err := g.Wait(); err != nil {
		return Overview{}, err
	}
	return out, nil
}
