// Package audit reads back the payment audit trail written by billing.
package audit

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const (
	defaultPageSize = 20
	maxPageSize     = 50
)

// Query is the repository-level form of TimelineFilters. Blank text
// filters and zero times match everything; To is exclusive.
type Query struct {
	From   time.Time
	To     time.Time
	Actor  string
	Entity string
	Action string
	Offset int
	Limit  int
}

// Repository loads audit rows, newest first.
type Repository interface {
	Window(ctx context.Context, q Query) ([]TimelineRow, error)
	All(ctx context.Context, q Query) ([]TimelineRow, error)
}

// Service pages and exports the audit trail.
type Service struct {
	repo Repository
}

// NewService builds an audit Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Timeline returns one page; one extra row is fetched to detect a next page.
func (s *Service) Timeline(ctx context.Context, filters TimelineFilters) (Result, error) {
	if s.repo == nil {
		return Result{}, fmt.Errorf("audit: repository not configured")
	}
	pageSize := filters.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}
	q := toQuery(filters)
	q.Offset = (page - 1) * pageSize
	q.Limit = pageSize + 1
	rows, err := s.repo.Window(ctx, q)
	if err != nil {
		return Result{}, fmt.Errorf("audit: timeline: %w", err)
	}
	hasNext := len(rows) > pageSize
	if hasNext {
		rows = rows[:pageSize]
	}
	paging := PagingInfo{Page: page, PageSize: pageSize, HasNext: hasNext}
	if page > 1 {
		paging.PrevPage = page - 1
	}
	if hasNext {
		paging.NextPage = page + 1
	}
	if rows == nil {
		rows = []TimelineRow{}
	}
	return Result{Rows: rows, Paging: paging}, nil
}

// Export returns every matching row without paging.
func (s *Service) Export(ctx context.Context, filters TimelineFilters) ([]TimelineRow, error) {
	if s.repo == nil {
		return nil, fmt.Errorf("audit: repository not configured")
	}
	rows, err := s.repo.All(ctx, toQuery(filters))
	if err != nil {
		return nil, fmt.Errorf("audit: export: %w", err)
	}
	return rows, nil
}

func toQuery(f TimelineFilters) Query {
	q := Query{
		From:   f.From,
		Actor:  strings.TrimSpace(f.Actor),
		Entity: strings.TrimSpace(f.Entity),
		Action: strings.TrimSpace(f.Action),
	}
	// The upper bound is a calendar day, so include all of it.
	if !f.To.IsZero() {
		q.To = f.To.AddDate(0, 0, 1)
	}
	return q
}
