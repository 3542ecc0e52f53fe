package repository

import (
	"context"

	"github.com/ammar0144/specstore/pkg/specification"
)

// Page is one page of a listing together with the size of the whole
// candidate set, so callers can compute the number of pages.
type Page[T any] struct {
	PageIndex int `json:"pageIndex"`
	PageSize  int `json:"pageSize"`
	Count     int `json:"count"`
	Data      []T `json:"data"`
}

// ListPage runs spec and its count. pageIndex and pageSize describe the
// paging spec was built with and are echoed in the result.
func ListPage[T Entity](ctx context.Context, repo Repository[T], spec *specification.Specification[T, T], pageIndex, pageSize int) (*Page[*T], error) {
	total, err := repo.Count(ctx, spec)
	if err != nil {
		return nil, err
	}

	data, err := repo.List(ctx, spec)
	if err != nil {
		return nil, err
	}

	return &Page[*T]{
		PageIndex: pageIndex,
		PageSize:  pageSize,
		Count:     total,
		Data:      data,
	}, nil
}
