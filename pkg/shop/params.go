package shop

import (
	"net/url"
	"strconv"
	"strings"
)

const (
	MaxPageSize     = 100
	DefaultPageSize = 6
)

// ProductSpecParams carries the caller's product filter, sort and paging
// input. Every setter normalizes its value, so getters always return
// canonical values.
type ProductSpecParams struct {
	pageIndex int
	pageSize  int
	brands    []string
	types     []string
	sort      string
	search    string
}

func NewProductSpecParams() *ProductSpecParams {
	return &ProductSpecParams{pageIndex: 1, pageSize: DefaultPageSize}
}

// ProductSpecParamsFromQuery reads pageIndex, pageSize, brands, types, sort
// and search from a query string. Unparsable numbers keep their defaults.
func ProductSpecParamsFromQuery(query url.Values) *ProductSpecParams {
	p := NewProductSpecParams()

	if v, err := strconv.Atoi(query.Get("pageIndex")); err == nil {
		p.SetPageIndex(v)
	}
	if v, err := strconv.Atoi(query.Get("pageSize")); err == nil {
		p.SetPageSize(v)
	}
	p.SetBrands(query["brands"]...)
	p.SetTypes(query["types"]...)
	p.SetSort(query.Get("sort"))
	p.SetSearch(query.Get("search"))

	return p
}

func (p *ProductSpecParams) PageIndex() int { return p.pageIndex }

// SetPageIndex stores index, treating values below 1 as the first page
func (p *ProductSpecParams) SetPageIndex(index int) {
	if index < 1 {
		index = 1
	}
	p.pageIndex = index
}

func (p *ProductSpecParams) PageSize() int { return p.pageSize }

// SetPageSize clamps size to MaxPageSize; sizes below 1 fall back to DefaultPageSize
func (p *ProductSpecParams) SetPageSize(size int) {
	switch {
	case size > MaxPageSize:
		size = MaxPageSize
	case size < 1:
		size = DefaultPageSize
	}
	p.pageSize = size
}

func (p *ProductSpecParams) Brands() []string { return append([]string(nil), p.brands...) }

// SetBrands accepts comma-joined values, e.g. SetBrands("Nike,Adidas", "Puma")
func (p *ProductSpecParams) SetBrands(values ...string) { p.brands = splitTokens(values) }

func (p *ProductSpecParams) Types() []string { return append([]string(nil), p.types...) }

// SetTypes accepts comma-joined values like SetBrands
func (p *ProductSpecParams) SetTypes(values ...string) { p.types = splitTokens(values) }

func (p *ProductSpecParams) Sort() string { return p.sort }

func (p *ProductSpecParams) SetSort(sort string) { p.sort = strings.TrimSpace(sort) }

func (p *ProductSpecParams) Search() string { return p.search }

// SetSearch stores the search text lower-cased
func (p *ProductSpecParams) SetSearch(search string) { p.search = strings.ToLower(search) }

func splitTokens(values []string) []string {
	var tokens []string
	for _, value := range values {
		for _, token := range strings.Split(value, ",") {
			if token = strings.TrimSpace(token); token != "" {
				tokens = append(tokens, token)
			}
		}
	}
	return tokens
}
