package shop

import (
	"github.com/shopspring/decimal"

	"github.com/ammar0144/specstore/pkg/specification"
)

// Sort tokens accepted by NewProductSpecification. Any other value sorts by name.
const (
	SortPriceAsc  = "priceAsc"
	SortPriceDesc = "priceDesc"
)

// orderIncludes are loaded with every order
var orderIncludes = []string{"OrderItems", "DeliveryMethod"}

// productCriteria filters on search text, brands and types. Empty inputs
// do not filter.
func productCriteria(p *ProductSpecParams) []specification.Option {
	var opts []specification.Option
	if search := p.Search(); search != "" {
		opts = append(opts, specification.Where("LOWER(name)", specification.Like, "%"+search+"%"))
	}
	if brands := p.Brands(); len(brands) > 0 {
		opts = append(opts, specification.Where("brand", specification.In, brands))
	}
	if types := p.Types(); len(types) > 0 {
		opts = append(opts, specification.Where("type", specification.In, types))
	}
	return opts
}

func productSort(sort string) specification.Option {
	switch sort {
	case SortPriceAsc:
		return specification.OrderBy("price")
	case SortPriceDesc:
		return specification.OrderByDescending("price")
	default:
		return specification.OrderBy("name")
	}
}

// NewProductSpecification lists one page of products matching p
func NewProductSpecification(p *ProductSpecParams) *specification.Specification[Product, Product] {
	opts := productCriteria(p)
	opts = append(opts,
		productSort(p.Sort()),
		specification.Page(p.PageIndex(), p.PageSize()),
	)
	return specification.New[Product](opts...)
}

// NewProductCountSpecification counts every product matching p
func NewProductCountSpecification(p *ProductSpecParams) *specification.Specification[Product, Product] {
	return specification.New[Product](productCriteria(p)...)
}

// NewBrandListSpecification lists the distinct brands, sorted
func NewBrandListSpecification() *specification.Specification[Product, string] {
	return specification.NewProjection[Product, string]([]string{"brand"},
		specification.OrderBy("brand"),
		specification.Distinct(),
	)
}

// NewTypeListSpecification lists the distinct product types, sorted
func NewTypeListSpecification() *specification.Specification[Product, string] {
	return specification.NewProjection[Product, string]([]string{"type"},
		specification.OrderBy("type"),
		specification.Distinct(),
	)
}

// ProductSummary is the listing shape of a product
type ProductSummary struct {
	ID    int             `json:"id"`
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
	Brand string          `json:"brand"`
	Type  string          `json:"type"`
}

// NewProductSummarySpecification is NewProductSpecification projected to ProductSummary
func NewProductSummarySpecification(p *ProductSpecParams) *specification.Specification[Product, ProductSummary] {
	opts := productCriteria(p)
	opts = append(opts,
		productSort(p.Sort()),
		specification.Page(p.PageIndex(), p.PageSize()),
	)
	return specification.NewProjection[Product, ProductSummary](
		[]string{"id", "name", "price", "brand", "type"}, opts...)
}

// NewOrdersForBuyerSpecification lists a buyer's orders, newest first
func NewOrdersForBuyerSpecification(email string) *specification.Specification[Order, Order] {
	return specification.New[Order](
		specification.Where("buyer_email", specification.Equal, email),
		specification.Include(orderIncludes...),
		specification.OrderByDescending("order_date"),
	)
}

// NewOrderForBuyerSpecification finds one of a buyer's orders
func NewOrderForBuyerSpecification(email string, id int) *specification.Specification[Order, Order] {
	return specification.New[Order](
		specification.Where("buyer_email", specification.Equal, email),
		specification.Where("id", specification.Equal, id),
		specification.Include(orderIncludes...),
		specification.OrderByDescending("order_date"),
	)
}

// NewOrderByPaymentIntentSpecification finds the order paid through a payment intent
func NewOrderByPaymentIntentSpecification(intentID string) *specification.Specification[Order, Order] {
	return specification.New[Order](
		specification.Where("payment_intent_id", specification.Equal, intentID),
		specification.Include(orderIncludes...),
		specification.OrderByDescending("order_date"),
	)
}

// NewDeliveryMethodsSpecification lists delivery methods, most expensive first
func NewDeliveryMethodsSpecification() *specification.Specification[DeliveryMethod, DeliveryMethod] {
	return specification.New[DeliveryMethod](specification.OrderByDescending("price"))
}
