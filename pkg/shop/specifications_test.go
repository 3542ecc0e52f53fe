package shop_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ammar0144/specstore/pkg/db"
	"github.com/ammar0144/specstore/pkg/repository"
	"github.com/ammar0144/specstore/pkg/shop"
)

func newShop(t *testing.T) *db.Manager {
	t.Helper()

	cfg := db.DefaultConfig()
	cfg.MaxOpenConns = 1
	cfg.MaxIdleConns = 1
	cfg.PrepareStmt = false
	cfg.Logging.Level = "silent"

	manager, err := db.NewManagerWithDialector(sqlite.Open(":memory:"), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = manager.Close() })

	manager.Register(shop.Models()...)
	require.NoError(t, manager.AutoMigrate(context.Background()))
	return manager
}

// seedProducts stores 12 products: brands cycle Nike, Adidas, Puma and types
// cycle Boots, Gloves; product i costs i*10.
func seedProducts(t *testing.T, manager *db.Manager) {
	t.Helper()

	brands := []string{"Nike", "Adidas", "Puma"}
	types := []string{"Boots", "Gloves"}

	uow := repository.NewUnitOfWork(manager, nil)
	defer uow.Close()

	repo := repository.RepositoryFor[shop.Product](uow)
	for i := 1; i <= 12; i++ {
		repo.Add(&shop.Product{
			Name:            fmt.Sprintf("%s %s %02d", brands[(i-1)%3], types[(i-1)%2], i),
			Price:           decimal.NewFromInt(int64(i * 10)),
			Brand:           brands[(i-1)%3],
			Type:            types[(i-1)%2],
			QuantityInStock: i,
		})
	}
	_, err := uow.Commit(context.Background())
	require.NoError(t, err)
}

func productNames(products []*shop.Product) []string {
	out := make([]string, len(products))
	for i, p := range products {
		out[i] = p.Name
	}
	return out
}

func TestProductSpecification_FilterSortAndPage(t *testing.T) {
	manager := newShop(t)
	seedProducts(t, manager)
	ctx := context.Background()

	uow := repository.NewUnitOfWork(manager, nil)
	defer uow.Close()
	repo := repository.RepositoryFor[shop.Product](uow)

	params := shop.NewProductSpecParams()
	params.SetBrands("Nike")
	params.SetSort(shop.SortPriceDesc)
	params.SetPageSize(3)

	page, err := repository.ListPage[shop.Product](ctx, repo, shop.NewProductSpecification(params), params.PageIndex(), params.PageSize())
	require.NoError(t, err)

	assert.Equal(t, 4, page.Count)
	assert.Equal(t, []string{"Nike Gloves 10", "Nike Boots 07", "Nike Gloves 04"}, productNames(page.Data))

	params.SetPageIndex(2)
	page, err = repository.ListPage[shop.Product](ctx, repo, shop.NewProductSpecification(params), params.PageIndex(), params.PageSize())
	require.NoError(t, err)
	assert.Equal(t, []string{"Nike Boots 01"}, productNames(page.Data))
}

func TestProductSpecification_SearchAndTypes(t *testing.T) {
	manager := newShop(t)
	seedProducts(t, manager)
	ctx := context.Background()

	uow := repository.NewUnitOfWork(manager, nil)
	defer uow.Close()
	repo := repository.RepositoryFor[shop.Product](uow)

	params := shop.NewProductSpecParams()
	params.SetSearch("PUMA")
	params.SetTypes("Gloves")

	products, err := repo.List(ctx, shop.NewProductSpecification(params))
	require.NoError(t, err)
	assert.Equal(t, []string{"Puma Gloves 06", "Puma Gloves 12"}, productNames(products))

	n, err := repo.Count(ctx, shop.NewProductCountSpecification(params))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestProductSpecification_PriceAscending(t *testing.T) {
	manager := newShop(t)
	seedProducts(t, manager)

	uow := repository.NewUnitOfWork(manager, nil)
	defer uow.Close()

	params := shop.NewProductSpecParams()
	params.SetSort(shop.SortPriceAsc)
	params.SetPageSize(2)

	products, err := repository.RepositoryFor[shop.Product](uow).List(context.Background(), shop.NewProductSpecification(params))
	require.NoError(t, err)
	require.Len(t, products, 2)
	assert.True(t, products[0].Price.Equal(decimal.NewFromInt(10)))
	assert.True(t, products[1].Price.Equal(decimal.NewFromInt(20)))
}

func TestBrandAndTypeLists(t *testing.T) {
	manager := newShop(t)
	seedProducts(t, manager)
	ctx := context.Background()

	uow := repository.NewUnitOfWork(manager, nil)
	defer uow.Close()
	repo := repository.RepositoryFor[shop.Product](uow)

	brands, err := repository.ListAs(ctx, repo, shop.NewBrandListSpecification())
	require.NoError(t, err)
	assert.Equal(t, []string{"Adidas", "Nike", "Puma"}, brands)

	types, err := repository.ListAs(ctx, repo, shop.NewTypeListSpecification())
	require.NoError(t, err)
	assert.Equal(t, []string{"Boots", "Gloves"}, types)
}

func TestProductSummarySpecification(t *testing.T) {
	manager := newShop(t)
	seedProducts(t, manager)

	uow := repository.NewUnitOfWork(manager, nil)
	defer uow.Close()

	params := shop.NewProductSpecParams()
	params.SetBrands("Adidas")

	summaries, err := repository.ListAs(context.Background(), repository.RepositoryFor[shop.Product](uow), shop.NewProductSummarySpecification(params))
	require.NoError(t, err)
	require.Len(t, summaries, 4)
	assert.Equal(t, "Adidas Boots 05", summaries[0].Name)
	assert.Equal(t, "Adidas", summaries[0].Brand)
	assert.True(t, summaries[0].Price.Equal(decimal.NewFromInt(50)))
}

func seedOrders(t *testing.T, manager *db.Manager) (standard, express *shop.DeliveryMethod) {
	t.Helper()
	ctx := context.Background()

	uow := repository.NewUnitOfWork(manager, nil)
	defer uow.Close()

	standard = &shop.DeliveryMethod{ShortName: "STD", DeliveryTime: "5 days", Price: decimal.NewFromInt(5)}
	express = &shop.DeliveryMethod{ShortName: "EXP", DeliveryTime: "1 day", Price: decimal.NewFromInt(15)}
	repository.RepositoryFor[shop.DeliveryMethod](uow).AddRange(standard, express)
	_, err := uow.Commit(ctx)
	require.NoError(t, err)

	orders := repository.RepositoryFor[shop.Order](uow)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, email := range []string{"ann@example.com", "ann@example.com", "bob@example.com"} {
		orders.Add(&shop.Order{
			OrderDate:        base.Add(time.Duration(i) * time.Hour),
			BuyerEmail:       email,
			ShippingAddress:  shop.ShippingAddress{Name: "Ann", Line1: "1 Main St", City: "Springfield", Country: "US"},
			DeliveryMethodID: express.ID,
			OrderItems: []shop.OrderItem{
				{ItemOrdered: shop.ProductItemOrdered{ProductID: 1, ProductName: "Boots"}, Price: decimal.NewFromInt(40), Quantity: 1},
				{ItemOrdered: shop.ProductItemOrdered{ProductID: 2, ProductName: "Gloves"}, Price: decimal.NewFromInt(20), Quantity: 2},
			},
			Subtotal:        decimal.NewFromInt(80),
			Status:          shop.OrderStatusPending,
			PaymentIntentID: fmt.Sprintf("pi_%d", i+1),
		})
	}
	_, err = uow.Commit(ctx)
	require.NoError(t, err)
	return standard, express
}

func TestOrdersForBuyerSpecification(t *testing.T) {
	manager := newShop(t)
	seedOrders(t, manager)
	ctx := context.Background()

	uow := repository.NewUnitOfWork(manager, nil)
	defer uow.Close()
	repo := repository.RepositoryFor[shop.Order](uow)

	orders, err := repo.List(ctx, shop.NewOrdersForBuyerSpecification("ann@example.com"))
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, "pi_2", orders[0].PaymentIntentID, "newest first")

	order := orders[0]
	require.NotNil(t, order.DeliveryMethod)
	assert.Equal(t, "EXP", order.DeliveryMethod.ShortName)
	assert.Len(t, order.OrderItems, 2)
	assert.True(t, order.Total().Equal(decimal.NewFromInt(95)))

	one, err := repo.GetEntityWithSpec(ctx, shop.NewOrderForBuyerSpecification("ann@example.com", order.ID))
	require.NoError(t, err)
	assert.Same(t, order, one)

	other, err := repo.GetEntityWithSpec(ctx, shop.NewOrderForBuyerSpecification("bob@example.com", order.ID))
	require.NoError(t, err)
	assert.Nil(t, other, "orders of other buyers are not returned")
}

func TestOrderByPaymentIntent_StatusChangeIsCommitted(t *testing.T) {
	manager := newShop(t)
	seedOrders(t, manager)
	ctx := context.Background()

	uow := repository.NewUnitOfWork(manager, nil)
	order, err := repository.RepositoryFor[shop.Order](uow).GetEntityWithSpec(ctx, shop.NewOrderByPaymentIntentSpecification("pi_3"))
	require.NoError(t, err)
	require.NotNil(t, order)
	assert.Equal(t, shop.OrderStatusPending, order.Status)

	order.Status = shop.OrderStatusPaymentReceived
	changed, err := uow.Commit(ctx)
	require.NoError(t, err)
	assert.True(t, changed)
	require.NoError(t, uow.Close())

	check := repository.NewUnitOfWork(manager, nil)
	defer check.Close()
	reloaded, err := repository.RepositoryFor[shop.Order](check).GetEntityWithSpec(ctx, shop.NewOrderByPaymentIntentSpecification("pi_3"))
	require.NoError(t, err)
	require.NotNil(t, reloaded)
	assert.Equal(t, shop.OrderStatusPaymentReceived, reloaded.Status)
	assert.Len(t, reloaded.OrderItems, 2, "items are untouched by the update")
}

func TestDeliveryMethodsSpecification(t *testing.T) {
	manager := newShop(t)
	seedOrders(t, manager)

	uow := repository.NewUnitOfWork(manager, nil)
	defer uow.Close()

	methods, err := repository.RepositoryFor[shop.DeliveryMethod](uow).List(context.Background(), shop.NewDeliveryMethodsSpecification())
	require.NoError(t, err)
	require.Len(t, methods, 2)
	assert.Equal(t, "EXP", methods[0].ShortName)
	assert.Equal(t, "STD", methods[1].ShortName)
}

func TestOrder_TotalWithoutDeliveryMethod(t *testing.T) {
	order := shop.Order{Subtotal: decimal.RequireFromString("12.50")}
	assert.True(t, order.Total().Equal(decimal.RequireFromString("12.50")))
}
