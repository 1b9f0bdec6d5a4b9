//go:build integration

package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flicky/spice-storefront/internal/model"
)

func setupMongoStore(t *testing.T) *Store {
	t.Helper()
	uri := os.Getenv("TEST_MONGO_URI")
	if uri == "" {
		uri = "mongodb://localhost:27017/?replicaSet=rs0"
	}
	ctx := context.Background()

	client, err := OpenMongo(ctx, uri, 10*time.Second)
	require.NoError(t, err)

	db := client.Database("storefront_test_" + uuid.NewString()[:8])
	require.NoError(t, EnsureIndexes(ctx, db))
	t.Cleanup(func() {
		_ = db.Drop(context.Background())
		_ = client.Disconnect(context.Background())
	})
	return NewMongoStore(client, db)
}

func TestMongoProductRepository_Integration(t *testing.T) {
	store := setupMongoStore(t)
	ctx := context.Background()

	for i, name := range []string{"Turmeric", "Masala Chai", "Almonds"} {
		cat := []model.Category{model.CategorySpices, model.CategoryTea, model.CategoryDryFruits}[i]
		p := &model.Product{
			Name: name, Description: name + " from Kerala", Category: cat,
			Price: decimal.NewFromInt(int64(100 * (i + 1))), Stock: 10, IsActive: true,
			Images: []model.ProductImage{{URL: "https://cdn.example.com/x.jpg", PublicID: "x", IsPrimary: true}},
			Tags:   []string{"organic"},
		}
		require.NoError(t, store.Products.Create(ctx, p))
	}

	min := decimal.NewFromInt(150)
	products, total, err := store.Products.List(ctx, model.ProductFilter{
		ActiveOnly: true, MinPrice: &min, Sort: model.SortPrice, Page: 1, Limit: 12,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, products, 2)
	assert.Equal(t, "Masala Chai", products[0].Name)

	names, err := store.Products.SuggestNames(ctx, "mas", 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"Masala Chai"}, names)

	counts, err := store.Products.CategoryCounts(ctx)
	require.NoError(t, err)
	assert.Len(t, counts, 3)

	related, err := store.Products.Related(ctx, model.RelatedFilter{
		Categories: []model.Category{model.CategoryTea}, Limit: 5,
	})
	require.NoError(t, err)
	require.Len(t, related, 1)
	assert.Equal(t, "Masala Chai", related[0].Name)
}

func TestMongoCheckout_Integration(t *testing.T) {
	store := setupMongoStore(t)
	ctx := context.Background()

	userID := uuid.New()
	p := &model.Product{
		Name: "Saffron", Description: "Kashmiri saffron", Category: model.CategorySpices,
		Price: decimal.NewFromInt(100), Stock: 3, IsActive: true,
	}
	require.NoError(t, store.Products.Create(ctx, p))

	cart := model.NewCart(userID, time.Now())
	require.NoError(t, store.Carts.Create(ctx, cart))
	assert.ErrorIs(t, store.Carts.Create(ctx, model.NewCart(userID, time.Now())), ErrDuplicateKey)

	order := &model.Order{
		ID: "5550001112", CartID: cart.ID, UserID: userID,
		Items:      []model.OrderItem{{ProductID: p.ID, Name: p.Name, Quantity: 2, Price: p.Price}},
		TotalPrice: decimal.NewFromInt(200), DeliveryLocation: "X", Status: model.OrderStatusPending,
	}
	next := model.NewCart(userID, time.Now())
	require.NoError(t, store.Orders.Place(ctx, order, next))

	got, err := store.Products.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Stock)

	active, err := store.Carts.GetActive(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, next.ID, active.ID)

	stats, err := store.Orders.Stats(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalOrders)
	assert.True(t, decimal.NewFromInt(200).Equal(stats.TotalRevenue))
}
