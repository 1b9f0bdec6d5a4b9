package service

import (
	"context"
	"slices"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/flicky/spice-storefront/internal/apperr"
	"github.com/flicky/spice-storefront/internal/dto"
	"github.com/flicky/spice-storefront/internal/model"
	"github.com/flicky/spice-storefront/internal/repository"
)

type mockProductRepo struct {
	products map[uuid.UUID]*model.Product
}

func newMockProductRepo() *mockProductRepo {
	return &mockProductRepo{products: make(map[uuid.UUID]*model.Product)}
}

func (m *mockProductRepo) add(name string, price int64, stock int) *model.Product {
	p := &model.Product{
		ID:        uuid.New(),
		Name:      name,
		Category:  model.CategorySpices,
		Price:     decimal.NewFromInt(price),
		Stock:     stock,
		IsActive:  true,
		Images:    []model.ProductImage{{URL: "https://cdn.example.com/" + name + ".jpg", PublicID: name, IsPrimary: true}},
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	m.products[p.ID] = p
	return p
}

func (m *mockProductRepo) stock(id uuid.UUID) int {
	return m.products[id].Stock
}

func (m *mockProductRepo) Create(_ context.Context, p *model.Product) error {
	p.ID = uuid.New()
	p.CreatedAt = time.Now()
	p.UpdatedAt = time.Now()
	cp := *p
	m.products[p.ID] = &cp
	return nil
}

func (m *mockProductRepo) GetByID(_ context.Context, id uuid.UUID) (*model.Product, error) {
	p, ok := m.products[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (m *mockProductRepo) GetByIDs(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]*model.Product, error) {
	out := make(map[uuid.UUID]*model.Product, len(ids))
	for _, id := range ids {
		if p, ok := m.products[id]; ok {
			cp := *p
			out[id] = &cp
		}
	}
	return out, nil
}

func (m *mockProductRepo) List(_ context.Context, f model.ProductFilter) ([]model.Product, int, error) {
	var all []model.Product
	for _, p := range m.products {
		if f.ActiveOnly && !p.IsActive {
			continue
		}
		if f.Category != "" && p.Category != f.Category {
			continue
		}
		if f.Search != "" && !strings.Contains(strings.ToLower(p.Name), strings.ToLower(f.Search)) {
			continue
		}
		if f.MinPrice != nil && p.Price.LessThan(*f.MinPrice) {
			continue
		}
		if f.MaxPrice != nil && p.Price.GreaterThan(*f.MaxPrice) {
			continue
		}
		all = append(all, *p)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })

	total := len(all)
	start := f.Offset()
	if start > total {
		start = total
	}
	end := start + f.Limit
	if f.Limit == 0 || end > total {
		end = total
	}
	return all[start:end], total, nil
}

func (m *mockProductRepo) SuggestNames(_ context.Context, q string, limit int) ([]string, error) {
	var names []string
	for _, p := range m.products {
		if p.IsActive && strings.Contains(strings.ToLower(p.Name), strings.ToLower(q)) {
			names = append(names, p.Name)
		}
	}
	sort.Strings(names)
	if len(names) > limit {
		names = names[:limit]
	}
	return names, nil
}

func (m *mockProductRepo) CategoryCounts(_ context.Context) ([]model.CategoryCount, error) {
	counts := map[model.Category]int{}
	for _, p := range m.products {
		if p.IsActive {
			counts[p.Category]++
		}
	}
	var out []model.CategoryCount
	for c, n := range counts {
		out = append(out, model.CategoryCount{Category: c, Count: n})
	}
	return out, nil
}

func (m *mockProductRepo) Related(_ context.Context, f model.RelatedFilter) ([]model.Product, error) {
	var out []model.Product
	for _, p := range m.products {
		if !p.IsActive || slices.Contains(f.Exclude, p.ID) {
			continue
		}
		if len(f.Categories) > 0 || len(f.Tags) > 0 {
			shared := slices.ContainsFunc(p.Tags, func(t string) bool { return slices.Contains(f.Tags, t) })
			if !slices.Contains(f.Categories, p.Category) && !shared {
				continue
			}
		}
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *mockProductRepo) Update(_ context.Context, p *model.Product) error {
	if _, ok := m.products[p.ID]; !ok {
		return repository.ErrNotFound
	}
	cp := *p
	m.products[p.ID] = &cp
	return nil
}

func (m *mockProductRepo) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := m.products[id]; !ok {
		return repository.ErrNotFound
	}
	delete(m.products, id)
	return nil
}

func intPtr(v int) *int       { return &v }
func boolPtr(v bool) *bool    { return &v }
func strPtr(v string) *string { return &v }

func TestProductService_Create(t *testing.T) {
	repo := newMockProductRepo()
	svc := NewProductService(repo, nil, nil, zap.NewNop())

	resp, err := svc.Create(context.Background(), dto.CreateProductRequest{
		Name:        " Kashmiri Saffron ",
		Description: "Hand-picked strands",
		Category:    "spices",
		Price:       decimal.RequireFromString("499.00"),
		Stock:       intPtr(20),
		Images: []dto.ProductImage{
			{URL: "https://cdn.example.com/a.jpg", PublicID: "a"},
			{URL: "https://cdn.example.com/b.jpg", PublicID: "b"},
		},
		Tags: []string{" Premium", "premium", "", "Saffron"},
	})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, resp.ID)
	assert.Equal(t, "Kashmiri Saffron", resp.Name)
	assert.True(t, resp.IsActive)
	assert.Equal(t, []string{"premium", "saffron"}, resp.Tags)
	require.Len(t, resp.Images, 2)
	assert.True(t, resp.Images[0].IsPrimary)
	assert.False(t, resp.Images[1].IsPrimary)
	assert.Equal(t, "https://cdn.example.com/a.jpg", resp.PrimaryImage)
}

func TestProductService_CreateRejectsNegativePrice(t *testing.T) {
	svc := NewProductService(newMockProductRepo(), nil, nil, zap.NewNop())

	_, err := svc.Create(context.Background(), dto.CreateProductRequest{
		Name:     "Bad",
		Category: "tea",
		Price:    decimal.NewFromInt(-1),
		Stock:    intPtr(1),
		Images:   []dto.ProductImage{{URL: "https://cdn.example.com/x.jpg", PublicID: "x"}},
	})
	assert.Equal(t, apperr.ValidationFailed, apperr.KindOf(err))
}

func TestProductService_GetByID(t *testing.T) {
	repo := newMockProductRepo()
	p := repo.add("Cardamom", 100, 5)
	svc := NewProductService(repo, nil, nil, zap.NewNop())

	resp, err := svc.GetByID(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Cardamom", resp.Name)

	_, err = svc.GetByID(context.Background(), uuid.New())
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))
}

func TestProductService_List(t *testing.T) {
	repo := newMockProductRepo()
	repo.add("Cardamom", 100, 5)
	repo.add("Cinnamon", 80, 5)
	hidden := repo.add("Clove", 60, 5)
	hidden.IsActive = false
	repo.add("Assam Tea", 300, 5).Category = model.CategoryTea
	svc := NewProductService(repo, nil, nil, zap.NewNop())

	resp, err := svc.List(context.Background(), dto.ListProductsQuery{
		Category: "spices", MaxPrice: "90", Sort: "name", Order: "asc", Page: 1, Limit: 12,
	})
	require.NoError(t, err)
	require.Len(t, resp.Products, 1)
	assert.Equal(t, "Cinnamon", resp.Products[0].Name)
	assert.Equal(t, dto.Pagination{Page: 1, Limit: 12, Total: 1, Pages: 1}, resp.Pagination)

	resp, err = svc.List(context.Background(), dto.ListProductsQuery{Sort: "name", Order: "asc", Page: 2, Limit: 2})
	require.NoError(t, err)
	assert.Len(t, resp.Products, 1)
	assert.Equal(t, 3, resp.Pagination.Total)
	assert.Equal(t, 2, resp.Pagination.Pages)
}

func TestProductService_Search(t *testing.T) {
	repo := newMockProductRepo()
	for _, n := range []string{"Masala Chai", "Masala Dabba", "Garam Masala", "Chaat Masala", "Kitchen Masala", "Sambar Masala"} {
		repo.add(n, 50, 5)
	}
	svc := NewProductService(repo, nil, nil, zap.NewNop())

	resp, err := svc.Search(context.Background(), "masala", 0)
	require.NoError(t, err)
	assert.Len(t, resp.Suggestions, 5)
	assert.Len(t, resp.Products, 6)

	resp, err = svc.Search(context.Background(), "  ", 0)
	require.NoError(t, err)
	assert.Empty(t, resp.Suggestions)
	assert.Empty(t, resp.Products)
}

func TestProductService_Categories(t *testing.T) {
	repo := newMockProductRepo()
	repo.add("Cardamom", 100, 5)
	repo.add("Almonds", 100, 5).Category = model.CategoryDryFruits
	svc := NewProductService(repo, nil, nil, zap.NewNop())

	cats, err := svc.Categories(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []dto.CategoryResponse{
		{ID: model.CategorySpices, Name: "Spices", Count: 1},
		{ID: model.CategoryDryFruits, Name: "Dry Fruits", Count: 1},
		{ID: model.CategoryTea, Name: "Tea", Count: 0},
	}, cats)
}

func TestProductService_Update(t *testing.T) {
	repo := newMockProductRepo()
	p := repo.add("Cardamom", 100, 5)
	svc := NewProductService(repo, nil, nil, zap.NewNop())

	price := decimal.NewFromInt(120)
	resp, err := svc.Update(context.Background(), p.ID, dto.UpdateProductRequest{
		Name:     strPtr("Green Cardamom"),
		Price:    &price,
		Stock:    intPtr(9),
		IsActive: boolPtr(false),
	})
	require.NoError(t, err)
	assert.Equal(t, "Green Cardamom", resp.Name)
	assert.True(t, price.Equal(resp.Price))
	assert.Equal(t, 9, resp.Stock)
	assert.False(t, resp.IsActive)

	_, err = svc.Update(context.Background(), p.ID, dto.UpdateProductRequest{Images: []dto.ProductImage{}})
	assert.Equal(t, apperr.ValidationFailed, apperr.KindOf(err))

	_, err = svc.Update(context.Background(), uuid.New(), dto.UpdateProductRequest{})
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))
}

func TestProductService_Delete(t *testing.T) {
	repo := newMockProductRepo()
	p := repo.add("Cardamom", 100, 5)
	svc := NewProductService(repo, nil, nil, zap.NewNop())

	require.NoError(t, svc.Delete(context.Background(), p.ID))
	assert.Equal(t, apperr.NotFound, apperr.KindOf(svc.Delete(context.Background(), p.ID)))
}

func TestProductService_CreateWithDetails(t *testing.T) {
	repo := newMockProductRepo()
	svc := NewProductService(repo, nil, nil, zap.NewNop())
	kcal := 311.0

	resp, err := svc.Create(context.Background(), dto.CreateProductRequest{
		Name:     "Malabar Pepper",
		Category: "spices",
		Price:    decimal.RequireFromString("249.00"),
		Stock:    intPtr(40),
		Images:   []dto.ProductImage{{URL: "https://cdn.example.com/p.jpg", PublicID: "p"}},
		Details: &dto.ProductDetails{
			Origin:         " Wayanad, Kerala ",
			ShelfLife:      "18 months",
			Certifications: []string{"FSSAI", "India Organic"},
			HealthBenefits: []string{"Aids digestion"},
			NutritionFacts: &dto.NutritionFacts{CaloriesPer100g: &kcal, Protein: "10g"},
			Variants: []dto.ProductVariant{
				{Weight: "100g", Price: decimal.RequireFromString("249.00"), Stock: 40},
				{Weight: "250g", Price: decimal.RequireFromString("579.00"), Stock: 12, SKU: "MP-250"},
			},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "Wayanad, Kerala", resp.Details.Origin)
	assert.Equal(t, []string{"FSSAI", "India Organic"}, resp.Details.Certifications)
	require.NotNil(t, resp.Details.NutritionFacts)
	assert.Equal(t, 311.0, *resp.Details.NutritionFacts.CaloriesPer100g)
	require.Len(t, resp.Details.Variants, 2)
	assert.Equal(t, "MP-250", resp.Details.Variants[1].SKU)

	stored := repo.products[resp.ID]
	assert.Equal(t, "18 months", stored.Details.ShelfLife)

	_, err = svc.Create(context.Background(), dto.CreateProductRequest{
		Name:     "Bad Variant",
		Category: "spices",
		Price:    decimal.NewFromInt(10),
		Stock:    intPtr(1),
		Images:   []dto.ProductImage{{URL: "https://cdn.example.com/x.jpg", PublicID: "x"}},
		Details:  &dto.ProductDetails{Variants: []dto.ProductVariant{{Weight: "1kg", Price: decimal.NewFromInt(-5)}}},
	})
	assert.Equal(t, apperr.ValidationFailed, apperr.KindOf(err))
}

func TestProductService_UpdateReplacesDetails(t *testing.T) {
	repo := newMockProductRepo()
	p := repo.add("Cardamom", 100, 5)
	p.Details = model.ProductDetails{Origin: "Idukki", ShelfLife: "12 months"}
	svc := NewProductService(repo, nil, nil, zap.NewNop())

	resp, err := svc.Update(context.Background(), p.ID, dto.UpdateProductRequest{
		Details: &dto.ProductDetails{Origin: "Coorg"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Coorg", resp.Details.Origin)
	assert.Empty(t, resp.Details.ShelfLife)

	resp, err = svc.Update(context.Background(), p.ID, dto.UpdateProductRequest{Stock: intPtr(3)})
	require.NoError(t, err)
	assert.Equal(t, "Coorg", resp.Details.Origin)
}

type catalogSpec struct {
	name     string
	category model.Category
	tags     []string
}

// seedCatalog adds products with strictly increasing creation times so the
// newest-first order is deterministic.
func seedCatalog(repo *mockProductRepo, specs ...catalogSpec) map[string]*model.Product {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make(map[string]*model.Product, len(specs))
	for i, s := range specs {
		p := repo.add(s.name, 100, 10)
		p.Category = s.category
		p.Tags = s.tags
		p.CreatedAt = base.Add(time.Duration(i) * time.Hour)
		out[s.name] = p
	}
	return out
}

func names(items []dto.ProductResponse) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.Name)
	}
	return out
}

func TestProductService_Recommendations(t *testing.T) {
	products := newMockProductRepo()
	carts := newMockCartRepo()
	orders := newMockOrderRepo(products, carts)
	catalog := seedCatalog(products,
		catalogSpec{"Turmeric", model.CategorySpices, []string{"organic"}},
		catalogSpec{"Cumin", model.CategorySpices, nil},
		catalogSpec{"Almonds", model.CategoryDryFruits, []string{"organic"}},
		catalogSpec{"Cashews", model.CategoryDryFruits, nil},
		catalogSpec{"Assam Tea", model.CategoryTea, nil},
		catalogSpec{"Darjeeling", model.CategoryTea, []string{"premium"}},
	)
	catalog["Cumin"].IsActive = false

	user := uuid.New()
	orders.orders["1000000001"] = &model.Order{
		ID: "1000000001", UserID: user, CreatedAt: time.Now(),
		Items: []model.OrderItem{{ProductID: catalog["Darjeeling"].ID, Quantity: 1}},
	}
	orders.orders["1000000002"] = &model.Order{
		ID: "1000000002", UserID: uuid.New(), CreatedAt: time.Now(),
		Items: []model.OrderItem{{ProductID: catalog["Cashews"].ID, Quantity: 9}},
	}
	svc := NewProductService(products, orders, nil, zap.NewNop())
	ctx := context.Background()

	t.Run("similar products first", func(t *testing.T) {
		got, err := svc.Recommendations(ctx, catalog["Turmeric"].ID, uuid.Nil, 2)
		require.NoError(t, err)
		assert.Equal(t, []string{"Almonds", "Cashews"}, names(got))
	})

	t.Run("then order history", func(t *testing.T) {
		got, err := svc.Recommendations(ctx, catalog["Turmeric"].ID, user, 3)
		require.NoError(t, err)
		assert.Equal(t, []string{"Almonds", "Darjeeling", "Assam Tea"}, names(got))
	})

	t.Run("then best sellers then newest", func(t *testing.T) {
		got, err := svc.Recommendations(ctx, uuid.Nil, uuid.Nil, 3)
		require.NoError(t, err)
		assert.Equal(t, []string{"Cashews", "Darjeeling", "Assam Tea"}, names(got))
	})

	t.Run("never repeats or includes inactive products", func(t *testing.T) {
		got, err := svc.Recommendations(ctx, catalog["Turmeric"].ID, user, 50)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"Almonds", "Cashews", "Assam Tea", "Darjeeling"}, names(got))
	})

	t.Run("unknown product", func(t *testing.T) {
		_, err := svc.Recommendations(ctx, uuid.New(), uuid.Nil, 4)
		assert.Equal(t, apperr.NotFound, apperr.KindOf(err))
	})
}

func TestProductService_RecommendationsWithoutOrders(t *testing.T) {
	repo := newMockProductRepo()
	seedCatalog(repo,
		catalogSpec{"Cloves", model.CategorySpices, nil},
		catalogSpec{"Walnuts", model.CategoryDryFruits, nil},
	)
	svc := NewProductService(repo, nil, nil, zap.NewNop())

	got, err := svc.Recommendations(context.Background(), uuid.Nil, uuid.New(), 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"Walnuts", "Cloves"}, names(got))
}
