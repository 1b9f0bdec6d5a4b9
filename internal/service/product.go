package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/flicky/spice-storefront/internal/apperr"
	"github.com/flicky/spice-storefront/internal/dto"
	"github.com/flicky/spice-storefront/internal/model"
	"github.com/flicky/spice-storefront/internal/repository"
)

const (
	productCacheTTL   = 60 * time.Second
	maxSuggestions    = 5
	defaultSearchSize = 10

	defaultRecommendations = 8
	maxRecommendations     = 50
	// historyOrders is how many of a user's latest orders feed their recommendations.
	historyOrders = 10
)

func productCacheKey(id uuid.UUID) string {
	return "product:" + id.String()
}

type ProductService struct {
	productRepo repository.ProductRepository
	orderRepo   repository.OrderRepository
	redisClient redis.Cmdable
	log         *zap.Logger
}

// NewProductService builds the catalog service. redisClient may be nil, in
// which case reads are not cached. orderRepo may be nil, in which case
// recommendations ignore order history.
func NewProductService(productRepo repository.ProductRepository, orderRepo repository.OrderRepository, redisClient redis.Cmdable, log *zap.Logger) *ProductService {
	return &ProductService{productRepo: productRepo, orderRepo: orderRepo, redisClient: redisClient, log: log}
}

func (s *ProductService) Create(ctx context.Context, req dto.CreateProductRequest) (*dto.ProductResponse, error) {
	if req.Price.IsNegative() {
		return nil, apperr.New(apperr.ValidationFailed, "price: must be at least 0")
	}
	details, err := toModelDetails(req.Details)
	if err != nil {
		return nil, err
	}
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	product := &model.Product{
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
		Category:    model.Category(req.Category),
		Price:       req.Price,
		Stock:       *req.Stock,
		IsActive:    active,
		Images:      model.NormalizeImages(toModelImages(req.Images)),
		Tags:        model.NormalizeTags(req.Tags),
		Details:     details,
	}
	if err := s.productRepo.Create(ctx, product); err != nil {
		return nil, fmt.Errorf("create product: %w", err)
	}
	resp := toProductResponse(product)
	return &resp, nil
}

func (s *ProductService) GetByID(ctx context.Context, id uuid.UUID) (*dto.ProductResponse, error) {
	cacheKey := productCacheKey(id)

	if s.redisClient != nil {
		if cached, err := s.redisClient.Get(ctx, cacheKey).Result(); err == nil {
			var resp dto.ProductResponse
			if json.Unmarshal([]byte(cached), &resp) == nil {
				return &resp, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			s.log.Warn("product cache read failed", zap.String("product_id", id.String()), zap.Error(err))
		}
	}

	product, err := s.productRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	if product == nil {
		return nil, apperr.New(apperr.NotFound, "Product not found")
	}

	resp := toProductResponse(product)

	if s.redisClient != nil {
		if data, err := json.Marshal(resp); err == nil {
			if err := s.redisClient.Set(ctx, cacheKey, data, productCacheTTL).Err(); err != nil {
				s.log.Warn("product cache write failed", zap.String("product_id", id.String()), zap.Error(err))
			}
		}
	}

	return &resp, nil
}

// List returns active products matching the query.
func (s *ProductService) List(ctx context.Context, q dto.ListProductsQuery) (*dto.ProductListResponse, error) {
	f := model.ProductFilter{
		Category:   model.Category(q.Category),
		Search:     strings.TrimSpace(q.Search),
		ActiveOnly: true,
		Sort:       model.ProductSort(q.Sort),
		Desc:       q.Order == "desc",
		Page:       q.Page,
		Limit:      q.Limit,
	}
	var err error
	if f.MinPrice, err = parsePrice("minPrice", q.MinPrice); err != nil {
		return nil, err
	}
	if f.MaxPrice, err = parsePrice("maxPrice", q.MaxPrice); err != nil {
		return nil, err
	}

	products, total, err := s.productRepo.List(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}

	items := make([]dto.ProductResponse, 0, len(products))
	for i := range products {
		items = append(items, toProductResponse(&products[i]))
	}
	return &dto.ProductListResponse{
		Products:   items,
		Pagination: dto.NewPagination(q.Page, q.Limit, total),
	}, nil
}

func parsePrice(field, raw string) (*decimal.Decimal, error) {
	if raw == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, apperr.Newf(apperr.ValidationFailed, "%s: must be a number", field)
	}
	return &d, nil
}

// Search returns up to five name suggestions and the matching active products.
func (s *ProductService) Search(ctx context.Context, query string, limit int) (*dto.SearchResponse, error) {
	query = strings.TrimSpace(query)
	resp := &dto.SearchResponse{Suggestions: []string{}, Products: []dto.ProductResponse{}}
	if query == "" {
		return resp, nil
	}
	if limit <= 0 {
		limit = defaultSearchSize
	}

	names, err := s.productRepo.SuggestNames(ctx, query, maxSuggestions)
	if err != nil {
		return nil, fmt.Errorf("suggest product names: %w", err)
	}
	resp.Suggestions = append(resp.Suggestions, names...)

	products, _, err := s.productRepo.List(ctx, model.ProductFilter{
		Search:     query,
		ActiveOnly: true,
		Sort:       model.SortName,
		Page:       1,
		Limit:      limit,
	})
	if err != nil {
		return nil, fmt.Errorf("search products: %w", err)
	}
	for i := range products {
		resp.Products = append(resp.Products, toProductResponse(&products[i]))
	}
	return resp, nil
}

// Categories returns every category with its active product count.
func (s *ProductService) Categories(ctx context.Context) ([]dto.CategoryResponse, error) {
	counts, err := s.productRepo.CategoryCounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("count categories: %w", err)
	}
	byCategory := make(map[model.Category]int, len(counts))
	for _, c := range counts {
		byCategory[c.Category] = c.Count
	}

	out := make([]dto.CategoryResponse, 0, len(model.Categories))
	for _, c := range model.Categories {
		out = append(out, dto.CategoryResponse{ID: c, Name: c.DisplayName(), Count: byCategory[c]})
	}
	return out, nil
}

func (s *ProductService) Update(ctx context.Context, id uuid.UUID, req dto.UpdateProductRequest) (*dto.ProductResponse, error) {
	product, err := s.productRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	if product == nil {
		return nil, apperr.New(apperr.NotFound, "Product not found")
	}

	if req.Name != nil {
		product.Name = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		product.Description = *req.Description
	}
	if req.Category != nil {
		product.Category = model.Category(*req.Category)
	}
	if req.Price != nil {
		if req.Price.IsNegative() {
			return nil, apperr.New(apperr.ValidationFailed, "price: must be at least 0")
		}
		product.Price = *req.Price
	}
	if req.Stock != nil {
		product.Stock = *req.Stock
	}
	if req.Images != nil {
		if len(req.Images) == 0 {
			return nil, apperr.New(apperr.ValidationFailed, "images: must have at least 1 entries")
		}
		product.Images = model.NormalizeImages(toModelImages(req.Images))
	}
	if req.Tags != nil {
		product.Tags = model.NormalizeTags(req.Tags)
	}
	if req.IsActive != nil {
		product.IsActive = *req.IsActive
	}
	if req.Details != nil {
		if product.Details, err = toModelDetails(req.Details); err != nil {
			return nil, err
		}
	}

	if err := s.productRepo.Update(ctx, product); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.New(apperr.NotFound, "Product not found")
		}
		return nil, fmt.Errorf("update product: %w", err)
	}

	s.InvalidateCache(ctx, id)
	resp := toProductResponse(product)
	return &resp, nil
}

func (s *ProductService) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.productRepo.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.New(apperr.NotFound, "Product not found")
		}
		return fmt.Errorf("delete product: %w", err)
	}
	s.InvalidateCache(ctx, id)
	return nil
}

// Recommendations picks up to limit active products for the product page and
// the cart. Candidates come, in order, from products sharing the category or
// a tag with productID, from the categories and tags of userID's recent
// orders, from the best sellers and finally from the newest arrivals. Either
// id may be uuid.Nil.
func (s *ProductService) Recommendations(ctx context.Context, productID, userID uuid.UUID, limit int) ([]dto.ProductResponse, error) {
	if limit <= 0 {
		limit = defaultRecommendations
	}
	if limit > maxRecommendations {
		limit = maxRecommendations
	}
	r := &recommender{limit: limit, seen: map[uuid.UUID]bool{}}

	if productID != uuid.Nil {
		current, err := s.productRepo.GetByID(ctx, productID)
		if err != nil {
			return nil, fmt.Errorf("get product: %w", err)
		}
		if current == nil {
			return nil, apperr.New(apperr.NotFound, "Product not found")
		}
		r.exclude(productID)
		if err := s.addRelated(ctx, r, []model.Category{current.Category}, current.Tags); err != nil {
			return nil, err
		}
	}

	if userID != uuid.Nil && s.orderRepo != nil && !r.full() {
		if err := s.addFromHistory(ctx, r, userID); err != nil {
			return nil, err
		}
	}

	if s.orderRepo != nil && !r.full() {
		ids, err := s.orderRepo.PopularProductIDs(ctx, limit+len(r.excluded))
		if err != nil {
			return nil, fmt.Errorf("popular products: %w", err)
		}
		byID, err := s.productRepo.GetByIDs(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("get products: %w", err)
		}
		for _, id := range ids {
			if p, ok := byID[id]; ok && p.IsActive {
				r.add(*p)
			}
		}
	}

	if !r.full() {
		newest, err := s.productRepo.Related(ctx, model.RelatedFilter{Exclude: r.excluded, Limit: limit - len(r.picked)})
		if err != nil {
			return nil, fmt.Errorf("newest products: %w", err)
		}
		r.add(newest...)
	}

	out := make([]dto.ProductResponse, 0, len(r.picked))
	for i := range r.picked {
		out = append(out, toProductResponse(&r.picked[i]))
	}
	return out, nil
}

// addFromHistory adds products related to what the user ordered recently.
func (s *ProductService) addFromHistory(ctx context.Context, r *recommender, userID uuid.UUID) error {
	ids, err := s.orderRepo.PurchasedProductIDs(ctx, userID, historyOrders)
	if err != nil {
		return fmt.Errorf("purchased products: %w", err)
	}
	if len(ids) == 0 {
		return nil
	}
	bought, err := s.productRepo.GetByIDs(ctx, ids)
	if err != nil {
		return fmt.Errorf("get products: %w", err)
	}

	var (
		categories []model.Category
		tags       []string
		seen       = map[string]bool{}
	)
	for _, id := range ids {
		p, ok := bought[id]
		if !ok {
			continue
		}
		if !seen["c:"+string(p.Category)] {
			seen["c:"+string(p.Category)] = true
			categories = append(categories, p.Category)
		}
		for _, t := range p.Tags {
			if !seen["t:"+t] {
				seen["t:"+t] = true
				tags = append(tags, t)
			}
		}
	}
	if len(categories) == 0 && len(tags) == 0 {
		return nil
	}
	return s.addRelated(ctx, r, categories, tags)
}

func (s *ProductService) addRelated(ctx context.Context, r *recommender, categories []model.Category, tags []string) error {
	if r.full() {
		return nil
	}
	related, err := s.productRepo.Related(ctx, model.RelatedFilter{
		Categories: categories,
		Tags:       tags,
		Exclude:    r.excluded,
		Limit:      r.limit - len(r.picked),
	})
	if err != nil {
		return fmt.Errorf("related products: %w", err)
	}
	r.add(related...)
	return nil
}

// recommender accumulates distinct picks up to limit.
type recommender struct {
	limit    int
	picked   []model.Product
	seen     map[uuid.UUID]bool
	excluded []uuid.UUID
}

func (r *recommender) full() bool { return len(r.picked) >= r.limit }

func (r *recommender) exclude(id uuid.UUID) {
	if !r.seen[id] {
		r.seen[id] = true
		r.excluded = append(r.excluded, id)
	}
}

func (r *recommender) add(products ...model.Product) {
	for _, p := range products {
		if r.full() {
			return
		}
		if r.seen[p.ID] {
			continue
		}
		r.exclude(p.ID)
		r.picked = append(r.picked, p)
	}
}

// InvalidateCache drops cached reads for the given products.
func (s *ProductService) InvalidateCache(ctx context.Context, ids ...uuid.UUID) {
	if s.redisClient == nil || len(ids) == 0 {
		return
	}
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, productCacheKey(id))
	}
	if err := s.redisClient.Del(ctx, keys...).Err(); err != nil {
		s.log.Warn("product cache invalidation failed", zap.Strings("keys", keys), zap.Error(err))
	}
}

func toModelImages(in []dto.ProductImage) []model.ProductImage {
	out := make([]model.ProductImage, 0, len(in))
	for _, img := range in {
		out = append(out, model.ProductImage{URL: img.URL, PublicID: img.PublicID, Alt: img.Alt, IsPrimary: img.IsPrimary})
	}
	return out
}

// toModelDetails copies the optional details block. A nil block yields empty
// details.
func toModelDetails(in *dto.ProductDetails) (model.ProductDetails, error) {
	if in == nil {
		return model.ProductDetails{}, nil
	}
	out := model.ProductDetails{
		DetailedDescription: strings.TrimSpace(in.DetailedDescription),
		Origin:              strings.TrimSpace(in.Origin),
		ShelfLife:           strings.TrimSpace(in.ShelfLife),
		StorageInstructions: strings.TrimSpace(in.StorageInstructions),
		UsageInstructions:   strings.TrimSpace(in.UsageInstructions),
		Certifications:      in.Certifications,
		HealthBenefits:      in.HealthBenefits,
	}
	if n := in.NutritionFacts; n != nil {
		out.NutritionFacts = &model.NutritionFacts{
			CaloriesPer100g: n.CaloriesPer100g,
			Protein:         n.Protein,
			Carbs:           n.Carbs,
			Fat:             n.Fat,
			Fiber:           n.Fiber,
		}
	}
	for i, v := range in.Variants {
		if v.Price.IsNegative() {
			return model.ProductDetails{}, apperr.Newf(apperr.ValidationFailed, "variants[%d].price: must be at least 0", i)
		}
		if v.Stock < 0 {
			return model.ProductDetails{}, apperr.Newf(apperr.ValidationFailed, "variants[%d].stock: must be at least 0", i)
		}
		out.Variants = append(out.Variants, model.ProductVariant{
			Weight: strings.TrimSpace(v.Weight),
			Price:  v.Price,
			Stock:  v.Stock,
			SKU:    v.SKU,
		})
	}
	return out, nil
}

func toDetailsResponse(d model.ProductDetails) dto.ProductDetails {
	out := dto.ProductDetails{
		DetailedDescription: d.DetailedDescription,
		Origin:              d.Origin,
		ShelfLife:           d.ShelfLife,
		StorageInstructions: d.StorageInstructions,
		UsageInstructions:   d.UsageInstructions,
		Certifications:      d.Certifications,
		HealthBenefits:      d.HealthBenefits,
	}
	if n := d.NutritionFacts; n != nil {
		out.NutritionFacts = &dto.NutritionFacts{
			CaloriesPer100g: n.CaloriesPer100g,
			Protein:         n.Protein,
			Carbs:           n.Carbs,
			Fat:             n.Fat,
			Fiber:           n.Fiber,
		}
	}
	for _, v := range d.Variants {
		out.Variants = append(out.Variants, dto.ProductVariant{Weight: v.Weight, Price: v.Price, Stock: v.Stock, SKU: v.SKU})
	}
	return out
}

func toProductResponse(p *model.Product) dto.ProductResponse {
	images := make([]dto.ProductImage, 0, len(p.Images))
	for _, img := range p.Images {
		images = append(images, dto.ProductImage{URL: img.URL, PublicID: img.PublicID, Alt: img.Alt, IsPrimary: img.IsPrimary})
	}
	tags := p.Tags
	if tags == nil {
		tags = []string{}
	}
	return dto.ProductResponse{
		ID:           p.ID,
		Name:         p.Name,
		Description:  p.Description,
		Category:     p.Category,
		Price:        p.Price,
		Stock:        p.Stock,
		IsActive:     p.IsActive,
		Images:       images,
		PrimaryImage: p.PrimaryImage(),
		Tags:         tags,
		Details:      toDetailsResponse(p.Details),
		CreatedAt:    p.CreatedAt,
		UpdatedAt:    p.UpdatedAt,
	}
}
