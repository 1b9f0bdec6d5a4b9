package repository

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/flicky/spice-storefront/internal/model"
)

type imageDoc struct {
	URL       string `bson:"url"`
	PublicID  string `bson:"publicId"`
	Alt       string `bson:"alt,omitempty"`
	IsPrimary bool   `bson:"isPrimary"`
}

type nutritionDoc struct {
	CaloriesPer100g *float64 `bson:"caloriesPer100g,omitempty"`
	Protein         string   `bson:"protein,omitempty"`
	Carbs           string   `bson:"carbs,omitempty"`
	Fat             string   `bson:"fat,omitempty"`
	Fiber           string   `bson:"fiber,omitempty"`
}

type variantDoc struct {
	Weight string               `bson:"weight"`
	Price  primitive.Decimal128 `bson:"price"`
	Stock  int                  `bson:"stock"`
	SKU    string               `bson:"sku,omitempty"`
}

type detailsDoc struct {
	DetailedDescription string        `bson:"detailedDescription,omitempty"`
	Origin              string        `bson:"origin,omitempty"`
	ShelfLife           string        `bson:"shelfLife,omitempty"`
	StorageInstructions string        `bson:"storageInstructions,omitempty"`
	UsageInstructions   string        `bson:"usageInstructions,omitempty"`
	Certifications      []string      `bson:"certifications,omitempty"`
	HealthBenefits      []string      `bson:"healthBenefits,omitempty"`
	NutritionFacts      *nutritionDoc `bson:"nutritionFacts,omitempty"`
	Variants            []variantDoc  `bson:"variants,omitempty"`
}

func newDetailsDoc(d model.ProductDetails) detailsDoc {
	out := detailsDoc{
		DetailedDescription: d.DetailedDescription,
		Origin:              d.Origin,
		ShelfLife:           d.ShelfLife,
		StorageInstructions: d.StorageInstructions,
		UsageInstructions:   d.UsageInstructions,
		Certifications:      d.Certifications,
		HealthBenefits:      d.HealthBenefits,
	}
	if d.NutritionFacts != nil {
		n := nutritionDoc(*d.NutritionFacts)
		out.NutritionFacts = &n
	}
	for _, v := range d.Variants {
		out.Variants = append(out.Variants, variantDoc{
			Weight: v.Weight, Price: toDecimal128(v.Price), Stock: v.Stock, SKU: v.SKU,
		})
	}
	return out
}

func (d detailsDoc) toModel() model.ProductDetails {
	out := model.ProductDetails{
		DetailedDescription: d.DetailedDescription,
		Origin:              d.Origin,
		ShelfLife:           d.ShelfLife,
		StorageInstructions: d.StorageInstructions,
		UsageInstructions:   d.UsageInstructions,
		Certifications:      d.Certifications,
		HealthBenefits:      d.HealthBenefits,
	}
	if d.NutritionFacts != nil {
		n := model.NutritionFacts(*d.NutritionFacts)
		out.NutritionFacts = &n
	}
	for _, v := range d.Variants {
		out.Variants = append(out.Variants, model.ProductVariant{
			Weight: v.Weight, Price: fromDecimal128(v.Price), Stock: v.Stock, SKU: v.SKU,
		})
	}
	return out
}

type productDoc struct {
	ID          string               `bson:"_id"`
	Name        string               `bson:"name"`
	Description string               `bson:"description"`
	Category    string               `bson:"category"`
	Price       primitive.Decimal128 `bson:"price"`
	Stock       int                  `bson:"stock"`
	IsActive    bool                 `bson:"isActive"`
	Images      []imageDoc           `bson:"images"`
	Tags        []string             `bson:"tags"`
	Details     detailsDoc           `bson:"details"`
	CreatedAt   time.Time            `bson:"createdAt"`
	UpdatedAt   time.Time            `bson:"updatedAt"`
}

func newProductDoc(p *model.Product) productDoc {
	images := make([]imageDoc, 0, len(p.Images))
	for _, img := range p.Images {
		images = append(images, imageDoc(img))
	}
	return productDoc{
		ID:          p.ID.String(),
		Name:        p.Name,
		Description: p.Description,
		Category:    string(p.Category),
		Price:       toDecimal128(p.Price),
		Stock:       p.Stock,
		IsActive:    p.IsActive,
		Images:      images,
		Tags:        nonNilTags(p.Tags),
		Details:     newDetailsDoc(p.Details),
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

func (d productDoc) toModel() *model.Product {
	images := make([]model.ProductImage, 0, len(d.Images))
	for _, img := range d.Images {
		images = append(images, model.ProductImage(img))
	}
	return &model.Product{
		ID:          parseUUID(d.ID),
		Name:        d.Name,
		Description: d.Description,
		Category:    model.Category(d.Category),
		Price:       fromDecimal128(d.Price),
		Stock:       d.Stock,
		IsActive:    d.IsActive,
		Images:      images,
		Tags:        d.Tags,
		Details:     d.Details.toModel(),
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}

type mongoProductRepo struct {
	col *mongo.Collection
}

func NewMongoProductRepository(db *mongo.Database) ProductRepository {
	return &mongoProductRepo{col: db.Collection(colProducts)}
}

func (r *mongoProductRepo) Create(ctx context.Context, product *model.Product) error {
	if product.ID == uuid.Nil {
		product.ID = uuid.New()
	}
	now := time.Now().UTC()
	product.CreatedAt, product.UpdatedAt = now, now

	if _, err := r.col.InsertOne(ctx, newProductDoc(product)); err != nil {
		return fmt.Errorf("create product: %w", err)
	}
	return nil
}

func (r *mongoProductRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Product, error) {
	var doc productDoc
	err := r.col.FindOne(ctx, bson.M{"_id": id.String()}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("get product: %w", err)
	}
	return doc.toModel(), nil
}

func (r *mongoProductRepo) GetByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*model.Product, error) {
	out := make(map[uuid.UUID]*model.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, id.String())
	}

	cursor, err := r.col.Find(ctx, bson.M{"_id": bson.M{"$in": keys}})
	if err != nil {
		return nil, fmt.Errorf("get products: %w", err)
	}
	var docs []productDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode products: %w", err)
	}
	for _, d := range docs {
		p := d.toModel()
		out[p.ID] = p
	}
	return out, nil
}

func productFilter(f model.ProductFilter) bson.M {
	filter := bson.M{}
	if f.ActiveOnly {
		filter["isActive"] = true
	}
	if f.Category != "" {
		filter["category"] = string(f.Category)
	}
	price := bson.M{}
	if f.MinPrice != nil {
		price["$gte"] = toDecimal128(*f.MinPrice)
	}
	if f.MaxPrice != nil {
		price["$lte"] = toDecimal128(*f.MaxPrice)
	}
	if len(price) > 0 {
		filter["price"] = price
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		re := primitive.Regex{Pattern: regexp.QuoteMeta(s), Options: "i"}
		filter["$or"] = bson.A{
			bson.M{"name": re},
			bson.M{"description": re},
			bson.M{"tags": strings.ToLower(s)},
		}
	}
	return filter
}

func (r *mongoProductRepo) List(ctx context.Context, f model.ProductFilter) ([]model.Product, int, error) {
	sortFields := map[model.ProductSort]string{
		model.SortCreatedAt: "createdAt",
		model.SortPrice:     "price",
		model.SortName:      "name",
	}
	field, ok := sortFields[f.Sort]
	if !ok {
		field = "createdAt"
	}
	dir := 1
	if f.Desc {
		dir = -1
	}

	filter := productFilter(f)
	total, err := r.col.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("count products: %w", err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: field, Value: dir}, {Key: "_id", Value: 1}}).
		SetSkip(int64(f.Offset())).
		SetLimit(int64(f.Limit))
	cursor, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("list products: %w", err)
	}
	var docs []productDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, 0, fmt.Errorf("decode products: %w", err)
	}

	products := make([]model.Product, 0, len(docs))
	for _, d := range docs {
		products = append(products, *d.toModel())
	}
	return products, int(total), nil
}

func (r *mongoProductRepo) SuggestNames(ctx context.Context, query string, limit int) ([]string, error) {
	filter := bson.M{
		"isActive": true,
		"name":     primitive.Regex{Pattern: regexp.QuoteMeta(query), Options: "i"},
	}
	opts := options.Find().
		SetProjection(bson.M{"name": 1}).
		SetSort(bson.D{{Key: "name", Value: 1}}).
		SetLimit(int64(limit) * 2)
	cursor, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("suggest products: %w", err)
	}
	var docs []struct {
		Name string `bson:"name"`
	}
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode suggestions: %w", err)
	}

	names := []string{}
	seen := map[string]bool{}
	for _, d := range docs {
		if seen[d.Name] || len(names) == limit {
			continue
		}
		seen[d.Name] = true
		names = append(names, d.Name)
	}
	return names, nil
}

func (r *mongoProductRepo) CategoryCounts(ctx context.Context) ([]model.CategoryCount, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"isActive": true}}},
		{{Key: "$group", Value: bson.M{"_id": "$category", "count": bson.M{"$sum": 1}}}},
		{{Key: "$sort", Value: bson.M{"_id": 1}}},
	}
	cursor, err := r.col.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("count categories: %w", err)
	}
	var rows []struct {
		Category string `bson:"_id"`
		Count    int    `bson:"count"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("decode category counts: %w", err)
	}

	counts := make([]model.CategoryCount, 0, len(rows))
	for _, row := range rows {
		counts = append(counts, model.CategoryCount{Category: model.Category(row.Category), Count: row.Count})
	}
	return counts, nil
}

func relatedFilter(f model.RelatedFilter) bson.M {
	filter := bson.M{"isActive": true}
	if len(f.Exclude) > 0 {
		keys := make([]string, 0, len(f.Exclude))
		for _, id := range f.Exclude {
			keys = append(keys, id.String())
		}
		filter["_id"] = bson.M{"$nin": keys}
	}

	var match bson.A
	if len(f.Categories) > 0 {
		cats := make([]string, 0, len(f.Categories))
		for _, c := range f.Categories {
			cats = append(cats, string(c))
		}
		match = append(match, bson.M{"category": bson.M{"$in": cats}})
	}
	if len(f.Tags) > 0 {
		match = append(match, bson.M{"tags": bson.M{"$in": f.Tags}})
	}
	if len(match) > 0 {
		filter["$or"] = match
	}
	return filter
}

func (r *mongoProductRepo) Related(ctx context.Context, f model.RelatedFilter) ([]model.Product, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: 1}}).
		SetLimit(int64(f.Limit))
	cursor, err := r.col.Find(ctx, relatedFilter(f), opts)
	if err != nil {
		return nil, fmt.Errorf("related products: %w", err)
	}
	var docs []productDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode products: %w", err)
	}

	products := make([]model.Product, 0, len(docs))
	for _, d := range docs {
		products = append(products, *d.toModel())
	}
	return products, nil
}

func (r *mongoProductRepo) Update(ctx context.Context, product *model.Product) error {
	product.UpdatedAt = time.Now().UTC()
	doc := newProductDoc(product)
	update := bson.M{"$set": bson.M{
		"name":        doc.Name,
		"description": doc.Description,
		"category":    doc.Category,
		"price":       doc.Price,
		"stock":       doc.Stock,
		"isActive":    doc.IsActive,
		"images":      doc.Images,
		"tags":        doc.Tags,
		"details":     doc.Details,
		"updatedAt":   doc.UpdatedAt,
	}}
	res, err := r.col.UpdateOne(ctx, bson.M{"_id": doc.ID}, update)
	if err != nil {
		return fmt.Errorf("update product: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *mongoProductRepo) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.col.DeleteOne(ctx, bson.M{"_id": id.String()})
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}
