package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/flicky/spice-storefront/internal/model"
)

type pgImage struct {
	URL       string `json:"url"`
	PublicID  string `json:"publicId"`
	Alt       string `json:"alt,omitempty"`
	IsPrimary bool   `json:"isPrimary"`
}

func toPgImages(images []model.ProductImage) []pgImage {
	out := make([]pgImage, 0, len(images))
	for _, img := range images {
		out = append(out, pgImage(img))
	}
	return out
}

func fromPgImages(images []pgImage) []model.ProductImage {
	out := make([]model.ProductImage, 0, len(images))
	for _, img := range images {
		out = append(out, model.ProductImage(img))
	}
	return out
}

type pgNutrition struct {
	CaloriesPer100g *float64 `json:"calories_per_100g,omitempty"`
	Protein         string   `json:"protein,omitempty"`
	Carbs           string   `json:"carbs,omitempty"`
	Fat             string   `json:"fat,omitempty"`
	Fiber           string   `json:"fiber,omitempty"`
}

type pgVariant struct {
	Weight string          `json:"weight"`
	Price  decimal.Decimal `json:"price"`
	Stock  int             `json:"stock"`
	SKU    string          `json:"sku,omitempty"`
}

// pgDetails is the JSON shape of products.details.
type pgDetails struct {
	DetailedDescription string       `json:"detailed_description,omitempty"`
	Origin              string       `json:"origin,omitempty"`
	ShelfLife           string       `json:"shelf_life,omitempty"`
	StorageInstructions string       `json:"storage_instructions,omitempty"`
	UsageInstructions   string       `json:"usage_instructions,omitempty"`
	Certifications      []string     `json:"certifications,omitempty"`
	HealthBenefits      []string     `json:"health_benefits,omitempty"`
	NutritionFacts      *pgNutrition `json:"nutrition_facts,omitempty"`
	Variants            []pgVariant  `json:"variants,omitempty"`
}

func toPgDetails(d model.ProductDetails) pgDetails {
	out := pgDetails{
		DetailedDescription: d.DetailedDescription,
		Origin:              d.Origin,
		ShelfLife:           d.ShelfLife,
		StorageInstructions: d.StorageInstructions,
		UsageInstructions:   d.UsageInstructions,
		Certifications:      d.Certifications,
		HealthBenefits:      d.HealthBenefits,
	}
	if d.NutritionFacts != nil {
		n := pgNutrition(*d.NutritionFacts)
		out.NutritionFacts = &n
	}
	for _, v := range d.Variants {
		out.Variants = append(out.Variants, pgVariant(v))
	}
	return out
}

func fromPgDetails(d pgDetails) model.ProductDetails {
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
		out.Variants = append(out.Variants, model.ProductVariant(v))
	}
	return out
}

func nonNilTags(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}

const productColumns = `id, name, description, category, price, stock, is_active, images, tags, details, created_at, updated_at`

type pgProductRepo struct{ pool *pgxpool.Pool }

func NewProductRepository(pool *pgxpool.Pool) ProductRepository {
	return &pgProductRepo{pool: pool}
}

func scanProduct(row pgx.Row) (*model.Product, error) {
	p := &model.Product{}
	var (
		images  []pgImage
		details pgDetails
	)
	err := row.Scan(
		&p.ID, &p.Name, &p.Description, &p.Category, &p.Price, &p.Stock,
		&p.IsActive, &images, &p.Tags, &details, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.Images = fromPgImages(images)
	p.Details = fromPgDetails(details)
	return p, nil
}

func (r *pgProductRepo) Create(ctx context.Context, product *model.Product) error {
	if product.ID == uuid.Nil {
		product.ID = uuid.New()
	}
	query := `INSERT INTO products (id, name, description, category, price, stock, is_active, images, tags, details, created_at, updated_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), NOW()) RETURNING created_at, updated_at`
	err := r.pool.QueryRow(ctx, query,
		product.ID, product.Name, product.Description, product.Category, product.Price, product.Stock,
		product.IsActive, toPgImages(product.Images), nonNilTags(product.Tags), toPgDetails(product.Details),
	).Scan(&product.CreatedAt, &product.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create product: %w", err)
	}
	return nil
}

func (r *pgProductRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Product, error) {
	p, err := scanProduct(r.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get product: %w", err)
	}
	return p, nil
}

func (r *pgProductRepo) GetByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*model.Product, error) {
	out := make(map[uuid.UUID]*model.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := r.pool.Query(ctx, `SELECT `+productColumns+` FROM products WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("get products: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		out[p.ID] = p
	}
	return out, rows.Err()
}

// productWhere builds the WHERE clause shared by List and its count query.
func productWhere(f model.ProductFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.ActiveOnly {
		conds = append(conds, "is_active")
	}
	if f.Category != "" {
		add("category = $%d", string(f.Category))
	}
	if f.MinPrice != nil {
		add("price >= $%d", *f.MinPrice)
	}
	if f.MaxPrice != nil {
		add("price <= $%d", *f.MaxPrice)
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		args = append(args, s)
		n := len(args)
		conds = append(conds, fmt.Sprintf(
			"(strpos(lower(name), lower($%d)) > 0 OR strpos(lower(description), lower($%d)) > 0 OR $%d = ANY(tags))", n, n, n))
	}

	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (r *pgProductRepo) List(ctx context.Context, f model.ProductFilter) ([]model.Product, int, error) {
	sortCols := map[model.ProductSort]string{
		model.SortCreatedAt: "created_at",
		model.SortPrice:     "price",
		model.SortName:      "name",
	}
	col, ok := sortCols[f.Sort]
	if !ok {
		col = "created_at"
	}
	dir := "ASC"
	if f.Desc {
		dir = "DESC"
	}

	where, args := productWhere(f)

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM products`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count products: %w", err)
	}

	args = append(args, f.Limit, f.Offset())
	query := fmt.Sprintf(`SELECT %s FROM products%s ORDER BY %s %s, id LIMIT $%d OFFSET $%d`,
		productColumns, where, col, dir, len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	products := make([]model.Product, 0, f.Limit)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, *p)
	}
	return products, total, rows.Err()
}

// relatedWhere builds the WHERE clause for Related.
func relatedWhere(f model.RelatedFilter) (string, []any) {
	conds := []string{"is_active"}
	var args []any
	if len(f.Exclude) > 0 {
		args = append(args, f.Exclude)
		conds = append(conds, fmt.Sprintf("id <> ALL($%d)", len(args)))
	}

	var match []string
	if len(f.Categories) > 0 {
		cats := make([]string, 0, len(f.Categories))
		for _, c := range f.Categories {
			cats = append(cats, string(c))
		}
		args = append(args, cats)
		match = append(match, fmt.Sprintf("category = ANY($%d)", len(args)))
	}
	if len(f.Tags) > 0 {
		args = append(args, f.Tags)
		match = append(match, fmt.Sprintf("tags && $%d", len(args)))
	}
	if len(match) > 0 {
		conds = append(conds, "("+strings.Join(match, " OR ")+")")
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (r *pgProductRepo) Related(ctx context.Context, f model.RelatedFilter) ([]model.Product, error) {
	where, args := relatedWhere(f)
	args = append(args, f.Limit)
	query := fmt.Sprintf(`SELECT %s FROM products%s ORDER BY created_at DESC, id LIMIT $%d`,
		productColumns, where, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("related products: %w", err)
	}
	defer rows.Close()

	products := make([]model.Product, 0, f.Limit)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, *p)
	}
	return products, rows.Err()
}

func (r *pgProductRepo) SuggestNames(ctx context.Context, query string, limit int) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT DISTINCT name FROM products WHERE is_active AND strpos(lower(name), lower($1)) > 0 ORDER BY name LIMIT $2`,
		query, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("suggest products: %w", err)
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("scan suggestion: %w", err)
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

func (r *pgProductRepo) CategoryCounts(ctx context.Context) ([]model.CategoryCount, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT category, COUNT(*) FROM products WHERE is_active GROUP BY category ORDER BY category`,
	)
	if err != nil {
		return nil, fmt.Errorf("count categories: %w", err)
	}
	defer rows.Close()

	var counts []model.CategoryCount
	for rows.Next() {
		var c model.CategoryCount
		if err := rows.Scan(&c.Category, &c.Count); err != nil {
			return nil, fmt.Errorf("scan category count: %w", err)
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

func (r *pgProductRepo) Update(ctx context.Context, product *model.Product) error {
	query := `UPDATE products SET name=$2, description=$3, category=$4, price=$5, stock=$6, is_active=$7,
			  images=$8, tags=$9, details=$10, updated_at=NOW()
			  WHERE id=$1 RETURNING updated_at`
	err := r.pool.QueryRow(ctx, query,
		product.ID, product.Name, product.Description, product.Category, product.Price, product.Stock,
		product.IsActive, toPgImages(product.Images), nonNilTags(product.Tags), toPgDetails(product.Details),
	).Scan(&product.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("update product: %w", err)
	}
	return nil
}

func (r *pgProductRepo) Delete(ctx context.Context, id uuid.UUID) error {
	ct, err := r.pool.Exec(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
