package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/flicky/spice-storefront/internal/model"
)

type cartItemDoc struct {
	ProductID string `bson:"productId"`
	Quantity  int    `bson:"quantity"`
}

type cartDoc struct {
	ID        string        `bson:"_id"`
	UserID    string        `bson:"userId"`
	Items     []cartItemDoc `bson:"items"`
	IsActive  bool          `bson:"isActive"`
	CreatedAt time.Time     `bson:"createdAt"`
	UpdatedAt time.Time     `bson:"updatedAt"`
}

func cartItemDocs(items []model.CartItem) []cartItemDoc {
	out := make([]cartItemDoc, 0, len(items))
	for _, it := range items {
		out = append(out, cartItemDoc{ProductID: it.ProductID.String(), Quantity: it.Quantity})
	}
	return out
}

func newCartDoc(c *model.Cart) cartDoc {
	return cartDoc{
		ID:        c.ID.String(),
		UserID:    c.UserID.String(),
		Items:     cartItemDocs(c.Items),
		IsActive:  c.IsActive,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}

func (d cartDoc) toModel() *model.Cart {
	items := make([]model.CartItem, 0, len(d.Items))
	for _, it := range d.Items {
		items = append(items, model.CartItem{ProductID: parseUUID(it.ProductID), Quantity: it.Quantity})
	}
	return &model.Cart{
		ID:        parseUUID(d.ID),
		UserID:    parseUUID(d.UserID),
		Items:     items,
		IsActive:  d.IsActive,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

type mongoCartRepo struct {
	col *mongo.Collection
}

func NewMongoCartRepository(db *mongo.Database) CartRepository {
	return &mongoCartRepo{col: db.Collection(colCarts)}
}

func (r *mongoCartRepo) GetActive(ctx context.Context, userID uuid.UUID) (*model.Cart, error) {
	var doc cartDoc
	err := r.col.FindOne(ctx, bson.M{"userId": userID.String(), "isActive": true}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("get active cart: %w", err)
	}
	return doc.toModel(), nil
}

func insertCartDoc(ctx context.Context, col *mongo.Collection, cart *model.Cart) error {
	now := time.Now().UTC()
	cart.IsActive = true
	cart.CreatedAt, cart.UpdatedAt = now, now
	if cart.Items == nil {
		cart.Items = []model.CartItem{}
	}
	if _, err := col.InsertOne(ctx, newCartDoc(cart)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("insert cart: %w", err)
	}
	return nil
}

func (r *mongoCartRepo) Create(ctx context.Context, cart *model.Cart) error {
	return insertCartDoc(ctx, r.col, cart)
}

func (r *mongoCartRepo) SaveItems(ctx context.Context, cart *model.Cart) error {
	cart.UpdatedAt = time.Now().UTC()
	res, err := r.col.UpdateOne(ctx,
		bson.M{"_id": cart.ID.String(), "isActive": true},
		bson.M{"$set": bson.M{"items": cartItemDocs(cart.Items), "updatedAt": cart.UpdatedAt}},
	)
	if err != nil {
		return fmt.Errorf("save cart items: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrCartNotActive
	}
	return nil
}
