package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/flicky/spice-storefront/internal/model"
)

type addressDoc struct {
	ID        string    `bson:"_id"`
	UserID    string    `bson:"userId"`
	Label     string    `bson:"label"`
	Street    string    `bson:"street"`
	City      string    `bson:"city"`
	State     string    `bson:"state"`
	Pincode   string    `bson:"pincode"`
	Country   string    `bson:"country"`
	Latitude  *float64  `bson:"latitude,omitempty"`
	Longitude *float64  `bson:"longitude,omitempty"`
	IsDefault bool      `bson:"isDefault"`
	CreatedAt time.Time `bson:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt"`
}

func (d addressDoc) toModel() model.Address {
	return model.Address{
		ID:        parseUUID(d.ID),
		UserID:    parseUUID(d.UserID),
		Label:     d.Label,
		Street:    d.Street,
		City:      d.City,
		State:     d.State,
		Pincode:   d.Pincode,
		Country:   d.Country,
		Latitude:  d.Latitude,
		Longitude: d.Longitude,
		IsDefault: d.IsDefault,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

type mongoAddressRepo struct {
	client *mongo.Client
	col    *mongo.Collection
}

func NewMongoAddressRepository(client *mongo.Client, db *mongo.Database) AddressRepository {
	return &mongoAddressRepo{client: client, col: db.Collection(colAddresses)}
}

func (r *mongoAddressRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]model.Address, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := r.col.Find(ctx, bson.M{"userId": userID.String()}, opts)
	if err != nil {
		return nil, fmt.Errorf("list addresses: %w", err)
	}
	var docs []addressDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode addresses: %w", err)
	}
	addrs := make([]model.Address, 0, len(docs))
	for _, d := range docs {
		addrs = append(addrs, d.toModel())
	}
	return addrs, nil
}

func (r *mongoAddressRepo) GetByID(ctx context.Context, userID, id uuid.UUID) (*model.Address, error) {
	var doc addressDoc
	err := r.col.FindOne(ctx, bson.M{"_id": id.String(), "userId": userID.String()}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("get address: %w", err)
	}
	a := doc.toModel()
	return &a, nil
}

func (r *mongoAddressRepo) clearDefault(sc mongo.SessionContext, userID uuid.UUID, now time.Time) error {
	_, err := r.col.UpdateMany(sc,
		bson.M{"userId": userID.String(), "isDefault": true},
		bson.M{"$set": bson.M{"isDefault": false, "updatedAt": now}},
	)
	if err != nil {
		return fmt.Errorf("clear default address: %w", err)
	}
	return nil
}

func (r *mongoAddressRepo) Create(ctx context.Context, addr *model.Address) error {
	if addr.ID == uuid.Nil {
		addr.ID = uuid.New()
	}
	now := time.Now().UTC()
	addr.CreatedAt, addr.UpdatedAt = now, now

	doc := addressDoc{
		ID:        addr.ID.String(),
		UserID:    addr.UserID.String(),
		Label:     addr.Label,
		Street:    addr.Street,
		City:      addr.City,
		State:     addr.State,
		Pincode:   addr.Pincode,
		Country:   addr.Country,
		Latitude:  addr.Latitude,
		Longitude: addr.Longitude,
		IsDefault: addr.IsDefault,
		CreatedAt: now,
		UpdatedAt: now,
	}

	return withTransaction(ctx, r.client, func(sc mongo.SessionContext) error {
		if addr.IsDefault {
			if err := r.clearDefault(sc, addr.UserID, now); err != nil {
				return err
			}
		}
		if _, err := r.col.InsertOne(sc, doc); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return ErrDuplicateKey
			}
			return fmt.Errorf("insert address: %w", err)
		}
		return nil
	})
}

func (r *mongoAddressRepo) Update(ctx context.Context, addr *model.Address) error {
	now := time.Now().UTC()
	addr.UpdatedAt = now

	set := bson.M{
		"label":     addr.Label,
		"street":    addr.Street,
		"city":      addr.City,
		"state":     addr.State,
		"pincode":   addr.Pincode,
		"country":   addr.Country,
		"latitude":  addr.Latitude,
		"longitude": addr.Longitude,
		"isDefault": addr.IsDefault,
		"updatedAt": now,
	}

	return withTransaction(ctx, r.client, func(sc mongo.SessionContext) error {
		if addr.IsDefault {
			if err := r.clearDefault(sc, addr.UserID, now); err != nil {
				return err
			}
		}
		res, err := r.col.UpdateOne(sc,
			bson.M{"_id": addr.ID.String(), "userId": addr.UserID.String()},
			bson.M{"$set": set},
		)
		if err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return ErrDuplicateKey
			}
			return fmt.Errorf("update address: %w", err)
		}
		if res.MatchedCount == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (r *mongoAddressRepo) Delete(ctx context.Context, userID, id uuid.UUID) error {
	res, err := r.col.DeleteOne(ctx, bson.M{"_id": id.String(), "userId": userID.String()})
	if err != nil {
		return fmt.Errorf("delete address: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *mongoAddressRepo) DeleteAll(ctx context.Context, userID uuid.UUID) error {
	if _, err := r.col.DeleteMany(ctx, bson.M{"userId": userID.String()}); err != nil {
		return fmt.Errorf("delete addresses: %w", err)
	}
	return nil
}
