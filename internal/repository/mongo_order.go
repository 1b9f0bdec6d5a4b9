package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/flicky/spice-storefront/internal/model"
)

type orderItemDoc struct {
	ProductID string               `bson:"productId"`
	Name      string               `bson:"name"`
	Quantity  int                  `bson:"quantity"`
	Price     primitive.Decimal128 `bson:"price"`
}

type orderDoc struct {
	ID               string               `bson:"_id"`
	CartID           string               `bson:"cartId"`
	UserID           string               `bson:"userId"`
	Items            []orderItemDoc       `bson:"products"`
	TotalPrice       primitive.Decimal128 `bson:"totalPrice"`
	DeliveryLocation string               `bson:"deliveryLocation"`
	Status           string               `bson:"status"`
	WhatsAppSent     bool                 `bson:"whatsappSent"`
	CreatedAt        time.Time            `bson:"createdAt"`
	UpdatedAt        time.Time            `bson:"updatedAt"`
}

func newOrderDoc(o *model.Order) orderDoc {
	items := make([]orderItemDoc, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, orderItemDoc{
			ProductID: it.ProductID.String(),
			Name:      it.Name,
			Quantity:  it.Quantity,
			Price:     toDecimal128(it.Price),
		})
	}
	return orderDoc{
		ID:               o.ID,
		CartID:           o.CartID.String(),
		UserID:           o.UserID.String(),
		Items:            items,
		TotalPrice:       toDecimal128(o.TotalPrice),
		DeliveryLocation: o.DeliveryLocation,
		Status:           string(o.Status),
		WhatsAppSent:     o.WhatsAppSent,
		CreatedAt:        o.CreatedAt,
		UpdatedAt:        o.UpdatedAt,
	}
}

func (d orderDoc) toModel() model.Order {
	items := make([]model.OrderItem, 0, len(d.Items))
	for _, it := range d.Items {
		items = append(items, model.OrderItem{
			ProductID: parseUUID(it.ProductID),
			Name:      it.Name,
			Quantity:  it.Quantity,
			Price:     fromDecimal128(it.Price),
		})
	}
	return model.Order{
		ID:               d.ID,
		CartID:           parseUUID(d.CartID),
		UserID:           parseUUID(d.UserID),
		Items:            items,
		TotalPrice:       fromDecimal128(d.TotalPrice),
		DeliveryLocation: d.DeliveryLocation,
		Status:           model.OrderStatus(d.Status),
		WhatsAppSent:     d.WhatsAppSent,
		CreatedAt:        d.CreatedAt,
		UpdatedAt:        d.UpdatedAt,
	}
}

type mongoOrderRepo struct {
	client   *mongo.Client
	orders   *mongo.Collection
	products *mongo.Collection
	carts    *mongo.Collection
}

func NewMongoOrderRepository(client *mongo.Client, db *mongo.Database) OrderRepository {
	return &mongoOrderRepo{
		client:   client,
		orders:   db.Collection(colOrders),
		products: db.Collection(colProducts),
		carts:    db.Collection(colCarts),
	}
}

func (r *mongoOrderRepo) Exists(ctx context.Context, orderID string) (bool, error) {
	n, err := r.orders.CountDocuments(ctx, bson.M{"_id": orderID}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("check order id: %w", err)
	}
	return n > 0, nil
}

func (r *mongoOrderRepo) Place(ctx context.Context, order *model.Order, next *model.Cart) error {
	now := time.Now().UTC()
	order.CreatedAt, order.UpdatedAt = now, now
	order.WhatsAppSent = false

	return withTransaction(ctx, r.client, func(sc mongo.SessionContext) error {
		if _, err := r.orders.InsertOne(sc, newOrderDoc(order)); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return ErrDuplicateKey
			}
			return fmt.Errorf("insert order: %w", err)
		}

		for _, item := range order.Items {
			res, err := r.products.UpdateOne(sc,
				bson.M{"_id": item.ProductID.String(), "stock": bson.M{"$gte": item.Quantity}},
				bson.M{"$inc": bson.M{"stock": -item.Quantity}, "$set": bson.M{"updatedAt": now}},
			)
			if err != nil {
				return fmt.Errorf("decrement stock: %w", err)
			}
			if res.MatchedCount == 0 {
				return &StockError{ProductID: item.ProductID}
			}
		}

		res, err := r.carts.UpdateOne(sc,
			bson.M{"_id": order.CartID.String(), "isActive": true},
			bson.M{"$set": bson.M{"isActive": false, "updatedAt": now}},
		)
		if err != nil {
			return fmt.Errorf("deactivate cart: %w", err)
		}
		if res.MatchedCount == 0 {
			return ErrCartNotActive
		}

		return insertCartDoc(sc, r.carts, next)
	})
}

func (r *mongoOrderRepo) GetByID(ctx context.Context, orderID string) (*model.Order, error) {
	var doc orderDoc
	err := r.orders.FindOne(ctx, bson.M{"_id": orderID}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	o := doc.toModel()
	return &o, nil
}

func (r *mongoOrderRepo) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]model.Order, error) {
	cursor, err := r.orders.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	var docs []orderDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode orders: %w", err)
	}
	orders := make([]model.Order, 0, len(docs))
	for _, d := range docs {
		orders = append(orders, d.toModel())
	}
	return orders, nil
}

func (r *mongoOrderRepo) List(ctx context.Context, f model.OrderFilter) ([]model.Order, int, error) {
	filter := bson.M{}
	if f.UserID != nil {
		filter["userId"] = f.UserID.String()
	}

	total, err := r.orders.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("count orders: %w", err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: 1}}).
		SetSkip(int64(f.Offset())).
		SetLimit(int64(f.Limit))
	orders, err := r.find(ctx, filter, opts)
	if err != nil {
		return nil, 0, err
	}
	return orders, int(total), nil
}

func (r *mongoOrderRepo) update(ctx context.Context, orderID string, set bson.M) error {
	set["updatedAt"] = time.Now().UTC()
	res, err := r.orders.UpdateOne(ctx, bson.M{"_id": orderID}, bson.M{"$set": set})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *mongoOrderRepo) UpdateStatus(ctx context.Context, orderID string, status model.OrderStatus) error {
	err := r.update(ctx, orderID, bson.M{"status": string(status)})
	if err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("update order status: %w", err)
	}
	return err
}

func (r *mongoOrderRepo) MarkWhatsAppSent(ctx context.Context, orderID string) error {
	err := r.update(ctx, orderID, bson.M{"whatsappSent": true})
	if err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("mark whatsapp sent: %w", err)
	}
	return err
}

func (r *mongoOrderRepo) Stats(ctx context.Context, recent int) (*model.OrderStats, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.M{
			"_id":        "$status",
			"count":      bson.M{"$sum": 1},
			"totalValue": bson.M{"$sum": "$totalPrice"},
		}}},
		{{Key: "$sort", Value: bson.M{"_id": 1}}},
	}
	cursor, err := r.orders.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("order stats: %w", err)
	}
	var rows []struct {
		Status     string               `bson:"_id"`
		Count      int                  `bson:"count"`
		TotalValue primitive.Decimal128 `bson:"totalValue"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("decode order stats: %w", err)
	}

	stats := &model.OrderStats{TotalRevenue: decimal.Zero}
	for _, row := range rows {
		s := model.StatusStat{
			Status:     model.OrderStatus(row.Status),
			Count:      row.Count,
			TotalValue: fromDecimal128(row.TotalValue),
		}
		stats.ByStatus = append(stats.ByStatus, s)
		stats.TotalOrders += s.Count
		stats.TotalRevenue = stats.TotalRevenue.Add(s.TotalValue)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: 1}}).
		SetLimit(int64(recent))
	stats.Recent, err = r.find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// popularPipeline ranks ordered products by total quantity.
func popularPipeline(limit int) mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$unwind", Value: "$products"}},
		{{Key: "$group", Value: bson.M{
			"_id":          "$products.productId",
			"totalOrdered": bson.M{"$sum": "$products.quantity"},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "totalOrdered", Value: -1}, {Key: "_id", Value: 1}}}},
		{{Key: "$limit", Value: limit}},
	}
}

// purchasedPipeline collects the distinct products of a user's latest orders.
func purchasedPipeline(userID uuid.UUID, recentOrders int) mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"userId": userID.String()}}},
		{{Key: "$sort", Value: bson.D{{Key: "createdAt", Value: -1}}}},
		{{Key: "$limit", Value: recentOrders}},
		{{Key: "$unwind", Value: "$products"}},
		{{Key: "$group", Value: bson.M{"_id": "$products.productId"}}},
	}
}

func (r *mongoOrderRepo) aggregateIDs(ctx context.Context, pipeline mongo.Pipeline) ([]uuid.UUID, error) {
	cursor, err := r.orders.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	var rows []struct {
		ProductID string `bson:"_id"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, 0, len(rows))
	for _, row := range rows {
		if id, err := uuid.Parse(row.ProductID); err == nil {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (r *mongoOrderRepo) PopularProductIDs(ctx context.Context, limit int) ([]uuid.UUID, error) {
	ids, err := r.aggregateIDs(ctx, popularPipeline(limit))
	if err != nil {
		return nil, fmt.Errorf("popular products: %w", err)
	}
	return ids, nil
}

func (r *mongoOrderRepo) PurchasedProductIDs(ctx context.Context, userID uuid.UUID, recentOrders int) ([]uuid.UUID, error) {
	ids, err := r.aggregateIDs(ctx, purchasedPipeline(userID, recentOrders))
	if err != nil {
		return nil, fmt.Errorf("purchased products: %w", err)
	}
	return ids, nil
}
