package mongo

import (
	"context"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"marketchat/internal/domain/chat"
	"marketchat/internal/domain/listings"
	"marketchat/internal/domain/user"
)

type MessageRepository struct {
	col *mongo.Collection
	now func() time.Time

	mu   sync.Mutex
	last int64
}

func NewMessageRepository(db *mongo.Database) *MessageRepository {
	return &MessageRepository{col: db.Collection("chat_messages"), now: time.Now}
}

// EnsureIndexes creates the indexes the list and mark-read predicates rely on.
func (r *MessageRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{
			{Key: "sender_id", Value: 1},
			{Key: "recipient_id", Value: 1},
			{Key: "listing_id", Value: 1},
			{Key: "created_at", Value: -1},
		}},
		{Keys: bson.D{
			{Key: "recipient_id", Value: 1},
			{Key: "sender_id", Value: 1},
			{Key: "listing_id", Value: 1},
			{Key: "read", Value: 1},
		}},
	})
	return err
}

func (r *MessageRepository) Append(ctx context.Context, msg *chat.Message) error {
	doc := messageDocument{
		ID:          primitive.NewObjectID(),
		SenderID:    string(msg.Sender),
		RecipientID: string(msg.Recipient),
		ListingID:   string(msg.Listing),
		Content:     msg.Content,
		CreatedAt:   r.nextTimestamp(),
		Read:        false,
	}
	if _, err := r.col.InsertOne(ctx, doc); err != nil {
		return err
	}
	msg.ID = chat.MessageID(doc.ID.Hex())
	msg.CreatedAt = timestampToTime(doc.CreatedAt)
	msg.Read = false
	return nil
}

// nextTimestamp clamps against the last assigned timestamp so appended
// messages never travel back in time within this process when the host
// clock steps backwards.
func (r *MessageRepository) nextTimestamp() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	ts := r.now().UTC().UnixMilli()
	if ts < r.last {
		ts = r.last
	}
	r.last = ts
	return ts
}

// MarkRead is a single conditional bulk update: a message appended while it
// runs is either matched by the predicate or untouched, never half-applied.
func (r *MessageRepository) MarkRead(ctx context.Context, recipient, counterpart user.ID, listing listings.ListingID) (int64, error) {
	filter := bson.M{
		"recipient_id": string(recipient),
		"sender_id":    string(counterpart),
		"listing_id":   string(listing),
		"read":         false,
	}
	res, err := r.col.UpdateMany(ctx, filter, bson.M{"$set": bson.M{"read": true}})
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

func (r *MessageRepository) List(ctx context.Context, f chat.Filter, page chat.Pageable) (chat.MessagePage, error) {
	filter := filterDocument(f)
	total, err := r.col.CountDocuments(ctx, filter)
	if err != nil {
		return chat.MessagePage{}, err
	}

	sortOrder := bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: 1}}
	if f.Ascending {
		sortOrder = bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}
	}
	opts := options.Find().SetSort(sortOrder)
	if page.Size > 0 {
		opts = opts.SetSkip(int64(page.Offset())).SetLimit(int64(page.Size))
	}
	cursor, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return chat.MessagePage{}, err
	}
	var docs []messageDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return chat.MessagePage{}, err
	}

	items := make([]chat.Message, 0, len(docs))
	for _, doc := range docs {
		items = append(items, doc.toMessage())
	}
	return chat.MessagePage{Items: items, Page: page.Page, Size: page.Size, Total: total}, nil
}

// ListConversations derives the conversation list in one aggregation: match
// the viewer's messages, compute the counterpart per row, group by
// (counterpart, listing), take the newest row and sum unread rows per group.
func (r *MessageRepository) ListConversations(ctx context.Context, viewer user.ID, page chat.Pageable) (chat.SummaryPage, error) {
	v := string(viewer)
	pageStages := mongo.Pipeline{}
	if page.Size > 0 {
		pageStages = append(pageStages,
			bson.D{{Key: "$skip", Value: int64(page.Offset())}},
			bson.D{{Key: "$limit", Value: int64(page.Size)}},
		)
	}
	pipeline := mongo.Pipeline{
		bson.D{{Key: "$match", Value: bson.M{
			"$or": []bson.M{{"sender_id": v}, {"recipient_id": v}},
		}}},
		bson.D{{Key: "$addFields", Value: bson.M{
			"counterpart": bson.M{"$cond": bson.A{
				bson.M{"$eq": bson.A{"$sender_id", v}},
				"$recipient_id",
				"$sender_id",
			}},
		}}},
		bson.D{{Key: "$sort", Value: bson.D{
			{Key: "created_at", Value: -1},
			{Key: "_id", Value: -1},
		}}},
		bson.D{{Key: "$group", Value: bson.M{
			"_id":  bson.M{"counterpart": "$counterpart", "listing_id": "$listing_id"},
			"last": bson.M{"$first": "$$ROOT"},
			"unread": bson.M{"$sum": bson.M{"$cond": bson.A{
				bson.M{"$and": bson.A{
					bson.M{"$eq": bson.A{"$recipient_id", v}},
					bson.M{"$eq": bson.A{"$read", false}},
				}},
				1,
				0,
			}}},
		}}},
		bson.D{{Key: "$sort", Value: bson.D{
			{Key: "last.created_at", Value: -1},
			{Key: "last._id", Value: -1},
		}}},
		bson.D{{Key: "$facet", Value: bson.M{
			"items": pageStages,
			"total": mongo.Pipeline{bson.D{{Key: "$count", Value: "count"}}},
		}}},
	}

	cursor, err := r.col.Aggregate(ctx, pipeline)
	if err != nil {
		return chat.SummaryPage{}, err
	}
	var facets []struct {
		Items []summaryDocument `bson:"items"`
		Total []struct {
			Count int64 `bson:"count"`
		} `bson:"total"`
	}
	if err := cursor.All(ctx, &facets); err != nil {
		return chat.SummaryPage{}, err
	}

	result := chat.SummaryPage{Items: []chat.ConversationSummary{}, Page: page.Page, Size: page.Size}
	if len(facets) == 0 {
		return result, nil
	}
	for _, doc := range facets[0].Items {
		result.Items = append(result.Items, chat.ConversationSummary{
			Counterpart: user.ID(doc.Key.Counterpart),
			Listing:     listings.ListingID(doc.Key.ListingID),
			LastMessage: doc.Last.toMessage(),
			UnreadCount: doc.Unread,
		})
	}
	if len(facets[0].Total) > 0 {
		result.Total = facets[0].Total[0].Count
	}
	return result, nil
}

type messageDocument struct {
	ID          primitive.ObjectID `bson:"_id"`
	SenderID    string             `bson:"sender_id"`
	RecipientID string             `bson:"recipient_id"`
	ListingID   string             `bson:"listing_id"`
	Content     string             `bson:"content"`
	CreatedAt   int64              `bson:"created_at"`
	Read        bool               `bson:"read"`
}

func (d messageDocument) toMessage() chat.Message {
	return chat.Message{
		ID:        chat.MessageID(d.ID.Hex()),
		Sender:    user.ID(d.SenderID),
		Recipient: user.ID(d.RecipientID),
		Listing:   listings.ListingID(d.ListingID),
		Content:   d.Content,
		CreatedAt: timestampToTime(d.CreatedAt),
		Read:      d.Read,
	}
}

type summaryDocument struct {
	Key struct {
		Counterpart string `bson:"counterpart"`
		ListingID   string `bson:"listing_id"`
	} `bson:"_id"`
	Last   messageDocument `bson:"last"`
	Unread int64           `bson:"unread"`
}

func filterDocument(f chat.Filter) bson.M {
	filter := bson.M{}
	if f.Between.A != "" || f.Between.B != "" {
		filter["$or"] = []bson.M{
			{"sender_id": string(f.Between.A), "recipient_id": string(f.Between.B)},
			{"sender_id": string(f.Between.B), "recipient_id": string(f.Between.A)},
		}
	}
	if f.Listing != "" {
		filter["listing_id"] = string(f.Listing)
	}
	if !f.After.IsZero() {
		filter["created_at"] = bson.M{"$gt": f.After.UnixMilli()}
	}
	return filter
}

func timestampToTime(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

var _ chat.Repository = (*MessageRepository)(nil)
