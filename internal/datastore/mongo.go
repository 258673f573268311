package datastore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/vidtube/backend/internal/config"
)

// Mongo implements Datastore backed by MongoDB. Document ids are ObjectID
// hex strings stored in the plain "_id" field, so pipelines join on string
// equality exactly like the in-memory implementation.
type Mongo struct {
	client   *mongo.Client
	database *mongo.Database
}

// NewMongo connects to the configured deployment and verifies the
// connection.
func NewMongo(ctx context.Context, cfg config.DatastoreConfig) (*Mongo, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return &Mongo{client: client, database: client.Database(cfg.Database)}, nil
}

// Close tears down the underlying connection pool.
func (m *Mongo) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

// EnsureIndexes provisions the unique indexes the core relies on.
func (m *Mongo) EnsureIndexes(ctx context.Context) error {
	for name, indexes := range uniqueIndexes {
		for _, fields := range indexes {
			keys := bson.D{}
			for _, field := range fields {
				keys = append(keys, bson.E{Key: field, Value: 1})
			}
			_, err := m.database.Collection(name).Indexes().CreateOne(ctx, mongo.IndexModel{
				Keys:    keys,
				Options: options.Index().SetUnique(true),
			})
			if err != nil {
				return fmt.Errorf("ensure index %s %v: %w", name, fields, err)
			}
		}
	}
	return nil
}

// Collection returns typed access to the named collection.
func (m *Mongo) Collection(name string) Collection {
	return &mongoCollection{col: m.database.Collection(name)}
}

// NewID returns a fresh document id.
func (m *Mongo) NewID() string { return primitive.NewObjectID().Hex() }

// ValidID reports whether id is a well-formed document id.
func (m *Mongo) ValidID(id string) bool {
	_, err := primitive.ObjectIDFromHex(id)
	return err == nil
}

type mongoCollection struct {
	col *mongo.Collection
}

func (c *mongoCollection) FindOne(ctx context.Context, filter Filter) (Document, error) {
	var doc Document
	err := c.col.FindOne(ctx, filterToBSON(filter)).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find one: %w", err)
	}
	return doc, nil
}

func (c *mongoCollection) FindByID(ctx context.Context, id string) (Document, error) {
	return c.FindOne(ctx, Filter{"_id": id})
}

func (c *mongoCollection) Find(ctx context.Context, filter Filter, opts FindOptions) ([]Document, error) {
	findOpts := options.Find()
	if opts.SortBy != "" {
		direction := 1
		if opts.Desc {
			direction = -1
		}
		findOpts.SetSort(bson.D{{Key: opts.SortBy, Value: direction}})
	}
	if opts.Skip > 0 {
		findOpts.SetSkip(int64(opts.Skip))
	}
	if opts.Limit > 0 {
		findOpts.SetLimit(int64(opts.Limit))
	}

	cursor, err := c.col.Find(ctx, filterToBSON(filter), findOpts)
	if err != nil {
		return nil, fmt.Errorf("find: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []Document
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode find results: %w", err)
	}
	return docs, nil
}

func (c *mongoCollection) Insert(ctx context.Context, doc Document) (string, error) {
	id, _ := doc["_id"].(string)
	if id == "" {
		id = primitive.NewObjectID().Hex()
		stored := make(Document, len(doc)+1)
		for k, v := range doc {
			stored[k] = v
		}
		stored["_id"] = id
		doc = stored
	}

	if _, err := c.col.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return "", ErrConflict
		}
		return "", fmt.Errorf("insert: %w", err)
	}
	return id, nil
}

func (c *mongoCollection) UpdateByID(ctx context.Context, id string, set Fields) (Document, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var updated Document
	err := c.col.FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M(set)}, opts).Decode(&updated)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		if mongo.IsDuplicateKeyError(err) {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("update by id: %w", err)
	}
	return updated, nil
}

func (c *mongoCollection) UpdateOne(ctx context.Context, filter Filter, set Fields) (bool, error) {
	result, err := c.col.UpdateOne(ctx, filterToBSON(filter), bson.M{"$set": bson.M(set)})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return false, ErrConflict
		}
		return false, fmt.Errorf("update one: %w", err)
	}
	return result.MatchedCount > 0, nil
}

func (c *mongoCollection) DeleteByID(ctx context.Context, id string) error {
	result, err := c.col.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete by id: %w", err)
	}
	if result.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (c *mongoCollection) Aggregate(ctx context.Context, pipeline []Stage) ([]Document, error) {
	cursor, err := c.col.Aggregate(ctx, pipelineToBSON(pipeline))
	if err != nil {
		return nil, fmt.Errorf("aggregate: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []Document
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode aggregation results: %w", err)
	}
	return docs, nil
}

func pipelineToBSON(pipeline []Stage) mongo.Pipeline {
	out := make(mongo.Pipeline, 0, len(pipeline))
	for _, stage := range pipeline {
		switch s := stage.(type) {
		case Match:
			out = append(out, bson.D{{Key: "$match", Value: filterToBSON(s.Filter)}})
		case Project:
			fields := bson.M{}
			for _, field := range s.Fields {
				fields[field] = 1
			}
			out = append(out, bson.D{{Key: "$project", Value: fields}})
		case Lookup:
			lookup := bson.M{
				"from":         s.From,
				"localField":   s.LocalField,
				"foreignField": s.ForeignField,
				"as":           s.As,
			}
			if len(s.Pipeline) > 0 {
				lookup["pipeline"] = pipelineToBSON(s.Pipeline)
			}
			out = append(out, bson.D{{Key: "$lookup", Value: lookup}})
		case AddFields:
			out = append(out, bson.D{{Key: "$addFields", Value: exprFieldsToBSON(s.Fields)}})
		case Set:
			out = append(out, bson.D{{Key: "$set", Value: exprFieldsToBSON(s.Fields)}})
		}
	}
	return out
}

func exprFieldsToBSON(fields map[string]Expr) bson.M {
	out := bson.M{}
	for field, expr := range fields {
		out[field] = exprToBSON(expr)
	}
	return out
}

func exprToBSON(expr Expr) any {
	switch e := expr.(type) {
	case Size:
		return bson.M{"$size": bson.M{"$ifNull": bson.A{fieldRef(e.Field), bson.A{}}}}
	case First:
		return bson.M{"$first": fieldRef(e.Field)}
	case In:
		return bson.M{"$in": bson.A{e.Value, bson.M{"$ifNull": bson.A{fieldRef(e.Field), bson.A{}}}}}
	case Cond:
		return bson.M{"$cond": bson.M{
			"if":   exprToBSON(e.If),
			"then": e.Then,
			"else": e.Else,
		}}
	case Literal:
		return bson.M{"$literal": e.Value}
	default:
		return nil
	}
}

func fieldRef(field string) string {
	if strings.HasPrefix(field, "$") {
		return field
	}
	return "$" + field
}

func filterToBSON(filter Filter) bson.M {
	out := bson.M{}
	for field, value := range filter {
		if anyOf, ok := value.(AnyOf); ok {
			out[field] = bson.M{"$in": []any(anyOf)}
			continue
		}
		out[field] = value
	}
	return out
}
