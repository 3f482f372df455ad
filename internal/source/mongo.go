package source

import (
	"context"
	"fmt"
	"io"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"tabular/internal/record"
)

func init() {
	Register("mongo", newMongoSource)
}

// mongoSource scans a MongoDB collection in batches. Documents are decoded as
// bson.D so field order survives into the records, which keeps flattened
// column order stable.
//
// Options:
//   - uri          connection string (required)
//   - database     database name (required)
//   - collection   collection name (required)
//   - since_field  when set and a last-run marker exists, adds a
//     {since_field: {$gt: marker}} filter for incremental extraction
type mongoSource struct {
	client *mongo.Client
	cursor *mongo.Cursor

	pageSize int
}

func newMongoSource(params Params) (Source, error) {
	uri := params.Options.String("uri", "")
	dbName := params.Options.String("database", "")
	collName := params.Options.String("collection", "")
	if uri == "" || dbName == "" || collName == "" {
		return nil, fmt.Errorf("mongo source: options uri, database and collection are required")
	}

	pageSize := params.PageSize
	if pageSize <= 0 {
		pageSize = 500
	}

	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo source: connect: %w", err)
	}

	filter := bson.D{}
	if f := params.Options.String("since_field", ""); f != "" && params.Since != "" {
		filter = bson.D{{Key: f, Value: bson.D{{Key: "$gt", Value: params.Since}}}}
	}

	coll := client.Database(dbName).Collection(collName)
	cursor, err := coll.Find(context.Background(), filter,
		options.Find().SetBatchSize(int32(pageSize)))
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo source: find: %w", err)
	}

	return &mongoSource{client: client, cursor: cursor, pageSize: pageSize}, nil
}

func (s *mongoSource) Next(ctx context.Context) ([]*record.Record, error) {
	batch := make([]*record.Record, 0, s.pageSize)

	for len(batch) < s.pageSize && s.cursor.Next(ctx) {
		var doc bson.D
		if err := s.cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("mongo source: decode: %w", err)
		}
		batch = append(batch, recordFromBSON(doc))
	}
	if err := s.cursor.Err(); err != nil {
		return nil, fmt.Errorf("mongo source: cursor: %w", err)
	}
	if len(batch) == 0 {
		return nil, io.EOF
	}
	return batch, nil
}

func (s *mongoSource) Close() error {
	ctx := context.Background()
	_ = s.cursor.Close(ctx)
	return s.client.Disconnect(ctx)
}

// recordFromBSON converts an ordered BSON document into a Record, mapping
// BSON-only types onto the JSON-shaped value universe the classifier knows.
func recordFromBSON(doc bson.D) *record.Record {
	rec := record.New()
	for _, el := range doc {
		rec.Set(el.Key, bsonValue(el.Value))
	}
	return rec
}

func bsonValue(v any) any {
	switch t := v.(type) {
	case bson.D:
		return recordFromBSON(t)
	case bson.M:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = bsonValue(val)
		}
		return out
	case bson.A:
		out := make([]any, len(t))
		for i, el := range t {
			out[i] = bsonValue(el)
		}
		return out
	case bson.ObjectID:
		return t.Hex()
	case bson.DateTime:
		return t.Time().UTC().Format("2006-01-02T15:04:05.000Z")
	case int32:
		return int64(t)
	default:
		return v
	}
}
