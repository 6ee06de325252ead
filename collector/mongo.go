package collector

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/go-octopus/octopus/extract"
)

// Mongo inserts each result as a document into a MongoDB collection.
type Mongo struct {
	client     *mongo.Client
	collection *mongo.Collection
	count      int
	mu         sync.Mutex
}

// NewMongo connects to MongoDB and returns a collector writing into the
// given database and collection.
func NewMongo(uri, database, collection string) (*Mongo, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongodb connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("mongodb ping: %w", err)
	}

	return &Mongo{
		client:     client,
		collection: client.Database(database).Collection(collection),
	}, nil
}

// Collect inserts one result document.
func (m *Mongo) Collect(res *extract.Result) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if _, err := m.collection.InsertOne(ctx, res.ToMap()); err != nil {
		return fmt.Errorf("mongodb insert: %w", err)
	}

	m.mu.Lock()
	m.count++
	m.mu.Unlock()
	return nil
}

// Count returns the number of documents inserted so far.
func (m *Mongo) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.count
}

// Close disconnects from MongoDB.
func (m *Mongo) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}
