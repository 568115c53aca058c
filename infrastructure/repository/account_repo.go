package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"steamclaim/domain/account"
)

// accountDocument is the MongoDB document structure for accounts.
// The _id is the SteamID string so documents can be upserted by
// external import tooling without an extra lookup.
type accountDocument struct {
	ID           string           `bson:"_id"`
	Name         string           `bson:"name"`
	SharedSecret string           `bson:"shared_secret,omitempty"`
	Cookies      []cookieDocument `bson:"cookies,omitempty"`
}

// cookieDocument is the MongoDB document structure for cookies.
type cookieDocument struct {
	Name     string `bson:"name"`
	Value    string `bson:"value"`
	Domain   string `bson:"domain"`
	Path     string `bson:"path"`
	HTTPOnly bool   `bson:"http_only"`
	Secure   bool   `bson:"secure"`
	SameSite string `bson:"same_site,omitempty"`
}

// MongoAccountRepository implements account.Repository using MongoDB.
// The run treats accounts as read-only input; writes belong to the
// tooling that imports authenticator bundles into the collection.
type MongoAccountRepository struct {
	collection *mongo.Collection
	logger     *slog.Logger
}

// NewMongoAccountRepository creates a new MongoDB-based account repository.
func NewMongoAccountRepository(db *MongoDB, logger *slog.Logger) *MongoAccountRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &MongoAccountRepository{
		collection: db.Collection("account"),
		logger:     logger,
	}
}

// FindByID retrieves an account by its unique identifier.
func (r *MongoAccountRepository) FindByID(ctx context.Context, id string) (*account.Account, error) {
	filter := bson.M{"_id": id}
	var doc accountDocument
	if err := r.collection.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find account: %w", err)
	}

	return documentToAccount(&doc), nil
}

// FindAll retrieves all accounts.
func (r *MongoAccountRepository) FindAll(ctx context.Context) ([]*account.Account, error) {
	cursor, err := r.collection.Find(ctx, bson.D{})
	if err != nil {
		return nil, fmt.Errorf("failed to find accounts: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []accountDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode accounts: %w", err)
	}

	accounts := make([]*account.Account, len(docs))
	for i, doc := range docs {
		accounts[i] = documentToAccount(&doc)
	}

	return accounts, nil
}

// documentToAccount converts a MongoDB document to a domain Account.
func documentToAccount(doc *accountDocument) *account.Account {
	acc := &account.Account{
		ID:           doc.ID,
		Name:         doc.Name,
		SharedSecret: doc.SharedSecret,
	}

	if len(doc.Cookies) > 0 {
		acc.Cookies = make([]account.Cookie, len(doc.Cookies))
		for i, c := range doc.Cookies {
			acc.Cookies[i] = account.Cookie{
				Name:     c.Name,
				Value:    c.Value,
				Domain:   c.Domain,
				Path:     c.Path,
				HTTPOnly: c.HTTPOnly,
				Secure:   c.Secure,
				SameSite: c.SameSite,
			}
		}
	}

	return acc
}

// Ensure MongoAccountRepository implements account.Repository
var _ account.Repository = (*MongoAccountRepository)(nil)
