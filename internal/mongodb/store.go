// Package mongodb backs the auth token blacklist and one-time codes with
// MongoDB TTL collections: Mongo expires the documents itself, no sweeper
// needed.
package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

func Connect(ctx context.Context, uri, dbName string) (*Store, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	s := &Store{client: client, db: client.Database(dbName)}
	if err := s.initIndexes(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) initIndexes(ctx context.Context) error {
	ttl := options.Index().SetExpireAfterSeconds(0)

	_, err := s.db.Collection("token_blacklist").Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "jti", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "expires_at", Value: 1}}, Options: ttl},
	})
	if err != nil {
		return fmt.Errorf("failed to create token_blacklist indexes: %w", err)
	}

	_, err = s.db.Collection("otps").Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "expires_at", Value: 1}}, Options: ttl},
	})
	if err != nil {
		return fmt.Errorf("failed to create otps indexes: %w", err)
	}
	return nil
}

func (s *Store) Close(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (s *Store) BlacklistToken(ctx context.Context, jti string, ttl time.Duration) error {
	_, err := s.db.Collection("token_blacklist").InsertOne(ctx, bson.M{
		"jti":        jti,
		"expires_at": time.Now().UTC().Add(ttl),
	})
	if mongo.IsDuplicateKeyError(err) {
		return nil // already revoked
	}
	return err
}

func (s *Store) IsTokenBlacklisted(ctx context.Context, jti string) (bool, error) {
	err := s.db.Collection("token_blacklist").FindOne(ctx, bson.M{"jti": jti}).Err()
	if err == mongo.ErrNoDocuments {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) StoreOTP(ctx context.Context, email, otp string, ttl time.Duration) error {
	_, err := s.db.Collection("otps").UpdateOne(ctx,
		bson.M{"email": email},
		bson.M{"$set": bson.M{"otp": otp, "expires_at": time.Now().UTC().Add(ttl)}},
		options.Update().SetUpsert(true),
	)
	return err
}

// VerifyOTP checks the code and consumes it on success.
func (s *Store) VerifyOTP(ctx context.Context, email, otp string) (bool, error) {
	var doc struct {
		OTP       string    `bson:"otp"`
		ExpiresAt time.Time `bson:"expires_at"`
	}
	err := s.db.Collection("otps").FindOne(ctx, bson.M{"email": email}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if doc.OTP != otp || !doc.ExpiresAt.After(time.Now().UTC()) {
		return false, nil
	}
	_, err = s.db.Collection("otps").DeleteOne(ctx, bson.M{"email": email})
	return err == nil, err
}
