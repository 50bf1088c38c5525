package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// limitDoc is the persisted window state for one identifier. ExpiresAt
// carries the record's own expiry (two windows past last activity); a TTL
// index reaps stale documents, replacing the in-memory eviction loop.
type limitDoc struct {
	ID          string    `bson:"_id"`
	Count       int       `bson:"count"`
	WindowStart time.Time `bson:"window_start"`
	LastSeen    time.Time `bson:"last_seen"`
	ExpiresAt   time.Time `bson:"expires_at"`
}

// checkDeadline bounds one CheckLimit round trip, transaction retries
// included. Without it the driver retries a failing transaction for its full
// 120-second window, and a store outage would stall every limited request
// for that long before failing open.
const checkDeadline = 2 * time.Second

// MongoLimiter is the distributed fixed-window limiter. The check-and-
// increment runs as a single multi-document transaction (read, branch,
// write) so concurrent instances cannot double-admit over the limit.
//
// On any transaction or storage error the limiter fails open and admits the
// request: availability is prioritized over strict enforcement, since the
// limiter protects against abuse, not correctness.
type MongoLimiter struct {
	policy Policy
	client *mongo.Client
	coll   *mongo.Collection
	log    zerolog.Logger

	// now is a test seam; defaults to time.Now.
	now func() time.Time
	// deadline bounds one check; defaults to checkDeadline.
	deadline time.Duration
}

// NewMongoLimiter returns a limiter backed by the "rate_limits" collection
// of database db.
func NewMongoLimiter(client *mongo.Client, db string, policy Policy, log zerolog.Logger) *MongoLimiter {
	if policy.MaxRequests < 1 {
		policy.MaxRequests = DefaultPolicy.MaxRequests
	}
	if policy.Window <= 0 {
		policy.Window = DefaultPolicy.Window
	}
	return &MongoLimiter{
		policy:   policy,
		client:   client,
		coll:     client.Database(db).Collection("rate_limits"),
		log:      log,
		now:      time.Now,
		deadline: checkDeadline,
	}
}

// EnsureIndexes creates the TTL index reaping idle records. Call once at
// startup.
func (l *MongoLimiter) EnsureIndexes(ctx context.Context) error {
	_, err := l.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "expires_at", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(0),
	})
	return err
}

// CheckLimit admits or denies one request from identifier, executing the
// read-branch-write as a single transaction. The whole check runs under its
// own short deadline so an unreachable store fails open promptly instead of
// holding the request for the driver's transaction-retry window.
func (l *MongoLimiter) CheckLimit(ctx context.Context, identifier string) bool {
	now := l.now().UTC()
	expiry := now.Add(2 * l.policy.Window)

	ctx, cancel := context.WithTimeout(ctx, l.deadline)
	defer cancel()

	sess, err := l.client.StartSession()
	if err != nil {
		l.failOpen(identifier, err)
		return true
	}
	defer sess.EndSession(ctx)

	allowed, err := sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		var doc limitDoc
		err := l.coll.FindOne(sc, bson.M{"_id": identifier}).Decode(&doc)
		switch {
		case errors.Is(err, mongo.ErrNoDocuments):
			_, err := l.coll.UpdateOne(sc,
				bson.M{"_id": identifier},
				bson.M{"$set": limitDoc{
					ID: identifier, Count: 1, WindowStart: now, LastSeen: now, ExpiresAt: expiry,
				}},
				options.Update().SetUpsert(true),
			)
			return true, err
		case err != nil:
			return nil, err
		}

		if now.Sub(doc.WindowStart) > l.policy.Window {
			_, err := l.coll.UpdateOne(sc,
				bson.M{"_id": identifier},
				bson.M{"$set": bson.M{
					"count": 1, "window_start": now, "last_seen": now, "expires_at": expiry,
				}},
			)
			return true, err
		}
		if doc.Count >= l.policy.MaxRequests {
			// Denied requests refresh activity but never increment the count.
			_, err := l.coll.UpdateOne(sc,
				bson.M{"_id": identifier},
				bson.M{"$set": bson.M{"last_seen": now, "expires_at": expiry}},
			)
			return false, err
		}
		_, err = l.coll.UpdateOne(sc,
			bson.M{"_id": identifier},
			bson.M{
				"$inc": bson.M{"count": 1},
				"$set": bson.M{"last_seen": now, "expires_at": expiry},
			},
		)
		return true, err
	})
	if err != nil {
		l.failOpen(identifier, err)
		return true
	}
	ok, _ := allowed.(bool)
	return ok
}

// RemainingRequests is not tracked cheaply by this backend and always
// returns RemainingUnknown.
func (l *MongoLimiter) RemainingRequests(context.Context, string) int {
	return RemainingUnknown
}

func (l *MongoLimiter) failOpen(identifier string, err error) {
	l.log.Warn().
		Err(err).
		Str("identifier", identifier).
		Msg("rate limit check failed, admitting request")
}
