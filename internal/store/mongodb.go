package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/imrishuroy/go-workorder-sync/internal/retry"
	"github.com/imrishuroy/go-workorder-sync/internal/workorders"
)

// MongoConfig locates the work order collection.
type MongoConfig struct {
	URI        string
	Database   string
	Collection string
	// Timeout applies to connect, socket and server selection.
	Timeout time.Duration
}

// MongoStore keeps work orders in a MongoDB collection. The client is
// connected on first use and dropped by Close; a later call reconnects.
// Close waits for operations already holding the connection.
type MongoStore struct {
	cfg     MongoConfig
	retry   retry.Policy
	log     logrus.FieldLogger
	nowFunc func() time.Time
	dial    func(ctx context.Context) (*mongoConn, error)

	ops  sync.RWMutex
	mu   sync.Mutex
	conn *mongoConn
}

// mongoCollection is the part of *mongo.Collection the store uses.
type mongoCollection interface {
	Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (*mongo.Cursor, error)
	UpdateOne(ctx context.Context, filter, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error)
	FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) *mongo.SingleResult
}

type mongoConn struct {
	coll       mongoCollection
	ping       func(ctx context.Context) error
	disconnect func(ctx context.Context) error
}

// NewMongoStore creates a MongoDB-backed Store without connecting.
func NewMongoStore(cfg MongoConfig, policy retry.Policy, log logrus.FieldLogger) *MongoStore {
	if policy.IsTransient == nil {
		policy.IsTransient = IsTransientMongo
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	s := &MongoStore{
		cfg:     cfg,
		retry:   withRetryLogging(policy, log, BackendMongoDB),
		log:     log,
		nowFunc: time.Now,
	}
	s.dial = s.connect
	return s
}

func (s *MongoStore) connect(ctx context.Context) (*mongoConn, error) {
	opts := options.Client().ApplyURI(s.cfg.URI)
	if s.cfg.Timeout > 0 {
		opts.SetConnectTimeout(s.cfg.Timeout).
			SetSocketTimeout(s.cfg.Timeout).
			SetServerSelectionTimeout(s.cfg.Timeout)
	}
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("connect mongodb: %w", err)
	}
	coll := client.Database(s.cfg.Database).Collection(s.cfg.Collection)

	_, err = coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "number", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("number_unique"),
	})
	if err != nil {
		// the store stays usable without the index; lookups are just slower
		s.log.WithError(err).Warn("could not ensure unique index on number")
	}

	s.log.WithFields(logrus.Fields{
		"database":   s.cfg.Database,
		"collection": s.cfg.Collection,
	}).Debug("connected to mongodb")
	return &mongoConn{
		coll:       coll,
		ping:       func(ctx context.Context) error { return client.Ping(ctx, readpref.Primary()) },
		disconnect: client.Disconnect,
	}, nil
}

// withConn runs fn against the live connection, dialing when there is none.
// Close blocks until fn returns.
func (s *MongoStore) withConn(ctx context.Context, fn func(c *mongoConn) error) error {
	s.ops.RLock()
	defer s.ops.RUnlock()

	s.mu.Lock()
	conn := s.conn
	if conn == nil {
		var err error
		conn, err = s.dial(ctx)
		if err != nil {
			s.mu.Unlock()
			return err
		}
		s.conn = conn
	}
	s.mu.Unlock()

	err := fn(conn)
	if errors.Is(err, mongo.ErrClientDisconnected) {
		// let the next attempt dial a fresh client
		s.mu.Lock()
		if s.conn == conn {
			s.conn = nil
		}
		s.mu.Unlock()
	}
	return err
}

func unsyncedFilter() bson.M {
	return bson.M{"isSynced": bson.M{"$ne": true}}
}

func numberOrder() bson.D {
	return bson.D{{Key: "number", Value: 1}}
}

// upsertUpdate replaces every stored field of wo and marks it dirty.
func upsertUpdate(wo workorders.WorkOrder, now time.Time) bson.M {
	set := bson.M{
		"number":      wo.Number,
		"title":       wo.Title,
		"description": wo.Description,
		"status":      wo.Status,
		"createdAt":   wo.CreatedAt,
		"updatedAt":   now,
		"deleted":     wo.Deleted,
		"isSynced":    false,
	}
	unset := bson.M{"syncedAt": ""}
	if wo.DeletedAt != nil {
		set["deletedAt"] = *wo.DeletedAt
	} else {
		unset["deletedAt"] = ""
	}
	return bson.M{"$set": set, "$unset": unset}
}

func markSyncedUpdate(now time.Time) bson.M {
	return bson.M{"$set": bson.M{"isSynced": true, "syncedAt": now}}
}

func (s *MongoStore) ReadUnsynced(ctx context.Context) ([]workorders.WorkOrder, error) {
	return retryValue(ctx, s.retry, "read unsynced", func(ctx context.Context) ([]workorders.WorkOrder, error) {
		var out []workorders.WorkOrder
		err := s.withConn(ctx, func(c *mongoConn) error {
			cur, err := c.coll.Find(ctx, unsyncedFilter(), options.Find().SetSort(numberOrder()))
			if err != nil {
				return err
			}
			return cur.All(ctx, &out)
		})
		if err != nil {
			return nil, err
		}
		return out, nil
	})
}

func (s *MongoStore) Upsert(ctx context.Context, wo workorders.WorkOrder) error {
	if wo.Number == 0 {
		return &PermanentError{Op: "upsert", Err: ErrMissingNumber}
	}
	update := upsertUpdate(wo, s.nowFunc())

	return run(ctx, s.retry, "upsert", func(ctx context.Context) error {
		return s.withConn(ctx, func(c *mongoConn) error {
			_, err := c.coll.UpdateOne(ctx, bson.M{"number": wo.Number}, update, options.Update().SetUpsert(true))
			return err
		})
	})
}

func (s *MongoStore) MarkSynced(ctx context.Context, number int64) (bool, error) {
	update := markSyncedUpdate(s.nowFunc())
	return retryValue(ctx, s.retry, "mark synced", func(ctx context.Context) (bool, error) {
		var matched bool
		err := s.withConn(ctx, func(c *mongoConn) error {
			res, err := c.coll.UpdateOne(ctx, bson.M{"number": number}, update)
			if err != nil {
				return err
			}
			matched = res.MatchedCount > 0
			return nil
		})
		return matched, err
	})
}

func (s *MongoStore) Get(ctx context.Context, number int64) (*workorders.WorkOrder, error) {
	return retryValue(ctx, s.retry, "get", func(ctx context.Context) (*workorders.WorkOrder, error) {
		var wo *workorders.WorkOrder
		err := s.withConn(ctx, func(c *mongoConn) error {
			var found workorders.WorkOrder
			err := c.coll.FindOne(ctx, bson.M{"number": number}).Decode(&found)
			if errors.Is(err, mongo.ErrNoDocuments) {
				return nil
			}
			if err != nil {
				return err
			}
			wo = &found
			return nil
		})
		if err != nil {
			return nil, err
		}
		return wo, nil
	})
}

// HealthCheck pings the primary.
func (s *MongoStore) HealthCheck(ctx context.Context) error {
	return run(ctx, s.retry, "health check", func(ctx context.Context) error {
		return s.withConn(ctx, func(c *mongoConn) error {
			return c.ping(ctx)
		})
	})
}

// Close waits for in-flight operations, then disconnects the client if one
// was opened.
func (s *MongoStore) Close(ctx context.Context) error {
	s.ops.Lock()
	defer s.ops.Unlock()

	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()

	if conn == nil {
		return nil
	}
	if err := conn.disconnect(ctx); err != nil {
		return fmt.Errorf("disconnect mongodb: %w", err)
	}
	return nil
}

// server error codes that indicate a failover or an interrupted operation
var transientMongoCodes = []int{6, 7, 50, 64, 89, 91, 189, 262, 9001, 10107, 11600, 11602, 13435, 13436}

// IsTransientMongo classifies network, timeout and failover errors as retryable.
func IsTransientMongo(err error) bool {
	if err == nil {
		return false
	}
	if mongo.IsTimeout(err) || mongo.IsNetworkError(err) || errors.Is(err, mongo.ErrClientDisconnected) {
		return true
	}
	var se mongo.ServerError
	if errors.As(err, &se) {
		if se.HasErrorLabel("RetryableWriteError") || se.HasErrorLabel("TransientTransactionError") {
			return true
		}
		for _, code := range transientMongoCodes {
			if se.HasErrorCode(code) {
				return true
			}
		}
		return false
	}
	return isNetworkFault(err)
}
