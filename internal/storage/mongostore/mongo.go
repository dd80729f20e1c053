// Package mongostore is the document-database storage.Storage. Read receipts
// and per-user deletions are embedded in the message document.
package mongostore

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	defaultMaxPoolSize = 100
	defaultMaxRetry    = 3
	defaultTimeout     = 10 * time.Second
)

// Config represents the MongoDB configuration.
type Config struct {
	URI         string
	Database    string
	MaxPoolSize uint64
	MaxRetry    int
	Timeout     time.Duration
}

func (c *Config) validateAndSetDefaults() error {
	if c.URI == "" {
		return errors.New("mongo uri is required")
	}
	if c.Database == "" {
		return errors.New("mongo database is required")
	}
	if c.MaxPoolSize == 0 {
		c.MaxPoolSize = defaultMaxPoolSize
	}
	if c.MaxRetry <= 0 {
		c.MaxRetry = defaultMaxRetry
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	return nil
}

// Connect dials and pings MongoDB, retrying transient failures.
func Connect(ctx context.Context, cfg Config) (*mongo.Client, error) {
	if err := cfg.validateAndSetDefaults(); err != nil {
		return nil, err
	}
	opts := options.Client().
		ApplyURI(cfg.URI).
		SetMaxPoolSize(cfg.MaxPoolSize).
		SetServerSelectionTimeout(cfg.Timeout)

	var (
		cli *mongo.Client
		err error
	)
	for i := 0; i < cfg.MaxRetry; i++ {
		cli, err = connectMongo(ctx, opts)
		if err == nil || ctx.Err() != nil {
			break
		}
		time.Sleep(time.Second / 2)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to connect to MongoDB at %s", cfg.URI)
	}
	return cli, nil
}

func connectMongo(ctx context.Context, opts *options.ClientOptions) (*mongo.Client, error) {
	cli, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, err
	}
	if err := cli.Ping(ctx, readpref.Primary()); err != nil {
		_ = cli.Disconnect(context.Background())
		return nil, err
	}
	return cli, nil
}
