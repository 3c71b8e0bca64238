package store

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	mydb "github.com/TimurManjosov/activitygate/internal/db"
)

// Options selects and configures a Store backend.
type Options struct {
	Type        string // memory, file, postgres, redis, nats
	DatabaseDSN string
	FilePath    string
	Redis       *redis.Client
	RedisPrefix string
	NATSURL     string
	NATSBucket  string
	Logger      zerolog.Logger
}

// NewStore creates a new store based on opts.Type.
// Supported types: "memory", "file", "postgres", "redis", "nats"
func NewStore(ctx context.Context, opts Options) (Store, error) {
	switch opts.Type {
	case "memory":
		return NewMemoryStore(), nil
	case "file":
		return NewFileStore(opts.FilePath, opts.Logger)
	case "postgres":
		pool, err := mydb.NewPool(ctx, opts.DatabaseDSN)
		if err != nil {
			return nil, fmt.Errorf("failed to create postgres pool: %w", err)
		}
		s := NewPostgresStore(pool)
		if err := s.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, err
		}
		return s, nil
	case "redis":
		if opts.Redis == nil {
			return nil, fmt.Errorf("redis store requires a redis client")
		}
		return NewRedisStore(opts.Redis, opts.RedisPrefix), nil
	case "nats":
		return NewNATSStore(ctx, opts.NATSURL, opts.NATSBucket)
	default:
		return nil, fmt.Errorf("unsupported store type: %s", opts.Type)
	}
}
