package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisJobStore keeps jobs in the hash "<prefix>jobs" and schedules pending
// ones in the sorted set "<prefix>due", scored by next attempt time in epoch
// milliseconds. Removing a member from the sorted set is the claim.
type RedisJobStore struct {
	client *redis.Client
	jobs   string
	due    string
}

// NewRedisJobStore creates a RedisJobStore.
func NewRedisJobStore(client *redis.Client, prefix string) *RedisJobStore {
	if prefix == "" {
		prefix = "activitygate:"
	}
	return &RedisJobStore{client: client, jobs: prefix + "jobs", due: prefix + "due"}
}

func score(t time.Time) float64 {
	return float64(t.UnixMilli())
}

func (r *RedisJobStore) write(ctx context.Context, job Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job %s: %w", job.ID, err)
	}
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, r.jobs, job.ID, data)
		if job.State == StatePending {
			pipe.ZAdd(ctx, r.due, redis.Z{Score: score(job.NextAttemptAt), Member: job.ID})
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis write job %s: %w", job.ID, err)
	}
	return nil
}

func (r *RedisJobStore) Add(ctx context.Context, job Job) error {
	return r.write(ctx, job)
}

func (r *RedisJobStore) Claim(ctx context.Context, now time.Time, limit int) ([]Job, error) {
	ids, err := r.client.ZRangeByScore(ctx, r.due, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.UnixMilli(), 10),
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("redis zrangebyscore %s: %w", r.due, err)
	}

	claimed := make([]Job, 0, len(ids))
	for _, id := range ids {
		removed, err := r.client.ZRem(ctx, r.due, id).Result()
		if err != nil {
			return claimed, fmt.Errorf("redis zrem %s: %w", id, err)
		}
		if removed == 0 {
			continue // another worker claimed it
		}

		raw, err := r.client.HGet(ctx, r.jobs, id).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return claimed, fmt.Errorf("redis hget job %s: %w", id, err)
		}
		var job Job
		if err := json.Unmarshal([]byte(raw), &job); err != nil {
			r.client.HDel(ctx, r.jobs, id)
			continue
		}

		job.State = StateRunning
		if err := r.write(ctx, job); err != nil {
			return claimed, err
		}
		claimed = append(claimed, job)
	}
	return claimed, nil
}

func (r *RedisJobStore) Update(ctx context.Context, job Job) error {
	exists, err := r.client.HExists(ctx, r.jobs, job.ID).Result()
	if err != nil {
		return fmt.Errorf("redis hexists job %s: %w", job.ID, err)
	}
	if !exists {
		return ErrJobNotFound
	}
	return r.write(ctx, job)
}

func (r *RedisJobStore) Delete(ctx context.Context, id string) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HDel(ctx, r.jobs, id)
		pipe.ZRem(ctx, r.due, id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis delete job %s: %w", id, err)
	}
	return nil
}

func (r *RedisJobStore) Recover(ctx context.Context, now time.Time) (int, error) {
	all, err := r.client.HGetAll(ctx, r.jobs).Result()
	if err != nil {
		return 0, fmt.Errorf("redis hgetall %s: %w", r.jobs, err)
	}
	n := 0
	for _, raw := range all {
		var job Job
		if err := json.Unmarshal([]byte(raw), &job); err != nil || job.State != StateRunning {
			continue
		}
		job.State = StatePending
		job.NextAttemptAt = now
		if err := r.write(ctx, job); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

func (r *RedisJobStore) Len(ctx context.Context) (int, error) {
	n, err := r.client.HLen(ctx, r.jobs).Result()
	if err != nil {
		return 0, fmt.Errorf("redis hlen %s: %w", r.jobs, err)
	}
	return int(n), nil
}
