// Package rulestore persists forwarding rules on top of a flat key/value store.
package rulestore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog"

	"github.com/TimurManjosov/activitygate/internal/rules"
	"github.com/TimurManjosov/activitygate/internal/store"
)

var (
	// ErrRuleNotFound is returned by Get for unknown keys.
	ErrRuleNotFound = errors.New("rule not found")
	// ErrStoreWrite wraps failures writing to the backing store.
	ErrStoreWrite = errors.New("rule store write failed")
)

// lockStripes bounds the per-key lock table.
const lockStripes = 64

// Store loads and saves Rules. Saves and removes of the same key are
// serialized; reads go straight to the backing store and see either the
// previous or the next complete record.
type Store struct {
	kv    store.Store
	codec Codec
	log   zerolog.Logger
	now   func() time.Time
	locks [lockStripes]sync.Mutex
}

// New creates a rule store over kv. appName feeds default headers.
func New(kv store.Store, appName string, log zerolog.Logger) *Store {
	return &Store{
		kv:    kv,
		codec: Codec{AppName: appName},
		log:   log.With().Str("component", "rulestore").Logger(),
		now:   time.Now,
	}
}

func (s *Store) lockFor(key string) *sync.Mutex {
	return &s.locks[xxhash.Sum64String(key)%lockStripes]
}

// GetAll returns every decodable rule, ordered by key. Records that cannot be
// decoded are logged and skipped; only a failure to list the backing store
// is returned as an error.
func (s *Store) GetAll(ctx context.Context) ([]rules.Rule, error) {
	values, err := s.kv.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}

	result := make([]rules.Rule, 0, len(values))
	for mapKey, value := range values {
		r, err := s.codec.Decode(mapKey, value)
		if err != nil {
			s.log.Warn().Err(err).Str("rule_key", mapKey).Msg("skipping unreadable rule record")
			continue
		}
		result = append(result, r)
	}

	sort.Slice(result, func(i, j int) bool { return result[i].Key < result[j].Key })
	return result, nil
}

// Get returns the rule stored under key.
func (s *Store) Get(ctx context.Context, key string) (rules.Rule, error) {
	value, err := s.kv.Get(ctx, key)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return rules.Rule{}, fmt.Errorf("%w: %s", ErrRuleNotFound, key)
		}
		return rules.Rule{}, fmt.Errorf("get rule %s: %w", key, err)
	}
	return s.codec.Decode(key, value)
}

// Save validates r, assigns a key if it has none and writes the full record.
// The saved rule (with its key) is returned.
func (s *Store) Save(ctx context.Context, r rules.Rule) (rules.Rule, error) {
	if r.Key == "" {
		r.Key = rules.GenerateKey(s.now())
	}
	if err := rules.Validate(r); err != nil {
		return rules.Rule{}, err
	}

	value, err := s.codec.Encode(r)
	if err != nil {
		return rules.Rule{}, err
	}

	mu := s.lockFor(r.Key)
	mu.Lock()
	defer mu.Unlock()

	if err := s.kv.Put(ctx, r.Key, value); err != nil {
		return rules.Rule{}, fmt.Errorf("%w: %s: %v", ErrStoreWrite, r.Key, err)
	}
	s.log.Info().Str("rule_key", r.Key).Str("activity_type", string(r.ActivityType)).Msg("rule saved")
	return r, nil
}

// Update applies fn to the stored rule under key and saves the result while
// holding the key's lock, so concurrent updates do not lose writes.
func (s *Store) Update(ctx context.Context, key string, fn func(*rules.Rule)) (rules.Rule, error) {
	mu := s.lockFor(key)
	mu.Lock()
	defer mu.Unlock()

	r, err := s.Get(ctx, key)
	if err != nil {
		return rules.Rule{}, err
	}
	fn(&r)
	r.Key = key

	if err := rules.Validate(r); err != nil {
		return rules.Rule{}, err
	}
	value, err := s.codec.Encode(r)
	if err != nil {
		return rules.Rule{}, err
	}
	if err := s.kv.Put(ctx, key, value); err != nil {
		return rules.Rule{}, fmt.Errorf("%w: %s: %v", ErrStoreWrite, key, err)
	}
	return r, nil
}

// Remove deletes the rule under key. Removing a missing key is not an error.
// Jobs already enqueued for the rule are not affected.
func (s *Store) Remove(ctx context.Context, key string) error {
	mu := s.lockFor(key)
	mu.Lock()
	defer mu.Unlock()

	if err := s.kv.Delete(ctx, key); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrStoreWrite, key, err)
	}
	s.log.Info().Str("rule_key", key).Msg("rule removed")
	return nil
}
