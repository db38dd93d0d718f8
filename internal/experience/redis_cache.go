package experience

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"quotrading/config"
)

// Redis keys for the shared experience view.
const (
	keyExperiences     = "quotrading:experiences"
	keyExitExperiences = "quotrading:exit_experiences"
)

// SharedCache is the consumer side of a cloud-hosted experience store shared
// by multiple trading instances. It refreshes local Store/ExitStore snapshots
// from Redis on a fixed interval; the core never reads Redis on the decision
// path, so a Redis outage degrades to a stale-but-consistent local view.
type SharedCache struct {
	client   *redis.Client
	interval time.Duration
	logger   zerolog.Logger
}

// NewSharedCache connects to Redis. A failed initial ping is not fatal: the
// cache starts in degraded mode and recovers on a later refresh.
func NewSharedCache(cfg config.RedisConfig, logger zerolog.Logger) *SharedCache {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	return &SharedCache{
		client:   client,
		interval: cfg.RefreshInterval,
		logger:   logger.With().Str("component", "SharedCache").Logger(),
	}
}

// Close releases the Redis connection.
func (c *SharedCache) Close() error {
	return c.client.Close()
}

// Refresh replaces the local stores with the current shared state.
func (c *SharedCache) Refresh(ctx context.Context, store *Store, exitStore *ExitStore) error {
	experiences, err := c.loadExperiences(ctx)
	if err != nil {
		return err
	}
	exits, err := c.loadExitExperiences(ctx)
	if err != nil {
		return err
	}

	store.Replace(experiences)
	exitStore.Replace(exits)
	return nil
}

// Run refreshes the local stores on the configured interval until the
// context is cancelled. Refresh failures are logged and retried on the next
// tick; the local snapshot stays serving.
func (c *SharedCache) Run(ctx context.Context, store *Store, exitStore *ExitStore) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.Refresh(ctx, store, exitStore); err != nil {
				c.logger.Warn().Err(err).Msg("Shared experience refresh failed; keeping local snapshot")
				continue
			}
			c.logger.Debug().
				Int("experiences", store.Len()).
				Int("exit_experiences", exitStore.Len()).
				Msg("Shared experience view refreshed")
		}
	}
}

// Publish appends records to the shared store so other instances pick them
// up on their next refresh.
func (c *SharedCache) Publish(ctx context.Context, e Experience) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to encode experience: %w", err)
	}
	if err := c.client.RPush(ctx, keyExperiences, data).Err(); err != nil {
		return fmt.Errorf("failed to publish experience: %w", err)
	}
	return nil
}

// PublishExit appends an exit record to the shared store.
func (c *SharedCache) PublishExit(ctx context.Context, e ExitExperience) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to encode exit experience: %w", err)
	}
	if err := c.client.RPush(ctx, keyExitExperiences, data).Err(); err != nil {
		return fmt.Errorf("failed to publish exit experience: %w", err)
	}
	return nil
}

func (c *SharedCache) loadExperiences(ctx context.Context) ([]Experience, error) {
	raw, err := c.client.LRange(ctx, keyExperiences, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read shared experiences: %w", err)
	}

	experiences := make([]Experience, 0, len(raw))
	for _, item := range raw {
		var e Experience
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			// A single corrupt record must not poison the whole view.
			c.logger.Warn().Err(err).Msg("Skipping undecodable shared experience record")
			continue
		}
		experiences = append(experiences, e)
	}
	return experiences, nil
}

func (c *SharedCache) loadExitExperiences(ctx context.Context) ([]ExitExperience, error) {
	raw, err := c.client.LRange(ctx, keyExitExperiences, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read shared exit experiences: %w", err)
	}

	records := make([]ExitExperience, 0, len(raw))
	for _, item := range raw {
		var e ExitExperience
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			c.logger.Warn().Err(err).Msg("Skipping undecodable shared exit experience record")
			continue
		}
		records = append(records, e)
	}
	return records, nil
}
