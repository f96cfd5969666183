// Copyright 2025 Antfly, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package sentiment

import (
	"context"
	"encoding/binary"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/jellydator/ttlcache/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/faiz-oussama/Darija-sentiment-analysis/pkg/sentiment/lib/pipelines"
)

// PredictionCacheTTL is the default TTL for cached predictions
const PredictionCacheTTL = 2 * time.Minute

const cacheStatsInterval = 30 * time.Second

// Predictor classifies a single text.
// *pipelines.SentimentPipeline and *CachedPredictor implement it.
type Predictor interface {
	Run(ctx context.Context, text string) (*pipelines.SentimentResult, error)
	Info() pipelines.Info
	Close() error
}

// CachedPredictor wraps a predictor with a TTL cache keyed by the input text.
// Concurrent requests for the same text share one forward pass.
type CachedPredictor struct {
	predictor Predictor
	cache     *ttlcache.Cache[string, pipelines.SentimentResult]
	sfGroup   *singleflight.Group
	logger    *zap.Logger
	cancel    context.CancelFunc

	// Metrics
	hits   atomic.Uint64
	misses atomic.Uint64
	sfHits atomic.Uint64
}

// NewCachedPredictor starts the cache janitor and the stats logger.
// Call Close to stop them.
func NewCachedPredictor(predictor Predictor, ttl time.Duration, logger *zap.Logger) *CachedPredictor {
	if ttl <= 0 {
		ttl = PredictionCacheTTL
	}
	cache := ttlcache.New(
		ttlcache.WithTTL[string, pipelines.SentimentResult](ttl),
	)
	go cache.Start()

	ctx, cancel := context.WithCancel(context.Background())
	cp := &CachedPredictor{
		predictor: predictor,
		cache:     cache,
		sfGroup:   &singleflight.Group{},
		logger:    logger,
		cancel:    cancel,
	}

	go cp.logStats(ctx, cacheStatsInterval)

	return cp
}

// Run returns the cached result for text or computes and caches it.
// Errors are not cached.
func (c *CachedPredictor) Run(ctx context.Context, text string) (*pipelines.SentimentResult, error) {
	key := cacheKey(text)

	if item := c.cache.Get(key); item != nil {
		c.hits.Add(1)
		RecordCacheHit("prediction")
		result := item.Value()
		return &result, nil
	}

	// The forward pass is shared by every caller waiting on key, so it must
	// outlive any one caller's request.
	ch := c.sfGroup.DoChan(key, func() (any, error) {
		c.misses.Add(1)
		RecordCacheMiss("prediction")

		start := time.Now()
		result, err := c.predictor.Run(context.WithoutCancel(ctx), text)
		if err != nil {
			return nil, err
		}
		c.cache.Set(key, *result, ttlcache.DefaultTTL)

		c.logger.Debug("Prediction computed and cached",
			zap.Int("prediction", result.Prediction),
			zap.Duration("duration", time.Since(start)))
		return *result, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			c.sfHits.Add(1)
			c.logger.Debug("Singleflight hit for prediction request")
		}
		result := res.Val.(pipelines.SentimentResult)
		return &result, nil
	}
}

// cacheKey hashes the text into a fixed 8-byte key.
func cacheKey(text string) string {
	h := xxhash.New()
	_, _ = h.WriteString(text)

	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], h.Sum64())
	return string(buf[:])
}

// Info returns the wrapped predictor's info.
func (c *CachedPredictor) Info() pipelines.Info {
	return c.predictor.Info()
}

// Close stops the cache and closes the wrapped predictor.
func (c *CachedPredictor) Close() error {
	c.cancel()
	c.cache.Stop()
	return c.predictor.Close()
}

// PredictionCacheStats holds cache statistics.
type PredictionCacheStats struct {
	Hits             uint64 `json:"hits"`
	Misses           uint64 `json:"misses"`
	SingleflightHits uint64 `json:"singleflight_hits"`
	Items            int    `json:"items"`
}

// Stats returns cache statistics.
func (c *CachedPredictor) Stats() PredictionCacheStats {
	return PredictionCacheStats{
		Hits:             c.hits.Load(),
		Misses:           c.misses.Load(),
		SingleflightHits: c.sfHits.Load(),
		Items:            c.cache.Len(),
	}
}

func (c *CachedPredictor) logStats(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := c.Stats()
			total := stats.Hits + stats.Misses
			if total == 0 {
				continue
			}
			c.logger.Info("Prediction cache stats",
				zap.Uint64("hits", stats.Hits),
				zap.Uint64("misses", stats.Misses),
				zap.Float64("hit_rate_pct", float64(stats.Hits)/float64(total)*100),
				zap.Int("items", stats.Items))
		}
	}
}
