package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"hostbill/internal/model"
	"hostbill/internal/provider"
)

// FreshnessTTL is how long a cached sample stays authoritative before the
// next read goes back to the provider.
const FreshnessTTL = 5 * time.Minute

// DefaultHistoryLimit bounds history reads when the caller does not ask for a
// specific depth.
const DefaultHistoryLimit = 24

type SampleStore interface {
	Insert(ctx context.Context, s *model.MetricSample) error
	History(ctx context.Context, serverID uuid.UUID, limit int) ([]model.MetricSample, error)
}

// Sampler is a read-through cache over the provider's monitoring endpoint.
// A fresh sample is served from redis; a stale or missing one is fetched,
// persisted for aggregation, cached, and returned.
type Sampler struct {
	cache   *redis.Client
	store   SampleStore
	compute provider.Compute
	ttl     time.Duration
	log     zerolog.Logger
}

func NewSampler(cache *redis.Client, store SampleStore, compute provider.Compute, log zerolog.Logger) *Sampler {
	return &Sampler{
		cache:   cache,
		store:   store,
		compute: compute,
		ttl:     FreshnessTTL,
		log:     log.With().Str("component", "sampler").Logger(),
	}
}

func cacheKey(serverID uuid.UUID) string {
	return "metrics:latest:" + serverID.String()
}

// Latest returns the current sample for the server. There is no fallback to
// stale data: if the cache has expired and the provider is unreachable, the
// call fails with ErrMetricFetch.
func (s *Sampler) Latest(ctx context.Context, server *model.Server) (*model.MetricSample, error) {
	key := cacheKey(server.ID)

	if s.cache != nil {
		val, err := s.cache.Get(ctx, key).Bytes()
		if err == nil {
			var sample model.MetricSample
			if err := json.Unmarshal(val, &sample); err == nil {
				return &sample, nil
			}
			s.log.Warn().Str("server_id", server.ID.String()).Msg("discarding undecodable cached sample")
		} else if !errors.Is(err, redis.Nil) {
			s.log.Warn().Err(err).Msg("metric cache unavailable, fetching live")
		}
	}

	snap, err := s.compute.FetchUsage(ctx, server.ProviderID)
	if err != nil {
		if errors.Is(err, model.ErrMetricFetch) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", model.ErrMetricFetch, err)
	}

	sample := &model.MetricSample{
		ServerID:      server.ID,
		CPUPct:        snap.CPUPct,
		MemoryPct:     snap.MemoryPct,
		DiskPct:       snap.DiskPct,
		NetInBytes:    snap.NetInBytes,
		NetOutBytes:   snap.NetOutBytes,
		LoadOne:       snap.LoadOne,
		LoadFive:      snap.LoadFive,
		LoadFifteen:   snap.LoadFifteen,
		UptimeSeconds: snap.UptimeSeconds,
		SampledAt:     time.Now().UTC(),
	}
	if err := s.store.Insert(ctx, sample); err != nil {
		return nil, err
	}

	if s.cache != nil {
		if data, err := json.Marshal(sample); err == nil {
			if err := s.cache.Set(ctx, key, data, s.ttl).Err(); err != nil {
				s.log.Warn().Err(err).Msg("failed to cache sample")
			}
		}
	}

	return sample, nil
}

// History returns up to limit persisted samples, newest first.
func (s *Sampler) History(ctx context.Context, serverID uuid.UUID, limit int) ([]model.MetricSample, error) {
	if limit <= 0 || limit > 100 {
		limit = DefaultHistoryLimit
	}
	return s.store.History(ctx, serverID, limit)
}
