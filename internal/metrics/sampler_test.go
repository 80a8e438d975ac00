package metrics

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hostbill/internal/model"
	"hostbill/internal/provider"
)

type fakeSampleStore struct {
	inserted []model.MetricSample
	history  []model.MetricSample
	lastLim  int
}

func (f *fakeSampleStore) Insert(ctx context.Context, s *model.MetricSample) error {
	s.ID = int64(len(f.inserted) + 1)
	f.inserted = append(f.inserted, *s)
	return nil
}

func (f *fakeSampleStore) History(ctx context.Context, serverID uuid.UUID, limit int) ([]model.MetricSample, error) {
	f.lastLim = limit
	if limit < len(f.history) {
		return f.history[:limit], nil
	}
	return f.history, nil
}

type fakeCompute struct {
	snap    *provider.UsageSnapshot
	err     error
	fetches int
}

func (f *fakeCompute) CreateServer(ctx context.Context, req provider.CreateServerRequest) (*provider.Instance, error) {
	return nil, errors.New("not implemented")
}
func (f *fakeCompute) DestroyServer(ctx context.Context, providerID string) error { return nil }
func (f *fakeCompute) ResizeServer(ctx context.Context, providerID, sizeSlug string) error {
	return nil
}
func (f *fakeCompute) FetchUsage(ctx context.Context, providerID string) (*provider.UsageSnapshot, error) {
	f.fetches++
	return f.snap, f.err
}

func TestLatestFetchesAndPersists(t *testing.T) {
	store := &fakeSampleStore{}
	compute := &fakeCompute{snap: &provider.UsageSnapshot{
		CPUPct:      42.5,
		NetInBytes:  1024,
		NetOutBytes: 2048,
	}}
	// nil redis client: every read goes through to the provider.
	s := NewSampler(nil, store, compute, zerolog.Nop())

	server := testServer()
	sample, err := s.Latest(context.Background(), server)
	require.NoError(t, err)

	assert.Equal(t, 1, compute.fetches)
	assert.Equal(t, server.ID, sample.ServerID)
	assert.InDelta(t, 42.5, sample.CPUPct, 1e-9)
	assert.Equal(t, int64(1024), sample.NetInBytes)
	assert.Len(t, store.inserted, 1)
	assert.False(t, sample.SampledAt.IsZero())
}

func TestLatestProviderFailure(t *testing.T) {
	store := &fakeSampleStore{}
	compute := &fakeCompute{err: errors.New("dial tcp: connection refused")}
	s := NewSampler(nil, store, compute, zerolog.Nop())

	_, err := s.Latest(context.Background(), testServer())
	assert.ErrorIs(t, err, model.ErrMetricFetch)
	assert.Empty(t, store.inserted)
}

func TestHistoryDefaultsLimit(t *testing.T) {
	store := &fakeSampleStore{history: make([]model.MetricSample, 50)}
	s := NewSampler(nil, store, &fakeCompute{}, zerolog.Nop())

	samples, err := s.History(context.Background(), uuid.New(), 0)
	require.NoError(t, err)
	assert.Len(t, samples, DefaultHistoryLimit)
	assert.Equal(t, DefaultHistoryLimit, store.lastLim)

	samples, err = s.History(context.Background(), uuid.New(), 5)
	require.NoError(t, err)
	assert.Len(t, samples, 5)
}
