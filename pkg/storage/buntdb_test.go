package storage

import (
	"testing"
	"time"

	"github.com/raykavin/rsdash/pkg/core"
	"github.com/stretchr/testify/require"
)

func TestPayloadCache(t *testing.T) {
	cache, err := FromMemory(0)
	require.NoError(t, err)
	defer cache.Close()

	_, ok, err := cache.Get("2020")
	require.NoError(t, err)
	require.False(t, ok)

	payload := &core.Payload{
		WorldMap:       "<div>ndvi</div>",
		NDVICategories: []string{"2020-01"},
		NDVIValues:     []float64{0.42},
	}
	require.NoError(t, cache.Put("2020", payload))
	require.NoError(t, cache.Put("2019", &core.Payload{}))

	got, ok, err := cache.Get("2020")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, payload.WorldMap, got.WorldMap)
	require.Equal(t, payload.NDVIValues, got.NDVIValues)

	years, err := cache.Years()
	require.NoError(t, err)
	require.Equal(t, []string{"2019", "2020"}, years)

	require.NoError(t, cache.Invalidate())
	years, err = cache.Years()
	require.NoError(t, err)
	require.Empty(t, years)
}

func TestPayloadCache_TTL(t *testing.T) {
	cache, err := FromMemory(50 * time.Millisecond)
	require.NoError(t, err)
	defer cache.Close()

	require.NoError(t, cache.Put("2021", &core.Payload{WorldMap: "m"}))

	_, ok, err := cache.Get("2021")
	require.NoError(t, err)
	require.True(t, ok)

	require.Eventually(t, func() bool {
		_, ok, err := cache.Get("2021")
		return err == nil && !ok
	}, time.Second, 20*time.Millisecond)
}
