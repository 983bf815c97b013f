package gateway

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestCustomTimeGateway(t *testing.T) {
	t.Parallel()

	start := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	clock := NewCustomTimeGateway(start)
	require.Equal(t, start, clock.Now())

	clock.Advance(time.Minute)
	require.Equal(t, start.Add(time.Minute), clock.Now())

	later := start.Add(24 * time.Hour)
	clock.SetNextDate(later)
	require.Equal(t, later, clock.Now())
}

func TestRealTimeGateway_IsUTC(t *testing.T) {
	t.Parallel()

	require.Equal(t, time.UTC, NewRealTimeGateway().Now().Location())
}

func TestSequentialUUIDGenerator(t *testing.T) {
	t.Parallel()

	generator := NewSequentialUUIDGenerator()
	first := generator.New()
	second := generator.New()

	require.NotEqual(t, first, second)
	_, err := uuid.Parse(first)
	require.NoError(t, err)
	require.Equal(t, "00000000-0000-4000-8000-000000000002", second)
}

func TestRandomUUIDGenerator(t *testing.T) {
	t.Parallel()

	id := NewRandomUUIDGenerator().New()
	_, err := uuid.Parse(id)
	require.NoError(t, err)
}
