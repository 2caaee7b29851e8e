package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/google/uuid"
)

func TestValidTransitionForwardPath(t *testing.T) {
	assert.True(t, ValidTransition(StatusPending, StatusGenerating))
	assert.True(t, ValidTransition(StatusGenerating, StatusGenerated))
	assert.True(t, ValidTransition(StatusGenerated, StatusDelivering))
	assert.True(t, ValidTransition(StatusDelivering, StatusCompleted))
	// Download delivery completes straight from generated.
	assert.True(t, ValidTransition(StatusGenerated, StatusCompleted))
}

func TestValidTransitionCompletedOnlyFromGeneratedOrDelivering(t *testing.T) {
	assert.False(t, ValidTransition(StatusPending, StatusCompleted))
	assert.False(t, ValidTransition(StatusGenerating, StatusCompleted))
	assert.False(t, ValidTransition(StatusFailed, StatusCompleted))
	assert.False(t, ValidTransition(StatusCompleted, StatusCompleted))
}

func TestValidTransitionNoSkippingOrBackwards(t *testing.T) {
	assert.False(t, ValidTransition(StatusPending, StatusGenerated))
	assert.False(t, ValidTransition(StatusPending, StatusDelivering))
	assert.False(t, ValidTransition(StatusGenerated, StatusGenerating))
	assert.False(t, ValidTransition(StatusDelivering, StatusPending))
}

func TestValidTransitionFailedFromAnyNonTerminal(t *testing.T) {
	for _, from := range []GenerationStatus{StatusPending, StatusGenerating, StatusGenerated, StatusDelivering} {
		assert.True(t, ValidTransition(from, StatusFailed), "from %s", from)
	}
	assert.False(t, ValidTransition(StatusCompleted, StatusFailed))
	assert.False(t, ValidTransition(StatusFailed, StatusFailed))
}

func TestTerminal(t *testing.T) {
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusFailed.Terminal())
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusDelivering.Terminal())
}

func TestInFlight(t *testing.T) {
	assert.True(t, StatusPending.InFlight())
	assert.True(t, StatusGenerating.InFlight())
	assert.True(t, StatusDelivering.InFlight())
	assert.False(t, StatusGenerated.InFlight())
	assert.False(t, StatusCompleted.InFlight())
	assert.False(t, StatusFailed.InFlight())
}

func TestNewGenerationStartsPending(t *testing.T) {
	gen := NewGeneration(uuid.New())

	assert.Equal(t, StatusPending, gen.Status)
	assert.NotEqual(t, uuid.Nil, gen.ID)
	assert.Nil(t, gen.Duration())
}

func TestDuration(t *testing.T) {
	gen := NewGeneration(uuid.New())
	completed := gen.StartedAt.Add(42 * time.Second)
	gen.CompletedAt = &completed

	d := gen.Duration()
	assert.NotNil(t, d)
	assert.Equal(t, 42*time.Second, *d)
}
