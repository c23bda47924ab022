package monitor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTripRecordsFirstCauseOnly(t *testing.T) {
	m := New(context.Background())
	defer m.Close()

	first := errors.New("first failure")
	second := errors.New("second failure")

	m.Trip(first)
	m.Trip(second)

	assert.True(t, m.Tripped())
	assert.Equal(t, first, m.Cause())
}

func TestContextCancelledOnTrip(t *testing.T) {
	m := New(context.Background())
	defer m.Close()

	m.Trip(errors.New("boom"))

	select {
	case <-m.Context().Done():
	case <-time.After(time.Second):
		t.Fatal("context was not cancelled")
	}
}

func TestParentCancellationTripsMonitor(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	m := New(parent)
	defer m.Close()

	cancel()

	require.Eventually(t, m.Tripped, time.Second, time.Millisecond)
	assert.Nil(t, m.Cause())
}

func TestCloseDoesNotRecordCause(t *testing.T) {
	m := New(context.Background())
	m.Close()
	assert.Nil(t, m.Cause())
}
