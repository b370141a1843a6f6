package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tripengine/internal/config"
	"tripengine/internal/modules/trip"
)

func TestEventKeys(t *testing.T) {
	e := NewEvent(EventTripAccepted, "w1", time.Unix(0, 0))
	assert.Equal(t, "trip.accepted", e.RoutingKey())
	assert.Equal(t, []byte("w1"), e.Key())

	e.Kind = trip.KindFood
	e.TripID = "f1"
	assert.Equal(t, "trip.accepted.food", e.RoutingKey())
	assert.Equal(t, []byte("food/f1"), e.Key())
	assert.NotEmpty(t, e.ID)
}

func TestEventJSONShape(t *testing.T) {
	e := NewEvent(EventTripTransitioned, "w1", time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	e.TripID, e.Kind, e.Status = "t1", trip.KindTaxi, trip.StatusRiding

	data, err := json.Marshal(e)
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	assert.Equal(t, "trip.transitioned", m["type"])
	assert.Equal(t, "riding", m["status"])
	assert.Equal(t, "2026-01-02T03:04:05Z", m["at"])
}

func TestLogPublisher(t *testing.T) {
	var buf bytes.Buffer
	p := NewLogPublisher(slog.New(slog.NewJSONHandler(&buf, nil)))
	require.NoError(t, p.Publish(context.Background(), NewEvent(EventWorkerOnline, "w7", time.Now())))
	assert.Contains(t, buf.String(), `"worker_id":"w7"`)
	assert.Contains(t, buf.String(), `"component":"event_log"`)
}

func TestNewRejectsUnknownDriver(t *testing.T) {
	_, err := New(config.MessagingConfig{Driver: "smoke"}, slog.Default())
	assert.Error(t, err)

	_, err = New(config.MessagingConfig{Driver: "kafka"}, slog.Default())
	assert.Error(t, err)
}

func TestKafkaPublishDoesNotWaitForBroker(t *testing.T) {
	// Nothing listens on port 1, so a synchronous write would block until
	// its retries ran out.
	p, err := NewKafkaPublisher([]string{"127.0.0.1:1"}, "trips", slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { go p.Close() })

	start := time.Now()
	for i := 0; i < 5; i++ {
		require.NoError(t, p.Publish(context.Background(), NewEvent(EventTripTransitioned, "w1", time.Now())))
	}
	assert.Less(t, time.Since(start), time.Second)
}
