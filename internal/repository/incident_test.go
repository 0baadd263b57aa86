package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shenikar/outage_reports/internal/models"
	"github.com/shenikar/outage_reports/internal/observability"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "@power_outage_events"

// memoryKV - хранилище в памяти с возможностью подставить ошибки
type memoryKV struct {
	data   map[string][]byte
	getErr error
	setErr error
	sets   int
}

func newMemoryKV() *memoryKV {
	return &memoryKV{data: make(map[string][]byte)}
}

func (m *memoryKV) Get(_ context.Context, key string) ([]byte, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	val, ok := m.data[key]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), val...), nil
}

func (m *memoryKV) Set(_ context.Context, key string, value []byte) error {
	if m.setErr != nil {
		return m.setErr
	}
	m.sets++
	m.data[key] = append([]byte(nil), value...)
	return nil
}

func newTestRepository(t *testing.T) (*IncidentRepository, *memoryKV, *observability.Metrics) {
	t.Helper()
	kv := newMemoryKV()
	logger := logrus.New()
	logger.SetOutput(&bytes.Buffer{}) // Отключаем вывод логов в тестах
	metrics := observability.NewMetricsForTesting()
	clock := clockwork.NewFakeClockAt(time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC))

	repo := NewIncidentRepository(kv, testKey, clock, logger, metrics)
	return repo.(*IncidentRepository), kv, metrics
}

func sampleIncident(id string) models.Incident {
	return models.Incident{
		ID:   id,
		Date: "2024-05-10T12:00:00Z",
		Location: models.Location{
			Neighborhood: "Centro",
			City:         "Curitiba",
			ZipCode:      "80010000",
		},
		Duration: models.Duration{StartTime: "2024-05-10T12:00:00Z"},
		Damages: models.Damages{
			Description:    "Transformer blew",
			AffectedHouses: 3,
		},
		NaturalEvent: models.NaturalEvent{Type: models.NaturalEventRain, Description: "Heavy rain"},
	}
}

func TestReadAll_EmptyStore(t *testing.T) {
	repo, _, _ := newTestRepository(t)

	incidents, err := repo.ReadAll(context.Background())

	require.NoError(t, err)
	assert.NotNil(t, incidents)
	assert.Empty(t, incidents)
}

func TestUpsert_AppendsAndReplaces(t *testing.T) {
	repo, _, _ := newTestRepository(t)
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, sampleIncident("1")))
	require.NoError(t, repo.Upsert(ctx, sampleIncident("2")))

	changed := sampleIncident("1")
	changed.Damages.AffectedHouses = 5
	require.NoError(t, repo.Upsert(ctx, changed))

	incidents, err := repo.ReadAll(ctx)
	require.NoError(t, err)
	require.Len(t, incidents, 2)
	assert.Equal(t, "1", incidents[0].ID)
	assert.Equal(t, 5, incidents[0].Damages.AffectedHouses)
	assert.Equal(t, "2", incidents[1].ID)
}

func TestDelete_KeepsOrder(t *testing.T) {
	repo, _, _ := newTestRepository(t)
	ctx := context.Background()
	for _, id := range []string{"1", "2", "3"} {
		require.NoError(t, repo.Upsert(ctx, sampleIncident(id)))
	}

	require.NoError(t, repo.Delete(ctx, "2"))

	incidents, err := repo.ReadAll(ctx)
	require.NoError(t, err)
	require.Len(t, incidents, 2)
	assert.Equal(t, "1", incidents[0].ID)
	assert.Equal(t, "3", incidents[1].ID)
}

func TestDelete_AbsentIDIsNoop(t *testing.T) {
	repo, kv, _ := newTestRepository(t)
	ctx := context.Background()
	require.NoError(t, repo.Upsert(ctx, sampleIncident("1")))
	setsBefore := kv.sets

	require.NoError(t, repo.Delete(ctx, "missing"))

	assert.Equal(t, setsBefore, kv.sets, "nothing should be written")
	incidents, err := repo.ReadAll(ctx)
	require.NoError(t, err)
	assert.Len(t, incidents, 1)
}

func TestRoundTrip_OptionalFieldsStayAbsent(t *testing.T) {
	repo, kv, _ := newTestRepository(t)
	ctx := context.Background()
	incident := sampleIncident("1")
	withOptional := sampleIncident("2")
	withOptional.Duration.EstimatedDuration = "2h"
	withOptional.Damages.OtherDamages = "Fallen tree"

	require.NoError(t, repo.Upsert(ctx, incident))
	require.NoError(t, repo.Upsert(ctx, withOptional))

	var raw []struct {
		Duration map[string]any `json:"duration"`
		Damages  map[string]any `json:"damages"`
	}
	require.NoError(t, json.Unmarshal(kv.data[testKey], &raw))
	require.Len(t, raw, 2)
	assert.NotContains(t, raw[0].Duration, "estimatedDuration")
	assert.NotContains(t, raw[0].Damages, "otherDamages")
	assert.Equal(t, "2h", raw[1].Duration["estimatedDuration"])
	assert.Equal(t, "Fallen tree", raw[1].Damages["otherDamages"])

	incidents, err := repo.ReadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []models.Incident{incident, withOptional}, incidents)
}

func TestReadAll_ToleratesMissingOptionalFields(t *testing.T) {
	repo, kv, _ := newTestRepository(t)
	kv.data[testKey] = []byte(`[{"id":"1","date":"2024-05-10T12:00:00Z",
		"location":{"neighborhood":"Centro","city":"X","zipCode":"00000000"},
		"duration":{"startTime":"2024-05-10T12:00:00Z","endTime":""},
		"damages":{"description":"","affectedHouses":0,"affectedBusinesses":0},
		"naturalEvent":{"type":"wind","description":""}}]`)

	incidents, err := repo.ReadAll(context.Background())

	require.NoError(t, err)
	require.Len(t, incidents, 1)
	assert.Equal(t, models.NaturalEventWind, incidents[0].NaturalEvent.Type)
	assert.Empty(t, incidents[0].Duration.EstimatedDuration)
}

func TestReadAll_CorruptedReturnsEmptyAndSignal(t *testing.T) {
	repo, kv, metrics := newTestRepository(t)
	kv.data[testKey] = []byte(`{not json`)

	incidents, err := repo.ReadAll(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrStorageCorrupted)
	assert.NotNil(t, incidents)
	assert.Empty(t, incidents)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.StoreOperations.WithLabelValues("read", "corrupted")))
}

func TestUpsert_CorruptedBlobIsBackedUpBeforeOverwrite(t *testing.T) {
	repo, kv, _ := newTestRepository(t)
	kv.data[testKey] = []byte(`{not json`)

	require.NoError(t, repo.Upsert(context.Background(), sampleIncident("1")))

	backupKey := testKey + ":corrupted:1715342400"
	assert.Equal(t, []byte(`{not json`), kv.data[backupKey])
	incidents, err := repo.ReadAll(context.Background())
	require.NoError(t, err)
	require.Len(t, incidents, 1)
}

func TestUpsert_ReadFailureDoesNotOverwrite(t *testing.T) {
	repo, kv, _ := newTestRepository(t)
	kv.getErr = errors.New("disk unavailable")

	err := repo.Upsert(context.Background(), sampleIncident("1"))

	require.Error(t, err)
	assert.ErrorContains(t, err, "disk unavailable")
	assert.Zero(t, kv.sets)
}

func TestUpsert_WriteFailureSurfaced(t *testing.T) {
	repo, kv, metrics := newTestRepository(t)
	kv.setErr = errors.New("quota exceeded")

	err := repo.Upsert(context.Background(), sampleIncident("1"))

	require.Error(t, err)
	assert.ErrorContains(t, err, "quota exceeded")
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.StoreOperations.WithLabelValues("upsert", "error")))
}
