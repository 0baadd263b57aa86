package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/shenikar/outage_reports/internal/models"
	"github.com/shenikar/outage_reports/internal/observability"
	"github.com/shenikar/outage_reports/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memoryRepository - хранилище в памяти. Если задан entered, Upsert сообщает
// id записи и ждет закрытия release.
type memoryRepository struct {
	mu      sync.Mutex
	records []models.Incident
	delay   time.Duration

	entered chan string
	release chan struct{}
}

func (r *memoryRepository) ReadAll(context.Context) ([]models.Incident, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.Incident{}, r.records...), nil
}

func (r *memoryRepository) Upsert(_ context.Context, incident models.Incident) error {
	if r.entered != nil {
		select {
		case r.entered <- incident.ID:
		default:
		}
		<-r.release
	}
	time.Sleep(r.delay)

	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.records {
		if r.records[i].ID == incident.ID {
			r.records[i] = incident
			return nil
		}
	}
	r.records = append(r.records, incident)
	return nil
}

func (r *memoryRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.records[:0]
	for _, incident := range r.records {
		if incident.ID != id {
			kept = append(kept, incident)
		}
	}
	r.records = kept
	return nil
}

func (r *memoryRepository) stored(t *testing.T, id string) (models.Incident, bool) {
	t.Helper()
	records, err := r.ReadAll(context.Background())
	require.NoError(t, err)
	for _, incident := range records {
		if incident.ID == id {
			return incident, true
		}
	}
	return models.Incident{}, false
}

// newWizard - сервис мастера поверх настоящего реестра и хранилища в памяти
func newWizard(repo *memoryRepository) (service.ReportService, service.EventRegistry) {
	registry := service.NewEventRegistry(repo, newTestLogger(), observability.NewMetricsForTesting())
	registry.Initialize(context.Background())
	return service.NewReportService(registry, nil, nil, clockwork.NewFakeClockAt(testNow), newTestLogger()), registry
}

func TestWizard_DeleteWhileStepIsWritingRemovesReport(t *testing.T) {
	// Подготовка
	repo := &memoryRepository{
		records: []models.Incident{incident("1")},
		entered: make(chan string, 1),
		release: make(chan struct{}),
	}
	wizard, registry := newWizard(repo)
	ctx := context.Background()

	// Действие
	stepErr := make(chan error, 1)
	go func() {
		_, err := wizard.SaveDamages(ctx, "1", service.DamagesInput{AffectedHouses: 5})
		stepErr <- err
	}()
	require.Equal(t, "1", <-repo.entered)

	deleteErr := make(chan error, 1)
	go func() {
		deleteErr <- wizard.DeleteReport(ctx, "1")
	}()

	select {
	case err := <-deleteErr:
		t.Fatalf("delete finished while a step was writing: %v", err)
	case <-time.After(20 * time.Millisecond):
	}
	close(repo.release)

	// Проверки
	require.NoError(t, <-stepErr)
	require.NoError(t, <-deleteErr)
	_, inMemory := registry.Get("1")
	assert.False(t, inMemory)
	_, inStore := repo.stored(t, "1")
	assert.False(t, inStore)
}

func TestWizard_StepAfterDeleteDoesNotRestoreReport(t *testing.T) {
	repo := &memoryRepository{records: []models.Incident{incident("1")}}
	wizard, registry := newWizard(repo)
	ctx := context.Background()

	require.NoError(t, wizard.DeleteReport(ctx, "1"))

	_, err := wizard.SaveDamages(ctx, "1", service.DamagesInput{AffectedHouses: 5})
	assert.ErrorIs(t, err, models.ErrIncidentNotFound)
	_, err = wizard.SaveLocation(ctx, "1", service.LocationInput{City: "Recife"})
	assert.ErrorIs(t, err, models.ErrIncidentNotFound)

	assert.Empty(t, registry.Records())
	_, inStore := repo.stored(t, "1")
	assert.False(t, inStore)
}

func TestWizard_ConcurrentDeleteNeverRestoresReport(t *testing.T) {
	repo := &memoryRepository{delay: 100 * time.Microsecond}
	wizard, registry := newWizard(repo)
	ctx := context.Background()

	for round := 0; round < 30; round++ {
		created, err := wizard.StartReport(ctx, service.LocationInput{City: "X"})
		require.NoError(t, err)
		id := created.ID

		start := make(chan struct{})
		var wg sync.WaitGroup
		for i := 0; i < 4; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				<-start
				_, err := wizard.SaveDamages(ctx, id, service.DamagesInput{AffectedHouses: i})
				if err != nil {
					assert.ErrorIs(t, err, models.ErrIncidentNotFound)
				}
			}(i)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			assert.NoError(t, wizard.DeleteReport(ctx, id))
		}()
		close(start)
		wg.Wait()

		_, inMemory := registry.Get(id)
		_, inStore := repo.stored(t, id)
		require.False(t, inMemory, "round %d: report %s is back in memory", round, id)
		require.False(t, inStore, "round %d: report %s is back in storage", round, id)
	}
}

func TestWizard_ParallelStepsKeepBothChanges(t *testing.T) {
	// Подготовка
	repo := &memoryRepository{
		records: []models.Incident{incident("1")},
		entered: make(chan string, 1),
		release: make(chan struct{}),
	}
	wizard, registry := newWizard(repo)
	ctx := context.Background()

	// Действие
	damagesErr := make(chan error, 1)
	go func() {
		_, err := wizard.SaveDamages(ctx, "1", service.DamagesInput{AffectedHouses: 5})
		damagesErr <- err
	}()
	<-repo.entered

	locationErr := make(chan error, 1)
	go func() {
		_, err := wizard.SaveLocation(ctx, "1", service.LocationInput{City: "Recife", EventType: models.NaturalEventRain})
		locationErr <- err
	}()
	close(repo.release)

	// Проверки
	require.NoError(t, <-damagesErr)
	require.NoError(t, <-locationErr)

	inMemory, ok := registry.Get("1")
	require.True(t, ok)
	inStore, ok := repo.stored(t, "1")
	require.True(t, ok)
	for _, got := range []models.Incident{inMemory, inStore} {
		assert.Equal(t, "Recife", got.Location.City)
		assert.Equal(t, 5, got.Damages.AffectedHouses)
	}
}

func TestWizard_ConcurrentStepsKeepAllChanges(t *testing.T) {
	repo := &memoryRepository{delay: 100 * time.Microsecond}
	wizard, registry := newWizard(repo)
	ctx := context.Background()

	for round := 0; round < 30; round++ {
		created, err := wizard.StartReport(ctx, service.LocationInput{City: "X"})
		require.NoError(t, err)
		id := created.ID

		start := make(chan struct{})
		var wg sync.WaitGroup
		steps := []func() error{
			func() error {
				_, err := wizard.SaveLocation(ctx, id, service.LocationInput{City: "Recife"})
				return err
			},
			func() error {
				_, err := wizard.SaveDamages(ctx, id, service.DamagesInput{AffectedHouses: 5, AffectedBusinesses: 2})
				return err
			},
			func() error {
				_, err := wizard.SaveDuration(ctx, id, service.DurationInput{StartTime: testNow, EndTime: testNow.Add(time.Hour)})
				return err
			},
		}
		for _, step := range steps {
			wg.Add(1)
			go func(step func() error) {
				defer wg.Done()
				<-start
				assert.NoError(t, step())
			}(step)
		}
		close(start)
		wg.Wait()

		inMemory, ok := registry.Get(id)
		require.True(t, ok)
		inStore, ok := repo.stored(t, id)
		require.True(t, ok)
		require.Equal(t, inMemory, inStore)
		require.Equal(t, "Recife", inMemory.Location.City, "round %d: location step lost", round)
		require.Equal(t, 5, inMemory.Damages.AffectedHouses, "round %d: damages step lost", round)
		require.Equal(t, "2024-05-10T13:00:00.000Z", inMemory.Duration.EndTime, "round %d: duration step lost", round)
	}
}
