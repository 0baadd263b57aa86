package service_test

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/shenikar/outage_reports/internal/models"
	"github.com/shenikar/outage_reports/internal/service"
	"github.com/shenikar/outage_reports/internal/service/mocks"
	"github.com/shenikar/outage_reports/internal/webhook"
	webhook_mocks "github.com/shenikar/outage_reports/internal/webhook/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

// 2024-05-10T12:00:00Z
var testNow = time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

type reportFixture struct {
	service   service.ReportService
	registry  *mocks.MockEventRegistry
	addresses *mocks.MockAddressLookup
	publisher *webhook_mocks.MockWebhookPublisher
}

func newReportFixture(t *testing.T) reportFixture {
	ctrl := gomock.NewController(t)
	f := reportFixture{
		registry:  mocks.NewMockEventRegistry(ctrl),
		addresses: mocks.NewMockAddressLookup(ctrl),
		publisher: webhook_mocks.NewMockWebhookPublisher(ctrl),
	}
	f.service = service.NewReportService(f.registry, f.addresses, f.publisher, clockwork.NewFakeClockAt(testNow), newTestLogger())
	return f
}

// expectCreate повторяет Create реестра: build видит занятыми только ids из taken
func expectCreate(registry *mocks.MockEventRegistry, ctx any, taken ...string) *gomock.Call {
	return registry.EXPECT().Create(ctx, gomock.Any()).DoAndReturn(
		func(_ context.Context, build func(func(string) bool) models.Incident) (models.Incident, error) {
			return build(func(id string) bool { return slices.Contains(taken, id) }), nil
		})
}

// expectModify повторяет Modify реестра поверх existing
func expectModify(registry *mocks.MockEventRegistry, ctx any, existing models.Incident) *gomock.Call {
	return registry.EXPECT().Modify(ctx, existing.ID, gomock.Any()).DoAndReturn(
		func(_ context.Context, _ string, apply func(*models.Incident) error) (models.Incident, error) {
			incident := existing
			if err := apply(&incident); err != nil {
				return models.Incident{}, err
			}
			return incident, nil
		})
}

func TestStartReport_Success(t *testing.T) {
	// Подготовка
	f := newReportFixture(t)
	ctx := context.Background()
	input := service.LocationInput{
		Neighborhood:     " Centro ",
		City:             "X",
		ZipCode:          "01001000",
		EventType:        models.NaturalEventRain,
		EventDescription: "heavy rain",
	}

	// Ожидания
	f.registry.EXPECT().Ready().Return(true)
	expectCreate(f.registry, ctx)
	f.publisher.EXPECT().Publish(ctx, gomock.Any()).DoAndReturn(func(_ context.Context, event webhook.RecordEvent) error {
		assert.Equal(t, webhook.EventCreated, event.Type)
		assert.Equal(t, "1715342400000", event.IncidentID)
		require.NotNil(t, event.Incident)
		return nil
	})

	// Действие
	incident, err := f.service.StartReport(ctx, input)

	// Проверки
	require.NoError(t, err)
	require.NotNil(t, incident)
	assert.Equal(t, "1715342400000", incident.ID)
	assert.Equal(t, "2024-05-10T12:00:00.000Z", incident.Date)
	assert.Equal(t, "Centro", incident.Location.Neighborhood)
	assert.Equal(t, "2024-05-10T12:00:00.000Z", incident.Duration.StartTime)
	assert.Empty(t, incident.Duration.EndTime)
	assert.Equal(t, models.Damages{}, incident.Damages)
	assert.Equal(t, models.NaturalEvent{Type: models.NaturalEventRain, Description: "heavy rain"}, incident.NaturalEvent)
}

func TestStartReport_CollidingIDTakesNextMillisecond(t *testing.T) {
	f := newReportFixture(t)
	ctx := context.Background()

	f.registry.EXPECT().Ready().Return(true)
	expectCreate(f.registry, ctx, "1715342400000")
	f.publisher.EXPECT().Publish(ctx, gomock.Any()).Return(nil)

	incident, err := f.service.StartReport(ctx, service.LocationInput{City: "X"})

	require.NoError(t, err)
	assert.Equal(t, "1715342400001", incident.ID)
}

func TestStartReport_InvalidEventType(t *testing.T) {
	f := newReportFixture(t)

	f.registry.EXPECT().Ready().Return(true)
	f.registry.EXPECT().Create(gomock.Any(), gomock.Any()).Times(0)

	incident, err := f.service.StartReport(context.Background(), service.LocationInput{EventType: "earthquake"})

	require.Error(t, err)
	assert.Nil(t, incident)
	assert.ErrorIs(t, err, models.ErrInvalidIncident)
}

func TestStartReport_RegistryNotReady(t *testing.T) {
	f := newReportFixture(t)

	f.registry.EXPECT().Ready().Return(false)

	_, err := f.service.StartReport(context.Background(), service.LocationInput{})

	assert.ErrorIs(t, err, models.ErrRegistryNotReady)
}

func TestStartReport_AddFailureIsNotPublished(t *testing.T) {
	f := newReportFixture(t)
	ctx := context.Background()

	f.registry.EXPECT().Ready().Return(true)
	f.registry.EXPECT().Create(ctx, gomock.Any()).Return(models.Incident{}, errors.New("write failed"))
	f.publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).Times(0)

	_, err := f.service.StartReport(ctx, service.LocationInput{})

	require.Error(t, err)
	assert.ErrorContains(t, err, "write failed")
}

func TestStartReport_PublishFailureIsIgnored(t *testing.T) {
	f := newReportFixture(t)
	ctx := context.Background()

	f.registry.EXPECT().Ready().Return(true)
	expectCreate(f.registry, ctx)
	f.publisher.EXPECT().Publish(ctx, gomock.Any()).Return(errors.New("redis down"))

	incident, err := f.service.StartReport(ctx, service.LocationInput{})

	require.NoError(t, err)
	assert.NotNil(t, incident)
}

func TestStartReport_NilPublisher(t *testing.T) {
	ctrl := gomock.NewController(t)
	registry := mocks.NewMockEventRegistry(ctrl)
	svc := service.NewReportService(registry, nil, nil, clockwork.NewFakeClockAt(testNow), newTestLogger())

	registry.EXPECT().Ready().Return(true)
	expectCreate(registry, gomock.Any())

	_, err := svc.StartReport(context.Background(), service.LocationInput{})

	require.NoError(t, err)
}

func TestSaveDuration_Success(t *testing.T) {
	f := newReportFixture(t)
	ctx := context.Background()
	existing := incident("1")
	start := time.Date(2024, 5, 10, 9, 0, 0, 0, time.FixedZone("BRT", -3*60*60))
	end := start.Add(3 * time.Hour)

	f.registry.EXPECT().Ready().Return(true)
	expectModify(f.registry, ctx, existing)
	f.publisher.EXPECT().Publish(ctx, gomock.Any()).DoAndReturn(func(_ context.Context, event webhook.RecordEvent) error {
		assert.Equal(t, webhook.EventUpdated, event.Type)
		return nil
	})

	updated, err := f.service.SaveDuration(ctx, "1", service.DurationInput{
		StartTime:         start,
		EndTime:           end,
		EstimatedDuration: "3h",
	})

	require.NoError(t, err)
	assert.Equal(t, "2024-05-10T12:00:00.000Z", updated.Duration.StartTime)
	assert.Equal(t, "2024-05-10T15:00:00.000Z", updated.Duration.EndTime)
	assert.Equal(t, "3h", updated.Duration.EstimatedDuration)
	// Остальные разделы не меняются
	assert.Equal(t, existing.Location, updated.Location)
}

func TestSaveDuration_OngoingOutageHasEmptyEnd(t *testing.T) {
	f := newReportFixture(t)
	ctx := context.Background()

	f.registry.EXPECT().Ready().Return(true)
	expectModify(f.registry, ctx, incident("1"))
	f.publisher.EXPECT().Publish(ctx, gomock.Any()).Return(nil)

	updated, err := f.service.SaveDuration(ctx, "1", service.DurationInput{StartTime: testNow})

	require.NoError(t, err)
	assert.Empty(t, updated.Duration.EndTime)
}

func TestSaveDuration_Validation(t *testing.T) {
	testCases := []struct {
		name  string
		input service.DurationInput
	}{
		{
			name:  "missing start",
			input: service.DurationInput{EndTime: testNow},
		},
		{
			name:  "end before start",
			input: service.DurationInput{StartTime: testNow, EndTime: testNow.Add(-time.Minute)},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := newReportFixture(t)
			f.registry.EXPECT().Modify(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

			_, err := f.service.SaveDuration(context.Background(), "1", tc.input)

			assert.ErrorIs(t, err, models.ErrInvalidIncident)
		})
	}
}

func TestSaveDamages_Success(t *testing.T) {
	f := newReportFixture(t)
	ctx := context.Background()

	f.registry.EXPECT().Ready().Return(true)
	expectModify(f.registry, ctx, incident("1"))
	f.publisher.EXPECT().Publish(ctx, gomock.Any()).Return(nil)

	updated, err := f.service.SaveDamages(ctx, "1", service.DamagesInput{
		Description:        "transformer blown",
		AffectedHouses:     12,
		AffectedBusinesses: 3,
	})

	require.NoError(t, err)
	assert.Equal(t, models.Damages{Description: "transformer blown", AffectedHouses: 12, AffectedBusinesses: 3}, updated.Damages)
}

func TestSaveDamages_NegativeCountRejected(t *testing.T) {
	f := newReportFixture(t)

	_, err := f.service.SaveDamages(context.Background(), "1", service.DamagesInput{AffectedHouses: -1})

	assert.ErrorIs(t, err, models.ErrInvalidIncident)
}

func TestSaveDamages_UnknownDraft(t *testing.T) {
	f := newReportFixture(t)

	f.registry.EXPECT().Ready().Return(true)
	f.registry.EXPECT().Modify(gomock.Any(), "missing", gomock.Any()).
		Return(models.Incident{}, models.ErrIncidentNotFound)
	f.publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).Times(0)

	_, err := f.service.SaveDamages(context.Background(), "missing", service.DamagesInput{})

	assert.ErrorIs(t, err, models.ErrIncidentNotFound)
}

func TestSaveLocation_KeepsDescriptionWhenEmpty(t *testing.T) {
	f := newReportFixture(t)
	ctx := context.Background()
	existing := incident("1")
	existing.NaturalEvent.Description = "storm"

	f.registry.EXPECT().Ready().Return(true)
	expectModify(f.registry, ctx, existing)
	f.publisher.EXPECT().Publish(ctx, gomock.Any()).Return(nil)

	updated, err := f.service.SaveLocation(ctx, "1", service.LocationInput{
		Neighborhood: "Vila Nova",
		City:         "Y",
		ZipCode:      "11111111",
		EventType:    models.NaturalEventWind,
	})

	require.NoError(t, err)
	assert.Equal(t, models.Location{Neighborhood: "Vila Nova", City: "Y", ZipCode: "11111111"}, updated.Location)
	assert.Equal(t, models.NaturalEvent{Type: models.NaturalEventWind, Description: "storm"}, updated.NaturalEvent)
}

func TestGetReport(t *testing.T) {
	f := newReportFixture(t)

	f.registry.EXPECT().Ready().Return(true).Times(2)
	f.registry.EXPECT().Get("1").Return(incident("1"), true)
	f.registry.EXPECT().Get("2").Return(models.Incident{}, false)

	got, err := f.service.GetReport(context.Background(), "1")
	require.NoError(t, err)
	assert.Equal(t, "1", got.ID)

	_, err = f.service.GetReport(context.Background(), "2")
	assert.ErrorIs(t, err, models.ErrIncidentNotFound)
}

func TestListReports_NotReady(t *testing.T) {
	f := newReportFixture(t)

	f.registry.EXPECT().Ready().Return(false)
	f.registry.EXPECT().Records().Times(0)

	_, err := f.service.ListReports(context.Background())

	assert.ErrorIs(t, err, models.ErrRegistryNotReady)
}

func TestDeleteReport_Success(t *testing.T) {
	f := newReportFixture(t)
	ctx := context.Background()

	f.registry.EXPECT().Ready().Return(true)
	f.registry.EXPECT().RemoveExisting(ctx, "1").Return(nil)
	f.publisher.EXPECT().Publish(ctx, gomock.Any()).DoAndReturn(func(_ context.Context, event webhook.RecordEvent) error {
		assert.Equal(t, webhook.EventDeleted, event.Type)
		assert.Nil(t, event.Incident)
		return nil
	})

	require.NoError(t, f.service.DeleteReport(ctx, "1"))
}

func TestDeleteReport_NotFound(t *testing.T) {
	f := newReportFixture(t)

	f.registry.EXPECT().Ready().Return(true)
	f.registry.EXPECT().RemoveExisting(gomock.Any(), "1").Return(models.ErrIncidentNotFound)
	f.publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).Times(0)

	err := f.service.DeleteReport(context.Background(), "1")

	assert.ErrorIs(t, err, models.ErrIncidentNotFound)
}

func TestOverview_CountsByType(t *testing.T) {
	f := newReportFixture(t)
	rain := incident("1")
	wind := incident("2")
	wind.NaturalEvent.Type = models.NaturalEventWind
	unknown := incident("3")
	unknown.NaturalEvent.Type = ""

	f.registry.EXPECT().Ready().Return(true)
	f.registry.EXPECT().Records().Return([]models.Incident{rain, wind, unknown, incident("4")})

	overview, err := f.service.Overview(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 4, overview.Total)
	assert.Equal(t, map[models.NaturalEventType]int{
		models.NaturalEventRain:      2,
		models.NaturalEventWind:      1,
		models.NaturalEventLandslide: 0,
		models.NaturalEventOther:     0,
	}, overview.ByType)
}

func TestLookupAddress(t *testing.T) {
	f := newReportFixture(t)
	ctx := context.Background()
	address := models.Address{Neighborhood: "Sé", City: "São Paulo", ZipCode: "01001000"}

	f.addresses.EXPECT().Lookup(ctx, "01001000").Return(address, nil)
	f.addresses.EXPECT().Lookup(ctx, "99999999").Return(models.Address{}, models.ErrAddressNotFound)

	got, err := f.service.LookupAddress(ctx, "01001000")
	require.NoError(t, err)
	assert.Equal(t, address, got)

	_, err = f.service.LookupAddress(ctx, "99999999")
	assert.ErrorIs(t, err, models.ErrAddressNotFound)
}

func TestStatus(t *testing.T) {
	f := newReportFixture(t)

	f.registry.EXPECT().Ready().Return(true)
	f.registry.EXPECT().Corrupted().Return(true)
	f.registry.EXPECT().Records().Return([]models.Incident{})

	assert.Equal(t, service.RegistryStatus{Ready: true, Corrupted: true, Records: 0}, f.service.Status())
}

func TestRecommendations_NotEmpty(t *testing.T) {
	f := newReportFixture(t)

	sections := f.service.Recommendations()

	require.NotEmpty(t, sections)
	for _, section := range sections {
		assert.NotEmpty(t, section.Title)
		assert.NotEmpty(t, section.Items)
	}
}
