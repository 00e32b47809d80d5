package verification

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/supplytrace-backend/internal/events"
	product "github.com/angelmondragon/supplytrace-backend/internal/products"
	"github.com/angelmondragon/supplytrace-backend/pkg/db"
	"github.com/angelmondragon/supplytrace-backend/pkg/db/dbtest"
	"github.com/angelmondragon/supplytrace-backend/pkg/db/models"
	"github.com/angelmondragon/supplytrace-backend/pkg/enums"
	"github.com/angelmondragon/supplytrace-backend/pkg/outbox"
)

type testEnv struct {
	client   *db.Client
	events   *events.Repository
	products *product.Repository
	jobs     *JobRepository
	results  *ResultRepository
	svc      *Service
}

func newTestEnv(t *testing.T, maxAttempts int) *testEnv {
	t.Helper()
	client := dbtest.Open(t)
	env := &testEnv{
		client:   client,
		events:   events.NewRepository(client.DB()),
		products: product.NewRepository(client.DB()),
		jobs:     NewJobRepository(client.DB(), maxAttempts),
		results:  NewResultRepository(client.DB()),
	}
	svc, err := NewService(ServiceParams{
		TxRunner: client,
		Events:   env.events,
		Products: env.products,
		Results:  env.results,
		Jobs:     env.jobs,
		Outbox:   outbox.NewService(outbox.NewRepository(client.DB()), nil),
	})
	require.NoError(t, err)
	env.svc = svc
	return env
}

// seedEvent records an event for productID the way a submission does, without
// a job row.
func (e *testEnv) seedEvent(t *testing.T, productID string, stage enums.Stage) *models.SupplyEvent {
	t.Helper()
	ctx := context.Background()
	event := &models.SupplyEvent{
		ProductID:          productID,
		Stage:              stage,
		Submitter:          "alice",
		EvidenceLocator:    "Qm" + productID,
		TransactionLocator: "0xabc",
	}
	require.NoError(t, e.events.Create(ctx, event))
	require.NoError(t, e.products.UpsertFromEvent(ctx, event))
	return event
}

// seedJob records an event and queues its job at availableAt.
func (e *testEnv) seedJob(t *testing.T, productID string, availableAt time.Time) *models.SupplyEvent {
	t.Helper()
	event := e.seedEvent(t, productID, enums.StageFarm)
	require.NoError(t, e.jobs.Enqueue(context.Background(), NewJob(event, availableAt)))
	return event
}

func (e *testEnv) outboxRows(t *testing.T) []models.OutboxEvent {
	t.Helper()
	var rows []models.OutboxEvent
	require.NoError(t, e.client.DB().Order("created_at ASC").Find(&rows).Error)
	return rows
}
