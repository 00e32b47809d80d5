package verification

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/supplytrace-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/supplytrace-backend/pkg/errors"
	"github.com/angelmondragon/supplytrace-backend/pkg/outbox"
	"github.com/angelmondragon/supplytrace-backend/pkg/outbox/payloads"
)

func TestApplyVerdictUpdatesEventResultRollupAndOutbox(t *testing.T) {
	env := newTestEnv(t, 5)
	ctx := context.Background()
	event := env.seedEvent(t, "P1", enums.StageFarm)
	score := 100

	result, err := env.svc.ApplyVerdict(ctx, Verdict{
		EventID:  event.ID,
		Status:   enums.VerificationStatusVerified,
		Analysis: "looks right",
		Score:    &score,
		Source:   enums.VerificationSourceWorker,
	})
	require.NoError(t, err)
	assert.Equal(t, event.ID, result.EventID)

	storedEvent, err := env.events.FindByID(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.VerificationStatusVerified, storedEvent.VerificationStatus)

	storedProduct, err := env.products.FindByProductID(ctx, "P1")
	require.NoError(t, err)
	assert.Equal(t, enums.VerificationStatusVerified, storedProduct.VerificationStatus)

	rows := env.outboxRows(t)
	require.Len(t, rows, 1)
	assert.Equal(t, enums.EventSupplyEventVerified, rows[0].EventType)
	assert.Equal(t, event.ID.String(), rows[0].AggregateID)

	var envelope outbox.PayloadEnvelope
	require.NoError(t, json.Unmarshal(rows[0].Payload, &envelope))
	var data payloads.SupplyEventVerified
	require.NoError(t, json.Unmarshal(envelope.Data, &data))
	assert.True(t, data.ProductRolledUp)
	require.NotNil(t, data.Score)
	assert.Equal(t, 100, *data.Score)
}

func TestApplyVerdictForOlderEventLeavesRollup(t *testing.T) {
	env := newTestEnv(t, 5)
	ctx := context.Background()
	older := env.seedEvent(t, "P1", enums.StageFarm)
	newer := env.seedEvent(t, "P1", enums.StageWarehouse)

	_, err := env.svc.ApplyVerdict(ctx, Verdict{EventID: older.ID, Status: enums.VerificationStatusFailed, Source: enums.VerificationSourceWorker})
	require.NoError(t, err)

	product, err := env.products.FindByProductID(ctx, "P1")
	require.NoError(t, err)
	assert.Equal(t, enums.VerificationStatusPending, product.VerificationStatus)

	_, err = env.svc.ApplyVerdict(ctx, Verdict{EventID: newer.ID, Status: enums.VerificationStatusVerified, Source: enums.VerificationSourceWorker})
	require.NoError(t, err)

	product, err = env.products.FindByProductID(ctx, "P1")
	require.NoError(t, err)
	assert.Equal(t, enums.VerificationStatusVerified, product.VerificationStatus)
}

func TestApplyVerdictRejectsPendingAndUnknownEvents(t *testing.T) {
	env := newTestEnv(t, 5)
	ctx := context.Background()
	event := env.seedEvent(t, "P1", enums.StageFarm)

	_, err := env.svc.ApplyVerdict(ctx, Verdict{EventID: event.ID, Status: enums.VerificationStatusPending})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = env.svc.ApplyVerdict(ctx, Verdict{EventID: uuid.New(), Status: enums.VerificationStatusVerified})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
	assert.Empty(t, env.outboxRows(t))
}

func TestHandleCallbackOverwritesWorkerVerdict(t *testing.T) {
	env := newTestEnv(t, 5)
	ctx := context.Background()
	event := env.seedEvent(t, "P1", enums.StageFarm)

	_, err := env.svc.ApplyVerdict(ctx, Verdict{EventID: event.ID, Status: enums.VerificationStatusVerified, Analysis: "worker", Source: enums.VerificationSourceWorker})
	require.NoError(t, err)

	result, err := env.svc.HandleCallback(ctx, CallbackInput{
		EventID:  event.ID.String(),
		Status:   "failed",
		Analysis: "label mismatch",
		Verifier: "lab-7",
	})
	require.NoError(t, err)
	assert.Equal(t, enums.VerificationSourceCallback, result.Source)

	stored, err := env.svc.GetResult(ctx, event.ID.String())
	require.NoError(t, err)
	assert.Equal(t, enums.VerificationStatusFailed, stored.Status)
	assert.Equal(t, "lab-7: label mismatch", stored.Analysis)
	assert.Equal(t, enums.VerificationSourceCallback, stored.Source)

	var count int64
	require.NoError(t, env.client.DB().Table("verification_results").Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestHandleCallbackDefaultsAnalysis(t *testing.T) {
	env := newTestEnv(t, 5)
	event := env.seedEvent(t, "P1", enums.StageFarm)

	result, err := env.svc.HandleCallback(context.Background(), CallbackInput{
		EventID: event.ID.String(),
		Status:  "verified",
	})
	require.NoError(t, err)
	assert.Equal(t, DefaultCallbackAnalysis, result.Analysis)
	assert.Equal(t, enums.VerificationStatusVerified, result.Status)
}

func TestHandleCallbackUnknownEventIsNotFound(t *testing.T) {
	env := newTestEnv(t, 5)

	_, err := env.svc.HandleCallback(context.Background(), CallbackInput{
		EventID: uuid.NewString(),
		Status:  "verified",
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	var count int64
	require.NoError(t, env.client.DB().Table("verification_results").Count(&count).Error)
	assert.Zero(t, count)
}

func TestHandleCallbackValidation(t *testing.T) {
	env := newTestEnv(t, 5)

	_, err := env.svc.HandleCallback(context.Background(), CallbackInput{EventID: "nope", Status: "pending"})
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
	assert.Len(t, typed.Details(), 2)
}

func TestGetResultMissingIsNotFound(t *testing.T) {
	env := newTestEnv(t, 5)
	event := env.seedEvent(t, "P1", enums.StageFarm)

	_, err := env.svc.GetResult(context.Background(), event.ID.String())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	_, err = env.svc.GetResult(context.Background(), "not-a-uuid")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestCompleteJobClosesJobWithVerdict(t *testing.T) {
	env := newTestEnv(t, 5)
	ctx := context.Background()
	now := time.Now().UTC()
	event := env.seedJob(t, "P1", now.Add(-time.Second))

	job, err := env.jobs.ClaimNext(ctx, "w", now)
	require.NoError(t, err)
	require.NoError(t, env.svc.CompleteJob(ctx, job, Report{
		Status:     enums.VerificationStatusVerified,
		Score:      100,
		Confidence: 0.9,
		Analysis:   "ok",
	}))

	stored, err := env.jobs.FindByEventID(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.JobStatusSucceeded, stored.Status)

	result, err := env.svc.GetResult(ctx, event.ID.String())
	require.NoError(t, err)
	require.NotNil(t, result.Score)
	assert.Equal(t, 100, *result.Score)
	require.NotNil(t, result.Confidence)
	assert.InDelta(t, 0.9, *result.Confidence, 1e-9)
}
