package billing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediaforge-ai-api/internal/domain/entity"
	"mediaforge-ai-api/internal/domain/repository"
	"mediaforge-ai-api/internal/domain/service"
	"mediaforge-ai-api/internal/infrastructure/messaging"
)

type fakeUsageRepo struct {
	createErr error
	records   []*entity.UsageRecord
}

func (f *fakeUsageRepo) Create(ctx context.Context, record *entity.UsageRecord) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.records = append(f.records, record)
	return nil
}

func (f *fakeUsageRepo) ListByUser(ctx context.Context, userID string, p repository.Pagination) (*repository.PagedResult[*entity.UsageRecord], error) {
	return nil, nil
}

func (f *fakeUsageRepo) GetCreditSpend(ctx context.Context, userID string, startInclusive, endExclusive time.Time) (int64, error) {
	return 0, nil
}

type fakePublisher struct {
	publishErr error
	events     []*messaging.UsageEventMessage
}

func (f *fakePublisher) PublishUsageEvent(ctx context.Context, event *messaging.UsageEventMessage) (string, error) {
	if f.publishErr != nil {
		return "", f.publishErr
	}
	f.events = append(f.events, event)
	return "1-0", nil
}

func TestRecorderPersistsAndPublishes(t *testing.T) {
	repo := &fakeUsageRepo{}
	pub := &fakePublisher{}
	r := NewRecorder(repo, pub, "agent_run", "openai", "gpt-4o-mini")

	r.Record(context.Background(), service.UsageInput{
		UserID:       "u1",
		ChatID:       "c1",
		Kind:         string(entity.UsageKindTool),
		FunctionName: "render_image",
		ToolCalls:    1,
		CreditCost:   10,
	})

	require.Len(t, repo.records, 1)
	rec := repo.records[0]
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, entity.UsageKindTool, rec.Kind)
	assert.Equal(t, int64(10), rec.CreditCost)

	require.Len(t, pub.events, 1)
	event := pub.events[0]
	assert.Equal(t, rec.ID, event.RecordID)
	assert.Equal(t, "agent_run", event.Workflow)
	assert.Equal(t, "openai", event.Provider)
	assert.Equal(t, int64(10), event.CreditCost)
	assert.NotZero(t, event.OccurredAt)
}

func TestRecorderTokenTotals(t *testing.T) {
	repo := &fakeUsageRepo{}
	r := NewRecorder(repo, nil, "agent_run", "openai", "gpt-4o-mini")

	r.Record(context.Background(), service.UsageInput{
		UserID:           "u1",
		Kind:             string(entity.UsageKindLLM),
		FunctionName:     "agent_run",
		PromptTokens:     100,
		CompletionTokens: 40,
	})

	require.Len(t, repo.records, 1)
	assert.Equal(t, 140, repo.records[0].TotalTokens)
}

// 落库失败不阻塞调用方，事件仍然发布（worker 聚合以事件为准）
func TestRecorderSurvivesPersistFailure(t *testing.T) {
	repo := &fakeUsageRepo{createErr: errors.New("db down")}
	pub := &fakePublisher{}
	r := NewRecorder(repo, pub, "agent_run", "openai", "gpt-4o-mini")

	r.Record(context.Background(), service.UsageInput{
		UserID:     "u1",
		Kind:       string(entity.UsageKindTool),
		CreditCost: 5,
	})

	assert.Len(t, pub.events, 1)
}

func TestRecorderSurvivesPublishFailure(t *testing.T) {
	repo := &fakeUsageRepo{}
	r := NewRecorder(repo, &fakePublisher{publishErr: errors.New("stream down")}, "agent_run", "openai", "gpt-4o-mini")

	r.Record(context.Background(), service.UsageInput{
		UserID:     "u1",
		Kind:       string(entity.UsageKindTool),
		CreditCost: 5,
	})

	assert.Len(t, repo.records, 1)
}

func TestRecorderNilReceiverIsSafe(t *testing.T) {
	var r *Recorder
	r.Record(context.Background(), service.UsageInput{UserID: "u1"})
}
