package billing

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediaforge-ai-api/internal/domain/entity"
	"mediaforge-ai-api/internal/domain/repository"
	apperrors "mediaforge-ai-api/pkg/errors"
)

// fakeUserRepo 内存用户仓储，DeductCredits 语义与数据库实现一致：
// 检查与扣减在同一把锁内完成，余额不会为负。
type fakeUserRepo struct {
	mu      sync.Mutex
	credits map[string]int64
}

func newFakeUserRepo(credits map[string]int64) *fakeUserRepo {
	return &fakeUserRepo{credits: credits}
}

func (f *fakeUserRepo) Create(ctx context.Context, user *entity.User) error { return nil }

func (f *fakeUserRepo) GetByID(ctx context.Context, id string) (*entity.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.credits[id]
	if !ok {
		return nil, nil
	}
	return &entity.User{ID: id, Credits: c}, nil
}

func (f *fakeUserRepo) Update(ctx context.Context, user *entity.User) error { return nil }

func (f *fakeUserRepo) DeductCredits(ctx context.Context, id string, amount int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.credits[id] < amount {
		return repository.ErrInsufficientBalance
	}
	f.credits[id] -= amount
	return nil
}

func (f *fakeUserRepo) AddCredits(ctx context.Context, id string, amount int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.credits[id] += amount
	return nil
}

func (f *fakeUserRepo) balance(id string) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.credits[id]
}

type fakePricingRepo struct {
	entries map[string]*entity.PricingEntry
}

func (f *fakePricingRepo) GetByService(ctx context.Context, service string) (*entity.PricingEntry, error) {
	return f.entries[service], nil
}

func (f *fakePricingRepo) List(ctx context.Context) ([]*entity.PricingEntry, error) {
	out := make([]*entity.PricingEntry, 0, len(f.entries))
	for _, e := range f.entries {
		out = append(out, e)
	}
	return out, nil
}

func (f *fakePricingRepo) Upsert(ctx context.Context, entry *entity.PricingEntry) error {
	f.entries[entry.Service] = entry
	return nil
}

type fakeSpendReader struct {
	spent int64
	err   error
}

func (f *fakeSpendReader) GetDailySpend(ctx context.Context, userID string, day time.Time) (int64, error) {
	return f.spent, f.err
}

func testPricing() *fakePricingRepo {
	return &fakePricingRepo{entries: map[string]*entity.PricingEntry{
		"text_to_image": {Service: "text_to_image", Price: 4, Unit: entity.UnitPerMegapixel, IsActive: true},
		"text_to_video": {Service: "text_to_video", Price: 10, Unit: entity.UnitPerSecond, IsActive: true},
		"image_upscale": {Service: "image_upscale", Price: 2, Unit: entity.UnitPerRun, IsActive: true},
		"free_service":  {Service: "free_service", Price: 0, Unit: entity.UnitPerRun, IsActive: true},
	}}
}

func TestQuoteCostRules(t *testing.T) {
	m := NewMeter(newFakeUserRepo(nil), testPricing(), nil, 0)
	ctx := context.Background()

	tests := []struct {
		name    string
		service string
		qty     Quantity
		want    int64
	}{
		{"per run ignores quantity", "image_upscale", Quantity{Seconds: 99}, 2},
		{"per second", "text_to_video", Quantity{Seconds: 5}, 50},
		{"per second rounds up", "text_to_video", Quantity{Seconds: 0.1}, 1},
		{"per megapixel", "text_to_image", Quantity{Megapixels: 1024 * 1024 / 1e6}, 5},
		{"zero price", "free_service", Quantity{}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cost, err := m.Quote(ctx, tt.service, tt.qty)
			require.NoError(t, err)
			assert.Equal(t, tt.want, cost)
		})
	}
}

func TestQuoteUnknownService(t *testing.T) {
	m := NewMeter(newFakeUserRepo(nil), testPricing(), nil, 0)

	_, err := m.Quote(context.Background(), "no_such_service", Quantity{})
	require.Error(t, err)

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.CodePricingNotFound, appErr.Code)
}

func TestChargeDeductsBeforeExecution(t *testing.T) {
	users := newFakeUserRepo(map[string]int64{"u1": 100})
	m := NewMeter(users, testPricing(), nil, 0)

	cost, err := m.Charge(context.Background(), "u1", "text_to_video", Quantity{Seconds: 5})
	require.NoError(t, err)
	assert.Equal(t, int64(50), cost)
	assert.Equal(t, int64(50), users.balance("u1"))
}

func TestChargeInsufficientCredits(t *testing.T) {
	users := newFakeUserRepo(map[string]int64{"u1": 10})
	m := NewMeter(users, testPricing(), nil, 0)

	_, err := m.Charge(context.Background(), "u1", "text_to_video", Quantity{Seconds: 5})
	require.Error(t, err)

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.CodeInsufficientCredits, appErr.Code)

	// 失败的扣减不动余额
	assert.Equal(t, int64(10), users.balance("u1"))
}

func TestChargeZeroCostSkipsDeduction(t *testing.T) {
	users := newFakeUserRepo(map[string]int64{"u1": 10})
	m := NewMeter(users, testPricing(), nil, 0)

	cost, err := m.Charge(context.Background(), "u1", "free_service", Quantity{})
	require.NoError(t, err)
	assert.Equal(t, int64(0), cost)
	assert.Equal(t, int64(10), users.balance("u1"))
}

// 余额只够一次扣减时，并发请求最多一个成功，余额不会为负。
func TestChargeConcurrentSingleWinner(t *testing.T) {
	users := newFakeUserRepo(map[string]int64{"u1": 60})
	m := NewMeter(users, testPricing(), nil, 0)

	const workers = 8
	var wg sync.WaitGroup
	successes := make(chan int64, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cost, err := m.Charge(context.Background(), "u1", "text_to_video", Quantity{Seconds: 5})
			if err == nil {
				successes <- cost
			}
		}()
	}
	wg.Wait()
	close(successes)

	var won int
	for range successes {
		won++
	}
	assert.Equal(t, 1, won)
	assert.Equal(t, int64(10), users.balance("u1"))
}

func TestChargeDailyCap(t *testing.T) {
	users := newFakeUserRepo(map[string]int64{"u1": 1000})
	spend := &fakeSpendReader{spent: 480}
	m := NewMeter(users, testPricing(), spend, 500)

	_, err := m.Charge(context.Background(), "u1", "text_to_video", Quantity{Seconds: 5})
	require.Error(t, err)

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.CodeDailyLimitExceeded, appErr.Code)
	assert.Equal(t, int64(1000), users.balance("u1"))
}

func TestChargeDailyCapReadFailureAllows(t *testing.T) {
	users := newFakeUserRepo(map[string]int64{"u1": 1000})
	spend := &fakeSpendReader{err: errors.New("redis down")}
	m := NewMeter(users, testPricing(), spend, 500)

	cost, err := m.Charge(context.Background(), "u1", "text_to_video", Quantity{Seconds: 5})
	require.NoError(t, err)
	assert.Equal(t, int64(50), cost)
}

func TestChargeDailyCapDisabled(t *testing.T) {
	users := newFakeUserRepo(map[string]int64{"u1": 1000})
	spend := &fakeSpendReader{spent: 999999}
	m := NewMeter(users, testPricing(), spend, 0)

	_, err := m.Charge(context.Background(), "u1", "text_to_video", Quantity{Seconds: 5})
	require.NoError(t, err)
}
