// Package billing 提供信用点计价与扣减
package billing

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"mediaforge-ai-api/internal/domain/entity"
	"mediaforge-ai-api/internal/domain/repository"
	apperrors "mediaforge-ai-api/pkg/errors"
	"mediaforge-ai-api/pkg/logger"
	"mediaforge-ai-api/pkg/metrics"
)

var tracer = otel.Tracer("billing")

// Quantity 一次可计费操作的工作量。按计价单位取对应字段：
// per_run 固定 1，per_second 取 Seconds，per_megapixel 取 Megapixels。
type Quantity struct {
	Seconds    float64
	Megapixels float64
}

// DailySpendReader 读取用户当日已消耗的信用点
type DailySpendReader interface {
	GetDailySpend(ctx context.Context, userID string, day time.Time) (int64, error)
}

// Meter 信用点计量器。调用方先 Charge 再执行生成；
// 执行失败不自动退款，流水如实反映已发生的工作量。
type Meter struct {
	users    repository.UserRepository
	pricing  repository.PricingRepository
	spend    DailySpendReader
	dailyCap int64
	now      func() time.Time
}

// NewMeter 创建计量器。spend 可为 nil（未启用日上限聚合时）。
func NewMeter(users repository.UserRepository, pricing repository.PricingRepository, spend DailySpendReader, dailyCap int64) *Meter {
	return &Meter{
		users:    users,
		pricing:  pricing,
		spend:    spend,
		dailyCap: dailyCap,
		now:      time.Now,
	}
}

// Quote 计算服务一次执行的费用。计价条目每次重新读取，价格修改即时生效。
func (m *Meter) Quote(ctx context.Context, service string, qty Quantity) (int64, error) {
	ctx, span := tracer.Start(ctx, "billing.Quote",
		trace.WithAttributes(attribute.String("billing.service", service)))
	defer span.End()

	entry, err := m.pricing.GetByService(ctx, service)
	if err != nil {
		span.RecordError(err)
		return 0, apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to load pricing entry")
	}
	if entry == nil {
		return 0, apperrors.New(apperrors.CodePricingNotFound, "pricing entry not found").
			WithDetail(fmt.Sprintf("service: %s", service))
	}

	cost := computeCost(entry, qty)
	span.SetAttributes(attribute.Int64("billing.cost", cost))
	return cost, nil
}

// Charge 计价并原子预扣减。返回实际扣除的费用。
// 余额不足返回 CodeInsufficientCredits，超出日上限返回 CodeDailyLimitExceeded。
func (m *Meter) Charge(ctx context.Context, userID, service string, qty Quantity) (int64, error) {
	ctx, span := tracer.Start(ctx, "billing.Charge",
		trace.WithAttributes(
			attribute.String("billing.user_id", userID),
			attribute.String("billing.service", service),
		))
	defer span.End()

	cost, err := m.Quote(ctx, service, qty)
	if err != nil {
		return 0, err
	}
	if cost == 0 {
		return 0, nil
	}

	if err := m.checkDailyCap(ctx, userID, service, cost); err != nil {
		span.RecordError(err)
		return 0, err
	}

	if err := m.users.DeductCredits(ctx, userID, cost); err != nil {
		span.RecordError(err)
		if errors.Is(err, repository.ErrInsufficientBalance) {
			metrics.CreditDeductionRejected.WithLabelValues(service, "insufficient_credits").Inc()
			return 0, apperrors.New(apperrors.CodeInsufficientCredits, "insufficient credits").
				WithDetail(fmt.Sprintf("required: %d", cost))
		}
		return 0, apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to deduct credits")
	}

	metrics.CreditsDeducted.WithLabelValues(service).Add(float64(cost))
	logger.Info(ctx, "credits deducted",
		"service", service,
		"cost", cost,
	)

	span.SetAttributes(attribute.Int64("billing.cost", cost))
	return cost, nil
}

// checkDailyCap 日消耗上限检查。聚合来自 Redis 的近实时视图，
// 读取失败时放行（上限是软保护，不应让 Redis 故障阻断业务）。
func (m *Meter) checkDailyCap(ctx context.Context, userID, service string, cost int64) error {
	if m.dailyCap <= 0 || m.spend == nil {
		return nil
	}

	spent, err := m.spend.GetDailySpend(ctx, userID, m.now())
	if err != nil {
		logger.Warn(ctx, "failed to read daily spend, skipping cap check", "error", err)
		return nil
	}

	if spent+cost > m.dailyCap {
		metrics.CreditDeductionRejected.WithLabelValues(service, "daily_cap").Inc()
		return apperrors.New(apperrors.CodeDailyLimitExceeded, "daily credit limit exceeded").
			WithDetail(fmt.Sprintf("spent: %d, cap: %d", spent, m.dailyCap))
	}
	return nil
}

// computeCost 按计价单位折算费用，非整数结果向上取整
func computeCost(entry *entity.PricingEntry, qty Quantity) int64 {
	switch entry.Unit {
	case entity.UnitPerSecond:
		return int64(math.Ceil(float64(entry.Price) * qty.Seconds))
	case entity.UnitPerMegapixel:
		return int64(math.Ceil(float64(entry.Price) * qty.Megapixels))
	default:
		return entry.Price
	}
}
