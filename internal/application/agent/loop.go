package agent

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"mediaforge-ai-api/internal/domain/entity"
	"mediaforge-ai-api/internal/domain/service"
	"mediaforge-ai-api/internal/infrastructure/provider"
	apperrors "mediaforge-ai-api/pkg/errors"
	"mediaforge-ai-api/pkg/logger"
	"mediaforge-ai-api/pkg/metrics"
)

// loopState 回合状态机状态
type loopState int

const (
	stateDecide loopState = iota
	stateExecute
	stateDone
)

type runState struct {
	messages      []*schema.Message
	lastAssistant *schema.Message
	iterations    int
}

// Run 执行一个完整回合直到模型给出最终回复或达到轮数上限
func (e *Engine) Run(ctx context.Context, in *Input) (*Output, error) {
	return e.run(ctx, in, nil)
}

// RunStream 与 Run 相同，但最终回复的增量内容通过 emit 回调流式下发
func (e *Engine) RunStream(ctx context.Context, in *Input, emit func(delta string)) (*Output, error) {
	return e.run(ctx, in, emit)
}

func (e *Engine) run(ctx context.Context, in *Input, emit func(delta string)) (*Output, error) {
	providerName, modelName := e.models.DefaultModelName()
	ctx = service.WithWorkflowProvider(ctx, workflowAgentRun, providerName)

	ctx, span := tracer.Start(ctx, "agent.Run",
		trace.WithAttributes(
			attribute.String("agent.user_id", in.UserID),
			attribute.String("agent.chat_id", in.ChatID),
		))
	defer span.End()

	start := time.Now()

	base, err := e.models.Default(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, apperrors.Wrap(err, apperrors.CodeLLMCallFailed, "failed to create chat model")
	}
	bound, err := base.WithTools(e.registry.Specs())
	if err != nil {
		span.RecordError(err)
		return nil, apperrors.Wrap(err, apperrors.CodeLLMCallFailed, "failed to bind tools")
	}

	messages, err := e.buildMessages(ctx, in)
	if err != nil {
		span.RecordError(err)
		return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to load chat history")
	}

	st := &runState{messages: messages}
	initLen := len(messages)
	out := &Output{}

	var runErr error
	state := stateDecide
	for state != stateDone {
		switch state {
		case stateDecide:
			// 轮数上限：带着已完成的工具结果提前结束，不回滚已扣减的信用点
			if st.iterations >= e.maxIterations {
				out.Incomplete = true
				logger.Warn(ctx, "agent run hit iteration cap",
					"iterations", st.iterations,
				)
				state = stateDone
				continue
			}
			st.iterations++

			assistant, err := e.decide(ctx, bound, st, out, emit, providerName, modelName, in)
			if err != nil {
				runErr = err
				state = stateDone
				continue
			}

			st.messages = append(st.messages, assistant)
			st.lastAssistant = assistant
			if len(assistant.ToolCalls) > 0 {
				state = stateExecute
			} else {
				out.Content = assistant.Content
				state = stateDone
			}

		case stateExecute:
			if err := e.executeToolCalls(ctx, in, st, out); err != nil {
				runErr = err
				state = stateDone
				continue
			}
			state = stateDecide
		}
	}

	status := "completed"
	switch {
	case runErr != nil:
		status = "error"
	case out.Incomplete:
		status = "incomplete"
	}
	metrics.AgentRunTotal.WithLabelValues(status).Inc()
	metrics.AgentRunDuration.WithLabelValues(status).Observe(time.Since(start).Seconds())
	metrics.AgentIterations.WithLabelValues(status).Observe(float64(st.iterations))
	span.SetAttributes(
		attribute.String("agent.status", status),
		attribute.Int("agent.iterations", st.iterations),
	)

	if runErr != nil {
		span.RecordError(runErr)
		return nil, runErr
	}

	// 达到上限且模型没有最终文本时，沿用最后一条助手内容（可能为空）
	if out.Incomplete && out.Content == "" && st.lastAssistant != nil {
		out.Content = st.lastAssistant.Content
	}

	out.NewMessages = collectNewMessages(in.ChatID, st.messages[initLen:])
	return out, nil
}

// decide 一次模型决策：调用 ChatModel，记录用量与指标
func (e *Engine) decide(ctx context.Context, bound model.ToolCallingChatModel, st *runState, out *Output, emit func(delta string), providerName, modelName string, in *Input) (*schema.Message, error) {
	start := time.Now()

	var assistant *schema.Message
	var err error
	if emit == nil {
		assistant, err = bound.Generate(ctx, st.messages)
	} else {
		assistant, err = e.generateStreaming(ctx, bound, st.messages, emit)
	}

	metrics.LLMCallDuration.WithLabelValues(workflowAgentRun, providerName, modelName).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.LLMCallTotal.WithLabelValues(workflowAgentRun, providerName, modelName, "error").Inc()
		// LLM 不可用是致命错误：没有决策者，回合无法继续
		return nil, apperrors.Wrap(err, apperrors.CodeLLMCallFailed, "LLM call failed")
	}
	metrics.LLMCallTotal.WithLabelValues(workflowAgentRun, providerName, modelName, "success").Inc()

	var promptTokens, completionTokens int
	if assistant.ResponseMeta != nil && assistant.ResponseMeta.Usage != nil {
		promptTokens = assistant.ResponseMeta.Usage.PromptTokens
		completionTokens = assistant.ResponseMeta.Usage.CompletionTokens
	}
	metrics.LLMTokensUsed.WithLabelValues(workflowAgentRun, providerName, modelName, "prompt").Add(float64(promptTokens))
	metrics.LLMTokensUsed.WithLabelValues(workflowAgentRun, providerName, modelName, "completion").Add(float64(completionTokens))

	out.Usage.PromptTokens += promptTokens
	out.Usage.CompletionTokens += completionTokens
	out.Usage.TotalTokens += promptTokens + completionTokens

	if e.recorder != nil {
		e.recorder.Record(ctx, service.UsageInput{
			UserID:           in.UserID,
			SessionID:        in.SessionID,
			ChatID:           in.ChatID,
			Kind:             string(entity.UsageKindLLM),
			FunctionName:     workflowAgentRun,
			PromptTokens:     promptTokens,
			CompletionTokens: completionTokens,
			ToolCalls:        len(assistant.ToolCalls),
		})
	}

	return assistant, nil
}

type callResult struct {
	msg   *schema.Message
	parts []Part
	cost  int64
}

// executeToolCalls 执行本轮全部工具调用，多个调用并行执行。
// 校验失败、生成失败与扣费被拒（余额不足 / 日上限）回灌为
// 工具结果消息；未知工具名、计价缺失与数据库错误终止回合。
func (e *Engine) executeToolCalls(ctx context.Context, in *Input, st *runState, out *Output) error {
	calls := st.lastAssistant.ToolCalls
	results := make([]*callResult, len(calls))

	g, gctx := errgroup.WithContext(ctx)
	for i := range calls {
		i := i
		call := calls[i]
		g.Go(func() error {
			res, err := e.executeCall(gctx, in, call)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for _, res := range results {
		st.messages = append(st.messages, res.msg)
		out.Parts = append(out.Parts, res.parts...)
		out.Usage.ToolCalls++
		out.Usage.CreditsSpent += res.cost
	}
	return nil
}

func (e *Engine) executeCall(ctx context.Context, in *Input, call schema.ToolCall) (*callResult, error) {
	name := call.Function.Name

	ctx, span := tracer.Start(ctx, "agent.executeCall",
		trace.WithAttributes(attribute.String("tool.name", name)))
	defer span.End()

	// 目录外的工具名说明 function-calling 契约与目录不一致，硬错误
	t, err := e.registry.Get(name)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	args, err := t.Validate(call.Function.Arguments, in.Settings)
	if err != nil {
		// 参数非法：不扣费不执行，把错误回灌给模型让它修正参数
		span.RecordError(err)
		metrics.ToolCallTotal.WithLabelValues(name, "validation_error").Inc()
		logger.Warn(ctx, "tool arguments rejected",
			"tool", name,
			"error", err.Error(),
		)
		return &callResult{msg: toolErrorMessage(call, name, err)}, nil
	}

	// 先扣费后执行：扣费失败阻断执行；执行失败不退款
	var cost int64
	if t.Billable() {
		cost, err = e.meter.Charge(ctx, in.UserID, name, args.Quantity())
		if err != nil {
			span.RecordError(err)
			if isCreditRejection(err) {
				// 余额不足 / 日上限是业务规则拒绝：不执行，
				// 回灌给模型转告用户，回合继续
				metrics.ToolCallTotal.WithLabelValues(name, "credit_rejected").Inc()
				logger.Warn(ctx, "tool call rejected by billing",
					"tool", name,
					"error", err.Error(),
				)
				return &callResult{msg: toolErrorMessage(call, name, err)}, nil
			}
			return nil, err
		}
	}

	start := time.Now()
	res, execErr := t.Execute(ctx, args)
	metrics.ToolCallDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())

	if e.recorder != nil {
		e.recorder.Record(ctx, service.UsageInput{
			UserID:         in.UserID,
			SessionID:      in.SessionID,
			ChatID:         in.ChatID,
			Kind:           string(entity.UsageKindTool),
			FunctionName:   name,
			ToolCalls:      1,
			CreditCost:     cost,
			RequestPayload: json.RawMessage(call.Function.Arguments),
		})
	}

	if execErr != nil {
		span.RecordError(execErr)
		metrics.ToolCallTotal.WithLabelValues(name, executionStatus(execErr)).Inc()
		logger.Error(ctx, "tool execution failed", execErr,
			"tool", name,
			"cost", cost,
		)
		return &callResult{
			msg:  toolErrorMessage(call, name, execErr),
			cost: cost,
		}, nil
	}

	metrics.ToolCallTotal.WithLabelValues(name, "success").Inc()

	parts := make([]Part, 0, len(res.AssetURLs))
	for _, url := range res.AssetURLs {
		parts = append(parts, Part{Tool: name, URL: url})
	}

	return &callResult{
		msg:   schema.ToolMessage(res.Content, call.ID, schema.WithToolName(name)),
		parts: parts,
		cost:  cost,
	}, nil
}

// isCreditRejection 判定扣费失败是否为业务规则拒绝（余额不足 / 日上限）。
// 这类失败回灌给模型；计价缺失与数据库故障仍然终止回合。
func isCreditRejection(err error) bool {
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		return false
	}
	return appErr.Code == apperrors.CodeInsufficientCredits ||
		appErr.Code == apperrors.CodeDailyLimitExceeded
}

// toolErrorMessage 把工具错误打包为回灌给模型的工具结果
func toolErrorMessage(call schema.ToolCall, name string, err error) *schema.Message {
	payload := struct {
		Status string `json:"status"`
		Error  string `json:"error"`
	}{
		Status: "error",
		Error:  err.Error(),
	}
	b, _ := json.Marshal(payload)
	return schema.ToolMessage(string(b), call.ID, schema.WithToolName(name))
}

func executionStatus(err error) string {
	if pe := provider.AsError(err); pe != nil {
		switch pe.Kind {
		case provider.KindRateLimited:
			return "rate_limited"
		case provider.KindInvalidOutput:
			return "invalid_output"
		default:
			return "unavailable"
		}
	}
	return "error"
}

// collectNewMessages 把回合内新产生的消息转换为可持久化的实体
func collectNewMessages(chatID string, msgs []*schema.Message) []*entity.ChatMessage {
	out := make([]*entity.ChatMessage, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case schema.Assistant:
			if m.Content == "" {
				continue
			}
			out = append(out, entity.NewChatMessage(chatID, entity.RoleAssistant, m.Content))
		case schema.Tool:
			cm := entity.NewChatMessage(chatID, entity.RoleTool, m.Content)
			cm.ToolCallID = m.ToolCallID
			cm.ToolName = m.ToolName
			out = append(out, cm)
		}
	}
	return out
}
