package agent

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediaforge-ai-api/internal/application/billing"
	"mediaforge-ai-api/internal/application/tool"
	"mediaforge-ai-api/internal/domain/entity"
	"mediaforge-ai-api/internal/domain/repository"
	"mediaforge-ai-api/internal/domain/service"
	apperrors "mediaforge-ai-api/pkg/errors"
)

// scriptedModel 按脚本逐条返回助手消息，并记录每次收到的上下文
type scriptedModel struct {
	mu      sync.Mutex
	replies []*schema.Message
	streams [][]*schema.Message
	inputs  [][]*schema.Message
}

func (m *scriptedModel) Generate(ctx context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inputs = append(m.inputs, input)
	if len(m.replies) == 0 {
		return nil, errors.New("no scripted reply left")
	}
	reply := m.replies[0]
	m.replies = m.replies[1:]
	return reply, nil
}

func (m *scriptedModel) Stream(ctx context.Context, input []*schema.Message, _ ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inputs = append(m.inputs, input)
	if len(m.streams) == 0 {
		return nil, errors.New("no scripted stream left")
	}
	frames := m.streams[0]
	m.streams = m.streams[1:]
	return schema.StreamReaderFromArray(frames), nil
}

func (m *scriptedModel) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	return m, nil
}

type scriptedProvider struct {
	model *scriptedModel
}

func (p *scriptedProvider) Default(ctx context.Context) (model.ToolCallingChatModel, error) {
	return p.model, nil
}

func (p *scriptedProvider) DefaultModelName() (string, string) {
	return "scripted", "scripted-v1"
}

type memUserRepo struct {
	mu      sync.Mutex
	credits map[string]int64
}

func (f *memUserRepo) Create(ctx context.Context, user *entity.User) error { return nil }

func (f *memUserRepo) GetByID(ctx context.Context, id string) (*entity.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &entity.User{ID: id, Credits: f.credits[id]}, nil
}

func (f *memUserRepo) Update(ctx context.Context, user *entity.User) error { return nil }

func (f *memUserRepo) DeductCredits(ctx context.Context, id string, amount int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.credits[id] < amount {
		return repository.ErrInsufficientBalance
	}
	f.credits[id] -= amount
	return nil
}

func (f *memUserRepo) AddCredits(ctx context.Context, id string, amount int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.credits[id] += amount
	return nil
}

func (f *memUserRepo) balance(id string) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.credits[id]
}

type memPricingRepo struct {
	entries map[string]*entity.PricingEntry
}

func (f *memPricingRepo) GetByService(ctx context.Context, svc string) (*entity.PricingEntry, error) {
	return f.entries[svc], nil
}

func (f *memPricingRepo) List(ctx context.Context) ([]*entity.PricingEntry, error) { return nil, nil }

func (f *memPricingRepo) Upsert(ctx context.Context, entry *entity.PricingEntry) error { return nil }

type captureRecorder struct {
	mu      sync.Mutex
	records []service.UsageInput
}

func (r *captureRecorder) Record(ctx context.Context, in service.UsageInput) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, in)
}

func (r *captureRecorder) byKind(kind string) []service.UsageInput {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []service.UsageInput
	for _, rec := range r.records {
		if rec.Kind == kind {
			out = append(out, rec)
		}
	}
	return out
}

type memHistory struct {
	msgs []*entity.ChatMessage
}

func (h *memHistory) ListMessages(ctx context.Context, chatID string, limit int) ([]*entity.ChatMessage, error) {
	return h.msgs, nil
}

type renderArgs struct{}

func (renderArgs) Quantity() billing.Quantity { return billing.Quantity{} }

// renderTool 可编排失败点的测试工具，按次计价
type renderTool struct {
	name        string
	billable    bool
	validateErr error
	execErr     error
	assetURL    string

	mu       sync.Mutex
	executed int
}

func (t *renderTool) Name() string   { return t.name }
func (t *renderTool) Billable() bool { return t.billable }

func (t *renderTool) Info() *schema.ToolInfo {
	return &schema.ToolInfo{
		Name:        t.name,
		Desc:        "render a test asset",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{}),
	}
}

func (t *renderTool) Validate(rawArgs string, _ entity.UserSettings) (tool.Args, error) {
	if t.validateErr != nil {
		return nil, t.validateErr
	}
	return renderArgs{}, nil
}

func (t *renderTool) Execute(ctx context.Context, _ tool.Args) (*tool.Result, error) {
	t.mu.Lock()
	t.executed++
	t.mu.Unlock()
	if t.execErr != nil {
		return nil, t.execErr
	}
	return &tool.Result{
		Content:   `{"status":"ok"}`,
		AssetURLs: []string{t.assetURL},
	}, nil
}

func (t *renderTool) executions() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.executed
}

type loopEnv struct {
	model    *scriptedModel
	users    *memUserRepo
	recorder *captureRecorder
	engine   *Engine
}

func newLoopEnv(tools []tool.Tool, credits int64, history HistoryLoader, cfg Config) *loopEnv {
	pricing := &memPricingRepo{entries: map[string]*entity.PricingEntry{}}
	for _, t := range tools {
		pricing.entries[t.Name()] = &entity.PricingEntry{
			Service:  t.Name(),
			Price:    10,
			Unit:     entity.UnitPerRun,
			IsActive: true,
		}
	}

	env := &loopEnv{
		model:    &scriptedModel{},
		users:    &memUserRepo{credits: map[string]int64{"u1": credits}},
		recorder: &captureRecorder{},
	}
	meter := billing.NewMeter(env.users, pricing, nil, 0)
	env.engine = NewEngine(&scriptedProvider{model: env.model}, tool.NewRegistry(tools...), meter, env.recorder, history, cfg)
	return env
}

func finalReply(content string, promptTokens, completionTokens int) *schema.Message {
	msg := schema.AssistantMessage(content, nil)
	msg.ResponseMeta = &schema.ResponseMeta{
		Usage: &schema.TokenUsage{
			PromptTokens:     promptTokens,
			CompletionTokens: completionTokens,
			TotalTokens:      promptTokens + completionTokens,
		},
	}
	return msg
}

func toolCallReply(callID, name, args string) *schema.Message {
	return schema.AssistantMessage("", []schema.ToolCall{{
		ID:       callID,
		Function: schema.FunctionCall{Name: name, Arguments: args},
	}})
}

func testInput() *Input {
	return &Input{
		UserID:    "u1",
		SessionID: "s1",
		ChatID:    "c1",
		Message:   "draw a cat",
	}
}

func TestRunDirectAnswer(t *testing.T) {
	history := &memHistory{msgs: []*entity.ChatMessage{
		{Role: entity.RoleUser, Content: "earlier question", CreatedAt: time.Now()},
		{Role: entity.RoleAssistant, Content: "earlier answer", CreatedAt: time.Now()},
	}}
	env := newLoopEnv(nil, 0, history, Config{})
	env.model.replies = []*schema.Message{finalReply("hello there", 12, 7)}

	in := testInput()
	in.FileURL = "http://files/cat.png"
	out, err := env.engine.Run(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, "hello there", out.Content)
	assert.False(t, out.Incomplete)
	assert.Equal(t, 12, out.Usage.PromptTokens)
	assert.Equal(t, 7, out.Usage.CompletionTokens)
	assert.Equal(t, 19, out.Usage.TotalTokens)
	assert.Zero(t, out.Usage.ToolCalls)

	// 上下文顺序：系统提示词、历史、带附件的新消息
	require.Len(t, env.model.inputs, 1)
	ctxMsgs := env.model.inputs[0]
	require.Len(t, ctxMsgs, 4)
	assert.Equal(t, schema.System, ctxMsgs[0].Role)
	assert.Equal(t, "earlier question", ctxMsgs[1].Content)
	assert.Equal(t, "earlier answer", ctxMsgs[2].Content)
	assert.Contains(t, ctxMsgs[3].Content, "draw a cat")
	assert.Contains(t, ctxMsgs[3].Content, "Attached file: http://files/cat.png")

	// 最终回复要能持久化
	require.Len(t, out.NewMessages, 1)
	assert.Equal(t, entity.RoleAssistant, out.NewMessages[0].Role)

	llmRecords := env.recorder.byKind(string(entity.UsageKindLLM))
	require.Len(t, llmRecords, 1)
	assert.Equal(t, 12, llmRecords[0].PromptTokens)
}

func TestRunToolRoundTrip(t *testing.T) {
	render := &renderTool{name: "render_image", billable: true, assetURL: "http://cdn/a.png"}
	env := newLoopEnv([]tool.Tool{render}, 100, nil, Config{})
	env.model.replies = []*schema.Message{
		toolCallReply("call-1", "render_image", `{}`),
		finalReply("here is your image", 5, 5),
	}

	out, err := env.engine.Run(context.Background(), testInput())
	require.NoError(t, err)

	assert.Equal(t, "here is your image", out.Content)
	assert.Equal(t, 1, render.executions())
	assert.Equal(t, 1, out.Usage.ToolCalls)
	assert.Equal(t, int64(10), out.Usage.CreditsSpent)
	assert.Equal(t, int64(90), env.users.balance("u1"))

	require.Len(t, out.Parts, 1)
	assert.Equal(t, Part{Tool: "render_image", URL: "http://cdn/a.png"}, out.Parts[0])

	// 第二轮决策要带上工具结果
	require.Len(t, env.model.inputs, 2)
	second := env.model.inputs[1]
	last := second[len(second)-1]
	assert.Equal(t, schema.Tool, last.Role)
	assert.Equal(t, "call-1", last.ToolCallID)

	toolRecords := env.recorder.byKind(string(entity.UsageKindTool))
	require.Len(t, toolRecords, 1)
	assert.Equal(t, "render_image", toolRecords[0].FunctionName)
	assert.Equal(t, int64(10), toolRecords[0].CreditCost)

	// 新消息：工具结果 + 最终回复（空内容的工具决策消息不落库）
	require.Len(t, out.NewMessages, 2)
	assert.Equal(t, entity.RoleTool, out.NewMessages[0].Role)
	assert.Equal(t, entity.RoleAssistant, out.NewMessages[1].Role)
}

func TestRunIterationCap(t *testing.T) {
	render := &renderTool{name: "render_image", billable: true, assetURL: "http://cdn/a.png"}
	env := newLoopEnv([]tool.Tool{render}, 100, nil, Config{MaxIterations: 2})
	env.model.replies = []*schema.Message{
		toolCallReply("call-1", "render_image", `{}`),
		toolCallReply("call-2", "render_image", `{}`),
		finalReply("never reached", 0, 0),
	}

	out, err := env.engine.Run(context.Background(), testInput())
	require.NoError(t, err)

	assert.True(t, out.Incomplete)
	assert.Equal(t, 2, render.executions())
	assert.Equal(t, 2, out.Usage.ToolCalls)
	// 已扣减的信用点不回滚
	assert.Equal(t, int64(80), env.users.balance("u1"))
	assert.Len(t, out.Parts, 2)
}

func TestRunValidationErrorFeedsBackToModel(t *testing.T) {
	render := &renderTool{
		name:        "render_image",
		billable:    true,
		validateErr: apperrors.New(apperrors.CodeValidationFailed, "invalid tool arguments"),
	}
	env := newLoopEnv([]tool.Tool{render}, 100, nil, Config{})
	env.model.replies = []*schema.Message{
		toolCallReply("call-1", "render_image", `{"width":-1}`),
		finalReply("sorry, I could not render that", 0, 0),
	}

	out, err := env.engine.Run(context.Background(), testInput())
	require.NoError(t, err)

	// 校验失败：不执行、不扣费，把错误回灌给模型
	assert.Zero(t, render.executions())
	assert.Equal(t, int64(100), env.users.balance("u1"))
	assert.Zero(t, out.Usage.CreditsSpent)

	second := env.model.inputs[1]
	last := second[len(second)-1]
	assert.Equal(t, schema.Tool, last.Role)
	assert.Contains(t, last.Content, "error")
}

func TestRunUnknownToolIsFatal(t *testing.T) {
	env := newLoopEnv(nil, 100, nil, Config{})
	env.model.replies = []*schema.Message{
		toolCallReply("call-1", "delete_everything", `{}`),
	}

	_, err := env.engine.Run(context.Background(), testInput())
	require.Error(t, err)

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.CodeToolNotFound, appErr.Code)
}

func TestRunInsufficientCreditsFeedsBackToModel(t *testing.T) {
	render := &renderTool{name: "render_image", billable: true}
	env := newLoopEnv([]tool.Tool{render}, 3, nil, Config{})
	env.model.replies = []*schema.Message{
		toolCallReply("call-1", "render_image", `{}`),
		finalReply("you don't have enough credits for that", 0, 0),
	}

	out, err := env.engine.Run(context.Background(), testInput())
	require.NoError(t, err)

	// 余额不足不执行不扣费，失败作为工具结果回灌，回合继续
	assert.Zero(t, render.executions())
	assert.Equal(t, int64(3), env.users.balance("u1"))
	assert.Zero(t, out.Usage.CreditsSpent)
	assert.Empty(t, env.recorder.byKind(string(entity.UsageKindTool)))
	assert.Equal(t, "you don't have enough credits for that", out.Content)

	require.Len(t, env.model.inputs, 2)
	second := env.model.inputs[1]
	last := second[len(second)-1]
	assert.Equal(t, schema.Tool, last.Role)
	assert.Equal(t, "call-1", last.ToolCallID)
	assert.Contains(t, last.Content, "insufficient credits")
}

func TestRunPartialBatchRejectionKeepsSiblingResults(t *testing.T) {
	render := &renderTool{name: "render_image", billable: true, assetURL: "http://cdn/a.png"}
	env := newLoopEnv([]tool.Tool{render}, 10, nil, Config{})
	env.model.replies = []*schema.Message{
		schema.AssistantMessage("", []schema.ToolCall{
			{ID: "call-1", Function: schema.FunctionCall{Name: "render_image", Arguments: `{}`}},
			{ID: "call-2", Function: schema.FunctionCall{Name: "render_image", Arguments: `{}`}},
		}),
		finalReply("one render succeeded, one was rejected", 0, 0),
	}

	out, err := env.engine.Run(context.Background(), testInput())
	require.NoError(t, err)

	// 余额只够一次：恰好一次执行成功，另一次拒绝回灌，两条结果都保留
	assert.Equal(t, 1, render.executions())
	assert.Equal(t, int64(0), env.users.balance("u1"))
	assert.Equal(t, int64(10), out.Usage.CreditsSpent)

	require.Len(t, env.model.inputs, 2)
	second := env.model.inputs[1]
	require.GreaterOrEqual(t, len(second), 2)
	first := second[len(second)-2]
	last := second[len(second)-1]
	assert.Equal(t, schema.Tool, first.Role)
	assert.Equal(t, "call-1", first.ToolCallID)
	assert.Equal(t, schema.Tool, last.Role)
	assert.Equal(t, "call-2", last.ToolCallID)

	rejected := 0
	for _, msg := range []*schema.Message{first, last} {
		if strings.Contains(msg.Content, "insufficient credits") {
			rejected++
		}
	}
	assert.Equal(t, 1, rejected)
}

func TestCreditRejectionClassification(t *testing.T) {
	assert.True(t, isCreditRejection(apperrors.New(apperrors.CodeInsufficientCredits, "insufficient credits")))
	assert.True(t, isCreditRejection(apperrors.New(apperrors.CodeDailyLimitExceeded, "daily credit limit exceeded")))
	assert.False(t, isCreditRejection(apperrors.New(apperrors.CodeDatabaseError, "failed to deduct credits")))
	assert.False(t, isCreditRejection(errors.New("not an app error")))
}

func TestRunToolFailureIsNotRefunded(t *testing.T) {
	render := &renderTool{
		name:     "render_image",
		billable: true,
		execErr:  errors.New("provider unavailable"),
	}
	env := newLoopEnv([]tool.Tool{render}, 100, nil, Config{})
	env.model.replies = []*schema.Message{
		toolCallReply("call-1", "render_image", `{}`),
		finalReply("the render failed, try again later", 0, 0),
	}

	out, err := env.engine.Run(context.Background(), testInput())
	require.NoError(t, err)

	// 执行失败不退款，失败详情回灌给模型
	assert.Equal(t, 1, render.executions())
	assert.Equal(t, int64(90), env.users.balance("u1"))
	assert.Equal(t, int64(10), out.Usage.CreditsSpent)
	assert.Empty(t, out.Parts)

	second := env.model.inputs[1]
	last := second[len(second)-1]
	assert.Equal(t, schema.Tool, last.Role)
	assert.Contains(t, last.Content, "provider unavailable")
}

func TestRunParallelToolCalls(t *testing.T) {
	render := &renderTool{name: "render_image", billable: true, assetURL: "http://cdn/a.png"}
	env := newLoopEnv([]tool.Tool{render}, 100, nil, Config{})
	env.model.replies = []*schema.Message{
		schema.AssistantMessage("", []schema.ToolCall{
			{ID: "call-1", Function: schema.FunctionCall{Name: "render_image", Arguments: `{}`}},
			{ID: "call-2", Function: schema.FunctionCall{Name: "render_image", Arguments: `{}`}},
		}),
		finalReply("two images ready", 0, 0),
	}

	out, err := env.engine.Run(context.Background(), testInput())
	require.NoError(t, err)

	assert.Equal(t, 2, render.executions())
	assert.Equal(t, 2, out.Usage.ToolCalls)
	assert.Equal(t, int64(20), out.Usage.CreditsSpent)
	assert.Equal(t, int64(80), env.users.balance("u1"))

	// 工具结果按调用顺序回灌
	second := env.model.inputs[1]
	n := len(second)
	assert.Equal(t, "call-1", second[n-2].ToolCallID)
	assert.Equal(t, "call-2", second[n-1].ToolCallID)
}

func TestRunStreamEmitsDeltas(t *testing.T) {
	env := newLoopEnv(nil, 0, nil, Config{})
	env.model.streams = [][]*schema.Message{{
		{Role: schema.Assistant, Content: "Hel"},
		{Role: schema.Assistant, Content: "lo"},
	}}

	var deltas []string
	out, err := env.engine.RunStream(context.Background(), testInput(), func(delta string) {
		deltas = append(deltas, delta)
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"Hel", "lo"}, deltas)
	assert.Equal(t, "Hello", out.Content)
}

func TestRunStreamSuppressesToolDecisionFrames(t *testing.T) {
	render := &renderTool{name: "render_image", billable: false, assetURL: "http://cdn/a.png"}
	env := newLoopEnv([]tool.Tool{render}, 0, nil, Config{})
	idx := 0
	env.model.streams = [][]*schema.Message{
		{
			{Role: schema.Assistant, ToolCalls: []schema.ToolCall{{
				Index:    &idx,
				ID:       "call-1",
				Function: schema.FunctionCall{Name: "render_image", Arguments: `{}`},
			}}},
		},
		{
			{Role: schema.Assistant, Content: "done, "},
			{Role: schema.Assistant, Content: "enjoy"},
		},
	}

	var emitted strings.Builder
	out, err := env.engine.RunStream(context.Background(), testInput(), func(delta string) {
		emitted.WriteString(delta)
	})
	require.NoError(t, err)

	// 工具决策轮不向客户端下发内容
	assert.Equal(t, "done, enjoy", emitted.String())
	assert.Equal(t, "done, enjoy", out.Content)
	assert.Equal(t, 1, render.executions())
}
