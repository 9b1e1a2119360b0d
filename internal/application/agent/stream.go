package agent

import (
	"context"
	"errors"
	"io"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// generateStreaming 流式调用模型并实时下发内容增量。
// 一旦帧里出现工具调用就停止下发（本轮是工具决策，不是最终回复），
// 全部帧合并为一条完整的助手消息返回。
func (e *Engine) generateStreaming(ctx context.Context, bound model.ToolCallingChatModel, messages []*schema.Message, emit func(delta string)) (*schema.Message, error) {
	reader, err := bound.Stream(ctx, messages)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	var frames []*schema.Message
	seenToolCall := false
	for {
		frame, err := reader.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, err
		}

		frames = append(frames, frame)
		if len(frame.ToolCalls) > 0 {
			seenToolCall = true
		}
		if !seenToolCall && frame.Content != "" {
			emit(frame.Content)
		}
	}

	if len(frames) == 0 {
		return nil, io.ErrUnexpectedEOF
	}
	return schema.ConcatMessages(frames)
}
