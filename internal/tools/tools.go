package tools

import (
	"context"

	"mention-bot/internal/config"
	"mention-bot/internal/roster"

	"github.com/bytedance/sonic"
	"github.com/cloudwego/eino/components/tool"
	"go.uber.org/zap"
)

// ToolContext 工具执行上下文
type ToolContext struct {
	GroupID   int64
	RequestID string
	Roster    *roster.Service
	// OnLookup 每次成员查询完成后回调（统计用，可为空）
	OnLookup func(r *roster.Result)
}

// ctxKey 上下文键类型
type ctxKey string

const toolContextKey ctxKey = "tool_context"

// WithToolContext 将工具上下文放入 context
func WithToolContext(ctx context.Context, tc *ToolContext) context.Context {
	return context.WithValue(ctx, toolContextKey, tc)
}

// GetToolContext 从 context 获取工具上下文
func GetToolContext(ctx context.Context) *ToolContext {
	if tc, ok := ctx.Value(toolContextKey).(*ToolContext); ok {
		return tc
	}
	return nil
}

// LogToolCall 记录工具调用
func LogToolCall(toolName string, input interface{}, output interface{}, err error) {
	cfg := config.Get()
	if cfg == nil || !cfg.Debug.ShowToolCalls {
		return
	}
	inputJSON, _ := sonic.MarshalString(input)
	outputJSON, _ := sonic.MarshalString(output)
	fields := []zap.Field{zap.String("tool", toolName), zap.String("input", inputJSON), zap.String("output", outputJSON)}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	zap.L().Debug("工具调用", fields...)
}

// All 创建 tool 模式下提供给模型的全部工具
func All() ([]tool.BaseTool, error) {
	search, err := NewSearchGroupMembersTool()
	if err != nil {
		return nil, err
	}
	clock, err := NewGetCurrentTimeTool()
	if err != nil {
		return nil, err
	}
	return []tool.BaseTool{search, clock}, nil
}
