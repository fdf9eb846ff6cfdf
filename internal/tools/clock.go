package tools

import (
	"context"
	"time"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"
)

// GetCurrentTimeInput 获取当前时间的输入参数（无参数）
type GetCurrentTimeInput struct{}

// GetCurrentTimeOutput 获取当前时间的输出
type GetCurrentTimeOutput struct {
	Time    string `json:"time"`
	Weekday string `json:"weekday"`
	Period  string `json:"period"`
}

var now = time.Now

func period(hour int) string {
	switch {
	case hour >= 6 && hour < 12:
		return "上午"
	case hour >= 12 && hour < 14:
		return "中午"
	case hour >= 14 && hour < 18:
		return "下午"
	case hour >= 18 && hour < 23:
		return "晚上"
	}
	return "深夜"
}

func getCurrentTimeFunc(ctx context.Context, input *GetCurrentTimeInput) (*GetCurrentTimeOutput, error) {
	t := now()
	output := &GetCurrentTimeOutput{
		Time:    t.Format("2006-01-02 15:04:05"),
		Weekday: t.Weekday().String(),
		Period:  period(t.Hour()),
	}
	LogToolCall("getCurrentTime", input, output, nil)
	return output, nil
}

// NewGetCurrentTimeTool 创建获取当前时间工具
func NewGetCurrentTimeTool() (tool.InvokableTool, error) {
	return utils.InferTool(
		"getCurrentTime",
		"获取当前时间。提醒群友做某事前可以先看看现在几点。",
		getCurrentTimeFunc,
	)
}
