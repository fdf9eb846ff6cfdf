package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"mention-bot/internal/config"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// ErrEmptyResponse 模型返回了空内容
var ErrEmptyResponse = errors.New("模型返回为空")

// GenerationError 模型调用失败
type GenerationError struct {
	Stage string // initial / followup / react
	Err   error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("模型调用失败[%s]: %v", e.Stage, e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// Generator 根据用户提示词和系统提示词生成一段文本
type Generator interface {
	Generate(ctx context.Context, prompt, systemPrompt string) (string, error)
}

// Client LLM 客户端
type Client struct {
	cfg       *config.LLMConfig
	chatModel model.ToolCallingChatModel
}

// NewClient 创建 LLM 客户端
func NewClient(cfg *config.LLMConfig) (*Client, error) {
	ctx := context.Background()

	// 使用 Eino 的 OpenAI 兼容客户端
	chatModel, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		BaseURL:     cfg.BaseURL,
		APIKey:      cfg.APIKey,
		Model:       cfg.Model,
		ExtraFields: cfg.ExtraFields,
	})
	if err != nil {
		return nil, fmt.Errorf("创建 ChatModel 失败: %w", err)
	}

	return NewClientWithModel(cfg, chatModel), nil
}

// NewClientWithModel 使用已有的 ChatModel 创建客户端
func NewClientWithModel(cfg *config.LLMConfig, m model.ToolCallingChatModel) *Client {
	return &Client{cfg: cfg, chatModel: m}
}

// GetModel 获取底层模型（支持工具调用）
func (c *Client) GetModel() model.ToolCallingChatModel {
	return c.chatModel
}

// Generate 单轮生成，空回复视为失败
func (c *Client) Generate(ctx context.Context, prompt, systemPrompt string) (string, error) {
	msgs := make([]*schema.Message, 0, 2)
	if systemPrompt != "" {
		msgs = append(msgs, schema.SystemMessage(systemPrompt))
	}
	msgs = append(msgs, schema.UserMessage(prompt))

	resp, err := c.chatModel.Generate(ctx, msgs)
	if err != nil {
		return "", err
	}
	if resp == nil || strings.TrimSpace(resp.Content) == "" {
		return "", ErrEmptyResponse
	}
	return resp.Content, nil
}

var _ Generator = (*Client)(nil)
