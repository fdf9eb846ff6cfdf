package llm

import (
	"context"
	"errors"
	"testing"

	"mention-bot/internal/config"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoModel struct {
	reply string
	err   error
	got   []*schema.Message
}

func (m *echoModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	m.got = input
	if m.err != nil {
		return nil, m.err
	}
	return schema.AssistantMessage(m.reply, nil), nil
}

func (m *echoModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("not implemented")
}

func (m *echoModel) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	return m, nil
}

func TestGenerateBuildsMessages(t *testing.T) {
	m := &echoModel{reply: "好的"}
	c := NewClientWithModel(&config.LLMConfig{}, m)

	out, err := c.Generate(context.Background(), "在吗", "你是小爱")
	require.NoError(t, err)
	assert.Equal(t, "好的", out)
	require.Len(t, m.got, 2)
	assert.Equal(t, schema.System, m.got[0].Role)
	assert.Equal(t, schema.User, m.got[1].Role)
	assert.Equal(t, "在吗", m.got[1].Content)

	_, _ = c.Generate(context.Background(), "在吗", "")
	assert.Len(t, m.got, 1)
	assert.Same(t, m, c.GetModel())
}

func TestGenerateBlankIsEmptyResponse(t *testing.T) {
	c := NewClientWithModel(&config.LLMConfig{}, &echoModel{reply: "  \n"})
	_, err := c.Generate(context.Background(), "x", "")
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestGenerationErrorUnwraps(t *testing.T) {
	cause := errors.New("503")
	c := NewClientWithModel(&config.LLMConfig{}, &echoModel{err: cause})
	_, err := c.Generate(context.Background(), "x", "")
	require.ErrorIs(t, err, cause)

	ge := &GenerationError{Stage: "followup", Err: err}
	assert.ErrorIs(t, ge, cause)
	assert.Contains(t, ge.Error(), "followup")
}
