package prompt

import (
	"context"
	"testing"

	"mention-bot/internal/mention"
	"mention-bot/internal/roster"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var directive = mention.MustGrammar("search", "[SEARCH:", "]", `[^\]\n]+`, "[SEARCH")

type staticFetcher []roster.Entry

func (f staticFetcher) FetchRoster(ctx context.Context, groupID int64) ([]roster.Entry, error) {
	return f, nil
}

var members = staticFetcher{
	{UserID: "1001", Nickname: "Alice", Role: roster.RoleOwner},
	{UserID: "1002", Nickname: "Bob", Card: "Bobby"},
}

func TestParseMode(t *testing.T) {
	for in, want := range map[string]Mode{"": ModeInject, "Inject": ModeInject, " directive ": ModeDirective, "TOOL": ModeTool} {
		got, err := ParseMode(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseMode("auto")
	assert.Error(t, err)
}

func TestInstructInjectsRosterAndRule(t *testing.T) {
	in := NewInstructor(mention.Bracket, directive, ModeInject, roster.NewService(members, 0, nil), 0)
	req := &Request{GroupID: 42, SystemPrompt: "你是小爱"}

	require.True(t, in.Instruct(context.Background(), req))
	assert.Contains(t, req.SystemPrompt, "你是小爱\n\n[当前群聊环境信息]")
	assert.Contains(t, req.SystemPrompt, "群号: 42")
	assert.Contains(t, req.SystemPrompt, "群成员列表: Alice(ID:1001), Bobby(ID:1002)")
	assert.Contains(t, req.SystemPrompt, mention.Bracket.Describe())
	assert.Contains(t, req.SystemPrompt, "[at:123456]")
	assert.Contains(t, req.SystemPrompt, "只能使用上面名单中出现的用户ID")
	assert.NotContains(t, req.SystemPrompt, "[SEARCH:")
}

func TestInstructTruncatesLargeRoster(t *testing.T) {
	in := NewInstructor(mention.XML, directive, ModeInject, roster.NewService(members, 0, nil), 1)
	req := &Request{GroupID: 42}

	require.True(t, in.Instruct(context.Background(), req))
	assert.Contains(t, req.SystemPrompt, "Alice(ID:1001)")
	assert.NotContains(t, req.SystemPrompt, "Bobby")
	assert.Contains(t, req.SystemPrompt, "只列出了前 1 人")
	assert.Contains(t, req.SystemPrompt, `<at id="123456"/>`)
}

func TestInstructUsesPrefetchedRoster(t *testing.T) {
	in := NewInstructor(mention.Bracket, directive, ModeInject, nil, 0)
	req := &Request{GroupID: 42, Roster: []roster.Entry{{UserID: "7", Nickname: "Carol"}}}

	require.True(t, in.Instruct(context.Background(), req))
	assert.Contains(t, req.SystemPrompt, "Carol(ID:7)")
}

func TestInstructDirectiveAndToolModes(t *testing.T) {
	svc := roster.NewService(members, 0, nil)

	req := &Request{GroupID: 42}
	require.True(t, NewInstructor(mention.Bracket, directive, ModeDirective, svc, 0).Instruct(context.Background(), req))
	assert.Contains(t, req.SystemPrompt, "[SEARCH:关键词]")
	assert.NotContains(t, req.SystemPrompt, "Bobby")

	req = &Request{GroupID: 42}
	require.True(t, NewInstructor(mention.Tagged, directive, ModeTool, svc, 0).Instruct(context.Background(), req))
	assert.Contains(t, req.SystemPrompt, SearchToolName)
	assert.Contains(t, req.SystemPrompt, "[mention:123456]")
}

func TestInstructSkipsWithoutContext(t *testing.T) {
	in := NewInstructor(mention.Bracket, directive, ModeInject, roster.NewService(members, 0, nil), 0)
	req := &Request{SystemPrompt: "base"}
	assert.False(t, in.Instruct(context.Background(), req))
	assert.Equal(t, "base", req.SystemPrompt)

	assert.False(t, in.Instruct(context.Background(), nil))

	// 平台不支持名单时不注入，也不报错
	unsupported := NewInstructor(mention.Bracket, directive, ModeInject, roster.NewService(nil, 0, nil), 0)
	req = &Request{GroupID: 42, SystemPrompt: "base"}
	assert.False(t, unsupported.Instruct(context.Background(), req))
	assert.Equal(t, "base", req.SystemPrompt)
}
