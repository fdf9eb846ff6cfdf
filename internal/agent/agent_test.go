package agent

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"mention-bot/internal/config"
	"mention-bot/internal/llm"
	"mention-bot/internal/message"
	"mention-bot/internal/metrics"
	"mention-bot/internal/onebot"
	"mention-bot/internal/persona"
	"mention-bot/internal/roster"
	"mention-bot/internal/store"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testGroup = int64(42)
	selfID    = int64(10000)
)

type fakeBot struct {
	mu      sync.Mutex
	handler func(*onebot.GroupMessage)
	sent    []message.Chain
	err     error
}

func (b *fakeBot) OnMessage(handler func(*onebot.GroupMessage)) { b.handler = handler }
func (b *fakeBot) GetSelfID() int64                             { return selfID }

func (b *fakeBot) SendGroupChain(ctx context.Context, groupID int64, chain message.Chain) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return 0, b.err
	}
	b.sent = append(b.sent, chain)
	return int64(100 + len(b.sent)), nil
}

func (b *fakeBot) sentChains() []message.Chain {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]message.Chain(nil), b.sent...)
}

// fakeBot 同时实现 roster.Fetcher
func (b *fakeBot) FetchRoster(ctx context.Context, groupID int64) ([]roster.Entry, error) {
	return []roster.Entry{
		{UserID: "1001", Nickname: "Alice", Role: roster.RoleOwner},
		{UserID: "1002", Nickname: "Bob", Card: "Bobby", Role: roster.RoleMember},
	}, nil
}

type scriptedGen struct {
	mu      sync.Mutex
	replies []string
	errs    []error
	systems []string
	prompts []string
}

func (g *scriptedGen) Generate(ctx context.Context, prompt, systemPrompt string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	i := len(g.prompts)
	g.prompts = append(g.prompts, prompt)
	g.systems = append(g.systems, systemPrompt)
	if i < len(g.errs) && g.errs[i] != nil {
		return "", g.errs[i]
	}
	if i < len(g.replies) {
		return g.replies[i], nil
	}
	return "", llm.ErrEmptyResponse
}

type memRecorder struct {
	mu   sync.Mutex
	logs []*store.ReplyLog
}

func (r *memRecorder) SaveReply(ctx context.Context, log *store.ReplyLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = append(r.logs, log)
	return nil
}

func testConfig(mode string) *config.Config {
	c, _ := config.Parse([]byte(""))
	c.Groups = []config.GroupConfig{{GroupID: testGroup, Enabled: true, ExtraPrompt: "技术群"}}
	c.Mention.Mode = mode
	return c
}

func newTestAgent(t *testing.T, cfg *config.Config, gen llm.Generator, m model.ToolCallingChatModel) (*Agent, *fakeBot, *memRecorder) {
	t.Helper()
	bot := &fakeBot{}
	rec := &memRecorder{}
	svc := roster.NewService(bot, cfg.Mention.SearchLimit, nil)
	a, err := New(cfg, persona.NewPersona(&cfg.Persona), gen, m, bot, svc, metrics.MustNewMetrics(prometheus.NewRegistry()), rec)
	require.NoError(t, err)
	return a, bot, rec
}

func trigger(content string) *onebot.GroupMessage {
	return &onebot.GroupMessage{
		MessageID:  7,
		GroupID:    testGroup,
		UserID:     1001,
		Nickname:   "Alice",
		Content:    content,
		MentionBot: true,
	}
}

func TestHandleInjectModeRewritesTags(t *testing.T) {
	gen := &scriptedGen{replies: []string{"[at:1002] Alice 找你 [at:99x"}}
	a, bot, rec := newTestAgent(t, testConfig("inject"), gen, nil)

	reply, err := a.Handle(context.Background(), trigger("帮我叫一下 Bob"))
	require.NoError(t, err)

	assert.Equal(t, StatusSent, reply.Status)
	assert.Equal(t, 1, reply.Stats.Mentions)
	assert.Equal(t, 1, reply.Stats.Noise)
	require.Len(t, bot.sentChains(), 1)

	chain := bot.sentChains()[0]
	assert.Equal(t, message.SegmentType("reply"), chain[0].Type)
	assert.Equal(t, []string{"1002"}, chain.Mentions())
	assert.NotContains(t, chain.PlainText(), "[at")

	// 名单和艾特规则都注入到了系统提示词
	assert.Contains(t, gen.systems[0], "Bobby(ID:1002)")
	assert.Contains(t, gen.systems[0], "[at:123456]")
	assert.Contains(t, gen.systems[0], "技术群")
	assert.Contains(t, gen.prompts[0], "帮我叫一下 Bob")

	require.Len(t, rec.logs, 1)
	assert.Equal(t, "1002", rec.logs[0].Mentions)
	assert.Equal(t, reply.RequestID, rec.logs[0].RequestID)
}

func TestHandleDirectiveModeNotFound(t *testing.T) {
	gen := &scriptedGen{replies: []string{"[SEARCH:Charlie]", "群里没有叫 Charlie 的人哦"}}
	a, bot, rec := newTestAgent(t, testConfig("directive"), gen, nil)

	reply, err := a.Handle(context.Background(), trigger("叫一下 Charlie"))
	require.NoError(t, err)

	assert.Equal(t, []string{"Charlie"}, reply.Keywords)
	assert.Contains(t, gen.prompts[1], "未找到")
	assert.NotContains(t, gen.systems[0], "Bobby(ID:1002)")
	assert.Contains(t, gen.systems[0], "[SEARCH:关键词]")

	chain := bot.sentChains()[0]
	assert.NotContains(t, chain.PlainText(), "[SEARCH:")
	assert.Empty(t, chain.Mentions())
	assert.Equal(t, "Charlie", rec.logs[0].Keywords)
}

func TestHandleDirectiveModeFound(t *testing.T) {
	gen := &scriptedGen{replies: []string{"[SEARCH:bob]", "[at:1002] 有人找"}}
	a, bot, _ := newTestAgent(t, testConfig("directive"), gen, nil)

	_, err := a.Handle(context.Background(), trigger("叫一下 bob"))
	require.NoError(t, err)
	assert.Equal(t, []string{"1002"}, bot.sentChains()[0].Mentions())
}

func TestHandleGenerationFailureSendsNothing(t *testing.T) {
	gen := &scriptedGen{errs: []error{errors.New("503")}}
	a, bot, rec := newTestAgent(t, testConfig("inject"), gen, nil)

	reply, err := a.Handle(context.Background(), trigger("hi"))

	var ge *llm.GenerationError
	require.ErrorAs(t, err, &ge)
	assert.Equal(t, StatusGenerationFailed, reply.Status)
	assert.Empty(t, bot.sentChains())
	require.Len(t, rec.logs, 1)
	assert.Equal(t, StatusGenerationFailed, rec.logs[0].Status)
}

func TestHandleNoiseOnlyReplyIsNotSent(t *testing.T) {
	gen := &scriptedGen{replies: []string{"[at:abc]"}}
	a, bot, _ := newTestAgent(t, testConfig("inject"), gen, nil)

	reply, err := a.Handle(context.Background(), trigger("hi"))
	require.NoError(t, err)
	assert.Equal(t, StatusEmpty, reply.Status)
	assert.Empty(t, bot.sentChains())
}

func TestHandleSendFailure(t *testing.T) {
	gen := &scriptedGen{replies: []string{"好的"}}
	a, bot, _ := newTestAgent(t, testConfig("inject"), gen, nil)
	bot.err = errors.New("ws closed")

	reply, err := a.Handle(context.Background(), trigger("hi"))
	assert.Error(t, err)
	assert.Equal(t, StatusSendFailed, reply.Status)
}

func TestOnMessageFiltersAndDispatches(t *testing.T) {
	gen := &scriptedGen{replies: []string{"在的"}}
	a, bot, _ := newTestAgent(t, testConfig("inject"), gen, nil)
	a.Start()

	other := trigger("hi")
	other.GroupID = 999
	bot.handler(other)

	self := trigger("hi")
	self.UserID = selfID
	bot.handler(self)

	quiet := trigger("今天天气不错")
	quiet.MessageID = 8
	quiet.MentionBot = false
	bot.handler(quiet)

	byName := trigger("小爱在吗")
	byName.MessageID = 9
	byName.MentionBot = false
	bot.handler(byName)

	a.Stop()
	require.Len(t, bot.sentChains(), 1)
	// 之前的群聊作为上下文，触发消息本身不重复出现
	require.Len(t, gen.prompts, 1)
	assert.Contains(t, gen.prompts[0], "Alice(ID:1001): 今天天气不错")
	assert.Equal(t, 1, strings.Count(gen.prompts[0], "小爱在吗"))
	assert.Contains(t, gen.prompts[0], "小爱（你）(ID:10000): hi")
	assert.NotContains(t, gen.prompts[0], "Alice(ID:1001): hi")
	assert.Equal(t, uint64(1), a.Status().Sent)
	assert.Equal(t, "bracket", a.Status().Grammar)
	assert.True(t, a.Status().RosterSupported)
}

func TestStopWhileMessagesArrive(t *testing.T) {
	gen := &scriptedGen{}
	for i := 0; i < 64; i++ {
		gen.replies = append(gen.replies, "在的")
	}
	a, bot, _ := newTestAgent(t, testConfig("inject"), gen, nil)
	a.Start()

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			msg := trigger("hi")
			msg.MessageID = int64(100 + i)
			bot.handler(msg)
		}(i)
	}
	a.Stop()
	wg.Wait()
	a.Stop()

	// Stop 返回后新消息不再处理
	before := len(bot.sentChains())
	bot.handler(trigger("还在吗"))
	a.Stop()
	assert.Equal(t, before, len(bot.sentChains()))
}

func TestNewRejectsBadConfig(t *testing.T) {
	cfg := testConfig("inject")
	cfg.Mention.Grammar = "markdown"
	_, err := New(cfg, persona.NewPersona(&cfg.Persona), &scriptedGen{}, nil, &fakeBot{}, roster.NewService(nil, 0, nil), nil, nil)
	assert.Error(t, err)

	cfg = testConfig("tool")
	_, err = New(cfg, persona.NewPersona(&cfg.Persona), &scriptedGen{}, nil, &fakeBot{}, roster.NewService(nil, 0, nil), nil, nil)
	assert.Error(t, err)
}

// toolCallingModel 第一轮请求调用搜索工具，第二轮根据工具结果回复
type toolCallingModel struct {
	mu     sync.Mutex
	rounds [][]*schema.Message
}

func (m *toolCallingModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rounds = append(m.rounds, input)

	last := input[len(input)-1]
	if last.Role != schema.Tool {
		return schema.AssistantMessage("", []schema.ToolCall{{
			ID:       "call_1",
			Type:     "function",
			Function: schema.FunctionCall{Name: "searchGroupMembers", Arguments: `{"keyword":"bob"}`},
		}}), nil
	}
	if strings.Contains(last.Content, `"1002"`) {
		return schema.AssistantMessage("[at:1002] 有人找你", nil), nil
	}
	return schema.AssistantMessage("没找到", nil), nil
}

func (m *toolCallingModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("stream not supported")
}

func (m *toolCallingModel) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	return m, nil
}

func TestHandleToolMode(t *testing.T) {
	cm := &toolCallingModel{}
	a, bot, rec := newTestAgent(t, testConfig("tool"), &scriptedGen{}, cm)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	reply, err := a.Handle(ctx, trigger("叫一下 bob"))
	require.NoError(t, err)

	assert.Equal(t, StatusSent, reply.Status)
	assert.Equal(t, []string{"bob"}, reply.Keywords)
	assert.Equal(t, []string{"1002"}, bot.sentChains()[0].Mentions())
	assert.Len(t, cm.rounds, 2)
	assert.Contains(t, cm.rounds[0][0].Content, "searchGroupMembers")
	assert.Equal(t, "bob", rec.logs[0].Keywords)
}
