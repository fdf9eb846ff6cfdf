package agent

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"mention-bot/internal/config"
	"mention-bot/internal/history"
	"mention-bot/internal/llm"
	"mention-bot/internal/mention"
	"mention-bot/internal/message"
	"mention-bot/internal/metrics"
	"mention-bot/internal/onebot"
	"mention-bot/internal/persona"
	"mention-bot/internal/prompt"
	"mention-bot/internal/roster"
	"mention-bot/internal/store"
	"mention-bot/internal/tools"
	"mention-bot/internal/workflow"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/flow/agent/react"
	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// 单次请求（含两次生成和名单拉取）的总超时
const requestTimeout = 2 * time.Minute

// 回复状态
const (
	StatusSent             = "sent"
	StatusSendFailed       = "send_failed"
	StatusEmpty            = "empty"
	StatusGenerationFailed = "generation_failed"
)

// Bot 聊天平台
type Bot interface {
	OnMessage(handler func(*onebot.GroupMessage))
	GetSelfID() int64
	SendGroupChain(ctx context.Context, groupID int64, chain message.Chain) (int64, error)
}

// ReplyRecorder 回复日志
type ReplyRecorder interface {
	SaveReply(ctx context.Context, log *store.ReplyLog) error
}

// Reply 一次请求的处理结果
type Reply struct {
	RequestID string
	Chain     message.Chain
	Stats     mention.Stats
	Keywords  []string
	Fallback  bool
	MessageID int64
	Status    string
}

// Status 运行状态（管理接口用）
type Status struct {
	Mode            string `json:"mode"`
	Grammar         string `json:"grammar"`
	SelfID          int64  `json:"self_id"`
	RosterSupported bool   `json:"roster_supported"`
	Handled         uint64 `json:"handled"`
	Sent            uint64 `json:"sent"`
}

// Agent 收到@后生成回复，把模型输出里的艾特标签改写成真正的@再发出去
type Agent struct {
	cfg        *config.Config
	persona    *persona.Persona
	gen        llm.Generator
	react      *react.Agent
	bot        Bot
	roster     *roster.Service
	instructor *prompt.Instructor
	workflow   *workflow.Workflow
	grammar    *mention.Grammar
	mode       prompt.Mode
	metrics    *metrics.Metrics
	recorder   ReplyRecorder
	history    *history.Recorder

	handled atomic.Uint64
	sent    atomic.Uint64

	// mu 保证 stopped 的检查和 wg.Add 不会与 Stop 中的 wg.Wait 交错
	mu      sync.Mutex
	stopped bool
	wg      sync.WaitGroup
}

// New 创建 Agent
// m 只在 tool 模式下使用，mtr 和 rec 可以为 nil
func New(
	cfg *config.Config,
	p *persona.Persona,
	gen llm.Generator,
	m model.ToolCallingChatModel,
	bot Bot,
	svc *roster.Service,
	mtr *metrics.Metrics,
	rec ReplyRecorder,
) (*Agent, error) {
	grammar, err := mention.Lookup(cfg.Mention.Grammar)
	if err != nil {
		return nil, err
	}
	mode, err := prompt.ParseMode(cfg.Mention.Mode)
	if err != nil {
		return nil, err
	}

	a := &Agent{
		cfg:        cfg,
		persona:    p,
		gen:        gen,
		bot:        bot,
		roster:     svc,
		instructor: prompt.NewInstructor(grammar, workflow.SearchDirective, mode, svc, cfg.Mention.RosterCap),
		workflow:   workflow.New(gen, svc, grammar, cfg.Mention.SearchLimit),
		grammar:    grammar,
		mode:       mode,
		metrics:    mtr,
		recorder:   rec,
		history:    history.NewRecorder(cfg.History.Size),
	}

	if mode == prompt.ModeTool {
		if m == nil {
			return nil, fmt.Errorf("tool 模式需要支持工具调用的模型")
		}
		if err := a.initReact(m); err != nil {
			return nil, err
		}
	}
	return a, nil
}

func (a *Agent) initReact(m model.ToolCallingChatModel) error {
	ts, err := tools.All()
	if err != nil {
		return err
	}
	agent, err := react.NewAgent(context.Background(), &react.AgentConfig{
		ToolCallingModel: m,
		ToolsConfig:      compose.ToolsNodeConfig{Tools: ts},
		MaxStep:          a.cfg.Mention.MaxStep,
	})
	if err != nil {
		return fmt.Errorf("创建 ReAct Agent 失败: %w", err)
	}
	a.react = agent
	return nil
}

// Start 启动
func (a *Agent) Start() {
	a.bot.OnMessage(a.onMessage)
	zap.L().Info("Agent已启动", zap.String("mode", string(a.mode)), zap.String("grammar", a.grammar.Name))
}

// Stop 停止接收新消息并等待进行中的请求结束
func (a *Agent) Stop() {
	a.mu.Lock()
	a.stopped = true
	a.mu.Unlock()
	a.wg.Wait()
	zap.L().Info("Agent已停止")
}

// Status 当前状态
func (a *Agent) Status() Status {
	return Status{
		Mode:            string(a.mode),
		Grammar:         a.grammar.Name,
		SelfID:          a.bot.GetSelfID(),
		RosterSupported: a.roster.Supported(),
		Handled:         a.handled.Load(),
		Sent:            a.sent.Load(),
	}
}

// Grammar 当前使用的艾特语法
func (a *Agent) Grammar() *mention.Grammar {
	return a.grammar
}

func (a *Agent) onMessage(msg *onebot.GroupMessage) {
	if !a.cfg.IsGroupEnabled(msg.GroupID) {
		return
	}
	a.history.Add(msg.GroupID, history.Line{
		MessageID: msg.MessageID,
		UserID:    msg.UserID,
		Name:      msg.SenderName(),
		Content:   msg.Content,
		Time:      msg.Time,
		Self:      msg.UserID == a.bot.GetSelfID(),
	})
	if !a.shouldReply(msg) {
		return
	}

	// 每个请求独立处理，互不共享状态
	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		return
	}
	a.wg.Add(1)
	a.mu.Unlock()
	go func() {
		defer a.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		_, _ = a.Handle(ctx, msg)
	}()
}

// shouldReply 群已启用、不是自己发的，并且@了机器人或叫了名字
func (a *Agent) shouldReply(msg *onebot.GroupMessage) bool {
	if !a.cfg.IsGroupEnabled(msg.GroupID) || msg.UserID == a.bot.GetSelfID() {
		return false
	}
	return msg.MentionBot || a.persona.IsMentioned(msg.Content)
}

// Handle 处理一条触发消息：生成、改写、发送、记录
func (a *Agent) Handle(ctx context.Context, msg *onebot.GroupMessage) (*Reply, error) {
	a.handled.Add(1)
	start := time.Now()
	reply := &Reply{RequestID: uuid.NewString()}
	log := zap.L().With(zap.String("request_id", reply.RequestID), zap.Int64("group_id", msg.GroupID))

	systemPrompt, userPrompt := a.buildPrompts(ctx, msg)
	text, err := a.generate(ctx, msg, reply, systemPrompt, userPrompt)
	elapsed := time.Since(start)
	a.metrics.ObserveRequestDuration(string(a.mode), elapsed)
	if err != nil {
		log.Error("生成回复失败", zap.Error(err))
		reply.Status = StatusGenerationFailed
		a.metrics.ObserveReply(reply.Status)
		a.record(ctx, msg, reply, elapsed)
		return reply, err
	}

	chain := make(message.Chain, 0, 2)
	if a.cfg.Mention.QuoteTrigger() && msg.MessageID != 0 {
		chain = append(chain, message.Raw("reply", map[string]interface{}{"id": strconv.FormatInt(msg.MessageID, 10)}))
	}
	chain = append(chain, message.Text(text))

	reply.Chain, reply.Stats = mention.RewriteStats(chain, a.grammar, mention.Options{ZeroWidthGuard: a.cfg.Mention.GuardEnabled()})
	a.metrics.ObserveRewrite(reply.Stats)
	if reply.Stats.Noise > 0 {
		log.Debug("移除了格式错误的艾特标签", zap.Int("noise", reply.Stats.Noise))
	}

	if !hasContent(reply.Chain) {
		log.Warn("改写后回复为空，不发送")
		reply.Status = StatusEmpty
		a.metrics.ObserveReply(reply.Status)
		a.record(ctx, msg, reply, elapsed)
		return reply, nil
	}

	reply.MessageID, err = a.bot.SendGroupChain(ctx, msg.GroupID, reply.Chain)
	if err != nil {
		log.Error("发言失败", zap.Error(err))
		reply.Status = StatusSendFailed
	} else {
		reply.Status = StatusSent
		a.sent.Add(1)
		a.history.Add(msg.GroupID, history.Line{
			MessageID: reply.MessageID,
			UserID:    a.bot.GetSelfID(),
			Content:   replyText(reply.Chain),
			Self:      true,
		})
		log.Info("发言成功", zap.String("content", replyText(reply.Chain)), zap.Strings("mentions", reply.Chain.Mentions()))
	}
	a.metrics.ObserveReply(reply.Status)
	a.record(ctx, msg, reply, elapsed)
	return reply, err
}

func (a *Agent) buildPrompts(ctx context.Context, msg *onebot.GroupMessage) (string, string) {
	pc := &persona.PromptContext{GroupID: msg.GroupID, AccountID: a.bot.GetSelfID()}
	if gc := a.cfg.GetGroupConfig(msg.GroupID); gc != nil {
		pc.ExtraPrompt = gc.ExtraPrompt
	}

	req := &prompt.Request{GroupID: msg.GroupID, SystemPrompt: a.persona.GetSystemPrompt(pc)}
	a.instructor.Instruct(ctx, req)
	var recent string
	if n := a.cfg.History.PromptLines; n > 0 {
		recent = history.Format(a.history.Recent(msg.GroupID, n, msg.MessageID), a.persona.GetName())
	}
	userPrompt := a.persona.GetReplyPrompt(msg.SenderName(), msg.Content, recent)

	// 调试：显示系统提示词
	if a.cfg.Debug.ShowPrompt {
		zap.L().Debug("系统提示词", zap.String("prompt", req.SystemPrompt))
	}
	return req.SystemPrompt, userPrompt
}

// generate 按模式生成回复文本
func (a *Agent) generate(ctx context.Context, msg *onebot.GroupMessage, reply *Reply, systemPrompt, userPrompt string) (string, error) {
	switch a.mode {
	case prompt.ModeDirective:
		out, err := a.workflow.Run(ctx, workflow.Request{GroupID: msg.GroupID, Text: userPrompt, SystemPrompt: systemPrompt})
		if err != nil {
			a.metrics.ObserveGeneration("initial", err)
			return "", err
		}
		a.metrics.ObserveGeneration("initial", nil)
		if len(out.Keywords) > 0 {
			var followErr error
			if out.Fallback {
				followErr = llm.ErrEmptyResponse
			}
			a.metrics.ObserveGeneration("followup", followErr)
		}
		for _, r := range out.Results {
			a.metrics.ObserveLookup(r)
		}
		reply.Keywords = out.Keywords
		reply.Fallback = out.Fallback
		return out.Text, nil

	case prompt.ModeTool:
		// 同一轮的多个工具调用可能并发执行
		var mu sync.Mutex
		ctx = tools.WithToolContext(ctx, &tools.ToolContext{
			GroupID:   msg.GroupID,
			RequestID: reply.RequestID,
			Roster:    a.roster,
			OnLookup: func(r *roster.Result) {
				a.metrics.ObserveLookup(r)
				mu.Lock()
				reply.Keywords = append(reply.Keywords, r.Keyword)
				mu.Unlock()
			},
		})
		resp, err := a.react.Generate(ctx, []*schema.Message{
			schema.SystemMessage(systemPrompt),
			schema.UserMessage(userPrompt),
		})
		if err == nil && (resp == nil || strings.TrimSpace(resp.Content) == "") {
			err = llm.ErrEmptyResponse
		}
		a.metrics.ObserveGeneration("react", err)
		if err != nil {
			return "", &llm.GenerationError{Stage: "react", Err: err}
		}
		return resp.Content, nil
	}

	text, err := a.gen.Generate(ctx, userPrompt, systemPrompt)
	if err == nil && strings.TrimSpace(text) == "" {
		err = llm.ErrEmptyResponse
	}
	a.metrics.ObserveGeneration("initial", err)
	if err != nil {
		var ge *llm.GenerationError
		if !errors.As(err, &ge) {
			err = &llm.GenerationError{Stage: "initial", Err: err}
		}
		return "", err
	}
	return text, nil
}

// hasContent 是否有可见的文本或@
func hasContent(chain message.Chain) bool {
	for _, seg := range chain {
		if seg.IsMention() {
			return true
		}
		if seg.IsText() && strings.TrimSpace(strings.ReplaceAll(seg.Text, message.ZeroWidthSpace, "")) != "" {
			return true
		}
	}
	return false
}

// replyText 去掉引用段后的可读文本
func replyText(chain message.Chain) string {
	if len(chain) > 0 && chain[0].Type == "reply" {
		chain = chain[1:]
	}
	return chain.Render()
}

func (a *Agent) record(ctx context.Context, msg *onebot.GroupMessage, reply *Reply, elapsed time.Duration) {
	if a.recorder == nil {
		return
	}
	entry := &store.ReplyLog{
		RequestID:    reply.RequestID,
		GroupID:      msg.GroupID,
		UserID:       msg.UserID,
		TriggerMsgID: msg.MessageID,
		MessageID:    reply.MessageID,
		Mode:         string(a.mode),
		Status:       reply.Status,
		Content:      msg.Content,
		Reply:        replyText(reply.Chain),
		Mentions:     store.JoinIDs(reply.Chain.Mentions()),
		MentionCount: reply.Stats.Mentions,
		NoiseCount:   reply.Stats.Noise,
		Keywords:     strings.Join(reply.Keywords, ","),
		Fallback:     reply.Fallback,
		DurationMs:   elapsed.Milliseconds(),
	}
	if err := a.recorder.SaveReply(ctx, entry); err != nil {
		zap.L().Warn("保存回复日志失败", zap.String("request_id", reply.RequestID), zap.Error(err))
	}
}
