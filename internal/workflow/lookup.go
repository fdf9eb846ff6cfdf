package workflow

import (
	"context"
	"fmt"
	"strings"

	"mention-bot/internal/llm"
	"mention-bot/internal/mention"
	"mention-bot/internal/roster"

	"go.uber.org/zap"
)

// SearchDirective 模型请求查询群成员时输出的指令：[SEARCH:关键词]
// 不区分大小写，和移除残留指令时的匹配范围一致
var SearchDirective = mention.MustGrammar("search", "[SEARCH:", "]", `[^\]\n]+`, "[SEARCH").FoldCase()

// 一次回复中最多处理的查询关键词数
const maxKeywords = 3

// State 两阶段查询的状态
type State int

const (
	AwaitingInitialResponse State = iota
	AwaitingFollowup
	Done
)

func (s State) String() string {
	switch s {
	case AwaitingInitialResponse:
		return "awaiting_initial_response"
	case AwaitingFollowup:
		return "awaiting_followup"
	case Done:
		return "done"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Searcher 成员查询，*roster.Service 实现了它
type Searcher interface {
	Lookup(ctx context.Context, groupID int64, keyword string, limit int) *roster.Result
}

// Request 一次请求
type Request struct {
	GroupID      int64
	Text         string // 群友的原始消息
	SystemPrompt string
}

// Outcome 运行结果
type Outcome struct {
	Text     string
	State    State
	Keywords []string
	Results  []*roster.Result
	Fallback bool // 第二次生成失败，使用了兜底文本
}

// Workflow 两阶段查询：首次生成 → (查询指令) → 查询 → 第二次生成
type Workflow struct {
	gen      llm.Generator
	searcher Searcher
	tag      *mention.Grammar
	limit    int
}

// New 创建两阶段查询流程
func New(gen llm.Generator, searcher Searcher, tag *mention.Grammar, limit int) *Workflow {
	return &Workflow{gen: gen, searcher: searcher, tag: tag, limit: limit}
}

// Run 执行流程；只有首次生成失败时返回 *llm.GenerationError
func (w *Workflow) Run(ctx context.Context, req Request) (*Outcome, error) {
	out := &Outcome{State: AwaitingInitialResponse}

	initial, err := w.gen.Generate(ctx, req.Text, req.SystemPrompt)
	if err != nil {
		return out, &llm.GenerationError{Stage: "initial", Err: err}
	}

	out.Keywords = ExtractKeywords(initial)
	if len(out.Keywords) == 0 {
		out.Text = StripDirectives(initial)
		out.State = Done
		return out, nil
	}

	out.State = AwaitingFollowup
	for _, kw := range out.Keywords {
		out.Results = append(out.Results, w.searcher.Lookup(ctx, req.GroupID, kw, w.limit))
	}
	zap.L().Debug("模型请求查询群成员", zap.Int64("group_id", req.GroupID), zap.Strings("keywords", out.Keywords))

	followup, err := w.gen.Generate(ctx, w.followupPrompt(req.Text, out.Results), req.SystemPrompt)
	text := StripDirectives(followup)
	if err != nil || strings.TrimSpace(text) == "" {
		if err == nil {
			err = llm.ErrEmptyResponse
		}
		zap.L().Warn("第二次生成失败，使用兜底回复", zap.Int64("group_id", req.GroupID),
			zap.Error(&llm.GenerationError{Stage: "followup", Err: err}))
		out.Text = FallbackText(out.Results)
		out.Fallback = true
	} else {
		out.Text = text
	}
	out.State = Done
	return out, nil
}

func (w *Workflow) followupPrompt(userText string, results []*roster.Result) string {
	var b strings.Builder
	b.WriteString("群友的消息：\n")
	b.WriteString(userText)
	b.WriteString("\n\n你刚才请求查询群成员，查询结果如下：\n")
	for _, r := range results {
		b.WriteString(r.Summary())
		b.WriteString("\n")
	}
	b.WriteString("\n请根据查询结果直接给出最终回复。需要艾特时在回复中插入标签，")
	b.WriteString(w.tag.Describe())
	fmt.Fprintf(&b, "，例如：%s。\n", w.tag.Format("123456"))
	b.WriteString("只能使用查询结果中出现的用户ID，严禁编造；未找到或查询失败时不要艾特，可以向对方说明情况。\n")
	b.WriteString("不要再输出查询指令。")
	return b.String()
}

// ExtractKeywords 提取查询指令中的关键词，去重并保持顺序
func ExtractKeywords(text string) []string {
	var keywords []string
	seen := make(map[string]bool)
	for _, m := range SearchDirective.FindAll(text) {
		kw := strings.TrimSpace(m.UserID)
		if kw == "" || seen[kw] {
			continue
		}
		seen[kw] = true
		keywords = append(keywords, kw)
		if len(keywords) == maxKeywords {
			break
		}
	}
	return keywords
}

// StripDirectives 移除文本中残留的查询指令
func StripDirectives(text string) string {
	return strings.TrimSpace(mention.Strip(text, SearchDirective))
}

// FallbackText 第二次生成失败时的确定性回复，保留查询结果本身
func FallbackText(results []*roster.Result) string {
	lines := make([]string, 0, len(results)+1)
	lines = append(lines, "我帮你查了一下群成员：")
	for _, r := range results {
		lines = append(lines, r.Summary())
	}
	return strings.Join(lines, "\n")
}
