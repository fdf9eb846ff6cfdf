package prompt

import (
	"context"
	"fmt"
	"strings"

	"mention-bot/internal/mention"
	"mention-bot/internal/roster"

	"go.uber.org/zap"
)

// Mode 名单提供方式
type Mode string

const (
	// ModeInject 把完整名单直接写进系统提示词
	ModeInject Mode = "inject"
	// ModeDirective 模型输出查询指令，系统查询后再让模型生成一次
	ModeDirective Mode = "directive"
	// ModeTool 模型通过工具调用按需查询
	ModeTool Mode = "tool"
)

// SearchToolName 成员查询工具的名字
const SearchToolName = "searchGroupMembers"

// ParseMode 解析模式，空字符串为 inject
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeInject:
		return ModeInject, nil
	case ModeDirective:
		return ModeDirective, nil
	case ModeTool:
		return ModeTool, nil
	}
	return "", fmt.Errorf("未知的名单模式: %s", s)
}

// Request 一次模型请求的提示词部分
type Request struct {
	GroupID      int64
	SystemPrompt string
	Roster       []roster.Entry // 已经拉取好的名单，为空时按需拉取
}

// Instructor 在每次请求前往系统提示词里追加艾特语法说明
type Instructor struct {
	grammar   *mention.Grammar
	directive *mention.Grammar
	mode      Mode
	roster    *roster.Service
	rosterCap int
}

// NewInstructor 创建 Instructor
// rosterCap 为 inject 模式下注入名单的人数上限，0 表示不限制（大群会让提示词变得很长）
func NewInstructor(g *mention.Grammar, directive *mention.Grammar, mode Mode, svc *roster.Service, rosterCap int) *Instructor {
	return &Instructor{
		grammar:   g,
		directive: directive,
		mode:      mode,
		roster:    svc,
		rosterCap: rosterCap,
	}
}

// Instruct 追加说明，返回是否追加了内容
// 不在群聊中、名单为空或拉取失败时什么也不做，不会返回错误
func (in *Instructor) Instruct(ctx context.Context, req *Request) bool {
	if req == nil || req.GroupID == 0 {
		return false
	}

	var b strings.Builder
	b.WriteString("\n\n[当前群聊环境信息]\n")
	fmt.Fprintf(&b, "群号: %d\n", req.GroupID)

	if in.mode == ModeInject {
		entries := req.Roster
		if len(entries) == 0 {
			if in.roster == nil {
				return false
			}
			fetched, err := in.roster.Fetch(ctx, req.GroupID)
			if err != nil {
				zap.L().Warn("获取群成员失败，跳过名单注入", zap.Int64("group_id", req.GroupID), zap.Error(err))
				return false
			}
			entries = fetched
		}
		list, truncated := roster.FormatList(entries, in.rosterCap)
		if list == "" {
			return false
		}
		fmt.Fprintf(&b, "群成员列表: %s\n", list)
		if truncated {
			fmt.Fprintf(&b, "（群成员较多，只列出了前 %d 人）\n", in.rosterCap)
		}
		zap.L().Debug("已注入群成员名单", zap.Int64("group_id", req.GroupID), zap.Int("total", len(entries)), zap.Bool("truncated", truncated))
	}

	b.WriteString("[艾特规则]\n")
	b.WriteString("如果你认为必须引起特定群成员的注意（艾特/提醒），请在回复中插入艾特标签。标签语法只有这一种：\n")
	b.WriteString(in.grammar.Describe() + "\n")
	fmt.Fprintf(&b, "例如：%s\n", in.grammar.Format("123456"))

	switch in.mode {
	case ModeInject:
		b.WriteString("只能使用上面名单中出现的用户ID。\n")
	case ModeDirective:
		fmt.Fprintf(&b, "如果不知道对方的用户ID，先只输出一行 %s（关键词为对方的昵称或群名片），不要输出其他内容，系统会把查询结果告诉你。\n",
			in.directive.Open+"关键词"+in.directive.Close)
		b.WriteString("没有查到就不要艾特。\n")
	case ModeTool:
		fmt.Fprintf(&b, "如果不知道对方的用户ID，先调用 %s 工具按昵称或群名片查询，再插入标签。没有查到就不要艾特。\n", SearchToolName)
	}
	b.WriteString("严禁编造不存在的用户ID。不要输出多余的解释文本，直接把标签嵌入回复即可。")

	req.SystemPrompt += b.String()
	return true
}
