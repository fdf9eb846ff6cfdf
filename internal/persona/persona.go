package persona

import (
	"fmt"
	"strings"
	"time"

	"mention-bot/internal/config"
)

// PromptContext 动态 prompt 上下文
type PromptContext struct {
	GroupID     int64
	AccountID   int64  // 机器人的QQ号
	ExtraPrompt string // 群专属提示词
	Now         time.Time
}

// Persona 人格定义
type Persona struct {
	cfg *config.PersonaConfig
}

func NewPersona(cfg *config.PersonaConfig) *Persona {
	return &Persona{cfg: cfg}
}

// GetSystemPrompt 获取系统提示词，艾特规则由 prompt.Instructor 另外追加
func (p *Persona) GetSystemPrompt(ctx *PromptContext) string {
	if ctx == nil {
		ctx = &PromptContext{}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "你是%s，QQ群里的助理。", p.cfg.Name)
	if ctx.AccountID != 0 {
		fmt.Fprintf(&b, "你的QQ号是%d。", ctx.AccountID)
	}
	b.WriteString("\n")

	if p.cfg.SpeakingStyle != "" {
		fmt.Fprintf(&b, "\n## 说话风格\n%s\n", p.cfg.SpeakingStyle)
	}
	if p.cfg.Personality != "" {
		fmt.Fprintf(&b, "\n## 更多关于你\n%s\n", p.cfg.Personality)
	}
	if ctx.ExtraPrompt != "" {
		fmt.Fprintf(&b, "\n## 本群说明\n%s\n", ctx.ExtraPrompt)
	}

	now := ctx.Now
	if now.IsZero() {
		now = time.Now()
	}
	fmt.Fprintf(&b, "\n## 当前时间\n%s\n", timeContext(now))

	b.WriteString(`
## 行为准则
1. 不用markdown，这是QQ群，纯文字
2. 回复简短，说人话
3. 群友让你叫人、提醒人、转告时，用艾特让对方看到
4. 不需要引起谁注意时不要艾特
`)
	return b.String()
}

// GetReplyPrompt 获取回复提示词，recent 为最近的聊天记录，可以为空
func (p *Persona) GetReplyPrompt(senderName, content, recent string) string {
	var b strings.Builder
	if recent != "" {
		b.WriteString("最近的群聊记录：\n")
		b.WriteString(recent)
		b.WriteString("\n\n")
	}
	fmt.Fprintf(&b, "群友「%s」对你说：\n%s\n\n请以%s的身份回复。", senderName, content, p.cfg.Name)
	return b.String()
}

func timeContext(now time.Time) string {
	hour := now.Hour()

	var period string
	switch {
	case hour < 6:
		period = "凌晨"
	case hour < 9:
		period = "早上"
	case hour < 12:
		period = "上午"
	case hour < 14:
		period = "中午"
	case hour < 18:
		period = "下午"
	case hour < 22:
		period = "晚上"
	default:
		period = "深夜"
	}

	weekStr := [...]string{"周日", "周一", "周二", "周三", "周四", "周五", "周六"}
	return fmt.Sprintf("%s %s %s %02d:%02d",
		now.Format("2006-01-02"), weekStr[now.Weekday()], period, hour, now.Minute())
}

func (p *Persona) GetName() string         { return p.cfg.Name }
func (p *Persona) GetAliasNames() []string { return p.cfg.AliasNames }

// IsMentioned 检查消息是否提及了该人格（名字或别名）
func (p *Persona) IsMentioned(text string) bool {
	text = strings.ToLower(text)
	if p.cfg.Name != "" && strings.Contains(text, strings.ToLower(p.cfg.Name)) {
		return true
	}
	for _, alias := range p.cfg.AliasNames {
		if alias != "" && strings.Contains(text, strings.ToLower(alias)) {
			return true
		}
	}
	return false
}
