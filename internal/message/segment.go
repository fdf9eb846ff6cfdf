package message

import "strings"

// SegmentType 消息段类型
type SegmentType string

const (
	TypeText    SegmentType = "text"
	TypeMention SegmentType = "at"
)

// ZeroWidthSpace 零宽空格，用于防止 @ 与相邻文字粘连
const ZeroWidthSpace = "\u200b"

// Segment 消息段
// Text 仅对文本段有效，UserID 仅对 @ 段有效，其余类型的段原样保存在 Data 中
type Segment struct {
	Type   SegmentType            `json:"type"`
	Text   string                 `json:"text,omitempty"`
	UserID string                 `json:"user_id,omitempty"`
	Data   map[string]interface{} `json:"data,omitempty"`
}

// Chain 消息链，段的顺序即发送顺序
type Chain []Segment

// Text 创建文本段
func Text(s string) Segment {
	return Segment{Type: TypeText, Text: s}
}

// Mention 创建 @ 段
func Mention(userID string) Segment {
	return Segment{Type: TypeMention, UserID: userID}
}

// Raw 创建不透明段（回复、图片、表情等），改写时不会被检查
func Raw(segType string, data map[string]interface{}) Segment {
	return Segment{Type: SegmentType(segType), Data: data}
}

// IsText 是否为文本段
func (s Segment) IsText() bool {
	return s.Type == TypeText
}

// IsMention 是否为 @ 段
func (s Segment) IsMention() bool {
	return s.Type == TypeMention
}

// PlainText 拼接链中所有文本段
func (c Chain) PlainText() string {
	var b strings.Builder
	for _, seg := range c {
		if seg.IsText() {
			b.WriteString(seg.Text)
		}
	}
	return b.String()
}

// Mentions 按顺序返回链中所有被 @ 的用户ID（不去重）
func (c Chain) Mentions() []string {
	var ids []string
	for _, seg := range c {
		if seg.IsMention() {
			ids = append(ids, seg.UserID)
		}
	}
	return ids
}

// Render 渲染为可读文本，@ 段显示为 @ID，零宽空格会被去掉
func (c Chain) Render() string {
	var b strings.Builder
	for _, seg := range c {
		switch seg.Type {
		case TypeText:
			b.WriteString(strings.ReplaceAll(seg.Text, ZeroWidthSpace, ""))
		case TypeMention:
			b.WriteString("@" + seg.UserID)
		default:
			b.WriteString("[" + string(seg.Type) + "]")
		}
	}
	return b.String()
}
