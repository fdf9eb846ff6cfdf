package roster

import (
	"fmt"
	"strings"

	"github.com/bytedance/sonic"
)

// ErrorCode 查询失败的原因，模型可以据此做不同的反应
type ErrorCode string

const (
	CodeNoGroupContext      ErrorCode = "no_group_context"
	CodePlatformUnsupported ErrorCode = "platform_unsupported"
	CodeFetchFailed         ErrorCode = "fetch_failed"
)

// Result 一次成员查询的结构化结果，只在发给模型或平台时才序列化
type Result struct {
	Success   bool      `json:"success"`
	Code      ErrorCode `json:"code,omitempty"`
	Message   string    `json:"message,omitempty"`
	Keyword   string    `json:"keyword"`
	Count     int       `json:"count"`
	Total     int       `json:"total"`
	Truncated bool      `json:"truncated,omitempty"`
	Members   []Member  `json:"members,omitempty"`
}

// Failed 构造失败结果
func Failed(code ErrorCode, keyword, msg string) *Result {
	return &Result{Success: false, Code: code, Keyword: keyword, Message: msg}
}

// Found 构造成功结果
func Found(keyword string, members []Member, total int) *Result {
	r := &Result{
		Success:   true,
		Keyword:   keyword,
		Count:     len(members),
		Total:     total,
		Truncated: total > len(members),
		Members:   members,
	}
	switch {
	case len(members) == 0:
		r.Message = "未找到匹配的群成员"
	case r.Truncated:
		r.Message = fmt.Sprintf("共匹配 %d 人，只返回前 %d 人，如果没有要找的人请换个更具体的关键词", total, len(members))
	}
	return r
}

// NotFound 是否为成功但没有匹配
func (r *Result) NotFound() bool {
	return r.Success && r.Count == 0
}

// JSON 序列化为 JSON 字符串
func (r *Result) JSON() string {
	s, err := sonic.MarshalString(r)
	if err != nil {
		return fmt.Sprintf(`{"success":false,"message":%q}`, err.Error())
	}
	return s
}

// Summary 生成确定性的可读摘要，用于提示词和兜底回复
func (r *Result) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "关键词「%s」：", r.Keyword)
	if !r.Success {
		b.WriteString("查询失败（" + string(r.Code) + "）：" + r.Message)
		return b.String()
	}
	if r.Count == 0 {
		b.WriteString("未找到匹配的群成员")
		return b.String()
	}
	parts := make([]string, 0, len(r.Members))
	for _, m := range r.Members {
		parts = append(parts, fmt.Sprintf("%s(ID:%s, 角色:%s)", m.Name, m.UserID, m.Role))
	}
	b.WriteString(strings.Join(parts, ", "))
	if r.Truncated {
		fmt.Fprintf(&b, "（共 %d 人匹配，仅列出前 %d 人）", r.Total, r.Count)
	}
	return b.String()
}
