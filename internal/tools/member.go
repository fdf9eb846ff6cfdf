package tools

import (
	"context"

	"mention-bot/internal/prompt"
	"mention-bot/internal/roster"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"
)

// ==================== 搜索群成员工具 ====================

// SearchMembersInput 搜索群成员的输入参数
type SearchMembersInput struct {
	// Keyword 昵称、群名片或QQ号
	Keyword string `json:"keyword" jsonschema:"description=要找的人的昵称、群名片片段或完整QQ号，留空返回前几位成员"`
	// Limit 最多返回多少人
	Limit int `json:"limit,omitempty" jsonschema:"description=最多返回多少人，默认10"`
}

// searchGroupMembersFunc 搜索群成员的实际实现，失败也以结构化结果返回给模型
func searchGroupMembersFunc(ctx context.Context, input *SearchMembersInput) (*roster.Result, error) {
	tc := GetToolContext(ctx)
	if tc == nil || tc.Roster == nil {
		output := roster.Failed(roster.CodePlatformUnsupported, input.Keyword, "工具上下文未初始化")
		LogToolCall(prompt.SearchToolName, input, output, nil)
		return output, nil
	}

	output := tc.Roster.Lookup(ctx, tc.GroupID, input.Keyword, input.Limit)
	if tc.OnLookup != nil {
		tc.OnLookup(output)
	}
	LogToolCall(prompt.SearchToolName, input, output, nil)
	return output, nil
}

// NewSearchGroupMembersTool 创建搜索群成员工具
func NewSearchGroupMembersTool() (tool.InvokableTool, error) {
	return utils.InferTool(
		prompt.SearchToolName,
		"按昵称、群名片（不区分大小写，部分匹配）或完整QQ号搜索当前群的成员，返回用户ID。需要艾特某人但不知道TA的用户ID时先调用这个工具。",
		searchGroupMembersFunc,
	)
}
