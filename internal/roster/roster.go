package roster

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// DefaultLimit 搜索结果默认条数上限，用来节省 token，不是质量过滤
const DefaultLimit = 10

// Role 群成员角色
type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// Entry 群成员名单中的一项
type Entry struct {
	UserID   string `json:"user_id"`
	Nickname string `json:"nickname"`
	Card     string `json:"card,omitempty"` // 群名片，优先于昵称显示
	Role     Role   `json:"role"`
}

// DisplayName 显示名：群名片 > 昵称 > "用户{ID}"
func (e Entry) DisplayName() string {
	if e.Card != "" {
		return e.Card
	}
	if e.Nickname != "" {
		return e.Nickname
	}
	return "用户" + e.UserID
}

// Member 搜索结果中的一项
type Member struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
	Role   Role   `json:"role"`
}

// Fetcher 能拉取群成员名单的平台实现这个接口
type Fetcher interface {
	FetchRoster(ctx context.Context, groupID int64) ([]Entry, error)
}

var (
	// ErrNoGroupContext 当前不在群聊中
	ErrNoGroupContext = errors.New("当前不在群聊中")
	// ErrPlatformUnsupported 当前平台不支持获取群成员列表
	ErrPlatformUnsupported = errors.New("当前平台不支持获取群成员列表")
)

// FetchError 拉取群成员列表失败（网络、权限等）
type FetchError struct {
	GroupID int64
	Err     error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("获取群 %d 成员列表失败: %v", e.GroupID, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Search 在名单中搜索关键词
// 群名片、昵称做不区分大小写的子串匹配，QQ号做完全匹配，任一命中即算匹配；
// 结果保持名单原有顺序，最多返回 limit 条；关键词为空时匹配全部
func Search(entries []Entry, keyword string, limit int) []Member {
	members, _ := search(entries, keyword, limit)
	return members
}

// search 返回截断后的结果以及截断前的匹配总数
func search(entries []Entry, keyword string, limit int) ([]Member, int) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	keyword = strings.TrimSpace(keyword)
	lower := strings.ToLower(keyword)

	members := make([]Member, 0, min(limit, len(entries)))
	total := 0
	for _, e := range entries {
		if keyword != "" && !matches(e, keyword, lower) {
			continue
		}
		total++
		if len(members) < limit {
			members = append(members, Member{UserID: e.UserID, Name: e.DisplayName(), Role: e.Role})
		}
	}
	return members, total
}

func matches(e Entry, keyword, lower string) bool {
	if e.UserID == keyword {
		return true
	}
	if e.Nickname != "" && strings.Contains(strings.ToLower(e.Nickname), lower) {
		return true
	}
	return e.Card != "" && strings.Contains(strings.ToLower(e.Card), lower)
}

// FormatList 把名单格式化为 "名字(ID:xxx)" 的列表，用于直接注入提示词
// limit 为 0 表示不限制；返回是否发生了截断
func FormatList(entries []Entry, limit int) (string, bool) {
	n := len(entries)
	truncated := false
	if limit > 0 && n > limit {
		n = limit
		truncated = true
	}
	parts := make([]string, 0, n)
	for _, e := range entries[:n] {
		if e.UserID == "" {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s(ID:%s)", e.DisplayName(), e.UserID))
	}
	return strings.Join(parts, ", "), truncated
}
