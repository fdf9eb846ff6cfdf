package onebot

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"mention-bot/internal/message"
	"mention-bot/internal/roster"
)

// LoginInfo 登录信息
type LoginInfo struct {
	UserID   int64  `json:"user_id"`
	Nickname string `json:"nickname"`
}

// GetLoginInfo 获取登录号信息，顺便记下自己的QQ号
func (c *Client) GetLoginInfo(ctx context.Context) (*LoginInfo, error) {
	resp, err := c.callAPI(ctx, "get_login_info", nil)
	if err != nil {
		return nil, err
	}
	data := resp.DataMap()
	if data == nil {
		return nil, fmt.Errorf("无效的响应数据")
	}
	info := &LoginInfo{}
	info.UserID, _ = parseInt64(data["user_id"])
	info.Nickname, _ = data["nickname"].(string)
	if info.UserID != 0 {
		c.selfID.Store(info.UserID)
	}
	return info, nil
}

// FetchRoster 获取群成员名单，实现 roster.Fetcher
// 实现端不支持 get_group_member_list 时返回 roster.ErrPlatformUnsupported
func (c *Client) FetchRoster(ctx context.Context, groupID int64) ([]roster.Entry, error) {
	resp, err := c.callAPI(ctx, "get_group_member_list", map[string]interface{}{
		"group_id": groupID,
		"no_cache": false,
	})
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Unsupported() {
			return nil, fmt.Errorf("get_group_member_list: %w", roster.ErrPlatformUnsupported)
		}
		return nil, err
	}

	// 响应的 data 是数组
	dataList, ok := resp.Data.([]interface{})
	if !ok {
		return nil, fmt.Errorf("无效的响应数据格式")
	}

	entries := make([]roster.Entry, 0, len(dataList))
	for _, item := range dataList {
		data, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		uid, ok := parseInt64(data["user_id"])
		if !ok || uid == 0 {
			continue
		}
		e := roster.Entry{UserID: strconv.FormatInt(uid, 10), Role: roster.RoleMember}
		e.Nickname, _ = data["nickname"].(string)
		e.Card, _ = data["card"].(string)
		if role, ok := data["role"].(string); ok && role != "" {
			e.Role = roster.Role(role)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// SendGroupChain 发送消息段链，返回消息ID
func (c *Client) SendGroupChain(ctx context.Context, groupID int64, chain message.Chain) (int64, error) {
	segments := chain.ToOneBot()
	if len(segments) == 0 {
		return 0, fmt.Errorf("消息为空")
	}

	resp, err := c.callAPI(ctx, "send_group_msg", map[string]interface{}{
		"group_id": groupID,
		"message":  segments,
	})
	if err != nil {
		return 0, err
	}
	if data := resp.DataMap(); data != nil {
		if msgID, ok := parseInt64(data["message_id"]); ok {
			return msgID, nil
		}
	}
	return 0, nil
}

var _ roster.Fetcher = (*Client)(nil)
