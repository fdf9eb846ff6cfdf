package onebot

import (
	"strconv"
	"strings"
	"time"

	"mention-bot/internal/message"
)

// GroupMessage 群消息
type GroupMessage struct {
	MessageID  int64         `json:"message_id"`
	GroupID    int64         `json:"group_id"`
	UserID     int64         `json:"user_id"`
	Nickname   string        `json:"nickname"`
	Card       string        `json:"card"`               // 群名片
	Role       string        `json:"role"`               // 角色: owner/admin/member
	Content    string        `json:"content"`            // 可读文本内容
	Chain      message.Chain `json:"-"`                  // 原始消息段
	MentionBot bool          `json:"mention_bot"`        // 是否@机器人
	MentionAll bool          `json:"mention_all"`        // 是否@全体成员
	AtList     []int64       `json:"at_list,omitempty"`  // @的用户列表
	ReplyTo    int64         `json:"reply_to,omitempty"` // 引用的消息ID
	Time       time.Time     `json:"time"`
}

// SenderName 发送者显示名
func (m *GroupMessage) SenderName() string {
	if m.Card != "" {
		return m.Card
	}
	if m.Nickname != "" {
		return m.Nickname
	}
	return "用户" + strconv.FormatInt(m.UserID, 10)
}

// parseGroupMessage 解析群消息事件
func parseGroupMessage(event map[string]interface{}, selfID int64) *GroupMessage {
	msg := &GroupMessage{}

	if t, ok := parseInt64(event["time"]); ok {
		msg.Time = time.Unix(t, 0)
	} else {
		msg.Time = time.Now()
	}
	msg.MessageID, _ = parseInt64(event["message_id"])
	msg.GroupID, _ = parseInt64(event["group_id"])
	if msg.GroupID == 0 {
		return nil
	}

	if sender, ok := event["sender"].(map[string]interface{}); ok {
		msg.UserID, _ = parseInt64(sender["user_id"])
		msg.Nickname, _ = sender["nickname"].(string)
		msg.Card, _ = sender["card"].(string)
		msg.Role, _ = sender["role"].(string)
	}
	if msg.UserID == 0 {
		msg.UserID, _ = parseInt64(event["user_id"])
	}

	if segments, ok := event["message"].([]interface{}); ok {
		msg.Chain = message.FromOneBot(segments)
	} else if raw, ok := event["raw_message"].(string); ok {
		// 字符串格式上报，不解析 CQ 码
		msg.Chain = message.Chain{message.Text(raw)}
	}
	fillFromChain(msg, selfID)
	return msg
}

// fillFromChain 从消息段中提取@列表、引用和可读文本
func fillFromChain(msg *GroupMessage, selfID int64) {
	var parts []string
	for _, seg := range msg.Chain {
		switch seg.Type {
		case message.TypeText:
			if t := strings.TrimSpace(seg.Text); t != "" {
				parts = append(parts, t)
			}
		case message.TypeMention:
			if seg.UserID == "all" {
				msg.MentionAll = true
				parts = append(parts, "@全体成员")
				continue
			}
			id, err := strconv.ParseInt(seg.UserID, 10, 64)
			if err != nil {
				continue
			}
			msg.AtList = append(msg.AtList, id)
			if selfID != 0 && id == selfID {
				msg.MentionBot = true
				continue
			}
			parts = append(parts, "@"+seg.UserID)
		case "reply":
			msg.ReplyTo, _ = parseInt64(seg.Data["id"])
		case "image", "mface":
			parts = append(parts, "[图片]")
		case "face":
			parts = append(parts, "[表情]")
		case "record":
			parts = append(parts, "[语音]")
		case "file":
			if name, ok := seg.Data["name"].(string); ok {
				parts = append(parts, "[文件:"+name+"]")
			} else {
				parts = append(parts, "[文件]")
			}
		}
	}
	msg.Content = strings.Join(parts, " ")
}
