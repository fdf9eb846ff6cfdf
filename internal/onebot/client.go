package onebot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"mention-bot/internal/config"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// RetCodeUnsupported OneBot 11 中动作不存在/未实现的返回码
const RetCodeUnsupported = 1404

// ErrNotConnected 尚未连接
var ErrNotConnected = errors.New("未连接到 OneBot 服务")

// Client OneBot WebSocket客户端
type Client struct {
	cfg    *config.Config
	conn   *websocket.Conn
	connMu sync.Mutex
	selfID atomic.Int64

	// 消息回调
	onMessage func(*GroupMessage)
	// 群成员变动回调
	onRosterChange func(groupID int64)

	// 重连控制
	reconnecting atomic.Bool
	stopCh       chan struct{}
	closeOnce    sync.Once

	// API 调用响应等待
	echoCounter uint64
	pendingReqs sync.Map // map[string]chan *APIResponse
}

// APIResponse OneBot API 响应
type APIResponse struct {
	Status  string      `json:"status"`  // ok / failed
	RetCode int         `json:"retcode"` // 0 表示成功
	Data    interface{} `json:"data"`    // 可以是 map 或 array
	Echo    string      `json:"echo"`
	Message string      `json:"message,omitempty"` // 错误信息
}

// DataMap 获取响应数据为 map 类型（用于普通 API）
func (r *APIResponse) DataMap() map[string]interface{} {
	m, _ := r.Data.(map[string]interface{})
	return m
}

// DataList 获取响应数据为数组类型（用于列表 API）
func (r *APIResponse) DataList() []interface{} {
	arr, _ := r.Data.([]interface{})
	return arr
}

// APIError API 返回了非 0 retcode
type APIError struct {
	Action  string
	RetCode int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API调用失败[%d]: %s %s", e.RetCode, e.Action, e.Message)
}

// Unsupported 实现端不支持该动作
func (e *APIError) Unsupported() bool {
	return e.RetCode == RetCodeUnsupported
}

// NewClient 创建OneBot客户端
func NewClient(cfg *config.Config) *Client {
	return &Client{
		cfg:    cfg,
		stopCh: make(chan struct{}),
	}
}

// Connect 连接到OneBot服务
func (c *Client) Connect() error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	header := make(map[string][]string)
	if c.cfg.OneBot.AccessToken != "" {
		header["Authorization"] = []string{"Bearer " + c.cfg.OneBot.AccessToken}
	}

	conn, _, err := websocket.DefaultDialer.Dial(c.cfg.OneBot.WsURL, header)
	if err != nil {
		return fmt.Errorf("WebSocket连接失败: %w", err)
	}

	c.conn = conn
	c.reconnecting.Store(false)

	// 启动消息接收循环
	go c.receiveLoop(conn)

	zap.L().Info("已连接到 OneBot", zap.String("url", c.cfg.OneBot.WsURL))
	return nil
}

// receiveLoop 消息接收循环
func (c *Client) receiveLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-c.stopCh:
				return
			default:
			}
			zap.L().Error("读取消息失败", zap.Error(err))
			c.handleDisconnect()
			return
		}

		go c.handleMessage(data)
	}
}

// handleMessage 处理收到的消息
func (c *Client) handleMessage(data []byte) {
	var event map[string]interface{}
	if err := sonic.Unmarshal(data, &event); err != nil {
		zap.L().Error("解析消息失败", zap.Error(err))
		return
	}

	// 有 echo 字段的是 API 响应
	if echo, ok := event["echo"].(string); ok && echo != "" {
		c.handleAPIResponse(event, echo)
		return
	}

	switch event["post_type"] {
	case "meta_event":
		c.handleMetaEvent(event)
	case "message":
		c.handleMessageEvent(event)
	case "notice":
		c.handleNotice(event)
	}
}

// handleNotice 入群、退群、改名片、管理员变动都会让名单过期
func (c *Client) handleNotice(event map[string]interface{}) {
	noticeType, _ := event["notice_type"].(string)
	zap.L().Debug("收到通知", zap.String("type", noticeType))

	switch noticeType {
	case "group_increase", "group_decrease", "group_card", "group_admin":
	default:
		return
	}
	groupID, _ := parseInt64(event["group_id"])
	if groupID == 0 || c.onRosterChange == nil {
		return
	}
	c.onRosterChange(groupID)
}

// handleAPIResponse 处理 API 响应
func (c *Client) handleAPIResponse(event map[string]interface{}, echo string) {
	ch, ok := c.pendingReqs.LoadAndDelete(echo)
	if !ok {
		return
	}
	resp := &APIResponse{Echo: echo, Data: event["data"]}
	resp.Status, _ = event["status"].(string)
	resp.RetCode, _ = parseInt(event["retcode"])
	resp.Message, _ = event["message"].(string)
	if resp.Message == "" {
		resp.Message, _ = event["wording"].(string)
	}

	// 通道带 1 个缓冲且只会被取出一次
	ch.(chan *APIResponse) <- resp
}

// handleMetaEvent 处理元事件
func (c *Client) handleMetaEvent(event map[string]interface{}) {
	metaType, _ := event["meta_event_type"].(string)
	subType, _ := event["sub_type"].(string)
	if metaType == "lifecycle" && subType == "connect" {
		if selfID, ok := parseInt64(event["self_id"]); ok {
			c.selfID.Store(selfID)
			zap.L().Info("Bot 已上线", zap.Int64("qq", selfID))
		}
	}
}

// handleMessageEvent 处理消息事件，只处理群消息
func (c *Client) handleMessageEvent(event map[string]interface{}) {
	if msgType, _ := event["message_type"].(string); msgType != "group" {
		return
	}
	msg := parseGroupMessage(event, c.selfID.Load())
	if msg == nil {
		return
	}
	if c.onMessage != nil {
		c.onMessage(msg)
	}
}

// OnMessage 设置消息回调
func (c *Client) OnMessage(handler func(*GroupMessage)) {
	c.onMessage = handler
}

// OnRosterChange 设置群成员变动回调
func (c *Client) OnRosterChange(handler func(groupID int64)) {
	c.onRosterChange = handler
}

// callAPI 调用 OneBot API（同步等待响应）
func (c *Client) callAPI(ctx context.Context, action string, params map[string]interface{}) (*APIResponse, error) {
	echo := strconv.FormatUint(atomic.AddUint64(&c.echoCounter, 1), 10)

	respCh := make(chan *APIResponse, 1)
	c.pendingReqs.Store(echo, respCh)
	defer c.pendingReqs.Delete(echo)

	data, err := sonic.Marshal(map[string]interface{}{
		"action": action,
		"params": params,
		"echo":   echo,
	})
	if err != nil {
		return nil, err
	}

	c.connMu.Lock()
	if c.conn == nil {
		c.connMu.Unlock()
		return nil, ErrNotConnected
	}
	err = c.conn.WriteMessage(websocket.TextMessage, data)
	c.connMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("发送请求失败: %w", err)
	}

	timer := time.NewTimer(c.cfg.OneBot.Timeout())
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, fmt.Errorf("API调用超时: %s", action)
	case resp := <-respCh:
		if resp.RetCode != 0 {
			return resp, &APIError{Action: action, RetCode: resp.RetCode, Message: resp.Message}
		}
		return resp, nil
	}
}

// handleDisconnect 处理断开连接
func (c *Client) handleDisconnect() {
	if !c.reconnecting.CompareAndSwap(false, true) {
		return
	}

	zap.L().Warn("连接断开，尝试重连...")

	interval := time.Duration(c.cfg.OneBot.ReconnectInterval) * time.Second
	for {
		select {
		case <-c.stopCh:
			return
		case <-time.After(interval):
		}

		if err := c.Connect(); err == nil {
			zap.L().Info("重连成功")
			return
		}
		zap.L().Warn("重连失败，继续尝试...")
	}
}

// GetSelfID 获取Bot的QQ号
func (c *Client) GetSelfID() int64 {
	return c.selfID.Load()
}

// Close 关闭连接
func (c *Client) Close() error {
	c.closeOnce.Do(func() { close(c.stopCh) })

	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		return err
	}
	return nil
}

// 助手函数
func parseInt64(v interface{}) (int64, bool) {
	switch val := v.(type) {
	case int64:
		return val, true
	case float64:
		return int64(val), true
	case int:
		return int64(val), true
	case string:
		i, err := strconv.ParseInt(val, 10, 64)
		return i, err == nil
	}
	return 0, false
}

func parseInt(v interface{}) (int, bool) {
	i, ok := parseInt64(v)
	return int(i), ok
}
