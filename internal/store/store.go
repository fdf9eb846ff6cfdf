package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"mention-bot/internal/config"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

// ReplyLog 一次回复的审计记录，不保存群成员名单
type ReplyLog struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`

	RequestID    string `gorm:"type:varchar(64);uniqueIndex" json:"request_id"`
	GroupID      int64  `gorm:"index" json:"group_id"`
	UserID       int64  `gorm:"index" json:"user_id"`
	TriggerMsgID int64  `json:"trigger_msg_id"`
	MessageID    int64  `json:"message_id"` // 发出的消息ID，发送失败为 0
	Mode         string `gorm:"type:varchar(16)" json:"mode"`
	Status       string `gorm:"type:varchar(32);index" json:"status"`
	Content      string `gorm:"type:text" json:"content"` // 触发消息
	Reply        string `gorm:"type:text" json:"reply"`   // 发出的可读文本
	Mentions     string `gorm:"type:varchar(512)" json:"mentions"`
	MentionCount int    `json:"mention_count"`
	NoiseCount   int    `json:"noise_count"`
	Keywords     string `gorm:"type:varchar(255)" json:"keywords,omitempty"` // 两阶段查询的关键词
	Fallback     bool   `gorm:"default:false" json:"fallback"`
	DurationMs   int64  `json:"duration_ms"`
}

func (ReplyLog) TableName() string { return "reply_logs" }

// JoinIDs 把ID列表拼成逗号分隔的字符串
func JoinIDs(ids []string) string {
	return strings.Join(ids, ",")
}

// Store 回复日志存储
type Store struct {
	db *gorm.DB
}

// Open 连接 MySQL 并迁移表结构
func Open(cfg config.MySQLConfig) (*Store, error) {
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.DBName == "" {
		cfg.DBName = "mention_bot"
	}

	db, err := gorm.Open(mysql.Open(cfg.DSN()))
	if err != nil {
		return nil, fmt.Errorf("连接 MySQL 数据库失败: %w", err)
	}
	if err := db.AutoMigrate(&ReplyLog{}); err != nil {
		return nil, fmt.Errorf("数据库迁移失败: %w", err)
	}
	return New(db), nil
}

// New 使用已有连接
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// SaveReply 保存一条回复日志
func (s *Store) SaveReply(ctx context.Context, log *ReplyLog) error {
	return s.db.WithContext(ctx).Create(log).Error
}

// ListReplies 分页列出回复日志，groupID 为 0 时不过滤
func (s *Store) ListReplies(ctx context.Context, groupID int64, page, pageSize int) ([]ReplyLog, int64, error) {
	page, pageSize = NormalizePage(page, pageSize)

	var items []ReplyLog
	var total int64

	q := s.db.WithContext(ctx).Model(&ReplyLog{})
	if groupID > 0 {
		q = q.Where("group_id = ?", groupID)
	}
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := q.Order("created_at DESC").Offset((page - 1) * pageSize).Limit(pageSize).Find(&items).Error
	return items, total, err
}

// NormalizePage 规范化分页参数，pageSize 最大 100
func NormalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	return page, pageSize
}

// Close 关闭连接
func (s *Store) Close() error {
	if sqlDB, err := s.db.DB(); err == nil {
		return sqlDB.Close()
	}
	return nil
}
