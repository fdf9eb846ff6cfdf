package config

import (
	"fmt"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

var (
	cfg  *Config
	once sync.Once
)

// Config 全局配置结构
type Config struct {
	App         AppConfig         `yaml:"app"`
	Persona     PersonaConfig     `yaml:"persona"`
	OneBot      OneBotConfig      `yaml:"onebot"`
	Groups      []GroupConfig     `yaml:"groups"`
	LLM         LLMConfig         `yaml:"llm"`
	Mention     MentionConfig     `yaml:"mention"`      // 艾特协议配置
	RosterCache RosterCacheConfig `yaml:"roster_cache"` // 群成员名单缓存
	History     HistoryConfig     `yaml:"history"`      // 最近聊天记录
	Store       StoreConfig       `yaml:"store"`        // 回复日志
	Server      ServerConfig      `yaml:"server"`
	Debug       DebugConfig       `yaml:"debug"` // 调试配置
}

// AppConfig 应用基础配置
type AppConfig struct {
	Debug    bool   `yaml:"debug"`
	LogLevel string `yaml:"log_level"`
}

// PersonaConfig 人格配置
type PersonaConfig struct {
	Name          string   `yaml:"name"`
	AliasNames    []string `yaml:"alias_names"` // 别名，消息里提到也会触发回复
	SpeakingStyle string   `yaml:"speaking_style"`
	Personality   string   `yaml:"personality"` // 人格描述
}

// OneBotConfig OneBot协议配置
type OneBotConfig struct {
	WsURL             string `yaml:"ws_url"`
	AccessToken       string `yaml:"access_token"`
	ReconnectInterval int    `yaml:"reconnect_interval"` // 秒
	APITimeout        int    `yaml:"api_timeout"`        // 单次 API 调用超时（秒），默认 30
}

// GroupConfig 群配置
type GroupConfig struct {
	GroupID     int64  `yaml:"group_id"`
	Enabled     bool   `yaml:"enabled"`
	ExtraPrompt string `yaml:"extra_prompt"` // 群专属额外提示词
}

// LLMConfig LLM 配置
type LLMConfig struct {
	APIKey      string                 `yaml:"api_key"`
	BaseURL     string                 `yaml:"base_url"`
	Model       string                 `yaml:"model"`
	ExtraFields map[string]interface{} `yaml:"extra_fields"` // 额外参数
}

// MentionConfig 艾特协议配置
type MentionConfig struct {
	Grammar string `yaml:"grammar"` // bracket / xml / mention / colon，默认 bracket
	Mode    string `yaml:"mode"`    // inject / directive / tool，默认 inject
	// RosterCap inject 模式下注入名单的人数上限，0 不限制。大群不限制会让提示词非常长
	RosterCap      int   `yaml:"roster_cap"`
	SearchLimit    int   `yaml:"search_limit"`     // 单次搜索最多返回人数，默认 10
	ZeroWidthGuard *bool `yaml:"zero_width_guard"` // 艾特两侧插入零宽空格，默认 true
	ReplyToTrigger *bool `yaml:"reply_to_trigger"` // 回复时引用触发消息，默认 true
	MaxStep        int   `yaml:"max_step"`         // tool 模式 ReAct 最大步数，默认 6
}

// RosterCacheConfig 群成员名单缓存，默认关闭（每次请求都重新拉取）
type RosterCacheConfig struct {
	Enabled bool `yaml:"enabled"`
	Size    int  `yaml:"size"` // 最多缓存多少个群
	TTL     int  `yaml:"ttl"`  // 秒
}

// HistoryConfig 每个群保留的最近消息，回复时带上给模型作上下文
type HistoryConfig struct {
	Size        int `yaml:"size"`         // 每个群保留条数，默认 50
	PromptLines int `yaml:"prompt_lines"` // 写进提示词的条数，默认 10，-1 关闭
}

// StoreConfig 回复日志存储
type StoreConfig struct {
	Enabled bool        `yaml:"enabled"`
	MySQL   MySQLConfig `yaml:"mysql"`
}

// MySQLConfig MySQL 数据库配置
type MySQLConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"db_name"`
}

// DSN 生成 gorm mysql 连接串
func (m MySQLConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		m.User, m.Password, m.Host, m.Port, m.DBName)
}

// ServerConfig HTTP服务配置
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DebugConfig 调试配置
type DebugConfig struct {
	ShowPrompt    bool `yaml:"show_prompt"`     // 显示系统提示词
	ShowToolCalls bool `yaml:"show_tool_calls"` // 显示工具调用
}

// Load 加载配置文件
func Load(path string) (*Config, error) {
	var err error
	once.Do(func() {
		var data []byte
		data, err = os.ReadFile(path)
		if err != nil {
			return
		}
		cfg, err = Parse(data)
	})
	return cfg, err
}

// Parse 解析配置内容，应用环境变量覆盖和默认值
func Parse(data []byte) (*Config, error) {
	c := &Config{}
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	// 从环境变量覆盖敏感配置
	if apiKey := os.Getenv("MENTION_LLM_API_KEY"); apiKey != "" {
		c.LLM.APIKey = apiKey
	}
	if token := os.Getenv("MENTION_ONEBOT_TOKEN"); token != "" {
		c.OneBot.AccessToken = token
	}
	if password := os.Getenv("MENTION_MYSQL_PASSWORD"); password != "" {
		c.Store.MySQL.Password = password
	}

	c.applyDefaults()
	return c, nil
}

func (c *Config) applyDefaults() {
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	if c.Persona.Name == "" {
		c.Persona.Name = "小爱"
	}
	if c.OneBot.ReconnectInterval <= 0 {
		c.OneBot.ReconnectInterval = 5
	}
	if c.OneBot.APITimeout <= 0 {
		c.OneBot.APITimeout = 30
	}
	if c.Mention.Grammar == "" {
		c.Mention.Grammar = "bracket"
	}
	if c.Mention.Mode == "" {
		c.Mention.Mode = "inject"
	}
	if c.Mention.SearchLimit <= 0 {
		c.Mention.SearchLimit = 10
	}
	if c.Mention.MaxStep <= 0 {
		c.Mention.MaxStep = 6
	}
	if c.Mention.ZeroWidthGuard == nil {
		c.Mention.ZeroWidthGuard = boolPtr(true)
	}
	if c.Mention.ReplyToTrigger == nil {
		c.Mention.ReplyToTrigger = boolPtr(true)
	}
	if c.RosterCache.Size <= 0 {
		c.RosterCache.Size = 64
	}
	if c.RosterCache.TTL <= 0 {
		c.RosterCache.TTL = 60
	}
	if c.History.Size <= 0 {
		c.History.Size = 50
	}
	if c.History.PromptLines == 0 {
		c.History.PromptLines = 10
	}
	if c.Store.MySQL.Port == 0 {
		c.Store.MySQL.Port = 3306
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
}

func boolPtr(b bool) *bool {
	return &b
}

// Get 获取全局配置
func Get() *Config {
	return cfg
}

// GetGroupConfig 获取指定群的配置
func (c *Config) GetGroupConfig(groupID int64) *GroupConfig {
	for i := range c.Groups {
		if c.Groups[i].GroupID == groupID {
			return &c.Groups[i]
		}
	}
	return nil
}

// IsGroupEnabled 检查群是否启用
func (c *Config) IsGroupEnabled(groupID int64) bool {
	gc := c.GetGroupConfig(groupID)
	return gc != nil && gc.Enabled
}

// Timeout OneBot API 调用超时
func (o OneBotConfig) Timeout() time.Duration {
	return time.Duration(o.APITimeout) * time.Second
}

// CacheTTL 名单缓存过期时间
func (r RosterCacheConfig) CacheTTL() time.Duration {
	return time.Duration(r.TTL) * time.Second
}

// GuardEnabled 是否插入零宽空格
func (m MentionConfig) GuardEnabled() bool {
	return m.ZeroWidthGuard == nil || *m.ZeroWidthGuard
}

// QuoteTrigger 是否引用触发消息
func (m MentionConfig) QuoteTrigger() bool {
	return m.ReplyToTrigger == nil || *m.ReplyToTrigger
}
