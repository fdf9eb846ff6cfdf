package server

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"mention-bot/internal/agent"
	"mention-bot/internal/config"
	"mention-bot/internal/mention"
	"mention-bot/internal/roster"
	"mention-bot/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// StatusProvider 提供运行状态
type StatusProvider interface {
	Status() agent.Status
}

// ReplyLister 回复日志查询
type ReplyLister interface {
	ListReplies(ctx context.Context, groupID int64, page, pageSize int) ([]store.ReplyLog, int64, error)
}

// Server HTTP服务
type Server struct {
	cfg      *config.Config
	status   StatusProvider
	roster   *roster.Service
	grammar  *mention.Grammar
	replies  ReplyLister // 未启用存储时为 nil
	gatherer prometheus.Gatherer
	server   *http.Server
}

// NewServer 创建HTTP服务
func NewServer(cfg *config.Config, status StatusProvider, svc *roster.Service, g *mention.Grammar, replies ReplyLister, gatherer prometheus.Gatherer) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &Server{
		cfg:      cfg,
		status:   status,
		roster:   svc,
		grammar:  g,
		replies:  replies,
		gatherer: gatherer,
	}
}

// Handler 构建路由
func (s *Server) Handler() http.Handler {
	if !s.cfg.App.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())

	// 健康检查
	r.GET("/health", s.healthCheck)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))

	// API路由
	api := r.Group("/api")
	{
		api.GET("/status", s.getStatus)
		// 预览模型输出改写后的结果
		api.POST("/rewrite", s.rewrite)
		// 群成员搜索，与模型拿到的结果一致
		api.GET("/members", s.searchMembers)
		// 回复日志
		api.GET("/replies", s.listReplies)
	}
	return r
}

// Start 启动HTTP服务
func (s *Server) Start() {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
	}

	zap.L().Info("HTTP服务启动", zap.String("addr", addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		zap.L().Error("HTTP服务异常", zap.Error(err))
	}
}

// Stop 停止HTTP服务
func (s *Server) Stop() {
	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(ctx)
	}
}

// healthCheck 健康检查
func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"name":   "mention_bot",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// parsePageParams 解析分页参数
func parsePageParams(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	return store.NormalizePage(page, pageSize)
}

func (s *Server) getStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"agent":            s.status.Status(),
		"zero_width_guard": s.cfg.Mention.GuardEnabled(),
		"roster_cache":     s.cfg.RosterCache.Enabled,
		"store":            s.replies != nil,
	})
}

type rewriteRequest struct {
	Text    string `json:"text" binding:"required"`
	Grammar string `json:"grammar"` // 为空时使用当前配置的语法
}

func (s *Server) rewrite(c *gin.Context) {
	var req rewriteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	g := s.grammar
	if req.Grammar != "" {
		var err error
		if g, err = mention.Lookup(req.Grammar); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	chain, stats := mention.RewriteText(req.Text, g, mention.Options{ZeroWidthGuard: s.cfg.Mention.GuardEnabled()})
	c.JSON(http.StatusOK, gin.H{
		"grammar":  g.Name,
		"chain":    chain,
		"rendered": chain.Render(),
		"mentions": stats.Mentions,
		"noise":    stats.Noise,
	})
}

func (s *Server) searchMembers(c *gin.Context) {
	groupID, err := strconv.ParseInt(c.DefaultQuery("group_id", "0"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "group_id 无效"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))

	result := s.roster.Lookup(c.Request.Context(), groupID, c.Query("keyword"), limit)
	c.JSON(http.StatusOK, result)
}

func (s *Server) listReplies(c *gin.Context) {
	if s.replies == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "未启用回复日志存储"})
		return
	}
	groupID, _ := strconv.ParseInt(c.DefaultQuery("group_id", "0"), 10, 64)
	page, pageSize := parsePageParams(c)

	items, total, err := s.replies.ListReplies(c.Request.Context(), groupID, page, pageSize)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":      items,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}
