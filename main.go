package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mention-bot/internal/agent"
	"mention-bot/internal/config"
	"mention-bot/internal/llm"
	"mention-bot/internal/logger"
	"mention-bot/internal/metrics"
	"mention-bot/internal/onebot"
	"mention-bot/internal/persona"
	"mention-bot/internal/roster"
	"mention-bot/internal/server"
	"mention-bot/internal/store"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

func main() {
	fmt.Println("=================================")
	fmt.Println("    mention-bot 群聊艾特助手")
	fmt.Println("=================================")

	// 加载配置
	configPath := "config/config.yaml"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Printf("加载配置失败: %v\n", err)
		os.Exit(1)
	}

	// 初始化日志系统
	logger.Init(cfg.App.LogLevel, cfg.App.Debug)
	defer func() { _ = zap.L().Sync() }()

	zap.L().Info("配置已加载", zap.String("path", configPath))

	mtr := metrics.MustNewMetrics(prometheus.DefaultRegisterer)

	// 创建LLM客户端
	llmClient, err := llm.NewClient(&cfg.LLM)
	if err != nil {
		zap.L().Fatal("LLM客户端创建失败", zap.Error(err))
	}
	zap.L().Info("LLM已连接", zap.String("model", cfg.LLM.Model), zap.String("base_url", cfg.LLM.BaseURL))

	// 创建OneBot客户端
	botClient := onebot.NewClient(cfg)

	// 群成员名单，回调要在连接前设置
	var fetcher roster.Fetcher = botClient
	if cfg.RosterCache.Enabled {
		cached := roster.NewCachedFetcher(botClient, cfg.RosterCache.Size, cfg.RosterCache.CacheTTL())
		botClient.OnRosterChange(cached.Invalidate)
		fetcher = cached
		zap.L().Info("名单缓存已启用", zap.Int("size", cfg.RosterCache.Size), zap.Duration("ttl", cfg.RosterCache.CacheTTL()))
	}
	rosterSvc := roster.NewService(fetcher, cfg.Mention.SearchLimit, mtr)

	if err := botClient.Connect(); err != nil {
		zap.L().Fatal("OneBot连接失败", zap.Error(err))
	}
	defer botClient.Close()

	loginCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if info, err := botClient.GetLoginInfo(loginCtx); err != nil {
		zap.L().Warn("获取登录信息失败，将从事件中识别自身ID", zap.Error(err))
	} else {
		zap.L().Info("已登录", zap.Int64("user_id", info.UserID), zap.String("nickname", info.Nickname))
	}
	cancel()

	// 回复日志存储（可选）
	var (
		recorder agent.ReplyRecorder
		lister   server.ReplyLister
	)
	if cfg.Store.Enabled {
		st, err := store.Open(cfg.Store.MySQL)
		if err != nil {
			zap.L().Fatal("回复日志存储初始化失败", zap.Error(err))
		}
		defer st.Close()
		recorder, lister = st, st
		zap.L().Info("回复日志存储已启用", zap.String("host", cfg.Store.MySQL.Host))
	}

	// 创建人格
	p := persona.NewPersona(&cfg.Persona)
	zap.L().Info("人格已加载", zap.String("name", p.GetName()))

	bot, err := agent.New(cfg, p, llmClient, llmClient.GetModel(), botClient, rosterSvc, mtr, recorder)
	if err != nil {
		zap.L().Fatal("Agent创建失败", zap.Error(err))
	}
	bot.Start()

	// 启动HTTP服务
	httpServer := server.NewServer(cfg, bot, rosterSvc, bot.Grammar(), lister, prometheus.DefaultGatherer)
	go httpServer.Start()

	// 等待退出信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	zap.L().Info("已上线，按 Ctrl+C 退出",
		zap.String("grammar", cfg.Mention.Grammar),
		zap.String("mode", cfg.Mention.Mode),
	)
	<-quit

	zap.L().Info("正在关闭...")
	bot.Stop()
	httpServer.Stop()
	zap.L().Info("再见！")
}
