package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/settle-next/internal/app"
	"github.com/settle-next/internal/config"
	"github.com/settle-next/internal/logger"
	"github.com/settle-next/internal/models"

	"github.com/gin-gonic/gin"
)

const (
	ansiReset = "\033[0m"
	ansiBold  = "\033[1m"
	ansiDim   = "\033[2m"
	ansiCyan  = "\033[36m"
)

func main() {
	var rawMode string
	flag.StringVar(&rawMode, "mode", app.ModeAll, "启动模式: all (默认), api, worker")
	flag.Parse()

	printStartupBanner()

	cfg := config.Load()
	logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	defer logger.Sync()
	stdLog := logger.StdLogger()

	mode, err := app.ParseMode(rawMode)
	if err != nil {
		stdLog.Fatalf("启动模式无效: %v", err)
	}

	if isWeakSecret(cfg.JWT.SecretKey) {
		if cfg.Server.Mode == "release" {
			stdLog.Fatalf("JWT secret 过弱或仍为默认值，请在生产环境中配置强随机密钥")
		}
		stdLog.Printf("警告: JWT secret 过弱或仍为默认值，建议在生产环境中更换")
	}
	if strings.TrimSpace(cfg.Cron.Token) == "" && mode != app.ModeWorker {
		stdLog.Printf("警告: 未配置 cron.token，外部调度触发接口将拒绝所有请求")
	}

	if err := models.InitDB(cfg.Database.Driver, cfg.Database.DSN, models.DBPoolConfig{
		MaxOpenConns:           cfg.Database.Pool.MaxOpenConns,
		MaxIdleConns:           cfg.Database.Pool.MaxIdleConns,
		ConnMaxLifetimeSeconds: cfg.Database.Pool.ConnMaxLifetimeSeconds,
		ConnMaxIdleTimeSeconds: cfg.Database.Pool.ConnMaxIdleTimeSeconds,
	}, cfg.Server.Mode != "release"); err != nil {
		stdLog.Fatalf("数据库初始化失败: %v", err)
	}
	if err := models.AutoMigrate(); err != nil {
		stdLog.Fatalf("数据库迁移失败: %v", err)
	}

	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := app.Run(app.Options{
		Config:  cfg,
		Logger:  logger.S(),
		Signals: []os.Signal{syscall.SIGINT, syscall.SIGTERM},
		Mode:    mode,
	}); err != nil {
		stdLog.Fatalf("服务运行失败: %v", err)
	}
}

func printStartupBanner() {
	fmt.Println(ansiCyan + "███████╗███████╗████████╗████████╗██╗     ███████╗" + ansiReset)
	fmt.Println(ansiCyan + "██╔════╝██╔════╝╚══██╔══╝╚══██╔══╝██║     ██╔════╝" + ansiReset)
	fmt.Println(ansiCyan + "███████╗█████╗     ██║      ██║   ██║     █████╗  " + ansiReset)
	fmt.Println(ansiCyan + "╚════██║██╔══╝     ██║      ██║   ██║     ██╔══╝  " + ansiReset)
	fmt.Println(ansiCyan + "███████║███████╗   ██║      ██║   ███████╗███████╗" + ansiReset)
	fmt.Println(ansiCyan + "╚══════╝╚══════╝   ╚═╝      ╚═╝   ╚══════╝╚══════╝" + ansiReset)
	fmt.Println(ansiBold + "Payment distribution & settlement engine" + ansiReset)
	fmt.Println(ansiDim + "--------------------------------------------------" + ansiReset)
}

func isWeakSecret(secret string) bool {
	if len(secret) < 32 {
		return true
	}
	normalized := strings.ToLower(secret)
	return strings.Contains(normalized, "change-me") ||
		strings.Contains(normalized, "change-in-production") ||
		strings.Contains(normalized, "your-secret-key")
}
