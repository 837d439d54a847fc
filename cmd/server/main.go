package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fyerfyer/doc-rag/api"
	"github.com/fyerfyer/doc-rag/api/handler"
	"github.com/fyerfyer/doc-rag/api/middleware"
	"github.com/fyerfyer/doc-rag/config"
	"github.com/fyerfyer/doc-rag/internal/app"
	"github.com/gin-gonic/gin"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (default: config.yaml if present)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 设置Gin模式
	gin.SetMode(cfg.Server.Mode)

	// 初始化日志
	logCloser := middleware.Configure(middleware.LogOptions{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	defer logCloser.Close()

	logger := middleware.GetLogger()
	logger.Info("Starting document RAG service...")

	application, err := app.New(context.Background(), cfg, logger)
	if err != nil {
		logger.Fatalf("Failed to initialize application: %v", err)
	}
	defer application.Close()

	// 启用队列时在同一进程内启动工作者
	worker, err := application.StartWorker()
	if err != nil {
		logger.Fatalf("Failed to start task worker: %v", err)
	}
	if worker != nil {
		defer worker.Stop()
		logger.Info("Task worker started")
	}

	// 初始化API处理器
	docHandler := handler.NewDocumentHandler(application.Ingestion, application.Embedding, cfg.MaxUploadBytes())
	qaHandler := handler.NewQAHandler(application.Query, application.Retrieval)
	taskHandler := handler.NewTaskHandler(application.Embedding)

	// 设置路由
	r := api.SetupRouter(docHandler, qaHandler, taskHandler)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// 优雅关闭
	go func() {
		logger.Infof("Server is running on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// 等待终止信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}

	logger.Info("Server exited")
}
