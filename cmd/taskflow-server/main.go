// Taskflow server — HTTP-сервер, публикующий flow из файлов
// определений как эндпоинты.
//
// Конфигурация через переменные окружения:
//
//	TASKFLOW_ADDR     адрес прослушивания (по умолчанию ":8000")
//	TASKFLOW_API_KEY  bearer-токен; пусто — без аутентификации
//	TASKFLOW_DEFS     каталог с *.json определениями (по умолчанию "./flows")
//	TASKFLOW_MODEL    модель агента вида "provider/model"; пусто — без агента
//	TASKFLOW_TZ       часовой пояс расписаний (по умолчанию "UTC")
//
// Ключи провайдеров моделей (OPENAI_API_KEY, ANTHROPIC_API_KEY,
// OLLAMA_BASE_URL) читаются пакетом agent.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/shaiso/taskflow/agent"
	"github.com/shaiso/taskflow/api"
	"github.com/shaiso/taskflow/flowdef"
	"github.com/shaiso/taskflow/internal/telemetry"
	"github.com/shaiso/taskflow/schedule"
	"github.com/shaiso/taskflow/steps"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger()
	logger.Info("starting taskflow-server", "version", version)

	addr := ":8000"
	if v := os.Getenv("TASKFLOW_ADDR"); v != "" {
		addr = v
	}
	defsDir := "./flows"
	if v := os.Getenv("TASKFLOW_DEFS"); v != "" {
		defsDir = v
	}

	// Реестр runnable: встроенные шаги плюс, если настроена модель,
	// агент под именем "agent".
	runnables := map[string]any{
		"http":      steps.NewHTTPRunnable(),
		"transform": steps.NewTransformRunnable(),
		"delay":     steps.NewDelayRunnable(),
	}
	if modelID := os.Getenv("TASKFLOW_MODEL"); modelID != "" {
		ag, err := agent.New(agent.Config{
			Name:   "agent",
			Model:  modelID,
			Logger: logger,
		})
		if err != nil {
			logger.Error("failed to create agent", "model", modelID, "error", err)
			os.Exit(1)
		}
		runnables["agent"] = ag
		logger.Info("agent registered", "model", modelID)
	}

	server := api.NewServer(api.Config{
		Addr:    addr,
		APIKey:  os.Getenv("TASKFLOW_API_KEY"),
		Version: version,
		Logger:  logger,
	})

	// Загружаем определения flow и публикуем каждое как эндпоинт.
	paths, err := filepath.Glob(filepath.Join(defsDir, "*.json"))
	if err != nil {
		logger.Error("failed to list flow definitions", "dir", defsDir, "error", err)
		os.Exit(1)
	}
	for _, path := range paths {
		def, err := flowdef.Load(path)
		if err != nil {
			logger.Error("failed to load flow definition", "file", path, "error", err)
			os.Exit(1)
		}
		flow, err := flowdef.Build(def, runnables)
		if err != nil {
			logger.Error("failed to build flow", "file", path, "error", err)
			os.Exit(1)
		}
		if err := server.RegisterFlow("/api/v1/flows/"+def.Name, def.Name, flow, 0); err != nil {
			logger.Error("failed to register flow", "file", path, "error", err)
			os.Exit(1)
		}
	}
	if len(paths) == 0 {
		logger.Warn("no flow definitions found", "dir", defsDir)
	}

	// Планировщик работает поверх зарегистрированных flow.
	sched, err := schedule.New(schedule.Config{
		Flows:    server.Flows(),
		Timezone: os.Getenv("TASKFLOW_TZ"),
		Logger:   logger,
	})
	if err != nil {
		logger.Error("failed to create scheduler", "error", err)
		os.Exit(1)
	}
	server.AttachScheduler(sched)
	sched.Start()

	httpServer := &http.Server{
		Addr:    server.Addr(),
		Handler: server.Handler(),
	}

	// Запускаем сервер в горутине
	go func() {
		logger.Info("listening", "addr", server.Addr(), "flows", len(paths))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Ожидаем сигнал завершения
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	<-ctx.Done()
	logger.Info("shutting down")

	// Graceful shutdown с таймаутом 10 секунд
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	if err := sched.Stop(shutdownCtx); err != nil {
		logger.Error("scheduler stop error", "error", err)
	}

	logger.Info("stopped")
}
