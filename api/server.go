package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shaiso/taskflow"
	"github.com/shaiso/taskflow/schedule"
)

// defaultTimeout — предел длительности запуска flow, если эндпоинт
// не задал собственный.
const defaultTimeout = 30 * time.Second

// Ошибки регистрации эндпоинтов.
var (
	// ErrInvalidPath — путь эндпоинта не начинается с "/".
	ErrInvalidPath = errors.New("endpoint path must start with '/'")

	// ErrDuplicatePath — путь уже занят другим эндпоинтом.
	ErrDuplicatePath = errors.New("duplicate endpoint path")

	// ErrNilFlow — эндпоинт не содержит flow.
	ErrNilFlow = errors.New("endpoint flow is required")
)

// Config — конфигурация Server.
type Config struct {
	// Addr — адрес прослушивания. По умолчанию ":8000".
	Addr string

	// APIKey — bearer-токен flow-эндпоинтов и API расписаний.
	// Пустая строка отключает аутентификацию.
	APIKey string

	// DefaultTimeout — предел длительности запуска flow для
	// эндпоинтов без собственного таймаута. По умолчанию 30 секунд.
	DefaultTimeout time.Duration

	// Version — версия, сообщаемая /healthz. По умолчанию "dev".
	Version string

	// Logger — логгер сервера. Nil — slog.Default.
	Logger *slog.Logger
}

// endpoint — зарегистрированный flow-эндпоинт.
type endpoint struct {
	path    string
	flow    string
	runner  *taskflow.TaskFlow
	timeout time.Duration
}

// Server — HTTP-сервер запусков flow.
//
// Каждый зарегистрированный flow получает собственный POST-эндпоинт,
// принимающий {"input": ...} и отвечающий итогом запуска. Помимо них
// сервер отдаёт /healthz, /metrics в формате Prometheus и, если
// планировщик подключён, API расписаний.
type Server struct {
	addr           string
	apiKey         string
	defaultTimeout time.Duration
	version        string
	logger         *slog.Logger
	metrics        *metrics
	startTime      time.Time

	mu        sync.Mutex
	endpoints []*endpoint
	paths     map[string]bool
	scheduler *schedule.Scheduler
}

// NewServer создаёт Server по конфигурации.
func NewServer(cfg Config) *Server {
	addr := cfg.Addr
	if addr == "" {
		addr = ":8000"
	}
	timeout := cfg.DefaultTimeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	version := cfg.Version
	if version == "" {
		version = "dev"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Server{
		addr:           addr,
		apiKey:         cfg.APIKey,
		defaultTimeout: timeout,
		version:        version,
		logger:         logger,
		metrics:        newMetrics(),
		startTime:      time.Now(),
		paths:          make(map[string]bool),
	}
}

// Addr возвращает адрес прослушивания.
func (s *Server) Addr() string { return s.addr }

// RegisterFlow регистрирует flow под путём path. Запрос POST path
// с телом {"input": ...} запускает flow с пределом длительности
// timeout (ноль — DefaultTimeout сервера).
func (s *Server) RegisterFlow(path, name string, flow *taskflow.TaskFlow, timeout time.Duration) error {
	if !strings.HasPrefix(path, "/") {
		return fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}
	if flow == nil {
		return fmt.Errorf("%w: %q", ErrNilFlow, name)
	}
	if timeout <= 0 {
		timeout = s.defaultTimeout
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.paths[path] {
		return fmt.Errorf("%w: %q", ErrDuplicatePath, path)
	}
	s.paths[path] = true
	s.endpoints = append(s.endpoints, &endpoint{
		path:    path,
		flow:    name,
		runner:  flow,
		timeout: timeout,
	})

	s.logger.Info("flow endpoint registered", "path", path, "flow", name, "timeout", timeout)
	return nil
}

// AttachScheduler подключает планировщик: сервер начинает отдавать
// API расписаний под /api/v1/schedules.
func (s *Server) AttachScheduler(sched *schedule.Scheduler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scheduler = sched
}

// Flows возвращает зарегистрированные flow по именам. Используется
// планировщиком как источник flow.
func (s *Server) Flows() schedule.FlowSource {
	return schedule.FlowSourceFunc(func(name string) (*taskflow.TaskFlow, bool) {
		s.mu.Lock()
		defer s.mu.Unlock()
		for _, ep := range s.endpoints {
			if ep.flow == name {
				return ep.runner, true
			}
		}
		return nil, false
	})
}

// Handler собирает http.Handler сервера из зарегистрированных
// эндпоинтов. Регистрация после сборки не влияет на уже собранный
// handler.
func (s *Server) Handler() http.Handler {
	s.mu.Lock()
	endpoints := make([]*endpoint, len(s.endpoints))
	copy(endpoints, s.endpoints)
	scheduler := s.scheduler
	s.mu.Unlock()

	// Trace снаружи, чтобы паника тоже получила trace_id в ответе.
	chain := Chain(
		Trace(),
		Logging(s.logger),
		Recovery(s.logger),
	)
	auth := Auth(s.apiKey, s.logger)

	mux := http.NewServeMux()

	// Health и metrics — без аутентификации.
	mux.Handle("GET /healthz", chain(http.HandlerFunc(s.handleHealthz)))
	mux.Handle("GET /metrics", chain(promhttp.HandlerFor(
		s.metrics.registry, promhttp.HandlerOpts{},
	)))

	// Flow-эндпоинты.
	for _, ep := range endpoints {
		mux.Handle("POST "+ep.path, chain(auth(s.flowHandler(ep))))
	}

	// API расписаний — только при подключённом планировщике.
	if scheduler != nil {
		mux.Handle("GET /api/v1/schedules", chain(auth(http.HandlerFunc(s.listSchedules))))
		mux.Handle("POST /api/v1/schedules", chain(auth(http.HandlerFunc(s.createSchedule))))
		mux.Handle("DELETE /api/v1/schedules/{id}", chain(auth(http.HandlerFunc(s.deleteSchedule))))
	}

	return mux
}

// handleHealthz отвечает состоянием сервера.
// GET /healthz
func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	count := len(s.endpoints)
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"uptime_seconds": time.Since(s.startTime).Seconds(),
		"version":        s.version,
		"endpoints":      count,
	})
}
