package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/shaiso/taskflow"
)

// Ошибки планировщика.
var (
	// ErrNotFound — расписание с таким ID не найдено.
	ErrNotFound = errors.New("schedule not found")

	// ErrDuplicateSchedule — расписание с таким именем уже существует.
	ErrDuplicateSchedule = errors.New("schedule name already exists")

	// ErrUnknownFlow — расписание ссылается на неизвестный flow.
	ErrUnknownFlow = errors.New("schedule refers to unknown flow")

	// ErrInvalidSchedule — расписание некорректно.
	ErrInvalidSchedule = errors.New("invalid schedule")

	// ErrInvalidCron — невалидное cron-выражение.
	ErrInvalidCron = errors.New("invalid cron expression")
)

// FlowSource — источник flow по имени. Планировщик разрешает имя
// на каждом срабатывании, поэтому набор flow может меняться между
// тиками.
type FlowSource interface {
	Flow(name string) (*taskflow.TaskFlow, bool)
}

// FlowSourceFunc адаптирует функцию к интерфейсу FlowSource.
type FlowSourceFunc func(name string) (*taskflow.TaskFlow, bool)

// Flow реализует FlowSource.
func (f FlowSourceFunc) Flow(name string) (*taskflow.TaskFlow, bool) { return f(name) }

// Config — конфигурация Scheduler.
type Config struct {
	// Flows — источник flow по имени. Обязателен.
	Flows FlowSource

	// Timezone — часовой пояс для вычисления времени срабатывания.
	// По умолчанию: "UTC".
	Timezone string

	// RunTimeout — предел длительности одного запуска flow.
	// Ноль — без ограничения.
	RunTimeout time.Duration

	// Logger — логгер планировщика. Nil — slog.Default.
	Logger *slog.Logger
}

// EntryConfig — параметры нового расписания.
type EntryConfig struct {
	// Name — уникальное имя расписания.
	Name string

	// CronExpr — cron-выражение ("минуты часы дни месяцы дни_недели").
	// Если задано, IntervalSec игнорируется.
	CronExpr string

	// IntervalSec — интервал в секундах между запусками.
	// Используется, если CronExpr не задан.
	IntervalSec int

	// Flow — имя запускаемого flow.
	Flow string

	// Input — вход, передаваемый flow при каждом срабатывании.
	Input string
}

// Entry — расписание запуска flow.
type Entry struct {
	// ID — уникальный идентификатор расписания.
	ID string `json:"id"`

	// Name — имя расписания.
	Name string `json:"name"`

	// CronExpr — cron-выражение, если расписание задано им.
	CronExpr string `json:"cron_expr,omitempty"`

	// IntervalSec — интервал в секундах, если расписание задано им.
	IntervalSec int `json:"interval_sec,omitempty"`

	// Flow — имя запускаемого flow.
	Flow string `json:"flow"`

	// Input — вход каждого запуска.
	Input string `json:"input,omitempty"`

	// NextRunAt — время следующего срабатывания. Заполняется после
	// старта планировщика.
	NextRunAt time.Time `json:"next_run_at"`

	// LastRunAt — время последнего срабатывания.
	LastRunAt *time.Time `json:"last_run_at,omitempty"`

	// LastRunID — идентификатор последнего запуска flow.
	LastRunID string `json:"last_run_id,omitempty"`

	// CreatedAt — время создания расписания.
	CreatedAt time.Time `json:"created_at"`
}

// entry — внутреннее состояние расписания.
type entry struct {
	Entry
	cronID cron.EntryID
}

// Scheduler запускает именованные flow по расписанию.
//
// Расписания хранятся в памяти: перезапуск процесса очищает список.
// Пересекающиеся срабатывания одного расписания пропускаются, пока
// предыдущий запуск не завершится.
type Scheduler struct {
	cron       *cron.Cron
	flows      FlowSource
	runTimeout time.Duration
	logger     *slog.Logger

	mu      sync.Mutex
	entries map[string]*entry // по ID
	names   map[string]string // имя → ID
}

// New создаёт Scheduler по конфигурации.
func New(cfg Config) (*Scheduler, error) {
	if cfg.Flows == nil {
		return nil, fmt.Errorf("%w: flow source is required", ErrInvalidSchedule)
	}

	tz := cfg.Timezone
	if tz == "" {
		tz = "UTC"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", tz, err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	cl := cronLogger{logger: logger}
	return &Scheduler{
		cron: cron.New(
			cron.WithParser(cronParser),
			cron.WithLocation(loc),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		flows:      cfg.Flows,
		runTimeout: cfg.RunTimeout,
		logger:     logger,
		entries:    make(map[string]*entry),
		names:      make(map[string]string),
	}, nil
}

// Start запускает планировщик в фоне.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started", "schedules", s.Len())
}

// Stop останавливает планировщик и дожидается завершения запущенных
// flow либо отмены ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
		s.logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Add добавляет расписание и возвращает его снимок.
// Планировщик может быть как запущенным, так и ещё не стартовавшим.
func (s *Scheduler) Add(cfg EntryConfig) (*Entry, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("%w: schedule has no name", ErrInvalidSchedule)
	}
	if cfg.Flow == "" {
		return nil, fmt.Errorf("%w: schedule %q has no flow", ErrInvalidSchedule, cfg.Name)
	}

	var sched cron.Schedule
	switch {
	case cfg.CronExpr != "":
		parsed, err := cronParser.Parse(cfg.CronExpr)
		if err != nil {
			return nil, fmt.Errorf("%w %q: %v", ErrInvalidCron, cfg.CronExpr, err)
		}
		sched = parsed
	case cfg.IntervalSec > 0:
		sched = cron.Every(time.Duration(cfg.IntervalSec) * time.Second)
	default:
		return nil, fmt.Errorf("%w: schedule %q has neither cron_expr nor interval_sec",
			ErrInvalidSchedule, cfg.Name)
	}

	if _, ok := s.flows.Flow(cfg.Flow); !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFlow, cfg.Flow)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.names[cfg.Name]; ok {
		return nil, fmt.Errorf("%w: %q", ErrDuplicateSchedule, cfg.Name)
	}

	e := &entry{Entry: Entry{
		ID:          uuid.NewString(),
		Name:        cfg.Name,
		CronExpr:    cfg.CronExpr,
		IntervalSec: cfg.IntervalSec,
		Flow:        cfg.Flow,
		Input:       cfg.Input,
		CreatedAt:   time.Now().UTC(),
	}}
	e.cronID = s.cron.Schedule(sched, cron.FuncJob(func() { s.runEntry(e) }))

	s.entries[e.ID] = e
	s.names[e.Name] = e.ID

	s.logger.Info("schedule added",
		"schedule", e.Name,
		"schedule_id", e.ID,
		"flow", e.Flow,
	)
	return s.snapshot(e), nil
}

// Remove удаляет расписание по ID.
func (s *Scheduler) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, id)
	}

	s.cron.Remove(e.cronID)
	delete(s.entries, id)
	delete(s.names, e.Name)

	s.logger.Info("schedule removed", "schedule", e.Name, "schedule_id", id)
	return nil
}

// Get возвращает снимок расписания по ID.
func (s *Scheduler) Get(id string) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	return s.snapshot(e), nil
}

// List возвращает снимки всех расписаний в порядке создания.
func (s *Scheduler) List() []*Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := make([]*Entry, 0, len(s.entries))
	for _, e := range s.entries {
		list = append(list, s.snapshot(e))
	}
	sort.Slice(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.Before(list[j].CreatedAt)
		}
		return list[i].Name < list[j].Name
	})
	return list
}

// Len возвращает число расписаний.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// snapshot копирует расписание, дополняя его временем следующего
// срабатывания. Вызывается под s.mu.
func (s *Scheduler) snapshot(e *entry) *Entry {
	out := e.Entry
	out.NextRunAt = s.cron.Entry(e.cronID).Next
	return &out
}

// runEntry выполняет одно срабатывание расписания.
// Ошибки запуска логируются и не останавливают планировщик.
func (s *Scheduler) runEntry(e *entry) {
	flow, ok := s.flows.Flow(e.Flow)
	if !ok {
		// Flow исчез из источника после создания расписания.
		s.logger.Warn("flow not found for schedule, skipping",
			"schedule", e.Name,
			"flow", e.Flow,
		)
		return
	}

	ctx := context.Background()
	if s.runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.runTimeout)
		defer cancel()
	}

	s.logger.Info("scheduled run started", "schedule", e.Name, "flow", e.Flow)
	started := time.Now()
	result, err := flow.Run(ctx, e.Input)

	runID := ""
	if result != nil {
		runID = result.RunID
	} else if re := (*taskflow.RunError)(nil); errors.As(err, &re) {
		runID = re.RunID
	}

	now := time.Now().UTC()
	s.mu.Lock()
	e.LastRunAt = &now
	if runID != "" {
		e.LastRunID = runID
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("scheduled run failed",
			"schedule", e.Name,
			"flow", e.Flow,
			"duration", time.Since(started),
			"error", err,
		)
		return
	}
	s.logger.Info("scheduled run succeeded",
		"schedule", e.Name,
		"flow", e.Flow,
		"run_id", result.RunID,
		"duration", time.Since(started),
	)
}
