// Пакет diagnostics — батарея диагностических проверок и их свёртка
// в отчёт о состоянии системы.
//
// Проверки регистрируются в Battery упорядоченным списком и выполняются
// одним циклом: последовательно или параллельно (errgroup с лимитом).
// Каждая проверка изолирована: паника, таймаут или ошибка backend
// превращаются в результат FAIL, соседние проверки продолжают работу.
package diagnostics

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bigkaa/consultportal/internal/backend"
	"github.com/bigkaa/consultportal/internal/config"
	"github.com/bigkaa/consultportal/internal/domain/model"
	"github.com/bigkaa/consultportal/internal/session"
)

// RequestInfo — сведения о HTTP-запросе, из которого запущена диагностика.
type RequestInfo struct {
	Path      string
	UserAgent string
	// DevTooling — запрос пришёл из инструментов разработчика
	DevTooling bool
}

// Env — окружение одного запуска. Создаётся в Run и передаётся
// каждой проверке только для чтения.
type Env struct {
	Settings []config.Setting
	Backend  *backend.Client
	Fixtures Fixtures
	// Session — сессия вызывающего (nil при запуске из CLI)
	Session *session.Session
	// Request — nil вне HTTP-запроса
	Request *RequestInfo
	// API — nil, если проверка маршрутов не настроена
	API     RouteProber
	Version string
}

// Probe — одна диагностическая проверка.
// Run всегда возвращает хотя бы один результат.
type Probe struct {
	Category string
	Name     string
	Run      func(ctx context.Context, env *Env) []model.Result
}

// Deps — постоянные зависимости батареи.
type Deps struct {
	Settings []config.Setting
	Backend  *backend.Client
	Fixtures Fixtures
	API      RouteProber
	Version  string
}

// Options — режим выполнения.
type Options struct {
	Parallel       bool
	MaxConcurrency int
	// ProbeTimeout — таймаут одной проверки (0 — без таймаута)
	ProbeTimeout time.Duration
}

// Battery — упорядоченный набор проверок.
type Battery struct {
	deps   Deps
	opts   Options
	probes []Probe
	logger *slog.Logger
}

// NewBattery создаёт пустую батарею.
func NewBattery(deps Deps, opts Options, logger *slog.Logger) *Battery {
	if opts.MaxConcurrency < 1 {
		opts.MaxConcurrency = 1
	}
	return &Battery{
		deps:   deps,
		opts:   opts,
		logger: logger.With(slog.String("component", "diagnostics")),
	}
}

// NewDefaultBattery создаёт батарею со стандартным набором проверок.
func NewDefaultBattery(deps Deps, opts Options, logger *slog.Logger) *Battery {
	b := NewBattery(deps, opts, logger)
	b.Register(DefaultProbes()...)
	return b
}

// Register добавляет проверки в конец списка.
func (b *Battery) Register(probes ...Probe) {
	b.probes = append(b.probes, probes...)
}

// Probes возвращает зарегистрированные проверки.
func (b *Battery) Probes() []Probe {
	return append([]Probe(nil), b.probes...)
}

// Run выполняет все проверки и возвращает результаты, упорядоченные
// по категории (в порядке первой регистрации), затем по порядку регистрации.
func (b *Battery) Run(ctx context.Context, sess *session.Session, req *RequestInfo) []model.Result {
	env := &Env{
		Settings: b.deps.Settings,
		Backend:  b.deps.Backend,
		Fixtures: b.deps.Fixtures,
		Session:  sess,
		Request:  req,
		API:      b.deps.API,
		Version:  b.deps.Version,
	}

	slots := make([][]model.Result, len(b.probes))
	if b.opts.Parallel {
		var g errgroup.Group
		g.SetLimit(b.opts.MaxConcurrency)
		for i, p := range b.probes {
			g.Go(func() error {
				slots[i] = b.runProbe(ctx, p, env)
				return nil
			})
		}
		_ = g.Wait()
	} else {
		for i, p := range b.probes {
			slots[i] = b.runProbe(ctx, p, env)
		}
	}

	var results []model.Result
	for _, i := range b.slotOrder() {
		results = append(results, slots[i]...)
	}
	return results
}

// Report выполняет проверки и сворачивает результаты в отчёт.
func (b *Battery) Report(ctx context.Context, sess *session.Session, req *RequestInfo) model.HealthReport {
	start := time.Now()
	results := b.Run(ctx, sess, req)
	report := Aggregate(results, start.UTC(), time.Since(start))
	observeReport(report)

	b.logger.Info("Диагностика завершена",
		slog.String("status", string(report.Status)),
		slog.Int("score", report.Score),
		slog.Int("fail", report.Counts.Fail),
		slog.Int("warning", report.Counts.Warning),
		slog.String("root_cause", report.RootCause.Key),
		slog.Duration("duration", report.Duration),
	)
	return report
}

// slotOrder — индексы проверок, сгруппированные по категории.
func (b *Battery) slotOrder() []int {
	rank := make(map[string]int)
	for _, p := range b.probes {
		if _, ok := rank[p.Category]; !ok {
			rank[p.Category] = len(rank)
		}
	}
	order := make([]int, len(b.probes))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(x, y int) bool {
		return rank[b.probes[order[x]].Category] < rank[b.probes[order[y]].Category]
	})
	return order
}

// runProbe выполняет одну проверку под собственным таймаутом.
func (b *Battery) runProbe(ctx context.Context, p Probe, env *Env) (results []model.Result) {
	start := time.Now()
	if b.opts.ProbeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.opts.ProbeTimeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Паника в диагностической проверке",
				slog.String("probe", p.Name),
				slog.Any("panic", r),
			)
			results = []model.Result{{
				Category: p.Category,
				Test:     p.Name,
				Status:   model.StatusFail,
				Message:  "внутренняя ошибка проверки",
				Details:  map[string]any{"panic": fmt.Sprint(r)},
			}}
		}
		probeDuration.WithLabelValues(p.Name).Observe(time.Since(start).Seconds())
	}()

	results = p.Run(ctx, env)
	if len(results) == 0 {
		results = []model.Result{fail(p.Category, p.Name, "проверка не вернула результатов", "", nil)}
	}
	for i := range results {
		if results[i].Category == "" {
			results[i].Category = p.Category
		}
	}

	b.logger.Debug("Проверка выполнена",
		slog.String("probe", p.Name),
		slog.Int("results", len(results)),
		slog.Duration("duration", time.Since(start)),
	)
	return results
}
