package model

import "time"

// Status — статус одного диагностического результата.
type Status string

const (
	StatusPass    Status = "PASS"
	StatusFail    Status = "FAIL"
	StatusWarning Status = "WARNING"
	StatusInfo    Status = "INFO"
)

// Категории диагностических проверок в порядке регистрации.
const (
	CategoryEnvironment    = "Environment"
	CategoryDatabase       = "Database"
	CategoryAPIRoutes      = "API Routes"
	CategoryTestData       = "Test Data"
	CategoryRPCFunctions   = "RPC Functions"
	CategoryRelationships  = "Relationships"
	CategoryAuthentication = "Authentication"
	CategoryFrontend       = "Frontend"
)

// Result — результат одной диагностической проверки.
// Создаётся заново при каждом запуске и не изменяется после создания.
type Result struct {
	Category string         `json:"category"          yaml:"category"`
	Test     string         `json:"test"              yaml:"test"`
	Status   Status         `json:"status"            yaml:"status"`
	Message  string         `json:"message"           yaml:"message"`
	Details  map[string]any `json:"details,omitempty" yaml:"details,omitempty"`
	Fix      string         `json:"fix,omitempty"     yaml:"fix,omitempty"`
}

// HealthStatus — итоговое состояние системы.
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "HEALTHY"
	HealthDegraded HealthStatus = "DEGRADED"
	HealthCritical HealthStatus = "CRITICAL"
)

// Priority — приоритет предполагаемой причины.
type Priority string

const (
	PriorityHigh   Priority = "HIGH"
	PriorityMedium Priority = "MEDIUM"
	PriorityLow    Priority = "LOW"
)

// RootCause — наиболее вероятная причина проблем.
type RootCause struct {
	// Key — стабильный идентификатор правила (api_route_failure, unknown, none, ...)
	Key         string   `json:"key"         yaml:"key"`
	Title       string   `json:"title"       yaml:"title"`
	Explanation string   `json:"explanation" yaml:"explanation"`
	Fix         string   `json:"fix"         yaml:"fix"`
	Priority    Priority `json:"priority"    yaml:"priority"`
}

// Counts — количество результатов по статусам.
type Counts struct {
	Pass    int `json:"pass"    yaml:"pass"`
	Fail    int `json:"fail"    yaml:"fail"`
	Warning int `json:"warning" yaml:"warning"`
	Info    int `json:"info"    yaml:"info"`
	// Total — учитываемые в оценке результаты (без INFO)
	Total int `json:"total" yaml:"total"`
}

// HealthReport — свёртка результатов одного запуска диагностики.
// Вычисляется, не хранится.
type HealthReport struct {
	Status    HealthStatus    `json:"status"    yaml:"status"`
	Score     int             `json:"score"     yaml:"score"`
	Counts    Counts          `json:"counts"    yaml:"counts"`
	Summary   map[string]bool `json:"summary"   yaml:"summary"`
	RootCause RootCause       `json:"rootCause" yaml:"root_cause"`
	Results   []Result        `json:"results"   yaml:"results"`
	StartedAt time.Time       `json:"startedAt" yaml:"started_at"`
	Duration  time.Duration   `json:"duration"  yaml:"duration"`
}

// Categories возвращает категории в порядке первого появления в результатах.
func (r *HealthReport) Categories() []string {
	seen := make(map[string]bool)
	var out []string
	for _, res := range r.Results {
		if !seen[res.Category] {
			seen[res.Category] = true
			out = append(out, res.Category)
		}
	}
	return out
}

// ResultsIn возвращает результаты одной категории в исходном порядке.
func (r *HealthReport) ResultsIn(category string) []Result {
	var out []Result
	for _, res := range r.Results {
		if res.Category == category {
			out = append(out, res)
		}
	}
	return out
}
