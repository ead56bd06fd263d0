package diagnostics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bigkaa/consultportal/internal/domain/model"
)

func results(statuses ...model.Status) []model.Result {
	out := make([]model.Result, len(statuses))
	for i, s := range statuses {
		out[i] = model.Result{Category: model.CategoryDatabase, Test: "t", Status: s}
	}
	return out
}

const (
	P = model.StatusPass
	F = model.StatusFail
	W = model.StatusWarning
	I = model.StatusInfo
)

func TestScore(t *testing.T) {
	tests := []struct {
		name string
		in   []model.Result
		want int
	}{
		{"пусто", nil, 0},
		{"только INFO", results(I, I), 0},
		{"все PASS", results(P, P, P), 100},
		{"INFO не учитывается", results(P, P, I, I), 100},
		{"округление вверх", results(P, P, F), 67},
		{"округление вниз", results(P, F, F), 33},
		{"WARNING снижает оценку", results(P, W), 50},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Score(Count(tt.in)))
		})
	}
}

func TestOverallStatus_Boundaries(t *testing.T) {
	tests := []struct {
		fail, warn int
		want       model.HealthStatus
	}{
		{0, 0, model.HealthHealthy},
		{0, 2, model.HealthHealthy},
		{0, 3, model.HealthDegraded},
		{1, 0, model.HealthDegraded},
		{2, 5, model.HealthDegraded},
		{3, 0, model.HealthCritical},
	}
	for _, tt := range tests {
		got := OverallStatus(model.Counts{Fail: tt.fail, Warning: tt.warn})
		assert.Equal(t, tt.want, got, "fail=%d warn=%d", tt.fail, tt.warn)
	}
}

// Замена FAIL на PASS не уменьшает оценку.
func TestScore_Monotonic(t *testing.T) {
	in := results(F, F, W, F, P, I, F)
	prev := Score(Count(in))
	for i := range in {
		if in[i].Status != F {
			continue
		}
		in[i].Status = P
		next := Score(Count(in))
		assert.GreaterOrEqual(t, next, prev)
		prev = next
	}
}

func TestSummarize_AnyPass(t *testing.T) {
	in := []model.Result{
		{Category: model.CategoryDatabase, Status: F},
		{Category: model.CategoryDatabase, Status: P},
		{Category: model.CategoryTestData, Status: W},
		{Category: model.CategoryFrontend, Status: I},
	}
	summary := Summarize(in)

	assert.True(t, summary[model.CategoryDatabase], "хотя бы один PASS")
	assert.False(t, summary[model.CategoryTestData])
	_, ok := summary[model.CategoryFrontend]
	assert.False(t, ok, "категория только с INFO не попадает в сводку")
}

func TestClassify_Priority(t *testing.T) {
	policy := model.Result{
		Category: model.CategoryAuthentication, Test: TestCurrentUser, Status: F,
		Details: map[string]any{DetailAccessPolicy: true},
	}
	links := model.Result{Category: model.CategoryRelationships, Test: TestLinks, Status: F}
	rpc := model.Result{Category: model.CategoryRPCFunctions, Test: TestProcedure, Status: F}
	route := model.Result{Category: model.CategoryAPIRoutes, Test: "POST /api/v1/consultant-clients", Status: F}

	tests := []struct {
		name string
		in   []model.Result
		key  string
		prio model.Priority
	}{
		{"чисто", results(P, I), "unknown", model.PriorityMedium},
		{"только предупреждение без правила", results(P, W), "unknown", model.PriorityMedium},
		{"процедура", []model.Result{rpc}, "rpc_empty", model.PriorityMedium},
		{"политика раньше процедуры", []model.Result{rpc, policy}, "access_policy", model.PriorityHigh},
		{"связи раньше политики", []model.Result{policy, links}, "relationships_missing", model.PriorityMedium},
		{"маршрут раньше всех", []model.Result{rpc, links, policy, route}, "api_route_failure", model.PriorityHigh},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.in)
			assert.Equal(t, tt.key, got.Key)
			assert.Equal(t, tt.prio, got.Priority)
		})
	}
}

func TestClassify_RouteWarningIsNotFailure(t *testing.T) {
	in := []model.Result{{Category: model.CategoryAPIRoutes, Test: TestRoutes, Status: W}}
	assert.Equal(t, "unknown", Classify(in).Key)
}

func TestAggregate(t *testing.T) {
	started := time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)
	in := []model.Result{
		{Category: model.CategoryEnvironment, Test: "CP_BACKEND_URL", Status: P},
		{Category: model.CategoryTestData, Test: TestConsultant, Status: F, Message: "consultant not found: x"},
		{Category: model.CategoryFrontend, Test: TestBuildVersion, Status: I},
	}

	report := Aggregate(in, started, 1500*time.Millisecond)

	require.Len(t, report.Results, 3)
	assert.Equal(t, model.Counts{Pass: 1, Fail: 1, Info: 1, Total: 2}, report.Counts)
	assert.Equal(t, 50, report.Score)
	assert.Equal(t, model.HealthDegraded, report.Status)
	assert.Equal(t, "consultant_missing", report.RootCause.Key)
	assert.Equal(t, started, report.StartedAt)
	assert.Equal(t, []string{model.CategoryEnvironment, model.CategoryTestData, model.CategoryFrontend}, report.Categories())
}

func TestAggregate_Empty(t *testing.T) {
	report := Aggregate(nil, time.Now(), 0)

	assert.NotNil(t, report.Results)
	assert.Equal(t, 0, report.Score)
	assert.Equal(t, "unknown", report.RootCause.Key)
}
