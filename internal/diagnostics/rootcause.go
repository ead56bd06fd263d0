package diagnostics

import "github.com/bigkaa/consultportal/internal/domain/model"

// Rule — правило определения причины: первое совпавшее правило
// в порядке списка определяет RootCause.
type Rule struct {
	Cause model.RootCause
	Match func(r model.Result) bool
}

// problem — результат, указывающий на проблему (FAIL или WARNING).
func problem(r model.Result) bool {
	return r.Status == model.StatusFail || r.Status == model.StatusWarning
}

// Rules — упорядоченный список правил.
var Rules = []Rule{
	{
		Cause: model.RootCause{
			Key:         "api_route_failure",
			Title:       "Маршрут API не отвечает",
			Explanation: "Один или несколько маршрутов API вернули ошибку или не-JSON ответ.",
			Fix:         "Проверьте журнал сервиса и доступность backend для указанного маршрута.",
			Priority:    model.PriorityHigh,
		},
		Match: func(r model.Result) bool {
			return r.Category == model.CategoryAPIRoutes && r.Status == model.StatusFail
		},
	},
	{
		Cause: model.RootCause{
			Key:         "consultant_missing",
			Title:       "Тестовый консультант не найден",
			Explanation: "В хранилище нет консультанта с email из тестовых данных.",
			Fix:         "Создайте консультанта или исправьте consultant_email в тестовых данных.",
			Priority:    model.PriorityHigh,
		},
		Match: func(r model.Result) bool {
			return r.Category == model.CategoryTestData && r.Test == TestConsultant && problem(r)
		},
	},
	{
		Cause: model.RootCause{
			Key:         "test_clients_missing",
			Title:       "Тестовые клиенты отсутствуют",
			Explanation: "Часть или все клиенты из тестовых данных не найдены.",
			Fix:         "Загрузите тестовых клиентов (internal/database/testdata/seed.sql).",
			Priority:    model.PriorityHigh,
		},
		Match: func(r model.Result) bool {
			return r.Category == model.CategoryTestData && r.Test == TestClients && problem(r)
		},
	},
	{
		Cause: model.RootCause{
			Key:         "relationships_missing",
			Title:       "Нет связей консультанта с клиентами",
			Explanation: "Консультант и клиенты существуют, но не связаны ни заявками, ни назначениями.",
			Fix:         "Создайте записи в consultant_client_assignments или applications.",
			Priority:    model.PriorityMedium,
		},
		Match: func(r model.Result) bool {
			return r.Category == model.CategoryRelationships && r.Test == TestLinks && problem(r)
		},
	},
	{
		Cause: model.RootCause{
			Key:         "access_policy",
			Title:       "Запрос отклонён политикой доступа",
			Explanation: "Backend отклонил запрос политикой построчной безопасности.",
			Fix:         "Проверьте политики RLS и роль authenticated.",
			Priority:    model.PriorityHigh,
		},
		Match: func(r model.Result) bool {
			v, _ := r.Details[DetailAccessPolicy].(bool)
			return v && problem(r)
		},
	},
	{
		Cause: model.RootCause{
			Key:         "rpc_empty",
			Title:       "Процедура не возвращает данных",
			Explanation: "Процедура get_consultant_clients отсутствует, завершается ошибкой или возвращает пустой результат.",
			Fix:         "Примените миграции (portalctl migrate up) и проверьте тестовые данные.",
			Priority:    model.PriorityMedium,
		},
		Match: func(r model.Result) bool {
			return r.Category == model.CategoryRPCFunctions && r.Test == TestProcedure && problem(r)
		},
	},
}

var causeUnknown = model.RootCause{
	Key:         "unknown",
	Title:       "Причина не определена",
	Explanation: "Ни одно известное правило не подошло к результатам проверок.",
	Fix:         "Просмотрите результаты проверок с FAIL и WARNING.",
	Priority:    model.PriorityMedium,
}

// Classify возвращает наиболее вероятную причину проблем. Если ни одно
// правило не подошло, причина unknown с приоритетом MEDIUM, в том числе
// для отчёта без проблем: итог такого отчёта виден по Status.
func Classify(results []model.Result) model.RootCause {
	for _, rule := range Rules {
		for _, r := range results {
			if rule.Match(r) {
				return rule.Cause
			}
		}
	}
	return causeUnknown
}
