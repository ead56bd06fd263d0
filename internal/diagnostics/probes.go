package diagnostics

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bigkaa/consultportal/internal/backend"
	"github.com/bigkaa/consultportal/internal/domain/model"
	"github.com/bigkaa/consultportal/internal/repository"
)

// Имена отдельных проверок. Правила определения причины опираются на них,
// а не на текст сообщений.
const (
	TestElevatedRead   = "elevated read"
	TestRestrictedRead = "restricted read"
	TestRoutes         = "routes"
	TestAccess         = "elevated access"
	TestCountry        = "country"
	TestConsultant     = "consultant"
	TestProfile        = "consultant profile"
	TestClients        = "clients"
	TestProcedure      = repository.ProcConsultantClients
	TestLinks          = "links"
	TestSession        = "session"
	TestCurrentUser    = "current user"
	TestRequest        = "request"
	TestUserAgent      = "user agent"
	TestDevTooling     = "dev tooling"
	TestBuildVersion   = "build version"
)

// Ключи Details.
const (
	// DetailAccessPolicy — backend отклонил запрос политикой доступа
	DetailAccessPolicy = "accessPolicy"
	DetailKind         = "kind"
	DetailError        = "error"
	DetailMissing      = "missing"
)

// nilUUID подставляется в вызов процедуры, если консультант не найден:
// проверяется сама доступность процедуры.
const nilUUID = "00000000-0000-0000-0000-000000000000"

// DefaultProbes возвращает стандартный набор проверок в порядке регистрации.
func DefaultProbes() []Probe {
	return []Probe{
		{Category: model.CategoryEnvironment, Name: "environment", Run: probeEnvironment},
		{Category: model.CategoryDatabase, Name: "database", Run: probeDatabase},
		{Category: model.CategoryAPIRoutes, Name: "api_routes", Run: probeAPIRoutes},
		{Category: model.CategoryTestData, Name: "test_data", Run: probeTestData},
		{Category: model.CategoryRPCFunctions, Name: "rpc_functions", Run: probeRPC},
		{Category: model.CategoryRelationships, Name: "relationships", Run: probeRelationships},
		{Category: model.CategoryAuthentication, Name: "authentication", Run: probeAuthentication},
		{Category: model.CategoryFrontend, Name: "frontend", Run: probeFrontend},
	}
}

func result(status model.Status, category, test, msg, fix string, details map[string]any) model.Result {
	return model.Result{Category: category, Test: test, Status: status, Message: msg, Fix: fix, Details: details}
}

func pass(category, test, msg string, details map[string]any) model.Result {
	return result(model.StatusPass, category, test, msg, "", details)
}

func fail(category, test, msg, fix string, details map[string]any) model.Result {
	return result(model.StatusFail, category, test, msg, fix, details)
}

func warn(category, test, msg, fix string, details map[string]any) model.Result {
	return result(model.StatusWarning, category, test, msg, fix, details)
}

func info(category, test, msg string, details map[string]any) model.Result {
	return result(model.StatusInfo, category, test, msg, "", details)
}

// MsgNoSession — сообщение проверок, которым нужна сессия пользователя,
// при запуске в доверенном контексте (portalctl). Такие проверки не
// влияют на оценку.
const MsgNoSession = "пропущено: доверенный контекст, нет сессии"

func skippedNoSession(category, test string) model.Result {
	return info(category, test, MsgNoSession, nil)
}

// backendFailure — FAIL по ошибке backend. Отказ политикой доступа
// отмечается в Details и в тексте сообщения.
func backendFailure(category, test, msg string, err error, fix string) model.Result {
	details := map[string]any{DetailError: err.Error()}
	if kind := backend.Kind(err); kind != nil {
		details[DetailKind] = kind.Error()
	}
	var be *backend.Error
	if errors.As(err, &be) && be.Code != "" {
		details["code"] = be.Code
	}
	if backend.IsAccessPolicy(err) {
		details[DetailAccessPolicy] = true
		msg += ": запрос отклонён access policy"
		if fix == "" {
			fix = "проверьте политики RLS для роли authenticated"
		}
	}
	return fail(category, test, msg, fix, details)
}

// elevatedOrFail возвращает транспорт с повышенным доступом или
// готовый результат FAIL.
func elevatedOrFail(env *Env, category string) (backend.Transport, []model.Result) {
	tr, err := env.Backend.Elevated()
	if err != nil {
		return nil, []model.Result{fail(category, TestAccess,
			"сервисный доступ к backend не настроен",
			"задайте CP_BACKEND_SERVICE_KEY (rest) или CP_DB_DSN (postgres)",
			map[string]any{DetailKind: backend.ErrConfigurationMissing.Error()})}
	}
	return tr, nil
}

// --- Environment ---

func probeEnvironment(_ context.Context, env *Env) []model.Result {
	out := make([]model.Result, 0, len(env.Settings))
	for _, s := range env.Settings {
		if s.Present {
			out = append(out, pass(model.CategoryEnvironment, s.Name, "задана", nil))
			continue
		}
		out = append(out, fail(model.CategoryEnvironment, s.Name, "не задана", "задайте переменную "+s.Name, nil))
	}
	return out
}

// --- Database ---

func probeDatabase(ctx context.Context, env *Env) []model.Result {
	const cat = model.CategoryDatabase
	var out []model.Result

	if tr, res := elevatedOrFail(env, cat); res != nil {
		out = append(out, fail(cat, TestElevatedRead, res[0].Message, res[0].Fix, res[0].Details))
	} else if err := repository.Ping(ctx, tr); err != nil {
		out = append(out, backendFailure(cat, TestElevatedRead,
			"чтение countries с повышенным доступом не выполнено", err,
			"проверьте доступность backend и сервисный ключ"))
	} else {
		out = append(out, pass(cat, TestElevatedRead, "таблица countries доступна", nil))
	}

	sess := env.Session
	if !sess.Active() {
		return append(out, skippedNoSession(cat, TestRestrictedRead))
	}
	tr, err := env.Backend.AsUser(sess)
	if err != nil {
		return append(out, backendFailure(cat, TestRestrictedRead,
			"ограниченный доступ не настроен", err, "задайте CP_BACKEND_PUBLIC_KEY"))
	}
	_, err = repository.NewUserRepository(tr).GetByID(ctx, sess.UserID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		out = append(out, fail(cat, TestRestrictedRead,
			"строка пользователя скрыта: запрос отклонён access policy",
			"проверьте политику users_select для роли authenticated",
			map[string]any{DetailAccessPolicy: true}))
	case err != nil:
		out = append(out, backendFailure(cat, TestRestrictedRead,
			"чтение users от имени пользователя не выполнено", err, ""))
	default:
		out = append(out, pass(cat, TestRestrictedRead, "таблица users доступна от имени пользователя",
			map[string]any{"userId": sess.UserID}))
	}
	return out
}

// --- Test Data ---

func probeTestData(ctx context.Context, env *Env) []model.Result {
	const cat = model.CategoryTestData
	tr, res := elevatedOrFail(env, cat)
	if res != nil {
		return res
	}
	fx := env.Fixtures
	var out []model.Result

	country, err := repository.NewCountryRepository(tr).GetByID(ctx, fx.Country.ID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		out = append(out, fail(cat, TestCountry,
			fmt.Sprintf("тестовая страна %d не найдена", fx.Country.ID),
			"загрузите тестовые данные (testdata/seed.sql)", nil))
	case err != nil:
		out = append(out, backendFailure(cat, TestCountry, "чтение countries не выполнено", err, ""))
	case fx.Country.Code != "" && !strings.EqualFold(country.Code, fx.Country.Code):
		out = append(out, warn(cat, TestCountry,
			fmt.Sprintf("код страны %d: %s, ожидался %s", country.ID, country.Code, fx.Country.Code),
			"исправьте country.code в тестовых данных", nil))
	default:
		out = append(out, pass(cat, TestCountry, "страна "+country.Name+" найдена",
			map[string]any{"id": country.ID}))
	}

	users := repository.NewUserRepository(tr)
	consultant, err := users.FindConsultantByEmail(ctx, fx.ConsultantEmail)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		out = append(out, fail(cat, TestConsultant,
			"consultant not found: "+fx.ConsultantEmail,
			"создайте пользователя с ролью consultant и email "+fx.ConsultantEmail, nil))
	case err != nil:
		out = append(out, backendFailure(cat, TestConsultant, "поиск консультанта не выполнен", err, ""))
	default:
		out = append(out,
			pass(cat, TestConsultant, "консультант найден", map[string]any{"id": consultant.ID}),
			consultantProfile(ctx, users, consultant.ID),
		)
	}

	clients, err := users.FindClientsByEmails(ctx, fx.ClientEmails)
	if err != nil {
		return append(out, backendFailure(cat, TestClients, "поиск тестовых клиентов не выполнен", err, ""))
	}
	missing := missingEmails(fx.ClientEmails, clients)
	switch {
	case len(clients) == 0:
		out = append(out, fail(cat, TestClients,
			fmt.Sprintf("test clients missing: не найден ни один из %d", len(fx.ClientEmails)),
			"загрузите тестовых клиентов (testdata/seed.sql)",
			map[string]any{DetailMissing: missing}))
	case len(missing) > 0:
		out = append(out, warn(cat, TestClients,
			fmt.Sprintf("test clients missing: найдено %d из %d", len(clients), len(fx.ClientEmails)),
			"создайте недостающих клиентов",
			map[string]any{DetailMissing: missing}))
	default:
		out = append(out, pass(cat, TestClients,
			fmt.Sprintf("найдены все %d тестовых клиента", len(clients)), nil))
	}
	return out
}

// consultantProfile — сведения о профиле консультанта, на оценку не влияют.
func consultantProfile(ctx context.Context, users repository.UserRepository, id string) model.Result {
	const cat = model.CategoryTestData
	p, err := users.GetConsultantProfile(ctx, id)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return info(cat, TestProfile, "профиль консультанта не заполнен", nil)
	case err != nil:
		return info(cat, TestProfile, "профиль консультанта не прочитан", map[string]any{DetailError: err.Error()})
	}
	return info(cat, TestProfile,
		fmt.Sprintf("комиссия %.2f%%, рейтинг %.1f", p.CommissionRate, p.PerformanceRating),
		map[string]any{"commissionRate": p.CommissionRate, "performanceRating": p.PerformanceRating})
}

// missingEmails возвращает email из want, для которых нет пользователя.
func missingEmails(want []string, found []*model.User) []string {
	have := make(map[string]bool, len(found))
	for _, u := range found {
		have[strings.ToLower(u.Email)] = true
	}
	var missing []string
	for _, e := range want {
		if !have[strings.ToLower(e)] {
			missing = append(missing, e)
		}
	}
	return missing
}

// --- RPC Functions ---

func probeRPC(ctx context.Context, env *Env) []model.Result {
	const cat = model.CategoryRPCFunctions
	tr, res := elevatedOrFail(env, cat)
	if res != nil {
		return res
	}

	consultantID := nilUUID
	consultant, err := repository.NewUserRepository(tr).FindConsultantByEmail(ctx, env.Fixtures.ConsultantEmail)
	switch {
	case err == nil:
		consultantID = consultant.ID
	case !errors.Is(err, repository.ErrNotFound):
		return []model.Result{backendFailure(cat, TestProcedure, "поиск консультанта не выполнен", err, "")}
	}

	rows, err := repository.NewVisibilityRepository(tr).ListConsultantClients(ctx, repository.ClientQuery{
		ConsultantID: consultantID,
		CountryID:    env.Fixtures.Country.ID,
		Limit:        1,
	})
	switch {
	case errors.Is(err, backend.ErrProcedureMissing):
		r := backendFailure(cat, TestProcedure, "процедура "+TestProcedure+" не найдена", err,
			"примените миграции: portalctl migrate up")
		return []model.Result{r}
	case errors.Is(err, backend.ErrProcedureFailure):
		return []model.Result{backendFailure(cat, TestProcedure, "процедура "+TestProcedure+" завершилась ошибкой", err,
			"проверьте тело процедуры и её параметры")}
	case err != nil:
		return []model.Result{backendFailure(cat, TestProcedure, "вызов процедуры "+TestProcedure+" не выполнен", err, "")}
	case len(rows) == 0:
		return []model.Result{fail(cat, TestProcedure, "RPC function returns empty data",
			fmt.Sprintf("проверьте связи консультанта %s с клиентами в стране %d",
				env.Fixtures.ConsultantEmail, env.Fixtures.Country.ID),
			map[string]any{"consultantId": consultantID})}
	}
	return []model.Result{pass(cat, TestProcedure, "процедура вернула данные",
		map[string]any{"consultantId": consultantID})}
}

// --- Relationships ---

func probeRelationships(ctx context.Context, env *Env) []model.Result {
	const cat = model.CategoryRelationships
	tr, res := elevatedOrFail(env, cat)
	if res != nil {
		return res
	}
	users := repository.NewUserRepository(tr)

	consultant, err := users.FindConsultantByEmail(ctx, env.Fixtures.ConsultantEmail)
	if errors.Is(err, repository.ErrNotFound) {
		return []model.Result{warn(cat, TestLinks, "связи не проверены: consultant not found", "", nil)}
	} else if err != nil {
		return []model.Result{backendFailure(cat, TestLinks, "поиск консультанта не выполнен", err, "")}
	}

	clients, err := users.FindClientsByEmails(ctx, env.Fixtures.ClientEmails)
	if err != nil {
		return []model.Result{backendFailure(cat, TestLinks, "поиск тестовых клиентов не выполнен", err, "")}
	}
	if len(clients) == 0 {
		return []model.Result{warn(cat, TestLinks, "связи не проверены: test clients missing", "", nil)}
	}

	ids := make([]string, len(clients))
	for i, c := range clients {
		ids[i] = c.ID
	}
	links, err := repository.NewRelationshipRepository(tr).Links(ctx, consultant.ID, env.Fixtures.Country.ID, ids)
	if err != nil {
		return []model.Result{backendFailure(cat, TestLinks, "чтение связей не выполнено", err, "")}
	}

	linked := repository.LinkedClients(links)
	var unlinked []string
	for _, c := range clients {
		if !linked[c.ID] {
			unlinked = append(unlinked, c.Email)
		}
	}
	sources := make(map[string]int)
	for _, l := range links {
		sources[l.Source]++
	}

	switch {
	case len(linked) == 0:
		return []model.Result{fail(cat, TestLinks, "relationship records missing",
			"создайте назначения (consultant_client_assignments) или заявки (applications) для тестовых клиентов",
			map[string]any{DetailMissing: unlinked})}
	case len(unlinked) > 0:
		return []model.Result{warn(cat, TestLinks,
			fmt.Sprintf("relationship records missing: %d из %d клиентов не связаны", len(unlinked), len(clients)),
			"создайте недостающие назначения",
			map[string]any{DetailMissing: unlinked, "sources": sources})}
	}
	return []model.Result{pass(cat, TestLinks,
		fmt.Sprintf("все %d клиента связаны с консультантом", len(clients)),
		map[string]any{"sources": sources})}
}

// --- Authentication ---

func probeAuthentication(ctx context.Context, env *Env) []model.Result {
	const cat = model.CategoryAuthentication
	sess := env.Session
	if !sess.Active() {
		return []model.Result{skippedNoSession(cat, TestSession)}
	}
	out := []model.Result{pass(cat, TestSession, "сессия активна",
		map[string]any{"userId": sess.UserID, "role": sess.Role})}

	tr, err := env.Backend.AsUser(sess)
	if err != nil {
		return append(out, backendFailure(cat, TestCurrentUser, "ограниченный доступ не настроен", err, ""))
	}
	user, err := repository.NewUserRepository(tr).CurrentUser(ctx)
	if err != nil {
		return append(out, backendFailure(cat, TestCurrentUser,
			"backend не вернул текущего пользователя", err, "проверьте токен и настройки JWT backend"))
	}
	if user.ID != sess.UserID {
		return append(out, fail(cat, TestCurrentUser,
			fmt.Sprintf("пользователь backend %s не совпадает с сессией %s", user.ID, sess.UserID),
			"проверьте, что sub токена совпадает с users.id", nil))
	}
	return append(out, pass(cat, TestCurrentUser, "пользователь backend совпадает с сессией", nil))
}

// --- Frontend ---

func probeFrontend(_ context.Context, env *Env) []model.Result {
	const cat = model.CategoryFrontend
	var out []model.Result
	if req := env.Request; req != nil {
		ua := req.UserAgent
		if ua == "" {
			ua = "не передан"
		}
		out = append(out,
			info(cat, TestRequest, req.Path, nil),
			info(cat, TestUserAgent, ua, nil),
			info(cat, TestDevTooling, fmt.Sprintf("инструменты разработчика: %t", req.DevTooling), nil),
		)
	} else {
		out = append(out, info(cat, TestRequest, "запуск вне HTTP-запроса", nil))
	}
	return append(out, info(cat, TestBuildVersion, env.Version, nil))
}
