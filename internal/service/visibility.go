// visibility.go — Resolver видимости клиентов консультанта.
// Ошибки не пробрасываются вызывающему: любой сбой превращается
// в VisibilityResult с заполненным Error.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/consultportal/internal/backend"
	"github.com/bigkaa/consultportal/internal/domain/model"
	"github.com/bigkaa/consultportal/internal/repository"
	"github.com/bigkaa/consultportal/internal/session"
)

// Параметры пагинации по умолчанию.
const (
	DefaultLimit = 50
	MaxLimit     = 500
)

// Prometheus-метрики Resolver.
var (
	visibilityRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cp_visibility_requests_total",
		Help: "Количество запросов видимости клиентов по результату.",
	}, []string{"result"})
	visibilityDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "cp_visibility_duration_seconds",
		Help:    "Длительность запросов видимости клиентов.",
		Buckets: prometheus.DefBuckets,
	})
)

// VisibilityQuery — запрос клиентов консультанта.
// Должен быть задан ровно один из ConsultantID и ConsultantEmail.
type VisibilityQuery struct {
	ConsultantID    string `json:"consultantId,omitempty"`
	ConsultantEmail string `json:"consultantEmail,omitempty"`
	CountryID       int    `json:"countryId"`
	Search          string `json:"search,omitempty"`
	// Limit — размер страницы (nil — DefaultLimit)
	Limit *int `json:"limit,omitempty"`
	// Offset — смещение (nil — 0)
	Offset *int `json:"offset,omitempty"`
}

// VisibilityResult — результат Resolve.
// При успехе заполнены Data и Count, при ошибке — Error и Kind.
type VisibilityResult struct {
	Data  []model.ClientSummary
	Count int
	// Error — стабильное сообщение об ошибке (пусто при успехе)
	Error string
	// Kind — вид ошибки (ErrConsultantNotFound, ErrBackendUnavailable, ...)
	Kind error
	// Debug — исходная ошибка backend, только для администраторов
	Debug string
}

// OK — запрос выполнен без ошибки.
func (r VisibilityResult) OK() bool {
	return r.Error == ""
}

// Resolver отвечает на вопрос «каких клиентов видит консультант X
// в стране Y по поиску Z на странице W».
type Resolver struct {
	backend *backend.Client
	logger  *slog.Logger
}

// NewResolver создаёт Resolver. Процедура вызывается с повышенным доступом.
func NewResolver(client *backend.Client, logger *slog.Logger) *Resolver {
	return &Resolver{
		backend: client,
		logger:  logger.With(slog.String("component", "visibility_resolver")),
	}
}

// Resolve выполняет запрос. Никогда не паникует наружу и не возвращает error:
// сбой любого шага отражается в VisibilityResult.Error.
func (r *Resolver) Resolve(ctx context.Context, sess *session.Session, q VisibilityQuery) (res VisibilityResult) {
	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("Паника при разрешении видимости", slog.Any("panic", p))
			res = r.failure(sess, fmt.Errorf("%w: %v", ErrInternal, p))
		}
		visibilityDuration.Observe(time.Since(start).Seconds())
		visibilityRequestsTotal.WithLabelValues(resultLabel(res)).Inc()
	}()

	cq, err := normalizeQuery(q)
	if err != nil {
		return r.failure(sess, err)
	}
	if err := authorize(sess, q); err != nil {
		return r.failure(sess, err)
	}

	elevated, err := r.backend.Elevated()
	if err != nil {
		return r.failure(sess, classifyBackend(err))
	}

	// 1. Идентичность консультанта → канонический id
	if cq.ConsultantID == "" {
		consultant, err := repository.NewUserRepository(elevated).FindConsultantByEmail(ctx, q.ConsultantEmail)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return r.failure(sess, ErrConsultantNotFound)
			}
			return r.failure(sess, classifyBackend(err))
		}
		if sess.IsConsultant() && consultant.ID != sess.UserID {
			return r.failure(sess, fmt.Errorf("%w: консультант может запрашивать только своих клиентов", ErrForbidden))
		}
		cq.ConsultantID = consultant.ID
	}

	// 2. Процедура с поиском и пагинацией на стороне хранилища
	rows, err := repository.NewVisibilityRepository(elevated).ListConsultantClients(ctx, cq)
	if err != nil {
		return r.failure(sess, classifyBackend(err))
	}

	r.logger.Debug("Клиенты консультанта получены",
		slog.String("consultant_id", cq.ConsultantID),
		slog.Int("country_id", cq.CountryID),
		slog.Int("count", len(rows)),
		slog.Duration("duration", time.Since(start)),
	)

	// 3. count — длина страницы
	return VisibilityResult{Data: rows, Count: len(rows)}
}

// failure формирует результат с ошибкой. Debug заполняется только для администратора.
func (r *Resolver) failure(sess *session.Session, err error) VisibilityResult {
	res := VisibilityResult{Error: PublicMessage(err), Kind: KindOf(err)}
	if sess.IsAdmin() {
		res.Debug = err.Error()
	}
	level := slog.LevelWarn
	if res.Kind == ErrValidation || res.Kind == ErrConsultantNotFound || res.Kind == ErrForbidden {
		level = slog.LevelInfo
	}
	r.logger.Log(context.Background(), level, "Запрос видимости клиентов не выполнен",
		slog.String("error", err.Error()),
	)
	return res
}

// normalizeQuery проверяет запрос и заполняет значения по умолчанию.
func normalizeQuery(q VisibilityQuery) (repository.ClientQuery, error) {
	id := strings.TrimSpace(q.ConsultantID)
	email := strings.TrimSpace(q.ConsultantEmail)

	switch {
	case id == "" && email == "":
		return repository.ClientQuery{}, fmt.Errorf("%w: требуется consultantId или consultantEmail", ErrValidation)
	case id != "" && email != "":
		return repository.ClientQuery{}, fmt.Errorf("%w: укажите только одно из consultantId и consultantEmail", ErrValidation)
	}
	if id != "" {
		if _, err := uuid.Parse(id); err != nil {
			return repository.ClientQuery{}, fmt.Errorf("%w: consultantId должен быть UUID", ErrValidation)
		}
	}
	if q.CountryID <= 0 {
		return repository.ClientQuery{}, fmt.Errorf("%w: countryId обязателен и должен быть > 0", ErrValidation)
	}

	limit := DefaultLimit
	if q.Limit != nil {
		limit = *q.Limit
	}
	if limit <= 0 {
		return repository.ClientQuery{}, fmt.Errorf("%w: limit должен быть > 0", ErrValidation)
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	offset := 0
	if q.Offset != nil {
		offset = *q.Offset
	}
	if offset < 0 {
		return repository.ClientQuery{}, fmt.Errorf("%w: offset должен быть >= 0", ErrValidation)
	}

	return repository.ClientQuery{
		ConsultantID: strings.ToLower(id),
		CountryID:    q.CountryID,
		Search:       strings.TrimSpace(q.Search),
		Limit:        limit,
		Offset:       offset,
	}, nil
}

// authorize: администратор — любой консультант, консультант — только он сам
// (для email проверка выполняется после разрешения), клиент — никогда.
func authorize(sess *session.Session, q VisibilityQuery) error {
	if !sess.Active() {
		return fmt.Errorf("%w: нет активной сессии", ErrForbidden)
	}
	switch {
	case sess.IsAdmin():
		return nil
	case sess.IsConsultant():
		id := strings.TrimSpace(q.ConsultantID)
		if id != "" && !strings.EqualFold(id, sess.UserID) {
			return fmt.Errorf("%w: консультант может запрашивать только своих клиентов", ErrForbidden)
		}
		return nil
	default:
		return fmt.Errorf("%w: роль %q не может запрашивать клиентов консультанта", ErrForbidden, sess.Role)
	}
}

func resultLabel(res VisibilityResult) string {
	switch res.Kind {
	case nil:
		return "ok"
	case ErrValidation:
		return "invalid"
	case ErrConsultantNotFound:
		return "not_found"
	case ErrForbidden:
		return "forbidden"
	case ErrBackendUnavailable, ErrConfigurationMissing:
		return "backend_error"
	default:
		return "internal_error"
	}
}
