package repository

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/bigkaa/consultportal/internal/backend/pgstore"
	"github.com/bigkaa/consultportal/internal/config"
	"github.com/bigkaa/consultportal/internal/database"
)

const (
	seedConsultantID = "00000000-0000-0000-0000-0000000000c1"
	seedClient1ID    = "00000000-0000-0000-0000-000000000101"
)

// setupStore запускает PostgreSQL контейнер, применяет миграции,
// загружает тестовые данные и возвращает pgstore.Store.
func setupStore(t *testing.T) *pgstore.Store {
	t.Helper()

	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("Пропуск интеграционного теста: TEST_INTEGRATION не установлена")
	}

	ctx := context.Background()
	container, err := postgres.Run(ctx,
		"docker.io/postgres:17-alpine",
		postgres.WithDatabase("portal_test"),
		postgres.WithUsername("portal"),
		postgres.WithPassword("test-password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("Не удалось запустить PostgreSQL контейнер: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Ошибка остановки контейнера: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("Не удалось получить DSN: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	if err := database.Migrate(dsn, logger); err != nil {
		t.Fatalf("Ошибка миграций: %v", err)
	}
	pool, err := database.Connect(ctx, config.DatabaseConfig{DSN: dsn}, logger)
	if err != nil {
		t.Fatalf("Ошибка подключения: %v", err)
	}
	t.Cleanup(pool.Close)

	seed, err := os.ReadFile("../database/testdata/seed.sql")
	if err != nil {
		t.Fatalf("Чтение seed.sql: %v", err)
	}
	if _, err := pool.Exec(ctx, string(seed)); err != nil {
		t.Fatalf("Загрузка тестовых данных: %v", err)
	}

	store, err := pgstore.New(pool, "authenticated", logger)
	if err != nil {
		t.Fatalf("pgstore.New: %v", err)
	}
	return store
}

func TestIntegration_ConsultantClients(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	consultant, err := NewUserRepository(store.Elevated()).FindConsultantByEmail(ctx, "CONSULTANT@example.test")
	if err != nil {
		t.Fatalf("FindConsultantByEmail: %v", err)
	}
	if consultant.ID != seedConsultantID {
		t.Fatalf("ID = %s, ожидался %s", consultant.ID, seedConsultantID)
	}

	repo := NewVisibilityRepository(store.Elevated())
	q := ClientQuery{ConsultantID: consultant.ID, CountryID: 1, Limit: 50}

	first, err := repo.ListConsultantClients(ctx, q)
	if err != nil {
		t.Fatalf("ListConsultantClients: %v", err)
	}
	if len(first) != 4 {
		t.Fatalf("клиентов = %d, ожидалось 4", len(first))
	}
	if first[0].CountryName != "Germany" || first[0].FullName != "Dana Weiss" {
		t.Errorf("first[0] = %+v", first[0])
	}

	// Повторный вызов с теми же аргументами даёт тот же результат
	second, err := repo.ListConsultantClients(ctx, q)
	if err != nil {
		t.Fatalf("повторный ListConsultantClients: %v", err)
	}
	for i := range first {
		if first[i].ID != second[i].ID {
			t.Errorf("[%d] %s != %s", i, first[i].ID, second[i].ID)
		}
	}
}

func TestIntegration_RestrictedAccess(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	asClient := store.ForUser(seedClient1ID, "")

	schedules, err := NewAccountingRepository(asClient).ListPaymentSchedules(ctx, seedClient1ID)
	if err != nil {
		t.Fatalf("ListPaymentSchedules: %v", err)
	}
	if len(schedules) != 1 {
		t.Errorf("графиков = %d, ожидался 1", len(schedules))
	}

	// Чужой график скрыт политикой
	other, err := NewAccountingRepository(asClient).ListPaymentSchedules(ctx, "00000000-0000-0000-0000-000000000102")
	if err != nil {
		t.Fatalf("ListPaymentSchedules(чужой): %v", err)
	}
	if len(other) != 0 {
		t.Errorf("клиент видит чужой график: %d строк", len(other))
	}

	msgs, err := NewMessageRepository(asClient).ListForUser(ctx, seedClient1ID, 10, 0)
	if err != nil {
		t.Fatalf("ListForUser: %v", err)
	}
	if len(msgs) != 2 || msgs[0].Body != "Спасибо" {
		t.Errorf("сообщения = %+v", msgs)
	}

	me, err := NewUserRepository(asClient).CurrentUser(ctx)
	if err != nil {
		t.Fatalf("CurrentUser: %v", err)
	}
	if me.ID != seedClient1ID || me.Role != "client" {
		t.Errorf("CurrentUser = %+v", me)
	}
}
