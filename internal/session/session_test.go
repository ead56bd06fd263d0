package session

import (
	"context"
	"testing"
	"time"

	"github.com/bigkaa/consultportal/internal/domain/model"
)

func TestInit_Active(t *testing.T) {
	s := Init("u-1", "c@example.test", model.RoleConsultant, "token", time.Now().Add(time.Hour))

	if !s.Active() {
		t.Error("Active() = false, ожидалось true")
	}
	if s.AccessToken() != "token" {
		t.Errorf("AccessToken() = %q, ожидался token", s.AccessToken())
	}
	if !s.IsConsultant() || s.IsAdmin() {
		t.Error("неверное определение роли consultant")
	}
}

func TestClose_ClearsToken(t *testing.T) {
	s := Init("u-1", "a@example.test", model.RoleAdmin, "token", time.Time{})
	s.Close()

	if s.Active() {
		t.Error("Active() = true после Close")
	}
	if s.AccessToken() != "" {
		t.Errorf("AccessToken() = %q после Close, ожидалась пустая строка", s.AccessToken())
	}

	// Повторное закрытие не паникует
	s.Close()
}

func TestActive_Expired(t *testing.T) {
	s := Init("u-1", "", model.RoleClient, "token", time.Now().Add(-time.Minute))
	if s.Active() {
		t.Error("Active() = true для истёкшего токена")
	}
}

func TestNilSession(t *testing.T) {
	var s *Session
	if s.Active() || s.IsAdmin() || s.AccessToken() != "" {
		t.Error("nil-сессия должна быть неактивной")
	}
	s.Close()
}

func TestContext(t *testing.T) {
	if FromContext(context.Background()) != nil {
		t.Error("FromContext на пустом контексте вернул не nil")
	}

	s := Init("u-1", "", model.RoleClient, "token", time.Time{})
	ctx := WithSession(context.Background(), s)
	if FromContext(ctx) != s {
		t.Error("FromContext вернул другую сессию")
	}
}
