// Пакет rbac — определение итоговой роли пользователя.
// Роли упорядочены по привилегиям: client < consultant < admin.
// Из нескольких ролей в токене выбирается старшая.
package rbac

import "github.com/bigkaa/consultportal/internal/domain/model"

// roleWeight — вес роли для сравнения.
// Чем выше вес, тем больше привилегий.
var roleWeight = map[string]int{
	model.RoleClient:     1,
	model.RoleConsultant: 2,
	model.RoleAdmin:      3,
}

// maxRole возвращает роль с максимальными привилегиями из двух.
func maxRole(a, b string) string {
	if roleWeight[a] >= roleWeight[b] {
		return a
	}
	return b
}

// HighestRole возвращает максимальную допустимую роль из набора.
// Неизвестные роли игнорируются. Если допустимых нет — пустая строка.
func HighestRole(roles []string) string {
	highest := ""
	for _, r := range roles {
		if !IsValidRole(r) {
			continue
		}
		if highest == "" {
			highest = r
			continue
		}
		highest = maxRole(highest, r)
	}
	return highest
}

// AtLeast проверяет, что роль не ниже минимальной.
func AtLeast(role, minimum string) bool {
	if !IsValidRole(role) {
		return false
	}
	return roleWeight[role] >= roleWeight[minimum]
}

// IsValidRole проверяет, является ли строка допустимой ролью.
func IsValidRole(role string) bool {
	_, ok := roleWeight[role]
	return ok
}
