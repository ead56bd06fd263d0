package diagnostics

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed fixtures.yaml
var defaultFixtures []byte

// CountryFixture — тестовая страна.
type CountryFixture struct {
	ID   int    `yaml:"id"`
	Code string `yaml:"code"`
}

// Fixtures — известные тестовые записи, по которым проверяются
// данные, процедура и связи.
type Fixtures struct {
	Country         CountryFixture `yaml:"country"`
	ConsultantEmail string         `yaml:"consultant_email"`
	ClientEmails    []string       `yaml:"client_emails"`
}

// DefaultFixtures возвращает встроенные тестовые данные.
func DefaultFixtures() Fixtures {
	fx, err := parseFixtures(defaultFixtures)
	if err != nil {
		panic(fmt.Sprintf("встроенный fixtures.yaml: %v", err))
	}
	return fx
}

// LoadFixtures читает тестовые данные из YAML-файла.
// Пустой путь — встроенные значения.
func LoadFixtures(path string) (Fixtures, error) {
	if path == "" {
		return DefaultFixtures(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Fixtures{}, fmt.Errorf("чтение тестовых данных %s: %w", path, err)
	}
	fx, err := parseFixtures(data)
	if err != nil {
		return Fixtures{}, fmt.Errorf("тестовые данные %s: %w", path, err)
	}
	return fx, nil
}

func parseFixtures(data []byte) (Fixtures, error) {
	var fx Fixtures
	if err := yaml.Unmarshal(data, &fx); err != nil {
		return Fixtures{}, fmt.Errorf("разбор YAML: %w", err)
	}

	fx.ConsultantEmail = strings.ToLower(strings.TrimSpace(fx.ConsultantEmail))
	emails := fx.ClientEmails[:0]
	for _, e := range fx.ClientEmails {
		if e = strings.ToLower(strings.TrimSpace(e)); e != "" {
			emails = append(emails, e)
		}
	}
	fx.ClientEmails = emails

	switch {
	case fx.Country.ID <= 0:
		return Fixtures{}, fmt.Errorf("country.id должен быть > 0")
	case fx.ConsultantEmail == "":
		return Fixtures{}, fmt.Errorf("consultant_email не задан")
	case len(fx.ClientEmails) == 0:
		return Fixtures{}, fmt.Errorf("client_emails пуст")
	}
	return fx, nil
}
