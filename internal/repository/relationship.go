package repository

import (
	"context"
	"time"

	"github.com/bigkaa/consultportal/internal/backend"
	"github.com/bigkaa/consultportal/internal/domain/model"
)

// Источники связи консультант-клиент.
const (
	SourceAssignments  = "assignments"
	SourceApplications = "applications"
)

type assignmentRow struct {
	ConsultantID string    `json:"consultant_id" db:"consultant_id"`
	ClientID     string    `json:"client_id"     db:"client_id"`
	CountryID    int       `json:"country_id"    db:"country_id"`
	AssignedAt   time.Time `json:"assigned_at"   db:"assigned_at"`
}

type applicationRow struct {
	ConsultantID string    `json:"consultant_id" db:"consultant_id"`
	ClientID     string    `json:"client_id"     db:"client_id"`
	CountryID    int       `json:"country_id"    db:"country_id"`
	CreatedAt    time.Time `json:"created_at"    db:"created_at"`
}

// RelationshipRepository — связи консультант-клиент.
type RelationshipRepository interface {
	// Links возвращает связи консультанта с указанными клиентами в стране
	// countryID из обеих таблиц: сначала назначения, затем заявки.
	Links(ctx context.Context, consultantID string, countryID int, clientIDs []string) ([]model.Assignment, error)
}

type relationshipRepo struct {
	tr backend.Transport
}

// NewRelationshipRepository создаёт репозиторий связей.
func NewRelationshipRepository(tr backend.Transport) RelationshipRepository {
	return &relationshipRepo{tr: tr}
}

func (r *relationshipRepo) Links(ctx context.Context, consultantID string, countryID int, clientIDs []string) ([]model.Assignment, error) {
	if len(clientIDs) == 0 {
		return nil, nil
	}
	ids := make([]any, 0, len(clientIDs))
	for _, id := range clientIDs {
		ids = append(ids, id)
	}
	filter := func(dateCol string) backend.FilterSpec {
		return backend.FilterSpec{
			Columns: []string{"consultant_id", "client_id", "country_id", dateCol},
			Eq:      map[string]any{"consultant_id": consultantID, "country_id": countryID},
			In:      map[string][]any{"client_id": ids},
		}
	}

	var assigned []assignmentRow
	if err := r.tr.Query(ctx, tableAssignments, filter("assigned_at"), &assigned); err != nil {
		return nil, err
	}
	var applied []applicationRow
	if err := r.tr.Query(ctx, tableApplications, filter("created_at"), &applied); err != nil {
		return nil, err
	}

	links := make([]model.Assignment, 0, len(assigned)+len(applied))
	for _, a := range assigned {
		links = append(links, model.Assignment{
			ConsultantID: a.ConsultantID, ClientID: a.ClientID, CountryID: a.CountryID,
			Source: SourceAssignments, AssignedAt: a.AssignedAt,
		})
	}
	for _, a := range applied {
		links = append(links, model.Assignment{
			ConsultantID: a.ConsultantID, ClientID: a.ClientID, CountryID: a.CountryID,
			Source: SourceApplications, AssignedAt: a.CreatedAt,
		})
	}
	return links, nil
}

// LinkedClients возвращает множество клиентов, у которых есть хотя бы одна связь.
func LinkedClients(links []model.Assignment) map[string]bool {
	set := make(map[string]bool, len(links))
	for _, l := range links {
		set[l.ClientID] = true
	}
	return set
}
