package handlers

import (
	"net/http"

	apierrors "github.com/bigkaa/consultportal/internal/api/errors"
	"github.com/bigkaa/consultportal/internal/service"
	"github.com/bigkaa/consultportal/internal/session"
)

// ConsultantClients — POST /api/v1/consultant-clients.
// Ошибка Resolver возвращается в том же плоском формате {error, code}.
func (h *APIHandler) ConsultantClients(w http.ResponseWriter, r *http.Request) {
	var q service.VisibilityQuery
	if err := decodeJSON(r, &q); err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	res := h.resolver.Resolve(r.Context(), session.FromContext(r.Context()), q)
	if !res.OK() {
		status, code := statusForKind(res.Kind)
		apierrors.Write(w, status, apierrors.Body{Error: res.Error, Code: code, Debug: res.Debug})
		return
	}
	writeJSON(w, http.StatusOK, newListResponse(res.Data))
}

type accountingLookupRequest struct {
	ClientID string `json:"clientId"`
}

// AccountingLookup — POST /api/v1/accounting/lookup.
func (h *APIHandler) AccountingLookup(w http.ResponseWriter, r *http.Request) {
	var req accountingLookupRequest
	if err := decodeJSON(r, &req); err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	rows, err := h.accounting.Lookup(r.Context(), session.FromContext(r.Context()), req.ClientID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newListResponse(rows))
}

type messagesListRequest struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// MessagesList — POST /api/v1/messages/list.
func (h *APIHandler) MessagesList(w http.ResponseWriter, r *http.Request) {
	var req messagesListRequest
	if err := decodeJSON(r, &req); err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	msgs, err := h.messaging.List(r.Context(), session.FromContext(r.Context()), req.Limit, req.Offset)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newListResponse(msgs))
}
