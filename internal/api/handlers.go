package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/manzoorua/formsedge-sub001/internal/auth"
	"github.com/manzoorua/formsedge-sub001/internal/dispatch"
	"github.com/manzoorua/formsedge-sub001/internal/payload"
)

// handleHealthz handles GET /healthz (no auth).
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, HealthzResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
	})
}

// handleGetResponse handles GET /responses/{responseID}.
func (s *Server) handleGetResponse(w http.ResponseWriter, r *http.Request) {
	responseID := chi.URLParam(r, "responseID")
	principal, _ := auth.PrincipalFromContext(r.Context())

	formID, err := s.responses.FormID(r.Context(), responseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, CodeNotFound, "response not found")
			return
		}
		s.logger.Error("resolve response form", "response_id", responseID, "error", err)
		writeError(w, http.StatusInternalServerError, CodeInternalError, "failed to load response")
		return
	}
	if !auth.CanAccessForm(principal, formID) {
		writeError(w, http.StatusForbidden, CodeForbidden, "no access to this form")
		return
	}

	item, err := s.builder.Build(r.Context(), responseID)
	if err != nil {
		if errors.Is(err, payload.ErrNotFound) {
			writeError(w, http.StatusNotFound, CodeNotFound, "response not found")
			return
		}
		s.logger.Error("build payload", "response_id", responseID, "error", err)
		writeError(w, http.StatusInternalServerError, CodeInternalError, "failed to build payload")
		return
	}

	respondJSON(w, http.StatusOK, GetResponseResponse{Item: item})
}

// handleListResponses handles GET /responses?form_id=...
func (s *Server) handleListResponses(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.PrincipalFromContext(r.Context())

	formID := r.URL.Query().Get("form_id")
	if formID == "" {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "form_id is required")
		return
	}
	if !auth.CanAccessForm(principal, formID) {
		writeError(w, http.StatusForbidden, CodeForbidden, "no access to this form")
		return
	}

	q, err := s.parseListQuery(r, formID)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}

	rows, total, err := s.responses.ListPage(r.Context(), q)
	if err != nil {
		s.logger.Error("list responses", "form_id", formID, "error", err)
		writeError(w, http.StatusInternalServerError, CodeInternalError, "failed to list responses")
		return
	}

	hasMore := len(rows) > q.PageSize
	if hasMore {
		rows = rows[:q.PageSize]
	}

	items := make([]*payload.Payload, 0, len(rows))
	for _, row := range rows {
		item, err := s.builder.Build(r.Context(), row.ID)
		if err != nil {
			// A row deleted between the listing query and materialization
			// is dropped from this page rather than failing the call.
			if errors.Is(err, payload.ErrNotFound) {
				s.logger.Warn("response vanished during listing", "response_id", row.ID)
				continue
			}
			s.logger.Error("build payload", "response_id", row.ID, "error", err)
			writeError(w, http.StatusInternalServerError, CodeInternalError, "failed to build payload")
			return
		}
		items = append(items, item)
	}

	resp := ListResponsesResponse{
		Items:      items,
		TotalCount: total,
		PageSize:   q.PageSize,
		HasMore:    hasMore,
	}
	if hasMore && len(rows) > 0 {
		last := rows[len(rows)-1]
		c := Cursor{SubmittedAt: last.SubmittedAt, ID: last.ID}.Encode()
		resp.NextCursor = &c
	}

	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) parseListQuery(r *http.Request, formID string) (ListQuery, error) {
	qs := r.URL.Query()
	q := ListQuery{
		FormID:   formID,
		Status:   StatusFilterComplete,
		PageSize: s.cfg.DefaultPageSize,
	}

	if v := qs.Get("status"); v != "" {
		switch v {
		case StatusFilterComplete, StatusFilterPartial, StatusFilterAll:
			q.Status = v
		default:
			return ListQuery{}, fmt.Errorf("status must be one of complete, partial, all")
		}
	}

	if v := qs.Get("page_size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > s.cfg.MaxPageSize {
			return ListQuery{}, fmt.Errorf("page_size must be an integer between 1 and %d", s.cfg.MaxPageSize)
		}
		q.PageSize = n
	}

	if v := qs.Get("cursor"); v != "" {
		c, err := DecodeCursor(v)
		if err != nil {
			return ListQuery{}, err
		}
		q.Cursor = &c
	}

	if v := qs.Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return ListQuery{}, fmt.Errorf("since must be an RFC3339 timestamp")
		}
		q.Since = t.UTC().Format(time.RFC3339)
	}
	if v := qs.Get("until"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return ListQuery{}, fmt.Errorf("until must be an RFC3339 timestamp")
		}
		q.Until = t.UTC().Format(time.RFC3339)
	}

	return q, nil
}

// handleListDeliveries handles GET /deliveries. Callers without a blanket
// form grant must name a form they can access.
func (s *Server) handleListDeliveries(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.PrincipalFromContext(r.Context())
	qs := r.URL.Query()

	filter := dispatch.ListFilter{
		FormID:        qs.Get("form_id"),
		IntegrationID: qs.Get("integration_id"),
		ResponseID:    qs.Get("response_id"),
	}
	if v := qs.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, CodeBadRequest, "limit must be a positive integer")
			return
		}
		filter.Limit = n
	}

	if filter.FormID == "" {
		if !principal.AllForms {
			writeError(w, http.StatusBadRequest, CodeBadRequest, "form_id is required")
			return
		}
	} else if !auth.CanAccessForm(principal, filter.FormID) {
		writeError(w, http.StatusForbidden, CodeForbidden, "no access to this form")
		return
	}

	deliveries, err := s.deliveries.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("list deliveries", "error", err)
		writeError(w, http.StatusInternalServerError, CodeInternalError, "failed to list deliveries")
		return
	}

	items := make([]DeliveryItem, 0, len(deliveries))
	for _, d := range deliveries {
		items = append(items, DeliveryItem{
			ID:            d.ID,
			FormID:        d.FormID,
			IntegrationID: d.IntegrationID,
			ResponseID:    d.ResponseID,
			EventID:       d.EventID,
			EventType:     d.EventType,
			Status:        string(d.Status),
			Attempt:       d.Attempt,
			URL:           d.URL,
			PayloadHash:   d.PayloadHash,
			HTTPStatus:    d.HTTPStatus,
			ErrorMessage:  d.ErrorMessage,
			CreatedAt:     d.CreatedAt,
			CompletedAt:   d.CompletedAt,
		})
	}

	respondJSON(w, http.StatusOK, ListDeliveriesResponse{Items: items})
}

// handleDispatch handles POST /dispatch {form_id, response_id}.
func (s *Server) handleDispatch(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.PrincipalFromContext(r.Context())

	var req DispatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "invalid JSON body")
		return
	}
	if req.FormID == "" || req.ResponseID == "" {
		writeErrorDetails(w, http.StatusBadRequest, CodeBadRequest, "form_id and response_id are required",
			map[string]bool{"form_id": req.FormID != "", "response_id": req.ResponseID != ""})
		return
	}
	if !auth.CanAccessForm(principal, req.FormID) {
		writeError(w, http.StatusForbidden, CodeForbidden, "no access to this form")
		return
	}

	summary, err := s.dispatcher.Dispatch(r.Context(), req.FormID, req.ResponseID)
	if err != nil {
		if errors.Is(err, payload.ErrNotFound) {
			writeError(w, http.StatusNotFound, CodeNotFound, "response not found")
			return
		}
		s.logger.Error("dispatch", "form_id", req.FormID, "response_id", req.ResponseID, "error", err)
		writeError(w, http.StatusInternalServerError, CodeInternalError, "dispatch failed")
		return
	}

	respondJSON(w, http.StatusOK, DispatchResponse{Summary: summary})
}
