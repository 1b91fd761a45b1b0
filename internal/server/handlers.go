package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/fivetwenty-io/b24/pkg/bitrix"
)

// ErrorBody is the uniform error envelope of the HTTP API.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries a machine-readable kind and a human-readable message.
type ErrorDetail struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// FilterCondition is the wire form of one filter condition.
type FilterCondition struct {
	Field string `json:"field"`
	Op    string `json:"op"`
	Value any    `json:"value"`
}

// ListRequest is the body of a list call.
type ListRequest struct {
	Filter []FilterCondition `json:"filter"`
	Select []string          `json:"select"`
	Order  map[string]string `json:"order"`
	Start  int               `json:"start"`
	Limit  int               `json:"limit"`
	// All drains every page instead of returning one.
	All bool `json:"all"`
}

// WriteRequest is the body of a create or update call.
type WriteRequest struct {
	Fields bitrix.Record `json:"fields"`
}

// RelatedContact is the wire form of one resolved deal contact.
type RelatedContact struct {
	Record bitrix.Record `json:"record,omitempty"`
	Error  string        `json:"error,omitempty"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleEntityTypes(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"entity_types": s.client.Registry().EntityTypes(),
	})
}

func (s *Server) handleGet(c echo.Context) error {
	repo, id, err := s.resolve(c)
	if err != nil {
		return writeError(c, err)
	}

	record, err := repo.Get(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, record)
}

func (s *Server) handleList(c echo.Context) error {
	repo, err := s.repository(c.Param("entity"))
	if err != nil {
		return writeError(c, err)
	}

	var req ListRequest

	err = c.Bind(&req)
	if err != nil {
		return writeError(c, echo.NewHTTPError(http.StatusBadRequest, err.Error()))
	}

	opts := bitrix.ListOptions{
		Select: req.Select,
		Order:  req.Order,
		Page:   bitrix.PageRequest{Start: req.Start, Limit: req.Limit},
	}

	if len(req.Filter) > 0 {
		filter := bitrix.NewFilter()
		for _, cond := range req.Filter {
			filter.Where(cond.Field, bitrix.Operator(cond.Op), cond.Value)
		}

		opts.Filter = filter
	}

	ctx := c.Request().Context()

	if req.All {
		records, err := repo.ListAll(ctx, opts)
		if err != nil {
			return writeError(c, err)
		}

		return c.JSON(http.StatusOK, map[string]any{
			"result": records,
			"total":  len(records),
		})
	}

	page, err := repo.List(ctx, opts)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, page)
}

func (s *Server) handleCreate(c echo.Context) error {
	repo, err := s.repository(c.Param("entity"))
	if err != nil {
		return writeError(c, err)
	}

	var req WriteRequest

	err = c.Bind(&req)
	if err != nil {
		return writeError(c, echo.NewHTTPError(http.StatusBadRequest, err.Error()))
	}

	id, err := repo.Create(c.Request().Context(), req.Fields)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusCreated, map[string]int{"id": id})
}

func (s *Server) handleUpdate(c echo.Context) error {
	repo, id, err := s.resolve(c)
	if err != nil {
		return writeError(c, err)
	}

	var req WriteRequest

	err = c.Bind(&req)
	if err != nil {
		return writeError(c, echo.NewHTTPError(http.StatusBadRequest, err.Error()))
	}

	err = repo.Update(c.Request().Context(), id, req.Fields)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]int{"id": id})
}

func (s *Server) handleDelete(c echo.Context) error {
	repo, id, err := s.resolve(c)
	if err != nil {
		return writeError(c, err)
	}

	err = repo.Delete(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err)
	}

	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleDealContacts(c echo.Context) error {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return writeError(c, echo.NewHTTPError(http.StatusBadRequest, "id must be an integer"))
	}

	deal, related, err := s.client.Deals().GetWithContacts(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err)
	}

	contacts := make([]RelatedContact, 0, len(related))

	for _, item := range related {
		contact := RelatedContact{Record: item.Record}
		if item.Err != nil {
			contact.Error = item.Err.Error()
		}

		contacts = append(contacts, contact)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"deal":     deal,
		"contacts": contacts,
	})
}

// repository maps a URL path segment onto a registered repository. Routes
// use plural segments ("contacts", "deals") while the registry is keyed by
// the singular entity tokens, so a trailing "s" is stripped as a fallback.
func (s *Server) repository(segment string) (bitrix.Repository, error) {
	registry := s.client.Registry()

	repo, err := registry.Get(segment)
	if err == nil {
		return repo, nil
	}

	if singular := strings.TrimSuffix(segment, "s"); singular != segment {
		if repo, aliasErr := registry.Get(singular); aliasErr == nil {
			return repo, nil
		}
	}

	return nil, err
}

// resolve looks up the repository and parses the path ID.
func (s *Server) resolve(c echo.Context) (bitrix.Repository, int, error) {
	repo, err := s.repository(c.Param("entity"))
	if err != nil {
		return nil, 0, err
	}

	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return nil, 0, echo.NewHTTPError(http.StatusBadRequest, "id must be an integer")
	}

	return repo, id, nil
}

// writeError maps domain errors onto HTTP statuses with a uniform body.
func writeError(c echo.Context, err error) error {
	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		return c.JSON(httpErr.Code, ErrorBody{Error: ErrorDetail{
			Kind:    "bad_request",
			Message: httpErr.Error(),
		}})
	}

	kind, status := classify(err)

	return c.JSON(status, ErrorBody{Error: ErrorDetail{
		Kind:    kind,
		Message: err.Error(),
	}})
}

func classify(err error) (string, int) {
	switch {
	case errors.Is(err, bitrix.ErrUnknownEntityType):
		return "unknown_entity_type", http.StatusNotFound
	case bitrix.IsNotFound(err):
		return "not_found", http.StatusNotFound
	case bitrix.IsValidation(err):
		return "validation", http.StatusUnprocessableEntity
	case errors.Is(err, bitrix.ErrInvalidFilter):
		return "invalid_filter", http.StatusBadRequest
	case errors.Is(err, bitrix.ErrPagination), errors.Is(err, bitrix.ErrBatchSizeExceeded):
		return "bad_request", http.StatusBadRequest
	case errors.Is(err, bitrix.ErrTransport):
		return "transport", http.StatusBadGateway
	default:
		apiErr := &bitrix.APIError{}
		if errors.As(err, &apiErr) {
			return "portal_error", http.StatusBadGateway
		}

		return "internal", http.StatusInternalServerError
	}
}
