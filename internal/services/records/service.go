// Package records gives typed access to the Daybook record endpoints and
// builds the persist callbacks the autosave coordinator consumes.
package records

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/daybookhq/scribe/internal/autosave"
	"github.com/daybookhq/scribe/internal/events"
	"github.com/daybookhq/scribe/internal/models"
	"github.com/daybookhq/scribe/internal/transport"
)

// Service manages record operations.
type Service struct {
	transport transport.Transport
	logger    *events.Logger
}

// NewService creates a records service.
func NewService(transport transport.Transport, logger *events.Logger) *Service {
	return &Service{
		transport: transport,
		logger:    logger.WithField("service", "records"),
	}
}

// Get fetches a record.
func (s *Service) Get(ctx context.Context, kind models.RecordKind, id string) (models.Record, error) {
	path, err := recordPath(kind, id)
	if err != nil {
		return nil, err
	}

	ctx, logger := s.tagRequest(ctx)
	logger.WithRecord(string(kind), id).Debug("Fetching record")

	resp, err := s.transport.GetJSON(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("get record: %w", mapAPIError(err, kind, id))
	}

	return models.Record(resp), nil
}

// Create creates a record and returns the server copy, ID assigned. A record
// has no identity until it exists server-side, so auto-save for a new entity
// starts only after Create returns.
func (s *Service) Create(ctx context.Context, kind models.RecordKind, fields models.Record) (models.Record, error) {
	if err := kind.Validate(); err != nil {
		return nil, err
	}

	ctx, logger := s.tagRequest(ctx)
	logger.WithField("kind", string(kind)).Debug("Creating record")

	resp, err := s.transport.PostJSON(ctx, collectionPath(kind), fields)
	if err != nil {
		return nil, fmt.Errorf("create record: %w", mapAPIError(err, kind, ""))
	}

	record := models.Record(resp)
	if record.StringField("id") == "" {
		return nil, fmt.Errorf("create record: response missing id")
	}

	logger.WithRecord(string(kind), record.StringField("id")).Info("Record created")
	return record, nil
}

// Patch sends changed fields and returns the updated server copy.
func (s *Service) Patch(ctx context.Context, kind models.RecordKind, id string, fields models.Record) (models.Record, error) {
	path, err := recordPath(kind, id)
	if err != nil {
		return nil, err
	}

	ctx, logger := s.tagRequest(ctx)
	logger.WithRecord(string(kind), id).WithField("fields", len(fields)).Debug("Patching record")

	resp, err := s.transport.PatchJSON(ctx, path, fields)
	if err != nil {
		return nil, fmt.Errorf("patch record: %w", mapAPIError(err, kind, id))
	}

	return models.Record(resp), nil
}

// PersistFunc adapts Patch into an autosave persist callback for one record.
// Only the kind's editable fields travel; server-managed fields in the
// snapshot stay local.
func (s *Service) PersistFunc(kind models.RecordKind, id string) autosave.PersistFunc {
	return func(ctx context.Context, record models.Record) (models.Record, error) {
		fields := models.Record{}
		for _, field := range kind.EditableFields() {
			if value, ok := record[field]; ok {
				fields[field] = value
			}
		}
		return s.Patch(ctx, kind, id, fields)
	}
}

// tagRequest stamps a fresh correlation ID on the context. The transport
// forwards it as X-Request-ID, so one ID ties a client log line to the
// server-side trace of the same call.
func (s *Service) tagRequest(ctx context.Context) (context.Context, *events.Logger) {
	id := uuid.NewString()
	return events.WithRequestID(ctx, id), s.logger.WithField("request_id", id)
}

func collectionPath(kind models.RecordKind) string {
	return "/api/v1/" + kind.Collection()
}

func recordPath(kind models.RecordKind, id string) (string, error) {
	if err := kind.Validate(); err != nil {
		return "", err
	}
	if strings.TrimSpace(id) == "" {
		return "", fmt.Errorf("record id is required")
	}
	// IDs are server-issued opaque strings; a separator would change the route.
	if strings.ContainsAny(id, "/\\") {
		return "", fmt.Errorf("invalid record id: %q", id)
	}
	return collectionPath(kind) + "/" + id, nil
}

// mapAPIError converts transport-level API errors to the service's
// sentinels where one applies.
func mapAPIError(err error, kind models.RecordKind, id string) error {
	var apiErr *models.APIError
	if !errors.As(err, &apiErr) {
		return err
	}

	switch apiErr.StatusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s/%s", models.ErrRecordNotFound, kind, id)
	case http.StatusUnauthorized:
		return models.ErrNotAuthenticated
	default:
		return err
	}
}
