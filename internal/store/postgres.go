package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"tripflow/internal/models"
)

// ErrNotFound is returned when an itinerary id does not exist.
var ErrNotFound = errors.New("itinerary not found")

// Store wraps pgxpool for Postgres persistence of itinerary records.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a pooled connection to Postgres.
func New(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// CreatePendingParams collects inputs required to insert an itinerary request.
type CreatePendingParams struct {
	UserID      string
	Destination string
	StartDate   time.Time
	EndDate     time.Time
	Budget      string
	Interests   []string
}

// CreatePending inserts a new itinerary row in status pending and returns it.
func (s *Store) CreatePending(ctx context.Context, p CreatePendingParams) (models.Itinerary, error) {
	id := uuid.New().String()
	now := time.Now().UTC()
	if p.Interests == nil {
		p.Interests = []string{}
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO itineraries (id, user_id, destination, start_date, end_date, budget, interests, processing_status, progress, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 0, $9, $9)
	`, id, p.UserID, p.Destination, p.StartDate, p.EndDate, emptyToNil(p.Budget), p.Interests, models.StatusPending, now)
	if err != nil {
		return models.Itinerary{}, fmt.Errorf("insert itinerary: %w", err)
	}

	return models.Itinerary{
		ID:          id,
		UserID:      p.UserID,
		Destination: p.Destination,
		StartDate:   p.StartDate,
		EndDate:     p.EndDate,
		Budget:      emptyToNil(p.Budget),
		Interests:   p.Interests,
		Status:      models.StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

const itineraryColumns = `id, user_id, destination, start_date, end_date, budget, interests, processing_status, progress, content, model_used, pdf_filename, pdf_path, last_error, created_at, updated_at, completed_at`

// Get fetches an itinerary by id.
func (s *Store) Get(ctx context.Context, id string) (models.Itinerary, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+itineraryColumns+` FROM itineraries WHERE id = $1
	`, id)
	it, err := scanItinerary(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Itinerary{}, ErrNotFound
	}
	return it, err
}

// ClaimProcessing atomically transitions an itinerary from pending to
// processing. It reports whether this caller won the claim; a false return
// means another path already moved the record past pending.
func (s *Store) ClaimProcessing(ctx context.Context, id string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE itineraries
		SET processing_status = $2, progress = 10, updated_at = NOW()
		WHERE id = $1 AND processing_status = $3
	`, id, models.StatusProcessing, models.StatusPending)
	if err != nil {
		return false, fmt.Errorf("claim itinerary: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// SetStatus updates processing_status; completedAt is persisted when non-nil.
func (s *Store) SetStatus(ctx context.Context, id, status string, completedAt *time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE itineraries
		SET processing_status = $2, completed_at = $3, updated_at = NOW()
		WHERE id = $1
	`, id, status, completedAt)
	if err != nil {
		return fmt.Errorf("set status: %w", err)
	}
	return nil
}

// SetFailed marks the record failed and records the error text.
func (s *Store) SetFailed(ctx context.Context, id, lastError string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE itineraries
		SET processing_status = $2, last_error = $3, updated_at = NOW()
		WHERE id = $1
	`, id, models.StatusFailed, lastError)
	if err != nil {
		return fmt.Errorf("set failed: %w", err)
	}
	return nil
}

// SetContent persists the generated content, the model that produced it, and
// the rendered PDF location in one update.
func (s *Store) SetContent(ctx context.Context, id, content, modelUsed, pdfFilename, pdfPath string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE itineraries
		SET content = $2, model_used = $3, pdf_filename = $4, pdf_path = $5, updated_at = NOW()
		WHERE id = $1
	`, id, content, modelUsed, pdfFilename, pdfPath)
	if err != nil {
		return fmt.Errorf("set content: %w", err)
	}
	return nil
}

// SetProgress records a progress checkpoint. Observability only; resumption
// never reads it back.
func (s *Store) SetProgress(ctx context.Context, id string, progress int) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE itineraries SET progress = $2, updated_at = NOW() WHERE id = $1
	`, id, progress)
	if err != nil {
		return fmt.Errorf("set progress: %w", err)
	}
	return nil
}

// ListPending returns up to limit itineraries still in status pending,
// oldest first.
func (s *Store) ListPending(ctx context.Context, limit int) ([]models.Itinerary, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+itineraryColumns+` FROM itineraries
		WHERE processing_status = $1
		ORDER BY created_at ASC
		LIMIT $2
	`, models.StatusPending, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending: %w", err)
	}
	defer rows.Close()

	var out []models.Itinerary
	for rows.Next() {
		it, err := scanItinerary(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list pending rows: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItinerary(row rowScanner) (models.Itinerary, error) {
	var it models.Itinerary
	var budget, content, modelUsed, pdfFilename, pdfPath, lastErr pgtype.Text
	var completedAt pgtype.Timestamptz

	err := row.Scan(
		&it.ID, &it.UserID, &it.Destination, &it.StartDate, &it.EndDate,
		&budget, &it.Interests, &it.Status, &it.Progress,
		&content, &modelUsed, &pdfFilename, &pdfPath, &lastErr,
		&it.CreatedAt, &it.UpdatedAt, &completedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Itinerary{}, err
		}
		return models.Itinerary{}, fmt.Errorf("scan itinerary: %w", err)
	}

	it.Budget = textPtr(budget)
	it.Content = textPtr(content)
	it.ModelUsed = textPtr(modelUsed)
	it.PDFFilename = textPtr(pdfFilename)
	it.PDFPath = textPtr(pdfPath)
	it.LastError = textPtr(lastErr)
	if completedAt.Valid {
		t := completedAt.Time
		it.CompletedAt = &t
	}
	return it, nil
}

func textPtr(t pgtype.Text) *string {
	if t.Valid {
		return &t.String
	}
	return nil
}

func emptyToNil(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
