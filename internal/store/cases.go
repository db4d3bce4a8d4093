package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"

	"djenwatch/internal/comm"
	"djenwatch/internal/services"
)

// Client is a registered client.
type Client struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

// Case is a registered case. Status holds the persisted coarse stage label.
type Case struct {
	ID         int64     `json:"id"`
	CaseNumber string    `json:"caseNumber"`
	ClientID   *int64    `json:"clientId,omitempty"`
	Title      string    `json:"title,omitempty"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// NewCase describes a case to register.
type NewCase struct {
	CaseNumber string
	ClientID   *int64
	Title      string
}

const caseColumns = "id, case_number, client_id, title, status, created_at, updated_at"

// AddClient registers a client.
func (s *Store) AddClient(ctx context.Context, name string) (*Client, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, services.Wrap(services.ErrValidation, "store", "add client", "name required", nil)
	}
	now := s.now()
	res, err := s.exec(ctx, builder.Insert("clients").Columns("name", "created_at").Values(name, formatTime(now)))
	if err != nil {
		return nil, services.Wrap(services.ErrPersistence, "store", "add client", "", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, services.Wrap(services.ErrPersistence, "store", "add client", "read id", err)
	}
	return &Client{ID: id, Name: name, CreatedAt: now.UTC()}, nil
}

// Clients lists registered clients by name.
func (s *Store) Clients(ctx context.Context) ([]Client, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, name, created_at FROM clients ORDER BY name COLLATE NOCASE, id")
	if err != nil {
		return nil, services.Wrap(services.ErrPersistence, "store", "list clients", "", err)
	}
	defer rows.Close()
	var out []Client
	for rows.Next() {
		var (
			c       Client
			created string
		)
		if err := rows.Scan(&c.ID, &c.Name, &created); err != nil {
			return nil, services.Wrap(services.ErrPersistence, "store", "list clients", "scan", err)
		}
		c.CreatedAt, _ = parseTimeString(created)
		out = append(out, c)
	}
	return out, rows.Err()
}

// AddCase registers a case. The case number is stored normalized.
func (s *Store) AddCase(ctx context.Context, nc NewCase) (*Case, error) {
	number, err := comm.NormalizeCaseNumber(nc.CaseNumber)
	if err != nil {
		return nil, services.Wrap(services.ErrInvalidFilter, "store", "add case", "", err)
	}
	now := formatTime(s.now())
	res, err := s.exec(ctx, builder.Insert("cases").
		Columns("case_number", "client_id", "title", "status", "created_at", "updated_at").
		Values(number, nullableID(nc.ClientID), nullableString(strings.TrimSpace(nc.Title)), "", now, now))
	if err != nil {
		return nil, services.Wrap(services.ErrPersistence, "store", "add case", number, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, services.Wrap(services.ErrPersistence, "store", "add case", "read id", err)
	}
	return s.CaseByID(ctx, id)
}

// CaseFilter narrows Cases.
type CaseFilter struct {
	ClientID *int64
	Status   string
}

// Cases lists registered cases ordered by case number.
func (s *Store) Cases(ctx context.Context, filter CaseFilter) ([]Case, error) {
	q := builder.Select(caseColumns).From("cases").OrderBy("case_number")
	if filter.ClientID != nil {
		q = q.Where(sq.Eq{"client_id": *filter.ClientID})
	}
	if filter.Status != "" {
		q = q.Where(sq.Eq{"status": filter.Status})
	}
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build cases query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, services.Wrap(services.ErrPersistence, "store", "list cases", "", err)
	}
	defer rows.Close()
	var out []Case
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, services.Wrap(services.ErrPersistence, "store", "list cases", "scan", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// CaseByID returns the case with id or an ErrNotFound error.
func (s *Store) CaseByID(ctx context.Context, id int64) (*Case, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+caseColumns+" FROM cases WHERE id = ?", id)
	return s.scanCaseRow(row, fmt.Sprintf("case id %d", id))
}

// CaseByNumber returns the case registered under caseNumber (any formatting).
func (s *Store) CaseByNumber(ctx context.Context, caseNumber string) (*Case, error) {
	number, err := comm.NormalizeCaseNumber(caseNumber)
	if err != nil {
		return nil, services.Wrap(services.ErrInvalidFilter, "store", "case by number", "", err)
	}
	row := s.db.QueryRowContext(ctx, "SELECT "+caseColumns+" FROM cases WHERE case_number = ?", number)
	return s.scanCaseRow(row, "case "+number)
}

// UpdateCaseStatus overwrites the persisted stage label.
func (s *Store) UpdateCaseStatus(ctx context.Context, caseID int64, status string) error {
	res, err := s.exec(ctx, builder.Update("cases").
		Set("status", status).
		Set("updated_at", s.timestamp()).
		Where(sq.Eq{"id": caseID}))
	if err != nil {
		return services.Wrap(services.ErrPersistence, "store", "update case status", "", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return services.Wrap(services.ErrNotFound, "store", "update case status", fmt.Sprintf("case id %d", caseID), nil)
	}
	return nil
}

func (s *Store) scanCaseRow(row *sql.Row, label string) (*Case, error) {
	c, err := scanCase(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, services.Wrap(services.ErrNotFound, "store", "load case", label, nil)
	}
	if err != nil {
		return nil, services.Wrap(services.ErrPersistence, "store", "load case", label, err)
	}
	return c, nil
}

func scanCase(scanner interface{ Scan(dest ...any) error }) (*Case, error) {
	var (
		c        Case
		clientID sql.NullInt64
		title    sql.NullString
		created  string
		updated  string
	)
	if err := scanner.Scan(&c.ID, &c.CaseNumber, &clientID, &title, &c.Status, &created, &updated); err != nil {
		return nil, err
	}
	c.ClientID = idPointer(clientID)
	c.Title = title.String
	c.CreatedAt, _ = parseTimeString(created)
	c.UpdatedAt, _ = parseTimeString(updated)
	return &c, nil
}
