package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"djenwatch/internal/comm"
	"djenwatch/internal/services"
	"djenwatch/internal/textutil"
)

const communicationColumns = "hash, communication_number, case_number, case_number_masked, tribunal_code, org_name, document_type, communication_type, class_name, class_code, text, medium, availability_date, link, recipients_json, advocates_json, linked_client_id, linked_case_id, read, created_at"

// LinkContext carries the registry used to auto-link new communications.
type LinkContext struct {
	Cases   []Case
	Clients []Client
}

// ItemFailure records one communication that could not be saved.
type ItemFailure struct {
	Hash string
	Err  error
}

// SaveResult summarizes a Save call. Saved + Skipped + len(Failures) equals
// the batch size.
type SaveResult struct {
	Saved    int
	Skipped  int
	Failures []ItemFailure
	// SavedHashes lists the newly inserted hashes in batch order.
	SavedHashes []string
}

// Failed returns the number of items that could not be persisted.
func (r SaveResult) Failed() int { return len(r.Failures) }

type linker struct {
	byCaseNumber map[string]Case
	byClientName map[string]int64
}

func newLinker(links LinkContext) linker {
	l := linker{
		byCaseNumber: make(map[string]Case, len(links.Cases)),
		byClientName: make(map[string]int64, len(links.Clients)),
	}
	for _, c := range links.Cases {
		l.byCaseNumber[comm.DigitsOnly(c.CaseNumber)] = c
	}
	for _, c := range links.Clients {
		if key := textutil.Fold(c.Name); key != "" {
			l.byClientName[key] = c.ID
		}
	}
	return l
}

// resolve returns the case and client a new communication links to. A case
// match carries its client; otherwise a recipient whose folded name equals a
// registered client's name links the client only.
func (l linker) resolve(c comm.Communication) (caseID, clientID *int64) {
	if match, ok := l.byCaseNumber[comm.DigitsOnly(c.CaseNumber)]; ok {
		id := match.ID
		return &id, match.ClientID
	}
	for _, recipient := range c.Recipients {
		if id, ok := l.byClientName[textutil.Fold(recipient)]; ok {
			return nil, &id
		}
	}
	return nil, nil
}

// Save inserts each communication independently. Hashes already stored are
// counted as skipped and left untouched; per-item failures are collected and
// never abort the batch. The returned error is non-nil only when ctx ends.
func (s *Store) Save(ctx context.Context, batch []comm.Communication, links LinkContext) (SaveResult, error) {
	var result SaveResult
	link := newLinker(links)
	for _, c := range batch {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if strings.TrimSpace(c.Hash) == "" {
			result.Failures = append(result.Failures, ItemFailure{Err: services.Wrap(services.ErrValidation, "store", "save", "communication without hash", nil)})
			continue
		}
		caseID, clientID := link.resolve(c)
		inserted, err := s.insertCommunication(ctx, c, caseID, clientID)
		switch {
		case err != nil:
			result.Failures = append(result.Failures, ItemFailure{Hash: c.Hash, Err: services.Wrap(services.ErrPersistence, "store", "save", c.Hash, err)})
		case inserted:
			result.Saved++
			result.SavedHashes = append(result.SavedHashes, c.Hash)
		default:
			result.Skipped++
		}
	}
	return result, nil
}

func (s *Store) insertCommunication(ctx context.Context, c comm.Communication, caseID, clientID *int64) (bool, error) {
	stmt := builder.Insert("communications").
		Columns(strings.Split(strings.ReplaceAll(communicationColumns, " ", ""), ",")...).
		Values(
			c.Hash,
			c.Number,
			comm.DigitsOnly(c.CaseNumber),
			nullableString(c.CaseNumberMasked),
			nullableString(c.TribunalCode),
			nullableString(c.OrgName),
			nullableString(c.DocumentType),
			nullableString(c.CommunicationType),
			nullableString(c.ClassName),
			nullableString(c.ClassCode),
			c.Text,
			nullableString(string(c.Medium)),
			formatTime(c.AvailabilityDate),
			nullableString(c.Link),
			encodeList(c.Recipients),
			encodeList(c.Advocates),
			nullableID(clientID),
			nullableID(caseID),
			boolToInt(c.Read),
			s.timestamp(),
		).
		Suffix("ON CONFLICT(hash) DO NOTHING")
	res, err := s.exec(ctx, stmt)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Get returns the communication stored under hash.
func (s *Store) Get(ctx context.Context, hash string) (*comm.Communication, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+communicationColumns+" FROM communications WHERE hash = ?", hash)
	c, err := scanCommunication(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, services.Wrap(services.ErrNotFound, "store", "get communication", hash, nil)
	}
	if err != nil {
		return nil, services.Wrap(services.ErrPersistence, "store", "get communication", hash, err)
	}
	return c, nil
}

// MarkRead flags a communication as read. Repeated calls are no-ops.
func (s *Store) MarkRead(ctx context.Context, hash string) error {
	res, err := s.exec(ctx, builder.Update("communications").Set("read", 1).Where(sq.Eq{"hash": hash}))
	if err != nil {
		return services.Wrap(services.ErrPersistence, "store", "mark read", hash, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return services.Wrap(services.ErrNotFound, "store", "mark read", hash, nil)
	}
	return nil
}

// LinkCase links hash to caseID, taking the case's client when it has one,
// then links every other communication with the same case number that has no
// case link yet. Existing case links on siblings are never overwritten. It
// returns the number of siblings linked.
func (s *Store) LinkCase(ctx context.Context, hash string, caseID int64) (int, error) {
	var propagated int
	err := retryOnBusy(ctx, func() error {
		propagated = 0
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		var clientID sql.NullInt64
		if err := tx.QueryRowContext(ctx, "SELECT client_id FROM cases WHERE id = ?", caseID).Scan(&clientID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return services.Wrap(services.ErrNotFound, "store", "link case", fmt.Sprintf("case id %d", caseID), nil)
			}
			return err
		}
		var caseNumber string
		if err := tx.QueryRowContext(ctx, "SELECT case_number FROM communications WHERE hash = ?", hash).Scan(&caseNumber); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return services.Wrap(services.ErrNotFound, "store", "link case", hash, nil)
			}
			return err
		}

		client := nullableID(idPointer(clientID))
		if _, err := tx.ExecContext(ctx,
			"UPDATE communications SET linked_case_id = ?, linked_client_id = COALESCE(?, linked_client_id) WHERE hash = ?",
			caseID, client, hash); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx,
			"UPDATE communications SET linked_case_id = ?, linked_client_id = COALESCE(linked_client_id, ?) WHERE case_number = ? AND hash <> ? AND linked_case_id IS NULL",
			caseID, client, caseNumber, hash)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		propagated = int(n)
		return tx.Commit()
	})
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			return 0, err
		}
		return 0, services.Wrap(services.ErrPersistence, "store", "link case", hash, err)
	}
	return propagated, nil
}

// LinkClient overrides the client link on a single communication.
func (s *Store) LinkClient(ctx context.Context, hash string, clientID int64) error {
	res, err := s.exec(ctx, builder.Update("communications").Set("linked_client_id", clientID).Where(sq.Eq{"hash": hash}))
	if err != nil {
		return services.Wrap(services.ErrPersistence, "store", "link client", hash, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return services.Wrap(services.ErrNotFound, "store", "link client", hash, nil)
	}
	return nil
}

// Unlink clears the case and client links of hash only; siblings keep theirs.
func (s *Store) Unlink(ctx context.Context, hash string) error {
	res, err := s.exec(ctx, builder.Update("communications").
		Set("linked_case_id", nil).
		Set("linked_client_id", nil).
		Where(sq.Eq{"hash": hash}))
	if err != nil {
		return services.Wrap(services.ErrPersistence, "store", "unlink", hash, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return services.Wrap(services.ErrNotFound, "store", "unlink", hash, nil)
	}
	return nil
}

// ListFilter narrows List. Zero values mean "any".
type ListFilter struct {
	Read       *bool
	CaseID     *int64
	ClientID   *int64
	CaseNumber string
	Limit      int
	Offset     int
}

// List returns communications ordered by availability date, newest first.
func (s *Store) List(ctx context.Context, filter ListFilter) ([]comm.Communication, error) {
	q := builder.Select(communicationColumns).From("communications").OrderBy("availability_date DESC", "hash")
	if filter.Read != nil {
		q = q.Where(sq.Eq{"read": boolToInt(*filter.Read)})
	}
	if filter.CaseID != nil {
		q = q.Where(sq.Eq{"linked_case_id": *filter.CaseID})
	}
	if filter.ClientID != nil {
		q = q.Where(sq.Eq{"linked_client_id": *filter.ClientID})
	}
	if cn := comm.DigitsOnly(filter.CaseNumber); cn != "" {
		q = q.Where(sq.Eq{"case_number": cn})
	}
	if filter.Limit > 0 {
		q = q.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		q = q.Offset(uint64(filter.Offset))
	}
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, services.Wrap(services.ErrPersistence, "store", "list communications", "", err)
	}
	defer rows.Close()

	var out []comm.Communication
	for rows.Next() {
		c, err := scanCommunication(rows)
		if err != nil {
			return nil, services.Wrap(services.ErrPersistence, "store", "list communications", "scan", err)
		}
		out = append(out, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, services.Wrap(services.ErrPersistence, "store", "list communications", "iterate", err)
	}
	return out, nil
}

// ByCaseNumber lists every stored communication for caseNumber.
func (s *Store) ByCaseNumber(ctx context.Context, caseNumber string) ([]comm.Communication, error) {
	return s.List(ctx, ListFilter{CaseNumber: caseNumber})
}

// Stats summarizes the communications table.
type Stats struct {
	Total    int `json:"total"`
	Unread   int `json:"unread"`
	Linked   int `json:"linked"`
	Cases    int `json:"cases"`
	Clients  int `json:"clients"`
	Unlinked int `json:"unlinked"`
}

// Stats counts communications, unread items, and registry sizes.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	row := s.db.QueryRowContext(ctx, `SELECT
		COUNT(1),
		COALESCE(SUM(CASE WHEN read = 0 THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN linked_case_id IS NOT NULL THEN 1 ELSE 0 END), 0)
		FROM communications`)
	if err := row.Scan(&st.Total, &st.Unread, &st.Linked); err != nil {
		return st, services.Wrap(services.ErrPersistence, "store", "stats", "", err)
	}
	st.Unlinked = st.Total - st.Linked
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM cases").Scan(&st.Cases); err != nil {
		return st, services.Wrap(services.ErrPersistence, "store", "stats", "cases", err)
	}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM clients").Scan(&st.Clients); err != nil {
		return st, services.Wrap(services.ErrPersistence, "store", "stats", "clients", err)
	}
	return st, nil
}

func scanCommunication(scanner interface{ Scan(dest ...any) error }) (*comm.Communication, error) {
	var (
		c            comm.Communication
		number       sql.NullInt64
		masked       sql.NullString
		tribunal     sql.NullString
		org          sql.NullString
		docType      sql.NullString
		commType     sql.NullString
		className    sql.NullString
		classCode    sql.NullString
		text         sql.NullString
		medium       sql.NullString
		availability string
		link         sql.NullString
		recipients   sql.NullString
		advocates    sql.NullString
		clientID     sql.NullInt64
		caseID       sql.NullInt64
		read         int
		created      string
	)
	if err := scanner.Scan(
		&c.Hash,
		&number,
		&c.CaseNumber,
		&masked,
		&tribunal,
		&org,
		&docType,
		&commType,
		&className,
		&classCode,
		&text,
		&medium,
		&availability,
		&link,
		&recipients,
		&advocates,
		&clientID,
		&caseID,
		&read,
		&created,
	); err != nil {
		return nil, err
	}
	c.Number = number.Int64
	c.CaseNumberMasked = masked.String
	c.TribunalCode = tribunal.String
	c.OrgName = org.String
	c.DocumentType = docType.String
	c.CommunicationType = commType.String
	c.ClassName = className.String
	c.ClassCode = classCode.String
	c.Text = text.String
	c.Medium = comm.Medium(medium.String)
	c.Link = link.String
	c.Recipients = decodeList(recipients)
	c.Advocates = decodeList(advocates)
	c.LinkedClientID = idPointer(clientID)
	c.LinkedCaseID = idPointer(caseID)
	c.Read = read != 0
	c.AvailabilityDate, _ = parseTimeString(availability)
	c.CreatedAt, _ = parseTimeString(created)
	return &c, nil
}
