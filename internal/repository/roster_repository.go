package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/roster-gateway/internal/models"
)

const rosterColumns = `id, location, group_name, time_slot, display_name, present, permanence,
	source_row_id, source_column, submitted, lesson_code`

// newClause matches entries without a complete external reference.
const newClause = `(source_row_id IS NULL OR source_column IS NULL OR source_row_id = '' OR source_column = '')`

const addressClause = `location = ? AND group_name = ? AND time_slot = ?`

// RosterRepository persists roster entries. Every mutation is a single statement scoped to
// one row (or one explicit id set), so concurrent callbacks never lose updates.
type RosterRepository struct {
	db *sqlx.DB
}

// NewRosterRepository constructs the repository.
func NewRosterRepository(db *sqlx.DB) *RosterRepository {
	return &RosterRepository{db: db}
}

type rosterRow struct {
	ID           int64          `db:"id"`
	Location     string         `db:"location"`
	Group        string         `db:"group_name"`
	TimeSlot     string         `db:"time_slot"`
	DisplayName  string         `db:"display_name"`
	Present      int            `db:"present"`
	Permanence   int            `db:"permanence"`
	SourceRowID  sql.NullString `db:"source_row_id"`
	SourceColumn sql.NullString `db:"source_column"`
	Submitted    int            `db:"submitted"`
	LessonCode   sql.NullString `db:"lesson_code"`
}

func (r rosterRow) toModel() models.RosterEntry {
	entry := models.RosterEntry{
		ID:          r.ID,
		Address:     models.LessonAddress{Location: r.Location, Group: r.Group, TimeSlot: r.TimeSlot},
		DisplayName: r.DisplayName,
		Present:     r.Present == 1,
		Permanence:  models.Permanence(r.Permanence),
		Submitted:   r.Submitted == 1,
		LessonCode:  r.LessonCode.String,
	}
	// A row with only one half of the reference is treated as new.
	if r.SourceRowID.String != "" && r.SourceColumn.String != "" {
		entry.ExternalRef = &models.ExternalRef{SourceRowID: r.SourceRowID.String, SourceColumn: r.SourceColumn.String}
	}
	return entry
}

func toModels(rows []rosterRow) []models.RosterEntry {
	entries := make([]models.RosterEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, row.toModel())
	}
	return entries
}

func orderClause(order models.RosterOrder) string {
	if order == models.OrderDisplayName {
		return " ORDER BY display_name, id"
	}
	return " ORDER BY id"
}

func addressArgs(addr models.LessonAddress) []interface{} {
	return []interface{}{addr.Location, addr.Group, addr.TimeSlot}
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// ListPage returns one page of the roster and the total number of entries.
func (r *RosterRepository) ListPage(ctx context.Context, addr models.LessonAddress, page, size int, order models.RosterOrder) ([]models.RosterEntry, int, error) {
	if size <= 0 {
		size = 10
	}
	if page < 0 {
		page = 0
	}

	var total int
	countQuery := r.db.Rebind(`SELECT COUNT(*) FROM roster_entries WHERE ` + addressClause)
	if err := r.db.GetContext(ctx, &total, countQuery, addressArgs(addr)...); err != nil {
		return nil, 0, fmt.Errorf("count roster entries: %w", err)
	}
	if total == 0 {
		return []models.RosterEntry{}, 0, nil
	}

	query := r.db.Rebind(`SELECT ` + rosterColumns + ` FROM roster_entries WHERE ` + addressClause +
		orderClause(order) + ` LIMIT ? OFFSET ?`)
	args := append(addressArgs(addr), size, page*size)

	var rows []rosterRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list roster page: %w", err)
	}
	return toModels(rows), total, nil
}

// List returns every entry of the lesson, optionally present ones only.
func (r *RosterRepository) List(ctx context.Context, addr models.LessonAddress, filter models.RosterFilter) ([]models.RosterEntry, error) {
	var b strings.Builder
	b.WriteString(`SELECT ` + rosterColumns + ` FROM roster_entries WHERE ` + addressClause)
	if filter.PresentOnly {
		b.WriteString(` AND present = 1`)
	}
	b.WriteString(orderClause(filter.Order))

	var rows []rosterRow
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(b.String()), addressArgs(addr)...); err != nil {
		return nil, fmt.Errorf("list roster entries: %w", err)
	}
	return toModels(rows), nil
}

// ListNewPending returns new, not yet submitted entries in id order.
func (r *RosterRepository) ListNewPending(ctx context.Context, addr models.LessonAddress) ([]models.RosterEntry, error) {
	query := r.db.Rebind(`SELECT ` + rosterColumns + ` FROM roster_entries WHERE ` + addressClause +
		` AND ` + newClause + ` AND submitted = 0 ORDER BY id`)

	var rows []rosterRow
	if err := r.db.SelectContext(ctx, &rows, query, addressArgs(addr)...); err != nil {
		return nil, fmt.Errorf("list pending new entries: %w", err)
	}
	return toModels(rows), nil
}

// ListReleasable returns new entries that are permanent, present and not yet submitted.
func (r *RosterRepository) ListReleasable(ctx context.Context, addr models.LessonAddress) ([]models.RosterEntry, error) {
	query := r.db.Rebind(`SELECT ` + rosterColumns + ` FROM roster_entries WHERE ` + addressClause +
		` AND ` + newClause + ` AND permanence = ? AND present = 1 AND submitted = 0 ORDER BY id`)
	args := append(addressArgs(addr), int(models.PermanencePermanent))

	var rows []rosterRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list releasable entries: %w", err)
	}
	return toModels(rows), nil
}

// Get returns one entry.
func (r *RosterRepository) Get(ctx context.Context, id int64) (*models.RosterEntry, error) {
	query := r.db.Rebind(`SELECT ` + rosterColumns + ` FROM roster_entries WHERE id = ?`)
	var row rosterRow
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		return nil, err
	}
	entry := row.toModel()
	return &entry, nil
}

// TogglePresence flips the present flag and returns the updated entry.
func (r *RosterRepository) TogglePresence(ctx context.Context, id int64) (*models.RosterEntry, error) {
	query := r.db.Rebind(`UPDATE roster_entries SET present = 1 - present WHERE id = ? RETURNING ` + rosterColumns)
	var row rosterRow
	if err := r.db.QueryRowxContext(ctx, query, id).StructScan(&row); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("toggle presence: %w", err)
	}
	entry := row.toModel()
	return &entry, nil
}

// AppendEntry adds a new (unreferenced) student who is in the room.
func (r *RosterRepository) AppendEntry(ctx context.Context, addr models.LessonAddress, code, displayName string, permanence models.Permanence) (int64, error) {
	query := r.db.Rebind(`INSERT INTO roster_entries
	(location, group_name, time_slot, display_name, present, permanence, source_row_id, source_column, submitted, lesson_code)
	VALUES (?, ?, ?, ?, 1, ?, NULL, NULL, 0, ?) RETURNING id`)

	var id int64
	err := r.db.QueryRowxContext(ctx, query,
		addr.Location, addr.Group, addr.TimeSlot, displayName, int(permanence), nullable(code),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("append roster entry: %w", err)
	}
	return id, nil
}

// MarkSubmitted flips submitted for ids that are not submitted yet. It is the only writer
// of the column and never clears it.
func (r *RosterRepository) MarkSubmitted(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	query, args, err := sqlx.In(`UPDATE roster_entries SET submitted = 1 WHERE id IN (?) AND submitted = 0`, ids)
	if err != nil {
		return 0, fmt.Errorf("build mark submitted: %w", err)
	}
	res, err := r.db.ExecContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return 0, fmt.Errorf("mark submitted: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("check mark submitted rows: %w", err)
	}
	return affected, nil
}

// SetPermanence stores the verification flag of an entry.
func (r *RosterRepository) SetPermanence(ctx context.Context, id int64, permanence models.Permanence) error {
	query := r.db.Rebind(`UPDATE roster_entries SET permanence = ? WHERE id = ?`)
	res, err := r.db.ExecContext(ctx, query, int(permanence), id)
	if err != nil {
		return fmt.Errorf("set permanence: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check permanence rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Prime inserts an externally pulled roster in one transaction.
func (r *RosterRepository) Prime(ctx context.Context, addr models.LessonAddress, code string, entries []models.PrimeEntry) error {
	for _, e := range entries {
		if e.Ref != nil && (e.Ref.SourceRowID == "" || e.Ref.SourceColumn == "") {
			return fmt.Errorf("prime roster: partial external reference for %q", e.DisplayName)
		}
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin prime roster: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	query := tx.Rebind(`INSERT INTO roster_entries
	(location, group_name, time_slot, display_name, present, permanence, source_row_id, source_column, submitted, lesson_code)
	VALUES (?, ?, ?, ?, 0, 0, ?, ?, 0, ?)`)

	for _, e := range entries {
		var rowID, column sql.NullString
		if e.Ref != nil {
			rowID = nullable(e.Ref.SourceRowID)
			column = nullable(e.Ref.SourceColumn)
		}
		if _, err := tx.ExecContext(ctx, query,
			addr.Location, addr.Group, addr.TimeSlot, e.DisplayName, rowID, column, nullable(code),
		); err != nil {
			return fmt.Errorf("insert primed entry: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit prime roster: %w", err)
	}
	return nil
}

// AddressByCode resolves a lesson code to its address.
func (r *RosterRepository) AddressByCode(ctx context.Context, code string) (models.LessonAddress, error) {
	query := r.db.Rebind(`SELECT location, group_name, time_slot FROM roster_entries WHERE lesson_code = ? ORDER BY id LIMIT 1`)
	var addr models.LessonAddress
	if err := r.db.GetContext(ctx, &addr, query, code); err != nil {
		return models.LessonAddress{}, err
	}
	return addr, nil
}

// CodeFor returns the lesson code bound to the address, sql.ErrNoRows when none.
func (r *RosterRepository) CodeFor(ctx context.Context, addr models.LessonAddress) (string, error) {
	query := r.db.Rebind(`SELECT lesson_code FROM roster_entries WHERE ` + addressClause +
		` AND lesson_code IS NOT NULL AND lesson_code <> '' ORDER BY id LIMIT 1`)
	var code string
	if err := r.db.GetContext(ctx, &code, query, addressArgs(addr)...); err != nil {
		return "", err
	}
	return code, nil
}

// CodeExists reports whether any row carries the code.
func (r *RosterRepository) CodeExists(ctx context.Context, code string) (bool, error) {
	query := r.db.Rebind(`SELECT COUNT(1) FROM roster_entries WHERE lesson_code = ?`)
	var n int
	if err := r.db.GetContext(ctx, &n, query, code); err != nil {
		return false, fmt.Errorf("check lesson code: %w", err)
	}
	return n > 0, nil
}

// AddressExists reports whether the lesson has at least one roster row.
func (r *RosterRepository) AddressExists(ctx context.Context, addr models.LessonAddress) (bool, error) {
	query := r.db.Rebind(`SELECT COUNT(1) FROM roster_entries WHERE ` + addressClause)
	var n int
	if err := r.db.GetContext(ctx, &n, query, addressArgs(addr)...); err != nil {
		return false, fmt.Errorf("check lesson address: %w", err)
	}
	return n > 0, nil
}
