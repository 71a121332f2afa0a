package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TransactionFilters defines list filters.
type TransactionFilters struct {
	Account  string
	Category string
	Type     string
	Search   string
	Linked   *bool // filter on presence of a transfer link
}

// TransactionRepo handles transactions.
type TransactionRepo struct {
	db *sql.DB
}

func NewTransactionRepo(db *sql.DB) *TransactionRepo { return &TransactionRepo{db: db} }

func (r *TransactionRepo) Insert(ctx context.Context, t Transaction) error {
	if t.Category == "" {
		t.Category = Uncategorized
	}
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO transactions(
	 id, account, date, amount, description, category, subcategory, type,
	 confidence, reasoning, transfer_match_id, verified, notes,
	 last_modified, created_at)
	VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP);
	`,
		t.ID, t.Account, t.Date, t.Amount, t.Description, t.Category, t.Subcategory,
		t.Type, t.Confidence, t.Reasoning, t.TransferMatchID, t.Verified, t.Notes)
	return err
}

// Add inserts a transaction, assigning an id when the caller left it blank.
func (r *TransactionRepo) Add(ctx context.Context, t Transaction) (Transaction, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if err := r.Insert(ctx, t); err != nil {
		return Transaction{}, err
	}
	return t, nil
}

func (r *TransactionRepo) Get(ctx context.Context, id string) (*Transaction, error) {
	row := r.db.QueryRowContext(ctx, selectColumns+` FROM transactions WHERE id = ?`, id)
	t, err := scanTransaction(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

func (r *TransactionRepo) List(ctx context.Context, f TransactionFilters) ([]Transaction, error) {
	var where []string
	var args []interface{}

	if f.Account != "" {
		where = append(where, "account = ?")
		args = append(args, f.Account)
	}
	if f.Category != "" {
		where = append(where, "category = ?")
		args = append(args, f.Category)
	}
	if f.Type != "" {
		where = append(where, "type = ?")
		args = append(args, f.Type)
	}
	if f.Search != "" {
		where = append(where, "description LIKE ?")
		args = append(args, "%"+f.Search+"%")
	}
	if f.Linked != nil {
		if *f.Linked {
			where = append(where, "transfer_match_id IS NOT NULL")
		} else {
			where = append(where, "transfer_match_id IS NULL")
		}
	}

	query := selectColumns + " FROM transactions"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY date ASC, created_at ASC, id ASC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Update applies a partial update to one transaction.
func (r *TransactionRepo) Update(ctx context.Context, id string, u TransactionUpdate) error {
	if u.IsZero() {
		return nil
	}
	set, args := updateClause(u)
	args = append(args, id)
	_, err := r.db.ExecContext(ctx, "UPDATE transactions SET "+set+" WHERE id = ?", args...)
	return err
}

// BatchItem pairs a transaction id with its pending update.
type BatchItem struct {
	ID     string
	Update TransactionUpdate
}

// BatchUpdate applies every item inside a single database transaction
// so the whole run costs one persistence round-trip. Empty-update items
// are skipped. Returns the number of rows actually updated. When
// skipHistory is false a history row is recorded per updated
// transaction, still within the same commit.
func (r *TransactionRepo) BatchUpdate(ctx context.Context, items []BatchItem, skipHistory bool) (int, error) {
	live := make([]BatchItem, 0, len(items))
	for _, it := range items {
		if !it.Update.IsZero() {
			live = append(live, it)
		}
	}
	if len(live) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	count := 0
	for _, it := range live {
		set, args := updateClause(it.Update)
		args = append(args, it.ID)
		res, err := tx.ExecContext(ctx, "UPDATE transactions SET "+set+" WHERE id = ?", args...)
		if err != nil {
			return 0, fmt.Errorf("batch update %s: %w", it.ID, err)
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			continue
		}
		count++
		if !skipHistory {
			if err := insertHistory(ctx, tx, it.ID, it.Update); err != nil {
				return 0, fmt.Errorf("history %s: %w", it.ID, err)
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return count, nil
}

func insertHistory(ctx context.Context, tx *sql.Tx, id string, u TransactionUpdate) error {
	fields, err := json.Marshal(u)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
	INSERT INTO transaction_history(id, transaction_id, fields, changed_at)
	VALUES(?, ?, ?, CURRENT_TIMESTAMP)`,
		uuid.NewString(), id, string(fields))
	return err
}

const selectColumns = `SELECT id, account, date, amount, description, category, subcategory,
 type, confidence, reasoning, transfer_match_id, verified, notes, last_modified, created_at`

func updateClause(u TransactionUpdate) (string, []interface{}) {
	var set []string
	var args []interface{}
	add := func(col string, v interface{}) {
		set = append(set, col+" = ?")
		args = append(args, v)
	}
	if u.Category != nil {
		add("category", *u.Category)
	}
	if u.Subcategory != nil {
		add("subcategory", *u.Subcategory)
	}
	if u.Description != nil {
		add("description", *u.Description)
	}
	if u.Amount != nil {
		add("amount", *u.Amount)
	}
	if u.Type != nil {
		add("type", *u.Type)
	}
	if u.Notes != nil {
		add("notes", *u.Notes)
	}
	if u.Verified != nil {
		add("verified", *u.Verified)
	}
	if u.Confidence != nil {
		add("confidence", *u.Confidence)
	} else if u.ClearConfidence {
		set = append(set, "confidence = NULL")
	}
	if u.Reasoning != nil {
		add("reasoning", *u.Reasoning)
	} else if u.ClearReasoning {
		set = append(set, "reasoning = NULL")
	}
	if u.TransferMatchID != nil {
		add("transfer_match_id", *u.TransferMatchID)
	} else if u.ClearTransferLink {
		set = append(set, "transfer_match_id = NULL")
	}
	set = append(set, "last_modified = CURRENT_TIMESTAMP")
	return strings.Join(set, ", "), args
}

// scanTransaction handles nullable fields for both Row and Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanTransaction(row scanner) (Transaction, error) {
	var t Transaction
	var subcategory, reasoning, matchID, notes sql.NullString
	var confidence sql.NullFloat64
	var lastModified, createdAt time.Time
	if err := row.Scan(&t.ID, &t.Account, &t.Date, &t.Amount, &t.Description,
		&t.Category, &subcategory, &t.Type, &confidence, &reasoning, &matchID,
		&t.Verified, &notes, &lastModified, &createdAt); err != nil {
		return Transaction{}, err
	}
	if subcategory.Valid {
		t.Subcategory = subcategory.String
	}
	if confidence.Valid {
		t.Confidence = &confidence.Float64
	}
	if reasoning.Valid {
		t.Reasoning = &reasoning.String
	}
	if matchID.Valid {
		t.TransferMatchID = &matchID.String
	}
	if notes.Valid {
		t.Notes = &notes.String
	}
	t.LastModified = lastModified
	t.CreatedAt = createdAt
	return t, nil
}
