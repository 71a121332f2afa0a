package repository

import "time"

// Uncategorized is the sentinel category for transactions no rule or
// classifier has claimed yet.
const Uncategorized = "Uncategorized"

// Transaction types.
const (
	TypeIncome   = "income"
	TypeExpense  = "expense"
	TypeTransfer = "transfer"
)

// Transaction represents a transaction row. Amount is signed: negative
// is an outflow. Confidence and Reasoning travel together — both set
// means the categorization came from the classifier and has not been
// overridden by a human or rule.
type Transaction struct {
	ID              string
	Account         string
	Date            time.Time
	Amount          float64
	Description     string
	Category        string
	Subcategory     string
	Type            string
	Confidence      *float64
	Reasoning       *string
	TransferMatchID *string
	Verified        bool
	Notes           *string
	LastModified    time.Time
	CreatedAt       time.Time
}

// HasProvenance reports whether the transaction still carries
// classifier-provided confidence metadata.
func (t Transaction) HasProvenance() bool {
	return t.Confidence != nil || t.Reasoning != nil
}

// Condition fields.
const (
	FieldDescription = "description"
	FieldAmount      = "amount"
	FieldAccount     = "account"
	FieldDate        = "date"
)

// Condition operators.
const (
	OpEquals      = "equals"
	OpContains    = "contains"
	OpStartsWith  = "startsWith"
	OpEndsWith    = "endsWith"
	OpGreaterThan = "greaterThan"
	OpLessThan    = "lessThan"
	OpBetween     = "between"
	OpRegex       = "regex"
)

// Condition is one predicate of a rule. All of a rule's conditions must
// hold for the rule to match. ValueEnd is only meaningful for between.
type Condition struct {
	Field         string `json:"field"`
	Operator      string `json:"operator"`
	Value         string `json:"value"`
	ValueEnd      string `json:"valueEnd,omitempty"`
	CaseSensitive bool   `json:"caseSensitive,omitempty"`
}

// Rule sources.
const (
	RuleSourceUser = "user"
	RuleSourceAuto = "auto"
	RuleSourceAI   = "ai"
)

// CategoryRule assigns a category/subcategory to any transaction that
// satisfies every condition. Lower priority evaluates first.
type CategoryRule struct {
	ID          string
	Name        string
	Active      bool
	Priority    int
	Conditions  []Condition
	Category    string
	Subcategory string
	Source      string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TransactionUpdate is a partial update. Nil pointers leave the column
// untouched. The Clear flags express "set to NULL", which a nil pointer
// cannot.
type TransactionUpdate struct {
	Category          *string
	Subcategory       *string
	Description       *string
	Amount            *float64
	Type              *string
	Notes             *string
	Verified          *bool
	Confidence        *float64
	Reasoning         *string
	TransferMatchID   *string
	ClearConfidence   bool
	ClearReasoning    bool
	ClearTransferLink bool
}

// IsZero reports whether the update would touch nothing.
func (u TransactionUpdate) IsZero() bool {
	return u.Category == nil && u.Subcategory == nil && u.Description == nil &&
		u.Amount == nil && u.Type == nil && u.Notes == nil && u.Verified == nil &&
		u.Confidence == nil && u.Reasoning == nil && u.TransferMatchID == nil &&
		!u.ClearConfidence && !u.ClearReasoning && !u.ClearTransferLink
}
