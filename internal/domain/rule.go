package domain

// Action is the bitmask of changes a matching rule applies to a message.
type Action uint32

const (
	ActionUnread   Action = 0x0001
	ActionPriority Action = 0x0002
	ActionIgnored  Action = 0x0004
	ActionFlag     Action = 0x0008
	ActionClear    Action = 0x1000
)

func (a Action) Has(bit Action) bool {
	return a&bit != 0
}

// ExprKind tags the variant held by an Expr.
type ExprKind string

const (
	ExprAll  ExprKind = "all"
	ExprAnd  ExprKind = "and"
	ExprOr   ExprKind = "or"
	ExprNot  ExprKind = "not"
	ExprTerm ExprKind = "term"
)

// Field names a message attribute a term can test.
type Field string

const (
	FieldAuthor   Field = "author"
	FieldBody     Field = "body"
	FieldSubject  Field = "subject"
	FieldForum    Field = "forum"
	FieldTopic    Field = "topic"
	FieldUnread   Field = "unread"
	FieldPriority Field = "priority"
	FieldStarred  Field = "starred"
	FieldIgnored  Field = "ignored"
	FieldMine     Field = "mine"
	FieldAgeDays  Field = "age_days"
)

// Operator compares a field with a term's value.
type Operator string

const (
	OpEq       Operator = "eq"
	OpNe       Operator = "ne"
	OpContains Operator = "contains"
	OpBegins   Operator = "begins"
	OpEnds     Operator = "ends"
	OpLt       Operator = "lt"
	OpGt       Operator = "gt"
)

// Expr is a rule predicate. Kind selects which of the other fields apply:
// Args for and/or/not, Field/Op/Value for term, nothing for all.
type Expr struct {
	Kind  ExprKind `yaml:"kind" json:"kind"`
	Args  []Expr   `yaml:"args,omitempty" json:"args,omitempty"`
	Field Field    `yaml:"field,omitempty" json:"field,omitempty"`
	Op    Operator `yaml:"op,omitempty" json:"op,omitempty"`
	Value string   `yaml:"value,omitempty" json:"value,omitempty"`
}

// Term builds a field/operator/value leaf.
func Term(field Field, op Operator, value string) Expr {
	return Expr{Kind: ExprTerm, Field: field, Op: op, Value: value}
}

// And builds a conjunction.
func And(args ...Expr) Expr {
	return Expr{Kind: ExprAnd, Args: args}
}

// Or builds a disjunction.
func Or(args ...Expr) Expr {
	return Expr{Kind: ExprOr, Args: args}
}

// Not negates a single expression.
func Not(arg Expr) Expr {
	return Expr{Kind: ExprNot, Args: []Expr{arg}}
}

// MatchAll matches every message.
func MatchAll() Expr {
	return Expr{Kind: ExprAll}
}

// Rule classifies incoming messages.
type Rule struct {
	Active    bool   `yaml:"active"`
	Title     string `yaml:"title"`
	Predicate Expr   `yaml:"predicate"`
	Action    Action `yaml:"action"`
}
