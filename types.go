package markform

// Id is a user-chosen token naming a field, group, option or note. Ids share
// one namespace across the whole document.
type Id string

// OptionId names one option of a chooser field. It joins the global Id
// namespace but patches address it relative to its owning field.
type OptionId string

type FieldKind string

const (
	KindString       FieldKind = "string"
	KindNumber       FieldKind = "number"
	KindURL          FieldKind = "url"
	KindDate         FieldKind = "date"
	KindYear         FieldKind = "year"
	KindStringList   FieldKind = "string_list"
	KindURLList      FieldKind = "url_list"
	KindSingleSelect FieldKind = "single_select"
	KindMultiSelect  FieldKind = "multi_select"
	KindCheckboxes   FieldKind = "checkboxes"
	KindTable        FieldKind = "table"
)

// IsValid reports whether k is one of the closed set of field kinds.
func (k FieldKind) IsValid() bool {
	switch k {
	case KindString, KindNumber, KindURL, KindDate, KindYear,
		KindStringList, KindURLList,
		KindSingleSelect, KindMultiSelect, KindCheckboxes,
		KindTable:
		return true
	}
	return false
}

// IsScalar reports whether k holds a single nullable scalar.
func (k FieldKind) IsScalar() bool {
	switch k {
	case KindString, KindNumber, KindURL, KindDate, KindYear:
		return true
	}
	return false
}

// IsList reports whether k holds an ordered array of scalars.
func (k FieldKind) IsList() bool {
	return k == KindStringList || k == KindURLList
}

// IsChooser reports whether k selects among declared options.
func (k FieldKind) IsChooser() bool {
	return k == KindSingleSelect || k == KindMultiSelect || k == KindCheckboxes
}

type CheckboxMode string

const (
	ModeMulti    CheckboxMode = "multi"
	ModeSimple   CheckboxMode = "simple"
	ModeExplicit CheckboxMode = "explicit"
)

type CheckboxState string

const (
	StateTodo       CheckboxState = "todo"
	StateDone       CheckboxState = "done"
	StateActive     CheckboxState = "active"
	StateIncomplete CheckboxState = "incomplete"
	StateNA         CheckboxState = "na"
	StateUnfilled   CheckboxState = "unfilled"
	StateYes        CheckboxState = "yes"
	StateNo         CheckboxState = "no"
)

// checkboxTokens maps each mode to its marker character per legal state.
var checkboxTokens = map[CheckboxMode]map[CheckboxState]byte{
	ModeMulti: {
		StateTodo:       ' ',
		StateDone:       'x',
		StateActive:     '/',
		StateIncomplete: '-',
		StateNA:         '~',
	},
	ModeSimple: {
		StateTodo: ' ',
		StateDone: 'x',
	},
	ModeExplicit: {
		StateUnfilled: ' ',
		StateYes:      'y',
		StateNo:       'n',
	},
}

// StatesForMode returns the legal states of a checkbox mode.
func StatesForMode(mode CheckboxMode) []CheckboxState {
	switch mode {
	case ModeSimple:
		return []CheckboxState{StateTodo, StateDone}
	case ModeExplicit:
		return []CheckboxState{StateUnfilled, StateYes, StateNo}
	default:
		return []CheckboxState{StateTodo, StateDone, StateActive, StateIncomplete, StateNA}
	}
}

// DefaultState returns the state an unmarked option holds in the given mode.
func DefaultState(mode CheckboxMode) CheckboxState {
	if mode == ModeExplicit {
		return StateUnfilled
	}
	return StateTodo
}

// PositiveState is the target of a true boolean coerced onto a checkbox.
func PositiveState(mode CheckboxMode) CheckboxState {
	if mode == ModeExplicit {
		return StateYes
	}
	return StateDone
}

// NegativeState is the target of a false boolean coerced onto a checkbox.
func NegativeState(mode CheckboxMode) CheckboxState {
	if mode == ModeExplicit {
		return StateNo
	}
	return StateTodo
}

func stateLegalForMode(mode CheckboxMode, s CheckboxState) bool {
	_, ok := checkboxTokens[mode][s]
	return ok
}

func stateForToken(mode CheckboxMode, token byte) (CheckboxState, bool) {
	for s, t := range checkboxTokens[mode] {
		if t == token {
			return s, true
		}
	}
	return "", false
}

type AnswerState string

const (
	AnswerUnanswered AnswerState = "unanswered"
	AnswerAnswered   AnswerState = "answered"
	AnswerSkipped    AnswerState = "skipped"
	AnswerAborted    AnswerState = "aborted"
)

// RoleAgent is the default role: the party expected to fill a field.
const RoleAgent = "agent"

// Option is one selectable entry of a chooser field.
type Option struct {
	ID    OptionId `json:"id"`
	Label string   `json:"label"`
}

// Column declares one table column. Type is restricted to scalar kinds.
type Column struct {
	ID       string    `json:"id"`
	Label    string    `json:"label"`
	Type     FieldKind `json:"type"`
	Required bool      `json:"required"`
}

// Field is the schema of a single form field. Constraint pointers are nil
// when the document does not declare them.
type Field struct {
	Kind     FieldKind `json:"kind"`
	ID       Id        `json:"id"`
	Label    string    `json:"label"`
	Required bool      `json:"required"`
	Role     string    `json:"role"`

	MinLength *int     `json:"min_length,omitempty"`
	MaxLength *int     `json:"max_length,omitempty"`
	Pattern   string   `json:"pattern,omitempty"`
	Min       *float64 `json:"min,omitempty"`
	Max       *float64 `json:"max,omitempty"`
	MinItems  *int     `json:"min_items,omitempty"`
	MaxItems  *int     `json:"max_items,omitempty"`

	Mode    CheckboxMode `json:"mode,omitempty"`
	Options []Option     `json:"options,omitempty"`
	Columns []Column     `json:"columns,omitempty"`

	// Prose holds verbatim description lines between the field tag and its
	// structured content.
	Prose []string `json:"-"`
}

// Option returns the declared option with the given id.
func (f *Field) Option(id OptionId) (Option, bool) {
	for _, o := range f.Options {
		if o.ID == id {
			return o, true
		}
	}
	return Option{}, false
}

// Column returns the declared column with the given id.
func (f *Field) Column(id string) (Column, bool) {
	for _, c := range f.Columns {
		if c.ID == id {
			return c, true
		}
	}
	return Column{}, false
}

// FieldGroup is a named container of fields. Groups never nest.
type FieldGroup struct {
	ID    Id     `json:"id"`
	Label string `json:"label"`
	Items []BodyItem
}

// Fields returns the group's fields in document order.
func (g *FieldGroup) Fields() []*Field {
	var out []*Field
	for _, it := range g.Items {
		if f, ok := it.(*Field); ok {
			out = append(out, f)
		}
	}
	return out
}

// Note is a documentation block, either authored in the source or added by
// an add_note patch. Ref is empty for a form-level note.
type Note struct {
	ID   Id     `json:"id"`
	Ref  Id     `json:"ref,omitempty"`
	Text string `json:"text"`
}

// Prose is a run of verbatim body lines the engine does not interpret.
type Prose struct {
	Text string
}

// BodyItem is one ordered element of the document body.
type BodyItem interface{ isBodyItem() }

func (Prose) isBodyItem()       {}
func (*Field) isBodyItem()      {}
func (*FieldGroup) isBodyItem() {}
func (*Note) isBodyItem()       {}

// Value is the closed set of field value shapes. Every consumer switches
// exhaustively over the variants.
type Value interface{ isValue() }

type StringValue string

type NumberValue float64

type ListValue []string

// SelectionValue holds the chosen option ids of a select field. A
// single_select carries at most one entry.
type SelectionValue []OptionId

// CheckboxValue maps option ids to their current state. Options absent from
// the map hold the mode's default state.
type CheckboxValue map[OptionId]CheckboxState

// TableRow maps column ids to scalar cell values.
type TableRow map[string]Value

type TableValue []TableRow

func (StringValue) isValue()    {}
func (NumberValue) isValue()    {}
func (ListValue) isValue()      {}
func (SelectionValue) isValue() {}
func (CheckboxValue) isValue()  {}
func (TableValue) isValue()     {}

// FieldResponse records what happened to one field. Value is non-nil iff
// State is answered; Reason is set only for skipped/aborted.
type FieldResponse struct {
	State  AnswerState `json:"state"`
	Value  Value       `json:"value,omitempty"`
	Reason string      `json:"reason,omitempty"`
}

type SyntaxStyle string

const (
	SyntaxInline  SyntaxStyle = "inline"
	SyntaxComment SyntaxStyle = "comment"
)

// ParsedForm is the live in-memory document: schema, responses, prose and
// notes in document order, plus derived indexes rebuilt on every parse.
type ParsedForm struct {
	HeaderRaw string
	Header    map[string]any
	Version   string
	Style     SyntaxStyle

	Body      []BodyItem
	Responses map[Id]FieldResponse

	idIndex    map[Id]any
	orderIndex map[Id]int
}

// Fields returns every field in document order, flattening groups.
func (p *ParsedForm) Fields() []*Field {
	var out []*Field
	for _, it := range p.Body {
		switch v := it.(type) {
		case *Field:
			out = append(out, v)
		case *FieldGroup:
			out = append(out, v.Fields()...)
		}
	}
	return out
}

// Notes returns every note in document order.
func (p *ParsedForm) Notes() []*Note {
	var out []*Note
	for _, it := range p.Body {
		if n, ok := it.(*Note); ok {
			out = append(out, n)
		}
	}
	return out
}

// Field resolves an id to a field.
func (p *ParsedForm) Field(id Id) (*Field, bool) {
	f, ok := p.idIndex[id].(*Field)
	return f, ok
}

// Group resolves an id to a group.
func (p *ParsedForm) Group(id Id) (*FieldGroup, bool) {
	g, ok := p.idIndex[id].(*FieldGroup)
	return g, ok
}

// Lookup resolves an id to whichever element owns it.
func (p *ParsedForm) Lookup(id Id) (any, bool) {
	v, ok := p.idIndex[id]
	return v, ok
}

// Order returns the document position of an id, for stable sorting.
func (p *ParsedForm) Order(id Id) (int, bool) {
	n, ok := p.orderIndex[id]
	return n, ok
}

// Response returns the recorded response for a field, defaulting to
// unanswered when none has been recorded.
func (p *ParsedForm) Response(id Id) FieldResponse {
	if r, ok := p.Responses[id]; ok {
		return r
	}
	return FieldResponse{State: AnswerUnanswered}
}

// rebuildIndexes recomputes idIndex and orderIndex from the body. Options
// join the id namespace alongside fields, groups and notes.
func (p *ParsedForm) rebuildIndexes() {
	p.idIndex = make(map[Id]any)
	p.orderIndex = make(map[Id]int)
	pos := 0
	add := func(id Id, el any) {
		p.idIndex[id] = el
		p.orderIndex[id] = pos
		pos++
	}
	var walk func(items []BodyItem)
	walk = func(items []BodyItem) {
		for _, it := range items {
			switch v := it.(type) {
			case *Field:
				add(v.ID, v)
				for i := range v.Options {
					add(Id(v.Options[i].ID), &v.Options[i])
				}
			case *FieldGroup:
				add(v.ID, v)
				walk(v.Items)
			case *Note:
				add(v.ID, v)
			}
		}
	}
	walk(p.Body)
}
