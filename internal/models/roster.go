package models

// Permanence marks a new student as a one-off visitor or a regular.
type Permanence int

const (
	PermanenceUnset     Permanence = 0
	PermanenceTemporary Permanence = 1
	PermanencePermanent Permanence = 2
)

// String returns the affordance token for the flag.
func (p Permanence) String() string {
	switch p {
	case PermanenceTemporary:
		return "temporary"
	case PermanencePermanent:
		return "permanent"
	}
	return "unset"
}

// ParsePermanence is the inverse of String for the two choosable values.
func ParsePermanence(raw string) (Permanence, bool) {
	switch raw {
	case "temporary":
		return PermanenceTemporary, true
	case "permanent":
		return PermanencePermanent, true
	}
	return PermanenceUnset, false
}

// Toggled flips between permanent and temporary; unset becomes permanent.
func (p Permanence) Toggled() Permanence {
	if p == PermanencePermanent {
		return PermanenceTemporary
	}
	return PermanencePermanent
}

// ExternalRef locates a student in the upstream sheet. Both fields are set or the ref is absent.
type ExternalRef struct {
	SourceRowID  string `json:"source_row_id"`
	SourceColumn string `json:"source_column"`
}

// RosterEntry is one student on one lesson's roster.
type RosterEntry struct {
	ID          int64         `json:"id"`
	Address     LessonAddress `json:"address"`
	DisplayName string        `json:"display_name"`
	Present     bool          `json:"present"`
	Permanence  Permanence    `json:"permanence"`
	ExternalRef *ExternalRef  `json:"external_ref,omitempty"`
	Submitted   bool          `json:"submitted"`
	LessonCode  string        `json:"lesson_code,omitempty"`
}

// Known reports whether the entry came from the upstream roster.
func (e RosterEntry) Known() bool {
	return e.ExternalRef != nil
}

// RosterOrder selects the ordering of a roster listing.
type RosterOrder int

const (
	// OrderInsertion keeps the order rows were primed or appended in.
	OrderInsertion RosterOrder = iota
	// OrderDisplayName sorts by name, then id.
	OrderDisplayName
)

// RosterFilter narrows List.
type RosterFilter struct {
	PresentOnly bool
	Order       RosterOrder
}

// PrimeEntry is one externally pulled student used to seed a roster.
type PrimeEntry struct {
	DisplayName string
	Ref         *ExternalRef
}
