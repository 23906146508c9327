package models

import "fmt"

// LessonAddress identifies one lesson occurrence.
type LessonAddress struct {
	Location string `json:"location" db:"location"`
	Group    string `json:"group" db:"group_name"`
	TimeSlot string `json:"time_slot" db:"time_slot"`
}

// IsZero reports whether no part of the address is set.
func (a LessonAddress) IsZero() bool {
	return a.Location == "" && a.Group == "" && a.TimeSlot == ""
}

func (a LessonAddress) String() string {
	return fmt.Sprintf("%s/%s/%s", a.Location, a.Group, a.TimeSlot)
}

// AddressRef is how an affordance names a lesson: a lesson code or, for rows primed before
// codes existed, the full legacy address. Exactly one of Code and Legacy is set.
type AddressRef struct {
	Code   string         `json:"code,omitempty"`
	Legacy *LessonAddress `json:"legacy,omitempty"`
}

// CodeRef wraps a lesson code.
func CodeRef(code string) AddressRef {
	return AddressRef{Code: code}
}

// LegacyRef wraps a full address.
func LegacyRef(addr LessonAddress) AddressRef {
	a := addr
	return AddressRef{Legacy: &a}
}

// IsCode reports whether the ref carries a lesson code.
func (r AddressRef) IsCode() bool {
	return r.Code != ""
}

// IsZero reports an empty ref.
func (r AddressRef) IsZero() bool {
	return r.Code == "" && r.Legacy == nil
}

// Mode selects how a roster session submits.
type Mode string

const (
	// ModeFirstPass is the first submission right after the lesson: present students only.
	ModeFirstPass Mode = "first"
	// ModeCorrectionPass re-sends the whole roster for a past lesson.
	ModeCorrectionPass Mode = "correction"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m == ModeFirstPass || m == ModeCorrectionPass
}

// ParseMode maps an optional query value to a mode, defaulting to FirstPass.
func ParseMode(raw string) (Mode, bool) {
	switch Mode(raw) {
	case "", ModeFirstPass:
		return ModeFirstPass, true
	case ModeCorrectionPass:
		return ModeCorrectionPass, true
	}
	return "", false
}
