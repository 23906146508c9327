// Package affordance encodes and parses the identifiers carried by inline buttons.
//
// Grammar (colon delimited):
//
//	toggle:<entryId>:<page>
//	page:<ref>:<prev|next>:<currentPage>
//	add-new:<ref> | add-known:<ref>
//	kind-first:<temporary|permanent> | kind-correction:<temporary|permanent>
//	send-first:<ref> | send-correction:<ref>
//	verify:<ref>:<index>
//	release:<ref>
//	export:<jobId>
//
// A ref is either a lesson code (ABCDE12345) or a legacy address
// <location with '_' for ' '>:<group>:<timeSlot...> whose time slot may contain colons.
package affordance

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/noah-isme/roster-gateway/internal/models"
)

// MaxBytes is the transport limit on a button identifier.
const MaxBytes = 64

const sep = ":"

// Kind is the leading token of an identifier.
type Kind string

const (
	KindToggle         Kind = "toggle"
	KindPage           Kind = "page"
	KindAddNew         Kind = "add-new"
	KindAddKnown       Kind = "add-known"
	KindFirst          Kind = "kind-first"
	KindCorrection     Kind = "kind-correction"
	KindSendFirst      Kind = "send-first"
	KindSendCorrection Kind = "send-correction"
	KindVerify         Kind = "verify"
	KindRelease        Kind = "release"
	KindExport         Kind = "export"
)

// Direction is a page navigation step.
type Direction string

const (
	Prev Direction = "prev"
	Next Direction = "next"
)

var (
	// ErrMalformed is returned for identifiers that do not match the grammar.
	ErrMalformed = errors.New("malformed affordance")
	// ErrUnknownKind is returned for an unrecognised leading token.
	ErrUnknownKind = errors.New("unknown affordance")
	// ErrMalformedRef is returned when the lesson reference part cannot be parsed.
	ErrMalformedRef = errors.New("malformed lesson reference")
)

var codePattern = regexp.MustCompile(`^[A-Z]{5}[0-9]{5}$`)

// IsCode reports whether s has the lesson code shape.
func IsCode(s string) bool {
	return codePattern.MatchString(s)
}

// Action is a parsed identifier. Only the fields relevant to Kind are set.
type Action struct {
	Kind       Kind
	Ref        models.AddressRef
	EntryID    int64
	Page       int
	Direction  Direction
	Index      int
	Permanence models.Permanence
	JobID      int64
}

// Mode returns the submission mode implied by mode-specific kinds.
func (a Action) Mode() (models.Mode, bool) {
	switch a.Kind {
	case KindAddNew, KindSendFirst, KindFirst:
		return models.ModeFirstPass, true
	case KindAddKnown, KindSendCorrection, KindCorrection:
		return models.ModeCorrectionPass, true
	}
	return "", false
}

// EncodeRef renders a ref for embedding in an identifier.
func EncodeRef(ref models.AddressRef) string {
	if ref.IsCode() {
		return ref.Code
	}
	if ref.Legacy == nil {
		return ""
	}
	location := strings.ReplaceAll(ref.Legacy.Location, " ", "_")
	return strings.Join([]string{location, ref.Legacy.Group, ref.Legacy.TimeSlot}, sep)
}

// ParseRef reads a ref from already split tokens.
func ParseRef(tokens []string) (models.AddressRef, error) {
	switch {
	case len(tokens) == 1 && IsCode(tokens[0]):
		return models.CodeRef(tokens[0]), nil
	case len(tokens) >= 3:
		addr := models.LessonAddress{
			Location: strings.ReplaceAll(tokens[0], "_", " "),
			Group:    tokens[1],
			TimeSlot: strings.Join(tokens[2:], sep),
		}
		if addr.Location == "" || addr.Group == "" || addr.TimeSlot == "" {
			return models.AddressRef{}, ErrMalformedRef
		}
		return models.LegacyRef(addr), nil
	}
	return models.AddressRef{}, ErrMalformedRef
}

// ParseRefString parses a ref that stands alone, e.g. a URL path segment.
func ParseRefString(raw string) (models.AddressRef, error) {
	if raw == "" {
		return models.AddressRef{}, ErrMalformedRef
	}
	return ParseRef(strings.Split(raw, sep))
}

func Toggle(entryID int64, page int) string {
	return join(KindToggle, strconv.FormatInt(entryID, 10), strconv.Itoa(page))
}

func Page(ref models.AddressRef, dir Direction, current int) string {
	return join(KindPage, EncodeRef(ref), string(dir), strconv.Itoa(current))
}

// AddStudent opens the add-student form in the given mode.
func AddStudent(mode models.Mode, ref models.AddressRef) string {
	if mode == models.ModeCorrectionPass {
		return join(KindAddKnown, EncodeRef(ref))
	}
	return join(KindAddNew, EncodeRef(ref))
}

// KindChoice is the permanence choice of the add-student form.
func KindChoice(mode models.Mode, p models.Permanence) string {
	if mode == models.ModeCorrectionPass {
		return join(KindCorrection, p.String())
	}
	return join(KindFirst, p.String())
}

// Send submits the roster in the given mode.
func Send(mode models.Mode, ref models.AddressRef) string {
	if mode == models.ModeCorrectionPass {
		return join(KindSendCorrection, EncodeRef(ref))
	}
	return join(KindSendFirst, EncodeRef(ref))
}

func Verify(ref models.AddressRef, index int) string {
	return join(KindVerify, EncodeRef(ref), strconv.Itoa(index))
}

func Release(ref models.AddressRef) string {
	return join(KindRelease, EncodeRef(ref))
}

func Export(jobID int64) string {
	return join(KindExport, strconv.FormatInt(jobID, 10))
}

// Fits reports whether the identifier respects the transport limit.
func Fits(data string) bool {
	return len(data) <= MaxBytes
}

// IsSend reports whether data is a send identifier of either mode.
func IsSend(data string) bool {
	return strings.HasPrefix(data, string(KindSendFirst)+sep) ||
		strings.HasPrefix(data, string(KindSendCorrection)+sep)
}

// ModeFromActions derives the session mode from a rendered keyboard's identifiers.
// The send and add buttons carry it; without them the caller decides the default.
func ModeFromActions(actions []string) (models.Mode, bool) {
	for _, data := range actions {
		kind, _, _ := strings.Cut(data, sep)
		switch Kind(kind) {
		case KindSendFirst, KindAddNew:
			return models.ModeFirstPass, true
		case KindSendCorrection, KindAddKnown:
			return models.ModeCorrectionPass, true
		}
	}
	return "", false
}

// Parse decodes an identifier.
func Parse(data string) (Action, error) {
	tokens := strings.Split(data, sep)
	if len(tokens) < 2 {
		return Action{}, fmt.Errorf("%q: %w", data, ErrMalformed)
	}
	kind := Kind(tokens[0])
	args := tokens[1:]
	action := Action{Kind: kind}

	switch kind {
	case KindToggle:
		if len(args) != 2 {
			return Action{}, fmt.Errorf("%q: %w", data, ErrMalformed)
		}
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil || id <= 0 {
			return Action{}, fmt.Errorf("%q: %w", data, ErrMalformed)
		}
		page, err := parsePage(args[1])
		if err != nil {
			return Action{}, fmt.Errorf("%q: %w", data, err)
		}
		action.EntryID = id
		action.Page = page

	case KindPage:
		if len(args) < 3 {
			return Action{}, fmt.Errorf("%q: %w", data, ErrMalformed)
		}
		dir := Direction(args[len(args)-2])
		if dir != Prev && dir != Next {
			return Action{}, fmt.Errorf("%q: %w", data, ErrMalformed)
		}
		page, err := parsePage(args[len(args)-1])
		if err != nil {
			return Action{}, fmt.Errorf("%q: %w", data, err)
		}
		ref, err := ParseRef(args[:len(args)-2])
		if err != nil {
			return Action{}, fmt.Errorf("%q: %w", data, err)
		}
		action.Ref = ref
		action.Direction = dir
		action.Page = page

	case KindAddNew, KindAddKnown, KindSendFirst, KindSendCorrection, KindRelease:
		ref, err := ParseRef(args)
		if err != nil {
			return Action{}, fmt.Errorf("%q: %w", data, err)
		}
		action.Ref = ref

	case KindFirst, KindCorrection:
		if len(args) != 1 {
			return Action{}, fmt.Errorf("%q: %w", data, ErrMalformed)
		}
		p, ok := models.ParsePermanence(args[0])
		if !ok {
			return Action{}, fmt.Errorf("%q: %w", data, ErrMalformed)
		}
		action.Permanence = p

	case KindVerify:
		if len(args) < 2 {
			return Action{}, fmt.Errorf("%q: %w", data, ErrMalformed)
		}
		index, err := strconv.Atoi(args[len(args)-1])
		if err != nil || index < 0 {
			return Action{}, fmt.Errorf("%q: %w", data, ErrMalformed)
		}
		ref, err := ParseRef(args[:len(args)-1])
		if err != nil {
			return Action{}, fmt.Errorf("%q: %w", data, err)
		}
		action.Ref = ref
		action.Index = index

	case KindExport:
		if len(args) != 1 {
			return Action{}, fmt.Errorf("%q: %w", data, ErrMalformed)
		}
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil || id <= 0 {
			return Action{}, fmt.Errorf("%q: %w", data, ErrMalformed)
		}
		action.JobID = id

	default:
		return Action{}, fmt.Errorf("%q: %w", data, ErrUnknownKind)
	}

	return action, nil
}

func parsePage(raw string) (int, error) {
	page, err := strconv.Atoi(raw)
	if err != nil || page < 0 {
		return 0, ErrMalformed
	}
	return page, nil
}

func join(kind Kind, parts ...string) string {
	return string(kind) + sep + strings.Join(parts, sep)
}
