package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/roster-gateway/internal/models"
	appErrors "github.com/noah-isme/roster-gateway/pkg/errors"
)

// rosterStub is an in-memory roster shared by the session service tests.
type rosterStub struct {
	entries   []models.RosterEntry
	nextID    int64
	pageCalls []int
	marked    [][]int64
	err       error
}

func newRosterStub(addr models.LessonAddress, names ...string) *rosterStub {
	s := &rosterStub{}
	for _, name := range names {
		s.nextID++
		s.entries = append(s.entries, models.RosterEntry{
			ID:          s.nextID,
			Address:     addr,
			DisplayName: name,
			ExternalRef: &models.ExternalRef{SourceRowID: fmt.Sprintf("r%d", s.nextID), SourceColumn: "D"},
		})
	}
	return s
}

func (s *rosterStub) find(id int64) *models.RosterEntry {
	for i := range s.entries {
		if s.entries[i].ID == id {
			return &s.entries[i]
		}
	}
	return nil
}

func (s *rosterStub) of(addr models.LessonAddress) []models.RosterEntry {
	var out []models.RosterEntry
	for _, e := range s.entries {
		if e.Address == addr {
			out = append(out, e)
		}
	}
	return out
}

func (s *rosterStub) ListPage(ctx context.Context, addr models.LessonAddress, page, size int, order models.RosterOrder) ([]models.RosterEntry, int, error) {
	s.pageCalls = append(s.pageCalls, page)
	if s.err != nil {
		return nil, 0, s.err
	}
	all := s.of(addr)
	start := page * size
	if start >= len(all) {
		return []models.RosterEntry{}, len(all), nil
	}
	end := start + size
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], len(all), nil
}

func (s *rosterStub) List(ctx context.Context, addr models.LessonAddress, filter models.RosterFilter) ([]models.RosterEntry, error) {
	if s.err != nil {
		return nil, s.err
	}
	var out []models.RosterEntry
	for _, e := range s.of(addr) {
		if filter.PresentOnly && !e.Present {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *rosterStub) ListNewPending(ctx context.Context, addr models.LessonAddress) ([]models.RosterEntry, error) {
	var out []models.RosterEntry
	for _, e := range s.of(addr) {
		if !e.Known() && !e.Submitted {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *rosterStub) ListReleasable(ctx context.Context, addr models.LessonAddress) ([]models.RosterEntry, error) {
	var out []models.RosterEntry
	for _, e := range s.of(addr) {
		if !e.Known() && !e.Submitted && e.Present && e.Permanence == models.PermanencePermanent {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *rosterStub) Get(ctx context.Context, id int64) (*models.RosterEntry, error) {
	if e := s.find(id); e != nil {
		copy := *e
		return &copy, nil
	}
	return nil, errNoRowsStub
}

func (s *rosterStub) TogglePresence(ctx context.Context, id int64) (*models.RosterEntry, error) {
	e := s.find(id)
	if e == nil {
		return nil, errNoRowsStub
	}
	e.Present = !e.Present
	copy := *e
	return &copy, nil
}

func (s *rosterStub) AppendEntry(ctx context.Context, addr models.LessonAddress, code, name string, p models.Permanence) (int64, error) {
	if s.err != nil {
		return 0, s.err
	}
	s.nextID++
	s.entries = append(s.entries, models.RosterEntry{
		ID: s.nextID, Address: addr, DisplayName: name, Present: true, Permanence: p, LessonCode: code,
	})
	return s.nextID, nil
}

func (s *rosterStub) MarkSubmitted(ctx context.Context, ids []int64) (int64, error) {
	s.marked = append(s.marked, ids)
	var n int64
	for _, id := range ids {
		if e := s.find(id); e != nil && !e.Submitted {
			e.Submitted = true
			n++
		}
	}
	return n, nil
}

func (s *rosterStub) SetPermanence(ctx context.Context, id int64, p models.Permanence) error {
	e := s.find(id)
	if e == nil {
		return errNoRowsStub
	}
	e.Permanence = p
	return nil
}

func (s *rosterStub) addNew(addr models.LessonAddress, name string, present bool, p models.Permanence) int64 {
	s.nextID++
	s.entries = append(s.entries, models.RosterEntry{ID: s.nextID, Address: addr, DisplayName: name, Present: present, Permanence: p})
	return s.nextID
}

var errNoRowsStub = sql.ErrNoRows

var testAddress = models.LessonAddress{Location: "Sad 5", Group: "Bees", TimeSlot: "10:00"}

func names(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("Student %02d", i+1)
	}
	return out
}

func TestPresenterRendersFirstPage(t *testing.T) {
	roster := newRosterStub(testAddress, names(12)...)
	roster.entries[0].Present = true
	roster.entries[11].Present = true
	svc := NewPresenterService(roster, 10, nil)
	ref := models.CodeRef("ABCDE12345")

	r, err := svc.Render(context.Background(), RenderRequest{Address: testAddress, Ref: ref, Mode: models.ModeFirstPass})
	require.NoError(t, err)

	assert.Equal(t, "Отметьте присутствующих учеников (Bees, Sad 5) (Страница 1/2):", r.Text)
	require.Len(t, r.Keyboard, 13)
	assert.Equal(t, models.Button{Text: "✅ Student 01", Action: "toggle:1:0"}, r.Keyboard[0][0])
	assert.Equal(t, models.Button{Text: "Student 02", Action: "toggle:2:0"}, r.Keyboard[1][0])
	assert.Equal(t, []models.Button{{Text: "Вперед ➡️", Action: "page:ABCDE12345:next:0"}}, r.Keyboard[10])
	assert.Equal(t, "add-new:ABCDE12345", r.Keyboard[11][0].Action)
	assert.Equal(t, models.Button{Text: "Отправить данные (2/12)", Action: "send-first:ABCDE12345"}, r.Keyboard[12][0])
	for _, data := range r.Keyboard.Actions() {
		assert.LessOrEqual(t, len(data), 64)
	}
}

func TestPresenterSinglePageHasNoNavigation(t *testing.T) {
	roster := newRosterStub(testAddress, names(3)...)
	svc := NewPresenterService(roster, 10, nil)

	r, err := svc.Render(context.Background(), RenderRequest{Address: testAddress, Ref: models.CodeRef("ABCDE12345"), Mode: models.ModeCorrectionPass})
	require.NoError(t, err)

	assert.Equal(t, "Отметьте присутствующих учеников (Bees, Sad 5):", r.Text)
	require.Len(t, r.Keyboard, 5)
	assert.Equal(t, "add-known:ABCDE12345", r.Keyboard[3][0].Action)
	assert.Equal(t, "send-correction:ABCDE12345", r.Keyboard[4][0].Action)
}

func TestPresenterClampsPage(t *testing.T) {
	roster := newRosterStub(testAddress, names(12)...)
	svc := NewPresenterService(roster, 10, nil)

	r, err := svc.Render(context.Background(), RenderRequest{Address: testAddress, Ref: models.CodeRef("ABCDE12345"), Page: 7})
	require.NoError(t, err)
	assert.True(t, strings.Contains(r.Text, "(Страница 2/2)"))
	assert.Equal(t, []int{7, 1}, roster.pageCalls)
	assert.Equal(t, "toggle:11:1", r.Keyboard[0][0].Action)
	assert.Equal(t, []models.Button{{Text: "⬅️ Назад", Action: "page:ABCDE12345:prev:1"}}, r.Keyboard[2])

	r, err = svc.Render(context.Background(), RenderRequest{Address: testAddress, Ref: models.CodeRef("ABCDE12345"), Page: -3})
	require.NoError(t, err)
	assert.Contains(t, r.Text, "(Страница 1/2)")
}

func TestPresenterEmptyRoster(t *testing.T) {
	svc := NewPresenterService(newRosterStub(testAddress), 10, nil)

	r, err := svc.Render(context.Background(), RenderRequest{Address: testAddress, Ref: models.CodeRef("ABCDE12345")})
	require.NoError(t, err)
	assert.Equal(t, models.Rendering{Text: "Список учеников пуст", Notice: true}, r)
}

func TestPresenterReusesSendButton(t *testing.T) {
	roster := newRosterStub(testAddress, names(2)...)
	svc := NewPresenterService(roster, 10, nil)
	current := models.Keyboard{
		{{Text: "Student 01", Action: "toggle:1:0"}},
		{{Text: "Отправить данные (0/2)", Action: "send-correction:ABCDE12345"}},
	}
	roster.entries[0].Present = true

	r, err := svc.Render(context.Background(), RenderRequest{
		Address: testAddress, Ref: models.CodeRef("ABCDE12345"), Mode: models.ModeCorrectionPass, CurrentKeyboard: current,
	})
	require.NoError(t, err)
	last := r.Keyboard[len(r.Keyboard)-1][0]
	assert.Equal(t, current[1][0], last)
}

func TestPresenterToggleKeepsPageMembers(t *testing.T) {
	roster := newRosterStub(testAddress, names(25)...)
	svc := NewPresenterService(roster, 10, nil)
	req := RenderRequest{Address: testAddress, Ref: models.CodeRef("ABCDE12345"), Page: 1}

	before, err := svc.Render(context.Background(), req)
	require.NoError(t, err)
	_, err = roster.TogglePresence(context.Background(), 15)
	require.NoError(t, err)
	after, err := svc.Render(context.Background(), req)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		assert.Equal(t, before.Keyboard[i][0].Action, after.Keyboard[i][0].Action)
	}
	assert.Equal(t, "✅ Student 15", after.Keyboard[4][0].Text)
}

func TestPresenterStoreFailure(t *testing.T) {
	roster := newRosterStub(testAddress)
	roster.err = errors.New("boom")
	svc := NewPresenterService(roster, 10, nil)

	_, err := svc.Render(context.Background(), RenderRequest{Address: testAddress})
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrInternal)
}
