package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/roster-gateway/internal/dto"
	"github.com/noah-isme/roster-gateway/internal/models"
	"github.com/noah-isme/roster-gateway/pkg/affordance"
	appErrors "github.com/noah-isme/roster-gateway/pkg/errors"
)

type formStoreStub struct {
	forms map[int64]models.FormState
}

func newFormStoreStub() *formStoreStub {
	return &formStoreStub{forms: make(map[int64]models.FormState)}
}

func (s *formStoreStub) Get(ctx context.Context, chatID int64) (*models.FormState, error) {
	state, ok := s.forms[chatID]
	if !ok {
		return nil, nil
	}
	return &state, nil
}

func (s *formStoreStub) Save(ctx context.Context, state models.FormState) error {
	s.forms[state.ChatID] = state
	return nil
}

func (s *formStoreStub) Delete(ctx context.Context, chatID int64) error {
	delete(s.forms, chatID)
	return nil
}

func newFormFixture(roster *rosterStub) (*FormService, *formStoreStub, *chatStub) {
	forms := newFormStoreStub()
	chat := &chatStub{}
	svc := NewFormService(forms, roster, NewPresenterService(roster, 10, nil), NewNotifierService(chat, nil, nil), nil, nil)
	return svc, forms, chat
}

func TestFormAppendsStudentAndRerenders(t *testing.T) {
	roster := newRosterStub(testAddress, names(12)...)
	svc, forms, chat := newFormFixture(roster)
	ref := models.CodeRef("ABCDE12345")
	rosterMsg := models.MessageRef{ChatID: 42, MessageID: 7}

	r, err := svc.Start(context.Background(), testAddress, ref, models.ModeFirstPass, rosterMsg)
	require.NoError(t, err)
	assert.Equal(t, "Введите имя нового ученика:", r.Text)

	r, err = svc.Text(context.Background(), dto.TextRequest{ChatID: 42, Text: "  Olga   Ivanova "})
	require.NoError(t, err)
	assert.Equal(t, "Выберите тип ученика Olga Ivanova:", r.Text)
	assert.Equal(t, []string{"kind-first:temporary", "kind-first:permanent"}, r.Keyboard.Actions())

	res, err := svc.Choose(context.Background(), models.ModeFirstPass, models.PermanencePermanent, models.MessageRef{ChatID: 42, MessageID: 8})
	require.NoError(t, err)
	assert.Equal(t, "Ученик Olga Ivanova добавлен как постоянный", res.Answer)
	assert.True(t, res.Rendering.Notice)

	added := roster.entries[len(roster.entries)-1]
	assert.Equal(t, "Olga Ivanova", added.DisplayName)
	assert.True(t, added.Present)
	assert.Equal(t, models.PermanencePermanent, added.Permanence)
	assert.Equal(t, "ABCDE12345", added.LessonCode)
	assert.Empty(t, forms.forms)

	require.Len(t, chat.edits, 1)
	assert.Contains(t, chat.edits[0].Text, "(Страница 1/2)")
	assert.Contains(t, chat.edits[0].Keyboard.Actions(), affordance.AddStudent(models.ModeFirstPass, ref))
}

func TestFormRejectsChoiceFromOtherMode(t *testing.T) {
	roster := newRosterStub(testAddress, names(2)...)
	svc, forms, _ := newFormFixture(roster)
	msg := models.MessageRef{ChatID: 42, MessageID: 7}
	_, err := svc.Start(context.Background(), testAddress, models.CodeRef("ABCDE12345"), models.ModeCorrectionPass, msg)
	require.NoError(t, err)
	r, err := svc.Text(context.Background(), dto.TextRequest{ChatID: 42, Text: "Olga"})
	require.NoError(t, err)
	assert.Equal(t, []string{"kind-correction:temporary", "kind-correction:permanent"}, r.Keyboard.Actions())

	_, err = svc.Choose(context.Background(), models.ModeFirstPass, models.PermanenceTemporary, msg)
	assert.ErrorIs(t, err, appErrors.ErrValidation)
	assert.Len(t, roster.entries, 2)
	assert.Contains(t, forms.forms, int64(42))

	res, err := svc.Choose(context.Background(), models.ModeCorrectionPass, models.PermanenceTemporary, msg)
	require.NoError(t, err)
	assert.Equal(t, "Ученик Olga добавлен как временный", res.Answer)
	assert.False(t, res.Rendering.Notice, "same message gets the roster back")
	assert.Len(t, roster.entries, 3)
}

func TestFormWithoutPendingState(t *testing.T) {
	svc, _, _ := newFormFixture(newRosterStub(testAddress))

	_, err := svc.Text(context.Background(), dto.TextRequest{ChatID: 42, Text: "Olga"})
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
	assert.Equal(t, "нет активной формы", appErrors.FromError(err).Message)

	_, err = svc.Choose(context.Background(), models.ModeFirstPass, models.PermanenceTemporary, models.MessageRef{ChatID: 42, MessageID: 1})
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestFormChoiceBeforeName(t *testing.T) {
	svc, _, _ := newFormFixture(newRosterStub(testAddress))
	msg := models.MessageRef{ChatID: 42, MessageID: 7}
	_, err := svc.Start(context.Background(), testAddress, models.CodeRef("ABCDE12345"), models.ModeFirstPass, msg)
	require.NoError(t, err)

	_, err = svc.Choose(context.Background(), models.ModeFirstPass, models.PermanenceTemporary, msg)
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}
