package affordance

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/roster-gateway/internal/models"
)

var (
	codeRef   = models.CodeRef("ABCDE12345")
	legacyRef = models.LegacyRef(models.LessonAddress{Location: "Садик Солнышко", Group: "Старшая", TimeSlot: "10:30"})
)

func TestParseRef(t *testing.T) {
	ref, err := ParseRef([]string{"ABCDE12345"})
	require.NoError(t, err)
	assert.Equal(t, codeRef, ref)

	ref, err = ParseRef([]string{"Садик_Солнышко", "Старшая", "10", "30"})
	require.NoError(t, err)
	require.NotNil(t, ref.Legacy)
	assert.Equal(t, *legacyRef.Legacy, *ref.Legacy)

	for _, tokens := range [][]string{
		{"abcde12345"},
		{"ABCDE1234"},
		{"Садик", "Старшая"},
		{"", "g", "t"},
		{},
	} {
		_, err := ParseRef(tokens)
		assert.ErrorIs(t, err, ErrMalformedRef, "%v", tokens)
	}
}

func TestRoundTripCodeRef(t *testing.T) {
	cases := []string{
		Toggle(42, 3),
		Page(codeRef, Next, 1),
		Page(codeRef, Prev, 2),
		AddStudent(models.ModeFirstPass, codeRef),
		AddStudent(models.ModeCorrectionPass, codeRef),
		Send(models.ModeFirstPass, codeRef),
		Send(models.ModeCorrectionPass, codeRef),
		Verify(codeRef, 7),
		Release(codeRef),
		Export(99),
		KindChoice(models.ModeFirstPass, models.PermanencePermanent),
		KindChoice(models.ModeCorrectionPass, models.PermanenceTemporary),
	}
	for _, data := range cases {
		assert.True(t, Fits(data), data)
		_, err := Parse(data)
		require.NoError(t, err, data)
	}

	action, err := Parse(Page(codeRef, Next, 1))
	require.NoError(t, err)
	assert.Equal(t, KindPage, action.Kind)
	assert.Equal(t, codeRef, action.Ref)
	assert.Equal(t, Next, action.Direction)
	assert.Equal(t, 1, action.Page)

	action, err = Parse(Toggle(42, 3))
	require.NoError(t, err)
	assert.Equal(t, int64(42), action.EntryID)
	assert.Equal(t, 3, action.Page)

	action, err = Parse(Export(99))
	require.NoError(t, err)
	assert.Equal(t, int64(99), action.JobID)
}

func TestRoundTripLegacyRefWithColonInSlot(t *testing.T) {
	data := Verify(legacyRef, 4)
	assert.Equal(t, "verify:Садик_Солнышко:Старшая:10:30:4", data)

	action, err := Parse(data)
	require.NoError(t, err)
	require.NotNil(t, action.Ref.Legacy)
	assert.Equal(t, "Садик Солнышко", action.Ref.Legacy.Location)
	assert.Equal(t, "10:30", action.Ref.Legacy.TimeSlot)
	assert.Equal(t, 4, action.Index)

	action, err = Parse(Page(legacyRef, Prev, 2))
	require.NoError(t, err)
	assert.Equal(t, "10:30", action.Ref.Legacy.TimeSlot)
	assert.Equal(t, Prev, action.Direction)
}

func TestKindChoicesAreModeSpecific(t *testing.T) {
	first, err := Parse(KindChoice(models.ModeFirstPass, models.PermanenceTemporary))
	require.NoError(t, err)
	correction, err := Parse(KindChoice(models.ModeCorrectionPass, models.PermanenceTemporary))
	require.NoError(t, err)

	mode, _ := first.Mode()
	assert.Equal(t, models.ModeFirstPass, mode)
	mode, _ = correction.Mode()
	assert.Equal(t, models.ModeCorrectionPass, mode)
	assert.Equal(t, models.PermanenceTemporary, correction.Permanence)
}

func TestParseRejectsMalformed(t *testing.T) {
	for _, data := range []string{
		"",
		"toggle",
		"toggle:x:1",
		"toggle:1:-1",
		"page:ABCDE12345:up:1",
		"page:ABCDE12345:next",
		"verify:ABCDE12345:x",
		"kind-first:forever",
		"export:0",
		"send-first:nope",
	} {
		_, err := Parse(data)
		assert.Error(t, err, data)
	}

	_, err := Parse("admin_verify:ABCDE12345:1")
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestModeFromActions(t *testing.T) {
	mode, ok := ModeFromActions([]string{Toggle(1, 0), Send(models.ModeCorrectionPass, codeRef)})
	require.True(t, ok)
	assert.Equal(t, models.ModeCorrectionPass, mode)

	mode, ok = ModeFromActions([]string{AddStudent(models.ModeFirstPass, codeRef)})
	require.True(t, ok)
	assert.Equal(t, models.ModeFirstPass, mode)

	_, ok = ModeFromActions([]string{Toggle(1, 0)})
	assert.False(t, ok)
}

func TestIsSend(t *testing.T) {
	assert.True(t, IsSend(Send(models.ModeFirstPass, codeRef)))
	assert.True(t, IsSend(Send(models.ModeCorrectionPass, codeRef)))
	assert.False(t, IsSend(Release(codeRef)))
}

func TestLongestCodeIdentifierFits(t *testing.T) {
	longest := Page(codeRef, Next, 9999)
	assert.True(t, Fits(longest))
	assert.False(t, Fits(strings.Repeat("x", MaxBytes+1)))
}
