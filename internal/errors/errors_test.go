package errors

import (
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorBuilder(t *testing.T) {
	t.Parallel()

	base := stderrors.New("device busy")
	ee := New(base).
		Component("capture").
		Category(CategoryAudioSource).
		Context("device", "default").
		Build()

	assert.Equal(t, "device busy", ee.Error())
	assert.Equal(t, "capture", ee.Component)
	assert.Equal(t, CategoryAudioSource, ee.Category)
	assert.Equal(t, "default", ee.Context["device"])
	assert.True(t, stderrors.Is(ee, base))
}

func TestNewNilError(t *testing.T) {
	t.Parallel()

	ee := New(nil).Category(CategoryState).Build()
	require.NotNil(t, ee.Err)
	assert.NotEmpty(t, ee.Error())
}

func TestNewf(t *testing.T) {
	t.Parallel()

	ee := Newf("invalid chunk size: %d", 17).Category(CategoryValidation).Build()
	assert.Equal(t, "invalid chunk size: 17", ee.Error())
	assert.Equal(t, CategoryValidation, ee.Category)
}

func TestCategoryMatching(t *testing.T) {
	t.Parallel()

	a := Newf("first").Category(CategoryBuffer).Build()
	b := Newf("second").Category(CategoryBuffer).Build()
	c := Newf("third").Category(CategoryState).Build()

	assert.True(t, a.Is(b), "same category should match")
	assert.False(t, a.Is(c), "different category should not match")
}

func TestDefaultsApplied(t *testing.T) {
	t.Parallel()

	ee := Newf("plain").Build()
	assert.Equal(t, CategoryGeneric, ee.Category)
	assert.NotEmpty(t, ee.Component)
	assert.WithinDuration(t, time.Now(), ee.Timestamp, time.Second)
}

func TestTiming(t *testing.T) {
	t.Parallel()

	ee := Newf("slow").Timing("snapshot", 250*time.Millisecond).Build()
	assert.Equal(t, "snapshot", ee.Context["operation"])
	assert.Equal(t, int64(250), ee.Context["duration_ms"])
}

func TestGetContextIsCopy(t *testing.T) {
	t.Parallel()

	ee := Newf("ctx").Context("k", "v").Build()
	ctx := ee.GetContext()
	ctx["k"] = "mutated"
	assert.Equal(t, "v", ee.Context["k"])
}
