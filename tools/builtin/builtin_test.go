package builtin

import (
	"context"
	"testing"
	"time"

	"github.com/BaSui01/stepflow/tools"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegister(t *testing.T) {
	r := tools.NewRegistry(nil)
	require.NoError(t, Register(r))

	for _, name := range []string{"echo", "word_count", "sleep", "fail"} {
		assert.True(t, r.Has(name), name)
	}
	assert.Error(t, Register(r), "second registration must collide")
}

func TestWordCount(t *testing.T) {
	out, err := WordCount(context.Background(), map[string]any{"text": "one two  three"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"words": 3}, out)

	_, err = WordCount(context.Background(), map[string]any{"text": 3})
	assert.Error(t, err)
}

func TestSleep(t *testing.T) {
	out, err := Sleep(context.Background(), map[string]any{"duration_ms": float64(1)})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"slept_ms": 1}, out)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	_, err = Sleep(ctx, map[string]any{"duration_ms": 10_000})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	_, err = Sleep(context.Background(), map[string]any{"duration_ms": "x"})
	assert.Error(t, err)
}

func TestFail(t *testing.T) {
	_, err := Fail(context.Background(), nil)
	assert.ErrorIs(t, err, ErrForcedFailure)

	_, err = Fail(context.Background(), map[string]any{"message": "boom"})
	assert.ErrorIs(t, err, ErrForcedFailure)
	assert.Contains(t, err.Error(), "boom")
}

func TestEcho(t *testing.T) {
	in := map[string]any{"a": "b"}
	out, err := Echo(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}
