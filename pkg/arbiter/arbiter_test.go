package arbiter

import (
	"bytes"
	"context"
	"errors"
	"log"
	"testing"

	"github.com/goopsie/pixcodec/pkg/cursor"
	"github.com/goopsie/pixcodec/pkg/pixel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixed(n int) ScoreFunc {
	return func(*cursor.Cursor, Hints) (int, error) { return n, nil }
}

func decodeTo(w int) DecodeFunc {
	return func(context.Context, *cursor.Cursor, *Request) Result {
		img, _ := pixel.New(w, 1)
		return Ok(img)
	}
}

func mustRegister(t *testing.T, r *Registry, cs ...Candidate) {
	t.Helper()
	for _, c := range cs {
		require.NoError(t, r.Register(c))
	}
}

func TestSelectTieGoesToFirst(t *testing.T) {
	for _, n := range []int{1, 4} {
		r := New(WithConcurrency(n))
		mustRegister(t, r,
			Candidate{Name: "a", Score: fixed(10), Decode: decodeTo(1)},
			Candidate{Name: "b", Score: fixed(25), Decode: decodeTo(2)},
			Candidate{Name: "c", Score: fixed(25), Decode: decodeTo(3)},
		)

		c, probes, err := r.Select(context.Background(), []byte{0}, Hints{})
		require.NoError(t, err)
		assert.Equal(t, "b", c.Name)
		require.Len(t, probes, 3)
		assert.Equal(t, []State{Rejected, Selected, Rejected},
			[]State{probes[0].State, probes[1].State, probes[2].State})
	}
}

func TestZeroNeverWins(t *testing.T) {
	r := New()
	mustRegister(t, r,
		Candidate{Name: "zero", Score: fixed(0), Decode: decodeTo(1)},
		Candidate{Name: "negative", Score: fixed(-5), Decode: decodeTo(1)},
		Candidate{Name: "error", Score: func(*cursor.Cursor, Hints) (int, error) {
			return 50, errors.New("broken")
		}, Decode: decodeTo(1)},
		Candidate{Name: "panic", Score: func(*cursor.Cursor, Hints) (int, error) {
			panic("boom")
		}, Decode: decodeTo(1)},
	)

	_, probes, err := r.Select(context.Background(), nil, Hints{})
	assert.ErrorIs(t, err, ErrNoCandidate)
	for _, p := range probes {
		assert.Equal(t, 0, p.Score, p.Candidate)
		assert.Equal(t, Rejected, p.State, p.Candidate)
	}
	assert.Error(t, probes[2].Err)
	assert.Error(t, probes[3].Err)
}

func TestScorersGetFreshCursor(t *testing.T) {
	var seen []int
	consume := func(c *cursor.Cursor, _ Hints) (int, error) {
		seen = append(seen, c.Pos())
		_, err := c.Read(2)
		return 1, err
	}
	r := New()
	mustRegister(t, r,
		Candidate{Name: "a", Score: consume, Decode: decodeTo(1)},
		Candidate{Name: "b", Score: consume, Decode: decodeTo(1)},
	)
	_, _, err := r.Select(context.Background(), []byte{1, 2, 3}, Hints{})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 0}, seen)
}

func TestDispatchFallsThroughNotApplicable(t *testing.T) {
	r := New()
	mustRegister(t, r,
		Candidate{Name: "low", Score: fixed(5), Decode: decodeTo(7)},
		Candidate{Name: "high", Score: fixed(90), Decode: func(context.Context, *cursor.Cursor, *Request) Result {
			return Skip()
		}},
		Candidate{Name: "none", Score: fixed(0), Decode: decodeTo(9)},
	)

	img, name, err := r.Dispatch(context.Background(), &Request{Name: "x.bin", Data: []byte{1}})
	require.NoError(t, err)
	assert.Equal(t, "low", name)
	assert.Equal(t, 7, img.Width)
}

func TestDispatchFailure(t *testing.T) {
	cause := &pixel.TruncatedDataError{Need: 4, Have: 1}
	r := New()
	mustRegister(t, r, Candidate{Name: "bad", Score: fixed(1), Decode: func(context.Context, *cursor.Cursor, *Request) Result {
		return Fail(cause)
	}})

	_, name, err := r.Dispatch(context.Background(), &Request{Data: []byte{1}})
	assert.Equal(t, "bad", name)
	var trunc *pixel.TruncatedDataError
	assert.True(t, errors.As(err, &trunc))
}

func TestDispatchNothingApplies(t *testing.T) {
	r := New()
	mustRegister(t, r, Candidate{Name: "skip", Score: fixed(3), Decode: func(context.Context, *cursor.Cursor, *Request) Result {
		return Skip()
	}})
	_, _, err := r.Dispatch(context.Background(), &Request{Data: []byte{1}})
	assert.ErrorIs(t, err, ErrNoCandidate)
}

func TestDispatchCancelled(t *testing.T) {
	r := New()
	mustRegister(t, r, Candidate{Name: "a", Score: fixed(3), Decode: decodeTo(1)})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := r.Dispatch(ctx, &Request{Data: []byte{1}})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRegisterValidation(t *testing.T) {
	r := New()
	assert.Error(t, r.Register(Candidate{Name: "a"}))
	require.NoError(t, r.Register(Candidate{Name: "a", Score: fixed(1), Decode: decodeTo(1)}))
	assert.Error(t, r.Register(Candidate{Name: "a", Score: fixed(1), Decode: decodeTo(1)}))

	_, ok := r.Lookup("a")
	assert.True(t, ok)
	assert.Len(t, r.Candidates(), 1)
}

func TestLoggerReceivesSelection(t *testing.T) {
	var buf bytes.Buffer
	logger := log.New(&buf, "", 0)
	r := New(WithLogger(logger))
	mustRegister(t, r, Candidate{Name: "only", Score: fixed(2), Decode: decodeTo(1)})

	_, _, err := r.Dispatch(context.Background(), &Request{Name: "f.tex", Data: []byte{1}})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "selected only")
	assert.Contains(t, buf.String(), "decoded by only")
}

func TestRater(t *testing.T) {
	var r Rater
	r.Require(true, 10).Add(false, 5).Add(true, 3)
	assert.Equal(t, 13, r.Score())

	called := false
	var failed Rater
	failed.Require(false, 10).Add(true, 5).Check(func() bool { called = true; return true }, 1)
	assert.True(t, failed.Failed())
	assert.Equal(t, 0, failed.Score())
	assert.False(t, called)
}

func TestHintsFor(t *testing.T) {
	h := HintsFor("dir/Tex.DDS", 12)
	assert.Equal(t, ".dds", h.Ext)
	assert.Equal(t, 12, h.Size)
}
