package chm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWindowCopyMatch(t *testing.T) {
	w, err := newSlidingWindow(0x8000)
	require.NoError(t, err)

	for _, b := range []byte("abcd") {
		w.writeByte(b)
	}
	out, err := w.copyMatch(4, 3, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), out)
}

func TestWindowSelfExtendingMatch(t *testing.T) {
	w, err := newSlidingWindow(0x8000)
	require.NoError(t, err)

	w.writeByte('x')
	w.writeByte('y')
	// length > distance replays the bytes the copy itself produces.
	out, err := w.copyMatch(2, 7, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte("xyxyxyx"), out)
}

func TestWindowMatchBehindHistoryFails(t *testing.T) {
	w, err := newSlidingWindow(0x8000)
	require.NoError(t, err)
	w.writeByte('a')

	_, err = w.copyMatch(2, 1, nil)
	var ime *InvalidMatchError
	require.ErrorAs(t, err, &ime)
	assert.Equal(t, 2, ime.Distance)

	_, err = w.copyMatch(0, 1, nil)
	assert.ErrorAs(t, err, &ime)
}

func TestWindowReset(t *testing.T) {
	w, err := newSlidingWindow(0x8000)
	require.NoError(t, err)
	for i := 0; i < 100; i++ {
		w.writeByte(byte(i))
	}
	w.reset()

	assert.Equal(t, 0, w.pos)
	assert.Equal(t, 0, w.filled)
	_, err = w.copyMatch(1, 1, nil)
	assert.Error(t, err)
}

func TestWindowRejectsBadSize(t *testing.T) {
	_, err := newSlidingWindow(12345)
	assert.ErrorIs(t, err, ErrWindowTooSmall)
}

func TestWindowWrapAround(t *testing.T) {
	w, err := newSlidingWindow(0x8000)
	require.NoError(t, err)

	for i := 0; i < 0x8000+16; i++ {
		w.writeByte(byte(i % 251))
	}
	assert.Equal(t, 0x8000, w.filled)

	out, err := w.copyMatch(0x8000, 4, nil)
	require.NoError(t, err)
	want := []byte{byte(16 % 251), byte(17 % 251), byte(18 % 251), byte(19 % 251)}
	assert.Equal(t, want, out)
}
