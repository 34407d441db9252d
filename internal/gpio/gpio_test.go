package gpio

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var start = time.Date(2026, 7, 1, 6, 0, 0, 0, time.UTC)

func at(ms int) time.Time {
	return start.Add(time.Duration(ms) * time.Millisecond)
}

func TestDebouncerBaseline(t *testing.T) {
	d := NewDebouncer(250 * time.Millisecond)

	assert.Empty(t, d.Process(map[int]bool{17: false, 4: true}, at(0)))
	_, known := d.Stable(17)
	assert.False(t, known)

	assert.Empty(t, d.Process(map[int]bool{17: false, 4: true}, at(100)))

	changes := d.Process(map[int]bool{17: false, 4: true}, at(250))
	assert.Equal(t, []Change{
		{Pin: 4, Value: true, Baseline: true, At: at(250)},
		{Pin: 17, Value: false, Baseline: true, At: at(250)},
	}, changes)

	value, known := d.Stable(4)
	assert.True(t, known)
	assert.True(t, value)
}

func TestDebouncerIgnoresGlitches(t *testing.T) {
	d := NewDebouncer(250 * time.Millisecond)
	d.Process(map[int]bool{17: false}, at(0))
	d.Process(map[int]bool{17: false}, at(300))

	assert.Empty(t, d.Process(map[int]bool{17: true}, at(400)))
	assert.Empty(t, d.Process(map[int]bool{17: false}, at(500)), "glitch cleared")
	assert.Empty(t, d.Process(map[int]bool{17: true}, at(600)))
	assert.Empty(t, d.Process(map[int]bool{17: true}, at(800)))

	changes := d.Process(map[int]bool{17: true}, at(850))
	require.Len(t, changes, 1)
	assert.Equal(t, Change{Pin: 17, Value: true, At: at(850)}, changes[0])

	assert.Empty(t, d.Process(map[int]bool{17: true}, at(2000)), "no repeat while stable")
}

func TestDebouncerRestartsOnBaselineFlap(t *testing.T) {
	d := NewDebouncer(250 * time.Millisecond)
	d.Process(map[int]bool{5: true}, at(0))
	d.Process(map[int]bool{5: false}, at(200))
	assert.Empty(t, d.Process(map[int]bool{5: false}, at(300)))

	changes := d.Process(map[int]bool{5: false}, at(450))
	require.Len(t, changes, 1)
	assert.True(t, changes[0].Baseline)
	assert.False(t, changes[0].Value)
}

func TestDebouncerZeroDurationReportsImmediately(t *testing.T) {
	d := NewDebouncer(0)
	changes := d.Process(map[int]bool{5: true}, at(0))
	require.Len(t, changes, 1)
	assert.True(t, changes[0].Baseline)

	changes = d.Process(map[int]bool{5: false}, at(10))
	require.Len(t, changes, 1)
	assert.False(t, changes[0].Value)
}

func TestFakeReader(t *testing.T) {
	f := NewFakeReader(map[int]bool{1: true}, map[int]bool{1: false})

	levels, err := f.Read()
	require.NoError(t, err)
	assert.True(t, levels[1])

	levels, err = f.Read()
	require.NoError(t, err)
	assert.False(t, levels[1])

	levels, err = f.Read()
	require.NoError(t, err)
	assert.False(t, levels[1], "last sample repeats")
	assert.Equal(t, 3, f.Reads())

	f.ReadError = errors.New("bus error")
	_, err = f.Read()
	assert.Error(t, err)

	require.NoError(t, f.Close())
	assert.True(t, f.Closed)

	_, err = NewFakeReader().Read()
	assert.Error(t, err)
}
