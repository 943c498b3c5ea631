package logsource

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadAll(t *testing.T) {
	input := "first\r\nsecond\n\nlast"
	var got []string
	n, err := ReadAll(context.Background(), strings.NewReader(input), func(number int, line string) error {
		got = append(got, line)
		assert.Equal(t, len(got), number)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, []string{"first", "second", "", "last"}, got)
}

func TestReadAllStopsOnCallbackError(t *testing.T) {
	stop := errors.New("stop")
	n, err := ReadAll(context.Background(), strings.NewReader("a\nb\nc\n"), func(number int, line string) error {
		if number == 2 {
			return stop
		}
		return nil
	})
	assert.Equal(t, stop, err)
	assert.Equal(t, 2, n)
}

func TestReadAllCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := ReadAll(ctx, strings.NewReader("a\n"), func(int, string) error { return nil })
	assert.Equal(t, context.Canceled, err)
}

func TestReadAllCutsOverlongLines(t *testing.T) {
	long := strings.Repeat("x", MaxLineBytes*3)
	input := "first\n" + long + "\nlast\n"

	var got []string
	n, err := ReadAll(context.Background(), strings.NewReader(input), func(_ int, line string) error {
		got = append(got, line)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	require.Len(t, got, 3)
	assert.Equal(t, "first", got[0])
	assert.Len(t, got[1], MaxLineBytes)
	assert.Equal(t, "last", got[2])
}

type collector struct {
	mu    sync.Mutex
	lines []string
}

func (c *collector) add(_ int, line string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = append(c.lines, line)
	return nil
}

func (c *collector) snapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.lines...)
}

func TestFollow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "timing.log")
	require.NoError(t, os.WriteFile(path, []byte("one\ntwo\npart"), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	c := &collector{}
	done := make(chan error, 1)
	go func() {
		done <- Follow(ctx, path, 10*time.Millisecond, c.add)
	}()

	require.Eventually(t, func() bool {
		return len(c.snapshot()) == 2
	}, 5*time.Second, 10*time.Millisecond)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	// Keep the modification time moving between writes.
	time.Sleep(20 * time.Millisecond)
	_, err = f.WriteString("ial\nthree\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.Eventually(t, func() bool {
		return len(c.snapshot()) == 4
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"one", "two", "partial", "three"}, c.snapshot())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Follow did not stop")
	}
}

func TestFollowMissingFile(t *testing.T) {
	err := Follow(context.Background(), filepath.Join(t.TempDir(), "missing.log"), time.Millisecond, func(int, string) error { return nil })
	assert.Error(t, err)
}
