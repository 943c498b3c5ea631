// Package logsource delivers timing log lines from a reader or from a file
// that is still being written.
package logsource

import (
	"bufio"
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/cj123/watcher"
	"github.com/pkg/errors"
)

// DefaultPollInterval is how often Follow checks the file for changes.
const DefaultPollInterval = 250 * time.Millisecond

// MaxLineBytes is the longest line ReadAll delivers. Longer lines are cut to
// this length; the rest of the line is discarded.
const MaxLineBytes = 64 * 1024

// LineFunc receives each line with its 1-based line number. Returning an
// error stops reading.
type LineFunc func(number int, line string) error

// ReadAll hands every line of r to fn and returns how many lines were read.
func ReadAll(ctx context.Context, r io.Reader, fn LineFunc) (int, error) {
	br := bufio.NewReader(r)
	n := 0
	for {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		line, err := readLine(br)
		if err == io.EOF {
			return n, nil
		}
		if err != nil {
			return n, errors.Wrap(err, "reading timing log")
		}
		n++
		if err := fn(n, line); err != nil {
			return n, err
		}
	}
}

func readLine(br *bufio.Reader) (string, error) {
	var b []byte
	for {
		chunk, isPrefix, err := br.ReadLine()
		if err != nil {
			return "", err
		}
		if room := MaxLineBytes - len(b); room > 0 {
			if len(chunk) > room {
				chunk = chunk[:room]
			}
			b = append(b, chunk...)
		}
		if !isPrefix {
			return strings.TrimRight(string(b), "\r"), nil
		}
	}
}

// Follow reads the file at path and keeps delivering lines appended to it
// until ctx is done. A line is delivered once its newline is written. If the
// file shrinks it is read again from the start.
func Follow(ctx context.Context, path string, interval time.Duration, fn LineFunc) error {
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "opening timing log %s", path)
	}
	defer f.Close()

	w := watcher.New()
	w.SetMaxEvents(1)
	w.FilterOps(watcher.Write, watcher.Create)
	if err := w.Add(path); err != nil {
		return errors.Wrapf(err, "watching timing log %s", path)
	}
	defer w.Close()

	t := &tail{f: f, r: bufio.NewReader(f), fn: fn}
	if err := t.drain(); err != nil {
		return err
	}

	started := make(chan error, 1)
	go func() {
		started <- w.Start(interval)
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-w.Event:
			if err := t.drain(); err != nil {
				return err
			}
		case err := <-w.Error:
			return errors.Wrapf(err, "watching timing log %s", path)
		case err := <-started:
			if err != nil {
				return errors.Wrap(err, "starting watcher")
			}
		case <-w.Closed:
			return nil
		}
	}
}

type tail struct {
	f       *os.File
	r       *bufio.Reader
	fn      LineFunc
	offset  int64
	partial string
	lines   int
}

func (t *tail) drain() error {
	if err := t.rewindIfTruncated(); err != nil {
		return err
	}
	for {
		chunk, err := t.r.ReadString('\n')
		t.offset += int64(len(chunk))
		if err == io.EOF {
			t.partial += chunk
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "reading timing log")
		}

		line := strings.TrimRight(t.partial+chunk, "\r\n")
		t.partial = ""
		t.lines++
		if err := t.fn(t.lines, line); err != nil {
			return err
		}
	}
}

func (t *tail) rewindIfTruncated() error {
	info, err := t.f.Stat()
	if err != nil {
		return errors.Wrap(err, "stat timing log")
	}
	if info.Size() >= t.offset {
		return nil
	}
	if _, err := t.f.Seek(0, io.SeekStart); err != nil {
		return errors.Wrap(err, "rewinding timing log")
	}
	t.r.Reset(t.f)
	t.offset = 0
	t.partial = ""
	t.lines = 0
	return nil
}
