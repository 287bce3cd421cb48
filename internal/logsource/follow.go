package logsource

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"opsagent/internal/logger"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/time/rate"
)

// pollInterval rereads the file even without a watch event, covering
// filesystems where notifications are unreliable.
const pollInterval = 2 * time.Second

// headSize is how much of the file start is remembered to notice a file that
// was truncated and then grew past the old offset between two reads.
const headSize = 256

type FollowOptions struct {
	// Interval is the minimum spacing between batches; zero disables limiting.
	Interval time.Duration
	Burst    int
	// BatchLines caps the lines handed out per batch.
	BatchLines int
	// FromStart replays existing content instead of starting at the end.
	FromStart bool
}

// Follower tails a log file. Appended complete lines become batches; a file that
// was replaced, shrank or had its head rewritten is reread from the beginning.
type Follower struct {
	path    string
	opts    FollowOptions
	watcher *fsnotify.Watcher
	limiter *rate.Limiter

	offset  int64
	ident   os.FileInfo
	head    []byte
	partial string
	pending []string
	batchNo int
}

func Follow(path string, opts FollowOptions) (*Follower, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if opts.BatchLines <= 0 {
		opts.BatchLines = DefaultBatchLines
	}
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	limit := rate.Inf
	if opts.Interval > 0 {
		limit = rate.Every(opts.Interval)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("follow %s: %w", path, err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("follow %s: watch dir: %w", path, err)
	}
	f := &Follower{
		path:    filepath.Clean(abs),
		opts:    opts,
		watcher: watcher,
		limiter: rate.NewLimiter(limit, opts.Burst),
	}
	if !opts.FromStart {
		if file, err := os.Open(abs); err == nil {
			if st, err := file.Stat(); err == nil {
				f.offset = st.Size()
				f.ident = st
				f.remember(file)
			}
			file.Close()
		}
	}
	return f, nil
}

func (f *Follower) Path() string { return f.path }

func (f *Follower) Close() error {
	return f.watcher.Close()
}

// Next blocks until at least one new complete line is available or ctx is done.
func (f *Follower) Next(ctx context.Context) (Batch, error) {
	for {
		if len(f.pending) == 0 {
			if err := f.drain(); err != nil {
				return Batch{}, err
			}
		}
		if len(f.pending) > 0 {
			if err := f.limiter.Wait(ctx); err != nil {
				return Batch{}, err
			}
			n := f.opts.BatchLines
			if n > len(f.pending) {
				n = len(f.pending)
			}
			f.batchNo++
			b := Batch{
				Label: fmt.Sprintf("%s#%d", filepath.Base(f.path), f.batchNo),
				Lines: append([]string(nil), f.pending[:n]...),
			}
			f.pending = f.pending[n:]
			return b, nil
		}

		select {
		case <-ctx.Done():
			return Batch{}, ctx.Err()
		case ev, ok := <-f.watcher.Events:
			if !ok {
				return Batch{}, io.EOF
			}
			if filepath.Clean(ev.Name) != f.path {
				continue
			}
			if ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				f.reset()
			}
		case err, ok := <-f.watcher.Errors:
			if !ok {
				return Batch{}, io.EOF
			}
			logger.Warnf("logsource: watch %s: %v", f.path, err)
		case <-time.After(pollInterval):
		}
	}
}

func (f *Follower) reset() {
	f.offset = 0
	f.head = nil
	f.partial = ""
}

// remember keeps up to headSize bytes of the already consumed file start.
func (f *Follower) remember(file *os.File) {
	n := f.offset
	if n > headSize {
		n = headSize
	}
	if int64(len(f.head)) >= n {
		return
	}
	buf := make([]byte, n)
	read, _ := file.ReadAt(buf, 0)
	f.head = buf[:read]
}

func (f *Follower) sameHead(file *os.File) bool {
	if len(f.head) == 0 {
		return true
	}
	buf := make([]byte, len(f.head))
	n, _ := file.ReadAt(buf, 0)
	return n == len(buf) && bytes.Equal(buf, f.head)
}

// drain reads everything appended since the last call into pending.
func (f *Follower) drain() error {
	file, err := os.Open(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("follow %s: %w", f.path, err)
	}
	defer file.Close()

	st, err := file.Stat()
	if err != nil {
		return fmt.Errorf("follow %s: %w", f.path, err)
	}
	switch {
	case f.ident != nil && !os.SameFile(f.ident, st):
		logger.Infof("logsource: %s replaced, rereading from start", f.path)
		f.reset()
	case st.Size() < f.offset:
		logger.Infof("logsource: %s truncated, rereading from start", f.path)
		f.reset()
	case !f.sameHead(file):
		logger.Infof("logsource: %s rewritten, rereading from start", f.path)
		f.reset()
	}
	f.ident = st
	if st.Size() == f.offset {
		return nil
	}
	if _, err := file.Seek(f.offset, io.SeekStart); err != nil {
		return fmt.Errorf("follow %s: %w", f.path, err)
	}
	chunk, err := io.ReadAll(file)
	if err != nil {
		return fmt.Errorf("follow %s: %w", f.path, err)
	}
	f.offset += int64(len(chunk))
	f.remember(file)

	parts := strings.Split(f.partial+string(chunk), "\n")
	f.partial = parts[len(parts)-1]
	for _, line := range parts[:len(parts)-1] {
		f.pending = append(f.pending, strings.TrimRight(line, "\r"))
	}
	return nil
}
