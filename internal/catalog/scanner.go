package catalog

import (
	"context"
	"crypto/sha1"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/goopsie/pixcodec/pkg/arbiter"
	"github.com/goopsie/pixcodec/pkg/container"
	"github.com/goopsie/pixcodec/pkg/expand"
	"github.com/goopsie/pixcodec/pkg/pixel"
)

// sidecarSuffixes mark files that only exist to describe a sibling.
var sidecarSuffixes = []string{".meta", ".palette", ".pal"}

// Stats counts what a scan did.
type Stats struct {
	Scanned   int64
	Decoded   int64
	Unchanged int64
	Unmatched int64
	Failed    int64
}

// Scanner walks a directory and records every file the registry can decode.
type Scanner struct {
	db      *DB
	reg     *arbiter.Registry
	logger  *log.Logger
	workers int
	maxSize int
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithWorkers sets how many files are decoded at once.
func WithWorkers(n int) Option {
	return func(s *Scanner) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithMaxSize skips files larger than n bytes.
func WithMaxSize(n int) Option {
	return func(s *Scanner) {
		s.maxSize = n
	}
}

// NewScanner returns a Scanner storing into db. A nil logger discards output.
func NewScanner(db *DB, reg *arbiter.Registry, logger *log.Logger, opts ...Option) *Scanner {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	s := &Scanner{
		db:      db,
		reg:     reg,
		logger:  logger,
		workers: 10,
		maxSize: 64 << 20,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func isSidecar(name string) bool {
	lower := strings.ToLower(name)
	for _, suffix := range sidecarSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return true
		}
	}
	return false
}

func (s *Scanner) findFiles(ctx context.Context, dir *container.Dir) (<-chan string, <-chan error) {
	out := make(chan string)
	errc := make(chan error, 1)
	go func() {
		defer close(out)
		defer close(errc)
		errc <- dir.Walk(func(name string) error {
			if isSidecar(name) {
				return nil
			}
			select {
			case out <- name:
			case <-ctx.Done():
				return errors.New("walk cancelled")
			}
			return nil
		})
	}()
	return out, errc
}

func (s *Scanner) fileWorker(ctx context.Context, dir *container.Dir, in <-chan string, stats *Stats) <-chan error {
	errc := make(chan error, 1)
	go func() {
		defer close(errc)
		for name := range in {
			if err := s.scanFile(ctx, dir, name, stats); err != nil {
				errc <- err
				return
			}
		}
	}()
	return errc
}

func (s *Scanner) scanFile(ctx context.Context, dir *container.Dir, name string, stats *Stats) error {
	data, err := dir.ReadFile(name)
	if err != nil {
		return err
	}
	if len(data) > s.maxSize {
		return nil
	}
	atomic.AddInt64(&stats.Scanned, 1)

	sha := fmt.Sprintf("%X", sha1.Sum(data))
	prev, err := s.db.Lookup(name)
	if err != nil {
		return err
	}
	if prev != nil && prev.SHA1 == sha {
		atomic.AddInt64(&stats.Unchanged, 1)
		return nil
	}

	entry := Entry{Path: name, SHA1: sha}
	if e, ok := expand.Sniff(data); ok {
		if raw, err := e.Expand(data, 0); err == nil {
			data = raw
			entry.Expander = fmt.Sprint(e)
		} else {
			s.logger.Printf("Cannot expand \"%s\": %v\n", name, err)
		}
	}

	img, adapter, err := s.reg.Dispatch(ctx, &arbiter.Request{
		Name:        name,
		Data:        data,
		Full:        true,
		Palettes:    dir,
		FindSibling: dir.FindSibling,
	})
	switch {
	case errors.Is(err, arbiter.ErrNoCandidate):
		atomic.AddInt64(&stats.Unmatched, 1)
		s.logger.Printf("No match for \"%s\"\n", name)
		return nil
	case ctx.Err() != nil:
		return ctx.Err()
	case err != nil:
		atomic.AddInt64(&stats.Failed, 1)
		s.logger.Printf("Cannot decode \"%s\": %v\n", name, err)
		return nil
	}

	entry.Adapter = adapter
	entry.Width, entry.Height = img.Width, img.Height
	entry.Format, _ = img.Props.String(pixel.PropImageFormat)
	entry.Mipmaps, _ = img.Props.Int(pixel.PropMipmapCount)
	entry.Frames = len(pixel.Frames(img))
	if err := s.db.Put(entry); err != nil {
		return err
	}
	atomic.AddInt64(&stats.Decoded, 1)
	return nil
}

// Scan decodes every file under root with full frame decoding and stores the results.
// Files whose contents have not changed since the last scan are skipped.
func (s *Scanner) Scan(ctx context.Context, root string) (Stats, error) {
	var stats Stats
	if err := ctx.Err(); err != nil {
		return stats, err
	}
	dir, err := container.Open(root)
	if err != nil {
		return stats, err
	}

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	files, errc := s.findFiles(ctx, dir)
	errcList := []<-chan error{errc}
	for i := 0; i < s.workers; i++ {
		errcList = append(errcList, s.fileWorker(ctx, dir, files, &stats))
	}

	err = waitForPipeline(cancelFunc, errcList...)
	return stats, err
}

// waitForPipeline returns the first error and cancels the rest of the pipeline.
func waitForPipeline(cancel context.CancelFunc, errs ...<-chan error) error {
	var first error
	for err := range mergeErrors(errs...) {
		if err != nil && first == nil {
			first = err
			cancel()
		}
	}
	return first
}

func mergeErrors(cs ...<-chan error) <-chan error {
	var wg sync.WaitGroup
	out := make(chan error, len(cs))
	wg.Add(len(cs))
	for _, c := range cs {
		go func(c <-chan error) {
			for n := range c {
				out <- n
			}
			wg.Done()
		}(c)
	}
	go func() {
		wg.Wait()
		close(out)
	}()
	return out
}
