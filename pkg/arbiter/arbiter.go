/*
Package arbiter picks a decoder for an unidentified byte stream.

Every registered Candidate scores the same bytes through its own cursor. The highest
positive score wins and ties go to the candidate registered first. Dispatch then runs the
decoders in score order until one of them reports a decoded image.
*/
package arbiter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/goopsie/pixcodec/pkg/cursor"
	"github.com/goopsie/pixcodec/pkg/pixel"
	"golang.org/x/sync/errgroup"
)

// ErrNoCandidate is returned when no candidate scores above zero or every decoder declines.
var ErrNoCandidate = errors.New("no candidate accepts the data")

// Hints carries what is known about the data besides its bytes.
type Hints struct {
	Name string
	Ext  string // lower case, with the leading dot
	Size int

	// Sibling, when set, resolves resources stored next to the data.
	Sibling pixel.FindSibling
}

// HintsFor derives hints from a file name and size.
func HintsFor(name string, size int) Hints {
	return Hints{Name: name, Ext: strings.ToLower(filepath.Ext(name)), Size: size}
}

// ScoreFunc rates how likely it is that the cursor holds data the candidate understands.
// The cursor starts at offset 0 and belongs to the call. Errors, panics and negative values
// count as zero.
type ScoreFunc func(c *cursor.Cursor, h Hints) (int, error)

// DecodeFunc decodes the request data.
type DecodeFunc func(ctx context.Context, c *cursor.Cursor, req *Request) Result

// Candidate pairs a scorer with its decoder.
type Candidate struct {
	Name   string
	Score  ScoreFunc
	Decode DecodeFunc
}

// Request is one decode call.
type Request struct {
	Name string
	Data []byte

	// Full asks for every frame and mip level instead of just the first.
	Full bool

	// Palettes supplies external palettes for formats that store none.
	Palettes pixel.PaletteProvider

	// FindSibling resolves neighbouring resources such as metadata files.
	FindSibling pixel.FindSibling
}

// Hints returns the request's hints.
func (r *Request) Hints() Hints {
	h := HintsFor(r.Name, len(r.Data))
	h.Sibling = r.FindSibling
	return h
}

// Status reports how a decode attempt ended.
type Status int

const (
	Decoded Status = iota
	NotApplicable
	Failed
)

func (s Status) String() string {
	switch s {
	case Decoded:
		return "decoded"
	case NotApplicable:
		return "not applicable"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Result is the outcome of a DecodeFunc.
type Result struct {
	Status Status
	Image  *pixel.Image
	Err    error
}

// Ok wraps a decoded image.
func Ok(img *pixel.Image) Result { return Result{Status: Decoded, Image: img} }

// Skip reports that the data is not for this decoder after all.
func Skip() Result { return Result{Status: NotApplicable} }

// Fail reports a decode error.
func Fail(err error) Result { return Result{Status: Failed, Err: err} }

// State is a candidate's position in the arbitration.
type State int

const (
	Idle State = iota
	Scoring
	Selected
	Rejected
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Scoring:
		return "scoring"
	case Selected:
		return "selected"
	case Rejected:
		return "rejected"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Probe records one candidate's score.
type Probe struct {
	Candidate string
	State     State
	Score     int
	Err       error
}

// Registry holds candidates in registration order.
type Registry struct {
	candidates  []Candidate
	logger      *log.Logger
	concurrency int
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger used while scoring and dispatching.
func WithLogger(l *log.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithConcurrency scores up to n candidates at once. The selection is the same as with
// sequential scoring.
func WithConcurrency(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// New returns an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		logger:      log.New(io.Discard, "", 0),
		concurrency: 1,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register appends a candidate. Names must be unique.
func (r *Registry) Register(c Candidate) error {
	if c.Name == "" || c.Score == nil || c.Decode == nil {
		return fmt.Errorf("register %q: name, score and decode are required", c.Name)
	}
	for _, existing := range r.candidates {
		if existing.Name == c.Name {
			return fmt.Errorf("register %q: duplicate candidate", c.Name)
		}
	}
	r.candidates = append(r.candidates, c)
	return nil
}

// Candidates returns the registered candidates in registration order.
func (r *Registry) Candidates() []Candidate {
	out := make([]Candidate, len(r.candidates))
	copy(out, r.candidates)
	return out
}

// Lookup finds a candidate by name.
func (r *Registry) Lookup(name string) (Candidate, bool) {
	for _, c := range r.candidates {
		if c.Name == name {
			return c, true
		}
	}
	return Candidate{}, false
}

func score(c Candidate, data []byte, h Hints) (n int, err error) {
	defer func() {
		if p := recover(); p != nil {
			n, err = 0, fmt.Errorf("score %s: panic: %v", c.Name, p)
		}
	}()
	n, err = c.Score(cursor.New(data), h)
	if err != nil {
		return 0, fmt.Errorf("score %s: %w", c.Name, err)
	}
	if n < 0 {
		return 0, nil
	}
	return n, nil
}

// Rank scores every candidate against data and returns one probe per candidate in
// registration order. The winner's probe is Selected, all others Rejected. When no score is
// above zero every probe is Rejected.
func (r *Registry) Rank(ctx context.Context, data []byte, h Hints) ([]Probe, error) {
	probes := make([]Probe, len(r.candidates))
	for i, c := range r.candidates {
		probes[i] = Probe{Candidate: c.Name, State: Idle}
	}

	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i := range r.candidates {
		i := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			mu.Lock()
			probes[i].State = Scoring
			mu.Unlock()

			n, err := score(r.candidates[i], data, h)

			mu.Lock()
			probes[i].Score, probes[i].Err = n, err
			mu.Unlock()
			if err != nil {
				r.logger.Printf("%s: %v", h.Name, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	best := -1
	for i := range probes {
		probes[i].State = Rejected
		if probes[i].Score > 0 && (best < 0 || probes[i].Score > probes[best].Score) {
			best = i
		}
	}
	if best >= 0 {
		probes[best].State = Selected
	}
	return probes, nil
}

// Select returns the winning candidate for data.
func (r *Registry) Select(ctx context.Context, data []byte, h Hints) (Candidate, []Probe, error) {
	probes, err := r.Rank(ctx, data, h)
	if err != nil {
		return Candidate{}, nil, err
	}
	for i, p := range probes {
		if p.State == Selected {
			r.logger.Printf("%s: selected %s with score %d", h.Name, p.Candidate, p.Score)
			return r.candidates[i], probes, nil
		}
	}
	return Candidate{}, probes, ErrNoCandidate
}

// Dispatch decodes req with the best candidate. A decoder returning NotApplicable passes
// the request to the next positive scorer. The name of the candidate that decoded the data
// is returned with the image.
func (r *Registry) Dispatch(ctx context.Context, req *Request) (*pixel.Image, string, error) {
	h := req.Hints()
	probes, err := r.Rank(ctx, req.Data, h)
	if err != nil {
		return nil, "", err
	}

	order := make([]int, 0, len(probes))
	for i, p := range probes {
		if p.State == Selected {
			r.logger.Printf("%s: selected %s with score %d", h.Name, p.Candidate, p.Score)
		}
		if p.Score > 0 {
			order = append(order, i)
		}
	}
	sort.SliceStable(order, func(a, b int) bool {
		return probes[order[a]].Score > probes[order[b]].Score
	})

	for _, i := range order {
		if err := ctx.Err(); err != nil {
			return nil, "", err
		}
		c := r.candidates[i]
		res := c.Decode(ctx, cursor.New(req.Data), req)
		switch res.Status {
		case Decoded:
			r.logger.Printf("%s: decoded by %s", h.Name, c.Name)
			return res.Image, c.Name, nil
		case NotApplicable:
			r.logger.Printf("%s: %s not applicable, trying next", h.Name, c.Name)
		default:
			return nil, c.Name, fmt.Errorf("decode %s with %s: %w", h.Name, c.Name, res.Err)
		}
	}
	return nil, "", ErrNoCandidate
}
