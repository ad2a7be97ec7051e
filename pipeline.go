// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package flowq

import (
	"fmt"
	"iter"
	"slices"
	"sync"
)

// Pipeline is an ordered chain of stages, each a pool of Nk workers reading
// one CBQ and writing the next, plus the set of tasks the pipeline has
// spawned to run them.
//
// A Pipeline is created empty by NewPipeline and mutated only by its
// builder methods (FromSlice, FromFunc, ChainWorkers, Map, Filter, Sort,
// Fold, Tee), each of which returns the receiver for fluent chaining. It
// is not safe to call builder methods concurrently with each other, with
// All, or with Join on the same Pipeline — exactly one goroutine should
// own a Pipeline's construction and consumption, per spec.
//
// Misuse the builder detects at the call site — FromSlice/FromFunc on a
// pipeline that already has a source, WithQueueSize combined with
// WithOutput, or extending/iterating a pipeline whose tail was already
// consumed — panics with an error satisfying errors.Is(err, ErrMisuse),
// the same way the queue family this package descends from panics on
// invalid Builder configuration (e.g. lfq.New panicking on capacity < 2).
type Pipeline[T any] struct {
	mu      sync.Mutex
	wg      sync.WaitGroup
	results []taskResult

	hasSource bool
	consumed  bool
	tail      *CBQ[T]

	stageCount int
	stages     []stageInfo[T]

	logger *Logger
}

type taskResult struct {
	label string
	err   error
}

type stageInfo[T any] struct {
	label   string
	workers int
	term    *stageTerminator[T]
}

// StageStats is a read-only snapshot of one stage's shape and progress,
// returned by Pipeline.Stats.
type StageStats struct {
	Index   int
	Label   string
	Workers int
	Pending int64
}

type pipelineConfig struct {
	logger *Logger
}

// PipelineOption configures a Pipeline at construction time.
type PipelineOption func(*pipelineConfig)

// WithLogger installs a lifecycle logger (see [Logger], [NewLogger]). The
// default is a fully discarded logger: lifecycle logging is opt-in.
func WithLogger(l *Logger) PipelineOption {
	return func(c *pipelineConfig) { c.logger = l }
}

// NewPipeline creates an empty pipeline carrying items of type T.
func NewPipeline[T any](opts ...PipelineOption) *Pipeline[T] {
	cfg := pipelineConfig{logger: defaultLogger()}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Pipeline[T]{logger: cfg.logger}
}

// stageConfig collects the options common to every stage-adding builder
// method: an optional externally supplied output queue, an optional
// output queue capacity, and (for ChainWorkers/Map/Filter) an exception
// handler.
type stageConfig[T any] struct {
	qOut       *CBQ[T]
	maxsize    int
	maxsizeSet bool
	handler    ExceptionHandler[T]
}

// StageOption configures a single stage added by ChainWorkers, Map,
// Filter, Sort, or Tee.
type StageOption[T any] func(*stageConfig[T])

// WithOutput supplies the stage's output queue explicitly, instead of
// having one created with the default or WithQueueSize capacity. Mutually
// exclusive with WithQueueSize.
func WithOutput[T any](q *CBQ[T]) StageOption[T] {
	return func(c *stageConfig[T]) { c.qOut = q }
}

// WithQueueSize overrides a stage's default output queue capacity
// (2 * workers). Mutually exclusive with WithOutput.
func WithQueueSize[T any](n int) StageOption[T] {
	return func(c *stageConfig[T]) { c.maxsize, c.maxsizeSet = n, true }
}

// WithExceptionHandler overrides a ChainWorkers/Map/Filter stage's
// exception handler. The default is Raise.
func WithExceptionHandler[T any](h ExceptionHandler[T]) StageOption[T] {
	return func(c *stageConfig[T]) { c.handler = h }
}

func resolveStageConfig[T any](opts []StageOption[T]) stageConfig[T] {
	var cfg stageConfig[T]
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.qOut != nil && cfg.maxsizeSet {
		panic(fmt.Errorf("%w: WithQueueSize and WithOutput are mutually exclusive", ErrMisuse))
	}
	return cfg
}

func (c stageConfig[T]) queueFor(nWorkers int) *CBQ[T] {
	if c.qOut != nil {
		return c.qOut
	}
	size := 2 * nWorkers
	if c.maxsizeSet {
		size = c.maxsize
	}
	return NewCBQ[T](size)
}

// spawn runs fn as one of the pipeline's tasks, recording its result
// (success or failure) for Join.
func (p *Pipeline[T]) spawn(label string, fn func() error) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		err := fn()
		p.mu.Lock()
		p.results = append(p.results, taskResult{label: label, err: err})
		p.mu.Unlock()
	}()
}

// FromSlice adds a source stage with nWorkers concurrent pushers sharing
// items, pushing every element of items into a new output queue, then
// exiting. Panics with ErrMisuse if the pipeline already has a source.
func (p *Pipeline[T]) FromSlice(items []T, nWorkers int, opts ...StageOption[T]) *Pipeline[T] {
	return p.fromSeq(slices.Values(items), nWorkers, opts...)
}

// FromFunc is FromSlice for an arbitrary iter.Seq[T], e.g. a lazily
// generated or unbounded sequence.
func (p *Pipeline[T]) FromFunc(seq iter.Seq[T], nWorkers int, opts ...StageOption[T]) *Pipeline[T] {
	return p.fromSeq(seq, nWorkers, opts...)
}

func (p *Pipeline[T]) fromSeq(seq iter.Seq[T], nWorkers int, opts ...StageOption[T]) *Pipeline[T] {
	p.mu.Lock()
	if p.hasSource {
		p.mu.Unlock()
		panic(fmt.Errorf("%w: FromSlice/FromFunc: pipeline already has a source", ErrMisuse))
	}
	if p.consumed {
		p.mu.Unlock()
		panic(fmt.Errorf("%w: FromSlice/FromFunc: pipeline tail already consumed", ErrMisuse))
	}
	cfg := resolveStageConfig[T](opts)
	qOut := cfg.queueFor(nWorkers)
	p.hasSource = true
	stageIdx := p.stageCount
	p.stageCount++
	term := newStageTerminator[T](nWorkers, qOut)
	label := fmt.Sprintf("stage[%d]:source", stageIdx)
	p.stages = append(p.stages, stageInfo[T]{label: label, workers: nWorkers, term: term})
	p.tail = qOut
	p.mu.Unlock()

	next, stop := iter.Pull(seq)
	var pullMu sync.Mutex

	p.logStageStart(stageIdx, nWorkers)
	for i := 0; i < nWorkers; i++ {
		p.spawn(fmt.Sprintf("%s/worker[%d]", label, i), func() error {
			defer term.workerDone()
			for {
				pullMu.Lock()
				item, ok := next()
				pullMu.Unlock()
				if !ok {
					return nil
				}
				if err := qOut.Put(item); err != nil {
					return err
				}
			}
		})
	}
	p.spawn(label+"/terminator", func() error {
		term.run()
		stop()
		p.logStageClosed(stageIdx)
		return nil
	})
	return p
}

// ChainWorkers adds a stage of nWorkers workers running f(item) against
// the current tail queue, writing to a new or supplied output queue.
// Panics with ErrMisuse if the tail has already been consumed.
func (p *Pipeline[T]) ChainWorkers(f MapFunc[T], nWorkers int, opts ...StageOption[T]) *Pipeline[T] {
	p.mu.Lock()
	if p.consumed || p.tail == nil {
		p.mu.Unlock()
		panic(fmt.Errorf("%w: ChainWorkers: pipeline has no usable tail queue", ErrMisuse))
	}
	qIn := p.tail
	cfg := resolveStageConfig[T](opts)
	qOut := cfg.queueFor(nWorkers)
	handler := cfg.handler
	if handler == nil {
		handler = Raise[T]()
	}
	stageIdx := p.stageCount
	p.stageCount++
	term := newStageTerminator[T](nWorkers, qOut)
	label := fmt.Sprintf("stage[%d]:workers", stageIdx)
	p.stages = append(p.stages, stageInfo[T]{label: label, workers: nWorkers, term: term})
	p.tail = qOut
	p.mu.Unlock()

	p.logStageStart(stageIdx, nWorkers)
	for i := 0; i < nWorkers; i++ {
		p.spawn(fmt.Sprintf("%s/worker[%d]", label, i), func() error {
			err := runWorker(qIn, qOut, f, handler, term)
			if err != nil {
				p.logWorkerError(stageIdx, err)
			}
			return err
		})
	}
	p.spawn(label+"/terminator", func() error {
		term.run()
		p.logStageClosed(stageIdx)
		return nil
	})
	return p
}

// Map is shorthand for ChainWorkers(f, nWorkers, opts...).
func (p *Pipeline[T]) Map(f MapFunc[T], nWorkers int, opts ...StageOption[T]) *Pipeline[T] {
	return p.ChainWorkers(f, nWorkers, opts...)
}

// Filter adds a stage forwarding x iff pred(x) reports true. A
// PredicateFunc error is treated exactly like a MapFunc error: ErrDrop
// excludes the item silently, anything else is a UserFunctionError routed
// through the stage's exception handler (which receives the original item
// unchanged).
func (p *Pipeline[T]) Filter(pred PredicateFunc[T], nWorkers int, opts ...StageOption[T]) *Pipeline[T] {
	f := func(item T) (T, error) {
		keep, err := pred(item)
		if err != nil {
			return item, err
		}
		if !keep {
			return item, ErrDrop
		}
		return item, nil
	}
	return p.ChainWorkers(f, nWorkers, opts...)
}

// Reverse adapts a comparator for descending order, for use with Sort.
func Reverse[T any](cmp func(a, b T) int) func(a, b T) int {
	return func(a, b T) int { return cmp(b, a) }
}

// Sort adds a single-worker stage that drains its entire input into
// memory, sorts it with cmp, then emits it. This is a pipeline barrier:
// it disables streaming and bounds memory by the size of the full stream.
// Panics with ErrMisuse if the tail has already been consumed.
func (p *Pipeline[T]) Sort(cmp func(a, b T) int, opts ...StageOption[T]) *Pipeline[T] {
	p.mu.Lock()
	if p.consumed || p.tail == nil {
		p.mu.Unlock()
		panic(fmt.Errorf("%w: Sort: pipeline has no usable tail queue", ErrMisuse))
	}
	qIn := p.tail
	cfg := resolveStageConfig[T](opts)
	qOut := cfg.queueFor(1)
	stageIdx := p.stageCount
	p.stageCount++
	term := newStageTerminator[T](1, qOut)
	label := fmt.Sprintf("stage[%d]:sort", stageIdx)
	p.stages = append(p.stages, stageInfo[T]{label: label, workers: 1, term: term})
	p.tail = qOut
	p.mu.Unlock()

	p.logStageStart(stageIdx, 1)
	p.spawn(label+"/worker", func() error {
		defer term.workerDone()
		items := make([]T, 0, 64)
		for {
			item, ok := qIn.Get()
			if !ok {
				break
			}
			items = append(items, item)
		}
		slices.SortFunc(items, cmp)
		for _, item := range items {
			if err := qOut.Put(item); err != nil {
				return err
			}
		}
		return nil
	})
	p.spawn(label+"/terminator", func() error {
		term.run()
		p.logStageClosed(stageIdx)
		return nil
	})
	return p
}

// Fold is a terminal two-phase reduction: nWorkers workers each reduce an
// arbitrary partition of the stream with combine, writing their partial
// result (one per worker that saw >= 1 item) to an intermediate queue
// pre-seeded with x0; a single worker then folds that intermediate queue.
// Fold blocks until the final result arrives and returns it.
//
// combine must be associative and commutative, and x0 must be an identity
// element for it — partitioning across workers is nondeterministic, so
// violating this produces a nondeterministic result, not a framework
// error. On empty input, Fold returns x0.
//
// Fold consumes the pipeline's tail: subsequent builder calls panic with
// ErrMisuse, the same as after All.
func (p *Pipeline[T]) Fold(combine func(acc, item T) T, x0 T, nWorkers int) (T, error) {
	p.mu.Lock()
	if p.consumed || p.tail == nil {
		p.mu.Unlock()
		panic(fmt.Errorf("%w: Fold: pipeline has no usable tail queue", ErrMisuse))
	}
	qIn := p.tail
	p.tail = nil
	p.consumed = true
	stageIdx := p.stageCount
	p.stageCount++
	intermediate := NewCBQ[T](nWorkers + 1)
	term := newStageTerminator[T](nWorkers, intermediate)
	label := fmt.Sprintf("stage[%d]:fold", stageIdx)
	p.stages = append(p.stages, stageInfo[T]{label: label, workers: nWorkers, term: term})
	p.mu.Unlock()

	if err := intermediate.Put(x0); err != nil {
		return x0, err
	}

	p.logStageStart(stageIdx, nWorkers)
	for i := 0; i < nWorkers; i++ {
		p.spawn(fmt.Sprintf("%s/worker[%d]", label, i), func() error {
			defer term.workerDone()
			var acc T
			seen := false
			for {
				item, ok := qIn.Get()
				if !ok {
					break
				}
				if !seen {
					acc, seen = item, true
				} else {
					acc = combine(acc, item)
				}
			}
			if !seen {
				return nil
			}
			return intermediate.Put(acc)
		})
	}

	type foldResult struct {
		value T
		err   error
	}
	resultCh := make(chan foldResult, 1)
	p.spawn(label+"/terminator", func() error {
		term.run()
		var acc T
		seen := false
		for {
			item, ok := intermediate.Get()
			if !ok {
				break
			}
			if !seen {
				acc, seen = item, true
			} else {
				acc = combine(acc, item)
			}
		}
		p.logStageClosed(stageIdx)
		if !seen {
			err := fmt.Errorf("%w: Fold: intermediate queue yielded no items", ErrInvariantViolation)
			resultCh <- foldResult{err: err}
			return err
		}
		resultCh <- foldResult{value: acc}
		return nil
	})

	r := <-resultCh
	return r.value, r.err
}

// Join waits for every task the pipeline has spawned (source pushers,
// stage workers, stage terminators) and returns one error per task, in
// completion order, nil for a task that exited cleanly. The task set is
// cleared afterward.
func (p *Pipeline[T]) Join() []error {
	p.wg.Wait()
	p.mu.Lock()
	defer p.mu.Unlock()
	errs := make([]error, len(p.results))
	for i, r := range p.results {
		errs[i] = r.err
	}
	p.results = nil
	return errs
}

// All returns an iterator draining the pipeline's current tail queue
// until end-of-stream. The tail reference is cleared the instant All
// returns (not when ranging begins), so further builder calls on this
// pipeline panic with ErrMisuse rather than silently racing the consumer.
func (p *Pipeline[T]) All() iter.Seq[T] {
	p.mu.Lock()
	if p.consumed || p.tail == nil {
		p.mu.Unlock()
		panic(fmt.Errorf("%w: All: pipeline has no usable tail queue", ErrMisuse))
	}
	q := p.tail
	p.tail = nil
	p.consumed = true
	p.mu.Unlock()

	return func(yield func(T) bool) {
		for {
			item, ok := q.Get()
			if !ok {
				return
			}
			if !yield(item) {
				return
			}
		}
	}
}

// Stats returns a snapshot of every stage added so far: its worker count
// and how many of those workers have not yet exited.
func (p *Pipeline[T]) Stats() []StageStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	stats := make([]StageStats, len(p.stages))
	for i, s := range p.stages {
		stats[i] = StageStats{Index: i, Label: s.label, Workers: s.workers, Pending: s.term.Pending()}
	}
	return stats
}

// Tee consumes the pipeline's tail and fans each item out to n
// independently closable output queues, each honoring its own
// backpressure. It is a terminal operation on this Pipeline (like Fold or
// All): the returned queues are not tracked by this Pipeline's Join, and
// are typically fed into fresh pipelines via NewPipelineFromQueue.
func (p *Pipeline[T]) Tee(n int, opts ...StageOption[T]) []*CBQ[T] {
	if n <= 0 {
		panic(fmt.Errorf("%w: Tee: n must be > 0", ErrMisuse))
	}
	p.mu.Lock()
	if p.consumed || p.tail == nil {
		p.mu.Unlock()
		panic(fmt.Errorf("%w: Tee: pipeline has no usable tail queue", ErrMisuse))
	}
	qIn := p.tail
	p.tail = nil
	p.consumed = true
	cfg := resolveStageConfig[T](opts)
	if cfg.qOut != nil {
		p.mu.Unlock()
		panic(fmt.Errorf("%w: Tee: WithOutput does not apply, it fans out to n new queues — use WithQueueSize", ErrMisuse))
	}
	stageIdx := p.stageCount
	p.stageCount++
	term := newStageTerminator[T](1, nil)
	label := fmt.Sprintf("stage[%d]:tee", stageIdx)
	p.stages = append(p.stages, stageInfo[T]{label: label, workers: 1, term: term})
	p.mu.Unlock()

	outs := make([]*CBQ[T], n)
	for i := range outs {
		outs[i] = cfg.queueFor(1)
	}

	p.logStageStart(stageIdx, 1)
	p.spawn(label+"/worker", func() error {
		defer term.workerDone()
		for {
			item, ok := qIn.Get()
			if !ok {
				return nil
			}
			for _, out := range outs {
				if err := out.Put(item); err != nil {
					return err
				}
			}
		}
	})
	p.spawn(label+"/terminator", func() error {
		term.run()
		for _, out := range outs {
			out.CloseIdempotent()
		}
		p.logStageClosed(stageIdx)
		return nil
	})
	return outs
}

// NewPipelineFromQueue starts a pipeline whose tail is an existing queue,
// typically one produced by Tee. The pipeline does not own q's producer;
// Join only waits for stages added after this call.
func NewPipelineFromQueue[T any](q *CBQ[T], opts ...PipelineOption) *Pipeline[T] {
	p := NewPipeline[T](opts...)
	p.hasSource = true
	p.tail = q
	return p
}
