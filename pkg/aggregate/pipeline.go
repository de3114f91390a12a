package aggregate

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Pipeline runs one aggregation: discovery, loading, rendering, and
// output assembly. A Pipeline is good for a single Run call; create a
// new one per run.
type Pipeline struct {
	opts   Options
	logger *zap.Logger
	state  atomic.Int32

	processed atomic.Int64
	skipped   atomic.Int64
	errored   atomic.Int64
	tokens    atomic.Int64

	// now is the render-time clock; replaced in tests for
	// deterministic metadata blocks.
	now func() time.Time

	emitMu sync.Mutex
}

// New builds a pipeline for one run. The logger must not be nil; pass
// zap.NewNop() to silence it.
func New(opts Options, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		opts:   opts.normalized(),
		logger: logger,
		now:    time.Now,
	}
}

// State reports the pipeline's current lifecycle position. Safe to call
// from any goroutine while Run is in flight.
func (p *Pipeline) State() State {
	return State(p.state.Load())
}

// Run aggregates the input roots into dest. Inputs must already be
// local paths; repository URLs are resolved by the clone collaborator
// before the pipeline sees them. The summary is returned for failed and
// cancelled runs too, reflecting whatever was processed before the
// stop.
//
// Loading and rendering are fanned out across a bounded worker pool;
// section and TOC order is restored from discovery order before
// collisions are resolved, so output is deterministic regardless of
// worker interleaving.
func (p *Pipeline) Run(ctx context.Context, inputs []string, dest string) (RunSummary, error) {
	start := time.Now()

	if len(inputs) == 0 {
		return p.fail(start, fmt.Errorf("no inputs given"))
	}
	if dest == "" {
		return p.fail(start, fmt.Errorf("no destination given"))
	}

	catalog, err := loadCatalog()
	if err != nil {
		return p.fail(start, err)
	}

	var counter *tokenCounter
	if p.opts.CountTokens {
		counter = newTokenCounter(p.opts.TokenModel, p.logger)
	}

	p.state.Store(int32(StateDiscovering))
	p.logger.Info("Starting aggregation",
		zap.Strings("inputs", inputs),
		zap.String("destination", dest),
		zap.Bool("singleFile", p.opts.SingleFile),
		zap.Int("workers", p.opts.MaxWorkers))

	disc := &discovery{
		opts:    p.opts,
		filter:  newFilter(p.opts, catalog, p.logger),
		catalog: catalog,
		logger:  p.logger,
		onSkip:  p.recordSkip,
		onError: p.recordError,
	}
	units, walkErr := disc.stream(ctx, inputs)
	defer disc.cleanup()

	results := make(chan RenderedSection, 32)
	var wg sync.WaitGroup
	for w := 0; w < p.opts.MaxWorkers; w++ {
		wg.Add(1)
		go p.worker(ctx, units, results, counter, &wg)
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	var sections []RenderedSection
	for section := range results {
		sections = append(sections, section)
	}

	if err := <-walkErr; err != nil {
		return p.fail(start, err)
	}
	if err := ctx.Err(); err != nil {
		return p.fail(start, err)
	}

	p.state.Store(int32(StateWriting))
	sections, toc := resolveSections(sections)

	w := &writer{opts: p.opts, logger: p.logger, onError: p.writeErrored}
	if p.opts.SingleFile {
		err = w.writeSingle(dest, sections, toc)
	} else {
		err = w.writeMulti(dest, sections)
	}
	if err != nil {
		return p.fail(start, err)
	}

	p.state.Store(int32(StateDone))
	summary := p.summary(start)
	p.logger.Info("Aggregation complete",
		zap.Int("processed", summary.Processed),
		zap.Int("skipped", summary.Skipped),
		zap.Int("errored", summary.Errored),
		zap.Int64("tokens", summary.Tokens),
		zap.Duration("elapsed", summary.Elapsed))
	p.emit(Event{Kind: EventRunSummary, Summary: &summary})
	return summary, nil
}

// worker consumes discovered units until the channel closes. Every unit
// it receives ends up processed, skipped, or errored; cancellation only
// stops the intake, it never loses a unit silently.
func (p *Pipeline) worker(ctx context.Context, units <-chan FileUnit, results chan<- RenderedSection, counter *tokenCounter, wg *sync.WaitGroup) {
	defer wg.Done()

	for unit := range units {
		if ctx.Err() != nil {
			continue
		}

		p.unitStarted(unit)
		content, reason, err := loadUnit(unit, p.opts.maxFileBytes())
		if err != nil {
			p.recordError(unit.RelPath, err)
			continue
		}
		if reason != "" {
			p.recordSkip(unit.RelPath, reason)
			continue
		}

		meta := buildMetadata(unit, p.now, p.opts.IncludeMetadata)
		section := renderUnit(unit, content, meta)
		if counter != nil {
			p.tokens.Add(int64(counter.Count(section.Body)))
		}
		p.processed.Add(1)
		results <- section
	}
}

// unitStarted flips Discovering to Processing on the first unit, then
// reports the unit on the progress boundary.
func (p *Pipeline) unitStarted(unit FileUnit) {
	p.state.CompareAndSwap(int32(StateDiscovering), int32(StateProcessing))
	if p.opts.Verbose {
		p.logger.Debug("Processing unit",
			zap.String("path", unit.RelPath),
			zap.Int64("size", unit.Size))
	}
	p.emit(Event{Kind: EventUnitStarted, Path: unit.RelPath})
}

func (p *Pipeline) recordSkip(rel, reason string) {
	p.skipped.Add(1)
	p.logger.Debug("Skipping unit",
		zap.String("path", rel),
		zap.String("reason", reason))
	p.emit(Event{Kind: EventUnitSkipped, Path: rel, Reason: reason})
}

func (p *Pipeline) recordError(rel string, err error) {
	p.errored.Add(1)
	p.logger.Warn("Unit failed",
		zap.String("path", rel),
		zap.Error(err))
	p.emit(Event{Kind: EventUnitErrored, Path: rel, Reason: err.Error()})
}

// writeErrored reclassifies a unit that rendered fine but failed to
// write in multi-file mode, keeping processed+skipped+errored equal to
// the discovered total.
func (p *Pipeline) writeErrored(rel string, err error) {
	p.processed.Add(-1)
	p.recordError(rel, err)
}

// emit serializes progress callbacks so consumers need no locking.
func (p *Pipeline) emit(ev Event) {
	if p.opts.Progress == nil {
		return
	}
	p.emitMu.Lock()
	defer p.emitMu.Unlock()
	p.opts.Progress(ev)
}

func (p *Pipeline) summary(start time.Time) RunSummary {
	return RunSummary{
		Processed: int(p.processed.Load()),
		Skipped:   int(p.skipped.Load()),
		Errored:   int(p.errored.Load()),
		Tokens:    p.tokens.Load(),
		Elapsed:   time.Since(start),
	}
}

// fail transitions to Failed and returns the partial summary alongside
// the terminal error. The summary still goes out on the progress
// boundary so front-ends can show what was done before the stop.
func (p *Pipeline) fail(start time.Time, err error) (RunSummary, error) {
	p.state.Store(int32(StateFailed))
	summary := p.summary(start)
	p.logger.Error("Aggregation failed",
		zap.Int("processed", summary.Processed),
		zap.Error(err))
	p.emit(Event{Kind: EventRunSummary, Summary: &summary})
	return summary, err
}
