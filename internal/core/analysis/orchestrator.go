// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/jaycherian/gcp-go-ad-analysis/internal/core/cor"
	"github.com/jaycherian/gcp-go-ad-analysis/internal/core/model"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// ContentGenerator is the external model: given a prompt and its media, it
// returns free-form text, usually JSON.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, prompt string, attachments []*model.Attachment) (string, error)
}

// Compressor shrinks one file to within the model's upload limits.
type Compressor interface {
	Compress(ctx context.Context, rec *model.PreprocessingRecord) (*model.Attachment, error)
}

// permanentError marks a generator failure that retrying cannot fix, such as
// a safety rejection.
type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent wraps err so the orchestrator does not retry it.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was wrapped with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Stage is the state of one media kind's pipeline within a run.
type Stage string

const (
	StagePartitioned Stage = "partitioned"
	StageDispatched  Stage = "dispatched"
	StageCollecting  Stage = "collecting"
	StageMerged      Stage = "merged"
)

// Options configures an Orchestrator.
type Options struct {
	BatchSizes           map[model.MediaKind]int
	MaxConcurrentBatches int // per media kind; < 1 means one slot per batch
	CallTimeout          time.Duration
	MaxRetries           int
	RetryBackoff         time.Duration
}

// DefaultOptions mirrors the batch sizes the model handles comfortably: ten
// images or five videos per call.
func DefaultOptions() Options {
	return Options{
		BatchSizes: map[model.MediaKind]int{
			model.MediaKindImage: 10,
			model.MediaKindVideo: 5,
		},
		MaxConcurrentBatches: 4,
		CallTimeout:          2 * time.Minute,
		MaxRetries:           2,
		RetryBackoff:         time.Second,
	}
}

// KindReport summarizes one media kind's pipeline.
type KindReport struct {
	Stage         Stage
	Files         int
	Batches       int
	FailedBatches int
	Bound         int
}

// RunReport summarizes a run per media kind.
type RunReport struct {
	mu    sync.Mutex
	Kinds map[model.MediaKind]*KindReport
}

func (r *RunReport) update(kind model.MediaKind, fn func(k *KindReport)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k, ok := r.Kinds[kind]
	if !ok {
		k = &KindReport{}
		r.Kinds[kind] = k
	}
	fn(k)
}

// resultSet is the only cross-batch mutable state. Batches own disjoint
// filenames, so a commit never overwrites another batch's record.
type resultSet struct {
	mu      sync.Mutex
	records model.AnalysisMapping
}

func (r *resultSet) commit(recs map[string]model.AnalysisRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, v := range recs {
		r.records[k] = v
	}
}

// Orchestrator runs the batched analysis of one dataset.
type Orchestrator struct {
	generator  ContentGenerator
	compressor Compressor
	builder    *PromptBuilder
	opts       Options

	tracer          trace.Tracer
	batchCounter    metric.Int64Counter
	failureCounter  metric.Int64Counter
	retryCounter    metric.Int64Counter
	missingCounter  metric.Int64Counter
	batchLatencyHis metric.Float64Histogram
}

func NewOrchestrator(generator ContentGenerator, compressor Compressor, builder *PromptBuilder, opts Options) *Orchestrator {
	meter := otel.Meter(cor.MeterName)
	batchCounter, _ := meter.Int64Counter("analysis.batches.dispatched")
	failureCounter, _ := meter.Int64Counter("analysis.batches.failed")
	retryCounter, _ := meter.Int64Counter("analysis.model.retries")
	missingCounter, _ := meter.Int64Counter("analysis.files.missing")
	latency, _ := meter.Float64Histogram("analysis.batch.duration", metric.WithUnit("s"))

	if opts.BatchSizes == nil {
		opts.BatchSizes = DefaultOptions().BatchSizes
	}
	return &Orchestrator{
		generator:       generator,
		compressor:      compressor,
		builder:         builder,
		opts:            opts,
		tracer:          otel.Tracer("analysis.orchestrator"),
		batchCounter:    batchCounter,
		failureCounter:  failureCounter,
		retryCounter:    retryCounter,
		missingCounter:  missingCounter,
		batchLatencyHis: latency,
	}
}

// Run analyzes every record and returns one AnalysisRecord per input
// filename. Failed preprocessing records pass through as their failure
// marker; every other file carries either merged analysis or an
// analysis_error. Run never fails as a whole.
func (o *Orchestrator) Run(ctx context.Context, records []*model.PreprocessingRecord) (model.AnalysisMapping, *RunReport) {
	ctx, span := o.tracer.Start(ctx, "analysis_run")
	defer span.End()

	results := &resultSet{records: make(model.AnalysisMapping, len(records))}
	report := &RunReport{Kinds: make(map[model.MediaKind]*KindReport)}

	var wg sync.WaitGroup
	for _, kind := range []model.MediaKind{model.MediaKindImage, model.MediaKindVideo} {
		wg.Add(1)
		go func(kind model.MediaKind) {
			defer wg.Done()
			o.runKind(ctx, kind, records, results, report)
		}(kind)
	}
	wg.Wait()

	// Union with the records that never entered a batch.
	out := results.records
	for _, r := range records {
		if r == nil {
			continue
		}
		if r.Failed() {
			if _, ok := out[r.Filename]; !ok {
				out[r.Filename] = r.FailureRecord()
			}
			continue
		}
		if _, ok := out[r.Filename]; !ok {
			out[r.Filename] = model.MergeFailure(r.Features, fmt.Sprintf("not analyzed: unsupported media kind %q", r.Kind))
		}
	}
	span.SetAttributes(attribute.Int("files", len(out)))
	return out, report
}

func (o *Orchestrator) runKind(ctx context.Context, kind model.MediaKind, records []*model.PreprocessingRecord, results *resultSet, report *RunReport) {
	logger := slog.With("media_kind", kind)

	batches, err := Partition(records, kind, o.opts.BatchSizes[kind])
	if err != nil {
		// Misconfiguration: fall back to one file per batch rather than drop files.
		logger.Error("invalid batch size, using 1", "error", err)
		batches, _ = Partition(records, kind, 1)
	}
	scheduler := NewScheduler(o.opts.MaxConcurrentBatches)
	report.update(kind, func(k *KindReport) {
		k.Stage = StagePartitioned
		k.Batches = len(batches)
		k.Bound = scheduler.Bound(len(batches))
		for _, b := range batches {
			k.Files += b.Size()
		}
	})
	if len(batches) == 0 {
		logger.Debug("nothing to analyze")
		report.update(kind, func(k *KindReport) { k.Stage = StageMerged })
		return
	}

	tasks := make([]Task, 0, len(batches))
	for _, b := range batches {
		tasks = append(tasks, func(ctx context.Context) {
			recs, failed := o.runBatch(ctx, b)
			results.commit(recs)
			report.update(kind, func(k *KindReport) {
				k.Stage = StageCollecting
				if failed {
					k.FailedBatches++
				}
			})
		})
	}

	report.update(kind, func(k *KindReport) { k.Stage = StageDispatched })
	logger.Info("dispatching batches", "batches", len(batches), "max_in_flight", scheduler.Bound(len(batches)))
	scheduler.Run(ctx, tasks)
	report.update(kind, func(k *KindReport) { k.Stage = StageMerged })
	logger.Info("media kind merged", "batches", len(batches))
}

// runBatch analyzes one batch and returns the per-file records. The bool is
// true when the model call or the parse failed for the whole batch.
func (o *Orchestrator) runBatch(ctx context.Context, batch *model.Batch) (map[string]model.AnalysisRecord, bool) {
	start := time.Now()
	ctx, span := o.tracer.Start(ctx, fmt.Sprintf("batch_%s_%d", batch.Kind, batch.Index),
		trace.WithAttributes(attribute.String("media_kind", string(batch.Kind)), attribute.Int("size", batch.Size())))
	defer span.End()
	attrs := metric.WithAttributes(attribute.String("media_kind", string(batch.Kind)))
	o.batchCounter.Add(ctx, 1, attrs)
	defer func() {
		o.batchLatencyHis.Record(ctx, time.Since(start).Seconds(), attrs)
	}()

	logger := slog.With("media_kind", batch.Kind, "batch", batch.Index)
	out := make(map[string]model.AnalysisRecord, batch.Size())

	ready, attachments := o.compress(ctx, batch, out)
	defer removeTransient(attachments)
	if ready.Size() == 0 {
		return out, false
	}

	fail := func(err error) (map[string]model.AnalysisRecord, bool) {
		logger.Warn("batch failed", "error", err, "files", ready.Size())
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		o.failureCounter.Add(ctx, 1, attrs)
		for _, r := range ready.Records {
			out[r.Filename] = model.MergeFailure(r.Features, err.Error())
		}
		return out, true
	}

	prompt, err := o.builder.Build(ready, attachments)
	if err != nil {
		return fail(err)
	}
	text, err := o.invoke(ctx, prompt)
	if err != nil {
		return fail(err)
	}
	parsed, err := Reconcile(text, prompt.Filenames)
	if err != nil {
		return fail(err)
	}

	for i, r := range ready.Records {
		fields, ok := parsed[r.Filename]
		if !ok {
			o.missingCounter.Add(ctx, 1, attrs)
			logger.Warn("model response missing item", "index", i, "filename", r.Filename)
			out[r.Filename] = model.MergeFailure(r.Features, fmt.Sprintf("missing analysis: no result for item %d in model response", i))
			continue
		}
		out[r.Filename] = model.Merge(r.Features, fields)
	}
	logger.Debug("batch reconciled", "files", ready.Size(), "duration", time.Since(start))
	return out, false
}

// compress builds the attachments of a batch. A file that cannot be
// compressed gets its own analysis_error and is left out of the request; the
// remaining files keep their relative order.
func (o *Orchestrator) compress(ctx context.Context, batch *model.Batch, out map[string]model.AnalysisRecord) (*model.Batch, []*model.Attachment) {
	ready := &model.Batch{Index: batch.Index, Kind: batch.Kind}
	attachments := make([]*model.Attachment, 0, batch.Size())
	for _, r := range batch.Records {
		att, err := o.compressor.Compress(ctx, r)
		if err != nil {
			slog.Warn("compression failed", "filename", r.Filename, "error", err)
			out[r.Filename] = model.MergeFailure(r.Features, fmt.Sprintf("compression failed: %v", err))
			continue
		}
		ready.Filenames = append(ready.Filenames, r.Filename)
		ready.Records = append(ready.Records, r)
		attachments = append(attachments, att)
	}
	return ready, attachments
}

// invoke calls the generator with a per-attempt timeout. Failures are
// retried with exponential backoff unless they are permanent or the run
// itself was cancelled.
func (o *Orchestrator) invoke(ctx context.Context, prompt *Prompt) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= o.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			o.retryCounter.Add(ctx, 1)
			backoff := o.opts.RetryBackoff << (attempt - 1)
			select {
			case <-ctx.Done():
				return "", fmt.Errorf("%w (last error: %v)", ctx.Err(), lastErr)
			case <-time.After(backoff):
			}
		}

		callCtx, cancel := ctx, context.CancelFunc(func() {})
		if o.opts.CallTimeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, o.opts.CallTimeout)
		}
		text, err := o.generator.GenerateContent(callCtx, prompt.Text, prompt.Attachments)
		cancel()
		if err == nil {
			return text, nil
		}
		lastErr = err
		if IsPermanent(err) || ctx.Err() != nil {
			break
		}
		slog.Debug("model call failed", "attempt", attempt+1, "error", err)
	}
	return "", fmt.Errorf("model call failed: %w", lastErr)
}

func removeTransient(attachments []*model.Attachment) {
	for _, a := range attachments {
		if a == nil || a.TempPath == "" {
			continue
		}
		if err := os.Remove(a.TempPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			slog.Warn("failed to remove compressed file", "path", a.TempPath, "error", err)
		}
	}
}
