// Package transfer runs independent per-item transfer tasks on a bounded
// worker pool and aggregates their outcomes. A failing task is recorded and
// the pool keeps draining, so one bad item never hides the results of the
// others.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sort"

	"golang.org/x/sync/errgroup"
)

// Task is one item to decide on and, when needed, transfer.
type Task struct {
	Key  string // Relative key, used for reporting
	Size int64  // Bytes moved if the task transfers
	// Run performs the fingerprint decision and the transfer. It reports
	// whether a transfer happened.
	Run func(ctx context.Context) (bool, error)
}

// Failure records a task that returned an error.
type Failure struct {
	Key string
	Err error
}

// Report aggregates the outcomes of one Run.
type Report struct {
	Transferred int       // Number of items transferred
	Skipped     int       // Number of items already in sync
	Bytes       int64     // Total bytes transferred
	Failures    []Failure // Sorted by key
}

// Err returns a *PartialError when any task failed, nil otherwise.
func (r Report) Err() error {
	if len(r.Failures) == 0 {
		return nil
	}
	return &PartialError{Failures: r.Failures}
}

// PartialError reports that some tasks in a run failed while the rest
// completed.
type PartialError struct {
	Failures []Failure
}

func (e *PartialError) Error() string {
	first := e.Failures[0]
	if len(e.Failures) == 1 {
		return fmt.Sprintf("1 transfer failed: %s: %v", first.Key, first.Err)
	}
	return fmt.Sprintf("%d transfers failed, first %s: %v", len(e.Failures), first.Key, first.Err)
}

// Unwrap exposes the individual task errors to errors.Is and errors.As.
func (e *PartialError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		errs = append(errs, f.Err)
	}
	return errs
}

type result struct {
	task        Task
	transferred bool
	err         error
}

// Run executes tasks with at most concurrency running at once. Task errors
// are collected into the report. An error yielded by tasks itself, or a
// cancelled ctx, stops scheduling new work; in-flight tasks finish and the
// error is returned alongside the partial report.
func Run(ctx context.Context, tasks iter.Seq2[Task, error], concurrency int) (Report, error) {
	if concurrency < 1 {
		concurrency = 1
	}

	var report Report
	results := make(chan result)
	done := make(chan struct{})

	// Single consumer owns the report; workers never touch it.
	go func() {
		defer close(done)
		for r := range results {
			switch {
			case r.err != nil:
				report.Failures = append(report.Failures, Failure{Key: r.task.Key, Err: r.err})
			case r.transferred:
				report.Transferred++
				report.Bytes += r.task.Size
			default:
				report.Skipped++
			}
		}
	}()

	// A plain Group: one task failing must not cancel its siblings.
	var g errgroup.Group
	g.SetLimit(concurrency)

	var srcErr error
	for task, err := range tasks {
		if err != nil {
			srcErr = err
			break
		}
		if err := ctx.Err(); err != nil {
			srcErr = err
			break
		}

		g.Go(func() error {
			transferred, err := task.Run(ctx)
			results <- result{task: task, transferred: transferred, err: err}
			return nil
		})
	}

	_ = g.Wait()
	close(results)
	<-done

	sort.Slice(report.Failures, func(i, j int) bool {
		return report.Failures[i].Key < report.Failures[j].Key
	})

	if srcErr != nil {
		return report, srcErr
	}
	return report, nil
}

// FromSlice adapts a slice of tasks to the sequence Run consumes.
func FromSlice(tasks []Task) iter.Seq2[Task, error] {
	return func(yield func(Task, error) bool) {
		for _, t := range tasks {
			if !yield(t, nil) {
				return
			}
		}
	}
}

// IsPartial reports whether err carries a *PartialError.
func IsPartial(err error) bool {
	var pe *PartialError
	return errors.As(err, &pe)
}
