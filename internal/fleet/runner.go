package fleet

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	outputWriterMissingMessageConstant = "output writer not configured"
	taskFailureLogMessageConstant      = "fleet task failed"
	taskLabelFieldNameConstant         = "task"
	summaryHeaderConstant              = "fleet summary"
	summaryLineTemplateConstant        = "%s: processed %d, succeeded %d, skipped %d, failed %d\n"
	summaryFailureLineTemplateConstant = "  failed %s: %v\n"
)

// ErrOutputWriterNotConfigured indicates the runner was built without an
// output destination.
var ErrOutputWriterNotConfigured = errors.New(outputWriterMissingMessageConstant)

// Task is one unit of fleet work, usually scoped to a single repository.
type Task struct {
	Label   string
	Execute func(executionContext context.Context) (TaskReport, error)
}

// TaskReport carries the printable outcome of one task.
type TaskReport struct {
	OutputBlock string
	Skipped     bool
}

// TaskFailure records a task that returned an error.
type TaskFailure struct {
	Label string
	Cause error
}

// Summary folds the outcomes of a fleet run.
type Summary struct {
	Processed int
	Succeeded int
	Skipped   int
	Failed    int
	Failures  []TaskFailure
}

// Format renders the summary including one line per failure.
func (summary Summary) Format() string {
	var summaryBuilder strings.Builder
	summaryBuilder.WriteString(fmt.Sprintf(summaryLineTemplateConstant,
		summaryHeaderConstant, summary.Processed, summary.Succeeded, summary.Skipped, summary.Failed))
	for _, failure := range summary.Failures {
		summaryBuilder.WriteString(fmt.Sprintf(summaryFailureLineTemplateConstant, failure.Label, failure.Cause))
	}
	return summaryBuilder.String()
}

type taskOutcome struct {
	label   string
	report  TaskReport
	failure error
}

// Runner executes fleet tasks on a bounded worker pool. Task output is
// funneled through a single consumer so each task's block reaches the
// output writer uninterleaved.
type Runner struct {
	logger       *zap.Logger
	outputWriter io.Writer
	poolSize     int
}

// NewRunner constructs a Runner writing task output to outputWriter. A pool
// size below one falls back to the default of 8 workers.
func NewRunner(logger *zap.Logger, outputWriter io.Writer, poolSize int) (*Runner, error) {
	if outputWriter == nil {
		return nil, ErrOutputWriterNotConfigured
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if poolSize < 1 {
		poolSize = defaultPoolSizeConstant
	}

	return &Runner{logger: logger, outputWriter: outputWriter, poolSize: poolSize}, nil
}

// Run executes every task and returns the folded summary. Individual task
// failures are logged, counted, and listed in the summary; they do not stop
// the remaining tasks. The returned error reports only runner-level
// problems such as a failed output write.
func (runner *Runner) Run(executionContext context.Context, tasks []Task) (Summary, error) {
	outcomeChannel := make(chan taskOutcome, len(tasks))

	workerGroup, workerContext := errgroup.WithContext(executionContext)
	workerGroup.SetLimit(runner.poolSize)
	for _, fleetTask := range tasks {
		currentTask := fleetTask
		workerGroup.Go(func() error {
			taskReport, taskError := currentTask.Execute(workerContext)
			outcomeChannel <- taskOutcome{label: currentTask.Label, report: taskReport, failure: taskError}
			return nil
		})
	}

	go func() {
		_ = workerGroup.Wait()
		close(outcomeChannel)
	}()

	var summary Summary
	var writeError error
	for outcome := range outcomeChannel {
		summary.Processed++
		switch {
		case outcome.failure != nil:
			summary.Failed++
			summary.Failures = append(summary.Failures, TaskFailure{Label: outcome.label, Cause: outcome.failure})
			runner.logger.Warn(taskFailureLogMessageConstant,
				zap.String(taskLabelFieldNameConstant, outcome.label),
				zap.Error(outcome.failure))
		case outcome.report.Skipped:
			summary.Skipped++
		default:
			summary.Succeeded++
		}

		if writeError == nil && len(outcome.report.OutputBlock) > 0 {
			_, writeError = io.WriteString(runner.outputWriter, outcome.report.OutputBlock)
		}
	}
	if writeError != nil {
		return summary, writeError
	}

	_, writeError = io.WriteString(runner.outputWriter, summary.Format())
	return summary, writeError
}
