package create

import (
	"errors"
	"fmt"
)

const (
	untrackedFilesMessageConstant = "working tree has untracked files"
	stepErrorTemplateConstant     = "step %s failed: %s"
)

// ErrUntrackedFilesPresent is the guard failure raised before any mutation
// when the working tree contains untracked files. It never triggers a
// rollback because nothing has been done yet.
var ErrUntrackedFilesPresent = errors.New(untrackedFilesMessageConstant)

// StepName identifies one step of the create saga.
type StepName string

// Saga step names in execution order.
const (
	StepGuards             StepName = StepName("guards")
	StepStash              StepName = StepName("stash")
	StepHeadBranchSync     StepName = StepName("head-branch-sync")
	StepPull               StepName = StepName("pull")
	StepStaleBranchPurge   StepName = StepName("stale-branch-purge")
	StepNewBranchCheckout  StepName = StepName("new-branch-checkout")
	StepApplyEdits         StepName = StepName("apply-edits")
	StepPreCommit          StepName = StepName("pre-commit")
	StepCommit             StepName = StepName("commit")
	StepPush               StepName = StepName("push")
	StepStalePullRequest   StepName = StepName("stale-pull-request-close")
	StepCreatePullRequest  StepName = StepName("create-pull-request")
)

// StepError reports a saga step failing after mutation began. The triggering
// cause survives the compensating rollback unchanged.
type StepError struct {
	Step  StepName
	Cause error
}

// Error describes the failed step.
func (stepError StepError) Error() string {
	return fmt.Sprintf(stepErrorTemplateConstant, stepError.Step, stepError.Cause)
}

// Unwrap exposes the triggering cause.
func (stepError StepError) Unwrap() error {
	return stepError.Cause
}
