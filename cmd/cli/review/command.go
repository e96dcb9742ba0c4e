package review

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/patchfleet/patchfleet/internal/diff"
	"github.com/patchfleet/patchfleet/internal/execshell"
	"github.com/patchfleet/patchfleet/internal/fleet"
	"github.com/patchfleet/patchfleet/internal/forge"
	"github.com/patchfleet/patchfleet/internal/review"
	"github.com/patchfleet/patchfleet/internal/shared"
	"github.com/patchfleet/patchfleet/internal/ui"
)

const (
	commandUseConstant                    = "review"
	commandShortDescriptionConstant       = "Inspect and progress the pull requests a fleet change opened"
	commandLongDescriptionConstant        = "review lists, approves and merges, deletes, or purges the pull requests a fleet change opened across an organization."
	commandExecutionErrorTemplateConstant = "fleet review failed: %w"
	organizationRequiredMessageConstant   = "--org must be provided"
	changeIdentifierRequiredMessage       = "--change-id must be provided for list, approve, and delete"
	actionCountMessageConstant            = "exactly one of --list, --approve, --delete, or --purge must be provided"
	flagOrganizationNameConstant          = "org"
	flagOrganizationUsageConstant         = "GitHub organization whose repositories form the fleet"
	flagFilterNameConstant                = "filter"
	flagFilterUsageConstant               = "Keep only repositories whose slug contains this substring (repeatable)"
	flagChangeIdentifierNameConstant      = "change-id"
	flagChangeIdentifierUsageConstant     = "Identifier naming the change branch (prefixed automatically)"
	flagListNameConstant                  = "list"
	flagListUsageConstant                 = "Print each open pull request with its rendered diff and status"
	flagApproveNameConstant               = "approve"
	flagApproveUsageConstant              = "Approve and merge each open pull request"
	flagAdminNameConstant                 = "admin"
	flagAdminUsageConstant                = "Merge with admin override, bypassing branch protections"
	flagDeleteNameConstant                = "delete"
	flagDeleteUsageConstant               = "Close each open pull request and delete its remote branch"
	flagPurgeNameConstant                 = "purge"
	flagPurgeUsageConstant                = "Remove every pull request and branch carrying the change prefix"
	flagBufferNameConstant                = "buffer"
	flagBufferUsageConstant               = "Context lines around each diff hunk (1-3)"
	flagPoolNameConstant                  = "pool"
	flagPoolUsageConstant                 = "Number of repositories processed concurrently"
	defaultContextBufferConstant          = 2
	repositoryBlockHeaderTemplate         = "--- %s ---\n"
	listStatusLineTemplateConstant        = "pull request #%d draft=%t mergeable=%t checked=%t reviewed=%t\n"
	listFileHeaderTemplateConstant        = "=== %s ===\n"
	approvedLineTemplateConstant          = "pull request #%d approved\n"
	mergedLineTemplateConstant            = "pull request #%d merged\n"
	alreadyReviewedLineTemplateConstant   = "pull request #%d already reviewed\n"
	closedLineTemplateConstant            = "pull request #%d closed\n"
	branchDeletedLineTemplateConstant     = "remote branch %s deleted\n"
	purgeLineTemplateConstant             = "%s\n"
	noPullRequestLineConstant             = "no open pull request\n"
)

var (
	errOrganizationRequired     = errors.New(organizationRequiredMessageConstant)
	errChangeIdentifierRequired = errors.New(changeIdentifierRequiredMessage)
	errActionCount              = errors.New(actionCountMessageConstant)
)

type reviewAction string

const (
	actionList    reviewAction = "list"
	actionApprove reviewAction = "approve"
	actionDelete  reviewAction = "delete"
	actionPurge   reviewAction = "purge"
)

// LoggerProvider supplies a zap logger instance.
type LoggerProvider func() *zap.Logger

// CommandConfiguration captures the review settings sourced from the
// configuration file or environment.
type CommandConfiguration struct {
	Organization string   `mapstructure:"org"`
	Filters      []string `mapstructure:"filters"`
	PoolSize     int      `mapstructure:"pool_size"`
}

// ConfigurationProvider supplies configuration for the review command.
type ConfigurationProvider func() CommandConfiguration

// CommandBuilder assembles the Cobra command for fleet pull request review.
type CommandBuilder struct {
	LoggerProvider               LoggerProvider
	ConfigurationProvider        ConfigurationProvider
	HumanReadableLoggingProvider func() bool
	ForgeExecutor                forge.ForgeCommandExecutor
}

// Build constructs the review command.
func (builder *CommandBuilder) Build() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:   commandUseConstant,
		Short: commandShortDescriptionConstant,
		Long:  commandLongDescriptionConstant,
		Args:  cobra.NoArgs,
		RunE:  builder.run,
	}

	command.Flags().String(flagOrganizationNameConstant, "", flagOrganizationUsageConstant)
	command.Flags().StringArray(flagFilterNameConstant, nil, flagFilterUsageConstant)
	command.Flags().String(flagChangeIdentifierNameConstant, "", flagChangeIdentifierUsageConstant)
	command.Flags().Bool(flagListNameConstant, false, flagListUsageConstant)
	command.Flags().Bool(flagApproveNameConstant, false, flagApproveUsageConstant)
	command.Flags().Bool(flagAdminNameConstant, false, flagAdminUsageConstant)
	command.Flags().Bool(flagDeleteNameConstant, false, flagDeleteUsageConstant)
	command.Flags().Bool(flagPurgeNameConstant, false, flagPurgeUsageConstant)
	command.Flags().Int(flagBufferNameConstant, defaultContextBufferConstant, flagBufferUsageConstant)
	command.Flags().Int(flagPoolNameConstant, 0, flagPoolUsageConstant)

	return command, nil
}

type runOptions struct {
	organization     string
	filters          []string
	changeIdentifier string
	action           reviewAction
	adminOverride    bool
	contextBuffer    int
	poolSize         int
}

func (builder *CommandBuilder) run(command *cobra.Command, arguments []string) error {
	options, optionsError := builder.parseOptions(command)
	if optionsError != nil {
		return optionsError
	}

	logger := builder.resolveLogger()

	forgeClient, clientError := builder.resolveForgeClient(logger)
	if clientError != nil {
		return clientError
	}

	reviewService, serviceError := review.NewService(review.Dependencies{Logger: logger, Forge: forgeClient})
	if serviceError != nil {
		return serviceError
	}

	repositorySlugs, listError := forgeClient.ListOrganizationRepositories(command.Context(), options.organization)
	if listError != nil {
		return fmt.Errorf(commandExecutionErrorTemplateConstant, listError)
	}
	repositorySlugs = fleet.FilterNames(repositorySlugs, options.filters)

	tasks := builder.buildTasks(reviewService, options, repositorySlugs)

	runner, runnerError := fleet.NewRunner(logger, command.OutOrStdout(), options.poolSize)
	if runnerError != nil {
		return runnerError
	}

	if _, runError := runner.Run(command.Context(), tasks); runError != nil {
		return fmt.Errorf(commandExecutionErrorTemplateConstant, runError)
	}

	return nil
}

func (builder *CommandBuilder) parseOptions(command *cobra.Command) (runOptions, error) {
	configuration := builder.resolveConfiguration()

	organizationValue, _ := command.Flags().GetString(flagOrganizationNameConstant)
	organization := strings.TrimSpace(organizationValue)
	if len(organization) == 0 {
		organization = strings.TrimSpace(configuration.Organization)
	}
	if len(organization) == 0 {
		return runOptions{}, errOrganizationRequired
	}

	action, actionError := parseAction(command)
	if actionError != nil {
		return runOptions{}, actionError
	}

	changeIdentifierValue, _ := command.Flags().GetString(flagChangeIdentifierNameConstant)
	changeIdentifier := shared.NormalizeChangeIdentifier(changeIdentifierValue)
	if len(strings.TrimSpace(changeIdentifierValue)) == 0 && action != actionPurge {
		return runOptions{}, errChangeIdentifierRequired
	}

	contextBuffer, _ := command.Flags().GetInt(flagBufferNameConstant)
	if validationError := diff.ValidateContextBuffer(contextBuffer); validationError != nil {
		return runOptions{}, validationError
	}

	filterValues, _ := command.Flags().GetStringArray(flagFilterNameConstant)
	filters := append([]string{}, configuration.Filters...)
	filters = append(filters, filterValues...)

	adminOverride, _ := command.Flags().GetBool(flagAdminNameConstant)
	poolSize, _ := command.Flags().GetInt(flagPoolNameConstant)
	if poolSize == 0 {
		poolSize = configuration.PoolSize
	}

	return runOptions{
		organization:     organization,
		filters:          filters,
		changeIdentifier: changeIdentifier,
		action:           action,
		adminOverride:    adminOverride,
		contextBuffer:    contextBuffer,
		poolSize:         poolSize,
	}, nil
}

func parseAction(command *cobra.Command) (reviewAction, error) {
	listRequested, _ := command.Flags().GetBool(flagListNameConstant)
	approveRequested, _ := command.Flags().GetBool(flagApproveNameConstant)
	deleteRequested, _ := command.Flags().GetBool(flagDeleteNameConstant)
	purgeRequested, _ := command.Flags().GetBool(flagPurgeNameConstant)

	var selectedAction reviewAction
	actionCount := 0
	for requestedAction, requested := range map[reviewAction]bool{
		actionList:    listRequested,
		actionApprove: approveRequested,
		actionDelete:  deleteRequested,
		actionPurge:   purgeRequested,
	} {
		if requested {
			selectedAction = requestedAction
			actionCount++
		}
	}
	if actionCount != 1 {
		return "", errActionCount
	}

	return selectedAction, nil
}

func (builder *CommandBuilder) buildTasks(reviewService *review.Service, options runOptions, repositorySlugs []string) []fleet.Task {
	renderer := diff.NewRenderer(true)

	tasks := make([]fleet.Task, 0, len(repositorySlugs))
	for _, repositorySlug := range repositorySlugs {
		currentSlug := repositorySlug

		tasks = append(tasks, fleet.Task{
			Label: currentSlug,
			Execute: func(executionContext context.Context) (fleet.TaskReport, error) {
				return builder.executeAction(executionContext, reviewService, renderer, options, currentSlug)
			},
		})
	}

	return tasks
}

func (builder *CommandBuilder) executeAction(executionContext context.Context, reviewService *review.Service, renderer diff.Renderer, options runOptions, repositorySlug string) (fleet.TaskReport, error) {
	var blockBuilder strings.Builder
	blockBuilder.WriteString(fmt.Sprintf(repositoryBlockHeaderTemplate, repositorySlug))

	switch options.action {
	case actionList:
		listOutcome, listError := reviewService.List(executionContext, repositorySlug, options.changeIdentifier)
		if errors.Is(listError, review.ErrNoOpenPullRequest) {
			blockBuilder.WriteString(noPullRequestLineConstant)
			return fleet.TaskReport{OutputBlock: blockBuilder.String(), Skipped: true}, nil
		}
		if listError != nil {
			return fleet.TaskReport{}, listError
		}

		blockBuilder.WriteString(fmt.Sprintf(listStatusLineTemplateConstant,
			listOutcome.PullRequestNumber,
			listOutcome.Status.Draft,
			listOutcome.Status.Mergeable,
			listOutcome.Status.Checked,
			listOutcome.Status.Reviewed))
		renderedDiff, renderError := renderPullRequestDiff(renderer, listOutcome.Diff, options.contextBuffer)
		if renderError != nil {
			return fleet.TaskReport{}, renderError
		}
		blockBuilder.WriteString(renderedDiff)

	case actionApprove:
		approveOutcome, approveError := reviewService.Approve(executionContext, repositorySlug, options.changeIdentifier, options.adminOverride)
		if errors.Is(approveError, review.ErrNoOpenPullRequest) {
			blockBuilder.WriteString(noPullRequestLineConstant)
			return fleet.TaskReport{OutputBlock: blockBuilder.String(), Skipped: true}, nil
		}
		if approveError != nil {
			return fleet.TaskReport{}, approveError
		}

		if approveOutcome.Approved {
			blockBuilder.WriteString(fmt.Sprintf(approvedLineTemplateConstant, approveOutcome.PullRequestNumber))
		} else {
			blockBuilder.WriteString(fmt.Sprintf(alreadyReviewedLineTemplateConstant, approveOutcome.PullRequestNumber))
		}
		if approveOutcome.Merged {
			blockBuilder.WriteString(fmt.Sprintf(mergedLineTemplateConstant, approveOutcome.PullRequestNumber))
		}

	case actionDelete:
		deleteOutcome, deleteError := reviewService.Delete(executionContext, repositorySlug, options.changeIdentifier)
		if deleteError != nil {
			return fleet.TaskReport{}, deleteError
		}
		if deleteOutcome.PullRequestClosed {
			blockBuilder.WriteString(fmt.Sprintf(closedLineTemplateConstant, deleteOutcome.PullRequestNumber))
		} else {
			blockBuilder.WriteString(noPullRequestLineConstant)
		}
		if deleteOutcome.BranchDeleted {
			blockBuilder.WriteString(fmt.Sprintf(branchDeletedLineTemplateConstant, options.changeIdentifier))
		}

	case actionPurge:
		purgeMessages, purgeError := reviewService.Purge(executionContext, repositorySlug)
		if purgeError != nil {
			return fleet.TaskReport{}, purgeError
		}
		if len(purgeMessages) == 0 {
			blockBuilder.WriteString(noPullRequestLineConstant)
			return fleet.TaskReport{OutputBlock: blockBuilder.String(), Skipped: true}, nil
		}
		for _, purgeMessage := range purgeMessages {
			blockBuilder.WriteString(fmt.Sprintf(purgeLineTemplateConstant, purgeMessage))
		}
	}

	return fleet.TaskReport{OutputBlock: blockBuilder.String()}, nil
}

// renderPullRequestDiff reconstructs the forge's unified diff blob into
// per-file texts and re-renders each with annotated line numbers.
func renderPullRequestDiff(renderer diff.Renderer, diffBlob string, contextBuffer int) (string, error) {
	var renderedBuilder strings.Builder
	for _, filePatch := range diff.Reconstruct(diffBlob) {
		renderedFileDiff, renderError := renderer.RenderText(filePatch.OriginalText, filePatch.UpdatedText, contextBuffer)
		if renderError != nil {
			return "", renderError
		}
		renderedBuilder.WriteString(fmt.Sprintf(listFileHeaderTemplateConstant, filePatch.FileName))
		renderedBuilder.WriteString(renderedFileDiff)
	}
	return renderedBuilder.String(), nil
}

func (builder *CommandBuilder) resolveConfiguration() CommandConfiguration {
	if builder.ConfigurationProvider == nil {
		return CommandConfiguration{}
	}
	return builder.ConfigurationProvider()
}

func (builder *CommandBuilder) resolveLogger() *zap.Logger {
	if builder.LoggerProvider == nil {
		return zap.NewNop()
	}
	logger := builder.LoggerProvider()
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}

func (builder *CommandBuilder) resolveForgeClient(logger *zap.Logger) (*forge.Client, error) {
	forgeExecutor := builder.ForgeExecutor
	if forgeExecutor == nil {
		commandRunner := execshell.NewOSCommandRunner()

		var observers []execshell.CommandEventObserver
		if builder.HumanReadableLoggingProvider != nil && builder.HumanReadableLoggingProvider() {
			observers = append(observers, ui.NewConsoleCommandEventLogger(logger))
		}

		shellExecutor, executorError := execshell.NewShellExecutor(logger, commandRunner, observers...)
		if executorError != nil {
			return nil, executorError
		}
		forgeExecutor = shellExecutor
	}

	return forge.NewClient(forgeExecutor)
}
