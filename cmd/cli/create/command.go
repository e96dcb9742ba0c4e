package create

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/patchfleet/patchfleet/internal/change"
	"github.com/patchfleet/patchfleet/internal/create"
	"github.com/patchfleet/patchfleet/internal/diff"
	"github.com/patchfleet/patchfleet/internal/discovery"
	"github.com/patchfleet/patchfleet/internal/execshell"
	"github.com/patchfleet/patchfleet/internal/fleet"
	"github.com/patchfleet/patchfleet/internal/forge"
	"github.com/patchfleet/patchfleet/internal/gitrepo"
	"github.com/patchfleet/patchfleet/internal/shared"
	"github.com/patchfleet/patchfleet/internal/ui"
)

const (
	commandUseConstant                     = "create <glob>"
	commandShortDescriptionConstant        = "Apply a file change across a fleet of repositories"
	commandLongDescriptionConstant         = "create applies one file transformation to every matching repository, validates it, and opens a pull request per repository. Without --message the run is a dry run that prints diffs and rolls everything back."
	commandExecutionErrorTemplateConstant  = "fleet create failed: %w"
	missingGlobArgumentMessageConstant     = "create requires exactly one file glob argument"
	actionCountMessageConstant             = "exactly one of --delete, --add, --sub, or --regex must be provided"
	pairFlagArityTemplateConstant          = "--%s requires exactly two values, for example --%s=OLD --%s=NEW"
	flagChangeIdentifierNameConstant       = "change-id"
	flagChangeIdentifierUsageConstant      = "Identifier naming the change branch (prefixed automatically)"
	flagBufferNameConstant                 = "buffer"
	flagBufferUsageConstant                = "Context lines around each diff hunk (1-3)"
	flagMessageNameConstant                = "message"
	flagMessageUsageConstant               = "Commit and pull request message; omit for a dry run"
	flagFilterNameConstant                 = "filter"
	flagFilterUsageConstant                = "Keep only repositories whose name contains this substring (repeatable)"
	flagRootNameConstant                   = "root"
	flagRootUsageConstant                  = "Directory to discover repositories under (repeatable)"
	flagManifestNameConstant               = "manifest"
	flagManifestUsageConstant              = "Path to a fleet manifest declaring roots, filters, and pool size"
	flagPoolNameConstant                   = "pool"
	flagPoolUsageConstant                  = "Number of repositories processed concurrently"
	flagDeleteNameConstant                 = "delete"
	flagDeleteUsageConstant                = "Delete every matched file"
	flagAddNameConstant                    = "add"
	flagAddUsageConstant                   = "Write the given content to the glob path in every repository"
	flagSubNameConstant                    = "sub"
	flagSubUsageConstant                   = "Replace a literal substring; pass twice for OLD then NEW"
	flagRegexNameConstant                  = "regex"
	flagRegexUsageConstant                 = "Replace a regular expression; pass twice for PATTERN then REPLACEMENT"
	defaultRootConstant                    = "."
	rootRelativeSlugConstant               = "."
	defaultContextBufferConstant           = 2
	pairFlagValueCountConstant             = 2
	repositoryBlockHeaderTemplateConstant  = "--- %s ---\n"
	repositorySkippedTemplateConstant      = "--- %s ---\nno changes\n"
	pullRequestLineTemplateConstant        = "pull request #%d opened\n"
	dryRunFooterLineConstant               = "dry run: all changes rolled back\n"
)

var (
	errMissingGlobArgument = errors.New(missingGlobArgumentMessageConstant)
	errActionCount         = errors.New(actionCountMessageConstant)
)

// LoggerProvider supplies a zap logger instance.
type LoggerProvider func() *zap.Logger

// CommandConfiguration captures the create settings sourced from the
// configuration file or environment.
type CommandConfiguration struct {
	Roots    []string `mapstructure:"roots"`
	Filters  []string `mapstructure:"filters"`
	PoolSize int      `mapstructure:"pool_size"`
	Buffer   int      `mapstructure:"buffer"`
}

// ConfigurationProvider supplies configuration for the create command.
type ConfigurationProvider func() CommandConfiguration

// CommandBuilder assembles the Cobra command for fleet change creation.
type CommandBuilder struct {
	LoggerProvider               LoggerProvider
	ConfigurationProvider        ConfigurationProvider
	HumanReadableLoggingProvider func() bool
	Executor                     gitrepo.GitExecutor
	ForgeExecutor                forge.ForgeCommandExecutor
	Clock                        shared.Clock
}

// Build constructs the create command.
func (builder *CommandBuilder) Build() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:   commandUseConstant,
		Short: commandShortDescriptionConstant,
		Long:  commandLongDescriptionConstant,
		Args:  cobra.ExactArgs(1),
		RunE:  builder.run,
	}

	command.Flags().String(flagChangeIdentifierNameConstant, "", flagChangeIdentifierUsageConstant)
	command.Flags().Int(flagBufferNameConstant, 0, flagBufferUsageConstant)
	command.Flags().String(flagMessageNameConstant, "", flagMessageUsageConstant)
	command.Flags().StringArray(flagFilterNameConstant, nil, flagFilterUsageConstant)
	command.Flags().StringArray(flagRootNameConstant, nil, flagRootUsageConstant)
	command.Flags().String(flagManifestNameConstant, "", flagManifestUsageConstant)
	command.Flags().Int(flagPoolNameConstant, 0, flagPoolUsageConstant)
	command.Flags().Bool(flagDeleteNameConstant, false, flagDeleteUsageConstant)
	command.Flags().String(flagAddNameConstant, "", flagAddUsageConstant)
	command.Flags().StringArray(flagSubNameConstant, nil, flagSubUsageConstant)
	command.Flags().StringArray(flagRegexNameConstant, nil, flagRegexUsageConstant)

	return command, nil
}

type runOptions struct {
	globPattern      string
	changeIdentifier string
	commitMessage    string
	contextBuffer    int
	roots            []string
	filters          []string
	poolSize         int
	changeSpec       change.Spec
}

func (builder *CommandBuilder) run(command *cobra.Command, arguments []string) error {
	options, optionsError := builder.parseOptions(command, arguments)
	if optionsError != nil {
		return optionsError
	}

	logger := builder.resolveLogger()

	repositoryManager, forgeClient, wiringError := builder.resolveCollaborators(logger)
	if wiringError != nil {
		return wiringError
	}

	createService, serviceError := create.NewService(create.Dependencies{
		Logger:            logger,
		RepositoryManager: repositoryManager,
		Forge:             forgeClient,
		Renderer:          diff.NewRenderer(true),
	})
	if serviceError != nil {
		return serviceError
	}

	repositories, discoveryError := builder.discoverRepositories(options)
	if discoveryError != nil {
		return fmt.Errorf(commandExecutionErrorTemplateConstant, discoveryError)
	}

	tasks := builder.buildTasks(createService, options, repositories)

	runner, runnerError := fleet.NewRunner(logger, command.OutOrStdout(), options.poolSize)
	if runnerError != nil {
		return runnerError
	}

	if _, runError := runner.Run(command.Context(), tasks); runError != nil {
		return fmt.Errorf(commandExecutionErrorTemplateConstant, runError)
	}

	return nil
}

func (builder *CommandBuilder) parseOptions(command *cobra.Command, arguments []string) (runOptions, error) {
	if len(arguments) != 1 {
		return runOptions{}, errMissingGlobArgument
	}
	globPattern := arguments[0]

	configuration := builder.resolveConfiguration()

	changeSpec, specError := parseChangeSpec(command, globPattern)
	if specError != nil {
		return runOptions{}, specError
	}

	contextBuffer, _ := command.Flags().GetInt(flagBufferNameConstant)
	if contextBuffer == 0 {
		contextBuffer = configuration.Buffer
	}
	if contextBuffer == 0 {
		contextBuffer = defaultContextBufferConstant
	}
	if validationError := diff.ValidateContextBuffer(contextBuffer); validationError != nil {
		return runOptions{}, validationError
	}

	changeIdentifierValue, _ := command.Flags().GetString(flagChangeIdentifierNameConstant)
	changeIdentifier := shared.NormalizeChangeIdentifier(changeIdentifierValue)
	if len(strings.TrimSpace(changeIdentifierValue)) == 0 {
		changeIdentifier = shared.DefaultChangeIdentifier(builder.resolveClock())
	}

	commitMessage, _ := command.Flags().GetString(flagMessageNameConstant)
	filterValues, _ := command.Flags().GetStringArray(flagFilterNameConstant)
	rootValues, _ := command.Flags().GetStringArray(flagRootNameConstant)
	poolSizeValue, _ := command.Flags().GetInt(flagPoolNameConstant)
	manifestPath, _ := command.Flags().GetString(flagManifestNameConstant)

	roots := rootValues
	filters := append([]string{}, configuration.Filters...)
	filters = append(filters, filterValues...)
	poolSize := poolSizeValue

	if len(manifestPath) > 0 {
		manifest, manifestError := fleet.LoadManifest(manifestPath)
		if manifestError != nil {
			return runOptions{}, manifestError
		}
		if len(roots) == 0 {
			roots = manifest.Roots
		}
		filters = append(filters, manifest.Filters...)
		if poolSize == 0 {
			poolSize = manifest.PoolSize
		}
	}
	if len(roots) == 0 {
		roots = configuration.Roots
	}
	if len(roots) == 0 {
		roots = []string{defaultRootConstant}
	}
	if poolSize == 0 {
		poolSize = configuration.PoolSize
	}

	return runOptions{
		globPattern:      globPattern,
		changeIdentifier: changeIdentifier,
		commitMessage:    commitMessage,
		contextBuffer:    contextBuffer,
		roots:            roots,
		filters:          filters,
		poolSize:         poolSize,
		changeSpec:       changeSpec,
	}, nil
}

func parseChangeSpec(command *cobra.Command, globPattern string) (change.Spec, error) {
	deleteRequested, _ := command.Flags().GetBool(flagDeleteNameConstant)
	addContent, _ := command.Flags().GetString(flagAddNameConstant)
	subValues, _ := command.Flags().GetStringArray(flagSubNameConstant)
	regexValues, _ := command.Flags().GetStringArray(flagRegexNameConstant)

	actionCount := 0
	if deleteRequested {
		actionCount++
	}
	if command.Flags().Changed(flagAddNameConstant) {
		actionCount++
	}
	if len(subValues) > 0 {
		actionCount++
	}
	if len(regexValues) > 0 {
		actionCount++
	}
	if actionCount != 1 {
		return change.Spec{}, errActionCount
	}

	switch {
	case deleteRequested:
		return change.NewDeleteSpec(), nil
	case command.Flags().Changed(flagAddNameConstant):
		return change.NewAddSpec(globPattern, addContent), nil
	case len(subValues) > 0:
		if len(subValues) != pairFlagValueCountConstant {
			return change.Spec{}, fmt.Errorf(pairFlagArityTemplateConstant, flagSubNameConstant, flagSubNameConstant, flagSubNameConstant)
		}
		return change.NewSubSpec(subValues[0], subValues[1]), nil
	default:
		if len(regexValues) != pairFlagValueCountConstant {
			return change.Spec{}, fmt.Errorf(pairFlagArityTemplateConstant, flagRegexNameConstant, flagRegexNameConstant, flagRegexNameConstant)
		}
		return change.NewRegexSpec(regexValues[0], regexValues[1]), nil
	}
}

type discoveredRepository struct {
	path string
	slug string
}

func (builder *CommandBuilder) discoverRepositories(options runOptions) ([]discoveredRepository, error) {
	discoverer := discovery.NewFilesystemRepositoryDiscoverer()

	var repositories []discoveredRepository
	for _, rootPath := range options.roots {
		discoveredPaths, discoveryError := discoverer.DiscoverRepositories(rootPath)
		if discoveryError != nil {
			return nil, discoveryError
		}
		for _, discoveredPath := range discoveredPaths {
			repositories = append(repositories, discoveredRepository{
				path: discoveredPath,
				slug: deriveRepositorySlug(rootPath, discoveredPath),
			})
		}
	}

	return filterRepositories(repositories, options.filters), nil
}

// deriveRepositorySlug names a repository by its path relative to the
// discovery root. A root that is itself a repository falls back to its
// base name.
func deriveRepositorySlug(rootPath string, repositoryPath string) string {
	relativePath, relativeError := filepath.Rel(rootPath, repositoryPath)
	if relativeError != nil || relativePath == rootRelativeSlugConstant {
		return filepath.Base(repositoryPath)
	}
	return filepath.ToSlash(relativePath)
}

func filterRepositories(repositories []discoveredRepository, filters []string) []discoveredRepository {
	kept := make([]discoveredRepository, 0, len(repositories))
	for _, repository := range repositories {
		if len(fleet.FilterNames([]string{repository.slug}, filters)) > 0 {
			kept = append(kept, repository)
		}
	}
	return kept
}

func (builder *CommandBuilder) buildTasks(createService *create.Service, options runOptions, repositories []discoveredRepository) []fleet.Task {
	fileMatcher := fleet.NewFilesystemFileMatcher()

	tasks := make([]fleet.Task, 0, len(repositories))
	for _, repository := range repositories {
		currentRepository := repository

		tasks = append(tasks, fleet.Task{
			Label: currentRepository.slug,
			Execute: func(executionContext context.Context) (fleet.TaskReport, error) {
				matchedFiles, matchError := fileMatcher.MatchFiles(currentRepository.path, options.globPattern)
				if matchError != nil {
					return fleet.TaskReport{}, matchError
				}

				changeSpec := options.changeSpec
				target := shared.NewRepoTarget(currentRepository.slug, options.changeIdentifier, &changeSpec, matchedFiles, 0)

				result, executionError := createService.Execute(executionContext, create.Options{
					Target:         target,
					RepositoryPath: currentRepository.path,
					CommitMessage:  options.commitMessage,
					ContextBuffer:  options.contextBuffer,
				})
				if executionError != nil {
					return fleet.TaskReport{}, executionError
				}

				return formatReport(currentRepository.slug, result), nil
			},
		})
	}

	return tasks
}

func formatReport(repositorySlug string, result create.Result) fleet.TaskReport {
	if result.Skipped {
		return fleet.TaskReport{OutputBlock: fmt.Sprintf(repositorySkippedTemplateConstant, repositorySlug), Skipped: true}
	}

	var blockBuilder strings.Builder
	blockBuilder.WriteString(fmt.Sprintf(repositoryBlockHeaderTemplateConstant, repositorySlug))
	blockBuilder.WriteString(result.RenderedDiff)
	if result.DryRun {
		blockBuilder.WriteString(dryRunFooterLineConstant)
	} else {
		blockBuilder.WriteString(fmt.Sprintf(pullRequestLineTemplateConstant, result.PullRequestNumber))
	}

	return fleet.TaskReport{OutputBlock: blockBuilder.String()}
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

func (builder *CommandBuilder) resolveClock() shared.Clock {
	if builder.Clock == nil {
		return shared.SystemClock{}
	}
	return builder.Clock
}

func (builder *CommandBuilder) resolveCollaborators(logger *zap.Logger) (shared.RepositoryManager, shared.ForgeClient, error) {
	gitExecutor := builder.Executor
	forgeExecutor := builder.ForgeExecutor
	if gitExecutor == nil || forgeExecutor == nil {
		commandRunner := execshell.NewOSCommandRunner()

		var observers []execshell.CommandEventObserver
		if builder.HumanReadableLoggingProvider != nil && builder.HumanReadableLoggingProvider() {
			observers = append(observers, ui.NewConsoleCommandEventLogger(logger))
		}

		shellExecutor, executorError := execshell.NewShellExecutor(logger, commandRunner, observers...)
		if executorError != nil {
			return nil, nil, executorError
		}
		if gitExecutor == nil {
			gitExecutor = shellExecutor
		}
		if forgeExecutor == nil {
			forgeExecutor = shellExecutor
		}
	}

	repositoryManager, managerError := gitrepo.NewRepositoryManager(gitExecutor)
	if managerError != nil {
		return nil, nil, managerError
	}

	forgeClient, clientError := forge.NewClient(forgeExecutor)
	if clientError != nil {
		return nil, nil, clientError
	}

	return repositoryManager, forgeClient, nil
}
