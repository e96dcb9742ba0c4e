package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	applicationCacheDirectoryNameConstant = "patchfleet"
	logSubdirectoryNameConstant           = "logs"
	logFileNameTemplateConstant           = "patchfleet-%s.log"
	logFileTimestampLayoutConstant        = "20060102-150405"
	logDirectoryPermissionsConstant       = 0o755
	logDirectoryErrorTemplateConstant     = "unable to prepare log directory: %w"
)

// ResolveLogFilePath creates the application log directory under the user
// cache directory and returns the path of a timestamped log file inside it.
func ResolveLogFilePath(currentTime time.Time) (string, error) {
	cacheDirectory, cacheError := os.UserCacheDir()
	if cacheError != nil {
		return "", fmt.Errorf(logDirectoryErrorTemplateConstant, cacheError)
	}

	logDirectory := filepath.Join(cacheDirectory, applicationCacheDirectoryNameConstant, logSubdirectoryNameConstant)
	if mkdirError := os.MkdirAll(logDirectory, logDirectoryPermissionsConstant); mkdirError != nil {
		return "", fmt.Errorf(logDirectoryErrorTemplateConstant, mkdirError)
	}

	logFileName := fmt.Sprintf(logFileNameTemplateConstant, currentTime.Format(logFileTimestampLayoutConstant))
	return filepath.Join(logDirectory, logFileName), nil
}
