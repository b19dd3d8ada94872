package shared

import "fmt"

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig = fmt.Errorf("configuration not found")
	ErrInvalidConfig = fmt.Errorf("invalid configuration")

	// Task errors
	ErrTaskNotFound  = fmt.Errorf("task not found")
	ErrDuplicateTask = fmt.Errorf("task already registered")
	ErrNoTasks       = fmt.Errorf("no tasks configured")

	// Pipeline errors
	ErrBundle       = fmt.Errorf("bundle failed")
	ErrMinify       = fmt.Errorf("minify failed")
	ErrSourceMap    = fmt.Errorf("invalid source map")
	ErrStreamFile   = fmt.Errorf("file is still streaming")
	ErrWriteOutput  = fmt.Errorf("failed to write output")
	ErrWatcherSetup = fmt.Errorf("failed to start watcher")

	// Persistence errors
	ErrRunNotFound = fmt.Errorf("run not found")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
	ErrInvalidFlag     = fmt.Errorf("invalid flag value")
)
