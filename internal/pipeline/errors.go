package pipeline

import "fmt"

// ConfigError reports an invalid pipeline definition: duplicate output
// keys or a stage reading a key no earlier stage produces. Detected at
// setup, before any stage executes.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return "pipeline configuration: " + e.Reason
}

// StageError tags a runtime failure with the stage that produced it.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }
