package errors

// ConfigError creates a fatal configuration error. A configuration error is
// raised before any matrix entry runs, so no entry-level results or
// notifications are produced beyond local logging.
func ConfigError(message string) *PipelineError {
	return &PipelineError{
		Category: CategoryConfig,
		Severity: SeverityFatal,
		Message:  message,
	}
}

// ValidationError creates a new validation error
func ValidationError(message string) *PipelineError {
	return &PipelineError{
		Category: CategoryValidation,
		Severity: SeverityWarning,
		Message:  message,
	}
}

// SecretResolutionError creates an error for a secret that failed to resolve.
// Fatal only for packages that declare the secret as required; entries that do
// not depend on it proceed.
func SecretResolutionError(message string) *PipelineError {
	return &PipelineError{
		Category: CategorySecret,
		Severity: SeverityError,
		Message:  message,
	}
}

// StepFailure creates an error for a step that exited non-zero.
func StepFailure(message string) *PipelineError {
	return &PipelineError{
		Category: CategoryStep,
		Severity: SeverityError,
		Message:  message,
	}
}

// DaemonError creates a new daemon error (service unavailable)
func DaemonError(message string) *PipelineError {
	return &PipelineError{
		Category: CategoryDaemon,
		Severity: SeverityError,
		Message:  message,
	}
}

// WrapError wraps an existing error with a new PipelineError at SeverityError.
func WrapError(err error, category ErrorCategory, message string) *PipelineError {
	return &PipelineError{
		Category: category,
		Severity: SeverityError,
		Message:  message,
		Cause:    err,
	}
}
