package migrate

import "fmt"

// EntityError wraps a failure migrating one entity. It is caught at the
// migrator boundary, logged with the source identifier, and never aborts
// sibling work.
type EntityError struct {
	Kind     string
	SourceID int64
	Err      error
}

func (e *EntityError) Error() string {
	return fmt.Sprintf("failed to migrate %s %d: %v", e.Kind, e.SourceID, e.Err)
}

func (e *EntityError) Unwrap() error { return e.Err }

// ProjectError wraps an unrecoverable failure at project scope. The project
// is not marked processed so a later run retries it from the beginning.
type ProjectError struct {
	ProjectID int64
	State     State
	Err       error
}

func (e *ProjectError) Error() string {
	return fmt.Sprintf("project %d migration failed in state %s: %v", e.ProjectID, e.State, e.Err)
}

func (e *ProjectError) Unwrap() error { return e.Err }
