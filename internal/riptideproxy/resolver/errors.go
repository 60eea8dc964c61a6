package resolver

import "fmt"

// ProjectLoadError wraps any error raised by the project loader while
// loading a specific project, chaining the cause the way Caddy's
// HandlerError chains an underlying error (spec.md §4.2, §7).
type ProjectLoadError struct {
	ProjectName string
	Cause       error
}

func (e *ProjectLoadError) Error() string {
	return fmt.Sprintf("could not load project %q: %v", e.ProjectName, e.Cause)
}

func (e *ProjectLoadError) Unwrap() error { return e.Cause }

// Chain flattens e's cause chain into display strings, filtering out
// consecutive duplicate messages - the Go equivalent of the Python
// source's format_load_error (spec.md §7: "filter consecutive
// duplicates").
func (e *ProjectLoadError) Chain() []string {
	stack := []string{e.Error()}
	previous := e.Error()
	var cur error = e.Cause
	for cur != nil {
		msg := cur.Error()
		if msg != previous {
			stack = append(stack, ">> Caused by "+msg)
		}
		previous = msg
		cur = unwrapOnce(cur)
	}
	return stack
}

func unwrapOnce(err error) error {
	type unwrapper interface{ Unwrap() error }
	if u, ok := err.(unwrapper); ok {
		return u.Unwrap()
	}
	return nil
}
