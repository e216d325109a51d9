package interpolate

import (
	"errors"
	"fmt"
)

// ErrTemplateResolution is matched by every *TemplateResolutionError.
var ErrTemplateResolution = errors.New("template resolution failed")

// TemplateResolutionError is returned when a placeholder is neither built in nor
// exposed by the attribute source.
type TemplateResolutionError struct {
	Template    string
	Placeholder string
}

func (e *TemplateResolutionError) Error() string {
	return fmt.Sprintf("unknown placeholder :%s in %q", e.Placeholder, e.Template)
}

// Is reports whether target is ErrTemplateResolution.
func (e *TemplateResolutionError) Is(target error) bool {
	return target == ErrTemplateResolution
}
