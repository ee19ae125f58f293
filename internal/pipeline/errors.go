package pipeline

// GenerationError marks a content-provider failure.
type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string { return "generate content: " + e.Err.Error() }
func (e *GenerationError) Unwrap() error { return e.Err }

// RenderError marks a PDF rendering failure.
type RenderError struct {
	Err error
}

func (e *RenderError) Error() string { return "render pdf: " + e.Err.Error() }
func (e *RenderError) Unwrap() error { return e.Err }

// StoreError marks a persistence failure.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string { return "store " + e.Op + ": " + e.Err.Error() }
func (e *StoreError) Unwrap() error { return e.Err }
