package monitor

import "time"

// SignalKind identifies an environment signal reported by the test-taker's runtime.
type SignalKind string

const (
	SignalVisibility SignalKind = "visibility"
	SignalFullscreen SignalKind = "fullscreen"
	SignalKey        SignalKind = "key"
	SignalPointer    SignalKind = "pointer"
	SignalFocus      SignalKind = "focus"
	SignalActivity   SignalKind = "activity"
)

// Signal is one raw observation from the client runtime.
type Signal struct {
	Kind SignalKind `json:"kind" yaml:"kind"`

	// visibility
	Hidden bool `json:"hidden,omitempty" yaml:"hidden,omitempty"`
	// fullscreen
	Active bool `json:"active,omitempty" yaml:"active,omitempty"`
	// focus
	Focused bool `json:"focused,omitempty" yaml:"focused,omitempty"`

	// key
	Key   string `json:"key,omitempty" yaml:"key,omitempty"`
	Ctrl  bool   `json:"ctrl,omitempty" yaml:"ctrl,omitempty"`
	Shift bool   `json:"shift,omitempty" yaml:"shift,omitempty"`
	Alt   bool   `json:"alt,omitempty" yaml:"alt,omitempty"`
	Meta  bool   `json:"meta,omitempty" yaml:"meta,omitempty"`

	// pointer
	Button      int  `json:"button,omitempty" yaml:"button,omitempty"`
	ContextMenu bool `json:"context_menu,omitempty" yaml:"context_menu,omitempty"`

	At time.Time `json:"-" yaml:"-"`
}
