// Package label defines the small foreground/background classification
// used throughout the pipeline (the classifier, the persistence engine,
// and the root engine all need the same tagged value, so it
// lives in its own leaf package rather than being duplicated or pulled
// in from the public API package, which would create an import cycle).
package label

// Label is the per-pixel classification assigned by the classifier and
// possibly rewritten by the shadow suppressor and persistence engine.
// Its numeric values match the wire values written to the output mask.
type Label uint8

const (
	Background  Label = 0
	Shadow      Label = 80
	Persistence Label = 180
	Foreground  Label = 255
)

// String renders the label using its mnemonic rather than its numeric
// wire value, for log messages and test failure output.
func (l Label) String() string {
	switch l {
	case Background:
		return "background"
	case Shadow:
		return "shadow"
	case Persistence:
		return "persistence"
	case Foreground:
		return "foreground"
	default:
		return "unknown"
	}
}
