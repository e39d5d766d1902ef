package overlay

import "github.com/mr1hm/go-relief-map/internal/geo"

// Surface is the map widget the engine draws on.
type Surface interface {
	// AttachLayer shows the layer. Attaching an already attached kind
	// replaces the previous attachment.
	AttachLayer(l *Layer)
	// DetachLayer hides the layer of the given kind.
	DetachLayer(kind LayerKind)
	// FitBounds moves the viewport so b is visible with padding pixels of margin.
	FitBounds(b geo.Bounds, padding int)
}
