// Package render holds the point-rendering collaborator used by sessions.
package render

// Handle identifies one drawn point. Handles are opaque to callers.
type Handle string

// Perspective selects the view of the objective.
type Perspective string

const (
	// Perspective2D shows a curve y = f(x).
	Perspective2D Perspective = "2d"
	// Perspective3D shows a surface z = f(x, y).
	Perspective3D Perspective = "3d"
)

// PerspectiveFor maps an objective dimension to its view.
func PerspectiveFor(dim int) Perspective {
	if dim == 2 {
		return Perspective3D
	}
	return Perspective2D
}

// Renderer draws the objective and the population on it.
type Renderer interface {
	// ShowExpression replaces the plotted curve or surface.
	ShowExpression(expression string)

	// DrawPoints places one point per position on the expression's graph and
	// returns one handle per position, in order.
	DrawPoints(expression string, positions [][]float64) []Handle

	// RemovePoints deletes previously drawn points. Unknown handles and an
	// empty slice are ignored.
	RemovePoints(handles []Handle)

	// SetPerspective switches between the 2-D and 3-D view.
	SetPerspective(p Perspective)

	// SetGridVisible toggles the background grid.
	SetGridVisible(visible bool)
}
