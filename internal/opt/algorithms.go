package opt

// Algorithm identifiers accepted by the session and the CLI.
const (
	AlgorithmSwarm   = "pso"
	AlgorithmGenetic = "ga"
)

// Algorithms lists the identifiers in menu order.
func Algorithms() []string {
	return []string{AlgorithmGenetic, AlgorithmSwarm}
}

// Label returns the display name of an algorithm identifier.
func Label(algorithm string) string {
	switch algorithm {
	case AlgorithmSwarm:
		return "Particle Swarm Optimization"
	case AlgorithmGenetic:
		return "Genetic Algorithm"
	default:
		return algorithm
	}
}
