package clustering

// Option configures a clustering run.
type Option func(*config)

type config struct {
	restarts      int
	maxIterations int
	seed          uint64
}

func defaultConfig() config {
	return config{restarts: 10, maxIterations: 300, seed: 42}
}

// WithRestarts sets how many seeded k-means runs compete on inertia.
func WithRestarts(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.restarts = n
		}
	}
}

// WithMaxIterations bounds Lloyd iterations per k-means run.
func WithMaxIterations(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.maxIterations = n
		}
	}
}

// WithSeed fixes the k-means random source.
func WithSeed(seed uint64) Option {
	return func(c *config) { c.seed = seed }
}
