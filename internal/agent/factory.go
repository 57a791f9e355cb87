package agent

import (
	"fmt"
	"sync"
)

// Options selects and configures an executor variant.
type Options struct {
	// Kind chooses the variant: "cli" or "mock".
	Kind string

	// BinaryPath is the CLI binary for the "cli" kind.
	BinaryPath string

	// Model pins a backend model flag for the "cli" kind.
	Model string
}

// fingerprint keys the registry cache. Two Options with equal fingerprints
// share one executor instance.
func (o Options) fingerprint() string {
	return fmt.Sprintf("%s|%s|%s", o.Kind, o.BinaryPath, o.Model)
}

// Registry caches executor instances by configuration fingerprint. Each
// registry has an independent lifetime, so tests construct isolated
// instances instead of sharing process-global state.
type Registry struct {
	mu    sync.Mutex
	cache map[string]Executor
}

// NewRegistry creates an empty executor registry.
func NewRegistry() *Registry {
	return &Registry{cache: make(map[string]Executor)}
}

// Get returns the cached executor for opts, constructing it on first use.
func (r *Registry) Get(opts Options) (Executor, error) {
	key := opts.fingerprint()

	r.mu.Lock()
	defer r.mu.Unlock()

	if exec, ok := r.cache[key]; ok {
		return exec, nil
	}

	exec, err := NewExecutor(opts)
	if err != nil {
		return nil, err
	}
	r.cache[key] = exec
	return exec, nil
}

// NewExecutor constructs an executor variant from explicit options. This is
// the single construction point: callers never probe executor capabilities
// at runtime.
func NewExecutor(opts Options) (Executor, error) {
	switch opts.Kind {
	case "cli", "":
		cli := NewCLIExecutor(opts.BinaryPath)
		cli.Model = opts.Model
		return cli, nil
	case "mock":
		return NewMockExecutor(), nil
	default:
		return nil, fmt.Errorf("unknown executor kind %q", opts.Kind)
	}
}
