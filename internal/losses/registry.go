package losses

import (
	"encoding/json"
	"sort"

	"github.com/Brownie44l1/fer-inference/pkg/errors"
)

// Well-known names a serialized graph references losses by.
const (
	// ObjectLoss is the generic name a compiled graph stores its loss under.
	ObjectLoss = "loss"
	// ObjectWeightedFocalLoss is the class name of the focal loss.
	ObjectWeightedFocalLoss = "WeightedFocalLoss"
)

// ErrUnknownObject is returned when a graph references a name the registry
// cannot reconstruct.
var ErrUnknownObject = errors.New("unknown object")

// Factory reconstructs a loss from its serialized configuration.
type Factory func(config json.RawMessage) (Loss, error)

// Registry maps names to stateless reconstruction functions.
// The zero value is an empty registry ready to use.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register binds name to f, replacing any previous binding. It returns the
// registry for chaining.
func (r *Registry) Register(name string, f Factory) *Registry {
	if r.factories == nil {
		r.factories = make(map[string]Factory)
	}
	r.factories[name] = f
	return r
}

// Has reports whether name can be reconstructed.
func (r *Registry) Has(name string) bool {
	if r == nil {
		return false
	}
	_, ok := r.factories[name]
	return ok
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.factories))
	for n := range r.factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Reconstruct builds the loss registered under name from config.
func (r *Registry) Reconstruct(name string, config json.RawMessage) (Loss, error) {
	if !r.Has(name) {
		return nil, errors.Wrapf(ErrUnknownObject, "%q", name)
	}
	loss, err := r.factories[name](config)
	if err != nil {
		return nil, errors.Wrapf(err, "reconstruct %q", name)
	}
	return loss, nil
}

// Instance returns a factory that ignores configuration and always yields l.
// It mirrors handing a pre-built object to a deserializer.
func Instance(l Loss) Factory {
	return func(json.RawMessage) (Loss, error) {
		return l, nil
	}
}

// Default returns a registry holding every loss this package defines under
// its class name and under the generic loss name.
func Default() *Registry {
	return NewRegistry().
		Register(ObjectLoss, NewSimpleCrossEntropy).
		Register("SimpleCrossEntropy", NewSimpleCrossEntropy).
		Register(ObjectWeightedFocalLoss, WeightedFocalLossFromConfig)
}
