package tabular

import "fmt"

// Registry holds the available loaders and provides auto-detection.
type Registry struct {
	loaders []Loader
}

func NewRegistry(loaders ...Loader) *Registry {
	if len(loaders) == 0 {
		loaders = []Loader{NewDelimitedLoader()}
	}
	return &Registry{loaders: loaders}
}

// Register adds a loader to the registry.
func (r *Registry) Register(l Loader) {
	r.loaders = append(r.loaders, l)
}

// FindLoader detects the right loader for a file.
func (r *Registry) FindLoader(path string) (Loader, error) {
	for _, l := range r.loaders {
		can, err := l.CanLoad(path)
		if err != nil {
			continue
		}
		if can {
			return l, nil
		}
	}
	return nil, fmt.Errorf("no suitable loader found for file: %s", path)
}
