package engine

import (
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"
)

// Engines is a collection of descriptors keyed by URI.
type Engines struct {
	engines map[string]*Descriptor
}

// NewEngines returns an empty collection.
func NewEngines() *Engines {
	return &Engines{engines: make(map[string]*Descriptor)}
}

// enginesDoc is the YAML document shape: engines keyed by URI.
type enginesDoc struct {
	Engines map[string]*Descriptor `yaml:"engines"`
}

// ParseEngines decodes a YAML engine collection. Entries whose key is not an
// engine URI are skipped.
func ParseEngines(data []byte) (*Engines, error) {
	var doc enginesDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing engines: %w", err)
	}
	out := NewEngines()
	for uri, d := range doc.Engines {
		if !IsEngineURI(uri) || d == nil {
			continue
		}
		d.URI = uri
		if d.Options == nil {
			d.Options = Options{}
		}
		out.engines[uri] = d
	}
	return out, nil
}

// Marshal encodes the collection as YAML.
func (e *Engines) Marshal() ([]byte, error) {
	return yaml.Marshal(enginesDoc{Engines: e.engines})
}

// Has reports whether uri is present.
func (e *Engines) Has(uri string) bool {
	_, ok := e.engines[uri]
	return ok
}

// Get returns the descriptor for uri, or nil.
func (e *Engines) Get(uri string) *Descriptor {
	return e.engines[uri]
}

// Add inserts or replaces a descriptor.
func (e *Engines) Add(d *Descriptor) {
	e.engines[d.URI] = d
}

// Update replaces an existing descriptor. Returns false if uri is unknown.
func (e *Engines) Update(d *Descriptor) bool {
	if !e.Has(d.URI) {
		return false
	}
	e.engines[d.URI] = d
	return true
}

// Remove deletes uri. Returns false if it was not present.
func (e *Engines) Remove(uri string) bool {
	if !e.Has(uri) {
		return false
	}
	delete(e.engines, uri)
	return true
}

// Len returns the number of engines.
func (e *Engines) Len() int {
	return len(e.engines)
}

// List returns engines sorted by name, default name, then URI.
func (e *Engines) List() []*Descriptor {
	list := make([]*Descriptor, 0, len(e.engines))
	for _, d := range e.engines {
		list = append(list, d)
	}
	sort.Slice(list, func(i, j int) bool {
		a, b := list[i], list[j]
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		if a.DefaultName != b.DefaultName {
			return a.DefaultName < b.DefaultName
		}
		return a.URI < b.URI
	})
	return list
}

// FilterByLabel returns a new collection holding only engines with label.
func (e *Engines) FilterByLabel(label Label) *Engines {
	out := NewEngines()
	for _, d := range e.engines {
		if d.Labels.Has(label) {
			out.engines[d.URI] = d
		}
	}
	return out
}

// Find resolves ref as a URI first, then as a display name.
func (e *Engines) Find(ref string) (*Descriptor, bool) {
	if d, ok := e.engines[ref]; ok {
		return d, true
	}
	for _, d := range e.List() {
		if d.DisplayName() == ref {
			return d, true
		}
	}
	return nil, false
}
