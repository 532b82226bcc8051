package economy

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

var ErrCountryNotFound = errors.New("country not found")

// Registry owns the country economies. Callers only ever receive copies, so a
// report never sees a country change underneath it.
type Registry struct {
	mu        sync.RWMutex
	countries map[string]CountryEconomy
}

func NewRegistry(countries ...CountryEconomy) *Registry {
	r := &Registry{countries: make(map[string]CountryEconomy, len(countries))}
	for _, c := range countries {
		r.Register(c)
	}
	return r
}

func (r *Registry) Register(c CountryEconomy) {
	c.ID = strings.ToLower(strings.TrimSpace(c.ID))
	r.mu.Lock()
	r.countries[c.ID] = c.clone()
	r.mu.Unlock()
}

// Get returns a snapshot of one country for the current quarter.
func (r *Registry) Get(id string) (*CountryEconomy, error) {
	r.mu.RLock()
	c, ok := r.countries[strings.ToLower(strings.TrimSpace(id))]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCountryNotFound, id)
	}
	out := c.clone()
	return &out, nil
}

func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.countries))
	for id := range r.countries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// AdvanceQuarter compounds inflation for every country.
func (r *Registry) AdvanceQuarter() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, c := range r.countries {
		c = c.clone()
		c.AdvanceInflation()
		r.countries[id] = c
	}
}

type registryFile struct {
	Countries []CountryEconomy `yaml:"countries"`
}

// LoadRegistryFile reads a YAML document of the form
//
//	countries:
//	  - id: us
//	    personal_tax_rate: 22
func LoadRegistryFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read countries: %w", err)
	}
	return ParseRegistry(data)
}

func ParseRegistry(data []byte) (*Registry, error) {
	var f registryFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse countries: %w", err)
	}
	if len(f.Countries) == 0 {
		return nil, errors.New("countries file has no entries")
	}
	for i, c := range f.Countries {
		if strings.TrimSpace(c.ID) == "" {
			return nil, fmt.Errorf("country %d has no id", i)
		}
	}
	return NewRegistry(f.Countries...), nil
}

// DefaultCountries is used when no countries file is configured.
func DefaultCountries() []CountryEconomy {
	return []CountryEconomy{
		{ID: "us", Name: "United States", PersonalTaxRate: 22, CorporateTaxRate: 21, CostOfLiving: 1.2, InflationRate: 3},
		{ID: "de", Name: "Germany", PersonalTaxRate: 30, CorporateTaxRate: 30, CostOfLiving: 1.1, InflationRate: 2.5},
		{ID: "in", Name: "India", PersonalTaxRate: 15, CorporateTaxRate: 25, CostOfLiving: 0.4, InflationRate: 5},
	}
}
