package models

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"math"
	"sort"
)

// ParameterSet maps parameter name to value. Integer-typed and boolean
// parameters are stored as whole floats (booleans as 0/1) so one flat type
// can flow through grid enumeration and genetic recombination.
type ParameterSet map[string]float64

// Clone returns an independent copy of the parameter set
func (p ParameterSet) Clone() ParameterSet {
	out := make(ParameterSet, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Get returns the value for name, or fallback when absent
func (p ParameterSet) Get(name string, fallback float64) float64 {
	if v, ok := p[name]; ok {
		return v
	}
	return fallback
}

// GetInt returns the value for name rounded to the nearest integer
func (p ParameterSet) GetInt(name string, fallback int) int {
	if v, ok := p[name]; ok {
		return int(math.Round(v))
	}
	return fallback
}

// GetBool treats any value above 0.5 as true
func (p ParameterSet) GetBool(name string, fallback bool) bool {
	if v, ok := p[name]; ok {
		return v > 0.5
	}
	return fallback
}

// Hash returns a stable hash of the parameter set for run identification
func (p ParameterSet) Hash() string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	ordered := make([]interface{}, 0, len(keys)*2)
	for _, k := range keys {
		ordered = append(ordered, k, p[k])
	}
	data, _ := json.Marshal(ordered)
	sum := sha256.Sum256(data)
	return fmt.Sprintf("%x", sum[:8])
}
