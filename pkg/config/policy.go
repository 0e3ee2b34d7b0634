package config

import (
	"sort"
	"strings"
)

// DefaultOrderedKeys are entry keys whose values must keep declaration
// order, e.g. the addresses bound to an interface.
var DefaultOrderedKeys = []string{"address"}

// Policy decides how entry groups are ordered.
type Policy struct {
	ordered map[string]bool
}

// NewPolicy returns a Policy treating keys as order-significant.
func NewPolicy(keys ...string) Policy {
	p := Policy{ordered: make(map[string]bool, len(keys))}
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			p.ordered[k] = true
		}
	}
	return p
}

// DefaultPolicy returns the Policy for EdgeRouter config.boot files.
func DefaultPolicy() Policy {
	return NewPolicy(DefaultOrderedKeys...)
}

// ParsePolicy builds a Policy from a comma separated key list.
func ParsePolicy(list string) Policy {
	return NewPolicy(strings.Split(list, ",")...)
}

// Sortable reports whether entries named key may be resorted.
func (p Policy) Sortable(key string) bool {
	return !p.ordered[key]
}

// OrderedKeys returns the order-significant keys, sorted.
func (p Policy) OrderedKeys() []string {
	keys := make([]string, 0, len(p.ordered))
	for k := range p.ordered {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (p Policy) String() string {
	return strings.Join(p.OrderedKeys(), ",")
}
