package vectorstore

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// UserIDKey is the payload key that partitions every collection by user.
const UserIDKey = "userId"

var (
	// ErrMissingUser indicates an operation without a user id. Scoped
	// operations fail closed rather than run unfiltered.
	ErrMissingUser = errors.New("user id required")

	// ErrPartitionKeyInFilter indicates a caller filter tried to set userId.
	ErrPartitionKeyInFilter = errors.New("caller filters cannot reference the partition key")
)

// Condition matches a payload key against one or more values.
// A point matches when its value equals any of Values.
type Condition struct {
	Key    string
	Values []string
}

// Match is an exact-match condition.
func Match(key, value string) Condition {
	return Condition{Key: key, Values: []string{value}}
}

// MatchAny matches any of the given values.
func MatchAny(key string, values ...string) Condition {
	return Condition{Key: key, Values: values}
}

// Filter is a conjunction of conditions.
type Filter struct {
	Must []Condition
}

// NewFilter builds a filter from conditions.
func NewFilter(conds ...Condition) Filter {
	return Filter{Must: conds}
}

// And returns a copy of f with extra conditions appended.
func (f Filter) And(conds ...Condition) Filter {
	out := make([]Condition, 0, len(f.Must)+len(conds))
	out = append(out, f.Must...)
	out = append(out, conds...)
	return Filter{Must: out}
}

// IsEmpty reports whether f has no conditions.
func (f Filter) IsEmpty() bool {
	return len(f.Must) == 0
}

// References reports whether any condition uses key.
func (f Filter) References(key string) bool {
	for _, c := range f.Must {
		if c.Key == key {
			return true
		}
	}
	return false
}

// Validate rejects conditions without a key or values.
func (f Filter) Validate() error {
	for _, c := range f.Must {
		if c.Key == "" {
			return errors.New("filter condition has empty key")
		}
		if len(c.Values) == 0 {
			return fmt.Errorf("filter condition %q has no values", c.Key)
		}
	}
	return nil
}

// Matches evaluates f against a payload. Dotted keys address nested maps.
func (f Filter) Matches(payload map[string]any) bool {
	for _, c := range f.Must {
		v, ok := lookup(payload, c.Key)
		if !ok {
			return false
		}
		s := scalarString(v)
		found := false
		for _, want := range c.Values {
			if s == want {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// ScopeToUser prepends the userId condition to a caller filter.
func ScopeToUser(userID string, f Filter) (Filter, error) {
	if userID == "" {
		return Filter{}, ErrMissingUser
	}
	if f.References(UserIDKey) {
		return Filter{}, ErrPartitionKeyInFilter
	}
	if err := f.Validate(); err != nil {
		return Filter{}, err
	}
	return NewFilter(Match(UserIDKey, userID)).And(f.Must...), nil
}

func lookup(payload map[string]any, key string) (any, bool) {
	var cur any = payload
	for _, part := range strings.Split(key, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// scalarString renders a scalar payload value the way it is matched.
func scalarString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(t, 10)
	case int:
		return strconv.Itoa(t)
	default:
		return fmt.Sprint(t)
	}
}
