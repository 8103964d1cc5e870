// Package vclock implements the per-device logical clocks stamped on every
// order. A Clock maps a device identifier to the number of mutations that
// device has authored; absent entries count as zero.
//
// Clocks are values. Tick and Merge return new clocks and never touch their
// receiver, so a candidate clock can be thrown away without side effects.
package vclock

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Ordering is the causal relation between two clocks.
type Ordering int

const (
	Equal Ordering = iota
	Before
	After
	Concurrent
)

func (o Ordering) String() string {
	switch o {
	case Equal:
		return "Equal"
	case Before:
		return "Before"
	case After:
		return "After"
	case Concurrent:
		return "Concurrent"
	}
	return fmt.Sprintf("Ordering(%d)", int(o))
}

// Clock is a vector of device counters.
type Clock map[string]uint64

// New builds a clock from a plain map, dropping zero entries.
func New(entries map[string]uint64) Clock {
	c := make(Clock, len(entries))
	for k, v := range entries {
		if v > 0 {
			c[k] = v
		}
	}
	return c
}

// Get returns the counter for device, zero when absent.
func (c Clock) Get(device string) uint64 {
	return c[device]
}

// Clone returns an independent copy.
func (c Clock) Clone() Clock {
	out := make(Clock, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// Tick returns a copy of c with device's counter incremented by one.
func (c Clock) Tick(device string) Clock {
	out := c.Clone()
	out[device]++
	return out
}

// Merge returns the per-device maximum of c and other.
func (c Clock) Merge(other Clock) Clock {
	out := c.Clone()
	for k, v := range other {
		if v > out[k] {
			out[k] = v
		}
	}
	return out
}

// Compare reports how c relates to other: Before when every entry of c is
// <= other with at least one strictly smaller, After for the mirror case,
// Equal when all entries match and Concurrent otherwise.
func (c Clock) Compare(other Clock) Ordering {
	less, greater := false, false
	for k, v := range c {
		o := other[k]
		if v < o {
			less = true
		} else if v > o {
			greater = true
		}
	}
	for k, o := range other {
		if _, seen := c[k]; seen {
			continue
		}
		if o > 0 {
			less = true
		}
	}

	switch {
	case less && greater:
		return Concurrent
	case less:
		return Before
	case greater:
		return After
	default:
		return Equal
	}
}

// Since counts the mutations recorded in c that base has not seen: the sum
// over devices of how far c is ahead.
func (c Clock) Since(base Clock) uint64 {
	var n uint64
	for k, v := range c {
		if b := base[k]; v > b {
			n += v - b
		}
	}
	return n
}

// Dominates is true when c is After or Equal to other.
func (c Clock) Dominates(other Clock) bool {
	ord := c.Compare(other)
	return ord == After || ord == Equal
}

// String renders the clock with sorted keys, e.g. {A:1,B:2}.
func (c Clock) String() string {
	keys := make([]string, 0, len(c))
	for k, v := range c {
		if v > 0 {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%s:%d", k, c[k])
	}
	b.WriteByte('}')
	return b.String()
}

// MarshalJSON writes the flat {"device": n} form; a nil clock becomes {}.
func (c Clock) MarshalJSON() ([]byte, error) {
	if c == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(map[string]uint64(c))
}

// UnmarshalJSON accepts the flat object form. null decodes to an empty clock.
func (c *Clock) UnmarshalJSON(data []byte) error {
	var m map[string]uint64
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("vclock: decode: %w", err)
	}
	*c = New(m)
	return nil
}

// Value stores the clock as JSON text.
func (c Clock) Value() (driver.Value, error) {
	b, err := c.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan reads the JSON text written by Value.
func (c *Clock) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*c = Clock{}
		return nil
	case []byte:
		return c.UnmarshalJSON(v)
	case string:
		return c.UnmarshalJSON([]byte(v))
	default:
		return fmt.Errorf("vclock: cannot scan %T", src)
	}
}
