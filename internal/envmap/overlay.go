package envmap

import (
	"errors"
	"fmt"
)

// Unsetter is implemented by environments that can remove a key.
type Unsetter interface {
	Unset(key string) error
}

type stagedWrite struct {
	key, value string
}

// Overlay stages writes on top of a base Environment. Lookups see staged
// values first. Nothing reaches the base until Commit.
type Overlay struct {
	base   Environment
	staged map[string]string
	order  []stagedWrite
}

// NewOverlay returns an empty overlay over base.
func NewOverlay(base Environment) *Overlay {
	return &Overlay{base: base, staged: make(map[string]string)}
}

// Lookup returns the staged value for key, falling back to the base.
func (o *Overlay) Lookup(key string) (string, bool) {
	if v, ok := o.staged[key]; ok {
		return v, true
	}
	return o.base.Lookup(key)
}

// Set stages value under key.
func (o *Overlay) Set(key, value string) error {
	o.staged[key] = value
	o.order = append(o.order, stagedWrite{key: key, value: value})
	return nil
}

// Commit applies the staged writes to the base in the order they were made.
// When a write fails, writes already applied by this call are reverted
// and the base is left as it was before Commit.
func (o *Overlay) Commit() error {
	type prior struct {
		key     string
		value   string
		present bool
	}
	applied := make([]prior, 0, len(o.order))
	for _, w := range o.order {
		old, present := o.base.Lookup(w.key)
		if err := o.base.Set(w.key, w.value); err != nil {
			err = fmt.Errorf("set envvar %s: %w", w.key, err)
			for i := len(applied) - 1; i >= 0; i-- {
				if rerr := o.restore(applied[i].key, applied[i].value, applied[i].present); rerr != nil {
					err = errors.Join(err, rerr)
				}
			}
			return err
		}
		applied = append(applied, prior{key: w.key, value: old, present: present})
	}
	o.staged = make(map[string]string)
	o.order = nil
	return nil
}

func (o *Overlay) restore(key, value string, present bool) error {
	if present {
		return o.base.Set(key, value)
	}
	if u, ok := o.base.(Unsetter); ok {
		return u.Unset(key)
	}
	return fmt.Errorf("cannot remove envvar %s", key)
}
