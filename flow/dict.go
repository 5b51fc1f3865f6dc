// Package flow defines the flow definition attached to a link and the
// buffers which travel through it.
package flow

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Dict is a typed attribute dictionary. Supported value types are string,
// uint64, time.Duration and Rational. Zero value is an empty dictionary.
type Dict struct {
	attrs map[string]interface{}
}

func (d *Dict) set(key string, v interface{}) {
	if d.attrs == nil {
		d.attrs = make(map[string]interface{})
	}
	d.attrs[key] = v
}

// SetString sets string attribute.
func (d *Dict) SetString(key, v string) {
	d.set(key, v)
}

// String returns string attribute. False is returned if key is missing or
// holds a value of another type.
func (d *Dict) String(key string) (string, bool) {
	v, ok := d.attrs[key].(string)
	return v, ok
}

// SetUnsigned sets unsigned attribute.
func (d *Dict) SetUnsigned(key string, v uint64) {
	d.set(key, v)
}

// Unsigned returns unsigned attribute.
func (d *Dict) Unsigned(key string) (uint64, bool) {
	v, ok := d.attrs[key].(uint64)
	return v, ok
}

// SetDuration sets duration attribute.
func (d *Dict) SetDuration(key string, v time.Duration) {
	d.set(key, v)
}

// Duration returns duration attribute.
func (d *Dict) Duration(key string) (time.Duration, bool) {
	v, ok := d.attrs[key].(time.Duration)
	return v, ok
}

// SetRational sets rational attribute.
func (d *Dict) SetRational(key string, v Rational) {
	d.set(key, v)
}

// Rational returns rational attribute.
func (d *Dict) Rational(key string) (Rational, bool) {
	v, ok := d.attrs[key].(Rational)
	return v, ok
}

// Delete removes the attribute.
func (d *Dict) Delete(key string) {
	delete(d.attrs, key)
}

// Len returns number of attributes.
func (d *Dict) Len() int {
	return len(d.attrs)
}

// Keys returns sorted attribute keys.
func (d *Dict) Keys() []string {
	keys := make([]string, 0, len(d.attrs))
	for k := range d.attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Equal reports whether both dictionaries hold the same attributes.
func (d *Dict) Equal(o *Dict) bool {
	if d == nil || o == nil {
		return d == o
	}
	if len(d.attrs) != len(o.attrs) {
		return false
	}
	for k, v := range d.attrs {
		ov, ok := o.attrs[k]
		if !ok || ov != v {
			return false
		}
	}
	return true
}

func (d *Dict) dup() Dict {
	c := Dict{attrs: make(map[string]interface{}, len(d.attrs))}
	for k, v := range d.attrs {
		c.attrs[k] = v
	}
	return c
}

// GoString prints attributes in key order.
func (d *Dict) GoString() string {
	var b strings.Builder
	b.WriteByte('{')
	for i, k := range d.Keys() {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s=%v", k, d.attrs[k])
	}
	b.WriteByte('}')
	return b.String()
}
