//
// Copyright 2024 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//

package record

import (
	"slices"
	"strings"
)

// Field is one named value of a Record.
type Field struct {
	Name  string
	Value Value
}

// Record is an ordered mapping of field names to values. The zero Record is
// empty and ready to use.
type Record struct {
	fields []Field
}

// New returns a Record holding fields in order. A later field with the same
// name replaces the value of an earlier one and keeps the earlier position.
func New(fields ...Field) Record {
	var r Record
	for _, f := range fields {
		r = r.With(f.Name, f.Value)
	}
	return r
}

// F is shorthand for Field{name, v}.
func F(name string, v Value) Field {
	return Field{Name: name, Value: v}
}

func (r Record) index(name string) int {
	for i, f := range r.fields {
		if f.Name == name {
			return i
		}
	}
	return -1
}

// Len returns the number of fields.
func (r Record) Len() int { return len(r.fields) }

// Get returns the value of field name.
func (r Record) Get(name string) (Value, bool) {
	if i := r.index(name); i >= 0 {
		return r.fields[i].Value, true
	}
	return nil, false
}

// Has reports whether r has field name.
func (r Record) Has(name string) bool { return r.index(name) >= 0 }

// Names returns the field names in order.
func (r Record) Names() []string {
	names := make([]string, len(r.fields))
	for i, f := range r.fields {
		names[i] = f.Name
	}
	return names
}

// Fields returns a copy of the fields in order.
func (r Record) Fields() []Field {
	return slices.Clone(r.fields)
}

// Clone returns a copy of r that shares no storage with it.
func (r Record) Clone() Record {
	return Record{fields: slices.Clone(r.fields)}
}

// With returns a copy of r with field name set to v. An existing field keeps
// its position; a new field is appended.
func (r Record) With(name string, v Value) Record {
	out := r.Clone()
	if i := out.index(name); i >= 0 {
		out.fields[i].Value = v
		return out
	}
	out.fields = append(out.fields, Field{Name: name, Value: v})
	return out
}

// Without returns a copy of r with the named fields absent.
func (r Record) Without(names ...string) Record {
	out := Record{fields: make([]Field, 0, len(r.fields))}
	for _, f := range r.fields {
		if !slices.Contains(names, f.Name) {
			out.fields = append(out.fields, f)
		}
	}
	return out
}

// Equal reports whether r and o hold the same fields in the same order.
func (r Record) Equal(o Record) bool {
	if len(r.fields) != len(o.fields) {
		return false
	}
	for i, f := range r.fields {
		g := o.fields[i]
		if f.Name != g.Name || !Equal(f.Value, g.Value) {
			return false
		}
	}
	return true
}

func (r Record) String() string {
	var b strings.Builder
	b.WriteByte('{')
	for i, f := range r.fields {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(f.Name)
		b.WriteByte(':')
		if f.Value == nil {
			b.WriteString("<nil>")
		} else {
			b.WriteString(f.Value.String())
		}
	}
	b.WriteByte('}')
	return b.String()
}

// CloneAll returns copies of records.
func CloneAll(records []Record) []Record {
	out := make([]Record, len(records))
	for i, r := range records {
		out[i] = r.Clone()
	}
	return out
}
