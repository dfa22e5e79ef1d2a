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

// Package record defines the per-individual Record and the closed set of
// values it may hold.
//
// Records are values in the copy-on-write sense: every method that changes a
// field returns a new Record and leaves the receiver untouched, so a Record
// received from a caller can be shared freely between stages.
package record

import (
	"math"
	"strconv"
	"time"
)

// Value is one field value. The set of implementations is closed: String,
// Number, Bool, Date and Category.
type Value interface {
	// String returns the canonical text form, used for grouping and hashing.
	String() string
	// IsZero reports whether the value is "falsy": an empty string or
	// category, 0 or NaN, false, or the zero time.
	IsZero() bool

	isValue()
}

// String is free text.
type String string

// Number is a numeric measurement.
type Number float64

// Bool is a yes/no flag.
type Bool bool

// Date is a point in time.
type Date time.Time

// Category is a label drawn from a known set, such as a department.
type Category string

func (s String) String() string { return string(s) }
func (s String) IsZero() bool   { return s == "" }
func (String) isValue()         {}

func (n Number) String() string { return strconv.FormatFloat(float64(n), 'f', -1, 64) }
func (n Number) IsZero() bool   { return n == 0 || math.IsNaN(float64(n)) }
func (Number) isValue()         {}

func (b Bool) String() string { return strconv.FormatBool(bool(b)) }
func (b Bool) IsZero() bool   { return !bool(b) }
func (Bool) isValue()         {}

// String formats the date as RFC 3339 in UTC.
func (d Date) String() string { return time.Time(d).UTC().Format(time.RFC3339) }
func (d Date) IsZero() bool   { return time.Time(d).IsZero() }
func (Date) isValue()         {}

// Time returns d as a time.Time.
func (d Date) Time() time.Time { return time.Time(d) }

func (c Category) String() string { return string(c) }
func (c Category) IsZero() bool   { return c == "" }
func (Category) isValue()         {}

// Float64 returns v as a float64 if v is a finite Number.
func Float64(v Value) (float64, bool) {
	n, ok := v.(Number)
	if !ok {
		return 0, false
	}
	f := float64(n)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// Equal reports whether a and b hold the same variant and value. Two NaN
// Numbers are equal, and Dates compare by instant.
func Equal(a, b Value) bool {
	switch x := a.(type) {
	case Number:
		y, ok := b.(Number)
		if !ok {
			return false
		}
		if math.IsNaN(float64(x)) && math.IsNaN(float64(y)) {
			return true
		}
		return x == y
	case Date:
		y, ok := b.(Date)
		return ok && time.Time(x).Equal(time.Time(y))
	case nil:
		return b == nil
	}
	return a == b
}
