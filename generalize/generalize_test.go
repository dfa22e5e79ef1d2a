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

package generalize

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/wellnessdata/privrelease/checks"
	"github.com/wellnessdata/privrelease/record"
	"gopkg.in/yaml.v3"
)

func date(y int, m time.Month, d int) record.Date {
	return record.Date(time.Date(y, m, d, 12, 0, 0, 0, time.UTC))
}

func TestGeneralize(t *testing.T) {
	for _, tc := range []struct {
		desc     string
		value    record.Value
		strategy Strategy
		want     record.Value
	}{
		// Temporal.
		{"date to year-month", date(2024, time.March, 15), Strategy{Kind: Temporal}, record.String("2024-03")},
		{"date in December", date(1999, time.December, 31), Strategy{Kind: Temporal}, record.String("1999-12")},
		{"ISO date string", record.String("2023-07-04"), Strategy{Kind: Temporal}, record.String("2023-07")},
		{"RFC 3339 string", record.String("2023-07-04T10:00:00Z"), Strategy{Kind: Temporal}, record.String("2023-07")},
		{"non-date string passes through", record.String("soon"), Strategy{Kind: Temporal}, record.String("soon")},
		{"number passes through temporal", record.Number(5), Strategy{Kind: Temporal}, record.Number(5)},
		{"zero date passes through", record.Date(time.Time{}), Strategy{Kind: Temporal}, record.Date(time.Time{})},
		// NumericRange.
		{"age 29 to decade", record.Number(29), Strategy{Kind: NumericRange}, record.String("20-29")},
		{"age 30 starts a decade", record.Number(30), Strategy{Kind: NumericRange}, record.String("30-39")},
		{"zero", record.Number(0), Strategy{Kind: NumericRange}, record.String("0-9")},
		{"negative value", record.Number(-5), Strategy{Kind: NumericRange}, record.String("-10--1")},
		{"custom width", record.Number(42), Strategy{Kind: NumericRange, BucketWidth: 5}, record.String("40-44")},
		{"fractional value", record.Number(37.8), Strategy{Kind: NumericRange}, record.String("30-39")},
		{"string passes through numeric-range", record.String("29"), Strategy{Kind: NumericRange}, record.String("29")},
		{"NaN passes through", record.Number(math.NaN()), Strategy{Kind: NumericRange}, record.Number(math.NaN())},
		// Geographic.
		{"zip code", record.String("94110"), Strategy{Kind: Geographic}, record.String("941**")},
		{"exactly three characters", record.String("941"), Strategy{Kind: Geographic}, record.String("941**")},
		{"short string passes through", record.String("94"), Strategy{Kind: Geographic}, record.String("94")},
		{"multibyte runes", record.String("Zürich"), Strategy{Kind: Geographic}, record.String("Zür**")},
		{"category keeps its type", record.Category("SW1A"), Strategy{Kind: Geographic}, record.Category("SW1**")},
		{"bool passes through geographic", record.Bool(true), Strategy{Kind: Geographic}, record.Bool(true)},
		// Categorical.
		{"categorical pass-through", record.Category("Eng"), Strategy{Kind: Categorical}, record.Category("Eng")},
		{"hierarchy parent", record.Category("Backend"), Strategy{Kind: Categorical, Hierarchy: map[string]string{"Backend": "Eng"}}, record.Category("Eng")},
		{"hierarchy on string", record.String("Backend"), Strategy{Kind: Categorical, Hierarchy: map[string]string{"Backend": "Eng"}}, record.String("Eng")},
		{"hierarchy miss", record.Category("Sales"), Strategy{Kind: Categorical, Hierarchy: map[string]string{"Backend": "Eng"}}, record.Category("Sales")},
		// Unknown kinds and nil values never panic.
		{"unknown kind", record.Number(1), Strategy{Kind: Kind(42)}, record.Number(1)},
		{"nil value", nil, Strategy{Kind: Geographic}, nil},
	} {
		got := Generalize(tc.value, tc.strategy)
		if !record.Equal(got, tc.want) {
			t.Errorf("Generalize: when %s got %#v, want %#v", tc.desc, got, tc.want)
		}
	}
}

func TestTemporalIsIdempotent(t *testing.T) {
	s := Strategy{Kind: Temporal}
	for _, d := range []record.Value{
		date(2024, time.March, 15),
		date(2001, time.January, 1),
		record.String("2019-11-30"),
	} {
		once := Generalize(d, s)
		twice := Generalize(once, s)
		if !record.Equal(once, twice) {
			t.Errorf("Generalize(Generalize(%v)) = %v, want %v", d, twice, once)
		}
	}
}

func TestInfer(t *testing.T) {
	for _, tc := range []struct {
		field string
		want  Kind
	}{
		{"hire_date", Temporal},
		{"BirthDate", Temporal},
		{"age", NumericRange},
		{"AGE_YEARS", NumericRange},
		{"zip", Geographic},
		{"postal_code", Geographic},
		{"dept", Categorical},
		{"score", Categorical},
	} {
		if got := Infer(tc.field).Kind; got != tc.want {
			t.Errorf("Infer(%q): got %v, want %v", tc.field, got, tc.want)
		}
	}
}

func TestResolvePrefersOverride(t *testing.T) {
	overrides := map[string]Strategy{"age": {Kind: NumericRange, BucketWidth: 5}, "dept": {Kind: Geographic}}
	if got, want := Resolve("age", overrides), (Strategy{Kind: NumericRange, BucketWidth: 5}); !cmp.Equal(got, want) {
		t.Errorf("Resolve(age): got %+v, want %+v", got, want)
	}
	if got := Resolve("dept", overrides).Kind; got != Geographic {
		t.Errorf("Resolve(dept): got %v, want geographic", got)
	}
	if got := Resolve("zip", overrides).Kind; got != Geographic {
		t.Errorf("Resolve(zip): got %v, want inferred geographic", got)
	}
	if got := Resolve("hire_date", nil).Kind; got != Temporal {
		t.Errorf("Resolve(hire_date, nil): got %v, want temporal", got)
	}
}

func TestStrategyValidate(t *testing.T) {
	for _, tc := range []struct {
		desc     string
		strategy Strategy
		wantErr  bool
	}{
		{"default numeric range", Strategy{Kind: NumericRange}, false},
		{"explicit width", Strategy{Kind: NumericRange, BucketWidth: 5}, false},
		{"negative width", Strategy{Kind: NumericRange, BucketWidth: -5}, true},
		{"NaN width", Strategy{Kind: NumericRange, BucketWidth: math.NaN()}, true},
		{"unknown kind", Strategy{Kind: Kind(9)}, true},
	} {
		err := tc.strategy.Validate()
		if (err != nil) != tc.wantErr {
			t.Errorf("Validate: when %s for err got %v, want %t", tc.desc, err, tc.wantErr)
		}
		if err != nil && !errors.Is(err, checks.ErrInvalidParameter) {
			t.Errorf("Validate: when %s got %v, want an ErrInvalidParameter", tc.desc, err)
		}
	}
	if err := ValidateOverrides(map[string]Strategy{"age": {Kind: NumericRange, BucketWidth: -1}}); !errors.Is(err, checks.ErrInvalidParameter) {
		t.Errorf("ValidateOverrides: got %v, want an ErrInvalidParameter", err)
	}
}

func TestKindText(t *testing.T) {
	for _, k := range []Kind{Categorical, Temporal, NumericRange, Geographic} {
		b, err := k.MarshalText()
		if err != nil {
			t.Fatalf("MarshalText(%v): got err %v", k, err)
		}
		var got Kind
		if err := got.UnmarshalText(b); err != nil {
			t.Fatalf("UnmarshalText(%q): got err %v", b, err)
		}
		if got != k {
			t.Errorf("UnmarshalText(%q): got %v, want %v", b, got, k)
		}
	}
	if _, err := ParseKind("fuzzy"); !errors.Is(err, checks.ErrInvalidParameter) {
		t.Errorf("ParseKind(fuzzy): got %v, want an ErrInvalidParameter", err)
	}
	if got := Kind(7).String(); got != "Kind(7)" {
		t.Errorf("String: got %q, want Kind(7)", got)
	}
}

func TestStrategyFromYAML(t *testing.T) {
	var got map[string]Strategy
	in := "age: {kind: numeric-range, bucket_width: 5}\nzip: {kind: geographic}\n"
	if err := yaml.Unmarshal([]byte(in), &got); err != nil {
		t.Fatalf("yaml.Unmarshal: got err %v", err)
	}
	want := map[string]Strategy{
		"age": {Kind: NumericRange, BucketWidth: 5},
		"zip": {Kind: Geographic},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("yaml.Unmarshal: mismatch (-want +got):\n%s", diff)
	}
}
