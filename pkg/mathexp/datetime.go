// Copyright 2026 The adsfetch Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package mathexp

import (
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/google/cel-go/common/types/traits"
)

var (
	localDateType     = types.NewObjectType("ads.LocalDate", traits.AdderType|traits.SubtractorType)
	localDateTimeType = types.NewObjectType("ads.LocalDateTime", traits.AdderType|traits.SubtractorType)
	periodType        = types.NewObjectType("ads.Period")
)

// LocalDate is a calendar date without a time zone, usable with + and - in
// expressions: date +/- Period, date +/- int (days), and date - date, which
// yields a Period.
type LocalDate struct {
	Date civil.Date
}

var _ ref.Val = LocalDate{}
var _ traits.Adder = LocalDate{}
var _ traits.Subtractor = LocalDate{}

func (d LocalDate) addDays(days int64) LocalDate {
	return LocalDate{Date: d.Date.AddDays(int(days))}
}

func (d LocalDate) addPeriod(p Period, sign int) LocalDate {
	t := d.Date.In(time.UTC).AddDate(sign*p.Years, sign*p.Months, sign*p.Days)
	return LocalDate{Date: civil.DateOf(t)}
}

// Add implements date + int (days) and date + Period.
func (d LocalDate) Add(other ref.Val) ref.Val {
	switch o := other.(type) {
	case types.Int:
		return d.addDays(int64(o))
	case Period:
		return d.addPeriod(o, 1)
	}
	return types.NewErr("no such overload: LocalDate + %s", other.Type().TypeName())
}

// Subtract implements date - int, date - Period and date - date.
func (d LocalDate) Subtract(other ref.Val) ref.Val {
	switch o := other.(type) {
	case types.Int:
		return d.addDays(-int64(o))
	case Period:
		return d.addPeriod(o, -1)
	case LocalDate:
		return Period{Days: d.Date.DaysSince(o.Date)}
	}
	return types.NewErr("no such overload: LocalDate - %s", other.Type().TypeName())
}

func (d LocalDate) ConvertToNative(typeDesc reflect.Type) (any, error) {
	switch typeDesc {
	case reflect.TypeOf(civil.Date{}):
		return d.Date, nil
	case reflect.TypeOf(""):
		return d.Date.String(), nil
	case reflect.TypeOf(time.Time{}):
		return d.Date.In(time.UTC), nil
	}
	return nil, fmt.Errorf("unsupported native conversion from LocalDate to %v", typeDesc)
}

func (d LocalDate) ConvertToType(typeVal ref.Type) ref.Val {
	switch typeVal {
	case types.StringType:
		return types.String(d.Date.String())
	case types.TypeType:
		return localDateType
	}
	return types.NewErr("type conversion error from LocalDate to %s", typeVal)
}

func (d LocalDate) Equal(other ref.Val) ref.Val {
	o, ok := other.(LocalDate)
	return types.Bool(ok && d.Date == o.Date)
}

func (d LocalDate) Type() ref.Type { return localDateType }
func (d LocalDate) Value() any     { return d.Date }

// LocalDateTime is a wall-clock datetime without a zone: datetime +/- Duration
// and datetime - datetime, which yields a Duration.
type LocalDateTime struct {
	DateTime civil.DateTime
}

var _ ref.Val = LocalDateTime{}
var _ traits.Adder = LocalDateTime{}
var _ traits.Subtractor = LocalDateTime{}

func (d LocalDateTime) addDuration(dur time.Duration) LocalDateTime {
	t := d.DateTime.In(time.UTC).Add(dur)
	return LocalDateTime{DateTime: civil.DateTimeOf(t)}
}

// Add implements datetime + Duration.
func (d LocalDateTime) Add(other ref.Val) ref.Val {
	if o, ok := other.(types.Duration); ok {
		return d.addDuration(o.Duration)
	}
	return types.NewErr("no such overload: LocalDateTime + %s", other.Type().TypeName())
}

// Subtract implements datetime - Duration and datetime - datetime.
func (d LocalDateTime) Subtract(other ref.Val) ref.Val {
	switch o := other.(type) {
	case types.Duration:
		return d.addDuration(-o.Duration)
	case LocalDateTime:
		return types.Duration{Duration: d.DateTime.In(time.UTC).Sub(o.DateTime.In(time.UTC))}
	}
	return types.NewErr("no such overload: LocalDateTime - %s", other.Type().TypeName())
}

func (d LocalDateTime) ConvertToNative(typeDesc reflect.Type) (any, error) {
	switch typeDesc {
	case reflect.TypeOf(civil.DateTime{}):
		return d.DateTime, nil
	case reflect.TypeOf(""):
		return d.String(), nil
	case reflect.TypeOf(time.Time{}):
		return d.DateTime.In(time.UTC), nil
	}
	return nil, fmt.Errorf("unsupported native conversion from LocalDateTime to %v", typeDesc)
}

func (d LocalDateTime) ConvertToType(typeVal ref.Type) ref.Val {
	switch typeVal {
	case types.StringType:
		return types.String(d.String())
	case types.TypeType:
		return localDateTimeType
	}
	return types.NewErr("type conversion error from LocalDateTime to %s", typeVal)
}

func (d LocalDateTime) Equal(other ref.Val) ref.Val {
	o, ok := other.(LocalDateTime)
	return types.Bool(ok && d.DateTime == o.DateTime)
}

func (d LocalDateTime) Type() ref.Type { return localDateTimeType }
func (d LocalDateTime) Value() any     { return d.DateTime }

// String renders "2006-01-02 15:04:05", the form the report dialect uses.
func (d LocalDateTime) String() string {
	return d.DateTime.In(time.UTC).Format("2006-01-02 15:04:05")
}

// Period is a calendar amount of years, months and days.
type Period struct {
	Years  int
	Months int
	Days   int
}

var _ ref.Val = Period{}

var periodRe = regexp.MustCompile(`^(-)?P(?:(\d+)Y)?(?:(\d+)M)?(?:(\d+)W)?(?:(\d+)D)?$`)

// ParsePeriod parses an ISO-8601 period such as "P7D", "P1M" or "P1Y2M3D".
func ParsePeriod(s string) (Period, error) {
	m := periodRe.FindStringSubmatch(strings.ToUpper(strings.TrimSpace(s)))
	if m == nil || (m[2] == "" && m[3] == "" && m[4] == "" && m[5] == "") {
		return Period{}, fmt.Errorf("invalid period %q", s)
	}
	atoi := func(v string) int {
		if v == "" {
			return 0
		}
		n, _ := strconv.Atoi(v)
		return n
	}
	p := Period{
		Years:  atoi(m[2]),
		Months: atoi(m[3]),
		Days:   atoi(m[4])*7 + atoi(m[5]),
	}
	if m[1] == "-" {
		p.Years, p.Months, p.Days = -p.Years, -p.Months, -p.Days
	}
	return p, nil
}

func (p Period) String() string {
	if p.Years == 0 && p.Months == 0 && p.Days == 0 {
		return "P0D"
	}
	var b strings.Builder
	b.WriteString("P")
	if p.Years != 0 {
		fmt.Fprintf(&b, "%dY", p.Years)
	}
	if p.Months != 0 {
		fmt.Fprintf(&b, "%dM", p.Months)
	}
	if p.Days != 0 {
		fmt.Fprintf(&b, "%dD", p.Days)
	}
	return b.String()
}

func (p Period) ConvertToNative(typeDesc reflect.Type) (any, error) {
	if typeDesc == reflect.TypeOf("") {
		return p.String(), nil
	}
	return nil, fmt.Errorf("unsupported native conversion from Period to %v", typeDesc)
}

func (p Period) ConvertToType(typeVal ref.Type) ref.Val {
	switch typeVal {
	case types.StringType:
		return types.String(p.String())
	case types.TypeType:
		return periodType
	}
	return types.NewErr("type conversion error from Period to %s", typeVal)
}

func (p Period) Equal(other ref.Val) ref.Val {
	o, ok := other.(Period)
	return types.Bool(ok && p == o)
}

func (p Period) Type() ref.Type { return periodType }
func (p Period) Value() any     { return p }

// ParseLocalDate parses "2006-01-02", optionally with a Java-style pattern.
func ParseLocalDate(s, pattern string) (LocalDate, error) {
	if pattern == "" {
		d, err := civil.ParseDate(strings.TrimSpace(s))
		if err != nil {
			return LocalDate{}, fmt.Errorf("invalid date %q: %w", s, err)
		}
		return LocalDate{Date: d}, nil
	}
	t, err := time.Parse(javaToGoLayout(pattern), strings.TrimSpace(s))
	if err != nil {
		return LocalDate{}, fmt.Errorf("invalid date %q for pattern %q: %w", s, pattern, err)
	}
	return LocalDate{Date: civil.DateOf(t)}, nil
}

// ParseLocalDateTime parses "2006-01-02 15:04:05" (or the T-separated form),
// optionally with a Java-style pattern.
func ParseLocalDateTime(s, pattern string) (LocalDateTime, error) {
	trimmed := strings.TrimSpace(s)
	if pattern != "" {
		t, err := time.Parse(javaToGoLayout(pattern), trimmed)
		if err != nil {
			return LocalDateTime{}, fmt.Errorf("invalid datetime %q for pattern %q: %w", s, pattern, err)
		}
		return LocalDateTime{DateTime: civil.DateTimeOf(t)}, nil
	}
	for _, layout := range []string{"2006-01-02 15:04:05", "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, trimmed); err == nil {
			return LocalDateTime{DateTime: civil.DateTimeOf(t)}, nil
		}
	}
	return LocalDateTime{}, fmt.Errorf("invalid datetime %q", s)
}
