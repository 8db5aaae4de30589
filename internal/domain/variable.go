package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Direction is the favorable direction of a scoring variable.
type Direction string

const (
	// DirectionIncreasing means higher values are better.
	DirectionIncreasing Direction = "CROISSANT"

	// DirectionDecreasing means lower values are better.
	DirectionDecreasing Direction = "DECROISSANT"
)

// Valid reports whether d is one of the recognized directions.
func (d Direction) Valid() bool {
	return d == DirectionIncreasing || d == DirectionDecreasing
}

// ParseDirection normalizes stored or submitted direction labels
// ("Croissant", "decroissant", ...). Unknown labels are returned
// upper-cased so the engine can reject them.
func ParseDirection(s string) Direction {
	return Direction(strings.ToUpper(strings.TrimSpace(s)))
}

// MissingPolicy decides how absent applicant values are handled.
type MissingPolicy string

const (
	// MissingRefuse rejects the whole request when any value is missing.
	MissingRefuse MissingPolicy = "REFUSE"

	// MissingPenalize scores a missing value as the variable minimum.
	MissingPenalize MissingPolicy = "PENALIZE"
)

// Valid reports whether p is a recognized policy. The empty policy is
// valid and means MissingRefuse.
func (p MissingPolicy) Valid() bool {
	return p == "" || p == MissingRefuse || p == MissingPenalize
}

// OrDefault returns p, or MissingRefuse when p is empty.
func (p MissingPolicy) OrDefault() MissingPolicy {
	if p == "" {
		return MissingRefuse
	}
	return p
}

// Variable is a weighted scoring criterion.
type Variable struct {
	ID                 string    `json:"id"`
	Name               string    `json:"name"`
	Weight             float64   `json:"weight"`
	Min                float64   `json:"min"`
	Max                float64   `json:"max"`
	FavorableDirection Direction `json:"favorableDirection"`
	Blocking           bool      `json:"blocking"`

	// Display-only attributes of persisted model variables.
	Unit string `json:"unit,omitempty"`
	Type string `json:"type,omitempty"`
}

type rawKind uint8

const (
	rawNull rawKind = iota
	rawNumber
	rawString
)

// RawValue is an applicant-supplied value: a number, a numeric string,
// or null. The zero value is null.
type RawValue struct {
	kind rawKind
	num  float64
	str  string
}

// Number returns a numeric RawValue.
func Number(v float64) RawValue {
	return RawValue{kind: rawNumber, num: v}
}

// String returns a string RawValue. The string is parsed at scoring time.
func String(s string) RawValue {
	return RawValue{kind: rawString, str: s}
}

// Null returns the null RawValue.
func Null() RawValue {
	return RawValue{}
}

// IsNull reports whether the value is null.
func (v RawValue) IsNull() bool {
	return v.kind == rawNull
}

// Float converts the value to a float64. Strings are parsed after
// trimming surrounding whitespace. Null and unparseable strings fail.
func (v RawValue) Float() (float64, error) {
	switch v.kind {
	case rawNumber:
		return v.num, nil
	case rawString:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.str), 64)
		if err != nil {
			return 0, fmt.Errorf("not a number: %q", v.str)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("value is null")
	}
}

// String renders the value as the applicant supplied it.
func (v RawValue) String() string {
	switch v.kind {
	case rawNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case rawString:
		return v.str
	default:
		return "null"
	}
}

// MarshalJSON encodes numbers as numbers, strings as strings and null as null.
func (v RawValue) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case rawNumber:
		return json.Marshal(v.num)
	case rawString:
		return json.Marshal(v.str)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON accepts a JSON number, string or null.
func (v *RawValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*v = Null()
		return nil
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = String(s)
		return nil
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		var f float64
		if err := json.Unmarshal(data, &f); err != nil {
			return err
		}
		*v = Number(f)
		return nil
	default:
		return fmt.Errorf("value must be a number, a string or null, got %s", data)
	}
}

// Values maps variable IDs to applicant-supplied values.
type Values map[string]RawValue

// Lookup returns the value for id, and false when it is absent or null.
func (vs Values) Lookup(id string) (RawValue, bool) {
	v, ok := vs[id]
	if !ok || v.IsNull() {
		return RawValue{}, false
	}
	return v, true
}

// ScoringInput is everything the scoring engine needs for one request.
type ScoringInput struct {
	Variables     []Variable    `json:"variables"`
	Values        Values        `json:"values"`
	MissingPolicy MissingPolicy `json:"missingPolicy,omitempty"`
}
