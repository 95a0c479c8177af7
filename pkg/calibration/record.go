package calibration

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
)

// RawSample is one reading from the gaze sensor.
type RawSample struct {
	DX    float64 `json:"dx"`    // horizontal gaze offset, sensor units
	DY    float64 `json:"dy"`    // vertical gaze offset, sensor units
	Width float64 `json:"width"` // normalization scale, e.g. inter-feature distance
}

// Record is the averaged calibration data for one anchor.
//
// On disk a record is the tuple [count, reserved, dx, dy, width]. Reserved
// is carried through untouched; nothing in this module interprets it.
type Record struct {
	Anchor    string
	Count     int
	Reserved  float64
	MeanDX    float64
	MeanDY    float64
	MeanWidth float64
}

// add folds s into the running means.
func (r *Record) add(s RawSample) {
	r.Count++
	n := float64(r.Count)
	r.MeanDX += (s.DX - r.MeanDX) / n
	r.MeanDY += (s.DY - r.MeanDY) / n
	r.MeanWidth += (s.Width - r.MeanWidth) / n
}

// Mean returns the record's average sample.
func (r Record) Mean() RawSample {
	return RawSample{DX: r.MeanDX, DY: r.MeanDY, Width: r.MeanWidth}
}

// validate reports whether the record can take part in a mapping.
func (r Record) validate() error {
	if r.Count < 1 {
		return &AnchorError{Anchor: r.Anchor, Err: fmt.Errorf("%w: no samples", ErrDegenerateCalibration)}
	}
	for _, v := range []float64{r.MeanDX, r.MeanDY} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return &AnchorError{Anchor: r.Anchor, Err: fmt.Errorf("%w: non-finite mean", ErrDegenerateCalibration)}
		}
	}
	return nil
}

// MarshalJSON encodes the record as [count, reserved, dx, dy, width].
func (r Record) MarshalJSON() ([]byte, error) {
	return json.Marshal([5]float64{float64(r.Count), r.Reserved, r.MeanDX, r.MeanDY, r.MeanWidth})
}

// UnmarshalJSON decodes the five-element tuple form.
func (r *Record) UnmarshalJSON(data []byte) error {
	var values []float64
	if err := json.Unmarshal(data, &values); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	if len(values) != 5 {
		return fmt.Errorf("%w: want 5 values, got %d", ErrMalformedRecord, len(values))
	}
	r.Count = int(values[0])
	r.Reserved = values[1]
	r.MeanDX = values[2]
	r.MeanDY = values[3]
	r.MeanWidth = values[4]
	return nil
}

// Set is the full collection of sealed records, keyed by anchor name.
type Set map[string]Record

// UnmarshalJSON decodes {name: [count, reserved, dx, dy, width]} and
// restores each record's anchor name from its key.
func (s *Set) UnmarshalJSON(data []byte) error {
	var raw map[string]Record
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(Set, len(raw))
	for name, rec := range raw {
		rec.Anchor = name
		out[name] = rec
	}
	*s = out
	return nil
}

// ParseSet decodes a persisted set leniently: malformed records are left
// out and reported in skipped, keyed by name, instead of failing the whole
// set.
func ParseSet(data []byte) (set Set, skipped map[string]error, err error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	set = make(Set, len(raw))
	for name, msg := range raw {
		var rec Record
		if err := json.Unmarshal(msg, &rec); err != nil {
			if skipped == nil {
				skipped = make(map[string]error)
			}
			skipped[name] = &AnchorError{Anchor: name, Err: err}
			continue
		}
		rec.Anchor = name
		set[name] = rec
	}
	return set, skipped, nil
}

// Clone returns an independent copy of the set.
func (s Set) Clone() Set {
	out := make(Set, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Names returns the record names, known anchors first in calibration order,
// then any others alphabetically.
func (s Set) Names() []string {
	names := make([]string, 0, len(s))
	for _, a := range anchors {
		if _, ok := s[a.Name]; ok {
			names = append(names, a.Name)
		}
	}
	var extra []string
	for name := range s {
		if _, ok := AnchorByName(name); !ok {
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)
	return append(names, extra...)
}

// Complete reports whether every anchor has a record.
func (s Set) Complete() bool {
	return len(s.Missing()) == 0
}

// Missing returns the anchors without a record, in calibration order.
func (s Set) Missing() []string {
	var missing []string
	for _, a := range anchors {
		if _, ok := s[a.Name]; !ok {
			missing = append(missing, a.Name)
		}
	}
	return missing
}
