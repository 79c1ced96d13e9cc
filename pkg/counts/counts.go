// Package counts holds the label → number mapping exchanged by the
// location-wise count endpoints. Unlike a Go map it keeps the key order of
// the JSON object it was decoded from, and encodes back in the same order.
package counts

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// ErrNotObject is returned when the encoded form is not a JSON object of
// numbers.
var ErrNotObject = errors.New("counts: expected a JSON object of numbers")

// Count is one labelled value.
type Count struct {
	Label string  `json:"label" yaml:"label"`
	Value float64 `json:"value" yaml:"value"`
}

// Counts is an ordered label → value mapping.
type Counts []Count

// Labels returns the labels in order.
func (c Counts) Labels() []string {
	labels := make([]string, 0, len(c))
	for _, item := range c {
		labels = append(labels, item.Label)
	}
	return labels
}

// Values returns the values in label order.
func (c Counts) Values() []float64 {
	values := make([]float64, 0, len(c))
	for _, item := range c {
		values = append(values, item.Value)
	}
	return values
}

// Get returns the value stored for label.
func (c Counts) Get(label string) (float64, bool) {
	for _, item := range c {
		if item.Label == label {
			return item.Value, true
		}
	}
	return 0, false
}

// Set updates label in place, or appends it when absent.
func (c *Counts) Set(label string, value float64) {
	for i := range *c {
		if (*c)[i].Label == label {
			(*c)[i].Value = value
			return
		}
	}
	*c = append(*c, Count{Label: label, Value: value})
}

// Total sums every value.
func (c Counts) Total() float64 {
	var total float64
	for _, item := range c {
		total += item.Value
	}
	return total
}

// MarshalJSON encodes the mapping as a JSON object in label order.
func (c Counts) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, item := range c {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(item.Label)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.WriteString(strconv.FormatFloat(item.Value, 'f', -1, 64))
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object of numbers, keeping key order. A JSON
// null decodes to an empty mapping. A repeated key keeps its first position
// and takes the last value.
func (c *Counts) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		*c = Counts{}
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotObject, err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return ErrNotObject
	}

	out := Counts{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrNotObject, err)
		}
		label, ok := keyTok.(string)
		if !ok {
			return ErrNotObject
		}

		valTok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrNotObject, err)
		}
		num, ok := valTok.(json.Number)
		if !ok {
			return fmt.Errorf("%w: value for %q is not a number", ErrNotObject, label)
		}
		value, err := num.Float64()
		if err != nil {
			return fmt.Errorf("%w: value for %q: %v", ErrNotObject, label, err)
		}
		out.Set(label, value)
	}

	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("%w: %v", ErrNotObject, err)
	}

	*c = out
	return nil
}
