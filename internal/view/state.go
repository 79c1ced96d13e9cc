package view

import (
	"encoding/json"
	"fmt"
)

// Status is the load state of a controller.
type Status int

const (
	Idle Status = iota
	Loading
	Loaded
	Failed
)

var statusNames = [...]string{"Idle", "Loading", "Loaded", "Failed"}

func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return fmt.Sprintf("Status(%d)", int(s))
	}
	return statusNames[s]
}

// Settled reports whether s is terminal.
func (s Status) Settled() bool {
	return s == Loaded || s == Failed
}

func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Status) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	for i, n := range statusNames {
		if n == name {
			*s = Status(i)
			return nil
		}
	}
	return fmt.Errorf("unknown status %q", name)
}

// State is the display-ready shape of one count resource. Labels and Values
// are parallel; Series holds the chart series names.
type State struct {
	Labels []string  `json:"labels"`
	Series []string  `json:"series"`
	Values []float64 `json:"values"`
	Status Status    `json:"status"`
	Error  string    `json:"error,omitempty"`
}

// Rows pairs labels with values for table rendering.
func (s State) Rows() []Row {
	rows := make([]Row, 0, len(s.Labels))
	for i, label := range s.Labels {
		rows = append(rows, Row{Label: label, Value: s.Values[i]})
	}
	return rows
}

// Total sums Values.
func (s State) Total() float64 {
	var total float64
	for _, v := range s.Values {
		total += v
	}
	return total
}

type Row struct {
	Label string
	Value float64
}

func (s State) clone() State {
	out := State{Status: s.Status, Error: s.Error}
	out.Labels = append(make([]string, 0, len(s.Labels)), s.Labels...)
	out.Series = append(make([]string, 0, len(s.Series)), s.Series...)
	out.Values = append(make([]float64, 0, len(s.Values)), s.Values...)
	return out
}
