// Package lut parses text 3D LUTs and applies them to images.
package lut

import (
	"bufio"
	"bytes"
	"math"
	"strconv"
	"strings"
)

// Table is a parsed LUT. Triplets are stored column-wise so whole-table
// statistics run over flat slices.
type Table struct {
	// GridSize is the declared cube edge, 0 when the file declares none.
	GridSize  int
	R, G, B   []float64
	DomainMin [3]float64
	DomainMax [3]float64
}

// Len returns the number of triplets.
func (t *Table) Len() int { return len(t.R) }

// Parse reads a line-oriented LUT. Comment lines (#) and directives are
// skipped except the grid size declaration (LUT_3D_SIZE or SIZE) and the
// domain bounds. Every other line is read leniently as three floats;
// lines that do not parse, or carry NaN or infinite values, are dropped.
// Finite values are passed through without range checks. When no triplet survives, Parse returns ErrNoTriplets.
func Parse(data []byte) (*Table, error) {
	t := &Table{
		DomainMax: [3]float64{1, 1, 1},
	}
	// Most cube files are 33^3 rows of ~25 bytes.
	if est := len(data) / 24; est > 0 {
		t.R = make([]float64, 0, est)
		t.G = make([]float64, 0, est)
		t.B = make([]float64, 0, est)
	}

	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || line[0] == '#' {
			continue
		}
		fields := strings.Fields(line)
		if isDirective(fields[0]) {
			t.directive(fields)
			continue
		}
		if len(fields) < 3 {
			continue
		}
		r, errR := strconv.ParseFloat(fields[0], 64)
		g, errG := strconv.ParseFloat(fields[1], 64)
		b, errB := strconv.ParseFloat(fields[2], 64)
		if errR != nil || errG != nil || errB != nil {
			continue
		}
		if !finite(r) || !finite(g) || !finite(b) {
			continue
		}
		t.R = append(t.R, r)
		t.G = append(t.G, g)
		t.B = append(t.B, b)
	}
	// A scanner error (over-long line) ends the read; what was parsed so
	// far still counts.

	if t.Len() == 0 {
		return nil, ErrNoTriplets
	}
	return t, nil
}

// isDirective reports whether tok starts a keyword line such as TITLE or
// LUT_3D_SIZE rather than a data row.
func isDirective(tok string) bool {
	c := tok[0]
	return (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z')
}

func (t *Table) directive(fields []string) {
	switch strings.ToUpper(fields[0]) {
	case "LUT_3D_SIZE", "SIZE":
		if len(fields) < 2 {
			return
		}
		if n, err := strconv.Atoi(fields[1]); err == nil && n > 0 {
			t.GridSize = n
		}
	case "DOMAIN_MIN":
		if v, ok := parse3(fields[1:]); ok {
			t.DomainMin = v
		}
	case "DOMAIN_MAX":
		if v, ok := parse3(fields[1:]); ok {
			t.DomainMax = v
		}
	}
}

func parse3(fields []string) ([3]float64, bool) {
	var out [3]float64
	if len(fields) < 3 {
		return out, false
	}
	for i := range out {
		v, err := strconv.ParseFloat(fields[i], 64)
		if err != nil || !finite(v) {
			return out, false
		}
		out[i] = v
	}
	return out, true
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
