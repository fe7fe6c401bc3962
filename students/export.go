package students

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/liamcoop/studentrisk/fairness"
	"github.com/liamcoop/studentrisk/features"
)

// WriteCSV writes students in the reference dataset layout read by
// fairness.ReadCSV and ReadCSV: Roll_No, every attribute seen in sorted
// order, then Target. Unlabeled students get an empty Target cell.
func WriteCSV(w io.Writer, students []*Student) error {
	seen := make(map[string]bool)
	for _, st := range students {
		for name := range st.Attributes {
			if name != features.RollNoAttribute {
				seen[name] = true
			}
		}
	}
	columns := make([]string, 0, len(seen))
	for name := range seen {
		columns = append(columns, name)
	}
	sort.Strings(columns)

	cw := csv.NewWriter(w)
	header := append([]string{features.RollNoAttribute}, columns...)
	header = append(header, fairness.TargetColumn)
	if err := cw.Write(header); err != nil {
		return err
	}

	row := make([]string, len(header))
	for _, st := range students {
		row[0] = st.RollNo
		for i, name := range columns {
			row[i+1] = formatCell(st.Attributes[name])
		}
		row[len(row)-1] = ""
		if st.Target != nil {
			row[len(row)-1] = st.Target.String()
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("student %s: %w", st.RollNo, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

func formatCell(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case string:
		return x
	default:
		return fmt.Sprint(x)
	}
}

// ReadCSV reads students from a header-first CSV file with a Roll_No column,
// one column per raw attribute and an optional Target column. An empty Target
// leaves the student unlabeled. Rows are validated with
// features.ParseStudentRecord and roll numbers must be unique.
func ReadCSV(r io.Reader) ([]*Student, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	rollCol, targetCol := -1, -1
	for i, h := range header {
		header[i] = strings.TrimSpace(h)
		switch header[i] {
		case features.RollNoAttribute:
			rollCol = i
		case fairness.TargetColumn:
			targetCol = i
		}
	}
	if rollCol < 0 {
		return nil, fmt.Errorf("file has no %s column", features.RollNoAttribute)
	}

	seen := make(map[string]int)
	var out []*Student
	for line := 2; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		rollNo := strings.TrimSpace(row[rollCol])
		if err := ValidateRollNo(rollNo); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if first, dup := seen[rollNo]; dup {
			return nil, fmt.Errorf("line %d: roll number %s already on line %d", line, rollNo, first)
		}
		seen[rollNo] = line

		raw := make(map[string]any, len(row))
		for i, cell := range row {
			if i == rollCol || i == targetCol || strings.TrimSpace(cell) == "" {
				continue
			}
			raw[header[i]] = features.ParseCell(cell)
		}
		rec, err := features.ParseStudentRecord(raw)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		st := &Student{RollNo: rollNo, Attributes: rec}
		if targetCol >= 0 && strings.TrimSpace(row[targetCol]) != "" {
			label, err := fairness.ParseTarget(row[targetCol])
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
			st.Target = labelPtr(label)
		}
		out = append(out, st)
	}

	if len(out) == 0 {
		return nil, errors.New("file has no students")
	}
	return out, nil
}
