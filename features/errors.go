package features

import "fmt"

// SchemaError reports a raw attribute that is missing or malformed.
// It is a client-input fault: the record never reaches a model.
type SchemaError struct {
	Attribute string
	Reason    string
}

func (e *SchemaError) Error() string {
	if e.Attribute == "" {
		return "schema error: " + e.Reason
	}
	return fmt.Sprintf("schema error: attribute %q %s", e.Attribute, e.Reason)
}

// DimensionMismatchError reports a feature vector whose length does not
// match the scaler parameters or schema it is paired with. It indicates
// artifact/schema drift and is a server-configuration fault.
type DimensionMismatchError struct {
	Got  int
	Want int
	What string
}

func (e *DimensionMismatchError) Error() string {
	what := e.What
	if what == "" {
		what = "feature vector"
	}
	return fmt.Sprintf("dimension mismatch: %s has %d columns, expected %d", what, e.Got, e.Want)
}
