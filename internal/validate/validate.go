// Package validate provides the runtime invariant checks used by save,
// load, and the test suite. Failures report the call site, the offending
// value, and a dump of the owning record.
package validate

import (
	"fmt"
	"runtime"

	"github.com/davecgh/go-spew/spew"
	"github.com/hpcvis/vizcore/internal/scalar"
)

// ConsistencyError reports a failed invariant.
type ConsistencyError struct {
	File    string
	Line    int
	Msg     string
	Value   any
	Summary string
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("%s:%d: consistency error: %s (value %v)", e.File, e.Line, e.Msg, e.Value)
}

var dumper = spew.ConfigState{Indent: "  ", MaxDepth: 2, DisablePointerAddresses: true}

func report(skip int, msg string, value, owner any) error {
	_, file, line, _ := runtime.Caller(skip + 1)
	summary := ""
	if owner != nil {
		summary = dumper.Sdump(owner)
	}
	return &ConsistencyError{File: file, Line: line, Msg: msg, Value: value, Summary: summary}
}

// Checker is anything with its own validation.
type Checker interface {
	Check() error
}

// SubObject validates a referenced record if present.
func SubObject(name string, obj Checker, owner any) error {
	if obj == nil {
		return nil
	}
	if err := obj.Check(); err != nil {
		return report(1, fmt.Sprintf("sub-object %s invalid: %v", name, err), nil, owner)
	}
	return nil
}

// Size checks that an array size matches the dimensional expectation of
// its owner.
func Size(name string, got, want int, owner any) error {
	if got != want {
		return report(1, fmt.Sprintf("size of %s is %d, expected %d", name, got, want), got, owner)
	}
	return nil
}

// Enum checks that a tag is one of the known variants.
func Enum(name string, val int64, allowed []int64, owner any) error {
	for _, a := range allowed {
		if val == a {
			return nil
		}
	}
	return report(1, fmt.Sprintf("%s holds unknown variant", name), val, owner)
}

type ordered interface {
	~int8 | ~uint8 | ~int32 | ~uint32 | ~int64 | ~uint64 | ~float32 | ~float64
}

// Range checks that every element of arr lies in [lo, hi].
func Range[T ordered](name string, arr []T, lo, hi T, owner any) error {
	for i, v := range arr {
		if v < lo || v > hi {
			return report(1, fmt.Sprintf("%s[%d] outside [%v, %v]", name, i, lo, hi), v, owner)
		}
	}
	return nil
}

// Monotonic checks element i >= element i-1 across the whole array.
func Monotonic[T ordered](name string, arr []T, owner any) error {
	for i := 1; i < len(arr); i++ {
		if arr[i] < arr[i-1] {
			return report(1, fmt.Sprintf("%s[%d] breaks monotonicity", name, i), arr[i], owner)
		}
	}
	return nil
}

// IndexOverflow checks that a size fits the configured index width.
func IndexOverflow(expr string, size uint64, owner any) error {
	if size > uint64(scalar.MaxIndex) {
		return report(1, fmt.Sprintf("%s exceeds index range", expr), size, owner)
	}
	return nil
}
