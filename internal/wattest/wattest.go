// Package wattest runs the test cases annotated in the text format of a module against its compiled binary.
//
// A case is three comment annotations followed by the function they describe, as printed by wasm2wat:
//
//	;; Test: adds two constants
//	;; Expected result at address 0: 42
//	(func (;3;) (type 0)
//
// The expectation is the phrase "Expected result at address", a decimal address, an optional colon and a decimal
// i32 which may be negative. Anything after the value is ignored. "address 4: 42" and "address 4 42" both expect 42
// at address 4.
//
// Running a case invokes the function, which takes no params, and compares the i32 it left in memory at the
// address with the expected value.
package wattest

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
)

const testMarker = ";; Test:"

var (
	expectedPattern = regexp.MustCompile(`;; Expected result at address\s+(\d+)\s*:?\s*(-?\d+)`)
	funcPattern     = regexp.MustCompile(`\(func \(;(\d+);\)`)
)

// Case is one annotated function.
type Case struct {
	Description string
	FuncIndex   uint32
	Address     uint32
	Expected    int32
	// Line is the line number of the function in the text format.
	Line int
}

// Parse reads the cases annotated in r, in order of appearance.
//
// A description or expectation that isn't followed by a function is dropped, and a function without both is not
// a case. Another "Test:" annotation before the function starts over.
func Parse(r io.Reader) ([]*Case, error) {
	var cases []*Case
	var pending *Case
	var hasExpected bool

	s := bufio.NewScanner(r)
	for line := 1; s.Scan(); line++ {
		text := s.Text()

		if i := strings.Index(text, testMarker); i >= 0 {
			pending = &Case{Description: strings.TrimSpace(text[i+len(testMarker):])}
			hasExpected = false
		}

		if m := expectedPattern.FindStringSubmatch(text); m != nil && pending != nil {
			addr, err := strconv.ParseUint(m[1], 10, 32)
			if err != nil {
				return nil, fmt.Errorf("line %d: invalid address: %w", line, err)
			}
			expected, err := strconv.ParseInt(m[2], 10, 32)
			if err != nil {
				return nil, fmt.Errorf("line %d: invalid expected result: %w", line, err)
			}
			pending.Address, pending.Expected = uint32(addr), int32(expected)
			hasExpected = true
		}

		if m := funcPattern.FindStringSubmatch(text); m != nil && pending != nil && hasExpected {
			idx, err := strconv.ParseUint(m[1], 10, 32)
			if err != nil {
				return nil, fmt.Errorf("line %d: invalid function index: %w", line, err)
			}
			pending.FuncIndex, pending.Line = uint32(idx), line
			cases = append(cases, pending)
			pending, hasExpected = nil, false
		}
	}
	if err := s.Err(); err != nil {
		return nil, err
	}
	return cases, nil
}

// Instance is the subset of naivevm.Instance cases run against.
type Instance interface {
	Invoke(funcIdx uint32, params ...uint64) ([]uint64, error)
	ReadMemoryI32(addr uint32) (int32, error)
}

// Result is the outcome of one Case.
type Result struct {
	Case   *Case
	Actual int32
	// Err is non-nil if the invocation or the memory read failed.
	Err error
}

// Passed returns true if the case ran and left the expected value.
func (r *Result) Passed() bool {
	return r.Err == nil && r.Actual == r.Case.Expected
}

// Run invokes each case in order on the same instance, so a case observes the memory left by the previous ones.
func Run(instance Instance, cases []*Case) []*Result {
	results := make([]*Result, 0, len(cases))
	for _, c := range cases {
		r := &Result{Case: c}
		if _, r.Err = instance.Invoke(c.FuncIndex); r.Err == nil {
			r.Actual, r.Err = instance.ReadMemoryI32(c.Address)
		}
		results = append(results, r)
	}
	return results
}

// Passed returns the count of passed results.
func Passed(results []*Result) (n int) {
	for _, r := range results {
		if r.Passed() {
			n++
		}
	}
	return
}
