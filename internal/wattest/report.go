package wattest

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	failureStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

// Reporter prints results. When Styled, it colors the output for a terminal.
type Reporter struct {
	Out    io.Writer
	Styled bool
}

func (r *Reporter) render(style lipgloss.Style, s string) string {
	if !r.Styled {
		return s
	}
	return style.Render(s)
}

// Parsed prints the count of cases found in path.
func (r *Reporter) Parsed(cases []*Case, path string) {
	fmt.Fprintln(r.Out, r.render(dimStyle, fmt.Sprintf("Parsed %d test cases from %s.", len(cases), path)))
}

// Result prints one result.
func (r *Reporter) Result(res *Result) {
	c := res.Case
	fmt.Fprintln(r.Out)
	fmt.Fprintln(r.Out, r.render(headerStyle, fmt.Sprintf("--- Running Test: %s (func %d) ---", c.Description, c.FuncIndex)))
	if res.Err != nil {
		fmt.Fprintf(r.Out, "  ERROR during execution: %v\n", res.Err)
	} else {
		fmt.Fprintf(r.Out, "  Result at mem[%d]: %d\n", c.Address, res.Actual)
		fmt.Fprintf(r.Out, "  Expected result:  %d\n", c.Expected)
	}
	if res.Passed() {
		fmt.Fprintln(r.Out, "  "+r.render(successStyle, "SUCCESS"))
	} else {
		fmt.Fprintln(r.Out, "  "+r.render(failureStyle, "FAILURE"))
	}
}

// Summary prints the count of passed results.
func (r *Reporter) Summary(results []*Result) {
	passed := Passed(results)
	style := successStyle
	if passed != len(results) {
		style = failureStyle
	}
	fmt.Fprintln(r.Out)
	fmt.Fprintln(r.Out, "===== Test Summary =====")
	fmt.Fprintln(r.Out, r.render(style, fmt.Sprintf("Passed: %d/%d", passed, len(results))))
	fmt.Fprintln(r.Out, "========================")
}
