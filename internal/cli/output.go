package cli

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/vbauerster/mpb/v7"
	"github.com/vbauerster/mpb/v7/decor"
	"github.com/xhhuango/json"
)

// Color codes for terminal output
const (
	ColorReset  = "\033[0m"
	ColorRed    = "\033[31m"
	ColorGreen  = "\033[32m"
	ColorYellow = "\033[33m"
	ColorBold   = "\033[1m"
	ColorDim    = "\033[2m"
)

// Output writes tables or JSON to the command's stdout.
type Output struct {
	writer       io.Writer
	jsonMode     bool
	colorEnabled bool
}

// NewOutput creates an Output honouring the --json flag.
func NewOutput(cmd *cobra.Command) *Output {
	jsonMode, _ := cmd.Flags().GetBool("json")
	return &Output{
		writer:       cmd.OutOrStdout(),
		jsonMode:     jsonMode,
		colorEnabled: !jsonMode && isTerminal(),
	}
}

func isTerminal() bool {
	fileInfo, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return (fileInfo.Mode() & os.ModeCharDevice) != 0
}

func (o *Output) IsJSON() bool {
	return o.jsonMode
}

// JSON writes data as indented JSON.
func (o *Output) JSON(data interface{}) error {
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(o.writer, string(b))
	return err
}

func (o *Output) Printf(format string, args ...interface{}) {
	fmt.Fprintf(o.writer, format, args...)
}

func (o *Output) Println(args ...interface{}) {
	fmt.Fprintln(o.writer, args...)
}

// Bold prints a heading line.
func (o *Output) Bold(format string, args ...interface{}) {
	o.colored(ColorBold, format, args...)
}

// Warning prints a line in yellow.
func (o *Output) Warning(format string, args ...interface{}) {
	o.colored(ColorYellow, format, args...)
}

func (o *Output) colored(color, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if o.colorEnabled {
		fmt.Fprintf(o.writer, "%s%s%s\n", color, msg, ColorReset)
	} else {
		fmt.Fprintln(o.writer, msg)
	}
}

// PnL colours a signed amount green or red.
func (o *Output) PnL(v float64, prec int) string {
	s := strconv.FormatFloat(v, 'f', prec, 64)
	if !o.colorEnabled {
		return s
	}
	if v < 0 {
		return ColorRed + s + ColorReset
	}
	return ColorGreen + s + ColorReset
}

// Table collects rows and renders them with right aligned cells.
type Table struct {
	table *tablewriter.Table
}

// NewTable creates a table with headers.
func NewTable(o *Output, headers ...string) *Table {
	t := tablewriter.NewWriter(o.writer)
	t.SetHeader(headers)
	t.SetAutoFormatHeaders(false)
	t.SetAlignment(tablewriter.ALIGN_RIGHT)
	t.SetBorder(false)
	return &Table{table: t}
}

func (t *Table) AddRow(cells ...string) {
	t.table.Append(cells)
}

func (t *Table) Render() {
	t.table.Render()
}

// KeyValues renders label/value pairs as a two column table.
func (o *Output) KeyValues(pairs [][2]string) {
	t := tablewriter.NewWriter(o.writer)
	t.SetBorder(false)
	t.SetColumnSeparator(":")
	t.SetAlignment(tablewriter.ALIGN_LEFT)
	for _, p := range pairs {
		t.Append([]string{p[0], p[1]})
	}
	t.Render()
}

// F formats a float with prec decimals.
func F(v float64, prec int) string {
	return strconv.FormatFloat(v, 'f', prec, 64)
}

// Progress is a bar on stderr for long per-step loops.
type Progress struct {
	p   *mpb.Progress
	bar *mpb.Bar
}

// NewProgress starts a bar of total steps. In JSON mode the bar is hidden.
func NewProgress(o *Output, name string, total int) *Progress {
	var out io.Writer = os.Stderr
	if o.jsonMode {
		out = io.Discard
	}
	p := mpb.New(mpb.WithWidth(64), mpb.WithOutput(out))
	bar := p.AddBar(int64(total),
		mpb.PrependDecorators(
			decor.Name(name),
			decor.Percentage(decor.WCSyncSpace),
		),
		mpb.AppendDecorators(
			decor.CountersNoUnit("(%d / %d)", decor.WCSyncSpace),
		),
	)
	return &Progress{p: p, bar: bar}
}

// Update sets the bar to done steps. It matches backtest.Progress.
func (p *Progress) Update(done, total int) {
	p.bar.SetCurrent(int64(done))
}

// Wait stops the bar, aborting it if the loop ended early, and waits for
// the final render.
func (p *Progress) Wait() {
	if !p.bar.Completed() {
		p.bar.Abort(false)
	}
	p.p.Wait()
}
