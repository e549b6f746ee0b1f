// neuralc checks a parsed NeuraLang program and emits its typed IR.
//
// It consumes the JSON AST produced by the front end, runs the shape and type
// checker over every declaration, prints the collected diagnostics, and, when
// everything checks, writes the lowered IR for the backend:
//
//	neuralc -ir out.json -summary program.ast.json
//
// Exit code is 1 when any declaration fails to check.
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/janpfeifer/must"
	"k8s.io/klog/v2"

	"github.com/NeuraLang/neuralang/ast"
	"github.com/NeuraLang/neuralang/checker"
	"github.com/NeuraLang/neuralang/diag"
	"github.com/NeuraLang/neuralang/ir"
)

var (
	flagIR = flag.String("ir", "", "Path to write the lowered IR JSON to. "+
		"Only written when every declaration checks successfully.")
	flagSummary = flag.Bool("summary", false, "Display a per-declaration summary table "+
		"with output types, node counts and parameter counts.")
	flagPretty = flag.Bool("pretty", false, "Indent the IR JSON output.")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()

	args := flag.Args()
	if len(args) != 1 {
		klog.Errorf("Expected exactly one program file to check. See 'neuralc -help'.")
		os.Exit(1)
	}

	program := &ast.Program{}
	must.M(json.Unmarshal(must.M1(os.ReadFile(args[0])), program))

	result := checker.New().Check(program)
	printDiagnostics(result)
	if *flagSummary {
		printSummary(result)
	}
	if !result.Ok() {
		os.Exit(1)
	}
	if *flagIR != "" {
		writeIR(result)
	}
}

var (
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#F55")).Bold(true)
	kindStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FA0"))
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#5F5"))

	headerRowStyle = lipgloss.NewStyle().Reverse(true).
			Padding(0, 2, 0, 2).Align(lipgloss.Center)
	oddRowStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFF")).
			PaddingLeft(1).PaddingRight(1)
	evenRowStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#999")).
			PaddingLeft(1).PaddingRight(1)

	titleStyle = lipgloss.NewStyle().Bold(true).Padding(1, 4, 1, 4)
)

func newPlainTable(withHeader bool) *lgtable.Table {
	return lgtable.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("99"))).
		StyleFunc(func(row, col int) (s lipgloss.Style) {
			if withHeader && row == 1 {
				return headerRowStyle
			}
			if row%2 == 0 {
				s = oddRowStyle
			} else {
				s = evenRowStyle
			}
			if col == 0 {
				s = s.Align(lipgloss.Left)
			}
			return
		})
}

func printDiagnostics(result *checker.Result) {
	for _, d := range result.Diags.All() {
		location := d.Declaration
		if d.StageIndex >= 0 {
			location = fmt.Sprintf("%s, stage #%d", d.Declaration, d.StageIndex)
		}
		fmt.Printf("%s %s (%s): %s\n",
			errorStyle.Render("error"), kindStyle.Render(d.Kind.String()), location, d.Message)
		for _, shape := range d.Shapes {
			fmt.Printf("    shape: %s\n", shape)
		}
	}
	if n := result.Diags.Len(); n > 0 {
		fmt.Printf("\n%s\n", errorStyle.Render(fmt.Sprintf("%d error(s)", n)))
	}
}

func printSummary(result *checker.Result) {
	fmt.Println(titleStyle.Render("Declarations"))
	table := newPlainTable(true)
	table.Row("name", "kind", "output type", "nodes", "parameters", "status")
	for _, decl := range result.Decls {
		status := okStyle.Render("ok")
		if !decl.Ok() {
			status = errorStyle.Render(fmt.Sprintf("%d error(s)", decl.Diags.Len()))
		}
		nodes, params := "", ""
		output := ""
		if decl.Ok() {
			switch decl.Kind {
			case ast.KindTrain:
				output = decl.Train.ModelOutput.String()
			default:
				output = decl.Output.String()
				if module, err := ir.Lower(decl); err == nil {
					nodes = humanize.Comma(int64(len(module.Nodes)))
					params = humanize.Comma(module.Parameters())
				}
			}
		}
		table.Row(decl.Name, string(decl.Kind), output, nodes, params, status)
	}
	fmt.Println(table.Render())
}

// irFile is the on-disk layout of the lowered compilation unit.
type irFile struct {
	Modules []*ir.Module    `json:"modules,omitempty"`
	Trains  []*ir.TrainPlan `json:"trains,omitempty"`
}

func writeIR(result *checker.Result) {
	out := &irFile{}
	for _, decl := range result.Decls {
		if decl.Kind == ast.KindTrain {
			out.Trains = append(out.Trains, lowered(ir.LowerTrain(decl)))
			continue
		}
		out.Modules = append(out.Modules, lowered(ir.Lower(decl)))
	}

	var encoded []byte
	if *flagPretty {
		encoded = must.M1(json.MarshalIndent(out, "", "  "))
	} else {
		encoded = must.M1(json.Marshal(out))
	}
	must.M(os.WriteFile(*flagIR, append(encoded, '\n'), 0644))
	klog.V(1).Infof("wrote IR for %d module(s) and %d train plan(s) to %s",
		len(out.Modules), len(out.Trains), *flagIR)
}

// lowered unwraps a lowering result. A lowering failure on a declaration that
// checked cleanly is an engine defect; the full context is fatal on purpose.
func lowered[T any](value T, err error) T {
	if err != nil {
		var d *diag.Diagnostic
		if errors.As(err, &d) {
			klog.Exitf("internal error [%s]: %+v", d.Kind, err)
		}
		klog.Exitf("internal error: %+v", err)
	}
	return value
}
