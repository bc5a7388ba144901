package visualization

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/anggasct/junction"
)

// Definition is the controller view needed to draw its phase diagram
type Definition interface {
	Phase() junction.Phase
	Thresholds() junction.Thresholds
	Transitions() []junction.Transition
}

// DOTGenerator generates Graphviz DOT format representations of the controller's phases
type DOTGenerator struct {
	definition Definition
	options    DOTOptions
}

// DOTOptions configures the DOT generation
type DOTOptions struct {
	ShowGuards       bool
	ShowTiming       bool
	HighlightCurrent bool
	RankDirection    string // "TB", "LR", "BT", "RL"
	NodeShape        string
}

// DefaultDOTOptions returns sensible default options for DOT generation
func DefaultDOTOptions() DOTOptions {
	return DOTOptions{
		ShowGuards:       true,
		ShowTiming:       true,
		HighlightCurrent: true,
		RankDirection:    "LR",
		NodeShape:        "box",
	}
}

// NewDOTGenerator creates a new DOT generator for the given controller
func NewDOTGenerator(definition Definition, options ...DOTOptions) *DOTGenerator {
	opts := DefaultDOTOptions()
	if len(options) > 0 {
		opts = options[0]
	}

	return &DOTGenerator{
		definition: definition,
		options:    opts,
	}
}

// Generate creates a DOT representation of the phase diagram
func (g *DOTGenerator) Generate() (string, error) {
	transitions := g.definition.Transitions()
	if len(transitions) == 0 {
		return "", fmt.Errorf("controller has no transitions")
	}

	var dot strings.Builder

	dot.WriteString("digraph Junction {\n")
	dot.WriteString(fmt.Sprintf("  rankdir=%s;\n", g.options.RankDirection))
	dot.WriteString(fmt.Sprintf("  node [shape=%s];\n", g.options.NodeShape))
	dot.WriteString("  edge [fontsize=10];\n\n")

	g.generatePhases(&dot)
	g.generateTransitions(&dot, transitions)

	dot.WriteString("}\n")

	return dot.String(), nil
}

// generatePhases generates DOT nodes for both phases
func (g *DOTGenerator) generatePhases(dot *strings.Builder) {
	current := g.definition.Phase()
	th := g.definition.Thresholds()

	dot.WriteString("  // Phases\n")
	dot.WriteString("  \"start\" [shape=point];\n")

	for _, phase := range junction.Phases() {
		fillColor := "lightcoral"
		label := fmt.Sprintf("%s\\n%s green", phase, phase.Approach().Label())
		if phase == junction.PhaseAGreen && g.options.ShowTiming {
			label += fmt.Sprintf("\\ninitial %s", th.DefaultGreen)
		}
		if g.options.HighlightCurrent && phase == current {
			fillColor = "lightgreen"
			label += "\\n(current)"
		}

		dot.WriteString(fmt.Sprintf("  \"%s\" [style=\"filled\" fillcolor=%s label=\"%s\"];\n",
			phase, fillColor, label))
	}
	dot.WriteString(fmt.Sprintf("  \"start\" -> \"%s\";\n\n", junction.PhaseAGreen))
}

// generateTransitions generates one edge per phase and rule
func (g *DOTGenerator) generateTransitions(dot *strings.Builder, transitions []junction.Transition) {
	th := g.definition.Thresholds()

	dot.WriteString("  // Transitions\n")

	for _, phase := range junction.Phases() {
		for i, tr := range transitions {
			label := fmt.Sprintf("%d. %s", i+1, tr.Name)
			if g.options.ShowGuards {
				if guard := guardLabel(tr, th); guard != "" {
					label += fmt.Sprintf("\\n[%s]", guard)
				}
			}
			style := "solid"
			if tr.Reason == junction.ReasonEarly && !th.EarlySwitch {
				style = "dashed"
				label += "\\n(disabled)"
			}
			dot.WriteString(fmt.Sprintf("  \"%s\" -> \"%s\" [label=\"%s\" style=%s];\n",
				phase, phase.Next(), label, style))
		}
	}
}

// guardLabel describes the stock rules; custom rules are labelled by name only
func guardLabel(tr junction.Transition, th junction.Thresholds) string {
	switch tr.Reason {
	case junction.ReasonEarly:
		return fmt.Sprintf("red ≥ %d && green < %d", th.VehicleThreshold, th.VehicleThreshold)
	case junction.ReasonTimed:
		return "elapsed ≥ green"
	default:
		return ""
	}
}

// GenerateToFile writes the DOT representation to a file
func (g *DOTGenerator) GenerateToFile(filename string) error {
	content, err := g.Generate()
	if err != nil {
		return err
	}

	return os.WriteFile(filename, []byte(content), 0644)
}

// SVGGenerator generates SVG representations by calling Graphviz
type SVGGenerator struct {
	dotGenerator *DOTGenerator
}

// NewSVGGenerator creates a new SVG generator
func NewSVGGenerator(definition Definition, options ...DOTOptions) *SVGGenerator {
	return &SVGGenerator{
		dotGenerator: NewDOTGenerator(definition, options...),
	}
}

// Generate creates an SVG representation of the phase diagram
func (g *SVGGenerator) Generate() (string, error) {
	dotContent, err := g.dotGenerator.Generate()
	if err != nil {
		return "", err
	}

	cmd := exec.Command("dot", "-Tsvg")
	cmd.Stdin = strings.NewReader(dotContent)

	var out bytes.Buffer
	cmd.Stdout = &out

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("failed to execute dot command: %w (make sure Graphviz is installed)", err)
	}

	return out.String(), nil
}
