package tools

import "strings"

// MermaidFlow renders components and edges as a top-down flowchart.
func MermaidFlow(components, flows []string) string {
	lines := []string{"flowchart TD"}
	for _, c := range components {
		lines = append(lines, "  "+c)
	}
	for _, f := range flows {
		lines = append(lines, "  "+f)
	}
	return strings.Join(lines, "\n")
}

// MermaidComponents renders the component inventory as a left-right graph.
func MermaidComponents(components []string) string {
	lines := []string{"graph LR"}
	for _, c := range components {
		lines = append(lines, "  "+c)
	}
	return strings.Join(lines, "\n")
}
