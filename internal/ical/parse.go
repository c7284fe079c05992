// Package ical implements a permissive parser for the nested BEGIN/END
// content-line calendar format, producing a typed component tree with
// lazily converted property values. Structural problems never abort a
// parse; they are reported as diagnostics alongside a best-effort tree.
package ical

import (
	"fmt"
	"strings"

	applog "icalq/internal/log"
)

// Diagnostic records one recoverable parse problem.
type Diagnostic struct {
	Line    int
	Message string
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("line %d: %s", d.Line, d.Message)
}

// Parse builds the full component tree from raw calendar text. It never
// fails on structurally malformed input: the returned tree is the best
// effort reading and the diagnostics list describes everything skipped
// or repaired along the way. A nil root means the input contained no
// component at all.
func Parse(data []byte) (*Component, []Diagnostic) {
	var (
		root  *Component
		stack []*Component
		diags []Diagnostic
	)

	diag := func(line int, format string, args ...any) {
		d := Diagnostic{Line: line, Message: fmt.Sprintf(format, args...)}
		diags = append(diags, d)
		applog.Warn("ical parse diagnostic", "line", d.Line, "detail", d.Message)
	}

	lines := NewLineReader(data)
	for {
		raw, num, ok := lines.Next()
		if !ok {
			break
		}
		if strings.TrimSpace(raw) == "" {
			continue
		}

		cl, err := parseContentLine(raw)
		if err != nil {
			diag(num, "skipping malformed content line: %v", err)
			continue
		}

		switch cl.Name {
		case "BEGIN":
			name := strings.ToUpper(strings.TrimSpace(cl.Value))
			comp := &Component{Kind: kindForName(name), Name: name}
			switch {
			case len(stack) > 0:
				stack[len(stack)-1].appendChild(comp)
			case root == nil:
				root = comp
			default:
				// A second top-level component. Keep it reachable by
				// attaching it under the root.
				diag(num, "top-level %s after root %s, attaching to root", name, root.Name)
				root.appendChild(comp)
			}
			stack = append(stack, comp)

		case "END":
			name := strings.ToUpper(strings.TrimSpace(cl.Value))
			idx := -1
			for i := len(stack) - 1; i >= 0; i-- {
				if stack[i].Name == name {
					idx = i
					break
				}
			}
			if idx < 0 {
				diag(num, "END:%s matches no open component, ignoring", name)
				continue
			}
			if idx != len(stack)-1 {
				diag(num, "END:%s closes %d unterminated component(s)", name, len(stack)-1-idx)
			}
			stack = stack[:idx]

		default:
			if len(stack) == 0 {
				diag(num, "property %s outside any component, skipping", cl.Name)
				continue
			}
			top := stack[len(stack)-1]
			top.Properties = append(top.Properties, newProperty(cl))
		}
	}

	if len(stack) > 0 {
		diag(lines.num, "%d component(s) left unterminated at end of input", len(stack))
	}

	return root, diags
}
