package ical

import "strings"

// Kind is the closed set of component types the core understands.
// Anything else is preserved as KindUnknown with the literal BEGIN name.
type Kind int

const (
	KindCalendar Kind = iota
	KindEvent
	KindTodo
	KindJournal
	KindFreeBusy
	KindTimezone
	KindTZRule // STANDARD / DAYLIGHT sub-blocks of VTIMEZONE
	KindAlarm
	KindUnknown
)

func (k Kind) String() string {
	switch k {
	case KindCalendar:
		return "VCALENDAR"
	case KindEvent:
		return "VEVENT"
	case KindTodo:
		return "VTODO"
	case KindJournal:
		return "VJOURNAL"
	case KindFreeBusy:
		return "VFREEBUSY"
	case KindTimezone:
		return "VTIMEZONE"
	case KindTZRule:
		return "STANDARD/DAYLIGHT"
	case KindAlarm:
		return "VALARM"
	default:
		return "X-UNKNOWN"
	}
}

func kindForName(name string) Kind {
	switch name {
	case "VCALENDAR":
		return KindCalendar
	case "VEVENT":
		return KindEvent
	case "VTODO":
		return KindTodo
	case "VJOURNAL":
		return KindJournal
	case "VFREEBUSY":
		return KindFreeBusy
	case "VTIMEZONE":
		return KindTimezone
	case "STANDARD", "DAYLIGHT":
		return KindTZRule
	case "VALARM":
		return KindAlarm
	default:
		return KindUnknown
	}
}

// Component is one BEGIN/END block: a type tag, properties in document
// order (duplicates preserved), nested children and a non-owning back
// reference to the parent. The tree is built once by Parse and is
// logically immutable afterwards; lazy property conversion is the only
// (idempotent) mutation.
type Component struct {
	Kind Kind
	// Name is the literal BEGIN name, uppercased. For recognized kinds it
	// matches Kind; for KindUnknown it carries whatever the input said.
	Name string

	Properties []*Property
	Children   []*Component

	parent *Component
}

// Parent returns the enclosing component, or nil for the root.
func (c *Component) Parent() *Component { return c.parent }

// PropertiesNamed returns all properties with the given name in document
// order. Names match case-insensitively.
func (c *Component) PropertiesNamed(name string) []*Property {
	var out []*Property
	for _, p := range c.Properties {
		if strings.EqualFold(p.Name, name) {
			out = append(out, p)
		}
	}
	return out
}

// PropertyNamed returns the first property with the given name, or nil.
func (c *Component) PropertyNamed(name string) *Property {
	for _, p := range c.Properties {
		if strings.EqualFold(p.Name, name) {
			return p
		}
	}
	return nil
}

// ChildrenOfKind returns all direct children with the given kind.
func (c *Component) ChildrenOfKind(k Kind) []*Component {
	var out []*Component
	for _, ch := range c.Children {
		if ch.Kind == k {
			out = append(out, ch)
		}
	}
	return out
}

func (c *Component) appendChild(ch *Component) {
	ch.parent = c
	c.Children = append(c.Children, ch)
}
