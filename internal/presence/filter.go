package presence

import (
	"fmt"
	"sort"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/nerrad567/fritz-presence/internal/fritzbox"
)

// Built-in filter names. They back the admin selector levels.
const (
	FilterWiFi     = "wifi"
	FilterEthernet = "ethernet"
	FilterActive   = "active"
	FilterAll      = "all"
)

var builtinFilters = map[string]string{
	FilterWiFi:     `InterfaceType == "802.11"`,
	FilterEthernet: `InterfaceType == "Ethernet"`,
	FilterActive:   `Active`,
	FilterAll:      `true`,
}

// Filter is a compiled boolean expression over a fritzbox.Host.
//
// Host fields are available by name, e.g.
//
//	Active && HostName startsWith "guest"
//	IsWiFi() && Speed > 100
type Filter struct {
	Name    string
	Source  string
	program *vm.Program
}

// CompileFilter compiles src into a Filter.
func CompileFilter(name, src string) (*Filter, error) {
	program, err := expr.Compile(src, expr.Env(fritzbox.Host{}), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidFilter, name, err)
	}
	return &Filter{Name: name, Source: src, program: program}, nil
}

// Match reports whether host satisfies the filter.
// Evaluation errors count as no match.
func (f *Filter) Match(host fritzbox.Host) bool {
	out, err := expr.Run(f.program, host)
	if err != nil {
		return false
	}
	ok, _ := out.(bool)
	return ok
}

// Apply returns the hosts matching the filter, preserving order.
func (f *Filter) Apply(hosts []fritzbox.Host) []fritzbox.Host {
	var matched []fritzbox.Host
	for _, h := range hosts {
		if f.Match(h) {
			matched = append(matched, h)
		}
	}
	return matched
}

// compileFilters builds the built-in filters plus the operator defined ones.
// An operator filter may replace a built-in of the same name.
func compileFilters(custom map[string]string) (map[string]*Filter, error) {
	filters := make(map[string]*Filter, len(builtinFilters)+len(custom))
	for name, src := range builtinFilters {
		f, err := CompileFilter(name, src)
		if err != nil {
			return nil, err
		}
		filters[name] = f
	}
	for name, src := range custom {
		f, err := CompileFilter(name, src)
		if err != nil {
			return nil, err
		}
		filters[name] = f
	}
	return filters, nil
}

func sortedFilterNames(filters map[string]*Filter) []string {
	names := make([]string, 0, len(filters))
	for name := range filters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
