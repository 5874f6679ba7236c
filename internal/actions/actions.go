// Package actions loads the action table: the external description of
// every built-in function the game engine exposes, keyed by numeric
// action id. The decompiler treats this as a narrow, read-only
// collaborator — never mutated after Load returns — exactly the role
// spec.md §6 assigns it.
package actions

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/kotor-tools/ncsdecomp/internal/types"
)

// Param describes one parameter slot of an action: its type and,
// if the table provides one, a default value expression used when the
// caller omits a trailing argument.
type Param struct {
	Name    string
	Typ     types.Type
	Default string
}

// Action is the full signature of one built-in function.
type Action struct {
	ID     int
	Name   string
	Return types.Type
	Params []Param
}

// Table is an immutable, id-indexed action table. A nil or zero Table
// answers every lookup with ok=false and reports Len 0, so Lookup and
// Len need no separate nil check by their callers. Load returns the
// entries that parsed even when it also returns an error.
type Table struct {
	byID map[int]*Action
}

// Lookup returns the Action registered for id.
func (t *Table) Lookup(id int) (*Action, bool) {
	if t == nil || t.byID == nil {
		return nil, false
	}
	a, ok := t.byID[id]
	return a, ok
}

// Len reports how many actions are registered.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.byID)
}

// Load reads a line-oriented action table description from r. The
// expected line grammar, one action per line, is:
//
//	<id> <return_type> <name>(<type> <pname>[=<default>], ...)
//
// Blank lines and lines starting with '#' are skipped. A malformed line
// is recorded in the returned error (joined, not aborted on first
// failure) so the caller can still use whatever prefix parsed cleanly —
// the same "never crash the pipeline" policy every other pass follows.
func Load(r io.Reader) (*Table, error) {
	t := &Table{byID: make(map[int]*Action)}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)

	var errs []string
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		a, err := parseLine(line)
		if err != nil {
			errs = append(errs, fmt.Sprintf("line %d: %v", lineNo, err))
			continue
		}
		t.byID[a.ID] = a
	}
	if err := sc.Err(); err != nil {
		errs = append(errs, err.Error())
	}
	if len(errs) > 0 {
		return t, fmt.Errorf("actions: %d error(s) loading table:\n%s", len(errs), strings.Join(errs, "\n"))
	}
	return t, nil
}

func parseLine(line string) (*Action, error) {
	open := strings.IndexByte(line, '(')
	close := strings.LastIndexByte(line, ')')
	if open < 0 || close < open {
		return nil, fmt.Errorf("missing parameter list: %q", line)
	}
	head := strings.Fields(line[:open])
	if len(head) != 3 {
		return nil, fmt.Errorf("expected '<id> <type> <name>(', got %q", line[:open])
	}
	id, err := strconv.Atoi(head[0])
	if err != nil {
		return nil, fmt.Errorf("bad action id %q: %w", head[0], err)
	}
	ret, ok := types.ParseType(head[1])
	if !ok {
		return nil, fmt.Errorf("unknown return type %q", head[1])
	}

	a := &Action{ID: id, Name: head[2], Return: ret}

	body := strings.TrimSpace(line[open+1 : close])
	if body != "" {
		for _, raw := range strings.Split(body, ",") {
			p, err := parseParam(strings.TrimSpace(raw))
			if err != nil {
				return nil, fmt.Errorf("action %s: %w", a.Name, err)
			}
			a.Params = append(a.Params, p)
		}
	}
	return a, nil
}

func parseParam(raw string) (Param, error) {
	name, def, hasDefault := strings.Cut(raw, "=")
	fields := strings.Fields(strings.TrimSpace(name))
	if len(fields) != 2 {
		return Param{}, fmt.Errorf("malformed parameter %q", raw)
	}
	typ, ok := types.ParseType(fields[0])
	if !ok {
		return Param{}, fmt.Errorf("unknown parameter type %q", fields[0])
	}
	p := Param{Typ: typ, Name: fields[1]}
	if hasDefault {
		p.Default = strings.TrimSpace(def)
	}
	return p, nil
}
