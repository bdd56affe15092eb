package script

import (
	"strings"
)

// NamespaceView is what the compactor needs to know about the live
// namespace.
type NamespaceView interface {
	// LiveWidget reports whether the name is still bound, and if it
	// names a widget, whether that widget still exists.
	LiveWidget(name string) bool
}

func isCtorCall(x Expr) bool {
	call, ok := x.(*CallExpr)
	if !ok {
		return false
	}
	name, ok := call.Fn.(*NameExpr)
	if !ok {
		return false
	}
	_, ok = ctorParams[name.Ident]
	return ok
}

// Compact rewrites the append-only code log into a minimal equivalent
// program: identical import lines are deduplicated preserving first
// occurrence, assignments to the same top-level name are superseded by
// the latest, and creations of widgets that have since been destroyed
// are elided. It is a pure function of the fragment log and the
// namespace view; equal input gives equal output. An error means the
// caller should fall back to the raw concatenation.
func Compact(fragments []string, ns NamespaceView) (string, error) {
	type entry struct {
		ps    ParsedStmt
		index int
	}
	var all []entry
	for _, fragment := range fragments {
		stmts, err := Parse(fragment)
		if err != nil {
			return "", err
		}
		for _, ps := range stmts {
			all = append(all, entry{ps: ps, index: len(all)})
		}
	}

	seenImport := make(map[string]bool)
	firstAssign := make(map[string]int)
	latestAssign := make(map[string]entry)
	for _, e := range all {
		if a, ok := e.ps.Stmt.(*AssignStmt); ok {
			if _, ok := firstAssign[a.Name]; !ok {
				firstAssign[a.Name] = e.index
			}
			latestAssign[a.Name] = e
		}
	}

	var lines []string
	for _, e := range all {
		switch stmt := e.ps.Stmt.(type) {
		case *ImportStmt:
			key := strings.TrimSpace(e.ps.Text)
			if seenImport[key] {
				continue
			}
			seenImport[key] = true
			lines = append(lines, e.ps.Text)
		case *AssignStmt:
			if firstAssign[stmt.Name] != e.index {
				continue // superseded; the latest text was or will be emitted at the first position
			}
			latest := latestAssign[stmt.Name]
			la := latest.ps.Stmt.(*AssignStmt)
			if isCtorCall(la.X) && !ns.LiveWidget(stmt.Name) {
				continue
			}
			lines = append(lines, latest.ps.Text)
		case *ExprStmt:
			lines = append(lines, e.ps.Text)
		}
	}
	if len(lines) == 0 {
		return "", nil
	}
	return strings.Join(lines, "\n") + "\n", nil
}
