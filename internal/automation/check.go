//go:build !no_automation

package automation

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"lightnode/internal/node"
	"lightnode/internal/protocol"

	"github.com/yuin/gopher-lua/ast"
	"github.com/yuin/gopher-lua/parse"
)

// ErrSyntax is returned by Check for scripts that do not parse.
var ErrSyntax = errors.New("lua syntax error")

// nodeFunctions is the surface of the global "node" table.
var nodeFunctions = map[string]bool{
	"on":        true,
	"send":      true,
	"set_level": true,
	"state":     true,
	"after":     true,
	"log":       true,
}

// Issue is a problem found in a script without running it.
type Issue struct {
	Line    int    `json:"line"`
	Message string `json:"message"`
}

// Analysis is what a script asks of the node.
type Analysis struct {
	// Events are the event types passed to node.on, sorted. "*" means all.
	Events []string `json:"events"`
	// Commands are the literal command bodies the script sends.
	Commands []string `json:"commands,omitempty"`
	Issues   []Issue  `json:"issues,omitempty"`
}

// Check parses code and inspects its use of the node module. Unknown node
// functions, event types the node never emits and command bodies outside
// the grammar are reported as issues.
func Check(code string) (*Analysis, error) {
	chunk, err := parse.Parse(strings.NewReader(code), "<check>")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSyntax, err)
	}
	c := &checker{events: make(map[string]bool), commands: make(map[string]bool)}
	c.stmts(chunk)

	a := &Analysis{Events: []string{}, Issues: c.issues}
	for e := range c.events {
		a.Events = append(a.Events, e)
	}
	sort.Strings(a.Events)
	for body := range c.commands {
		a.Commands = append(a.Commands, body)
	}
	sort.Strings(a.Commands)
	return a, nil
}

type checker struct {
	events   map[string]bool
	commands map[string]bool
	issues   []Issue
}

func (c *checker) issue(line int, format string, args ...interface{}) {
	c.issues = append(c.issues, Issue{Line: line, Message: fmt.Sprintf(format, args...)})
}

func (c *checker) stmts(list []ast.Stmt) {
	for _, st := range list {
		c.stmt(st)
	}
}

func (c *checker) stmt(st ast.Stmt) {
	switch st := st.(type) {
	case *ast.AssignStmt:
		c.exprs(st.Lhs)
		c.exprs(st.Rhs)
	case *ast.LocalAssignStmt:
		c.exprs(st.Exprs)
	case *ast.FuncCallStmt:
		c.expr(st.Expr)
	case *ast.DoBlockStmt:
		c.stmts(st.Stmts)
	case *ast.WhileStmt:
		c.expr(st.Condition)
		c.stmts(st.Stmts)
	case *ast.RepeatStmt:
		c.stmts(st.Stmts)
		c.expr(st.Condition)
	case *ast.IfStmt:
		c.expr(st.Condition)
		c.stmts(st.Then)
		c.stmts(st.Else)
	case *ast.NumberForStmt:
		c.expr(st.Init)
		c.expr(st.Limit)
		c.expr(st.Step)
		c.stmts(st.Stmts)
	case *ast.GenericForStmt:
		c.exprs(st.Exprs)
		c.stmts(st.Stmts)
	case *ast.FuncDefStmt:
		c.stmts(st.Func.Stmts)
	case *ast.ReturnStmt:
		c.exprs(st.Exprs)
	}
}

func (c *checker) exprs(list []ast.Expr) {
	for _, e := range list {
		c.expr(e)
	}
}

func (c *checker) expr(e ast.Expr) {
	switch e := e.(type) {
	case nil:
	case *ast.FuncCallExpr:
		c.call(e)
		c.expr(e.Func)
		c.expr(e.Receiver)
		c.exprs(e.Args)
	case *ast.AttrGetExpr:
		if name, ok := nodeAttr(e); ok && !nodeFunctions[name] {
			c.issue(e.Line(), "node.%s is not a node function", name)
		}
		c.expr(e.Object)
		c.expr(e.Key)
	case *ast.FunctionExpr:
		c.stmts(e.Stmts)
	case *ast.TableExpr:
		for _, f := range e.Fields {
			c.expr(f.Key)
			c.expr(f.Value)
		}
	case *ast.LogicalOpExpr:
		c.expr(e.Lhs)
		c.expr(e.Rhs)
	case *ast.RelationalOpExpr:
		c.expr(e.Lhs)
		c.expr(e.Rhs)
	case *ast.StringConcatOpExpr:
		c.expr(e.Lhs)
		c.expr(e.Rhs)
	case *ast.ArithmeticOpExpr:
		c.expr(e.Lhs)
		c.expr(e.Rhs)
	case *ast.UnaryMinusOpExpr:
		c.expr(e.Expr)
	case *ast.UnaryNotOpExpr:
		c.expr(e.Expr)
	case *ast.UnaryLenOpExpr:
		c.expr(e.Expr)
	}
}

// nodeAttr matches node.<name>.
func nodeAttr(e *ast.AttrGetExpr) (string, bool) {
	obj, ok := e.Object.(*ast.IdentExpr)
	if !ok || obj.Value != "node" {
		return "", false
	}
	key, ok := e.Key.(*ast.StringExpr)
	if !ok {
		return "", false
	}
	return key.Value, true
}

func (c *checker) call(e *ast.FuncCallExpr) {
	attr, ok := e.Func.(*ast.AttrGetExpr)
	if !ok {
		return
	}
	name, ok := nodeAttr(attr)
	if !ok || len(e.Args) == 0 {
		return
	}
	line := e.Line()

	switch name {
	case "on":
		s, ok := e.Args[0].(*ast.StringExpr)
		if !ok {
			return
		}
		if s.Value != "*" && !node.IsEventType(s.Value) {
			c.issue(line, "node never emits %q", s.Value)
			return
		}
		c.events[s.Value] = true
	case "send":
		s, ok := e.Args[0].(*ast.StringExpr)
		if !ok {
			return
		}
		f, err := protocol.NewFrame(s.Value, protocol.Broadcast)
		if err != nil {
			c.issue(line, "send %q: %v", s.Value, err)
			return
		}
		if _, ok := protocol.Match(f); !ok {
			c.issue(line, "send %q: %v", s.Value, protocol.ErrUnknownCommand)
			return
		}
		c.commands[s.Value] = true
	case "set_level":
		n, ok := e.Args[0].(*ast.NumberExpr)
		if !ok {
			return
		}
		v, err := strconv.ParseFloat(n.Value, 64)
		if err != nil {
			return
		}
		if v < 0 || v > 99 {
			c.issue(line, "set_level(%s) is clamped to 0-99", n.Value)
			v = min(max(v, 0), 99)
		}
		c.commands[fmt.Sprintf("ADSPL%02d", int(v))] = true
	}
}
