package safety

import (
	"fmt"
	"strings"

	"astock-strategy-bot-go/internal/models"

	"github.com/dop251/goja/ast"
	"github.com/dop251/goja/parser"
	"github.com/dop251/goja/token"
)

// EntryPoint 是策略类必须暴露的方法名
const EntryPoint = "onBar"

// 危险模块加载函数黑名单（对应宿主/网络能力的入口）
var dangerousImports = map[string]bool{
	"require":       true,
	"importScripts": true,
}

// 危险函数/标识符黑名单（动态求值、反射、网络、宿主环境访问）
var dangerousCalls = map[string]bool{
	"eval":           true,
	"Function":       true,
	"setTimeout":     true,
	"setInterval":    true,
	"setImmediate":   true,
	"XMLHttpRequest": true,
	"fetch":          true,
	"WebSocket":      true,
	"Reflect":        true,
	"Proxy":          true,
	"globalThis":     true,
	"process":        true,
}

// Checker 是策略代码静态安全检查器。
// 无状态，纯函数式，任意线程可安全调用。
type Checker struct {
	maxComplexity int
}

// NewChecker 创建安全检查器，maxComplexity<=0 时使用默认值20
func NewChecker(maxComplexity int) *Checker {
	if maxComplexity <= 0 {
		maxComplexity = 20
	}
	return &Checker{maxComplexity: maxComplexity}
}

// Check 对候选策略代码执行全部安全检查。
// 检查顺序: 语法 -> 危险导入 -> 危险调用 -> 必需方法 -> 圈复杂度。
// 任一项失败立即返回，后续检查不再执行。
func (c *Checker) Check(source string) *models.SafetyReport {
	prog, err := parser.ParseFile(nil, "strategy.js", source, 0)
	if err != nil {
		return &models.SafetyReport{
			Safe: false,
			Violations: []models.Violation{{
				Kind:   models.ViolationSyntax,
				Detail: fmt.Sprintf("语法错误: %v", err),
			}},
		}
	}

	s := &scanner{}
	for _, stmt := range prog.Body {
		s.statement(stmt)
	}

	if len(s.imports) > 0 {
		return &models.SafetyReport{
			Safe: false,
			Violations: []models.Violation{{
				Kind:   models.ViolationImport,
				Detail: fmt.Sprintf("检测到危险导入: %s", strings.Join(s.imports, ", ")),
			}},
		}
	}

	if len(s.calls) > 0 {
		return &models.SafetyReport{
			Safe: false,
			Violations: []models.Violation{{
				Kind:   models.ViolationCall,
				Detail: fmt.Sprintf("检测到危险调用: %s", strings.Join(s.calls, ", ")),
			}},
		}
	}

	if !s.hasEntryPoint {
		return &models.SafetyReport{
			Safe: false,
			Violations: []models.Violation{{
				Kind:   models.ViolationMissingEntry,
				Detail: fmt.Sprintf("缺少必需方法: %s", EntryPoint),
			}},
		}
	}

	if s.complexity() > c.maxComplexity {
		return &models.SafetyReport{
			Safe:       false,
			Complexity: s.complexity(),
			Violations: []models.Violation{{
				Kind:   models.ViolationComplexity,
				Detail: fmt.Sprintf("圈复杂度过高: %d > %d", s.complexity(), c.maxComplexity),
			}},
		}
	}

	return &models.SafetyReport{Safe: true, Complexity: s.complexity()}
}

// scanner 在一次AST遍历中同时收集三类信息：
// 危险标识符、入口方法、圈复杂度分支数。
type scanner struct {
	imports       []string
	calls         []string
	hasEntryPoint bool
	branches      int
}

// 圈复杂度 = 1 + 分支数（if/循环/三元/逻辑与或/异常处理/非默认case）
func (s *scanner) complexity() int {
	return 1 + s.branches
}

func (s *scanner) flagIdent(name string) {
	if dangerousImports[name] {
		s.imports = append(s.imports, name)
	} else if dangerousCalls[name] {
		s.calls = append(s.calls, name)
	}
}

func (s *scanner) statement(stmt ast.Statement) {
	switch n := stmt.(type) {
	case *ast.BlockStatement:
		for _, st := range n.List {
			s.statement(st)
		}
	case *ast.ExpressionStatement:
		s.expression(n.Expression)
	case *ast.IfStatement:
		s.branches++
		s.expression(n.Test)
		s.statement(n.Consequent)
		if n.Alternate != nil {
			s.statement(n.Alternate)
		}
	case *ast.ForStatement:
		s.branches++
		if n.Test != nil {
			s.expression(n.Test)
		}
		if n.Update != nil {
			s.expression(n.Update)
		}
		s.statement(n.Body)
	case *ast.ForInStatement:
		s.branches++
		s.expression(n.Source)
		s.statement(n.Body)
	case *ast.ForOfStatement:
		s.branches++
		s.expression(n.Source)
		s.statement(n.Body)
	case *ast.WhileStatement:
		s.branches++
		s.expression(n.Test)
		s.statement(n.Body)
	case *ast.DoWhileStatement:
		s.branches++
		s.expression(n.Test)
		s.statement(n.Body)
	case *ast.SwitchStatement:
		s.expression(n.Discriminant)
		for _, cs := range n.Body {
			if cs.Test != nil {
				s.branches++
				s.expression(cs.Test)
			}
			for _, st := range cs.Consequent {
				s.statement(st)
			}
		}
	case *ast.TryStatement:
		s.statement(n.Body)
		if n.Catch != nil {
			s.branches++
			s.statement(n.Catch.Body)
		}
		if n.Finally != nil {
			s.statement(n.Finally)
		}
	case *ast.ReturnStatement:
		if n.Argument != nil {
			s.expression(n.Argument)
		}
	case *ast.ThrowStatement:
		s.expression(n.Argument)
	case *ast.VariableStatement:
		for _, b := range n.List {
			if b.Initializer != nil {
				s.expression(b.Initializer)
			}
		}
	case *ast.LexicalDeclaration:
		for _, b := range n.List {
			if b.Initializer != nil {
				s.expression(b.Initializer)
			}
		}
	case *ast.FunctionDeclaration:
		s.functionLiteral(n.Function)
	case *ast.ClassDeclaration:
		s.classLiteral(n.Class)
	case *ast.LabelledStatement:
		s.statement(n.Statement)
	}
}

func (s *scanner) expression(expr ast.Expression) {
	switch n := expr.(type) {
	case *ast.Identifier:
		s.flagIdent(n.Name.String())
	case *ast.CallExpression:
		s.expression(n.Callee)
		for _, arg := range n.ArgumentList {
			s.expression(arg)
		}
	case *ast.NewExpression:
		s.expression(n.Callee)
		for _, arg := range n.ArgumentList {
			s.expression(arg)
		}
	case *ast.BinaryExpression:
		if n.Operator == token.LOGICAL_AND || n.Operator == token.LOGICAL_OR {
			s.branches++
		}
		s.expression(n.Left)
		s.expression(n.Right)
	case *ast.ConditionalExpression:
		s.branches++
		s.expression(n.Test)
		s.expression(n.Consequent)
		s.expression(n.Alternate)
	case *ast.AssignExpression:
		s.expression(n.Left)
		s.expression(n.Right)
	case *ast.UnaryExpression:
		s.expression(n.Operand)
	case *ast.DotExpression:
		s.expression(n.Left)
	case *ast.BracketExpression:
		s.expression(n.Left)
		s.expression(n.Member)
	case *ast.SequenceExpression:
		for _, e := range n.Sequence {
			s.expression(e)
		}
	case *ast.ArrayLiteral:
		for _, e := range n.Value {
			if e != nil {
				s.expression(e)
			}
		}
	case *ast.ObjectLiteral:
		s.objectLiteral(n)
	case *ast.FunctionLiteral:
		s.functionLiteral(n)
	case *ast.ArrowFunctionLiteral:
		if body, ok := n.Body.(*ast.BlockStatement); ok {
			s.statement(body)
		} else if body, ok := n.Body.(*ast.ExpressionBody); ok {
			s.expression(body.Expression)
		}
	case *ast.ClassLiteral:
		s.classLiteral(n)
	}
}

func (s *scanner) functionLiteral(fn *ast.FunctionLiteral) {
	if fn == nil {
		return
	}
	s.statement(fn.Body)
}

func (s *scanner) classLiteral(cls *ast.ClassLiteral) {
	if cls == nil {
		return
	}
	for _, el := range cls.Body {
		switch m := el.(type) {
		case *ast.MethodDefinition:
			if keyName(m.Key) == EntryPoint {
				s.hasEntryPoint = true
			}
			s.functionLiteral(m.Body)
		case *ast.FieldDefinition:
			if m.Initializer != nil {
				s.expression(m.Initializer)
			}
		}
	}
}

func (s *scanner) objectLiteral(obj *ast.ObjectLiteral) {
	for _, prop := range obj.Value {
		switch p := prop.(type) {
		case *ast.PropertyKeyed:
			if keyName(p.Key) == EntryPoint {
				switch p.Value.(type) {
				case *ast.FunctionLiteral, *ast.ArrowFunctionLiteral:
					s.hasEntryPoint = true
				}
			}
			s.expression(p.Value)
		case *ast.PropertyShort:
			if p.Initializer != nil {
				s.expression(p.Initializer)
			}
		}
	}
}

// keyName 提取属性键的字面名称（标识符或字符串字面量）
func keyName(key ast.Expression) string {
	switch k := key.(type) {
	case *ast.Identifier:
		return k.Name.String()
	case *ast.StringLiteral:
		return k.Value.String()
	}
	return ""
}
