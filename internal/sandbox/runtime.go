package sandbox

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"astock-strategy-bot-go/internal/models"

	"github.com/dop251/goja"
	"github.com/dop251/goja/ast"
	"github.com/dop251/goja/parser"
)

// EntryPoint 是沙箱在策略代码中查找的入口方法名
const EntryPoint = "onBar"

// 运行时内被屏蔽的全局标识符。静态检查已经拒绝了对它们的引用，
// 这里再次覆盖为undefined，保证双层防护。
var shadowedGlobals = []string{"eval", "Function"}

// Runtime 将一段已通过安全检查的策略代码装入一个隔离的goja解释器。
//
// 每个Runtime持有独立的解释器实例：没有文件系统、网络、进程和环境变量
// 访问能力，两个Runtime之间不共享任何内存。单次onBar调用受墙钟预算限制，
// 超时通过解释器中断实现，不会挂起宿主。
//
// Runtime不是并发安全的，调用方必须保证串行调用（每根K线一次）。
type Runtime struct {
	vm       *goja.Runtime
	instance *goja.Object
	entry    goja.Callable
	timeout  time.Duration
}

// NewRuntime 编译并执行策略源码，实例化第一个暴露onBar方法的策略类型。
// 源码执行本身也受timeout约束。
func NewRuntime(source string, timeout time.Duration) (*Runtime, error) {
	entry, err := findEntryBinding(source)
	if err != nil {
		return nil, err
	}

	r := &Runtime{
		vm:      goja.New(),
		timeout: timeout,
	}
	r.installGlobals()

	// 执行策略定义
	if _, err := r.withBudget(func() (goja.Value, error) {
		return r.vm.RunString(source)
	}); err != nil {
		return nil, err
	}

	// 实例化策略：类用 new 构造，对象字面量直接取值
	expr := entry.name
	if entry.isClass {
		expr = fmt.Sprintf("new %s()", entry.name)
	}
	val, err := r.withBudget(func() (goja.Value, error) {
		return r.vm.RunString(expr)
	})
	if err != nil {
		return nil, err
	}

	obj, ok := val.(*goja.Object)
	if !ok {
		return nil, &models.ExecutionError{Reason: fmt.Sprintf("策略 %s 不是对象", entry.name)}
	}
	fn, ok := goja.AssertFunction(obj.Get(EntryPoint))
	if !ok {
		return nil, &models.ExecutionError{Reason: fmt.Sprintf("策略 %s 缺少 %s 方法", entry.name, EntryPoint)}
	}

	r.instance = obj
	r.entry = fn
	return r, nil
}

// OnBar 将一根K线交给策略处理，返回策略的原始信号。
// 策略内部抛出的任何异常都在这里转换为 ExecutionError，不会向上传播为panic。
func (r *Runtime) OnBar(bar models.Bar) (models.Signal, error) {
	barObj := map[string]interface{}{
		"date":   bar.Date,
		"open":   bar.Open,
		"high":   bar.High,
		"low":    bar.Low,
		"close":  bar.Close,
		"volume": bar.Volume,
	}

	val, err := r.withBudget(func() (goja.Value, error) {
		return r.entry(r.instance, r.vm.ToValue(barObj))
	})
	if err != nil {
		return nil, err
	}

	if val == nil || goja.IsUndefined(val) || goja.IsNull(val) {
		return nil, nil
	}
	if m, ok := val.Export().(map[string]interface{}); ok {
		return models.Signal(m), nil
	}
	// 非对象返回值视为无信号
	return nil, nil
}

// ExportState 导出策略实例的纯数据属性（函数成员被跳过）。
// 无法JSON序列化的值退化为其字符串表示。
func (r *Runtime) ExportState() map[string]interface{} {
	state := make(map[string]interface{})
	for _, key := range r.instance.Keys() {
		val := r.instance.Get(key)
		if _, isFn := goja.AssertFunction(val); isFn {
			continue
		}
		exported := val.Export()
		if _, err := json.Marshal(exported); err != nil {
			state[key] = fmt.Sprintf("%v", exported)
			continue
		}
		state[key] = exported
	}
	return state
}

// RestoreState 将之前导出的属性写回策略实例
func (r *Runtime) RestoreState(state map[string]interface{}) error {
	for key, val := range state {
		if err := r.instance.Set(key, r.vm.ToValue(val)); err != nil {
			return &models.ExecutionError{Reason: fmt.Sprintf("恢复属性 %s 失败: %v", key, err)}
		}
	}
	return nil
}

// withBudget 在墙钟预算内执行一次解释器调用。
// 超时通过 Interrupt 中断解释器并转换为 ExecutionTimeoutError；
// 超时的调用不会被重试。
func (r *Runtime) withBudget(fn func() (goja.Value, error)) (goja.Value, error) {
	if r.timeout > 0 {
		timer := time.AfterFunc(r.timeout, func() {
			r.vm.Interrupt("execution budget exceeded")
		})
		defer timer.Stop()
	}

	val, err := fn()
	if err == nil {
		return val, nil
	}

	if _, ok := err.(*goja.InterruptedError); ok {
		r.vm.ClearInterrupt()
		return nil, &models.ExecutionTimeoutError{Budget: r.timeout}
	}
	if ex, ok := err.(*goja.Exception); ok {
		return nil, &models.ExecutionError{Reason: ex.Error()}
	}
	return nil, &models.ExecutionError{Reason: err.Error()}
}

// installGlobals 注入允许的辅助函数并屏蔽危险全局对象
func (r *Runtime) installGlobals() {
	for _, name := range shadowedGlobals {
		_ = r.vm.Set(name, goja.Undefined())
	}

	_ = r.vm.Set("len", func(v goja.Value) int {
		switch x := v.Export().(type) {
		case string:
			return len(x)
		case []interface{}:
			return len(x)
		case map[string]interface{}:
			return len(x)
		}
		return 0
	})
	_ = r.vm.Set("sum", func(values []float64) float64 {
		var total float64
		for _, v := range values {
			total += v
		}
		return total
	})
	_ = r.vm.Set("min", func(values ...float64) float64 {
		if len(values) == 0 {
			return 0
		}
		m := values[0]
		for _, v := range values[1:] {
			if v < m {
				m = v
			}
		}
		return m
	})
	_ = r.vm.Set("max", func(values ...float64) float64 {
		if len(values) == 0 {
			return 0
		}
		m := values[0]
		for _, v := range values[1:] {
			if v > m {
				m = v
			}
		}
		return m
	})
	_ = r.vm.Set("abs", math.Abs)
	_ = r.vm.Set("round", func(v float64) float64 {
		return math.Round(v)
	})
}

// entryBinding 描述在源码中发现的策略类型
type entryBinding struct {
	name    string
	isClass bool
}

// findEntryBinding 静态定位第一个暴露入口方法的声明。
// goja的class声明位于全局词法环境而非globalThis属性，
// 无法在运行期枚举，因此只能从AST定位名称后按名实例化。
func findEntryBinding(source string) (*entryBinding, error) {
	prog, err := parser.ParseFile(nil, "strategy.js", source, 0)
	if err != nil {
		return nil, &models.ExecutionError{Reason: fmt.Sprintf("语法错误: %v", err)}
	}

	for _, stmt := range prog.Body {
		switch n := stmt.(type) {
		case *ast.ClassDeclaration:
			if n.Class != nil && n.Class.Name != nil && classHasEntry(n.Class) {
				return &entryBinding{name: n.Class.Name.Name.String(), isClass: true}, nil
			}
		case *ast.LexicalDeclaration:
			if b := bindingWithEntry(n.List); b != nil {
				return b, nil
			}
		case *ast.VariableStatement:
			if b := bindingWithEntry(n.List); b != nil {
				return b, nil
			}
		}
	}
	return nil, &models.ExecutionError{Reason: "未找到包含" + EntryPoint + "方法的策略类"}
}

func bindingWithEntry(list []*ast.Binding) *entryBinding {
	for _, b := range list {
		ident, ok := b.Target.(*ast.Identifier)
		if !ok || b.Initializer == nil {
			continue
		}
		switch init := b.Initializer.(type) {
		case *ast.ClassLiteral:
			if classHasEntry(init) {
				return &entryBinding{name: ident.Name.String(), isClass: true}
			}
		case *ast.ObjectLiteral:
			if objectHasEntry(init) {
				return &entryBinding{name: ident.Name.String(), isClass: false}
			}
		}
	}
	return nil
}

func classHasEntry(cls *ast.ClassLiteral) bool {
	for _, el := range cls.Body {
		if m, ok := el.(*ast.MethodDefinition); ok {
			if propName(m.Key) == EntryPoint {
				return true
			}
		}
	}
	return false
}

func objectHasEntry(obj *ast.ObjectLiteral) bool {
	for _, prop := range obj.Value {
		if p, ok := prop.(*ast.PropertyKeyed); ok {
			if propName(p.Key) == EntryPoint {
				return true
			}
		}
	}
	return false
}

func propName(key ast.Expression) string {
	switch k := key.(type) {
	case *ast.Identifier:
		return k.Name.String()
	case *ast.StringLiteral:
		return k.Value.String()
	}
	return ""
}
