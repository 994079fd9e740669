package lua

import (
	"fmt"

	"github.com/Shopify/go-lua"
)

type VM struct {
	state *lua.State
}

func NewVM() *VM {
	state := lua.NewState()
	openSafeLibraries(state)
	return &VM{state: state}
}

func openSafeLibraries(state *lua.State) {
	lua.OpenLibraries(state)

	state.PushNil()
	state.SetGlobal("io")

	state.PushNil()
	state.SetGlobal("os")

	state.PushNil()
	state.SetGlobal("debug")

	state.PushNil()
	state.SetGlobal("dofile")

	state.PushNil()
	state.SetGlobal("loadfile")
}

func (vm *VM) LoadFile(path string) error {
	if err := lua.DoFile(vm.state, path); err != nil {
		return fmt.Errorf("failed to load lua file %s: %w", path, err)
	}
	return nil
}

func (vm *VM) LoadString(code string) error {
	if err := lua.DoString(vm.state, code); err != nil {
		return fmt.Errorf("failed to load lua string: %w", err)
	}
	return nil
}

func (vm *VM) GetGlobalString(name string) (string, error) {
	vm.state.Global(name)
	if vm.state.TypeOf(-1) != lua.TypeString {
		vm.state.Pop(1)
		return "", fmt.Errorf("global %s is not a string", name)
	}
	value, _ := vm.state.ToString(-1)
	vm.state.Pop(1)
	return value, nil
}

func (vm *VM) HasFunction(name string) bool {
	vm.state.Global(name)
	isFunc := vm.state.IsFunction(-1)
	vm.state.Pop(1)
	return isFunc
}

// CallWithTable calls the global function name with a single table argument
// built from fields and returns its first result when that is a string.
func (vm *VM) CallWithTable(name string, fields map[string]any) (string, bool, error) {
	vm.state.Global(name)
	if !vm.state.IsFunction(-1) {
		vm.state.Pop(1)
		return "", false, fmt.Errorf("global %s is not a function", name)
	}

	vm.state.NewTable()
	for key, value := range fields {
		switch v := value.(type) {
		case string:
			vm.state.PushString(v)
		case int:
			vm.state.PushInteger(v)
		case int64:
			vm.state.PushNumber(float64(v))
		case float64:
			vm.state.PushNumber(v)
		case bool:
			vm.state.PushBoolean(v)
		default:
			vm.state.Pop(2)
			return "", false, fmt.Errorf("unsupported field type for %s: %T", key, value)
		}
		vm.state.SetField(-2, key)
	}

	if err := vm.state.ProtectedCall(1, 1, 0); err != nil {
		return "", false, vm.enhanceError(fmt.Sprintf("function %s", name), err)
	}

	var (
		result string
		ok     bool
	)
	if vm.state.TypeOf(-1) == lua.TypeString {
		result, ok = vm.state.ToString(-1)
	}
	vm.state.Pop(1)
	return result, ok, nil
}

func (vm *VM) enhanceError(context string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("[Lua Error] %s: %w", context, err)
}

func (vm *VM) State() *lua.State {
	return vm.state
}
