package lua

import (
	"context"
	"fmt"
	"sync"

	lua "github.com/yuin/gopher-lua"

	"github.com/keshon/guild-warden/internal/plugin"
)

// unsafeGlobals are removed from every state: they load code from disk or strings.
var unsafeGlobals = []string{"dofile", "loadfile", "load", "loadstring", "require", "module"}

// state is one sandboxed interpreter. gopher-lua states are not safe for
// concurrent use, so every call goes through mu.
type state struct {
	mu     sync.Mutex
	L      *lua.LState
	closed bool
}

func newState(c plugin.Client) *state {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	for _, lib := range []struct {
		name string
		open lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	} {
		L.Push(L.NewFunction(lib.open))
		L.Push(lua.LString(lib.name))
		L.Call(1, 0)
	}
	for _, name := range unsafeGlobals {
		L.SetGlobal(name, lua.LNil)
	}
	L.SetGlobal("client", clientTable(L, c))
	return &state{L: L}
}

// call invokes fn with args under ctx and returns its first result.
func (s *state) call(ctx context.Context, fn lua.LValue, args ...lua.LValue) (ret lua.LValue, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return lua.LNil, fmt.Errorf("lua state closed")
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("lua panic: %v", r)
		}
	}()

	if ctx != nil {
		s.L.SetContext(ctx)
		defer s.L.RemoveContext()
	}
	if err := s.L.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}, args...); err != nil {
		return lua.LNil, err
	}
	ret = s.L.Get(-1)
	s.L.Pop(1)
	return ret, nil
}

// fail converts a Lua return value into an error: scripts signal failure by
// returning an error string (or false, message).
func fail(ret lua.LValue) error {
	switch v := ret.(type) {
	case lua.LString:
		if v != "" {
			return fmt.Errorf("%s", string(v))
		}
	case lua.LBool:
		if !bool(v) {
			return fmt.Errorf("returned false")
		}
	}
	return nil
}

func (s *state) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *state) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.L.Close()
		s.closed = true
	}
}

func stringList(v lua.LValue) []string {
	tbl, ok := v.(*lua.LTable)
	if !ok {
		return nil
	}
	var out []string
	for i := 1; i <= tbl.Len(); i++ {
		if s := lua.LVAsString(tbl.RawGetInt(i)); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func boolOr(v lua.LValue, def bool) bool {
	if b, ok := v.(lua.LBool); ok {
		return bool(b)
	}
	return def
}

func stringTable(L *lua.LState, items []string) *lua.LTable {
	tbl := L.NewTable()
	for _, s := range items {
		tbl.Append(lua.LString(s))
	}
	return tbl
}
