// Package lua imports plugins written in Lua. A plugin file returns a table;
// tables with a help field are commands, tables with a name and a run
// function are event handlers. Each instance runs in its own sandboxed
// state, so reloading a file never shares state with the previous instance.
package lua

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/parse"

	"github.com/keshon/guild-warden/internal/plugin"
)

// Ext is the file extension handled by the importer.
const Ext = ".lua"

// Importer compiles Lua files into modules.
type Importer struct{}

// NewImporter returns a Lua importer.
func NewImporter() *Importer { return &Importer{} }

// Import reads and compiles path. Syntax errors surface here, at import time.
func (Importer) Import(path string) (plugin.Module, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	chunk, err := parse.Parse(bytes.NewReader(src), path)
	if err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	proto, err := lua.Compile(chunk, path)
	if err != nil {
		return nil, fmt.Errorf("compile: %w", err)
	}
	return &module{path: path, proto: proto}, nil
}

type module struct {
	path  string
	proto *lua.FunctionProto
}

// Instantiate runs the compiled chunk in a fresh state and wraps the table
// it returns.
func (m *module) Instantiate(c plugin.Client) (any, error) {
	st := newState(c)
	L := st.L

	L.Push(L.NewFunctionFromProto(m.proto))
	if err := L.PCall(0, 1, nil); err != nil {
		L.Close()
		return nil, fmt.Errorf("run chunk: %w", err)
	}
	ret := L.Get(-1)
	L.Pop(1)

	tbl, ok := ret.(*lua.LTable)
	if !ok {
		L.Close()
		return nil, fmt.Errorf("plugin must return a table, got %s", ret.Type())
	}

	if help, ok := tbl.RawGetString("help").(*lua.LTable); ok {
		return newCommand(st, tbl, help)
	}
	if name := lua.LVAsString(tbl.RawGetString("name")); name != "" {
		return newHandler(st, tbl, name)
	}
	L.Close()
	return nil, fmt.Errorf("plugin table has neither help nor name")
}
