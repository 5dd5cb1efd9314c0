package scripting

import (
	"bytes"
	"fmt"

	"github.com/l1jgo/tickhooks/internal/data"
	"github.com/l1jgo/tickhooks/internal/lifecycle"
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// APIVersion is exposed to plugins as the API_VERSION global.
const APIVersion = 1

// Engine wraps a single gopher-lua VM hosting every plugin.
// Single-goroutine access only: plugins load and their callbacks run on the
// goroutine that dispatches the lifecycle events.
type Engine struct {
	vm     *lua.LState
	events *lifecycle.Events
	log    *zap.Logger
	loaded []string
}

// pluginState holds registrations a plugin makes while its main chunk runs.
// They are committed only if the chunk finishes without error; later
// registrations (from inside callbacks) apply immediately.
type pluginState struct {
	id      string
	loading bool
	staged  []func()
}

func (ps *pluginState) register(commit func()) {
	if ps.loading {
		ps.staged = append(ps.staged, commit)
		return
	}
	commit()
}

// NewEngine creates a VM whose plugins register into events.
func NewEngine(events *lifecycle.Events, log *zap.Logger) *Engine {
	vm := lua.NewState(lua.Options{
		SkipOpenLibs: false,
	})
	vm.SetGlobal("API_VERSION", lua.LNumber(APIVersion))
	return &Engine{vm: vm, events: events, log: log}
}

// LoadAll loads every plugin of the table in order. Stops at the first
// failing plugin; callbacks registered by earlier plugins stay registered.
func (e *Engine) LoadAll(table *data.PluginTable) error {
	for _, p := range table.All() {
		if err := e.LoadPlugin(p); err != nil {
			return err
		}
	}
	return nil
}

// LoadPlugin runs the plugin's main chunk in its own environment. Globals
// the plugin defines stay private to it; reads fall through to _G.
// A chunk that fails registers nothing.
func (e *Engine) LoadPlugin(p data.Plugin) error {
	fn, err := e.vm.Load(bytes.NewReader(p.Source), p.Path)
	if err != nil {
		return fmt.Errorf("load plugin %s: %w", p.ID, err)
	}
	ps := &pluginState{id: p.ID, loading: true}
	fn.Env = e.pluginEnv(ps)
	if err := e.vm.CallByParam(lua.P{
		Fn:      fn,
		NRet:    0,
		Protect: true,
	}); err != nil {
		return fmt.Errorf("init plugin %s: %w", p.ID, err)
	}
	ps.loading = false
	for _, commit := range ps.staged {
		commit()
	}
	ps.staged = nil
	e.loaded = append(e.loaded, p.ID)
	e.log.Debug("loaded lua plugin", zap.String("plugin", p.ID), zap.String("file", p.Path))
	return nil
}

// Loaded returns the ids of successfully loaded plugins in load order.
func (e *Engine) Loaded() []string {
	return append([]string(nil), e.loaded...)
}

func (e *Engine) pluginEnv(ps *pluginState) *lua.LTable {
	env := e.vm.NewTable()
	mt := e.vm.NewTable()
	mt.RawSetString("__index", e.vm.G.Global)
	e.vm.SetMetatable(env, mt)
	env.RawSetString("PLUGIN_ID", lua.LString(ps.id))
	env.RawSetString("events", e.eventsTable(ps))
	env.RawSetString("log", e.logTable(ps.id))
	return env
}

// eventsTable exposes one registration function per lifecycle event.
func (e *Engine) eventsTable(ps *pluginState) *lua.LTable {
	id := ps.id
	t := e.vm.NewTable()
	t.RawSetString("start_client_tick", e.vm.NewFunction(func(L *lua.LState) int {
		fn := L.CheckFunction(1)
		ps.register(func() {
			e.events.StartClientTick.Register(func(c lifecycle.Client) error {
				return e.call(id, lifecycle.PhaseStartClientTick, fn, e.clientValue(c))
			})
		})
		return 0
	}))
	t.RawSetString("end_client_tick", e.vm.NewFunction(func(L *lua.LState) int {
		fn := L.CheckFunction(1)
		ps.register(func() {
			e.events.EndClientTick.Register(func(c lifecycle.Client) error {
				return e.call(id, lifecycle.PhaseEndClientTick, fn, e.clientValue(c))
			})
		})
		return 0
	}))
	t.RawSetString("start_world_tick", e.vm.NewFunction(func(L *lua.LState) int {
		fn := L.CheckFunction(1)
		ps.register(func() {
			e.events.StartWorldTick.Register(func(w lifecycle.World) error {
				return e.call(id, lifecycle.PhaseStartWorldTick, fn, e.worldValue(w))
			})
		})
		return 0
	}))
	t.RawSetString("end_world_tick", e.vm.NewFunction(func(L *lua.LState) int {
		fn := L.CheckFunction(1)
		ps.register(func() {
			e.events.EndWorldTick.Register(func(w lifecycle.World) error {
				return e.call(id, lifecycle.PhaseEndWorldTick, fn, e.worldValue(w))
			})
		})
		return 0
	}))
	t.RawSetString("start_task_execution", e.vm.NewFunction(func(L *lua.LState) int {
		fn := L.CheckFunction(1)
		ps.register(func() {
			e.events.StartTaskExecution.Register(func(c lifecycle.Client) error {
				return e.call(id, lifecycle.PhaseStartTaskExecution, fn, e.clientValue(c))
			})
		})
		return 0
	}))
	t.RawSetString("end_task_execution", e.vm.NewFunction(func(L *lua.LState) int {
		fn := L.CheckFunction(1)
		ps.register(func() {
			e.events.EndTaskExecution.Register(func(c lifecycle.Client) error {
				return e.call(id, lifecycle.PhaseEndTaskExecution, fn, e.clientValue(c))
			})
		})
		return 0
	}))
	return t
}

func (e *Engine) logTable(id string) *lua.LTable {
	t := e.vm.NewTable()
	pluginField := zap.String("plugin", id)
	t.RawSetString("debug", e.vm.NewFunction(func(L *lua.LState) int {
		e.log.Debug(L.CheckString(1), pluginField)
		return 0
	}))
	t.RawSetString("info", e.vm.NewFunction(func(L *lua.LState) int {
		e.log.Info(L.CheckString(1), pluginField)
		return 0
	}))
	t.RawSetString("warn", e.vm.NewFunction(func(L *lua.LState) int {
		e.log.Warn(L.CheckString(1), pluginField)
		return 0
	}))
	return t
}

// call runs a plugin callback. A Lua error becomes the callback's error.
func (e *Engine) call(id string, phase lifecycle.Phase, fn *lua.LFunction, arg lua.LValue) error {
	if err := e.vm.CallByParam(lua.P{
		Fn:      fn,
		NRet:    0,
		Protect: true,
	}, arg); err != nil {
		return fmt.Errorf("plugin %s %s: %w", id, phase, err)
	}
	return nil
}

func (e *Engine) clientValue(c lifecycle.Client) *lua.LTable {
	t := e.vm.NewTable()
	t.RawSetString("name", lua.LString(c.Name()))
	t.RawSetString("ticks", lua.LNumber(c.Ticks()))
	worlds := e.vm.NewTable()
	for _, w := range c.Worlds() {
		worlds.Append(e.worldValue(w))
	}
	t.RawSetString("worlds", worlds)
	return t
}

func (e *Engine) worldValue(w lifecycle.World) *lua.LTable {
	t := e.vm.NewTable()
	t.RawSetString("name", lua.LString(w.Name()))
	t.RawSetString("time", lua.LNumber(w.Time()))
	return t
}

// Close shuts down the Lua VM. Callbacks registered by plugins must not be
// invoked afterwards.
func (e *Engine) Close() {
	e.vm.Close()
}
