package scripting

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/cory-johannsen/splittermond/internal/game/dice"
)

// TriggerEvent describes one status-effect activation handed to a
// lua_on_trigger hook as a table with the same snake_case field names.
type TriggerEvent struct {
	CombatID    string
	CombatantID string
	Combatant   string
	EffectID    string
	Effect      string
	Level       int
	Tick        int
}

// Manager owns one sandboxed LState loaded from a script directory.
//
// Manager is safe for concurrent use; calls into the VM are serialized.
type Manager struct {
	mu        sync.Mutex
	L         *lua.LState
	cancel    context.CancelFunc
	instLimit int
	roller    *dice.Roller
	logger    *zap.Logger
}

// NewManager creates a Manager with no scripts loaded.
//
// Precondition: roller and logger must be non-nil.
func NewManager(roller *dice.Roller, logger *zap.Logger) *Manager {
	return &Manager{roller: roller, logger: logger}
}

// Load creates a fresh VM, registers the engine modules and executes every
// *.lua file in scriptDir in lexicographic order. A previously loaded VM is
// replaced only when loading succeeds.
//
// Precondition: scriptDir must be a readable directory.
func (m *Manager) Load(scriptDir string, instLimit int) error {
	L, cancel := NewSandboxedState(instLimit)
	m.RegisterModules(L)

	entries, err := os.ReadDir(scriptDir)
	if err != nil {
		cancel()
		L.Close()
		return fmt.Errorf("scripting: reading script dir %q: %w", scriptDir, err)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".lua" {
			files = append(files, filepath.Join(scriptDir, e.Name()))
		}
	}
	sort.Strings(files)

	for _, path := range files {
		cancel()
		cancel = resetBudget(L, instLimit)
		if err := L.DoFile(path); err != nil {
			cancel()
			L.Close()
			return fmt.Errorf("scripting: loading %q: %w", path, err)
		}
	}

	m.mu.Lock()
	if m.L != nil {
		m.cancel()
		m.L.Close()
	}
	m.L, m.cancel, m.instLimit = L, cancel, instLimit
	m.mu.Unlock()
	m.logger.Info("lua scripts loaded", zap.String("dir", scriptDir), zap.Int("files", len(files)))
	return nil
}

// Close releases the VM.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.L != nil {
		m.cancel()
		m.L.Close()
		m.L = nil
	}
}

// CallHook calls the named Lua global with a fresh instruction budget.
// Returns (LNil, nil) when nothing is loaded or the hook is undefined.
// Runtime errors, including an exhausted budget, are logged and returned.
//
// Postcondition: returns the first return value of the hook, or LNil.
func (m *Manager) CallHook(hook string, args ...lua.LValue) (lua.LValue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.call(hook, args...)
}

// call runs hook. Caller holds m.mu.
func (m *Manager) call(hook string, args ...lua.LValue) (lua.LValue, error) {
	if m.L == nil {
		m.logger.Debug("scripting: no VM loaded", zap.String("hook", hook))
		return lua.LNil, nil
	}
	fn := m.L.GetGlobal(hook)
	if fn == lua.LNil {
		return lua.LNil, nil
	}

	m.cancel()
	m.cancel = resetBudget(m.L, m.instLimit)
	if err := m.L.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}, args...); err != nil {
		m.logger.Warn("scripting: Lua runtime error", zap.String("hook", hook), zap.Error(err))
		return lua.LNil, fmt.Errorf("scripting: hook %q: %w", hook, err)
	}
	ret := m.L.Get(-1)
	m.L.Pop(1)
	return ret, nil
}

// OnTrigger runs a lua_on_trigger hook for ev. A string result is returned as
// extra notification text; any other result yields "".
func (m *Manager) OnTrigger(ctx context.Context, hook string, ev TriggerEvent) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.L == nil {
		return "", nil
	}
	t := m.L.NewTable()
	m.L.SetField(t, "combat_id", lua.LString(ev.CombatID))
	m.L.SetField(t, "combatant_id", lua.LString(ev.CombatantID))
	m.L.SetField(t, "combatant", lua.LString(ev.Combatant))
	m.L.SetField(t, "effect_id", lua.LString(ev.EffectID))
	m.L.SetField(t, "effect", lua.LString(ev.Effect))
	m.L.SetField(t, "level", lua.LNumber(ev.Level))
	m.L.SetField(t, "tick", lua.LNumber(ev.Tick))

	ret, err := m.call(hook, t)
	if err != nil {
		return "", err
	}
	if s, ok := ret.(lua.LString); ok {
		return string(s), nil
	}
	return "", nil
}
