package scripting

import (
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// RegisterModules installs the engine table into L:
//
//	engine.log.debug(msg) / engine.log.info(msg) / engine.log.warn(msg)
//	engine.dice.roll(expr) -> total
//
// Precondition: L must be from NewSandboxedState.
func (m *Manager) RegisterModules(L *lua.LState) {
	engine := L.NewTable()

	log := L.NewTable()
	logFn := func(emit func(string, ...zap.Field)) lua.LGFunction {
		return func(L *lua.LState) int {
			emit("lua", zap.String("message", L.CheckString(1)))
			return 0
		}
	}
	L.SetField(log, "debug", L.NewFunction(logFn(m.logger.Debug)))
	L.SetField(log, "info", L.NewFunction(logFn(m.logger.Info)))
	L.SetField(log, "warn", L.NewFunction(logFn(m.logger.Warn)))
	L.SetField(engine, "log", log)

	dice := L.NewTable()
	L.SetField(dice, "roll", L.NewFunction(func(L *lua.LState) int {
		res, err := m.roller.RollExpr(L.CheckString(1))
		if err != nil {
			L.RaiseError("engine.dice.roll: %s", err.Error())
			return 0
		}
		L.Push(lua.LNumber(res.Total()))
		return 1
	}))
	L.SetField(engine, "dice", dice)

	L.SetGlobal("engine", engine)
}
