package lua

import (
	"context"
	"log/slog"
	"time"

	"github.com/Shopify/go-lua"
)

type Broadcaster interface {
	BroadcastTemporary(ctx context.Context, text string, d time.Duration) error
}

// HookAPI is the set of functions visible to hook scripts. Calls made from
// a script run under the context of the event being handled.
type HookAPI struct {
	broadcaster  Broadcaster
	serverName   string
	serverNumber string
	logger       *slog.Logger

	ctx context.Context
}

func NewHookAPI(broadcaster Broadcaster, serverName, serverNumber string, logger *slog.Logger) *HookAPI {
	if logger == nil {
		logger = slog.Default()
	}
	return &HookAPI{
		broadcaster:  broadcaster,
		serverName:   serverName,
		serverNumber: serverNumber,
		logger:       logger,
		ctx:          context.Background(),
	}
}

func (api *HookAPI) RegisterFunctions(vm *VM) {
	state := vm.State()

	state.Register("broadcast", api.broadcast)
	state.Register("log", api.log)
	state.Register("get_server_name", api.getServerName)
	state.Register("get_server_number", api.getServerNumber)
}

func (api *HookAPI) withContext(ctx context.Context) func() {
	prev := api.ctx
	api.ctx = ctx
	return func() { api.ctx = prev }
}

func (api *HookAPI) broadcast(state *lua.State) int {
	message := lua.CheckString(state, 1)
	seconds := lua.OptInteger(state, 2, 10)

	if api.broadcaster == nil {
		state.PushBoolean(false)
		state.PushString("broadcast unavailable")
		return 2
	}

	if err := api.broadcaster.BroadcastTemporary(api.ctx, message, time.Duration(seconds)*time.Second); err != nil {
		api.logger.Warn("hook broadcast failed", "error", err)
		state.PushBoolean(false)
		state.PushString(err.Error())
		return 2
	}

	state.PushBoolean(true)
	state.PushString("")
	return 2
}

func (api *HookAPI) log(state *lua.State) int {
	message := lua.CheckString(state, 1)
	api.logger.Info(message, "source", "lua")
	return 0
}

func (api *HookAPI) getServerName(state *lua.State) int {
	state.PushString(api.serverName)
	return 1
}

func (api *HookAPI) getServerNumber(state *lua.State) int {
	state.PushString(api.serverNumber)
	return 1
}
