package lua

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/siohaza/warden/internal/event"
)

const handlerFunction = "handle"

// Hook is one script loaded from the hooks directory. Each script runs in
// its own VM and declares the event types it wants.
type Hook struct {
	Script string
	Events []event.Type
	Path   string

	vm  *VM
	api *HookAPI
}

type HookManager struct {
	hooks  []*Hook
	logger *slog.Logger
}

func NewHookManager(logger *slog.Logger) *HookManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &HookManager{logger: logger}
}

// LoadHooks loads every *.lua file in hooksDir in file name order. A missing
// directory loads nothing. Broken scripts are logged and skipped.
func (hm *HookManager) LoadHooks(hooksDir string, api *HookAPI) error {
	files, err := os.ReadDir(hooksDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			hm.logger.Info("no lua hooks directory", "dir", hooksDir)
			return nil
		}
		return fmt.Errorf("failed to read hooks directory: %w", err)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Name() < files[j].Name() })

	for _, file := range files {
		if file.IsDir() || !strings.HasSuffix(file.Name(), ".lua") {
			continue
		}

		hookPath := filepath.Join(hooksDir, file.Name())
		hook, err := LoadHookFile(hookPath, api)
		if err != nil {
			hm.logger.Warn("failed to load hook file", "file", file.Name(), "error", err)
			continue
		}
		hm.hooks = append(hm.hooks, hook)
	}

	hm.logger.Info("loaded lua hooks", "count", len(hm.hooks))
	return nil
}

func (hm *HookManager) Hooks() []*Hook {
	return hm.hooks
}

func LoadHookFile(path string, api *HookAPI) (*Hook, error) {
	vm := NewVM()
	if api != nil {
		api.RegisterFunctions(vm)
	}

	if err := vm.LoadFile(path); err != nil {
		return nil, err
	}
	return newHook(vm, api, path)
}

// LoadHookString builds a hook from inline source.
func LoadHookString(code string, api *HookAPI) (*Hook, error) {
	vm := NewVM()
	if api != nil {
		api.RegisterFunctions(vm)
	}

	if err := vm.LoadString(code); err != nil {
		return nil, err
	}
	return newHook(vm, api, "")
}

func newHook(vm *VM, api *HookAPI, path string) (*Hook, error) {
	name, err := vm.GetGlobalString("name")
	if err != nil {
		return nil, fmt.Errorf("hook missing 'name': %w", err)
	}

	events, err := vm.GetGlobalString("events")
	if err != nil {
		return nil, fmt.Errorf("hook %s missing 'events': %w", name, err)
	}

	if !vm.HasFunction(handlerFunction) {
		return nil, fmt.Errorf("hook %s has no %s function", name, handlerFunction)
	}

	hook := &Hook{
		Script: name,
		Path:   path,
		vm:     vm,
		api:    api,
	}
	for _, raw := range strings.Split(events, ",") {
		if t := event.TypeOf(raw); t != "" {
			hook.Events = append(hook.Events, t)
		}
	}
	if len(hook.Events) == 0 {
		return nil, fmt.Errorf("hook %s subscribes to no events", name)
	}

	return hook, nil
}

func (h *Hook) Handle(ctx context.Context, ev event.GameEvent) error {
	if h.api != nil {
		defer h.api.withContext(ctx)()
	}

	msg, failed, err := h.vm.CallWithTable(handlerFunction, map[string]any{
		"type":         string(ev.Type),
		"action":       ev.Action,
		"player":       ev.Player,
		"steam_id":     ev.SteamID,
		"player2":      ev.Player2,
		"steam_id2":    ev.SteamID2,
		"weapon":       ev.Weapon,
		"message":      ev.Message,
		"sub_content":  ev.SubContent,
		"line":         ev.Describe(),
		"timestamp_ms": ev.TimestampMs,
	})
	if err != nil {
		return err
	}
	if failed {
		return fmt.Errorf("hook %s failed: %s", h.Script, msg)
	}
	return nil
}

func (h *Hook) Name() string {
	return "lua:" + h.Script
}
