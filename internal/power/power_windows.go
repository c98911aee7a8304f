//go:build windows

package power

import (
	"fmt"
	"runtime"
	"sync"
	"syscall"
	"unsafe"

	"github.com/lxn/win"
	"go.uber.org/zap"
)

const (
	wmPowerBroadcast        = 0x0218
	pbtAPMPowerStatusChange = 0x000A

	windowClass = "VoltPowerStatusMonitor"
)

var (
	kernel32                 = syscall.NewLazyDLL("kernel32.dll")
	user32                   = syscall.NewLazyDLL("user32.dll")
	procGetSystemPowerStatus = kernel32.NewProc("GetSystemPowerStatus")
	procUnregisterClass      = user32.NewProc("UnregisterClassW")
)

// systemPowerStatus mirrors SYSTEM_POWER_STATUS.
type systemPowerStatus struct {
	ACLineStatus        byte
	BatteryFlag         byte
	BatteryLifePercent  byte
	SystemStatusFlag    byte
	BatteryLifeTime     uint32
	BatteryFullLifeTime uint32
}

type windowsReader struct{}

func newReader() Reader {
	return windowsReader{}
}

func (windowsReader) LineStatus() (LineStatus, error) {
	var st systemPowerStatus
	ret, _, err := procGetSystemPowerStatus.Call(uintptr(unsafe.Pointer(&st)))
	if ret == 0 {
		return LineUnknown, fmt.Errorf("GetSystemPowerStatus: %w", err)
	}
	return LineStatus(st.ACLineStatus), nil
}

// Window procedures are invoked by the OS with only an HWND, so hooks are
// found through this table. The callback itself is created once per process.
var (
	hooksMu     sync.Mutex
	hooks       = map[win.HWND]*windowsHook{}
	wndProcOnce sync.Once
	wndProcPtr  uintptr
)

func wndProc(hwnd win.HWND, msg uint32, wParam, lParam uintptr) uintptr {
	switch msg {
	case wmPowerBroadcast:
		if wParam == pbtAPMPowerStatusChange {
			hooksMu.Lock()
			h := hooks[hwnd]
			hooksMu.Unlock()
			if h != nil {
				h.notify()
			}
		}
		return 1
	case win.WM_CLOSE:
		win.DestroyWindow(hwnd)
		return 0
	case win.WM_DESTROY:
		win.PostQuitMessage(0)
		return 0
	}
	return win.DefWindowProc(hwnd, msg, wParam, lParam)
}

// windowsHook owns a hidden top-level window on a locked OS thread. Message-
// only windows do not receive WM_POWERBROADCAST, so the window is a regular
// one that is never shown.
type windowsHook struct {
	log    *zap.Logger
	notify func()

	mu   sync.Mutex
	hwnd win.HWND
	done chan struct{}
}

func newHook(log *zap.Logger) Hook {
	return &windowsHook{log: log.Named("hook")}
}

func (h *windowsHook) Start(notify func()) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.done != nil {
		return nil // already running
	}

	wndProcOnce.Do(func() {
		wndProcPtr = syscall.NewCallback(wndProc)
	})

	h.notify = notify
	ready := make(chan startResult, 1)
	done := make(chan struct{})
	go h.loop(ready, done)

	res := <-ready
	if res.err != nil {
		<-done
		return res.err
	}
	h.hwnd, h.done = res.hwnd, done
	return nil
}

type startResult struct {
	hwnd win.HWND
	err  error
}

func (h *windowsHook) loop(ready chan<- startResult, done chan<- struct{}) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(done)

	hInst := win.GetModuleHandle(nil)
	className, _ := syscall.UTF16PtrFromString(windowClass)

	wc := win.WNDCLASSEX{
		CbSize:        uint32(unsafe.Sizeof(win.WNDCLASSEX{})),
		LpfnWndProc:   wndProcPtr,
		HInstance:     hInst,
		LpszClassName: className,
	}
	if win.RegisterClassEx(&wc) == 0 {
		ready <- startResult{err: fmt.Errorf("register window class: %w", syscall.GetLastError())}
		return
	}
	defer procUnregisterClass.Call(uintptr(unsafe.Pointer(className)), uintptr(hInst))

	hwnd := win.CreateWindowEx(0, className, className, 0, 0, 0, 0, 0, 0, 0, hInst, nil)
	if hwnd == 0 {
		ready <- startResult{err: fmt.Errorf("create window: %w", syscall.GetLastError())}
		return
	}

	hooksMu.Lock()
	hooks[hwnd] = h
	hooksMu.Unlock()
	defer func() {
		hooksMu.Lock()
		delete(hooks, hwnd)
		hooksMu.Unlock()
	}()

	h.log.Debug("listening for power broadcasts")
	ready <- startResult{hwnd: hwnd}

	var msg win.MSG
	for win.GetMessage(&msg, 0, 0, 0) > 0 {
		win.TranslateMessage(&msg)
		win.DispatchMessage(&msg)
	}
	h.log.Debug("power broadcast loop exited")
}

func (h *windowsHook) Stop() {
	h.mu.Lock()
	hwnd, done := h.hwnd, h.done
	h.hwnd, h.done = 0, nil
	h.mu.Unlock()

	if done == nil {
		return
	}
	if hwnd != 0 {
		win.PostMessage(hwnd, win.WM_CLOSE, 0, 0)
	}
	<-done
}
