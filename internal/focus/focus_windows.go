package focus

import (
	"path/filepath"
	"time"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	user32                   = windows.NewLazySystemDLL("user32.dll")
	kernel32                 = windows.NewLazySystemDLL("kernel32.dll")
	procGetWindowTextW       = user32.NewProc("GetWindowTextW")
	procGetWindowTextLengthW = user32.NewProc("GetWindowTextLengthW")
	procGetLastInputInfo     = user32.NewProc("GetLastInputInfo")
	procGetCursorPos         = user32.NewProc("GetCursorPos")
	procGetTickCount         = kernel32.NewProc("GetTickCount")
)

type lastInputInfo struct {
	size uint32
	time uint32
}

type point struct {
	x, y int32
}

type systemSource struct{}

// NewSystemSource returns a Source backed by the Win32 foreground window
// and last input APIs.
func NewSystemSource() (Source, error) {
	if err := procGetLastInputInfo.Find(); err != nil {
		return nil, err
	}
	return systemSource{}, nil
}

func (systemSource) Sample() (Snapshot, error) {
	var snap Snapshot

	if hwnd := windows.GetForegroundWindow(); hwnd != 0 {
		snap.Title = windowText(hwnd)
		var pid uint32
		if _, err := windows.GetWindowThreadProcessId(hwnd, &pid); err == nil && pid != 0 {
			if image, err := processImage(pid); err == nil {
				snap.AppID = filepath.Base(image)
			}
		}
	}

	info := lastInputInfo{size: uint32(unsafe.Sizeof(lastInputInfo{}))}
	if ok, _, err := procGetLastInputInfo.Call(uintptr(unsafe.Pointer(&info))); ok == 0 {
		return Snapshot{}, err
	}
	now, _, _ := procGetTickCount.Call()
	snap.InputSeq = info.time
	snap.IdleFor = time.Duration(uint32(now)-info.time) * time.Millisecond

	var pt point
	if ok, _, _ := procGetCursorPos.Call(uintptr(unsafe.Pointer(&pt))); ok != 0 {
		snap.CursorX, snap.CursorY = pt.x, pt.y
	}
	return snap, nil
}

func windowText(hwnd windows.HWND) string {
	n, _, _ := procGetWindowTextLengthW.Call(uintptr(hwnd))
	if n == 0 {
		return ""
	}
	buf := make([]uint16, n+1)
	procGetWindowTextW.Call(uintptr(hwnd), uintptr(unsafe.Pointer(&buf[0])), uintptr(len(buf)))
	return windows.UTF16ToString(buf)
}

func processImage(pid uint32) (string, error) {
	h, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, pid)
	if err != nil {
		return "", err
	}
	defer windows.CloseHandle(h)

	buf := make([]uint16, windows.MAX_PATH)
	size := uint32(len(buf))
	if err := windows.QueryFullProcessImageName(h, 0, &buf[0], &size); err != nil {
		return "", err
	}
	return windows.UTF16ToString(buf[:size]), nil
}
