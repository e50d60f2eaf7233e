//go:build windows
// +build windows

package printer

import (
	"bufio"
	"bytes"
	"context"
	"os/exec"
	"strings"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	modwinspool        = windows.NewLazySystemDLL("winspool.drv")
	procEnumPrintersW  = modwinspool.NewProc("EnumPrintersW")
	procGetDefaultPrin = modwinspool.NewProc("GetDefaultPrinterW")
)

const (
	printerEnumLocal       = 0x00000002
	printerEnumConnections = 0x00000004
)

// printerInfo2W mirrors the fields of PRINTER_INFO_2W this enumerator
// needs; the full Win32 structure has more fields we never read.
type printerInfo2W struct {
	ServerName      *uint16
	PrinterName     *uint16
	ShareName       *uint16
	PortName        *uint16
	DriverName      *uint16
	Comment         *uint16
	Location        *uint16
	DevMode         uintptr
	SepFile         *uint16
	PrintProcessor  *uint16
	Datatype        *uint16
	Parameters      *uint16
	SecurityDesc    uintptr
	Attributes      uint32
	Priority        uint32
	DefaultPriority uint32
	StartTime       uint32
	UntilTime       uint32
	Status          uint32
	JobCount        uint32
	AveragePPM      uint32
}

// platformList implements spec.md §4.2's Windows resolution order: a
// native winspool EnumPrintersW call first, falling back to shelling out
// to `wmic printer get name /value` only if the syscall path errors or
// finds no printers (wmic is deprecated/removed on current Windows releases).
func platformList(ctx context.Context, logger Logger) []Info {
	if printers, ok := listViaWinspool(logger); ok {
		return printers
	}
	return listViaWMIC(ctx, logger)
}

func listViaWinspool(logger Logger) ([]Info, bool) {
	defaultName := getDefaultPrinterName()

	var needed, returned uint32
	flags := uint32(printerEnumLocal | printerEnumConnections)

	// First call: determine required buffer size.
	r1, _, _ := procEnumPrintersW.Call(
		uintptr(flags), 0, 2, 0, 0,
		uintptr(unsafe.Pointer(&needed)),
		uintptr(unsafe.Pointer(&returned)),
	)
	if r1 == 0 && needed == 0 {
		logger.Debug("EnumPrintersW sizing call failed")
		return nil, false
	}

	buf := make([]byte, needed)
	r2, _, _ := procEnumPrintersW.Call(
		uintptr(flags), 0, 2,
		uintptr(unsafe.Pointer(&buf[0])), uintptr(needed),
		uintptr(unsafe.Pointer(&needed)),
		uintptr(unsafe.Pointer(&returned)),
	)
	if r2 == 0 {
		logger.Debug("EnumPrintersW failed")
		return nil, false
	}

	printers := make([]Info, 0, returned)
	entries := unsafe.Slice((*printerInfo2W)(unsafe.Pointer(&buf[0])), returned)
	for _, e := range entries {
		name := utf16PtrToString(e.PrinterName)
		if name == "" {
			continue
		}
		info := Info{Name: name, DisplayName: name}
		if e.Comment != nil {
			info.Description = utf16PtrToString(e.Comment)
		}
		if defaultName != "" && name == defaultName {
			info.IsDefault = true
		}
		printers = append(printers, info)
	}
	return printers, len(printers) > 0
}

func getDefaultPrinterName() string {
	var size uint32 = 260
	buf := make([]uint16, size)
	r, _, _ := procGetDefaultPrin.Call(
		uintptr(unsafe.Pointer(&buf[0])),
		uintptr(unsafe.Pointer(&size)),
	)
	if r == 0 {
		return ""
	}
	return windows.UTF16ToString(buf)
}

func utf16PtrToString(p *uint16) string {
	if p == nil {
		return ""
	}
	// Determine length by scanning for the NUL terminator.
	n := 0
	for ptr := unsafe.Pointer(p); *(*uint16)(ptr) != 0; n++ {
		ptr = unsafe.Add(ptr, 2)
	}
	slice := unsafe.Slice(p, n)
	return windows.UTF16ToString(slice)
}

func listViaWMIC(ctx context.Context, logger Logger) []Info {
	out, err := exec.CommandContext(ctx, "wmic", "printer", "get", "name", "/value").Output()
	if err != nil {
		logger.Debug("wmic printer enumeration failed", "error", err)
		return nil
	}
	var printers []Info
	scanner := bufio.NewScanner(bytes.NewReader(out))
	const prefix = "Name="
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, prefix) {
			continue
		}
		name := strings.TrimSpace(strings.TrimPrefix(line, prefix))
		if name == "" {
			continue
		}
		printers = append(printers, Info{Name: name, DisplayName: name})
	}
	return printers
}
