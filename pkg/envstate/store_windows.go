//go:build windows

package envstate

import (
	"strings"
	"syscall"
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/windows/registry"
	"k8s.io/klog/v2"
)

const (
	machineEnvKeyPath = `SYSTEM\CurrentControlSet\Control\Session Manager\Environment`
	userEnvKeyPath    = `Environment`
)

// registryStore reads the persistent environment from the Windows registry:
// machine-level from HKLM's Session Manager key, user-level from HKCU.
type registryStore struct{}

// NewSystemStore returns the registry-backed persistent environment store.
func NewSystemStore() (Store, error) {
	return registryStore{}, nil
}

func (registryStore) MachinePath() ([]string, error) {
	return readPathValue(registry.LOCAL_MACHINE, machineEnvKeyPath)
}

func (registryStore) UserPath() ([]string, error) {
	return readPathValue(registry.CURRENT_USER, userEnvKeyPath)
}

func (registryStore) AppendMachinePath(dir string) error {
	key, err := registry.OpenKey(registry.LOCAL_MACHINE, machineEnvKeyPath, registry.QUERY_VALUE|registry.SET_VALUE)
	if err != nil {
		return errors.Wrap(err, "failed to open machine environment key for writing (elevation required)")
	}
	defer func() { ReportKeyClose(key) }()

	existing, _, err := key.GetStringValue("Path")
	if err != nil && err != registry.ErrNotExist {
		return errors.Wrap(err, "failed to read machine Path value")
	}
	updated := dir
	if existing != "" {
		updated = strings.TrimRight(existing, ";") + ";" + dir
	}
	// Keep REG_EXPAND_SZ so %SystemRoot%-style entries keep expanding.
	if err := key.SetExpandStringValue("Path", updated); err != nil {
		return errors.Wrap(err, "failed to write machine Path value")
	}
	broadcastEnvironmentChange()
	return nil
}

// ReportKeyClose logs a failure to close a registry key.
func ReportKeyClose(key registry.Key) {
	if err := key.Close(); err != nil {
		klog.Warningf("Error closing registry key: %v", err)
	}
}

func readPathValue(root registry.Key, keyPath string) ([]string, error) {
	key, err := registry.OpenKey(root, keyPath, registry.QUERY_VALUE)
	if err != nil {
		if err == registry.ErrNotExist {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "failed to open registry key %s", keyPath)
	}
	defer func() { ReportKeyClose(key) }()

	raw, valType, err := key.GetStringValue("Path")
	if err != nil {
		if err == registry.ErrNotExist {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "failed to read Path from %s", keyPath)
	}
	if valType == registry.EXPAND_SZ {
		expanded, err := registry.ExpandString(raw)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to expand Path from %s", keyPath)
		}
		raw = expanded
	}
	var entries []string
	for _, entry := range strings.Split(raw, ";") {
		entry = strings.TrimSpace(entry)
		if entry != "" {
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

var (
	user32              = syscall.NewLazyDLL("user32.dll")
	sendMessageTimeoutW = user32.NewProc("SendMessageTimeoutW")
)

// broadcastEnvironmentChange tells other top-level windows the persistent
// environment changed, so new shells pick up the updated path.
func broadcastEnvironmentChange() {
	const (
		hwndBroadcast   = 0xFFFF
		wmSettingChange = 0x001A
		smtoAbortIfHung = 0x0002
	)
	env, _ := syscall.UTF16PtrFromString("Environment")
	ret, _, callErr := sendMessageTimeoutW.Call(
		uintptr(hwndBroadcast),
		uintptr(wmSettingChange),
		0,
		uintptr(unsafe.Pointer(env)),
		uintptr(smtoAbortIfHung),
		uintptr(uint32(1000)),
		0)
	if ret == 0 {
		klog.Warningf("Failed to broadcast environment change: %v", callErr)
	}
}
