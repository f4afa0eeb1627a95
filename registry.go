package zframe

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"syscall"
	"time"
)

const (
	RegistryFileName = "zframe_relays.json"
	DiscoveryTimeout = 5 * time.Second

	// RegistryPathEnv overrides the default registry file location.
	RegistryPathEnv = "ZFRAME_REGISTRY"
)

// ErrRelayNotFound is returned when discovery gives up on a relay name.
var ErrRelayNotFound = errors.New("zframe: relay not found")

// RelayInfo is one registry entry.
type RelayInfo struct {
	RelayEndpoints
	PID       int       `json:"pid"`
	StartTime time.Time `json:"start_time"`
}

// RelayRegistry records running relays in a JSON file so peers on the same
// host can find their endpoints by name.
type RelayRegistry struct {
	mu       sync.RWMutex
	relays   map[string]RelayInfo
	filePath string
}

// NewRelayRegistry opens the registry stored at path. A missing file is an
// empty registry.
func NewRelayRegistry(path string) (*RelayRegistry, error) {
	r := &RelayRegistry{
		relays:   make(map[string]RelayInfo),
		filePath: path,
	}
	if err := r.load(); err != nil {
		return nil, fmt.Errorf("failed to load relay registry %s: %w", path, err)
	}
	return r, nil
}

var (
	registrySingleton *RelayRegistry
	registryOnce      sync.Once
)

// defaultRegistry returns the process-wide registry instance
func defaultRegistry() *RelayRegistry {
	registryOnce.Do(func() {
		registrySingleton = &RelayRegistry{
			relays:   make(map[string]RelayInfo),
			filePath: RegistryPath(),
		}
		if err := registrySingleton.load(); err != nil {
			logger := Logger()
			logger.Warn().Err(err).Str("path", registrySingleton.filePath).Msg("ignoring unreadable relay registry")
		}
	})
	return registrySingleton
}

// RegistryPath returns the file used by the package-level registry
// functions.
func RegistryPath() string {
	if p := os.Getenv(RegistryPathEnv); p != "" {
		return p
	}
	return filepath.Join(os.TempDir(), RegistryFileName)
}

// Path returns the registry file.
func (r *RelayRegistry) Path() string {
	return r.filePath
}

func (r *RelayRegistry) load() error {
	data, err := os.ReadFile(r.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	relays := make(map[string]RelayInfo)
	if len(data) > 0 {
		if err := json.Unmarshal(data, &relays); err != nil {
			return err
		}
	}

	r.mu.Lock()
	r.relays = relays
	r.mu.Unlock()
	return nil
}

func (r *RelayRegistry) save() error {
	r.mu.RLock()
	data, err := json.MarshalIndent(r.relays, "", "  ")
	r.mu.RUnlock()
	if err != nil {
		return err
	}
	return os.WriteFile(r.filePath, data, 0644)
}

// Register records name as served by this process.
func (r *RelayRegistry) Register(name string, endpoints RelayEndpoints) error {
	if name == "" {
		return errors.New("zframe: relay name must not be empty")
	}
	// merge with entries written by other processes
	if err := r.load(); err != nil {
		return err
	}

	r.mu.Lock()
	r.relays[name] = RelayInfo{
		RelayEndpoints: endpoints,
		PID:            os.Getpid(),
		StartTime:      time.Now(),
	}
	r.mu.Unlock()

	return r.save()
}

// Unregister removes name.
func (r *RelayRegistry) Unregister(name string) error {
	if err := r.load(); err != nil {
		return err
	}

	r.mu.Lock()
	delete(r.relays, name)
	r.mu.Unlock()

	return r.save()
}

// Discover polls the registry until name appears with a live owner or the
// timeout expires. A zero timeout means DiscoveryTimeout. Entries of dead
// processes are removed along the way.
func (r *RelayRegistry) Discover(name string, timeout time.Duration) (RelayEndpoints, error) {
	if timeout == 0 {
		timeout = DiscoveryTimeout
	}
	deadline := time.Now().Add(timeout)

	for {
		if err := r.load(); err == nil {
			r.mu.RLock()
			info, exists := r.relays[name]
			r.mu.RUnlock()

			if exists {
				if isProcessAlive(info.PID) {
					return info.RelayEndpoints, nil
				}
				_ = r.Unregister(name)
			}
		}

		if !time.Now().Before(deadline) {
			return RelayEndpoints{}, fmt.Errorf("%w: %s", ErrRelayNotFound, name)
		}
		time.Sleep(100 * time.Millisecond)
	}
}

// List returns a copy of every entry.
func (r *RelayRegistry) List() (map[string]RelayInfo, error) {
	if err := r.load(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make(map[string]RelayInfo, len(r.relays))
	for k, v := range r.relays {
		result[k] = v
	}
	return result, nil
}

// Names returns the registered names, sorted.
func (r *RelayRegistry) Names() ([]string, error) {
	relays, err := r.List()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(relays))
	for name := range relays {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Clear removes every entry.
func (r *RelayRegistry) Clear() error {
	r.mu.Lock()
	r.relays = make(map[string]RelayInfo)
	r.mu.Unlock()

	return r.save()
}

// isProcessAlive checks if a process with the given PID is running
func isProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	if pid == os.Getpid() {
		return true
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// signal 0 only checks for existence
	return proc.Signal(syscall.Signal(0)) == nil
}

// RegisterRelay records a relay in the process-wide registry.
func RegisterRelay(name string, endpoints RelayEndpoints) error {
	return defaultRegistry().Register(name, endpoints)
}

// UnregisterRelay removes a relay from the process-wide registry.
func UnregisterRelay(name string) error {
	return defaultRegistry().Unregister(name)
}

// DiscoverRelay looks a relay up in the process-wide registry.
func DiscoverRelay(name string, timeout time.Duration) (RelayEndpoints, error) {
	return defaultRegistry().Discover(name, timeout)
}

// ListRelays returns every entry of the process-wide registry.
func ListRelays() (map[string]RelayInfo, error) {
	return defaultRegistry().List()
}

// ClearRelayRegistry empties the process-wide registry.
func ClearRelayRegistry() error {
	return defaultRegistry().Clear()
}
