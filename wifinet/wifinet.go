// Package wifinet manages the host's Wi-Fi interface through NetworkManager,
// with an iwlist fallback for systems without nmcli.
package wifinet

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/c360/biostream/errors"
)

// Network is one visible Wi-Fi network.
type Network struct {
	SSID      string `json:"ssid"`
	Signal    int    `json:"signal"`
	Security  string `json:"security"`
	Frequency string `json:"frequency"`
}

// Status is the state of the managed interface.
type Status struct {
	Connected bool   `json:"connected"`
	SSID      string `json:"ssid,omitempty"`
	IP        string `json:"ip,omitempty"`
	Signal    int    `json:"signal,omitempty"`
}

// SavedNetwork is a known network. The password never leaves the manager.
type SavedNetwork struct {
	SSID          string    `json:"ssid"`
	Password      string    `json:"password,omitempty"`
	LastConnected time.Time `json:"lastConnected"`
}

// SavedNetworkInfo is the password-free view handed to API callers.
type SavedNetworkInfo struct {
	SSID          string    `json:"ssid"`
	LastConnected time.Time `json:"lastConnected"`
}

// Runner executes a system command and returns its combined output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (string, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	runCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	out, err := exec.CommandContext(runCtx, name, args...).CombinedOutput()
	if err != nil {
		return "", errors.WrapTransient(err, "wifinet", "Run", "execute "+name)
	}
	return strings.TrimSpace(string(out)), nil
}

// Manager drives the Wi-Fi interface and keeps the saved-network list.
// Scans are rate limited so a polling frontend cannot hammer the radio.
type Manager struct {
	runner    Runner
	iface     string
	stateFile string
	limiter   *rate.Limiter
	logger    *slog.Logger

	mu     sync.Mutex
	saved  []SavedNetwork
	status Status
}

// Option configures a Manager.
type Option func(*Manager)

// WithRunner replaces the command runner.
func WithRunner(r Runner) Option {
	return func(m *Manager) { m.runner = r }
}

// WithInterface sets the wireless interface name.
func WithInterface(iface string) Option {
	return func(m *Manager) { m.iface = iface }
}

// NewManager creates a manager persisting saved networks under stateDir.
func NewManager(stateDir string, logger *slog.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		runner:    execRunner{},
		iface:     "wlan0",
		stateFile: filepath.Join(stateDir, "wifi_networks.json"),
		// One scan per 10 seconds with a burst of one.
		limiter: rate.NewLimiter(rate.Every(10*time.Second), 1),
		logger:  logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.loadSaved()
	return m
}

// Scan lists visible networks. Scans within the rate window return an error
// instead of touching the radio again.
func (m *Manager) Scan(ctx context.Context) ([]Network, error) {
	if !m.limiter.Allow() {
		return nil, errors.WrapTransient(
			errors.ErrScanThrottled, "Manager", "Scan", "rate limit scan")
	}

	out, err := m.runner.Run(ctx, "nmcli", "-t", "-f", "SSID,SIGNAL,SECURITY", "device", "wifi", "list")
	if err == nil {
		return parseNmcliScan(out), nil
	}
	m.logger.Debug("nmcli scan failed, falling back to iwlist", "error", err)

	out, err = m.runner.Run(ctx, "iwlist", m.iface, "scan")
	if err != nil {
		return nil, errors.WrapTransient(err, "Manager", "Scan", "scan networks")
	}
	return parseIwlistScan(out), nil
}

// Connect joins a network and records it in the saved list on success.
func (m *Manager) Connect(ctx context.Context, ssid, password string) (Status, error) {
	if ssid == "" {
		return Status{}, errors.WrapInvalid(errors.ErrMissingField, "Manager", "Connect", "validate ssid")
	}

	args := []string{"device", "wifi", "connect", ssid}
	if password != "" {
		args = append(args, "password", password)
	}
	if _, err := m.runner.Run(ctx, "nmcli", args...); err != nil {
		return Status{}, errors.WrapTransient(err, "Manager", "Connect", "connect "+ssid)
	}

	m.saveNetwork(ssid, password)
	return m.RefreshStatus(ctx), nil
}

// Disconnect drops the current connection.
func (m *Manager) Disconnect(ctx context.Context) error {
	if _, err := m.runner.Run(ctx, "nmcli", "device", "disconnect", m.iface); err != nil {
		return errors.WrapTransient(err, "Manager", "Disconnect", "disconnect "+m.iface)
	}

	m.mu.Lock()
	m.status = Status{}
	m.mu.Unlock()
	return nil
}

// Status returns the last observed interface state.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// RefreshStatus queries the interface and updates the cached state. Query
// failures keep the previous state.
func (m *Manager) RefreshStatus(ctx context.Context) Status {
	out, err := m.runner.Run(ctx, "nmcli", "-t", "-f",
		"GENERAL.STATE,GENERAL.CONNECTION,IP4.ADDRESS", "device", "show", m.iface)
	if err != nil {
		m.logger.Debug("wifi status query failed", "error", err)
		return m.Status()
	}

	status := parseNmcliStatus(out)

	m.mu.Lock()
	m.status = status
	m.mu.Unlock()
	return status
}

// SavedNetworks returns the known networks without their passwords.
func (m *Manager) SavedNetworks() []SavedNetworkInfo {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]SavedNetworkInfo, 0, len(m.saved))
	for _, n := range m.saved {
		out = append(out, SavedNetworkInfo{SSID: n.SSID, LastConnected: n.LastConnected})
	}
	return out
}

// SaveCurrent records the currently connected network without a password.
func (m *Manager) SaveCurrent() error {
	m.mu.Lock()
	status := m.status
	m.mu.Unlock()

	if !status.Connected || status.SSID == "" {
		return errors.WrapInvalid(errors.ErrNotFound, "Manager", "SaveCurrent", "no connected network")
	}

	m.saveNetwork(status.SSID, "")
	return nil
}

// Forget removes a saved network and deletes its system profile. A missing
// system profile is not an error; a network that was never saved is.
func (m *Manager) Forget(ctx context.Context, ssid string) error {
	m.mu.Lock()
	idx := -1
	for i, n := range m.saved {
		if n.SSID == ssid {
			idx = i
			break
		}
	}
	if idx < 0 {
		m.mu.Unlock()
		return errors.WrapInvalid(errors.ErrNotFound, "Manager", "Forget", "find network "+ssid)
	}
	m.saved = append(m.saved[:idx], m.saved[idx+1:]...)
	m.persistSaved()
	m.mu.Unlock()

	if _, err := m.runner.Run(ctx, "nmcli", "connection", "delete", ssid); err != nil {
		m.logger.Debug("system profile not deleted", "ssid", ssid, "error", err)
	}
	return nil
}

func (m *Manager) saveNetwork(ssid, password string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry := SavedNetwork{SSID: ssid, Password: password, LastConnected: time.Now().UTC()}
	for i, n := range m.saved {
		if n.SSID == ssid {
			if password == "" {
				entry.Password = n.Password
			}
			m.saved[i] = entry
			m.persistSaved()
			return
		}
	}
	m.saved = append(m.saved, entry)
	m.persistSaved()
}

func (m *Manager) loadSaved() {
	data, err := os.ReadFile(m.stateFile)
	if err != nil {
		return
	}
	if err := json.Unmarshal(data, &m.saved); err != nil {
		m.logger.Warn("saved network file unreadable, starting empty", "error", err)
		m.saved = nil
	}
}

// persistSaved writes the saved list. Callers hold m.mu.
func (m *Manager) persistSaved() {
	data, err := json.MarshalIndent(m.saved, "", "  ")
	if err != nil {
		m.logger.Error("saved networks not persisted", "error", err)
		return
	}
	if err := os.WriteFile(m.stateFile, data, 0o600); err != nil {
		m.logger.Error("saved networks not persisted", "error", err)
	}
}
