package voice

import (
	"context"
	"errors"
	"sync"

	"koihealth/internal/domain"
	"koihealth/internal/logger"
	"koihealth/internal/ports"
)

// permissionMachine tracks the microphone permission. It changes only through
// probe, request and demote.
type permissionMachine struct {
	gate ports.PermissionGate
	log  *logger.Logger

	mu    sync.Mutex
	state domain.PermissionState
}

func newPermissionMachine(gate ports.PermissionGate, log *logger.Logger) *permissionMachine {
	return &permissionMachine{gate: gate, log: log, state: domain.PermissionUnknown}
}

func (m *permissionMachine) State() domain.PermissionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *permissionMachine) set(state domain.PermissionState) domain.PermissionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = state
	return state
}

// probe reads the permission without prompting where the platform allows
// it. Without a query API it briefly acquires the microphone and releases it
// at once.
func (m *permissionMachine) probe(ctx context.Context) domain.PermissionState {
	state, err := m.gate.Query(ctx)
	if err == nil {
		return m.set(state)
	}
	if !errors.Is(err, domain.ErrPermissionQueryUnsupported) {
		m.log.Warn("voice: permission query failed: %v", err)
		return m.set(domain.PermissionUnknown)
	}

	track, err := m.gate.Acquire(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrPermissionDenied) {
			return m.set(domain.PermissionDenied)
		}
		m.log.Debug("voice: permission probe acquire failed: %v", err)
		return m.set(domain.PermissionPrompt)
	}
	releaseTrack(track, m.log)
	return m.set(domain.PermissionGranted)
}

// request asks for microphone access for real.
func (m *permissionMachine) request(ctx context.Context) (domain.PermissionState, error) {
	track, err := m.gate.Acquire(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrPermissionDenied) {
			return m.set(domain.PermissionDenied), err
		}
		return m.set(domain.PermissionUnknown), err
	}
	releaseTrack(track, m.log)
	return m.set(domain.PermissionGranted), nil
}

// demote records a revocation observed during capture.
func (m *permissionMachine) demote() {
	m.set(domain.PermissionDenied)
}

func releaseTrack(track ports.DeviceTrack, log *logger.Logger) {
	if track == nil {
		return
	}
	if err := track.Stop(); err != nil {
		log.Warn("voice: failed to release microphone track: %v", err)
	}
}
