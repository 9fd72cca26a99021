package audio

import (
	"context"

	"koihealth/internal/domain"
	"koihealth/internal/ports"
)

// Gate derives the microphone permission from the capture device. Desktop
// platforms offer no silent permission query, so Query always reports
// domain.ErrPermissionQueryUnsupported and callers fall back to Acquire.
type Gate struct {
	capture ports.AudioCapture
	cfg     ports.AudioConfig
}

func NewGate(capture ports.AudioCapture, cfg ports.AudioConfig) *Gate {
	return &Gate{capture: capture, cfg: cfg}
}

func (g *Gate) Query(_ context.Context) (domain.PermissionState, error) {
	return domain.PermissionUnknown, domain.ErrPermissionQueryUnsupported
}

// Acquire opens the microphone. The returned track must be stopped by the
// caller.
func (g *Gate) Acquire(ctx context.Context) (ports.DeviceTrack, error) {
	session, err := g.capture.Start(ctx, g.cfg)
	if err != nil {
		return nil, err
	}
	return session, nil
}
