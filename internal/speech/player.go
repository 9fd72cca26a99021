package speech

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"

	"koihealth/internal/logger"
)

// Player handles audio playback of WAV/PCM data via oto.
type Player struct {
	ctx *oto.Context
	log *logger.Logger

	mu     sync.Mutex
	active *oto.Player
	paused bool
}

// NewPlayer creates an audio player. Initializes the system audio context.
// Returns an error if the audio device is unavailable.
func NewPlayer(log *logger.Logger) (*Player, error) {
	if log == nil {
		log = logger.Nop()
	}
	op := &oto.NewContextOptions{
		SampleRate:   SampleRate,
		ChannelCount: ChannelCount,
		Format:       oto.FormatSignedInt16LE,
	}

	ctx, readyChan, err := oto.NewContext(op)
	if err != nil {
		return nil, err
	}
	<-readyChan

	log.Debug("audio player initialized (rate=%d, channels=%d)", SampleRate, ChannelCount)
	return &Player{ctx: ctx, log: log}, nil
}

// Play plays WAV audio data. It blocks until playback finishes or ctx is
// done, in which case the audio is cut off and ctx.Err() is returned.
func (p *Player) Play(ctx context.Context, wavData []byte) error {
	pcm, err := extractPCM(wavData)
	if err != nil {
		return err
	}

	player := p.ctx.NewPlayer(bytes.NewReader(pcm))

	p.mu.Lock()
	p.active = player
	p.paused = false
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.active = nil
		p.paused = false
		p.mu.Unlock()
	}()

	player.Play()
	p.log.Debug("audio player: playing %d bytes of PCM", len(pcm))

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			player.Pause()
			_ = player.Close()
			p.log.Debug("audio player: interrupted")
			return ctx.Err()
		case <-ticker.C:
		}

		p.mu.Lock()
		paused := p.paused
		p.mu.Unlock()
		if !paused && !player.IsPlaying() {
			return player.Close()
		}
	}
}

// Pause holds the current audio, if any.
func (p *Player) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.active != nil && !p.paused {
		p.paused = true
		p.active.Pause()
	}
}

// Resume continues held audio.
func (p *Player) Resume() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.active != nil && p.paused {
		p.paused = false
		p.active.Play()
	}
}

// extractPCM strips the WAV/RIFF header and returns raw PCM data.
func extractPCM(wav []byte) ([]byte, error) {
	if len(wav) < 44 {
		return nil, errors.New("wav data too short")
	}
	if string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		return nil, errors.New("not a valid WAV file")
	}

	pos := 12
	for pos < len(wav)-8 {
		chunkID := string(wav[pos : pos+4])
		chunkSize := int(binary.LittleEndian.Uint32(wav[pos+4 : pos+8]))

		if chunkID == "data" {
			start := pos + 8
			end := start + chunkSize
			if end > len(wav) {
				end = len(wav)
			}
			return wav[start:end], nil
		}

		pos += 8 + chunkSize
		// Chunks are word-aligned.
		if chunkSize%2 != 0 {
			pos++
		}
	}

	return nil, errors.New("data chunk not found in WAV")
}
