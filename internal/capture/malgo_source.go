// malgo_source.go implements MicrophoneSource on top of the malgo
// cross-platform audio library.
package capture

import (
	"runtime"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"

	"github.com/frozo/ambientscribe/internal/conf"
	"github.com/frozo/ambientscribe/internal/errors"
)

// MalgoConfig contains configuration for the malgo microphone source.
type MalgoConfig struct {
	DeviceName string // "default", device name or decoded ID substring
	SampleRate int
	Debug      bool
}

// MalgoSource captures audio from a soundcard device. malgo delivers data
// through a callback; Read bridges that push model to the engine's pull
// loop via an internal channel.
type MalgoSource struct {
	config MalgoConfig

	ctx    *malgo.AllocatedContext
	device *malgo.Device

	dataChan chan []byte
	pending  []byte

	mu      sync.Mutex
	running atomic.Bool
}

// NewMalgoSource creates a malgo-backed microphone source.
func NewMalgoSource(config MalgoConfig) *MalgoSource {
	if config.SampleRate == 0 {
		config.SampleRate = conf.SampleRate
	}
	return &MalgoSource{
		config:   config,
		dataChan: make(chan []byte, 32),
	}
}

// Start initializes the platform audio context, selects the configured
// device and begins capture.
func (s *MalgoSource) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running.Load() {
		return errors.Newf("source already running").
			Component("capture").
			Category(errors.CategoryState).
			Build()
	}

	s.resetStream()

	malgoCtx, err := malgo.InitContext([]malgo.Backend{platformBackend()}, malgo.ContextConfig{}, nil)
	if err != nil {
		return errors.New(err).
			Component("capture").
			Category(errors.CategoryAudioSource).
			Context("operation", "init_context").
			Context("backend", runtime.GOOS).
			Build()
	}
	s.ctx = malgoCtx

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = conf.NumChannels
	deviceConfig.SampleRate = uint32(s.config.SampleRate)
	deviceConfig.Alsa.NoMMap = 1

	deviceInfo, err := s.findDevice()
	if err != nil {
		_ = malgoCtx.Uninit()
		s.ctx = nil
		return err
	}
	if deviceInfo != nil {
		deviceConfig.Capture.DeviceID = deviceInfo.ID.Pointer()
	}

	callbacks := malgo.DeviceCallbacks{
		Data: s.onAudioData,
	}

	device, err := malgo.InitDevice(malgoCtx.Context, deviceConfig, callbacks)
	if err != nil {
		_ = malgoCtx.Uninit()
		s.ctx = nil
		return errors.New(err).
			Component("capture").
			Category(errors.CategoryAudioSource).
			Context("operation", "init_device").
			Context("device", s.config.DeviceName).
			Build()
	}
	s.device = device

	if err := device.Start(); err != nil {
		device.Uninit()
		_ = malgoCtx.Uninit()
		s.device = nil
		s.ctx = nil
		return errors.New(err).
			Component("capture").
			Category(errors.CategoryAudioSource).
			Context("operation", "start_device").
			Build()
	}

	s.running.Store(true)
	return nil
}

// Stop halts capture and releases the device. Safe to call multiple times.
func (s *MalgoSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running.Load() {
		return nil
	}
	s.running.Store(false)

	if s.device != nil {
		_ = s.device.Stop()
		s.device.Uninit()
		s.device = nil
	}
	if s.ctx != nil {
		_ = s.ctx.Uninit()
		s.ctx = nil
	}

	close(s.dataChan)
	return nil
}

// resetStream replaces the data channel a previous Stop left closed so the
// source can be restarted. Engine restarts are how pending chunk size
// proposals take effect, so a stopped source must come back usable.
func (s *MalgoSource) resetStream() {
	s.dataChan = make(chan []byte, 32)
	s.pending = nil
}

// Read blocks until captured audio is available and copies it into buf.
// Once the source is stopped, Read drains buffered audio and then returns
// io.EOF.
func (s *MalgoSource) Read(buf []byte) (int, error) {
	if len(s.pending) == 0 {
		chunk, ok := <-s.dataChan
		if !ok {
			return 0, errStopped
		}
		s.pending = chunk
	}

	n := copy(buf, s.pending)
	s.pending = s.pending[n:]
	return n, nil
}

// Format reports the achieved capture format.
func (s *MalgoSource) Format() SourceFormat {
	return SourceFormat{
		SampleRate:     s.config.SampleRate,
		Channels:       conf.NumChannels,
		BitDepth:       conf.BitDepth,
		BytesPerSample: conf.BytesPerSample,
	}
}

// onAudioData is called by malgo on its capture thread. The copy is
// unavoidable since malgo reuses the sample buffer.
func (s *MalgoSource) onAudioData(pOutput, pSamples []byte, framecount uint32) {
	if !s.running.Load() {
		return
	}

	chunk := make([]byte, len(pSamples))
	copy(chunk, pSamples)

	select {
	case s.dataChan <- chunk:
	default:
		// The engine is not keeping up; dropping here is preferable to
		// stalling the platform audio thread.
	}
}

// findDevice selects the capture device matching the configured name, or
// nil for the system default.
func (s *MalgoSource) findDevice() (*malgo.DeviceInfo, error) {
	if s.config.DeviceName == "" || s.config.DeviceName == "default" {
		return nil, nil
	}

	infos, err := s.ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, errors.New(err).
			Component("capture").
			Category(errors.CategoryAudioSource).
			Context("operation", "enumerate_devices").
			Build()
	}

	for i := range infos {
		if matchesDevice(&infos[i], s.config.DeviceName) {
			return &infos[i], nil
		}
	}

	return nil, errors.Newf("no capture device matches %q", s.config.DeviceName).
		Component("capture").
		Category(errors.CategoryAudioSource).
		Build()
}

// matchesDevice checks if the device matches the configured name or ID.
func matchesDevice(info *malgo.DeviceInfo, name string) bool {
	return strings.Contains(info.Name(), name) || strings.Contains(info.ID.String(), name)
}

// platformBackend returns the preferred malgo backend for this OS.
func platformBackend() malgo.Backend {
	switch runtime.GOOS {
	case "linux":
		return malgo.BackendAlsa
	case "windows":
		return malgo.BackendWasapi
	case "darwin":
		return malgo.BackendCoreaudio
	default:
		return malgo.BackendNull
	}
}

// DeviceInfo describes an available capture device.
type DeviceInfo struct {
	Index     int
	Name      string
	ID        string
	IsDefault bool
}

// ListCaptureDevices enumerates the capture devices available on this host.
func ListCaptureDevices() ([]DeviceInfo, error) {
	ctx, err := malgo.InitContext([]malgo.Backend{platformBackend()}, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, errors.New(err).
			Component("capture").
			Category(errors.CategoryAudioSource).
			Context("operation", "init_context").
			Build()
	}
	defer ctx.Uninit() //nolint:errcheck

	infos, err := ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, errors.New(err).
			Component("capture").
			Category(errors.CategoryAudioSource).
			Context("operation", "enumerate_devices").
			Build()
	}

	devices := make([]DeviceInfo, 0, len(infos))
	for i := range infos {
		devices = append(devices, DeviceInfo{
			Index:     i,
			Name:      infos[i].Name(),
			ID:        infos[i].ID.String(),
			IsDefault: infos[i].IsDefault == 1,
		})
	}
	return devices, nil
}
