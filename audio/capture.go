package audio

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"
)

const framesPerBuffer = 1024

// ListInputDevices reports the available audio input devices.
func ListInputDevices() ([]portaudio.DeviceInfo, error) {
	err := portaudio.Initialize()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	defer portaudio.Terminate()

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to get devices: %w", err)
	}

	// Filter to only input devices
	inputDevices := make([]portaudio.DeviceInfo, 0)
	for _, device := range devices {
		if device.MaxInputChannels > 0 {
			inputDevices = append(inputDevices, *device)
		}
	}

	return inputDevices, nil
}

// Record captures microphone input for the given duration and writes it to
// path as a mono 16-bit WAV, ready to be attached to a message. deviceID 0
// selects the default input device.
func Record(ctx context.Context, path string, duration time.Duration, deviceID int) error {
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	defer portaudio.Terminate()

	inputParams, err := inputStreamParameters(deviceID)
	if err != nil {
		return err
	}

	var mu sync.Mutex
	captured := make([]int16, 0, int(duration.Seconds()*SampleRate))

	stream, err := portaudio.OpenStream(inputParams, func(in []int16) {
		mu.Lock()
		captured = append(captured, in...)
		mu.Unlock()
	})
	if err != nil {
		return fmt.Errorf("failed to open audio stream: %w", err)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return fmt.Errorf("failed to start audio stream: %w", err)
	}

	select {
	case <-ctx.Done():
	case <-time.After(duration):
	}

	if err := stream.Stop(); err != nil {
		slog.Error("Failed to stop audio stream", "error", err)
	}

	mu.Lock()
	samples := captured
	mu.Unlock()

	return writeWavFile(path, samples)
}

func inputStreamParameters(deviceID int) (portaudio.StreamParameters, error) {
	var device *portaudio.DeviceInfo

	if deviceID > 0 { // Only use specific device if explicitly requested (non-zero)
		devices, err := portaudio.Devices()
		if err != nil {
			return portaudio.StreamParameters{}, fmt.Errorf("failed to get audio devices: %w", err)
		}
		if deviceID >= len(devices) {
			return portaudio.StreamParameters{}, fmt.Errorf("invalid device ID %d", deviceID)
		}
		device = devices[deviceID]
		if device.MaxInputChannels == 0 {
			return portaudio.StreamParameters{}, fmt.Errorf("device %d (%s) is not an input device", deviceID, device.Name)
		}
	} else {
		var err error
		device, err = portaudio.DefaultInputDevice()
		if err != nil {
			return portaudio.StreamParameters{}, fmt.Errorf("failed to get default input device: %w", err)
		}
	}

	slog.Info("Using audio device",
		"deviceName", device.Name,
		"sampleRate", device.DefaultSampleRate,
		"inputChannels", device.MaxInputChannels)

	return portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   device,
			Channels: Channels,
			Latency:  device.DefaultLowInputLatency,
		},
		SampleRate:      SampleRate,
		FramesPerBuffer: framesPerBuffer,
	}, nil
}

func writeWavFile(path string, samples []int16) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create WAV file: %w", err)
	}
	defer file.Close()

	dataSize := uint32(len(samples) * 2) // 2 bytes per sample
	if err := WriteWavHeader(file, dataSize); err != nil {
		return fmt.Errorf("failed to write WAV header: %w", err)
	}

	data := make([]byte, len(samples)*2)
	for i, sample := range samples {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(sample))
	}
	if _, err := file.Write(data); err != nil {
		return fmt.Errorf("failed to write WAV data: %w", err)
	}

	return nil
}
