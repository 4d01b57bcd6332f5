// Package device looks up and lists portaudio devices for the microphone and
// speaker streams.
//
// PortAudio reference-counts Initialize and Terminate, so every function that
// talks to the host API brackets its work with its own pair.
package device

import (
	"fmt"
	"strings"

	"github.com/gordonklaus/portaudio"
)

// Direction selects input or output devices.
type Direction int

const (
	// Input devices can record.
	Input Direction = iota

	// Output devices can play.
	Output
)

// String implements fmt.Stringer.
func (d Direction) String() string {
	if d == Output {
		return "output"
	}
	return "input"
}

// Info describes one audio device.
type Info struct {
	Index             int
	Name              string
	HostAPI           string
	MaxInputChannels  int
	MaxOutputChannels int
	DefaultSampleRate float64
	DefaultInput      bool
	DefaultOutput     bool
}

// List enumerates every device known to the host audio system.
func List() ([]Info, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("device: initialize: %w", err)
	}
	defer portaudio.Terminate()

	devs, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("device: list: %w", err)
	}
	defIn, _ := portaudio.DefaultInputDevice()
	defOut, _ := portaudio.DefaultOutputDevice()
	return describe(devs, defIn, defOut), nil
}

func describe(devs []*portaudio.DeviceInfo, defIn, defOut *portaudio.DeviceInfo) []Info {
	out := make([]Info, 0, len(devs))
	for i, d := range devs {
		info := Info{
			Index:             i,
			Name:              d.Name,
			MaxInputChannels:  d.MaxInputChannels,
			MaxOutputChannels: d.MaxOutputChannels,
			DefaultSampleRate: d.DefaultSampleRate,
			DefaultInput:      defIn != nil && d.Name == defIn.Name,
			DefaultOutput:     defOut != nil && d.Name == defOut.Name,
		}
		if d.HostApi != nil {
			info.HostAPI = d.HostApi.Name
		}
		out = append(out, info)
	}
	return out
}

// Find returns the device for dir whose name matches name. An empty name
// selects the host's default device. portaudio must be initialized.
func Find(name string, dir Direction) (*portaudio.DeviceInfo, error) {
	if name == "" {
		if dir == Output {
			return portaudio.DefaultOutputDevice()
		}
		return portaudio.DefaultInputDevice()
	}
	devs, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}
	return match(devs, name, dir)
}

// match prefers an exact (case-insensitive) name over a substring match and
// skips devices without channels in dir.
func match(devs []*portaudio.DeviceInfo, name string, dir Direction) (*portaudio.DeviceInfo, error) {
	want := strings.ToLower(name)
	var partial *portaudio.DeviceInfo
	for _, d := range devs {
		channels := d.MaxInputChannels
		if dir == Output {
			channels = d.MaxOutputChannels
		}
		if channels < 1 {
			continue
		}
		got := strings.ToLower(d.Name)
		if got == want {
			return d, nil
		}
		if partial == nil && strings.Contains(got, want) {
			partial = d
		}
	}
	if partial != nil {
		return partial, nil
	}
	return nil, fmt.Errorf("no %s device matches %q", dir, name)
}
