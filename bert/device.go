package bert

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"yashubustudio/uptake/uptake"
)

// ErrCUDAUnavailable is returned when cuda is requested explicitly and the
// runtime cannot provide it.
var ErrCUDAUnavailable = errors.New("cuda execution provider unavailable")

var (
	envMu   sync.Mutex
	envRefs int
)

// acquireRuntime loads the shared library and initializes the ORT
// environment on first use. Every call must be paired with releaseRuntime.
func acquireRuntime(dll string) error {
	envMu.Lock()
	defer envMu.Unlock()
	if envRefs == 0 {
		if dll != "" {
			ort.SetSharedLibraryPath(dll)
		}
		if !ort.IsInitialized() {
			if err := ort.InitializeEnvironment(); err != nil {
				return fmt.Errorf("initialize onnxruntime: %w", err)
			}
		}
	}
	envRefs++
	return nil
}

func releaseRuntime() {
	envMu.Lock()
	defer envMu.Unlock()
	if envRefs == 0 {
		return
	}
	envRefs--
	if envRefs == 0 {
		_ = ort.DestroyEnvironment()
	}
}

// ParseDevice validates a device preference.
func ParseDevice(pref string) (string, error) {
	switch d := strings.ToLower(strings.TrimSpace(pref)); d {
	case "", uptake.DeviceAuto:
		return uptake.DeviceAuto, nil
	case uptake.DeviceCPU, uptake.DeviceCUDA:
		return d, nil
	default:
		return "", fmt.Errorf("unknown device %q (want auto, cpu or cuda)", pref)
	}
}

// sessionOptions builds options for the requested device. The returned
// device is the one actually configured.
func sessionOptions(device string) (*ort.SessionOptions, string, error) {
	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, "", fmt.Errorf("session options: %w", err)
	}
	if device == uptake.DeviceCPU {
		return opts, uptake.DeviceCPU, nil
	}
	if err := appendCUDA(opts); err != nil {
		if device == uptake.DeviceCUDA {
			opts.Destroy()
			return nil, "", fmt.Errorf("%w: %v", ErrCUDAUnavailable, err)
		}
		// A failed append may leave the options half configured.
		opts.Destroy()
		opts, err = ort.NewSessionOptions()
		if err != nil {
			return nil, "", fmt.Errorf("session options: %w", err)
		}
		return opts, uptake.DeviceCPU, nil
	}
	return opts, uptake.DeviceCUDA, nil
}

func appendCUDA(opts *ort.SessionOptions) error {
	cuda, err := ort.NewCUDAProviderOptions()
	if err != nil {
		return err
	}
	defer cuda.Destroy()
	if err := cuda.Update(map[string]string{"device_id": "0"}); err != nil {
		return err
	}
	return opts.AppendExecutionProviderCUDA(cuda)
}
