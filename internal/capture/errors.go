package capture

import (
	"errors"
	"fmt"
)

// ErrOverflow is returned by [Source.Read] when the device dropped input
// because it was not read fast enough. The buffer still holds valid samples.
var ErrOverflow = errors.New("capture: input overflowed")

// DeviceError reports a failure of the input device. Op names the step that
// failed: "initialize", "open", "start" or "read".
type DeviceError struct {
	Op  string
	Err error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("capture: %s input device: %v", e.Op, e.Err)
}

func (e *DeviceError) Unwrap() error { return e.Err }
