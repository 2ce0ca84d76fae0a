package soft

import (
	"github.com/gogpu/rtcore/backend"
)

func init() {
	backend.Register(backend.Soft, func() (backend.Device, error) {
		return New(), nil
	})
}

// Close implements backend.Device. Live resources are left to the
// garbage collector; LiveResources still reports them.
func (d *Device) Close() {}

var _ backend.Device = (*Device)(nil)
