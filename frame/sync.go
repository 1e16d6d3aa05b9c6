package frame

import "github.com/cockroachdb/errors"

// Slot is the synchronization set for one frame in flight.
// Its fence is created signaled so that the first wait on a fresh slot returns at once.
type Slot struct {
	ImageAvailable Semaphore
	RenderFinished Semaphore
	InFlight       Fence
}

func newSlot(device Device) (slot Slot, err error) {
	defer func() {
		if err != nil {
			slot.destroy()
		}
	}()

	slot.ImageAvailable, err = device.NewSemaphore()
	if err != nil {
		return slot, errors.Wrap(err, "creating image available semaphore")
	}

	slot.RenderFinished, err = device.NewSemaphore()
	if err != nil {
		return slot, errors.Wrap(err, "creating render finished semaphore")
	}

	slot.InFlight, err = device.NewFence(true)
	if err != nil {
		return slot, errors.Wrap(err, "creating in-flight fence")
	}

	return slot, nil
}

func (s *Slot) destroy() {
	if s.InFlight != nil {
		s.InFlight.Destroy()
		s.InFlight = nil
	}
	if s.RenderFinished != nil {
		s.RenderFinished.Destroy()
		s.RenderFinished = nil
	}
	if s.ImageAvailable != nil {
		s.ImageAvailable.Destroy()
		s.ImageAvailable = nil
	}
}
