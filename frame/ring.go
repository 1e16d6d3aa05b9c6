package frame

import "github.com/cockroachdb/errors"

// Ring maps a fixed number of frames in flight to their synchronization slots and tracks
// which in-flight fence last claimed each swap chain image.
//
// The slot count never changes. The image map follows the swap chain: it is replaced with an
// all-empty map of the new length every time the swap chain is rebuilt, since fences recorded
// against a destroyed generation must never be waited on again.
type Ring struct {
	slots          []Slot
	current        int
	imagesInFlight []Fence
}

// NewRing creates framesInFlight slots on device and an empty image map of imageCount entries.
func NewRing(device Device, framesInFlight, imageCount int) (*Ring, error) {
	if framesInFlight < 1 {
		return nil, errors.Newf("frames in flight must be at least 1, got %d", framesInFlight)
	}

	r := &Ring{
		slots: make([]Slot, 0, framesInFlight),
	}
	for i := 0; i < framesInFlight; i++ {
		slot, err := newSlot(device)
		if err != nil {
			r.Destroy()
			return nil, errors.Wrapf(err, "frame slot %d", i)
		}
		r.slots = append(r.slots, slot)
	}
	r.ResetImages(imageCount)

	return r, nil
}

// Len returns the number of frames in flight.
func (r *Ring) Len() int {
	return len(r.slots)
}

// CurrentSlot returns the index of the active slot.
func (r *Ring) CurrentSlot() int {
	return r.current
}

// Current returns the active slot.
func (r *Ring) Current() *Slot {
	return &r.slots[r.current]
}

// Advance moves to the next slot. It is called exactly once for every frame that was
// submitted.
func (r *Ring) Advance() {
	r.current = (r.current + 1) % len(r.slots)
}

// Owner returns the fence that last claimed imageIndex, or nil.
func (r *Ring) Owner(imageIndex int) Fence {
	return r.imagesInFlight[imageIndex]
}

// Claim records that fence now owns imageIndex. The previous owner must already have
// been waited on.
func (r *Ring) Claim(imageIndex int, fence Fence) {
	r.imagesInFlight[imageIndex] = fence
}

// ImageCount returns the length of the image map.
func (r *Ring) ImageCount() int {
	return len(r.imagesInFlight)
}

// ResetImages discards every claim and sizes the image map for imageCount images.
func (r *Ring) ResetImages(imageCount int) {
	r.imagesInFlight = make([]Fence, imageCount)
}

// Destroy destroys every slot's semaphores and fence. The caller must make sure the device
// is idle.
func (r *Ring) Destroy() {
	for i := len(r.slots) - 1; i >= 0; i-- {
		r.slots[i].destroy()
	}
	r.slots = nil
	r.imagesInFlight = nil
}
