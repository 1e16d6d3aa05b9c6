package frame

import "time"

// Stats counts what a Renderer has done since it was created.
type Stats struct {
	// Frames is the number of frames submitted and handed to presentation.
	Frames int
	// Skipped is the number of draw requests that ended without a submission.
	Skipped int
	// Recreations is the number of swap chain rebuilds after the first.
	Recreations int

	// LastFrame is the CPU time of the most recent submitted frame.
	LastFrame time.Duration
	// FrameTime is the summed CPU time of every submitted frame.
	FrameTime time.Duration
}

// MeanFrameTime returns the average CPU time per submitted frame.
func (s Stats) MeanFrameTime() time.Duration {
	if s.Frames == 0 {
		return 0
	}
	return s.FrameTime / time.Duration(s.Frames)
}

func (s *Stats) frame(elapsed time.Duration) {
	s.Frames++
	s.LastFrame = elapsed
	s.FrameTime += elapsed
}
