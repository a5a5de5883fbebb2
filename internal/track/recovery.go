package track

import (
	"github.com/kozaktomas/deface/internal/detect"
	"github.com/kozaktomas/deface/internal/geometry"
)

// recoveryThreshold is the minimum containment ratio a detection must have
// against the previous tracked region to be accepted as the re-acquired
// target.
const recoveryThreshold = 0.5

// Recover re-acquires a lost track from the current frame's face detections.
// It picks the detection with the highest containment ratio against the
// previous tracked region, provided it exceeds the recovery threshold. When
// several detections tie exactly, the first one in detector output order
// wins; the ambiguity between similarly plausible candidates is inherent and
// deliberately left without a smarter tie-break.
func Recover(lastBox geometry.Box, dets []detect.Detection) (detect.Detection, bool) {
	var best detect.Detection
	bestRatio := recoveryThreshold
	found := false

	for _, det := range dets {
		if ratio := det.Box.ContainmentRatio(lastBox); ratio > bestRatio {
			best = det
			bestRatio = ratio
			found = true
		}
	}
	return best, found
}
