package disk

import "github.com/bethewind/bustubgo/src/common"

// Replacer tracks evictable (unpinned) frames and picks a victim among
// them. Pin/Unpin naming follows spec §4.1 exactly: Unpin makes a frame
// eligible for eviction, Pin removes it from consideration.
type Replacer interface {
	// Victim removes and returns the frame the policy picks for
	// eviction, or reports emptiness.
	Victim() (common.FrameID, bool)
	// Unpin marks a frame evictable; a no-op if already tracked.
	Unpin(common.FrameID)
	// Pin removes a frame from the evictable set; a no-op if absent.
	Pin(common.FrameID)
	// Size reports how many frames are currently tracked.
	Size() int
}
