package common

// PageID identifies a fixed-size page on disk. InvalidPageID denotes
// absence -- an unallocated slot, an empty tree, a root with no parent.
type PageID int32

// InvalidPageID is the sentinel value for "no page".
const InvalidPageID PageID = -1

// FrameID indexes a frame slot within the buffer pool, [0, pool_size).
type FrameID int32
