package common

import "fmt"

// RID is a row identifier: the page holding a tuple, and its slot within
// that page.
type RID struct {
	PageID  PageID
	SlotNum int
}

func (rid RID) String() string {
	return fmt.Sprintf("[page %d, slot %d]", rid.PageID, rid.SlotNum)
}
