package table

import (
	"encoding/binary"

	"github.com/bethewind/bustubgo/src/common"
)

// TablePage is a byte-accessor view over a borrowed page buffer, the
// same style node_header.go uses for B+-Tree pages: fixed-offset
// encoding/binary reads and writes rather than overlaying a Go struct
// on top of the raw bytes via unsafe.Pointer.
//
// Layout: page_id i32, page_size i32, num_records i32, followed by a
// slot array (one 4-byte offset per record, growing forward from the
// header) with record bytes packed back-to-front from the end of the
// page.
type TablePage struct {
	data []byte
}

type RecordSlot struct {
	offset int32
}

const (
	tpPageIDOffset     = 0
	tpPageSizeOffset   = 4
	tpNumRecordsOffset = 8
	tpSlotsOffset      = 12

	RecordSlotSize = 4
)

func createTablePage(data []byte) *TablePage {
	return &TablePage{data: data}
}

func (tp *TablePage) init(pageID common.PageID, pageSize int32) {
	tp.setPageID(pageID)
	tp.setPageSize(pageSize)
	tp.setNumRecords(0)
}

func (tp *TablePage) pageID() common.PageID {
	return common.PageID(int32(binary.LittleEndian.Uint32(tp.data[tpPageIDOffset:])))
}

func (tp *TablePage) setPageID(pid common.PageID) {
	binary.LittleEndian.PutUint32(tp.data[tpPageIDOffset:], uint32(int32(pid)))
}

func (tp *TablePage) pageSize() int32 {
	return int32(binary.LittleEndian.Uint32(tp.data[tpPageSizeOffset:]))
}

func (tp *TablePage) setPageSize(size int32) {
	binary.LittleEndian.PutUint32(tp.data[tpPageSizeOffset:], uint32(size))
}

func (tp *TablePage) numRecords() int32 {
	return int32(binary.LittleEndian.Uint32(tp.data[tpNumRecordsOffset:]))
}

func (tp *TablePage) setNumRecords(n int32) {
	binary.LittleEndian.PutUint32(tp.data[tpNumRecordsOffset:], uint32(n))
}

func (tp *TablePage) slotFieldOffset(i int) int {
	return tpSlotsOffset + i*RecordSlotSize
}

func (tp *TablePage) getRecordOffset(i int) int32 {
	return int32(binary.LittleEndian.Uint32(tp.data[tp.slotFieldOffset(i):]))
}

func (tp *TablePage) setRecordOffsetField(i int, offset int32) {
	binary.LittleEndian.PutUint32(tp.data[tp.slotFieldOffset(i):], uint32(offset))
}

func (tp *TablePage) getRecordSlot(i int) RecordSlot {
	return RecordSlot{offset: tp.getRecordOffset(i)}
}

func (tp *TablePage) setRecordSlot(i int, slot RecordSlot) {
	tp.setRecordOffsetField(i, slot.offset)
}

func (tp *TablePage) getRecordSize(i int) int32 {
	offset := tp.getRecordOffset(i)
	endOffset := tp.pageSize()
	if i > 0 {
		endOffset = tp.getRecordOffset(i - 1)
	}
	return endOffset - offset
}

func (tp *TablePage) pushRecordSlot(slot RecordSlot) {
	tp.setNumRecords(tp.numRecords() + 1)
	tp.setRecordSlot(int(tp.numRecords())-1, slot)
}

func (tp *TablePage) getRecordStartOffset() int32 {
	startOffset := tp.pageSize()
	if tp.numRecords() >= 1 {
		startOffset = tp.getRecordOffset(int(tp.numRecords()) - 1)
	}
	return startOffset
}

func (tp *TablePage) getFreeSpace() int32 {
	fixedHeaderSize := int32(tpSlotsOffset)
	slotListSize := int32(RecordSlotSize) * tp.numRecords()
	startOffset := tp.getRecordStartOffset()
	return startOffset - (fixedHeaderSize + slotListSize)
}

func (tp *TablePage) getFreeSpaceForInsert() int32 {
	return tp.getFreeSpace() - int32(RecordSlotSize)
}

func (tp *TablePage) getInsertIndex() int {
	prevRecordOffset := tp.pageSize()
	for i := 0; i < int(tp.numRecords()); i++ {
		offset := tp.getRecordOffset(i)
		if offset == prevRecordOffset {
			return i
		}
		prevRecordOffset = offset
	}
	return int(tp.numRecords())
}

// moveBackRecords shifts every record past startIndex to make room for
// size more bytes, returning the start offset of the freed space.
func (tp *TablePage) moveBackRecords(startIndex int, size int) int {
	if startIndex == int(tp.numRecords()) {
		return int(tp.getRecordStartOffset()) - size
	}
	copyStartOffset := tp.getRecordStartOffset()
	copyEndOffset := tp.getRecordOffset(startIndex)
	if copyStartOffset != copyEndOffset {
		copy(tp.data[int(copyStartOffset)-size:int(copyEndOffset)-size], tp.data[int(copyStartOffset):int(copyEndOffset)])
	}

	for i := startIndex + 1; i < int(tp.numRecords()); i++ {
		slot := tp.getRecordSlot(i)
		slot.offset -= int32(size)
		tp.setRecordSlot(i, slot)
	}
	return int(copyEndOffset) - size
}

func (tp *TablePage) Insert(record []byte) (common.RID, bool) {
	freeSpace := tp.getFreeSpace()
	if freeSpace < int32(RecordSlotSize+len(record)) {
		return common.RID{}, false
	}
	recordLen := len(record)

	// Try to find a slot that contains no data.
	index := tp.getInsertIndex()

	// Allocate space for the record.
	newRecordStartOffset := tp.moveBackRecords(index, recordLen)

	// Insert binary data.
	copy(tp.data[newRecordStartOffset:newRecordStartOffset+recordLen], record)

	// Update pointers.
	if index == int(tp.numRecords()) {
		tp.pushRecordSlot(RecordSlot{offset: int32(newRecordStartOffset)})
	} else {
		tp.setRecordSlot(index, RecordSlot{offset: int32(newRecordStartOffset)})
	}
	return common.RID{
		PageID:  tp.pageID(),
		SlotNum: index,
	}, true
}

func (tp *TablePage) Delete(rid common.RID) bool {
	if rid.SlotNum >= int(tp.numRecords()) {
		return false
	}
	size := tp.getRecordSize(rid.SlotNum)
	if size == 0 { // previously deleted
		return false
	}
	tp.moveBackRecords(rid.SlotNum, -int(size))

	// Update pointers
	slot := tp.getRecordSlot(rid.SlotNum)
	slot.offset += size
	tp.setRecordSlot(rid.SlotNum, slot)
	return true
}

func (tp *TablePage) getRecord(i int) []byte {
	offset := tp.getRecordOffset(i)
	endOffset := tp.pageSize()
	if i > 0 {
		endOffset = tp.getRecordOffset(i - 1)
	}
	return tp.data[offset:endOffset]
}

// isEmpty reports whether every slot on the page is a tombstone (zero
// size), including a page that never held a record at all -- the
// condition TableHeap.Delete uses to decide whether the page's entry
// should be dropped from the heap header rather than just updated.
func (tp *TablePage) isEmpty() bool {
	for i := 0; i < int(tp.numRecords()); i++ {
		if tp.getRecordSize(i) != 0 {
			return false
		}
	}
	return true
}

func (tp *TablePage) Get(rid common.RID) ([]byte, bool) {
	if rid.SlotNum >= int(tp.numRecords()) {
		return nil, false
	}
	data := tp.getRecord(rid.SlotNum)
	if len(data) == 0 {
		return nil, false
	}
	ret := make([]byte, len(data))
	copy(ret, data)
	return ret, true
}
