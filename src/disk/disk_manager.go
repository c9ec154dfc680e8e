package disk

import (
	"io"
	"os"

	"github.com/ncw/directio"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/bethewind/bustubgo/src/common"
)

// DiskManager reads/writes fixed-size pages by id and allocates/deallocates
// page ids, backed by a single page-aligned file. Page 0 is reserved for
// its own free-page list (see freePageHeader); it is not the B+-Tree's
// root directory page.
type DiskManager struct {
	file       *os.File
	header     *freePageHeader
	headerData []byte
}

// NewDiskManager opens (or creates) fileName for page-aligned I/O via
// directio, the same as the teacher's disk manager.
func NewDiskManager(fileName string) (*DiskManager, error) {
	f, err := directio.OpenFile(fileName, os.O_CREATE|os.O_RDWR|os.O_SYNC, 0644)
	if err != nil {
		return nil, errors.Wrap(err, "open db file")
	}
	dm := &DiskManager{file: f}

	size, err := dm.fileSize()
	if err != nil {
		return nil, errors.Wrap(err, "stat db file")
	}
	if size == 0 {
		dm.headerData = directio.AlignedBlock(PageSize)
		dm.header = newFreePageHeader(dm.headerData)
		dm.header.init()
		if err := dm.writeHeaderPage(); err != nil {
			return nil, errors.Wrap(err, "write initial header page")
		}
	} else {
		dm.headerData, err = dm.readRaw(common.PageID(freePageHeaderPageID))
		if err != nil {
			return nil, errors.Wrap(err, "read header page")
		}
		dm.header = newFreePageHeader(dm.headerData)
	}
	return dm, nil
}

// Close releases the underlying file.
func (dm *DiskManager) Close() error {
	return dm.file.Close()
}

// AllocatePage hands out a free page id, preferring a previously
// deallocated one over growing the file.
func (dm *DiskManager) AllocatePage() (common.PageID, error) {
	var pageID int32
	if dm.header.hasFree() {
		pageID = dm.header.popFree()
	} else {
		pageID = dm.header.nextPageID()
		if err := dm.writeRaw(common.PageID(pageID), directio.AlignedBlock(PageSize)); err != nil {
			return common.InvalidPageID, errors.Wrapf(err, "allocate page %d", pageID)
		}
		dm.header.setNextPageID(pageID + 1)
	}
	if err := dm.writeHeaderPage(); err != nil {
		return common.InvalidPageID, errors.Wrap(err, "persist header page after allocate")
	}
	return common.PageID(pageID), nil
}

// DeallocatePage returns pageID to the free list for reuse.
func (dm *DiskManager) DeallocatePage(pageID common.PageID) error {
	dm.header.pushFree(int32(pageID))
	if err := dm.writeHeaderPage(); err != nil {
		return errors.Wrapf(err, "persist header page after deallocate %d", pageID)
	}
	return nil
}

// ReadPage reads pageID's bytes into buf, which must be PageSize long.
func (dm *DiskManager) ReadPage(pageID common.PageID, buf []byte) error {
	if pageID < 0 {
		return common.NewInvalidPageID("negative page id")
	}
	data, err := dm.readRaw(pageID)
	if err != nil {
		return err
	}
	copy(buf, data)
	return nil
}

// WritePage writes data (PageSize bytes) to pageID's slot.
func (dm *DiskManager) WritePage(pageID common.PageID, data []byte) error {
	if pageID < 0 {
		return common.NewInvalidPageID("negative page id")
	}
	return dm.writeRaw(pageID, data)
}

func (dm *DiskManager) fileSize() (int64, error) {
	st, err := dm.file.Stat()
	if err != nil {
		return 0, err
	}
	return st.Size(), nil
}

func (dm *DiskManager) readRaw(pageID common.PageID) ([]byte, error) {
	offset := int64(pageID) * PageSize
	size, err := dm.fileSize()
	if err != nil {
		return nil, err
	}
	if offset >= size {
		return nil, errors.Errorf("read past end of file at page %d", pageID)
	}
	if _, err := dm.file.Seek(offset, io.SeekStart); err != nil {
		return nil, err
	}
	data := directio.AlignedBlock(PageSize)
	n, err := dm.file.Read(data)
	if err != nil {
		return nil, err
	}
	if n < PageSize {
		log.Warnf("short read of page %d: got %d bytes", pageID, n)
		return nil, errors.Errorf("short read of page %d", pageID)
	}
	return data, nil
}

func (dm *DiskManager) writeRaw(pageID common.PageID, data []byte) error {
	offset := int64(pageID) * PageSize
	if _, err := dm.file.Seek(offset, io.SeekStart); err != nil {
		return err
	}
	if _, err := dm.file.Write(data); err != nil {
		return err
	}
	return nil
}

func (dm *DiskManager) writeHeaderPage() error {
	return dm.writeRaw(common.PageID(freePageHeaderPageID), dm.headerData)
}
