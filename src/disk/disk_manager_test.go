package disk

import (
	"os"
	"testing"

	"github.com/ncw/directio"
	"github.com/stretchr/testify/require"

	"github.com/bethewind/bustubgo/src/common"
)

func TestDiskManager_AllocateReadWrite(t *testing.T) {
	fn := "tmp-disk-manager-test"
	defer os.Remove(fn)

	dm, err := NewDiskManager(fn)
	require.NoError(t, err)
	defer dm.Close()

	p1, err := dm.AllocatePage()
	require.NoError(t, err)
	require.Equal(t, common.PageID(1), p1)

	p2, err := dm.AllocatePage()
	require.NoError(t, err)
	require.Equal(t, common.PageID(2), p2)

	data := directio.AlignedBlock(PageSize)
	for i := range data {
		data[i] = byte(i % 251)
	}
	require.NoError(t, dm.WritePage(p1, data))

	buf := directio.AlignedBlock(PageSize)
	require.NoError(t, dm.ReadPage(p1, buf))
	require.Equal(t, data, buf)
}

func TestDiskManager_DeallocateReusesID(t *testing.T) {
	fn := "tmp-disk-manager-test-2"
	defer os.Remove(fn)

	dm, err := NewDiskManager(fn)
	require.NoError(t, err)
	defer dm.Close()

	p1, _ := dm.AllocatePage()
	_, _ = dm.AllocatePage()
	require.NoError(t, dm.DeallocatePage(p1))

	p3, err := dm.AllocatePage()
	require.NoError(t, err)
	require.Equal(t, p1, p3)
}

func TestDiskManager_PersistsAcrossReopen(t *testing.T) {
	fn := "tmp-disk-manager-test-3"
	defer os.Remove(fn)

	dm, err := NewDiskManager(fn)
	require.NoError(t, err)
	p1, err := dm.AllocatePage()
	require.NoError(t, err)

	data := directio.AlignedBlock(PageSize)
	data[0] = 0xAB
	require.NoError(t, dm.WritePage(p1, data))
	require.NoError(t, dm.Close())

	dm2, err := NewDiskManager(fn)
	require.NoError(t, err)
	defer dm2.Close()

	buf := directio.AlignedBlock(PageSize)
	require.NoError(t, dm2.ReadPage(p1, buf))
	require.Equal(t, byte(0xAB), buf[0])

	p2, err := dm2.AllocatePage()
	require.NoError(t, err)
	require.Equal(t, common.PageID(2), p2)
}
