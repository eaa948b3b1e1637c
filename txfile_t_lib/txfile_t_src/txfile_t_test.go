// SPDX-License-Identifier: LGPL-2.1
// Copyright (C) 2021-2022 stu mark

package txfile_t_src

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInitRejectsBadDirectories(t *testing.T) {
	require.Nil(t, Txfile_init("", false))

	// a path that exists but is a regular file is not a directory
	var file_path = filepath.Join(t.TempDir(), "imafile")
	require.NoError(t, os.WriteFile(file_path, []byte("x"), 0644))
	require.Nil(t, Txfile_init(file_path, false))
}

func TestInitCreatesDirectoryAndReturnsSameHandle(t *testing.T) {
	var dir = filepath.Join(t.TempDir(), "newdir")
	var tx = Txfile_init(dir, false)
	require.NotNil(t, tx)

	var fi, err = os.Stat(dir)
	require.NoError(t, err)
	require.True(t, fi.IsDir())

	// one handle per path per process, the second init is the same object
	var again = Txfile_init(dir, true)
	require.True(t, tx == again)
}

func TestOpenFileArgumentChecks(t *testing.T) {
	var tx = Txfile_init(t.TempDir(), false)
	require.NotNil(t, tx)

	var ret, fl = tx.Open_file("", 100)
	require.NotNil(t, ret)
	require.Nil(t, fl)

	// a directory where the file should be is not a regular file
	require.NoError(t, os.Mkdir(filepath.Join(tx.Get_dirname(), "subdir"), 0755))
	ret, fl = tx.Open_file("subdir", 100)
	require.NotNil(t, ret)
	require.Nil(t, fl)
}

func TestOpenFileSizesTheFile(t *testing.T) {
	var tx = Txfile_init(t.TempDir(), false)

	// opening something that isn't there creates it and extends it to the declared length
	var ret, fl = tx.Open_file("test1.txt", 100)
	require.Nil(t, ret)
	require.NotNil(t, fl)

	var fi, err = os.Stat(filepath.Join(tx.Get_dirname(), "test1.txt"))
	require.NoError(t, err)
	require.Equal(t, int64(100), fi.Size())
	require.Nil(t, tx.Close_file(fl))

	// a declared length smaller than the file on disk is a refusal, we don't shrink data
	ret, fl = tx.Open_file("test1.txt", 50)
	require.NotNil(t, ret)
	require.Nil(t, fl)

	// a declared length equal to the size on disk is fine
	ret, fl = tx.Open_file("test1.txt", 100)
	require.Nil(t, ret)
	require.Nil(t, tx.Close_file(fl))
}

func TestDoubleOpenIsRejectedWhileLocked(t *testing.T) {
	var tx = Txfile_init(t.TempDir(), false)

	var ret, fl = tx.Open_file("test8.txt", 100)
	require.Nil(t, ret)

	/* the flock lives on the open file description, so a second open conflicts even
	from the same process, which is exactly the single-writer promise. */
	var ret2, fl2 = tx.Open_file("test8.txt", 100)
	require.NotNil(t, ret2)
	require.Nil(t, fl2)

	require.Nil(t, tx.Close_file(fl))

	// and once the holder closes, the file opens fine again
	ret, fl = tx.Open_file("test8.txt", 100)
	require.Nil(t, ret)
	require.Nil(t, tx.Close_file(fl))
}

func TestWriteReadBackInSession(t *testing.T) {
	var tx = Txfile_init(t.TempDir(), false)
	var ret, fl = tx.Open_file("test1.txt", 100)
	require.Nil(t, ret)

	var data = []byte("Hi, I'm the writer.\n")
	var wret, w = tx.Write_file(fl, 10, &data)
	require.Nil(t, wret)
	require.NotNil(t, w)
	require.Equal(t, uint64(10), w.Get_offset())
	require.Equal(t, uint64(len(data)), w.Get_length())

	// staged writes are visible to this process immediately, synced or not
	var rret, buffer = tx.Read_file(fl, 10, uint64(len(data)))
	require.Nil(t, rret)
	require.Equal(t, data, *buffer)

	require.Nil(t, tx.Close_file(fl))
}

func TestSyncedWriteSurvivesReopen(t *testing.T) {
	var tx = Txfile_init(t.TempDir(), false)
	var ret, fl = tx.Open_file("test1.txt", 100)
	require.Nil(t, ret)

	var data = []byte("Hi, I'm the writer.\n")
	var wret, w = tx.Write_file(fl, 10, &data)
	require.Nil(t, wret)
	require.Nil(t, w.Sync_write())
	require.Nil(t, tx.Close_file(fl))

	// what another process would see: open fresh, replay the log, read
	ret, fl = tx.Open_file("test1.txt", 100)
	require.Nil(t, ret)
	var rret, buffer = tx.Read_file(fl, 10, uint64(len(data)))
	require.Nil(t, rret)
	require.Equal(t, data, *buffer)
	require.Nil(t, tx.Close_file(fl))
}

func TestUnsyncedWriteVanishesOnClose(t *testing.T) {
	var tx = Txfile_init(t.TempDir(), false)
	var ret, fl = tx.Open_file("test2.txt", 100)
	require.Nil(t, ret)

	var data = []byte("never synced")
	var wret, _ = tx.Write_file(fl, 0, &data)
	require.Nil(t, wret)
	require.Nil(t, tx.Close_file(fl))

	ret, fl = tx.Open_file("test2.txt", 100)
	require.Nil(t, ret)
	var rret, buffer = tx.Read_file(fl, 0, uint64(len(data)))
	require.Nil(t, rret)
	require.Equal(t, make([]byte, len(data)), *buffer)
	require.Nil(t, tx.Close_file(fl))
}

func TestAbortRestoresPriorBytes(t *testing.T) {
	var tx = Txfile_init(t.TempDir(), false)
	var ret, fl = tx.Open_file("test3.txt", 100)
	require.Nil(t, ret)

	var data = []byte("Testing string.\n")
	var wret, w1 = tx.Write_file(fl, 0, &data)
	require.Nil(t, wret)
	require.Nil(t, w1.Sync_write())

	var w2 *Txfile_write
	wret, w2 = tx.Write_file(fl, 20, &data)
	require.Nil(t, wret)
	require.Nil(t, w2.Abort_write())

	// the synced write stands
	var rret, buffer = tx.Read_file(fl, 0, 16)
	require.Nil(t, rret)
	require.Equal(t, data, *buffer)

	// the aborted range is back to the zeroes that were there before the write
	rret, buffer = tx.Read_file(fl, 20, 16)
	require.Nil(t, rret)
	require.Equal(t, make([]byte, 16), *buffer)

	// aborting an already aborted write fails
	require.NotNil(t, w2.Abort_write())
	// and so does aborting a committed one
	require.NotNil(t, w1.Abort_write())

	require.Nil(t, tx.Close_file(fl))
}

func TestReadBoundaries(t *testing.T) {
	var tx = Txfile_init(t.TempDir(), false)
	var ret, fl = tx.Open_file("test4.txt", 10)
	require.Nil(t, ret)

	// reading at or past the end of the segment is an empty buffer, not an error
	var rret, buffer = tx.Read_file(fl, 10, 5)
	require.Nil(t, rret)
	require.NotNil(t, buffer)
	require.Equal(t, 0, len(*buffer))

	rret, buffer = tx.Read_file(fl, 500, 5)
	require.Nil(t, rret)
	require.Equal(t, 0, len(*buffer))

	// a read hanging off the end gets clamped to what's there
	rret, buffer = tx.Read_file(fl, 8, 100)
	require.Nil(t, rret)
	require.Equal(t, 2, len(*buffer))

	// a write past the declared length grows the segment and the gap reads as zeroes
	var data = []byte("Z")
	var wret, _ = tx.Write_file(fl, 20, &data)
	require.Nil(t, wret)
	rret, buffer = tx.Read_file(fl, 10, 11)
	require.Nil(t, rret)
	require.Equal(t, append(make([]byte, 10), 'Z'), *buffer)

	require.Nil(t, tx.Close_file(fl))
}

func TestOperationsOnClosedFileFail(t *testing.T) {
	var tx = Txfile_init(t.TempDir(), false)
	var ret, fl = tx.Open_file("test5.txt", 100)
	require.Nil(t, ret)

	var data = []byte("staged then orphaned")
	var wret, w = tx.Write_file(fl, 0, &data)
	require.Nil(t, wret)

	require.Nil(t, tx.Close_file(fl))

	// everything on a closed handle fails inertly, including a second close
	require.NotNil(t, tx.Close_file(fl))
	var rret, buffer = tx.Read_file(fl, 0, 10)
	require.NotNil(t, rret)
	require.Nil(t, buffer)
	wret, _ = tx.Write_file(fl, 0, &data)
	require.NotNil(t, wret)

	// the write handle outlived its manager, sync and abort have nowhere to go
	require.NotNil(t, w.Sync_write())
	require.NotNil(t, w.Abort_write())
}

func TestRemoveFile(t *testing.T) {
	var tx = Txfile_init(t.TempDir(), false)
	var ret, fl = tx.Open_file("test6.txt", 100)
	require.Nil(t, ret)

	var data = []byte("make a log exist")
	var wret, w = tx.Write_file(fl, 0, &data)
	require.Nil(t, wret)
	require.Nil(t, w.Sync_write())

	// removing an open file is refused and everything stays put
	require.NotNil(t, tx.Remove_file(fl))
	var file_path = filepath.Join(tx.Get_dirname(), "test6.txt")
	var _, err = os.Stat(file_path)
	require.NoError(t, err)
	_, err = os.Stat(file_path + ".log")
	require.NoError(t, err)

	require.Nil(t, tx.Close_file(fl))
	require.Nil(t, tx.Remove_file(fl))

	// data file and sidecar log are both gone
	_, err = os.Stat(file_path)
	require.True(t, os.IsNotExist(err))
	_, err = os.Stat(file_path + ".log")
	require.True(t, os.IsNotExist(err))
}

func TestRemoveFileWithoutLog(t *testing.T) {
	var tx = Txfile_init(t.TempDir(), false)
	var ret, fl = tx.Open_file("test7.txt", 100)
	require.Nil(t, ret)
	require.Nil(t, tx.Close_file(fl))

	// no log ever existed, its absence is not an error
	require.Nil(t, tx.Remove_file(fl))
}

func TestPartialSync(t *testing.T) {
	var tx = Txfile_init(t.TempDir(), false)
	var ret, fl = tx.Open_file("test9.txt", 100)
	require.Nil(t, ret)

	var data = []byte("01234567890123456789")
	var wret, w = tx.Write_file(fl, 0, &data)
	require.Nil(t, wret)

	// more bytes than the write has is a refusal
	require.NotNil(t, w.Sync_write_n_bytes(21))

	// the first ten bytes go durable, the rest stays memory-only
	require.Nil(t, w.Sync_write_n_bytes(10))

	// this session still reads the whole write back off the segment
	var rret, buffer = tx.Read_file(fl, 0, 20)
	require.Nil(t, rret)
	require.Equal(t, data, *buffer)

	require.Nil(t, tx.Close_file(fl))

	// a fresh open sees only the committed prefix, the tail reads as zeroes
	ret, fl = tx.Open_file("test9.txt", 100)
	require.Nil(t, ret)
	rret, buffer = tx.Read_file(fl, 0, 20)
	require.Nil(t, rret)
	require.Equal(t, append([]byte("0123456789"), make([]byte, 10)...), *buffer)
	require.Nil(t, tx.Close_file(fl))
}

func TestCleanFoldsLogsIntoFiles(t *testing.T) {
	var tx = Txfile_init(t.TempDir(), false)
	var ret, fl = tx.Open_file("test10.txt", 100)
	require.Nil(t, ret)

	var first = []byte("Testing string.\n")
	var wret, w = tx.Write_file(fl, 0, &first)
	require.Nil(t, wret)
	require.Nil(t, w.Sync_write())
	var second = []byte("Testing string.\n")
	wret, w = tx.Write_file(fl, 20, &second)
	require.Nil(t, wret)
	require.Nil(t, w.Sync_write())

	require.Nil(t, tx.Close_file(fl))
	require.Nil(t, tx.Clean())

	// the log is gone and the data file has both writes folded in
	var file_path = filepath.Join(tx.Get_dirname(), "test10.txt")
	var _, err = os.Stat(file_path + ".log")
	require.True(t, os.IsNotExist(err))

	var contents []byte
	contents, err = os.ReadFile(file_path)
	require.NoError(t, err)
	require.Equal(t, int64(100), int64(len(contents)))
	require.Equal(t, first, contents[0:16])
	require.Equal(t, second, contents[20:36])

	// cleaning a directory with no logs left is a no-op success
	require.Nil(t, tx.Clean())

	// and the file still reads right through the engine afterwards
	ret, fl = tx.Open_file("test10.txt", 100)
	require.Nil(t, ret)
	var rret, buffer = tx.Read_file(fl, 0, 16)
	require.Nil(t, rret)
	require.Equal(t, first, *buffer)
	require.Nil(t, tx.Close_file(fl))
}

func TestCleanRefusesALockedFile(t *testing.T) {
	var tx = Txfile_init(t.TempDir(), false)
	var ret, fl = tx.Open_file("test11.txt", 100)
	require.Nil(t, ret)

	var data = []byte("committed but uncleanable")
	var wret, w = tx.Write_file(fl, 0, &data)
	require.Nil(t, wret)
	require.Nil(t, w.Sync_write())

	// the file is open and locked, the fold must not race it
	require.NotNil(t, tx.Clean())

	// the log is still intact, nothing was half done
	var _, err = os.Stat(filepath.Join(tx.Get_dirname(), "test11.txt.log"))
	require.NoError(t, err)

	require.Nil(t, tx.Close_file(fl))
	require.Nil(t, tx.Clean())
}

func TestCleanNBytesBudgetsEachLog(t *testing.T) {
	var tx = Txfile_init(t.TempDir(), false)
	var ret, fl = tx.Open_file("test12.txt", 100)
	require.Nil(t, ret)

	var first = []byte("AAAAAAAAAAAAAAAA") // 16 bytes
	var wret, w = tx.Write_file(fl, 0, &first)
	require.Nil(t, wret)
	require.Nil(t, w.Sync_write())
	var second = []byte("BBBBBBBBBBBBBBBB") // 16 more
	wret, w = tx.Write_file(fl, 16, &second)
	require.Nil(t, wret)
	require.Nil(t, w.Sync_write())
	require.Nil(t, tx.Close_file(fl))

	/* budget 24: the first record fits (16 <= 24), the second would put us at 32 so
	it gets dropped, and dropped means gone, the log is deleted with it. */
	require.Nil(t, tx.Clean_n_bytes(24))

	var file_path = filepath.Join(tx.Get_dirname(), "test12.txt")
	var _, err = os.Stat(file_path + ".log")
	require.True(t, os.IsNotExist(err))

	var contents []byte
	contents, err = os.ReadFile(file_path)
	require.NoError(t, err)
	require.Equal(t, first, contents[0:16])
	require.Equal(t, make([]byte, 16), contents[16:32])
}

func TestCleanNBytesExactBoundaryRetains(t *testing.T) {
	var tx = Txfile_init(t.TempDir(), false)
	var ret, fl = tx.Open_file("test13.txt", 64)
	require.Nil(t, ret)

	var first = []byte("AAAAAAAAAAAAAAAA")
	var wret, w = tx.Write_file(fl, 0, &first)
	require.Nil(t, wret)
	require.Nil(t, w.Sync_write())
	var second = []byte("BBBBBBBBBBBBBBBB")
	wret, w = tx.Write_file(fl, 16, &second)
	require.Nil(t, wret)
	require.Nil(t, w.Sync_write())
	require.Nil(t, tx.Close_file(fl))

	// 32 lands exactly on the second record's boundary, both make it
	require.Nil(t, tx.Clean_n_bytes(32))

	var contents, err = os.ReadFile(filepath.Join(tx.Get_dirname(), "test13.txt"))
	require.NoError(t, err)
	require.Equal(t, first, contents[0:16])
	require.Equal(t, second, contents[16:32])
}

func TestCleanNBytesBudgetBiggerThanLog(t *testing.T) {
	var tx = Txfile_init(t.TempDir(), false)
	var ret, fl = tx.Open_file("test14.txt", 64)
	require.Nil(t, ret)

	var data = []byte("tiny")
	var wret, w = tx.Write_file(fl, 0, &data)
	require.Nil(t, wret)
	require.Nil(t, w.Sync_write())
	require.Nil(t, tx.Close_file(fl))

	// leftover budget is just a diagnostic, the fold still happens and succeeds
	require.Nil(t, tx.Clean_n_bytes(1000))

	var contents, err = os.ReadFile(filepath.Join(tx.Get_dirname(), "test14.txt"))
	require.NoError(t, err)
	require.Equal(t, data, contents[0:4])
}

func TestCleanHandlesMultipleLogsIndependently(t *testing.T) {
	var tx = Txfile_init(t.TempDir(), false)

	for _, filename := range []string{"one.txt", "two.txt"} {
		var ret, fl = tx.Open_file(filename, 32)
		require.Nil(t, ret)
		var data = []byte("0123456789") // 10 bytes per log
		var wret, w = tx.Write_file(fl, 0, &data)
		require.Nil(t, wret)
		require.Nil(t, w.Sync_write())
		var more = []byte("0123456789")
		wret, w = tx.Write_file(fl, 10, &more)
		require.Nil(t, wret)
		require.Nil(t, w.Sync_write())
		require.Nil(t, tx.Close_file(fl))
	}

	/* the budget is per log, not pooled: 10 bytes buys the first record of EACH log,
	not just the first log's. */
	require.Nil(t, tx.Clean_n_bytes(10))

	for _, filename := range []string{"one.txt", "two.txt"} {
		var contents, err = os.ReadFile(filepath.Join(tx.Get_dirname(), filename))
		require.NoError(t, err)
		require.Equal(t, []byte("0123456789"), contents[0:10])
		require.Equal(t, make([]byte, 10), contents[10:20])
		_, err = os.Stat(filepath.Join(tx.Get_dirname(), filename+".log"))
		require.True(t, os.IsNotExist(err))
	}
}

func TestWholeLifecycleWithMmapIoPath(t *testing.T) {
	var dir = filepath.Join(t.TempDir(), "mmapdir")
	var log = test_logger()
	var tx = Txfile_init_with_io_path(dir, false, New_file_store_io_path_mmap(log))
	require.NotNil(t, tx)

	var ret, fl = tx.Open_file("test15.txt", 50)
	require.Nil(t, ret)

	var data = []byte("mapped in, synced out")
	var wret, w = tx.Write_file(fl, 5, &data)
	require.Nil(t, wret)
	require.Nil(t, w.Sync_write())
	require.Nil(t, tx.Close_file(fl))

	require.Nil(t, tx.Clean())

	ret, fl = tx.Open_file("test15.txt", 50)
	require.Nil(t, ret)
	var rret, buffer = tx.Read_file(fl, 5, uint64(len(data)))
	require.Nil(t, rret)
	require.Equal(t, data, *buffer)
	require.Nil(t, tx.Close_file(fl))
}
