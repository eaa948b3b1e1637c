// SPDX-License-Identifier: LGPL-2.1
// Copyright (C) 2021-2022 stu mark

package txfile_t_src

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

/* the directio path isn't exercised here on purpose, O_DIRECT depends on what
filesystem the test scratch directory lands on and tmpfs refuses it. */

func iopath_test_file(t *testing.T, contents []byte) string {
	t.Helper()
	var file_path = filepath.Join(t.TempDir(), "iopath.dat")
	require.NoError(t, os.WriteFile(file_path, contents, 0644))
	return file_path
}

func run_iopath_roundtrip(t *testing.T, iopath File_store_io_path) {
	t.Helper()
	var contents = []byte("the quick brown fox jumps over the lazy dog")
	var file_path = iopath_test_file(t, contents)

	var ret, fh = iopath.Open_file_rw(file_path)
	require.Nil(t, ret)
	defer fh.Close()

	var buffer *[]byte
	ret, buffer = iopath.Read_open_file(fh, uint64(len(contents)))
	require.Nil(t, ret)
	require.Equal(t, contents, *buffer)

	// a partial read only promises the prefix
	ret, buffer = iopath.Read_open_file(fh, 9)
	require.Nil(t, ret)
	require.Equal(t, contents[0:9], *buffer)

	// overwrite with something shorter, the file truncates down to match
	var replacement = []byte("short now")
	ret = iopath.Write_open_file(fh, &replacement)
	require.Nil(t, ret)

	var on_disk, err = os.ReadFile(file_path)
	require.NoError(t, err)
	require.Equal(t, replacement, on_disk)

	// and with something empty, which empties the file
	var nothing = []byte{}
	ret = iopath.Write_open_file(fh, &nothing)
	require.Nil(t, ret)
	var fi os.FileInfo
	fi, err = os.Stat(file_path)
	require.NoError(t, err)
	require.Equal(t, int64(0), fi.Size())

	// reading zero bytes is an empty buffer, not an error
	ret, buffer = iopath.Read_open_file(fh, 0)
	require.Nil(t, ret)
	require.Equal(t, 0, len(*buffer))
}

func TestIoPathDefault(t *testing.T) {
	run_iopath_roundtrip(t, New_file_store_io_path_default(test_logger()))
}

func TestIoPathMmap(t *testing.T) {
	run_iopath_roundtrip(t, New_file_store_io_path_mmap(test_logger()))
}

func TestIoPathOpenMissingFileFails(t *testing.T) {
	var iopath = New_file_store_io_path_default(test_logger())
	var ret, fh = iopath.Open_file_rw(filepath.Join(t.TempDir(), "not-there"))
	require.NotNil(t, ret)
	require.Nil(t, fh)
}
