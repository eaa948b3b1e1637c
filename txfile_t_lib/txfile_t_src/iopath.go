// SPDX-License-Identifier: LGPL-2.1
// Copyright (C) 2021-2022 stu mark

/* the io path is how bytes move between data files and memory, pulled out behind an
   interface so the session layer and cleanup don't care which flavor of io they got.
   the default one is plain file io and is what you want for files on a filesystem.
   the directio one opens with O_DIRECT and moves data through aligned blocks, for
   when the data files are big and you don't want to pollute the page cache.
   the mmap one maps the file instead of reading it, which is the cheap way to
   hydrate a large segment on open.
   none of this touches the log file, the log store does its own io, the log has to
   be append-and-sync and there's only one correct way to do that. */

// package name must match directory name
package txfile_t_src

import (
	"io"
	"os"

	"github.com/ncw/directio"
	"github.com/nixomose/nixomosegotools/tools"
	"github.com/tysonmote/gommap"
)

type File_store_io_path interface {

	/* open the data file read/write. the caller owns the returned handle, it's the
	thing the advisory lock goes on. */
	Open_file_rw(file_path string) (tools.Ret, *os.File)

	/* read the first length bytes of the open file into a fresh buffer. */
	Read_open_file(fh *os.File, length uint64) (tools.Ret, *[]byte)

	/* replace the open file's contents with data, truncating to exactly len(data). */
	Write_open_file(fh *os.File, data *[]byte) tools.Ret
}

/* * * * * * * * * * * * * * * * * * * * * * * * * * * * * * * * * * * * * * * * * * * * * * */

type File_store_io_path_default struct {
	log *tools.Nixomosetools_logger
}

var _ File_store_io_path = &File_store_io_path_default{}
var _ File_store_io_path = (*File_store_io_path_default)(nil)

func New_file_store_io_path_default(l *tools.Nixomosetools_logger) *File_store_io_path_default {
	var p File_store_io_path_default
	p.log = l
	return &p
}

func (this *File_store_io_path_default) Open_file_rw(file_path string) (tools.Ret, *os.File) {
	var fh, err = os.OpenFile(file_path, os.O_RDWR, 0644)
	if err != nil {
		return tools.Error(this.log, "unable to open file ", file_path, ": ", err), nil
	}
	return nil, fh
}

func (this *File_store_io_path_default) Read_open_file(fh *os.File, length uint64) (tools.Ret, *[]byte) {
	var buffer []byte = make([]byte, length)
	if length == 0 {
		return nil, &buffer
	}
	var n, err = fh.ReadAt(buffer, 0)
	if err != nil {
		if err != io.EOF || uint64(n) != length {
			return tools.Error(this.log, "unable to read ", length, " bytes from file ",
				fh.Name(), ", got ", n, ": ", err), nil
		}
	}
	return nil, &buffer
}

func (this *File_store_io_path_default) Write_open_file(fh *os.File, data *[]byte) tools.Ret {
	var err = fh.Truncate(int64(len(*data)))
	if err != nil {
		return tools.Error(this.log, "unable to truncate file ", fh.Name(), " to ", len(*data), " bytes: ", err)
	}
	if len(*data) > 0 {
		if _, err = fh.WriteAt(*data, 0); err != nil {
			return tools.Error(this.log, "unable to write ", len(*data), " bytes to file ", fh.Name(), ": ", err)
		}
	}
	if err = fh.Sync(); err != nil {
		return tools.Error(this.log, "unable to sync file ", fh.Name(), ": ", err)
	}
	return nil
}

/* * * * * * * * * * * * * * * * * * * * * * * * * * * * * * * * * * * * * * * * * * * * * * */

type File_store_io_path_directio struct {
	log *tools.Nixomosetools_logger
}

var _ File_store_io_path = &File_store_io_path_directio{}
var _ File_store_io_path = (*File_store_io_path_directio)(nil)

func New_file_store_io_path_directio(l *tools.Nixomosetools_logger) *File_store_io_path_directio {
	var p File_store_io_path_directio
	p.log = l
	return &p
}

func (this *File_store_io_path_directio) Open_file_rw(file_path string) (tools.Ret, *os.File) {
	var fh, err = directio.OpenFile(file_path, os.O_RDWR, 0644)
	if err != nil {
		return tools.Error(this.log, "unable to open file ", file_path, " with directio: ", err), nil
	}
	return nil, fh
}

func (this *File_store_io_path_directio) Read_open_file(fh *os.File, length uint64) (tools.Ret, *[]byte) {
	/* O_DIRECT reads have to go through an aligned block at an aligned offset, so
	   pull the file in a block at a time and copy out. the last block of a file whose
	   size isn't block aligned comes back short, which is fine, we only promised the
	   first length bytes. */

	var buffer []byte = make([]byte, length)
	if length == 0 {
		return nil, &buffer
	}
	var block []byte = directio.AlignedBlock(directio.BlockSize)
	var pos uint64 = 0
	for pos < length {
		var n, err = fh.ReadAt(block, int64(pos))
		if n > 0 {
			copy(buffer[pos:], block[0:n])
			pos += uint64(n)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return tools.Error(this.log, "unable to read file ", fh.Name(), " at offset ", pos,
				" with directio: ", err), nil
		}
	}
	if pos < length {
		return tools.Error(this.log, "short directio read of file ", fh.Name(), ", wanted ",
			length, " bytes, got ", pos), nil
	}
	return nil, &buffer
}

func (this *File_store_io_path_directio) Write_open_file(fh *os.File, data *[]byte) tools.Ret {
	/* writes have the same alignment rules, so write a zero-padded aligned buffer and
	   then truncate the tail back off to land on the real length. */

	var length = len(*data)
	var err error
	if length > 0 {
		var aligned_length int = ((length + directio.BlockSize - 1) / directio.BlockSize) * directio.BlockSize
		var block []byte = directio.AlignedBlock(aligned_length)
		copy(block, *data)
		if _, err = fh.WriteAt(block, 0); err != nil {
			return tools.Error(this.log, "unable to write ", aligned_length, " bytes to file ",
				fh.Name(), " with directio: ", err)
		}
	}
	if err = fh.Truncate(int64(length)); err != nil {
		return tools.Error(this.log, "unable to truncate file ", fh.Name(), " to ", length, " bytes: ", err)
	}
	if err = fh.Sync(); err != nil {
		return tools.Error(this.log, "unable to sync file ", fh.Name(), ": ", err)
	}
	return nil
}

/* * * * * * * * * * * * * * * * * * * * * * * * * * * * * * * * * * * * * * * * * * * * * * */

type File_store_io_path_mmap struct {
	log *tools.Nixomosetools_logger
}

var _ File_store_io_path = &File_store_io_path_mmap{}
var _ File_store_io_path = (*File_store_io_path_mmap)(nil)

func New_file_store_io_path_mmap(l *tools.Nixomosetools_logger) *File_store_io_path_mmap {
	var p File_store_io_path_mmap
	p.log = l
	return &p
}

func (this *File_store_io_path_mmap) Open_file_rw(file_path string) (tools.Ret, *os.File) {
	var fh, err = os.OpenFile(file_path, os.O_RDWR, 0644)
	if err != nil {
		return tools.Error(this.log, "unable to open file ", file_path, ": ", err), nil
	}
	return nil, fh
}

func (this *File_store_io_path_mmap) Read_open_file(fh *os.File, length uint64) (tools.Ret, *[]byte) {
	/* map the file and copy the segment out of the mapping. you can't mmap zero bytes
	   so an empty read skips the mapping entirely. */

	var buffer []byte = make([]byte, length)
	if length == 0 {
		return nil, &buffer
	}
	var mapping, err = gommap.Map(fh.Fd(), gommap.PROT_READ, gommap.MAP_SHARED)
	if err != nil {
		return tools.Error(this.log, "unable to mmap file ", fh.Name(), ": ", err), nil
	}
	if uint64(len(mapping)) < length {
		mapping.UnsafeUnmap()
		return tools.Error(this.log, "mmap of file ", fh.Name(), " is ", len(mapping),
			" bytes, wanted ", length), nil
	}
	copy(buffer, mapping[0:length])
	if err = mapping.UnsafeUnmap(); err != nil {
		return tools.Error(this.log, "unable to unmap file ", fh.Name(), ": ", err), nil
	}
	return nil, &buffer
}

func (this *File_store_io_path_mmap) Write_open_file(fh *os.File, data *[]byte) tools.Ret {
	var length = len(*data)
	var err = fh.Truncate(int64(length))
	if err != nil {
		return tools.Error(this.log, "unable to truncate file ", fh.Name(), " to ", length, " bytes: ", err)
	}
	if length > 0 {
		var mapping gommap.MMap
		if mapping, err = gommap.Map(fh.Fd(), gommap.PROT_READ|gommap.PROT_WRITE, gommap.MAP_SHARED); err != nil {
			return tools.Error(this.log, "unable to mmap file ", fh.Name(), " for write: ", err)
		}
		copy(mapping, *data)
		if err = mapping.Sync(gommap.MS_SYNC); err != nil {
			mapping.UnsafeUnmap()
			return tools.Error(this.log, "unable to sync mmap of file ", fh.Name(), ": ", err)
		}
		if err = mapping.UnsafeUnmap(); err != nil {
			return tools.Error(this.log, "unable to unmap file ", fh.Name(), ": ", err)
		}
	}
	if err = fh.Sync(); err != nil {
		return tools.Error(this.log, "unable to sync file ", fh.Name(), ": ", err)
	}
	return nil
}
