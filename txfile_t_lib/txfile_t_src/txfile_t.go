// SPDX-License-Identifier: LGPL-2.1
// Copyright (C) 2021-2022 stu mark

/* this is the session layer, the top of the stack, the thing callers actually hold.
   a Txfile_t is one initialized directory. inside it you open files, and an open file
   gets you the whole machine: the file on disk gets sized and locked, its contents
   get read into the transaction manager's segment, and whatever committed records are
   sitting in the sidecar log get replayed on top, so a crash between commit and
   cleanup costs nothing that was acknowledged.

   the locking story is one exclusive advisory flock per open file, taken non-blocking,
   held for the life of the descriptor, dropped when the descriptor closes no matter
   how the process ends. a second open of the same file fails immediately whoever asks,
   another process or this one, flock doesn't care that it's us, the lock lives on the
   open file description not the process.

   there is exactly one Txfile_t per directory path per process, init hands back the
   same one every time. */

// package name must match directory name
package txfile_t_src

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/nixomose/nixomosegotools/tools"
	"golang.org/x/sys/unix"
)

/* the process-wide registry of initialized directories. a map and a lock, nothing
fancier, entries live until the process exits, there is no uninit. */
var txfile_t_registry map[string]*Txfile_t = make(map[string]*Txfile_t)
var txfile_t_registry_lock sync.Mutex

type Txfile_t struct {
	log *tools.Nixomosetools_logger

	m_dirname string // cleaned absolute-or-relative path, the registry key

	m_iopath File_store_io_path

	/* open, close, remove and clean take this lock so only one of them runs at once.
	read, write, sync and abort do not take it. */
	interface_lock sync.Mutex
}

type Txfile_file struct {
	log *tools.Nixomosetools_logger

	m_filename    string // relative to the directory
	m_file_length uint64 // the declared length from open time, zeroed on close

	/* nil when the file is not open. holding a non-nil descriptor means holding the
	flock, the two can't come apart, the lock drops when the descriptor closes. */
	m_file_descriptor *os.File

	m_transaction_manager *File_transaction_manager // owned, dropped on close
}

type Txfile_write struct {
	log *tools.Nixomosetools_logger

	m_filename string
	m_offset   uint64
	m_length   uint64

	/* non-owning backpointer so sync and abort can find the manager. the file handle
	owns the manager, this just borrows the file handle. */
	m_file *Txfile_file

	m_transaction_id uint32
}

func Txfile_init(directory string, verbose bool) *Txfile_t {
	return Txfile_init_with_io_path(directory, verbose, nil)
}

func Txfile_init_with_io_path(directory string, verbose bool, iopath File_store_io_path) *Txfile_t {
	/* returns nil on a bad directory. if this process already initialized this path
	   you get the existing handle back, the same one, not a copy, and the verbose flag
	   and io path of the first init stand. */

	var log *tools.Nixomosetools_logger
	if verbose {
		log = tools.New_Nixomosetools_logger(tools.DEBUG)
	} else {
		log = tools.New_Nixomosetools_logger(tools.INFO)
	}

	log.Debug("initializing txfile directory ", directory)
	if len(directory) == 0 {
		log.Error("directory name is empty")
		return nil
	}
	var dirname string = filepath.Clean(directory)

	txfile_t_registry_lock.Lock()
	defer txfile_t_registry_lock.Unlock()

	var existing, found = txfile_t_registry[dirname]
	if found {
		return existing
	}

	var fi, err = os.Stat(dirname)
	if err == nil {
		if fi.IsDir() == false {
			log.Error("directory name ", dirname, " exists but is not a directory")
			return nil
		}
	} else {
		if os.IsNotExist(err) == false {
			log.Error("unable to stat directory ", dirname, ": ", err.Error())
			return nil
		}
		log.Debug("directory ", dirname, " does not exist, creating it")
		if err = os.Mkdir(dirname, 0755); err != nil {
			log.Error("unable to create directory ", dirname, ": ", err.Error())
			return nil
		}
	}

	if iopath == nil {
		iopath = New_file_store_io_path_default(log)
	}
	var t Txfile_t
	t.log = log
	t.m_dirname = dirname
	t.m_iopath = iopath
	txfile_t_registry[dirname] = &t
	return &t
}

func (this *Txfile_t) Get_logger() *tools.Nixomosetools_logger {
	return this.log
}

func (this *Txfile_t) Get_dirname() string {
	return this.m_dirname
}

func (this *Txfile_t) Open_file(filename string, file_length uint64) (tools.Ret, *Txfile_file) {
	/* open (creating if need be) one file in this directory and stand up its
	   transaction manager. the declared file_length is a floor on the file's size:
	   a file on disk bigger than that is a refusal (we will not shrink data), a file
	   smaller gets truncate-extended up to it.
	   the segment starts as the first file_length bytes of the file and then the log
	   gets replayed over it, so the picture includes every committed-but-uncleaned
	   write from previous sessions. */

	this.interface_lock.Lock()
	defer this.interface_lock.Unlock()

	this.log.Debug("opening file ", filename, " inside directory ", this.m_dirname,
		" with declared length ", file_length)

	if len(filename) == 0 {
		return tools.Error(this.log, "filename is empty"), nil
	}
	var file_path string = filepath.Join(this.m_dirname, filename)

	var disk_size uint64 = 0
	var fi, err = os.Stat(file_path)
	if err == nil {
		if fi.Mode().IsRegular() == false {
			return tools.Error(this.log, "file ", file_path, " exists but is not a regular file"), nil
		}
		disk_size = uint64(fi.Size())
	} else {
		if os.IsNotExist(err) == false {
			return tools.Error(this.log, "unable to stat file ", file_path, ": ", err), nil
		}
		this.log.Debug("file ", file_path, " does not exist, creating it")
		var created *os.File
		if created, err = os.OpenFile(file_path, os.O_CREATE|os.O_WRONLY, 0644); err != nil {
			return tools.Error(this.log, "unable to create file ", file_path, ": ", err), nil
		}
		created.Close()
	}

	if file_length < disk_size {
		return tools.Error(this.log, "declared length ", file_length, " is less than the ",
			disk_size, " bytes of file ", file_path, ", shrinking is not allowed"), nil
	}
	if file_length > disk_size {
		this.log.Debug("extending file ", file_path, " from ", disk_size, " to ", file_length, " bytes")
		if err = os.Truncate(file_path, int64(file_length)); err != nil {
			return tools.Error(this.log, "unable to extend file ", file_path, " to ",
				file_length, " bytes: ", err), nil
		}
	}

	var ret tools.Ret
	var fh *os.File
	if ret, fh = this.m_iopath.Open_file_rw(file_path); ret != nil {
		return ret, nil
	}

	/* non-blocking exclusive lock. held by anybody, including another handle in this
	very process, and the open loses, right now, no waiting. */
	if err = unix.Flock(int(fh.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		fh.Close()
		return tools.Error(this.log, "unable to lock file ", file_path, ": ", err), nil
	}

	var buffer *[]byte
	if ret, buffer = this.m_iopath.Read_open_file(fh, file_length); ret != nil {
		fh.Close()
		return ret, nil
	}

	var manager *File_transaction_manager = New_file_transaction_manager(this.log, file_path, *buffer)
	if ret = manager.Replay_from_log(); ret != nil {
		fh.Close()
		return ret, nil
	}

	var fl Txfile_file
	fl.log = this.log
	fl.m_filename = filename
	fl.m_file_length = file_length
	fl.m_file_descriptor = fh
	fl.m_transaction_manager = manager
	this.log.Debug("opened file ", filename, ", segment is ",
		len(*manager.Get_vm_segment()), " bytes")
	return nil, &fl
}

func (this *Txfile_t) Close_file(fl *Txfile_file) tools.Ret {
	/* closing drops the descriptor and with it the flock, and throws the manager away.
	   any transactions still in the table just evaporate, their segment edits die with
	   the segment, and since they were never logged the disk never heard of them.
	   that is the abort-by-default the engine promises for unsynced writes. */

	this.interface_lock.Lock()
	defer this.interface_lock.Unlock()

	if fl == nil {
		return tools.Error(this.log, "file does not exist")
	}
	this.log.Debug("closing file ", fl.m_filename, " inside directory ", this.m_dirname)
	if fl.m_file_descriptor == nil {
		return tools.Error(this.log, "file ", fl.m_filename, " is not open")
	}

	var err = fl.m_file_descriptor.Close()
	fl.m_file_descriptor = nil
	fl.m_file_length = 0
	fl.m_transaction_manager = nil
	if err != nil {
		return tools.Error(this.log, "unable to close file ", fl.m_filename, ": ", err)
	}
	return nil
}

func (this *Txfile_t) Remove_file(fl *Txfile_file) tools.Ret {
	/* you can only remove a closed file, an open one is locked and in use, possibly
	   with staged writes, go close it first. removes the data file and the sidecar
	   log if there is one, no log is not an error, it just means everything was
	   cleaned or nothing was ever committed. */

	this.interface_lock.Lock()
	defer this.interface_lock.Unlock()

	if fl == nil {
		return tools.Error(this.log, "file does not exist")
	}
	this.log.Debug("removing file ", fl.m_filename, " inside directory ", this.m_dirname)
	if fl.m_file_descriptor != nil {
		return tools.Error(this.log, "file ", fl.m_filename, " is still open, close it before removing")
	}

	var file_path string = filepath.Join(this.m_dirname, fl.m_filename)
	var err = os.Remove(file_path)
	if err != nil {
		return tools.Error(this.log, "unable to remove file ", file_path, ": ", err)
	}

	var lstore *Log_store = New_log_store(this.log, file_path+LOG_FILE_EXTENSION)
	var ret, exists = lstore.Log_exists()
	if ret == nil && exists {
		if ret = lstore.Delete_log(); ret != nil {
			this.log.Error("removed file ", file_path, " but couldn't remove its log: ", ret.Get_errmsg())
		}
	}
	return nil
}

func (this *Txfile_t) Read_file(fl *Txfile_file, offset uint64, length uint64) (tools.Ret, *[]byte) {
	/* hand back a fresh copy of up to length bytes of the segment starting at offset.
	   the segment is the truth, it has every write this process staged plus everything
	   replayed from the log at open, there is no peeking past your own uncommitted
	   writes. reading at or past the end of the segment gets you an empty buffer, not
	   an error, and a read that hangs off the end gets clamped. the caller owns the
	   returned buffer. */

	if fl == nil {
		return tools.Error(this.log, "file does not exist"), nil
	}
	this.log.Debug("reading ", length, " bytes starting from offset ", offset,
		" inside file ", fl.m_filename)
	if fl.m_file_descriptor == nil {
		return tools.Error(this.log, "file ", fl.m_filename, " is not open"), nil
	}

	var segment *[]byte = fl.m_transaction_manager.Get_vm_segment()
	var buffer []byte = make([]byte, 0)
	if offset < uint64(len(*segment)) {
		var n uint64 = uint64(len(*segment)) - offset
		if n > length {
			n = length
		}
		buffer = make([]byte, n)
		copy(buffer, (*segment)[offset:offset+n])
	}
	return nil, &buffer
}

func (this *Txfile_t) Write_file(fl *Txfile_file, offset uint64, data *[]byte) (tools.Ret, *Txfile_write) {
	/* stage a write. it lands on the segment right now, so this process reads it back
	   immediately, but it is not durable and will not survive a close or a crash until
	   somebody syncs the returned write handle. */

	if fl == nil {
		return tools.Error(this.log, "file does not exist"), nil
	}
	this.log.Debug("writing ", len(*data), " bytes starting from offset ", offset,
		" inside file ", fl.m_filename)
	if fl.m_file_descriptor == nil {
		return tools.Error(this.log, "file ", fl.m_filename, " is not open"), nil
	}

	var ret, transaction_id = fl.m_transaction_manager.Create_transaction(offset, data)
	if ret != nil {
		return ret, nil
	}

	var w Txfile_write
	w.log = this.log
	w.m_filename = fl.m_filename
	w.m_offset = offset
	w.m_length = uint64(len(*data))
	w.m_file = fl
	w.m_transaction_id = transaction_id
	return nil, &w
}

/* * * * * * * * * * * * * * * * * * * * * * * * * * * * * * * * * * * * * * * * * * * * * * */

func (this *Txfile_write) Get_filename() string {
	return this.m_filename
}

func (this *Txfile_write) Get_offset() uint64 {
	return this.m_offset
}

func (this *Txfile_write) Get_length() uint64 {
	return this.m_length
}

func (this *Txfile_write) Get_transaction_id() uint32 {
	return this.m_transaction_id
}

func (this *Txfile_write) Sync_write() tools.Ret {
	/* make the whole write durable. when this returns nil the record is in the log
	and synced, and a reopen after any crash will replay it. */
	return this.sync_write_internal(-1)
}

func (this *Txfile_write) Sync_write_n_bytes(bytes uint64) tools.Ret {
	/* make only the first bytes bytes of the write durable. asking for more than the
	write has fails and commits nothing. */
	return this.sync_write_internal(int64(bytes))
}

func (this *Txfile_write) sync_write_internal(bytes int64) tools.Ret {
	if this == nil {
		return tools.Error(tools.New_Nixomosetools_logger(tools.INFO), "write handle does not exist")
	}
	this.log.Debug("persisting write of ", this.m_length, " bytes starting from offset ",
		this.m_offset, " inside file ", this.m_filename)
	if this.m_file == nil || this.m_file.m_transaction_manager == nil {
		return tools.Error(this.log, "file ", this.m_filename, " is not open")
	}
	return this.m_file.m_transaction_manager.Commit_transaction(this.m_transaction_id, bytes)
}

func (this *Txfile_write) Abort_write() tools.Ret {
	/* take the write back, the segment bytes it displaced get restored. only works
	while the transaction is still uncommitted, a synced write is forever. */
	if this == nil {
		return tools.Error(tools.New_Nixomosetools_logger(tools.INFO), "write handle does not exist")
	}
	this.log.Debug("aborting write of ", this.m_length, " bytes starting from offset ",
		this.m_offset, " inside file ", this.m_filename)
	if this.m_file == nil || this.m_file.m_transaction_manager == nil {
		return tools.Error(this.log, "file ", this.m_filename, " is not open")
	}
	return this.m_file.m_transaction_manager.Abort_transaction(this.m_transaction_id)
}
