// SPDX-License-Identifier: LGPL-2.1
// Copyright (C) 2021-2022 stu mark

/* cleanup folds committed log records back into the data files they belong to and
   throws the logs away, which is how the disk space a log eats gets reclaimed.
   the fold for one log is: read the records, maybe trim the list to a byte budget,
   read the data file fresh off the disk, replay the retained records onto that
   buffer the same way open-time replay works, write the buffer back over the file,
   delete the log.
   run it again after a crash partway through and it just does the job again, the
   inputs are re-read from disk every time so a half-finished directory pass finishes
   fine on the next call. */

// package name must match directory name
package txfile_t_src

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/nixomose/nixomosegotools/tools"
	txfile_t_lib_entry "github.com/nixomose/txfile_t/txfile_t_lib/txfile_t_entry"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"
)

func (this *Txfile_t) Clean() tools.Ret {
	/* fold every log in the directory, completely. */
	return this.clean_directory(-1)
}

func (this *Txfile_t) Clean_n_bytes(bytes uint64) tools.Ret {
	/* fold at most bytes bytes worth of records out of EACH log in the directory.
	   the budget is per log, every log gets the same allowance, it is not a pool
	   shared across the directory. records past a log's budget are discarded with
	   the log, they do not survive to a later cleanup. */
	return this.clean_directory(int64(bytes))
}

func (this *Txfile_t) clean_directory(bytes int64) tools.Ret {
	/* walk the directory for .log regular files and fold each one. the folds are
	   independent so they run concurrently, one goroutine per log, same shape as any
	   other fan-out-and-wait in this codebase. one log failing doesn't stop the
	   others, they all get their shot, and then we report the failure. */

	this.interface_lock.Lock()
	defer this.interface_lock.Unlock()

	this.log.Debug("cleaning up txfile directory ", this.m_dirname)

	var entries, err = os.ReadDir(this.m_dirname)
	if err != nil {
		return tools.Error(this.log, "unable to read directory ", this.m_dirname, ": ", err)
	}

	var group *errgroup.Group
	group, _ = errgroup.WithContext(context.Background())
	for _, entry := range entries {
		if entry.Type().IsRegular() == false {
			continue
		}
		if filepath.Ext(entry.Name()) != LOG_FILE_EXTENSION {
			continue
		}
		var log_file_path string = filepath.Join(this.m_dirname, entry.Name())
		group.Go(func() error {
			var ret tools.Ret
			if ret = this.clean_one_log(log_file_path, bytes); ret != nil {
				return ret
			}
			return nil
		})
	}
	if err = group.Wait(); err != nil {
		return tools.Error(this.log, "unable to clean all logs in directory ", this.m_dirname, ": ", err)
	}
	this.log.Debug("cleaned up txfile directory ", this.m_dirname)
	return nil
}

func (this *Txfile_t) clean_one_log(log_file_path string, bytes int64) tools.Ret {
	/* fold one log into its data file. bytes < 0 means fold everything.

	   we take the data file's flock for the duration so we can't shred a file some
	   process has open and is about to commit against. a held lock fails this log's
	   fold, the caller can come back after the holder closes. */

	var data_file_path string = strings.TrimSuffix(log_file_path, LOG_FILE_EXTENSION)

	var ret tools.Ret
	var fh *os.File
	if ret, fh = this.m_iopath.Open_file_rw(data_file_path); ret != nil {
		return ret
	}
	defer fh.Close()

	var err = unix.Flock(int(fh.Fd()), unix.LOCK_EX|unix.LOCK_NB)
	if err != nil {
		return tools.Error(this.log, "unable to lock file ", data_file_path,
			" for cleaning, somebody has it open: ", err)
	}

	var lstore *Log_store = New_log_store(this.log, log_file_path)
	var transactions []*txfile_t_lib_entry.Txfile_t_entry
	if ret, transactions = lstore.Read_all_transactions(); ret != nil {
		return ret
	}

	if bytes >= 0 {
		transactions = this.retain_transactions_in_budget(log_file_path, transactions, bytes)
	}

	var fi os.FileInfo
	if fi, err = fh.Stat(); err != nil {
		return tools.Error(this.log, "unable to stat file ", data_file_path, ": ", err)
	}

	var buffer *[]byte
	if ret, buffer = this.m_iopath.Read_open_file(fh, uint64(fi.Size())); ret != nil {
		return ret
	}

	/* same replay as open-time hydration, just against a throwaway manager whose
	segment started as the on disk bytes instead of a live session's. */
	var manager *Base_transaction_manager = New_base_transaction_manager(this.log, *buffer)
	if ret = manager.Replay_transactions(transactions); ret != nil {
		return ret
	}

	if ret = this.m_iopath.Write_open_file(fh, manager.Get_vm_segment()); ret != nil {
		return ret
	}

	/* the fold is on disk, the log is now redundant, and deleting it is the last step.
	its failure fails the fold like every step before it, a log we couldn't delete
	would get replayed again. */
	if ret = lstore.Delete_log(); ret != nil {
		return ret
	}
	this.log.Debug("cleaned ", len(transactions), " transactions from log file ", log_file_path)
	return nil
}

func (this *Txfile_t) retain_transactions_in_budget(log_file_path string,
	transactions []*txfile_t_lib_entry.Txfile_t_entry, bytes int64) []*txfile_t_lib_entry.Txfile_t_entry {
	/* keep the longest prefix of records whose new data adds up to no more than the
	   budget. a record that would blow the budget stops the walk, unless the budget
	   lands exactly on a record boundary in which case that record makes it in.
	   budget left over after every record is retained just means the log was smaller
	   than the allowance, say so and carry on. */

	var remaining int64 = bytes
	var retained []*txfile_t_lib_entry.Txfile_t_entry = make([]*txfile_t_lib_entry.Txfile_t_entry, 0, len(transactions))
	for _, e := range transactions {
		if int64(len(e.Get_new_data())) > remaining {
			break
		}
		remaining -= int64(len(e.Get_new_data()))
		retained = append(retained, e)
		if remaining == 0 {
			break
		}
	}
	if remaining > 0 && len(retained) == len(transactions) {
		this.log.Info("not enough transactions to clean ", remaining, " more bytes in log file ", log_file_path)
	}
	this.log.Debug("retaining ", len(retained), " of ", len(transactions),
		" transactions in log file ", log_file_path)
	return retained
}
