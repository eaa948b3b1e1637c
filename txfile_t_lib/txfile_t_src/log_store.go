// SPDX-License-Identifier: LGPL-2.1
// Copyright (C) 2021-2022 stu mark

/* this is the log store, the append-only reader/writer for one file's transaction log.
   the log is the only thing the engine ever persists besides the data files themselves.
   a commit appends exactly one record here and doesn't return until the record made it
   to the disk, which is the whole durability story: crash after commit and the record
   is in the log, reopen replays it, nothing acknowledged gets lost. */

// package name must match directory name
package txfile_t_src

import (
	"bufio"
	"os"
	"path/filepath"

	"github.com/nixomose/nixomosegotools/tools"
	txfile_t_lib_entry "github.com/nixomose/txfile_t/txfile_t_lib/txfile_t_entry"
	txfile_t_lib_interfaces "github.com/nixomose/txfile_t/txfile_t_lib/txfile_t_interfaces"
)

type Log_store struct {
	log *tools.Nixomosetools_logger

	m_log_file_path string
}

// verify that log_store implements the log store interface
var _ txfile_t_lib_interfaces.Transaction_log_store_interface = &Log_store{}
var _ txfile_t_lib_interfaces.Transaction_log_store_interface = (*Log_store)(nil)

func New_log_store(l *tools.Nixomosetools_logger, log_file_path string) *Log_store {
	var s Log_store
	s.log = l
	s.m_log_file_path = log_file_path
	return &s
}

func (this *Log_store) Get_log_file_path() string {
	return this.m_log_file_path
}

func (this *Log_store) Log_exists() (tools.Ret, bool) {
	var _, err = os.Stat(this.m_log_file_path)
	if err == nil {
		return nil, true
	}
	if os.IsNotExist(err) {
		return nil, false
	}
	return tools.Error(this.log, "unable to stat log file ", this.m_log_file_path, ": ", err), false
}

func (this *Log_store) Append_transaction(e *txfile_t_lib_entry.Txfile_t_entry) tools.Ret {
	/* one commit, one open-append-sync-close cycle. the caller holds the data file's
	   lock so there is never more than one appender.
	   if this append is the one that brings the log file into existence we also sync
	   the parent directory so the log's directory entry is durable too, otherwise a
	   crash could eat the whole log even though the record data was synced. */

	var ret, existed = this.Log_exists()
	if ret != nil {
		return ret
	}

	var fh, err = os.OpenFile(this.m_log_file_path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return tools.Error(this.log, "unable to open log file ", this.m_log_file_path, " for append: ", err)
	}

	var serialize_ret, data = e.Serialize()
	if serialize_ret != nil {
		fh.Close()
		return serialize_ret
	}

	if _, err = fh.Write(data.Bytes()); err != nil {
		fh.Close()
		return tools.Error(this.log, "unable to append transaction ", e.Get_transaction_id(),
			" to log file ", this.m_log_file_path, ": ", err)
	}
	if err = fh.Sync(); err != nil {
		fh.Close()
		return tools.Error(this.log, "unable to sync log file ", this.m_log_file_path, ": ", err)
	}
	if err = fh.Close(); err != nil {
		return tools.Error(this.log, "unable to close log file ", this.m_log_file_path, ": ", err)
	}

	if existed == false {
		if ret = this.sync_parent_directory(); ret != nil {
			return ret
		}
	}

	this.log.Debug("appended transaction ", e.Get_transaction_id(), " with ",
		len(e.Get_new_data()), " bytes of new data to log file ", this.m_log_file_path)
	return nil
}

func (this *Log_store) sync_parent_directory() tools.Ret {
	var dir = filepath.Dir(this.m_log_file_path)
	var dh, err = os.Open(dir)
	if err != nil {
		return tools.Error(this.log, "unable to open directory ", dir, " to sync it: ", err)
	}
	if err = dh.Sync(); err != nil {
		dh.Close()
		return tools.Error(this.log, "unable to sync directory ", dir, ": ", err)
	}
	if err = dh.Close(); err != nil {
		return tools.Error(this.log, "unable to close directory ", dir, ": ", err)
	}
	return nil
}

func (this *Log_store) Read_all_transactions() (tools.Ret, []*txfile_t_lib_entry.Txfile_t_entry) {
	/* scan the whole log from the top, records come back in the order they were
	   committed which is the order replay has to apply them in.
	   a missing log file just means nothing was ever committed since the last
	   cleanup, that's an empty log, not a problem.
	   a record that ends early (torn tail) stops the scan at the last whole record,
	   there's no way to tell a torn record from a corrupt one in this format so we
	   keep what parsed and move on. */

	var transactions []*txfile_t_lib_entry.Txfile_t_entry = make([]*txfile_t_lib_entry.Txfile_t_entry, 0)

	var fh, err = os.Open(this.m_log_file_path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, transactions
		}
		return tools.Error(this.log, "unable to open log file ", this.m_log_file_path, " for read: ", err), nil
	}
	defer fh.Close()

	var r *bufio.Reader = bufio.NewReader(fh)
	for {
		var e *txfile_t_lib_entry.Txfile_t_entry = txfile_t_lib_entry.New_txfile_entry_for_deserialize(this.log)
		var ret, found = e.Deserialize_from(this.log, r)
		if ret != nil {
			this.log.Error("stopping log scan of ", this.m_log_file_path, " after ",
				len(transactions), " whole records: ", ret.Get_errmsg())
			break
		}
		if found == false {
			break // clean eof
		}
		transactions = append(transactions, e)
	}
	return nil, transactions
}

func (this *Log_store) Delete_log() tools.Ret {
	var err = os.Remove(this.m_log_file_path)
	if err != nil {
		return tools.Error(this.log, "unable to delete log file ", this.m_log_file_path, ": ", err)
	}
	this.log.Debug("deleted log file ", this.m_log_file_path)
	return nil
}
