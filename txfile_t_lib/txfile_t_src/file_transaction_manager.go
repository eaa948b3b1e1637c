// SPDX-License-Identifier: LGPL-2.1
// Copyright (C) 2021-2022 stu mark

/* the file transaction manager is the base manager bound to an actual file on disk.
   all it adds is commit, which is the only door between the in-memory world and the
   durable one: take an uncommitted transaction, append its record to the sidecar log,
   drop it from the table. the segment is untouched by commit, it already had the
   write applied when the transaction was created. */

// package name must match directory name
package txfile_t_src

import (
	"github.com/nixomose/nixomosegotools/tools"
	txfile_t_lib_interfaces "github.com/nixomose/txfile_t/txfile_t_lib/txfile_t_interfaces"
)

const LOG_FILE_EXTENSION string = ".log" // the sidecar log lives next to the data file as <file>.log

type File_transaction_manager struct {
	Base_transaction_manager

	m_log_store txfile_t_lib_interfaces.Transaction_log_store_interface
}

// verify that file_transaction_manager implements the file transaction manager interface
var _ txfile_t_lib_interfaces.File_transaction_manager_interface = &File_transaction_manager{}
var _ txfile_t_lib_interfaces.File_transaction_manager_interface = (*File_transaction_manager)(nil)

func New_file_transaction_manager(l *tools.Nixomosetools_logger, data_file_path string,
	vm_segment []byte) *File_transaction_manager {

	var m File_transaction_manager
	m.Base_transaction_manager = *New_base_transaction_manager(l, vm_segment)
	m.m_log_store = New_log_store(l, data_file_path+LOG_FILE_EXTENSION)
	return &m
}

func (this *File_transaction_manager) Get_log_file_path() string {
	return this.m_log_store.Get_log_file_path()
}

func (this *File_transaction_manager) Commit_transaction(transaction_id uint32, bytes int64) tools.Ret {
	/* make a transaction durable, or the first bytes bytes of it if bytes isn't
	   negative. asking for more bytes than the write has is an error and nothing
	   changes, not the table, not the log, not the segment.
	   a partial commit narrows the record that goes to the log, the segment keeps
	   the whole write for as long as this file stays open, so the process that did
	   the write keeps reading all of it back but only the committed prefix survives
	   a reopen. that's the deal the caller asked for.
	   committing an id that already committed or aborted or never existed fails,
	   the table is the only place we look. */

	var pos int = this.get_uncommitted_transaction_pos(transaction_id)
	if pos == -1 {
		return tools.Error(this.log, "unable to commit transaction ", transaction_id,
			", it is not in the uncommitted transaction list")
	}
	var e = this.m_uncommitted_transactions[pos]

	if bytes >= 0 {
		if uint64(bytes) > uint64(len(e.Get_new_data())) {
			return tools.Error(this.log, "unable to commit ", bytes, " bytes of transaction ",
				transaction_id, ", the write is only ", len(e.Get_new_data()), " bytes")
		}
		if ret := e.Truncate_new_data(uint64(bytes)); ret != nil {
			return ret
		}
	}

	if ret := this.m_log_store.Append_transaction(e); ret != nil {
		return ret
	}

	this.m_uncommitted_transactions = append(this.m_uncommitted_transactions[0:pos],
		this.m_uncommitted_transactions[pos+1:]...)
	this.log.Debug("committed transaction ", transaction_id, " with ",
		len(e.Get_new_data()), " bytes of new data")
	return nil
}

func (this *File_transaction_manager) Replay_from_log() tools.Ret {
	/* hydration on open: whatever records are sitting in the log are writes that were
	   committed but not yet folded into the data file, apply them to the segment so
	   the picture this process sees includes them. */
	var ret, transactions = this.m_log_store.Read_all_transactions()
	if ret != nil {
		return ret
	}
	return this.Replay_transactions(transactions)
}
