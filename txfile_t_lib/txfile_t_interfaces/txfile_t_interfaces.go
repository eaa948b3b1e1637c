// SPDX-License-Identifier: LGPL-2.1
// Copyright (C) 2021-2022 stu mark

// Package txfile_t_lib ... has a comment
package txfile_t_lib

import (
	"github.com/nixomose/nixomosegotools/tools"
	txfile_t_lib_entry "github.com/nixomose/txfile_t/txfile_t_lib/txfile_t_entry"
)

type Transaction_manager_interface interface {

	/* the in-memory side of the engine. one of these exists per open file, it owns the
	   virtual memory segment that is the authoritative picture of the file's contents for
	   this process, and the list of uncommitted transactions hanging off of it.
	   create stages a write, abort takes it back, replay rolls already-committed log
	   records forward onto the segment without making table entries for them. */

	Create_transaction(offset uint64, new_data *[]byte) (tools.Ret, uint32)

	Abort_transaction(transaction_id uint32) tools.Ret

	Replay_transactions(transactions []*txfile_t_lib_entry.Txfile_t_entry) tools.Ret

	Get_vm_segment() *[]byte
}

type File_transaction_manager_interface interface {
	Transaction_manager_interface

	/* the specialization that is bound to an actual file on disk and its sidecar log.
	   commit is the one and only way a transaction becomes durable. bytes < 0 commits
	   the whole write, otherwise only the first bytes bytes of it go to the log. */

	Commit_transaction(transaction_id uint32, bytes int64) tools.Ret

	Get_log_file_path() string

	Replay_from_log() tools.Ret
}
