// SPDX-License-Identifier: LGPL-2.1
// Copyright (C) 2021-2022 stu mark

package txfile_t_lib

import (
	"github.com/nixomose/nixomosegotools/tools"
	txfile_t_lib_entry "github.com/nixomose/txfile_t/txfile_t_lib/txfile_t_entry"
)

type Transaction_log_store_interface interface {

	/* the durable side of the engine. one of these is bound to one <file>.log path.
	   the log file itself only exists on disk while there are committed records that
	   haven't been folded back into the data file yet, cleanup deletes it.
	   only the process holding the data file's lock may append. */

	Get_log_file_path() string

	/* append one encoded record and make it durable before returning.
	   every commit is its own open-write-sync-close cycle. */
	Append_transaction(e *txfile_t_lib_entry.Txfile_t_entry) tools.Ret

	/* read every record from the beginning of the log in commit order.
	   a log file that doesn't exist is just an empty log, not an error. */
	Read_all_transactions() (tools.Ret, []*txfile_t_lib_entry.Txfile_t_entry)

	Log_exists() (tools.Ret, bool)

	Delete_log() tools.Ret
}
