// SPDX-License-Identifier: LGPL-2.1
// Copyright (C) 2021-2022 stu mark

package main

import (
	"bytes"

	"github.com/nixomose/nixomosegotools/tools"
	"github.com/nixomose/txfile_t/txfile_t_lib/txfile_t_src"
)

type txfile_t_test_lib struct {
	log *tools.Nixomosetools_logger
}

func New_txfile_t_test_lib(log *tools.Nixomosetools_logger) txfile_t_test_lib {
	var txfile_test txfile_t_test_lib
	txfile_test.log = log
	return txfile_test
}

func (this *txfile_t_test_lib) Write_sync_read_back(tx *txfile_t_src.Txfile_t) tools.Ret {
	/* the basic promise: stage a write, sync it, close, reopen, the bytes are there. */

	var ret, fl = tx.Open_file("test1.txt", 100)
	if ret != nil {
		return ret
	}

	var data = []byte("Hi, I'm the writer.\n")
	var w *txfile_t_src.Txfile_write
	if ret, w = tx.Write_file(fl, 10, &data); ret != nil {
		return ret
	}
	if ret = w.Sync_write(); ret != nil {
		return ret
	}
	if ret = tx.Close_file(fl); ret != nil {
		return ret
	}

	if ret, fl = tx.Open_file("test1.txt", 100); ret != nil {
		return ret
	}
	var buffer *[]byte
	if ret, buffer = tx.Read_file(fl, 10, uint64(len(data))); ret != nil {
		return ret
	}
	if bytes.Compare(data, *buffer) != 0 {
		tx.Close_file(fl)
		return tools.Error(this.log, "data read back after sync and reopen doesn't match what was written")
	}
	return tx.Close_file(fl)
}

func (this *txfile_t_test_lib) Abort_restores(tx *txfile_t_src.Txfile_t) tools.Ret {
	/* one synced write stands, one aborted write is like it never happened. */

	var ret, fl = tx.Open_file("test2.txt", 100)
	if ret != nil {
		return ret
	}

	var data = []byte("Testing string.\n")
	var w *txfile_t_src.Txfile_write
	if ret, w = tx.Write_file(fl, 0, &data); ret != nil {
		return ret
	}
	if ret = w.Sync_write(); ret != nil {
		return ret
	}
	if ret, w = tx.Write_file(fl, 20, &data); ret != nil {
		return ret
	}
	if ret = w.Abort_write(); ret != nil {
		return ret
	}

	var buffer *[]byte
	if ret, buffer = tx.Read_file(fl, 0, 16); ret != nil {
		return ret
	}
	if bytes.Compare(data, *buffer) != 0 {
		return tools.Error(this.log, "the synced write didn't read back")
	}
	if ret, buffer = tx.Read_file(fl, 20, 16); ret != nil {
		return ret
	}
	if bytes.Compare(make([]byte, 16), *buffer) != 0 {
		return tools.Error(this.log, "the aborted write is still visible")
	}
	return tx.Close_file(fl)
}

func (this *txfile_t_test_lib) Partial_sync(tx *txfile_t_src.Txfile_t) tools.Ret {
	/* sync only the first half of a write, reopen, only the prefix survived. */

	var ret, fl = tx.Open_file("test3.txt", 100)
	if ret != nil {
		return ret
	}

	var data = []byte("01234567890123456789")
	var w *txfile_t_src.Txfile_write
	if ret, w = tx.Write_file(fl, 0, &data); ret != nil {
		return ret
	}
	if ret = w.Sync_write_n_bytes(10); ret != nil {
		return ret
	}
	if ret = tx.Close_file(fl); ret != nil {
		return ret
	}

	if ret, fl = tx.Open_file("test3.txt", 100); ret != nil {
		return ret
	}
	var buffer *[]byte
	if ret, buffer = tx.Read_file(fl, 0, 20); ret != nil {
		return ret
	}
	var expected = append([]byte("0123456789"), make([]byte, 10)...)
	if bytes.Compare(expected, *buffer) != 0 {
		tx.Close_file(fl)
		return tools.Error(this.log, "partial sync persisted something other than the prefix")
	}
	return tx.Close_file(fl)
}

func (this *txfile_t_test_lib) Clean_folds_the_log(tx *txfile_t_src.Txfile_t) tools.Ret {
	/* two synced writes, a clean, and the log is gone while the data survives. */

	var ret, fl = tx.Open_file("test4.txt", 100)
	if ret != nil {
		return ret
	}
	var data = []byte("Testing string.\n")
	var w *txfile_t_src.Txfile_write
	if ret, w = tx.Write_file(fl, 0, &data); ret != nil {
		return ret
	}
	if ret = w.Sync_write(); ret != nil {
		return ret
	}
	if ret, w = tx.Write_file(fl, 20, &data); ret != nil {
		return ret
	}
	if ret = w.Sync_write(); ret != nil {
		return ret
	}
	if ret = tx.Close_file(fl); ret != nil {
		return ret
	}

	if ret = tx.Clean(); ret != nil {
		return ret
	}

	if ret, fl = tx.Open_file("test4.txt", 100); ret != nil {
		return ret
	}
	var buffer *[]byte
	if ret, buffer = tx.Read_file(fl, 20, 16); ret != nil {
		return ret
	}
	if bytes.Compare(data, *buffer) != 0 {
		tx.Close_file(fl)
		return tools.Error(this.log, "cleaned data didn't survive the fold")
	}
	return tx.Close_file(fl)
}

func (this *txfile_t_test_lib) Double_open_is_refused(tx *txfile_t_src.Txfile_t) tools.Ret {
	var ret, fl = tx.Open_file("test5.txt", 100)
	if ret != nil {
		return ret
	}

	var ret2, fl2 = tx.Open_file("test5.txt", 100)
	if ret2 == nil || fl2 != nil {
		tx.Close_file(fl)
		return tools.Error(this.log, "a second open of a locked file was supposed to fail")
	}
	return tx.Close_file(fl)
}
