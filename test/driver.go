// SPDX-License-Identifier: LGPL-2.1
// Copyright (C) 2021-2022 stu mark

package main

import (
	"os"

	"github.com/nixomose/nixomosegotools/tools"
	"github.com/nixomose/txfile_t/txfile_t_lib/txfile_t_src"
)

/* this driver stands the whole engine up against a scratch directory and runs the
   interesting flows end to end: sync and read back across a reopen, abort, partial
   sync, cleaning, and the double-open refusal.
   it's not the test suite, the _test.go files are the test suite, this is the thing
   you run by hand when you want to watch the engine do its thing with the verbose
   logging turned up. */

const testdir string = "/tmp/txfile_t_driver"

func main() {

	var log *tools.Nixomosetools_logger = tools.New_Nixomosetools_logger(tools.DEBUG)

	os.RemoveAll(testdir)

	var tx *txfile_t_src.Txfile_t = txfile_t_src.Txfile_init(testdir, true)
	if tx == nil {
		log.Error("unable to initialize txfile directory ", testdir)
		os.Exit(1)
	}

	var lib txfile_t_test_lib = New_txfile_t_test_lib(log)

	var ret tools.Ret
	if ret = lib.Write_sync_read_back(tx); ret != nil {
		log.Error("write/sync/read back test failed: ", ret.Get_errmsg())
		os.Exit(1)
	}
	if ret = lib.Abort_restores(tx); ret != nil {
		log.Error("abort test failed: ", ret.Get_errmsg())
		os.Exit(1)
	}
	if ret = lib.Partial_sync(tx); ret != nil {
		log.Error("partial sync test failed: ", ret.Get_errmsg())
		os.Exit(1)
	}
	if ret = lib.Clean_folds_the_log(tx); ret != nil {
		log.Error("clean test failed: ", ret.Get_errmsg())
		os.Exit(1)
	}
	if ret = lib.Double_open_is_refused(tx); ret != nil {
		log.Error("double open test failed: ", ret.Get_errmsg())
		os.Exit(1)
	}

	/* and one final clean so the scratch directory ends up with no logs in it at all. */
	if ret = tx.Clean(); ret != nil {
		log.Error("final clean failed: ", ret.Get_errmsg())
		os.Exit(1)
	}

	log.Info("all driver tests passed")
}
