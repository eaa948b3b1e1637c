// SPDX-License-Identifier: LGPL-2.1
// Copyright (C) 2021-2022 stu mark

package txfile_t_src

import (
	"os"
	"path/filepath"
	"testing"

	txfile_t_lib_entry "github.com/nixomose/txfile_t/txfile_t_lib/txfile_t_entry"
	"github.com/stretchr/testify/require"
)

func TestLogStoreMissingLogIsEmpty(t *testing.T) {
	var store = New_log_store(test_logger(), filepath.Join(t.TempDir(), "nope.txt.log"))

	var ret, transactions = store.Read_all_transactions()
	require.Nil(t, ret)
	require.Equal(t, 0, len(transactions))

	var exists bool
	ret, exists = store.Log_exists()
	require.Nil(t, ret)
	require.False(t, exists)
}

func TestLogStoreAppendAndReadBack(t *testing.T) {
	var log = test_logger()
	var log_file_path = filepath.Join(t.TempDir(), "data.txt.log")
	var store = New_log_store(log, log_file_path)

	require.Nil(t, store.Append_transaction(
		txfile_t_lib_entry.New_txfile_entry(log, 0, 10, []byte("first write"), nil)))
	require.Nil(t, store.Append_transaction(
		txfile_t_lib_entry.New_txfile_entry(log, 1, 0, []byte("second\nwrite"), nil)))

	var ret, transactions = store.Read_all_transactions()
	require.Nil(t, ret)
	require.Equal(t, 2, len(transactions))
	require.Equal(t, uint32(0), transactions[0].Get_transaction_id())
	require.Equal(t, uint64(10), transactions[0].Get_offset())
	require.Equal(t, []byte("first write"), transactions[0].Get_new_data())
	require.Equal(t, uint32(1), transactions[1].Get_transaction_id())
	require.Equal(t, []byte("second\nwrite"), transactions[1].Get_new_data())

	// each append is flushed before the call returns, the file is already whole
	var data, err = os.ReadFile(log_file_path)
	require.NoError(t, err)
	require.Equal(t, []byte("0 10 11 first write1 0 12 second\nwrite"), data)
}

func TestLogStoreTornTailStopsAtLastWholeRecord(t *testing.T) {
	var log = test_logger()
	var log_file_path = filepath.Join(t.TempDir(), "data.txt.log")
	var store = New_log_store(log, log_file_path)

	require.Nil(t, store.Append_transaction(
		txfile_t_lib_entry.New_txfile_entry(log, 0, 0, []byte("whole"), nil)))

	// simulate a crash mid-append, the tail record promises 20 bytes and has 3
	var fh, err = os.OpenFile(log_file_path, os.O_WRONLY|os.O_APPEND, 0644)
	require.NoError(t, err)
	_, err = fh.Write([]byte("1 0 20 abc"))
	require.NoError(t, err)
	require.NoError(t, fh.Close())

	var ret, transactions = store.Read_all_transactions()
	require.Nil(t, ret)
	require.Equal(t, 1, len(transactions))
	require.Equal(t, []byte("whole"), transactions[0].Get_new_data())
}

func TestLogStoreDelete(t *testing.T) {
	var log = test_logger()
	var log_file_path = filepath.Join(t.TempDir(), "data.txt.log")
	var store = New_log_store(log, log_file_path)

	// deleting a log that isn't there is a failure, cleanup relies on knowing
	require.NotNil(t, store.Delete_log())

	require.Nil(t, store.Append_transaction(
		txfile_t_lib_entry.New_txfile_entry(log, 0, 0, []byte("x"), nil)))
	var ret, exists = store.Log_exists()
	require.Nil(t, ret)
	require.True(t, exists)

	require.Nil(t, store.Delete_log())
	ret, exists = store.Log_exists()
	require.Nil(t, ret)
	require.False(t, exists)
}
