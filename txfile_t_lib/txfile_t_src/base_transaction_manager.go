// SPDX-License-Identifier: LGPL-2.1
// Copyright (C) 2021-2022 stu mark

/* this is the base transaction manager, the in-memory half of the engine.
   it owns the virtual memory segment, which is just a growable byte array that is
   the logical contents of the file for this process, and the table of uncommitted
   transactions sitting on top of it.
   the segment starts out as whatever got read off the disk when the file was opened
   and every write lands on it immediately, committed or not. readers see the segment
   and only the segment. the segment only ever grows, a write past the end stretches
   it and the gap reads back as zeroes, and aborting that write does not shrink it
   back down. nothing here ever writes the segment back to the file, only committed
   log records ever make it to disk, and only by way of cleanup. */

// package name must match directory name
package txfile_t_src

import (
	"github.com/nixomose/nixomosegotools/tools"
	txfile_t_lib_entry "github.com/nixomose/txfile_t/txfile_t_lib/txfile_t_entry"
	txfile_t_lib_interfaces "github.com/nixomose/txfile_t/txfile_t_lib/txfile_t_interfaces"
)

type Base_transaction_manager struct {
	log *tools.Nixomosetools_logger

	/* the next transaction id to hand out. starts at zero for every fresh manager and
	is not persisted anywhere, so ids in a log can repeat across sessions. that's fine,
	an id only means anything inside the live manager that handed it out, replay never
	looks at them. */
	m_total_transaction_count uint32

	m_vm_segment []byte // the virtual memory segment. grows, never shrinks.

	m_uncommitted_transactions []*txfile_t_lib_entry.Txfile_t_entry // in creation order
}

// verify that base_transaction_manager implements the transaction manager interface
var _ txfile_t_lib_interfaces.Transaction_manager_interface = &Base_transaction_manager{}
var _ txfile_t_lib_interfaces.Transaction_manager_interface = (*Base_transaction_manager)(nil)

func New_base_transaction_manager(l *tools.Nixomosetools_logger, vm_segment []byte) *Base_transaction_manager {
	/* the caller hands us the initial segment, which for a real file is the on disk
	contents read out at the declared length. we take ownership of it. */
	var m Base_transaction_manager
	m.log = l
	m.m_vm_segment = vm_segment
	m.m_uncommitted_transactions = make([]*txfile_t_lib_entry.Txfile_t_entry, 0)
	return &m
}

func (this *Base_transaction_manager) Create_transaction(offset uint64, new_data *[]byte) (tools.Ret, uint32) {
	/* stage a write. capture the undo data first, which is whatever part of the write
	   range already existed in the segment, then grow the segment if the write runs past
	   the end, then lay the new data down and remember the transaction. */

	var length uint64 = uint64(len(*new_data))

	var old_data_length uint64 = 0
	if offset < uint64(len(this.m_vm_segment)) {
		old_data_length = uint64(len(this.m_vm_segment)) - offset
		if old_data_length > length {
			old_data_length = length
		}
	}
	var old_data []byte = make([]byte, old_data_length)
	if old_data_length > 0 {
		copy(old_data, this.m_vm_segment[offset:offset+old_data_length])
	}

	if offset+length > uint64(len(this.m_vm_segment)) {
		/* stretch the segment out to cover the write, the newly grown bytes between the
		old end and the write offset come up as zeroes. */
		var grown []byte = make([]byte, offset+length)
		copy(grown, this.m_vm_segment)
		this.m_vm_segment = grown
	}

	var new_data_copy []byte = make([]byte, length)
	copy(new_data_copy, *new_data)
	copy(this.m_vm_segment[offset:offset+length], new_data_copy)

	var transaction_id uint32 = this.m_total_transaction_count
	this.m_total_transaction_count++

	var e = txfile_t_lib_entry.New_txfile_entry(this.log, transaction_id, offset, new_data_copy, old_data)
	this.m_uncommitted_transactions = append(this.m_uncommitted_transactions, e)

	this.log.Debug("created transaction ", transaction_id, " at offset ", offset, " length ", length,
		" with ", old_data_length, " bytes of old data, segment is now ", len(this.m_vm_segment), " bytes")
	return nil, transaction_id
}

func (this *Base_transaction_manager) Abort_transaction(transaction_id uint32) tools.Ret {
	/* put back what the write displaced and forget the transaction ever happened.
	   note the segment does not shrink even if creating this transaction grew it,
	   growth is one way. a transaction that already committed isn't in this table
	   anymore so you can't abort it, same for an id we never handed out. */

	for pos, e := range this.m_uncommitted_transactions {
		if e.Get_transaction_id() != transaction_id {
			continue
		}
		var old_data []byte = e.Get_old_data()
		var offset uint64 = e.Get_offset()
		copy(this.m_vm_segment[offset:offset+uint64(len(old_data))], old_data)
		this.m_uncommitted_transactions = append(this.m_uncommitted_transactions[0:pos],
			this.m_uncommitted_transactions[pos+1:]...)
		this.log.Debug("aborted transaction ", transaction_id, ", restored ", len(old_data),
			" bytes at offset ", offset)
		return nil
	}
	return tools.Error(this.log, "unable to abort transaction ", transaction_id,
		", it is not in the uncommitted transaction list")
}

func (this *Base_transaction_manager) Replay_transactions(transactions []*txfile_t_lib_entry.Txfile_t_entry) tools.Ret {
	/* roll a pile of already-committed records forward onto the segment.
	   these came out of a log so they are done deals, they make no undo data and no
	   table entries, they just overwrite.
	   first find the furthest byte any record reaches and grow the segment once up
	   front, then apply them in the order given, which is commit order, so the last
	   writer to an overlapping range wins just like it did when the writes happened. */

	var max_end uint64 = 0
	for _, e := range transactions {
		var end uint64 = e.Get_offset() + uint64(len(e.Get_new_data()))
		if end > max_end {
			max_end = end
		}
	}
	if len(transactions) == 0 {
		return nil
	}

	if max_end > uint64(len(this.m_vm_segment)) {
		var grown []byte = make([]byte, max_end)
		copy(grown, this.m_vm_segment)
		this.m_vm_segment = grown
	}

	for _, e := range transactions {
		var offset uint64 = e.Get_offset()
		copy(this.m_vm_segment[offset:offset+uint64(len(e.Get_new_data()))], e.Get_new_data())
	}
	this.log.Debug("replayed ", len(transactions), " transactions, segment is now ",
		len(this.m_vm_segment), " bytes")
	return nil
}

func (this *Base_transaction_manager) Get_vm_segment() *[]byte {
	return &this.m_vm_segment
}

func (this *Base_transaction_manager) get_uncommitted_transaction_pos(transaction_id uint32) int {
	// first match wins, -1 for not there
	for pos, e := range this.m_uncommitted_transactions {
		if e.Get_transaction_id() == transaction_id {
			return pos
		}
	}
	return -1
}
