// SPDX-License-Identifier: LGPL-2.1
// Copyright (C) 2021-2022 stu mark

package txfile_t_lib

import (
	"bufio"
	"bytes"
	"io"
	"strconv"

	"github.com/nixomose/nixomosegotools/tools"
)

type Txfile_t_entry struct {
	log *tools.Nixomosetools_logger

	/* this is one write transaction. it lives in the transaction manager's uncommitted
	list until it either gets committed (appended to the log file) or aborted (the old
	data gets copied back over the segment).
	the old data only ever exists in memory, it is never written to the log, all we ever
	need it for is abort, and once you've committed you can't abort anymore.
	that also means the log only has to store the new data, which is why replaying a log
	can't undo anything, it can only roll the file forwards. */

	m_transaction_id uint32 // assigned by the transaction manager, monotonically increasing, never reused within a manager
	m_offset         uint64 // byte position in the segment this write lands at

	m_old_data []byte /* the bytes that were in the segment at m_offset before this write clobbered them.
	this is the undo data. its length is capped at however much of the write range actually
	existed in the segment at create time, so a write entirely past the end has no old data at all. */

	m_new_data []byte // the redo data, exactly what the caller asked us to write.
}

func New_txfile_entry(l *tools.Nixomosetools_logger, transaction_id uint32, offset uint64,
	new_data []byte, old_data []byte) *Txfile_t_entry {

	var e Txfile_t_entry
	e.log = l
	e.m_transaction_id = transaction_id
	e.m_offset = offset
	e.m_new_data = new_data
	e.m_old_data = old_data
	return &e
}

func New_txfile_entry_for_deserialize(l *tools.Nixomosetools_logger) *Txfile_t_entry {
	/* make an empty one that deserialize can fill in. the old data stays empty because
	it is never persisted, there's nothing in the log to fill it in from. */
	var e Txfile_t_entry
	e.log = l
	return &e
}

func (this *Txfile_t_entry) Get_transaction_id() uint32 {
	return this.m_transaction_id
}

func (this *Txfile_t_entry) Get_offset() uint64 {
	return this.m_offset
}

func (this *Txfile_t_entry) Get_new_data() []byte {
	return this.m_new_data
}

func (this *Txfile_t_entry) Get_old_data() []byte {
	return this.m_old_data
}

func (this *Txfile_t_entry) Truncate_new_data(length uint64) tools.Ret {
	/* partial commit support. the caller asked to make only the first length bytes of
	this write durable, so narrow the redo data before it goes in the log. the segment
	already has the whole write applied to it and stays that way. */
	if length > uint64(len(this.m_new_data)) {
		return tools.Error(this.log, "trying to truncate transaction ", this.m_transaction_id,
			" to ", length, " bytes but it only has ", len(this.m_new_data), " bytes of new data")
	}
	this.m_new_data = this.m_new_data[0:length]
	return nil
}

func (this *Txfile_t_entry) Serialized_size() uint64 {
	/* the size in bytes of what serialize below produces for this entry. the three
	numbers are variable width decimal so we have to actually measure them. */
	var retval uint64 = uint64(len(strconv.FormatUint(uint64(this.m_transaction_id), 10)))
	retval += uint64(len(strconv.FormatUint(this.m_offset, 10)))
	retval += uint64(len(strconv.FormatUint(uint64(len(this.m_new_data)), 10)))
	retval += 3 // one separator byte after each number
	retval += uint64(len(this.m_new_data))
	return retval
}

func (this *Txfile_t_entry) Serialize() (tools.Ret, *bytes.Buffer) {
	/* the on disk log record format:

	   <transaction_id> <offset> <new_data_length> <new_data_bytes>

	   three ascii decimal numbers each followed by a single separator byte, then the
	   new data raw, exactly new_data_length bytes of it. the payload is not framed or
	   escaped in any way, it's length-prefixed by the third number, so it can contain
	   any byte at all including spaces and newlines and zeroes.
	   records get appended back to back with nothing in between, the byte after this
	   record's payload is the first digit of the next record's transaction id.
	   the old data is deliberately not serialized. */

	var bb *bytes.Buffer = bytes.NewBuffer(make([]byte, 0, this.Serialized_size()))
	bb.WriteString(strconv.FormatUint(uint64(this.m_transaction_id), 10))
	bb.WriteByte(' ')
	bb.WriteString(strconv.FormatUint(this.m_offset, 10))
	bb.WriteByte(' ')
	bb.WriteString(strconv.FormatUint(uint64(len(this.m_new_data)), 10))
	bb.WriteByte(' ')
	bb.Write(this.m_new_data)
	return nil, bb
}

func (this *Txfile_t_entry) Deserialize_from(log *tools.Nixomosetools_logger, r *bufio.Reader) (tools.Ret, bool) {
	/* read one record out of the stream into this entry.
	   returns (nil, false) on a clean end of stream, meaning eof showed up before the
	   first digit of a transaction id, which is the one and only way a log ends well.
	   eof anywhere else means a torn record and that's an error.
	   keep in mind there is no way to tell a torn final record from a corrupted one,
	   the format has no checksum, we just stop at the last whole record we got. */

	var ret tools.Ret
	var value uint64
	var found bool

	if ret, value, found = read_decimal_field(log, r, true); ret != nil {
		return ret, false
	}
	if found == false {
		return nil, false // clean eof, no more records
	}
	this.m_transaction_id = uint32(value)

	if ret, value, _ = read_decimal_field(log, r, false); ret != nil {
		return ret, false
	}
	this.m_offset = value

	var new_data_length uint64
	if ret, new_data_length, _ = read_decimal_field(log, r, false); ret != nil {
		return ret, false
	}

	/* now the payload, read exactly new_data_length bytes verbatim, whitespace and
	null bytes are data here, not separators. */
	this.m_new_data = make([]byte, new_data_length)
	var _, err = io.ReadFull(r, this.m_new_data)
	if err != nil {
		return tools.Error(log, "unable to read ", new_data_length, " bytes of transaction new data ",
			"for transaction ", this.m_transaction_id, ": ", err), false
	}
	this.m_old_data = nil
	return nil, true
}

func read_decimal_field(log *tools.Nixomosetools_logger, r *bufio.Reader, first_field bool) (tools.Ret, uint64, bool) {
	/* read ascii digits up to and including the single separator byte that follows them.
	   whatever the first non-digit byte is, that's the separator and it gets consumed,
	   exactly one of it.
	   if eof arrives before the first byte of the first field of a record, that's the
	   normal end of the log and we report not-found instead of an error. */

	var digits []byte
	for {
		var b, err = r.ReadByte()
		if err != nil {
			if err == io.EOF {
				if len(digits) == 0 {
					if first_field {
						return nil, 0, false
					}
					return tools.Error(log, "log record ended in the middle of a numeric field"), 0, false
				}
				// eof right after the digits, the separator and payload are missing
				return tools.Error(log, "log record ended before the separator after a numeric field"), 0, false
			}
			return tools.Error(log, "unable to read log record field: ", err), 0, false
		}
		if b >= '0' && b <= '9' {
			digits = append(digits, b)
			continue
		}
		// first non-digit byte is the separator, consume it and stop
		break
	}
	if len(digits) == 0 {
		return tools.Error(log, "log record field does not start with a digit"), 0, false
	}
	var value, err = strconv.ParseUint(string(digits), 10, 64)
	if err != nil {
		return tools.Error(log, "unable to parse log record field ", string(digits), ": ", err), 0, false
	}
	return nil, value, true
}
