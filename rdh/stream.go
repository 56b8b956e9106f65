// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rdh

import (
	"io"

	"golang.org/x/xerrors"
)

// Encoder writes RDH records to an output stream.
type Encoder struct {
	w   io.Writer
	buf []byte
	err error
}

// NewEncoder returns a new Encoder that writes to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{
		w:   w,
		buf: make([]byte, 0, Size),
	}
}

// Encode writes the header followed by its payload.
// The MemorySize and OffsetToNext fields are computed from the payload
// length when they are zero; the record is padded with zeros up to
// OffsetToNext.
func (enc *Encoder) Encode(hdr Header, payload []byte) error {
	if enc.err != nil {
		return enc.err
	}

	if hdr.MemorySize == 0 {
		hdr.MemorySize = uint16(Size + len(payload))
	}
	if hdr.OffsetToNext == 0 {
		hdr.OffsetToNext = hdr.MemorySize
	}
	if int(hdr.MemorySize) != Size+len(payload) {
		return xerrors.Errorf("rdh: memory size %d does not match payload size %d", hdr.MemorySize, len(payload))
	}

	enc.buf, enc.err = hdr.Append(enc.buf[:0])
	if enc.err != nil {
		return xerrors.Errorf("rdh: could not encode header: %w", enc.err)
	}
	enc.write(enc.buf)
	enc.write(payload)
	if pad := int(hdr.OffsetToNext - hdr.MemorySize); pad > 0 {
		enc.write(make([]byte, pad))
	}
	if enc.err != nil {
		return xerrors.Errorf("rdh: could not write record: %w", enc.err)
	}
	return nil
}

func (enc *Encoder) write(p []byte) {
	if enc.err != nil {
		return
	}
	_, enc.err = enc.w.Write(p)
}

// Decoder reads RDH records from an input stream.
type Decoder struct {
	r   io.Reader
	buf []byte
	err error
}

// NewDecoder returns a new Decoder that reads from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{
		r:   r,
		buf: make([]byte, Size),
	}
}

// Decode reads the next record. It returns io.EOF when the stream ends
// on a record boundary. The returned payload is only valid until the
// next call to Decode.
func (dec *Decoder) Decode() (Header, []byte, error) {
	var hdr Header
	if dec.err != nil {
		return hdr, nil, dec.err
	}

	dec.read(dec.buf[:Size])
	if dec.err != nil {
		if dec.err != io.EOF {
			dec.err = xerrors.Errorf("rdh: could not read header: %w", dec.err)
		}
		return hdr, nil, dec.err
	}

	err := hdr.UnmarshalBinary(dec.buf[:Size])
	if err != nil {
		dec.err = xerrors.Errorf("rdh: could not decode header: %w", err)
		return hdr, nil, dec.err
	}

	n := int(hdr.OffsetToNext)
	dec.reserve(n)
	dec.read(dec.buf[Size:n])
	if dec.err != nil {
		if dec.err == io.EOF {
			dec.err = io.ErrUnexpectedEOF
		}
		dec.err = xerrors.Errorf("rdh: could not read payload of %v: %w", hdr, dec.err)
		return hdr, nil, dec.err
	}

	return hdr, dec.buf[Size:hdr.MemorySize], nil
}

func (dec *Decoder) read(p []byte) {
	if dec.err != nil {
		return
	}
	_, dec.err = io.ReadFull(dec.r, p)
}

func (dec *Decoder) reserve(n int) {
	if len(dec.buf) < n {
		dec.buf = append(dec.buf, make([]byte, n-len(dec.buf))...)
	}
}
