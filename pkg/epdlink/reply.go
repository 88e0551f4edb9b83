// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package epdlink

import "encoding/binary"

// StartReply is the device answer to a Start frame
type StartReply struct {
	Command   uint8
	SlotColor uint8
	Status    StartStatus
	Reserved  uint8
}

// DataReply is the device answer to a completed page
type DataReply struct {
	Command   uint8
	SlotColor uint8
	PageSeq   uint8
	Status    DataStatus
}

// EndReply is the device answer to the End frame
type EndReply struct {
	Command   uint8
	SlotColor uint8
}

// DecodeStartReply parses a 10-byte Start reply
func DecodeStartReply(data []byte) (*StartReply, error) {
	if err := checkReply("start-reply", data, StartReplySize); err != nil {
		return nil, err
	}
	if m := binary.LittleEndian.Uint32(data[6:10]); m != EndMagicDev {
		return nil, &DecodeError{Kind: "start-reply", Reason: ErrBadEndMagic, Want: EndMagicDev, Got: m}
	}
	return &StartReply{
		Command:   data[2],
		SlotColor: data[3],
		Status:    StartStatus(data[4]),
		Reserved:  data[5],
	}, nil
}

// DecodeDataReply parses a 6-byte page reply. The page reply carries no
// trailing magic.
func DecodeDataReply(data []byte) (*DataReply, error) {
	if err := checkReply("data-reply", data, DataReplySize); err != nil {
		return nil, err
	}
	return &DataReply{
		Command:   data[2],
		SlotColor: data[3],
		PageSeq:   data[4],
		Status:    DataStatus(data[5]),
	}, nil
}

// DecodeEndReply parses an 8-byte End reply
func DecodeEndReply(data []byte) (*EndReply, error) {
	if err := checkReply("end-reply", data, EndReplySize); err != nil {
		return nil, err
	}
	if m := binary.LittleEndian.Uint32(data[4:8]); m != EndMagicDev {
		return nil, &DecodeError{Kind: "end-reply", Reason: ErrBadEndMagic, Want: EndMagicDev, Got: m}
	}
	return &EndReply{Command: data[2], SlotColor: data[3]}, nil
}

func checkReply(kind string, data []byte, size int) error {
	if len(data) != size {
		return &DecodeError{Kind: kind, Reason: ErrLength, Want: uint32(size), Got: uint32(len(data))}
	}
	if m := binary.LittleEndian.Uint16(data[0:2]); m != MagicDevice {
		return &DecodeError{Kind: kind, Reason: ErrBadMagic, Want: MagicDevice, Got: uint32(m)}
	}
	return nil
}

// EncodeStartReply builds a Start reply as the device sends it
func EncodeStartReply(slotColor uint8, status StartStatus) []byte {
	buf := make([]byte, StartReplySize)
	binary.LittleEndian.PutUint16(buf[0:2], MagicDevice)
	buf[2] = CmdStart
	buf[3] = slotColor
	buf[4] = uint8(status)
	binary.LittleEndian.PutUint32(buf[6:10], EndMagicDev)
	return buf
}

// EncodeDataReply builds a page reply as the device sends it
func EncodeDataReply(slotColor, pageSeq uint8, status DataStatus) []byte {
	buf := make([]byte, DataReplySize)
	binary.LittleEndian.PutUint16(buf[0:2], MagicDevice)
	buf[2] = CmdData
	buf[3] = slotColor
	buf[4] = pageSeq
	buf[5] = uint8(status)
	return buf
}

// EncodeEndReply builds an End reply as the device sends it
func EncodeEndReply(slotColor uint8) []byte {
	buf := make([]byte, EndReplySize)
	binary.LittleEndian.PutUint16(buf[0:2], MagicDevice)
	buf[2] = CmdEnd
	buf[3] = slotColor
	binary.LittleEndian.PutUint32(buf[4:8], EndMagicDev)
	return buf
}
