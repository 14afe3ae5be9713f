// Package d200 implements the HID wire protocol of the Ulanzi D200 14-key
// stream deck: fixed 1024-byte reports framed by a 0x7C 0x7C header, chunked
// bundle transfers and inbound button reports.
package d200

import (
	"encoding/hex"
	"fmt"
	"strings"
)

const (
	VendorID  uint16 = 0x2207
	ProductID uint16 = 0x0019

	PacketSize        = 1024
	HeaderSize        = 8
	FirstChunkPayload = PacketSize - HeaderSize // 1016

	Header0 = 0x7C
	Header1 = 0x7C

	// ButtonCount includes the wide small-window key (index 13).
	ButtonCount = 14
	// TileButtons are the regular square keys addressable by pages.
	TileButtons = 13

	// MaxLabelStyle is the largest label-style JSON document the firmware accepts.
	MaxLabelStyle = 4096
)

// Command is the big-endian command code at bytes 2..3 of every first packet.
type Command uint16

const (
	CmdSetButtons     Command = 0x0001
	CmdSetSmallWindow Command = 0x0006
	CmdSetBrightness  Command = 0x000A
	CmdSetLabelStyle  Command = 0x000B
	CmdPartialUpdate  Command = 0x000D

	CmdButton     Command = 0x0101
	CmdButtonAlt  Command = 0x0102
	CmdDeviceInfo Command = 0x0303
)

func (c Command) String() string {
	switch c {
	case CmdSetButtons:
		return "SET_BUTTONS"
	case CmdSetSmallWindow:
		return "SET_SMALL_WINDOW"
	case CmdSetBrightness:
		return "SET_BRIGHTNESS"
	case CmdSetLabelStyle:
		return "SET_LABEL_STYLE"
	case CmdPartialUpdate:
		return "PARTIAL_UPDATE"
	case CmdButton:
		return "BUTTON"
	case CmdButtonAlt:
		return "BUTTON_ALT"
	case CmdDeviceInfo:
		return "DEVICE_INFO"
	}
	return fmt.Sprintf("0x%04X", uint16(c))
}

// IsButton reports whether c carries a button transition.
func (c Command) IsButton() bool {
	return c == CmdButton || c == CmdButtonAlt
}

// EncodeReportToString renders bytes as dash separated hex for debug logs.
func EncodeReportToString(b []byte) string {
	hexDigits := hex.EncodeToString(b)
	var builder strings.Builder
	for i, r := range hexDigits {
		if i > 0 && i%2 == 0 {
			builder.WriteString("-")
		}
		builder.WriteRune(r)
	}
	return builder.String()
}
