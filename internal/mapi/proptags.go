/*
Oxmail Groupware Server - Exchange-compatible groupware and mail suite.
Copyright © 2021-2024 The Oxmail Authors

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

// Package mapi holds the property model of the message store: property
// tags, tagged value lists, NT timestamps, the named-property resolver and
// the per-import arena.
package mapi

// PropTag is the 32-bit property identifier: 16-bit property ID in the high
// word, 16-bit type code in the low word.
type PropTag uint32

// Property types used by this repository.
const (
	PtUnspecified PropTag = 0x0000
	PtInt32       PropTag = 0x0003
	PtBoolean     PropTag = 0x000B
	PtInt64       PropTag = 0x0014
	PtString8     PropTag = 0x001E
	PtUnicode     PropTag = 0x001F
	PtSystime     PropTag = 0x0040
	PtBinary      PropTag = 0x0102
)

// Property tags, MS-OXPROPS values.
const (
	TagImportance                        PropTag = 0x00170003
	TagMessageClass                      PropTag = 0x001A001F
	TagSubject                           PropTag = 0x0037001F
	TagClientSubmitTime                  PropTag = 0x00390040
	TagSentRepresentingName              PropTag = 0x0042001F
	TagTransportMessageHeaders           PropTag = 0x007D001F
	TagOriginatorDeliveryReportRequested PropTag = 0x0C08000B
	TagSenderName                        PropTag = 0x0C1A001F
	TagDisplayCc                         PropTag = 0x0E03001F
	TagDisplayTo                         PropTag = 0x0E04001F
	TagMessageDeliveryTime               PropTag = 0x0E060040
	TagBody                              PropTag = 0x1000001F
	TagInternetMessageID                 PropTag = 0x1035001F
	TagAutoResponseSuppress              PropTag = 0x3FDF0003
	TagSenderSmtpAddress                 PropTag = 0x5D01001F
	TagReceivedBySmtpAddress             PropTag = 0x5D07001F
	TagChangeNumber                      PropTag = 0x67A40014
	TagAttachDataBinary                  PropTag = 0x37010102
	TagAttachFilename                    PropTag = 0x3704001F
	TagAttachMimeTag                     PropTag = 0x370E001F
)

// Bits of TagAutoResponseSuppress, MS-OXCMAIL §2.1.3.2.20.
const (
	SuppressDR        uint32 = 0x00000001
	SuppressNDR       uint32 = 0x00000002
	SuppressRN        uint32 = 0x00000004
	SuppressNRN       uint32 = 0x00000008
	SuppressOOF       uint32 = 0x00000010
	SuppressAutoReply uint32 = 0x00000020
	SuppressAll       uint32 = 0xFFFFFFFF
)

// PropID extracts the 16-bit property ID.
func (t PropTag) PropID() uint16 {
	return uint16(t >> 16)
}

// PropType extracts the 16-bit type code.
func (t PropTag) PropType() uint16 {
	return uint16(t & 0xFFFF)
}
