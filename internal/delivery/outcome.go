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

package delivery

// Outcome classifies a single-recipient delivery attempt. Every failure
// inside the delivery unit maps onto exactly one of these; transport
// errors never escape upward in any other form.
type Outcome int

const (
	// OutcomeOK is a successful store delivery.
	OutcomeOK Outcome = iota
	// OutcomeDelivered is a successful delivery for which the sender
	// requested a delivery receipt and none of the suppress bits block it.
	OutcomeDelivered
	// OutcomeNoUser means the address belongs to a local domain but no
	// mailbox exists for it.
	OutcomeNoUser
	// OutcomeMailboxFull is a store-side quota rejection.
	OutcomeMailboxFull
	// OutcomeTransient covers directory errors, file-system errors and
	// store transport errors; the message goes to the retry cache.
	OutcomeTransient
	// OutcomePermanent covers digest and import failures; the message is
	// bounced, not retried.
	OutcomePermanent
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeDelivered:
		return "delivered"
	case OutcomeNoUser:
		return "no user"
	case OutcomeMailboxFull:
		return "mailbox full"
	case OutcomeTransient:
		return "transient failure"
	case OutcomePermanent:
		return "permanent error"
	}
	return "unknown"
}
