// Package protocol is the single-line text form of an event:
//
//	EVENT{id:<u32>,name:<name>,priority:<int>,timestamp:<unix seconds>}
//
// Payloads are not part of the wire form.
package protocol

import "errors"

const (
	prefix = "EVENT{"
	suffix = "}"

	fieldID        = "id"
	fieldName      = "name"
	fieldPriority  = "priority"
	fieldTimestamp = "timestamp"
)

// reserved cannot appear in an encoded name.
const reserved = ",{}\r\n"

// ErrMalformed wraps every decode failure.
var ErrMalformed = errors.New("malformed event line")
