// Package at owns the HFP AT command wire contract.
//
// Ownership boundary:
// - inbound command framing and decode
// - outbound result code encode
// - the Codec boundary consumed by the service level connection
package at
