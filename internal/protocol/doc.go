// Package protocol owns the call, response and event envelopes exchanged
// through the host platform, and their parcel encoding.
//
// Ownership boundary:
// - typed key/value bundles and structured records
// - envelope keys shared by every contract
// - binary wire encoding used when the host parcels a call
// - the contract error taxonomy
//
// Payload shapes are owned by the contract packages; protocol never looks
// inside a record beyond its field table.
package protocol
