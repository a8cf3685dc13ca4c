// Package serialization converts envelopes between their Go representation
// and the UTF-8 JSON text frames the event hub speaks.
//
// The Codec is pure and stateless: Decode(Encode(e)) reproduces e exactly
// for every valid envelope. A payload registry maps each wire tag to its Go
// payload type so consumers receive fully typed payloads rather than raw
// JSON.
package serialization
