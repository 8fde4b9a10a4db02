// Package crypto implements the end-to-end payload encryption layer:
// rotating RSA-2048 key pairs for session-key exchange, AES-256-GCM
// envelopes for request and response bodies, and HMAC-signed client
// tokens that gate access to the handshake endpoints.
//
// A Manager owns the key ring. Keys rotate on a fixed interval and a
// bounded window of old keys is retained so in-flight sessions survive
// a rotation. Readers access the ring through an atomic pointer; only
// rotation and session establishment take the write lock.
package crypto
