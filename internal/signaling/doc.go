// Package signaling is the WebSocket surface of the call room.
//
// Each connection becomes a room endpoint. Offer, answer and ICE candidate
// frames are relayed verbatim to the other member; AI frames are answered to
// the sender only.
package signaling
