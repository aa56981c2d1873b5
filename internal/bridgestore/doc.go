// Package bridgestore is an attrstore.Store backed by a live engine session
// reached over socket.io.
//
// The engine runs a small bridge process next to the simulator. Every store
// call becomes one request emitted on the "flowsync:request" event; the
// bridge answers on "flowsync:reply" with the request's id. Requests are
// strictly sequential on a handle, matching the engine session itself.
//
// A request that gets no reply within the configured timeout, or any request
// made after the socket disconnected, fails with attrstore.ErrConnectionLost.
package bridgestore
