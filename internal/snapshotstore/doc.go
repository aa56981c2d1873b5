// Package snapshotstore is an attrstore.Store persisted in BadgerDB.
//
// A snapshot is a copy of an attribute tree captured from another store,
// typically the live engine through the bridge. Extraction can then run
// offline against the snapshot, and writes can be rehearsed against it
// before they touch the engine.
//
// Every node is one key, "n:" followed by its path, holding a JSON record of
// the node's value, unit code, basis, record type and ordered child labels.
package snapshotstore
