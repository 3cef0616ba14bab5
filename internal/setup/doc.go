// Package setup manages which homeservers are registered.
//
// Devices come from two places. The config file declares devices that live
// for the whole process. Runtime entries are added through Flow.AddEntry,
// which probes the homeserver before persisting it to SQLite, and are
// restored from there on the next start. A failed check returns a
// *FlowError naming the offending field and one of the Code* values.
package setup
