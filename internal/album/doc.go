// Package album binds photo records to reusable grid slots.
//
// A Binder looks a photo up in the image cache and only downloads it on a
// miss. Each slot has at most one download in flight: binding another photo
// to the same slot cancels the previous download, so a slot never shows a
// photo it no longer belongs to. Completions, cache writes and sink updates
// are serialized on a Dispatcher.
package album
