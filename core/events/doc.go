// Package events provides the typed publish/subscribe channel for sync and
// download lifecycle events.
//
// The bus is deliberately dumb: it fans events out to subscribers and drops
// them for slow consumers rather than applying backpressure, so emitting
// progress can never stall a sync or a download.
package events
