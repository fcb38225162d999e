// Heimdall - Network Event Ingestion and Trust Registry
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/heimdall

/*
Package websocket fans accepted events out to live observers.

The Hub keeps an ordered set of observers, each with a bounded delivery
queue, and a ring of the most recent events. Attach queues that ring as a
single history batch before the observer becomes visible to Publish, so a
new observer always sees the batch first and then every later event.

An observer whose queue stays full past the configured send timeout is
detached and its channel closed; Publish never waits on it again.

Client binds an observer to a gorilla/websocket connection. Frames look like:

	{"type":"history","data":[{...},{...}]}
	{"type":"events","data":[{...}]}

A text frame {"type":"ping"} is answered with {"type":"pong","data":null}.
*/
package websocket
