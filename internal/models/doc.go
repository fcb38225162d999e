// Heimdall - Network Event Ingestion and Trust Registry
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/heimdall

/*
Package models defines the records Heimdall ingests, tracks and broadcasts,
and the error kinds shared across components.

Records:

  - Event: one observed network flow with its verdict. Immutable once stored.
  - Node: a network endpoint keyed by address, carrying a trust score in [0,100].
  - Rule: an administrative block (or allow) entry for an address.

Errors are sentinels matched with errors.Is. Storage failures always match
ErrStorage; a storage deadline additionally matches ErrTimeout.
*/
package models
