// Heimdall - Network Event Ingestion and Trust Registry
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/heimdall

// Package services adapts Heimdall components to suture.Service.
//
// Every service returns ctx.Err() on a requested stop and a wrapped error on
// failure, which suture answers with a restart.
package services
