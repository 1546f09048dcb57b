// ShadowCheck - Surveillance Pattern Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

/*
Package websocket pushes live alert events to connected operator consoles.

It uses gorilla/websocket with a hub-client architecture: the Hub owns the
set of connected clients and fans each message out to them; every Client runs
a read pump (client pings and disconnect detection) and a write pump (queued
messages and keepalive pings).

Message Types:

  - alert: a newly raised surveillance alert
  - alert_updated: an alert was acknowledged or dismissed
  - job_completed: a detection job finished, with its execution summary
  - ping / pong: application-level keepalive

Slow clients whose send buffer is full are disconnected rather than allowed to
stall the broadcast. The hub runs under the supervisor through Serve.
*/
package websocket
