// ShadowCheck - Surveillance Pattern Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

// Package services adapts components without a context-aware Serve method
// to suture.Service. The scheduler, alert dispatcher and websocket hub
// implement Serve themselves; the HTTP server's ListenAndServe/Shutdown pair
// is wrapped by HTTPServerService.
package services
