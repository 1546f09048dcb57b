// ShadowCheck - Surveillance Pattern Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

package alerting

import (
	"fmt"
	"strings"

	"github.com/tomtom215/shadowcheck/internal/anomaly"
	"github.com/tomtom215/shadowcheck/internal/detection"
)

type alertText struct {
	title   string
	summary string
	actions []string
}

var textByType = map[detection.AnomalyType]alertText{
	detection.TypeImpossibleDistance: {
		title:   "Impossible movement",
		summary: "moved between two points faster than ground travel allows",
		actions: []string{
			"Check whether the two fixes came from different physical transmitters sharing an address",
			"Review the device's recent sightings for address cloning",
		},
	},
	detection.TypeCoordinatedMovement: {
		title:   "Coordinated movement",
		summary: "travelled together with other devices between the same start and end points",
		actions: []string{
			"Compare the group's route with your own movements",
			"Look for the same device group on other days",
		},
	},
	detection.TypeSequentialMac: {
		title:   "Sequential hardware addresses",
		summary: "belongs to a run of consecutively numbered addresses typical of fleet provisioning",
		actions: []string{
			"Review manufacturer and naming of every device in the sequence",
			"Run a government infrastructure correlation on the members",
		},
	},
	detection.TypeAerialSignature: {
		title:   "Aerial signature",
		summary: "shows a climbing, straight and fast track consistent with an aircraft",
		actions: []string{
			"Compare the track with public flight data for the time span",
			"Check whether the device reappears over your locations",
		},
	},
	detection.TypeRouteCorrelation: {
		title:   "Device following your route",
		summary: "repeatedly appeared where you had just been",
		actions: []string{
			"Treat as possible physical surveillance and vary your route",
			"Record further sightings and classify the device if it is known",
			"Consider contacting a qualified security professional",
		},
	},
	detection.TypeMultiVector: {
		title:   "Multiple surveillance indicators",
		summary: "triggered several independent detectors",
		actions: []string{
			"Review every contributing anomaly for the device",
			"Prioritise this device for investigation",
		},
	},
	detection.TypeGovernmentInfrastructure: {
		title:   "Probable government infrastructure",
		summary: "matches government or tactical deployment indicators",
		actions: []string{
			"Verify the correlation manually before acting on it",
			"Preserve the evidence bundle for this device",
		},
	},
}

// compose builds the human-readable parts of an alert.
func compose(a *anomaly.SurveillanceAnomaly) (title, description string, actions []string) {
	text, ok := textByType[a.Type]
	if !ok {
		text = alertText{title: "Surveillance anomaly", summary: "was flagged by a detector"}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Device %s %s", a.PrimaryDevice, text.summary)
	if n := len(a.RelatedDevices); n > 0 {
		fmt.Fprintf(&b, " (%d related device", n)
		if n > 1 {
			b.WriteString("s")
		}
		b.WriteString(")")
	}
	fmt.Fprintf(&b, ". Confidence %.0f%%, evidence %s, priority %d/10.",
		a.Confidence*100, strings.ReplaceAll(string(a.Strength), "_", " "), a.Priority)

	return fmt.Sprintf("%s: %s", text.title, a.PrimaryDevice), b.String(), append([]string(nil), text.actions...)
}
