// ShadowCheck - Surveillance Pattern Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

package api

import (
	"github.com/tomtom215/shadowcheck/internal/contextfilter"
	"github.com/tomtom215/shadowcheck/internal/detection"
	"github.com/tomtom215/shadowcheck/internal/geo"
)

// ListAlertsRequest holds the query parameters of GET /alerts.
type ListAlertsRequest struct {
	Status string `validate:"omitempty,oneof=active acknowledged dismissed"`
	Limit  int    `validate:"min=1,max=1000"`
	Offset int    `validate:"min=0"`
}

// DismissAlertRequest is the body of POST /alerts/{id}/dismiss.
type DismissAlertRequest struct {
	FalsePositive bool   `json:"false_positive"`
	Reason        string `json:"reason" validate:"max=500"`
}

// ListAnomaliesRequest holds the query parameters of GET /anomalies.
type ListAnomaliesRequest struct {
	Status string `validate:"omitempty,oneof=pending investigating confirmed dismissed archived"`
	Type   string `validate:"omitempty,oneof=impossible_distance coordinated_movement sequential_mac aerial_signature route_correlation multi_vector government_infrastructure"`
	Limit  int    `validate:"min=1,max=1000"`
}

// UpdateStatusRequest is the body of PATCH /anomalies/{id}/status.
type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=investigating confirmed dismissed"`
	Notes  string `json:"notes" validate:"max=2000"`
}

// CorrelateRequest validates the device path parameter.
type CorrelateRequest struct {
	DeviceID string `validate:"device_id"`
}

// ZonePoint is a polygon vertex.
type ZonePoint struct {
	Lat float64 `json:"lat" validate:"latitude"`
	Lon float64 `json:"lon" validate:"longitude"`
}

// SafeZoneRequest is the body of POST /safe-zones. SensitivityFactor
// defaults to 1 and Suppress, when given, replaces the zone type's
// default suppression set.
type SafeZoneRequest struct {
	ID                string      `json:"id" validate:"omitempty,max=64"`
	Name              string      `json:"name" validate:"required,notblank,max=100"`
	ZoneType          string      `json:"zone_type" validate:"required,oneof=home work frequent"`
	Polygon           []ZonePoint `json:"polygon" validate:"min=3,max=500,dive"`
	SensitivityFactor *float64    `json:"sensitivity_factor" validate:"omitempty,gte=0,lte=1"`
	Suppress          []string    `json:"suppress" validate:"omitempty,dive,oneof=impossible_distance coordinated_movement sequential_mac aerial_signature route_correlation"`
}

func (req SafeZoneRequest) zone(id string) contextfilter.SafeZone {
	polygon := make(geo.Polygon, len(req.Polygon))
	for i, p := range req.Polygon {
		polygon[i] = geo.Point{Lat: p.Lat, Lon: p.Lon}
	}
	sensitivity := 1.0
	if req.SensitivityFactor != nil {
		sensitivity = *req.SensitivityFactor
	}
	z := contextfilter.NewSafeZone(id, req.Name, contextfilter.ZoneType(req.ZoneType), polygon, sensitivity)
	if req.Suppress != nil {
		z.Suppress = make(map[detection.AnomalyType]bool, len(req.Suppress))
		for _, t := range req.Suppress {
			z.Suppress[detection.AnomalyType(t)] = true
		}
	}
	return z
}

// RelationshipRequest is the body of PUT /relationships.
type RelationshipRequest struct {
	DeviceA        string `json:"device_a" validate:"required,device_id"`
	DeviceB        string `json:"device_b" validate:"required,device_id,nefield=DeviceA"`
	Classification string `json:"classification" validate:"required,oneof=friend neighbor threat unknown"`
	Notes          string `json:"notes" validate:"max=1000"`
}

// ExportRequest is the body of POST /export. The actor comes from X-Actor.
type ExportRequest struct {
	DeviceIDs []string `json:"device_ids" validate:"required,min=1,max=500,dive,device_id"`
	Purpose   string   `json:"purpose" validate:"required,notblank,max=500"`
}
