// Copyright 2025 Superior Networks
// SPDX-License-Identifier: Apache-2.0

// Package garagesync provides the backend half of the vehicle maintenance
// manager: a row store abstraction over named collections, a request router
// exposing CRUD semantics over HTTP, and blob storage for receipt images.
package garagesync

// Collection names served by the backend.
const (
	ColVehicles    = "vehicles"
	ColMaintenance = "maintenance"
	ColReceipts    = "receipts"
	ColReminders   = "reminders"
)

// Maintenance type enum values accepted for maintenance records.
var MaintenanceTypes = []string{
	"oil_change", "tire_rotation", "brake_service", "transmission_service",
	"coolant_flush", "air_filter", "spark_plugs", "battery", "inspection",
	"repair", "other",
}

// Receipt category enum values.
var ReceiptCategories = []string{
	"oil_change", "tire_service", "brake_service", "engine_repair",
	"transmission", "inspection", "parts", "other",
}

// Collection describes one synced table: the primary key field, the
// timestamp field consulted by since-filtered scans, the fields a
// mutation must carry, and per-field enums a present value must match.
type Collection struct {
	Name       string
	KeyField   string
	FreshField string
	Required   []string
	Enums      map[string][]string
}

// Collections returns every collection the backend serves, vehicles first.
// Dependent collections reference vehicles through soft vehicle_id fields;
// dangling references are tolerated.
func Collections() []Collection {
	return []Collection{
		{
			Name:       ColVehicles,
			KeyField:   "vehicle_id",
			FreshField: "last_updated",
			Required:   []string{"make", "model"},
		},
		{
			Name:       ColMaintenance,
			KeyField:   "log_id",
			FreshField: "created_date",
			Required:   []string{"vehicle_id", "type", "service_date"},
			Enums:      map[string][]string{"type": MaintenanceTypes},
		},
		{
			Name:       ColReceipts,
			KeyField:   "receipt_id",
			FreshField: "created_date",
			Required:   []string{"vehicle_id", "amount"},
			Enums:      map[string][]string{"category": ReceiptCategories},
		},
		{
			Name:       ColReminders,
			KeyField:   "reminder_id",
			FreshField: "created_date",
			Required:   []string{"vehicle_id", "due_date"},
		},
	}
}

// CollectionByName looks up a collection spec by its wire name.
func CollectionByName(name string) (Collection, bool) {
	for _, c := range Collections() {
		if c.Name == name {
			return c, true
		}
	}
	return Collection{}, false
}
