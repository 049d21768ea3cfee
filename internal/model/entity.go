package model

import (
	"encoding/json"
	"fmt"
)

// EntityType enumerates the domain record kinds that can be queued for sync.
// The set is closed: every variant has a local collection and a merge policy.
type EntityType int

const (
	EntityPatient EntityType = iota + 1
	EntityAppointment
	EntityPrescription
	EntityLabTest
	EntityDoctor
	EntityBilling
	EntityInventory
)

var entityNames = map[EntityType]string{
	EntityPatient:      "patients",
	EntityAppointment:  "appointments",
	EntityPrescription: "prescriptions",
	EntityLabTest:      "labTests",
	EntityDoctor:       "doctors",
	EntityBilling:      "billing",
	EntityInventory:    "inventory",
}

// AllEntityTypes returns every entity type in declaration order.
func AllEntityTypes() []EntityType {
	return []EntityType{
		EntityPatient,
		EntityAppointment,
		EntityPrescription,
		EntityLabTest,
		EntityDoctor,
		EntityBilling,
		EntityInventory,
	}
}

// String returns the wire name, which doubles as the local collection name
// and the path segment used by the conflict endpoints.
func (t EntityType) String() string {
	if name, ok := entityNames[t]; ok {
		return name
	}
	return fmt.Sprintf("EntityType(%d)", int(t))
}

// Collection returns the Local Store collection holding records of this type.
func (t EntityType) Collection() string {
	return t.String()
}

// Valid reports whether t is one of the declared variants.
func (t EntityType) Valid() bool {
	_, ok := entityNames[t]
	return ok
}

// ParseEntityType resolves a wire name. The singular form is accepted too
// ("patient" and "patients" both map to EntityPatient).
func ParseEntityType(s string) (EntityType, error) {
	for t, name := range entityNames {
		if s == name || s+"s" == name {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown entity type %q", s)
}

// MarshalJSON encodes the entity type by name.
func (t EntityType) MarshalJSON() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("invalid entity type %d", int(t))
	}
	return json.Marshal(t.String())
}

// UnmarshalJSON decodes an entity type name.
func (t *EntityType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("entity type: %w", err)
	}
	parsed, err := ParseEntityType(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// UnmarshalYAML lets scenario files name entity types directly.
func (t *EntityType) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := ParseEntityType(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
