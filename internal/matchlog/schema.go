package matchlog

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// DefaultMaxOffset bounds how far a sub-stream may be shifted (two hours at 30 ticks/s)
const DefaultMaxOffset = 216000

// Schema names every section, field and constant the engine reads from a log.
// It is the contract with the upstream decoder; nothing is read from globals.
type Schema struct {
	// Roster
	RosterSection    string `yaml:"roster_section"`
	RosterTick       string `yaml:"roster_tick"`
	RosterOwnerField string `yaml:"roster_owner_field"`
	RosterTeamField  string `yaml:"roster_team_field"`

	// Items
	ItemsSection     string `yaml:"items_section"`
	ItemOwnerField   string `yaml:"item_owner_field"`
	ItemNameField    string `yaml:"item_name_field"`
	ItemDeletedField string `yaml:"item_deleted_field"`
	UnknownItemName  string `yaml:"unknown_item_name"`

	// Combat log
	CombatSection    string   `yaml:"combat_section"`
	DeathCategory    string   `yaml:"death_category"`
	DeathTargetField string   `yaml:"death_target_field"`
	AnchorTargets    []string `yaml:"anchor_targets"`

	// Structures
	StructureSection        string `yaml:"structure_section"`
	StructureTypeField      string `yaml:"structure_type_field"`
	StructureTypePrefix     string `yaml:"structure_type_prefix"`
	StructureDestroyedField string `yaml:"structure_destroyed_field"`
	StructureTeamField      string `yaml:"structure_team_field"`

	// MaxOffset is the largest offset magnitude a reconciliation may apply
	MaxOffset int64 `yaml:"max_offset"`

	// RejectNegativeOffset fails a reconciliation that would move the combat
	// log earlier. By default only ticks that would end up below zero fail.
	RejectNegativeOffset bool `yaml:"reject_negative_offset"`
}

// DefaultSchema returns the field layout of combined Dota 2 replay logs
func DefaultSchema() Schema {
	return Schema{
		RosterSection:    "heroes",
		RosterTick:       "-1",
		RosterOwnerField: "playerID",
		RosterTeamField:  "teamNum",

		ItemsSection:     "items",
		ItemOwnerField:   "playerOwnerID",
		ItemNameField:    "name",
		ItemDeletedField: "deleted",
		UnknownItemName:  "INCORRECT INFO - CHECK",

		CombatSection:    "combatLog",
		DeathCategory:    "DOTA_COMBATLOG_DEATH",
		DeathTargetField: "target",
		AnchorTargets:    []string{"npc_dota_goodguys_fort", "npc_dota_badguys_fort"},

		StructureSection:        "buildings",
		StructureTypeField:      "buildingType",
		StructureTypePrefix:     "CDOTA_BaseNPC_Fort",
		StructureDestroyedField: "deleted",
		StructureTeamField:      "teamNum",

		MaxOffset: DefaultMaxOffset,
	}
}

// ParseSchema applies YAML overrides on top of DefaultSchema.
// Keys absent from the document keep their default value.
func ParseSchema(data []byte) (Schema, error) {
	schema := DefaultSchema()
	if err := yaml.Unmarshal(data, &schema); err != nil {
		return Schema{}, fmt.Errorf("failed to parse schema: %w", err)
	}
	if err := schema.Validate(); err != nil {
		return Schema{}, err
	}
	return schema, nil
}

// Validate reports the first required name that is blank
func (s Schema) Validate() error {
	required := []struct {
		name  string
		value string
	}{
		{"roster_section", s.RosterSection},
		{"roster_tick", s.RosterTick},
		{"roster_owner_field", s.RosterOwnerField},
		{"items_section", s.ItemsSection},
		{"item_owner_field", s.ItemOwnerField},
		{"item_name_field", s.ItemNameField},
		{"item_deleted_field", s.ItemDeletedField},
		{"unknown_item_name", s.UnknownItemName},
		{"combat_section", s.CombatSection},
		{"death_category", s.DeathCategory},
		{"death_target_field", s.DeathTargetField},
		{"structure_section", s.StructureSection},
		{"structure_type_field", s.StructureTypeField},
		{"structure_type_prefix", s.StructureTypePrefix},
		{"structure_destroyed_field", s.StructureDestroyedField},
	}
	for _, r := range required {
		if r.value == "" {
			return fmt.Errorf("schema field %s must not be empty", r.name)
		}
	}
	if len(s.AnchorTargets) == 0 {
		return fmt.Errorf("schema field anchor_targets must list at least one target")
	}
	if s.MaxOffset <= 0 {
		return fmt.Errorf("schema field max_offset must be positive, got %d", s.MaxOffset)
	}
	return nil
}
