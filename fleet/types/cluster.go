package types

// ClusterConfig is the resolved configuration of one named cluster preset.
type ClusterConfig struct {
	ID                  string `json:"id"`
	TargetSpares        int    `json:"target_spares"`
	MaxInstances        int    `json:"max_instances"`
	MaxInstancesPublic  int    `json:"max_instances_public"`
	MaxInstancesPrivate int    `json:"max_instances_private"`
	NameTemplate        string `json:"name_template"`

	// Macro overrides applied on top of the fleet-wide defaults when an
	// instance of this cluster is spawned.
	PublicMacros  map[string]string `json:"public_macros"`
	PrivateMacros map[string]string `json:"private_macros"`
}
