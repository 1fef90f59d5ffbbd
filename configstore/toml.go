package configstore

import "github.com/BurntSushi/toml"

// loadTOML is the alternate supervisor.toml decoder (grounded on
// nevindra-oasis's use of BurntSushi/toml) selected automatically by
// Load when supervisor.yaml is absent but supervisor.toml exists.
func loadTOML(data []byte, v *fileConfig) error {
	_, err := toml.Decode(string(data), v)
	return err
}
