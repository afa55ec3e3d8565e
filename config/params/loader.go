package params

import (
	"io/ioutil"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"
)

// LoadRelayConfigFile loads, unmarshals, and applies a relay chain config
// file on top of the currently active preset.
func LoadRelayConfigFile(configFileName string) {
	yamlFile, err := ioutil.ReadFile(configFileName) // #nosec G304
	if err != nil {
		log.WithError(err).Fatal("Failed to read relay config file.")
	}
	conf := RelayNodeConfig().Copy()
	if err := yaml.UnmarshalStrict(yamlFile, conf); err != nil {
		if _, ok := err.(*yaml.TypeError); !ok {
			log.WithError(err).Fatal("Failed to parse relay config yaml file.")
		} else {
			log.WithError(err).Error("There were some issues parsing the config from a yaml file")
		}
	}
	log.Debugf("Config file values: %+v", conf)
	OverrideRelayConfig(conf)
}
