package params

import (
	"os"
	"time"
)

// IoConfig defines the shared io parameters.
type IoConfig struct {
	ReadWritePermissions        os.FileMode
	ReadWriteExecutePermissions os.FileMode
	BoltTimeout                 time.Duration
}

var defaultIoConfig = IoConfig{
	ReadWritePermissions:        0600,
	ReadWriteExecutePermissions: 0700,
	BoltTimeout:                 1 * time.Second,
}

var relayIoConfig = &defaultIoConfig

// RelayIoConfig returns the current io config for the relay node.
func RelayIoConfig() *IoConfig {
	return relayIoConfig
}
