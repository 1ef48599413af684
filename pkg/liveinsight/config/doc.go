/*
Package config reads tracker settings from YAML or JSON.

# Overview

Config wraps a map[string]any and provides typed accessors that return the
default value on a missing key or a type mismatch, so partially written
files never fail a load.

	cfg, err := config.FromFile("liveinsight.yaml")
	if err != nil {
	    return err
	}
	settings := config.Settings(cfg.Section("tracker"))

# Tracker Settings

Settings recognises sessionTimeout, retryAttempts, retryDelay, batchSize,
flushInterval and heartbeatInterval. Durations may be bare numbers in
milliseconds, matching the browser tracker's option object, or Go duration
strings:

	tracker:
	  sessionTimeout: 1800000
	  retryDelay: 2s
	  batchSize: 20

Unrecognised keys are ignored.

# Thread Safety

Config is safe for concurrent read access. The underlying map is not
modified after creation.
*/
package config
