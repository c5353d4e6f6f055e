/*
Package config provides configuration management for the settings coordinator.

Configuration is assembled from three sources, later ones taking precedence:

	┌─────────────────────────────────────────────┐
	│        Command-line flags                   │ ← Highest Priority
	└─────────────────────────────────────────────┘
	                      │
	┌─────────────────────────────────────────────┐
	│        Environment Variables                │
	│         (VIEWERSETTINGS_*)                  │
	└─────────────────────────────────────────────┘
	                      │
	┌─────────────────────────────────────────────┐
	│         Configuration File (YAML)           │
	└─────────────────────────────────────────────┘
	                      │
	┌─────────────────────────────────────────────┐
	│           Default Values                    │ ← Lowest Priority
	└─────────────────────────────────────────────┘

# Sections

  - global: log level, format and file
  - settings: autosave interval, settings file name, world-writable sharing, staging directory
  - storage.s3 / storage.gcs: endpoints, credentials and request timeouts
  - network.retry: backoff policy for object-storage calls
  - monitoring.metrics: Prometheus endpoint

# Usage

	cfg := config.NewDefault()
	if err := cfg.LoadFromFile("/etc/viewersettings/config.yaml"); err != nil {
		log.Fatal(err)
	}
	if err := cfg.LoadFromEnv(); err != nil {
		log.Fatal(err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}

Configuration file format:

	global:
	  log_level: INFO
	  log_format: text

	settings:
	  autosave_interval: 5m
	  file_name: viewer-settings.xml
	  share_with_all_users: false

	storage:
	  s3:
	    region: us-east-1
	    endpoint: ""
	    force_path_style: false
	    request_timeout: 30s
	  gcs:
	    project: ""
	    credentials_file: ""

	network:
	  retry:
	    max_attempts: 3
	    base_delay: 200ms
	    max_delay: 5s

	monitoring:
	  metrics:
	    enabled: false
	    address: ":9090"
	    path: /metrics
*/
package config
