/*
Package types provides the core interfaces and data structures shared by the settings
persistence packages.

# Architecture Overview

A coordinator owns one settings resource for one viewing session:

	┌─────────────────────────────────────────────┐
	│            Host (cmd/viewersettings)        │
	└─────────────────────────────────────────────┘
	                      │
	┌─────────────────────────────────────────────┐
	│      Coordinator (internal/coordinator)     │
	└─────────────────────────────────────────────┘
	     │             │              │
	┌────┴─────┐ ┌─────┴─────┐ ┌──────┴──────┐
	│ Backend  │ │ Lock      │ │ Autosave /  │
	│ fs/s3/gcs│ │ Registry  │ │ Shutdown    │
	└──────────┘ └───────────┘ └─────────────┘

# Core Interfaces

Backend:
Per-resource storage primitives. The filesystem implementation holds a real OS advisory
lock; object-storage implementations hand out placeholder handles and approximate
exclusivity with a permission check.

SettingsSource:
The viewer side of the contract. The coordinator never looks inside the blob it moves
between a SettingsSource and a Backend.

# Thread Safety

Backend implementations must tolerate concurrent calls for different handles. Calls that
touch one live handle are serialized by the caller through the lock registry.
*/
package types
