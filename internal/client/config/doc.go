// Package config loads runtime configuration for the daybook client.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file (see parseJson) selected via flags: -c or -config.
//  3. Command-line flags (see parseFlags), which override earlier values.
//
// Supported flags
//
//	-a string   base URL of the sync server
//	-f string   path to the local sqlite database file
//	-n string   device name reported to the server
//	-i int      online status check interval (seconds)
//
// # JSON schema
//
// The JSON loader uses timex.Duration for intervals, so values can be either
// strings like "3s" or integer nanoseconds:
//
//	{
//	  "server_url": "http://127.0.0.1:8080",
//	  "db_path": "daybook.db",
//	  "device_name": "my-laptop",
//	  "online_check_interval": "3s",
//	  "request_timeout": "10s"
//	}
package config
