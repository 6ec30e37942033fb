// Package config handles lizi-tools configuration loading.
//
// # Overview
//
// Configuration is loaded from a YAML file (or TOML, for files ending in
// .toml) with environment variable expansion. Every key has a default, so a
// missing file is not an error.
//
// # Configuration File
//
// Resolve picks the file in this order:
//
//  1. The -config flag
//  2. $LIZI_CONFIG
//  3. $XDG_CONFIG_HOME/lizi/config.yaml
//  4. ~/.config/lizi/config.yaml
//
// # Environment Variables
//
// Use ${VAR} syntax to reference environment variables:
//
//	vault:
//	  passphrase_env: "LIZI_PASSPHRASE"
//	data_dir: "${HOME}/.local/share/lizi"
//
// # Configuration Sections
//
// Storage:
//
//	storage:
//	  backend: "file"          # file, sqlite
//	  sqlite_path: ""          # defaults to <data_dir>/lizi.db
//
// Verification:
//
//	verify:
//	  default_pick: 3
//	  challenge_ttl: "10m"
//	  authorization_ttl: "5m"
//	  avoid_repeat_window: "0s"  # prefer questions not asked within this window
//	  decoys: ["London", "Blue", "1999"]  # defaults to DefaultDecoys
//	  unknown_option: "I don't know"
//
// Vault:
//
//	vault:
//	  key_file: ""               # defaults to <data_dir>/master.key
//	  passphrase_env: ""         # use a passphrase instead of a key file
//	  require_auth_for_writes: false
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// # Usage
//
//	path, err := config.Resolve(flagPath)
//	if err != nil {
//	    return err
//	}
//	cfg, err := config.LoadDefault()
//	if path != "" {
//	    cfg, err = config.Load(path)
//	}
package config
