// Package config handles configuration loading for parley.
//
// # Overview
//
// Configuration is loaded from YAML or TOML files with environment variable
// expansion. The file extension picks the format: .toml is TOML, anything
// else is YAML. Load applies defaults and validates the result.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from PARLEY_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/parley/parley.yaml
//  3. ~/.config/parley/parley.yaml
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	openai:
//	  api_key: "${OPENAI_API_KEY}"
//
// Unset variables expand to the empty string.
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	engine:
//	  poll_interval: "500ms"
//
// # Agents
//
// Each agent has a unique key. An agent with an id wraps an existing remote
// assistant; one without an id needs a model and is created by
// `parley provision`. Fixed tool arguments override whatever the assistant
// supplies:
//
//	agents:
//	  - key: researcher
//	    name: Researcher
//	    model: gpt-4o
//	    tools: [cat, tree]
//	    arguments:
//	      tree:
//	        directory: "."
//
// Arguments under tools apply to every agent, beneath each agent's own.
//
// # Paths
//
// database.path and tools.root are resolved against the directory holding the
// config file unless absolute or starting with ~/.
package config
