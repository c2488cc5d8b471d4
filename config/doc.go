// Package config provides a stage registry and human-readable scope configuration.
//
// Register stage factories by name, then define scopes in YAML that reference
// those names with optional args and a per-stage timeout:
//
//	name: ingest
//	annotations:
//	  team: data
//	pipelines:
//	  - name: numbers
//	    batch_size: 1000
//	    stages:
//	      - name: range
//	        args: {end: 100000, resumable: true}
//	      - name: log
//	        timeout: 5s
//	    retry:
//	      max_attempts: 5
//	      initial: 1s
//
// BuildScope(registry, cfg) turns a ScopeConfig into a scope.Scope ready for
// run requests. MarshalScope writes a config back out in the same form.
package config
