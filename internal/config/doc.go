// Package config provides configuration parsing and validation for miniraft.
//
// Configuration is read from a YAML file. Only the subset of YAML used by
// miniraft is understood: nested maps, lists of maps, quoted or bare scalars
// and comments. ${VAR} and ${VAR:-default} are replaced with environment
// variables before parsing. Keys missing from the file keep the values from
// DefaultConfig.
//
// # Example
//
//	node:
//	  id: 1
//	  raftAddr: "127.0.0.1:7001"
//	  peers:
//	    - id: 2
//	      addr: "127.0.0.1:7002"
//	    - id: 3
//	      addr: "127.0.0.1:7003"
//
//	raft:
//	  electionTimeoutMin: 150ms
//	  electionTimeoutMax: 300ms
//	  heartbeatInterval: 50ms
//	  tickInterval: 10ms
//	  rpcTimeout: 1s
//
//	storage:
//	  dataDir: "${MINIRAFT_DATA:-/var/lib/miniraft}"
//
//	logging:
//	  level: info
//	  format: text
//	  output: stdout
//
// # Loading and Validating
//
//	cfg, err := config.LoadConfig("/etc/miniraft/node1.yaml")
//	if err != nil {
//	    return err
//	}
//	if errs := config.ValidateConfig(cfg); len(errs) > 0 {
//	    for _, e := range errs {
//	        fmt.Println(e)
//	    }
//	}
//
// Validation checks node and peer identities, address syntax, and the
// timing relations raft depends on: heartbeatInterval < electionTimeoutMin
// <= electionTimeoutMax and tickInterval < heartbeatInterval.
package config
