// Package harness runs YAML-defined scenarios against the instrumented tool
// and checks the run they produce.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: fork_two_connections
//	description: "fork.c opens one socket in parent and child"
//	target:
//	  binary: fork          # exactly one of binary | command | script | builtin_script
//	  options: ["-p"]
//	  env: ["NETSPY_DEV=enp0s3"]
//	  capture_output: false
//	assertions:
//	  - type: exit_success
//	  - type: no_log_errors
//	  - type: connection_count
//	    count: 2
//	  - type: artifacts_present
//	    connection: 0
//	  - type: event_contains
//	    connection: 0
//	    event: socket
//
// # Assertion Types
//
//   - exit_success, exit_failure: exit status of the launched process
//   - no_log_errors, log_errors: error-marked lines in the run log
//   - connection_count: number of connection directories in the run
//   - artifacts_present: a connection's metadata and capture exist, are
//     non-empty and the capture has a pcap header
//   - event_contains: a connection's event document includes an event type
//   - output_contains: captured output includes a substring
//     (requires target.capture_output)
//
// # Deterministic Testing
//
// Every harness step is stamped by a testutil.DeterministicClock, and the
// golden summary leaves out process IDs and paths, so repeated runs of a
// scenario compare byte-for-byte against testdata/golden.
//
// # Usage
//
//	scenario, err := harness.LoadScenario("scenarios/fork.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := harness.Run(ctx, harness.NewDeps(driver, logger), scenario)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if !result.Pass {
//	    for _, e := range result.Errors {
//	        log.Println(e)
//	    }
//	}
package harness
