// Package harness runs conformance scenarios against the compiler.
//
// A scenario is a YAML file holding a DSL program, the dependency archives
// it compiles against (given as DSL source and compiled first), and either
// an expected failure or assertions over the inspected archive:
//
//	name: dependency_override
//	description: the later dependency wins on a vault name collision
//	dependencies:
//	  - name: old.svau
//	    source: |
//	      vault app
//	        registry env
//	        store "mode" = "old"
//	  - name: new.svau
//	    source: |
//	      vault app
//	        registry env
//	        store "mode" = "new"
//	program: |
//	  vault app
//	    store env -> "extra" = 1
//	assertions:
//	  - type: value
//	    vault: app
//	    registry: env
//	    key: mode
//	    value: new
//
// Runs are deterministic: keys come from testutil, generate() reads a
// fixed byte sequence and now() a deterministic clock, so the decrypted
// view of every scenario can be compared against a golden file.
//
// Each run also records the compile in a fresh in-memory build ledger;
// `ledger` assertions check the recorded summary.
package harness
