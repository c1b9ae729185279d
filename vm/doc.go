// Package vm emulates the quest script engine.
//
// This package contains:
//   - the register bank and the engine's pseudo-random generator
//   - instruction pointers into loaded object code
//   - cooperative threads with their call, argument and variable stacks
//   - the instruction dispatcher and the vsync scheduler
//   - the I/O boundary through which engine-visible effects reach the host
//
// A host loads object code, starts a thread per entry label and then calls
// Execute repeatedly, reacting to the returned ExecutionResult: Vsync on
// WaitingVsync, ListSelect on WaitingSelection and another Execute on
// WaitingInput.
package vm
