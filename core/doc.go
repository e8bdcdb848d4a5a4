// Package core defines the shared data model of the agentrun library: agent
// configurations, conversation messages and threads, the run state machine,
// the RunProvider contract to remote completion services, and the error
// taxonomy used across every layer. Higher level packages (capability, agent,
// thread, engine, workflow) depend on core and never on each other's
// internals.
package core
