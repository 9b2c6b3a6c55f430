// Package discovery forms the discovery cluster on the discovery instances.
//
// A JoinChainPlan orders the instances: the first starts alone and waits for
// the quorum, every later one joins the instances that started before it.
// The Sequencer executes the plan as one batch in which step i waits for
// every step before it, so each new member joins an already formed core.
package discovery
