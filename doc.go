// Package supervisor implements a multi-persona conversational agent
// supervisor: it polls a group chat, analyzes affect and personality of
// speakers, lets each configured persona decide independently whether to
// intervene, validates and schedules the resulting messages, optionally
// routes them through a human operator, and dispatches them back to the
// chat transport. See the graph, subgraph, poller, emotion, personality,
// scheduler, hitl, executor and runner packages for the pipeline stages.
package supervisor
