// Package localproxy implements the local-proxy side of the domain<->local
// scheduling channel: it answers the grpc calls pkg/underlayer's Manager
// makes (Reserve/UnReserve/Bind/UnBind/ClearGroup/Preempt/Dispatch/
// PullResource/Heartbeat) against a process-local pkg/resourceview.ResourceView,
// the same way a real local proxy owns its agents' resource state exclusively
// and only ever exposes it to the domain through this transport.
package localproxy
