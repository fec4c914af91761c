/*
Package types defines the data model shared by every layer of the
scheduling subsystem: resources, resource units, instances, change
records, and the request/group structures that flow between a local
proxy and its domain scheduler.

# Architecture

	Resource / Resources       scalar + per-device vector quantities
	ResourceUnit                a node in the view tree (agent or aggregate)
	InstanceInfo                a placed instance and its schedule options
	ResourceUnitChange(s)        delta records produced by a local view
	ScheduleRequest / GroupInfo  what the domain schedules

Types here carry no behavior beyond JSON (de)serialization; arithmetic
and validation live in pkg/resourcealgebra, and ResourceUnit tree
mutation lives in pkg/resourceview.

# Ownership

A local proxy exclusively owns its ResourceUnits and their instance
maps. A domain scheduler holds replicated, eventually-consistent copies
reached by applying the change log a local exposes through
PullResource. GroupInfo records are exclusively owned by their
OwnerProxy; the domain only schedules on a group's behalf.
*/
package types
