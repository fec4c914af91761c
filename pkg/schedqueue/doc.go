/*
Package schedqueue holds pending ScheduleRequests and drives them
through a scheduling decision one at a time, in priority order with
round-robin fairness across tenants at the same priority. Two queues
run side by side: Primary for ordinary resource requests and Virtual
for requests whose ResourceSelector names a pool.

A caller's request can be abandoned mid-wait via a cancel tag: a
channel that, when closed, makes ScheduleDecision return at once; the
request stays queued (and counted by Len) until the worker pops and
drops it, or its already-computed result is ignored, without the
decider ever having to know about cancellation.
*/
package schedqueue
