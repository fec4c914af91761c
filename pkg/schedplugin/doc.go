/*
Package schedplugin implements the filter/score/reserve pipeline the
scheduling framework runs a ScheduleRequest through against every
candidate ResourceUnit: the shared per-request context comes from
NewPreAllocatedContext, Filter narrows candidates down, Score ranks
the survivors, and Reserve records the winner's tentative allocation
so a later request in the same batch sees it as already spoken for.
A PrefilterPlugin can be registered, but Framework does not run it.

Plugins register themselves into a Registry by name so a driver can
assemble a pipeline from configuration rather than a compiled-in list.
*/
package schedplugin
