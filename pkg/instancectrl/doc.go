/*
Package instancectrl drives one instance's ScheduleRequest from
submission through a scheduling decision to a confirmed placement (or
a final failure), retrying and re-deciding along the way the same way
a single long-lived actor would: a scheduling conflict is retried for
free (it never counts against the request's retry budget), a transport
failure to the chosen unit is retried against the same decision, and on
the header domain a "no capacity anywhere" outcome triggers an on-demand
agent scale-out (when a scaler is bound) or a bounded series of full
re-schedules before the request is given up on. On any other domain
that outcome is returned to the caller as-is.
*/
package instancectrl
