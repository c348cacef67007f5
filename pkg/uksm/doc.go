/*

	Package uksm drives a kernel same-page merging facility from
	user space for a set of registered processes.

	Component types

	1. The Gateway (gateway.go) is the only component aware of the
	kernel's control-node command grammar and the uksm_pagemap
	record layout. It probes the facility, reads per-process
	pagemaps, and issues compare/merge/unmerge commands.

	2. Trackers (tracker.go) classify each anonymous page of one
	process into new/old/merged lifecycle buckets across refresh
	cycles, sampling the address space through the map reader
	(procmap.go, rangeset.go) and the Gateway.

	3. The MergeIndex (mergeindex.go) groups merged pages into
	per-fingerprint equivalence classes and drives the Gateway's
	merge and unmerge primitives.

	4. The Scheduler (scheduler.go) owns the registered-task map
	and four work queues (unmerge, del, refresh, merge), draining
	them with a single background worker in strict priority order.

*/
package uksm
