// Package host registers build tasks, runs them and re-runs them when their sources change.
//
// # Tasks
//
// A [Task] is anything that can name itself, build a [stream.Pipeline] and
// register watch globs. Tasks embed a [*Base] created with [NewBase] for the
// shared helpers: step recording, the pipeline error handler, watch
// registration, source map stages, minification (production only) and the
// output sink.
//
// # Running
//
// [Host.Run] runs one task and [Host.RunAll] runs every task in registration
// order. Each run is recorded through an optional [RunRecorder] (the sqlite
// run repository) and reported as [Event] values on an optional channel.
//
// # Watching
//
// [Host.Watch] collects every task's watch globs, watches their static
// directory prefixes and maps changed paths back to tasks. Runs of one task
// are serialized: a change during a run queues exactly one follow-up run and
// further changes are coalesced into it. Follow-up runs pass through a
// per-task [rate.Limiter].
package host
