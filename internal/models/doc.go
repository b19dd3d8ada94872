// Package models defines the build history entities persisted by bundlex.
//
// A [Run] is one execution of a task, created when the host starts the task
// and finished with the pipeline's outcome. Each run carries the ordered
// [Step] messages its task recorded (for the bundle task: "Transforming ES2015
// to ES5" then "Bundling").
//
// [Run] implements [Entry]. The host writes runs through a [Recorder] and
// the history commands read them back through a [RunStore], narrowed by a
// [Filter].
package models
