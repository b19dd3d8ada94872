// Package stream moves build output through an ordered list of file stages.
//
// # Files
//
// A [File] starts life as an open reader handed out by the pipeline's source
// (the bundler) and becomes a buffered file once the [Buffer] stage has read
// it. Stages that need the whole contents refuse streaming files with
// [shared.ErrStreamFile].
//
// # Pipelines
//
// A [Pipeline] is built with [From], extended with [Pipeline.Pipe] and
// [Pipeline.OnError], and executed with [Pipeline.Run]. Stages run in order
// on the caller goroutine and each one receives the full output of the
// previous one.
//
// An error handler covers the stages registered before it, up to the previous
// handler. The first failure is handed to exactly one handler and the
// remaining stages are skipped. Errors raised after the last handler go to
// the last handler.
//
// # Built-in stages
//
//   - [Named] renames the output file
//   - [Buffer] drains streaming files into memory
//   - [InitSourceMaps] picks up and strips an existing source map comment
//   - [WriteSourceMaps] emits a sibling .map file or drops the map
//   - [Dest] writes files to a directory
package stream
