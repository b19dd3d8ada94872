// Package repositories implements SQLite persistence for run history.
//
// [RunRepository] stores each [models.Run] in the runs table and its ordered
// steps in the steps table. StartRun inserts a run as it begins, FinishRun
// writes the outcome and replaces the steps in one transaction.
//
// Queries return runs newest first. List narrows them with a [models.Filter].
package repositories
