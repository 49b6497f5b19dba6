// Package store provides storage and pub/sub functionality for workflow runs.
//
// This package is internal to pdfxl and keeps the latest view of every run
// observed by the dashboard. It implements a publish-subscribe pattern for
// real-time updates to connected dashboard clients.
//
// The main components are:
//
//   - [Store]: Interface defining storage and subscription operations
//   - [MemoryStore]: In-memory implementation of Store with pub/sub
//   - [RunStatus]: Storage representation of a run's progress
//
// Subscribers receive updates via channels with non-blocking sends (slow
// subscribers will miss updates rather than block the workflow).
package store
