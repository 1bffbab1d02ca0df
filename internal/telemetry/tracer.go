package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Span attribute keys.
const (
	AttrFilesystem = "fs.name"
	AttrInodeID    = "fs.inode_id"
	AttrPolicy     = "sweep.policy"
	AttrPhase      = "sweep.phase"
	AttrSweepID    = "sweep.id"
	AttrPages      = "sweep.pages"
	AttrVisited    = "sweep.visited"
	AttrFailures   = "sweep.failures"
	AttrValue      = "sysctl.value"
	AttrStoreType  = "store.type"
)

// Span names.
const (
	SpanSweepOne      = "sweep.one"
	SpanSweepAll      = "sweep.all"
	SpanSweepPhase    = "sweep.phase"
	SpanDropPageCache = "sweep.drop_pagecache"
	SpanDropSlab      = "sweep.drop_slab"
	SpanMarkInvalid   = "sweep.mark_invalid"
	SpanDropCaches    = "sysctl.drop_caches"
	SpanWriteback     = "writeback.pass"
)

func Filesystem(name string) attribute.KeyValue { return attribute.String(AttrFilesystem, name) }

func Policy(name string) attribute.KeyValue { return attribute.String(AttrPolicy, name) }

func Phase(name string) attribute.KeyValue { return attribute.String(AttrPhase, name) }

func SweepID(id string) attribute.KeyValue { return attribute.String(AttrSweepID, id) }

func Pages(n int) attribute.KeyValue { return attribute.Int(AttrPages, n) }

func Visited(n int) attribute.KeyValue { return attribute.Int(AttrVisited, n) }

func Failures(n int) attribute.KeyValue { return attribute.Int(AttrFailures, n) }

func Value(v int) attribute.KeyValue { return attribute.Int(AttrValue, v) }
