/*
Package buildfs provides the virtual file layer of a multi-phase build
pipeline: an in-memory read-through file cache, a hybrid filesystem that
answers from that cache before falling back to disk, and an incremental
change aggregator for watch mode.

# Overview

Every phase of a build (transpile, type-check, code generation, bundling,
minification) reads files produced by the phase before it. Instead of
writing each artifact to disk and reading it back, phases write into a
shared FileCache through a HybridFS. Later phases read through the same
HybridFS and see the new content immediately; disk is only touched on a
cache miss, or when the write-to-disk flag is set, or on the final Flush.

# Architecture

	Context
	  ├── FileCache     path → FileRecord{Content, Timestamp}
	  ├── Channel       TopicActivity, TopicVirtualWrite
	  └── HybridFS      cache + synthetic entries + disk delegates
	        ├── CompilerHost        compiler-facing file access
	        └── FileSystem()        absfs.FileSystem for bundlers
	Aggregator          per watch session, reads FileCache timestamps

Disk delegates are plain absfs.FileSystem values, so the same HybridFS runs
over the OS filesystem (osfs), an in-memory filesystem (memfs) in tests, or
anything else in the absfs family.

# Basic Usage

	disk, _ := osfs.NewFS()
	ctx := buildfs.NewContext(
	    buildfs.WithInput(disk),
	    buildfs.WithOutput(disk),
	)
	h := ctx.FS()

	// phase 1 emits into memory
	h.Write("/app/build/main.js", transpiled)

	// phase 2 reads it back without a disk round trip
	src, err := h.ReadContent("/app/build/main.js")

	// the last phase persists everything
	err = h.Flush()

# Synthetic Stats

Files written into the virtual layer get a FileEntry, and their immediate
parent directory gets a DirectoryEntry. Both implement os.FileInfo, so a
consumer calling Stat cannot tell a virtual file from a real one apart from
the placeholder identity returned by Sys.

# Purge

Purge drops the cache record and the FileEntry of each path. After a purge
Exists, Stat and ReadContent all fall back to the disk delegate and agree
with each other. Directory entries are kept.

# Watch Mode

An Aggregator keeps a checkpoint timestamp. When activity is published on
the context's channel it collects every record stamped at or after the
checkpoint, splits the paths into watched files, watched directories and
expected-but-missing paths, reports them through its callbacks and moves the
checkpoint forward. A path written twice between two signals is reported
once.

# Thread Safety

The cache, the entry table and the channel are guarded by read-write locks,
so a disk watcher goroutine can feed the cache while a build phase reads
from it. The build graph itself is still expected to have a single writer
per path at a time.
*/
package buildfs
