// Package walkdetector infers directory walks from individual file and
// directory read events.
//
// A client that enumerates a subtree, such as a build tool or a recursive
// grep, shows up to a virtual filesystem as an unordered stream of reads.
// The Detector folds those reads into a small set of (directory, depth)
// walks that a prefetcher can act on.
//
//	d := walkdetector.New()
//	d.FileRead("src/a/x.go")
//	d.FileRead("src/a/y.go")
//	d.FileRead("src/b/z.go")
//	d.FileRead("src/b/w.go")
//	fmt.Println(d.FileWalks()) // [src (depth 1)]
//
// # Event sources
//
// Replay feeds a traversal of a real directory tree, Watch feeds live
// fsnotify activity, and ReadTrace feeds a recorded access trace:
//
//	stats, err := walkdetector.Replay(ctx, "/path/to/tree", d, walkdetector.ReplayOptions{})
//
// Sources accept any AccessSink, so they can be wrapped with middleware:
//
//	sink := walkdetector.Chain(d, walkdetector.LoggingSink(logger))
//	err := walkdetector.Watch(ctx, "/path/to/watch", sink, walkdetector.WatchOptions{Recursive: true})
package walkdetector
