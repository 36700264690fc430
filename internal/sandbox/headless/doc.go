/*
Package headless runs a workspace's plain JavaScript files without a browser.

Files execute in tree order inside one goja runtime, the way sequential
script tags share a page. The runtime carries the same console shim as the
preview document, so console calls, uncaught exceptions and unhandled
promise rejections come back as the console messages the panel would show:

  - console.log/info → log, console.warn → warn, console.error → error
  - a thrown exception → one error message naming the file and line
  - setTimeout and setInterval callbacks run on a virtual clock after the
    last file, bounded by the execution timeout

JSX, TSX and module files need a browser and are reported as skipped.

Runtimes are pooled. Each execution starts from a fresh VM.

	pool, err := headless.NewPool(headless.DefaultConfig(), logger, metrics)
	result, err := pool.Execute(ctx, files)
*/
package headless
