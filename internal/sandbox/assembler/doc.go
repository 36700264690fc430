/*
Package assembler turns a flattened list of virtual files into a single
executable HTML document for the preview frame.

# Layout

The generated document always has the same shape:

	<head>
	  console shim            (first element, before any user code)
	  React, ReactDOM, Babel  (only when a JSX/TSX file exists)
	  ...root HTML head...
	  <link> per CSS file
	</head>
	<body>
	  ...root HTML body...
	  <script src> per JS file
	  <script type="text/babel"> per JSX/TSX file
	</body>

The root HTML is index.html when present, otherwise the first .html file in
tree order, otherwise a synthesized skeleton with a #root mount point.

Relative references in the root HTML (<link href>, <script src>,
<img src>) that name a virtual file are rewritten to that file's URL and the
file is not injected a second time.

# Determinism

Assemble is a pure function of its inputs: the same files and the same
resolver output give byte-identical HTML.
*/
package assembler
