package templates

// Built-in template IDs
const (
	Vanilla = "vanilla"
	React   = "react"
)

func builtin() []*Template {
	return []*Template{
		{
			ID:          Vanilla,
			Name:        "HTML, CSS & JavaScript",
			Description: "A plain page with a stylesheet and a script.",
			AutoRun:     true,
			Builtin:     true,
			Files: []File{
				{Path: "index.html", Content: `<!DOCTYPE html>
<html>
  <head>
    <meta charset="utf-8">
    <title>My Vibe</title>
  </head>
  <body>
    <h1>Hello, VibeCoder!</h1>
    <button id="greet">Say hi</button>
  </body>
</html>
`},
				{Path: "style.css", Content: `body {
  font-family: system-ui, sans-serif;
  margin: 2rem;
}

h1 {
  color: #6c5ce7;
}
`},
				{Path: "script.js", Content: `document.getElementById('greet').addEventListener('click', function () {
  console.log('Hi there!');
});
console.log('Page ready');
`},
			},
		},
		{
			ID:          React,
			Name:        "React",
			Description: "A React component compiled in the browser with Babel.",
			AutoRun:     true,
			Builtin:     true,
			Files: []File{
				{Path: "index.html", Content: `<!DOCTYPE html>
<html>
  <head>
    <meta charset="utf-8">
    <title>React Vibe</title>
  </head>
  <body>
    <div id="root"></div>
  </body>
</html>
`},
				{Path: "App.jsx", Content: `function App() {
  const [clicks, setClicks] = React.useState(0);
  console.log('rendered', clicks);
  return (
    <main>
      <h1>Hello from React</h1>
      <button onClick={() => setClicks(clicks + 1)}>Clicked {clicks} times</button>
    </main>
  );
}

ReactDOM.createRoot(document.getElementById('root')).render(<App />);
`},
				{Path: "style.css", Content: `main {
  font-family: system-ui, sans-serif;
  text-align: center;
  margin-top: 3rem;
}
`},
			},
		},
	}
}
