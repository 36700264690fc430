package assembler

import (
	"strings"

	"github.com/bytedance/sonic"
)

// consoleShim patches console, listens for uncaught errors and rejections
// and reports the window load. Every message goes to the parent frame via
// postMessage and, when a relay URL is set, to the backend relay.
const consoleShim = `(function () {
  var relay = __VIBE_RELAY__;
  var files = __VIBE_FILES__;
  function fileOf(src) {
    if (!src) return '';
    var clean = String(src).split('#')[0].split('?')[0];
    if (files[clean]) return files[clean];
    for (var url in files) {
      if (clean.slice(-url.length) === url) return files[url];
    }
    return clean.substring(clean.lastIndexOf('/') + 1);
  }
  function currentFile() {
    var s = document.currentScript;
    if (!s) return '';
    return s.getAttribute('data-file') || fileOf(s.src);
  }
  function serialize(v) {
    if (v instanceof Error) return v.name + ': ' + v.message;
    if (v === undefined) return 'undefined';
    if (typeof v === 'function' || typeof v === 'symbol' || typeof v === 'bigint') return String(v);
    try { JSON.stringify(v); return v; } catch (e) { return String(v); }
  }
  function send(payload) {
    try { parent.postMessage(payload, '*'); } catch (e) {}
    if (!relay) return;
    try {
      var body = JSON.stringify(payload);
      var queued = navigator.sendBeacon && navigator.sendBeacon(relay, new Blob([body], { type: 'text/plain' }));
      if (!queued) fetch(relay, { method: 'POST', body: body, keepalive: true });
    } catch (e) {}
  }
  ['log', 'warn', 'error', 'info'].forEach(function (method) {
    var original = console[method];
    console[method] = function () {
      var args = Array.prototype.slice.call(arguments).map(serialize);
      send({ type: 'console', method: method, args: args, file: currentFile() });
      if (original) original.apply(console, arguments);
    };
  });
  window.addEventListener('error', function (e) {
    var where = e.lineno ? ' (line ' + e.lineno + ')' : '';
    send({ type: 'console', method: 'error', args: [(e.message || 'Script error') + where], file: fileOf(e.filename) });
  });
  window.addEventListener('unhandledrejection', function (e) {
    send({ type: 'console', method: 'error', args: ['Unhandled promise rejection: ' + serialize(e.reason)], file: '' });
  });
  window.addEventListener('load', function () { send({ type: 'loaded' }); });
})();`

// renderShim fills in the relay URL and the URL→file name table. Map keys
// are sorted by the encoder so the output is stable.
func renderShim(relayURL string, files map[string]string) (string, error) {
	relay := []byte("null")
	if relayURL != "" {
		var err error
		if relay, err = sonic.ConfigStd.Marshal(relayURL); err != nil {
			return "", err
		}
	}
	table, err := sonic.ConfigStd.Marshal(files)
	if err != nil {
		return "", err
	}

	return strings.NewReplacer(
		"__VIBE_RELAY__", string(relay),
		"__VIBE_FILES__", string(table),
	).Replace(consoleShim), nil
}
